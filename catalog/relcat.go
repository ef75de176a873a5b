package catalog

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"minirel/config"
)

// RelCatRec is one row of the relation catalog: the self-describing record
// every relation, including relcat and attrcat themselves, has exactly one
// of.
type RelCatRec struct {
	RelName   string
	RecLength int32
	RecsPerPg int32
	NumAttrs  int32
	NumRecs   int32
	NumPgs    int32
}

// RelCatRecSize returns the fixed encoded length of a RelCatRec for the
// given configuration.
func RelCatRecSize(cfg *config.Config) int {
	return cfg.RelNameLen + 4*5
}

// Encode writes r into buf (which must be at least RelCatRecSize(cfg)
// bytes), little-endian, the way the teacher's relation.go packs fixed
// fields with encoding/binary.
func (r *RelCatRec) Encode(cfg *config.Config, buf []byte) error {
	if len(buf) < RelCatRecSize(cfg) {
		return errors.New("catalog: buffer too small for RelCatRec")
	}
	off := 0
	off += putFixedString(buf[off:], r.RelName, cfg.RelNameLen)
	binary.LittleEndian.PutUint32(buf[off:], uint32(r.RecLength))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(r.RecsPerPg))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(r.NumAttrs))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(r.NumRecs))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(r.NumPgs))
	return nil
}

// Decode reads a RelCatRec from buf.
func DecodeRelCatRec(cfg *config.Config, buf []byte) (*RelCatRec, error) {
	if len(buf) < RelCatRecSize(cfg) {
		return nil, errors.New("catalog: buffer too small for RelCatRec")
	}
	r := &RelCatRec{}
	off := 0
	r.RelName, off = getFixedString(buf, off, cfg.RelNameLen)
	r.RecLength = int32(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	r.RecsPerPg = int32(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	r.NumAttrs = int32(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	r.NumRecs = int32(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	r.NumPgs = int32(binary.LittleEndian.Uint32(buf[off:]))
	return r, nil
}

func putFixedString(buf []byte, s string, width int) int {
	b := []byte(s)
	if len(b) > width {
		b = b[:width]
	}
	copy(buf[:width], b)
	for i := len(b); i < width; i++ {
		buf[i] = 0
	}
	return width
}

func getFixedString(buf []byte, off, width int) (string, int) {
	raw := buf[off : off+width]
	end := width
	for i, b := range raw {
		if b == 0 {
			end = i
			break
		}
	}
	return string(raw[:end]), off + width
}
