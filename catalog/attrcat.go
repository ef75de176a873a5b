package catalog

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"minirel/config"
)

// AttrType is the single-character type tag stored in an AttrCatRec.
type AttrType byte

const (
	TypeInt    AttrType = 'i'
	TypeFloat  AttrType = 'f'
	TypeString AttrType = 's'
)

// AttrCatRec is one row of the attribute catalog. Rows belonging to a
// relation are logically an ordered list but stored unordered in attrcat;
// insertion order into attrcat is the canonical schema order.
type AttrCatRec struct {
	Offset   int32
	Length   int32
	Type     AttrType
	AttrName string
	RelName  string
	HasIndex bool
	NPages   int32
	NKeys    int32
}

// AttrCatRecSize returns the fixed encoded length of an AttrCatRec.
func AttrCatRecSize(cfg *config.Config) int {
	return 4 + 4 + 1 + cfg.AttrNameLen + cfg.RelNameLen + 1 + 4 + 4
}

// Encode writes a into buf, little-endian.
func (a *AttrCatRec) Encode(cfg *config.Config, buf []byte) error {
	if len(buf) < AttrCatRecSize(cfg) {
		return errors.New("catalog: buffer too small for AttrCatRec")
	}
	off := 0
	binary.LittleEndian.PutUint32(buf[off:], uint32(a.Offset))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(a.Length))
	off += 4
	buf[off] = byte(a.Type)
	off++
	off += putFixedString(buf[off:], a.AttrName, cfg.AttrNameLen)
	off += putFixedString(buf[off:], a.RelName, cfg.RelNameLen)
	if a.HasIndex {
		buf[off] = 1
	} else {
		buf[off] = 0
	}
	off++
	binary.LittleEndian.PutUint32(buf[off:], uint32(a.NPages))
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], uint32(a.NKeys))
	return nil
}

// DecodeAttrCatRec reads an AttrCatRec from buf.
func DecodeAttrCatRec(cfg *config.Config, buf []byte) (*AttrCatRec, error) {
	if len(buf) < AttrCatRecSize(cfg) {
		return nil, errors.New("catalog: buffer too small for AttrCatRec")
	}
	a := &AttrCatRec{}
	off := 0
	a.Offset = int32(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	a.Length = int32(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	a.Type = AttrType(buf[off])
	off++
	a.AttrName, off = getFixedString(buf, off, cfg.AttrNameLen)
	a.RelName, off = getFixedString(buf, off, cfg.RelNameLen)
	a.HasIndex = buf[off] != 0
	off++
	a.NPages = int32(binary.LittleEndian.Uint32(buf[off:]))
	off += 4
	a.NKeys = int32(binary.LittleEndian.Uint32(buf[off:]))
	return a, nil
}
