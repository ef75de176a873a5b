package catalog

import (
	"github.com/pkg/errors"

	"minirel/config"
	"minirel/dberr"
)

// Owner bytes distinguish relcat/attrcat pages from ordinary user pages; the
// byte is purely diagnostic, page validation only checks the magic string.
const (
	OwnerRelCat = '$'
	OwnerAttrCat = '!'
	OwnerUser    = '_'
)

// Page is an in-memory view over one page's raw bytes, sized config.PageSize.
// It never owns the backing array: callers hand it the buffer slot's bytes
// so writes land directly in the cache.
type Page struct {
	cfg  *config.Config
	Data []byte
}

// NewPage wraps buf (which must be exactly cfg.PageSize bytes) as a Page.
func NewPage(cfg *config.Config, buf []byte) *Page {
	return &Page{cfg: cfg, Data: buf}
}

// InitEmpty stamps a freshly allocated page with owner byte, magic, and an
// all-zero slot-map.
func (p *Page) InitEmpty(owner byte) {
	for i := range p.Data {
		p.Data[i] = 0
	}
	p.Data[0] = owner
	copy(p.Data[1:config.DefaultMagicSize], config.GenMagic)
}

// Validate checks the page's magic string, mirroring the original engine's
// PAGE_MAGIC_ERROR check performed on every ReadPage.
func (p *Page) Validate() error {
	want := make([]byte, config.DefaultMagicSize-1)
	copy(want, config.GenMagic)
	for i, b := range p.Data[1:config.DefaultMagicSize] {
		if b != want[i] {
			return errors.WithStack(dberr.New(dberr.PageMagicError))
		}
	}
	return nil
}

// Owner returns the page's owner byte.
func (p *Page) Owner() byte {
	return p.Data[0]
}

// slotMapOffset is where the slot-map bytes begin.
const slotMapOffset = config.DefaultMagicSize

// SlotMap returns the raw slot-map as a little-endian uint64 (spec: "an
// unsigned integer whose bit i is 1 iff slot i holds a live record").
func (p *Page) SlotMap() uint64 {
	var v uint64
	end := p.cfg.HeaderSize
	for i := end - 1; i >= slotMapOffset; i-- {
		v = v<<8 | uint64(p.Data[i])
	}
	return v
}

// SetSlotMap writes v back as the page's slot-map.
func (p *Page) SetSlotMap(v uint64) {
	for i := slotMapOffset; i < p.cfg.HeaderSize; i++ {
		p.Data[i] = byte(v)
		v >>= 8
	}
}

// SlotBit reports whether slot i is marked live.
func (p *Page) SlotBit(i int) bool {
	return p.SlotMap()&(1<<uint(i)) != 0
}

// SetSlotBit sets or clears slot i's liveness bit.
func (p *Page) SetSlotBit(i int, live bool) {
	m := p.SlotMap()
	if live {
		m |= 1 << uint(i)
	} else {
		m &^= 1 << uint(i)
	}
	p.SetSlotMap(m)
}

// FullMask is the mask of all recsPerPg addressable slot bits.
func FullMask(recsPerPg int) uint64 {
	if recsPerPg >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(recsPerPg)) - 1
}

// IsFull reports whether every addressable slot is live.
func (p *Page) IsFull(recsPerPg int) bool {
	mask := FullMask(recsPerPg)
	return p.SlotMap()&mask == mask
}

// FirstFreeSlot returns the lowest unset bit in [0, recsPerPg), or -1 if the
// page is full.
func (p *Page) FirstFreeSlot(recsPerPg int) int {
	m := p.SlotMap()
	for i := 0; i < recsPerPg; i++ {
		if m&(1<<uint(i)) == 0 {
			return i
		}
	}
	return -1
}

// SlotOffset returns the byte offset of slot i's record storage.
func (p *Page) SlotOffset(i, recLength int) int {
	return p.cfg.HeaderSize + i*recLength
}

// ReadSlot returns a copy of slot i's raw bytes.
func (p *Page) ReadSlot(i, recLength int) []byte {
	off := p.SlotOffset(i, recLength)
	out := make([]byte, recLength)
	copy(out, p.Data[off:off+recLength])
	return out
}

// WriteSlot copies rec into slot i's raw bytes.
func (p *Page) WriteSlot(i int, rec []byte, recLength int) {
	off := p.SlotOffset(i, recLength)
	copy(p.Data[off:off+recLength], rec)
}
