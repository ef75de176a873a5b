package cache

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"minirel/catalog"
	"minirel/config"
	"minirel/dberr"
	"minirel/disk"
	"minirel/freemap"
)

// scanRelCat performs the sequential page scan over relcat's own pages,
// invoking visit for every live row. relcat and attrcat never go through
// heap.GetNextRec themselves (heap sits a layer above cache) so OpenRel can
// bootstrap without a package cycle; the scan logic here is intentionally
// the same shape as heap's, just specialised to a RelCatRec payload.
func (c *Catalog) scanRelCat(visit func(rec catalog.RelCatRec, rid catalog.RID) (stop bool, err error)) error {
	return c.scanFixed(c.slots[RelCatSlot], catalog.RelCatRecSize(c.cfg), func(buf []byte, rid catalog.RID) (bool, error) {
		rec, err := catalog.DecodeRelCatRec(c.cfg, buf)
		if err != nil {
			return false, err
		}
		return visit(*rec, rid)
	})
}

func (c *Catalog) scanAttrCat(visit func(rec catalog.AttrCatRec, rid catalog.RID) (stop bool, err error)) error {
	return c.scanFixed(c.slots[AttrCatSlot], catalog.AttrCatRecSize(c.cfg), func(buf []byte, rid catalog.RID) (bool, error) {
		rec, err := catalog.DecodeAttrCatRec(c.cfg, buf)
		if err != nil {
			return false, err
		}
		return visit(*rec, rid)
	})
}

func (c *Catalog) scanFixed(slot *Slot, recLength int, visit func(buf []byte, rid catalog.RID) (bool, error)) error {
	recsPerPg := c.cfg.RecsPerPage(recLength)
	numPgs, err := slot.Pager.NumPages()
	if err != nil {
		return err
	}
	for pid := int32(0); pid < numPgs; pid++ {
		buf, err := slot.Pager.ReadPage(pid)
		if err != nil {
			return err
		}
		page := catalog.NewPage(c.cfg, buf)
		if err := page.Validate(); err != nil {
			return err
		}
		for slotNum := 0; slotNum < recsPerPg; slotNum++ {
			if !page.SlotBit(slotNum) {
				continue
			}
			rid := catalog.RID{Pid: pid, SlotNum: int32(slotNum)}
			rec := page.ReadSlot(slotNum, recLength)
			stop, err := visit(rec, rid)
			if err != nil {
				return err
			}
			if stop {
				return nil
			}
		}
	}
	return nil
}

// OpenRel implements §4.2's OpenRel: reuse an already-cached slot, otherwise
// evict a victim, scan relcat for the row, open the relation file, and load
// its attribute list from attrcat.
func (c *Catalog) OpenRel(name string) (int, error) {
	if idx := c.Lookup(name); idx >= 0 {
		return idx, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var found *catalog.RelCatRec
	var foundRID catalog.RID
	err := c.scanRelCat(func(rec catalog.RelCatRec, rid catalog.RID) (bool, error) {
		if rec.RelName == name {
			r := rec
			found = &r
			foundRID = rid
			return true, nil
		}
		return false, nil
	})
	if err != nil {
		return -1, err
	}
	if found == nil {
		return -1, errors.WithStack(dberr.New(dberr.RelNoExist).WithArg(name))
	}

	victim := c.pickVictim()
	if c.slots[victim].Valid && c.log != nil {
		c.log.WithFields(logrus.Fields{"relation": c.slots[victim].RelCatRec.RelName, "slot": victim}).Debug("evicting open relation")
	}
	if c.slots[victim].Valid {
		if err := c.closeSlot(victim); err != nil {
			return -1, err
		}
	}

	pager, err := disk.Open(c.cfg, c.relPath(name))
	if err != nil {
		return -1, err
	}
	fm, err := freemap.Open(c.dir, name)
	if err != nil {
		pager.Close()
		return -1, err
	}

	var attrList []AttrDesc
	err = c.scanAttrCat(func(rec catalog.AttrCatRec, rid catalog.RID) (bool, error) {
		if rec.RelName == name {
			attrList = append(attrList, AttrDesc{Rec: rec, AttrCatRID: rid})
		}
		return false, nil
	})
	if err != nil {
		pager.Close()
		return -1, err
	}

	s := &Slot{
		RelCatRec: *found,
		RelCatRID: foundRID,
		Pager:     pager,
		FreeMap:   fm,
		AttrList:  attrList,
		Valid:     true,
	}
	c.slots[victim] = s
	c.byName[name] = victim
	c.clock++
	s.timestamp = c.clock
	s.el = c.repl.PushBack(victim)
	if c.log != nil {
		c.log.WithFields(logrus.Fields{"relation": name, "slot": victim}).Debug("opened relation")
	}
	return victim, nil
}

// CloseRel implements §4.2's CloseRel: flush the relcat row and buffered
// page if dirty, drop the attribute list, close the file handle, clear the
// slot. Idempotent on an already-invalid slot (returns failure, matching the
// spec's "returns failure" wording for closing a closed slot).
func (c *Catalog) CloseRel(relNum int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeSlot(relNum)
}

func (c *Catalog) closeSlot(relNum int) error {
	if relNum < 0 || relNum >= len(c.slots) {
		return errors.WithStack(dberr.New(dberr.InvalidRelNum))
	}
	s := c.slots[relNum]
	if !s.Valid {
		return errors.WithStack(dberr.New(dberr.InvalidRelNum))
	}
	if s.Dirty {
		if err := c.writeRelCatRowLocked(s); err != nil {
			return err
		}
	}
	if err := s.Pager.FlushPage(); err != nil {
		return err
	}
	if err := s.Pager.Close(); err != nil {
		return err
	}
	if c.log != nil {
		c.log.WithFields(logrus.Fields{"relation": s.RelCatRec.RelName, "slot": relNum}).Debug("closed relation")
	}
	delete(c.byName, s.RelCatRec.RelName)
	if s.el != nil {
		c.repl.Remove(s.el)
	}
	c.slots[relNum] = &Slot{}
	return nil
}

// writeRelCatRowLocked persists a dirty slot's RelCatRec back into relcat's
// page at RelCatRID, the way WriteRec would without going through heap (to
// avoid the cache->heap import cycle — see scanRelCat).
func (c *Catalog) writeRelCatRowLocked(s *Slot) error {
	relcat := c.slots[RelCatSlot]
	buf, err := relcat.Pager.ReadPage(s.RelCatRID.Pid)
	if err != nil {
		return err
	}
	recLen := catalog.RelCatRecSize(c.cfg)
	page := catalog.NewPage(c.cfg, buf)
	enc := make([]byte, recLen)
	if err := s.RelCatRec.Encode(c.cfg, enc); err != nil {
		return err
	}
	page.WriteSlot(int(s.RelCatRID.SlotNum), enc, recLen)
	relcat.Pager.MarkDirty()
	s.Dirty = false
	return nil
}

// MarkDirty flags relNum's cached relcat row as needing a write-back on
// close (or earlier, via Flush).
func (c *Catalog) MarkDirty(relNum int) error {
	s, err := c.Slot(relNum)
	if err != nil {
		return err
	}
	s.Dirty = true
	return nil
}

// Flush writes relNum's relcat row into relcat's buffered page immediately,
// used by heap primitives after mutating NumRecs/NumPgs. The page itself
// reaches disk when relcat's buffer is flushed.
func (c *Catalog) Flush(relNum int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, err := c.slotLocked(relNum)
	if err != nil {
		return err
	}
	if !s.Dirty {
		return nil
	}
	return c.writeRelCatRowLocked(s)
}

func (c *Catalog) slotLocked(relNum int) (*Slot, error) {
	if relNum < 0 || relNum >= len(c.slots) || !c.slots[relNum].Valid {
		return nil, errors.WithStack(dberr.New(dberr.InvalidRelNum))
	}
	return c.slots[relNum], nil
}

// CloseCats implements §4.2's CloseCats: close every user slot first (their
// WriteRec calls may still touch relcat), then attrcat, then relcat.
func (c *Catalog) CloseCats() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := AttrCatSlot + 1; i < len(c.slots); i++ {
		if c.slots[i].Valid {
			if err := c.closeSlot(i); err != nil {
				return err
			}
		}
	}
	if err := c.closeSlot(AttrCatSlot); err != nil {
		return err
	}
	return c.closeSlot(RelCatSlot)
}

// Dir returns the database directory backing this cache.
func (c *Catalog) Dir() string { return c.dir }

// Config returns the engine configuration this cache was built with.
func (c *Catalog) Config() *config.Config { return c.cfg }
