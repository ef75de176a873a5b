// Package heap implements §4.3's tuple primitives — InsertRec, DeleteRec,
// WriteRec, FindRec, GetNextRec — the L3 API every relational operator is
// built on. Grounded on original_source/physical/insertrec.c,
// deleterec.c, writerec.c, findrec.c, getnextrec.c.
package heap

import (
	"github.com/pkg/errors"

	"minirel/cache"
	"minirel/catalog"
	"minirel/dberr"
)

// InsertRec scans existing pages in ascending pid for a free slot; if the
// freemap reports one, it is consulted first. Failing that, it allocates a
// new logical page. Either way it persists the updated relcat row.
func InsertRec(c *cache.Catalog, relNum int, rec []byte) (catalog.RID, error) {
	s, err := c.Slot(relNum)
	if err != nil {
		return catalog.RID{}, err
	}
	recLen := int(s.RelCatRec.RecLength)
	recsPerPg := int(s.RelCatRec.RecsPerPg)
	if len(rec) != recLen {
		return catalog.RID{}, errors.WithStack(dberr.New(dberr.RecTooLong))
	}

	startPid := int32(0)
	if s.FreeMap != nil {
		if fp := s.FreeMap.FindFree(); fp >= 0 {
			startPid = fp
		}
	}

	numPgs := s.RelCatRec.NumPgs
	tryPage := func(pid int32) (catalog.RID, bool, error) {
		buf, err := s.Pager.ReadPage(pid)
		if err != nil {
			return catalog.RID{}, false, err
		}
		page := catalog.NewPage(c.Config(), buf)
		if err := page.Validate(); err != nil {
			return catalog.RID{}, false, err
		}
		slot := page.FirstFreeSlot(recsPerPg)
		if slot < 0 {
			return catalog.RID{}, false, nil
		}
		page.WriteSlot(slot, rec, recLen)
		page.SetSlotBit(slot, true)
		s.Pager.MarkDirty()
		full := page.IsFull(recsPerPg)
		s.RelCatRec.NumRecs++
		if err := c.MarkDirty(relNum); err != nil {
			return catalog.RID{}, false, err
		}
		if err := c.Flush(relNum); err != nil {
			return catalog.RID{}, false, err
		}
		if s.FreeMap != nil && full {
			if err := s.FreeMap.RemoveBit(pid); err != nil {
				return catalog.RID{}, false, err
			}
		}
		return catalog.RID{Pid: pid, SlotNum: int32(slot)}, true, nil
	}

	for pid := startPid; pid < numPgs; pid++ {
		rid, ok, err := tryPage(pid)
		if err != nil {
			return catalog.RID{}, err
		}
		if ok {
			return rid, nil
		}
	}
	// restart the scan from 0 if the freemap hint skipped earlier pages
	// that actually have room (a stale/absent freemap degrades to linear).
	for pid := int32(0); pid < startPid; pid++ {
		rid, ok, err := tryPage(pid)
		if err != nil {
			return catalog.RID{}, err
		}
		if ok {
			return rid, nil
		}
	}

	// no free slot anywhere: allocate a new logical page.
	pid, err := s.Pager.AppendPage()
	if err != nil {
		return catalog.RID{}, err
	}
	buf, err := s.Pager.ReadPage(pid)
	if err != nil {
		return catalog.RID{}, err
	}
	owner := byte(catalog.OwnerUser)
	switch s.RelCatRec.RelName {
	case "relcat":
		owner = catalog.OwnerRelCat
	case "attrcat":
		owner = catalog.OwnerAttrCat
	}
	page := catalog.NewPage(c.Config(), buf)
	page.InitEmpty(owner)
	page.WriteSlot(0, rec, recLen)
	page.SetSlotBit(0, true)
	s.Pager.MarkDirty()
	s.RelCatRec.NumPgs++
	s.RelCatRec.NumRecs++
	if err := c.MarkDirty(relNum); err != nil {
		return catalog.RID{}, err
	}
	if err := c.Flush(relNum); err != nil {
		return catalog.RID{}, err
	}
	return catalog.RID{Pid: pid, SlotNum: 0}, nil
}

// DeleteRec clears rid's slot bit, updates numRecs, and maintains the
// freemap symmetrically: set the bit when a full page frees up a slot,
// clear it when an insert fills the last free slot (that half lives in
// InsertRec above).
func DeleteRec(c *cache.Catalog, relNum int, rid catalog.RID) error {
	s, err := c.Slot(relNum)
	if err != nil {
		return err
	}
	if rid.Pid < 0 || rid.Pid >= s.RelCatRec.NumPgs {
		return errors.WithStack(dberr.New(dberr.PageOutOfBounds))
	}
	recsPerPg := int(s.RelCatRec.RecsPerPg)
	if rid.SlotNum < 0 || int(rid.SlotNum) >= recsPerPg {
		return errors.WithStack(dberr.New(dberr.PageOutOfBounds))
	}

	buf, err := s.Pager.ReadPage(rid.Pid)
	if err != nil {
		return err
	}
	page := catalog.NewPage(c.Config(), buf)
	if err := page.Validate(); err != nil {
		return err
	}
	wasFullBefore := page.IsFull(recsPerPg)

	page.SetSlotBit(int(rid.SlotNum), false)
	s.Pager.MarkDirty()
	s.RelCatRec.NumRecs--
	if err := c.MarkDirty(relNum); err != nil {
		return err
	}
	if err := c.Flush(relNum); err != nil {
		return err
	}

	hasFreeAfter := !page.IsFull(recsPerPg)
	if s.FreeMap != nil && wasFullBefore && hasFreeAfter {
		if err := s.FreeMap.Add(rid.Pid); err != nil {
			return err
		}
	}
	return nil
}

// WriteRec overwrites the record at rid in place without touching the
// slot-map or relcat row.
func WriteRec(c *cache.Catalog, relNum int, rid catalog.RID, rec []byte) error {
	s, err := c.Slot(relNum)
	if err != nil {
		return err
	}
	recLen := int(s.RelCatRec.RecLength)
	if len(rec) != recLen {
		return errors.WithStack(dberr.New(dberr.RecTooLong))
	}
	if rid.Pid < 0 || rid.Pid >= s.RelCatRec.NumPgs {
		return errors.WithStack(dberr.New(dberr.PageOutOfBounds))
	}
	buf, err := s.Pager.ReadPage(rid.Pid)
	if err != nil {
		return err
	}
	page := catalog.NewPage(c.Config(), buf)
	if err := page.Validate(); err != nil {
		return err
	}
	page.WriteSlot(int(rid.SlotNum), rec, recLen)
	s.Pager.MarkDirty()
	return nil
}

// increment advances a RID to the next lexicographic slot.
func increment(rid catalog.RID, recsPerPg int) catalog.RID {
	if !rid.IsValid() {
		return catalog.RID{Pid: 0, SlotNum: 0}
	}
	next := rid.SlotNum + 1
	if int(next) >= recsPerPg {
		return catalog.RID{Pid: rid.Pid + 1, SlotNum: 0}
	}
	return catalog.RID{Pid: rid.Pid, SlotNum: next}
}

// GetNextRec advances from startRid in lexicographic order, returning the
// invalid sentinel (not an error) when the scan falls off the end.
func GetNextRec(c *cache.Catalog, relNum int, startRid catalog.RID) (catalog.RID, []byte, error) {
	s, err := c.Slot(relNum)
	if err != nil {
		return catalog.RID{}, nil, err
	}
	recsPerPg := int(s.RelCatRec.RecsPerPg)
	recLen := int(s.RelCatRec.RecLength)
	rid := increment(startRid, recsPerPg)

	for rid.Pid < s.RelCatRec.NumPgs {
		buf, err := s.Pager.ReadPage(rid.Pid)
		if err != nil {
			return catalog.RID{}, nil, err
		}
		page := catalog.NewPage(c.Config(), buf)
		if err := page.Validate(); err != nil {
			return catalog.RID{}, nil, err
		}
		if page.SlotBit(int(rid.SlotNum)) {
			return rid, page.ReadSlot(int(rid.SlotNum), recLen), nil
		}
		rid = increment(rid, recsPerPg)
	}
	return catalog.InvalidRID, nil, nil
}

// Field describes the (offset, size, type) of an attribute used by
// FindRec's predicate.
type Field struct {
	Offset int
	Size   int
	Type   catalog.AttrType
}

// FindRec is GetNextRec with a predicate applied to field f of each
// candidate, using comparison op. Like GetNextRec, end-of-scan returns the
// invalid sentinel rather than an error.
func FindRec(c *cache.Catalog, relNum int, startRid catalog.RID, f Field, value []byte, op catalog.Op) (catalog.RID, []byte, error) {
	rid := startRid
	for {
		nextRid, buf, err := GetNextRec(c, relNum, rid)
		if err != nil {
			return catalog.RID{}, nil, err
		}
		if !nextRid.IsValid() {
			return catalog.InvalidRID, nil, nil
		}
		rid = nextRid
		field := buf[f.Offset : f.Offset+f.Size]
		if matchesField(field, value, f.Type, op) {
			return rid, buf, nil
		}
	}
}

func matchesField(field, value []byte, typ catalog.AttrType, op catalog.Op) bool {
	switch typ {
	case catalog.TypeInt:
		return catalog.CompareInt(catalog.DecodeInt(field), catalog.DecodeInt(value), op)
	case catalog.TypeFloat:
		return catalog.CompareFloat(catalog.DecodeFloat(field), catalog.DecodeFloat(value), op)
	default:
		return catalog.CompareString(catalog.DecodeString(field, len(field)), catalog.DecodeString(value, len(value)), op)
	}
}
