// Package algebra implements §4.5's relational operators: Insert, Delete,
// Project, Select, Join, BuildIndex, DropIndex. All of them are
// materialising — select/project/join create a new relation and populate
// it via Insert-shaped InsertRec calls, scanning inputs in RID order.
// Grounded on original_source/algebra/*.c.
package algebra

import (
	"fmt"
	"strconv"

	"github.com/pkg/errors"

	"minirel/bptree"
	"minirel/cache"
	"minirel/catalog"
	"minirel/dberr"
	"minirel/heap"
	"minirel/schema"
)

// Literal is a parsed attribute value ready to encode into a record.
type Literal struct {
	Name  string
	Value string // raw textual literal, converted per the attribute's type
}

func findAttr(attrList []cache.AttrDesc, name string) (*cache.AttrDesc, int) {
	for i := range attrList {
		if attrList[i].Rec.AttrName == name {
			return &attrList[i], i
		}
	}
	return nil, -1
}

func encodeLiteral(buf []byte, a catalog.AttrCatRec, raw string) error {
	switch a.Type {
	case catalog.TypeInt:
		n, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return errors.WithStack(dberr.New(dberr.InvalidValue).WithArg(a.AttrName))
		}
		catalog.EncodeInt(buf, int32(n))
	case catalog.TypeFloat:
		f, err := strconv.ParseFloat(raw, 32)
		if err != nil {
			return errors.WithStack(dberr.New(dberr.InvalidValue).WithArg(a.AttrName))
		}
		catalog.EncodeFloat(buf, float32(f))
	case catalog.TypeString:
		catalog.EncodeString(buf, raw, int(a.Length))
	default:
		return errors.WithStack(dberr.New(dberr.InvalidFormat).WithArg(a.AttrName))
	}
	return nil
}

// Insert implements §4.5's Insert: build a zeroed record, fill in the
// listed attributes (unmentioned ones stay zero), reject duplicate
// attribute names in the argument list, reject an exact-duplicate tuple,
// then InsertRec.
func Insert(db *schema.DB, relName string, literals []Literal) (catalog.RID, error) {
	if relName == "relcat" || relName == "attrcat" {
		return catalog.RID{}, errors.WithStack(dberr.New(dberr.MetadataSecurity).WithArg(relName))
	}
	seen := make(map[string]bool, len(literals))
	for _, l := range literals {
		if seen[l.Name] {
			return catalog.RID{}, errors.WithStack(dberr.New(dberr.DupAttrInsert).WithArg(l.Name))
		}
		seen[l.Name] = true
	}

	idx, err := db.Cache.OpenRel(relName)
	if err != nil {
		return catalog.RID{}, err
	}
	slot, err := db.Cache.Slot(idx)
	if err != nil {
		return catalog.RID{}, err
	}

	rec := make([]byte, slot.RelCatRec.RecLength)
	for _, l := range literals {
		a, _ := findAttr(slot.AttrList, l.Name)
		if a == nil {
			return catalog.RID{}, errors.WithStack(dberr.New(dberr.AttrNoExist).WithArg(l.Name))
		}
		field := rec[a.Rec.Offset : a.Rec.Offset+a.Rec.Length]
		if err := encodeLiteral(field, a.Rec, l.Value); err != nil {
			return catalog.RID{}, err
		}
	}

	if dup, err := recordExists(db, idx, slot, rec); err != nil {
		return catalog.RID{}, err
	} else if dup {
		return catalog.RID{}, errors.WithStack(dberr.New(dberr.DupRows).WithArg(relName))
	}

	return heap.InsertRec(db.Cache, idx, rec)
}

func recordExists(db *schema.DB, idx int, slot *cache.Slot, rec []byte) (bool, error) {
	rid := catalog.InvalidRID
	for {
		next, buf, err := heap.GetNextRec(db.Cache, idx, rid)
		if err != nil {
			return false, err
		}
		if !next.IsValid() {
			return false, nil
		}
		rid = next
		if recordsEqual(buf, rec, slot) {
			return true, nil
		}
	}
}

func recordsEqual(a, b []byte, slot *cache.Slot) bool {
	for _, ad := range slot.AttrList {
		r := ad.Rec
		fa := a[r.Offset : r.Offset+r.Length]
		fb := b[r.Offset : r.Offset+r.Length]
		switch r.Type {
		case catalog.TypeInt:
			if catalog.DecodeInt(fa) != catalog.DecodeInt(fb) {
				return false
			}
		case catalog.TypeFloat:
			if !catalog.CompareFloat(catalog.DecodeFloat(fa), catalog.DecodeFloat(fb), catalog.OpEQ) {
				return false
			}
		default:
			for i := range fa {
				if fa[i] != fb[i] {
					return false
				}
			}
		}
	}
	return true
}

// Delete implements §4.5's Delete: forbidden on catalogs, look up the
// attribute, validate the literal, iterate FindRec deleting every match.
// Returns the number of deletions.
func Delete(db *schema.DB, relName, attrName string, op catalog.Op, literal string) (int, error) {
	if relName == "relcat" || relName == "attrcat" {
		return 0, errors.WithStack(dberr.New(dberr.MetadataSecurity).WithArg(relName))
	}
	idx, err := db.Cache.OpenRel(relName)
	if err != nil {
		return 0, err
	}
	slot, err := db.Cache.Slot(idx)
	if err != nil {
		return 0, err
	}
	a, _ := findAttr(slot.AttrList, attrName)
	if a == nil {
		return 0, errors.WithStack(dberr.New(dberr.AttrNoExist).WithArg(attrName))
	}
	value := make([]byte, a.Rec.Length)
	if err := encodeLiteral(value, a.Rec, literal); err != nil {
		return 0, err
	}
	field := heap.Field{Offset: int(a.Rec.Offset), Size: int(a.Rec.Length), Type: a.Rec.Type}

	count := 0
	rid := catalog.InvalidRID
	for {
		found, _, err := heap.FindRec(db.Cache, idx, rid, field, value, op)
		if err != nil {
			return count, err
		}
		if !found.IsValid() {
			return count, nil
		}
		if err := heap.DeleteRec(db.Cache, idx, found); err != nil {
			return count, err
		}
		count++
		rid = found
	}
}

// Project implements §4.5's Project: build a fresh attribute list in the
// given order from the source schema, create the destination via
// CreateFromAttrList, then repack every source tuple's listed fields into
// the destination's layout.
func Project(db *schema.DB, dstRel, srcRel string, attrNames []string) error {
	srcIdx, err := db.Cache.OpenRel(srcRel)
	if err != nil {
		return err
	}
	srcSlot, err := db.Cache.Slot(srcIdx)
	if err != nil {
		return err
	}
	if idx := db.Cache.Lookup(dstRel); idx >= 0 {
		return errors.WithStack(dberr.New(dberr.RelExist).WithArg(dstRel))
	}

	var srcAttrs []catalog.AttrCatRec
	for _, name := range attrNames {
		a, _ := findAttr(srcSlot.AttrList, name)
		if a == nil {
			return errors.WithStack(dberr.New(dberr.AttrNoExist).WithArg(name))
		}
		srcAttrs = append(srcAttrs, a.Rec)
	}

	if err := db.CreateFromAttrList(dstRel, srcAttrs); err != nil {
		return err
	}
	dstIdx, err := db.Cache.OpenRel(dstRel)
	if err != nil {
		return err
	}
	dstSlot, err := db.Cache.Slot(dstIdx)
	if err != nil {
		return err
	}

	rid := catalog.InvalidRID
	for {
		next, buf, err := heap.GetNextRec(db.Cache, srcIdx, rid)
		if err != nil {
			return err
		}
		if !next.IsValid() {
			break
		}
		rid = next

		out := make([]byte, dstSlot.RelCatRec.RecLength)
		for i, srcA := range srcAttrs {
			dstA := dstSlot.AttrList[i].Rec
			src := buf[srcA.Offset : srcA.Offset+srcA.Length]
			copy(out[dstA.Offset:dstA.Offset+dstA.Length], src)
		}
		if _, err := heap.InsertRec(db.Cache, dstIdx, out); err != nil {
			return err
		}
	}
	return nil
}

// Select implements §4.5's Select: create destination with an identical
// schema, then copy every tuple matching the predicate byte-for-byte.
func Select(db *schema.DB, dstRel, srcRel, attrName string, op catalog.Op, literal string) error {
	exists, err := db.RelationExists(dstRel)
	if err != nil {
		return err
	}
	if exists {
		return errors.WithStack(dberr.New(dberr.RelExist).WithArg(dstRel))
	}
	srcIdx, err := db.Cache.OpenRel(srcRel)
	if err != nil {
		return err
	}
	srcSlot, err := db.Cache.Slot(srcIdx)
	if err != nil {
		return err
	}
	a, _ := findAttr(srcSlot.AttrList, attrName)
	if a == nil {
		return errors.WithStack(dberr.New(dberr.AttrNoExist).WithArg(attrName))
	}
	value := make([]byte, a.Rec.Length)
	if err := encodeLiteral(value, a.Rec, literal); err != nil {
		return err
	}

	var srcAttrs []catalog.AttrCatRec
	for _, ad := range srcSlot.AttrList {
		srcAttrs = append(srcAttrs, ad.Rec)
	}
	if err := db.CreateFromAttrList(dstRel, srcAttrs); err != nil {
		return err
	}
	dstIdx, err := db.Cache.OpenRel(dstRel)
	if err != nil {
		return err
	}

	field := heap.Field{Offset: int(a.Rec.Offset), Size: int(a.Rec.Length), Type: a.Rec.Type}
	rid := catalog.InvalidRID
	for {
		found, buf, err := heap.FindRec(db.Cache, srcIdx, rid, field, value, op)
		if err != nil {
			return err
		}
		if !found.IsValid() {
			return nil
		}
		rid = found
		if _, err := heap.InsertRec(db.Cache, dstIdx, buf); err != nil {
			return err
		}
	}
}

// Join implements §4.5's Join, completing the nested-loop tuple-generation
// step the original source left as schema-creation-only: build the result
// schema (src1's attributes followed by src2's, minus attr2, renaming name
// conflicts to "<name>_<src2>"), then for every pair of tuples whose join
// fields compare equal, emit a concatenated record into the destination.
func Join(db *schema.DB, dstRel, src1, attr1, src2, attr2 string) error {
	idx1, err := db.Cache.OpenRel(src1)
	if err != nil {
		return err
	}
	slot1, err := db.Cache.Slot(idx1)
	if err != nil {
		return err
	}
	idx2, err := db.Cache.OpenRel(src2)
	if err != nil {
		return err
	}
	slot2, err := db.Cache.Slot(idx2)
	if err != nil {
		return err
	}
	if idx := db.Cache.Lookup(dstRel); idx >= 0 {
		return errors.WithStack(dberr.New(dberr.RelExist).WithArg(dstRel))
	}

	a1, _ := findAttr(slot1.AttrList, attr1)
	if a1 == nil {
		return errors.WithStack(dberr.New(dberr.AttrNoExist).WithArg(attr1))
	}
	a2, _ := findAttr(slot2.AttrList, attr2)
	if a2 == nil {
		return errors.WithStack(dberr.New(dberr.AttrNoExist).WithArg(attr2))
	}
	if a1.Rec.Type != a2.Rec.Type {
		return errors.WithStack(dberr.New(dberr.IncompatibleTypes).WithArg(attr1))
	}

	var resultAttrs []catalog.AttrCatRec
	for _, ad := range slot1.AttrList {
		resultAttrs = append(resultAttrs, ad.Rec)
	}
	names := make(map[string]bool, len(resultAttrs))
	for _, r := range resultAttrs {
		names[r.AttrName] = true
	}
	var src2Kept []catalog.AttrCatRec
	for _, ad := range slot2.AttrList {
		if ad.Rec.AttrName == attr2 {
			continue
		}
		r := ad.Rec
		if names[r.AttrName] {
			renamed := fmt.Sprintf("%s_%s", r.AttrName, src2)
			if len(renamed) >= db.Config().AttrNameLen {
				renamed = renamed[:db.Config().AttrNameLen-1]
			}
			r.AttrName = renamed
		}
		src2Kept = append(src2Kept, r)
	}
	resultAttrs = append(resultAttrs, src2Kept...)

	if err := db.CreateFromAttrList(dstRel, resultAttrs); err != nil {
		return err
	}
	dstIdx, err := db.Cache.OpenRel(dstRel)
	if err != nil {
		return err
	}
	dstSlot, err := db.Cache.Slot(dstIdx)
	if err != nil {
		return err
	}

	field1 := heap.Field{Offset: int(a1.Rec.Offset), Size: int(a1.Rec.Length), Type: a1.Rec.Type}

	rid1 := catalog.InvalidRID
	for {
		next1, buf1, err := heap.GetNextRec(db.Cache, idx1, rid1)
		if err != nil {
			return err
		}
		if !next1.IsValid() {
			break
		}
		rid1 = next1
		key1 := buf1[a1.Rec.Offset : a1.Rec.Offset+a1.Rec.Length]

		rid2 := catalog.InvalidRID
		for {
			next2, buf2, err := heap.GetNextRec(db.Cache, idx2, rid2)
			if err != nil {
				return err
			}
			if !next2.IsValid() {
				break
			}
			rid2 = next2
			key2 := buf2[a2.Rec.Offset : a2.Rec.Offset+a2.Rec.Length]
			if !fieldsEqual(key1, key2, a1.Rec.Type) {
				continue
			}
			out := make([]byte, dstSlot.RelCatRec.RecLength)
			di := 0
			for _, ad := range slot1.AttrList {
				r := ad.Rec
				dstA := dstSlot.AttrList[di].Rec
				copy(out[dstA.Offset:dstA.Offset+dstA.Length], buf1[r.Offset:r.Offset+r.Length])
				di++
			}
			for _, ad := range slot2.AttrList {
				if ad.Rec.AttrName == attr2 {
					continue
				}
				r := ad.Rec
				dstA := dstSlot.AttrList[di].Rec
				copy(out[dstA.Offset:dstA.Offset+dstA.Length], buf2[r.Offset:r.Offset+r.Length])
				di++
			}
			if _, err := heap.InsertRec(db.Cache, dstIdx, out); err != nil {
				return err
			}
		}
	}
	return nil
}

// BuildIndex implements §4.5's BuildIndex: allocates the physical B+ tree
// index file via bptree.Create, then toggles the attribute's hasIndex flag
// in attrcat. Forbidden on the system catalogs, requires the relation to be
// empty, and rejects rebuilding an index that already exists.
func BuildIndex(db *schema.DB, relName, attrName string) error {
	if relName == "relcat" || relName == "attrcat" {
		return errors.WithStack(dberr.New(dberr.MetadataSecurity).WithArg(relName))
	}
	idx, err := db.Cache.OpenRel(relName)
	if err != nil {
		return err
	}
	slot, err := db.Cache.Slot(idx)
	if err != nil {
		return err
	}
	if slot.RelCatRec.NumRecs != 0 || slot.RelCatRec.NumPgs != 0 {
		return errors.WithStack(dberr.New(dberr.IndexNonEmpty).WithArg(relName))
	}
	a, ai := findAttr(slot.AttrList, attrName)
	if a == nil {
		return errors.WithStack(dberr.New(dberr.AttrNoExist).WithArg(attrName))
	}
	if a.Rec.HasIndex {
		return errors.WithStack(dberr.New(dberr.IdxExist).WithArg(attrName))
	}

	tree, err := bptree.Create(db.Config(), db.Cache.Dir(), relName, attrName, int(a.Rec.Length), a.Rec.Type)
	if err != nil {
		return err
	}
	if err := tree.Close(); err != nil {
		return err
	}

	a.Rec.HasIndex = true
	slot.AttrList[ai].Rec.HasIndex = true
	return writeBackAttr(db, a.Rec, a.AttrCatRID)
}

// DropIndex implements §4.5's DropIndex: removes the physical index file via
// bptree.Destroy and clears hasIndex on one named attribute, or on every
// indexed attribute of the relation when attrName is empty.
func DropIndex(db *schema.DB, relName, attrName string) error {
	if relName == "relcat" || relName == "attrcat" {
		return errors.WithStack(dberr.New(dberr.MetadataSecurity).WithArg(relName))
	}
	idx, err := db.Cache.OpenRel(relName)
	if err != nil {
		return err
	}
	slot, err := db.Cache.Slot(idx)
	if err != nil {
		return err
	}

	if attrName != "" {
		a, ai := findAttr(slot.AttrList, attrName)
		if a == nil {
			return errors.WithStack(dberr.New(dberr.AttrNoExist).WithArg(attrName))
		}
		if !a.Rec.HasIndex {
			return errors.WithStack(dberr.New(dberr.IdxNoExist).WithArg(attrName))
		}
		if err := bptree.Destroy(db.Cache.Dir(), relName, attrName); err != nil {
			return err
		}
		a.Rec.HasIndex = false
		slot.AttrList[ai].Rec.HasIndex = false
		return writeBackAttr(db, a.Rec, a.AttrCatRID)
	}

	for i := range slot.AttrList {
		if !slot.AttrList[i].Rec.HasIndex {
			continue
		}
		if err := bptree.Destroy(db.Cache.Dir(), relName, slot.AttrList[i].Rec.AttrName); err != nil {
			return err
		}
		slot.AttrList[i].Rec.HasIndex = false
		if err := writeBackAttr(db, slot.AttrList[i].Rec, slot.AttrList[i].AttrCatRID); err != nil {
			return err
		}
	}
	return nil
}

func writeBackAttr(db *schema.DB, rec catalog.AttrCatRec, rid catalog.RID) error {
	enc := make([]byte, catalog.AttrCatRecSize(db.Config()))
	if err := rec.Encode(db.Config(), enc); err != nil {
		return err
	}
	return heap.WriteRec(db.Cache, cache.AttrCatSlot, rid, enc)
}

func fieldsEqual(a, b []byte, typ catalog.AttrType) bool {
	switch typ {
	case catalog.TypeInt:
		return catalog.DecodeInt(a) == catalog.DecodeInt(b)
	case catalog.TypeFloat:
		return catalog.CompareFloat(catalog.DecodeFloat(a), catalog.DecodeFloat(b), catalog.OpEQ)
	default:
		for i := range a {
			if a[i] != b[i] {
				return false
			}
		}
		return true
	}
}
