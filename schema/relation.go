package schema

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"minirel/cache"
	"minirel/catalog"
	"minirel/dberr"
	"minirel/disk"
	"minirel/freemap"
	"minirel/heap"
)

// AttrSpec describes one attribute of a relation being created: its name,
// type, and (for strings) fixed size.
type AttrSpec struct {
	Name string
	Type catalog.AttrType
	Size int // ignored for int/float, required for string
}

func attrWidth(a AttrSpec, maxN int) (int, error) {
	switch a.Type {
	case catalog.TypeInt, catalog.TypeFloat:
		return 4, nil
	case catalog.TypeString:
		if a.Size < 1 || a.Size > maxN {
			return 0, errors.WithStack(dberr.New(dberr.StrLenInvalid).WithArg(a.Name))
		}
		return a.Size, nil
	default:
		return 0, errors.WithStack(dberr.New(dberr.InvalidFormat).WithArg(a.Name))
	}
}

// Create implements §4.4's Create: validate the schema, compute record
// geometry, create the empty relation file and its freemap, then insert the
// RelCatRec and one AttrCatRec per attribute.
func (db *DB) Create(relName string, attrs []AttrSpec) error {
	if len(relName) >= db.cfg.RelNameLen {
		return errors.WithStack(dberr.New(dberr.RelLengthExceeded).WithArg(relName))
	}
	if len(attrs) == 0 {
		return errors.WithStack(dberr.New(dberr.ArgcInsufficient))
	}
	seen := make(map[string]bool, len(attrs))
	for _, a := range attrs {
		if len(a.Name) >= db.cfg.AttrNameLen {
			return errors.WithStack(dberr.New(dberr.AttrNameExceeded).WithArg(a.Name))
		}
		if seen[a.Name] {
			return errors.WithStack(dberr.New(dberr.DupAttr).WithArg(a.Name))
		}
		seen[a.Name] = true
	}
	if idx := db.Cache.Lookup(relName); idx >= 0 {
		return errors.WithStack(dberr.New(dberr.RelExist).WithArg(relName))
	}
	if exists, err := db.relationExists(relName); err != nil {
		return err
	} else if exists {
		return errors.WithStack(dberr.New(dberr.RelExist).WithArg(relName))
	}

	recLength := 0
	widths := make([]int, len(attrs))
	for i, a := range attrs {
		w, err := attrWidth(a, db.cfg.MaxN)
		if err != nil {
			return err
		}
		widths[i] = w
		recLength += w
	}
	if recLength > db.cfg.MaxRecordLen() {
		return errors.WithStack(dberr.New(dberr.RecTooLong).WithArg(relName))
	}

	relPath := filepath.Join(db.Dir, relName)
	relPager, err := disk.Create(db.cfg, relPath)
	if err != nil {
		return err
	}
	relPager.Close()
	if _, err := freemap.Create(db.Dir, relName); err != nil {
		return err
	}

	recsPerPg := db.cfg.RecsPerPage(recLength)
	relCatRec := catalog.RelCatRec{
		RelName:   relName,
		RecLength: int32(recLength),
		RecsPerPg: int32(recsPerPg),
		NumAttrs:  int32(len(attrs)),
		NumRecs:   0,
		NumPgs:    0,
	}
	relcatEnc := make([]byte, catalog.RelCatRecSize(db.cfg))
	if err := relCatRec.Encode(db.cfg, relcatEnc); err != nil {
		return err
	}
	if _, err := heap.InsertRec(db.Cache, cache.RelCatSlot, relcatEnc); err != nil {
		return err
	}

	off := int32(0)
	attrEnc := make([]byte, catalog.AttrCatRecSize(db.cfg))
	for i, a := range attrs {
		row := catalog.AttrCatRec{
			Offset:   off,
			Length:   int32(widths[i]),
			Type:     a.Type,
			AttrName: a.Name,
			RelName:  relName,
			HasIndex: false,
		}
		off += int32(widths[i])
		if err := row.Encode(db.cfg, attrEnc); err != nil {
			return err
		}
		if _, err := heap.InsertRec(db.Cache, cache.AttrCatSlot, attrEnc); err != nil {
			return err
		}
	}
	return nil
}

// RelationExists reports whether relName has a row in relcat, independent
// of whether it currently holds an open-relation cache slot. Cache.Lookup
// only sees what is presently cached; callers that need the ground truth
// (e.g. algebra.Select's destination-exists check) use this instead.
func (db *DB) RelationExists(relName string) (bool, error) {
	return db.relationExists(relName)
}

func (db *DB) relationExists(relName string) (bool, error) {
	found := false
	rid := catalog.InvalidRID
	for {
		next, buf, err := heap.GetNextRec(db.Cache, cache.RelCatSlot, rid)
		if err != nil {
			return false, err
		}
		if !next.IsValid() {
			break
		}
		rid = next
		rec, err := catalog.DecodeRelCatRec(db.cfg, buf)
		if err != nil {
			return false, err
		}
		if rec.RelName == relName {
			found = true
			break
		}
	}
	return found, nil
}

// findRelCatRID returns the RID of relName's row in relcat, or the invalid
// sentinel if not found.
func (db *DB) findRelCatRID(relName string) (catalog.RID, catalog.RelCatRec, error) {
	rid := catalog.InvalidRID
	for {
		next, buf, err := heap.GetNextRec(db.Cache, cache.RelCatSlot, rid)
		if err != nil {
			return catalog.RID{}, catalog.RelCatRec{}, err
		}
		if !next.IsValid() {
			return catalog.InvalidRID, catalog.RelCatRec{}, nil
		}
		rid = next
		rec, err := catalog.DecodeRelCatRec(db.cfg, buf)
		if err != nil {
			return catalog.RID{}, catalog.RelCatRec{}, err
		}
		if rec.RelName == relName {
			return rid, *rec, nil
		}
	}
}

// Destroy implements schema destruction: close the relation if open, remove
// every attrcat row describing it, remove its own relcat row, delete its
// heap file, freemap, and any B+ tree index side-files.
func (db *DB) Destroy(relName string) error {
	if relName == "relcat" || relName == "attrcat" {
		return errors.WithStack(dberr.New(dberr.MetadataSecurity).WithArg(relName))
	}
	if idx := db.Cache.Lookup(relName); idx >= 0 {
		if err := db.Cache.CloseRel(idx); err != nil {
			return err
		}
	}

	rid, _, err := db.findRelCatRID(relName)
	if err != nil {
		return err
	}
	if !rid.IsValid() {
		return errors.WithStack(dberr.New(dberr.RelNoExist).WithArg(relName))
	}

	var attrRids []catalog.RID
	var attrNames []string
	scanRid := catalog.InvalidRID
	for {
		next, buf, err := heap.GetNextRec(db.Cache, cache.AttrCatSlot, scanRid)
		if err != nil {
			return err
		}
		if !next.IsValid() {
			break
		}
		scanRid = next
		rec, err := catalog.DecodeAttrCatRec(db.cfg, buf)
		if err != nil {
			return err
		}
		if rec.RelName == relName {
			attrRids = append(attrRids, scanRid)
			attrNames = append(attrNames, rec.AttrName)
		}
	}
	for _, arid := range attrRids {
		if err := heap.DeleteRec(db.Cache, cache.AttrCatSlot, arid); err != nil {
			return err
		}
	}
	if err := heap.DeleteRec(db.Cache, cache.RelCatSlot, rid); err != nil {
		return err
	}

	if err := os.Remove(filepath.Join(db.Dir, relName)); err != nil && !os.IsNotExist(err) {
		return errors.WithStack(dberr.Wrap(dberr.FilesystemError, err))
	}
	if err := freemap.Remove(db.Dir, relName); err != nil {
		return err
	}
	for _, attrName := range attrNames {
		idxPath := filepath.Join(db.Dir, relName+"."+attrName+".bpidx")
		if err := os.Remove(idxPath); err != nil && !os.IsNotExist(err) {
			return errors.WithStack(dberr.Wrap(dberr.FilesystemError, err))
		}
	}
	return nil
}

// CreateFromAttrList creates a new, empty relation from the given attributes'
// names, types and lengths (offsets are reassigned in list order), the way the original engine's
// createfromattrlist.c builds Project's and Join's result schemas.
func (db *DB) CreateFromAttrList(relName string, attrs []catalog.AttrCatRec) error {
	specs := make([]AttrSpec, len(attrs))
	for i, a := range attrs {
		specs[i] = AttrSpec{Name: a.AttrName, Type: a.Type, Size: int(a.Length)}
	}
	return db.Create(relName, specs)
}

// RelSpec is one extra relation for Bootstrap to seed (students/professors
// demo data, per §4.7) into a freshly created database. The caller supplies both schema and
// rows; the core only guarantees relcat/attrcat bootstrap itself.
type RelSpec struct {
	Name  string
	Attrs []AttrSpec
	Rows  [][]byte
}

// Bootstrap creates each extra relation and inserts its rows, returning on
// the first failure.
func (db *DB) Bootstrap(extraRelations ...RelSpec) error {
	for _, r := range extraRelations {
		if err := db.Create(r.Name, r.Attrs); err != nil {
			return err
		}
		idx, err := db.Cache.OpenRel(r.Name)
		if err != nil {
			return err
		}
		for _, row := range r.Rows {
			if _, err := heap.InsertRec(db.Cache, idx, row); err != nil {
				return err
			}
		}
	}
	return nil
}
