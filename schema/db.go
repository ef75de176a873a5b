// Package schema implements §4.4's database and relation lifecycle:
// CreateDB/OpenDB/Close/DestroyDB plus Create/Destroy/Load/
// CreateFromAttrList, and the catalog bootstrap that wires relcat/attrcat
// into the open-relation cache. Grounded on the teacher's db/manager.go
// (relation bookkeeping shape) and original_source/schema/*.c (exact
// lifecycle semantics).
package schema

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"minirel/cache"
	"minirel/catalog"
	"minirel/config"
	"minirel/dberr"
	"minirel/disk"
)

// DB is an open minirel database: its directory plus the open-relation
// cache backing every operation above it.
type DB struct {
	Dir   string
	Cache *cache.Catalog
	cfg   *config.Config
	log   *logrus.Logger
}

// relcatAttrs and attrcatAttrs are the fixed attribute lists relcat and
// attrcat describe themselves with; order is the canonical schema order (§3's self-
// description invariant).
var relcatAttrs = []catalog.AttrCatRec{
	{AttrName: "relName"},
	{AttrName: "recLength"},
	{AttrName: "recsPerPg"},
	{AttrName: "numAttrs"},
	{AttrName: "numRecs"},
	{AttrName: "numPgs"},
}

var attrcatAttrs = []catalog.AttrCatRec{
	{AttrName: "offset"},
	{AttrName: "length"},
	{AttrName: "type"},
	{AttrName: "attrName"},
	{AttrName: "relName"},
	{AttrName: "hasIndex"},
	{AttrName: "nPages"},
	{AttrName: "nKeys"},
}

// CreateDB creates a fresh database directory and bootstraps relcat/attrcat
// inside it, bit-exact per §3's self-description invariant.
func CreateDB(cfg *config.Config, dir string) error {
	if _, err := os.Stat(dir); err == nil {
		return errors.WithStack(dberr.New(dberr.DBExists).WithArg(dir))
	}
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return errors.WithStack(dberr.Wrap(dberr.FilesystemError, err))
	}
	if err := createCats(cfg, dir); err != nil {
		return errors.WithStack(dberr.Wrap(dberr.CatCreateError, err))
	}
	return nil
}

// layoutFixed fills in Offset/Length/Type for a fixed schema given each
// field's byte width, used by both catalogs' bootstrap rows.
func layoutFixed(attrs []catalog.AttrCatRec, widths []int, types []catalog.AttrType, relName string) ([]catalog.AttrCatRec, int32) {
	out := make([]catalog.AttrCatRec, len(attrs))
	off := int32(0)
	for i, a := range attrs {
		a.Offset = off
		a.Length = int32(widths[i])
		a.Type = types[i]
		a.RelName = relName
		out[i] = a
		off += int32(widths[i])
	}
	return out, off
}

func createCats(cfg *config.Config, dir string) error {
	relcatRecLen := catalog.RelCatRecSize(cfg)
	attrcatRecLen := catalog.AttrCatRecSize(cfg)

	relcatPath := filepath.Join(dir, "relcat")
	attrcatPath := filepath.Join(dir, "attrcat")

	relcatPager, err := disk.Create(cfg, relcatPath)
	if err != nil {
		return err
	}
	defer relcatPager.Close()
	attrcatPager, err := disk.Create(cfg, attrcatPath)
	if err != nil {
		return err
	}
	defer attrcatPager.Close()

	relcatRec := catalog.RelCatRec{
		RelName:   "relcat",
		RecLength: int32(relcatRecLen),
		RecsPerPg: int32(cfg.RecsPerPage(relcatRecLen)),
		NumAttrs:  int32(len(relcatAttrs)),
		NumRecs:   2,
		NumPgs:    1,
	}
	attrcatRec := catalog.RelCatRec{
		RelName:   "attrcat",
		RecLength: int32(attrcatRecLen),
		RecsPerPg: int32(cfg.RecsPerPage(attrcatRecLen)),
		NumAttrs:  int32(len(attrcatAttrs)),
		NumRecs:   int32(len(relcatAttrs) + len(attrcatAttrs)),
		NumPgs:    int32((len(relcatAttrs) + len(attrcatAttrs) + cfg.RecsPerPage(attrcatRecLen) - 1) / cfg.RecsPerPage(attrcatRecLen)),
	}

	relcatPid, err := relcatPager.AppendPage()
	if err != nil {
		return err
	}
	relcatBuf, err := relcatPager.ReadPage(relcatPid)
	if err != nil {
		return err
	}
	relcatPage := catalog.NewPage(cfg, relcatBuf)
	relcatPage.InitEmpty(catalog.OwnerRelCat)
	enc := make([]byte, relcatRecLen)
	if err := relcatRec.Encode(cfg, enc); err != nil {
		return err
	}
	relcatPage.WriteSlot(0, enc, relcatRecLen)
	relcatPage.SetSlotBit(0, true)
	if err := attrcatRec.Encode(cfg, enc); err != nil {
		return err
	}
	relcatPage.WriteSlot(1, enc, relcatRecLen)
	relcatPage.SetSlotBit(1, true)
	relcatPager.MarkDirty()
	if err := relcatPager.FlushPage(); err != nil {
		return err
	}

	relcatWidths := []int{cfg.RelNameLen, 4, 4, 4, 4, 4}
	relcatTypes := []catalog.AttrType{catalog.TypeString, catalog.TypeInt, catalog.TypeInt, catalog.TypeInt, catalog.TypeInt, catalog.TypeInt}
	relcatSchema, _ := layoutFixed(relcatAttrs, relcatWidths, relcatTypes, "relcat")

	attrcatWidths := []int{4, 4, 1, cfg.AttrNameLen, cfg.RelNameLen, 1, 4, 4}
	attrcatTypes := []catalog.AttrType{catalog.TypeInt, catalog.TypeInt, catalog.TypeString, catalog.TypeString, catalog.TypeString, catalog.TypeString, catalog.TypeInt, catalog.TypeInt}
	attrcatSchema, _ := layoutFixed(attrcatAttrs, attrcatWidths, attrcatTypes, "attrcat")

	attrcatPid, err := attrcatPager.AppendPage()
	if err != nil {
		return err
	}
	attrcatBuf, err := attrcatPager.ReadPage(attrcatPid)
	if err != nil {
		return err
	}
	attrcatPage := catalog.NewPage(cfg, attrcatBuf)
	attrcatPage.InitEmpty(catalog.OwnerAttrCat)
	allAttrs := append(append([]catalog.AttrCatRec{}, relcatSchema...), attrcatSchema...)
	attrEnc := make([]byte, attrcatRecLen)
	for i, a := range allAttrs {
		slot := i % int(attrcatRec.RecsPerPg)
		if i > 0 && slot == 0 {
			attrcatPager.MarkDirty()
			if attrcatPid, err = attrcatPager.AppendPage(); err != nil {
				return err
			}
			if attrcatBuf, err = attrcatPager.ReadPage(attrcatPid); err != nil {
				return err
			}
			attrcatPage = catalog.NewPage(cfg, attrcatBuf)
			attrcatPage.InitEmpty(catalog.OwnerAttrCat)
		}
		if err := a.Encode(cfg, attrEnc); err != nil {
			return err
		}
		attrcatPage.WriteSlot(slot, attrEnc, attrcatRecLen)
		attrcatPage.SetSlotBit(slot, true)
	}
	attrcatPager.MarkDirty()
	return attrcatPager.FlushPage()
}

// OpenDB opens an existing database directory and loads relcat/attrcat into
// the open-relation cache's pinned slots 0 and 1.
func OpenDB(cfg *config.Config, dir string, log *logrus.Logger) (*DB, error) {
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WithStack(dberr.New(dberr.DBNotExist).WithArg(dir))
		}
		return nil, errors.WithStack(dberr.Wrap(dberr.FilesystemError, err))
	}

	relcatPath := filepath.Join(dir, "relcat")
	attrcatPath := filepath.Join(dir, "attrcat")
	relcatPager, err := disk.Open(cfg, relcatPath)
	if err != nil {
		return nil, errors.WithStack(dberr.Wrap(dberr.CatOpenError, err))
	}
	attrcatPager, err := disk.Open(cfg, attrcatPath)
	if err != nil {
		relcatPager.Close()
		return nil, errors.WithStack(dberr.Wrap(dberr.CatOpenError, err))
	}

	relcatBuf, err := relcatPager.ReadPage(0)
	if err != nil {
		return nil, err
	}
	relcatPage := catalog.NewPage(cfg, relcatBuf)
	if err := relcatPage.Validate(); err != nil {
		return nil, err
	}
	relcatRec, err := catalog.DecodeRelCatRec(cfg, relcatPage.ReadSlot(0, catalog.RelCatRecSize(cfg)))
	if err != nil {
		return nil, err
	}
	attrcatRec, err := catalog.DecodeRelCatRec(cfg, relcatPage.ReadSlot(1, catalog.RelCatRecSize(cfg)))
	if err != nil {
		return nil, err
	}

	c := cache.New(cfg, dir, log)
	c.BootstrapCats(*relcatRec, *attrcatRec, catalog.RID{Pid: 0, SlotNum: 0}, catalog.RID{Pid: 0, SlotNum: 1}, relcatPager, attrcatPager)

	if log != nil {
		log.WithField("dir", dir).Info("database opened")
	}
	return &DB{Dir: dir, Cache: c, cfg: cfg, log: log}, nil
}

// Close implements §4.2's CloseCats ordering via cache.Catalog.CloseCats.
func (db *DB) Close() error {
	if err := db.Cache.CloseCats(); err != nil {
		return err
	}
	if db.log != nil {
		db.log.WithField("dir", db.Dir).Info("database closed")
	}
	return nil
}

// Config exposes the database's fixed-geometry configuration to callers
// outside the package (the algebra operators need it for name-length limits).
func (db *DB) Config() *config.Config {
	return db.cfg
}

// DestroyDB closes db if open, then removes its entire directory tree.
func DestroyDB(cfg *config.Config, dir string, open *DB) error {
	var log *logrus.Logger
	if open != nil {
		log = open.log
		if err := open.Close(); err != nil {
			return err
		}
	}
	if _, err := os.Stat(dir); err != nil {
		return errors.WithStack(dberr.New(dberr.DBNotExist).WithArg(dir))
	}
	if err := os.RemoveAll(dir); err != nil {
		return errors.WithStack(dberr.Wrap(dberr.DBDestroyError, err))
	}
	if log != nil {
		log.WithField("dir", dir).Info("database destroyed")
	}
	return nil
}
