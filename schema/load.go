package schema

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"minirel/catalog"
	"minirel/dberr"
)

// Load implements §4.4's Load: bulk-append pages of an external file onto
// an empty relation, verifying each page's magic before it is accepted. On
// any failure the target is rolled back to empty.
func (db *DB) Load(relName, path string) error {
	rid, rec, err := db.findRelCatRID(relName)
	if err != nil {
		return err
	}
	if !rid.IsValid() {
		return errors.WithStack(dberr.New(dberr.RelNoExist).WithArg(relName))
	}
	if rec.NumPgs != 0 {
		return errors.WithStack(dberr.New(dberr.LoadNonEmpty).WithArg(relName))
	}

	src, err := os.Open(path)
	if err != nil {
		return errors.WithStack(dberr.Wrap(dberr.FileNoExist, err))
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return errors.WithStack(dberr.Wrap(dberr.FilesystemError, err))
	}
	if info.Size() <= 0 || info.Size()%int64(db.cfg.PageSize) != 0 {
		return errors.WithStack(dberr.New(dberr.InvalidFileSize).WithArg(path))
	}

	idx, err := db.Cache.OpenRel(relName)
	if err != nil {
		return err
	}
	slot, err := db.Cache.Slot(idx)
	if err != nil {
		return err
	}

	targetPath := filepath.Join(db.Dir, relName)
	numPages := int(info.Size() / int64(db.cfg.PageSize))
	var numPgs, numRecs int32

	rollback := func() {
		os.Truncate(targetPath, 0)
	}

	buf := make([]byte, db.cfg.PageSize)
	for i := 0; i < numPages; i++ {
		if _, err := src.ReadAt(buf, int64(i)*int64(db.cfg.PageSize)); err != nil {
			rollback()
			return errors.WithStack(dberr.Wrap(dberr.FilesystemError, err))
		}
		page := catalog.NewPage(db.cfg, buf)
		if err := page.Validate(); err != nil {
			rollback()
			return err
		}
		pid, err := slot.Pager.AppendPage()
		if err != nil {
			rollback()
			return err
		}
		dst, err := slot.Pager.ReadPage(pid)
		if err != nil {
			rollback()
			return err
		}
		copy(dst, buf)
		slot.Pager.MarkDirty()
		if err := slot.Pager.FlushPage(); err != nil {
			rollback()
			return err
		}
		numPgs++
		numRecs += int32(popcount(page.SlotMap(), int(slot.RelCatRec.RecsPerPg)))
	}

	slot.RelCatRec.NumPgs = numPgs
	slot.RelCatRec.NumRecs = numRecs
	if err := db.Cache.MarkDirty(idx); err != nil {
		return err
	}
	return db.Cache.Flush(idx)
}

func popcount(bits uint64, n int) int {
	mask := catalog.FullMask(n)
	bits &= mask
	count := 0
	for bits != 0 {
		bits &= bits - 1
		count++
	}
	return count
}
