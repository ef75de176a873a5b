package schema

import (
	"os"
	"path/filepath"
	"testing"

	"minirel/catalog"
	"minirel/dberr"
)

func TestLoadRejectsNonEmptyTarget(t *testing.T) {
	db := setupDB(t)
	defer db.Close()
	if err := db.Create("students", []AttrSpec{{Name: "id", Type: catalog.TypeInt}}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	idx, err := db.Cache.OpenRel("students")
	if err != nil {
		t.Fatalf("OpenRel: %v", err)
	}
	slot, err := db.Cache.Slot(idx)
	if err != nil {
		t.Fatalf("Slot: %v", err)
	}
	if _, err := slot.Pager.AppendPage(); err != nil {
		t.Fatalf("AppendPage: %v", err)
	}
	slot.RelCatRec.NumPgs = 1
	db.Cache.MarkDirty(idx)
	db.Cache.Flush(idx)

	src := filepath.Join(t.TempDir(), "data.bin")
	if err := os.WriteFile(src, make([]byte, db.cfg.PageSize), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := db.Load("students", src); !dberr.Is(err, dberr.LoadNonEmpty) {
		t.Fatalf("expected LoadNonEmpty, got %v", err)
	}
}

func TestLoadRejectsBadFileSize(t *testing.T) {
	db := setupDB(t)
	defer db.Close()
	if err := db.Create("students", []AttrSpec{{Name: "id", Type: catalog.TypeInt}}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	src := filepath.Join(t.TempDir(), "data.bin")
	if err := os.WriteFile(src, make([]byte, 17), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := db.Load("students", src); !dberr.Is(err, dberr.InvalidFileSize) {
		t.Fatalf("expected InvalidFileSize, got %v", err)
	}
}
