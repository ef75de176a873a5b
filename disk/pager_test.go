package disk

import (
	"path/filepath"
	"testing"

	"minirel/config"
	"minirel/dberr"
)

func TestCreateAppendReadPage(t *testing.T) {
	cfg := config.Default()
	dir := t.TempDir()
	path := filepath.Join(dir, "students.rel")

	p, err := Create(cfg, path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer p.Close()

	pid, err := p.AppendPage()
	if err != nil {
		t.Fatalf("AppendPage: %v", err)
	}
	if pid != 0 {
		t.Fatalf("first AppendPage pid = %d, want 0", pid)
	}
	buf, err := p.ReadPage(0)
	if err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	buf[10] = 0xAB
	p.MarkDirty()
	if err := p.FlushPage(); err != nil {
		t.Fatalf("FlushPage: %v", err)
	}

	p2, err := Open(cfg, path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer p2.Close()
	buf2, err := p2.ReadPage(0)
	if err != nil {
		t.Fatalf("ReadPage after reopen: %v", err)
	}
	if buf2[10] != 0xAB {
		t.Fatalf("byte not persisted: got %x", buf2[10])
	}
}

func TestReadPageOutOfBounds(t *testing.T) {
	cfg := config.Default()
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.rel")
	p, err := Create(cfg, path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer p.Close()
	if _, err := p.ReadPage(0); !dberr.Is(err, dberr.PageOutOfBounds) {
		t.Fatalf("expected PageOutOfBounds, got %v", err)
	}
}

func TestOpenMissingFileFails(t *testing.T) {
	cfg := config.Default()
	dir := t.TempDir()
	if _, err := Open(cfg, filepath.Join(dir, "nope.rel")); !dberr.Is(err, dberr.FileNoExist) {
		t.Fatalf("expected FileNoExist, got %v", err)
	}
}

func TestCreateExistingFails(t *testing.T) {
	cfg := config.Default()
	dir := t.TempDir()
	path := filepath.Join(dir, "dup.rel")
	p, err := Create(cfg, path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	p.Close()
	if _, err := Create(cfg, path); !dberr.Is(err, dberr.RelExist) {
		t.Fatalf("expected RelExist, got %v", err)
	}
}
