package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	c := Default()
	if c.MaxRecordLen() != DefaultPageSize-DefaultHeaderSize {
		t.Fatalf("MaxRecordLen = %d, want %d", c.MaxRecordLen(), DefaultPageSize-DefaultHeaderSize)
	}
	if got := c.RecsPerPage(24); got != 20 {
		t.Fatalf("RecsPerPage(24) = %d, want 20", got)
	}
}

func TestRecsPerPageCappedBySlotMap(t *testing.T) {
	c := Default()
	c.SlotMapSize = 1 // only 8 bits of addressable slots
	if got := c.RecsPerPage(1); got != 8 {
		t.Fatalf("RecsPerPage(1) = %d, want 8 (slot-map bound)", got)
	}
}

func TestLoadKeyValue(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "minirel.conf")
	body := "pagesize = 1024\nmaxopen=32\n# comment\n"
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.PageSize != 1024 || c.MaxOpen != 32 {
		t.Fatalf("unexpected config: %+v", c)
	}
	if c.RelNameLen != DefaultRelNameLen {
		t.Fatalf("unset field should keep default, got %d", c.RelNameLen)
	}
}
