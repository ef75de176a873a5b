package freemap

import "testing"

func TestExistsFalseThenCreate(t *testing.T) {
	dir := t.TempDir()
	ok, err := Exists(dir, "students")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if ok {
		t.Fatalf("Exists should be false before Create")
	}
	if _, err := Create(dir, "students"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	ok, err = Exists(dir, "students")
	if err != nil {
		t.Fatalf("Exists after create: %v", err)
	}
	if !ok {
		t.Fatalf("Exists should be true after Create")
	}
}

func TestAddFindRemoveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m, err := Create(dir, "students")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got := m.FindFree(); got != -1 {
		t.Fatalf("FindFree on empty map = %d, want -1", got)
	}
	if err := m.Add(7); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := m.Add(3); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if got := m.FindFree(); got != 3 {
		t.Fatalf("FindFree = %d, want 3 (lowest)", got)
	}
	if err := m.RemoveBit(3); err != nil {
		t.Fatalf("RemoveBit: %v", err)
	}
	if got := m.FindFree(); got != 7 {
		t.Fatalf("FindFree after removing 3 = %d, want 7", got)
	}
}

func TestPersistsAcrossOpen(t *testing.T) {
	dir := t.TempDir()
	m, err := Create(dir, "students")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := m.Add(42); err != nil {
		t.Fatalf("Add: %v", err)
	}
	m2, err := Open(dir, "students")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if m2 == nil {
		t.Fatalf("Open returned nil for an existing freemap")
	}
	if got := m2.FindFree(); got != 42 {
		t.Fatalf("FindFree after reopen = %d, want 42", got)
	}
}

func TestOpenMissingReturnsNilNil(t *testing.T) {
	dir := t.TempDir()
	m, err := Open(dir, "ghost")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if m != nil {
		t.Fatalf("expected nil Map for a relation with no freemap file")
	}
}

func TestRemoveFile(t *testing.T) {
	dir := t.TempDir()
	if _, err := Create(dir, "students"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := Remove(dir, "students"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	ok, err := Exists(dir, "students")
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}
	if ok {
		t.Fatalf("freemap file should be gone after Remove")
	}
}
