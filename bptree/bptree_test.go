package bptree

import (
	"testing"

	"minirel/catalog"
	"minirel/config"
)

func key(n int32) []byte {
	buf := make([]byte, 4)
	catalog.EncodeInt(buf, n)
	return buf
}

func rid(n int32) catalog.RID {
	return catalog.RID{Pid: n, SlotNum: 0}
}

func TestCreateThenOpen(t *testing.T) {
	cfg := config.Default()
	dir := t.TempDir()
	tr, err := Create(cfg, dir, "students", "id", 4, catalog.TypeInt)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	tr2, err := Open(cfg, dir, "students", "id")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer tr2.Close()
	if tr2.rootPid != 1 {
		t.Fatalf("expected rootPid 1, got %d", tr2.rootPid)
	}
	if tr2.keyLength != 4 || tr2.keyType != catalog.TypeInt {
		t.Fatalf("meta mismatch: keyLength=%d keyType=%c", tr2.keyLength, tr2.keyType)
	}
}

func TestOpenMissingIndexFails(t *testing.T) {
	cfg := config.Default()
	dir := t.TempDir()
	if _, err := Open(cfg, dir, "nope", "id"); err == nil {
		t.Fatal("expected error opening missing index file")
	}
}

func TestInsertAndSearchNoSplit(t *testing.T) {
	cfg := config.Default()
	dir := t.TempDir()
	tr, err := Create(cfg, dir, "students", "id", 4, catalog.TypeInt)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer tr.Close()

	for _, n := range []int32{5, 2, 8, 1, 9, 3} {
		if err := tr.Insert(key(n), rid(n)); err != nil {
			t.Fatalf("Insert(%d): %v", n, err)
		}
	}

	got, err := tr.Search(key(8), catalog.OpEQ)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0] != rid(8) {
		t.Fatalf("expected [%v], got %v", rid(8), got)
	}

	all, err := tr.Search(key(0), catalog.OpGT)
	if err != nil {
		t.Fatalf("Search GT: %v", err)
	}
	if len(all) != 6 {
		t.Fatalf("expected 6 matches, got %d", len(all))
	}
}

func TestInsertTriggersLeafSplit(t *testing.T) {
	cfg := config.Default()
	dir := t.TempDir()
	tr, err := Create(cfg, dir, "students", "id", 4, catalog.TypeInt)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer tr.Close()

	maxKeys := leafMaxKeys(cfg, 4)
	total := maxKeys*2 + 5
	for i := int32(0); i < int32(total); i++ {
		if err := tr.Insert(key(i), rid(i)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	if tr.rootPid == 1 {
		t.Fatalf("expected root to have grown past the original leaf page")
	}

	for _, n := range []int32{0, int32(total) / 2, int32(total - 1)} {
		got, err := tr.Search(key(n), catalog.OpEQ)
		if err != nil {
			t.Fatalf("Search(%d): %v", n, err)
		}
		if len(got) != 1 || got[0] != rid(n) {
			t.Fatalf("Search(%d): expected [%v], got %v", n, rid(n), got)
		}
	}

	all, err := tr.Search(key(0), catalog.OpGTE)
	if err != nil {
		t.Fatalf("Search GTE: %v", err)
	}
	if len(all) != total {
		t.Fatalf("expected %d matches after split, got %d", total, len(all))
	}
}

func TestSearchOperators(t *testing.T) {
	cfg := config.Default()
	dir := t.TempDir()
	tr, err := Create(cfg, dir, "students", "id", 4, catalog.TypeInt)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer tr.Close()

	for _, n := range []int32{10, 20, 30, 40, 50} {
		if err := tr.Insert(key(n), rid(n)); err != nil {
			t.Fatalf("Insert(%d): %v", n, err)
		}
	}

	cases := []struct {
		op       catalog.Op
		value    int32
		expected int
	}{
		{catalog.OpEQ, 30, 1},
		{catalog.OpNE, 30, 4},
		{catalog.OpLT, 30, 2},
		{catalog.OpLTE, 30, 3},
		{catalog.OpGT, 30, 2},
		{catalog.OpGTE, 30, 3},
	}
	for _, c := range cases {
		got, err := tr.Search(key(c.value), c.op)
		if err != nil {
			t.Fatalf("Search op=%d: %v", c.op, err)
		}
		if len(got) != c.expected {
			t.Fatalf("op=%d: expected %d matches, got %d", c.op, c.expected, len(got))
		}
	}
}

func TestDeleteRemovesKey(t *testing.T) {
	cfg := config.Default()
	dir := t.TempDir()
	tr, err := Create(cfg, dir, "students", "id", 4, catalog.TypeInt)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer tr.Close()

	for _, n := range []int32{1, 2, 3, 4, 5} {
		if err := tr.Insert(key(n), rid(n)); err != nil {
			t.Fatalf("Insert(%d): %v", n, err)
		}
	}
	if err := tr.Delete(key(3), rid(3)); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	got, err := tr.Search(key(3), catalog.OpEQ)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected key 3 gone, found %v", got)
	}
	remaining, err := tr.Search(key(0), catalog.OpGT)
	if err != nil {
		t.Fatalf("Search GT: %v", err)
	}
	if len(remaining) != 4 {
		t.Fatalf("expected 4 remaining keys, got %d", len(remaining))
	}
}

func TestDeleteMissingKeyFails(t *testing.T) {
	cfg := config.Default()
	dir := t.TempDir()
	tr, err := Create(cfg, dir, "students", "id", 4, catalog.TypeInt)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer tr.Close()
	if err := tr.Insert(key(1), rid(1)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := tr.Delete(key(2), rid(2)); err == nil {
		t.Fatal("expected error deleting a key that was never inserted")
	}
}

func TestDeleteAcrossSplitLeavesTreeSearchable(t *testing.T) {
	cfg := config.Default()
	dir := t.TempDir()
	tr, err := Create(cfg, dir, "students", "id", 4, catalog.TypeInt)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer tr.Close()

	maxKeys := leafMaxKeys(cfg, 4)
	total := maxKeys*2 + 5
	for i := int32(0); i < int32(total); i++ {
		if err := tr.Insert(key(i), rid(i)); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	for i := int32(0); i < int32(total); i += 2 {
		if err := tr.Delete(key(i), rid(i)); err != nil {
			t.Fatalf("Delete(%d): %v", i, err)
		}
	}
	for i := int32(0); i < int32(total); i++ {
		got, err := tr.Search(key(i), catalog.OpEQ)
		if err != nil {
			t.Fatalf("Search(%d): %v", i, err)
		}
		wantFound := i%2 != 0
		if (len(got) == 1) != wantFound {
			t.Fatalf("key %d: expected present=%v, got %d matches", i, wantFound, len(got))
		}
	}
}

func TestDestroyRemovesFile(t *testing.T) {
	cfg := config.Default()
	dir := t.TempDir()
	tr, err := Create(cfg, dir, "students", "id", 4, catalog.TypeInt)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := Destroy(dir, "students", "id"); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if _, err := Open(cfg, dir, "students", "id"); err == nil {
		t.Fatal("expected Open to fail after Destroy")
	}
	// Destroying an already-missing index is tolerated, not an error.
	if err := Destroy(dir, "students", "id"); err != nil {
		t.Fatalf("Destroy of missing file should be a no-op: %v", err)
	}
}

func TestStringKeyIndex(t *testing.T) {
	cfg := config.Default()
	dir := t.TempDir()
	tr, err := Create(cfg, dir, "students", "name", 8, catalog.TypeString)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer tr.Close()

	names := []string{"alice", "bob", "carol", "dave"}
	strKey := func(s string) []byte {
		buf := make([]byte, 8)
		catalog.EncodeString(buf, s, 8)
		return buf
	}
	for i, n := range names {
		if err := tr.Insert(strKey(n), rid(int32(i))); err != nil {
			t.Fatalf("Insert(%s): %v", n, err)
		}
	}
	got, err := tr.Search(strKey("carol"), catalog.OpEQ)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(got) != 1 || got[0] != rid(2) {
		t.Fatalf("expected [%v], got %v", rid(2), got)
	}
}
