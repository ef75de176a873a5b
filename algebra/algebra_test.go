package algebra

import (
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"minirel/catalog"
	"minirel/config"
	"minirel/dberr"
	"minirel/schema"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)
	return log
}

func setupDB(t *testing.T) *schema.DB {
	t.Helper()
	cfg := config.Default()
	dir := filepath.Join(t.TempDir(), "mydb")
	if err := schema.CreateDB(cfg, dir); err != nil {
		t.Fatalf("CreateDB: %v", err)
	}
	db, err := schema.OpenDB(cfg, dir, testLogger())
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	return db
}

func mustCreateStudents(t *testing.T, db *schema.DB) {
	t.Helper()
	if err := db.Create("students", []schema.AttrSpec{
		{Name: "id", Type: catalog.TypeInt},
		{Name: "name", Type: catalog.TypeString, Size: 8},
	}); err != nil {
		t.Fatalf("Create students: %v", err)
	}
}

func TestInsertAndDuplicateRejected(t *testing.T) {
	db := setupDB(t)
	defer db.Close()
	mustCreateStudents(t, db)

	lits := []Literal{{Name: "id", Value: "1"}, {Name: "name", Value: "alice"}}
	if _, err := Insert(db, "students", lits); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := Insert(db, "students", lits); !dberr.Is(err, dberr.DupRows) {
		t.Fatalf("expected DupRows, got %v", err)
	}
}

func TestInsertDuplicateAttrInArgs(t *testing.T) {
	db := setupDB(t)
	defer db.Close()
	mustCreateStudents(t, db)

	_, err := Insert(db, "students", []Literal{
		{Name: "id", Value: "1"},
		{Name: "id", Value: "2"},
	})
	if !dberr.Is(err, dberr.DupAttrInsert) {
		t.Fatalf("expected DupAttrInsert, got %v", err)
	}
}

func TestInsertForbiddenOnCatalog(t *testing.T) {
	db := setupDB(t)
	defer db.Close()
	_, err := Insert(db, "relcat", []Literal{{Name: "relName", Value: "x"}})
	if !dberr.Is(err, dberr.MetadataSecurity) {
		t.Fatalf("expected MetadataSecurity, got %v", err)
	}
}

func TestDeleteMatchingRows(t *testing.T) {
	db := setupDB(t)
	defer db.Close()
	mustCreateStudents(t, db)
	for _, row := range [][2]string{{"1", "alice"}, {"2", "bob"}, {"3", "carol"}} {
		if _, err := Insert(db, "students", []Literal{{Name: "id", Value: row[0]}, {Name: "name", Value: row[1]}}); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}
	n, err := Delete(db, "students", "id", catalog.OpLT, "3")
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 deletions, got %d", n)
	}
}

func TestProjectCopiesSelectedAttrs(t *testing.T) {
	db := setupDB(t)
	defer db.Close()
	mustCreateStudents(t, db)
	if _, err := Insert(db, "students", []Literal{{Name: "id", Value: "1"}, {Name: "name", Value: "alice"}}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := Project(db, "names", "students", []string{"name"}); err != nil {
		t.Fatalf("Project: %v", err)
	}
	idx, err := db.Cache.OpenRel("names")
	if err != nil {
		t.Fatalf("OpenRel names: %v", err)
	}
	slot, err := db.Cache.Slot(idx)
	if err != nil {
		t.Fatalf("Slot: %v", err)
	}
	if slot.RelCatRec.NumAttrs != 1 {
		t.Fatalf("expected 1 attr, got %d", slot.RelCatRec.NumAttrs)
	}
}

func TestSelectCopiesMatchingTuples(t *testing.T) {
	db := setupDB(t)
	defer db.Close()
	mustCreateStudents(t, db)
	if _, err := Insert(db, "students", []Literal{{Name: "id", Value: "1"}, {Name: "name", Value: "alice"}}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := Insert(db, "students", []Literal{{Name: "id", Value: "2"}, {Name: "name", Value: "bob"}}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := Select(db, "adults", "students", "id", catalog.OpEQ, "2"); err != nil {
		t.Fatalf("Select: %v", err)
	}
	idx, err := db.Cache.OpenRel("adults")
	if err != nil {
		t.Fatalf("OpenRel adults: %v", err)
	}
	slot, err := db.Cache.Slot(idx)
	if err != nil {
		t.Fatalf("Slot: %v", err)
	}
	if slot.RelCatRec.NumRecs != 1 {
		t.Fatalf("expected 1 row, got %d", slot.RelCatRec.NumRecs)
	}
}

func TestSelectReportsDestExistBeforeSrcNoExist(t *testing.T) {
	db := setupDB(t)
	defer db.Close()
	mustCreateStudents(t, db)

	err := Select(db, "students", "nosuchrel", "id", catalog.OpEQ, "1")
	if !dberr.Is(err, dberr.RelExist) {
		t.Fatalf("expected RelExist (destination checked first), got %v", err)
	}
}

func TestJoinProducesMatchingPairs(t *testing.T) {
	db := setupDB(t)
	defer db.Close()
	if err := db.Create("students", []schema.AttrSpec{
		{Name: "id", Type: catalog.TypeInt},
		{Name: "name", Type: catalog.TypeString, Size: 8},
	}); err != nil {
		t.Fatalf("Create students: %v", err)
	}
	if err := db.Create("grades", []schema.AttrSpec{
		{Name: "id", Type: catalog.TypeInt},
		{Name: "grade", Type: catalog.TypeInt},
	}); err != nil {
		t.Fatalf("Create grades: %v", err)
	}
	if _, err := Insert(db, "students", []Literal{{Name: "id", Value: "1"}, {Name: "name", Value: "alice"}}); err != nil {
		t.Fatalf("Insert student: %v", err)
	}
	if _, err := Insert(db, "grades", []Literal{{Name: "id", Value: "1"}, {Name: "grade", Value: "90"}}); err != nil {
		t.Fatalf("Insert grade: %v", err)
	}
	if err := Join(db, "report", "students", "id", "grades", "id"); err != nil {
		t.Fatalf("Join: %v", err)
	}
	idx, err := db.Cache.OpenRel("report")
	if err != nil {
		t.Fatalf("OpenRel report: %v", err)
	}
	slot, err := db.Cache.Slot(idx)
	if err != nil {
		t.Fatalf("Slot: %v", err)
	}
	if slot.RelCatRec.NumAttrs != 3 {
		t.Fatalf("expected 3 attrs (id, name, grade), got %d", slot.RelCatRec.NumAttrs)
	}
	if slot.RelCatRec.NumRecs != 1 {
		t.Fatalf("expected 1 joined row, got %d", slot.RelCatRec.NumRecs)
	}
}

func TestBuildIndexAndDropIndex(t *testing.T) {
	db := setupDB(t)
	defer db.Close()
	mustCreateStudents(t, db)
	if err := BuildIndex(db, "students", "id"); err != nil {
		t.Fatalf("BuildIndex: %v", err)
	}
	if err := BuildIndex(db, "students", "id"); !dberr.Is(err, dberr.IdxExist) {
		t.Fatalf("expected IdxExist, got %v", err)
	}
	if err := DropIndex(db, "students", "id"); err != nil {
		t.Fatalf("DropIndex: %v", err)
	}
	if err := DropIndex(db, "students", "id"); !dberr.Is(err, dberr.IdxNoExist) {
		t.Fatalf("expected IdxNoExist, got %v", err)
	}
}

func TestBuildIndexRejectsNonEmptyRelation(t *testing.T) {
	db := setupDB(t)
	defer db.Close()
	mustCreateStudents(t, db)
	if _, err := Insert(db, "students", []Literal{{Name: "id", Value: "1"}, {Name: "name", Value: "alice"}}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := BuildIndex(db, "students", "id"); !dberr.Is(err, dberr.IndexNonEmpty) {
		t.Fatalf("expected IndexNonEmpty, got %v", err)
	}
}

func TestBuildIndexForbiddenOnCatalog(t *testing.T) {
	db := setupDB(t)
	defer db.Close()
	if err := BuildIndex(db, "attrcat", "attrName"); !dberr.Is(err, dberr.MetadataSecurity) {
		t.Fatalf("expected MetadataSecurity, got %v", err)
	}
}
