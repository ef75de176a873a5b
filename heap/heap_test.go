package heap

import (
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"minirel/cache"
	"minirel/catalog"
	"minirel/config"
	"minirel/dberr"
	"minirel/disk"
)

// studentRecLen is (id int32, name char[8]) = 4 + 8 = 12 bytes.
const studentRecLen = 12

func encodeStudent(t *testing.T, cfg *config.Config, id int32, name string) []byte {
	t.Helper()
	buf := make([]byte, studentRecLen)
	catalog.EncodeInt(buf[0:4], id)
	catalog.EncodeString(buf[4:12], name, 8)
	return buf
}

func setup(t *testing.T) (*cache.Catalog, int) {
	t.Helper()
	cfg := config.Default()
	dir := t.TempDir()

	relcatPager, err := disk.Create(cfg, filepath.Join(dir, "relcat"))
	if err != nil {
		t.Fatalf("create relcat: %v", err)
	}
	attrcatPager, err := disk.Create(cfg, filepath.Join(dir, "attrcat"))
	if err != nil {
		t.Fatalf("create attrcat: %v", err)
	}
	if _, err := attrcatPager.AppendPage(); err != nil {
		t.Fatalf("append attrcat page: %v", err)
	}
	buf, _ := attrcatPager.ReadPage(0)
	catalog.NewPage(cfg, buf).InitEmpty(catalog.OwnerAttrCat)
	attrcatPager.MarkDirty()
	if err := attrcatPager.FlushPage(); err != nil {
		t.Fatalf("flush attrcat: %v", err)
	}

	studentsRec := catalog.RelCatRec{
		RelName:   "students",
		RecLength: studentRecLen,
		RecsPerPg: int32(cfg.RecsPerPage(studentRecLen)),
		NumAttrs:  2,
		NumRecs:   0,
		NumPgs:    0,
	}
	relcatRec := catalog.RelCatRec{RelName: "relcat", RecLength: int32(catalog.RelCatRecSize(cfg)), RecsPerPg: int32(cfg.RecsPerPage(catalog.RelCatRecSize(cfg))), NumRecs: 1, NumPgs: 1}
	attrcatRec := catalog.RelCatRec{RelName: "attrcat", RecLength: int32(catalog.AttrCatRecSize(cfg)), RecsPerPg: int32(cfg.RecsPerPage(catalog.AttrCatRecSize(cfg))), NumPgs: 1}

	if _, err := relcatPager.AppendPage(); err != nil {
		t.Fatalf("append relcat page: %v", err)
	}
	rbuf, _ := relcatPager.ReadPage(0)
	rpage := catalog.NewPage(cfg, rbuf)
	rpage.InitEmpty(catalog.OwnerRelCat)
	recLen := catalog.RelCatRecSize(cfg)
	for i, row := range []catalog.RelCatRec{relcatRec, attrcatRec, studentsRec} {
		enc := make([]byte, recLen)
		if err := row.Encode(cfg, enc); err != nil {
			t.Fatalf("encode: %v", err)
		}
		rpage.WriteSlot(i, enc, recLen)
		rpage.SetSlotBit(i, true)
	}
	relcatPager.MarkDirty()
	if err := relcatPager.FlushPage(); err != nil {
		t.Fatalf("flush relcat: %v", err)
	}

	studentsPager, err := disk.Create(cfg, filepath.Join(dir, "students"))
	if err != nil {
		t.Fatalf("create students: %v", err)
	}
	studentsPager.Close()

	c := cache.New(cfg, dir, logrus.New())
	c.BootstrapCats(relcatRec, attrcatRec, catalog.RID{Pid: 0, SlotNum: 0}, catalog.RID{Pid: 0, SlotNum: 1}, relcatPager, attrcatPager)

	relNum, err := c.OpenRel("students")
	if err != nil {
		t.Fatalf("OpenRel: %v", err)
	}
	return c, relNum
}

func TestInsertAndGetNext(t *testing.T) {
	c, relNum := setup(t)
	for i := int32(0); i < 5; i++ {
		rec := encodeStudent(t, c.Config(), i, "alice")
		if _, err := InsertRec(c, relNum, rec); err != nil {
			t.Fatalf("InsertRec %d: %v", i, err)
		}
	}
	count := 0
	rid := catalog.InvalidRID
	for {
		next, buf, err := GetNextRec(c, relNum, rid)
		if err != nil {
			t.Fatalf("GetNextRec: %v", err)
		}
		if !next.IsValid() {
			break
		}
		rid = next
		if catalog.DecodeInt(buf[0:4]) != int32(count) {
			t.Fatalf("record %d out of order: got id=%d", count, catalog.DecodeInt(buf[0:4]))
		}
		count++
	}
	if count != 5 {
		t.Fatalf("scanned %d records, want 5", count)
	}
}

func TestDeleteFreesSlotForReuse(t *testing.T) {
	c, relNum := setup(t)
	var rids []catalog.RID
	for i := int32(0); i < 3; i++ {
		rid, err := InsertRec(c, relNum, encodeStudent(t, c.Config(), i, "bob"))
		if err != nil {
			t.Fatalf("InsertRec: %v", err)
		}
		rids = append(rids, rid)
	}
	if err := DeleteRec(c, relNum, rids[1]); err != nil {
		t.Fatalf("DeleteRec: %v", err)
	}
	newRid, err := InsertRec(c, relNum, encodeStudent(t, c.Config(), 99, "carol"))
	if err != nil {
		t.Fatalf("InsertRec after delete: %v", err)
	}
	if newRid != rids[1] {
		t.Fatalf("expected reused slot %v, got %v", rids[1], newRid)
	}
}

func TestWriteRecOverwritesInPlace(t *testing.T) {
	c, relNum := setup(t)
	rid, err := InsertRec(c, relNum, encodeStudent(t, c.Config(), 1, "dave"))
	if err != nil {
		t.Fatalf("InsertRec: %v", err)
	}
	if err := WriteRec(c, relNum, rid, encodeStudent(t, c.Config(), 1, "DAVE")); err != nil {
		t.Fatalf("WriteRec: %v", err)
	}
	_, buf, err := GetNextRec(c, relNum, catalog.InvalidRID)
	if err != nil {
		t.Fatalf("GetNextRec: %v", err)
	}
	if catalog.DecodeString(buf[4:12], 8) != "DAVE" {
		t.Fatalf("WriteRec did not take effect: got %q", catalog.DecodeString(buf[4:12], 8))
	}
}

func TestFindRecMatchesPredicate(t *testing.T) {
	c, relNum := setup(t)
	for i := int32(0); i < 5; i++ {
		if _, err := InsertRec(c, relNum, encodeStudent(t, c.Config(), i, "x")); err != nil {
			t.Fatalf("InsertRec: %v", err)
		}
	}
	target := make([]byte, 4)
	catalog.EncodeInt(target, 3)
	rid, buf, err := FindRec(c, relNum, catalog.InvalidRID, Field{Offset: 0, Size: 4, Type: catalog.TypeInt}, target, catalog.OpEQ)
	if err != nil {
		t.Fatalf("FindRec: %v", err)
	}
	if !rid.IsValid() {
		t.Fatalf("FindRec did not find id=3")
	}
	if catalog.DecodeInt(buf[0:4]) != 3 {
		t.Fatalf("FindRec returned wrong record: %d", catalog.DecodeInt(buf[0:4]))
	}
}

func TestDeleteOutOfRangeFails(t *testing.T) {
	c, relNum := setup(t)
	if err := DeleteRec(c, relNum, catalog.RID{Pid: 99, SlotNum: 0}); !dberr.Is(err, dberr.PageOutOfBounds) {
		t.Fatalf("expected PageOutOfBounds, got %v", err)
	}
}
