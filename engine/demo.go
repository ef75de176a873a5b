package engine

import (
	"minirel/catalog"
	"minirel/schema"
)

// demoField is one value to encode into a demo row, paired with the
// attribute type it belongs to so encodeRow can catch a mismatched call.
type demoField struct {
	typ  catalog.AttrType
	ival int32
	fval float32
	sval string
}

func intField(v int32) demoField     { return demoField{typ: catalog.TypeInt, ival: v} }
func floatField(v float32) demoField { return demoField{typ: catalog.TypeFloat, fval: v} }
func strField(v string) demoField    { return demoField{typ: catalog.TypeString, sval: v} }

// encodeRow lays out fields into a single fixed-length record buffer using
// the same offset/width rule schema.DB.Create uses (int/float 4 bytes,
// string its declared size, fields packed in attribute order).
func encodeRow(attrs []schema.AttrSpec, fields ...demoField) []byte {
	recLen := 0
	for _, a := range attrs {
		if a.Type == catalog.TypeString {
			recLen += a.Size
		} else {
			recLen += 4
		}
	}
	buf := make([]byte, recLen)
	off := 0
	for i, a := range attrs {
		f := fields[i]
		switch a.Type {
		case catalog.TypeInt:
			catalog.EncodeInt(buf[off:off+4], f.ival)
			off += 4
		case catalog.TypeFloat:
			catalog.EncodeFloat(buf[off:off+4], f.fval)
			off += 4
		case catalog.TypeString:
			catalog.EncodeString(buf[off:off+a.Size], f.sval, a.Size)
			off += a.Size
		}
	}
	return buf
}

// demoRelations builds the students/professors illustrative data described
// in §4.7: a couple of small, hand-populated relations an external
// collaborator can seed into a freshly created database purely so the shell
// has something to query right after "createdb". The core package only
// guarantees relcat/attrcat bootstrap (cache.Catalog.BootstrapCats); these rows
// are shell-layer demo content, not part of any package's invariants.
func demoRelations() []schema.RelSpec {
	students := []schema.AttrSpec{
		{Name: "id", Type: catalog.TypeInt},
		{Name: "name", Type: catalog.TypeString, Size: 16},
		{Name: "gpa", Type: catalog.TypeFloat},
	}
	professors := []schema.AttrSpec{
		{Name: "id", Type: catalog.TypeInt},
		{Name: "name", Type: catalog.TypeString, Size: 16},
		{Name: "dept", Type: catalog.TypeString, Size: 12},
	}

	return []schema.RelSpec{
		{
			Name:  "students",
			Attrs: students,
			Rows: [][]byte{
				encodeRow(students, intField(1), strField("alice"), floatField(3.90)),
				encodeRow(students, intField(2), strField("bob"), floatField(3.10)),
				encodeRow(students, intField(3), strField("carol"), floatField(3.75)),
			},
		},
		{
			Name:  "professors",
			Attrs: professors,
			Rows: [][]byte{
				encodeRow(professors, intField(100), strField("dr. turing"), strField("compsci")),
				encodeRow(professors, intField(101), strField("dr. lovelace"), strField("compsci")),
			},
		},
	}
}
