package engine

import (
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"

	"minirel/cache"
	"minirel/catalog"
	"minirel/dberr"
	"minirel/heap"
)

// print implements §6's "print <rel>": a tabular dump of every live tuple
// in physical (RID) order, columns sized to fit the wider of the attribute
// name or its display width. Grounded on original_source/schema/print.c,
// including its per-type column widths (int 11, float 12, string its
// declared length) and alignment (numbers right, strings left, trailing
// NULs trimmed).
func (e *Engine) print(args []string, w io.Writer) error {
	db, err := e.requireOpen()
	if err != nil {
		return err
	}
	if len(args) != 1 {
		return errors.WithStack(dberr.New(dberr.ArgcInsufficient))
	}
	relName := args[0]

	relNum, err := db.Cache.OpenRel(relName)
	if err != nil {
		return e.withRelSuggestion(err, relName)
	}
	slot, err := db.Cache.Slot(relNum)
	if err != nil {
		return err
	}
	attrs := slot.AttrList

	fmt.Fprintf(w, "OK, printing relation %s\n\n", relName)
	if len(attrs) == 0 {
		fmt.Fprintln(w, "(empty relation)")
		return nil
	}

	widths := make([]int, len(attrs))
	for i, a := range attrs {
		dataLen := 10
		switch a.Rec.Type {
		case catalog.TypeInt:
			dataLen = 11
		case catalog.TypeFloat:
			dataLen = 12
		case catalog.TypeString:
			dataLen = int(a.Rec.Length)
		}
		nameLen := len(a.Rec.AttrName)
		colWidth := dataLen
		if nameLen > colWidth {
			colWidth = nameLen
		}
		widths[i] = colWidth + 2
	}

	printSeparator(w, widths)
	printHeader(w, attrs, widths)
	printSeparator(w, widths)

	rowCount := 0
	rid := catalog.InvalidRID
	for {
		next, rec, err := heap.GetNextRec(db.Cache, relNum, rid)
		if err != nil {
			return err
		}
		if !next.IsValid() {
			break
		}
		rid = next

		fmt.Fprint(w, "|")
		for i, a := range attrs {
			fmt.Fprintf(w, " %s |", formatField(rec, a.Rec, widths[i]-2))
		}
		fmt.Fprintln(w)
		rowCount++
	}
	printSeparator(w, widths)
	fmt.Fprintf(w, "%d row(s)\n", rowCount)
	return nil
}

func printSeparator(w io.Writer, widths []int) {
	fmt.Fprint(w, "+")
	for _, width := range widths {
		fmt.Fprint(w, strings.Repeat("-", width+1), "+")
	}
	fmt.Fprintln(w)
}

func printHeader(w io.Writer, attrs []cache.AttrDesc, widths []int) {
	fmt.Fprint(w, "|")
	for i, a := range attrs {
		fmt.Fprintf(w, " %-*s |", widths[i]-2, a.Rec.AttrName)
	}
	fmt.Fprintln(w)
}

func formatField(rec []byte, a catalog.AttrCatRec, width int) string {
	off := int(a.Offset)
	switch a.Type {
	case catalog.TypeInt:
		v := catalog.DecodeInt(rec[off : off+4])
		return fmt.Sprintf("%*d", width, v)
	case catalog.TypeFloat:
		v := catalog.DecodeFloat(rec[off : off+4])
		return fmt.Sprintf("%*.2f", width, v)
	case catalog.TypeString:
		length := int(a.Length)
		s := catalog.DecodeString(rec[off:off+length], length)
		return fmt.Sprintf("%-*s", width, s)
	default:
		return fmt.Sprintf("%-*s", width, "(unknown)")
	}
}
