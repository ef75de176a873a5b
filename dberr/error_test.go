package dberr

import (
	"os"
	"testing"

	"github.com/pkg/errors"
)

func TestFormatPlain(t *testing.T) {
	err := New(RelNoExist).WithArg("students")
	want := "relation does not exist: students"
	if got := err.Error(); got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}

func TestWrapUnwrapsCause(t *testing.T) {
	cause := &os.PathError{Op: "open", Path: "students.rel", Err: os.ErrNotExist}
	err := Wrap(RelOpenError, cause)
	if errors.Cause(err) != cause {
		t.Fatalf("errors.Cause did not recover the wrapped *os.PathError")
	}
	if !Is(err, RelOpenError) {
		t.Fatalf("Is(err, RelOpenError) = false")
	}
}

func TestIsFalseForOtherErrors(t *testing.T) {
	if Is(os.ErrNotExist, RelNoExist) {
		t.Fatalf("Is should be false for a plain error")
	}
}

func TestUnknownCodeFallsBack(t *testing.T) {
	err := New(Code(9999))
	if err.Error() != messages[UnknownError] {
		t.Fatalf("Format(unknown code) = %q, want fallback message", err.Error())
	}
}
