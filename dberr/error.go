// Package dberr centralizes minirel's error taxonomy. The original C engine
// kept a single process-wide db_err_code and a switch-based message
// formatter (ErrorMsgs); this package models the same contract as a typed
// Go error so each layer returns its failure instead of stashing it in a
// global, while Format still produces the same kind of user-facing message.
package dberr

import "github.com/pkg/errors"

// Code enumerates the error taxonomy of §7: argument, existence, security,
// capacity, semantic, I/O, and resource errors.
type Code int

const (
	_ Code = iota
	ArgcInsufficient
	MetadataSecurity
	RelNoExist
	RelExist
	RelLengthExceeded
	AttrNoExist
	AttrExist
	AttrNameExceeded
	DupAttr
	DupAttrInsert
	DupRows
	InvalidFormat
	InvalidValue
	StrLenInvalid
	RecTooLong
	RecInsErr
	InvalidRelNum
	PageOutOfBounds
	PageMagicError
	RelOpenError
	FilesystemError
	FileNoExist
	InvalidFileSize
	LoadNonEmpty
	IndexNonEmpty
	IdxExist
	IdxNoExist
	IncompatibleTypes
	CacheFull
	MemAllocError
	DBNotExist
	DBExists
	DBLengthExceeded
	DBNotClosed
	DBNotOpen
	DBPathNotValid
	DBDestroyError
	CatCreateError
	CatOpenError
	CatCloseError
	UnknownError
)

var messages = map[Code]string{
	ArgcInsufficient:  "insufficient number of arguments",
	MetadataSecurity:  "direct modification of system catalogs is not allowed",
	RelNoExist:        "relation does not exist",
	RelExist:          "relation already exists",
	RelLengthExceeded: "relation name too long",
	AttrNoExist:       "attribute does not exist",
	AttrExist:         "attribute already exists",
	AttrNameExceeded:  "attribute name too long",
	DupAttr:           "duplicate attribute in schema definition",
	DupAttrInsert:     "duplicate attribute in insert argument list",
	DupRows:           "duplicate tuple rejected by insert",
	InvalidFormat:     "illegal attribute format string",
	InvalidValue:      "literal value not valid for attribute type",
	StrLenInvalid:     "string length out of range",
	RecTooLong:        "record too long for a page",
	RecInsErr:         "record could not be inserted",
	InvalidRelNum:     "relation is not open",
	PageOutOfBounds:   "page or slot index out of bounds",
	PageMagicError:    "page failed magic validation",
	RelOpenError:      "relation file could not be opened",
	FilesystemError:   "underlying filesystem error",
	FileNoExist:       "file does not exist",
	InvalidFileSize:   "file size is not a valid multiple of the page size",
	LoadNonEmpty:      "cannot load into a non-empty relation",
	IndexNonEmpty:     "cannot build an index on a non-empty relation",
	IdxExist:          "index already exists",
	IdxNoExist:        "index does not exist",
	IncompatibleTypes: "join attributes have incompatible types",
	CacheFull:         "open-relation cache is full",
	MemAllocError:     "memory allocation failure",
	DBNotExist:        "database does not exist",
	DBExists:          "database already exists",
	DBLengthExceeded:  "database name too long",
	DBNotClosed:       "a database is already open; close it first",
	DBNotOpen:         "no database is currently open",
	DBPathNotValid:    "database path is not valid",
	DBDestroyError:    "database directory could not be removed",
	CatCreateError:    "error creating system catalogs",
	CatOpenError:      "error opening system catalogs",
	CatCloseError:     "error closing system catalogs",
	UnknownError:      "unknown error",
}

// Error is the typed replacement for the original engine's global
// db_err_code: a code plus an optional offending identifier (relation or
// attribute name), wrapping whatever OS-level cause produced it.
type Error struct {
	Code  Code
	Arg   string
	cause error
}

func (e *Error) Error() string {
	return Format(e)
}

// Unwrap lets errors.Is / errors.As walk through to the underlying cause.
func (e *Error) Unwrap() error { return e.cause }

// Cause lets github.com/pkg/errors' Cause walk through to the underlying
// cause.
func (e *Error) Cause() error { return e.cause }

// New builds a bare Error with no wrapped cause.
func New(code Code) *Error {
	return &Error{Code: code}
}

// WithArg attaches the offending identifier (relation/attribute name) to the
// message.
func (e *Error) WithArg(arg string) *Error {
	e.Arg = arg
	return e
}

// Wrap attaches an underlying cause (typically an *os.PathError) the way the
// rest of the pack uses github.com/pkg/errors to keep a causal chain while
// still comparing against a sentinel code.
func Wrap(code Code, cause error) *Error {
	return &Error{Code: code, cause: errors.Wrap(cause, messages[code])}
}

// Is reports whether err carries the given Code, unwrapping as needed.
func Is(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Format is the central message formatter (original: ErrorMsgs). It never
// prints; callers decide whether and where to write the result.
func Format(e *Error) string {
	msg, ok := messages[e.Code]
	if !ok {
		msg = messages[UnknownError]
	}
	out := msg
	if e.Arg != "" {
		out += ": " + e.Arg
	}
	if e.cause != nil {
		out += " (" + e.cause.Error() + ")"
	}
	return out
}
