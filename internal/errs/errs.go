// Package errs defines the closed error-kind taxonomy exposed by the storage
// core (spec §7): a fixed set of kinds raised at the component that detects
// the violation, never recovered from silently, and inspected with
// errors.Is/errors.As rather than by string matching.
package errs

import (
	"errors"
	"fmt"
)

// Kind is a closed enum of the error kinds the storage core can raise.
type Kind int

const (
	_ Kind = iota

	// Disk manager
	FileExists
	FileNotExists
	FileNotOpen
	FileReopen
	FileReadError
	FileWriteError
	FileDeleteError

	// Buffer pool
	NoFreeFrame

	// Table / heap
	RecordExists
	RecordMiss
	RecLenError
	PageMiss

	// Schema / record
	TypeMismatch
	StringOverflow
	UnexpectedNull
	UnsupportedOp

	// Index
	IndexFail

	// Lifecycle (handle layer above the core)
	TableExist
	TableMiss
	DBExists
	DBMiss
	DBNotOpen
)

var kindNames = map[Kind]string{
	FileExists:      "FILE_EXISTS",
	FileNotExists:   "FILE_NOT_EXISTS",
	FileNotOpen:     "FILE_NOT_OPEN",
	FileReopen:      "FILE_REOPEN",
	FileReadError:   "FILE_READ_ERROR",
	FileWriteError:  "FILE_WRITE_ERROR",
	FileDeleteError: "FILE_DELETE_ERROR",
	NoFreeFrame:     "NO_FREE_FRAME",
	RecordExists:    "RECORD_EXISTS",
	RecordMiss:      "RECORD_MISS",
	RecLenError:     "RECLEN_ERROR",
	PageMiss:        "PAGE_MISS",
	TypeMismatch:    "TYPE_MISSMATCH",
	StringOverflow:  "STRING_OVERFLOW",
	UnexpectedNull:  "UNEXPECTED_NULL",
	UnsupportedOp:   "UNSUPPORTED_OP",
	IndexFail:       "INDEX_FAIL",
	TableExist:      "TABLE_EXIST",
	TableMiss:       "TABLE_MISS",
	DBExists:        "DB_EXISTS",
	DBMiss:          "DB_MISS",
	DBNotOpen:       "DB_NOT_OPEN",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "UNKNOWN_ERROR_KIND"
}

// Error is the single error type raised by the storage core. It carries the
// Kind so callers can branch on it with errors.As, plus a free-form message
// and an optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Kind, so callers can
// do errors.Is(err, errs.New(errs.RecordMiss, "")) or, more idiomatically,
// use Kind via errors.As.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New builds an *Error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind wrapping cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error, and ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
