package newc

import (
	"errors"
	"fmt"
)

// Every error returned by [Reader.Next] other than io.EOF matches
// ErrMalformed with [errors.Is].
var ErrMalformed = errors.New("newc: malformed archive")

var (
	ErrMalformedFilename = errors.New("newc: filename field is missing trailing 0")
	ErrEmptyFilename     = errors.New("newc: filename size is 0")
	ErrMissingTrailer    = errors.New("newc: end of input before " + TrailerFilename)
)

// Broad classes of malformed input. Useful for diagnostics only; all of them
// are reported as [ErrMalformed].
type Kind int

const (
	Structural Kind = iota + 1 // Bad magic, bad hex digit, bad filename
	Truncation                 // A length runs past the end of input
	Exhaustion                 // Input ended before the trailer
)

func (k Kind) String() string {
	switch k {
	case Structural:
		return "structural"
	case Truncation:
		return "truncation"
	case Exhaustion:
		return "exhaustion"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Details of where and why an archive is malformed.
type FormatError struct {
	Offset int // Archive offset of the record header at fault
	Kind   Kind
	Err    error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("newc: malformed archive (%s) at record offset %d: %s", e.Kind, e.Offset, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

func (e *FormatError) Is(target error) bool { return target == ErrMalformed }
