// Package memiter provides a bounds checked cursor over a caller owned byte
// buffer. Reads hand back [Range] views aliasing the buffer; nothing is ever
// copied and no view ever extends past the end of the buffer.
//
// An [Iter] is single consumer. Any number of iterators may walk the same
// buffer at once, provided nobody mutates it.
package memiter

import (
	"errors"
	"fmt"

	"go.pdmccormick.com/newc/internal/xbytes"
)

var (
	ErrShort       = errors.New("memiter: insufficient bytes remaining")
	ErrNoSeparator = errors.New("memiter: separator not found")
	ErrBadAlign    = errors.New("memiter: alignment must be positive")
)

// Returned when an operation needs more bytes than remain. Matches [ErrShort]
// with [errors.Is].
type ShortError struct {
	Want int // Bytes requested
	Have int // Bytes remaining
}

func (e *ShortError) Error() string {
	return fmt.Sprintf("memiter: need %d bytes, %d remaining", e.Want, e.Have)
}

func (e *ShortError) Is(target error) bool { return target == ErrShort }

// A cursor over a [Range]. Invariant: start <= cur <= end, all within the
// origin buffer.
type Iter struct {
	origin []byte
	start  int
	cur    int
	end    int
}

// An iterator positioned at the start of r.
func New(r Range) *Iter {
	var it Iter
	it.Reset(r)
	return &it
}

// An iterator over all of b.
func FromBytes(b []byte) *Iter { return New(Of(b)) }

// Reposition the iterator at the start of r.
func (it *Iter) Reset(r Range) {
	xbytes.Assert(r.off >= 0 && r.n >= 0 && r.off+r.n <= len(r.origin), "range outside origin")
	*it = Iter{origin: r.origin, start: r.off, cur: r.off, end: r.off + r.n}
}

func (it *Iter) Remaining() int { return it.end - it.cur }

func (it *Iter) Empty() bool { return it.cur == it.end }

// Bytes consumed since the start of the range the iterator was created from.
func (it *Iter) Offset() int { return it.cur - it.start }

// Everything not yet consumed. The cursor is unchanged.
func (it *Iter) Rest() Range { return newRange(it.origin, it.cur, it.end-it.cur) }

func (it *Iter) check(n int) error {
	xbytes.Assert(n >= 0, "negative length")
	if rem := it.Remaining(); n > rem {
		return &ShortError{Want: n, Have: rem}
	}
	return nil
}

// The next n bytes, leaving the cursor where it is.
func (it *Iter) Peek(n int) (Range, error) {
	if err := it.check(n); err != nil {
		return Range{}, err
	}
	return newRange(it.origin, it.cur, n), nil
}

// Skip n bytes.
func (it *Iter) Advance(n int) error {
	if err := it.check(n); err != nil {
		return err
	}
	it.cur += n
	return nil
}

// The next n bytes, moving the cursor past them.
func (it *Iter) Take(n int) (Range, error) {
	r, err := it.Peek(n)
	if err != nil {
		return Range{}, err
	}
	it.cur += n
	return r, nil
}

// The bytes up to, but not including, the first sep. The cursor moves one
// past the separator. When no separator remains the cursor is unchanged.
func (it *Iter) SplitAt(sep byte) (Range, error) {
	for i := it.cur; i < it.end; i++ {
		if it.origin[i] == sep {
			r := newRange(it.origin, it.cur, i-it.cur)
			it.cur = i + 1
			return r, nil
		}
	}
	return Range{}, ErrNoSeparator
}

func alignFill(n, to int) int {
	if rem := n % to; rem > 0 {
		return to - rem
	}
	return 0
}

// Advance to the next multiple of to, measured by [Iter.Offset].
func (it *Iter) Align(to int) error {
	if to <= 0 {
		return ErrBadAlign
	}
	return it.Advance(alignFill(it.Offset(), to))
}
