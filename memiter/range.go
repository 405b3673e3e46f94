package memiter

import (
	"fmt"
	"unsafe"

	"go.pdmccormick.com/newc/internal/xbytes"
)

// A view of part of a caller owned buffer, the origin. A Range never copies
// and never outlives its origin; every sub-range derived from it shares the
// same origin.
type Range struct {
	origin []byte
	off    int
	n      int
}

// A Range covering all of b.
func Of(b []byte) Range { return Range{origin: b, n: len(b)} }

func newRange(origin []byte, off, n int) Range {
	xbytes.Assert(off >= 0 && n >= 0 && off+n <= len(origin), "range outside origin")
	return Range{origin: origin, off: off, n: n}
}

// The bytes of the range, aliasing the origin. Capacity is clipped to the
// length so that appending to the result can never write into the origin.
func (r Range) Bytes() []byte { return r.origin[r.off : r.off+r.n : r.off+r.n] }

func (r Range) Len() int { return r.n }

// Offset of the first byte, relative to the start of the origin.
func (r Range) Offset() int { return r.off }

// One past the last byte, relative to the start of the origin.
func (r Range) End() int { return r.off + r.n }

func (r Range) Empty() bool { return r.n == 0 }

// Content equality.
func (r Range) Equal(o Range) bool { return xbytes.Equal(r.Bytes(), o.Bytes()) }

func (r Range) EqualString(s string) bool { return xbytes.EqualString(r.Bytes(), s) }

// Identity: same origin, same offset, same length.
func (r Range) Same(o Range) bool {
	return unsafe.SliceData(r.origin) == unsafe.SliceData(o.origin) && r.off == o.off && r.n == o.n
}

// Whether o lies wholly within r and shares its origin.
func (r Range) Contains(o Range) bool {
	return unsafe.SliceData(r.origin) == unsafe.SliceData(o.origin) && r.off <= o.off && o.End() <= r.End()
}

// Sub-range [i, j) relative to the start of r.
func (r Range) Slice(i, j int) Range {
	xbytes.Assert(0 <= i && i <= j && j <= r.n, "slice bounds out of range")
	return Range{origin: r.origin, off: r.off + i, n: j - i}
}

// Copies the bytes of the range into a new string.
func (r Range) String() string { return string(r.Bytes()) }

func (r Range) GoString() string { return fmt.Sprintf("memiter.Range{off: %d, n: %d}", r.off, r.n) }
