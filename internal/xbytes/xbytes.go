// Package xbytes holds the small byte helpers the parser depends on. None of
// them allocate, perform I/O or touch global state.
package xbytes

import (
	"errors"
	"fmt"
)

var (
	ErrShortDst = errors.New("xbytes: destination shorter than source")
	ErrHexWidth = errors.New("xbytes: hex field must be 1 to 8 bytes wide")
)

// An invalid hexadecimal character was found at an offset relative to the
// start of the field being parsed.
type InvalidByteError int

func (offs *InvalidByteError) Error() string { return fmt.Sprintf("InvalidByteError(%d)", *offs) }

func invalidByteError(k int) error { var err = InvalidByteError(k); return &err }

// Bytewise equality.
func Equal(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Like [Equal], against a string and without converting it.
func EqualString(a []byte, s string) bool {
	if len(a) != len(s) {
		return false
	}
	for i := range a {
		if a[i] != s[i] {
			return false
		}
	}
	return true
}

// Copy all of src into dst. Fails with [ErrShortDst], copying nothing, when
// dst cannot hold every byte of src.
func Copy(dst, src []byte) (int, error) {
	if len(dst) < len(src) {
		return 0, ErrShortDst
	}
	return copy(dst, src), nil
}

func hex2nibble(h byte) (nibble byte, ok bool) {
	if '0' <= h && h <= '9' {
		return h - '0' + 0, true
	} else if 'a' <= h && h <= 'f' {
		return h - 'a' + 0xA, true
	} else if 'A' <= h && h <= 'F' {
		return h - 'A' + 0xA, true
	}
	return 0, false
}

func nibble2hex(nibble byte) byte {
	nibble = nibble & 0x0F

	if nibble <= 9 {
		return '0' + nibble
	}
	return 'A' + nibble - 0xA
}

// Parse a fixed width ASCII hexadecimal field of up to 8 digits.
//
// Returns an [InvalidByteError] holding the offset of the first byte that is
// not a hex digit.
func ParseHex32(field []byte) (v uint32, err error) {
	if len(field) == 0 || len(field) > 8 {
		return 0, ErrHexWidth
	}

	for i, h := range field {
		nibble, ok := hex2nibble(h)
		if !ok {
			return 0, invalidByteError(i)
		}
		v = v<<4 | uint32(nibble)
	}
	return v, nil
}

// Append v as 8 uppercase hex digits. [ParseHex32] is its left inverse.
func AppendHex32(dst []byte, v uint32) []byte {
	for shift := 28; shift >= 0; shift -= 4 {
		dst = append(dst, nibble2hex(byte(v>>shift)))
	}
	return dst
}

// Panic unless cond holds. Reserved for contract violations by the caller,
// never for malformed input.
func Assert(cond bool, msg string) {
	if !cond {
		panic("assertion failed: " + msg)
	}
}
