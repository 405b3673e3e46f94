package xbytes

import (
	"errors"
	"fmt"
	"math"
	"testing"
)

func TestParseHex32(t *testing.T) {
	var testcases = []struct {
		field   string
		expect  uint32
		badByte int // -1 when parsing should succeed
	}{
		{"00000000", 0, -1},
		{"0000000B", 0xB, -1},
		{"0000000b", 0xB, -1},
		{"000081A4", 0o100_644, -1},
		{"FFFFFFFF", math.MaxUint32, -1},
		{"7", 7, -1},
		{"0000000G", 0, 7},
		{" 0000000", 0, 0},
		{"00-00000", 0, 2},
	}

	for i, tc := range testcases {
		t.Run(fmt.Sprintf("#%d %s", i, tc.field), func(t *testing.T) {
			got, err := ParseHex32([]byte(tc.field))
			if tc.badByte < 0 {
				if err != nil {
					t.Fatalf("ParseHex32: %s", err)
				}
				if got != tc.expect {
					t.Fatalf("expected %#x, got %#x", tc.expect, got)
				}
				return
			}

			var ibe *InvalidByteError
			if !errors.As(err, &ibe) {
				t.Fatalf("expected InvalidByteError, got %v", err)
			}
			if int(*ibe) != tc.badByte {
				t.Fatalf("expected bad byte at %d, got %d", tc.badByte, int(*ibe))
			}
		})
	}
}

func TestParseHex32_Width(t *testing.T) {
	for _, field := range []string{"", "000000000"} {
		if _, err := ParseHex32([]byte(field)); !errors.Is(err, ErrHexWidth) {
			t.Errorf("%q: expected ErrHexWidth, got %v", field, err)
		}
	}
}

func TestHexLeftInverse(t *testing.T) {
	var values = []uint32{0, 1, 0xF, 0x10, 0xABCDEF, 0x7FFFFFFF, 0x80000000, math.MaxUint32}
	for v := uint32(1); v != 0 && v < math.MaxUint32/3; v = v*3 + 1 {
		values = append(values, v)
	}

	var buf [8]byte
	for _, v := range values {
		text := AppendHex32(buf[:0], v)
		if len(text) != 8 {
			t.Fatalf("%#x: formatted to %d bytes", v, len(text))
		}

		got, err := ParseHex32(text)
		if err != nil {
			t.Fatalf("%#x: ParseHex32(%q): %s", v, text, err)
		}
		if got != v {
			t.Fatalf("round trip %#x -> %q -> %#x", v, text, got)
		}
	}
}

func TestCopy(t *testing.T) {
	var dst [4]byte

	if n, err := Copy(dst[:], []byte("abcd")); err != nil || n != 4 {
		t.Fatalf("Copy: n=%d err=%v", n, err)
	}

	if n, err := Copy(dst[:3], []byte("wxyz")); !errors.Is(err, ErrShortDst) || n != 0 {
		t.Fatalf("expected ErrShortDst, got n=%d err=%v", n, err)
	}

	if string(dst[:]) != "abcd" {
		t.Fatalf("failed Copy modified destination: %q", dst[:])
	}
}

func TestEqual(t *testing.T) {
	if !Equal([]byte("TRAILER!!!"), []byte("TRAILER!!!")) {
		t.Error("identical contents compare unequal")
	}
	if Equal([]byte("TRAILER!!"), []byte("TRAILER!!!")) {
		t.Error("different lengths compare equal")
	}
	if !EqualString(nil, "") {
		t.Error("empty slices compare unequal")
	}
	if EqualString([]byte("abc"), "abd") {
		t.Error("different contents compare equal")
	}
}

func TestAssert(t *testing.T) {
	Assert(true, "never fires")

	defer func() {
		if r := recover(); r != "assertion failed: boom" {
			t.Fatalf("unexpected recover value %v", r)
		}
	}()
	Assert(false, "boom")
}
