package newc_test

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"

	"go.pdmccormick.com/newc"
	"go.pdmccormick.com/newc/internal/newctest"
	"go.pdmccormick.com/newc/memiter"
)

// Build a record by hand: header text with the given sizes, then name
// followed by pad zero bytes. No NUL is added to name.
func rawRecord(magic string, filesize, namesize uint32, name string, pad int) []byte {
	var hdr = newc.Header{
		Mode:         newc.Mode_File | 0o644,
		NumLinks:     1,
		DataSize:     filesize,
		FilenameSize: namesize,
	}

	var rec = hdr.AppendText(nil)
	copy(rec, magic)
	rec = append(rec, name...)
	return append(rec, make([]byte, pad)...)
}

func trailerRecord(pad int) []byte {
	return rawRecord(newc.Magic_070701, 0, uint32(len(newc.TrailerFilename)+1), newc.TrailerFilename+"\x00", pad)
}

type listing struct {
	Name     string
	Contents string
	Mode     newc.Mode
}

func readAll(t *testing.T, r *newc.Reader) (got []listing) {
	t.Helper()
	for _, e := range r.All() {
		got = append(got, listing{e.Name.String(), e.Contents.String(), e.Mode})
	}
	if err := r.Err(); err != nil {
		t.Fatalf("Next: %s", err)
	}
	if !r.Done() {
		t.Fatalf("reader stopped before trailer")
	}
	return
}

func expectMalformed(t *testing.T, r *newc.Reader, kind newc.Kind, target error) {
	t.Helper()

	for _, e := range r.All() {
		t.Logf("entry before fault: %s", e)
	}

	_, err := r.Next()
	if !errors.Is(err, newc.ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}

	var fe *newc.FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("expected *FormatError, got %T", err)
	}
	if fe.Kind != kind {
		t.Errorf("expected kind %s, got %s (%s)", kind, fe.Kind, err)
	}
	if target != nil && !errors.Is(err, target) {
		t.Errorf("expected %v, got %v", target, err)
	}

	for i := 0; i < 3; i++ {
		if _, again := r.Next(); again != err {
			t.Fatalf("error is not sticky: %v then %v", err, again)
		}
	}
}

func TestReader_EmptyArchive(t *testing.T) {
	t.Run("aligned", func(t *testing.T) {
		var archive = newctest.Archive(t)
		if len(archive) != 124 {
			t.Fatalf("trailer-only archive is %d bytes", len(archive))
		}

		var r = newc.NewReader(archive)
		if _, err := r.Next(); err != io.EOF {
			t.Fatalf("expected io.EOF, got %v", err)
		}
	})

	t.Run("short trailer padding", func(t *testing.T) {
		var r = newc.NewReader(trailerRecord(2))
		if _, err := r.Next(); err != io.EOF {
			t.Fatalf("expected io.EOF, got %v", err)
		}
	})
}

func TestReader_SingleFile(t *testing.T) {
	var (
		archive = newctest.Archive(t, newctest.File{Name: "hello.txt", Data: "world"})
		r       = newc.NewReader(archive)
	)

	e, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %s", err)
	}

	if !e.Name.EqualString("hello.txt") || e.Name.Len() != 9 {
		t.Errorf("unexpected name %q", e.Name)
	}
	if !e.Contents.EqualString("world") || e.Contents.Len() != 5 {
		t.Errorf("unexpected contents %q", e.Contents)
	}
	if e.Name.Offset() != newc.HeaderSize || e.Contents.Offset() != 120 {
		t.Errorf("unexpected offsets name=%d contents=%d", e.Name.Offset(), e.Contents.Offset())
	}
	if !e.Mode.File() || e.Mode.Perms() != 0o644 {
		t.Errorf("unexpected mode %s", e.Mode)
	}
	if r.Offset() != 128 {
		t.Errorf("expected cursor at 128, got %d", r.Offset())
	}

	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestReader_ZeroLengthFile(t *testing.T) {
	var (
		archive = newctest.Archive(t, newctest.File{Name: "empty"})
		r       = newc.NewReader(archive)
	)

	e, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %s", err)
	}

	if e.Contents.Len() != 0 || !e.Contents.Empty() {
		t.Errorf("expected empty contents, got %q", e.Contents)
	}

	// header + "empty\0" is 116 bytes, already aligned
	if r.Offset() != newc.HeaderSize+6 {
		t.Errorf("expected cursor at %d, got %d", newc.HeaderSize+6, r.Offset())
	}

	if _, err := r.Next(); err != io.EOF {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestReader_Padding(t *testing.T) {
	// 110 + len("ab\0") = 113 and 5 bytes of data both need 3 bytes of padding
	var (
		archive = newctest.Archive(t,
			newctest.File{Name: "ab", Data: "12345"},
			newctest.File{Name: "cd", Data: "67890"},
		)
		r = newc.NewReader(archive)
	)

	var offsets []int
	for _, e := range r.All() {
		offsets = append(offsets, e.Header.HeaderOffset, e.Header.DataOffset, e.Contents.End()+3)
	}
	if err := r.Err(); err != nil {
		t.Fatalf("Next: %s", err)
	}

	if diff := cmp.Diff([]int{0, 116, 124, 124, 240, 248}, offsets); diff != "" {
		t.Fatalf("offsets mismatch (-want +got):\n%s", diff)
	}

	for _, offs := range offsets {
		if offs%4 != 0 {
			t.Errorf("record boundary %d is not 4 byte aligned", offs)
		}
	}
}

func TestReader_Listing(t *testing.T) {
	var archive = newctest.Archive(t,
		newctest.File{Name: "init", Mode: newc.Mode_File | 0o755, Data: "#!/bin/sh\nexec /bin/sh\n"},
		newctest.File{Name: "bin/sh", Mode: newc.Mode_Symlink | 0o777, Data: "busybox"},
		newctest.File{Name: "dev", Mode: newc.Mode_Dir | 0o755},
		newctest.File{Name: "etc/hostname", Data: "initrd\n"},
	)

	var expect = []listing{
		{"init", "#!/bin/sh\nexec /bin/sh\n", newc.Mode_File | 0o755},
		{"bin", "", newc.Mode_Dir | 0o755},
		{"bin/sh", "busybox", newc.Mode_Symlink | 0o777},
		{"dev", "", newc.Mode_Dir | 0o755},
		{"etc", "", newc.Mode_Dir | 0o755},
		{"etc/hostname", "initrd\n", newc.Mode_File | 0o644},
	}

	if diff := cmp.Diff(expect, readAll(t, newc.NewReader(archive))); diff != "" {
		t.Fatalf("listing mismatch (-want +got):\n%s", diff)
	}
}

func TestReader_Malformed(t *testing.T) {
	var testcases = []struct {
		name    string
		archive func(t *testing.T) []byte
		kind    newc.Kind
		target  error
	}{
		{
			name: "checksum variant",
			archive: func(t *testing.T) []byte {
				return rawRecord(newc.Magic_070702, 0, 11, newc.TrailerFilename+"\x00", 1)
			},
			kind:   newc.Structural,
			target: newc.ErrChecksumVariant,
		},
		{
			name: "bad magic",
			archive: func(t *testing.T) []byte {
				return rawRecord("123456", 0, 11, newc.TrailerFilename+"\x00", 1)
			},
			kind:   newc.Structural,
			target: newc.ErrBadHeaderMagic,
		},
		{
			name: "truncated contents",
			archive: func(t *testing.T) []byte {
				var rec = rawRecord(newc.Magic_070701, 100, 4, "big\x00", 0)
				return append(rec, bytes.Repeat([]byte{'x'}, 40)...)
			},
			kind:   newc.Truncation,
			target: memiter.ErrShort,
		},
		{
			name: "truncated name",
			archive: func(t *testing.T) []byte {
				return rawRecord(newc.Magic_070701, 0, 0xFFFFFFFF, "abc\x00", 0)
			},
			kind:   newc.Truncation,
			target: memiter.ErrShort,
		},
		{
			name: "truncated header",
			archive: func(t *testing.T) []byte {
				return trailerRecord(1)[:100]
			},
			kind:   newc.Truncation,
			target: memiter.ErrShort,
		},
		{
			name: "missing NUL terminator",
			archive: func(t *testing.T) []byte {
				return append(rawRecord(newc.Magic_070701, 0, 5, "abcde", 1), trailerRecord(1)...)
			},
			kind:   newc.Structural,
			target: newc.ErrMalformedFilename,
		},
		{
			name: "zero namesize",
			archive: func(t *testing.T) []byte {
				return append(rawRecord(newc.Magic_070701, 0, 0, "", 2), trailerRecord(1)...)
			},
			kind:   newc.Structural,
			target: newc.ErrEmptyFilename,
		},
		{
			name: "empty input",
			archive: func(t *testing.T) []byte {
				return nil
			},
			kind:   newc.Exhaustion,
			target: newc.ErrMissingTrailer,
		},
		{
			name: "no trailer",
			archive: func(t *testing.T) []byte {
				var archive = newctest.Archive(t, newctest.File{Name: "a", Data: "b"})
				return archive[:len(archive)-124]
			},
			kind:   newc.Exhaustion,
			target: newc.ErrMissingTrailer,
		},
		{
			name: "missing content padding",
			archive: func(t *testing.T) []byte {
				var archive = newctest.Archive(t, newctest.File{Name: "a", Data: "b"})
				// "a\0" leaves the data at 112, data ends at 113, pad to 116
				return archive[:114]
			},
			kind:   newc.Truncation,
			target: memiter.ErrShort,
		},
	}

	for i, tc := range testcases {
		t.Run(fmt.Sprintf("#%d %s", i, tc.name), func(t *testing.T) {
			expectMalformed(t, newc.NewReader(tc.archive(t)), tc.kind, tc.target)
		})
	}
}

func TestReader_InvalidHexField(t *testing.T) {
	var archive = newctest.Archive(t, newctest.File{Name: "a", Data: "b"})

	// Corrupt the last digit of the uid field, which is otherwise unused
	const uidDigit = 6 + 2*8 + 7
	archive[uidDigit] = 'g'

	var r = newc.NewReader(archive)
	expectMalformed(t, r, newc.Structural, nil)

	var ibe *newc.InvalidByteError
	if err := r.Err(); !errors.As(err, &ibe) || int(*ibe) != uidDigit {
		t.Fatalf("expected InvalidByteError(%d), got %v", uidDigit, err)
	}
}

func TestReader_EntryAfterFault(t *testing.T) {
	var (
		good    = newctest.Archive(t, newctest.File{Name: "first", Data: "1"})
		archive = append(good[:len(good)-124:len(good)-124], rawRecord("070702", 0, 2, "x\x00", 0)...)
		r       = newc.NewReader(archive)
	)

	if e, err := r.Next(); err != nil || !e.Name.EqualString("first") {
		t.Fatalf("first entry: %v %v", e, err)
	}

	expectMalformed(t, r, newc.Structural, newc.ErrChecksumVariant)

	var fe *newc.FormatError
	if errors.As(r.Err(), &fe) && fe.Offset != len(good)-124 {
		t.Errorf("expected fault at record %d, got %d", len(good)-124, fe.Offset)
	}
}

func TestReader_TrailingBytes(t *testing.T) {
	var (
		first  = newctest.Archive(t, newctest.File{Name: "a", Data: "A"})
		second = newctest.Archive(t, newctest.File{Name: "b", Data: "B"})
	)

	// Anything after the trailer, well formed or not, is left alone
	for _, suffix := range [][]byte{second, []byte("garbage"), append(make([]byte, 512), second...)} {
		var (
			archive = append(append([]byte(nil), first...), suffix...)
			r       = newc.NewReader(archive)
		)

		got := readAll(t, r)
		if len(got) != 1 || got[0].Name != "a" {
			t.Fatalf("unexpected entries %+v", got)
		}

		if r.Remaining() != len(suffix) || !r.Rest().Equal(memiter.Of(suffix)) {
			t.Fatalf("expected %d trailing bytes, got %d", len(suffix), r.Remaining())
		}

		if _, err := r.Next(); err != io.EOF {
			t.Fatalf("expected io.EOF to repeat, got %v", err)
		}
	}
}

func TestReader_UnalignedOrigin(t *testing.T) {
	var (
		archive = newctest.Archive(t, newctest.File{Name: "x", Data: "hello"})
		buf     = append([]byte("pre"), archive...)
		r       = newc.NewRangeReader(memiter.Of(buf).Slice(3, len(buf)))
	)

	e, err := r.Next()
	if err != nil {
		t.Fatalf("Next: %s", err)
	}
	if !e.Contents.EqualString("hello") || e.Contents.Offset() != 3+112 || e.Header.DataOffset != 112 {
		t.Fatalf("unexpected contents %q at %d (data offset %d)", e.Contents, e.Contents.Offset(), e.Header.DataOffset)
	}
}

// Checks the invariants every well formed or malformed archive must keep.
func checkInvariants(t *testing.T, archive []byte) {
	var (
		whole   = memiter.Of(archive)
		r       = newc.NewRangeReader(whole)
		prevRem = r.Remaining()
		prev    newc.Entry
		eofs    int
	)

	for i := 0; i < len(archive)+2; i++ {
		e, err := r.Next()
		switch {
		case err == io.EOF:
			eofs++
			if r.Remaining() > prevRem {
				t.Fatalf("cursor moved backwards at trailer")
			}
			continue
		case err != nil:
			if !errors.Is(err, newc.ErrMalformed) {
				t.Fatalf("error does not match ErrMalformed: %v", err)
			}
			if eofs > 0 {
				t.Fatalf("error after io.EOF: %v", err)
			}
			return
		}

		if eofs > 0 {
			t.Fatalf("entry after io.EOF")
		}
		if rem := r.Remaining(); rem >= prevRem {
			t.Fatalf("remaining did not decrease: %d -> %d", prevRem, rem)
		} else {
			prevRem = rem
		}

		if !whole.Contains(e.Name) || !whole.Contains(e.Contents) {
			t.Fatalf("entry %q escapes archive", e.Name)
		}
		if e.Name.End() >= e.Contents.Offset() && e.Contents.Len() > 0 {
			t.Fatalf("name and contents overlap")
		}
		if uint32(e.Contents.Len()) != e.Header.DataSize {
			t.Fatalf("contents length %d != filesize %d", e.Contents.Len(), e.Header.DataSize)
		}
		if e.Name.EqualString(newc.TrailerFilename) {
			t.Fatalf("trailer yielded as an entry")
		}
		if prev.Name.Len() > 0 && e.Header.HeaderOffset <= prev.Header.HeaderOffset {
			t.Fatalf("entries out of order")
		}
		prev = e
	}

	if eofs == 0 {
		t.Fatalf("reader neither ended nor failed")
	}
}

func TestReader_Invariants(t *testing.T) {
	var archive = newctest.Archive(t,
		newctest.File{Name: "a"},
		newctest.File{Name: "bb", Data: "x"},
		newctest.File{Name: "ccc", Data: "xy"},
		newctest.File{Name: "dddd", Data: "xyz"},
		newctest.File{Name: "eeeee/f", Data: "xyzw"},
	)

	checkInvariants(t, archive)

	// Every truncation of a valid archive either ends or fails cleanly
	for n := range archive {
		checkInvariants(t, archive[:n])
	}
}

func TestReader_NoAllocs(t *testing.T) {
	var (
		archive = newctest.Archive(t,
			newctest.File{Name: "etc/passwd", Data: "root:x:0:0::/root:/bin/sh\n"},
			newctest.File{Name: "init", Mode: newc.Mode_File | 0o755, Data: "\x7fELF"},
		)
		r = newc.NewReader(nil)
		n int
	)

	allocs := testing.AllocsPerRun(100, func() {
		r.Reset(memiter.Of(archive))
		for {
			if _, err := r.Next(); err != nil {
				break
			}
			n++
		}
	})

	if allocs != 0 {
		t.Fatalf("expected no allocations, got %.1f per archive", allocs)
	}
	if n == 0 {
		t.Fatal("no entries read")
	}
}

func FuzzReader(f *testing.F) {
	f.Add(newctest.Archive(f))
	f.Add(newctest.Archive(f, newctest.File{Name: "hello.txt", Data: "world"}))
	f.Add(trailerRecord(2))
	f.Add(rawRecord(newc.Magic_070701, 3, 5, "abcde", 1))

	f.Fuzz(func(t *testing.T, archive []byte) {
		checkInvariants(t, archive)
	})
}

func BenchmarkReader(b *testing.B) {
	var files []newctest.File
	for i := 0; i < 1000; i++ {
		files = append(files, newctest.File{Name: fmt.Sprintf("lib/modules/%04d.ko", i), Data: string(bytes.Repeat([]byte{byte(i)}, i))})
	}

	var (
		archive = newctest.Archive(b, files...)
		r       newc.Reader
	)

	b.SetBytes(int64(len(archive)))
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		r.Reset(memiter.Of(archive))
		for {
			if _, err := r.Next(); err != nil {
				break
			}
		}
	}
}
