// Package newctest produces newc archives for tests. The library itself is
// read only; this writer exists so tests can build exact inputs, including
// broken ones.
package newctest

import (
	"bytes"
	"errors"
	"io"
	"iter"
	"path"
	"strings"
	"testing"

	"go.pdmccormick.com/newc"
)

var (
	ErrBadAlignment     = errors.New("newctest: alignment must itself be a multiple of 4")
	ErrBadDataAlignment = errors.New("newctest: unable to align data as requested given the filename")
)

// Writes archive records to w, tracking output alignment.
type Writer struct {
	w io.Writer

	mkdirs    map[string]struct{}
	nextInode uint32

	written       int64
	fileRemaining int64

	dataAlignTo int
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{
		w:         w,
		mkdirs:    make(map[string]struct{}),
		nextInode: 1,
	}
}

func (tw *Writer) write(p []byte) error {
	n, err := tw.w.Write(p)
	tw.written += int64(n)
	return err
}

var zeroPadding [512]byte

func (tw *Writer) writePad(n int64) error {
	for n > 0 {
		k := min(n, int64(len(zeroPadding)))
		if err := tw.write(zeroPadding[:k]); err != nil {
			return err
		}
		n -= k
	}
	return nil
}

func alignFill(n, to int64) int64 {
	if rem := n % to; rem > 0 {
		return to - rem
	}
	return 0
}

func (tw *Writer) writeAlignment(alignTo int64) error {
	return tw.writePad(alignFill(tw.written, alignTo))
}

func (tw *Writer) skipFileRemaining() (err error) {
	if n := tw.fileRemaining; n > 0 {
		err = tw.writePad(n)
		tw.fileRemaining = 0
	}
	return
}

// File data for the most recent header. Writing more than Header.DataSize
// bytes returns io.EOF.
func (tw *Writer) Write(buf []byte) (n int, err error) {
	if rem := tw.fileRemaining; rem == 0 {
		return 0, io.EOF
	} else if rem < int64(len(buf)) {
		buf = buf[:rem]
		err = io.EOF
	}

	if werr := tw.write(buf); werr != nil {
		return 0, werr
	}

	tw.fileRemaining -= int64(len(buf))
	return len(buf), err
}

// Attempts to align the file data of the next header, relative to the start of
// the output, by adding zero padding ahead of the header. Meant for a microcode
// blob written first, so the padding precedes the archive; [newc.Reader] does
// not skip padding between records.
func (tw *Writer) SetDataAlignment(alignTo int) error {
	if alignTo%4 != 0 {
		return ErrBadAlignment
	}
	tw.dataAlignTo = alignTo
	return nil
}

func splitBytePrefixAll(s string, c byte) iter.Seq[string] {
	return func(yield func(prefix string) bool) {
		for i := range s {
			if i > 0 && s[i] == c {
				if !yield(s[:i]) {
					return
				}
			}
		}
		yield(s)
	}
}

// Add a directory named p, along with any missing parents.
func (tw *Writer) MkdirAll(p string, perm newc.Mode) error {
	p = strings.Trim(p, "/")
	if p == "" || p == "." {
		return nil
	}

	for prefix := range splitBytePrefixAll(p, '/') {
		if _, ok := tw.mkdirs[prefix]; ok {
			continue
		}

		var hdr = newc.Header{Mode: newc.Mode_Dir.WithPerms(perm)}
		if err := tw.WriteHeader(&hdr, prefix); err != nil {
			return err
		}
	}
	return nil
}

// Write a header and filename, respecting output alignment. NumLinks, Inode
// and FilenameSize are filled in when left at 0.
func (tw *Writer) WriteHeader(hdr *newc.Header, filename string) error {
	if err := tw.skipFileRemaining(); err != nil {
		return err
	}

	if hdr.Mode.Dir() {
		tw.mkdirs[filename] = struct{}{}
	}

	if hdr.NumLinks == 0 {
		hdr.NumLinks = 1
	}

	if hdr.Inode == 0 && filename != newc.TrailerFilename {
		hdr.Inode = tw.nextInode
		tw.nextInode++
	}

	if hdr.FilenameSize == 0 {
		hdr.FilenameSize = uint32(len(filename) + 1)
	}

	if err := tw.writeAlignment(4); err != nil {
		return err
	}

	if alignTo := int64(tw.dataAlignTo); alignTo > 0 {
		var fill = alignFill(tw.written+int64(newc.HeaderSize+len(filename)+1), alignTo)
		if fill%4 != 0 {
			return ErrBadDataAlignment
		}
		if err := tw.writePad(fill); err != nil {
			return err
		}
		tw.dataAlignTo = 0
	}

	hdr.HeaderOffset = int(tw.written)

	var text = hdr.AppendText(make([]byte, 0, newc.HeaderSize+len(filename)+1))
	text = append(text, filename...)
	text = append(text, 0)

	if err := tw.write(text); err != nil {
		return err
	}

	if err := tw.writeAlignment(4); err != nil {
		return err
	}

	hdr.DataOffset = int(tw.written)
	tw.fileRemaining = int64(hdr.DataSize)

	return nil
}

// Pad out the current file data and align the output for the next record.
func (tw *Writer) Flush() error {
	if err := tw.skipFileRemaining(); err != nil {
		return err
	}
	return tw.writeAlignment(4)
}

// Write the end-of-archive sentinel trailer entry.
func (tw *Writer) WriteTrailer() error {
	if err := tw.WriteHeader(&newc.Header{}, newc.TrailerFilename); err != nil {
		return err
	}
	clear(tw.mkdirs)
	return nil
}

// One archive member for [Archive].
type File struct {
	Name string
	Mode newc.Mode
	Data string
}

// A complete archive holding files, in order, followed by the trailer.
func Archive(t testing.TB, files ...File) []byte {
	t.Helper()

	var (
		buf bytes.Buffer
		tw  = NewWriter(&buf)
	)

	for _, f := range files {
		var mode = f.Mode
		if mode == 0 {
			mode = newc.Mode_File.WithPerms(0o644)
		}

		if dir := path.Dir(f.Name); !mode.Dir() && dir != "." {
			if err := tw.MkdirAll(dir, 0o755); err != nil {
				t.Fatalf("MkdirAll %s: %s", dir, err)
			}
		}

		var hdr = newc.Header{Mode: mode, DataSize: uint32(len(f.Data))}
		if err := tw.WriteHeader(&hdr, f.Name); err != nil {
			t.Fatalf("WriteHeader %s: %s", f.Name, err)
		}

		if _, err := io.WriteString(tw, f.Data); err != nil && len(f.Data) > 0 {
			t.Fatalf("Write %s: %s", f.Name, err)
		}
	}

	if err := tw.WriteTrailer(); err != nil {
		t.Fatalf("WriteTrailer: %s", err)
	}
	if err := tw.Flush(); err != nil {
		t.Fatalf("Flush: %s", err)
	}

	return buf.Bytes()
}
