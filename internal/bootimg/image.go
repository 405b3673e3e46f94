// Package bootimg loads boot images into memory and splits them into the
// archives they are made of, as the kernel does with an initramfs: zero
// padding between archives is skipped, and each compressed stream is
// decompressed and walked before carrying on with whatever follows it.
//
// Decompression happens here, ahead of the parser; [newc.Reader] only ever
// sees plain archive bytes.
package bootimg

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"os"

	"go.pdmccormick.com/newc"
	"go.pdmccormick.com/newc/memiter"
)

var ErrUnknownData = errors.New("bootimg: unrecognised data in image")

// A boot image held in memory, either mapped from a file or supplied by the
// caller.
type Image struct {
	data  []byte
	unmap func() error
}

// Use b as the image. The caller keeps ownership.
func FromBytes(b []byte) *Image { return &Image{data: b} }

// Read all of r into memory.
func ReadFrom(r io.Reader) (*Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return FromBytes(data), nil
}

// Map the named file read only. Files that cannot be mapped, such as pipes or
// empty files, are read into memory instead.
func Open(name string) (*Image, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}

	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}

	if fi.Mode().IsRegular() && fi.Size() > 0 {
		if img, err := mapFile(f, fi.Size()); err == nil {
			return img, nil
		} else if !errors.Is(err, errMapUnsupported) {
			return nil, fmt.Errorf("mmap %s: %w", name, err)
		}
	}

	return ReadFrom(f)
}

func (img *Image) Bytes() []byte { return img.data }

// Release the mapping, if any. Every Range obtained from the image is invalid
// afterwards.
func (img *Image) Close() error {
	var err error
	if img.unmap != nil {
		err = img.unmap()
		img.unmap = nil
	}
	img.data = nil
	return err
}

// One archive within an image.
type Segment struct {
	Index       int            // Position of the segment within the image
	Offset      int            // Offset of the first header, within its containing buffer
	Compression newc.Lookahead // How the containing buffer was compressed, or [newc.UnknownLookahead] if it was not
	Archive     memiter.Range  // The archive, from its first header up to the end of its trailer
	Entries     int            // Number of entries, excluding the trailer
}

// A reader over the segment's archive.
func (seg *Segment) Reader() *newc.Reader { return newc.NewRangeReader(seg.Archive) }

// Whether the segment is an early microcode archive, which is kept
// uncompressed at the start of an image so the kernel can find it before
// anything else runs.
func (seg *Segment) Microcode() bool {
	for _, e := range seg.Reader().All() {
		if newc.IsMicrocode(e.Name) {
			return true
		}
	}
	return false
}

// Walk the archives that make up the image. The sequence ends after the last
// archive, or after yielding an error.
//
// Decompressed buffers are allocated on demand, and remain valid after the
// image is closed. Compressed streams found inside a decompressed buffer are
// followed up to [MaxNesting] levels deep.
func (img *Image) Segments() iter.Seq2[Segment, error] {
	return func(yield func(Segment, error) bool) {
		var w = walker{yield: yield}
		w.walk(img.data, newc.UnknownLookahead, 0)
	}
}

type walker struct {
	yield func(Segment, error) bool
	index int
}

// Yield the archives in data, descending into compressed streams. Returns false
// once the sequence has ended early, either by the consumer or on error.
func (w *walker) walk(data []byte, compression newc.Lookahead, depth int) bool {
	for offs := 0; ; {
		offs += newc.PaddingLen(data[offs:])

		switch la := newc.Sniff(data[offs:]); {
		case la == newc.EOF:
			return true

		case la == newc.CpioFile:
			var seg = Segment{Index: w.index, Offset: offs, Compression: compression}

			r := newc.NewRangeReader(memiter.Of(data).Slice(offs, len(data)))
			for range r.All() {
				seg.Entries++
			}

			if err := r.Err(); err != nil {
				return w.fail(seg, fmt.Errorf("segment %d: %w", w.index, err))
			}

			seg.Archive = memiter.Of(data).Slice(offs, offs+r.Offset())
			if !w.yield(seg, nil) {
				return false
			}

			offs += r.Offset()
			w.index++

		case la.Compression():
			var seg = Segment{Index: w.index, Offset: offs, Compression: la}

			if depth >= MaxNesting {
				return w.fail(seg, fmt.Errorf("segment %d: %s: %w", w.index, la, ErrTooDeep))
			}

			inflated, consumed, err := Decompressors.inflate(la, data[offs:])
			if err != nil {
				return w.fail(seg, fmt.Errorf("segment %d: %w", w.index, err))
			}

			if !w.walk(inflated, la, depth+1) {
				return false
			}

			offs += consumed

		default:
			return w.fail(Segment{Index: w.index, Offset: offs, Compression: compression}, fmt.Errorf("segment %d at offset %d: %w", w.index, offs, ErrUnknownData))
		}
	}
}

func (w *walker) fail(seg Segment, err error) bool {
	w.yield(seg, err)
	return false
}
