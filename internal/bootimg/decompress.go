package bootimg

import (
	"compress/bzip2"
	"compress/gzip"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"

	"go.pdmccormick.com/newc"
)

var (
	ErrNoDecompressor = errors.New("bootimg: no suitable Decompressor found")
	ErrTooLarge       = errors.New("bootimg: decompressed segment exceeds MaxInflatedSize")
	ErrTooDeep        = errors.New("bootimg: compressed streams nested deeper than MaxNesting")
	errReservedBlock  = errors.New("bootimg: zstd frame uses a reserved block type")
)

// A Decompressor returns a reader producing the decompressed form of input.
// If the returned reader is also an [io.Closer] it is closed once drained.
//
// The input is an [io.ByteReader] positioned at the start of one compressed
// stream. Decompressors should stop reading at the end of that stream, so that
// whatever follows it in the image can be walked in turn.
type Decompressor func(input io.Reader) (io.Reader, error)

// Use the [newc.Lookahead] token to select a suitable [Decompressor].
type DecompressorMap map[newc.Lookahead]Decompressor

// Decompressors consulted by [Image.Segments] when compressed data follows an
// archive. LZMA, LZO and LZ4 images are recognised but have no decompressor.
//
// Gzip members and zstd frames may be followed by anything the image can hold.
// Bzip2 and xz streams read on looking for a continuation stream, so they must
// end the image (xz allows its own zero stream padding after them).
var Decompressors = DecompressorMap{
	newc.Gzip:  GzipReader,
	newc.Bzip2: Bzip2Reader,
	newc.Zstd:  ZstdReader,
	newc.Xz:    XzReader,
}

// Upper bound on the size of one decompressed segment.
var MaxInflatedSize int64 = 1 << 30

// How many compressed streams may enclose one another.
var MaxNesting = 4

// A [Decompressor] using [compress/gzip.NewReader]. Only one member is read;
// [Image.Segments] picks up any member that follows as a further stream.
func GzipReader(r io.Reader) (io.Reader, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, err
	}
	zr.Multistream(false)
	return zr, nil
}

// A [Decompressor] using [compress/bzip2.NewReader].
func Bzip2Reader(r io.Reader) (io.Reader, error) { return bzip2.NewReader(r), nil }

// A [Decompressor] using the [github.com/ulikunitz/xz] package.
func XzReader(r io.Reader) (io.Reader, error) { return xz.NewReader(r) }

// A [Decompressor] using [github.com/klauspost/compress/zstd].
func ZstdReader(r io.Reader) (io.Reader, error) {
	dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, err
	}
	return dec.IOReadCloser(), nil
}

// Decompress the stream at the start of compressed into memory, reporting how
// many bytes of compressed it took up.
func (m DecompressorMap) inflate(la newc.Lookahead, compressed []byte) (data []byte, consumed int, err error) {
	dec, ok := m[la]
	if !ok {
		return nil, 0, fmt.Errorf("%s: %w", la, ErrNoDecompressor)
	}

	if la == newc.Zstd {
		n, err := zstdFrameLen(compressed)
		if err != nil {
			return nil, 0, fmt.Errorf("%s: %w", la, err)
		}
		compressed = compressed[:n]
	}

	var sr = sliceReader{p: compressed}

	dr, err := dec(&sr)
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", la, err)
	}

	if closer, ok := dr.(io.Closer); ok {
		defer func() {
			err = errors.Join(err, closer.Close())
		}()
	}

	data, err = io.ReadAll(io.LimitReader(dr, MaxInflatedSize+1))
	if err != nil {
		return nil, 0, fmt.Errorf("%s: %w", la, err)
	}

	if int64(len(data)) > MaxInflatedSize {
		return nil, 0, ErrTooLarge
	}

	return data, len(compressed) - len(sr.p), nil
}

// Length of the zstd frame at the start of p, found by walking its frame and
// block headers (RFC 8878 section 3.1.1). The decoder is handed exactly one
// frame, as it reports a bad magic number for anything it finds after one.
func zstdFrameLen(p []byte) (int, error) {
	if len(p) < 5 {
		return 0, io.ErrUnexpectedEOF
	}

	var (
		fhd    = p[4]
		single = fhd&0x20 != 0
		n      = 5
	)

	if !single {
		n++ // window descriptor
	}
	n += [4]int{0, 1, 2, 4}[fhd&0x03]

	switch fcs := fhd >> 6; {
	case fcs == 0 && single:
		n++
	case fcs > 0:
		n += 1 << fcs
	}

	for last := false; !last; {
		if len(p) < n+3 {
			return 0, io.ErrUnexpectedEOF
		}

		bh := uint32(p[n]) | uint32(p[n+1])<<8 | uint32(p[n+2])<<16
		n += 3
		last = bh&1 != 0

		switch bh >> 1 & 0x03 {
		case 0, 2: // raw, compressed
			n += int(bh >> 3)
		case 1: // RLE
			n++
		default:
			return 0, errReservedBlock
		}
	}

	if fhd&0x04 != 0 {
		n += 4 // content checksum
	}

	if n > len(p) {
		return 0, io.ErrUnexpectedEOF
	}
	return n, nil
}

// Reads a slice without taking a copy of it. Being an [io.ByteReader] keeps
// the gzip and bzip2 readers from buffering ahead, so what remains of p after
// decompression is exactly what followed the stream.
type sliceReader struct {
	p []byte
}

func (r *sliceReader) Read(buf []byte) (int, error) {
	if len(r.p) == 0 {
		return 0, io.EOF
	}
	n := copy(buf, r.p)
	r.p = r.p[n:]
	return n, nil
}

func (r *sliceReader) ReadByte() (byte, error) {
	if len(r.p) == 0 {
		return 0, io.EOF
	}
	b := r.p[0]
	r.p = r.p[1:]
	return b, nil
}
