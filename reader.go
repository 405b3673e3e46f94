package newc

import (
	"fmt"
	"io"
	"iter"

	"go.pdmccormick.com/newc/memiter"
)

// One archive member. Name and Contents alias the archive buffer and share its
// lifetime.
type Entry struct {
	Name     memiter.Range // Filename, excluding the trailing 0
	Contents memiter.Range // File data, Header.DataSize bytes long
	Mode     Mode
	Header   Header
}

// Formats the entry similarly to the long listing output of `ls -l`.
func (e Entry) String() string { return fmt.Sprintf("%s  %s", &e.Header, e.Name) }

type state int

const (
	stateStart state = iota
	stateHeader
	stateName
	stateContentPad
	stateContent
	stateContentEndPad
	stateDone
	stateError
)

// Alignment of filenames and file data, relative to the start of the archive.
const recordAlignment = 4

// Reads a newc archive held entirely in memory. Nothing is copied: every
// [Entry] refers back into the archive buffer.
//
// A Reader is not safe for concurrent use, but any number of Readers may share
// one buffer.
type Reader struct {
	it    memiter.Iter
	state state
	err   error

	hdr      Header
	name     memiter.Range
	contents memiter.Range
}

// Never fails; archive structure is validated one record at a time by
// [Reader.Next].
func NewReader(archive []byte) *Reader { return NewRangeReader(memiter.Of(archive)) }

// Like [NewReader], for an archive that starts at r. Offsets and alignment are
// measured from the start of r.
func NewRangeReader(r memiter.Range) *Reader {
	var rd Reader
	rd.Reset(r)
	return &rd
}

// Discard all state and start reading the archive at r.
func (r *Reader) Reset(archive memiter.Range) {
	*r = Reader{}
	r.it.Reset(archive)
}

// Decode the next entry.
//
// Returns io.EOF once the trailer has been consumed, and on every call after.
// Otherwise returns a [*FormatError] matching [ErrMalformed]; the error is
// sticky and the reader never advances again.
func (r *Reader) Next() (Entry, error) {
	for {
		switch r.state {
		case stateDone:
			return Entry{}, io.EOF

		case stateError:
			return Entry{}, r.err

		case stateStart:
			r.hdr = Header{HeaderOffset: r.it.Offset()}
			r.name = memiter.Range{}
			if r.it.Empty() {
				return r.fail(Exhaustion, ErrMissingTrailer)
			}
			r.state = stateHeader

		case stateHeader:
			text, err := r.it.Take(HeaderSize)
			if err != nil {
				return r.fail(Truncation, err)
			}

			hdr, err := ParseHeader(text.Bytes())
			if err != nil {
				return r.fail(Structural, err)
			}

			hdr.HeaderOffset = r.hdr.HeaderOffset
			r.hdr = hdr
			r.state = stateName

		case stateName:
			if r.hdr.FilenameSize == 0 {
				return r.fail(Structural, ErrEmptyFilename)
			}

			name, err := r.take(r.hdr.FilenameSize)
			if err != nil {
				return r.fail(Truncation, err)
			}

			if b := name.Bytes(); b[len(b)-1] != 0 {
				return r.fail(Structural, ErrMalformedFilename)
			}

			r.name = name.Slice(0, name.Len()-1)
			r.state = stateContentPad

		case stateContentPad:
			if err := r.align(); err != nil {
				return r.fail(Truncation, err)
			}
			r.state = stateContent

		case stateContent:
			r.hdr.DataOffset = r.it.Offset()

			contents, err := r.take(r.hdr.DataSize)
			if err != nil {
				return r.fail(Truncation, err)
			}

			r.contents = contents
			r.state = stateContentEndPad

		case stateContentEndPad:
			if err := r.align(); err != nil {
				return r.fail(Truncation, err)
			}

			if r.name.EqualString(TrailerFilename) {
				r.state = stateDone
				continue
			}

			r.state = stateStart
			return Entry{
				Name:     r.name,
				Contents: r.contents,
				Mode:     r.hdr.Mode,
				Header:   r.hdr,
			}, nil
		}
	}
}

func (r *Reader) fail(kind Kind, err error) (Entry, error) {
	r.err = &FormatError{Offset: r.hdr.HeaderOffset, Kind: kind, Err: err}
	r.state = stateError
	return Entry{}, r.err
}

// Take a header declared length, which may not fit an int on 32-bit
// platforms.
func (r *Reader) take(n uint32) (memiter.Range, error) {
	if rem := r.it.Remaining(); uint64(n) > uint64(rem) {
		return memiter.Range{}, &memiter.ShortError{Want: int(min(uint64(n), uint64(^uint(0)>>1))), Have: rem}
	}
	return r.it.Take(int(n))
}

// Skip padding up to the next record boundary. The trailer is allowed to stop
// short of its final padding at the very end of input, as some tools emit it
// that way and nothing after it is read.
func (r *Reader) align() error {
	err := r.it.Align(recordAlignment)
	if err != nil && r.name.EqualString(TrailerFilename) {
		return r.it.Advance(r.it.Remaining())
	}
	return err
}

// Provides a sequence iterator that is equivalent to calling [Reader.Next]
// until io.EOF or an error. Check [Reader.Err] afterwards.
func (r *Reader) All() iter.Seq2[int, Entry] {
	return func(yield func(index int, entry Entry) bool) {
		for i := 0; ; i++ {
			entry, err := r.Next()
			if err != nil {
				return
			}

			if !yield(i, entry) {
				return
			}
		}
	}
}

// The error that stopped the reader, or nil if it is still going or reached
// the trailer.
func (r *Reader) Err() error { return r.err }

// Whether the trailer has been consumed.
func (r *Reader) Done() bool { return r.state == stateDone }

// Bytes not yet consumed. After the trailer these are the trailing bytes of
// the input, which the reader never inspects.
func (r *Reader) Remaining() int { return r.it.Remaining() }

// Bytes consumed from the start of the archive.
func (r *Reader) Offset() int { return r.it.Offset() }

// Everything after the current position. Once [Reader.Done], this is whatever
// followed the trailer, such as a further concatenated archive.
func (r *Reader) Rest() memiter.Range { return r.it.Rest() }
