package newc

import (
	"errors"
	"fmt"
	"time"

	"go.pdmccormick.com/newc/internal/xbytes"
)

// Errors related to [Header].
var (
	ErrBadHeaderMagic  = errors.New("newc: header contains a bad magic value")
	ErrChecksumVariant = errors.New("newc: checksum variant 070702 is not supported")
	ErrShortHeader     = errors.New("newc: header text is not 110 bytes")
)

// An invalid hexadecimal character was found at an offset relative to the
// start of a [Header].
type InvalidByteError = xbytes.InvalidByteError

func invalidByteError(k int) error { var err = InvalidByteError(k); return &err }

// Magic identifiers for cpio archive member file headers. Only [Magic_070701]
// is accepted by [Reader].
const (
	Magic_070701 = `070701`
	Magic_070702 = `070702`
)

// The sentinel filename that indicates end-of-archive.
const TrailerFilename = "TRAILER!!!"

// The size of a member file header within a cpio archive.
const HeaderSize = 110

const (
	magicSize = 6
	fieldSize = 8
	numFields = 13
)

// 6 bytes magic, 13 fields at 8 bytes each
var _ [HeaderSize]byte = [magicSize + numFields*fieldSize]byte{}

// Fixed field indexes, in header order.
const (
	fieldInode = iota
	fieldMode
	fieldUid
	fieldGid
	fieldNumLinks
	fieldMtime
	fieldDataSize
	fieldMajor
	fieldMinor
	fieldRMajor
	fieldRMinor
	fieldFilenameSize
	fieldChecksum
)

// Header for a file member within a cpio archive. The filename is not part of
// the header; see [Entry.Name].
type Header struct {
	HeaderOffset int // Offset of the header from the start of the archive
	DataOffset   int // Offset of the file data from the start of the archive

	Inode        uint32    // File inode number
	Mode         Mode      // File mode and permission bits
	Uid          uint32    // File owner user id
	Gid          uint32    // File owner group id
	NumLinks     uint32    // Number of hard links
	Mtime        time.Time // Modification time (seconds since Unix epoch)
	DataSize     uint32    // Size of file data following the header
	Major        uint32    // Major part of file device number
	Minor        uint32    // Minor part of file device number
	RMajor       uint32    // Major part of device node reference
	RMinor       uint32    // Minor part of device node reference
	FilenameSize uint32    // Length of filename field (including trailing 0)
	Checksum     uint32    // Carried through as read, never verified
}

func field(text []byte, i int) []byte {
	var offs = magicSize + fieldSize*i
	return text[offs : offs+fieldSize]
}

// Decode the 110 byte textual form of a header. Every field is checked to be
// hexadecimal, including those which do not affect parsing.
//
// Returns [ErrBadHeaderMagic] or [ErrChecksumVariant] for an unusable magic
// value, and an [InvalidByteError] holding the offset within text of the first
// bad hex digit.
func ParseHeader(text []byte) (hdr Header, err error) {
	if len(text) != HeaderSize {
		return hdr, ErrShortHeader
	}

	switch magic := text[:magicSize]; {
	case xbytes.EqualString(magic, Magic_070701):
	case xbytes.EqualString(magic, Magic_070702):
		return hdr, ErrChecksumVariant
	default:
		return hdr, ErrBadHeaderMagic
	}

	var bin [numFields]uint32
	for i := range bin {
		v, err := xbytes.ParseHex32(field(text, i))
		if err != nil {
			var ibe *InvalidByteError
			if errors.As(err, &ibe) {
				return hdr, invalidByteError(magicSize + fieldSize*i + int(*ibe))
			}
			return hdr, err
		}
		bin[i] = v
	}

	hdr = Header{
		Inode:        bin[fieldInode],
		Mode:         Mode(bin[fieldMode]),
		Uid:          bin[fieldUid],
		Gid:          bin[fieldGid],
		NumLinks:     bin[fieldNumLinks],
		Mtime:        time.Unix(int64(bin[fieldMtime]), 0),
		DataSize:     bin[fieldDataSize],
		Major:        bin[fieldMajor],
		Minor:        bin[fieldMinor],
		RMajor:       bin[fieldRMajor],
		RMinor:       bin[fieldRMinor],
		FilenameSize: bin[fieldFilenameSize],
		Checksum:     bin[fieldChecksum],
	}

	return hdr, nil
}

func (hdr *Header) mtimeUnix() uint32 {
	if k := hdr.Mtime.Unix(); k < 0 {
		return 0
	} else {
		return uint32(k)
	}
}

// Append the 110 byte textual form of the header, using [Magic_070701].
// FilenameSize is written as is; callers producing archives must set it to
// the filename length plus the trailing 0.
func (hdr *Header) AppendText(dst []byte) []byte {
	var bin = [numFields]uint32{
		fieldInode:        hdr.Inode,
		fieldMode:         uint32(hdr.Mode),
		fieldUid:          hdr.Uid,
		fieldGid:          hdr.Gid,
		fieldNumLinks:     hdr.NumLinks,
		fieldMtime:        hdr.mtimeUnix(),
		fieldDataSize:     hdr.DataSize,
		fieldMajor:        hdr.Major,
		fieldMinor:        hdr.Minor,
		fieldRMajor:       hdr.RMajor,
		fieldRMinor:       hdr.RMinor,
		fieldFilenameSize: hdr.FilenameSize,
		fieldChecksum:     hdr.Checksum,
	}

	dst = append(dst, Magic_070701...)
	for _, v := range bin {
		dst = xbytes.AppendHex32(dst, v)
	}
	return dst
}

// Formats the header similarly to the long listing output of `ls -l`, minus
// the filename.
func (hdr *Header) String() string {
	return fmt.Sprintf("%s %4d  %4d %4d  %8d  %s", hdr.Mode, hdr.NumLinks, hdr.Uid, hdr.Gid, hdr.DataSize, hdr.Mtime.UTC().Format(time.DateTime))
}
