package newc

import (
	"fmt"

	"go.pdmccormick.com/newc/internal/xbytes"
)

// What a boot image holds at a given offset, judged from its leading bytes:
// an archive header, zero padding between archives, or the start of a
// compressed stream. The compressed kinds are those the kernel can be built to
// unpack (its RD_ options, see [Linux kernel usr/Kconfig]).
//
// [Linux kernel usr/Kconfig]: https://git.kernel.org/pub/scm/linux/kernel/git/torvalds/linux.git/tree/usr/Kconfig
type Lookahead int

const (
	UnknownLookahead Lookahead = iota
	EOF                        // Nothing left
	Padding                    // A zero byte
	CpioFile                   // A newc header
	Gzip
	Bzip2
	Lzma
	Xz
	Lzo
	Lz4
	Zstd
)

var lookaheadNames = [...]string{
	UnknownLookahead: "unknown",
	EOF:              "EOF",
	Padding:          "padding",
	CpioFile:         "cpiofile",
	Gzip:             "gzip",
	Bzip2:            "bzip2",
	Lzma:             "lzma",
	Xz:               "xz",
	Lzo:              "lzo",
	Lz4:              "lz4",
	Zstd:             "zstd",
}

// Leading bytes of each compressed stream, as matched by the kernel's
// decompress_method (lib/decompress.c). Gzip has an old and a new form.
var signatures = []struct {
	prefix string
	la     Lookahead
}{
	{"\x1f\x8b", Gzip},
	{"\x1f\x9e", Gzip},
	{"BZ", Bzip2},
	{"\x5d\x00", Lzma},
	{"\xfd7", Xz},
	{"\x89L", Lzo},
	{"\x02\x21", Lz4},
	{"\x28\xb5", Zstd},
}

// Determine what kind of data starts at p. Only a newc header with either
// magic value is reported as [CpioFile]; [Reader] still rejects 070702.
func Sniff(p []byte) Lookahead {
	switch {
	case len(p) == 0:
		return EOF
	case p[0] == 0:
		return Padding
	case len(p) >= magicSize:
		if m := p[:magicSize]; xbytes.EqualString(m, Magic_070701) || xbytes.EqualString(m, Magic_070702) {
			return CpioFile
		}
	}

	if len(p) >= 2 {
		for _, sig := range signatures {
			if string(p[:2]) == sig.prefix {
				return sig.la
			}
		}
	}

	return UnknownLookahead
}

// Count the leading zero bytes of p.
func PaddingLen(p []byte) int {
	for i, b := range p {
		if b != 0 {
			return i
		}
	}
	return len(p)
}

// Whether la is one of the compressed stream kinds, [Gzip] through [Zstd].
func (la Lookahead) Compression() bool { return la >= Gzip && la <= Zstd }

func (la Lookahead) String() string {
	if la >= 0 && int(la) < len(lookaheadNames) {
		return lookaheadNames[la]
	}
	return fmt.Sprintf("Lookahead(%d)", int(la))
}
