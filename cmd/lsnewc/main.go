// List, inspect or extract a single file from a boot image made of one or more
// newc archives, optionally compressed.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"al.essio.dev/pkg/shellescape"

	"go.pdmccormick.com/newc"
	"go.pdmccormick.com/newc/internal/bootimg"
)

var errNotFound = errors.New("no such entry")

func main() {
	var (
		inFlag      = flag.String("i", "", "read boot image from `file`name (leave blank for stdin)")
		hideFlag    = flag.Bool("T", false, "hide segment headings")
		jsonFlag    = flag.Bool("json", false, "emit one JSON object per entry")
		catFlag     = flag.String("cat", "", "write the contents of entry `name` to stdout")
		quoteFlag   = flag.Bool("q", false, "shell quote filenames")
		maxSizeFlag = flag.Int64("maxinflate", bootimg.MaxInflatedSize, "limit decompressed segments to `bytes`")
	)

	flag.Parse()

	bootimg.MaxInflatedSize = *maxSizeFlag

	var (
		img *bootimg.Image
		err error
	)

	if name := *inFlag; name != "" {
		img, err = bootimg.Open(name)
	} else {
		img, err = bootimg.ReadFrom(os.Stdin)
	}
	if err != nil {
		log.Fatalf("Open: %s", err)
	}

	defer img.Close()

	var lister = Lister{
		W:           os.Stdout,
		HideHeading: *hideFlag,
		JSON:        *jsonFlag,
		Quote:       *quoteFlag,
	}

	if name := *catFlag; name != "" {
		err = Cat(os.Stdout, img, name)
	} else {
		err = lister.List(img)
	}

	if err != nil {
		log.Fatal(err)
	}
}

// Write the contents of the first entry called name.
func Cat(w io.Writer, img *bootimg.Image, name string) error {
	for seg, err := range img.Segments() {
		if err != nil {
			return err
		}

		for _, e := range seg.Reader().All() {
			if e.Name.EqualString(name) {
				_, err := w.Write(e.Contents.Bytes())
				return err
			}
		}
	}
	return fmt.Errorf("%s: %w", name, errNotFound)
}

type Lister struct {
	W           io.Writer
	HideHeading bool
	JSON        bool
	Quote       bool
}

// The JSON form of one entry.
type EntryRecord struct {
	Segment     int
	Compression string `json:",omitempty"`
	Name        string
	Mode        string
	RawMode     uint32
	Uid         uint32
	Gid         uint32
	NumLinks    uint32
	Mtime       int64
	Size        uint32
	Offset      int
	Target      string `json:",omitempty"`
}

func (l *Lister) name(e newc.Entry) string {
	if l.Quote {
		return shellescape.Quote(e.Name.String())
	}
	return e.Name.String()
}

func (l *Lister) List(img *bootimg.Image) error {
	var enc = json.NewEncoder(l.W)

	for seg, err := range img.Segments() {
		if err != nil {
			return err
		}

		if !l.HideHeading && !l.JSON {
			l.heading(&seg)
		}

		for _, e := range seg.Reader().All() {
			var target string
			if e.Mode.Symlink() {
				target = e.Contents.String()
			}

			if l.JSON {
				var rec = EntryRecord{
					Segment:  seg.Index,
					Name:     e.Name.String(),
					Mode:     e.Mode.String(),
					RawMode:  uint32(e.Mode),
					Uid:      e.Header.Uid,
					Gid:      e.Header.Gid,
					NumLinks: e.Header.NumLinks,
					Mtime:    e.Header.Mtime.Unix(),
					Size:     e.Header.DataSize,
					Offset:   e.Header.HeaderOffset,
					Target:   target,
				}
				if seg.Compression.Compression() {
					rec.Compression = seg.Compression.String()
				}
				if err := enc.Encode(&rec); err != nil {
					return fmt.Errorf("json: %w", err)
				}
				continue
			}

			var suffix string
			if target != "" {
				suffix = " -> " + target
			}

			fmt.Fprintf(l.W, "%s  %s%s\n", &e.Header, l.name(e), suffix)
		}
	}

	return nil
}

func (l *Lister) heading(seg *bootimg.Segment) {
	var desc = "archive"
	if seg.Compression.Compression() {
		desc = seg.Compression.String() + " compressed archive"
	}
	if seg.Microcode() {
		desc = "early microcode " + desc
	}

	if seg.Index > 0 {
		fmt.Fprintln(l.W)
	}
	fmt.Fprintf(l.W, "# %s %d, %d entries, %d bytes\n", desc, seg.Index, seg.Entries, seg.Archive.Len())
}
