//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package bootimg

import (
	"errors"
	"os"
)

var errMapUnsupported = errors.New("bootimg: mmap not supported on this platform")

func mapFile(f *os.File, size int64) (*Image, error) { return nil, errMapUnsupported }
