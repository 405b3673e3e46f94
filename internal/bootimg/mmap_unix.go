//go:build linux || darwin || freebsd || netbsd || openbsd

package bootimg

import (
	"errors"
	"math"
	"os"

	"golang.org/x/sys/unix"
)

var errMapUnsupported = errors.New("bootimg: file too large to map")

func mapFile(f *os.File, size int64) (*Image, error) {
	if size > math.MaxInt {
		return nil, errMapUnsupported
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		if errors.Is(err, unix.ENODEV) || errors.Is(err, unix.EINVAL) {
			return nil, errMapUnsupported
		}
		return nil, err
	}

	return &Image{
		data:  data,
		unmap: func() error { return unix.Munmap(data) },
	}, nil
}
