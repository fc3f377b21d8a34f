//go:build unix

package mmfile

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Map maps the file at path into memory read-only and returns its contents.
func Map(path string) ([]byte, func() error, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close() // safe before return; mapping keeps pages alive

	info, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}
	size := info.Size()
	if size == 0 {
		return []byte{}, func() error { return nil }, nil
	}
	if size > int64(^uint(0)>>1) {
		return nil, nil, fmt.Errorf("mmfile: file too large to map (%d bytes)", size)
	}
	return mapRange(int(f.Fd()), 0, int(size))
}

// MapRegion maps length bytes of the open file starting at off. The offset is
// rounded down to the page size internally; the returned slice starts at the
// requested offset. Used to map journal regions without pulling the whole
// file in.
func MapRegion(fd int, off int64, length int) ([]byte, func() error, error) {
	if length <= 0 {
		return nil, nil, fmt.Errorf("mmfile: non-positive region length %d", length)
	}
	pageSize := int64(unix.Getpagesize())
	aligned := off &^ (pageSize - 1)
	skew := int(off - aligned)

	data, cleanup, err := mapRange(fd, aligned, length+skew)
	if err != nil {
		return nil, nil, err
	}
	return data[skew:], cleanup, nil
}

func mapRange(fd int, off int64, length int) ([]byte, func() error, error) {
	data, err := unix.Mmap(fd, off, length, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() error {
		if data == nil {
			return nil
		}
		err := unix.Munmap(data)
		if errors.Is(err, unix.EINVAL) {
			// Treat double-unmap as no-op for callers.
			return nil
		}
		return err
	}
	return data, cleanup, nil
}
