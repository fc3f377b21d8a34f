//go:build !unix

// Package mmfile provides platform-specific helpers for memory-mapping
// journal files.
package mmfile

import (
	"fmt"
	"os"
)

// Map reads the entire file when mmap is not available.
func Map(path string) ([]byte, func() error, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, func() error { return nil }, err
	}
	return data, func() error { return nil }, nil
}

// MapRegion reads the region into a heap buffer when mmap is not available.
func MapRegion(fd int, off int64, length int) ([]byte, func() error, error) {
	if length <= 0 {
		return nil, nil, fmt.Errorf("mmfile: non-positive region length %d", length)
	}
	f := os.NewFile(uintptr(fd), "journal")
	data := make([]byte, length)
	n, err := f.ReadAt(data, off)
	if err != nil && n < length {
		return nil, nil, err
	}
	return data[:n], func() error { return nil }, nil
}
