//go:build linux || freebsd

package journal

import "golang.org/x/sys/unix"

// fdatasync performs file descriptor sync.
//
// On Linux/FreeBSD, fdatasync() provides sufficient guarantees: record
// appends never change file metadata other than size, which fdatasync
// covers.
func fdatasync(fd int) error {
	return unix.Fdatasync(fd)
}
