//go:build !linux && !freebsd && !darwin

package journal

import "os"

// fdatasync falls back to a full fsync on platforms without fdatasync.
func fdatasync(fd int) error {
	f := os.NewFile(uintptr(fd), "journal")
	if f == nil {
		return os.ErrInvalid
	}
	// Do not close f: it shares the descriptor with the journal.
	return f.Sync()
}
