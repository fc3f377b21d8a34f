//go:build darwin

package journal

import "golang.org/x/sys/unix"

// fdatasync performs file descriptor sync.
//
// macOS fsync() only flushes to the drive cache; F_FULLFSYNC ensures data
// reaches the physical disk, which terminal journal records require for
// power-loss durability.
func fdatasync(fd int) error {
	_, err := unix.FcntlInt(uintptr(fd), unix.F_FULLFSYNC, 0)
	return err
}
