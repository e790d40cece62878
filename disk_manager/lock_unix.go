//go:build !windows

package disk_manager

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// lockFile acquires an exclusive advisory lock on the backing file.
// Returns ErrDatabaseLocked if another open file description already holds it.
func lockFile(f *os.File) error {
	err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		if errors.Is(err, unix.EWOULDBLOCK) {
			return ErrDatabaseLocked
		}
		return err
	}
	return nil
}

func unlockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}

func syncFile(f *os.File) error {
	return unix.Fsync(int(f.Fd()))
}
