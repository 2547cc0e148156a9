//go:build unix

package local

import (
	"os"

	"golang.org/x/sys/unix"
)

func lockShared(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_SH)
}

func lockExclusive(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_EX)
}

func unlock(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}

// HasSystemReadPermission reports whether the process may read path.
func (s *Storage) HasSystemReadPermission(path string) bool {
	return unix.Access(path, unix.R_OK) == nil
}

// HasSystemWritePermission reports whether the process may modify path.
// Creating entries in a folder also needs the execute bit.
func (s *Storage) HasSystemWritePermission(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	mode := uint32(unix.W_OK)
	if info.IsDir() {
		mode |= unix.X_OK
	}
	return unix.Access(path, mode) == nil
}
