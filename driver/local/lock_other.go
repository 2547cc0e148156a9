//go:build !unix

package local

import (
	"os"
)

// File locks are advisory on unix only.
func lockShared(*os.File) error    { return nil }
func lockExclusive(*os.File) error { return nil }
func unlock(*os.File) error        { return nil }

// HasSystemReadPermission reports whether path can be opened.
func (s *Storage) HasSystemReadPermission(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if info.IsDir() {
		f, err := os.Open(path)
		if err != nil {
			return false
		}
		f.Close()
		return true
	}
	return info.Mode().Perm()&0o444 != 0
}

// HasSystemWritePermission reports whether path carries a write bit.
func (s *Storage) HasSystemWritePermission(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().Perm()&0o222 != 0
}
