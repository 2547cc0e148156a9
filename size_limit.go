package filemanager

import (
	"fmt"
	"io"
)

// SizeLimitReader restricts the number of bytes read and returns an error if
// the limit is exceeded. The error wraps ErrSizeLimit.
type SizeLimitReader struct {
	R     io.Reader
	Limit int64
	N     int64
}

func (l *SizeLimitReader) Read(p []byte) (n int, err error) {
	n, err = l.R.Read(p)
	l.N += int64(n)
	if l.Limit > 0 && l.N > l.Limit {
		return n, fmt.Errorf("%w: more than %d bytes", ErrSizeLimit, l.Limit)
	}
	return n, err
}

// getStreamSize tries to get the size of a seekable stream
func getStreamSize(seeker io.Seeker) (int64, error) {
	current, err := seeker.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	end, err := seeker.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := seeker.Seek(current, io.SeekStart); err != nil {
		return 0, err
	}
	return end - current, nil
}
