package filemanager

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"regexp"
	"strconv"
)

var rangeHeader = regexp.MustCompile(`^bytes=(\d+)-(\d+)?$`)

// ByteRange is an inclusive range of a file of Total bytes.
type ByteRange struct {
	Start int64
	End   int64
	Total int64
}

// Length returns the number of bytes in the range.
func (r ByteRange) Length() int64 {
	if r.Total == 0 {
		return 0
	}
	return r.End - r.Start + 1
}

// ContentRange formats the value of the Content-Range header.
func (r ByteRange) ContentRange() string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, r.Total)
}

// ParseRange resolves a Range header against a file of size bytes. An empty
// header selects the whole file and partial is false. Only a single
// "bytes=start-end" or "bytes=start-" range is supported; the end is
// inclusive and clamped to the last byte.
func ParseRange(header string, size int64) (rng ByteRange, partial bool, err error) {
	full := ByteRange{Start: 0, End: size - 1, Total: size}
	if size == 0 {
		full.End = 0
	}
	if header == "" {
		return full, false, nil
	}

	m := rangeHeader.FindStringSubmatch(header)
	if m == nil {
		return ByteRange{Total: size}, false, ErrRangeNotSatisfiable
	}

	start, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return ByteRange{Total: size}, false, ErrRangeNotSatisfiable
	}
	end := size - 1
	if m[2] != "" {
		end, err = strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			return ByteRange{Total: size}, false, ErrRangeNotSatisfiable
		}
		if start > end {
			return ByteRange{Total: size}, false, ErrRangeNotSatisfiable
		}
	}
	if start >= size {
		return ByteRange{Total: size}, false, ErrRangeNotSatisfiable
	}
	if end > size-1 {
		end = size - 1
	}

	return ByteRange{Start: start, End: end, Total: size}, true, nil
}

// RejectRange answers 416 and returns the matching error.
func RejectRange(w http.ResponseWriter, p string, size int64) error {
	w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
	w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
	return NewPathError("read", p, LabelRangeNotSatisfiable, ErrRangeNotSatisfiable)
}

// ServeRange writes the headers for rng and copies rng.Length bytes from r
// in chunks of opts.ChunkSize. r must be positioned at rng.Start.
func ServeRange(w http.ResponseWriter, r io.Reader, rng ByteRange, partial bool, contentType string, opts ReadOptions) error {
	h := w.Header()
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	h.Set("Content-Transfer-Encoding", "binary")
	h.Set("Content-Length", strconv.FormatInt(rng.Length(), 10))
	if opts.Disposition != "" && opts.Filename != "" {
		h.Set("Content-Disposition", mime.FormatMediaType(opts.Disposition, map[string]string{"filename": opts.Filename}))
	}

	status := http.StatusOK
	if partial {
		h.Set("Content-Range", rng.ContentRange())
		h.Set("Accept-Ranges", "bytes")
		status = http.StatusPartialContent
	}
	w.WriteHeader(status)

	return copyChunked(w, r, rng.Length(), opts.chunkSize())
}

func copyChunked(w io.Writer, r io.Reader, n int64, chunk int) error {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, chunk)
	var written int64
	for written < n {
		want := min(int64(chunk), n-written)
		read, err := io.ReadFull(r, buf[:want])
		if read > 0 {
			if _, werr := w.Write(buf[:read]); werr != nil {
				return werr
			}
			if flusher != nil {
				flusher.Flush()
			}
			written += int64(read)
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return nil
			}
			return err
		}
	}
	return nil
}
