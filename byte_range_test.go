package filemanager

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRange(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		size    int64
		want    ByteRange
		partial bool
		wantErr bool
	}{
		{"no header", "", 100, ByteRange{0, 99, 100}, false, false},
		{"empty file", "", 0, ByteRange{0, 0, 0}, false, false},
		{"closed range", "bytes=0-9", 100, ByteRange{0, 9, 100}, true, false},
		{"open range", "bytes=90-", 100, ByteRange{90, 99, 100}, true, false},
		{"end clamped", "bytes=50-500", 100, ByteRange{50, 99, 100}, true, false},
		{"single byte", "bytes=99-99", 100, ByteRange{99, 99, 100}, true, false},
		{"start past end", "bytes=100-", 100, ByteRange{}, false, true},
		{"inverted", "bytes=10-5", 100, ByteRange{}, false, true},
		{"suffix form", "bytes=-10", 100, ByteRange{}, false, true},
		{"multiple ranges", "bytes=0-1,5-6", 100, ByteRange{}, false, true},
		{"other unit", "items=0-1", 100, ByteRange{}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rng, partial, err := ParseRange(tt.header, tt.size)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrRangeNotSatisfiable)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, rng)
			assert.Equal(t, tt.partial, partial)
		})
	}
}

func TestByteRange(t *testing.T) {
	rng := ByteRange{Start: 10, End: 19, Total: 100}
	assert.Equal(t, int64(10), rng.Length())
	assert.Equal(t, "bytes 10-19/100", rng.ContentRange())
	assert.Equal(t, int64(0), ByteRange{}.Length())
}

func TestServeRange(t *testing.T) {
	body := "0123456789abcdefghij"

	t.Run("partial", func(t *testing.T) {
		rng, partial, err := ParseRange("bytes=5-9", int64(len(body)))
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		err = ServeRange(rec, strings.NewReader(body[5:]), rng, partial, "text/plain", ReadOptions{ChunkSize: 2})
		require.NoError(t, err)

		assert.Equal(t, http.StatusPartialContent, rec.Code)
		assert.Equal(t, "56789", rec.Body.String())
		assert.Equal(t, "5", rec.Header().Get("Content-Length"))
		assert.Equal(t, "bytes 5-9/20", rec.Header().Get("Content-Range"))
		assert.Equal(t, "bytes", rec.Header().Get("Accept-Ranges"))
		assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"))
	})

	t.Run("full attachment", func(t *testing.T) {
		rng, partial, err := ParseRange("", int64(len(body)))
		require.NoError(t, err)

		rec := httptest.NewRecorder()
		opts := ReadOptions{Disposition: DispositionAttachment, Filename: "a b.txt"}
		require.NoError(t, ServeRange(rec, strings.NewReader(body), rng, partial, "", opts))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, body, rec.Body.String())
		assert.Empty(t, rec.Header().Get("Content-Range"))
		assert.Equal(t, `attachment; filename="a b.txt"`, rec.Header().Get("Content-Disposition"))
	})

	t.Run("short reader", func(t *testing.T) {
		rec := httptest.NewRecorder()
		rng := ByteRange{Start: 0, End: 9, Total: 10}
		require.NoError(t, ServeRange(rec, strings.NewReader("abc"), rng, false, "", ReadOptions{}))
		assert.Equal(t, "abc", rec.Body.String())
	})
}

func TestRejectRange(t *testing.T) {
	rec := httptest.NewRecorder()
	err := RejectRange(rec, "/a.txt", 42)

	require.ErrorIs(t, err, ErrRangeNotSatisfiable)
	assert.Equal(t, LabelRangeNotSatisfiable, LabelOf(err))
	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, rec.Code)
	assert.Equal(t, "bytes */42", rec.Header().Get("Content-Range"))
}
