package filemanager

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateChecksum(t *testing.T) {
	sum, err := CalculateChecksum(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, "ef46db3751d8e999", sum)

	a, err := CalculateChecksum(strings.NewReader("hello"))
	require.NoError(t, err)
	b, err := CalculateChecksum(strings.NewReader("hello!"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	h := NewHasher()
	_, _ = h.Write([]byte("hello"))
	assert.Equal(t, a, HexSum(h), "streaming and one-shot digests agree")
}

func TestSizeLimitReader(t *testing.T) {
	tests := []struct {
		name    string
		content string
		limit   int64
		wantErr bool
	}{
		{"under limit", "abc", 5, false},
		{"at limit", "abcde", 5, false},
		{"over limit", "abcdef", 5, true},
		{"no limit", strings.Repeat("x", 1000), 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			r := &SizeLimitReader{R: strings.NewReader(tt.content), Limit: tt.limit}
			_, err := io.Copy(&buf, r)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrSizeLimit)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.content, buf.String())
			assert.Equal(t, int64(len(tt.content)), r.N)
		})
	}
}

func TestGetStreamSize(t *testing.T) {
	r := strings.NewReader("0123456789")
	_, err := r.Seek(4, io.SeekStart)
	require.NoError(t, err)

	n, err := getStreamSize(r)
	require.NoError(t, err)
	assert.Equal(t, int64(6), n)

	pos, err := r.Seek(0, io.SeekCurrent)
	require.NoError(t, err)
	assert.Equal(t, int64(4), pos, "position is restored")
}
