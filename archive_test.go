package filemanager

import (
	"archive/zip"
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type zipEntry struct {
	name    string
	content []byte
}

func buildZip(t *testing.T, entries ...zipEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, e := range entries {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: e.name, Method: zip.Deflate})
		require.NoError(t, err)
		_, err = w.Write(e.content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func openZip(t *testing.T, o *ZipOpener, data []byte) (Archive, error) {
	t.Helper()
	return o.OpenArchive(bytes.NewReader(data), int64(len(data)))
}

func TestZipOpener_Entries(t *testing.T) {
	data := buildZip(t,
		zipEntry{name: "docs/"},
		zipEntry{name: "docs//a.txt", content: []byte("first")},
		zipEntry{name: "b.txt", content: []byte("second")},
	)

	a, err := openZip(t, DefaultZipOpener(), data)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, []ArchiveEntry{
		{Name: "docs/", IsDir: true},
		{Name: "docs/a.txt", Size: 5},
		{Name: "b.txt", Size: 6},
	}, a.Entries())

	r, err := a.Open("docs/a.txt")
	require.NoError(t, err)
	content, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, "first", string(content))

	_, err = a.Open("missing.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestZipOpener_Limits(t *testing.T) {
	zeros := make([]byte, 1<<20)
	tests := []struct {
		name    string
		opener  *ZipOpener
		entries []zipEntry
		wantErr bool
	}{
		{
			name:    "within limits",
			opener:  DefaultZipOpener(),
			entries: []zipEntry{{name: "a.txt", content: []byte("a")}, {name: "b.txt", content: []byte("b")}},
		},
		{
			name:    "too many files",
			opener:  &ZipOpener{MaxFiles: 1},
			entries: []zipEntry{{name: "a.txt"}, {name: "b.txt"}},
			wantErr: true,
		},
		{
			name:    "compression ratio",
			opener:  &ZipOpener{MaxCompressionRatio: 100},
			entries: []zipEntry{{name: "bomb.bin", content: zeros}},
			wantErr: true,
		},
		{
			name:    "uncompressed size",
			opener:  &ZipOpener{MaxUncompressedSize: 1000},
			entries: []zipEntry{{name: "a.bin", content: make([]byte, 600)}, {name: "b.bin", content: make([]byte, 600)}},
			wantErr: true,
		},
		{
			name:    "no limits",
			opener:  &ZipOpener{},
			entries: []zipEntry{{name: "bomb.bin", content: zeros}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := openZip(t, tt.opener, buildZip(t, tt.entries...))
			if tt.wantErr {
				require.ErrorIs(t, err, ErrArchiveLimit)
				assert.True(t, IsForbidden(err))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestZipOpener_NotAnArchive(t *testing.T) {
	_, err := openZip(t, DefaultZipOpener(), []byte("plain text"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrArchiveLimit)
}

func TestIsSafeEntry(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"a.txt", true},
		{"docs/", true},
		{"docs/sub/a.txt", true},
		{"..", false},
		{"../a.txt", false},
		{"docs/../../a.txt", false},
		{"docs/./a.txt", false},
		{"/etc/passwd", false},
		{`docs\a.txt`, false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isSafeEntry(tt.name))
		})
	}
}

func TestRootEntry(t *testing.T) {
	tests := []struct {
		name      string
		wantFirst string
		wantRoot  bool
	}{
		{"a.txt", "a.txt", true},
		{"docs/", "docs", true},
		{"docs/a.txt", "docs", false},
		{"docs/sub/", "docs", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first, atRoot := rootEntry(tt.name)
			assert.Equal(t, tt.wantFirst, first)
			assert.Equal(t, tt.wantRoot, atRoot)
		})
	}
}
