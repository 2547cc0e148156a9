package filemanager

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUpcountName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"a.txt", "a (1).txt"},
		{"a (1).txt", "a (2).txt"},
		{"a (9).txt", "a (10).txt"},
		{"README", "README (1)"},
		{"README (3)", "README (4)"},
		{"archive.tar.gz", "archive.tar (1).gz"},
		{"a(1).txt", "a(1) (1).txt"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, upcountName(tt.in))
		})
	}
}

func TestMegabytes(t *testing.T) {
	assert.Equal(t, "16 Mb", megabytes(16_000_000))
	assert.Equal(t, "1.5 Mb", megabytes(1_500_000))
	assert.Equal(t, "1.23 Mb", megabytes(1_234_567))
	assert.Equal(t, "0 Mb", megabytes(0))
}

func TestProgressReader(t *testing.T) {
	type report struct{ read, total int64 }
	var reports []report

	r := &progressReader{
		reader: strings.NewReader(strings.Repeat("x", 25)),
		name:   "a.bin",
		progress: func(name string, read, total int64) {
			assert.Equal(t, "a.bin", name)
			reports = append(reports, report{read, total})
		},
		size:          25,
		reportingStep: 10,
	}

	buf := make([]byte, 5)
	for {
		if _, err := r.Read(buf); err == io.EOF {
			break
		}
	}

	assert.Equal(t, []report{{10, 25}, {20, 25}, {25, 25}}, reports)
}
