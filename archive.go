package filemanager

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"strings"
)

// ArchiveEntry is one entry of an archive. Names are slash separated and
// relative to the archive root; directory names end with a slash.
type ArchiveEntry struct {
	Name  string
	IsDir bool
	Size  int64
}

// Archive gives access to the entries of an opened archive.
type Archive interface {
	Entries() []ArchiveEntry
	// Open streams the content of the file entry name.
	Open(name string) (io.ReadCloser, error)
	Close() error
}

// ArchiveOpener opens archives read from r.
type ArchiveOpener interface {
	OpenArchive(r io.ReaderAt, size int64) (Archive, error)
}

// ErrArchiveLimit is returned when an archive exceeds the extraction limits.
var ErrArchiveLimit = fmt.Errorf("%w: archive exceeds extraction limits", ErrForbidden)

// ZipOpener opens zip archives. Archives exceeding a limit are rejected
// before any entry is extracted. Zero disables a limit.
type ZipOpener struct {
	// MaxCompressionRatio is the maximum uncompressed to compressed ratio of
	// a single entry and of the whole archive.
	MaxCompressionRatio float64
	// MaxFiles is the maximum number of entries.
	MaxFiles int
	// MaxUncompressedSize is the maximum total size after extraction.
	MaxUncompressedSize int64
}

// DefaultZipOpener returns a zip opener with limits suited to user uploads.
func DefaultZipOpener() *ZipOpener {
	return &ZipOpener{
		MaxCompressionRatio: 100,
		MaxFiles:            1000,
		MaxUncompressedSize: 1 << 30,
	}
}

var _ ArchiveOpener = (*ZipOpener)(nil)

func (o *ZipOpener) OpenArchive(r io.ReaderAt, size int64) (Archive, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, err
	}
	if err := o.checkLimits(zr, size); err != nil {
		return nil, err
	}

	a := &zipArchive{files: make(map[string]*zip.File, len(zr.File))}
	for _, f := range zr.File {
		name := strings.TrimPrefix(CleanPath(f.Name), "/")
		if name == "" {
			continue
		}
		isDir := f.FileInfo().IsDir()
		if isDir && !strings.HasSuffix(name, "/") {
			name += "/"
		}
		a.entries = append(a.entries, ArchiveEntry{
			Name:  name,
			IsDir: isDir,
			Size:  int64(f.UncompressedSize64), //nolint:gosec // bounded by MaxUncompressedSize
		})
		a.files[name] = f
	}
	return a, nil
}

func (o *ZipOpener) checkLimits(zr *zip.Reader, size int64) error {
	if o.MaxFiles > 0 && len(zr.File) > o.MaxFiles {
		return fmt.Errorf("%w: %d entries (max: %d)", ErrArchiveLimit, len(zr.File), o.MaxFiles)
	}

	var total uint64
	for _, f := range zr.File {
		if o.MaxCompressionRatio > 0 && f.CompressedSize64 > 0 {
			ratio := float64(f.UncompressedSize64) / float64(f.CompressedSize64)
			if ratio > o.MaxCompressionRatio {
				return fmt.Errorf("%w: compression ratio of %s is %.2f:1", ErrArchiveLimit, f.Name, ratio)
			}
		}
		total += f.UncompressedSize64
		if o.MaxUncompressedSize > 0 && total > uint64(o.MaxUncompressedSize) { //nolint:gosec // checked positive
			return fmt.Errorf("%w: expands to more than %d bytes", ErrArchiveLimit, o.MaxUncompressedSize)
		}
	}

	if o.MaxCompressionRatio > 0 && total > 0 && size > 0 {
		if ratio := float64(total) / float64(size); ratio > o.MaxCompressionRatio {
			return fmt.Errorf("%w: total compression ratio is %.2f:1", ErrArchiveLimit, ratio)
		}
	}
	return nil
}

type zipArchive struct {
	entries []ArchiveEntry
	files   map[string]*zip.File
}

func (a *zipArchive) Entries() []ArchiveEntry { return a.entries }

func (a *zipArchive) Open(name string) (io.ReadCloser, error) {
	f, ok := a.files[name]
	if !ok {
		return nil, fmt.Errorf("archive entry %q: %w", name, ErrNotFound)
	}
	return f.Open()
}

func (a *zipArchive) Close() error { return nil }

// ZipFolder writes the readable, unrestricted tree below folder to w as a
// zip archive. Entry names are relative to folder.
func ZipFolder(ctx context.Context, folder *Item, w io.Writer) error {
	zw := zip.NewWriter(w)
	if err := zipTree(ctx, folder, folder.RelativePath(), zw); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

func zipTree(ctx context.Context, dir *Item, base string, zw *zip.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s := dir.Backend()
	entries, err := s.ReadDir(ctx, dir)
	if err != nil {
		return err
	}

	for _, e := range entries {
		child := NewItemFromStat(dir.Storage(), e.Path, e.Info)
		if !CountsInSummary(child) {
			continue
		}
		name := strings.TrimPrefix(child.RelativePath(), base)

		if child.IsDirectory() {
			if _, err := zw.Create(name); err != nil {
				return err
			}
			if err := zipTree(ctx, child, base, zw); err != nil {
				return err
			}
			continue
		}

		if err := zipFile(ctx, child, name, zw); err != nil {
			return err
		}
	}
	return nil
}

func zipFile(ctx context.Context, item *Item, name string, zw *zip.Writer) error {
	header := &zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: item.Stat().ModTime,
	}
	dst, err := zw.CreateHeader(header)
	if err != nil {
		return err
	}

	src, err := item.Backend().Open(ctx, item)
	if err != nil {
		return err
	}
	defer src.Close()

	_, err = io.Copy(dst, src)
	return err
}

// isSafeEntry rejects entry names that could escape the extraction folder.
func isSafeEntry(name string) bool {
	if name == "" || strings.HasPrefix(name, "/") || strings.Contains(name, `\`) {
		return false
	}
	for _, part := range strings.Split(strings.TrimSuffix(name, "/"), "/") {
		if part == ".." || part == "." {
			return false
		}
	}
	return true
}

// rootEntry returns the first path element of an entry name and whether the
// entry itself lives at the archive root.
func rootEntry(name string) (string, bool) {
	trimmed := strings.TrimSuffix(name, "/")
	first, _, nested := strings.Cut(trimmed, "/")
	return first, !nested
}
