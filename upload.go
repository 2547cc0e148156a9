package filemanager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"regexp"
	"strconv"
)

// ProgressFunc is a callback function for upload progress
type ProgressFunc func(name string, bytesTransferred int64, totalBytes int64)

// UploadFile is one file of an upload request.
type UploadFile struct {
	// Name is the client supplied file name.
	Name   string
	Reader io.Reader
	// Size is the announced size. Zero or less means unknown.
	Size int64
}

// UploadResult reports the outcome of one uploaded file. Err is set when the
// file was rejected or could not be stored.
type UploadResult struct {
	Name     string    `json:"name" yaml:"name"`
	Size     int64     `json:"size" yaml:"size"`
	Checksum string    `json:"checksum,omitempty" yaml:"checksum,omitempty"`
	Item     *ItemData `json:"item,omitempty" yaml:"item,omitempty"`
	Err      error     `json:"-" yaml:"-"`
}

// UploadHandler validates incoming files and stores them in a folder of a
// storage. Each file is spooled to a temporary file first, so the storage is
// only written once every check passed.
type UploadHandler struct {
	thumbnails *ThumbnailFactory
	progress   ProgressFunc
	tempDir    string
}

// UploadOption configures an UploadHandler.
type UploadOption func(*UploadHandler)

// WithThumbnailFactory renders thumbnails of uploaded images.
func WithThumbnailFactory(f *ThumbnailFactory) UploadOption {
	return func(h *UploadHandler) {
		h.thumbnails = f
	}
}

// WithProgress reports the bytes received per file.
func WithProgress(fn ProgressFunc) UploadOption {
	return func(h *UploadHandler) {
		h.progress = fn
	}
}

// WithTempDir sets the folder temporary upload files are spooled to. The
// default is os.TempDir.
func WithTempDir(dir string) UploadOption {
	return func(h *UploadHandler) {
		h.tempDir = dir
	}
}

// NewUploadHandler creates an upload handler.
func NewUploadHandler(opts ...UploadOption) *UploadHandler {
	h := &UploadHandler{}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Upload stores files in folder. Files are validated independently; a
// rejected file does not stop the others.
func (h *UploadHandler) Upload(ctx context.Context, folder *Item, files []UploadFile) []UploadResult {
	results := make([]UploadResult, 0, len(files))
	for _, f := range files {
		res := h.upload(ctx, folder, f)
		if res.Err != nil {
			folder.Storage().Logger().Info("upload rejected", "folder", folder.RelativePath(), "name", f.Name, "err", res.Err)
		}
		results = append(results, res)
	}
	return results
}

func (h *UploadHandler) upload(ctx context.Context, folder *Item, f UploadFile) UploadResult {
	s := folder.Storage()
	cfg := s.Config()
	res := UploadResult{Name: f.Name}

	name := NormalizeFilename(cfg, f.Name)
	if name == "" {
		res.Err = NewPathError("upload", f.Name, LabelForbiddenName, ErrRestrictedPattern)
		return res
	}

	if err := checkTarget(s, "upload", folder.RelativePath()+name); err != nil {
		res.Err = err
		return res
	}

	if !cfg.Upload.Overwrite {
		unique, err := uniqueName(ctx, s, folder.RelativePath(), name)
		if err != nil {
			res.Err = err
			return res
		}
		name = unique
	}
	res.Name = name

	target, err := NewItem(ctx, s, folder.RelativePath()+name)
	if err != nil {
		res.Err = err
		return res
	}
	if target.IsExists() && target.IsDirectory() {
		res.Err = NewPathError("upload", target.RelativePath(), LabelDirAlreadyExists, ErrConflict, name)
		return res
	}

	if !target.IsAllowedExtension() {
		res.Err = NewPathError("upload", target.RelativePath(), LabelInvalidFileType, ErrRestrictedExtension)
		return res
	}
	if !target.IsAllowedPattern() {
		res.Err = NewPathError("upload", target.RelativePath(), LabelForbiddenName, ErrRestrictedPattern)
		return res
	}

	announced := f.Size
	if announced <= 0 {
		if seeker, ok := f.Reader.(io.Seeker); ok {
			if n, err := getStreamSize(seeker); err == nil {
				announced = n
			}
		}
	}

	limit := cfg.Upload.FileSizeLimit
	if limit > 0 && announced > limit {
		res.Err = tooBig(target.RelativePath(), limit, ErrSizeLimit)
		return res
	}

	tmp, err := os.CreateTemp(h.tempDir, "filemanager-upload-*")
	if err != nil {
		res.Err = NewPathError("upload", target.RelativePath(), LabelErrorUploadingFile, fmt.Errorf("%w: %w", ErrBackend, err))
		return res
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	var r io.Reader = f.Reader
	if h.progress != nil {
		r = &progressReader{
			reader:        r,
			name:          name,
			progress:      h.progress,
			size:          announced,
			reportingStep: PreviewChunkSize,
		}
	}

	hasher := NewHasher()
	size, err := io.Copy(io.MultiWriter(tmp, hasher), &SizeLimitReader{R: r, Limit: limit})
	if err != nil {
		if errors.Is(err, ErrSizeLimit) {
			res.Err = tooBig(target.RelativePath(), limit, err)
		} else {
			res.Err = NewPathError("upload", target.RelativePath(), LabelErrorUploadingFile, fmt.Errorf("%w: %w", ErrBackend, err))
		}
		return res
	}
	res.Size = size
	res.Checksum = HexSum(hasher)

	if err := h.checkQuota(ctx, target, size); err != nil {
		res.Err = err
		return res
	}
	if err := h.checkFileCount(ctx, folder, target); err != nil {
		res.Err = err
		return res
	}
	if err := checkImageBounds(tmp, target, cfg.Images.Main); err != nil {
		res.Err = err
		return res
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		res.Err = NewPathError("upload", target.RelativePath(), LabelErrorUploadingFile, fmt.Errorf("%w: %w", ErrBackend, err))
		return res
	}
	if _, err := s.Write(ctx, target, tmp); err != nil {
		res.Err = NewPathError("upload", target.RelativePath(), LabelErrorUploadingFile, err)
		return res
	}
	if err := target.ResetStats(ctx); err != nil {
		res.Err = err
		return res
	}

	if h.thumbnails != nil && cfg.Images.Thumbnail.Enabled {
		h.thumbnails.CreateThumbnail(ctx, target)
	}

	res.Item, res.Err = target.Data(ctx)
	return res
}

// checkQuota rejects a file that would push the storage past
// options.fileRootSizeLimit.
func (h *UploadHandler) checkQuota(ctx context.Context, target *Item, size int64) error {
	limit := target.Storage().Config().Options.FileRootSizeLimit
	if limit <= 0 {
		return nil
	}
	total, err := target.Storage().GetRootTotalSize(ctx)
	if err != nil {
		return err
	}
	if size+total > limit {
		return NewPathError("upload", target.RelativePath(), LabelStorageSizeExceed, ErrStorageFull, megabytes(limit))
	}
	return nil
}

// checkFileCount rejects a new file when the folder already holds
// upload.fileCountLimit files. Replacing an existing file is always allowed.
func (h *UploadHandler) checkFileCount(ctx context.Context, folder, target *Item) error {
	limit := target.Storage().Config().Upload.FileCountLimit
	if limit <= 0 || target.IsExists() {
		return nil
	}
	entries, err := folder.Storage().ReadDir(ctx, folder)
	if err != nil {
		return err
	}
	files := 0
	for _, e := range entries {
		if !e.Info.IsDir {
			files++
		}
	}
	if files >= limit {
		return NewPathError("upload", target.RelativePath(), LabelMaxNumberOfFiles, ErrFileCount, strconv.Itoa(limit))
	}
	return nil
}

// checkImageBounds applies images.main to raster images. With autoOrient
// the dimensions of images rotated by their EXIF orientation are swapped.
// Content that cannot be decoded is not checked.
func checkImageBounds(f io.ReadSeeker, target *Item, bounds ImageBounds) error {
	if !bounds.HasBounds() || !IsRasterImage(GuessContentType(target.Basename(), nil)) {
		return nil
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil
	}
	width, height, err := ImageSize(f)
	if err != nil {
		return nil
	}

	if bounds.AutoOrient {
		if _, err := f.Seek(0, io.SeekStart); err == nil && ExifOrientation(f) >= 5 {
			width, height = height, width
		}
	}
	return bounds.CheckBounds(target.RelativePath(), width, height)
}

func tooBig(p string, limit int64, err error) error {
	return NewPathError("upload", p, LabelUploadTooBig, err, megabytes(limit))
}

// megabytes formats a byte count the way the size labels expect, in decimal
// megabytes rounded to two places.
func megabytes(n int64) string {
	mb := math.Round(float64(n)/1000/1000*100) / 100
	return strconv.FormatFloat(mb, 'f', -1, 64) + " Mb"
}

// ============================================================================
// Unique names
// ============================================================================

var upcountPattern = regexp.MustCompile(`^(.*?)(?: \((\d+)\))?(\.[^.]*)?$`)

// upcountName turns "name.ext" into "name (1).ext" and "name (1).ext" into
// "name (2).ext".
func upcountName(name string) string {
	m := upcountPattern.FindStringSubmatch(name)
	if m == nil {
		return name + " (1)"
	}
	n := 1
	if m[2] != "" {
		if current, err := strconv.Atoi(m[2]); err == nil {
			n = current + 1
		}
	}
	return fmt.Sprintf("%s (%d)%s", m[1], n, m[3])
}

// uniqueName returns name, or the first upcounted variant of it, that is
// free in the relative folder dir.
func uniqueName(ctx context.Context, s Storage, dir, name string) (string, error) {
	resolver := s.Resolver()
	for {
		info, err := s.Stat(ctx, resolver.Absolute(NormalizeRelative(dir+name)))
		if err != nil {
			return "", err
		}
		if !info.Exists {
			return name, nil
		}
		name = upcountName(name)
	}
}

// ============================================================================
// Progress
// ============================================================================

// progressReader is a reader that reports progress
type progressReader struct {
	reader        io.Reader
	name          string
	progress      ProgressFunc
	size          int64
	bytesRead     int64
	lastReported  int64
	reportingStep int64
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if n > 0 {
		r.bytesRead += int64(n)
	}

	// Report progress if we've read enough since the last report
	// or if we're at the end
	if r.bytesRead-r.lastReported >= r.reportingStep || (err == io.EOF && r.bytesRead != r.lastReported) {
		r.progress(r.name, r.bytesRead, r.size)
		r.lastReported = r.bytesRead
	}
	return n, err
}
