package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/gobeaver/filemanager"
	"github.com/google/uuid"
)

// Storage keeps files in a folder of the local filesystem.
type Storage struct {
	*filemanager.StorageBase

	documentRoot string
	mkdirMode    os.FileMode

	sizeCache *filemanager.SizeCache

	mu      sync.Mutex
	watcher *rootWatcher
}

// New creates a local storage from cfg. The storage root is created when
// missing.
func New(name string, cfg *filemanager.Config, opts ...filemanager.StorageOption) (*Storage, error) {
	s := &Storage{
		mkdirMode: os.FileMode(cfg.MkdirMode),
	}
	if s.mkdirMode == 0 {
		s.mkdirMode = 0o755
	}

	base, err := filemanager.NewStorageBase(name, cfg, s, opts...)
	if err != nil {
		return nil, err
	}
	s.StorageBase = base
	s.SetThumbnailStorage(s)

	storageRoot, documentRoot, err := resolveRoots(cfg.Options)
	if err != nil {
		return nil, &filemanager.PathError{Op: "init", Path: cfg.Options.FileRoot, Label: filemanager.LabelInvalidConfigOption, Err: fmt.Errorf("%w: %v", filemanager.ErrConfiguration, err)}
	}
	s.documentRoot = documentRoot

	if err := s.SetRoot(context.Background(), storageRoot, true); err != nil {
		return nil, err
	}

	s.Logger().Info("local storage ready", "root", s.Root(), "documentRoot", s.documentRoot, "dynamicRoot", s.DynamicRoot())
	return s, nil
}

// resolveRoots derives the storage root and document root from the
// options. With serverRoot the file root is a suffix of the document root.
func resolveRoots(o filemanager.OptionsConfig) (storageRoot, documentRoot string, err error) {
	storageRoot = o.FileRoot
	documentRoot = o.DocumentRoot
	if o.ServerRoot {
		if documentRoot == "" {
			return "", "", errors.New("options.documentRoot is required with options.serverRoot")
		}
		storageRoot = documentRoot + "/" + o.FileRoot
	} else if documentRoot == "" {
		documentRoot = storageRoot
	}

	if storageRoot, err = filepath.Abs(storageRoot); err != nil {
		return "", "", err
	}
	if documentRoot, err = filepath.Abs(documentRoot); err != nil {
		return "", "", err
	}
	return filepath.ToSlash(storageRoot), filemanager.CleanPath(filepath.ToSlash(documentRoot)), nil
}

// SetRoot moves the storage root. The dynamic root is recomputed against
// the document root.
func (s *Storage) SetRoot(ctx context.Context, path string, makeDir bool) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	root := filemanager.CleanPath(path + "/")
	dynamicRoot := filemanager.SubtractPath(root, s.documentRoot)
	s.SetResolver(filemanager.NewResolver(root, dynamicRoot))

	if makeDir {
		if _, err := os.Stat(root); errors.Is(err, fs.ErrNotExist) {
			s.Logger().Info("creating root folder", "root", root)
			if err := os.MkdirAll(root, s.mkdirMode); err != nil {
				return &filemanager.PathError{Op: "setroot", Path: root, Label: filemanager.LabelUnableToCreateDir, Err: fmt.Errorf("%w: %w", filemanager.ErrBackend, err)}
			}
		}
	}

	s.resetSizeTracking()
	return nil
}

// resetSizeTracking drops the root size cache and restarts the watcher for
// the current root when options.watchRootSize is set.
func (s *Storage) resetSizeTracking() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
	s.sizeCache = nil

	if !s.Config().Options.WatchRootSize {
		return
	}

	cache := &filemanager.SizeCache{}
	w, err := newRootWatcher(s.Root(), cache.Invalidate, s.Logger())
	if err != nil {
		s.Logger().Warn("root size watching disabled", "root", s.Root(), "err", err)
		return
	}
	s.sizeCache = cache
	s.watcher = w
}

// Close stops the root watcher.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.watcher == nil {
		return nil
	}
	err := s.watcher.Close()
	s.watcher = nil
	s.sizeCache = nil
	return err
}

func (s *Storage) invalidate() {
	s.mu.Lock()
	cache := s.sizeCache
	s.mu.Unlock()
	if cache != nil {
		cache.Invalidate()
	}
}

// Stat implements filemanager.Storage
func (s *Storage) Stat(ctx context.Context, abs string) (filemanager.StatInfo, error) {
	select {
	case <-ctx.Done():
		return filemanager.StatInfo{}, ctx.Err()
	default:
	}

	info, err := os.Stat(filepath.FromSlash(abs))
	if err != nil {
		if isNotExist(err) {
			return filemanager.StatInfo{}, nil
		}
		return filemanager.StatInfo{}, filemanager.BackendError("stat", abs, err)
	}
	return statInfo(info), nil
}

func statInfo(info os.FileInfo) filemanager.StatInfo {
	return filemanager.StatInfo{
		Exists:  true,
		IsDir:   info.IsDir(),
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR)
}

// ReadDir implements filemanager.Storage
func (s *Storage) ReadDir(ctx context.Context, dir *filemanager.Item) ([]filemanager.DirEntry, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	entries, err := os.ReadDir(filepath.FromSlash(dir.AbsolutePath()))
	if err != nil {
		if isNotExist(err) {
			return nil, filemanager.NewPathError("readdir", dir.RelativePath(), filemanager.LabelDirNotExist, filemanager.ErrNotFound)
		}
		return nil, &filemanager.PathError{Op: "readdir", Path: dir.RelativePath(), Label: filemanager.LabelUnableToOpenDir, Args: []string{dir.RelativePath()}, Err: fmt.Errorf("%w: %w", filemanager.ErrBackend, err)}
	}

	result := make([]filemanager.DirEntry, 0, len(entries))
	for _, entry := range entries {
		childAbs := filepath.Join(filepath.FromSlash(dir.AbsolutePath()), entry.Name())
		// follow symlinks so linked folders list as folders
		info, err := os.Stat(childAbs)
		if err != nil {
			s.Logger().Debug("skipping unreadable entry", "path", childAbs, "err", err)
			continue
		}
		rel := filemanager.Join(dir.RelativePath(), entry.Name())
		if info.IsDir() {
			rel += "/"
		}
		result = append(result, filemanager.DirEntry{Path: rel, Info: statInfo(info)})
	}
	return result, nil
}

// Open implements filemanager.Storage
func (s *Storage) Open(ctx context.Context, item *filemanager.Item) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	f, err := os.Open(filepath.FromSlash(item.AbsolutePath()))
	if err != nil {
		if isNotExist(err) {
			return nil, filemanager.NewPathError("open", item.RelativePath(), filemanager.LabelFileNotExist, filemanager.ErrNotFound)
		}
		return nil, filemanager.BackendError("open", item.RelativePath(), err)
	}
	return f, nil
}

// Write implements filemanager.Storage. Content goes to a temporary file in
// the target folder that replaces the target once complete.
func (s *Storage) Write(ctx context.Context, item *filemanager.Item, r io.Reader) (int64, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}

	target := filepath.FromSlash(strings.TrimRight(item.AbsolutePath(), "/"))
	tmp := filepath.Join(filepath.Dir(target), ".upload-"+uuid.NewString())

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, filemanager.BackendError("write", item.RelativePath(), err)
	}

	n, err := writeLocked(f, r)
	if err != nil {
		os.Remove(tmp)
		return 0, filemanager.BackendError("write", item.RelativePath(), err)
	}

	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return 0, filemanager.BackendError("write", item.RelativePath(), err)
	}

	s.invalidate()
	return n, nil
}

func writeLocked(f *os.File, r io.Reader) (int64, error) {
	if err := lockExclusive(f); err != nil {
		f.Close()
		return 0, err
	}
	n, err := io.Copy(f, r)
	if err == nil {
		err = f.Sync()
	}
	unlock(f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return n, err
}

// CreateFolder implements filemanager.Storage. The prototype is not used;
// folders get the configured mode.
func (s *Storage) CreateFolder(ctx context.Context, target, prototype *filemanager.Item, opts ...filemanager.FolderOption) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	o := filemanager.ApplyFolderOptions(opts...)
	abs := filepath.FromSlash(strings.TrimRight(target.AbsolutePath(), "/"))

	if o.Recursive {
		if err := os.MkdirAll(filepath.Dir(abs), s.mkdirMode); err != nil {
			return &filemanager.PathError{Op: "mkdir", Path: target.RelativePath(), Label: filemanager.LabelUnableToCreateDir, Args: []string{target.RelativePath()}, Err: fmt.Errorf("%w: %w", filemanager.ErrBackend, err)}
		}
	}

	if err := os.Mkdir(abs, s.mkdirMode); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return filemanager.NewPathError("mkdir", target.RelativePath(), filemanager.LabelDirAlreadyExists, filemanager.ErrConflict)
		}
		return &filemanager.PathError{Op: "mkdir", Path: target.RelativePath(), Label: filemanager.LabelUnableToCreateDir, Args: []string{target.RelativePath()}, Err: fmt.Errorf("%w: %w", filemanager.ErrBackend, err)}
	}

	s.invalidate()
	return nil
}

// CopyRecursive implements filemanager.Storage. The first failure aborts
// the copy; entries copied so far stay in place.
func (s *Storage) CopyRecursive(ctx context.Context, source, target *filemanager.Item) error {
	src := filepath.FromSlash(strings.TrimRight(source.AbsolutePath(), "/"))
	dst := filepath.FromSlash(strings.TrimRight(target.AbsolutePath(), "/"))

	defer s.invalidate()
	if err := s.copyPath(ctx, src, dst); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return filemanager.BackendError("copy", source.RelativePath(), err)
	}
	return nil
}

func (s *Storage) copyPath(ctx context.Context, src, dst string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	info, err := os.Lstat(src)
	if err != nil {
		return err
	}

	switch {
	case info.Mode()&os.ModeSymlink != 0:
		link, err := os.Readlink(src)
		if err != nil {
			return err
		}
		return os.Symlink(link, dst)

	case info.Mode().IsRegular():
		return copyFile(src, dst, info.Mode().Perm())

	case info.IsDir():
		if _, err := os.Stat(dst); isNotExist(err) {
			if err := os.MkdirAll(dst, s.mkdirMode); err != nil {
				return err
			}
		}
		entries, err := os.ReadDir(src)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if err := s.copyPath(ctx, filepath.Join(src, entry.Name()), filepath.Join(dst, entry.Name())); err != nil {
				return err
			}
		}
		return nil

	default:
		return fmt.Errorf("unsupported file type %s", info.Mode().Type())
	}
}

func copyFile(src, dst string, mode os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// RenameRecursive implements filemanager.Storage with a single rename.
func (s *Storage) RenameRecursive(ctx context.Context, source, target *filemanager.Item) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	src := filepath.FromSlash(strings.TrimRight(source.AbsolutePath(), "/"))
	dst := filepath.FromSlash(strings.TrimRight(target.AbsolutePath(), "/"))
	if err := os.Rename(src, dst); err != nil {
		return filemanager.BackendError("rename", source.RelativePath(), err)
	}
	s.invalidate()
	return nil
}

// UnlinkRecursive implements filemanager.Storage. Folders are emptied
// bottom-up; a folder that cannot be opened fails the removal.
func (s *Storage) UnlinkRecursive(ctx context.Context, target *filemanager.Item) error {
	defer s.invalidate()
	if err := s.unlinkPath(ctx, filepath.FromSlash(strings.TrimRight(target.AbsolutePath(), "/"))); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return filemanager.BackendError("unlink", target.RelativePath(), err)
	}
	return nil
}

func (s *Storage) unlinkPath(ctx context.Context, p string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	info, err := os.Lstat(p)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return os.Remove(p)
	}

	entries, err := os.ReadDir(p)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := s.unlinkPath(ctx, filepath.Join(p, entry.Name())); err != nil {
			return err
		}
	}
	return os.Remove(p)
}

// GetDirSummary implements filemanager.Storage. Folders that cannot be read
// are skipped.
func (s *Storage) GetDirSummary(ctx context.Context, dir string, summary *filemanager.Summary) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	dirRel := filemanager.NormalizeRelative(dir)
	if !strings.HasSuffix(dirRel, "/") {
		dirRel += "/"
	}
	dirAbs := filepath.FromSlash(s.Resolver().Absolute(dirRel))

	entries, err := os.ReadDir(dirAbs)
	if err != nil {
		s.Logger().Debug("summary skips unreadable folder", "path", dirRel, "err", err)
		return nil
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		info, err := os.Stat(filepath.Join(dirAbs, entry.Name()))
		if err != nil {
			continue
		}
		rel := dirRel + entry.Name()
		if info.IsDir() {
			rel += "/"
		}

		child := filemanager.NewItemFromStat(s, rel, statInfo(info))
		if !filemanager.CountsInSummary(child) {
			continue
		}

		if child.IsDirectory() {
			summary.Folders++
			if err := s.GetDirSummary(ctx, rel, summary); err != nil {
				return err
			}
			continue
		}

		size, err := s.GetFileSize(ctx, child.AbsolutePath())
		if err != nil {
			return err
		}
		summary.Files++
		summary.Size += size
	}
	return nil
}

// GetRootTotalSize implements filemanager.Storage. The value is cached
// while the root watcher runs.
func (s *Storage) GetRootTotalSize(ctx context.Context) (int64, error) {
	s.mu.Lock()
	cache := s.sizeCache
	s.mu.Unlock()

	compute := func(ctx context.Context) (int64, error) {
		return filemanager.RootTotalSize(ctx, s)
	}
	if cache == nil {
		return compute(ctx)
	}
	return cache.Get(ctx, compute)
}

// GetFileSize implements filemanager.Storage. The size is probed under a
// shared lock first, then through a HEAD request on a file transport, then
// with stat.
func (s *Storage) GetFileSize(ctx context.Context, abs string) (int64, error) {
	p := filepath.FromSlash(abs)

	if size, err := seekSize(p); err == nil {
		return size, nil
	}

	if size, err := headSize(ctx, p); err == nil {
		return size, nil
	}

	info, err := os.Stat(p)
	if err != nil {
		if isNotExist(err) {
			return 0, filemanager.NewPathError("size", abs, filemanager.LabelFileNotExist, filemanager.ErrNotFound)
		}
		return 0, filemanager.BackendError("size", abs, err)
	}
	return info.Size(), nil
}

func seekSize(p string) (int64, error) {
	f, err := os.Open(p)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if err := lockShared(f); err != nil {
		return 0, err
	}
	defer unlock(f)

	return f.Seek(0, io.SeekEnd)
}

var fileTransport = http.NewFileTransport(http.Dir("/"))

func headSize(ctx context.Context, p string) (int64, error) {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(p)}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u.String(), nil)
	if err != nil {
		return 0, err
	}
	resp, err := fileTransport.RoundTrip(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("head %s: %s", p, resp.Status)
	}
	return strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64)
}

// GetMimeType implements filemanager.Storage by sniffing the content.
func (s *Storage) GetMimeType(ctx context.Context, abs string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	p := filepath.FromSlash(abs)
	info, err := os.Stat(p)
	if err != nil {
		if isNotExist(err) {
			return "", filemanager.NewPathError("mime", abs, filemanager.LabelFileNotExist, filemanager.ErrNotFound)
		}
		return "", filemanager.BackendError("mime", abs, err)
	}
	if info.IsDir() {
		return filemanager.MIMETypeDirectory, nil
	}

	f, err := os.Open(p)
	if err != nil {
		return "", filemanager.BackendError("mime", abs, err)
	}
	defer f.Close()
	return filemanager.DetectMIME(f, p), nil
}

// ReadFile implements filemanager.Storage
func (s *Storage) ReadFile(ctx context.Context, w http.ResponseWriter, item *filemanager.Item, opts filemanager.ReadOptions) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	size, err := s.GetFileSize(ctx, item.AbsolutePath())
	if err != nil {
		return err
	}
	rng, partial, err := filemanager.ParseRange(opts.Range, size)
	if err != nil {
		return filemanager.RejectRange(w, item.RelativePath(), size)
	}

	contentType, err := s.GetMimeType(ctx, item.AbsolutePath())
	if err != nil {
		return err
	}

	f, err := os.Open(filepath.FromSlash(item.AbsolutePath()))
	if err != nil {
		return filemanager.BackendError("read", item.RelativePath(), err)
	}
	defer f.Close()

	if rng.Start > 0 {
		if _, err := f.Seek(rng.Start, io.SeekStart); err != nil {
			return filemanager.BackendError("read", item.RelativePath(), err)
		}
	}
	if opts.Filename == "" {
		opts.Filename = item.Basename()
	}
	return filemanager.ServeRange(w, f, rng, partial, contentType, opts)
}

// Ensure Storage implements filemanager.Storage
var (
	_ filemanager.Storage = (*Storage)(nil)
	_ io.Closer           = (*Storage)(nil)
)
