package filemanager

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
)

// Manager runs the file manager operations against one storage. Every
// operation validates its items before touching the backend and dispatches
// one event after a successful run.
//
// There is no locking between the checks and the backend call; a concurrent
// change of the same path can still make the backend call fail.
type Manager struct {
	storage    Storage
	thumbnails *ThumbnailFactory
	uploads    *UploadHandler
	archives   ArchiveOpener
	events     EventSink
	logger     *slog.Logger
	tempDir    string

	processor     ImageProcessor
	uploadOptions []UploadOption
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithEventSink sets the receiver of operation events.
func WithEventSink(sink EventSink) ManagerOption {
	return func(m *Manager) {
		if sink != nil {
			m.events = sink
		}
	}
}

// WithImageProcessor sets the renderer of thumbnails.
func WithImageProcessor(p ImageProcessor) ManagerOption {
	return func(m *Manager) {
		m.processor = p
	}
}

// WithArchiveOpener sets the archive codec used by Extract.
func WithArchiveOpener(o ArchiveOpener) ManagerOption {
	return func(m *Manager) {
		if o != nil {
			m.archives = o
		}
	}
}

// WithManagerLogger sets the logger of the manager.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithManagerTempDir sets the folder for spooled uploads, archives and zip
// downloads.
func WithManagerTempDir(dir string) ManagerOption {
	return func(m *Manager) {
		m.tempDir = dir
	}
}

// WithUploadOptions passes additional options to the upload handler.
func WithUploadOptions(opts ...UploadOption) ManagerOption {
	return func(m *Manager) {
		m.uploadOptions = append(m.uploadOptions, opts...)
	}
}

// NewManager returns a manager for s.
func NewManager(s Storage, opts ...ManagerOption) *Manager {
	m := &Manager{
		storage:  s,
		archives: DefaultZipOpener(),
		events:   NopSink{},
		logger:   s.Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.thumbnails = NewThumbnailFactory(nil, m.processor)
	uploadOpts := append([]UploadOption{
		WithThumbnailFactory(m.thumbnails),
		WithTempDir(m.tempDir),
	}, m.uploadOptions...)
	m.uploads = NewUploadHandler(uploadOpts...)
	return m
}

// NewManagerFor returns a manager for the storage registered under name.
func NewManagerFor(registry *Registry, name string, opts ...ManagerOption) (*Manager, error) {
	s, err := registry.Get(name)
	if err != nil {
		return nil, err
	}
	return NewManager(s, opts...), nil
}

// Storage returns the storage the manager operates on.
func (m *Manager) Storage() Storage {
	return m.storage
}

func (m *Manager) item(ctx context.Context, p string) (*Item, error) {
	return NewItem(ctx, m.storage, p)
}

func (m *Manager) emit(ctx context.Context, name string, items []*ItemData, paths []string) {
	m.events.Dispatch(ctx, Event{
		Name:    name,
		Storage: m.storage.Name(),
		Items:   items,
		Paths:   paths,
	})
}

// checkReadable asserts that item exists, may be read and passes the
// restriction policies.
func checkReadable(item *Item) error {
	if err := item.CheckPath(); err != nil {
		return err
	}
	if err := item.CheckReadPermission(); err != nil {
		return err
	}
	return item.CheckRestrictions()
}

// checkWritable is checkReadable for modifications.
func checkWritable(item *Item) error {
	if err := item.CheckPath(); err != nil {
		return err
	}
	if err := item.CheckWritePermission(); err != nil {
		return err
	}
	return item.CheckRestrictions()
}

func checkFolder(item *Item) error {
	if !item.IsDirectory() {
		return NewPathError("stat", item.RelativePath(), LabelDirNotExist, ErrNotFound)
	}
	return nil
}

func checkFile(op string, item *Item) error {
	if item.IsDirectory() {
		return NewPathError(op, item.RelativePath(), LabelForbiddenActionDir, ErrDirectoryAction)
	}
	return nil
}

func notAllowed(op string, item *Item) error {
	return NewPathError(op, item.RelativePath(), LabelNotAllowed, ErrForbidden)
}

// ============================================================================
// Listing
// ============================================================================

// ReadFolder lists the unrestricted children of the folder at p.
func (m *Manager) ReadFolder(ctx context.Context, p string) ([]*ItemData, error) {
	folder, err := m.item(ctx, p)
	if err != nil {
		return nil, err
	}
	if err := checkReadable(folder); err != nil {
		return nil, err
	}
	if err := checkFolder(folder); err != nil {
		return nil, err
	}

	entries, err := m.storage.ReadDir(ctx, folder)
	if err != nil {
		return nil, err
	}

	items := make([]*ItemData, 0, len(entries))
	paths := make([]string, 0, len(entries))
	for _, e := range entries {
		child := NewItemFromStat(m.storage, e.Path, e.Info)
		if !child.IsUnrestricted() {
			continue
		}
		d, err := child.Data(ctx)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
		paths = append(paths, child.AbsolutePath())
	}

	folderData, err := folder.Data(ctx)
	if err != nil {
		return nil, err
	}
	m.emit(ctx, EventFolderRead, []*ItemData{folderData}, paths)
	return items, nil
}

// SeekFolder searches the tree below p for items whose name starts with
// term, ignoring case.
func (m *Manager) SeekFolder(ctx context.Context, p, term string) ([]*ItemData, error) {
	folder, err := m.item(ctx, p)
	if err != nil {
		return nil, err
	}
	if err := checkReadable(folder); err != nil {
		return nil, err
	}
	if err := checkFolder(folder); err != nil {
		return nil, err
	}

	var found []*Item
	if err := m.seek(ctx, folder, strings.ToLower(term), &found); err != nil {
		return nil, err
	}

	items := make([]*ItemData, 0, len(found))
	paths := make([]string, 0, len(found))
	for _, child := range found {
		d, err := child.Data(ctx)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
		paths = append(paths, child.AbsolutePath())
	}

	folderData, err := folder.Data(ctx)
	if err != nil {
		return nil, err
	}
	m.emit(ctx, EventFolderSeek, []*ItemData{folderData}, paths)
	return items, nil
}

func (m *Manager) seek(ctx context.Context, dir *Item, term string, found *[]*Item) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := m.storage.ReadDir(ctx, dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		child := NewItemFromStat(m.storage, e.Path, e.Info)
		if !child.IsUnrestricted() {
			continue
		}
		if strings.HasPrefix(strings.ToLower(child.Basename()), term) {
			*found = append(*found, child)
		}
		if child.IsDirectory() && child.HasReadPermission() {
			if err := m.seek(ctx, child, term, found); err != nil {
				return err
			}
		}
	}
	return nil
}

// GetInfo returns the snapshot of the item at p.
func (m *Manager) GetInfo(ctx context.Context, p string) (*ItemData, error) {
	item, err := m.item(ctx, p)
	if err != nil {
		return nil, err
	}
	if err := checkReadable(item); err != nil {
		return nil, err
	}
	return item.Data(ctx)
}

// Summarize returns the totals of the whole storage together with the
// configured size limit.
func (m *Manager) Summarize(ctx context.Context) (Summary, error) {
	var summary Summary
	if err := m.storage.GetDirSummary(ctx, "/", &summary); err != nil {
		return Summary{}, NewPathError("summarize", "/", LabelErrorServer, err)
	}
	summary.SizeLimit = m.storage.Config().Options.FileRootSizeLimit
	return summary, nil
}

// ============================================================================
// Mutations
// ============================================================================

// AddFolder creates the folder name inside the folder at p.
func (m *Manager) AddFolder(ctx context.Context, p, name string) (*ItemData, error) {
	target, err := m.item(ctx, p)
	if err != nil {
		return nil, err
	}
	if err := target.CheckPath(); err != nil {
		return nil, err
	}
	if err := checkFolder(target); err != nil {
		return nil, err
	}
	if err := target.CheckWritePermission(); err != nil {
		return nil, err
	}

	dirName := NormalizeName(m.storage.Config(), strings.Trim(name, "/"), '-')
	if dirName == "" {
		return nil, NewPathError("mkdir", name, LabelInvalidDirPath, ErrInvalidPath)
	}

	folderPath := target.RelativePath() + dirName + "/"
	if err := checkTarget(m.storage, "mkdir", folderPath); err != nil {
		return nil, err
	}
	folder, err := m.item(ctx, folderPath)
	if err != nil {
		return nil, err
	}
	if err := folder.CheckRestrictions(); err != nil {
		return nil, err
	}
	if folder.IsExists() {
		return nil, NewPathError("mkdir", folder.RelativePath(), LabelDirAlreadyExists, ErrConflict, dirName)
	}

	if err := m.storage.CreateFolder(ctx, folder, nil); err != nil {
		return nil, NewPathError("mkdir", folder.RelativePath(), LabelUnableToCreateDir, err, dirName)
	}
	if err := folder.ResetStats(ctx); err != nil {
		return nil, err
	}

	d, err := folder.Data(ctx)
	if err != nil {
		return nil, err
	}
	m.emit(ctx, EventFolderCreate, []*ItemData{d}, nil)
	return d, nil
}

// Rename gives the item at p the name newName in the same folder. The
// thumbnail follows the item.
func (m *Manager) Rename(ctx context.Context, p, newName string) (*ItemData, error) {
	if strings.Contains(newName, "/") {
		return nil, NewPathError("rename", newName, LabelForbiddenCharSlash, ErrInvalidPath)
	}

	old, err := m.item(ctx, p)
	if err != nil {
		return nil, err
	}
	if old.IsRoot() {
		return nil, notAllowed("rename", old)
	}
	if err := checkWritable(old); err != nil {
		return nil, err
	}

	name := NormalizeFilename(m.storage.Config(), newName)
	if name == "" {
		return nil, NewPathError("rename", newName, labelFor(old.IsDirectory(), LabelInvalidDirPath, LabelInvalidFilePath), ErrInvalidPath)
	}
	parent, err := old.Closest(ctx)
	if err != nil {
		return nil, err
	}
	renamedPath := parent.RelativePath() + name + dirSuffix(old)
	if err := checkTarget(m.storage, "rename", renamedPath); err != nil {
		return nil, err
	}
	renamed, err := m.item(ctx, renamedPath)
	if err != nil {
		return nil, err
	}
	if err := renamed.CheckRestrictions(); err != nil {
		return nil, err
	}

	oldThumb, err := old.Thumbnail(ctx)
	if err != nil {
		return nil, err
	}
	if oldThumb.IsExists() {
		if err := oldThumb.CheckWritePermission(); err != nil {
			return nil, err
		}
	}

	if renamed.IsExists() {
		label := labelFor(renamed.IsDirectory(), LabelDirAlreadyExists, LabelFileAlreadyExists)
		return nil, NewPathError("rename", renamed.RelativePath(), label, ErrConflict, name)
	}

	oldData, err := old.Data(ctx)
	if err != nil {
		return nil, err
	}

	if err := m.storage.RenameRecursive(ctx, old, renamed); err != nil {
		label := labelFor(old.IsDirectory(), LabelErrorRenamingDir, LabelErrorRenamingFile)
		return nil, NewPathError("rename", old.RelativePath(), label, err)
	}

	if oldThumb.IsExists() {
		newThumb, err := renamed.Thumbnail(ctx)
		if err == nil {
			err = oldThumb.Backend().RenameRecursive(ctx, oldThumb, newThumb)
		}
		if err != nil {
			m.logger.Warn("thumbnail rename failed", "path", oldThumb.RelativePath(), "err", err)
		}
	}

	return m.finish(ctx, EventItemRename, oldData, renamed)
}

// Copy copies the item at source into the folder at target.
func (m *Manager) Copy(ctx context.Context, source, target string) (*ItemData, error) {
	return m.transfer(ctx, "copy", source, target, false)
}

// Move moves the item at source into the folder at target.
func (m *Manager) Move(ctx context.Context, source, target string) (*ItemData, error) {
	return m.transfer(ctx, "move", source, target, true)
}

func (m *Manager) transfer(ctx context.Context, op, source, target string, move bool) (*ItemData, error) {
	src, err := m.item(ctx, source)
	if err != nil {
		return nil, err
	}
	dst, err := m.item(ctx, target)
	if err != nil {
		return nil, err
	}

	if src.IsRoot() {
		return nil, notAllowed(op, src)
	}
	check := checkReadable
	if move {
		check = checkWritable
	}
	if err := check(src); err != nil {
		return nil, err
	}
	if err := dst.CheckPath(); err != nil {
		return nil, err
	}
	if err := checkFolder(dst); err != nil {
		return nil, err
	}
	if err := dst.CheckWritePermission(); err != nil {
		return nil, err
	}
	if src.IsDirectory() && strings.HasPrefix(dst.RelativePath(), src.RelativePath()) {
		return nil, notAllowed(op, dst)
	}

	createdPath := dst.RelativePath() + src.Basename() + dirSuffix(src)
	if err := checkTarget(m.storage, op, createdPath); err != nil {
		return nil, err
	}
	created, err := m.item(ctx, createdPath)
	if err != nil {
		return nil, err
	}
	if err := created.CheckRestrictions(); err != nil {
		return nil, err
	}
	if created.IsExists() {
		label := labelFor(created.IsDirectory(), LabelDirAlreadyExists, LabelFileAlreadyExists)
		return nil, NewPathError(op, created.RelativePath(), label, ErrConflict, src.Basename())
	}

	srcThumb, err := src.Thumbnail(ctx)
	if err != nil {
		return nil, err
	}
	newThumb, err := created.Thumbnail(ctx)
	if err != nil {
		return nil, err
	}
	thumbFolder, err := newThumb.Closest(ctx)
	if err != nil {
		return nil, err
	}
	thumbTarget := thumbFolder != nil && thumbFolder.IsExists()
	if srcThumb.IsExists() {
		if move {
			err = srcThumb.CheckWritePermission()
		} else {
			err = srcThumb.CheckReadPermission()
		}
		if err != nil {
			return nil, err
		}
	}
	if thumbTarget {
		if err := thumbFolder.CheckWritePermission(); err != nil {
			return nil, err
		}
	}

	srcData, err := src.Data(ctx)
	if err != nil {
		return nil, err
	}

	event := EventItemCopy
	if move {
		event = EventItemMove
		if err := m.storage.RenameRecursive(ctx, src, created); err != nil {
			label := labelFor(src.IsDirectory(), LabelErrorMovingDir, LabelErrorMovingFile)
			return nil, NewPathError(op, src.RelativePath(), label, err)
		}
	} else {
		if err := m.storage.CopyRecursive(ctx, src, created); err != nil {
			label := labelFor(src.IsDirectory(), LabelErrorCopyingDir, LabelErrorCopyingFile)
			return nil, NewPathError(op, src.RelativePath(), label, err)
		}
	}

	if srcThumb.IsExists() {
		var thumbErr error
		backend := srcThumb.Backend()
		switch {
		case move && thumbTarget:
			thumbErr = backend.RenameRecursive(ctx, srcThumb, newThumb)
		case move:
			thumbErr = srcThumb.Remove(ctx)
		case thumbTarget:
			thumbErr = backend.CopyRecursive(ctx, srcThumb, newThumb)
		}
		if thumbErr != nil {
			m.logger.Warn("thumbnail "+op+" failed", "path", srcThumb.RelativePath(), "err", thumbErr)
		}
	}

	return m.finish(ctx, event, srcData, created)
}

// finish refreshes the resulting item and dispatches the event of a rename,
// copy or move.
func (m *Manager) finish(ctx context.Context, event string, before *ItemData, result *Item) (*ItemData, error) {
	if err := result.ResetStats(ctx); err != nil {
		return nil, err
	}
	d, err := result.Data(ctx)
	if err != nil {
		return nil, err
	}
	m.emit(ctx, event, []*ItemData{before, d}, nil)
	return d, nil
}

func dirSuffix(item *Item) string {
	if item.IsDirectory() {
		return "/"
	}
	return ""
}

// Delete removes the item at p, its content and its thumbnail.
func (m *Manager) Delete(ctx context.Context, p string) (*ItemData, error) {
	item, err := m.item(ctx, p)
	if err != nil {
		return nil, err
	}
	if err := checkWritable(item); err != nil {
		return nil, err
	}
	if item.IsRoot() {
		return nil, notAllowed("delete", item)
	}

	d, err := item.Data(ctx)
	if err != nil {
		return nil, err
	}
	thumb, err := item.Thumbnail(ctx)
	if err != nil {
		return nil, err
	}

	if err := m.storage.UnlinkRecursive(ctx, item); err != nil {
		label := labelFor(item.IsDirectory(), LabelErrorDeletingDir, LabelErrorDeletingFile)
		return nil, NewPathError("delete", item.RelativePath(), label, err)
	}
	if thumb.IsExists() {
		if err := thumb.Remove(ctx); err != nil {
			m.logger.Warn("thumbnail delete failed", "path", thumb.RelativePath(), "err", err)
		}
	}

	m.emit(ctx, EventItemDelete, []*ItemData{d}, nil)
	return d, nil
}

// SaveFile replaces the content of the existing file at p.
func (m *Manager) SaveFile(ctx context.Context, p string, content io.Reader) (*ItemData, error) {
	item, err := m.item(ctx, p)
	if err != nil {
		return nil, err
	}
	if err := checkWritable(item); err != nil {
		return nil, err
	}
	if err := checkFile("save", item); err != nil {
		return nil, err
	}

	if _, err := m.storage.Write(ctx, item, content); err != nil {
		return nil, NewPathError("save", item.RelativePath(), LabelErrorSavingFile, err)
	}
	if err := item.ResetStats(ctx); err != nil {
		return nil, err
	}
	return item.Data(ctx)
}

// Upload stores files in the folder at p. The returned results hold one
// entry per file; rejected files carry their error.
func (m *Manager) Upload(ctx context.Context, p string, files []UploadFile) ([]UploadResult, error) {
	folder, err := m.item(ctx, p)
	if err != nil {
		return nil, err
	}
	if err := folder.CheckPath(); err != nil {
		return nil, err
	}
	if err := checkFolder(folder); err != nil {
		return nil, err
	}
	if err := folder.CheckWritePermission(); err != nil {
		return nil, err
	}
	if err := folder.CheckRestrictions(); err != nil {
		return nil, err
	}

	results := m.uploads.Upload(ctx, folder, files)

	var stored []*ItemData
	for _, res := range results {
		if res.Err == nil && res.Item != nil {
			stored = append(stored, res.Item)
		}
	}
	if len(stored) > 0 {
		m.emit(ctx, EventFileUpload, stored, nil)
	}
	return results, nil
}

// ============================================================================
// Streaming
// ============================================================================

// ReadFile streams the file at p inline, honoring a Range header value.
func (m *Manager) ReadFile(ctx context.Context, w http.ResponseWriter, p, rangeHeader string) error {
	item, err := m.item(ctx, p)
	if err != nil {
		return err
	}
	if err := checkReadable(item); err != nil {
		return err
	}
	if err := checkFile("read", item); err != nil {
		return err
	}

	return m.storage.ReadFile(ctx, w, item, ReadOptions{
		Range:       rangeHeader,
		ChunkSize:   PreviewChunkSize,
		Disposition: DispositionInline,
		Filename:    item.Basename(),
	})
}

// GetImage streams the image at p inline. With thumbnail set the thumbnail
// is served instead, rendered first when missing or when caching is off.
// When no thumbnail can be rendered the original is served.
func (m *Manager) GetImage(ctx context.Context, w http.ResponseWriter, p string, thumbnail bool) error {
	item, err := m.item(ctx, p)
	if err != nil {
		return err
	}
	if err := item.CheckPath(); err != nil {
		return err
	}
	if err := checkFile("image", item); err != nil {
		return err
	}

	model := item
	cfg := m.storage.Config().Images.Thumbnail
	if thumbnail && cfg.Enabled {
		thumb, err := item.Thumbnail(ctx)
		if err != nil {
			return err
		}
		if !thumb.IsExists() || !cfg.Cache {
			m.thumbnails.CreateThumbnail(ctx, item)
		}
		if thumb.IsExists() {
			model = thumb
		}
	}

	if err := model.CheckReadPermission(); err != nil {
		return err
	}
	if err := model.CheckRestrictions(); err != nil {
		return err
	}

	return model.Backend().ReadFile(ctx, w, model, ReadOptions{
		ChunkSize:   PreviewChunkSize,
		Disposition: DispositionInline,
		Filename:    item.Basename(),
	})
}

// Download streams the item at p as an attachment. Folders are sent as a
// zip archive built in a temporary file.
func (m *Manager) Download(ctx context.Context, w http.ResponseWriter, p string) error {
	item, err := m.item(ctx, p)
	if err != nil {
		return err
	}
	if err := checkReadable(item); err != nil {
		return err
	}
	if item.IsRoot() {
		return notAllowed("download", item)
	}

	d, err := item.Data(ctx)
	if err != nil {
		return err
	}

	if item.IsDirectory() {
		err = m.downloadFolder(ctx, w, item)
	} else {
		err = m.storage.ReadFile(ctx, w, item, ReadOptions{
			ChunkSize:   DownloadChunkSize,
			Disposition: DispositionAttachment,
			Filename:    item.Basename(),
		})
	}
	if err != nil {
		return err
	}

	m.emit(ctx, EventItemDownload, []*ItemData{d}, nil)
	return nil
}

func (m *Manager) downloadFolder(ctx context.Context, w http.ResponseWriter, folder *Item) error {
	tmp, err := os.CreateTemp(m.tempDir, "filemanager-zip-*")
	if err != nil {
		return NewPathError("download", folder.RelativePath(), LabelErrorCreatingZip, fmt.Errorf("%w: %w", ErrBackend, err))
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	if err := ZipFolder(ctx, folder, tmp); err != nil {
		return NewPathError("download", folder.RelativePath(), LabelErrorCreatingZip, fmt.Errorf("%w: %w", ErrBackend, err))
	}
	size, err := tmp.Seek(0, io.SeekCurrent)
	if err == nil {
		_, err = tmp.Seek(0, io.SeekStart)
	}
	if err != nil {
		return NewPathError("download", folder.RelativePath(), LabelErrorCreatingZip, fmt.Errorf("%w: %w", ErrBackend, err))
	}

	rng, _, _ := ParseRange("", size)
	return ServeRange(w, tmp, rng, false, MIMETypeApplicationZip, ReadOptions{
		ChunkSize:   DownloadChunkSize,
		Disposition: DispositionAttachment,
		Filename:    folder.Basename() + ".zip",
	})
}

// ============================================================================
// Archives
// ============================================================================

// Extract unpacks the archive at source into the folder at target. Folders
// are created before files are written. Restricted entries and entries that
// fail to extract are skipped. The result lists the extracted items at the
// top level of the archive; the event carries their absolute paths.
func (m *Manager) Extract(ctx context.Context, source, target string) ([]*ItemData, error) {
	src, err := m.item(ctx, source)
	if err != nil {
		return nil, err
	}
	if err := checkReadable(src); err != nil {
		return nil, err
	}
	if err := checkFile("extract", src); err != nil {
		return nil, err
	}

	dst, err := m.item(ctx, target)
	if err != nil {
		return nil, err
	}
	if err := dst.CheckPath(); err != nil {
		return nil, err
	}
	if err := checkFolder(dst); err != nil {
		return nil, err
	}
	if err := dst.CheckWritePermission(); err != nil {
		return nil, err
	}
	if err := dst.CheckRestrictions(); err != nil {
		return nil, err
	}

	extractErr := func(err error) error {
		return NewPathError("extract", src.RelativePath(), LabelErrorExtractingFile, err)
	}

	tmp, size, err := m.spool(ctx, src)
	if err != nil {
		return nil, extractErr(err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	archive, err := m.archives.OpenArchive(tmp, size)
	if err != nil {
		return nil, extractErr(err)
	}
	defer archive.Close()

	x := extraction{manager: m, archive: archive, base: dst.RelativePath()}
	if err := x.run(ctx); err != nil {
		return nil, extractErr(err)
	}

	items := make([]*ItemData, 0, len(x.roots))
	for _, name := range x.roots {
		item, err := m.item(ctx, dst.RelativePath()+name)
		if err != nil {
			return nil, err
		}
		if !item.IsExists() {
			continue
		}
		d, err := item.Data(ctx)
		if err != nil {
			return nil, err
		}
		items = append(items, d)
	}

	srcData, err := src.Data(ctx)
	if err != nil {
		return nil, err
	}
	m.emit(ctx, EventFileExtract, []*ItemData{srcData}, x.paths)
	return items, nil
}

// spool copies a file item to a temporary file and returns it with its size.
func (m *Manager) spool(ctx context.Context, item *Item) (*os.File, int64, error) {
	r, err := item.Backend().Open(ctx, item)
	if err != nil {
		return nil, 0, err
	}
	defer r.Close()

	tmp, err := os.CreateTemp(m.tempDir, "filemanager-archive-*")
	if err != nil {
		return nil, 0, err
	}
	size, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, 0, err
	}
	return tmp, size, nil
}

// extraction tracks one Extract run.
type extraction struct {
	manager *Manager
	archive Archive
	base    string

	// roots are the top level names in order of first appearance, folders
	// with a trailing slash.
	roots []string
	seen  map[string]bool
	// paths are the absolute paths of the extracted entries.
	paths []string
}

// run extracts folders first, then files. An entry that fails is logged and
// skipped; only cancellation stops the extraction.
func (x *extraction) run(ctx context.Context) error {
	x.seen = make(map[string]bool)
	entries := x.archive.Entries()

	for _, dirs := range []bool{true, false} {
		for _, e := range entries {
			if e.IsDir != dirs {
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			extract := x.file
			if e.IsDir {
				extract = x.folder
			}
			if err := extract(ctx, e); err != nil {
				if ctx.Err() != nil {
					return err
				}
				x.manager.logger.Warn("archive entry not extracted", "name", e.Name, "err", err)
			}
		}
	}
	return nil
}

// entry resolves an archive entry to an item, or nil when the entry is
// unsafe or restricted.
func (x *extraction) entry(ctx context.Context, e ArchiveEntry) (*Item, error) {
	if !isSafeEntry(e.Name) {
		x.manager.logger.Warn("archive entry skipped", "name", e.Name)
		return nil, nil
	}
	item, err := x.manager.item(ctx, x.base+e.Name)
	if err != nil {
		return nil, err
	}
	if !item.IsUnrestricted() {
		return nil, nil
	}
	return item, nil
}

func (x *extraction) folder(ctx context.Context, e ArchiveEntry) error {
	item, err := x.entry(ctx, e)
	if err != nil || item == nil {
		return err
	}
	if !item.IsExists() {
		if err := x.manager.storage.CreateFolder(ctx, item, nil, WithRecursive(true)); err != nil && !IsConflict(err) {
			return err
		}
	}
	x.track(e.Name, item, true)
	return nil
}

func (x *extraction) file(ctx context.Context, e ArchiveEntry) error {
	item, err := x.entry(ctx, e)
	if err != nil || item == nil {
		return err
	}
	if item.IsExists() && item.IsDirectory() {
		return nil
	}

	parent, err := item.Closest(ctx)
	if err != nil {
		return err
	}
	if parent != nil && !parent.IsExists() {
		if err := x.manager.storage.CreateFolder(ctx, parent, nil, WithRecursive(true)); err != nil && !IsConflict(err) {
			return err
		}
	}

	r, err := x.archive.Open(e.Name)
	if err != nil {
		return err
	}
	defer r.Close()
	if _, err := x.manager.storage.Write(ctx, item, r); err != nil {
		return err
	}
	x.track(e.Name, item, false)
	return nil
}

func (x *extraction) track(name string, item *Item, isDir bool) {
	x.paths = append(x.paths, item.AbsolutePath())
	first, atRoot := rootEntry(name)
	if isDir || !atRoot {
		first += "/"
	}
	if !x.seen[first] {
		x.seen[first] = true
		x.roots = append(x.roots, first)
	}
}
