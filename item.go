package filemanager

import (
	"bytes"
	"context"
	"strings"
)

// Item is a file or folder addressed by its path relative to a storage root.
//
// Existence and type are read from the backend when the item is built and on
// ResetStats only. After a mutation the caller must call ResetStats before
// building a new snapshot with Data.
//
// An Item is not safe for concurrent use.
type Item struct {
	storage   Storage
	thumbnail bool

	relative string
	absolute string
	info     StatInfo

	data   *ItemData
	parent *Item
	thumb  *Item
}

// NewItem builds the item at path p of storage s.
func NewItem(ctx context.Context, s Storage, p string) (*Item, error) {
	return newItem(ctx, s, p, false)
}

// NewThumbnailItem builds an item below the thumbnail folder. The item is
// addressed in s.ForThumbnail() while restrictions and settings come from s.
func NewThumbnailItem(ctx context.Context, s Storage, p string) (*Item, error) {
	return newItem(ctx, s, p, true)
}

// NewItemFromStat builds an item from a known backend state without querying
// the backend.
func NewItemFromStat(s Storage, p string, info StatInfo) *Item {
	i := &Item{storage: s}
	i.setPath(p)
	i.applyStat(info)
	return i
}

func newItem(ctx context.Context, s Storage, p string, thumbnail bool) (*Item, error) {
	i := &Item{storage: s, thumbnail: thumbnail}
	i.setPath(p)
	if err := i.ResetStats(ctx); err != nil {
		return nil, err
	}
	return i, nil
}

func (i *Item) setPath(p string) {
	i.relative = NormalizeRelative(p)
	i.absolute = i.Backend().Resolver().Absolute(i.relative)
}

func (i *Item) applyStat(info StatInfo) {
	i.info = info
	i.data = nil
	if info.Exists && info.IsDir && !strings.HasSuffix(i.relative, "/") {
		i.setPath(i.relative + "/")
	}
}

// ResetStats queries the backend again and drops the cached snapshot.
func (i *Item) ResetStats(ctx context.Context) error {
	info, err := i.Backend().Stat(ctx, i.absolute)
	if err != nil {
		return err
	}
	i.applyStat(info)
	return nil
}

// ResetPath points the item to a new path, drops the cached parent and
// thumbnail and queries the backend.
func (i *Item) ResetPath(ctx context.Context, p string) error {
	i.setPath(p)
	i.parent = nil
	i.thumb = nil
	return i.ResetStats(ctx)
}

// Storage returns the storage the item belongs to.
func (i *Item) Storage() Storage { return i.storage }

// Backend returns the storage holding the bytes of the item. It differs from
// Storage only for thumbnail items.
func (i *Item) Backend() Storage {
	if i.thumbnail {
		if t := i.storage.ForThumbnail(); t != nil {
			return t
		}
	}
	return i.storage
}

// IsDirectory reports whether the item is a folder. Missing items are
// folders when their path ends with a slash.
func (i *Item) IsDirectory() bool {
	if i.info.Exists {
		return i.info.IsDir
	}
	return strings.HasSuffix(i.relative, "/")
}

func (i *Item) IsExists() bool       { return i.info.Exists }
func (i *Item) IsThumbnail() bool    { return i.thumbnail }
func (i *Item) Stat() StatInfo       { return i.info }
func (i *Item) RelativePath() string { return i.relative }
func (i *Item) AbsolutePath() string { return i.absolute }

// DynamicPath returns the path below the public base path.
func (i *Item) DynamicPath() string {
	return i.Backend().Resolver().Dynamic(i.relative)
}

// IsRoot reports whether the item is the storage root, or the thumbnail
// folder for thumbnail items.
func (i *Item) IsRoot() bool {
	r := i.Backend().Resolver()
	if i.thumbnail {
		r = r.Sub(i.thumbnailDir())
	}
	return r.IsRoot(i.absolute)
}

// Basename returns the last element of the path.
func (i *Item) Basename() string {
	return Base(i.relative)
}

func (i *Item) thumbnailDir() string {
	return i.storage.Config().Images.Thumbnail.Dir
}

// ThumbnailPath returns the relative path of the thumbnail of the item.
func (i *Item) ThumbnailPath() string {
	if i.thumbnail {
		return i.relative
	}
	return CleanPath("/" + i.thumbnailDir() + "/" + i.relative)
}

// OriginalPath returns the relative path of the original of a thumbnail item.
func (i *Item) OriginalPath() string {
	if !i.thumbnail {
		return i.relative
	}
	prefix := "/" + strings.Trim(i.thumbnailDir(), "/")
	if strings.HasPrefix(i.relative, prefix) {
		return CleanPath("/" + i.relative[len(prefix):])
	}
	return i.relative
}

// Closest returns the parent folder, or nil for the root.
func (i *Item) Closest(ctx context.Context) (*Item, error) {
	if i.IsRoot() {
		return nil, nil
	}
	if i.parent == nil {
		parent, err := newItem(ctx, i.storage, Dir(i.relative), i.thumbnail)
		if err != nil {
			return nil, err
		}
		i.parent = parent
	}
	return i.parent, nil
}

// Thumbnail returns the thumbnail item of this item. A thumbnail item is its
// own thumbnail.
func (i *Item) Thumbnail(ctx context.Context) (*Item, error) {
	if i.thumbnail {
		return i, nil
	}
	if i.thumb == nil {
		thumb, err := NewThumbnailItem(ctx, i.storage, i.ThumbnailPath())
		if err != nil {
			return nil, err
		}
		i.thumb = thumb
	}
	return i.thumb, nil
}

// Remove deletes the item and everything below it.
func (i *Item) Remove(ctx context.Context) error {
	return i.Backend().UnlinkRecursive(ctx, i)
}

// CreateThumbnail renders the thumbnail of an image item. Missing
// preconditions and rendering failures are logged, never returned.
func (i *Item) CreateThumbnail(ctx context.Context, processor ImageProcessor) {
	cfg := i.storage.Config().Images.Thumbnail
	if processor == nil || !cfg.Enabled || !i.HasReadPermission() {
		return
	}

	logger := i.storage.Logger().With("path", i.relative)

	thumb, err := i.Thumbnail(ctx)
	if err != nil {
		logger.Warn("thumbnail lookup failed", "err", err)
		return
	}
	target, err := thumb.Closest(ctx)
	if err != nil || target == nil {
		return
	}

	existent, err := closestExisting(ctx, target)
	if err != nil {
		logger.Warn("thumbnail lookup failed", "err", err)
		return
	}
	if existent == nil || !existent.HasWritePermission() {
		return
	}

	backend := thumb.Backend()
	logger.Info("generating thumbnail", "thumbnail", thumb.AbsolutePath())

	if !target.IsExists() {
		if err := backend.CreateFolder(ctx, target, nil, WithRecursive(true)); err != nil && !IsConflict(err) {
			logger.Warn("thumbnail folder creation failed", "err", err)
			return
		}
	}

	src, err := i.Backend().Open(ctx, i)
	if err != nil {
		logger.Warn("thumbnail source unreadable", "err", err)
		return
	}
	defer src.Close()

	var buf bytes.Buffer
	opts := ResizeOptions{Width: cfg.MaxWidth, Height: cfg.MaxHeight, Crop: cfg.Crop}
	if err := processor.Resize(ctx, src, &buf, opts); err != nil {
		logger.Warn("thumbnail rendering failed", "err", err)
		return
	}
	if _, err := backend.Write(ctx, thumb, &buf); err != nil {
		logger.Warn("thumbnail write failed", "err", err)
		return
	}
	if err := thumb.ResetStats(ctx); err != nil {
		logger.Warn("thumbnail stat failed", "err", err)
	}
}

// closestExisting walks up from item to the first existing folder. When
// the thumbnail folder itself is missing the backend root is used.
func closestExisting(ctx context.Context, item *Item) (*Item, error) {
	current := item
	for !current.IsExists() {
		next, err := current.Closest(ctx)
		if err != nil {
			return nil, err
		}
		if next == nil {
			if current.IsThumbnail() {
				return NewItem(ctx, current.Backend(), "/")
			}
			return nil, nil
		}
		current = next
	}
	return current, nil
}

// ============================================================================
// Restrictions and permissions
// ============================================================================

// IsAllowedExtension applies the extension policy to the item path.
func (i *Item) IsAllowedExtension() bool {
	return i.storage.Restrictions().IsAllowedExtension(i.relative)
}

// IsAllowedPattern applies the pattern policy to the original path.
func (i *Item) IsAllowedPattern() bool {
	return i.storage.Restrictions().IsAllowedPattern(i.OriginalPath())
}

// IsUnrestricted reports whether both policies allow the item.
func (i *Item) IsUnrestricted() bool {
	return i.storage.Restrictions().IsUnrestricted(i.relative, i.OriginalPath(), i.IsDirectory())
}

// CheckRestrictions returns a labeled error when a policy denies the item.
func (i *Item) CheckRestrictions() error {
	if !i.IsDirectory() && !i.IsAllowedExtension() {
		return NewPathError("restrict", i.relative, LabelForbiddenName, ErrRestrictedExtension)
	}
	if !i.IsAllowedPattern() {
		return NewPathError("restrict", i.relative, LabelInvalidFileType, ErrRestrictedPattern)
	}
	return nil
}

func (i *Item) HasReadPermission() bool {
	return i.Backend().Permissions().CanRead(i.absolute, i.info.Exists)
}

func (i *Item) HasWritePermission() bool {
	return i.Backend().Permissions().CanWrite(i.absolute, i.info.Exists)
}

// CheckReadPermission returns a labeled error when reading is denied.
func (i *Item) CheckReadPermission() error {
	if err := i.Backend().Permissions().CheckRead(i.absolute); err != nil {
		return relabel(err, i.relative)
	}
	return nil
}

// CheckWritePermission returns a labeled error when writing is denied.
func (i *Item) CheckWritePermission() error {
	if err := i.Backend().Permissions().CheckWrite(i.absolute); err != nil {
		return relabel(err, i.relative)
	}
	return nil
}

// IsValidPath reports whether the absolute path stays below the root and
// carries no traversal sequence.
func (i *Item) IsValidPath() bool {
	valid := i.Backend().Resolver().IsValid(i.absolute)
	if !valid {
		i.storage.Logger().Info("invalid path", "path", i.absolute)
	}
	return valid
}

// checkTarget rejects the path a new item would take in s when it leaves the
// root or carries a traversal sequence. The backend is not queried.
func checkTarget(s Storage, op, rel string) error {
	r := s.Resolver()
	abs := r.Absolute(rel)
	if r.IsValid(abs) {
		return nil
	}
	s.Logger().Info("invalid path", "path", abs)
	label := labelFor(strings.HasSuffix(rel, "/"), LabelInvalidDirPath, LabelInvalidFilePath)
	return NewPathError(op, NormalizeRelative(rel), label, ErrInvalidPath)
}

// CheckPath asserts that the item exists and its path is valid.
func (i *Item) CheckPath() error {
	if !i.IsExists() {
		label := labelFor(i.IsDirectory(), LabelDirNotExist, LabelFileNotExist)
		return NewPathError("stat", i.relative, label, ErrNotFound)
	}
	if !i.IsValidPath() {
		label := labelFor(i.IsDirectory(), LabelInvalidDirPath, LabelInvalidFilePath)
		return NewPathError("stat", i.relative, label, ErrInvalidPath)
	}
	return nil
}

// IsImageFile reports whether the item is an existing file with an image
// MIME type.
func (i *Item) IsImageFile(ctx context.Context) bool {
	if i.IsDirectory() || !i.IsExists() {
		return false
	}
	mime, err := i.Backend().GetMimeType(ctx, i.absolute)
	if err != nil {
		return false
	}
	return IsImageMimeType(mime)
}

// relabel reports permission errors against the relative path so absolute
// backend paths never reach clients.
func relabel(err error, rel string) error {
	if pe, ok := err.(*PathError); ok {
		return NewPathError(pe.Op, rel, pe.Label, pe.Err)
	}
	return err
}
