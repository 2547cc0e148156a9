package filemanager

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// StatInfo is the backend view of a single path.
type StatInfo struct {
	Exists  bool
	IsDir   bool
	Size    int64
	ModTime time.Time
}

// DirEntry is one child returned by ReadDir. Path is relative to the storage
// root; directories end with a slash.
type DirEntry struct {
	Path string
	Info StatInfo
}

// Summary accumulates the policy filtered totals of a folder tree.
type Summary struct {
	Size      int64 `json:"size" yaml:"size"`
	Files     int   `json:"files" yaml:"files"`
	Folders   int   `json:"folders" yaml:"folders"`
	SizeLimit int64 `json:"sizeLimit" yaml:"sizeLimit"`
}

// ============================================================================
// Storage
// ============================================================================

// Storage is one configured backend. Items reference a Storage; the storage
// outlives them.
//
// Absolute paths passed to and returned from a Storage are backend
// addressable: an operating system path for the local driver and an
// s3://bucket/key URI for the S3 driver.
type Storage interface {
	SystemPermissions

	// Name returns the registry name of the storage.
	Name() string
	// Root returns the slash terminated storage root.
	Root() string
	// DynamicRoot returns the root as seen from the public base path.
	DynamicRoot() string
	// Resolver returns the path resolver of the current root.
	Resolver() Resolver
	// SetRoot moves the storage root. With makeDir the root is created when
	// missing.
	SetRoot(ctx context.Context, path string, makeDir bool) error

	Config() *Config
	Restrictions() *RestrictionEngine
	Permissions() *PermissionChecker
	Logger() *slog.Logger

	// ForThumbnail returns the storage holding the thumbnails of this one.
	ForThumbnail() Storage
	SetThumbnailStorage(s Storage)

	// Stat reports the state of abs. A missing path is not an error.
	Stat(ctx context.Context, abs string) (StatInfo, error)
	// ReadDir lists the immediate children of dir.
	ReadDir(ctx context.Context, dir *Item) ([]DirEntry, error)
	// Open streams the content of a file item.
	Open(ctx context.Context, item *Item) (io.ReadCloser, error)
	// Write stores r as the content of a file item, replacing any previous
	// content, and returns the number of bytes written.
	Write(ctx context.Context, item *Item, r io.Reader) (int64, error)

	// CreateFolder creates target. Prototype is the item whose access
	// settings the new folder inherits, nil means the parent folder.
	CreateFolder(ctx context.Context, target, prototype *Item, opts ...FolderOption) error
	CopyRecursive(ctx context.Context, source, target *Item) error
	RenameRecursive(ctx context.Context, source, target *Item) error
	UnlinkRecursive(ctx context.Context, target *Item) error

	// GetDirSummary adds the totals of the readable, unrestricted tree below
	// the relative folder dir to summary.
	GetDirSummary(ctx context.Context, dir string, summary *Summary) error
	GetRootTotalSize(ctx context.Context) (int64, error)
	GetFileSize(ctx context.Context, abs string) (int64, error)
	GetMimeType(ctx context.Context, abs string) (string, error)

	// ReadFile streams a file to w honoring an optional single byte range.
	ReadFile(ctx context.Context, w http.ResponseWriter, item *Item, opts ReadOptions) error
}

// ============================================================================
// StorageBase
// ============================================================================

// StorageBase carries the state shared by all drivers. Drivers embed it and
// implement the backend specific methods of Storage.
type StorageBase struct {
	name         string
	resolver     Resolver
	config       *Config
	restrictions *RestrictionEngine
	permissions  *PermissionChecker
	thumbnails   Storage
	logger       *slog.Logger
}

// NewStorageBase validates cfg and compiles its restriction policies.
func NewStorageBase(name string, cfg *Config, system SystemPermissions, opts ...StorageOption) (*StorageBase, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	restrictions, err := NewRestrictionEngine(cfg.Security.Extensions, cfg.Security.Patterns)
	if err != nil {
		return nil, err
	}

	o := storageOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	b := &StorageBase{
		name:         name,
		config:       cfg,
		restrictions: restrictions,
		permissions: &PermissionChecker{
			ReadOnly:   cfg.Security.ReadOnly,
			System:     system,
			Authorizer: o.authorizer,
		},
		logger: o.logger.With("storage", name),
	}

	for _, rules := range []RestrictionRules{cfg.Security.Extensions, cfg.Security.Patterns} {
		if rules.Policy != AllowList && rules.Policy != DisallowList {
			b.logger.Warn("unknown restriction policy, every path is denied", "policy", rules.Policy)
		}
	}

	return b, nil
}

func (b *StorageBase) Name() string                     { return b.name }
func (b *StorageBase) Root() string                     { return b.resolver.Root() }
func (b *StorageBase) DynamicRoot() string              { return b.resolver.DynamicRoot() }
func (b *StorageBase) Resolver() Resolver               { return b.resolver }
func (b *StorageBase) Config() *Config                  { return b.config }
func (b *StorageBase) Restrictions() *RestrictionEngine { return b.restrictions }
func (b *StorageBase) Permissions() *PermissionChecker  { return b.permissions }
func (b *StorageBase) Logger() *slog.Logger             { return b.logger }

// SetResolver replaces the root of the storage. Drivers call it from SetRoot.
func (b *StorageBase) SetResolver(r Resolver) {
	b.resolver = r
}

// ForThumbnail returns the bound thumbnail storage. Drivers bind themselves
// at construction.
func (b *StorageBase) ForThumbnail() Storage {
	return b.thumbnails
}

func (b *StorageBase) SetThumbnailStorage(s Storage) {
	b.thumbnails = s
}

// ============================================================================
// Options
// ============================================================================

// StorageOption configures a storage at construction.
type StorageOption func(*storageOptions)

type storageOptions struct {
	logger     *slog.Logger
	authorizer Authorizer
}

// WithLogger sets the logger used by the storage.
func WithLogger(logger *slog.Logger) StorageOption {
	return func(o *storageOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithAuthorizer installs the read and write permission callbacks.
func WithAuthorizer(a Authorizer) StorageOption {
	return func(o *storageOptions) {
		o.authorizer = a
	}
}

// ============================================================================
// Helpers shared by drivers
// ============================================================================

// RootTotalSize sums the policy filtered size of the whole storage.
func RootTotalSize(ctx context.Context, s Storage) (int64, error) {
	var summary Summary
	if err := s.GetDirSummary(ctx, "/", &summary); err != nil {
		return 0, err
	}
	return summary.Size, nil
}

// CountsInSummary reports whether a child belongs in a folder summary: it
// must be readable and pass the restriction policies.
func CountsInSummary(item *Item) bool {
	return item.HasReadPermission() && item.IsUnrestricted()
}
