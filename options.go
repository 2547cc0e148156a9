package filemanager

// Chunk sizes used when streaming file content.
const (
	PreviewChunkSize  = 8 << 10
	DownloadChunkSize = 10 << 20
)

// FolderOption configures CreateFolder.
type FolderOption func(*FolderOptions)

// FolderOptions contains the options of CreateFolder
type FolderOptions struct {
	// Recursive creates missing parent folders. Enabled by default.
	Recursive bool
}

// WithRecursive enables or disables parent folder creation
func WithRecursive(recursive bool) FolderOption {
	return func(o *FolderOptions) {
		o.Recursive = recursive
	}
}

// ApplyFolderOptions returns the options resulting from opts.
func ApplyFolderOptions(opts ...FolderOption) FolderOptions {
	o := FolderOptions{Recursive: true}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Disposition values for ReadOptions.
const (
	DispositionInline     = "inline"
	DispositionAttachment = "attachment"
)

// ReadOptions controls how ReadFile streams content.
type ReadOptions struct {
	// Range is the raw value of a Range request header.
	Range string
	// ChunkSize bounds each write to the response. Zero selects
	// PreviewChunkSize.
	ChunkSize int
	// Disposition is sent in the Content-Disposition header when set.
	Disposition string
	// Filename overrides the name announced in Content-Disposition.
	Filename string
}

func (o ReadOptions) chunkSize() int {
	if o.ChunkSize <= 0 {
		return PreviewChunkSize
	}
	return o.ChunkSize
}
