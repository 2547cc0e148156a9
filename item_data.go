package filemanager

import (
	"context"
	"time"
)

// Resource types of the JSON API form.
const (
	TypeFile   = "file"
	TypeFolder = "folder"
)

// ItemData is a snapshot of an item used to build responses. It is never fed
// back into storage calls.
type ItemData struct {
	RelativePath string     `json:"relativePath" yaml:"relativePath"`
	AbsolutePath string     `json:"-" yaml:"-"`
	DynamicPath  string     `json:"dynamicPath" yaml:"dynamicPath"`
	IsDirectory  bool       `json:"isDirectory" yaml:"isDirectory"`
	IsExists     bool       `json:"isExists" yaml:"isExists"`
	IsRoot       bool       `json:"isRoot" yaml:"isRoot"`
	IsImage      bool       `json:"isImage" yaml:"isImage"`
	IsReadable   bool       `json:"isReadable" yaml:"isReadable"`
	IsWritable   bool       `json:"isWritable" yaml:"isWritable"`
	Basename     string     `json:"basename" yaml:"basename"`
	Size         int64      `json:"size" yaml:"size"`
	Created      time.Time  `json:"created" yaml:"created"`
	Modified     time.Time  `json:"modified" yaml:"modified"`
	Image        *ImageData `json:"image,omitempty" yaml:"image,omitempty"`
}

// ImageData describes an image item.
type ImageData struct {
	IsThumbnail   bool   `json:"isThumbnail" yaml:"isThumbnail"`
	OriginalPath  string `json:"originalPath" yaml:"originalPath"`
	ThumbnailPath string `json:"thumbnailPath" yaml:"thumbnailPath"`
	Width         int    `json:"width" yaml:"width"`
	Height        int    `json:"height" yaml:"height"`
}

// Data returns the snapshot of the item, building it on first use from the
// state read by the last ResetStats.
func (i *Item) Data(ctx context.Context) (*ItemData, error) {
	if i.data != nil {
		return i.data, nil
	}

	d := &ItemData{
		RelativePath: i.relative,
		AbsolutePath: i.absolute,
		DynamicPath:  i.DynamicPath(),
		IsDirectory:  i.IsDirectory(),
		IsExists:     i.IsExists(),
		IsRoot:       i.IsRoot(),
		IsImage:      i.IsImageFile(ctx),
		IsReadable:   i.HasReadPermission(),
		IsWritable:   i.HasWritePermission(),
		Basename:     i.Basename(),
		Created:      i.info.ModTime,
		Modified:     i.info.ModTime,
	}

	if !d.IsDirectory && d.IsReadable {
		size, err := i.Backend().GetFileSize(ctx, i.absolute)
		if err != nil {
			return nil, err
		}
		d.Size = size
	}

	if d.IsImage {
		d.Image = &ImageData{
			IsThumbnail:   i.thumbnail,
			OriginalPath:  i.OriginalPath(),
			ThumbnailPath: i.ThumbnailPath(),
		}
		if d.IsReadable {
			if w, h, err := i.imageSize(ctx); err == nil {
				d.Image.Width, d.Image.Height = w, h
			}
		}
	}

	i.data = d
	return d, nil
}

func (i *Item) imageSize(ctx context.Context) (int, int, error) {
	r, err := i.Backend().Open(ctx, i)
	if err != nil {
		return 0, 0, err
	}
	defer r.Close()
	return ImageSize(r)
}

// Resource is the JSON API representation of an item.
type Resource struct {
	ID         string             `json:"id" yaml:"id"`
	Type       string             `json:"type" yaml:"type"`
	Attributes ResourceAttributes `json:"attributes" yaml:"attributes"`
}

// ResourceAttributes are the attributes of a Resource. Size and dimensions
// are only set for files.
type ResourceAttributes struct {
	Name      string `json:"name" yaml:"name"`
	Path      string `json:"path" yaml:"path"`
	Readable  int    `json:"readable" yaml:"readable"`
	Writable  int    `json:"writable" yaml:"writable"`
	Created   string `json:"created" yaml:"created"`
	Modified  string `json:"modified" yaml:"modified"`
	Timestamp int64  `json:"timestamp" yaml:"timestamp"`
	Size      *int64 `json:"size,omitempty" yaml:"size,omitempty"`
	Width     *int   `json:"width,omitempty" yaml:"width,omitempty"`
	Height    *int   `json:"height,omitempty" yaml:"height,omitempty"`
}

// Resource formats the snapshot for the JSON API. dateFormat is a time
// layout; empty selects time.RFC3339.
func (d *ItemData) Resource(dateFormat string) Resource {
	if dateFormat == "" {
		dateFormat = time.RFC3339
	}
	var formatted string
	var timestamp int64
	if !d.Modified.IsZero() {
		formatted = d.Modified.Format(dateFormat)
		timestamp = d.Modified.Unix()
	}

	res := Resource{
		ID:   d.RelativePath,
		Type: TypeFolder,
		Attributes: ResourceAttributes{
			Name:      d.Basename,
			Path:      d.DynamicPath,
			Readable:  boolToInt(d.IsReadable),
			Writable:  boolToInt(d.IsWritable),
			Created:   formatted,
			Modified:  formatted,
			Timestamp: timestamp,
		},
	}
	if d.IsDirectory {
		return res
	}

	res.Type = TypeFile
	size := d.Size
	width, height := 0, 0
	if d.Image != nil {
		width, height = d.Image.Width, d.Image.Height
	}
	res.Attributes.Size = &size
	res.Attributes.Width = &width
	res.Attributes.Height = &height
	return res
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
