package filemanager

import (
	"context"
	"fmt"
)

// ThumbnailFactory decides which storage holds thumbnails and renders them.
type ThumbnailFactory struct {
	registry  *Registry
	processor ImageProcessor
}

// NewThumbnailFactory returns a factory rendering with processor. A nil
// processor selects ScaleProcessor.
func NewThumbnailFactory(registry *Registry, processor ImageProcessor) *ThumbnailFactory {
	if processor == nil {
		processor = &ScaleProcessor{}
	}
	return &ThumbnailFactory{registry: registry, processor: processor}
}

// Bind sets the thumbnail storage of every registered storage: the "local"
// storage when images.thumbnail.useLocalStorage is set, the storage itself
// otherwise.
func (f *ThumbnailFactory) Bind() error {
	for _, name := range f.registry.Names() {
		s, err := f.registry.Get(name)
		if err != nil {
			return err
		}

		target := s
		if s.Config().Images.Thumbnail.UseLocalStorage && name != StorageLocal {
			local, err := f.registry.Get(StorageLocal)
			if err != nil {
				return fmt.Errorf("storage %q keeps thumbnails locally: %w", name, err)
			}
			target = local
		}
		s.SetThumbnailStorage(target)
	}
	return nil
}

// Processor returns the image processor in use.
func (f *ThumbnailFactory) Processor() ImageProcessor {
	return f.processor
}

// Thumbnail returns the thumbnail item of item.
func (f *ThumbnailFactory) Thumbnail(ctx context.Context, item *Item) (*Item, error) {
	return item.Thumbnail(ctx)
}

// CreateThumbnail renders the thumbnail of item when the item is an image.
func (f *ThumbnailFactory) CreateThumbnail(ctx context.Context, item *Item) {
	if !item.IsImageFile(ctx) {
		return
	}
	mime, err := item.Backend().GetMimeType(ctx, item.AbsolutePath())
	if err != nil || !IsRasterImage(mime) {
		return
	}
	item.CreateThumbnail(ctx, f.processor)
}
