package filemanager

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"

	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// ResizeOptions are the target bounds of a thumbnail.
type ResizeOptions struct {
	Width  int
	Height int
	// Crop fills the whole box and cuts the overflow instead of fitting the
	// image inside it.
	Crop bool
}

// ImageProcessor renders a resized copy of src into dst.
type ImageProcessor interface {
	Resize(ctx context.Context, src io.Reader, dst io.Writer, opts ResizeOptions) error
}

// ImageProcessorFunc adapts a function to an ImageProcessor.
type ImageProcessorFunc func(ctx context.Context, src io.Reader, dst io.Writer, opts ResizeOptions) error

func (f ImageProcessorFunc) Resize(ctx context.Context, src io.Reader, dst io.Writer, opts ResizeOptions) error {
	return f(ctx, src, dst, opts)
}

// ImageSize reads the dimensions of an image from its header.
func ImageSize(r io.Reader) (width, height int, err error) {
	cfg, _, err := image.DecodeConfig(r)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

// CheckBounds returns a labeled error when width or height falls outside b.
// Zero bounds are ignored.
func (b ImageBounds) CheckBounds(p string, width, height int) error {
	switch {
	case b.MaxWidth > 0 && width > b.MaxWidth:
		return NewPathError("upload", p, LabelImageTooWide, ErrImageDimensions, fmt.Sprint(b.MaxWidth))
	case b.MaxHeight > 0 && height > b.MaxHeight:
		return NewPathError("upload", p, LabelImageTooHigh, ErrImageDimensions, fmt.Sprint(b.MaxHeight))
	case b.MinWidth > 0 && width < b.MinWidth:
		return NewPathError("upload", p, LabelImageTooNarrow, ErrImageDimensions, fmt.Sprint(b.MinWidth))
	case b.MinHeight > 0 && height < b.MinHeight:
		return NewPathError("upload", p, LabelImageTooLow, ErrImageDimensions, fmt.Sprint(b.MinHeight))
	}
	return nil
}

// HasBounds reports whether any dimension bound is set.
func (b ImageBounds) HasBounds() bool {
	return b.MaxWidth > 0 || b.MaxHeight > 0 || b.MinWidth > 0 || b.MinHeight > 0
}

const exifOrientationTag = 0x0112

// ExifOrientation returns the EXIF orientation (1 to 8) of a JPEG stream.
// Streams without a readable orientation report 1.
func ExifOrientation(r io.Reader) int {
	br := bufio.NewReader(r)

	var soi [2]byte
	if _, err := io.ReadFull(br, soi[:]); err != nil || soi != [2]byte{0xFF, 0xD8} {
		return 1
	}

	for {
		var marker [4]byte
		if _, err := io.ReadFull(br, marker[:2]); err != nil || marker[0] != 0xFF {
			return 1
		}
		// start of scan or end of image: no more metadata
		if marker[1] == 0xDA || marker[1] == 0xD9 {
			return 1
		}
		if _, err := io.ReadFull(br, marker[2:]); err != nil {
			return 1
		}
		length := int(binary.BigEndian.Uint16(marker[2:])) - 2
		if length < 0 {
			return 1
		}

		if marker[1] != 0xE1 {
			if _, err := br.Discard(length); err != nil {
				return 1
			}
			continue
		}

		segment := make([]byte, length)
		if _, err := io.ReadFull(br, segment); err != nil {
			return 1
		}
		if o := orientationFromExif(segment); o != 0 {
			return o
		}
	}
}

func orientationFromExif(segment []byte) int {
	if !bytes.HasPrefix(segment, []byte("Exif\x00\x00")) {
		return 0
	}
	tiff := segment[6:]
	if len(tiff) < 8 {
		return 1
	}

	var order binary.ByteOrder
	switch string(tiff[:2]) {
	case "II":
		order = binary.LittleEndian
	case "MM":
		order = binary.BigEndian
	default:
		return 1
	}

	ifd := int(order.Uint32(tiff[4:8]))
	if ifd+2 > len(tiff) {
		return 1
	}
	entries := int(order.Uint16(tiff[ifd:]))
	for n := 0; n < entries; n++ {
		off := ifd + 2 + n*12
		if off+12 > len(tiff) {
			return 1
		}
		if order.Uint16(tiff[off:]) != exifOrientationTag {
			continue
		}
		v := int(order.Uint16(tiff[off+8:]))
		if v < 1 || v > 8 {
			return 1
		}
		return v
	}
	return 1
}

// ScaleProcessor is the default ImageProcessor. It decodes jpeg, png, gif
// and bmp images, scales them with Catmull-Rom interpolation and encodes the
// result in the source format.
type ScaleProcessor struct {
	// JPEGQuality is used when encoding jpeg thumbnails. Zero means 85.
	JPEGQuality int
}

var _ ImageProcessor = (*ScaleProcessor)(nil)

func (p *ScaleProcessor) Resize(ctx context.Context, src io.Reader, dst io.Writer, opts ResizeOptions) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if opts.Width <= 0 || opts.Height <= 0 {
		return fmt.Errorf("invalid thumbnail size %dx%d", opts.Width, opts.Height)
	}

	img, format, err := image.Decode(src)
	if err != nil {
		return fmt.Errorf("decode image: %w", err)
	}

	bounds := img.Bounds()
	srcRect, dstW, dstH := fitRect(bounds, opts)
	out := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	draw.CatmullRom.Scale(out, out.Bounds(), img, srcRect, draw.Over, nil)

	switch format {
	case "jpeg":
		quality := p.JPEGQuality
		if quality == 0 {
			quality = 85
		}
		return jpeg.Encode(dst, out, &jpeg.Options{Quality: quality})
	case "png":
		return png.Encode(dst, out)
	case "gif":
		return gif.Encode(dst, out, nil)
	case "bmp":
		return bmp.Encode(dst, out)
	default:
		return fmt.Errorf("unsupported image format %q", format)
	}
}

// fitRect returns the source rectangle to sample and the thumbnail size.
// Images smaller than the box are never enlarged.
func fitRect(b image.Rectangle, opts ResizeOptions) (image.Rectangle, int, int) {
	w, h := b.Dx(), b.Dy()
	if w <= opts.Width && h <= opts.Height {
		return b, max(w, 1), max(h, 1)
	}

	if !opts.Crop {
		scale := min(float64(opts.Width)/float64(w), float64(opts.Height)/float64(h))
		return b, max(int(float64(w)*scale), 1), max(int(float64(h)*scale), 1)
	}

	// crop the source to the aspect ratio of the box, centered
	boxRatio := float64(opts.Width) / float64(opts.Height)
	srcRatio := float64(w) / float64(h)
	crop := b
	if srcRatio > boxRatio {
		cw := int(float64(h) * boxRatio)
		x := b.Min.X + (w-cw)/2
		crop = image.Rect(x, b.Min.Y, x+cw, b.Max.Y)
	} else {
		ch := int(float64(w) / boxRatio)
		y := b.Min.Y + (h-ch)/2
		crop = image.Rect(b.Min.X, y, b.Max.X, y+ch)
	}
	return crop, min(opts.Width, crop.Dx()), min(opts.Height, crop.Dy())
}
