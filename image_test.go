package filemanager

import (
	"bytes"
	"context"
	"encoding/binary"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngImage(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := 0; x < width; x++ {
		img.Set(x, 0, color.RGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// exifJPEG builds the header of a JPEG carrying an APP1 segment with a
// single orientation entry.
func exifJPEG(order binary.ByteOrder, orientation uint16) []byte {
	tiff := make([]byte, 8+2+12+4)
	if order == binary.LittleEndian {
		copy(tiff, "II")
	} else {
		copy(tiff, "MM")
	}
	order.PutUint16(tiff[2:], 42)
	order.PutUint32(tiff[4:], 8)
	order.PutUint16(tiff[8:], 1)
	order.PutUint16(tiff[10:], exifOrientationTag)
	order.PutUint16(tiff[12:], 3)
	order.PutUint32(tiff[14:], 1)
	order.PutUint16(tiff[18:], orientation)

	segment := append([]byte("Exif\x00\x00"), tiff...)
	var b bytes.Buffer
	b.Write([]byte{0xFF, 0xD8})
	// an unrelated APP0 segment first
	b.Write([]byte{0xFF, 0xE0, 0x00, 0x04, 'J', 'F'})
	b.Write([]byte{0xFF, 0xE1})
	_ = binary.Write(&b, binary.BigEndian, uint16(len(segment)+2))
	b.Write(segment)
	b.Write([]byte{0xFF, 0xDA, 0x00, 0x02})
	return b.Bytes()
}

func TestExifOrientation(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want int
	}{
		{"big endian", exifJPEG(binary.BigEndian, 6), 6},
		{"little endian", exifJPEG(binary.LittleEndian, 8), 8},
		{"normal", exifJPEG(binary.BigEndian, 1), 1},
		{"out of range", exifJPEG(binary.BigEndian, 12), 1},
		{"not a jpeg", []byte("GIF89a"), 1},
		{"empty", nil, 1},
		{"truncated", exifJPEG(binary.BigEndian, 6)[:12], 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExifOrientation(bytes.NewReader(tt.data)))
		})
	}
}

func TestImageBounds_CheckBounds(t *testing.T) {
	bounds := ImageBounds{MaxWidth: 100, MaxHeight: 80, MinWidth: 10, MinHeight: 5}
	tests := []struct {
		name          string
		width, height int
		label         string
	}{
		{"inside", 50, 50, ""},
		{"on the edges", 100, 80, ""},
		{"too wide", 101, 50, LabelImageTooWide},
		{"too high", 50, 81, LabelImageTooHigh},
		{"too narrow", 9, 50, LabelImageTooNarrow},
		{"too low", 50, 4, LabelImageTooLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := bounds.CheckBounds("/a.png", tt.width, tt.height)
			if tt.label == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrImageDimensions)
			assert.Equal(t, tt.label, LabelOf(err))
		})
	}

	assert.True(t, bounds.HasBounds())
	assert.False(t, ImageBounds{AutoOrient: true}.HasBounds())
	assert.NoError(t, ImageBounds{}.CheckBounds("/a.png", 10000, 1))
}

func TestFitRect(t *testing.T) {
	tests := []struct {
		name     string
		src      image.Rectangle
		opts     ResizeOptions
		wantRect image.Rectangle
		wantW    int
		wantH    int
	}{
		{"small image kept", image.Rect(0, 0, 10, 20), ResizeOptions{Width: 64, Height: 64}, image.Rect(0, 0, 10, 20), 10, 20},
		{"fit landscape", image.Rect(0, 0, 200, 100), ResizeOptions{Width: 64, Height: 64}, image.Rect(0, 0, 200, 100), 64, 32},
		{"crop landscape", image.Rect(0, 0, 200, 100), ResizeOptions{Width: 64, Height: 64, Crop: true}, image.Rect(50, 0, 150, 100), 64, 64},
		{"crop portrait", image.Rect(0, 0, 100, 300), ResizeOptions{Width: 50, Height: 50, Crop: true}, image.Rect(0, 100, 100, 200), 50, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rect, w, h := fitRect(tt.src, tt.opts)
			assert.Equal(t, tt.wantRect, rect)
			assert.Equal(t, tt.wantW, w)
			assert.Equal(t, tt.wantH, h)
		})
	}
}

func TestScaleProcessor(t *testing.T) {
	ctx := context.Background()
	p := &ScaleProcessor{}

	t.Run("png", func(t *testing.T) {
		var out bytes.Buffer
		err := p.Resize(ctx, bytes.NewReader(pngImage(t, 200, 100)), &out, ResizeOptions{Width: 64, Height: 64})
		require.NoError(t, err)

		cfg, format, err := image.DecodeConfig(&out)
		require.NoError(t, err)
		assert.Equal(t, "png", format)
		assert.Equal(t, 64, cfg.Width)
		assert.Equal(t, 32, cfg.Height)
	})

	t.Run("jpeg", func(t *testing.T) {
		var src bytes.Buffer
		require.NoError(t, jpeg.Encode(&src, image.NewGray(image.Rect(0, 0, 300, 300)), nil))

		var out bytes.Buffer
		require.NoError(t, p.Resize(ctx, &src, &out, ResizeOptions{Width: 30, Height: 30, Crop: true}))

		w, h, err := ImageSize(&out)
		require.NoError(t, err)
		assert.Equal(t, 30, w)
		assert.Equal(t, 30, h)
	})

	t.Run("not an image", func(t *testing.T) {
		err := p.Resize(ctx, bytes.NewReader([]byte("plain text")), &bytes.Buffer{}, ResizeOptions{Width: 10, Height: 10})
		require.Error(t, err)
	})

	t.Run("invalid size", func(t *testing.T) {
		err := p.Resize(ctx, bytes.NewReader(pngImage(t, 5, 5)), &bytes.Buffer{}, ResizeOptions{})
		require.Error(t, err)
	})

	t.Run("canceled", func(t *testing.T) {
		canceled, cancel := context.WithCancel(ctx)
		cancel()
		err := p.Resize(canceled, bytes.NewReader(pngImage(t, 5, 5)), &bytes.Buffer{}, ResizeOptions{Width: 1, Height: 1})
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestGuessContentType(t *testing.T) {
	assert.Equal(t, MIMETypeImagePNG, GuessContentType("/a.bin", pngImage(t, 1, 1)))
	assert.Equal(t, MIMETypeImageJPEG, GuessContentType("/photo.JPG", nil))
	assert.Equal(t, MIMETypeApplicationZip, GuessContentType("/a.zip", nil))

	assert.True(t, IsRasterImage(MIMETypeImagePNG))
	assert.False(t, IsRasterImage(MIMETypeImageSVG))
	assert.True(t, IsImageMimeType(MIMETypeImageSVG))
	assert.False(t, IsImageMimeType(MIMETypeApplicationPDF))
}
