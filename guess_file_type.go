package filemanager

import (
	"io"
	"mime"
	"path"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Common MIME types
const (
	MIMETypeDirectory       = "directory"
	MIMETypeOctetStream     = "application/octet-stream"
	MIMETypeTextPlain       = "text/plain"
	MIMETypeApplicationJSON = "application/json"
	MIMETypeApplicationZip  = "application/zip"
	MIMETypeApplicationPDF  = "application/pdf"
	MIMETypeImageJPEG       = "image/jpeg"
	MIMETypeImagePNG        = "image/png"
	MIMETypeImageGIF        = "image/gif"
	MIMETypeImageBMP        = "image/bmp"
	MIMETypeImageSVG        = "image/svg+xml"
	MIMETypeImageWebP       = "image/webp"
)

// SniffLen is the number of leading bytes needed to detect a MIME type.
const SniffLen = 3072

// imageMIMETypes are the types treated as images for previews and
// thumbnails.
var imageMIMETypes = []string{
	MIMETypeImageJPEG,
	MIMETypeImagePNG,
	MIMETypeImageGIF,
	MIMETypeImageBMP,
	MIMETypeImageSVG,
}

// Extension mapping used when the content gives no answer
var extensionToMIME = map[string]string{
	".txt":  MIMETypeTextPlain,
	".json": MIMETypeApplicationJSON,
	".jpg":  MIMETypeImageJPEG,
	".jpeg": MIMETypeImageJPEG,
	".png":  MIMETypeImagePNG,
	".gif":  MIMETypeImageGIF,
	".bmp":  MIMETypeImageBMP,
	".svg":  MIMETypeImageSVG,
	".webp": MIMETypeImageWebP,
	".pdf":  MIMETypeApplicationPDF,
	".zip":  MIMETypeApplicationZip,
	".csv":  "text/csv",
	".md":   "text/markdown",
	".mp3":  "audio/mpeg",
	".mp4":  "video/mp4",
}

// DetectMIME sniffs the content of r. The name is used when the content is
// not conclusive. Parameters such as the charset are dropped.
func DetectMIME(r io.Reader, name string) string {
	mt, err := mimetype.DetectReader(io.LimitReader(r, SniffLen))
	if err != nil {
		return GuessContentType(name, nil)
	}
	contentType := stripParams(mt.String())
	if contentType == MIMETypeOctetStream {
		if guessed := guessFromExtension(name); guessed != "" {
			return guessed
		}
	}
	return contentType
}

// GuessContentType tries to determine the content type of a file from its path and data
func GuessContentType(filePath string, data []byte) string {
	if len(data) > 0 {
		contentType := stripParams(mimetype.Detect(data).String())
		if contentType != MIMETypeOctetStream {
			return contentType
		}
	}
	if contentType := guessFromExtension(filePath); contentType != "" {
		return contentType
	}
	return MIMETypeOctetStream
}

func guessFromExtension(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if contentType, ok := extensionToMIME[ext]; ok {
		return contentType
	}
	return stripParams(mime.TypeByExtension(ext))
}

// IsImageMimeType reports whether contentType is one of the image types that
// get previews and thumbnails.
func IsImageMimeType(contentType string) bool {
	return slices.Contains(imageMIMETypes, stripParams(contentType))
}

// IsRasterImage reports whether the content can be decoded to pixels, which
// excludes svg.
func IsRasterImage(contentType string) bool {
	return IsImageMimeType(contentType) && stripParams(contentType) != MIMETypeImageSVG
}

func stripParams(contentType string) string {
	if idx := strings.Index(contentType, ";"); idx != -1 {
		contentType = contentType[:idx]
	}
	return strings.TrimSpace(contentType)
}
