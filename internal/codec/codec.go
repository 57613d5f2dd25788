package codec

import (
	"errors"
	"image"
	"io"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned when no decoder or encoder handles a format.
var ErrUnsupportedFormat = errors.New("unsupported format")

// Decoder turns encoded source bytes into a pixel buffer.
type Decoder interface {
	// Decode reads an image whose on-disk extension is ext (with leading dot).
	Decode(r io.Reader, ext string) (image.Image, error)
	// Supports reports whether the decoder handles the extension.
	Supports(ext string) bool
}

// Encoder writes a pixel buffer in the target format.
type Encoder interface {
	// Format returns the output format name (e.g. "avif", "jpeg").
	Format() string
	// Extension returns the output file extension with a leading dot.
	Extension() string
	// Encode writes img to w.
	Encode(w io.Writer, img image.Image) error
}

// Options carries the encoder knobs passed through from configuration.
type Options struct {
	Quality int // 1-100
	Speed   int // 0-10, AVIF only
}

// DefaultOptions returns the encoder options used when none are configured.
func DefaultOptions() Options {
	return Options{
		Quality: 60,
		Speed:   8,
	}
}

// FileType represents the kind of source image being processed.
type FileType int

const (
	FileTypeUnknown FileType = iota
	FileTypeJPEG
	FileTypePNG
	FileTypeBMP
	FileTypeGIF
	FileTypeTIFF
	FileTypeWEBP
	FileTypeSVG
)

var fileTypesByExt = map[string]FileType{
	".jpg":  FileTypeJPEG,
	".jpeg": FileTypeJPEG,
	".png":  FileTypePNG,
	".bmp":  FileTypeBMP,
	".gif":  FileTypeGIF,
	".tif":  FileTypeTIFF,
	".tiff": FileTypeTIFF,
	".webp": FileTypeWEBP,
	".svg":  FileTypeSVG,
}

// FileTypeOf returns the FileType for a path or extension, ignoring case.
func FileTypeOf(pathOrExt string) FileType {
	return fileTypesByExt[strings.ToLower(filepath.Ext(pathOrExt))]
}

// String returns the string representation of the FileType.
func (ft FileType) String() string {
	switch ft {
	case FileTypeJPEG:
		return "JPEG"
	case FileTypePNG:
		return "PNG"
	case FileTypeBMP:
		return "BMP"
	case FileTypeGIF:
		return "GIF"
	case FileTypeTIFF:
		return "TIFF"
	case FileTypeWEBP:
		return "WEBP"
	case FileTypeSVG:
		return "SVG"
	default:
		return "Unknown"
	}
}

// IsVector reports whether the file type needs rasterization before encoding.
func (ft FileType) IsVector() bool {
	return ft == FileTypeSVG
}

// HasEXIF reports whether the file type may carry an EXIF orientation tag.
func (ft FileType) HasEXIF() bool {
	return ft == FileTypeJPEG || ft == FileTypeTIFF
}

// SourceExtensions returns every extension the default decoder accepts.
func SourceExtensions() []string {
	return []string{".jpg", ".jpeg", ".png", ".bmp", ".gif", ".tif", ".tiff", ".webp", ".svg"}
}
