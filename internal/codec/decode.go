package codec

import (
	"fmt"
	"image"
	"io"
	"strings"

	"github.com/disintegration/imaging"

	// Registers the WEBP decoder with image.Decode, which imaging.Decode uses.
	_ "golang.org/x/image/webp"
)

// ImageDecoder decodes raster formats through imaging and rasterizes SVG.
type ImageDecoder struct {
	svgFallbackSize int
}

// NewImageDecoder returns a decoder for every extension in SourceExtensions.
func NewImageDecoder() *ImageDecoder {
	return &ImageDecoder{svgFallbackSize: defaultSVGSize}
}

// Decode decodes r according to ext. Orientation is left untouched; the
// normalizer applies it.
func (d *ImageDecoder) Decode(r io.Reader, ext string) (image.Image, error) {
	ft := FileTypeOf(strings.ToLower(ext))
	switch ft {
	case FileTypeUnknown:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	case FileTypeSVG:
		return rasterizeSVG(r, d.svgFallbackSize)
	}

	img, err := imaging.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", ft, err)
	}
	return img, nil
}

// Supports reports whether the extension maps to a known FileType.
func (d *ImageDecoder) Supports(ext string) bool {
	return FileTypeOf(ext) != FileTypeUnknown
}
