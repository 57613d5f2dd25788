package codec

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"sort"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/avif"
)

// AVIFEncoder encodes images as AVIF through gen2brain/avif.
type AVIFEncoder struct {
	opts avif.Options
}

// NewAVIFEncoder returns an AVIF encoder with the given quality and speed.
func NewAVIFEncoder(o Options) *AVIFEncoder {
	return &AVIFEncoder{
		opts: avif.Options{
			Quality:           o.Quality,
			QualityAlpha:      o.Quality,
			Speed:             o.Speed,
			ChromaSubsampling: image.YCbCrSubsampleRatio420,
		},
	}
}

func (e *AVIFEncoder) Format() string    { return "avif" }
func (e *AVIFEncoder) Extension() string { return ".avif" }

// Encode writes img to w as AVIF.
func (e *AVIFEncoder) Encode(w io.Writer, img image.Image) error {
	if err := avif.Encode(w, img, e.opts); err != nil {
		return fmt.Errorf("avif encode: %w", err)
	}
	return nil
}

// ImagingEncoder encodes images through imaging for the formats it supports.
type ImagingEncoder struct {
	format string
	ext    string
	target imaging.Format
	opts   []imaging.EncodeOption
}

func (e *ImagingEncoder) Format() string    { return e.format }
func (e *ImagingEncoder) Extension() string { return e.ext }

// Encode writes img to w in the encoder's format.
func (e *ImagingEncoder) Encode(w io.Writer, img image.Image) error {
	if err := imaging.Encode(w, img, e.target, e.opts...); err != nil {
		return fmt.Errorf("%s encode: %w", e.format, err)
	}
	return nil
}

type encoderFactory func(o Options) Encoder

var encoders = map[string]encoderFactory{
	"avif": func(o Options) Encoder { return NewAVIFEncoder(o) },
	"jpeg": func(o Options) Encoder {
		return &ImagingEncoder{
			format: "jpeg", ext: ".jpg", target: imaging.JPEG,
			opts: []imaging.EncodeOption{imaging.JPEGQuality(o.Quality)},
		}
	},
	"png": func(o Options) Encoder {
		return &ImagingEncoder{
			format: "png", ext: ".png", target: imaging.PNG,
			opts: []imaging.EncodeOption{imaging.PNGCompressionLevel(png.BestCompression)},
		}
	},
	"gif": func(o Options) Encoder {
		return &ImagingEncoder{format: "gif", ext: ".gif", target: imaging.GIF}
	},
	"tiff": func(o Options) Encoder {
		return &ImagingEncoder{format: "tiff", ext: ".tiff", target: imaging.TIFF}
	},
	"bmp": func(o Options) Encoder {
		return &ImagingEncoder{format: "bmp", ext: ".bmp", target: imaging.BMP}
	},
}

// NewEncoder returns the encoder registered for format. "jpg" is accepted as
// an alias for "jpeg".
func NewEncoder(format string, o Options) (Encoder, error) {
	format = strings.ToLower(strings.TrimPrefix(format, "."))
	if format == "jpg" {
		format = "jpeg"
	}
	factory, ok := encoders[format]
	if !ok {
		return nil, fmt.Errorf("%w: target %q", ErrUnsupportedFormat, format)
	}
	return factory(o), nil
}

// TargetFormats returns the names of every registered target format.
func TargetFormats() []string {
	names := make([]string, 0, len(encoders))
	for name := range encoders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsTargetFormat reports whether NewEncoder would accept format.
func IsTargetFormat(format string) bool {
	_, err := NewEncoder(format, DefaultOptions())
	return err == nil
}
