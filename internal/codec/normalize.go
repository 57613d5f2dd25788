package codec

import (
	"fmt"
	"image"
	"image/color"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
)

// EXIF orientation values.
const (
	OrientationNormal     = 1
	OrientationFlipH      = 2
	OrientationRotate180  = 3
	OrientationFlipV      = 4
	OrientationTranspose  = 5
	OrientationRotate90CW = 6
	OrientationTransverse = 7
	OrientationRotate90CC = 8
)

// Normalizer converts decoded images into the opaque 8-bit RGB layout the
// encoders expect.
type Normalizer struct {
	background color.NRGBA
}

// NewNormalizer returns a Normalizer that flattens transparency onto bg.
func NewNormalizer(bg color.NRGBA) *Normalizer {
	bg.A = 0xff
	return &Normalizer{background: bg}
}

// Normalize applies the EXIF orientation and flattens img onto the
// background. The result is fully opaque and anchored at (0, 0).
func (n *Normalizer) Normalize(img image.Image, orientation int) *image.NRGBA {
	img = Orient(img, orientation)
	b := img.Bounds()
	canvas := imaging.New(b.Dx(), b.Dy(), n.background)
	return imaging.Overlay(canvas, img, image.Pt(0, 0), 1.0)
}

// Orient transforms img so that it displays upright for the given EXIF
// orientation. Unknown values leave the image unchanged.
func Orient(img image.Image, orientation int) image.Image {
	switch orientation {
	case OrientationFlipH:
		return imaging.FlipH(img)
	case OrientationRotate180:
		return imaging.Rotate180(img)
	case OrientationFlipV:
		return imaging.FlipV(img)
	case OrientationTranspose:
		return imaging.Transpose(img)
	case OrientationRotate90CW:
		return imaging.Rotate270(img)
	case OrientationTransverse:
		return imaging.Transverse(img)
	case OrientationRotate90CC:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

// ParseColor parses "#rrggbb" or "rrggbb" into an opaque color.
func ParseColor(s string) (color.NRGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) != 6 {
		return color.NRGBA{}, fmt.Errorf("invalid color %q: want #rrggbb", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}, nil
}
