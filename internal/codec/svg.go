package codec

import (
	"fmt"
	"image"
	"io"
	"math"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

const (
	defaultSVGSize = 512
	maxSVGSide     = 16384
)

// rasterizeSVG renders an SVG document at its view-box size. Documents
// without a usable view box are rendered into a fallback square.
func rasterizeSVG(r io.Reader, fallback int) (image.Image, error) {
	icon, err := oksvg.ReadIconStream(r)
	if err != nil {
		return nil, fmt.Errorf("parse svg: %w", err)
	}

	w := int(math.Ceil(icon.ViewBox.W))
	h := int(math.Ceil(icon.ViewBox.H))
	if w <= 0 || h <= 0 {
		w, h = fallback, fallback
	}
	if w > maxSVGSide || h > maxSVGSide {
		return nil, fmt.Errorf("svg view box %dx%d exceeds %d pixels per side", w, h, maxSVGSide)
	}

	icon.SetTarget(0, 0, float64(w), float64(h))
	rgba := image.NewRGBA(image.Rect(0, 0, w, h))
	scanner := rasterx.NewScannerGV(w, h, rgba, rgba.Bounds())
	icon.Draw(rasterx.NewDasher(w, h, scanner), 1)

	return rgba, nil
}
