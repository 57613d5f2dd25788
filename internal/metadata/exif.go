package metadata

import (
	"io"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/sirupsen/logrus"
)

// EXIFProbe reads orientation tags with rwcarlsen/goexif.
type EXIFProbe struct {
	logger *logrus.Logger
}

// NewEXIFProbe returns a new EXIFProbe.
func NewEXIFProbe(logger *logrus.Logger) *EXIFProbe {
	return &EXIFProbe{logger: logger}
}

// Orientation returns the EXIF orientation of the image in r, or 1.
func (p *EXIFProbe) Orientation(r io.Reader) int {
	x, err := exif.Decode(r)
	if err != nil {
		p.logger.Debugf("No EXIF data: %v", err)
		return 1
	}

	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}

	v, err := tag.Int(0)
	if err != nil || v < 1 || v > 8 {
		p.logger.Debugf("Ignoring invalid EXIF orientation %d: %v", v, err)
		return 1
	}
	return v
}
