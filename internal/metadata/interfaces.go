package metadata

import (
	"io"
)

// OrientationProbe reads the EXIF orientation of an encoded image.
type OrientationProbe interface {
	// Orientation returns the EXIF orientation (1-8). Images without EXIF
	// data or without the tag report 1.
	Orientation(r io.Reader) int
}

// Writer copies descriptive metadata from a source file onto its converted
// counterpart.
type Writer interface {
	CopyMetadata(sourcePath, outputPath string) error
	Close() error
}

// CopiedTags lists the tags carried over to converted files.
var CopiedTags = []string{
	"DateTimeOriginal",
	"CreateDate",
	"Make",
	"Model",
	"LensModel",
	"Artist",
	"Copyright",
	"ImageDescription",
	"GPSLatitude",
	"GPSLatitudeRef",
	"GPSLongitude",
	"GPSLongitudeRef",
}
