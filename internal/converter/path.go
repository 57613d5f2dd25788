package converter

import (
	"path/filepath"
	"strings"
)

// DeriveOutputPath replaces the extension of sourcePath with targetExt
// (leading dot optional). A source without an extension gets targetExt
// appended.
func DeriveOutputPath(sourcePath, targetExt string) string {
	if !strings.HasPrefix(targetExt, ".") {
		targetExt = "." + targetExt
	}
	return strings.TrimSuffix(sourcePath, filepath.Ext(sourcePath)) + targetExt
}
