package discovery

import (
	"errors"
	"fmt"
	iofs "io/fs"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// ErrDirectoryNotFound is returned when the batch root is missing or is not a directory.
var ErrDirectoryNotFound = errors.New("directory not found")

// Discover lists dir without recursing and returns the files whose
// extension, compared case-insensitively, is in exts. Entries come back in
// file-name order.
func Discover(fs afero.Fs, dir string, exts []string) ([]string, error) {
	info, err := fs.Stat(dir)
	if err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDirectoryNotFound, dir)
		}
		return nil, fmt.Errorf("stat directory %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrDirectoryNotFound, dir)
	}

	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}

	extSet := make(map[string]struct{}, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		extSet[ext] = struct{}{}
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if _, ok := extSet[ext]; ok {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	return files, nil
}
