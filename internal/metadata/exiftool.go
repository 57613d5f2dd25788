package metadata

import (
	"fmt"
	"os"
	"sync"

	"github.com/barasher/go-exiftool"
)

// ExiftoolWriter copies CopiedTags through a long-running exiftool process.
// Requests are serialized because one exiftool process handles one command
// at a time.
type ExiftoolWriter struct {
	et *exiftool.Exiftool
	mu sync.Mutex
}

// NewExiftoolWriter starts exiftool. It fails when the binary is not on PATH.
func NewExiftoolWriter() (*ExiftoolWriter, error) {
	et, err := exiftool.NewExiftool()
	if err != nil {
		return nil, fmt.Errorf("start exiftool: %w", err)
	}
	return &ExiftoolWriter{et: et}, nil
}

// CopyMetadata reads the source tags and writes the ones in CopiedTags to
// the output file.
func (w *ExiftoolWriter) CopyMetadata(sourcePath, outputPath string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	files := w.et.ExtractMetadata(sourcePath)
	if len(files) == 0 {
		return fmt.Errorf("exiftool returned no metadata for %s", sourcePath)
	}
	if files[0].Err != nil {
		return fmt.Errorf("read metadata: %w", files[0].Err)
	}

	out := exiftool.EmptyFileMetadata()
	out.File = outputPath
	for _, tag := range CopiedTags {
		if v, ok := files[0].Fields[tag]; ok {
			out.Fields[tag] = v
		}
	}
	if len(out.Fields) == 0 {
		return nil
	}

	batch := []exiftool.FileMetadata{out}
	w.et.WriteMetadata(batch)
	_ = os.Remove(outputPath + "_original")
	if batch[0].Err != nil {
		return fmt.Errorf("write metadata: %w", batch[0].Err)
	}
	return nil
}

// Close stops the exiftool process.
func (w *ExiftoolWriter) Close() error {
	return w.et.Close()
}
