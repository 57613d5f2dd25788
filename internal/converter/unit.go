package converter

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"time"

	"avif-converter-go/internal/codec"
	"avif-converter-go/internal/logger"
	"avif-converter-go/internal/metadata"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Unit converts one source file into the target format.
type Unit struct {
	fs         afero.Fs
	decoder    codec.Decoder
	encoder    codec.Encoder
	normalizer *codec.Normalizer
	probe      metadata.OrientationProbe
	metaWriter metadata.Writer
	logger     *logrus.Logger
}

// UnitOption configures optional collaborators of a Unit.
type UnitOption func(*Unit)

// WithOrientationProbe makes the unit honor EXIF orientation for JPEG and TIFF sources.
func WithOrientationProbe(p metadata.OrientationProbe) UnitOption {
	return func(u *Unit) { u.probe = p }
}

// WithMetadataWriter makes the unit copy source metadata onto converted files.
func WithMetadataWriter(w metadata.Writer) UnitOption {
	return func(u *Unit) { u.metaWriter = w }
}

// NewUnit returns a new Unit.
func NewUnit(
	fs afero.Fs,
	decoder codec.Decoder,
	encoder codec.Encoder,
	normalizer *codec.Normalizer,
	log *logrus.Logger,
	opts ...UnitOption,
) *Unit {
	u := &Unit{
		fs:         fs,
		decoder:    decoder,
		encoder:    encoder,
		normalizer: normalizer,
		logger:     log,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// OutputPath returns the path a source file converts to.
func (u *Unit) OutputPath(sourcePath string) string {
	return DeriveOutputPath(sourcePath, u.encoder.Extension())
}

// TargetExtension returns the extension of converted files.
func (u *Unit) TargetExtension() string {
	return u.encoder.Extension()
}

// Supports reports whether the decoder can read the source file's format.
func (u *Unit) Supports(sourcePath string) bool {
	return u.decoder.Supports(filepath.Ext(sourcePath))
}

// TargetFormat returns the name of the format the unit produces.
func (u *Unit) TargetFormat() string {
	return u.encoder.Format()
}

// Convert runs one task to completion. Every failure is reported through the
// returned Outcome.
func (u *Unit) Convert(ctx context.Context, task Task) Outcome {
	start := time.Now()
	out := u.convert(ctx, task).WithTiming(start, time.Now())
	u.logOutcome(out)
	return out
}

func (u *Unit) convert(ctx context.Context, task Task) Outcome {
	src := task.SourcePath
	if err := ctx.Err(); err != nil {
		return Failed(src, ErrorKindCanceled, err.Error())
	}

	outputPath := u.OutputPath(src)
	if filepath.Clean(outputPath) == filepath.Clean(src) {
		return Failed(src, ErrorKindOutputConflict, "source is already in the target format")
	}

	exists, err := afero.Exists(u.fs, outputPath)
	if err != nil {
		return Failed(src, ErrorKindIO, fmt.Sprintf("stat output: %v", err))
	}
	if exists && !task.Overwrite {
		return Skipped(src, outputPath)
	}

	info, err := u.fs.Stat(src)
	if err != nil {
		return Failed(src, ErrorKindIO, fmt.Sprintf("stat source: %v", err))
	}
	if info.IsDir() {
		return Failed(src, ErrorKindIO, "source is a directory")
	}

	data, err := afero.ReadFile(u.fs, src)
	if err != nil {
		return Failed(src, ErrorKindIO, fmt.Sprintf("read source: %v", err))
	}

	img, err := u.decoder.Decode(bytes.NewReader(data), filepath.Ext(src))
	if err != nil {
		return Failed(src, ErrorKindDecode, err.Error())
	}

	orientation := codec.OrientationNormal
	if u.probe != nil && codec.FileTypeOf(src).HasEXIF() {
		orientation = u.probe.Orientation(bytes.NewReader(data))
	}
	normalized := u.normalizer.Normalize(img, orientation)

	var buf bytes.Buffer
	if err := u.encoder.Encode(&buf, normalized); err != nil {
		return Failed(src, ErrorKindEncode, err.Error())
	}

	if err := u.writeOutput(outputPath, buf.Bytes()); err != nil {
		return Failed(src, ErrorKindIO, err.Error())
	}

	var warning string
	if u.metaWriter != nil {
		if err := u.metaWriter.CopyMetadata(src, outputPath); err != nil {
			warning = fmt.Sprintf("metadata not copied: %v", err)
		}
	}

	// Stat after the metadata copy, which rewrites the output in place.
	convInfo, err := u.fs.Stat(outputPath)
	if err != nil {
		return Failed(src, ErrorKindIO, fmt.Sprintf("stat converted: %v", err))
	}

	out := Converted(src, outputPath, info.Size(), convInfo.Size())
	out.Warning = warning
	return out
}

// writeOutput writes data next to outputPath and renames it into place so a
// failed write never leaves a truncated output behind.
func (u *Unit) writeOutput(outputPath string, data []byte) error {
	tmpPath := outputPath + ".tmp"
	if err := afero.WriteFile(u.fs, tmpPath, data, 0644); err != nil {
		_ = u.fs.Remove(tmpPath)
		return fmt.Errorf("write tmp file: %w", err)
	}
	if err := u.fs.Rename(tmpPath, outputPath); err != nil {
		_ = u.fs.Remove(tmpPath)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

func (u *Unit) logOutcome(o Outcome) {
	entry := logger.WithFileOperation(u.logger, o.SourcePath, "convert").
		WithField("status", o.Status.String())

	switch o.Status {
	case StatusConverted:
		entry = entry.WithFields(logrus.Fields{
			"output":          o.OutputPath,
			"original_bytes":  o.OriginalBytes,
			"converted_bytes": o.ConvertedBytes,
			"duration":        o.Duration().String(),
		})
		if o.Warning != "" {
			entry.Warn(o.Warning)
			return
		}
		entry.Debug("Converted file")
	case StatusSkipped:
		entry.WithField("output", o.OutputPath).Debug(o.Message)
	case StatusFailed:
		entry.WithField("kind", o.ErrorKind.String()).Warnf("Conversion failed: %s", o.Message)
	}
}
