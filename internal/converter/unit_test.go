package converter

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"os"
	"strings"
	"testing"

	"avif-converter-go/internal/codec"
	"avif-converter-go/internal/logger"

	"github.com/spf13/afero"
)

// stubDecoder yields an image whose width is len(data)/1000 and fails on
// data starting with "corrupt".
type stubDecoder struct{}

func (stubDecoder) Decode(r io.Reader, ext string) (image.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if bytes.HasPrefix(data, []byte("corrupt")) {
		return nil, errors.New("invalid image data")
	}
	w := len(data) / 1000
	if w == 0 {
		w = 1
	}
	return image.NewNRGBA(image.Rect(0, 0, w, 1)), nil
}

func (stubDecoder) Supports(ext string) bool { return codec.FileTypeOf(ext) != codec.FileTypeUnknown }

// stubEncoder writes sizes[width] bytes, or width bytes when unlisted.
type stubEncoder struct {
	sizes map[int]int
	fail  bool
}

func (e *stubEncoder) Format() string    { return "avif" }
func (e *stubEncoder) Extension() string { return ".avif" }

func (e *stubEncoder) Encode(w io.Writer, img image.Image) error {
	if e.fail {
		return errors.New("encoder rejected image")
	}
	n, ok := e.sizes[img.Bounds().Dx()]
	if !ok {
		n = img.Bounds().Dx()
	}
	_, err := w.Write(bytes.Repeat([]byte{0xAA}, n))
	return err
}

type recordingProbe struct{ calls int }

func (p *recordingProbe) Orientation(r io.Reader) int {
	p.calls++
	return codec.OrientationRotate90CW
}

type failingMetaWriter struct{}

func (failingMetaWriter) CopyMetadata(string, string) error { return errors.New("exiftool missing") }
func (failingMetaWriter) Close() error                      { return nil }

// taggingMetaWriter appends a metadata block to the output, the way
// exiftool grows a file when it writes tags.
type taggingMetaWriter struct {
	fs    afero.Fs
	extra int
}

func (w taggingMetaWriter) CopyMetadata(src, dst string) error {
	f, err := w.fs.OpenFile(dst, os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(make([]byte, w.extra))
	return err
}

func (taggingMetaWriter) Close() error { return nil }

func newTestUnit(fs afero.Fs, enc codec.Encoder, opts ...UnitOption) *Unit {
	return NewUnit(fs, stubDecoder{}, enc, codec.NewNormalizer(color.NRGBA{R: 255, G: 255, B: 255}), logger.Discard(), opts...)
}

func writeFile(t *testing.T, fs afero.Fs, path string, size int) {
	t.Helper()
	if err := afero.WriteFile(fs, path, bytes.Repeat([]byte{1}, size), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestDeriveOutputPath(t *testing.T) {
	tests := []struct {
		src, ext, want string
	}{
		{"a/b.jpg", ".avif", "a/b.avif"},
		{"a/b.jpg", "avif", "a/b.avif"},
		{"/x/y/photo.final.PNG", ".avif", "/x/y/photo.final.avif"},
		{"noext", ".avif", "noext.avif"},
	}

	for _, tt := range tests {
		got := DeriveOutputPath(tt.src, tt.ext)
		if got != tt.want {
			t.Errorf("DeriveOutputPath(%q, %q) = %q, want %q", tt.src, tt.ext, got, tt.want)
		}
		if again := DeriveOutputPath(tt.src, tt.ext); again != got {
			t.Errorf("DeriveOutputPath not stable: %q vs %q", got, again)
		}
	}
}

func TestUnit_Converted(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/imgs/photo.jpg", 500000)

	u := newTestUnit(fs, &stubEncoder{sizes: map[int]int{500: 150000}})
	out := u.Convert(context.Background(), Task{SourcePath: "/imgs/photo.jpg"})

	if out.Status != StatusConverted {
		t.Fatalf("expected converted, got %s: %s", out.Status, out.Message)
	}
	if out.OutputPath != "/imgs/photo.avif" {
		t.Errorf("unexpected output path %s", out.OutputPath)
	}
	if out.OriginalBytes != 500000 || out.ConvertedBytes != 150000 || out.Savings() != 350000 {
		t.Errorf("unexpected sizes: %+v", out)
	}
	if out.FinishedAt.Before(out.StartedAt) || out.StartedAt.IsZero() {
		t.Error("expected timing to be recorded")
	}

	if ok, _ := afero.Exists(fs, "/imgs/photo.avif.tmp"); ok {
		t.Error("temporary file left behind")
	}
	if ok, _ := afero.Exists(fs, "/imgs/photo.jpg"); !ok {
		t.Error("source file must never be deleted")
	}
}

func TestUnit_NegativeSavings(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/imgs/tiny.png", 2000)

	u := newTestUnit(fs, &stubEncoder{sizes: map[int]int{2: 5000}})
	out := u.Convert(context.Background(), Task{SourcePath: "/imgs/tiny.png"})

	if out.Status != StatusConverted {
		t.Fatalf("expected converted, got %s", out.Status)
	}
	if out.Savings() != -3000 {
		t.Errorf("expected savings -3000, got %d", out.Savings())
	}
}

func TestUnit_SkipExisting(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/imgs/photo.jpg", 3000)
	writeFile(t, fs, "/imgs/photo.avif", 10)

	u := newTestUnit(fs, &stubEncoder{})
	out := u.Convert(context.Background(), Task{SourcePath: "/imgs/photo.jpg"})

	if out.Status != StatusSkipped || out.SkipReason != SkipAlreadyExists {
		t.Fatalf("expected skipped/already_exists, got %s/%s", out.Status, out.SkipReason)
	}
	info, _ := fs.Stat("/imgs/photo.avif")
	if info.Size() != 10 {
		t.Error("existing output must not be touched when skipping")
	}
}

func TestUnit_OverwriteExisting(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/imgs/photo.jpg", 3000)
	writeFile(t, fs, "/imgs/photo.avif", 10)

	u := newTestUnit(fs, &stubEncoder{sizes: map[int]int{3: 777}})
	out := u.Convert(context.Background(), Task{SourcePath: "/imgs/photo.jpg", Overwrite: true})

	if out.Status != StatusConverted {
		t.Fatalf("expected converted, got %s: %s", out.Status, out.Message)
	}
	info, _ := fs.Stat("/imgs/photo.avif")
	if info.Size() != 777 || out.ConvertedBytes != 777 {
		t.Errorf("expected overwritten output of 777 bytes, got %d", info.Size())
	}
}

func TestUnit_Failures(t *testing.T) {
	tests := []struct {
		name string
		file string
		data string
		enc  *stubEncoder
		fs   func() afero.Fs
		kind ErrorKind
	}{
		{name: "missing source", file: "/imgs/missing.jpg", enc: &stubEncoder{}, kind: ErrorKindIO},
		{name: "corrupt source", file: "/imgs/bad.jpg", data: "corrupt bytes", enc: &stubEncoder{}, kind: ErrorKindDecode},
		{name: "encoder rejects", file: "/imgs/ok.png", data: "fine", enc: &stubEncoder{fail: true}, kind: ErrorKindEncode},
		{
			name: "read-only filesystem",
			file: "/imgs/ok.png",
			data: "fine",
			enc:  &stubEncoder{},
			fs: func() afero.Fs {
				base := afero.NewMemMapFs()
				_ = afero.WriteFile(base, "/imgs/ok.png", []byte("fine"), 0644)
				return afero.NewReadOnlyFs(base)
			},
			kind: ErrorKindIO,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var fs afero.Fs
			if tt.fs != nil {
				fs = tt.fs()
			} else {
				fs = afero.NewMemMapFs()
				if tt.data != "" {
					_ = afero.WriteFile(fs, tt.file, []byte(tt.data), 0644)
				}
			}

			out := newTestUnit(fs, tt.enc).Convert(context.Background(), Task{SourcePath: tt.file})
			if out.Status != StatusFailed {
				t.Fatalf("expected failed, got %s", out.Status)
			}
			if out.ErrorKind != tt.kind {
				t.Errorf("expected kind %s, got %s (%s)", tt.kind, out.ErrorKind, out.Message)
			}
			if out.Message == "" {
				t.Error("failed outcome must carry a message")
			}
			if ok, _ := afero.Exists(fs, DeriveOutputPath(tt.file, ".avif")); ok {
				t.Error("no output should exist after a failure")
			}
		})
	}
}

func TestUnit_SourceAlreadyTargetFormat(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/imgs/done.avif", 100)

	out := newTestUnit(fs, &stubEncoder{}).Convert(context.Background(), Task{SourcePath: "/imgs/done.avif", Overwrite: true})
	if out.Status != StatusFailed || out.ErrorKind != ErrorKindOutputConflict {
		t.Fatalf("expected output_conflict failure, got %s/%s", out.Status, out.ErrorKind)
	}
}

func TestUnit_Canceled(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/imgs/photo.jpg", 1000)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := newTestUnit(fs, &stubEncoder{}).Convert(ctx, Task{SourcePath: "/imgs/photo.jpg"})
	if out.ErrorKind != ErrorKindCanceled {
		t.Fatalf("expected canceled, got %s", out.ErrorKind)
	}
}

func TestUnit_OrientationAndMetadataWarning(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/imgs/photo.jpg", 4000)
	writeFile(t, fs, "/imgs/icon.png", 4000)

	probe := &recordingProbe{}
	enc := &stubEncoder{sizes: map[int]int{1: 11, 4: 44}}
	u := newTestUnit(fs, enc, WithOrientationProbe(probe), WithMetadataWriter(failingMetaWriter{}))

	out := u.Convert(context.Background(), Task{SourcePath: "/imgs/photo.jpg"})
	if out.Status != StatusConverted {
		t.Fatalf("expected converted, got %s", out.Status)
	}
	// A 4x1 image rotated by 90 degrees is 1 pixel wide.
	if out.ConvertedBytes != 11 {
		t.Errorf("expected rotated image to encode to 11 bytes, got %d", out.ConvertedBytes)
	}
	if !strings.Contains(out.Warning, "metadata not copied") {
		t.Errorf("expected metadata warning, got %q", out.Warning)
	}

	out = u.Convert(context.Background(), Task{SourcePath: "/imgs/icon.png"})
	if out.ConvertedBytes != 44 {
		t.Errorf("PNG must not be reoriented, got %d bytes", out.ConvertedBytes)
	}
	if probe.calls != 1 {
		t.Errorf("expected probe to run only for JPEG, ran %d times", probe.calls)
	}
}

func TestUnit_SizeIncludesCopiedMetadata(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/imgs/photo.jpg", 500000)

	u := newTestUnit(fs, &stubEncoder{sizes: map[int]int{500: 150000}},
		WithMetadataWriter(taggingMetaWriter{fs: fs, extra: 2048}))
	out := u.Convert(context.Background(), Task{SourcePath: "/imgs/photo.jpg"})
	if out.Status != StatusConverted || out.Warning != "" {
		t.Fatalf("unexpected outcome %+v", out)
	}

	info, err := fs.Stat("/imgs/photo.avif")
	if err != nil {
		t.Fatalf("stat output: %v", err)
	}
	if info.Size() != 152048 || out.ConvertedBytes != info.Size() {
		t.Errorf("ConvertedBytes = %d, file on disk is %d bytes", out.ConvertedBytes, info.Size())
	}
	if out.Savings() != 500000-152048 {
		t.Errorf("unexpected savings %d", out.Savings())
	}
}

func TestOutcomeStrings(t *testing.T) {
	if StatusFailed.String() != "failed" || ErrorKindDecode.String() != "decode_error" {
		t.Error("unexpected string forms")
	}
	if Failed("a", ErrorKindIO, "x").Savings() != 0 {
		t.Error("failed outcomes carry no savings")
	}
}
