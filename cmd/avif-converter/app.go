package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"avif-converter-go/internal/batch"
	"avif-converter-go/internal/codec"
	"avif-converter-go/internal/config"
	"avif-converter-go/internal/converter"
	"avif-converter-go/internal/metadata"
	"avif-converter-go/internal/progress"
	"avif-converter-go/internal/report"
	"avif-converter-go/internal/statistics"
	"avif-converter-go/internal/watcher"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"go.uber.org/multierr"
)

// app holds the wired converter for one command invocation.
type app struct {
	cfg     *config.Config
	fs      afero.Fs
	log     *logrus.Logger
	conv    *batch.Converter
	closers []func() error
}

func newApp(fs afero.Fs, cfg *config.Config, log *logrus.Logger) (*app, error) {
	enc, err := codec.NewEncoder(cfg.TargetFormat, cfg.EncoderOptions())
	if err != nil {
		return nil, err
	}
	bg, err := codec.ParseColor(cfg.Conversion.Background)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, fs: fs, log: log}

	var opts []converter.UnitOption
	if cfg.Conversion.AutoOrient {
		opts = append(opts, converter.WithOrientationProbe(metadata.NewEXIFProbe(log)))
	}
	if cfg.Conversion.PreserveMetadata {
		w, err := metadata.NewExiftoolWriter()
		if err != nil {
			log.Warnf("Metadata will not be preserved: %v", err)
		} else {
			opts = append(opts, converter.WithMetadataWriter(w))
			a.closers = append(a.closers, w.Close)
		}
	}

	unit := converter.NewUnit(fs, codec.NewImageDecoder(), enc, codec.NewNormalizer(bg), log, opts...)
	a.conv = batch.NewConverter(fs, unit, batch.Options{
		Extensions:     cfg.SupportedExtensions,
		Parallelism:    cfg.Performance.Parallelism,
		MaxFilesPerRun: cfg.Performance.MaxFilesPerRun,
	}, log)
	return a, nil
}

// Close releases external helpers such as the exiftool process.
func (a *app) Close() error {
	var err error
	for _, c := range a.closers {
		err = multierr.Append(err, c())
	}
	a.closers = nil
	return err
}

func (a *app) convertFile(ctx context.Context, out io.Writer, path string) converter.Outcome {
	o := a.conv.ConvertFile(ctx, path, a.cfg.Overwrite)
	printOutcome(out, o)
	return o
}

func (a *app) convertDirectory(ctx context.Context, out io.Writer, dir string, showProgress bool) error {
	bar := progress.ForStderr(a.cfg.Performance.ShowProgress && showProgress)
	res, err := a.conv.ConvertDirectory(ctx, dir, a.cfg.Overwrite, bar.Observe)
	bar.Finish()
	if err != nil {
		return err
	}

	printResult(out, res)

	if a.cfg.Report.Path != "" {
		format := report.FormatForPath(a.cfg.Report.Path, report.Format(a.cfg.Report.Format))
		if err := report.Write(a.fs, a.cfg.Report.Path, res, format); err != nil {
			return err
		}
		a.log.WithField("path", a.cfg.Report.Path).Info("Wrote run report")
	}
	return nil
}

func (a *app) watch(ctx context.Context, out io.Writer, dir string) error {
	w, err := watcher.New(a.conv, watcher.Options{
		Extensions:      a.cfg.SupportedExtensions,
		TargetExtension: a.conv.Unit().TargetExtension(),
		Debounce:        a.cfg.Watch.Debounce,
		Overwrite:       a.cfg.Overwrite,
	}, a.log)
	if err != nil {
		return err
	}
	if err := w.Start(ctx, dir); err != nil {
		return multierr.Append(err, w.Stop())
	}

	summary := statistics.NewBatchSummary()
	for {
		select {
		case o, ok := <-w.Outcomes():
			if !ok {
				return nil
			}
			printOutcome(out, o)
			_ = summary.Add(o)
		case <-ctx.Done():
			err := w.Stop()
			for o := range w.Outcomes() {
				printOutcome(out, o)
				_ = summary.Add(o)
			}
			summary.Finalize()
			if summary.Total() > 0 {
				fmt.Fprintln(out, "\n"+summary.String())
			}
			return err
		}
	}
}

func printOutcome(out io.Writer, o converter.Outcome) {
	if o.Status == converter.StatusConverted {
		fmt.Fprintln(out, statistics.ReportLine(o))
		if o.Warning != "" {
			fmt.Fprintf(out, "Warning for %s: %s\n", o.SourcePath, o.Warning)
		}
		return
	}
	for _, n := range statistics.Notices([]converter.Outcome{o}) {
		fmt.Fprintln(out, n)
	}
}

func printResult(out io.Writer, res *batch.Result) {
	for _, line := range res.Lines {
		fmt.Fprintln(out, line)
	}
	for _, n := range res.Notices {
		fmt.Fprintln(out, n)
	}
	fmt.Fprintln(out, "\n"+res.Summary.String())
}

func printFormats(out io.Writer) {
	fmt.Fprintf(out, "Source extensions: %s\n", strings.Join(codec.SourceExtensions(), ", "))
	fmt.Fprintf(out, "Target formats:    %s\n", strings.Join(codec.TargetFormats(), ", "))
}

func runProbe(out io.Writer, cfg *config.Config, path string) error {
	data, err := afero.ReadFile(afero.NewOsFs(), path)
	if err != nil {
		return fmt.Errorf("file does not exist: %s", path)
	}

	ext := strings.ToLower(filepath.Ext(path))
	ft := codec.FileTypeOf(ext)
	fmt.Fprintf(out, "File:        %s\n", path)
	fmt.Fprintf(out, "Type:        %s\n", ft)

	img, err := codec.NewImageDecoder().Decode(bytes.NewReader(data), ext)
	if err != nil {
		fmt.Fprintf(out, "Decode:      failed: %v\n", err)
	} else {
		b := img.Bounds()
		fmt.Fprintf(out, "Dimensions:  %dx%d\n", b.Dx(), b.Dy())
	}

	if ft.HasEXIF() {
		probe := metadata.NewEXIFProbe(logrus.New())
		fmt.Fprintf(out, "Orientation: %d\n", probe.Orientation(bytes.NewReader(data)))
	}

	enc, err := codec.NewEncoder(cfg.TargetFormat, cfg.EncoderOptions())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Output:      %s\n", converter.DeriveOutputPath(path, enc.Extension()))
	fmt.Fprintf(out, "Qualifies:   %t\n", cfg.IsSupportedExtension(ext))
	return nil
}
