package batch

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"avif-converter-go/internal/converter"
	"avif-converter-go/internal/discovery"
	"avif-converter-go/internal/logger"
	"avif-converter-go/internal/pool"
	"avif-converter-go/internal/statistics"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
)

// Options controls discovery and scheduling for a Converter.
type Options struct {
	Extensions     []string
	Parallelism    int
	MaxFilesPerRun int
}

// Result is everything one directory run produced.
type Result struct {
	RunID     string
	Directory string
	Outcomes  []converter.Outcome
	Lines     []string
	Notices   []string
	Summary   statistics.BatchSummary
	StartedAt time.Time
	Duration  time.Duration
}

// Converter runs single-file and directory conversions.
type Converter struct {
	fs     afero.Fs
	unit   *converter.Unit
	pool   *pool.Pool
	opts   Options
	logger *logrus.Logger
}

// NewConverter returns a new Converter.
func NewConverter(fs afero.Fs, unit *converter.Unit, opts Options, log *logrus.Logger) *Converter {
	return &Converter{
		fs:     fs,
		unit:   unit,
		pool:   pool.New(opts.Parallelism, log),
		opts:   opts,
		logger: log,
	}
}

// Unit returns the conversion unit backing the converter.
func (c *Converter) Unit() *converter.Unit {
	return c.unit
}

// Workers returns the pool's parallelism.
func (c *Converter) Workers() int {
	return c.pool.Workers()
}

// Extensions returns the extensions that qualify a file for conversion.
func (c *Converter) Extensions() []string {
	return c.opts.Extensions
}

// ConvertFile converts one file. Panics inside the unit are contained the
// same way as in a directory run.
func (c *Converter) ConvertFile(ctx context.Context, path string, overwrite bool) converter.Outcome {
	single := pool.New(1, c.logger)
	outcomes := single.Run(ctx, []converter.Task{{SourcePath: path, Overwrite: overwrite}}, c.unit.Convert)
	return outcomes[0]
}

// ConvertDirectory discovers the candidates in dir, converts them on the
// pool, and aggregates the outcomes. Only a bad root directory returns an
// error; per-file problems are reported in the Result.
func (c *Converter) ConvertDirectory(ctx context.Context, dir string, overwrite bool, observers ...pool.Observer) (*Result, error) {
	return c.ConvertDirectoryWithID(ctx, uuid.NewString(), dir, overwrite, observers...)
}

// ConvertDirectoryWithID is ConvertDirectory with a caller-chosen run ID.
func (c *Converter) ConvertDirectoryWithID(ctx context.Context, runID, dir string, overwrite bool, observers ...pool.Observer) (*Result, error) {
	start := time.Now()
	log := logger.WithRun(c.logger, runID).WithField("directory", dir)

	files, err := discovery.Discover(c.fs, dir, c.opts.Extensions)
	if err != nil {
		return nil, fmt.Errorf("failed to discover files: %w", err)
	}

	if c.opts.MaxFilesPerRun > 0 && len(files) > c.opts.MaxFilesPerRun {
		log.Infof("Reached maximum files limit (%d), ignoring %d files", c.opts.MaxFilesPerRun, len(files)-c.opts.MaxFilesPerRun)
		files = files[:c.opts.MaxFilesPerRun]
	}
	log.Infof("Found %d image files to convert", len(files))

	tasks, conflicts := c.planTasks(files, overwrite)
	for _, o := range conflicts {
		log.WithField("file", o.SourcePath).Warn(o.Message)
	}

	outcomes := c.pool.Run(ctx, tasks, c.unit.Convert, observers...)
	outcomes = append(outcomes, conflicts...)

	lines, summary := statistics.Summarize(outcomes)
	res := &Result{
		RunID:     runID,
		Directory: dir,
		Outcomes:  outcomes,
		Lines:     lines,
		Notices:   statistics.Notices(outcomes),
		Summary:   summary,
		StartedAt: start,
		Duration:  time.Since(start),
	}

	log.WithFields(logrus.Fields{
		"converted": summary.Converted,
		"skipped":   summary.Skipped,
		"failed":    summary.Failed,
		"saved":     summary.TotalSavedBytes,
		"duration":  res.Duration.String(),
	}).Info("Batch conversion completed")

	return res, nil
}

// planTasks builds one task per file. When several files derive the same
// output path, a source that already is that path keeps it, otherwise the
// first in discovery order does. The rest fail with an output conflict
// instead of racing to write the same file. Files the decoder cannot read
// fail up front.
func (c *Converter) planTasks(files []string, overwrite bool) ([]converter.Task, []converter.Outcome) {
	byOutput := lo.GroupBy(files, c.unit.OutputPath)

	var tasks []converter.Task
	var conflicts []converter.Outcome
	for _, f := range files {
		now := time.Now()
		if !c.unit.Supports(f) {
			conflicts = append(conflicts, converter.Failed(f, converter.ErrorKindDecode,
				fmt.Sprintf("no decoder for %s files", filepath.Ext(f))).WithTiming(now, now))
			continue
		}

		output := c.unit.OutputPath(f)
		group := byOutput[output]
		owner := lo.FindOrElse(group, group[0], func(g string) bool {
			return filepath.Clean(g) == filepath.Clean(output)
		})
		if owner != f {
			msg := fmt.Sprintf("output %s is already produced by %s", output, owner)
			if owner == output {
				msg = fmt.Sprintf("output %s is an existing source file", output)
			}
			conflicts = append(conflicts, converter.Failed(f, converter.ErrorKindOutputConflict, msg).WithTiming(now, now))
			continue
		}
		tasks = append(tasks, converter.Task{SourcePath: f, Overwrite: overwrite})
	}
	return tasks, conflicts
}
