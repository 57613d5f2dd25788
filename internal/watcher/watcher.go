// Package watcher converts images as they appear in a directory.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"avif-converter-go/internal/converter"
	"avif-converter-go/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// FileConverter converts a single file. batch.Converter implements it.
type FileConverter interface {
	ConvertFile(ctx context.Context, path string, overwrite bool) converter.Outcome
}

// Options controls which events trigger a conversion.
type Options struct {
	Extensions      []string
	TargetExtension string
	Debounce        time.Duration
	Overwrite       bool
}

// Watcher monitors one directory and converts new or modified images.
type Watcher struct {
	conv     FileConverter
	opts     Options
	exts     map[string]bool
	fsw      *fsnotify.Watcher
	outcomes chan converter.Outcome
	logger   *logrus.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool
}

// New creates a watcher. Call Start to begin monitoring.
func New(conv FileConverter, opts Options, log *logrus.Logger) (*Watcher, error) {
	if opts.Debounce <= 0 {
		opts.Debounce = 500 * time.Millisecond
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	exts := make(map[string]bool, len(opts.Extensions))
	for _, ext := range opts.Extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts[ext] = true
	}

	return &Watcher{
		conv:     conv,
		opts:     opts,
		exts:     exts,
		fsw:      fsw,
		outcomes: make(chan converter.Outcome, 100),
		logger:   log,
		timers:   make(map[string]*time.Timer),
	}, nil
}

// Start begins monitoring dir. Events are processed until ctx is canceled
// or Stop is called.
func (w *Watcher) Start(ctx context.Context, dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("failed to watch %s: not a directory", dir)
	}

	if err := w.fsw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch folder %s: %w", dir, err)
	}
	w.logger.WithField("directory", dir).Info("Watching folder for new images")

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.wg.Add(1)
	go w.processEvents()
	return nil
}

// Outcomes returns the channel of conversion outcomes. It is closed by Stop.
func (w *Watcher) Outcomes() <-chan converter.Outcome {
	return w.outcomes
}

// Stop stops monitoring, waits for in-flight conversions, and closes the
// outcome channel.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	for path, timer := range w.timers {
		timer.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()

	if w.cancel != nil {
		w.cancel()
	}
	err := w.fsw.Close()
	w.wg.Wait()
	close(w.outcomes)
	return err
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			if !w.accepts(event.Name) {
				continue
			}
			w.schedule(event.Name)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Errorf("Watcher error: %v", err)
		}
	}
}

func (w *Watcher) accepts(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	ext := strings.ToLower(filepath.Ext(base))
	if ext == strings.ToLower(w.opts.TargetExtension) {
		return false
	}
	return w.exts[ext]
}

// schedule restarts the debounce timer for path.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	if timer, exists := w.timers[path]; exists {
		timer.Stop()
	}
	w.timers[path] = time.AfterFunc(w.opts.Debounce, func() {
		w.fire(path)
	})
}

func (w *Watcher) fire(path string) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	delete(w.timers, path)
	w.wg.Add(1)
	w.mu.Unlock()
	defer w.wg.Done()

	info, err := os.Stat(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			w.logger.WithError(err).WithField("file", path).Warn("Cannot stat changed file")
		}
		return
	}
	if info.IsDir() {
		return
	}

	outcome := w.conv.ConvertFile(w.ctx, path, w.opts.Overwrite)
	logger.WithFile(w.logger, path).WithField("status", outcome.Status.String()).Debug("Watch conversion finished")

	select {
	case w.outcomes <- outcome:
	case <-w.ctx.Done():
	}
}
