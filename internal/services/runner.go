package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"

	"github.com/Lllllllleong/xoppsave/internal/document"
	"github.com/Lllllllleong/xoppsave/internal/gcp"
	"github.com/Lllllllleong/xoppsave/internal/xopp"
	"golang.org/x/sync/errgroup"
)

// ErrSaveInProgress is returned when a document already has a save running.
var ErrSaveInProgress = errors.New("save already in progress")

// Reporter is the interactive surface save results are shown on.
type Reporter interface {
	ShowError(message string)
	ResetSavedStatus(doc *document.Document)
}

// Observer is notified after every finished save. Observer errors are logged
// and never change the save result.
type Observer interface {
	SaveFinished(ctx context.Context, doc *document.Document, res SaveResult) error
}

type RunnerConfig struct {
	// Interactive reports whether a Reporter is available. Without one a
	// failed save is fatal, since nobody would otherwise learn about it.
	Interactive bool
	// Concurrency bounds SaveAll.
	Concurrency int
}

// LoadRunnerConfig reads SAVE_CONCURRENCY, defaulting to 4.
func LoadRunnerConfig(interactive bool) (RunnerConfig, error) {
	cfg := RunnerConfig{Interactive: interactive, Concurrency: 4}
	if v := gcp.GetEnv("SAVE_CONCURRENCY", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return cfg, fmt.Errorf("SAVE_CONCURRENCY must be a positive integer, got %q", v)
		}
		cfg.Concurrency = n
	}
	return cfg, nil
}

// Runner dispatches save jobs and reports their results. It allows one save
// in flight per document.
type Runner struct {
	cfg        RunnerConfig
	newHandler func() Serializer
	fs         FileSystem
	reporter   Reporter
	observers  []Observer

	// Fatal is called with the user message of a failed save when the runner
	// is not interactive. It defaults to logging and exiting with status 1.
	Fatal func(message string)

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewRunner(cfg RunnerConfig, reporter Reporter, observers ...Observer) *Runner {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Runner{
		cfg:        cfg,
		newHandler: func() Serializer { return xopp.NewHandler() },
		fs:         OSFileSystem{},
		reporter:   reporter,
		observers:  observers,
		Fatal:      exitFatal,
		inFlight:   make(map[string]struct{}),
	}
}

// WithSerializer replaces the serializer factory, mainly for tests.
func (r *Runner) WithSerializer(newHandler func() Serializer) *Runner {
	r.newHandler = newHandler
	return r
}

// WithFileSystem replaces the filesystem, mainly for tests.
func (r *Runner) WithFileSystem(fs FileSystem) *Runner {
	r.fs = fs
	return r
}

// Save saves doc on the calling goroutine, then notifies observers and runs
// the after-run reporting step.
func (r *Runner) Save(ctx context.Context, doc *document.Document) (SaveResult, error) {
	if err := ctx.Err(); err != nil {
		return SaveResult{}, err
	}
	if !r.acquire(doc.ID()) {
		return SaveResult{}, ErrSaveInProgress
	}
	defer r.release(doc.ID())

	res := NewSaveJob(doc, r.newHandler, r.fs).Save()
	r.notify(ctx, doc, res)
	r.afterRun(doc, res)
	return res, nil
}

// Start saves doc on a background goroutine and calls done with the result.
// done runs on the background goroutine; callers with a UI thread must hand
// the result over themselves.
func (r *Runner) Start(ctx context.Context, doc *document.Document, done func(SaveResult, error)) {
	go func() {
		res, err := r.Save(ctx, doc)
		if done != nil {
			done(res, err)
		}
	}()
}

// SaveAll saves docs concurrently, at most Concurrency at a time. Results
// are returned in the order of docs.
func (r *Runner) SaveAll(ctx context.Context, docs []*document.Document) ([]SaveResult, error) {
	results := make([]SaveResult, len(docs))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(r.cfg.Concurrency)

	for i, doc := range docs {
		eg.Go(func() error {
			res, err := r.Save(gctx, doc)
			if err != nil {
				return fmt.Errorf("document %s: %w", doc.ID(), err)
			}
			results[i] = res
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

func (r *Runner) acquire(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.inFlight[id]; busy {
		return false
	}
	r.inFlight[id] = struct{}{}
	return true
}

func (r *Runner) release(id string) {
	r.mu.Lock()
	delete(r.inFlight, id)
	r.mu.Unlock()
}

func (r *Runner) notify(ctx context.Context, doc *document.Document, res SaveResult) {
	if len(r.observers) == 0 {
		return
	}
	var eg errgroup.Group
	for _, o := range r.observers {
		eg.Go(func() error {
			if err := o.SaveFinished(ctx, doc, res); err != nil {
				slog.Error("Save observer failed.", "documentId", doc.ID(), "observer", fmt.Sprintf("%T", o), "error", err)
			}
			return nil
		})
	}
	_ = eg.Wait()
}

func (r *Runner) afterRun(doc *document.Document, res SaveResult) {
	if !r.cfg.Interactive {
		if !res.OK {
			r.Fatal(res.Message)
		}
		return
	}
	if r.reporter == nil {
		return
	}
	if !res.OK {
		r.reporter.ShowError(res.Message)
		return
	}
	r.reporter.ResetSavedStatus(doc)
}

func exitFatal(message string) {
	slog.Error("Unattended save failed.", "error", message)
	os.Exit(1)
}
