// Package curate runs the dataset pipelines: load, transform, check, write.
package curate

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"transitcurate/internal/farev2"
	"transitcurate/internal/metrics"
	"transitcurate/internal/model"
	"transitcurate/internal/ntfs"
	"transitcurate/internal/report"
	"transitcurate/internal/rules"
	"transitcurate/internal/source"
	"transitcurate/internal/storage"
)

// Locations names the inputs and outputs of a run. Input and Report may be
// remote (see source.IsRemote); Output and MetricsFile are local.
type Locations struct {
	Input       string
	Output      string
	Report      string
	ReportHTML  string // optional
	MetricsFile string // optional
}

// Runner executes pipelines.
type Runner struct {
	fetcher *source.Fetcher
	runID   string
	logger  *slog.Logger
	now     func() time.Time
	created time.Time // zero means the start of each run
}

// Option customizes a Runner.
type Option func(*Runner)

// WithCurrentDatetime sets the creation date and time stamped on output datasets.
func WithCurrentDatetime(t time.Time) Option {
	return func(r *Runner) { r.created = t }
}

// NewRunner creates a Runner. runID tags logs, the HTML report and SQLite outputs.
func NewRunner(fetcher *source.Fetcher, runID string, logger *slog.Logger, opts ...Option) *Runner {
	r := &Runner{fetcher: fetcher, runID: runID, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// transform mutates the collections of m, adding soft errors to rep.
type transform func(ctx context.Context, m *model.Model, rep *report.Report) (model.Collections, error)

// Regroup applies the object rules at rulesLocation to the input dataset.
func (r *Runner) Regroup(ctx context.Context, loc Locations, rulesLocation string) (*report.Report, error) {
	return r.run(ctx, "regroup", loc, func(ctx context.Context, m *model.Model, rep *report.Report) (model.Collections, error) {
		path, cleanup, err := r.fetcher.Fetch(ctx, rulesLocation)
		if err != nil {
			return model.Collections{}, fmt.Errorf("fetch rules: %w", err)
		}
		defer cleanup()

		cfg, err := rules.ReadConfiguration(path)
		if err != nil {
			return model.Collections{}, err
		}
		rule := rules.New(cfg, m, r.logger)
		c := m.IntoCollections()
		if err := rule.Apply(&c, rep); err != nil {
			return model.Collections{}, err
		}
		return c, nil
	})
}

// EnrichFare merges the fare archive at fareLocation into the input dataset.
func (r *Runner) EnrichFare(ctx context.Context, loc Locations, fareLocation string) (*report.Report, error) {
	return r.run(ctx, "farev2", loc, func(ctx context.Context, m *model.Model, rep *report.Report) (model.Collections, error) {
		path, cleanup, err := r.fetcher.Fetch(ctx, fareLocation)
		if err != nil {
			return model.Collections{}, fmt.Errorf("fetch fare archive: %w", err)
		}
		defer cleanup()

		archive, err := farev2.OpenArchive(path)
		if err != nil {
			return model.Collections{}, err
		}
		defer archive.Close()

		c := m.IntoCollections()
		if err := farev2.Merge(&c, archive, rep, r.logger); err != nil {
			return model.Collections{}, err
		}
		return c, nil
	})
}

func (r *Runner) run(ctx context.Context, command string, loc Locations, fn transform) (*report.Report, error) {
	started := r.now()
	logger := r.logger.With("command", command)
	logger.Info("run started", "input", loc.Input, "output", loc.Output)

	if source.IsRemote(loc.Output) {
		return nil, fmt.Errorf("output %s: only local outputs are supported", loc.Output)
	}

	inputPath, cleanup, err := r.fetcher.Fetch(ctx, loc.Input)
	if err != nil {
		return nil, fmt.Errorf("fetch input: %w", err)
	}
	defer cleanup()

	c, inputIsDir, err := load(ctx, inputPath, logger)
	if err != nil {
		return nil, fmt.Errorf("load input: %w", err)
	}
	m, err := model.New(c)
	if err != nil {
		return nil, fmt.Errorf("input dataset: %w", err)
	}

	rep := &report.Report{}
	c, err = fn(ctx, m, rep)
	if err != nil {
		return nil, err
	}

	// Consistency of the result is checked before anything is written.
	m, err = model.New(c)
	if err != nil {
		return nil, fmt.Errorf("output dataset: %w", err)
	}
	c = m.IntoCollections()

	if err := r.writeReport(ctx, command, loc, rep, started); err != nil {
		return nil, err
	}
	created := r.created
	if created.IsZero() {
		created = started
	}
	if err := r.save(ctx, loc.Output, inputPath, inputIsDir, &c, created, logger); err != nil {
		return nil, fmt.Errorf("write output: %w", err)
	}

	if loc.MetricsFile != "" {
		run := metrics.NewRun(command)
		run.ObserveReport(rep)
		run.ObserveCollections(&c)
		run.Finish(started, r.now())
		if err := run.WriteTextfile(loc.MetricsFile); err != nil {
			return nil, err
		}
	}

	logger.Info("run completed",
		"errors", len(rep.Errors),
		"warnings", len(rep.Warnings),
		"duration", r.now().Sub(started).Round(time.Millisecond),
	)
	return rep, nil
}

func (r *Runner) writeReport(ctx context.Context, command string, loc Locations, rep *report.Report, started time.Time) error {
	var buf bytes.Buffer
	if err := rep.WriteJSON(&buf); err != nil {
		return err
	}
	if err := r.fetcher.Put(ctx, loc.Report, buf.Bytes(), "application/json"); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	if loc.ReportHTML == "" {
		return nil
	}
	buf.Reset()
	meta := report.Meta{RunID: r.runID, Command: command, StartedAt: started}
	if err := report.Page(rep, meta).Render(ctx, &buf); err != nil {
		return fmt.Errorf("render html report: %w", err)
	}
	if err := r.fetcher.Put(ctx, loc.ReportHTML, buf.Bytes(), "text/html; charset=utf-8"); err != nil {
		return fmt.Errorf("write html report: %w", err)
	}
	return nil
}

// isDatabase reports whether path names a SQLite dataset rather than an NTFS directory.
func isDatabase(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return true
	}
	return false
}

func load(ctx context.Context, path string, logger *slog.Logger) (c model.Collections, isDir bool, err error) {
	if isDatabase(path) {
		db, err := storage.OpenExisting(path, logger)
		if err != nil {
			return c, false, err
		}
		defer db.Close()
		c, err = db.LoadCollections(ctx)
		return c, false, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return c, false, err
	}
	if !info.IsDir() {
		return c, false, fmt.Errorf("%s: want an NTFS directory or a SQLite database", path)
	}
	c, err = ntfs.Read(path, logger)
	return c, true, err
}

func (r *Runner) save(ctx context.Context, output, inputPath string, inputIsDir bool, c *model.Collections, created time.Time, logger *slog.Logger) error {
	if isDatabase(output) {
		db, err := storage.Open(output, logger)
		if err != nil {
			return err
		}
		defer db.Close()
		c.FeedInfos = model.StampCreation(c.FeedInfos, created)
		return db.SaveCollections(ctx, c, r.runID)
	}

	if err := ntfs.Write(output, c, created, logger); err != nil {
		return err
	}
	if inputIsDir {
		return ntfs.CopyUnmodelled(inputPath, output)
	}
	return ntfs.WriteStopAreas(output, c)
}
