// plexodb - PLEXOS solution bundle to DuckDB assembler
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package pipeline wires the five conversion stages - Catalog Loader,
// Schema Writer, Time-Series Writer, View Builder, Finalizer - into one
// run, mirroring the teacher's cmd/server/main.go numbered sequential
// initialization steps.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"golang.org/x/time/rate"

	"github.com/plexodb/plexodb/internal/archive"
	"github.com/plexodb/plexodb/internal/catalog"
	"github.com/plexodb/plexodb/internal/finalize"
	"github.com/plexodb/plexodb/internal/logging"
	"github.com/plexodb/plexodb/internal/metrics"
	"github.com/plexodb/plexodb/internal/rawschema"
	"github.com/plexodb/plexodb/internal/resume"
	"github.com/plexodb/plexodb/internal/tswriter"
	"github.com/plexodb/plexodb/internal/views"
	"github.com/plexodb/plexodb/internal/xmlcatalog"
)

// Options configures one pipeline run. It is the direct downstream of a
// validated config.Config; cmd/plexodb is responsible for that mapping.
type Options struct {
	Input       string
	Output      string
	InMemory    bool
	NThreads    int
	Resume      bool
	ResumeDir   string
	IoRateLimit int
	Metrics     *metrics.Registry
	OnProgress  func(tswriter.ProgressEvent)
}

// Summary describes a completed run, suitable for --print-summary output.
type Summary struct {
	SourceFile    string
	ModelName     string
	OutputPath    string
	TablesWritten int
	RowsWritten   int64
	TablesSkipped int
}

// Run executes all five stages against opts, returning a Summary once the
// destination database has been finalized.
func Run(ctx context.Context, opts Options) (Summary, error) {
	log := logging.Ctx(ctx)

	bundle, err := archive.Open(ctx, opts.Input)
	if err != nil {
		return Summary{}, fmt.Errorf("open input bundle: %w", err)
	}
	defer func() {
		if err := bundle.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to remove archive scratch directory")
		}
	}()

	cat, err := xmlcatalog.Load(ctx, bundle)
	if err != nil {
		return Summary{}, fmt.Errorf("load catalog: %w", err)
	}
	log.Info().
		Str("model", cat.Meta.ModelName).
		Int("tables", len(cat.DataTables)).
		Msg("catalog loaded")

	var resumeStore *resume.Store
	if opts.Resume {
		resumeStore, err = resume.Open(opts.ResumeDir)
		if err != nil {
			return Summary{}, fmt.Errorf("open resume checkpoint store: %w", err)
		}
		defer func() {
			if err := resumeStore.Close(); err != nil {
				log.Warn().Err(err).Msg("failed to close resume checkpoint store")
			}
		}()
	}

	strategy := finalizeStrategy(opts)
	db, err := strategy.Open(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("open destination database: %w", err)
	}
	defer db.Close()

	writer := rawschema.New(db)
	if err := writer.CreateSchema(ctx, cat); err != nil {
		return Summary{}, fmt.Errorf("create schema: %w", err)
	}
	if err := writer.WriteCatalogMetadata(ctx, cat); err != nil {
		return Summary{}, fmt.Errorf("write catalog metadata: %w", err)
	}
	if err := writer.WriteRunMetadata(ctx, cat.Meta); err != nil {
		return Summary{}, fmt.Errorf("write run metadata: %w", err)
	}
	log.Info().Msg("raw schema written")

	skipped, cat2 := applyResumeFilter(resumeStore, cat)

	var limiter *rate.Limiter
	if opts.IoRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.IoRateLimit), opts.IoRateLimit)
	}
	bins, err := tswriter.OpenBinFileSet(bundle.BinPaths, limiter)
	if err != nil {
		return Summary{}, fmt.Errorf("open bin file set: %w", err)
	}

	stagingDir, err := os.MkdirTemp("", "plexodb-staging-*")
	if err != nil {
		return Summary{}, fmt.Errorf("create staging directory: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	workerCount := opts.NThreads
	if workerCount <= 0 {
		workerCount = defaultWorkerCount()
	}
	if opts.Metrics != nil {
		opts.Metrics.TablesTotal.Set(float64(len(cat2.DataTables)))
	}

	tsSummary, err := tswriter.Write(ctx, cat2, bins, db, stagingDir, workerCount, opts.OnProgress)
	if err != nil {
		return Summary{}, fmt.Errorf("write time-series tables: %w", err)
	}
	if opts.Metrics != nil {
		opts.Metrics.TablesWritten.Add(float64(tsSummary.TablesWritten))
		opts.Metrics.RowsWritten.Add(float64(tsSummary.RowsWritten))
		// Every row is one float64 read from a BIN file.
		opts.Metrics.BytesRead.Add(float64(tsSummary.RowsWritten * 8))
	}
	if resumeStore != nil {
		for name := range cat2.DataTables {
			if err := resumeStore.MarkComplete(name); err != nil {
				return Summary{}, fmt.Errorf("mark table %s complete: %w", name, err)
			}
		}
	}
	log.Info().
		Int("tables_written", tsSummary.TablesWritten).
		Int64("rows_written", tsSummary.RowsWritten).
		Msg("time-series writer finished")

	if err := views.Build(ctx, db, cat); err != nil {
		return Summary{}, fmt.Errorf("build views: %w", err)
	}
	log.Info().Msg("views built")

	if err := strategy.Finish(ctx, db); err != nil {
		return Summary{}, fmt.Errorf("finalize destination database: %w", err)
	}

	return Summary{
		SourceFile:    cat.Meta.SourceFile,
		ModelName:     cat.Meta.ModelName,
		OutputPath:    opts.Output,
		TablesWritten: tsSummary.TablesWritten,
		RowsWritten:   tsSummary.RowsWritten,
		TablesSkipped: skipped,
	}, nil
}

func finalizeStrategy(opts Options) finalize.Strategy {
	if opts.InMemory {
		return &finalize.InMemoryThenCopy{Path: opts.Output}
	}
	return &finalize.Direct{Path: opts.Output}
}

// defaultWorkerCount heuristically picks W per spec.md's guidance:
// min(available_parallelism, 8).
func defaultWorkerCount() int {
	n := runtime.GOMAXPROCS(0)
	if n > 8 {
		return 8
	}
	if n < 1 {
		return 1
	}
	return n
}

// applyResumeFilter drops already-completed tables from cat's DataTables
// before the Time-Series Writer plans work, so --resume skips tables a
// prior aborted run already merged. It returns the number of tables
// skipped and a shallow copy of cat with DataTables filtered; every other
// field is shared by reference since filtering does not mutate it.
func applyResumeFilter(store *resume.Store, cat *catalog.Catalog) (int, *catalog.Catalog) {
	if store == nil {
		return 0, cat
	}

	filtered := *cat
	filtered.DataTables = make(map[string][]int64, len(cat.DataTables))
	skipped := 0
	for name, keyIDs := range cat.DataTables {
		complete, err := store.IsComplete(name)
		if err != nil || !complete {
			filtered.DataTables[name] = keyIDs
			continue
		}
		skipped++
	}
	return skipped, &filtered
}
