// plexodb - PLEXOS solution bundle to DuckDB assembler
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/plexodb/plexodb/internal/config"
	"github.com/plexodb/plexodb/internal/logging"
	"github.com/plexodb/plexodb/internal/metrics"
	"github.com/plexodb/plexodb/internal/pipeline"
)

// argError marks a failure in flag/config validation, distinct from a
// pipeline failure, so exitCodeFor can report exit code 2 for it per
// spec.md's CLI contract.
type argError struct{ err error }

func (e *argError) Error() string { return e.err.Error() }
func (e *argError) Unwrap() error { return e.err }

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Convert a PLEXOS solution bundle into a DuckDB database",
	RunE:  runPipeline,
}

func init() {
	flags := runCmd.Flags()
	// The underscore names double as koanf config keys; the hyphenated
	// spellings (--n-threads, --print-summary, ...) are accepted as well.
	flags.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "-", "_"))
	})
	flags.String("input", "", "Path to the PLEXOS solution bundle (ZIP file or directory)")
	flags.String("output", "", "Path to the destination .duckdb file (default: input stem with .duckdb)")
	flags.Bool("print_summary", false, "Print a textual summary after conversion and exit")
	flags.Bool("in_memory", false, "Assemble the database in memory, then copy it to the destination on finish")
	flags.Int("n_threads", 0, "Number of time-series writer workers (0 = heuristic)")
	flags.Bool("resume", false, "Skip tables a prior aborted run already merged")
	flags.String("metrics_addr", "", "Address to serve Prometheus metrics on (empty disables it)")
	flags.Int("io_rate_limit", 0, "Maximum BIN read operations (one per key) per second (0 = unlimited)")
	flags.String("log_file", "", "Path to a rotating log file (empty logs to stderr only)")
	flags.String("log_level", "", "Log level: trace, debug, info, warn, error, fatal, disabled")
}

func runPipeline(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return &argError{err}
	}

	logging.Init(logging.Config{Level: cfg.LogLevel, LogFile: cfg.LogFile})
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx = logging.ContextWithNewRunID(ctx)

	var reg *metrics.Registry
	if cfg.MetricsAddr != "" {
		reg = metrics.NewRegistry()
		srv := metrics.NewServer(cfg.MetricsAddr, reg)
		go func() {
			if err := srv.Serve(ctx); err != nil {
				logging.Ctx(ctx).Warn().Err(err).Msg("metrics server stopped with an error")
			}
		}()
	}

	summary, err := pipeline.Run(ctx, pipeline.Options{
		Input:       cfg.Input,
		Output:      cfg.OutputPath(),
		InMemory:    cfg.InMemory,
		NThreads:    cfg.NThreads,
		Resume:      cfg.Resume,
		ResumeDir:   cfg.OutputPath() + ".resume",
		IoRateLimit: cfg.IoRateLimit,
		Metrics:     reg,
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return err
		}
		return fmt.Errorf("conversion failed: %w", err)
	}

	if cfg.PrintSummary {
		fmt.Fprintf(cmd.OutOrStdout(), "source: %s\nmodel: %s\noutput: %s\ntables_written: %d\nrows_written: %d\ntables_skipped: %d\n",
			summary.SourceFile, summary.ModelName, summary.OutputPath,
			summary.TablesWritten, summary.RowsWritten, summary.TablesSkipped)
	}
	return nil
}

// exitCodeFor maps a top-level command error to the process exit code
// spec.md's CLI contract requires: 0 is handled by the normal return path,
// 130 for interactive interruption, 2 for flag/config validation errors,
// 1 for everything else (pipeline failures).
func exitCodeFor(err error) int {
	var argErr *argError
	switch {
	case errors.Is(err, context.Canceled):
		return 130
	case errors.As(err, &argErr):
		return 2
	default:
		return 1
	}
}
