// plexodb - PLEXOS solution bundle to DuckDB assembler
// SPDX-License-Identifier: AGPL-3.0-or-later

package tswriter

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/plexodb/plexodb/internal/catalog"
	"github.com/plexodb/plexodb/internal/logging"
	"github.com/plexodb/plexodb/internal/rawschema"
)

// Summary reports how much work the Time-Series Writer completed.
type Summary struct {
	TablesWritten int
	RowsWritten   int64
}

// Write plans the full set of canonical tables and produces them into
// target. When workerCount is 1, tables are written directly and
// sequentially into target's data schema, emitting DataTableStart/End on
// onEvent and skipping the staging/merge round-trip entirely. When
// workerCount is greater than 1, the plan fans out across workerCount
// worker goroutines (each writing to its own staging DuckDB file),
// waits for every worker via an errgroup (first error wins, the
// remaining workers are canceled through gctx) emitting
// DataWorkerTableStart/End, then sequentially merges each staging file
// into target's data schema emitting DataMergeTableStart/End. onEvent may
// be nil, in which case no events are emitted.
func Write(ctx context.Context, cat *catalog.Catalog, bins *BinFileSet, target *sql.DB, stagingDir string, workerCount int, onEvent func(ProgressEvent)) (Summary, error) {
	if workerCount <= 1 {
		return writeSequential(ctx, cat, bins, target, onEvent)
	}

	buckets := Plan(cat, workerCount)

	progressCh := make(chan Progress, workerCount*2+1)
	g, gctx := errgroup.WithContext(ctx)

	stagingPaths := make([]string, len(buckets))
	for i, plans := range buckets {
		if len(plans) == 0 {
			continue
		}
		i, plans := i, plans
		stagingPath := filepath.Join(stagingDir, fmt.Sprintf("staging_%d.duckdb", i))
		stagingPaths[i] = stagingPath
		g.Go(func() error {
			return runWorker(gctx, i, stagingPath, cat, bins, plans, progressCh, onEvent)
		})
	}

	waitDone := make(chan error, 1)
	go func() {
		waitDone <- g.Wait()
		close(progressCh)
	}()

	var summary Summary
	for p := range progressCh {
		if p.Err != nil {
			continue
		}
		summary.TablesWritten++
		summary.RowsWritten += int64(p.Rows)
	}

	if err := <-waitDone; err != nil {
		return summary, err
	}

	for i, plans := range buckets {
		if len(plans) == 0 {
			continue
		}
		alias := fmt.Sprintf("staging_%d", i)
		if err := mergeStaging(ctx, target, stagingPaths[i], alias, plans, onEvent); err != nil {
			return summary, err
		}
		if err := os.Remove(stagingPaths[i]); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("path", stagingPaths[i]).Msg("failed to remove staging file")
		}
	}

	logging.Ctx(ctx).Info().
		Int("tables_written", summary.TablesWritten).
		Int64("rows_written", summary.RowsWritten).
		Msg("time series write complete")

	return summary, nil
}

// writeSequential implements the W=1 path: every table is created,
// produced, and written directly into target with no staging database
// and no merge step.
func writeSequential(ctx context.Context, cat *catalog.Catalog, bins *BinFileSet, target *sql.DB, onEvent func(ProgressEvent)) (Summary, error) {
	buckets := Plan(cat, 1)
	plans := buckets[0]

	var summary Summary
	total := len(plans)
	for i, plan := range plans {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		hasKeys := len(plan.KeyIDs) > 0
		if hasKeys {
			emit(onEvent, ProgressEvent{Kind: DataTableStart, Index: i + 1, Total: total, TableName: plan.TableName, Keys: len(plan.KeyIDs)})
		}

		if _, err := target.ExecContext(ctx, rawschema.TimeSeriesTableDDL(plan.TableName)); err != nil {
			return summary, fmt.Errorf("create table %s: %w", plan.TableName, err)
		}

		rows, err := ProduceRows(ctx, cat, bins, plan)
		if err != nil {
			return summary, fmt.Errorf("produce rows for %s: %w", plan.TableName, err)
		}

		if err := writeRows(ctx, target, plan.TableName, rows); err != nil {
			return summary, fmt.Errorf("write rows for %s: %w", plan.TableName, err)
		}

		logging.Ctx(ctx).Debug().Str("table", plan.TableName).Int("rows", len(rows)).Msg("table written")
		summary.TablesWritten++
		summary.RowsWritten += int64(len(rows))
		if hasKeys {
			emit(onEvent, ProgressEvent{Kind: DataTableEnd, Index: i + 1, Total: total})
		}
	}

	logging.Ctx(ctx).Info().
		Int("tables_written", summary.TablesWritten).
		Int64("rows_written", summary.RowsWritten).
		Msg("time series write complete")

	return summary, nil
}
