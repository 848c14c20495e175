// plexodb - PLEXOS solution bundle to DuckDB assembler
// SPDX-License-Identifier: AGPL-3.0-or-later

package tswriter

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/plexodb/plexodb/internal/catalog"
	"github.com/plexodb/plexodb/internal/logging"
	"github.com/plexodb/plexodb/internal/rawschema"
)

// Progress is one worker's report after finishing a single table.
type Progress struct {
	WorkerID int
	Table    string
	Rows     int
	Err      error
}

// runWorker opens its own staging DuckDB file, creates one table per
// assigned plan, and writes every produced row into it. Progress is
// reported on progressCh as each table completes; the channel has one
// producer per worker and a single consumer in the coordinator. onEvent,
// when non-nil, additionally receives a DataWorkerTableStart/End pair
// around each table (skipped for tables with zero keys).
func runWorker(ctx context.Context, workerID int, stagingPath string, cat *catalog.Catalog, bins *BinFileSet, plans []DataTableWritePlan, progressCh chan<- Progress, onEvent func(ProgressEvent)) error {
	dsn := fmt.Sprintf("%s?preserve_insertion_order=false&autoinstall_known_extensions=false&autoload_known_extensions=false", stagingPath)
	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return fmt.Errorf("worker %d: open staging database: %w", workerID, err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, rawschema.DataSchemaDDL()); err != nil {
		return fmt.Errorf("worker %d: create data schema: %w", workerID, err)
	}

	total := len(plans)
	for i, plan := range plans {
		if err := ctx.Err(); err != nil {
			return err
		}

		hasKeys := len(plan.KeyIDs) > 0
		if hasKeys {
			emit(onEvent, ProgressEvent{Kind: DataWorkerTableStart, WorkerID: workerID, Index: i + 1, Total: total, TableName: plan.TableName, Keys: len(plan.KeyIDs)})
		}

		if _, err := db.ExecContext(ctx, rawschema.TimeSeriesTableDDL(plan.TableName)); err != nil {
			err = fmt.Errorf("worker %d: create table %s: %w", workerID, plan.TableName, err)
			progressCh <- Progress{WorkerID: workerID, Table: plan.TableName, Err: err}
			return err
		}

		rows, err := ProduceRows(ctx, cat, bins, plan)
		if err != nil {
			err = fmt.Errorf("worker %d: produce rows for %s: %w", workerID, plan.TableName, err)
			progressCh <- Progress{WorkerID: workerID, Table: plan.TableName, Err: err}
			return err
		}

		if err := writeRows(ctx, db, plan.TableName, rows); err != nil {
			err = fmt.Errorf("worker %d: write rows for %s: %w", workerID, plan.TableName, err)
			progressCh <- Progress{WorkerID: workerID, Table: plan.TableName, Err: err}
			return err
		}

		logging.Ctx(ctx).Debug().Int("worker", workerID).Str("table", plan.TableName).Int("rows", len(rows)).Msg("table written")
		progressCh <- Progress{WorkerID: workerID, Table: plan.TableName, Rows: len(rows)}
		if hasKeys {
			emit(onEvent, ProgressEvent{Kind: DataWorkerTableEnd, WorkerID: workerID, Index: i + 1, Total: total})
		}
	}

	return nil
}

func writeRows(ctx context.Context, db *sql.DB, tableName string, rows []Row) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil {
				logging.Ctx(ctx).Warn().Err(rbErr).Msg("transaction rollback failed")
			}
		}
	}()

	query := fmt.Sprintf(`INSERT INTO data."%s" (key_id, sample_id, band_id, membership_id, block_id, value) VALUES (?, ?, ?, ?, ?, ?)`, tableName)
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer func() {
		if closeErr := stmt.Close(); closeErr != nil {
			logging.Ctx(ctx).Warn().Err(closeErr).Msg("failed to close prepared statement")
		}
	}()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx, row.KeyID, row.SampleID, row.BandID, row.MembershipID, row.BlockID, row.Value); err != nil {
			return fmt.Errorf("insert row (key_id=%d block_id=%d): %w", row.KeyID, row.BlockID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	return nil
}
