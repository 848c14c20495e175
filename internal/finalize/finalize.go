// plexodb - PLEXOS solution bundle to DuckDB assembler
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package finalize opens and closes the destination database under one of
// two strategies, matching the teacher's DB wrapper's single-purpose
// lifecycle methods (New/initialize/Close) generalized into an explicit
// interface so the pipeline can select a strategy at construction time.
package finalize

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/plexodb/plexodb/internal/logging"
	"github.com/plexodb/plexodb/internal/sqlident"
)

// Strategy opens a working database connection and finalizes it into the
// destination file once the pipeline is done writing.
type Strategy interface {
	Open(ctx context.Context) (*sql.DB, error)
	Finish(ctx context.Context, db *sql.DB) error
}

const tuningFlags = "preserve_insertion_order=false&autoinstall_known_extensions=false&autoload_known_extensions=false"

// Direct opens the destination file directly and checkpoints it on finish,
// flushing the WAL into the main database file.
type Direct struct {
	Path string
}

func (d *Direct) Open(ctx context.Context) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s?%s", d.Path, tuningFlags)
	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open destination database %s: %w", d.Path, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to destination database %s: %w", d.Path, err)
	}
	return db, nil
}

func (d *Direct) Finish(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, "CHECKPOINT"); err != nil {
		return fmt.Errorf("checkpoint destination database: %w", err)
	}
	logging.Ctx(ctx).Info().Str("path", d.Path).Msg("destination database checkpointed")
	return nil
}

// InMemoryThenCopy writes the whole pipeline to an in-memory catalog, then
// attaches the destination file and copies every schema into it on finish.
type InMemoryThenCopy struct {
	Path string
}

func (m *InMemoryThenCopy) Open(ctx context.Context) (*sql.DB, error) {
	dsn := fmt.Sprintf(":memory:?%s", tuningFlags)
	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open in-memory database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to in-memory database: %w", err)
	}
	return db, nil
}

func (m *InMemoryThenCopy) Finish(ctx context.Context, db *sql.DB) error {
	attach := fmt.Sprintf("ATTACH DATABASE %s AS dest", sqlident.QuoteLiteral(m.Path))
	if _, err := db.ExecContext(ctx, attach); err != nil {
		return fmt.Errorf("attach destination database %s: %w", m.Path, err)
	}
	defer func() {
		if _, err := db.ExecContext(ctx, "DETACH DATABASE IF EXISTS dest"); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("failed to detach destination database")
		}
	}()

	if _, err := db.ExecContext(ctx, "COPY FROM DATABASE memory TO dest"); err != nil {
		return fmt.Errorf("copy in-memory database to %s: %w", m.Path, err)
	}

	logging.Ctx(ctx).Info().Str("path", m.Path).Msg("in-memory database copied to destination")
	return nil
}
