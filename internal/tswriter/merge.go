// plexodb - PLEXOS solution bundle to DuckDB assembler
// SPDX-License-Identifier: AGPL-3.0-or-later

package tswriter

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/plexodb/plexodb/internal/logging"
)

// mergeStaging attaches a worker's staging database under alias, copies
// every table named by plans from it into the target's data schema, and
// detaches it. Grounded on the same ATTACH/DETACH shape used to pull a
// Tautulli SQLite export into DuckDB: attach, verify/read, detach. onEvent,
// when non-nil, receives a DataMergeTableStart/End pair around each table
// with at least one key (tables with zero keys emit no events).
func mergeStaging(ctx context.Context, target *sql.DB, stagingPath, alias string, plans []DataTableWritePlan, onEvent func(ProgressEvent)) error {
	if _, err := target.ExecContext(ctx, fmt.Sprintf(`ATTACH DATABASE '%s' AS %s`, stagingPath, alias)); err != nil {
		return fmt.Errorf("attach staging database %s: %w", stagingPath, err)
	}
	defer detachStaging(ctx, target, alias)

	total := len(plans)
	for i, plan := range plans {
		hasKeys := len(plan.KeyIDs) > 0
		if hasKeys {
			emit(onEvent, ProgressEvent{Kind: DataMergeTableStart, Index: i + 1, Total: total, TableName: plan.TableName})
		}
		query := fmt.Sprintf(`INSERT INTO data."%s" SELECT * FROM %s.data."%s"`, plan.TableName, alias, plan.TableName)
		if _, err := target.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("merge table %s from %s: %w", plan.TableName, alias, err)
		}
		if hasKeys {
			emit(onEvent, ProgressEvent{Kind: DataMergeTableEnd, Index: i + 1, Total: total})
		}
	}

	return nil
}

func detachStaging(ctx context.Context, target *sql.DB, alias string) {
	if _, err := target.ExecContext(ctx, fmt.Sprintf(`DETACH DATABASE IF EXISTS %s`, alias)); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("alias", alias).Msg("failed to detach staging database")
	}
}
