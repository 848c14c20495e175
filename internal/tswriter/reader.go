// plexodb - PLEXOS solution bundle to DuckDB assembler
// SPDX-License-Identifier: AGPL-3.0-or-later

package tswriter

import (
	"context"

	"github.com/plexodb/plexodb/internal/catalog"
	"github.com/plexodb/plexodb/internal/perr"
)

// Row is one output row of a canonical time series table. SampleID, BandID
// and MembershipID come from the key itself - the table name distinguishes
// phase/period/collection/property but not these three, so they travel
// with every row. Datetime resolution happens downstream in the
// processed.timestamp_block_* views, joined by BlockID.
type Row struct {
	KeyID        int64
	SampleID     int64
	BandID       int64
	MembershipID int64
	BlockID      int64
	Value        float64
}

// ProduceRows reads every key_id in plan from its BIN file and attaches
// each row's sample/band/membership dimensions from the catalog's Key.
func ProduceRows(ctx context.Context, cat *catalog.Catalog, bins *BinFileSet, plan DataTableWritePlan) ([]Row, error) {
	rows := make([]Row, 0, plan.EstimatedRows)

	for _, keyID := range plan.KeyIDs {
		k, ok := cat.Keys[keyID]
		if !ok {
			return nil, perr.UnknownReferenceErr("key", keyID)
		}
		ki, ok := cat.KeyIndexes[keyID]
		if !ok {
			return nil, perr.UnknownReferenceErr("key_index", keyID)
		}

		r, ok := bins.Reader(ki.PeriodTypeID)
		if !ok {
			return nil, perr.UnknownReferenceErr("period_type_id", ki.PeriodTypeID)
		}

		blockIDs, values, err := r.ReadRow(ctx, plan.TableName, keyID, ki.Position, ki.Length, ki.PeriodOffset)
		if err != nil {
			return nil, err
		}

		for i, blockID := range blockIDs {
			rows = append(rows, Row{
				KeyID:        keyID,
				SampleID:     k.SampleID,
				BandID:       k.BandID,
				MembershipID: k.MembershipID,
				BlockID:      blockID,
				Value:        values[i],
			})
		}
	}

	return rows, nil
}
