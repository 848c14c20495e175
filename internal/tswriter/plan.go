// plexodb - PLEXOS solution bundle to DuckDB assembler
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tswriter produces every canonical time series table from the
// loaded catalog and the binary period-data files, splitting the work
// across a bounded pool of workers.
package tswriter

import (
	"sort"

	"github.com/plexodb/plexodb/internal/catalog"
)

// DataTableWritePlan describes one canonical table's write job: its name,
// the key_ids assigned to it (in the order returned by the catalog's
// data-table-grouping derivation), and its estimated row count, used only
// to balance work across workers.
type DataTableWritePlan struct {
	TableName     string
	KeyIDs        []int64
	EstimatedRows int64
}

// Plan builds one DataTableWritePlan per canonical table in cat.DataTables,
// then distributes the plans across workerCount buckets using longest-
// processing-time-first (LPT) scheduling: process tables in descending
// estimated-row order, always handing the next table to the
// currently-lightest worker. This bounds the makespan to within 4/3 of
// optimal for any work distribution, which is good enough for a batch job
// where wall-clock, not perfect balance, is what matters.
func Plan(cat *catalog.Catalog, workerCount int) [][]DataTableWritePlan {
	if workerCount < 1 {
		workerCount = 1
	}

	names := make([]string, 0, len(cat.DataTables))
	for name := range cat.DataTables {
		names = append(names, name)
	}
	sort.Strings(names)

	plans := make([]DataTableWritePlan, 0, len(names))
	for _, name := range names {
		keyIDs := cat.DataTables[name]
		var rows int64
		for _, keyID := range keyIDs {
			rows += cat.KeyIndexes[keyID].Length
		}
		plans = append(plans, DataTableWritePlan{TableName: name, KeyIDs: keyIDs, EstimatedRows: rows})
	}

	sort.Slice(plans, func(i, j int) bool {
		if plans[i].EstimatedRows != plans[j].EstimatedRows {
			return plans[i].EstimatedRows > plans[j].EstimatedRows
		}
		if len(plans[i].KeyIDs) != len(plans[j].KeyIDs) {
			return len(plans[i].KeyIDs) > len(plans[j].KeyIDs)
		}
		return plans[i].TableName < plans[j].TableName
	})

	buckets := make([][]DataTableWritePlan, workerCount)
	loads := make([]int64, workerCount)
	for _, p := range plans {
		lightest := 0
		for i := 1; i < workerCount; i++ {
			if loads[i] < loads[lightest] {
				lightest = i
			}
		}
		buckets[lightest] = append(buckets[lightest], p)
		loads[lightest] += p.EstimatedRows
	}

	return buckets
}
