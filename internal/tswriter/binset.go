// plexodb - PLEXOS solution bundle to DuckDB assembler
// SPDX-License-Identifier: AGPL-3.0-or-later

package tswriter

import (
	"fmt"
	"sort"

	"golang.org/x/time/rate"

	"github.com/plexodb/plexodb/internal/binreader"
)

// BinFileSet holds one opened binreader.Reader per period_type_id, shared
// read-only across every worker goroutine - ReadAt is safe for concurrent
// positional reads against the same file handle.
type BinFileSet struct {
	readers map[int64]*binreader.Reader
}

// OpenBinFileSet opens one BIN file per (period_type_id, path) pair.
func OpenBinFileSet(paths map[int64]string, limiter *rate.Limiter) (*BinFileSet, error) {
	readers := make(map[int64]*binreader.Reader, len(paths))
	ids := make([]int64, 0, len(paths))
	for id := range paths {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		r, err := binreader.Open(paths[id], id, limiter)
		if err != nil {
			closeAll(readers)
			return nil, fmt.Errorf("open bin file for period_type_id %d: %w", id, err)
		}
		readers[id] = r
	}
	return &BinFileSet{readers: readers}, nil
}

// Reader returns the opened reader for periodTypeID, if any.
func (s *BinFileSet) Reader(periodTypeID int64) (*binreader.Reader, bool) {
	r, ok := s.readers[periodTypeID]
	return r, ok
}

// Close closes every underlying file handle, returning the first error.
func (s *BinFileSet) Close() error {
	var first error
	for _, r := range s.readers {
		if err := r.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func closeAll(readers map[int64]*binreader.Reader) {
	for _, r := range readers {
		r.Close() //nolint:errcheck // best-effort cleanup on error path
	}
}
