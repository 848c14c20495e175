// plexodb - PLEXOS solution bundle to DuckDB assembler
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package binreader performs positional reads of the little-endian float64
// arrays stored in a PLEXOS solution's t_data_<N>.BIN files.
package binreader

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"golang.org/x/time/rate"

	"github.com/plexodb/plexodb/internal/perr"
)

const float64Size = 8

// Reader serves positional reads against one t_data_<N>.BIN file. A Reader
// is safe for concurrent use by multiple goroutines: ReadAt takes no lock
// and the underlying *os.File handle supports concurrent positional reads.
type Reader struct {
	f        *os.File
	size     int64
	periodID int64
	limiter  *rate.Limiter
}

// Open opens the BIN file for periodTypeID, recording its size for bounds
// checking. limiter may be nil to disable I/O rate limiting.
func Open(path string, periodTypeID int64, limiter *rate.Limiter) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, perr.IOErr(path, 0, 0, fmt.Errorf("open bin file: %w", err))
	}
	info, err := f.Stat()
	if err != nil {
		f.Close() //nolint:errcheck // best-effort cleanup on error path
		return nil, perr.IOErr(path, 0, 0, fmt.Errorf("stat bin file: %w", err))
	}
	return &Reader{f: f, size: info.Size(), periodID: periodTypeID, limiter: limiter}, nil
}

// Close closes the underlying file handle.
func (r *Reader) Close() error {
	return r.f.Close()
}

// ReadRow reads one table's time series: length float64 values starting at
// byte offset position, returning block_id = i + periodOffset + 1 alongside
// each value. position must be 8-byte aligned; the read must fit entirely
// within the file.
func (r *Reader) ReadRow(ctx context.Context, table string, keyID, position, length, periodOffset int64) ([]int64, []float64, error) {
	if position%float64Size != 0 {
		return nil, nil, perr.MisalignedErr(keyID, position)
	}
	if length < 0 {
		return nil, nil, perr.OverflowErr(table, keyID)
	}

	byteLen, ok := safeMul(length, float64Size)
	if !ok {
		return nil, nil, perr.OverflowErr(table, keyID)
	}
	end, ok := safeAdd(position, byteLen)
	if !ok || end > r.size {
		return nil, nil, perr.OverflowErr(table, keyID)
	}

	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, nil, perr.IOErr(table, keyID, position, err)
		}
	}

	buf := make([]byte, byteLen)
	if _, err := r.f.ReadAt(buf, position); err != nil {
		return nil, nil, perr.IOErr(table, keyID, position, err)
	}

	blockIDs := make([]int64, length)
	values := make([]float64, length)
	for i := int64(0); i < length; i++ {
		bits := binary.LittleEndian.Uint64(buf[i*float64Size : (i+1)*float64Size])
		values[i] = math.Float64frombits(bits)
		blockID, ok := safeAdd(i+1, periodOffset)
		if !ok {
			return nil, nil, perr.OverflowErr(table, keyID)
		}
		blockIDs[i] = blockID
	}
	return blockIDs, values, nil
}

func safeAdd(a, b int64) (int64, bool) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, false
	}
	return sum, true
}

func safeMul(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	p := a * b
	if p/b != a {
		return 0, false
	}
	return p, true
}
