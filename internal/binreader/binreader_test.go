// plexodb - PLEXOS solution bundle to DuckDB assembler
// SPDX-License-Identifier: AGPL-3.0-or-later

package binreader

import (
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/plexodb/plexodb/internal/perr"
)

func writeTestBin(t *testing.T, values []float64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "t_data_0.BIN")
	buf := make([]byte, len(values)*float64Size)
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[i*float64Size:], math.Float64bits(v))
	}
	if err := os.WriteFile(path, buf, 0o600); err != nil {
		t.Fatalf("write test bin: %v", err)
	}
	return path
}

func TestReadRow(t *testing.T) {
	t.Parallel()

	path := writeTestBin(t, []float64{1.5, 2.5, 3.5, 4.5})
	r, err := Open(path, 0, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	blockIDs, values, err := r.ReadRow(context.Background(), "t1", 1, 8, 2, 0)
	if err != nil {
		t.Fatalf("ReadRow: %v", err)
	}
	if len(values) != 2 || values[0] != 2.5 || values[1] != 3.5 {
		t.Errorf("unexpected values: %v", values)
	}
	if len(blockIDs) != 2 || blockIDs[0] != 1 || blockIDs[1] != 2 {
		t.Errorf("unexpected block ids: %v", blockIDs)
	}
}

func TestReadRowAppliesPeriodOffset(t *testing.T) {
	t.Parallel()

	path := writeTestBin(t, []float64{10, 20, 30})
	r, err := Open(path, 0, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	blockIDs, _, err := r.ReadRow(context.Background(), "t1", 1, 0, 3, 100)
	if err != nil {
		t.Fatalf("ReadRow: %v", err)
	}
	want := []int64{101, 102, 103}
	for i, b := range blockIDs {
		if b != want[i] {
			t.Errorf("block id %d: got %d want %d", i, b, want[i])
		}
	}
}

func TestReadRowRejectsMisalignedPosition(t *testing.T) {
	t.Parallel()

	path := writeTestBin(t, []float64{1, 2, 3})
	r, err := Open(path, 0, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	_, _, err = r.ReadRow(context.Background(), "t1", 1, 3, 1, 0)
	if err == nil {
		t.Fatal("expected an error for a misaligned position")
	}
	pe, ok := err.(*perr.Error)
	if !ok {
		t.Fatalf("expected *perr.Error, got %T", err)
	}
	if pe.Kind != perr.Misaligned {
		t.Errorf("expected Misaligned, got %s", pe.Kind)
	}
}

func TestReadRowRejectsOutOfBoundsLength(t *testing.T) {
	t.Parallel()

	path := writeTestBin(t, []float64{1, 2, 3})
	r, err := Open(path, 0, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	_, _, err = r.ReadRow(context.Background(), "t1", 1, 0, 100, 0)
	if err == nil {
		t.Fatal("expected an error when the requested range exceeds the file")
	}
	pe, ok := err.(*perr.Error)
	if !ok {
		t.Fatalf("expected *perr.Error, got %T", err)
	}
	if pe.Kind != perr.Overflow {
		t.Errorf("expected Overflow, got %s", pe.Kind)
	}
}

func TestSafeMulOverflow(t *testing.T) {
	t.Parallel()

	_, ok := safeMul(math.MaxInt64, 2)
	if ok {
		t.Error("expected overflow to be detected")
	}
	v, ok := safeMul(3, 8)
	if !ok || v != 24 {
		t.Errorf("safeMul(3, 8) = %d, %v; want 24, true", v, ok)
	}
}
