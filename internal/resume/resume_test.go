// plexodb - PLEXOS solution bundle to DuckDB assembler
// SPDX-License-Identifier: AGPL-3.0-or-later

package resume

import (
	"path/filepath"
	"sort"
	"testing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "checkpoint"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return s
}

func TestIsCompleteFalseForUnmarkedTable(t *testing.T) {
	s := openTestStore(t)
	complete, err := s.IsComplete("ST__Interval__Generators__Generation")
	if err != nil {
		t.Fatalf("IsComplete: %v", err)
	}
	if complete {
		t.Error("expected an unmarked table to be incomplete")
	}
}

func TestMarkCompleteThenIsComplete(t *testing.T) {
	s := openTestStore(t)
	table := "ST__Interval__Generators__Generation"

	if err := s.MarkComplete(table); err != nil {
		t.Fatalf("MarkComplete: %v", err)
	}

	complete, err := s.IsComplete(table)
	if err != nil {
		t.Fatalf("IsComplete: %v", err)
	}
	if !complete {
		t.Error("expected table to be complete after MarkComplete")
	}
}

func TestCompletedTablesListsEveryMarkedTable(t *testing.T) {
	s := openTestStore(t)
	tables := []string{
		"ST__Interval__Generators__Generation",
		"ST__Interval__Generators__Units_Generating",
		"LT__Annual__Regions__Demand",
	}
	for _, tbl := range tables {
		if err := s.MarkComplete(tbl); err != nil {
			t.Fatalf("MarkComplete(%s): %v", tbl, err)
		}
	}

	got, err := s.CompletedTables()
	if err != nil {
		t.Fatalf("CompletedTables: %v", err)
	}
	sort.Strings(got)
	sort.Strings(tables)
	if len(got) != len(tables) {
		t.Fatalf("CompletedTables returned %d entries, want %d: %v", len(got), len(tables), got)
	}
	for i := range tables {
		if got[i] != tables[i] {
			t.Errorf("CompletedTables[%d] = %q, want %q", i, got[i], tables[i])
		}
	}
}

func TestReopenPreservesCheckpoints(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "checkpoint")
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.MarkComplete("ST__Interval__Generators__Generation"); err != nil {
		t.Fatalf("MarkComplete: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	complete, err := reopened.IsComplete("ST__Interval__Generators__Generation")
	if err != nil {
		t.Fatalf("IsComplete: %v", err)
	}
	if !complete {
		t.Error("expected checkpoint to survive reopen")
	}
}
