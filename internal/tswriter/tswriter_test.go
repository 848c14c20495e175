// plexodb - PLEXOS solution bundle to DuckDB assembler
// SPDX-License-Identifier: AGPL-3.0-or-later

package tswriter

import (
	"context"
	"database/sql"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/plexodb/plexodb/internal/catalog"
	"github.com/plexodb/plexodb/internal/rawschema"
)

func TestPlanBalancesWorkByEstimatedRows(t *testing.T) {
	t.Parallel()

	cat := &catalog.Catalog{
		DataTables: map[string][]int64{
			"big":    {1},
			"medium": {2},
			"small1": {3},
			"small2": {4},
		},
		KeyIndexes: map[int64]catalog.KeyIndex{
			1: {KeyID: 1, Length: 1000},
			2: {KeyID: 2, Length: 400},
			3: {KeyID: 3, Length: 100},
			4: {KeyID: 4, Length: 100},
		},
	}

	buckets := Plan(cat, 2)
	if len(buckets) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(buckets))
	}

	var loads [2]int64
	for i, b := range buckets {
		for _, p := range b {
			loads[i] += p.EstimatedRows
		}
	}
	// big goes to worker 0; medium, small1 and small2 each go to the then
	// lighter worker 1. No split of these four tables does better than
	// 1000 vs 600.
	if loads != [2]int64{1000, 600} {
		t.Errorf("expected loads [1000 600], got %v", loads)
	}
}

func TestPlanHandlesMoreWorkersThanTables(t *testing.T) {
	t.Parallel()

	cat := &catalog.Catalog{
		DataTables: map[string][]int64{"only": {1}},
		KeyIndexes: map[int64]catalog.KeyIndex{1: {KeyID: 1, Length: 10}},
	}
	buckets := Plan(cat, 4)
	if len(buckets) != 4 {
		t.Fatalf("expected 4 buckets, got %d", len(buckets))
	}
	nonEmpty := 0
	for _, b := range buckets {
		if len(b) > 0 {
			nonEmpty++
		}
	}
	if nonEmpty != 1 {
		t.Errorf("expected exactly 1 non-empty bucket, got %d", nonEmpty)
	}
}

func TestPlanBreaksTiesByKeyCountThenName(t *testing.T) {
	t.Parallel()

	cat := &catalog.Catalog{
		// zebra, apple, bravo all estimate 10 rows. zebra has more keys, so
		// the key-count tiebreak schedules it first; apple and bravo tie on
		// both estimated rows and key count, so name order decides between them.
		DataTables: map[string][]int64{
			"zebra": {1, 2},
			"apple": {3},
			"bravo": {4},
		},
		KeyIndexes: map[int64]catalog.KeyIndex{
			1: {KeyID: 1, Length: 5},
			2: {KeyID: 2, Length: 5},
			3: {KeyID: 3, Length: 10},
			4: {KeyID: 4, Length: 10},
		},
	}

	buckets := Plan(cat, 1)
	if len(buckets) != 1 {
		t.Fatalf("expected 1 bucket, got %d", len(buckets))
	}
	got := make([]string, len(buckets[0]))
	for i, p := range buckets[0] {
		got[i] = p.TableName
	}
	want := []string{"zebra", "apple", "bravo"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("plan order = %v, want %v", got, want)
			break
		}
	}
}

const writerTestXML = `<?xml version="1.0" encoding="UTF-8"?>
<SolutionDataset>
  <t_class><class_id>1</class_id><name>Generator</name><class_group_id>1</class_group_id></t_class>
  <t_class><class_id>2</class_id><name>Node</name><class_group_id>1</class_group_id></t_class>
  <t_class_group><class_group_id>1</class_group_id><name>Physical</name></t_class_group>
  <t_category><category_id>1</category_id><name>Default</name><rank>0</rank><class_id>1</class_id></t_category>
  <t_category><category_id>2</category_id><name>Default</name><rank>0</rank><class_id>2</class_id></t_category>
  <t_object><object_id>1</object_id><name>Gen1</name><class_id>1</class_id><category_id>1</category_id><index>0</index><show>1</show></t_object>
  <t_object><object_id>2</object_id><name>Node1</name><class_id>2</class_id><category_id>2</category_id><index>0</index><show>1</show></t_object>
  <t_collection><collection_id>1</collection_id><name>Nodes</name><parent_class_id>1</parent_class_id><child_class_id>2</child_class_id></t_collection>
  <t_membership><membership_id>1</membership_id><collection_id>1</collection_id><parent_class_id>1</parent_class_id><child_class_id>2</child_class_id><parent_object_id>1</parent_object_id><child_object_id>2</child_object_id></t_membership>
  <t_property><property_id>1</property_id><name>Generation</name><summary_name>Generation</summary_name><collection_id>1</collection_id><unit_id>1</unit_id><summary_unit_id>1</summary_unit_id><is_summary>0</is_summary></t_property>
  <t_unit><unit_id>1</unit_id><value>MW</value></t_unit>
  <t_sample><sample_id>1</sample_id><name>Base</name></t_sample>
  <t_timeslice><timeslice_id>1</timeslice_id><name>All</name></t_timeslice>
  <t_period_interval><interval_id>1</interval_id><datetime>01/01/2024 00:00:00</datetime><hour_id>1</hour_id><day_id>1</day_id><week_id>1</week_id><month_id>1</month_id><fiscal_year_id>1</fiscal_year_id></t_period_interval>
  <t_period_interval><interval_id>2</interval_id><datetime>01/01/2024 01:00:00</datetime><hour_id>2</hour_id><day_id>1</day_id><week_id>1</week_id><month_id>1</month_id><fiscal_year_id>1</fiscal_year_id></t_period_interval>
  <t_phase_st><interval_id>1</interval_id><period_id>1</period_id></t_phase_st>
  <t_phase_st><interval_id>2</interval_id><period_id>2</period_id></t_phase_st>
  <t_key><key_id>1</key_id><phase_id>4</phase_id><band_id>1</band_id><sample_id>1</sample_id><timeslice_id>1</timeslice_id><membership_id>1</membership_id><property_id>1</property_id><model_id>1</model_id><period_type_id>0</period_type_id></t_key>
  <t_key_index><key_id>1</key_id><period_type_id>0</period_type_id><position>0</position><length>2</length><period_offset>0</period_offset></t_key_index>
</SolutionDataset>`

var tswriterDBSemaphore = make(chan struct{}, 1)

func openTestTargetDB(t *testing.T) *sql.DB {
	t.Helper()
	tswriterDBSemaphore <- struct{}{}
	t.Cleanup(func() { <-tswriterDBSemaphore })

	db, err := sql.Open("duckdb", ":memory:?autoinstall_known_extensions=false&autoload_known_extensions=false")
	if err != nil {
		t.Fatalf("open target duckdb: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func writeBinFile(t *testing.T, dir string, values []float64) string {
	t.Helper()
	path := filepath.Join(dir, "t_data_0.BIN")
	buf := make([]byte, len(values)*8)
	for i, v := range values {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	if err := os.WriteFile(path, buf, 0o600); err != nil {
		t.Fatalf("write bin file: %v", err)
	}
	return path
}

func TestWriteEndToEnd(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cat, err := catalog.Load(ctx, strings.NewReader(writerTestXML), catalog.RunMetadata{
		ToolVersion: "test", CreatedAt: time.Unix(0, 0), SourceFile: "sample.zip",
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	binDir := t.TempDir()
	binPath := writeBinFile(t, binDir, []float64{10.0, 20.0})
	bins, err := OpenBinFileSet(map[int64]string{0: binPath}, nil)
	if err != nil {
		t.Fatalf("OpenBinFileSet: %v", err)
	}
	defer bins.Close()

	target := openTestTargetDB(t)
	if err := rawschema.New(target).CreateSchema(ctx, cat); err != nil {
		t.Fatalf("CreateSchema: %v", err)
	}

	stagingDir := t.TempDir()
	var events []ProgressEvent
	summary, err := Write(ctx, cat, bins, target, stagingDir, 2, func(ev ProgressEvent) {
		events = append(events, ev)
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if len(events) == 0 {
		t.Error("expected at least one progress event")
	}
	for _, ev := range events {
		if ev.Kind == DataTableStart || ev.Kind == DataTableEnd {
			t.Errorf("unexpected sequential event kind %q from a 2-worker write", ev.Kind)
		}
	}
	if summary.TablesWritten != 1 {
		t.Errorf("expected 1 table written, got %d", summary.TablesWritten)
	}
	if summary.RowsWritten != 2 {
		t.Errorf("expected 2 rows written, got %d", summary.RowsWritten)
	}

	var tableName string
	for name := range cat.DataTables {
		tableName = name
	}

	var count int
	query := `SELECT COUNT(*) FROM data."` + tableName + `"`
	if err := target.QueryRowContext(ctx, query).Scan(&count); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 rows in merged table, got %d", count)
	}

	var value float64
	var membershipID int64
	if err := target.QueryRowContext(ctx,
		`SELECT value, membership_id FROM data."`+tableName+`" WHERE block_id = 1`).Scan(&value, &membershipID); err != nil {
		t.Fatalf("query value: %v", err)
	}
	if value != 10.0 {
		t.Errorf("expected value 10.0 for block_id 1, got %v", value)
	}
	if membershipID != 1 {
		t.Errorf("expected membership_id 1, got %d", membershipID)
	}
}

func TestWriteSequentialSingleWorkerWritesDirectlyAndEmitsDataTableEvents(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cat, err := catalog.Load(ctx, strings.NewReader(writerTestXML), catalog.RunMetadata{
		ToolVersion: "test", CreatedAt: time.Unix(0, 0), SourceFile: "sample.zip",
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	binDir := t.TempDir()
	binPath := writeBinFile(t, binDir, []float64{10.0, 20.0})
	bins, err := OpenBinFileSet(map[int64]string{0: binPath}, nil)
	if err != nil {
		t.Fatalf("OpenBinFileSet: %v", err)
	}
	defer bins.Close()

	target := openTestTargetDB(t)
	if err := rawschema.New(target).CreateSchema(ctx, cat); err != nil {
		t.Fatalf("CreateSchema: %v", err)
	}

	var events []ProgressEvent
	summary, err := Write(ctx, cat, bins, target, t.TempDir(), 1, func(ev ProgressEvent) {
		events = append(events, ev)
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if summary.TablesWritten != 1 || summary.RowsWritten != 2 {
		t.Errorf("expected 1 table / 2 rows, got %d tables / %d rows", summary.TablesWritten, summary.RowsWritten)
	}

	if len(events) != 2 {
		t.Fatalf("expected exactly 2 events (start, end), got %d: %+v", len(events), events)
	}
	if events[0].Kind != DataTableStart || events[1].Kind != DataTableEnd {
		t.Errorf("expected [DataTableStart, DataTableEnd], got [%v, %v]", events[0].Kind, events[1].Kind)
	}
}
