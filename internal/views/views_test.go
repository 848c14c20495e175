// plexodb - PLEXOS solution bundle to DuckDB assembler
// SPDX-License-Identifier: AGPL-3.0-or-later

package views

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/plexodb/plexodb/internal/catalog"
	"github.com/plexodb/plexodb/internal/rawschema"
)

const viewsTestXML = `<?xml version="1.0" encoding="UTF-8"?>
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

var viewsDBSemaphore = make(chan struct{}, 1)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	viewsDBSemaphore <- struct{}{}
	t.Cleanup(func() { <-viewsDBSemaphore })

	db, err := sql.Open("duckdb", ":memory:?autoinstall_known_extensions=false&autoload_known_extensions=false")
	if err != nil {
		t.Fatalf("open duckdb: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func loadTestCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.Load(context.Background(), strings.NewReader(viewsTestXML), catalog.RunMetadata{
		ToolVersion: "test", CreatedAt: time.Unix(0, 0), SourceFile: "sample.zip",
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return cat
}

func TestSchemaDDLIncludesExpectedViews(t *testing.T) {
	t.Parallel()

	cat := loadTestCatalog(t)
	stmts := SchemaDDL(cat)

	joined := strings.Join(stmts, "\n")
	for _, want := range []string{
		`processed."timestamp_block_ST__Interval"`,
		"processed.classes",
		"processed.objects",
		"processed.properties",
		"processed.memberships",
		`report."ST__Interval__Generator_Nodes__Generation"`,
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("expected generated DDL to reference %q", want)
		}
	}
}

func TestBuildCreatesQueryableViews(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cat := loadTestCatalog(t)
	db := openTestDB(t)

	if err := rawschema.New(db).CreateSchema(ctx, cat); err != nil {
		t.Fatalf("CreateSchema: %v", err)
	}
	if err := rawschema.New(db).WriteCatalogMetadata(ctx, cat); err != nil {
		t.Fatalf("WriteCatalogMetadata: %v", err)
	}

	if _, err := db.ExecContext(ctx,
		`INSERT INTO data."ST__Interval__Generator_Nodes__Generation"
		 (key_id, sample_id, band_id, membership_id, block_id, value) VALUES (1, 1, 1, 1, 1, 42.0)`); err != nil {
		t.Fatalf("seed data table: %v", err)
	}

	if err := Build(ctx, db, cat); err != nil {
		t.Fatalf("Build: %v", err)
	}

	var value float64
	var datetime time.Time
	err := db.QueryRowContext(ctx,
		`SELECT "Generation", datetime FROM report."ST__Interval__Generator_Nodes__Generation" WHERE block_id = 1`,
	).Scan(&value, &datetime)
	if err != nil {
		t.Fatalf("query report view: %v", err)
	}
	if value != 42.0 {
		t.Errorf("expected value 42.0, got %v", value)
	}

	var classCount int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM processed.classes").Scan(&classCount); err != nil {
		t.Fatalf("count processed.classes: %v", err)
	}
	if classCount != 2 {
		t.Errorf("expected 2 classes, got %d", classCount)
	}
}
