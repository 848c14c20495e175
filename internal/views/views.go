// plexodb - PLEXOS solution bundle to DuckDB assembler
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package views builds the processed and report schemas: SQL views that
// join time series data tables against dimensional tables and timestamp
// blocks, generated from the loaded catalog.
package views

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"github.com/plexodb/plexodb/internal/catalog"
	"github.com/plexodb/plexodb/internal/logging"
	"github.com/plexodb/plexodb/internal/rawschema"
	"github.com/plexodb/plexodb/internal/sqlident"
)

// Build creates the processed and report schemas against db: one
// processed.timestamp_block_{phase}__{period} view per non-empty bucket in
// cat.TimestampBlocks, the fixed processed.classes/objects/properties/
// memberships views, and one report."{table}" view per canonical time
// series table in cat.DataTables.
func Build(ctx context.Context, db *sql.DB, cat *catalog.Catalog) error {
	for _, stmt := range SchemaDDL(cat) {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create view: %s: %w", stmt, err)
		}
	}
	logging.Ctx(ctx).Info().Int("tables", len(cat.DataTables)).Msg("views created")
	return nil
}

// SchemaDDL returns the full ordered statement list for both view schemas.
func SchemaDDL(cat *catalog.Catalog) []string {
	stmts := []string{
		`CREATE SCHEMA IF NOT EXISTS processed`,
		`CREATE SCHEMA IF NOT EXISTS report`,
	}
	stmts = append(stmts, timestampBlockViews(cat)...)
	stmts = append(stmts,
		classesView(),
		objectsView(),
		propertiesView(),
		membershipsView(),
	)
	stmts = append(stmts, reportViews(cat)...)
	return stmts
}

// timestampBlockViews builds one view per non-empty "{phase}__{period}"
// bucket, reading from its own materialized raw.timestamp_block_{bucket}
// table. The Interval kind reconstructs block_id as the raw interval_id
// itself, grouping in case the same interval_id appears more than once
// (MIN(datetime), COUNT(*) as interval_length); every other kind assigns
// block_id positionally via ROW_NUMBER() over the table's insertion order,
// with interval_length fixed at 1.
func timestampBlockViews(cat *catalog.Catalog) []string {
	buckets := make([]string, 0, len(cat.TimestampBlocks))
	for bucket, entries := range cat.TimestampBlocks {
		if len(entries) == 0 {
			continue
		}
		buckets = append(buckets, bucket)
	}
	sort.Strings(buckets)

	stmts := make([]string, 0, len(buckets))
	for _, bucket := range buckets {
		_, period, ok := strings.Cut(bucket, "__")
		if !ok {
			continue
		}
		viewName := "processed." + sqlident.Quote("timestamp_block_"+bucket)
		rawTable := "raw." + rawschema.TimestampBlockTableName(bucket)
		if period == catalog.PeriodKindName(0) {
			stmts = append(stmts, fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS
				SELECT interval_id AS block_id, MIN(datetime) AS datetime, COUNT(*) AS interval_length
				FROM %s
				GROUP BY interval_id`,
				viewName, rawTable))
			continue
		}
		stmts = append(stmts, fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS
			SELECT ROW_NUMBER() OVER () AS block_id, datetime, 1 AS interval_length
			FROM %s`,
			viewName, rawTable))
	}
	return stmts
}

func classesView() string {
	return `CREATE OR REPLACE VIEW processed.classes AS
		SELECT c.class_id, c.name, c.class_group_id, cg.name AS class_group_name
		FROM raw.class c
		JOIN raw.class_group cg ON cg.class_group_id = c.class_group_id`
}

func objectsView() string {
	return `CREATE OR REPLACE VIEW processed.objects AS
		SELECT o.object_id, o.name, o.class_id, cl.name AS class_name,
		       o.category_id, ca.name AS category_name, o.index, o.show, o.guid
		FROM raw.object o
		JOIN raw.class cl ON cl.class_id = o.class_id
		JOIN raw.category ca ON ca.category_id = o.category_id`
}

// propertiesView flattens each property into two rows - one for non-summary
// display (name/unit_id) and one for summary display (summary_name/
// summary_unit_id) - so a report view can join on (property_id, is_summary)
// and resolve the right display name and unit in one step.
func propertiesView() string {
	return `CREATE OR REPLACE VIEW processed.properties AS
		SELECT p.property_id, p.collection_id, p.band_id, FALSE AS is_summary,
		       p.name AS display_name, u.value AS unit_value
		FROM raw.property p
		JOIN raw.unit u ON u.unit_id = p.unit_id
		UNION ALL
		SELECT p.property_id, p.collection_id, p.band_id, TRUE AS is_summary,
		       p.summary_name AS display_name, u.value AS unit_value
		FROM raw.property p
		JOIN raw.unit u ON u.unit_id = p.summary_unit_id`
}

func membershipsView() string {
	return `CREATE OR REPLACE VIEW processed.memberships AS
		SELECT m.membership_id, m.collection_id, co.name AS collection_name,
		       m.parent_object_id, po.name AS parent_object_name,
		       m.parent_class_id, m.parent_class_name,
		       m.parent_category_id, m.parent_category_name,
		       m.child_object_id, cho.name AS child_object_name,
		       m.child_class_id, m.child_class_name,
		       m.child_category_id, m.child_category_name,
		       m.collection_idx, m.kind
		FROM raw.membership m
		JOIN raw.collection co ON co.collection_id = m.collection_id
		JOIN raw.object po ON po.object_id = m.parent_object_id
		JOIN raw.object cho ON cho.object_id = m.child_object_id`
}

// reportViews builds one report."{table}" view per canonical time series
// table, joining it against raw.sample, processed.memberships, the matching
// processed.timestamp_block_* view, raw.key, and processed.properties, and
// aliasing the value column to the property's display name.
func reportViews(cat *catalog.Catalog) []string {
	names := make([]string, 0, len(cat.DataTables))
	for name := range cat.DataTables {
		names = append(names, name)
	}
	sort.Strings(names)

	stmts := make([]string, 0, len(names))
	for _, name := range names {
		keyIDs := cat.DataTables[name]
		if len(keyIDs) == 0 {
			continue
		}
		k, ok := cat.Keys[keyIDs[0]]
		if !ok {
			continue
		}
		ki, ok := cat.KeyIndexes[keyIDs[0]]
		if !ok {
			continue
		}
		prop, ok := cat.Properties[k.PropertyID]
		if !ok {
			continue
		}

		displayName := prop.Name
		if k.IsSummary {
			displayName = prop.SummaryName
		}
		bucket := catalog.PhaseName(k.PhaseID) + "__" + catalog.PeriodKindName(ki.PeriodTypeID)
		timestampView := "processed." + sqlident.Quote("timestamp_block_"+bucket)

		stmt := fmt.Sprintf(`CREATE OR REPLACE VIEW report.%s AS
			SELECT
				d.block_id,
				tb.datetime,
				d.sample_id,
				s.name AS sample_name,
				d.band_id,
				d.membership_id,
				mem.collection_name,
				mem.parent_object_name,
				mem.child_object_name,
				mem.kind AS membership_kind,
				d.value AS %s
			FROM data.%s d
			JOIN raw.sample s ON s.sample_id = d.sample_id
			JOIN processed.memberships mem ON mem.membership_id = d.membership_id
			JOIN %s tb ON tb.block_id = d.block_id
			JOIN raw.key k ON k.key_id = d.key_id
			JOIN processed.properties p ON p.property_id = k.property_id AND p.is_summary = k.is_summary
			ORDER BY d.band_id, d.sample_id, d.membership_id, tb.datetime`,
			sqlident.Quote(name), sqlident.Quote(displayName), sqlident.Quote(name), timestampView)
		stmts = append(stmts, stmt)
	}
	return stmts
}
