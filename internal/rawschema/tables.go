// plexodb - PLEXOS solution bundle to DuckDB assembler
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package rawschema defines the raw schema DDL: one metadata table per
// catalog entity kind, plus the per-canonical-table DDL for time series
// data, and the top-level main.plexos2duckdb provenance table.
package rawschema

import (
	"fmt"

	"github.com/plexodb/plexodb/internal/sqlident"
)

// CatalogTableDDL returns the CREATE TABLE statements for every catalog
// entity kind, in dependency order (classes before objects, objects before
// memberships, and so on). The tables declare no FOREIGN KEY constraints.
func CatalogTableDDL() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS raw.class_group (
			class_group_id BIGINT PRIMARY KEY,
			name TEXT NOT NULL,
			lang_id BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS raw.class (
			class_id BIGINT PRIMARY KEY,
			name TEXT NOT NULL,
			class_group_id BIGINT NOT NULL,
			lang_id BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS raw.category (
			category_id BIGINT PRIMARY KEY,
			name TEXT NOT NULL,
			rank BIGINT NOT NULL,
			class_id BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS raw.object (
			object_id BIGINT PRIMARY KEY,
			name TEXT NOT NULL,
			class_id BIGINT NOT NULL,
			category_id BIGINT NOT NULL,
			index BIGINT NOT NULL,
			show BOOLEAN NOT NULL,
			guid TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS raw.collection (
			collection_id BIGINT PRIMARY KEY,
			name TEXT NOT NULL,
			parent_class_id BIGINT NOT NULL,
			child_class_id BIGINT NOT NULL,
			complement_name TEXT,
			n_members BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS raw.membership (
			membership_id BIGINT PRIMARY KEY,
			collection_id BIGINT NOT NULL,
			parent_class_id BIGINT NOT NULL,
			parent_class_name TEXT NOT NULL,
			child_class_id BIGINT NOT NULL,
			child_class_name TEXT NOT NULL,
			parent_object_id BIGINT NOT NULL,
			parent_category_id BIGINT NOT NULL,
			parent_category_name TEXT NOT NULL,
			child_object_id BIGINT NOT NULL,
			child_category_id BIGINT NOT NULL,
			child_category_name TEXT NOT NULL,
			collection_idx BIGINT NOT NULL,
			kind TEXT NOT NULL CHECK (kind IN ('object', 'relation'))
		)`,
		`CREATE TABLE IF NOT EXISTS raw.unit (
			unit_id BIGINT PRIMARY KEY,
			value TEXT NOT NULL,
			lang_id BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS raw.property (
			property_id BIGINT PRIMARY KEY,
			name TEXT NOT NULL,
			summary_name TEXT NOT NULL,
			unit_id BIGINT NOT NULL,
			summary_unit_id BIGINT NOT NULL,
			is_multi_band BOOLEAN NOT NULL,
			is_period BOOLEAN NOT NULL,
			is_summary BOOLEAN NOT NULL,
			collection_id BIGINT NOT NULL,
			band_id BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS raw.band (
			band_id BIGINT PRIMARY KEY
		)`,
		`CREATE TABLE IF NOT EXISTS raw.attribute (
			attribute_id BIGINT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT,
			class_id BIGINT NOT NULL,
			enum_id BIGINT NOT NULL,
			lang_id BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS raw.attribute_data (
			attribute_id BIGINT NOT NULL,
			object_id BIGINT NOT NULL,
			value DOUBLE NOT NULL,
			PRIMARY KEY (attribute_id, object_id)
		)`,
		`CREATE TABLE IF NOT EXISTS raw.model (
			model_id BIGINT PRIMARY KEY,
			name TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS raw.sample (
			sample_id BIGINT PRIMARY KEY,
			name TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS raw.sample_weight (
			sample_id BIGINT NOT NULL,
			phase_id BIGINT NOT NULL,
			weight DOUBLE NOT NULL,
			PRIMARY KEY (sample_id, phase_id)
		)`,
		`CREATE TABLE IF NOT EXISTS raw.timeslice (
			timeslice_id BIGINT PRIMARY KEY,
			name TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS raw.custom_column (
			column_id BIGINT PRIMARY KEY,
			name TEXT NOT NULL,
			position BIGINT NOT NULL,
			class_id BIGINT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS raw.memo_object (
			object_id BIGINT NOT NULL,
			column_id BIGINT NOT NULL,
			value TEXT NOT NULL,
			PRIMARY KEY (object_id, column_id)
		)`,
		`CREATE TABLE IF NOT EXISTS raw.config (
			element TEXT PRIMARY KEY,
			value TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS raw.key (
			key_id BIGINT PRIMARY KEY,
			phase_id BIGINT NOT NULL,
			band_id BIGINT NOT NULL,
			sample_id BIGINT NOT NULL,
			timeslice_id BIGINT NOT NULL,
			membership_id BIGINT NOT NULL,
			property_id BIGINT NOT NULL,
			model_id BIGINT NOT NULL,
			is_summary BOOLEAN NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS raw.key_index (
			key_id BIGINT PRIMARY KEY,
			period_type_id BIGINT NOT NULL,
			position BIGINT NOT NULL,
			length BIGINT NOT NULL,
			period_offset BIGINT NOT NULL
		)`,
	}
}

// TimestampBlockTableDDL returns the CREATE TABLE statement for one
// physical per-bucket timestamp block table, named
// raw.timestamp_block_{bucket} where bucket is "{phase}__{period}". Each
// row is (interval_id, datetime) in the order produced by the
// timestamp-block derivation; there is no stored block_id or period_id -
// the processed layer reconstructs block_id per period kind.
func TimestampBlockTableDDL(bucket string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS raw.%s (
		interval_id BIGINT NOT NULL,
		datetime TIMESTAMP NOT NULL
	)`, TimestampBlockTableName(bucket))
}

// TimestampBlockTableName returns the quoted raw-schema table name for a
// "{phase}__{period}" bucket.
func TimestampBlockTableName(bucket string) string {
	return sqlident.Quote("timestamp_block_" + bucket)
}

// DataSchemaDDL returns the statement that creates the data schema housing
// every canonical time series table, separate from the raw entity schema.
func DataSchemaDDL() string {
	return `CREATE SCHEMA IF NOT EXISTS data`
}

// TimeSeriesTableDDL returns the CREATE TABLE statement for one canonical
// data table. Sample/band/membership are carried on every row rather than
// resolved through a join against raw.key, since the value column's
// grouping dimensions are exactly these three plus block_id.
func TimeSeriesTableDDL(tableName string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS data."%s" (
		key_id BIGINT NOT NULL,
		sample_id BIGINT NOT NULL,
		band_id BIGINT NOT NULL,
		membership_id BIGINT NOT NULL,
		block_id BIGINT NOT NULL,
		value DOUBLE NOT NULL
	)`, tableName)
}

// MetadataTableDDL returns the CREATE TABLE statement for the top-level
// provenance table recording one row per conversion run.
func MetadataTableDDL() string {
	return `CREATE TABLE IF NOT EXISTS main.plexos2duckdb (
		run_id UUID PRIMARY KEY,
		tool_version TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		source_file TEXT NOT NULL,
		model_name TEXT NOT NULL,
		simulation_log TEXT,
		run_stats TEXT
	)`
}

// SchemaDDL returns the full ordered statement list: the raw schema
// namespace, every catalog table, and the provenance table.
func SchemaDDL() []string {
	stmts := []string{
		`CREATE SCHEMA IF NOT EXISTS raw`,
		DataSchemaDDL(),
	}
	stmts = append(stmts, CatalogTableDDL()...)
	stmts = append(stmts, MetadataTableDDL())
	return stmts
}
