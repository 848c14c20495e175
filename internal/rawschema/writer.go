// plexodb - PLEXOS solution bundle to DuckDB assembler
// SPDX-License-Identifier: AGPL-3.0-or-later

package rawschema

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/plexodb/plexodb/internal/catalog"
	"github.com/plexodb/plexodb/internal/logging"
)

// Writer creates the raw schema and populates its catalog-metadata tables
// against one DuckDB connection.
type Writer struct {
	db *sql.DB
}

// New wraps an open DuckDB connection.
func New(db *sql.DB) *Writer {
	return &Writer{db: db}
}

// CreateSchema creates the raw schema namespace, every catalog metadata
// table, the provenance table, and one time series table per name in
// cat.DataTables.
func (w *Writer) CreateSchema(ctx context.Context, cat *catalog.Catalog) error {
	for _, stmt := range SchemaDDL() {
		if _, err := w.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %s: %w", stmt, err)
		}
	}

	names := make([]string, 0, len(cat.DataTables))
	for name := range cat.DataTables {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := w.db.ExecContext(ctx, TimeSeriesTableDDL(name)); err != nil {
			return fmt.Errorf("create time series table %s: %w", name, err)
		}
	}

	buckets := make([]string, 0, len(cat.TimestampBlocks))
	for bucket, entries := range cat.TimestampBlocks {
		if len(entries) == 0 {
			continue
		}
		buckets = append(buckets, bucket)
	}
	sort.Strings(buckets)
	for _, bucket := range buckets {
		if _, err := w.db.ExecContext(ctx, TimestampBlockTableDDL(bucket)); err != nil {
			return fmt.Errorf("create timestamp block table %s: %w", bucket, err)
		}
	}

	logging.Ctx(ctx).Info().Int("data_tables", len(names)).Int("timestamp_block_tables", len(buckets)).Msg("raw schema created")
	return nil
}

// WriteCatalogMetadata populates every raw.* entity table from the
// in-memory catalog, each within its own transaction.
func (w *Writer) WriteCatalogMetadata(ctx context.Context, cat *catalog.Catalog) error {
	writers := []func(context.Context, *catalog.Catalog) error{
		w.writeClassGroups,
		w.writeClasses,
		w.writeCategories,
		w.writeObjects,
		w.writeCollections,
		w.writeMemberships,
		w.writeUnits,
		w.writeProperties,
		w.writeBands,
		w.writeAttributes,
		w.writeAttributeData,
		w.writeModels,
		w.writeSamples,
		w.writeSampleWeights,
		w.writeTimeslices,
		w.writeCustomColumns,
		w.writeMemoObjects,
		w.writeConfigs,
		w.writeKeys,
		w.writeKeyIndexes,
		w.writeTimestampBlocks,
	}
	for _, fn := range writers {
		if err := fn(ctx, cat); err != nil {
			return err
		}
	}
	return nil
}

// WriteRunMetadata inserts one row describing this conversion run into
// main.plexos2duckdb.
func (w *Writer) WriteRunMetadata(ctx context.Context, meta catalog.RunMetadata) error {
	_, err := w.db.ExecContext(ctx,
		`INSERT INTO main.plexos2duckdb (
			run_id, tool_version, created_at, source_file, model_name, simulation_log, run_stats
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		uuid.New(), meta.ToolVersion, meta.CreatedAt, meta.SourceFile, meta.ModelName, meta.SimulationLog, meta.RunStats,
	)
	if err != nil {
		return fmt.Errorf("write run metadata: %w", err)
	}
	return nil
}

func withTx(ctx context.Context, db *sql.DB, query string, fn func(stmt *sql.Stmt) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil {
				logging.Ctx(ctx).Warn().Err(rbErr).Msg("transaction rollback failed")
			}
		}
	}()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare statement: %w", err)
	}
	defer func() {
		if closeErr := stmt.Close(); closeErr != nil {
			logging.Ctx(ctx).Warn().Err(closeErr).Msg("failed to close prepared statement")
		}
	}()

	if err := fn(stmt); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	committed = true
	return nil
}

func (w *Writer) writeClassGroups(ctx context.Context, cat *catalog.Catalog) error {
	return withTx(ctx, w.db, `INSERT INTO raw.class_group (class_group_id, name, lang_id) VALUES (?, ?, ?)`,
		func(stmt *sql.Stmt) error {
			for _, id := range sortedInt64Keys(cat.ClassGroups) {
				cg := cat.ClassGroups[id]
				if _, err := stmt.ExecContext(ctx, cg.ID, cg.Name, cg.LangID); err != nil {
					return fmt.Errorf("insert class_group %d: %w", id, err)
				}
			}
			return nil
		})
}

func (w *Writer) writeClasses(ctx context.Context, cat *catalog.Catalog) error {
	return withTx(ctx, w.db, `INSERT INTO raw.class (class_id, name, class_group_id, lang_id) VALUES (?, ?, ?, ?)`,
		func(stmt *sql.Stmt) error {
			for _, id := range sortedInt64Keys(cat.Classes) {
				c := cat.Classes[id]
				if _, err := stmt.ExecContext(ctx, c.ID, c.Name, c.ClassGroupID, c.LangID); err != nil {
					return fmt.Errorf("insert class %d: %w", id, err)
				}
			}
			return nil
		})
}

func (w *Writer) writeCategories(ctx context.Context, cat *catalog.Catalog) error {
	return withTx(ctx, w.db, `INSERT INTO raw.category (category_id, name, rank, class_id) VALUES (?, ?, ?, ?)`,
		func(stmt *sql.Stmt) error {
			for _, id := range sortedInt64Keys(cat.Categories) {
				c := cat.Categories[id]
				if _, err := stmt.ExecContext(ctx, c.ID, c.Name, c.Rank, c.ClassID); err != nil {
					return fmt.Errorf("insert category %d: %w", id, err)
				}
			}
			return nil
		})
}

func (w *Writer) writeObjects(ctx context.Context, cat *catalog.Catalog) error {
	return withTx(ctx, w.db, `INSERT INTO raw.object (object_id, name, class_id, category_id, index, show, guid) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		func(stmt *sql.Stmt) error {
			for _, id := range sortedInt64Keys(cat.Objects) {
				o := cat.Objects[id]
				if _, err := stmt.ExecContext(ctx, o.ID, o.Name, o.ClassID, o.CategoryID, o.Index, o.Show, o.GUID); err != nil {
					return fmt.Errorf("insert object %d: %w", id, err)
				}
			}
			return nil
		})
}

func (w *Writer) writeCollections(ctx context.Context, cat *catalog.Catalog) error {
	return withTx(ctx, w.db, `INSERT INTO raw.collection (collection_id, name, parent_class_id, child_class_id, complement_name, n_members) VALUES (?, ?, ?, ?, ?, ?)`,
		func(stmt *sql.Stmt) error {
			for _, id := range sortedInt64Keys(cat.Collections) {
				c := cat.Collections[id]
				if _, err := stmt.ExecContext(ctx, c.ID, c.Name, c.ParentClassID, c.ChildClassID, c.ComplementName, c.NMembers); err != nil {
					return fmt.Errorf("insert collection %d: %w", id, err)
				}
			}
			return nil
		})
}

// membershipKind reports the enumerated "object"/"relation" kind of a
// membership: "object" iff the collection's parent class is the sentinel
// class named "System", else "relation".
func membershipKind(cat *catalog.Catalog, m catalog.Membership) (string, error) {
	collection, ok := cat.Collections[m.CollectionID]
	if !ok {
		return "", fmt.Errorf("membership %d: collection %d not found", m.ID, m.CollectionID)
	}
	parentClass, ok := cat.Classes[collection.ParentClassID]
	if !ok {
		return "", fmt.Errorf("membership %d: class %d not found", m.ID, collection.ParentClassID)
	}
	if parentClass.Name == "System" {
		return "object", nil
	}
	return "relation", nil
}

func (w *Writer) writeMemberships(ctx context.Context, cat *catalog.Catalog) error {
	return withTx(ctx, w.db, `INSERT INTO raw.membership (
			membership_id, collection_id, parent_class_id, parent_class_name,
			child_class_id, child_class_name, parent_object_id, parent_category_id,
			parent_category_name, child_object_id, child_category_id,
			child_category_name, collection_idx, kind
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		func(stmt *sql.Stmt) error {
			for _, id := range sortedInt64Keys(cat.Memberships) {
				m := cat.Memberships[id]

				parentClass, ok := cat.Classes[m.ParentClassID]
				if !ok {
					return fmt.Errorf("membership %d: class %d not found", id, m.ParentClassID)
				}
				childClass, ok := cat.Classes[m.ChildClassID]
				if !ok {
					return fmt.Errorf("membership %d: class %d not found", id, m.ChildClassID)
				}
				parentObject, ok := cat.Objects[m.ParentObjectID]
				if !ok {
					return fmt.Errorf("membership %d: object %d not found", id, m.ParentObjectID)
				}
				childObject, ok := cat.Objects[m.ChildObjectID]
				if !ok {
					return fmt.Errorf("membership %d: object %d not found", id, m.ChildObjectID)
				}
				parentCategory, ok := cat.Categories[parentObject.CategoryID]
				if !ok {
					return fmt.Errorf("membership %d: category %d not found", id, parentObject.CategoryID)
				}
				childCategory, ok := cat.Categories[childObject.CategoryID]
				if !ok {
					return fmt.Errorf("membership %d: category %d not found", id, childObject.CategoryID)
				}
				kind, err := membershipKind(cat, m)
				if err != nil {
					return err
				}

				if _, err := stmt.ExecContext(ctx,
					m.ID, m.CollectionID, m.ParentClassID, parentClass.Name,
					m.ChildClassID, childClass.Name, m.ParentObjectID, parentObject.CategoryID,
					parentCategory.Name, m.ChildObjectID, childObject.CategoryID,
					childCategory.Name, m.CollectionIdx, kind,
				); err != nil {
					return fmt.Errorf("insert membership %d: %w", id, err)
				}
			}
			return nil
		})
}

func (w *Writer) writeUnits(ctx context.Context, cat *catalog.Catalog) error {
	return withTx(ctx, w.db, `INSERT INTO raw.unit (unit_id, value, lang_id) VALUES (?, ?, ?)`,
		func(stmt *sql.Stmt) error {
			for _, id := range sortedInt64Keys(cat.Units) {
				u := cat.Units[id]
				if _, err := stmt.ExecContext(ctx, u.ID, u.Value, u.LangID); err != nil {
					return fmt.Errorf("insert unit %d: %w", id, err)
				}
			}
			return nil
		})
}

func (w *Writer) writeProperties(ctx context.Context, cat *catalog.Catalog) error {
	return withTx(ctx, w.db, `INSERT INTO raw.property (property_id, name, summary_name, unit_id, summary_unit_id, is_multi_band, is_period, is_summary, collection_id, band_id) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		func(stmt *sql.Stmt) error {
			for _, id := range sortedInt64Keys(cat.Properties) {
				p := cat.Properties[id]
				if _, err := stmt.ExecContext(ctx, p.ID, p.Name, p.SummaryName, p.UnitID, p.SummaryUnitID, p.IsMultiBand, p.IsPeriod, p.IsSummary, p.CollectionID, p.BandID); err != nil {
					return fmt.Errorf("insert property %d: %w", id, err)
				}
			}
			return nil
		})
}

func (w *Writer) writeBands(ctx context.Context, cat *catalog.Catalog) error {
	return withTx(ctx, w.db, `INSERT INTO raw.band (band_id) VALUES (?)`,
		func(stmt *sql.Stmt) error {
			for _, id := range sortedInt64Keys(cat.Bands) {
				if _, err := stmt.ExecContext(ctx, id); err != nil {
					return fmt.Errorf("insert band %d: %w", id, err)
				}
			}
			return nil
		})
}

func (w *Writer) writeAttributes(ctx context.Context, cat *catalog.Catalog) error {
	return withTx(ctx, w.db, `INSERT INTO raw.attribute (attribute_id, name, description, class_id, enum_id, lang_id) VALUES (?, ?, ?, ?, ?, ?)`,
		func(stmt *sql.Stmt) error {
			for _, id := range sortedInt64Keys(cat.Attributes) {
				a := cat.Attributes[id]
				if _, err := stmt.ExecContext(ctx, a.ID, a.Name, a.Description, a.ClassID, a.EnumID, a.LangID); err != nil {
					return fmt.Errorf("insert attribute %d: %w", id, err)
				}
			}
			return nil
		})
}

func (w *Writer) writeAttributeData(ctx context.Context, cat *catalog.Catalog) error {
	return withTx(ctx, w.db, `INSERT INTO raw.attribute_data (attribute_id, object_id, value) VALUES (?, ?, ?)`,
		func(stmt *sql.Stmt) error {
			for _, id := range sortedInt64Keys(cat.AttributeData) {
				ad := cat.AttributeData[id]
				if _, err := stmt.ExecContext(ctx, ad.AttributeID, ad.ObjectID, ad.Value); err != nil {
					return fmt.Errorf("insert attribute_data %d: %w", id, err)
				}
			}
			return nil
		})
}

func (w *Writer) writeModels(ctx context.Context, cat *catalog.Catalog) error {
	return withTx(ctx, w.db, `INSERT INTO raw.model (model_id, name) VALUES (?, ?)`,
		func(stmt *sql.Stmt) error {
			for _, id := range sortedInt64Keys(cat.Models) {
				m := cat.Models[id]
				if _, err := stmt.ExecContext(ctx, m.ID, m.Name); err != nil {
					return fmt.Errorf("insert model %d: %w", id, err)
				}
			}
			return nil
		})
}

func (w *Writer) writeSamples(ctx context.Context, cat *catalog.Catalog) error {
	return withTx(ctx, w.db, `INSERT INTO raw.sample (sample_id, name) VALUES (?, ?)`,
		func(stmt *sql.Stmt) error {
			for _, id := range sortedInt64Keys(cat.Samples) {
				s := cat.Samples[id]
				if _, err := stmt.ExecContext(ctx, s.ID, s.Name); err != nil {
					return fmt.Errorf("insert sample %d: %w", id, err)
				}
			}
			return nil
		})
}

func (w *Writer) writeSampleWeights(ctx context.Context, cat *catalog.Catalog) error {
	return withTx(ctx, w.db, `INSERT INTO raw.sample_weight (sample_id, phase_id, weight) VALUES (?, ?, ?)`,
		func(stmt *sql.Stmt) error {
			for _, id := range sortedInt64Keys(cat.SampleWeights) {
				sw := cat.SampleWeights[id]
				if _, err := stmt.ExecContext(ctx, sw.SampleID, sw.PhaseID, sw.Weight); err != nil {
					return fmt.Errorf("insert sample_weight %d: %w", id, err)
				}
			}
			return nil
		})
}

func (w *Writer) writeTimeslices(ctx context.Context, cat *catalog.Catalog) error {
	return withTx(ctx, w.db, `INSERT INTO raw.timeslice (timeslice_id, name) VALUES (?, ?)`,
		func(stmt *sql.Stmt) error {
			for _, id := range sortedInt64Keys(cat.Timeslices) {
				t := cat.Timeslices[id]
				if _, err := stmt.ExecContext(ctx, t.ID, t.Name); err != nil {
					return fmt.Errorf("insert timeslice %d: %w", id, err)
				}
			}
			return nil
		})
}

func (w *Writer) writeCustomColumns(ctx context.Context, cat *catalog.Catalog) error {
	return withTx(ctx, w.db, `INSERT INTO raw.custom_column (column_id, name, position, class_id) VALUES (?, ?, ?, ?)`,
		func(stmt *sql.Stmt) error {
			for _, id := range sortedInt64Keys(cat.CustomColumns) {
				c := cat.CustomColumns[id]
				if _, err := stmt.ExecContext(ctx, c.ID, c.Name, c.Position, c.ClassID); err != nil {
					return fmt.Errorf("insert custom_column %d: %w", id, err)
				}
			}
			return nil
		})
}

func (w *Writer) writeMemoObjects(ctx context.Context, cat *catalog.Catalog) error {
	return withTx(ctx, w.db, `INSERT INTO raw.memo_object (object_id, column_id, value) VALUES (?, ?, ?)`,
		func(stmt *sql.Stmt) error {
			keys := make([]catalog.MemoObjectKey, 0, len(cat.MemoObjects))
			for k := range cat.MemoObjects {
				keys = append(keys, k)
			}
			sort.Slice(keys, func(i, j int) bool {
				if keys[i].ObjectID != keys[j].ObjectID {
					return keys[i].ObjectID < keys[j].ObjectID
				}
				return keys[i].ColumnID < keys[j].ColumnID
			})
			for _, k := range keys {
				mo := cat.MemoObjects[k]
				if _, err := stmt.ExecContext(ctx, mo.Key.ObjectID, mo.Key.ColumnID, mo.Value); err != nil {
					return fmt.Errorf("insert memo_object (%d,%d): %w", k.ObjectID, k.ColumnID, err)
				}
			}
			return nil
		})
}

func (w *Writer) writeConfigs(ctx context.Context, cat *catalog.Catalog) error {
	return withTx(ctx, w.db, `INSERT INTO raw.config (element, value) VALUES (?, ?)`,
		func(stmt *sql.Stmt) error {
			elements := make([]string, 0, len(cat.Configs))
			for e := range cat.Configs {
				elements = append(elements, e)
			}
			sort.Strings(elements)
			for _, e := range elements {
				c := cat.Configs[e]
				if _, err := stmt.ExecContext(ctx, c.Element, c.Value); err != nil {
					return fmt.Errorf("insert config %s: %w", e, err)
				}
			}
			return nil
		})
}

func (w *Writer) writeKeys(ctx context.Context, cat *catalog.Catalog) error {
	return withTx(ctx, w.db, `INSERT INTO raw.key (key_id, phase_id, band_id, sample_id, timeslice_id, membership_id, property_id, model_id, is_summary) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		func(stmt *sql.Stmt) error {
			for _, id := range sortedInt64Keys(cat.Keys) {
				k := cat.Keys[id]
				if _, err := stmt.ExecContext(ctx, k.ID, k.PhaseID, k.BandID, k.SampleID, k.TimesliceID, k.MembershipID, k.PropertyID, k.ModelID, k.IsSummary); err != nil {
					return fmt.Errorf("insert key %d: %w", id, err)
				}
			}
			return nil
		})
}

func (w *Writer) writeKeyIndexes(ctx context.Context, cat *catalog.Catalog) error {
	return withTx(ctx, w.db, `INSERT INTO raw.key_index (key_id, period_type_id, position, length, period_offset) VALUES (?, ?, ?, ?, ?)`,
		func(stmt *sql.Stmt) error {
			for _, id := range sortedInt64Keys(cat.KeyIndexes) {
				ki := cat.KeyIndexes[id]
				if _, err := stmt.ExecContext(ctx, ki.KeyID, ki.PeriodTypeID, ki.Position, ki.Length, ki.PeriodOffset); err != nil {
					return fmt.Errorf("insert key_index %d: %w", id, err)
				}
			}
			return nil
		})
}

// writeTimestampBlocks inserts each non-empty bucket's entries into its own
// physical raw.timestamp_block_{bucket} table, each within its own
// transaction, in insertion order (the order produced by §4.1's
// derivation) so the processed layer can reconstruct block_id positionally.
func (w *Writer) writeTimestampBlocks(ctx context.Context, cat *catalog.Catalog) error {
	buckets := make([]string, 0, len(cat.TimestampBlocks))
	for bucket, entries := range cat.TimestampBlocks {
		if len(entries) == 0 {
			continue
		}
		buckets = append(buckets, bucket)
	}
	sort.Strings(buckets)

	for _, bucket := range buckets {
		entries := cat.TimestampBlocks[bucket]
		query := fmt.Sprintf(`INSERT INTO raw.%s (interval_id, datetime) VALUES (?, ?)`, TimestampBlockTableName(bucket))
		err := withTx(ctx, w.db, query, func(stmt *sql.Stmt) error {
			for _, entry := range entries {
				if _, err := stmt.ExecContext(ctx, entry.IntervalID, entry.DateTime); err != nil {
					return fmt.Errorf("insert timestamp_block %s interval %d: %w", bucket, entry.IntervalID, err)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func sortedInt64Keys[V any](m map[int64]V) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
