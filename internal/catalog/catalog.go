// plexodb - PLEXOS solution bundle to DuckDB assembler
// SPDX-License-Identifier: AGPL-3.0-or-later

package catalog

import (
	"context"
	"io"
	"time"

	"github.com/plexodb/plexodb/internal/logging"
	"github.com/plexodb/plexodb/internal/perr"
)

// Catalog is the complete in-memory relational model produced by Load. Its
// maps have no defined iteration order and Catalog offers no ordered
// accessors; code that needs deterministic output sorts the keys itself.
type Catalog struct {
	Classes      map[int64]Class
	ClassGroups  map[int64]ClassGroup
	Categories   map[int64]Category
	Objects      map[int64]Object
	Collections  map[int64]Collection
	Memberships  map[int64]Membership
	Properties   map[int64]Property
	Units        map[int64]Unit
	Bands        map[int64]Band
	Attributes   map[int64]Attribute
	AttributeData map[int64]AttributeData
	Models       map[int64]Model
	Samples      map[int64]Sample
	SampleWeights map[int64]SampleWeight
	Timeslices   map[int64]Timeslice
	CustomColumns map[int64]CustomColumn
	MemoObjects  map[MemoObjectKey]MemoObject
	Configs      map[string]Config

	Intervals map[int64]IntervalPeriod
	Days      map[int64]DayPeriod
	Weeks     map[int64]WeekPeriod
	Months    map[int64]MonthPeriod
	Years     map[int64]YearPeriod
	Hours     map[int64]HourPeriod
	Quarters  map[int64]QuarterPeriod

	Phases map[PhaseKind][]PhaseEntry

	Keys      map[int64]Key
	KeyIndexes map[int64]KeyIndex

	// TimestampBlocks maps "{phase}__{period}" to its ordered entries, built
	// by the timestamp-block derivation (spec.md §4.1).
	TimestampBlocks map[string][]TimestampEntry

	// DataTables maps a canonical table name (spec.md §4.3) to the ordered
	// list of key_ids assigned to it, built by the data-table-grouping
	// derivation.
	DataTables map[string][]int64

	Meta RunMetadata
}

func newCatalog() *Catalog {
	return &Catalog{
		Classes:       make(map[int64]Class),
		ClassGroups:   make(map[int64]ClassGroup),
		Categories:    make(map[int64]Category),
		Objects:       make(map[int64]Object),
		Collections:   make(map[int64]Collection),
		Memberships:   make(map[int64]Membership),
		Properties:    make(map[int64]Property),
		Units:         make(map[int64]Unit),
		Bands:         make(map[int64]Band),
		Attributes:    make(map[int64]Attribute),
		AttributeData: make(map[int64]AttributeData),
		Models:        make(map[int64]Model),
		Samples:       make(map[int64]Sample),
		SampleWeights: make(map[int64]SampleWeight),
		Timeslices:    make(map[int64]Timeslice),
		CustomColumns: make(map[int64]CustomColumn),
		MemoObjects:   make(map[MemoObjectKey]MemoObject),
		Configs:       make(map[string]Config),
		Intervals:     make(map[int64]IntervalPeriod),
		Days:          make(map[int64]DayPeriod),
		Weeks:         make(map[int64]WeekPeriod),
		Months:        make(map[int64]MonthPeriod),
		Years:         make(map[int64]YearPeriod),
		Hours:         make(map[int64]HourPeriod),
		Quarters:      make(map[int64]QuarterPeriod),
		Phases:        make(map[PhaseKind][]PhaseEntry),
		Keys:          make(map[int64]Key),
		KeyIndexes:    make(map[int64]KeyIndex),
		TimestampBlocks: make(map[string][]TimestampEntry),
		DataTables:    make(map[string][]int64),
	}
}

// Load parses the catalog XML from r, resolves cross-references, and runs
// the four post-parse derivations (property band_id, timestamp blocks,
// membership count/ordinal, data-table grouping). The order of entity
// ingestion within the document is irrelevant; all cross-references are
// resolved only after every table has been read.
func Load(ctx context.Context, r io.Reader, meta RunMetadata) (*Catalog, error) {
	cat := newCatalog()
	cat.Meta = meta

	if err := parseXML(r, cat); err != nil {
		return nil, err
	}

	if err := validateReferences(cat); err != nil {
		return nil, err
	}

	deriveBandIDs(cat)
	deriveTimestampBlocks(cat)
	deriveMembershipOrdinals(cat)
	deriveDataTableGroups(cat)

	logging.Ctx(ctx).Info().
		Int("objects", len(cat.Objects)).
		Int("memberships", len(cat.Memberships)).
		Int("keys", len(cat.Keys)).
		Int("data_tables", len(cat.DataTables)).
		Msg("catalog loaded")

	return cat, nil
}

// validateReferences enforces invariants 1 and 2 of spec.md §3.
func validateReferences(cat *Catalog) error {
	for _, m := range cat.Memberships {
		if _, ok := cat.Objects[m.ParentObjectID]; !ok {
			return perr.UnknownReferenceErr("object", m.ParentObjectID)
		}
		if _, ok := cat.Objects[m.ChildObjectID]; !ok {
			return perr.UnknownReferenceErr("object", m.ChildObjectID)
		}
		if _, ok := cat.Classes[m.ParentClassID]; !ok {
			return perr.UnknownReferenceErr("class", m.ParentClassID)
		}
		if _, ok := cat.Classes[m.ChildClassID]; !ok {
			return perr.UnknownReferenceErr("class", m.ChildClassID)
		}
		if _, ok := cat.Collections[m.CollectionID]; !ok {
			return perr.UnknownReferenceErr("collection", m.CollectionID)
		}
	}

	for _, k := range cat.Keys {
		if _, ok := cat.Memberships[k.MembershipID]; !ok {
			return perr.UnknownReferenceErr("membership", k.MembershipID)
		}
		if _, ok := cat.Properties[k.PropertyID]; !ok {
			return perr.UnknownReferenceErr("property", k.PropertyID)
		}
		if _, ok := cat.Samples[k.SampleID]; !ok {
			return perr.UnknownReferenceErr("sample", k.SampleID)
		}
		if _, ok := cat.Timeslices[k.TimesliceID]; !ok {
			return perr.UnknownReferenceErr("timeslice", k.TimesliceID)
		}
	}

	for _, ki := range cat.KeyIndexes {
		if _, ok := cat.Keys[ki.KeyID]; !ok {
			return perr.UnknownReferenceErr("key", ki.KeyID)
		}
		if ki.Position%8 != 0 {
			return perr.MisalignedErr(ki.KeyID, ki.Position)
		}
	}

	return nil
}

// Object resolves an object_id, returning an UnknownReference error if it
// does not exist.
func (c *Catalog) Object(id int64) (Object, error) {
	obj, ok := c.Objects[id]
	if !ok {
		return Object{}, perr.UnknownReferenceErr("object", id)
	}
	return obj, nil
}

// Class resolves a class_id.
func (c *Catalog) Class(id int64) (Class, error) {
	cls, ok := c.Classes[id]
	if !ok {
		return Class{}, perr.UnknownReferenceErr("class", id)
	}
	return cls, nil
}

// PeriodDateTime resolves a (kind, period_id) pair to its UTC datetime. It
// returns ok=false if the id does not exist for that kind - callers treat
// this as "silently omit", matching the timestamp-block derivation's
// documented behavior, not as a hard error.
func (c *Catalog) PeriodDateTime(kind PeriodKind, periodID int64) (time.Time, bool) {
	switch kind {
	case KindInterval:
		p, ok := c.Intervals[periodID]
		return p.DateTime(), ok
	case KindDay:
		p, ok := c.Days[periodID]
		return p.DateTime(), ok
	case KindWeek:
		p, ok := c.Weeks[periodID]
		return p.DateTime(), ok
	case KindMonth:
		p, ok := c.Months[periodID]
		return p.DateTime(), ok
	case KindYear:
		p, ok := c.Years[periodID]
		return p.DateTime(), ok
	case KindHour:
		p, ok := c.Hours[periodID]
		return p.DateTime(), ok
	case KindQuarter:
		p, ok := c.Quarters[periodID]
		return p.DateTime(), ok
	default:
		return time.Time{}, false
	}
}

var allPeriodKinds = []PeriodKind{
	KindInterval, KindDay, KindWeek, KindMonth, KindYear, KindHour, KindQuarter,
}
