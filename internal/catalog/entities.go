// plexodb - PLEXOS solution bundle to DuckDB assembler
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package catalog ingests a PLEXOS solution's XML catalog into a consistent
// in-memory relational model and reconciles it against the binary
// period-data streams referenced by each Key.
//
// Every record holds only foreign-key identifiers, never pointers to other
// records: cross-entity access always goes through the owning Catalog
// mapping. This keeps the catalog a forest of tables that is trivially
// copyable and safe to share across worker goroutines by reference.
package catalog

import "time"

// Class is a PLEXOS entity class (e.g. Generator, Node, Region).
type Class struct {
	ID           int64
	Name         string
	ClassGroupID int64
	LangID       int64
}

// ClassGroup groups related classes together.
type ClassGroup struct {
	ID     int64
	Name   string
	LangID int64
}

// Category partitions objects of a class into named groups.
type Category struct {
	ID      int64
	Name    string
	Rank    int64
	ClassID int64
}

// Object is an instance of a Class (e.g. a specific generator).
type Object struct {
	ID         int64
	Name       string
	ClassID    int64
	CategoryID int64
	Index      int64
	Show       bool
	GUID       *string
}

// Collection is a named edge type between a parent class and a child class.
type Collection struct {
	ID             int64
	Name           string
	ParentClassID  int64
	ChildClassID   int64
	ComplementName *string
	NMembers       int // derived: count of memberships in this collection
}

// Membership is a (parent_object, child_object, collection) triple, the
// PLEXOS relational glue between objects.
type Membership struct {
	ID             int64
	CollectionID   int64
	ParentClassID  int64
	ChildClassID   int64
	ParentObjectID int64
	ChildObjectID  int64
	CollectionIdx  int // derived: 0-based ordinal within CollectionID, ingest order
}

// Property describes a measurable quantity attached to a Collection.
type Property struct {
	ID              int64
	Name            string
	SummaryName     string
	UnitID          int64
	SummaryUnitID   int64
	IsMultiBand     bool
	IsPeriod        bool
	IsSummary       bool
	CollectionID    int64
	BandID          int64 // derived: max(key.BandID) over keys referencing this property
}

// Unit is a unit-of-measure label.
type Unit struct {
	ID     int64
	Value  string
	LangID int64
}

// Band is an identity row; its existence records a valid band_id.
type Band struct {
	ID int64
}

// Attribute describes a named scalar fact about objects of a class.
type Attribute struct {
	ID          int64
	Name        string
	Description string
	ClassID     int64
	EnumID      int64
	LangID      int64
}

// AttributeData is a scalar value of an Attribute for a specific Object.
// Rows whose source object_id is absent are dropped during ingest (see
// DESIGN.md for why AttributeID remains the storage key).
type AttributeData struct {
	AttributeID int64
	ObjectID    int64
	Value       float64
}

// Model names one simulation run.
type Model struct {
	ID   int64
	Name string
}

// Sample is a stochastic sample index.
type Sample struct {
	ID   int64
	Name *string
}

// SampleWeight weights a Sample within a Phase.
type SampleWeight struct {
	SampleID int64
	PhaseID  int64
	Weight   float64
}

// Timeslice names a recurring time-of-day/week grouping.
type Timeslice struct {
	ID   int64
	Name string
}

// CustomColumn describes a user-defined report column.
type CustomColumn struct {
	ID       int64
	Name     string
	Position int64
	ClassID  int64
}

// MemoObjectKey is the composite primary key of a MemoObject row.
type MemoObjectKey struct {
	ObjectID int64
	ColumnID int64
}

// MemoObject is a user-entered annotation value for an object/column pair.
type MemoObject struct {
	Key   MemoObjectKey
	Value string
}

// Config is a single key-value configuration element.
type Config struct {
	Element string
	Value   *string
}

// Key identifies one time series as a cross-product of (phase, band,
// sample, timeslice, membership, property).
type Key struct {
	ID           int64
	PhaseID      int64
	BandID       int64
	SampleID     int64
	TimesliceID  int64
	MembershipID int64
	PropertyID   int64
	ModelID      int64
	IsSummary    bool
}

// KeyIndex is the physical-layout descriptor for a Key's time series.
type KeyIndex struct {
	KeyID        int64
	PeriodTypeID int64
	Position     int64 // byte offset into the period_type_id's BIN file
	Length       int64 // count of 8-byte doubles
	PeriodOffset int64 // additive offset applied to the zero-based row index
}

// TimestampEntry is one row of a timestamp block: a period's datetime
// paired with the period id it was resolved from.
type TimestampEntry struct {
	DateTime   time.Time
	IntervalID int64
}

// RunMetadata describes the provenance of one conversion run, written to
// main.plexos2duckdb.
type RunMetadata struct {
	ToolVersion    string
	CreatedAt      time.Time
	SourceFile     string
	ModelName      string
	SimulationLog  *string
	RunStats       *string
}
