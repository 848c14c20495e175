// plexodb - PLEXOS solution bundle to DuckDB assembler
// SPDX-License-Identifier: AGPL-3.0-or-later

package catalog

import (
	"fmt"
	"sort"
	"strings"
)

// deriveBandIDs implements spec.md §4.1's property band update: for every
// key, property[key.property_id].band_id = max(current, key.band_id).
func deriveBandIDs(cat *Catalog) {
	max := make(map[int64]int64, len(cat.Properties))
	for _, k := range cat.Keys {
		if k.BandID > max[k.PropertyID] {
			max[k.PropertyID] = k.BandID
		}
	}
	for id, band := range max {
		p := cat.Properties[id]
		p.BandID = band
		cat.Properties[id] = p
	}
}

// deriveTimestampBlocks implements spec.md §4.1's timestamp-block build:
// for each phase entry, for each of the seven period kinds, attempt to
// resolve the period record using interval_id as its id; on success,
// append (interval_id, period.datetime) to the bucket keyed
// "{phase_name}__{period_name}". Pairs where the period lookup fails are
// silently omitted.
func deriveTimestampBlocks(cat *Catalog) {
	for phaseKind, entries := range cat.Phases {
		phaseName := phaseKind.String()
		for _, kind := range allPeriodKinds {
			bucket := phaseName + "__" + kind.String()
			for _, e := range entries {
				dt, ok := cat.PeriodDateTime(kind, e.IntervalID)
				if !ok {
					continue
				}
				cat.TimestampBlocks[bucket] = append(cat.TimestampBlocks[bucket], TimestampEntry{
					DateTime:   dt,
					IntervalID: e.IntervalID,
				})
			}
		}
	}
}

// deriveMembershipOrdinals implements spec.md §4.1's membership count and
// ordinal pass: a linear pass assigns each membership its index within its
// collection (0-based, in ingest order) and writes the per-collection
// total back to the collection record.
func deriveMembershipOrdinals(cat *Catalog) {
	ids := sortedKeys(cat.Memberships)
	counts := make(map[int64]int, len(cat.Collections))
	for _, id := range ids {
		m := cat.Memberships[id]
		idx := counts[m.CollectionID]
		m.CollectionIdx = idx
		cat.Memberships[id] = m
		counts[m.CollectionID] = idx + 1
	}
	for collID, n := range counts {
		c := cat.Collections[collID]
		c.NMembers = n
		cat.Collections[collID] = c
	}
}

// deriveDataTableGroups implements spec.md §4.1's data-table grouping: for
// each KeyIndex, compute a canonical table name (spec.md §4.3) and append
// its key_id to a bucket under that name.
func deriveDataTableGroups(cat *Catalog) {
	ids := sortedKeys(cat.KeyIndexes)
	for _, id := range ids {
		ki := cat.KeyIndexes[id]
		k := cat.Keys[ki.KeyID]
		name, err := TableName(cat, k, ki)
		if err != nil {
			// Unresolvable cross-references are caught by validateReferences
			// before derivation runs; this is unreachable in practice.
			continue
		}
		cat.DataTables[name] = append(cat.DataTables[name], ki.KeyID)
	}
}

// TableName computes the canonical table name for a KeyIndex, per
// spec.md §4.3: "{phase}__{period}__{collection_qualified}__{property}"
// with spaces and hyphens replaced by underscores.
func TableName(cat *Catalog, k Key, ki KeyIndex) (string, error) {
	phase := PhaseName(k.PhaseID)
	period := PeriodKindName(ki.PeriodTypeID)

	m, ok := cat.Memberships[k.MembershipID]
	if !ok {
		return "", fmt.Errorf("membership %d not found", k.MembershipID)
	}
	coll, ok := cat.Collections[m.CollectionID]
	if !ok {
		return "", fmt.Errorf("collection %d not found", m.CollectionID)
	}

	var prefix string
	if coll.ComplementName != nil && *coll.ComplementName != "" {
		prefix = *coll.ComplementName
	} else {
		parent, ok := cat.Classes[coll.ParentClassID]
		if !ok {
			return "", fmt.Errorf("class %d not found", coll.ParentClassID)
		}
		prefix = parent.Name
	}
	collQualified := prefix + "_" + coll.Name

	prop, ok := cat.Properties[k.PropertyID]
	if !ok {
		return "", fmt.Errorf("property %d not found", k.PropertyID)
	}
	propName := prop.Name
	if k.IsSummary {
		propName = prop.SummaryName
	}

	name := strings.Join([]string{phase, period, collQualified, propName}, "__")
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, "-", "_")
	return name, nil
}

func sortedKeys[V any](m map[int64]V) []int64 {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
