// plexodb - PLEXOS solution bundle to DuckDB assembler
// SPDX-License-Identifier: AGPL-3.0-or-later

package catalog

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/plexodb/plexodb/internal/perr"
)

const sampleCatalogXML = `<?xml version="1.0" encoding="UTF-8"?>
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

func TestLoadBuildsCatalog(t *testing.T) {
	t.Parallel()

	cat, err := Load(context.Background(), strings.NewReader(sampleCatalogXML), RunMetadata{
		ToolVersion: "test",
		CreatedAt:   time.Unix(0, 0),
		SourceFile:  "sample.zip",
	})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(cat.Classes) != 2 {
		t.Errorf("expected 2 classes, got %d", len(cat.Classes))
	}
	if len(cat.Objects) != 2 {
		t.Errorf("expected 2 objects, got %d", len(cat.Objects))
	}
	if _, ok := cat.Keys[1]; !ok {
		t.Fatal("expected key 1 to be present")
	}
	if _, ok := cat.KeyIndexes[1]; !ok {
		t.Fatal("expected key index 1 to be present")
	}
}

func TestDeriveBandIDs(t *testing.T) {
	t.Parallel()

	cat, err := Load(context.Background(), strings.NewReader(sampleCatalogXML), RunMetadata{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	prop, ok := cat.Properties[1]
	if !ok {
		t.Fatal("expected property 1")
	}
	if prop.BandID != 1 {
		t.Errorf("expected band_id 1, got %d", prop.BandID)
	}
}

func TestDeriveMembershipOrdinals(t *testing.T) {
	t.Parallel()

	cat, err := Load(context.Background(), strings.NewReader(sampleCatalogXML), RunMetadata{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	m, ok := cat.Memberships[1]
	if !ok {
		t.Fatal("expected membership 1")
	}
	if m.CollectionIdx != 0 {
		t.Errorf("expected collection_idx 0, got %d", m.CollectionIdx)
	}
	coll, ok := cat.Collections[1]
	if !ok {
		t.Fatal("expected collection 1")
	}
	if coll.NMembers != 1 {
		t.Errorf("expected 1 member, got %d", coll.NMembers)
	}
}

func TestDeriveTimestampBlocks(t *testing.T) {
	t.Parallel()

	cat, err := Load(context.Background(), strings.NewReader(sampleCatalogXML), RunMetadata{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	entries, ok := cat.TimestampBlocks["ST__Interval"]
	if !ok {
		t.Fatal("expected ST__Interval timestamp block")
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].IntervalID != 1 || entries[1].IntervalID != 2 {
		t.Errorf("unexpected interval ids: %+v", entries)
	}
	wantFirst := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if !entries[0].DateTime.Equal(wantFirst) {
		t.Errorf("expected first datetime %v, got %v", wantFirst, entries[0].DateTime)
	}
}

func TestDeriveDataTableGroups(t *testing.T) {
	t.Parallel()

	cat, err := Load(context.Background(), strings.NewReader(sampleCatalogXML), RunMetadata{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	name, err := TableName(cat, cat.Keys[1], cat.KeyIndexes[1])
	if err != nil {
		t.Fatalf("TableName: %v", err)
	}
	if name != "ST__Interval__Generator_Nodes__Generation" {
		t.Errorf("unexpected table name: %s", name)
	}
	ids, ok := cat.DataTables[name]
	if !ok || len(ids) != 1 || ids[0] != 1 {
		t.Errorf("expected data table %q to contain key 1, got %v (ok=%v)", name, ids, ok)
	}
}

func TestTableNameIsIdempotent(t *testing.T) {
	t.Parallel()

	cat, err := Load(context.Background(), strings.NewReader(sampleCatalogXML), RunMetadata{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	n1, err := TableName(cat, cat.Keys[1], cat.KeyIndexes[1])
	if err != nil {
		t.Fatalf("TableName: %v", err)
	}
	n2, err := TableName(cat, cat.Keys[1], cat.KeyIndexes[1])
	if err != nil {
		t.Fatalf("TableName: %v", err)
	}
	if n1 != n2 {
		t.Errorf("expected idempotent table name, got %q then %q", n1, n2)
	}
}

func TestParseKeyDerivesIsSummaryFromPeriodTypeID(t *testing.T) {
	t.Parallel()

	cat, err := Load(context.Background(), strings.NewReader(sampleCatalogXML), RunMetadata{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cat.Keys[1].IsSummary {
		t.Errorf("key with period_type_id=0 should have IsSummary=false")
	}
}

// TestSummaryAndNonSummaryKeysProduceDistinctTables covers spec scenario
// S6: a key with is_summary=false (t_key.period_type_id=0) names its
// table after property.name, while the mirrored key with
// is_summary=true (t_key.period_type_id=1) names its table after
// property.summary_name, producing two distinct tables.
func TestSummaryAndNonSummaryKeysProduceDistinctTables(t *testing.T) {
	t.Parallel()

	summaryXML := strings.Replace(sampleCatalogXML,
		`<t_property><property_id>1</property_id><name>Generation</name><summary_name>Generation</summary_name><collection_id>1</collection_id><unit_id>1</unit_id><summary_unit_id>1</summary_unit_id><is_summary>0</is_summary></t_property>`,
		`<t_property><property_id>1</property_id><name>Generation</name><summary_name>GenerationSummary</summary_name><collection_id>1</collection_id><unit_id>1</unit_id><summary_unit_id>1</summary_unit_id><is_summary>0</is_summary></t_property>`,
		1)
	summaryXML = strings.Replace(summaryXML,
		`<t_key><key_id>1</key_id><phase_id>4</phase_id><band_id>1</band_id><sample_id>1</sample_id><timeslice_id>1</timeslice_id><membership_id>1</membership_id><property_id>1</property_id><model_id>1</model_id><period_type_id>0</period_type_id></t_key>`,
		`<t_key><key_id>1</key_id><phase_id>4</phase_id><band_id>1</band_id><sample_id>1</sample_id><timeslice_id>1</timeslice_id><membership_id>1</membership_id><property_id>1</property_id><model_id>1</model_id><period_type_id>0</period_type_id></t_key>`+
			`<t_key><key_id>2</key_id><phase_id>4</phase_id><band_id>1</band_id><sample_id>1</sample_id><timeslice_id>1</timeslice_id><membership_id>1</membership_id><property_id>1</property_id><model_id>1</model_id><period_type_id>1</period_type_id></t_key>`,
		1)
	summaryXML = strings.Replace(summaryXML,
		`<t_key_index><key_id>1</key_id><period_type_id>0</period_type_id><position>0</position><length>2</length><period_offset>0</period_offset></t_key_index>`,
		`<t_key_index><key_id>1</key_id><period_type_id>0</period_type_id><position>0</position><length>2</length><period_offset>0</period_offset></t_key_index>`+
			`<t_key_index><key_id>2</key_id><period_type_id>0</period_type_id><position>0</position><length>2</length><period_offset>0</period_offset></t_key_index>`,
		1)

	cat, err := Load(context.Background(), strings.NewReader(summaryXML), RunMetadata{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cat.Keys[1].IsSummary {
		t.Fatal("key 1 should be non-summary (period_type_id=0)")
	}
	if !cat.Keys[2].IsSummary {
		t.Fatal("key 2 should be summary (period_type_id=1)")
	}

	n1, err := TableName(cat, cat.Keys[1], cat.KeyIndexes[1])
	if err != nil {
		t.Fatalf("TableName(key 1): %v", err)
	}
	n2, err := TableName(cat, cat.Keys[2], cat.KeyIndexes[2])
	if err != nil {
		t.Fatalf("TableName(key 2): %v", err)
	}
	if n1 == n2 {
		t.Errorf("expected distinct table names for summary vs non-summary keys, both got %q", n1)
	}
	if !strings.HasSuffix(n1, "__Generation") {
		t.Errorf("non-summary table name = %q, want it to end with property.name %q", n1, "Generation")
	}
	if !strings.HasSuffix(n2, "__GenerationSummary") {
		t.Errorf("summary table name = %q, want it to end with property.summary_name %q", n2, "GenerationSummary")
	}
}

func TestValidateReferencesRejectsUnknownMembershipObject(t *testing.T) {
	t.Parallel()

	badXML := strings.Replace(sampleCatalogXML, `<parent_object_id>1</parent_object_id>`, `<parent_object_id>99</parent_object_id>`, 1)
	_, err := Load(context.Background(), strings.NewReader(badXML), RunMetadata{})
	if err == nil {
		t.Fatal("expected an error for an unresolvable membership reference")
	}
	var perrErr *perr.Error
	if !asPerrError(err, &perrErr) {
		t.Fatalf("expected *perr.Error, got %T: %v", err, err)
	}
	if perrErr.Kind != perr.UnknownReference {
		t.Errorf("expected UnknownReference, got %s", perrErr.Kind)
	}
}

func TestValidateReferencesRejectsMisalignedPosition(t *testing.T) {
	t.Parallel()

	badXML := strings.Replace(sampleCatalogXML, `<position>0</position>`, `<position>3</position>`, 1)
	_, err := Load(context.Background(), strings.NewReader(badXML), RunMetadata{})
	if err == nil {
		t.Fatal("expected an error for a misaligned position")
	}
	var perrErr *perr.Error
	if !asPerrError(err, &perrErr) {
		t.Fatalf("expected *perr.Error, got %T: %v", err, err)
	}
	if perrErr.Kind != perr.Misaligned {
		t.Errorf("expected Misaligned, got %s", perrErr.Kind)
	}
}

func TestParseMissingRequiredFieldIsReported(t *testing.T) {
	t.Parallel()

	badXML := strings.Replace(sampleCatalogXML, `<name>Generator</name>`, ``, 1)
	_, err := Load(context.Background(), strings.NewReader(badXML), RunMetadata{})
	if err == nil {
		t.Fatal("expected an error for a missing required field")
	}
	var perrErr *perr.Error
	if !asPerrError(err, &perrErr) {
		t.Fatalf("expected *perr.Error, got %T: %v", err, err)
	}
	if perrErr.Kind != perr.MissingField {
		t.Errorf("expected MissingField, got %s", perrErr.Kind)
	}
}

func TestAttributeDataDropsRowsMissingObjectID(t *testing.T) {
	t.Parallel()

	xmlDoc := strings.Replace(sampleCatalogXML, "</SolutionDataset>",
		`<t_attribute><attribute_id>1</attribute_id><name>Capacity</name><class_id>1</class_id></t_attribute>`+
			`<t_attribute_data><attribute_id>1</attribute_id><value>100</value></t_attribute_data>`+
			`</SolutionDataset>`, 1)

	cat, err := Load(context.Background(), strings.NewReader(xmlDoc), RunMetadata{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := cat.AttributeData[1]; ok {
		t.Error("expected attribute_data row without object_id to be dropped")
	}
}

func asPerrError(err error, target **perr.Error) bool {
	for err != nil {
		if pe, ok := err.(*perr.Error); ok {
			*target = pe
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
