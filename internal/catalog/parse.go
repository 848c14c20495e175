// plexodb - PLEXOS solution bundle to DuckDB assembler
// SPDX-License-Identifier: AGPL-3.0-or-later

package catalog

import (
	"encoding/xml"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/plexodb/plexodb/internal/perr"
)

// anyElem is a generic XML tree node used to walk the catalog document
// without binding to a fixed schema: every t_<entity> row is a direct
// child of the document root, and every field of a row is in turn a leaf
// child element carrying its value as text content.
type anyElem struct {
	XMLName  xml.Name
	Children []anyElem `xml:",any"`
	Text     string    `xml:",chardata"`
}

// fields is a flattened tag -> text-content map for one entity row.
type fields map[string]string

func fieldsOf(e anyElem) fields {
	f := make(fields, len(e.Children))
	for _, c := range e.Children {
		f[c.XMLName.Local] = strings.TrimSpace(c.Text)
	}
	return f
}

func (f fields) reqStr(tag string) (string, error) {
	v, ok := f[tag]
	if !ok {
		return "", perr.MissingFieldErr(tag)
	}
	return v, nil
}

func (f fields) optStr(tag string) *string {
	v, ok := f[tag]
	if !ok || v == "" {
		return nil
	}
	return &v
}

func (f fields) reqInt(tag string) (int64, error) {
	s, err := f.reqStr(tag)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, perr.InvalidValueErr(tag, err)
	}
	return n, nil
}

func (f fields) optInt(tag string) (*int64, error) {
	s, ok := f[tag]
	if !ok || s == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, perr.InvalidValueErr(tag, err)
	}
	return &n, nil
}

func (f fields) intOr(tag string, def int64) int64 {
	s, ok := f[tag]
	if !ok || s == "" {
		return def
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func (f fields) reqFloat(tag string) (float64, error) {
	s, err := f.reqStr(tag)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, perr.InvalidValueErr(tag, err)
	}
	return v, nil
}

func (f fields) boolOr(tag string, def bool) bool {
	s, ok := f[tag]
	if !ok || s == "" {
		return def
	}
	switch s {
	case "1", "true", "True", "TRUE":
		return true
	case "0", "false", "False", "FALSE":
		return false
	default:
		return def
	}
}

// parseDateTime supports ISO-8601 (treated as UTC when the offset is
// absent) and, when allowLegacy is set, the PLEXOS legacy syntax
// "dd/MM/yyyy HH:mm:ss" (assumed UTC). The legacy syntax is only ever used
// by the interval period kind.
func parseDateTime(s string, allowLegacy bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return t.UTC(), nil
	}
	if allowLegacy {
		if t, err := time.Parse("02/01/2006 15:04:05", s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, perr.InvalidValueErr("datetime", errInvalidDateTime(s))
}

type errInvalidDateTime string

func (e errInvalidDateTime) Error() string { return "invalid datetime: " + string(e) }

// parseXML walks the document root's direct children, dispatching each
// t_<entity> row to its typed parser. Ingestion order within the document
// is irrelevant - every cross-reference is resolved only after all tables
// have been read (see validateReferences).
func parseXML(r io.Reader, cat *Catalog) error {
	dec := xml.NewDecoder(r)
	var root anyElem
	if err := dec.Decode(&root); err != nil {
		return perr.FatalErr("decode catalog XML", err)
	}

	for _, row := range root.Children {
		f := fieldsOf(row)
		var err error
		switch row.XMLName.Local {
		case "t_class":
			err = parseClass(cat, f)
		case "t_class_group":
			err = parseClassGroup(cat, f)
		case "t_category":
			err = parseCategory(cat, f)
		case "t_object":
			err = parseObject(cat, f)
		case "t_collection":
			err = parseCollection(cat, f)
		case "t_membership":
			err = parseMembership(cat, f)
		case "t_property":
			err = parseProperty(cat, f)
		case "t_unit":
			err = parseUnit(cat, f)
		case "t_band":
			err = parseBand(cat, f)
		case "t_attribute":
			err = parseAttribute(cat, f)
		case "t_attribute_data":
			err = parseAttributeData(cat, f)
		case "t_model":
			err = parseModel(cat, f)
		case "t_sample":
			err = parseSample(cat, f)
		case "t_sample_weight":
			err = parseSampleWeight(cat, f)
		case "t_timeslice":
			err = parseTimeslice(cat, f)
		case "t_custom_column":
			err = parseCustomColumn(cat, f)
		case "t_memo_object":
			err = parseMemoObject(cat, f)
		case "t_config":
			err = parseConfig(cat, f)
		case "t_period_interval":
			err = parseIntervalPeriod(cat, f)
		case "t_period_day":
			err = parseDayPeriod(cat, f)
		case "t_period_week":
			err = parseWeekPeriod(cat, f)
		case "t_period_month":
			err = parseMonthPeriod(cat, f)
		case "t_period_year":
			err = parseYearPeriod(cat, f)
		case "t_period_hour":
			err = parseHourPeriod(cat, f)
		case "t_period_quarter":
			err = parseQuarterPeriod(cat, f)
		case "t_phase_lt":
			err = parsePhaseEntry(cat, PhaseLT, f)
		case "t_phase_pasa":
			err = parsePhaseEntry(cat, PhasePASA, f)
		case "t_phase_mt":
			err = parsePhaseEntry(cat, PhaseMT, f)
		case "t_phase_st":
			err = parsePhaseEntry(cat, PhaseST, f)
		case "t_key":
			err = parseKey(cat, f)
		case "t_key_index":
			err = parseKeyIndex(cat, f)
		default:
			// Unrecognized t_* rows outside the documented schema are not
			// part of this spec's supported catalog; ignore them.
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func parseClass(cat *Catalog, f fields) error {
	id, err := f.reqInt("class_id")
	if err != nil {
		return err
	}
	name, err := f.reqStr("name")
	if err != nil {
		return err
	}
	groupID, err := f.reqInt("class_group_id")
	if err != nil {
		return err
	}
	cat.Classes[id] = Class{ID: id, Name: name, ClassGroupID: groupID, LangID: f.intOr("lang_id", 0)}
	return nil
}

func parseClassGroup(cat *Catalog, f fields) error {
	id, err := f.reqInt("class_group_id")
	if err != nil {
		return err
	}
	name, err := f.reqStr("name")
	if err != nil {
		return err
	}
	cat.ClassGroups[id] = ClassGroup{ID: id, Name: name, LangID: f.intOr("lang_id", 0)}
	return nil
}

func parseCategory(cat *Catalog, f fields) error {
	id, err := f.reqInt("category_id")
	if err != nil {
		return err
	}
	name, err := f.reqStr("name")
	if err != nil {
		return err
	}
	classID, err := f.reqInt("class_id")
	if err != nil {
		return err
	}
	cat.Categories[id] = Category{ID: id, Name: name, Rank: f.intOr("rank", 0), ClassID: classID}
	return nil
}

func parseObject(cat *Catalog, f fields) error {
	id, err := f.reqInt("object_id")
	if err != nil {
		return err
	}
	name, err := f.reqStr("name")
	if err != nil {
		return err
	}
	classID, err := f.reqInt("class_id")
	if err != nil {
		return err
	}
	categoryID, err := f.reqInt("category_id")
	if err != nil {
		return err
	}
	cat.Objects[id] = Object{
		ID:         id,
		Name:       name,
		ClassID:    classID,
		CategoryID: categoryID,
		Index:      f.intOr("index", 0),
		Show:       f.boolOr("show", true),
		GUID:       f.optStr("guid"),
	}
	return nil
}

func parseCollection(cat *Catalog, f fields) error {
	id, err := f.reqInt("collection_id")
	if err != nil {
		return err
	}
	name, err := f.reqStr("name")
	if err != nil {
		return err
	}
	parentClassID, err := f.reqInt("parent_class_id")
	if err != nil {
		return err
	}
	childClassID, err := f.reqInt("child_class_id")
	if err != nil {
		return err
	}
	cat.Collections[id] = Collection{
		ID:             id,
		Name:           name,
		ParentClassID:  parentClassID,
		ChildClassID:   childClassID,
		ComplementName: f.optStr("complement_name"),
	}
	return nil
}

func parseMembership(cat *Catalog, f fields) error {
	id, err := f.reqInt("membership_id")
	if err != nil {
		return err
	}
	collID, err := f.reqInt("collection_id")
	if err != nil {
		return err
	}
	parentClassID, err := f.reqInt("parent_class_id")
	if err != nil {
		return err
	}
	childClassID, err := f.reqInt("child_class_id")
	if err != nil {
		return err
	}
	parentObjID, err := f.reqInt("parent_object_id")
	if err != nil {
		return err
	}
	childObjID, err := f.reqInt("child_object_id")
	if err != nil {
		return err
	}
	cat.Memberships[id] = Membership{
		ID:             id,
		CollectionID:   collID,
		ParentClassID:  parentClassID,
		ChildClassID:   childClassID,
		ParentObjectID: parentObjID,
		ChildObjectID:  childObjID,
	}
	return nil
}

func parseProperty(cat *Catalog, f fields) error {
	id, err := f.reqInt("property_id")
	if err != nil {
		return err
	}
	name, err := f.reqStr("name")
	if err != nil {
		return err
	}
	collID, err := f.reqInt("collection_id")
	if err != nil {
		return err
	}
	cat.Properties[id] = Property{
		ID:            id,
		Name:          name,
		SummaryName:   f.intOrStr("summary_name", name),
		UnitID:        f.intOr("unit_id", 0),
		SummaryUnitID: f.intOr("summary_unit_id", 0),
		IsMultiBand:   f.boolOr("is_multi_band", false),
		IsPeriod:      f.boolOr("is_period", true),
		IsSummary:     f.boolOr("is_summary", false),
		CollectionID:  collID,
	}
	return nil
}

// intOrStr returns the string field if present, else the default. Named to
// mirror the other "Or" helpers; properties sometimes omit summary_name.
func (f fields) intOrStr(tag, def string) string {
	v, ok := f[tag]
	if !ok || v == "" {
		return def
	}
	return v
}

func parseUnit(cat *Catalog, f fields) error {
	id, err := f.reqInt("unit_id")
	if err != nil {
		return err
	}
	value, err := f.reqStr("value")
	if err != nil {
		return err
	}
	cat.Units[id] = Unit{ID: id, Value: value, LangID: f.intOr("lang_id", 0)}
	return nil
}

func parseBand(cat *Catalog, f fields) error {
	id, err := f.reqInt("band_id")
	if err != nil {
		return err
	}
	cat.Bands[id] = Band{ID: id}
	return nil
}

func parseAttribute(cat *Catalog, f fields) error {
	id, err := f.reqInt("attribute_id")
	if err != nil {
		return err
	}
	name, err := f.reqStr("name")
	if err != nil {
		return err
	}
	classID, err := f.reqInt("class_id")
	if err != nil {
		return err
	}
	cat.Attributes[id] = Attribute{
		ID:          id,
		Name:        name,
		Description: f.intOrStr("description", ""),
		ClassID:     classID,
		EnumID:      f.intOr("enum_id", 0),
		LangID:      f.intOr("lang_id", 0),
	}
	return nil
}

// parseAttributeData drops rows with absent object_id per the documented
// Open Question resolution (DESIGN.md): the row never enters the catalog
// model, matching spec.md §9's "silently dropped from raw.attribute_data".
func parseAttributeData(cat *Catalog, f fields) error {
	attrID, err := f.reqInt("attribute_id")
	if err != nil {
		return err
	}
	objID, err := f.optInt("object_id")
	if err != nil {
		return err
	}
	if objID == nil {
		return nil
	}
	value, err := f.reqFloat("value")
	if err != nil {
		return err
	}
	cat.AttributeData[attrID] = AttributeData{AttributeID: attrID, ObjectID: *objID, Value: value}
	return nil
}

func parseModel(cat *Catalog, f fields) error {
	id, err := f.reqInt("model_id")
	if err != nil {
		return err
	}
	name, err := f.reqStr("name")
	if err != nil {
		return err
	}
	cat.Models[id] = Model{ID: id, Name: name}
	return nil
}

func parseSample(cat *Catalog, f fields) error {
	id, err := f.reqInt("sample_id")
	if err != nil {
		return err
	}
	cat.Samples[id] = Sample{ID: id, Name: f.optStr("name")}
	return nil
}

func parseSampleWeight(cat *Catalog, f fields) error {
	sampleID, err := f.reqInt("sample_id")
	if err != nil {
		return err
	}
	phaseID, err := f.reqInt("phase_id")
	if err != nil {
		return err
	}
	weight, err := f.reqFloat("weight")
	if err != nil {
		return err
	}
	cat.SampleWeights[sampleID] = SampleWeight{SampleID: sampleID, PhaseID: phaseID, Weight: weight}
	return nil
}

func parseTimeslice(cat *Catalog, f fields) error {
	id, err := f.reqInt("timeslice_id")
	if err != nil {
		return err
	}
	name, err := f.reqStr("name")
	if err != nil {
		return err
	}
	cat.Timeslices[id] = Timeslice{ID: id, Name: name}
	return nil
}

func parseCustomColumn(cat *Catalog, f fields) error {
	id, err := f.reqInt("column_id")
	if err != nil {
		return err
	}
	name, err := f.reqStr("name")
	if err != nil {
		return err
	}
	classID, err := f.reqInt("class_id")
	if err != nil {
		return err
	}
	cat.CustomColumns[id] = CustomColumn{ID: id, Name: name, Position: f.intOr("position", 0), ClassID: classID}
	return nil
}

func parseMemoObject(cat *Catalog, f fields) error {
	objID, err := f.reqInt("object_id")
	if err != nil {
		return err
	}
	colID, err := f.reqInt("column_id")
	if err != nil {
		return err
	}
	value, err := f.reqStr("value")
	if err != nil {
		return err
	}
	key := MemoObjectKey{ObjectID: objID, ColumnID: colID}
	cat.MemoObjects[key] = MemoObject{Key: key, Value: value}
	return nil
}

func parseConfig(cat *Catalog, f fields) error {
	element, err := f.reqStr("element")
	if err != nil {
		return err
	}
	cat.Configs[element] = Config{Element: element, Value: f.optStr("value")}
	return nil
}

func parseIntervalPeriod(cat *Catalog, f fields) error {
	id, err := f.reqInt("interval_id")
	if err != nil {
		return err
	}
	dtStr, err := f.reqStr("datetime")
	if err != nil {
		return err
	}
	dt, err := parseDateTime(dtStr, true)
	if err != nil {
		return err
	}
	var quarterID *int64
	if q, err := f.optInt("quarter_id"); err == nil {
		quarterID = q
	}
	cat.Intervals[id] = IntervalPeriod{
		ID:           id,
		DateTimeUTC:  dt,
		HourID:       f.intOr("hour_id", 0),
		DayID:        f.intOr("day_id", 0),
		WeekID:       f.intOr("week_id", 0),
		MonthID:      f.intOr("month_id", 0),
		FiscalYearID: f.intOr("fiscal_year_id", 0),
		QuarterID:    quarterID,
	}
	return nil
}

func parseDayPeriod(cat *Catalog, f fields) error {
	id, err := f.reqInt("day_id")
	if err != nil {
		return err
	}
	dt, err := reqDateTime(f, "datetime")
	if err != nil {
		return err
	}
	cat.Days[id] = DayPeriod{ID: id, DateTimeUTC: dt}
	return nil
}

func parseWeekPeriod(cat *Catalog, f fields) error {
	id, err := f.reqInt("week_id")
	if err != nil {
		return err
	}
	dt, err := reqDateTime(f, "week_ending")
	if err != nil {
		return err
	}
	cat.Weeks[id] = WeekPeriod{ID: id, WeekEnding: dt}
	return nil
}

func parseMonthPeriod(cat *Catalog, f fields) error {
	id, err := f.reqInt("month_id")
	if err != nil {
		return err
	}
	dt, err := reqDateTime(f, "month_beginning")
	if err != nil {
		return err
	}
	cat.Months[id] = MonthPeriod{ID: id, MonthBeginning: dt}
	return nil
}

func parseYearPeriod(cat *Catalog, f fields) error {
	id, err := f.reqInt("year_id")
	if err != nil {
		return err
	}
	dt, err := reqDateTime(f, "year_ending")
	if err != nil {
		return err
	}
	cat.Years[id] = YearPeriod{ID: id, YearEnding: dt}
	return nil
}

func parseHourPeriod(cat *Catalog, f fields) error {
	id, err := f.reqInt("hour_id")
	if err != nil {
		return err
	}
	dt, err := reqDateTime(f, "datetime")
	if err != nil {
		return err
	}
	cat.Hours[id] = HourPeriod{ID: id, DateTimeUTC: dt}
	return nil
}

func parseQuarterPeriod(cat *Catalog, f fields) error {
	id, err := f.reqInt("quarter_id")
	if err != nil {
		return err
	}
	dt, err := reqDateTime(f, "datetime")
	if err != nil {
		return err
	}
	cat.Quarters[id] = QuarterPeriod{ID: id, DateTimeUTC: dt}
	return nil
}

func reqDateTime(f fields, tag string) (time.Time, error) {
	s, err := f.reqStr(tag)
	if err != nil {
		return time.Time{}, err
	}
	return parseDateTime(s, false)
}

func parsePhaseEntry(cat *Catalog, kind PhaseKind, f fields) error {
	intervalID, err := f.reqInt("interval_id")
	if err != nil {
		return err
	}
	periodID, err := f.reqInt("period_id")
	if err != nil {
		return err
	}
	cat.Phases[kind] = append(cat.Phases[kind], PhaseEntry{IntervalID: intervalID, PeriodID: periodID})
	return nil
}

func parseKey(cat *Catalog, f fields) error {
	id, err := f.reqInt("key_id")
	if err != nil {
		return err
	}
	phaseID, err := f.reqInt("phase_id")
	if err != nil {
		return err
	}
	membershipID, err := f.reqInt("membership_id")
	if err != nil {
		return err
	}
	propertyID, err := f.reqInt("property_id")
	if err != nil {
		return err
	}
	periodTypeID, err := f.reqInt("period_type_id")
	if err != nil {
		return err
	}
	cat.Keys[id] = Key{
		ID:           id,
		PhaseID:      phaseID,
		BandID:       f.intOr("band_id", 1),
		SampleID:     f.intOr("sample_id", 1),
		TimesliceID:  f.intOr("timeslice_id", 1),
		MembershipID: membershipID,
		PropertyID:   propertyID,
		ModelID:      f.intOr("model_id", 1),
		IsSummary:    periodTypeID == 1,
	}
	return nil
}

func parseKeyIndex(cat *Catalog, f fields) error {
	keyID, err := f.reqInt("key_id")
	if err != nil {
		return err
	}
	periodTypeID, err := f.reqInt("period_type_id")
	if err != nil {
		return err
	}
	position, err := f.reqInt("position")
	if err != nil {
		return err
	}
	length, err := f.reqInt("length")
	if err != nil {
		return err
	}
	cat.KeyIndexes[keyID] = KeyIndex{
		KeyID:        keyID,
		PeriodTypeID: periodTypeID,
		Position:     position,
		Length:       length,
		PeriodOffset: f.intOr("period_offset", 0),
	}
	return nil
}
