// Package enrich joins fetched rows against the metadata tables and derives
// the view fields (average wage, display names, parent names, vacancy share).
package enrich

import (
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/industry-viz/internal/model"
)

// Strategy selects one of the enrichment variants.
type Strategy int

const (
	// Departments enriches department rows against the locations table.
	Departments Strategy = iota + 1
	// DepartmentCities enriches city rows fetched alongside departments; it
	// resolves the parent's name and code.
	DepartmentCities
	// Cities enriches city rows; it resolves the parent's name only.
	Cities
	// Occupations enriches occupation rows and computes vacancy shares.
	Occupations
)

func (s Strategy) String() string {
	switch s {
	case Departments:
		return "departments"
	case DepartmentCities:
		return "department_cities"
	case Cities:
		return "cities"
	case Occupations:
		return "occupations"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// Options carries the values enrichment stamps onto rows that do not come
// from the rows or the tables.
type Options struct {
	// OccupationYear is written to the year field of occupation rows.
	// Zero writes null.
	OccupationYear int
}

// LookupError reports a row whose id, or whose entry's parent id, has no
// entry in a metadata table.
type LookupError struct {
	Table string
	Field string
	Key   model.Key
	Index int
}

func (e *LookupError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("enrich: row %d: no %s in %s table", e.Index, e.Field, e.Table)
	}
	return fmt.Sprintf("enrich: row %d: no %s entry for %s=%s", e.Index, e.Table, e.Field, e.Key)
}

type locationVariant struct {
	idField    string
	withParent bool
	parentCode bool
}

var locationVariants = map[Strategy]locationVariant{
	Departments:      {idField: "department_id"},
	DepartmentCities: {idField: "msa_id", withParent: true, parentCode: true},
	Cities:           {idField: "msa_id", withParent: true},
}

// Apply enriches rows with strategy s. It returns one output row per input
// row, in input order. Input rows and tables are never modified.
func Apply(s Strategy, rows []model.Record, tables model.Tables, opts Options) ([]model.Record, error) {
	if s == Occupations {
		return occupations(rows, tables.Occupations, opts)
	}
	v, ok := locationVariants[s]
	if !ok {
		return nil, eris.Errorf("enrich: unknown strategy %s", s)
	}
	return locations(rows, tables.Locations, v)
}

func locations(rows []model.Record, table model.Table, v locationVariant) ([]model.Record, error) {
	out := make([]model.Record, 0, len(rows))
	for i, raw := range rows {
		entry, err := lookup(table, model.TableLocations, raw, v.idField, i)
		if err != nil {
			return nil, err
		}

		d := raw.Clone()
		setAvgWage(d)
		copyDisplay(d, entry)
		d["group"] = entry.Group
		d["model"] = "location"
		d["id"] = raw[v.idField]

		if v.withParent {
			parent, ok := table.Parent(entry)
			if !ok {
				le := &LookupError{Table: model.TableLocations, Field: "parent_id", Index: i}
				if entry.ParentID != nil {
					le.Key = *entry.ParentID
				}
				return nil, le
			}
			d["parent_name_en"] = parent.NameShortEN
			d["parent_name_es"] = parent.NameShortES
			if v.parentCode {
				d["parent_code"] = parent.Code
			}
		}

		out = append(out, d)
	}
	return out, nil
}

func occupations(rows []model.Record, table model.Table, opts Options) ([]model.Record, error) {
	out := make([]model.Record, 0, len(rows))
	var vacancies float64
	for i, raw := range rows {
		entry, err := lookup(table, model.TableOccupations, raw, "occupation_id", i)
		if err != nil {
			return nil, err
		}
		parent, ok := table.Parent(entry)
		if !ok {
			parent = entry
		}
		vacancies += raw.Float("num_vacancies")

		d := raw.Clone()
		if opts.OccupationYear != 0 {
			d["year"] = opts.OccupationYear
		} else {
			d["year"] = nil
		}
		d["group"] = parent.Code
		d["parent_name_en"] = parent.NameEN
		d["parent_name_es"] = parent.NameES
		setAvgWage(d)
		copyDisplay(d, entry)
		d["model"] = nil

		out = append(out, d)
	}

	for _, d := range out {
		d["share"] = d.Float("num_vacancies") / vacancies
	}
	return out, nil
}

func lookup(table model.Table, name string, raw model.Record, field string, i int) (model.Entry, error) {
	key, ok := raw.Key(field)
	if !ok {
		return model.Entry{}, &LookupError{Table: name, Field: field, Index: i}
	}
	entry, ok := table.Lookup(key)
	if !ok {
		return model.Entry{}, &LookupError{Table: name, Field: field, Key: key, Index: i}
	}
	return entry, nil
}

// setAvgWage divides without a zero check; employment == 0 yields ±Inf or NaN.
func setAvgWage(d model.Record) {
	d["avg_wage"] = d.Float("wages") / d.Float("employment")
}

func copyDisplay(d model.Record, e model.Entry) {
	d["name_short_en"] = e.NameShortEN
	d["name_short_es"] = e.NameShortES
	d["color"] = e.Color
	d["code"] = e.Code
}
