package model

import (
	"encoding/json"

	"github.com/rotisserie/eris"
)

// SourceType selects which fetch and enrichment pipeline runs.
type SourceType string

const (
	SourceDepartments SourceType = "departments"
	SourceOccupations SourceType = "occupations"
	SourceCities      SourceType = "cities"
)

// ErrInvalidSourceType is returned for source types other than
// departments, occupations and cities.
var ErrInvalidSourceType = eris.New("invalid source type")

// ParseSourceType validates s.
func ParseSourceType(s string) (SourceType, error) {
	switch st := SourceType(s); st {
	case SourceDepartments, SourceOccupations, SourceCities:
		return st, nil
	default:
		return "", eris.Wrapf(ErrInvalidSourceType, "%q (valid: departments, occupations, cities)", s)
	}
}

// Industry is the primary entity of the visualization screen.
type Industry struct {
	ID          Key    `json:"id" yaml:"id"`
	Code        string `json:"code" yaml:"code"`
	Level       string `json:"level,omitempty" yaml:"level,omitempty"`
	NameEN      string `json:"name_en,omitempty" yaml:"name_en,omitempty"`
	NameES      string `json:"name_es,omitempty" yaml:"name_es,omitempty"`
	NameShortEN string `json:"name_short_en,omitempty" yaml:"name_short_en,omitempty"`
	NameShortES string `json:"name_short_es,omitempty" yaml:"name_short_es,omitempty"`
	Color       string `json:"color,omitempty" yaml:"color,omitempty"`
	ParentID    *Key   `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
}

// Envelope is the unified result of a visualization load. Cities is only
// exposed for the departments source type.
type Envelope struct {
	Source SourceType
	Entity *Industry
	Data   []Record
	Cities []Record
}

// Fields returns the envelope keys exposed to the view layer.
func (e *Envelope) Fields() map[string]any {
	out := map[string]any{
		"entity": e.Entity,
		"data":   nonNil(e.Data),
	}
	if e.Source == SourceDepartments {
		out["cities"] = nonNil(e.Cities)
	}
	return out
}

func (e *Envelope) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Fields())
}

func (e *Envelope) MarshalYAML() (any, error) {
	return e.Fields(), nil
}

func nonNil(rs []Record) []Record {
	if rs == nil {
		return []Record{}
	}
	return rs
}
