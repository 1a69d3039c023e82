package model

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/rotisserie/eris"
)

// Key identifies a metadata entry. Upstream ids arrive as JSON numbers or
// strings; both normalize to the same Key.
type Key string

// KeyOf normalizes a decoded JSON id. It reports false for null and for
// values that cannot be an id.
func KeyOf(v any) (Key, bool) {
	switch t := v.(type) {
	case string:
		return Key(t), true
	case float64:
		return Key(strconv.FormatFloat(t, 'f', -1, 64)), true
	case int:
		return Key(strconv.Itoa(t)), true
	case int64:
		return Key(strconv.FormatInt(t, 10)), true
	case json.Number:
		return Key(t.String()), true
	case Key:
		return t, true
	default:
		return "", false
	}
}

// UnmarshalJSON accepts a JSON number or string.
func (k *Key) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*k = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return eris.Wrap(err, "model: decode key")
		}
		*k = Key(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return eris.Wrap(err, "model: decode key")
	}
	*k = Key(n.String())
	return nil
}

// Entry is one row of a metadata table (a location or an occupation).
type Entry struct {
	ID          Key    `json:"id" yaml:"id"`
	Code        string `json:"code" yaml:"code"`
	NameEN      string `json:"name_en,omitempty" yaml:"name_en,omitempty"`
	NameES      string `json:"name_es,omitempty" yaml:"name_es,omitempty"`
	NameShortEN string `json:"name_short_en" yaml:"name_short_en"`
	NameShortES string `json:"name_short_es" yaml:"name_short_es"`
	Color       string `json:"color,omitempty" yaml:"color,omitempty"`
	Group       any    `json:"group,omitempty" yaml:"group,omitempty"`
	Level       string `json:"level,omitempty" yaml:"level,omitempty"`
	ParentID    *Key   `json:"parent_id" yaml:"parent_id"`
}

// Table maps ids to entries. Tables are read-only once built.
type Table map[Key]Entry

// NewTable indexes entries by id.
func NewTable(entries []Entry) Table {
	t := make(Table, len(entries))
	for _, e := range entries {
		t[e.ID] = e
	}
	return t
}

// Lookup returns the entry for k.
func (t Table) Lookup(k Key) (Entry, bool) {
	e, ok := t[k]
	return e, ok
}

// Parent returns the entry referenced by e.ParentID.
func (t Table) Parent(e Entry) (Entry, bool) {
	if e.ParentID == nil {
		return Entry{}, false
	}
	return t.Lookup(*e.ParentID)
}

// UnmarshalJSON accepts either an object keyed by id or an array of entries.
// Object keys win over an entry's own id field.
func (t *Table) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var entries []Entry
		if err := json.Unmarshal(b, &entries); err != nil {
			return eris.Wrap(err, "model: decode table entries")
		}
		*t = NewTable(entries)
		return nil
	}
	var byID map[string]Entry
	if err := json.Unmarshal(b, &byID); err != nil {
		return eris.Wrap(err, "model: decode table")
	}
	out := make(Table, len(byID))
	for id, e := range byID {
		e.ID = Key(id)
		out[Key(id)] = e
	}
	*t = out
	return nil
}

// Table names used by the metadata provider and the store.
const (
	TableLocations   = "locations"
	TableOccupations = "occupations"
)

// Tables bundles the metadata tables the enrichment step joins against.
type Tables struct {
	Locations   Table `json:"locations" yaml:"locations"`
	Occupations Table `json:"occupations" yaml:"occupations"`
}

// ByName returns the table registered under name.
func (t Tables) ByName(name string) (Table, bool) {
	switch name {
	case TableLocations:
		return t.Locations, true
	case TableOccupations:
		return t.Occupations, true
	default:
		return nil, false
	}
}
