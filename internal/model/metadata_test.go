package model

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyUnmarshal(t *testing.T) {
	var keys struct {
		Num  Key  `json:"num"`
		Str  Key  `json:"str"`
		Null *Key `json:"null"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"num": 10, "str": "05", "null": null}`), &keys))

	assert.Equal(t, Key("10"), keys.Num)
	assert.Equal(t, Key("05"), keys.Str)
	assert.Nil(t, keys.Null)
}

func TestTableUnmarshal_Array(t *testing.T) {
	var tbl Table
	err := json.Unmarshal([]byte(`[
		{"id": 1, "code": "05", "name_short_en": "Antioquia", "name_short_es": "Antioquia", "parent_id": null},
		{"id": 10, "code": "05001", "name_short_en": "Medellin", "name_short_es": "Medellín", "parent_id": 1}
	]`), &tbl)
	require.NoError(t, err)
	require.Len(t, tbl, 2)

	city, ok := tbl.Lookup("10")
	require.True(t, ok)
	assert.Equal(t, "Medellín", city.NameShortES)

	parent, ok := tbl.Parent(city)
	require.True(t, ok)
	assert.Equal(t, "05", parent.Code)

	_, ok = tbl.Parent(parent)
	assert.False(t, ok)
}

func TestTableUnmarshal_Object(t *testing.T) {
	var tbl Table
	err := json.Unmarshal([]byte(`{"10": {"name_short_en": "Dept A", "parent_id": 1}}`), &tbl)
	require.NoError(t, err)

	e, ok := tbl.Lookup("10")
	require.True(t, ok)
	assert.Equal(t, Key("10"), e.ID)
	assert.Equal(t, "Dept A", e.NameShortEN)
	require.NotNil(t, e.ParentID)
	assert.Equal(t, Key("1"), *e.ParentID)
}

func TestTablesByName(t *testing.T) {
	tables := Tables{Locations: Table{"1": {}}, Occupations: Table{}}

	tbl, ok := tables.ByName(TableLocations)
	require.True(t, ok)
	assert.Len(t, tbl, 1)

	_, ok = tables.ByName("products")
	assert.False(t, ok)
}

func TestParseSourceType(t *testing.T) {
	for _, s := range []string{"departments", "occupations", "cities"} {
		st, err := ParseSourceType(s)
		require.NoError(t, err)
		assert.Equal(t, SourceType(s), st)
	}

	_, err := ParseSourceType("products")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidSourceType))
}

func TestEnvelopeMarshal_CitiesOnlyForDepartments(t *testing.T) {
	env := &Envelope{
		Source: SourceDepartments,
		Entity: &Industry{ID: "5", Code: "0111"},
		Data:   []Record{{"id": 10.0}},
	}
	b, err := json.Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{"entity":{"id":"5","code":"0111"},"data":[{"id":10}],"cities":[]}`, string(b))

	env.Source = SourceCities
	b, err = json.Marshal(env)
	require.NoError(t, err)
	assert.JSONEq(t, `{"entity":{"id":"5","code":"0111"},"data":[{"id":10}]}`, string(b))
}
