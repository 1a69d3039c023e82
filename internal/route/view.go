package route

import (
	"encoding/json"

	"github.com/sells-group/industry-viz/internal/model"
)

// EntityType is the entity_type of every visualization view.
const EntityType = "industry"

// View is the loaded envelope merged with the route context the
// presentation layer reads.
type View struct {
	Envelope      *model.Envelope
	Visualization string
	Variable      string
	MetaData      *model.Tables
	Locale        string
}

// NewView merges env with the route parameters and metadata tables.
func NewView(env *model.Envelope, p Params, meta *model.Tables) *View {
	return &View{
		Envelope:      env,
		Visualization: p.VisualizationType,
		Variable:      p.Variable,
		MetaData:      meta,
	}
}

// WithLocale returns a copy of v for locale.
func (v *View) WithLocale(locale string) *View {
	cp := *v
	cp.Locale = locale
	return &cp
}

// Fields returns the flattened view: the envelope keys plus entity_type,
// visualization, source, variable, metaData and locale.
func (v *View) Fields() map[string]any {
	out := map[string]any{}
	if v.Envelope != nil {
		out = v.Envelope.Fields()
		out["source"] = v.Envelope.Source
	}
	out["entity_type"] = EntityType
	out["visualization"] = v.Visualization
	out["variable"] = v.Variable
	if v.MetaData != nil {
		out["metaData"] = v.MetaData
	}
	if v.Locale != "" {
		out["locale"] = v.Locale
	}
	return out
}

func (v *View) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Fields())
}

func (v *View) MarshalYAML() (any, error) {
	return v.Fields(), nil
}
