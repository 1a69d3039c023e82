// Package route models the visualization and index routes: parameter
// parsing, controller setup and reset on transitions, per-client sessions and
// the view handed to the presentation layer.
package route

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/industry-viz/internal/model"
)

// ErrInvalidParams is returned for missing or malformed route or query
// parameters.
var ErrInvalidParams = eris.New("invalid route parameters")

// Params are the dynamic segments of the visualization route. A change in
// any of them reloads the model.
type Params struct {
	IndustryID        string
	VisualizationType string
	SourceType        model.SourceType
	Variable          string
}

// ParseParams validates the visualization route segments.
func ParseParams(industryID, visualizationType, sourceType, variable string) (Params, error) {
	industryID = strings.TrimSpace(industryID)
	if industryID == "" {
		return Params{}, eris.Wrap(ErrInvalidParams, "industry_id is required")
	}
	if strings.TrimSpace(visualizationType) == "" {
		return Params{}, eris.Wrap(ErrInvalidParams, "visualization_type is required")
	}
	st, err := model.ParseSourceType(sourceType)
	if err != nil {
		return Params{}, err
	}
	return Params{
		IndustryID:        industryID,
		VisualizationType: visualizationType,
		SourceType:        st,
		Variable:          variable,
	}, nil
}

// QueryParams are the visualization query parameters. They are read by the
// view only and never reload the model. Nil fields were absent from the URL.
type QueryParams struct {
	StartDate *int
	EndDate   *int
	Search    *string
	ToolTips  *bool
}

// ParseQuery reads startDate, endDate, search and toolTips from v.
func ParseQuery(v url.Values) (QueryParams, error) {
	var q QueryParams
	for _, f := range []struct {
		name string
		dst  **int
	}{
		{"startDate", &q.StartDate},
		{"endDate", &q.EndDate},
	} {
		if !v.Has(f.name) {
			continue
		}
		n, err := strconv.Atoi(v.Get(f.name))
		if err != nil {
			return QueryParams{}, eris.Wrapf(ErrInvalidParams, "%s must be a year, got %q", f.name, v.Get(f.name))
		}
		*f.dst = &n
	}
	if v.Has("search") {
		s := v.Get("search")
		q.Search = &s
	}
	if v.Has("toolTips") {
		b, err := strconv.ParseBool(v.Get("toolTips"))
		if err != nil {
			return QueryParams{}, eris.Wrapf(ErrInvalidParams, "toolTips must be a boolean, got %q", v.Get("toolTips"))
		}
		q.ToolTips = &b
	}
	return q, nil
}

// Toggles are the feature-toggle values the routes read.
type Toggles struct {
	FirstYear int
	LastYear  int
}
