package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/industry-viz/internal/enrich"
	"github.com/sells-group/industry-viz/internal/loader"
	"github.com/sells-group/industry-viz/internal/model"
	"github.com/sells-group/industry-viz/internal/route"
)

type fakeLoader struct {
	calls atomic.Int32
	err   error
}

func (f *fakeLoader) Load(_ context.Context, req loader.Request, tables model.Tables) (*model.Envelope, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	env := &model.Envelope{
		Source: req.SourceType,
		Entity: &model.Industry{ID: model.Key(req.IndustryID), Code: "0111"},
		Data:   []model.Record{{"id": 10.0, "avg_wage": 50.0, "tables": len(tables.Locations)}},
	}
	return env, nil
}

type fakeTables struct {
	err error
}

func (f *fakeTables) Tables(context.Context) (*model.Tables, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &model.Tables{Locations: model.Table{"10": {ID: "10"}}, Occupations: model.Table{}}, nil
}

func newTestServer(t *testing.T, l Loader, meta TablesProvider) *httptest.Server {
	t.Helper()
	sessions := route.NewSessions(time.Hour, route.Toggles{FirstYear: 2008, LastYear: 2016})
	srv := httptest.NewServer(New(l, meta, sessions, Options{AllowedOrigins: []string{"http://localhost:4200"}}).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, method, url, session string, body string, header ...string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if session != "" {
		req.Header.Set(SessionHeader, session)
	}
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &fakeLoader{}, &fakeTables{})

	resp, body := do(t, http.MethodGet, srv.URL+"/health", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestVisualization_Success(t *testing.T) {
	l := &fakeLoader{}
	srv := newTestServer(t, l, &fakeTables{})

	resp, body := do(t, http.MethodGet, srv.URL+"/industry/5/treemap/departments/wages?startDate=2010&search=cafe", "", "",
		"Accept-Language", "es-CO,es;q=0.9")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(SessionHeader))

	m := body["model"].(map[string]any)
	assert.Equal(t, "industry", m["entity_type"])
	assert.Equal(t, "treemap", m["visualization"])
	assert.Equal(t, "departments", m["source"])
	assert.Equal(t, "wages", m["variable"])
	assert.Equal(t, "es", m["locale"])
	assert.Contains(t, m, "cities")
	assert.Contains(t, m, "metaData")

	c := body["controller"].(map[string]any)
	assert.Equal(t, 2010.0, c["startDate"])
	assert.Equal(t, 2016.0, c["endDate"])
	assert.Equal(t, "cafe", c["searchText"])
	assert.Equal(t, false, c["drawerQuestionsIsOpen"])
}

func TestVisualization_QueryChangeReusesModel(t *testing.T) {
	l := &fakeLoader{}
	srv := newTestServer(t, l, &fakeTables{})

	resp, _ := do(t, http.MethodGet, srv.URL+"/industry/5/treemap/cities/wages", "", "")
	session := resp.Header.Get(SessionHeader)

	resp, body := do(t, http.MethodGet, srv.URL+"/industry/5/treemap/cities/wages?endDate=2012&locale=en", session, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, session, resp.Header.Get(SessionHeader))
	assert.Equal(t, int32(1), l.calls.Load())
	assert.Equal(t, 2012.0, body["controller"].(map[string]any)["endDate"])
	assert.Equal(t, "en", body["model"].(map[string]any)["locale"])
	assert.NotContains(t, body["model"], "cities")
}

func TestIndex_ResetsVisualization(t *testing.T) {
	srv := newTestServer(t, &fakeLoader{}, &fakeTables{})

	resp, _ := do(t, http.MethodGet, srv.URL+"/industry/5/treemap/occupations/num_vacancies?startDate=2011", "", "")
	session := resp.Header.Get(SessionHeader)

	resp, body := do(t, http.MethodPatch, srv.URL+"/session", session, `{"variable":"wages","drawerChangeGraphIsOpen":true}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "wages", body["controller"].(map[string]any)["variable"])
	assert.Equal(t, true, body["controller"].(map[string]any)["drawerChangeGraphIsOpen"])

	resp, body = do(t, http.MethodGet, srv.URL+"/", session, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "index", body["route"])
	assert.Nil(t, body["controller"].(map[string]any)["query"])

	_, body = do(t, http.MethodGet, srv.URL+"/industry/5/treemap/occupations/num_vacancies", session, "")
	c := body["controller"].(map[string]any)
	assert.Nil(t, c["variable"])
	assert.Equal(t, 2008.0, c["startDate"])
	assert.Equal(t, false, c["drawerChangeGraphIsOpen"])
}

func TestPatch_NoActiveRoute(t *testing.T) {
	srv := newTestServer(t, &fakeLoader{}, &fakeTables{})

	resp, body := do(t, http.MethodPatch, srv.URL+"/session", "", `{"query":"x"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, 409.0, body["code"])
}

func TestPatch_BadBody(t *testing.T) {
	srv := newTestServer(t, &fakeLoader{}, &fakeTables{})

	resp, _ := do(t, http.MethodPatch, srv.URL+"/session", "", `{`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestVisualization_Errors(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		loader *fakeLoader
		tables *fakeTables
		want   int
	}{
		{"invalid source", "/industry/5/treemap/products/wages", &fakeLoader{}, &fakeTables{}, http.StatusBadRequest},
		{"invalid query", "/industry/5/treemap/cities/wages?startDate=soon", &fakeLoader{}, &fakeTables{}, http.StatusBadRequest},
		{"fetch failure", "/industry/5/treemap/cities/wages",
			&fakeLoader{err: &loader.DependencyFetchError{Resource: loader.ResourceCities, IndustryID: "5", Err: errors.New("503")}},
			&fakeTables{}, http.StatusBadGateway},
		{"missing metadata", "/industry/5/treemap/cities/wages",
			&fakeLoader{err: eris.Wrap(&enrich.LookupError{Table: "locations", Field: "msa_id", Key: "9"}, "loader: enrich cities")},
			&fakeTables{}, http.StatusInternalServerError},
		{"metadata unavailable", "/industry/5/treemap/cities/wages", &fakeLoader{}, &fakeTables{err: errors.New("down")}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.loader, tt.tables)
			resp, body := do(t, http.MethodGet, srv.URL+tt.path, "", "")
			assert.Equal(t, tt.want, resp.StatusCode)
			assert.Equal(t, float64(tt.want), body["code"])
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestStatusFor_CodedErrorInChain(t *testing.T) {
	err := eris.Wrap(WithCode(http.StatusTeapot, errors.New("brew")), "outer")
	assert.Equal(t, http.StatusTeapot, statusFor(err))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("plain")))
}

func TestCORS_Preflight(t *testing.T) {
	srv := newTestServer(t, &fakeLoader{}, &fakeTables{})

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/industry/5/treemap/cities/wages", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:4200")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "http://localhost:4200", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestLocaleFor(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?locale=es", nil)
	assert.Equal(t, "es", localeFor(r))

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Accept-Language", "fr-FR")
	assert.Equal(t, "en", localeFor(r))
}
