package datlas

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/industry-viz/internal/fetcher"
	"github.com/sells-group/industry-viz/internal/model"
)

func newTestClient(t *testing.T, h http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(fetcher.NewHTTPFetcher(fetcher.HTTPOptions{RateLimit: 1000}), WithBaseURL(srv.URL+"/"))
}

func TestIndustry_Success(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/metadata/industries/5", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"id":5,"code":"0111","name_en":"Farming","name_short_es":"Agro","parent_id":1}}`))
	})

	ind, err := client.Industry(context.Background(), "5")
	require.NoError(t, err)
	assert.Equal(t, model.Key("5"), ind.ID)
	assert.Equal(t, "0111", ind.Code)
	assert.Equal(t, "Farming", ind.NameEN)
	assert.Equal(t, "Agro", ind.NameShortES)
	require.NotNil(t, ind.ParentID)
	assert.Equal(t, model.Key("1"), *ind.ParentID)
}

func TestIndustry_EmptyData(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":null}`))
	})

	_, err := client.Industry(context.Background(), "5")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty response")
}

func TestParticipants_Success(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/industry/5/participants", r.URL.Path)
		assert.Equal(t, "department", r.URL.Query().Get("level"))
		_, _ = w.Write([]byte(`{"data":[{"department_id":10,"wages":100,"employment":2,"year":2016}]}`))
	})

	rows, err := client.Participants(context.Background(), "5", LevelDepartment)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 10.0, rows[0]["department_id"])
	assert.Equal(t, 2016.0, rows[0]["year"])
}

func TestOccupations_Success(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/data/industry/5/occupations", r.URL.Path)
		assert.Equal(t, "minor_group", r.URL.Query().Get("level"))
		_, _ = w.Write([]byte(`{"data":[{"occupation_id":100,"num_vacancies":30},{"occupation_id":200,"num_vacancies":70}]}`))
	})

	rows, err := client.Occupations(context.Background(), "5", LevelMinorGroup)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 70.0, rows[1]["num_vacancies"])
}

func TestParticipants_ServerError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := client.Participants(context.Background(), "5", LevelMSA)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "participants 5 level=msa")

	var se *fetcher.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
}

func TestParticipants_MalformedJSON(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"msa_id":`))
	})

	_, err := client.Participants(context.Background(), "5", LevelMSA)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}

func TestMetadata_Changed(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/metadata/locations/", r.URL.Path)
		w.Header().Set("ETag", `"loc-2"`)
		_, _ = w.Write([]byte(`{"data":[{"id":1,"code":"05","name_short_en":"Antioquia"},{"id":77,"code":"05001","parent_id":1}]}`))
	})

	res, err := client.Metadata(context.Background(), model.TableLocations, `"loc-1"`)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, `"loc-2"`, res.ETag)
	require.Len(t, res.Table, 2)
	assert.Equal(t, "05001", res.Table["77"].Code)
}

func TestMetadata_NotModified(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, `"occ-1"`, r.Header.Get("If-None-Match"))
		w.WriteHeader(http.StatusNotModified)
	})

	res, err := client.Metadata(context.Background(), model.TableOccupations, `"occ-1"`)
	require.NoError(t, err)
	assert.False(t, res.Changed)
	assert.Nil(t, res.Table)
	assert.Equal(t, `"occ-1"`, res.ETag)
}

func TestWithBaseURL_TrimsSlash(t *testing.T) {
	c := NewClient(nil, WithBaseURL("http://api.local/v1//")).(*httpClient)
	assert.Equal(t, "http://api.local/v1", c.baseURL)
	assert.Equal(t, "http://api.local/v1/data/industry/a%2Fb/participants?level=msa", c.industryURL("a/b", "participants", LevelMSA))
}
