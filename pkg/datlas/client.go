// Package datlas is a client for the upstream data API that serves industry
// entities, participant and occupation collections, and metadata tables.
package datlas

import (
	"context"
	"io"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/industry-viz/internal/fetcher"
	"github.com/sells-group/industry-viz/internal/model"
)

const defaultBaseURL = "https://datlas.example.org/api"

// Level selects the aggregation level of a collection.
type Level string

const (
	LevelDepartment Level = "department"
	LevelMSA        Level = "msa"
	LevelMinorGroup Level = "minor_group"
)

// Client performs data API operations.
type Client interface {
	// Industry returns the industry entity.
	Industry(ctx context.Context, id string) (*model.Industry, error)
	// Participants returns the industry's location rows at level.
	Participants(ctx context.Context, id string, level Level) ([]model.Record, error)
	// Occupations returns the industry's occupation rows at level.
	Occupations(ctx context.Context, id string, level Level) ([]model.Record, error)
	// Metadata downloads a metadata table unless etag is still current.
	Metadata(ctx context.Context, table string, etag string) (*MetadataResult, error)
}

// MetadataResult is a metadata table download. Table is nil when Changed is
// false.
type MetadataResult struct {
	Table   model.Table
	ETag    string
	Changed bool
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(u, "/")
	}
}

type httpClient struct {
	fetch   fetcher.Fetcher
	baseURL string
}

// NewClient creates a data API client that downloads through f.
func NewClient(f fetcher.Fetcher, opts ...Option) Client {
	c := &httpClient{
		fetch:   f,
		baseURL: defaultBaseURL,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// envelope is the {"data": ...} wrapper of every API response.
type envelope[T any] struct {
	Data T `json:"data"`
}

func get[T any](ctx context.Context, f fetcher.Fetcher, rawURL string) (T, error) {
	var zero T
	body, err := f.Download(ctx, rawURL)
	if err != nil {
		return zero, err
	}
	defer body.Close() //nolint:errcheck
	return decode[T](body)
}

func decode[T any](body io.Reader) (T, error) {
	env, err := fetcher.DecodeJSONObject[envelope[T]](body)
	if err != nil {
		var zero T
		return zero, err
	}
	return env.Data, nil
}

func (c *httpClient) industryURL(id, collection string, level Level) string {
	q := url.Values{"level": {string(level)}}
	return c.baseURL + "/data/industry/" + url.PathEscape(id) + "/" + collection + "?" + q.Encode()
}

func (c *httpClient) Industry(ctx context.Context, id string) (*model.Industry, error) {
	ind, err := get[*model.Industry](ctx, c.fetch, c.baseURL+"/metadata/industries/"+url.PathEscape(id))
	if err != nil {
		return nil, eris.Wrapf(err, "datlas: industry %s", id)
	}
	if ind == nil {
		return nil, eris.Errorf("datlas: industry %s: empty response", id)
	}
	return ind, nil
}

func (c *httpClient) Participants(ctx context.Context, id string, level Level) ([]model.Record, error) {
	rows, err := get[[]model.Record](ctx, c.fetch, c.industryURL(id, "participants", level))
	if err != nil {
		return nil, eris.Wrapf(err, "datlas: participants %s level=%s", id, level)
	}
	return rows, nil
}

func (c *httpClient) Occupations(ctx context.Context, id string, level Level) ([]model.Record, error) {
	rows, err := get[[]model.Record](ctx, c.fetch, c.industryURL(id, "occupations", level))
	if err != nil {
		return nil, eris.Wrapf(err, "datlas: occupations %s level=%s", id, level)
	}
	return rows, nil
}

func (c *httpClient) Metadata(ctx context.Context, table string, etag string) (*MetadataResult, error) {
	body, newETag, changed, err := c.fetch.DownloadIfChanged(ctx, c.baseURL+"/metadata/"+url.PathEscape(table)+"/", etag)
	if err != nil {
		return nil, eris.Wrapf(err, "datlas: metadata %s", table)
	}
	if !changed {
		return &MetadataResult{ETag: newETag}, nil
	}
	defer body.Close() //nolint:errcheck

	tbl, err := decode[model.Table](body)
	if err != nil {
		return nil, eris.Wrapf(err, "datlas: metadata %s", table)
	}
	if tbl == nil {
		tbl = model.Table{}
	}
	return &MetadataResult{Table: tbl, ETag: newETag, Changed: true}, nil
}
