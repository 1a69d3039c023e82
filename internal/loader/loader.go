// Package loader fetches the collections a visualization needs, enriches them
// and returns the unified envelope.
package loader

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/industry-viz/internal/enrich"
	"github.com/sells-group/industry-viz/internal/model"
	"github.com/sells-group/industry-viz/pkg/datlas"
)

// Request identifies one visualization load.
type Request struct {
	IndustryID string
	SourceType model.SourceType
	// Variable does not affect what is fetched; it is carried to the view.
	Variable string
}

// DependencyFetchError reports an upstream fetch that failed a load.
type DependencyFetchError struct {
	Resource   string
	IndustryID string
	Err        error
}

func (e *DependencyFetchError) Error() string {
	return fmt.Sprintf("loader: fetch %s for industry %s: %v", e.Resource, e.IndustryID, e.Err)
}

func (e *DependencyFetchError) Unwrap() error { return e.Err }

// ErrEmptyIndustryID is returned when a request has no industry id.
var ErrEmptyIndustryID = eris.New("industry id is required")

// Resource names used in DependencyFetchError.
const (
	ResourceEntity      = "entity"
	ResourceDepartments = "participants?level=department"
	ResourceCities      = "participants?level=msa"
	ResourceOccupations = "occupations?level=minor_group"
)

// Loader runs visualization loads against a data API client.
type Loader struct {
	client datlas.Client
	opts   enrich.Options
}

// New creates a Loader. opts are passed to every enrichment.
func New(client datlas.Client, opts enrich.Options) *Loader {
	return &Loader{client: client, opts: opts}
}

// Load fetches the entity and the collections for req.SourceType
// concurrently, waits for all of them, then enriches against tables. The
// first failed fetch cancels the others and fails the load.
func (l *Loader) Load(ctx context.Context, req Request, tables model.Tables) (*model.Envelope, error) {
	if req.IndustryID == "" {
		return nil, ErrEmptyIndustryID
	}
	if _, err := model.ParseSourceType(string(req.SourceType)); err != nil {
		return nil, err
	}

	start := time.Now()
	log := zap.L().With(
		zap.String("industry_id", req.IndustryID),
		zap.String("source_type", string(req.SourceType)),
		zap.String("variable", req.Variable),
	)

	var (
		entity      *model.Industry
		departments []model.Record
		cities      []model.Record
		occupations []model.Record
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		entity, err = l.client.Industry(gctx, req.IndustryID)
		return l.fetchErr(ResourceEntity, req.IndustryID, err)
	})

	switch req.SourceType {
	case model.SourceDepartments:
		g.Go(func() error {
			var err error
			departments, err = l.client.Participants(gctx, req.IndustryID, datlas.LevelDepartment)
			return l.fetchErr(ResourceDepartments, req.IndustryID, err)
		})
		g.Go(func() error {
			var err error
			cities, err = l.client.Participants(gctx, req.IndustryID, datlas.LevelMSA)
			return l.fetchErr(ResourceCities, req.IndustryID, err)
		})
	case model.SourceCities:
		g.Go(func() error {
			var err error
			cities, err = l.client.Participants(gctx, req.IndustryID, datlas.LevelMSA)
			return l.fetchErr(ResourceCities, req.IndustryID, err)
		})
	case model.SourceOccupations:
		g.Go(func() error {
			var err error
			occupations, err = l.client.Occupations(gctx, req.IndustryID, datlas.LevelMinorGroup)
			return l.fetchErr(ResourceOccupations, req.IndustryID, err)
		})
	}

	if err := g.Wait(); err != nil {
		log.Warn("loader: fetch failed", zap.Error(err))
		return nil, err
	}

	env := &model.Envelope{Source: req.SourceType, Entity: entity}
	var err error
	switch req.SourceType {
	case model.SourceDepartments:
		if env.Data, err = enrich.Apply(enrich.Departments, departments, tables, l.opts); err != nil {
			return nil, eris.Wrap(err, "loader: enrich departments")
		}
		if env.Cities, err = enrich.Apply(enrich.DepartmentCities, cities, tables, l.opts); err != nil {
			return nil, eris.Wrap(err, "loader: enrich department cities")
		}
	case model.SourceCities:
		if env.Data, err = enrich.Apply(enrich.Cities, cities, tables, l.opts); err != nil {
			return nil, eris.Wrap(err, "loader: enrich cities")
		}
	case model.SourceOccupations:
		if env.Data, err = enrich.Apply(enrich.Occupations, occupations, tables, l.opts); err != nil {
			return nil, eris.Wrap(err, "loader: enrich occupations")
		}
	}

	log.Debug("loader: loaded",
		zap.Int("rows", len(env.Data)),
		zap.Int("cities", len(env.Cities)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return env, nil
}

func (l *Loader) fetchErr(resource, industryID string, err error) error {
	if err == nil {
		return nil
	}
	return &DependencyFetchError{Resource: resource, IndustryID: industryID, Err: err}
}
