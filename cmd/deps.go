package main

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/industry-viz/internal/config"
	"github.com/sells-group/industry-viz/internal/enrich"
	"github.com/sells-group/industry-viz/internal/fetcher"
	"github.com/sells-group/industry-viz/internal/loader"
	"github.com/sells-group/industry-viz/internal/metadata"
	"github.com/sells-group/industry-viz/internal/resilience"
	"github.com/sells-group/industry-viz/internal/store"
	"github.com/sells-group/industry-viz/pkg/datlas"
)

// initStore opens the configured snapshot store. The "none" driver returns
// a nil store; the metadata provider then always reads from the API.
func initStore(ctx context.Context, c config.StoreConfig) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch c.Driver {
	case "none":
		return nil, nil
	case "sqlite":
		path := c.SQLitePath
		if c.DatabaseURL != "" {
			path = c.DatabaseURL
		}
		st, err = store.NewSQLite(path)
	case "postgres":
		st, err = store.NewPostgres(ctx, c.DatabaseURL, nil)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func newFetcher(c config.APIConfig) *fetcher.HTTPFetcher {
	opts := fetcher.HTTPOptions{
		UserAgent:   c.UserAgent,
		Timeout:     c.Timeout(),
		MaxAttempts: c.MaxAttempts,
		RateLimit:   rate.Limit(c.RateLimit),
	}
	if c.BreakerThreshold > 0 {
		opts.Breakers = resilience.NewBreakers(resilience.Config{
			Threshold: c.BreakerThreshold,
			Cooldown:  c.BreakerCooldown(),
			Trips:     fetcher.TripsBreaker,
		})
	}
	return fetcher.NewHTTPFetcher(opts)
}

func newClient(c config.APIConfig) datlas.Client {
	return datlas.NewClient(newFetcher(c), datlas.WithBaseURL(c.BaseURL))
}

// appEnv holds the components shared by the serve and load commands.
type appEnv struct {
	Client   datlas.Client
	Store    store.Store
	Metadata *metadata.Provider
	Loader   *loader.Loader
}

// Close releases the store, if any.
func (e *appEnv) Close() {
	if e.Store != nil {
		e.Store.Close() //nolint:errcheck
	}
}

func initEnv(ctx context.Context, c *config.Config) (*appEnv, error) {
	st, err := initStore(ctx, c.Store)
	if err != nil {
		return nil, err
	}
	client := newClient(c.API)
	return &appEnv{
		Client:   client,
		Store:    st,
		Metadata: metadata.NewProvider(client, st),
		Loader:   loader.New(client, enrich.Options{OccupationYear: c.Features.OccupationLastYear}),
	}, nil
}
