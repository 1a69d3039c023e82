// Package metadata provides the locations and occupations tables the
// enrichment step joins against. Tables come from the store snapshot when one
// exists and from the data API otherwise.
package metadata

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/industry-viz/internal/model"
	"github.com/sells-group/industry-viz/internal/store"
	"github.com/sells-group/industry-viz/pkg/datlas"
)

// Names lists the tables the provider manages, in load order.
var Names = []string{model.TableLocations, model.TableOccupations}

// Provider loads the metadata tables once per process.
type Provider struct {
	client datlas.Client
	store  store.Store // nil disables snapshots

	mu     sync.Mutex
	tables *model.Tables
}

// NewProvider creates a Provider. st may be nil.
func NewProvider(client datlas.Client, st store.Store) *Provider {
	return &Provider{client: client, store: st}
}

// SyncResult reports what Sync did for one table.
type SyncResult struct {
	Name    string `json:"name" yaml:"name"`
	ETag    string `json:"etag,omitempty" yaml:"etag,omitempty"`
	Changed bool   `json:"changed" yaml:"changed"`
	Entries int    `json:"entries" yaml:"entries"`
}

// Tables returns the metadata tables, loading them on first use. A failed
// load is not cached; the next call tries again. The returned tables must
// not be modified.
func (p *Provider) Tables(ctx context.Context) (*model.Tables, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.tables != nil {
		return p.tables, nil
	}

	var tables model.Tables
	for _, name := range Names {
		tbl, err := p.load(ctx, name)
		if err != nil {
			return nil, err
		}
		switch name {
		case model.TableLocations:
			tables.Locations = tbl
		case model.TableOccupations:
			tables.Occupations = tbl
		}
	}
	p.tables = &tables
	return p.tables, nil
}

func (p *Provider) load(ctx context.Context, name string) (model.Table, error) {
	if p.store != nil {
		snap, err := p.store.GetSnapshot(ctx, name)
		if err != nil {
			return nil, eris.Wrapf(err, "metadata: read snapshot %s", name)
		}
		if snap != nil {
			zap.L().Debug("metadata: loaded snapshot",
				zap.String("table", name),
				zap.Int("entries", snap.Entries),
				zap.Time("synced_at", snap.SyncedAt),
			)
			return snap.Table, nil
		}
	}

	res, err := p.client.Metadata(ctx, name, "")
	if err != nil {
		return nil, eris.Wrapf(err, "metadata: fetch %s", name)
	}
	if p.store != nil {
		if err := p.store.PutSnapshot(ctx, &store.Snapshot{Name: name, ETag: res.ETag, Table: res.Table}); err != nil {
			zap.L().Warn("metadata: save snapshot", zap.String("table", name), zap.Error(err))
		}
	}
	zap.L().Info("metadata: fetched table", zap.String("table", name), zap.Int("entries", len(res.Table)))
	return res.Table, nil
}

// Sync refreshes every stored snapshot with a conditional download. Tables
// whose ETag is unchanged are left alone. Loaded tables are replaced so the
// next Tables call sees the new data.
func (p *Provider) Sync(ctx context.Context) ([]SyncResult, error) {
	if p.store == nil {
		return nil, eris.New("metadata: sync requires a store")
	}

	results := make([]SyncResult, 0, len(Names))
	changed := false
	for _, name := range Names {
		snap, err := p.store.GetSnapshot(ctx, name)
		if err != nil {
			return results, eris.Wrapf(err, "metadata: read snapshot %s", name)
		}
		etag, entries := "", 0
		if snap != nil {
			etag, entries = snap.ETag, snap.Entries
		}

		res, err := p.client.Metadata(ctx, name, etag)
		if err != nil {
			return results, eris.Wrapf(err, "metadata: fetch %s", name)
		}
		if !res.Changed {
			results = append(results, SyncResult{Name: name, ETag: res.ETag, Entries: entries})
			continue
		}

		next := &store.Snapshot{Name: name, ETag: res.ETag, SyncedAt: time.Now().UTC(), Table: res.Table}
		if err := p.store.PutSnapshot(ctx, next); err != nil {
			return results, eris.Wrapf(err, "metadata: save snapshot %s", name)
		}
		changed = true
		results = append(results, SyncResult{Name: name, ETag: res.ETag, Changed: true, Entries: next.Entries})
	}

	if changed {
		p.mu.Lock()
		p.tables = nil
		p.mu.Unlock()
	}
	return results, nil
}
