package route

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Name identifies a route.
type Name string

const (
	RouteNone          Name = ""
	RouteIndex         Name = "index"
	RouteVisualization Name = "industry.visualization"
)

// LoadFunc loads the model of the visualization route.
type LoadFunc func(ctx context.Context, p Params) (*View, error)

// Session tracks the active route and the controllers of one client.
type Session struct {
	ID string

	mu       sync.Mutex
	toggles  Toggles
	active   Name
	params   Params
	view     *View
	vis      VisualizationController
	index    IndexController
	lastSeen atomic.Int64
}

func newSession(id string, t Toggles, now time.Time) *Session {
	s := &Session{
		ID:      id,
		toggles: t,
		vis:     NewVisualizationController(t),
	}
	s.touch(now)
	return s
}

// Active returns the current route.
func (s *Session) Active() Name {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// exit resets the active route's controller before a transition to next.
// A visualization to visualization transition keeps the route entered and
// resets with isExiting false.
func (s *Session) exit(next Name) {
	switch s.active {
	case RouteIndex:
		s.index.Reset(next != RouteIndex)
	case RouteVisualization:
		s.vis.Reset(next != RouteVisualization, s.toggles)
		if next != RouteVisualization {
			s.view = nil
			s.params = Params{}
		}
	}
}

// EnterIndex transitions to the index route and returns its controller.
func (s *Session) EnterIndex() IndexController {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != RouteIndex {
		s.exit(RouteIndex)
		s.index.Setup()
		s.active = RouteIndex
	}
	return s.index
}

// EnterVisualization transitions to the visualization route for p. When p
// matches the active route only the query is applied and the cached view is
// returned. Otherwise load runs first; if it fails the session is left on
// its current route.
func (s *Session) EnterVisualization(ctx context.Context, p Params, q QueryParams, load LoadFunc) (*View, VisualizationController, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active == RouteVisualization && s.params == p && s.view != nil {
		s.vis.ApplyQuery(q)
		return s.view, s.vis, nil
	}

	view, err := load(ctx, p)
	if err != nil {
		return nil, s.vis, err
	}

	s.exit(RouteVisualization)
	s.vis.ApplyQuery(q)
	s.vis.Setup()
	s.active = RouteVisualization
	s.params = p
	s.view = view
	return view, s.vis, nil
}

// Apply merges client edits into the active route's controller.
func (s *Session) Apply(p Patch) (any, Name) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.active {
	case RouteVisualization:
		if p.Variable != nil {
			v := *p.Variable
			s.vis.Variable = &v
		}
		if p.DrawerChangeGraphIsOpen != nil {
			s.vis.DrawerChangeGraphIsOpen = *p.DrawerChangeGraphIsOpen
		}
		if p.DrawerQuestionsIsOpen != nil {
			s.vis.DrawerQuestionsIsOpen = *p.DrawerQuestionsIsOpen
		}
		return s.vis, s.active
	case RouteIndex:
		if p.Query != nil {
			q := *p.Query
			s.index.Query = &q
		}
		return s.index, s.active
	default:
		return nil, s.active
	}
}

// Sessions is a registry of client sessions with idle expiry.
type Sessions struct {
	mu      sync.Mutex
	ttl     time.Duration
	toggles Toggles
	m       map[string]*Session
	now     func() time.Time
}

// NewSessions creates a registry whose sessions expire after ttl without use.
func NewSessions(ttl time.Duration, t Toggles) *Sessions {
	return &Sessions{
		ttl:     ttl,
		toggles: t,
		m:       make(map[string]*Session),
		now:     time.Now,
	}
}

// Get returns the session for id. Unknown, expired or malformed ids get a
// new session with a fresh id; created reports that case.
func (r *Sessions) Get(id string) (s *Session, created bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if _, err := uuid.Parse(id); err == nil {
		if s, ok := r.m[id]; ok && !r.expired(s, now) {
			s.touch(now)
			return s, false
		}
	}
	s = newSession(uuid.NewString(), r.toggles, now)
	r.m[s.ID] = s
	return s, true
}

// Len returns the number of live sessions.
func (r *Sessions) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.m)
}

// Sweep removes expired sessions and returns how many were removed.
func (r *Sessions) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	n := 0
	for id, s := range r.m {
		if r.expired(s, now) {
			delete(r.m, id)
			n++
		}
	}
	return n
}

// Run sweeps expired sessions every half TTL until ctx is done.
func (r *Sessions) Run(ctx context.Context) {
	t := time.NewTicker(max(r.ttl/2, time.Second))
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := r.Sweep(); n > 0 {
				zap.L().Debug("route: expired sessions", zap.Int("count", n))
			}
		}
	}
}

func (r *Sessions) expired(s *Session, now time.Time) bool {
	if r.ttl <= 0 {
		return false
	}
	return now.Sub(time.Unix(0, s.lastSeen.Load())) > r.ttl
}

// touch records use without taking s.mu, which is held across loads.
func (s *Session) touch(now time.Time) {
	s.lastSeen.Store(now.UnixNano())
}
