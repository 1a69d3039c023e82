// Package server exposes the visualization and index routes over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/sells-group/industry-viz/internal/loader"
	"github.com/sells-group/industry-viz/internal/model"
	"github.com/sells-group/industry-viz/internal/route"
)

// SessionHeader carries the client session id in both directions.
const SessionHeader = "X-Session-ID"

// Loader runs a visualization load.
type Loader interface {
	Load(ctx context.Context, req loader.Request, tables model.Tables) (*model.Envelope, error)
}

// TablesProvider returns the metadata tables.
type TablesProvider interface {
	Tables(ctx context.Context) (*model.Tables, error)
}

// Options configures the HTTP surface.
type Options struct {
	AllowedOrigins []string
}

// Server routes HTTP requests to client sessions.
type Server struct {
	loader   Loader
	meta     TablesProvider
	sessions *route.Sessions
	router   chi.Router
}

var locales = language.NewMatcher([]language.Tag{language.English, language.Spanish})

type sessionKey struct{}

// New builds the server and its router.
func New(l Loader, meta TablesProvider, sessions *route.Sessions, opts Options) *Server {
	s := &Server{loader: l, meta: meta, sessions: sessions}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Accept-Language", "Content-Type", SessionHeader},
		ExposedHeaders: []string{SessionHeader},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Group(func(r chi.Router) {
		r.Use(s.withSession)
		r.Get("/", s.handleIndex)
		r.Get("/industry/{industry_id}/{visualization_type}/{source_type}/{variable}", s.handleVisualization)
		r.Patch("/session", s.handlePatch)
	})

	s.router = r
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) withSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, created := s.sessions.Get(r.Header.Get(SessionHeader))
		if created {
			zap.L().Debug("server: new session", zap.String("session_id", sess.ID))
		}
		w.Header().Set(SessionHeader, sess.ID)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, sess)))
	})
}

func sessionFrom(r *http.Request) *route.Session {
	return r.Context().Value(sessionKey{}).(*route.Session)
}

// localeFor picks en or es from the locale query parameter, then
// Accept-Language.
func localeFor(r *http.Request) string {
	tag, _ := language.MatchStrings(locales, r.URL.Query().Get("locale"), r.Header.Get("Accept-Language"))
	base, _ := tag.Base()
	return base.String()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctrl := sessionFrom(r).EnterIndex()
	writeJSON(w, http.StatusOK, map[string]any{
		"route":      route.RouteIndex,
		"controller": ctrl,
	})
}

func (s *Server) handleVisualization(w http.ResponseWriter, r *http.Request) {
	params, err := route.ParseParams(
		chi.URLParam(r, "industry_id"),
		chi.URLParam(r, "visualization_type"),
		chi.URLParam(r, "source_type"),
		chi.URLParam(r, "variable"),
	)
	if err != nil {
		writeError(w, r, err)
		return
	}
	query, err := route.ParseQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}

	view, ctrl, err := sessionFrom(r).EnterVisualization(r.Context(), params, query, s.load)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"route":      route.RouteVisualization,
		"model":      view.WithLocale(localeFor(r)),
		"controller": ctrl,
	})
}

func (s *Server) load(ctx context.Context, p route.Params) (*route.View, error) {
	tables, err := s.meta.Tables(ctx)
	if err != nil {
		return nil, WithCode(http.StatusServiceUnavailable, err)
	}
	env, err := s.loader.Load(ctx, loader.Request{
		IndustryID: p.IndustryID,
		SourceType: p.SourceType,
		Variable:   p.Variable,
	}, *tables)
	if err != nil {
		return nil, err
	}
	return route.NewView(env, p, tables), nil
}

func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request) {
	var patch route.Patch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, r, WithCode(http.StatusBadRequest, eris.Wrap(err, "decode patch")))
		return
	}
	ctrl, active := sessionFrom(r).Apply(patch)
	if active == route.RouteNone {
		writeError(w, r, WithCode(http.StatusConflict, eris.New("session has no active route")))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"route":      active,
		"controller": ctrl,
	})
}

// requestLogger logs each request through zap.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			zap.L().Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		}()
		next.ServeHTTP(ww, r)
	})
}
