package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/sells-group/industry-viz/internal/enrich"
	"github.com/sells-group/industry-viz/internal/loader"
	"github.com/sells-group/industry-viz/internal/model"
	"github.com/sells-group/industry-viz/internal/route"
)

// CodedError attaches an HTTP status to an error.
type CodedError struct {
	code int
	err  error
}

// WithCode wraps err with an HTTP status.
func WithCode(code int, err error) error {
	return &CodedError{code: code, err: err}
}

func (e *CodedError) Error() string { return e.err.Error() }
func (e *CodedError) Unwrap() error { return e.err }
func (e *CodedError) Code() int     { return e.code }

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Message string `json:"error"`
	Code    int    `json:"code"`
}

// statusFor walks the chain for a CodedError, then maps the domain errors.
func statusFor(err error) int {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if ce, ok := e.(*CodedError); ok {
			return ce.Code()
		}
	}

	var (
		dfe *loader.DependencyFetchError
		le  *enrich.LookupError
	)
	switch {
	case errors.Is(err, route.ErrInvalidParams),
		errors.Is(err, model.ErrInvalidSourceType),
		errors.Is(err, loader.ErrEmptyIndustryID):
		return http.StatusBadRequest
	case errors.As(err, &le):
		return http.StatusInternalServerError
	case errors.As(err, &dfe):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	log := zap.L().With(zap.String("path", r.URL.Path), zap.Int("status", code), zap.Error(err))
	if code >= http.StatusInternalServerError {
		log.Error("server: request failed")
	} else {
		log.Info("server: request rejected")
	}
	writeJSON(w, code, ErrorResponse{Message: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}
