// Package api exposes the concorsi service over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/concoro-it/concoro/concorsi"
	"github.com/concoro-it/concoro/internal/logging"
	"github.com/concoro-it/concoro/internal/metrics"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// maxBodyBytes bounds write request bodies.
const maxBodyBytes = 1 << 20

// ConcorsiService is the subset of *concorsi.Service the API serves.
type ConcorsiService interface {
	GetFilteredConcorsi(ctx context.Context, req concorsi.FilterRequest) (concorsi.QueryResult, error)
	GetConcorsiByEnte(ctx context.Context, ente string, opts concorsi.FilterRequest) (concorsi.QueryResult, error)
	GetConcorsiByRegion(ctx context.Context, region string, opts concorsi.FilterRequest) (concorsi.QueryResult, error)
	GetConcorsoByID(ctx context.Context, id string) (concorsi.Concorso, error)
	SaveConcorso(ctx context.Context, c concorsi.Concorso) (concorsi.Concorso, error)
	DeleteConcorso(ctx context.Context, id string) error
	GetFilterOptions(ctx context.Context, field concorsi.Field, base concorsi.FilterRequest) ([]string, error)
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics records request metrics and serves /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// Server routes HTTP requests to a ConcorsiService.
type Server struct {
	service ConcorsiService
	logger  logging.Logger
	metrics *metrics.Metrics
	mux     *http.ServeMux
}

// NewServer creates a Server and registers its routes.
func NewServer(service ConcorsiService, opts ...Option) *Server {
	s := &Server{service: service, mux: http.NewServeMux()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.OrNop(s.logger).With("component", "api")
	s.routes()
	return s
}

func (s *Server) routes() {
	s.handle("GET /healthz", s.handleHealth)
	s.handle("GET /api/concorsi", s.handleList)
	s.handle("POST /api/concorsi", s.handleCreate)
	s.handle("GET /api/concorsi/{id}", s.handleGet)
	s.handle("PUT /api/concorsi/{id}", s.handleUpdate)
	s.handle("DELETE /api/concorsi/{id}", s.handleDelete)
	s.handle("GET /api/enti/{ente}/concorsi", s.handleByEnte)
	s.handle("GET /api/regioni/{regione}/concorsi", s.handleByRegion)
	s.handle("GET /api/filter-options/{field}", s.handleFilterOptions)

	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}
}

func (s *Server) handle(pattern string, fn http.HandlerFunc) {
	var h http.Handler = fn
	if s.metrics != nil {
		route := pattern[strings.IndexByte(pattern, ' ')+1:]
		h = s.metrics.Middleware(route, h)
	}
	s.mux.Handle(pattern, h)
}

// ServeHTTP implements http.Handler. Every response carries a request id,
// taken from the request when present.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := r.Header.Get(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set(RequestIDHeader, id)

	start := time.Now()
	s.mux.ServeHTTP(w, r)
	s.logger.Debug("request served", "method", r.Method, "path", r.URL.Path, "request_id", id, "duration", time.Since(start))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	req, err := concorsi.ParseQuery(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	result, err := s.service.GetFilteredConcorsi(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleByEnte(w http.ResponseWriter, r *http.Request) {
	req, err := concorsi.ParseQuery(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	result, err := s.service.GetConcorsiByEnte(r.Context(), r.PathValue("ente"), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleByRegion(w http.ResponseWriter, r *http.Request) {
	req, err := concorsi.ParseQuery(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	result, err := s.service.GetConcorsiByRegion(r.Context(), r.PathValue("regione"), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	c, err := s.service.GetConcorsoByID(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var c concorsi.Concorso
	if !s.decodeBody(w, r, &c) {
		return
	}
	saved, err := s.service.SaveConcorso(r.Context(), c)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/concorsi/"+saved.ID)
	writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var c concorsi.Concorso
	if !s.decodeBody(w, r, &c) {
		return
	}
	c.ID = r.PathValue("id")
	saved, err := s.service.SaveConcorso(r.Context(), c)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteConcorso(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// optionFields maps path segments, Italian plurals included, to fields.
var optionFields = map[string]concorsi.Field{
	"region":  concorsi.FieldRegion,
	"regioni": concorsi.FieldRegion,
	"sector":  concorsi.FieldSector,
	"settori": concorsi.FieldSector,
	"ente":    concorsi.FieldEnte,
	"enti":    concorsi.FieldEnte,
	"regime":  concorsi.FieldRegime,
	"regimi":  concorsi.FieldRegime,
}

func (s *Server) handleFilterOptions(w http.ResponseWriter, r *http.Request) {
	field, ok := optionFields[strings.ToLower(r.PathValue("field"))]
	if !ok {
		s.writeError(w, r, &concorsi.FilterError{Field: "field", Message: "must be one of region, sector, ente, regime"})
		return
	}
	base, err := concorsi.ParseQuery(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	values, err := s.service.GetFilterOptions(r.Context(), field, base)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"field": field, "values": values})
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, dest any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dest); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// writeError maps service errors to status codes. Transient failures carry
// Retry-After.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, concorsi.ErrInvalidFilterCombination),
		errors.Is(err, concorsi.ErrInvalidFilter),
		errors.Is(err, concorsi.ErrInvalidCursor):
		status = http.StatusBadRequest
	case errors.Is(err, concorsi.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, concorsi.ErrQueryTimeout):
		status = http.StatusGatewayTimeout
	case errors.Is(err, concorsi.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", strconv.Itoa(5))
	case errors.Is(err, context.Canceled):
		// client went away
		return
	}

	body := errorBody{Error: err.Error()}
	var filterErr *concorsi.FilterError
	if errors.As(err, &filterErr) {
		body.Field = filterErr.Field
	}

	if status >= http.StatusInternalServerError {
		s.logger.Warn("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", w.Header().Get(RequestIDHeader),
			"status", status,
			"error", err,
		)
		if status == http.StatusInternalServerError {
			body.Error = "internal error"
		}
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
