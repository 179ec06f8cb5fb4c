// Package api exposes the orchestrator over HTTP.
//
// Every response is wrapped in an [Envelope]. Create blocks until the
// forward workflow finishes; teardown requests return as soon as the spoke
// id is queued.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/imamik/hubspoke/internal/addressing"
	"github.com/imamik/hubspoke/internal/provisioning"
	"github.com/imamik/hubspoke/internal/provisioning/rollback"
	"github.com/imamik/hubspoke/internal/spoke"
	"github.com/imamik/hubspoke/internal/store"
)

// Spokes is the caller-facing surface of the orchestrator.
type Spokes interface {
	Create(ctx context.Context, cfg spoke.Configuration) (*spoke.Deployment, error)
	Status(ctx context.Context, spokeID int) (*provisioning.SpokeStatus, error)
	List(ctx context.Context, filter provisioning.ListFilter) ([]*spoke.Deployment, error)
	Stats(ctx context.Context) (store.Stats, error)
	Delete(ctx context.Context, spokeID int) (*spoke.Deployment, error)
	Purge(ctx context.Context, spokeID int) error
}

var _ Spokes = (*provisioning.Orchestrator)(nil)

// maxBodyBytes caps the create request body.
const maxBodyBytes = 1 << 20

// Envelope wraps every response body.
type Envelope struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Count   *int       `json:"count,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// ErrorBody describes a failed request.
type ErrorBody struct {
	Message        string             `json:"message"`
	Fields         []spoke.FieldError `json:"fields,omitempty"`
	FailedStep     spoke.StepName     `json:"failed_step,omitempty"`
	RollbackQueued bool               `json:"rollback_queued,omitempty"`
}

// Server holds the HTTP handlers.
type Server struct {
	spokes Spokes
	log    logr.Logger
}

// NewServer returns a server backed by spokes.
func NewServer(spokes Spokes, log logr.Logger) *Server {
	return &Server{spokes: spokes, log: log}
}

// Router returns the route table. The stats route is registered before the
// id route so "stats" is never parsed as an id.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/api/v1/spokes", s.handleCreate).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/spokes", s.handleList).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/spokes/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/spokes/{id}", s.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/spokes/{id}", s.handleDelete).Methods(http.MethodDelete)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, &ErrorBody{Message: "resource not found"})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, &ErrorBody{Message: "method not allowed"})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: map[string]string{"status": "ok"}})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req spoke.Configuration
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, &ErrorBody{Message: fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	d, err := s.spokes.Create(r.Context(), req)
	if err == nil {
		writeJSON(w, http.StatusCreated, Envelope{Success: true, Data: d})
		return
	}

	var derr *provisioning.DeploymentError
	if errors.As(err, &derr) {
		s.log.Info("deployment failed", "spoke_id", derr.SpokeID, "step", string(derr.Step), "error", derr.Err.Error())
		writeJSON(w, http.StatusInternalServerError, Envelope{
			Data: d,
			Error: &ErrorBody{
				Message:        err.Error(),
				FailedStep:     derr.Step,
				RollbackQueued: derr.RollbackQueued,
			},
		})
		return
	}
	s.fail(w, err)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := provisioning.ListFilter{Status: spoke.Status(q.Get("status"))}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, &ErrorBody{Message: fmt.Sprintf("invalid limit %q", raw)})
			return
		}
		filter.Limit = limit
	}

	ds, err := s.spokes.List(r.Context(), filter)
	if err != nil {
		s.fail(w, err)
		return
	}
	n := len(ds)
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: ds, Count: &n})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.spokes.Stats(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: stats})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := spokeID(w, r)
	if !ok {
		return
	}
	st, err := s.spokes.Status(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Envelope{Success: true, Data: st})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := spokeID(w, r)
	if !ok {
		return
	}

	if purge, _ := strconv.ParseBool(r.URL.Query().Get("purge")); purge {
		if err := s.spokes.Purge(r.Context(), id); err != nil {
			s.fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, Envelope{Success: true, Data: map[string]any{"spoke_id": id, "purged": true}})
		return
	}

	d, err := s.spokes.Delete(r.Context(), id)
	if err != nil {
		s.fail(w, err)
		return
	}
	code := http.StatusAccepted
	if d.Status == spoke.StatusRolledBack {
		code = http.StatusOK
	}
	writeJSON(w, code, Envelope{Success: true, Data: d})
}

// spokeID parses the {id} path variable and writes a 400 when it is not a
// valid spoke id.
func spokeID(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.Atoi(raw)
	if err != nil || id < addressing.MinSpokeID || id > addressing.MaxSpokeID {
		writeError(w, http.StatusBadRequest, &ErrorBody{
			Message: fmt.Sprintf("spoke id must be an integer between %d and %d, got %q", addressing.MinSpokeID, addressing.MaxSpokeID, raw),
		})
		return 0, false
	}
	return id, true
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	code := StatusCode(err)
	body := &ErrorBody{Message: err.Error()}
	var verr *spoke.ValidationError
	if errors.As(err, &verr) {
		body.Fields = verr.Errors
	}
	if code >= http.StatusInternalServerError {
		s.log.Error(err, "request failed", "status", code)
	}
	writeError(w, code, body)
}

// StatusCode maps an orchestrator error to an HTTP status.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, spoke.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, spoke.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, spoke.ErrConflict), errors.Is(err, spoke.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, spoke.ErrCapacity):
		return http.StatusTooManyRequests
	case errors.Is(err, rollback.ErrQueueStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, spoke.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, body *ErrorBody) {
	writeJSON(w, status, Envelope{Error: body})
}

// statusRecorder remembers the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.V(1).Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start).String(),
		)
	})
}
