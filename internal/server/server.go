package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazz-dev/uptimebot/internal/control"
	"github.com/hazz-dev/uptimebot/internal/metrics"
	"github.com/hazz-dev/uptimebot/internal/storage"
)

// UserHeader carries the caller's user id on every authenticated request.
const UserHeader = "X-User-ID"

// HistoryStore defines the storage queries the server needs beyond the
// control surface.
type HistoryStore interface {
	Ping(ctx context.Context) error
	ServiceHistory(ctx context.Context, serviceID string, limit, offset int) ([]storage.Check, int, error)
	UptimePercent(ctx context.Context, serviceID string, last int) (float64, error)
}

// Server holds the chi router and its dependencies.
type Server struct {
	control *control.Service
	store   HistoryStore
	metrics *metrics.Metrics
	router  chi.Router
	logger  *slog.Logger
}

// New creates a new Server and registers all routes. m may be nil, in
// which case /metrics is not served.
func New(ctl *control.Service, store HistoryStore, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		control: ctl,
		store:   store,
		metrics: m,
		router:  chi.NewRouter(),
		logger:  logger,
	}
	s.registerRoutes()
	return s
}

// Router returns the chi router (for mounting or testing).
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/api/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Group(func(r chi.Router) {
		r.Use(identify)

		r.Get("/api/services", s.handleStatus)
		r.Post("/api/services", s.handleAdd)
		r.Get("/api/services/all", s.handleListAll)
		r.Delete("/api/services/{name}", s.handleRemove)
		r.Get("/api/services/{id}/history", s.handleHistory)

		r.Get("/api/control", s.handleControl)
		r.Post("/api/control/pause", s.handlePause)
		r.Post("/api/control/resume", s.handleResume)

		r.Put("/api/bans/{userID}", s.handleBan)
		r.Delete("/api/bans/{userID}", s.handleUnban)
	})
}

// --- Response helpers ---

type envelope struct {
	Data  interface{} `json:"data"`
	Error string      `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Error: msg})
}

// writeControlError maps control and storage sentinels onto status codes.
func (s *Server) writeControlError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, control.ErrBanned), errors.Is(err, control.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, control.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		s.logger.Error("handling request", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// --- Identity ---

type ctxKey struct{}

// identify rejects requests without a positive numeric X-User-ID.
func identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(r.Header.Get(UserHeader), 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusUnauthorized, "missing or invalid "+UserHeader)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

func userID(r *http.Request) int64 {
	id, _ := r.Context().Value(ctxKey{}).(int64)
	return id
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := "ok", http.StatusOK
	if err := s.store.Ping(r.Context()); err != nil {
		s.logger.Error("health check", "error", err)
		status, code = "unavailable", http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	services, err := s.control.Status(r.Context(), userID(r))
	if err != nil {
		s.writeControlError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(services))
}

func (s *Server) handleListAll(w http.ResponseWriter, r *http.Request) {
	services, err := s.control.ListAll(r.Context(), userID(r))
	if err != nil {
		s.writeControlError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(services))
}

type addRequest struct {
	Name     string `json:"name"`
	Endpoint string `json:"endpoint"`
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	svc, err := s.control.Add(r.Context(), userID(r), req.Name, req.Endpoint)
	if err != nil {
		s.writeControlError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, svc)
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	n, err := s.control.Remove(r.Context(), userID(r), chi.URLParam(r, "name"))
	if err != nil {
		s.writeControlError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"removed": n})
}

type historyResponse struct {
	Service   *storage.Service `json:"service"`
	Checks    []storage.Check  `json:"checks"`
	Total     int              `json:"total"`
	UptimePct float64          `json:"uptime_percent"`
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	svc, err := s.control.Get(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		s.writeControlError(w, r, err)
		return
	}

	const maxLimit = 1000

	limit := 50
	offset := 0

	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit parameter")
			return
		}
		if n > maxLimit {
			n = maxLimit
		}
		limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid offset parameter")
			return
		}
		offset = n
	}

	checks, total, err := s.store.ServiceHistory(r.Context(), svc.ID, limit, offset)
	if err != nil {
		s.logger.Error("ServiceHistory", "service", svc.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	pct, err := s.store.UptimePercent(r.Context(), svc.ID, 100)
	if err != nil {
		s.logger.Warn("UptimePercent", "service", svc.ID, "error", err)
	}

	writeJSON(w, http.StatusOK, historyResponse{
		Service:   svc,
		Checks:    checks,
		Total:     total,
		UptimePct: pct,
	})
}

type controlResponse struct {
	Paused bool `json:"paused"`
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	if err := s.control.Authorize(r.Context(), userID(r)); err != nil {
		s.writeControlError(w, r, err)
		return
	}
	paused, err := s.control.Paused(r.Context())
	if err != nil {
		s.writeControlError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, controlResponse{Paused: paused})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := s.control.Pause(r.Context(), userID(r)); err != nil {
		s.writeControlError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, controlResponse{Paused: true})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if err := s.control.Resume(r.Context(), userID(r)); err != nil {
		s.writeControlError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, controlResponse{Paused: false})
}

type banResponse struct {
	UserID int64 `json:"user_id"`
	Banned bool  `json:"banned"`
}

func (s *Server) handleBan(w http.ResponseWriter, r *http.Request) {
	s.setBan(w, r, true)
}

func (s *Server) handleUnban(w http.ResponseWriter, r *http.Request) {
	s.setBan(w, r, false)
}

func (s *Server) setBan(w http.ResponseWriter, r *http.Request, ban bool) {
	target, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}
	if ban {
		err = s.control.Ban(r.Context(), userID(r), target)
	} else {
		err = s.control.Unban(r.Context(), userID(r), target)
	}
	if err != nil {
		s.writeControlError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, banResponse{UserID: target, Banned: ban})
}

func nonNil(services []storage.Service) []storage.Service {
	if services == nil {
		return []storage.Service{}
	}
	return services
}

// --- Middleware ---

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		if s.metrics != nil {
			s.metrics.RecordRequest(r.Method, sw.status)
		}
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
