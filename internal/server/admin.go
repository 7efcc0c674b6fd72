package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/localgpt/localgpt/internal/capability"
	"github.com/localgpt/localgpt/internal/logging"
)

// Admin API error codes.
const (
	CodeSessionNotFound = "SESSION_NOT_FOUND"
	CodeStreamFailed    = "STREAM_FAILED"
)

// APIError is the body of every failed admin request.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Sessions int    `json:"sessions"`
}

// ProgramLister reports the launched programs that are still running.
type ProgramLister interface {
	Running() []capability.ProcessInfo
}

// Option configures a Server.
type Option func(*Server)

// WithPrograms exposes the programs reported by p on GET /programs.
func WithPrograms(p ProgramLister) Option {
	return func(s *Server) { s.programs = p }
}

// AdminHandler returns the admin API router.
func (s *Server) AdminHandler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.listSessions)
		r.Get("/{sessionID}", s.getSession)
	})
	r.Get("/programs", s.listPrograms)
	r.Get("/events", s.events)

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, HealthResponse{Status: "ok", Sessions: len(s.sessions.List())})
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, s.sessions.List())
}

func (s *Server) listPrograms(w http.ResponseWriter, r *http.Request) {
	programs := []capability.ProcessInfo{}
	if s.programs != nil {
		programs = s.programs.Running()
	}
	respond(w, http.StatusOK, programs)
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	sess, ok := s.sessions.Get(id)
	if !ok {
		fail(w, http.StatusNotFound, CodeSessionNotFound, "session not found: "+id)
		return
	}
	respond(w, http.StatusOK, sess.Info())
}

func respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Debug().Err(err).Msg("admin response not written")
	}
}

func fail(w http.ResponseWriter, status int, code, message string) {
	respond(w, status, struct {
		Error APIError `json:"error"`
	}{APIError{Code: code, Message: message}})
}
