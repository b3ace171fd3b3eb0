// Package httpapi provides the HTTP control surface over the timeline engine.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/osa030/journeymap/internal/app/playback"
	"github.com/osa030/journeymap/internal/domain/journey"
)

const (
	// AdminTokenHeader is the header name for admin authentication token.
	AdminTokenHeader = "X-Admin-Token"

	maxBodyBytes = 1 << 20
)

// Engine is the part of the playback engine the API drives.
type Engine interface {
	Start() error
	Pause() error
	Stop() error
	LoopSegment(hz, durationSeconds float64) error
	ClearLoop() error
	ApplyLiveHzEdit(hz float64) error
	LoadSegments(segments []journey.Segment) error
	Seek(position float64) error
	PlaybackState() playback.PlaybackState
	Plan() journey.Plan
}

// Ensure the playback engine satisfies Engine.
var _ Engine = (*playback.Engine)(nil)

// Server serves the control endpoints.
type Server struct {
	engine     Engine
	adminToken string
	validate   *validator.Validate
	mux        *http.ServeMux
}

// NewServer creates a new Server. An empty adminToken leaves the control endpoints open.
func NewServer(engine Engine, adminToken string) *Server {
	s := &Server{
		engine:     engine,
		adminToken: adminToken,
		validate:   validator.New(),
		mux:        http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /v1/state", s.handleState)
	s.mux.HandleFunc("GET /v1/plan", s.handlePlan)
	s.mux.HandleFunc("GET /v1/wavetype", s.handleWaveType)

	s.mux.Handle("POST /v1/start", s.requireAdmin(s.handleStart))
	s.mux.Handle("POST /v1/pause", s.requireAdmin(s.handlePause))
	s.mux.Handle("POST /v1/stop", s.requireAdmin(s.handleStop))
	s.mux.Handle("POST /v1/loop", s.requireAdmin(s.handleLoop))
	s.mux.Handle("POST /v1/loop/clear", s.requireAdmin(s.handleClearLoop))
	s.mux.Handle("POST /v1/edit", s.requireAdmin(s.handleEdit))
	s.mux.Handle("POST /v1/segments", s.requireAdmin(s.handleSegments))
	s.mux.Handle("POST /v1/seek", s.requireAdmin(s.handleSeek))

	return s
}

// Handler returns the server's handler with h2c (HTTP/2 cleartext) support.
func (s *Server) Handler() http.Handler {
	return h2c.NewHandler(s.mux, &http2.Server{})
}

// requireAdmin validates the admin token on control endpoints.
func (s *Server) requireAdmin(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminToken != "" && r.Header.Get(AdminTokenHeader) != s.adminToken {
			zlog.Warn().Msgf("httpapi: unauthenticated %s %s", r.Method, r.URL.Path)
			writeJSON(w, http.StatusUnauthorized, ControlResponse{Message: "unauthenticated"})
			return
		}
		zlog.Debug().Msgf("httpapi: %s %s", r.Method, r.URL.Path)
		next(w, r)
	})
}

// decode reads a JSON body into v and validates it.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, ControlResponse{Message: "invalid request body: " + err.Error()})
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		writeJSON(w, http.StatusBadRequest, ControlResponse{Message: err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zlog.Error().Err(err).Msg("httpapi: failed to write response")
	}
}
