package httpapi

import (
	"net/http"
	"strconv"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/journeymap/internal/app/playback"
	"github.com/osa030/journeymap/internal/app/timeline"
	"github.com/osa030/journeymap/internal/domain/brainwave"
	"github.com/osa030/journeymap/internal/domain/journey"
)

// ControlResponse is returned by every control endpoint.
type ControlResponse struct {
	Success bool                    `json:"success"`
	Message string                  `json:"message"`
	State   *playback.PlaybackState `json:"state,omitempty"`
}

// LoopRequest selects a loop segment.
type LoopRequest struct {
	Hz              float64 `json:"hz" validate:"required"`
	DurationSeconds float64 `json:"duration_seconds" validate:"required"`
}

// EditRequest is a live frequency edit.
type EditRequest struct {
	Hz float64 `json:"hz" validate:"required"`
}

// SeekRequest moves the logical position.
type SeekRequest struct {
	Position *float64 `json:"position" validate:"required"`
}

// SegmentsRequest replaces the journey.
type SegmentsRequest struct {
	Segments []journey.Segment `json:"segments" validate:"dive"`
}

// PlanSegment is one compiled segment on the absolute timeline.
type PlanSegment struct {
	Index            int                 `json:"index"`
	Type             journey.SegmentKind `json:"type"`
	StartTimeSeconds float64             `json:"start_time_seconds"`
	DurationSeconds  float64             `json:"duration_seconds"`
	EndTimeSeconds   float64             `json:"end_time_seconds"`
	StartHz          float64             `json:"start_hz"`
	EndHz            float64             `json:"end_hz"`
	Curve            journey.Curve       `json:"curve,omitempty"`
	Playable         bool                `json:"playable"`
}

// PlanResponse is the compiled journey.
type PlanResponse struct {
	TotalDuration float64       `json:"total_duration"`
	Segments      []PlanSegment `json:"segments"`
}

// WaveTypeResponse classifies a frequency.
type WaveTypeResponse struct {
	Hz            float64            `json:"hz"`
	WaveType      brainwave.WaveType `json:"wave_type"`
	Valid         bool               `json:"valid"`
	BPM           float64            `json:"bpm"`
	PulseInterval float64            `json:"pulse_interval"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.PlaybackState())
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, NewPlanResponse(s.engine.Plan()))
}

// NewPlanResponse converts a compiled plan to its wire form.
func NewPlanResponse(plan journey.Plan) PlanResponse {
	resp := PlanResponse{
		TotalDuration: plan.TotalDuration(),
		Segments:      make([]PlanSegment, 0, len(plan)),
	}
	for _, seg := range plan {
		resp.Segments = append(resp.Segments, PlanSegment{
			Index:            seg.Index,
			Type:             seg.Kind,
			StartTimeSeconds: seg.StartTimeSeconds,
			DurationSeconds:  seg.DurationSeconds,
			EndTimeSeconds:   seg.EndTimeSeconds(),
			StartHz:          seg.StartHz,
			EndHz:            seg.EndHz,
			Curve:            seg.TransitionCurve,
			Playable:         brainwave.ValidHz(seg.StartHz) && brainwave.ValidHz(seg.EndHz),
		})
	}
	return resp
}

func (s *Server) handleWaveType(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("hz")
	hz, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ControlResponse{Message: "hz must be a number"})
		return
	}
	resp := WaveTypeResponse{
		Hz:       hz,
		WaveType: brainwave.GetWaveType(hz),
		Valid:    brainwave.ValidHz(hz),
	}
	if resp.Valid {
		resp.BPM = brainwave.TempoBPM(hz)
		resp.PulseInterval = brainwave.PulseInterval(hz)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.respond(w, s.engine.Start(), "Timeline started")
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.respond(w, s.engine.Pause(), "Timeline paused")
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.respond(w, s.engine.Stop(), "Timeline stopped")
}

func (s *Server) handleClearLoop(w http.ResponseWriter, r *http.Request) {
	s.respond(w, s.engine.ClearLoop(), "Loop cleared")
}

func (s *Server) handleLoop(w http.ResponseWriter, r *http.Request) {
	var req LoopRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.respond(w, s.engine.LoopSegment(req.Hz, req.DurationSeconds), "Looping segment")
}

func (s *Server) handleEdit(w http.ResponseWriter, r *http.Request) {
	var req EditRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.respond(w, s.engine.ApplyLiveHzEdit(req.Hz), "Frequency updated")
}

func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req SeekRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.respond(w, s.engine.Seek(*req.Position), "Position updated")
}

func (s *Server) handleSegments(w http.ResponseWriter, r *http.Request) {
	var req SegmentsRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.respond(w, s.engine.LoadSegments(req.Segments), "Journey loaded")
}

// respond writes the outcome of a control call together with the resulting transport state.
func (s *Server) respond(w http.ResponseWriter, err error, message string) {
	state := s.engine.PlaybackState()
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			zlog.Error().Msgf("httpapi: control call failed: %+v", err)
		}
		writeJSON(w, status, ControlResponse{Message: err.Error(), State: &state})
		return
	}
	writeJSON(w, http.StatusOK, ControlResponse{Success: true, Message: message, State: &state})
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, playback.ErrNoSegmentPlaying):
		return http.StatusConflict
	case errors.Is(err, brainwave.ErrHzOutOfRange),
		errors.Is(err, playback.ErrInvalidLoop),
		errors.Is(err, playback.ErrInvalidPosition),
		errors.Is(err, timeline.ErrNegativeTime):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
