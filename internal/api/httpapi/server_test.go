package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/journeymap/internal/app/playback"
	"github.com/osa030/journeymap/internal/domain/brainwave"
	"github.com/osa030/journeymap/internal/infra/clock"
)

const journeyBody = `{"segments": [
	{"type": "plateau", "hz": 6, "duration_seconds": 60},
	{"type": "transition", "duration_seconds": 30},
	{"type": "plateau", "hz": 10, "duration_seconds": 60}
]}`

type testServer struct {
	t      *testing.T
	clock  *clock.Manual
	engine *playback.Engine
	server *Server
	token  string
}

func newTestServer(t *testing.T, token string) *testServer {
	t.Helper()
	clk := clock.NewManual(0)
	engine := playback.NewEngine(playback.Config{}, clk)
	t.Cleanup(engine.Close)
	return &testServer{t: t, clock: clk, engine: engine, server: NewServer(engine, token), token: token}
}

func (ts *testServer) do(method, path, body string) *httptest.ResponseRecorder {
	ts.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if ts.token != "" {
		req.Header.Set(AdminTokenHeader, ts.token)
	}
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeControl(t *testing.T, rec *httptest.ResponseRecorder) ControlResponse {
	t.Helper()
	var resp ControlResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestServer_Transport(t *testing.T) {
	ts := newTestServer(t, "")

	rec := ts.do(http.MethodPost, "/v1/segments", journeyBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	rec = ts.do(http.MethodPost, "/v1/start", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeControl(t, rec)
	assert.True(t, resp.Success)
	require.NotNil(t, resp.State)
	assert.Equal(t, "started", resp.State.State)
	assert.Equal(t, 6.0, resp.State.CurrentHz)
	assert.Equal(t, 45.0, resp.State.CurrentBPM)
	assert.Equal(t, brainwave.WaveTheta, resp.State.WaveType)
	assert.Equal(t, 150.0, resp.State.TotalDuration)

	ts.clock.Advance(75)
	require.NoError(t, ts.engine.Poll())

	rec = ts.do(http.MethodGet, "/v1/state", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var state playback.PlaybackState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	assert.Equal(t, 75.0, state.TimelinePosition)
	assert.Equal(t, 1, state.CurrentSegmentIndex)
	assert.InDelta(t, 8.0, state.CurrentHz, 1e-9)

	rec = ts.do(http.MethodPost, "/v1/pause", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeControl(t, rec).State.IsPaused)

	rec = ts.do(http.MethodPost, "/v1/seek", `{"position": 10}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10.0, decodeControl(t, rec).State.TimelinePosition)

	rec = ts.do(http.MethodPost, "/v1/start", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 6.0, decodeControl(t, rec).State.CurrentHz)

	rec = ts.do(http.MethodPost, "/v1/edit", `{"hz": 7.5}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decodeControl(t, rec)
	assert.Equal(t, 7.5, resp.State.CurrentHz)
	assert.True(t, resp.State.RescheduleOwed)

	rec = ts.do(http.MethodPost, "/v1/loop", `{"hz": 10, "duration_seconds": 30}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decodeControl(t, rec)
	require.NotNil(t, resp.State.Loop)
	assert.Equal(t, 10.0, resp.State.Loop.Hz)
	assert.Equal(t, 30.0, resp.State.TotalDuration)

	rec = ts.do(http.MethodPost, "/v1/loop/clear", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decodeControl(t, rec)
	assert.Nil(t, resp.State.Loop)
	assert.Equal(t, 7.5, resp.State.CurrentHz)

	rec = ts.do(http.MethodPost, "/v1/stop", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "stopped", decodeControl(t, rec).State.State)
}

func TestServer_Errors(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{name: "edit while stopped", method: http.MethodPost, path: "/v1/edit", body: `{"hz": 8}`, status: http.StatusConflict},
		{name: "edit out of range", method: http.MethodPost, path: "/v1/edit", body: `{"hz": 40}`, status: http.StatusBadRequest},
		{name: "edit without hz", method: http.MethodPost, path: "/v1/edit", body: `{}`, status: http.StatusBadRequest},
		{name: "loop out of range", method: http.MethodPost, path: "/v1/loop", body: `{"hz": 0.1, "duration_seconds": 10}`, status: http.StatusBadRequest},
		{name: "loop negative duration", method: http.MethodPost, path: "/v1/loop", body: `{"hz": 8, "duration_seconds": -5}`, status: http.StatusBadRequest},
		{name: "seek negative", method: http.MethodPost, path: "/v1/seek", body: `{"position": -1}`, status: http.StatusBadRequest},
		{name: "seek without position", method: http.MethodPost, path: "/v1/seek", body: `{}`, status: http.StatusBadRequest},
		{name: "malformed body", method: http.MethodPost, path: "/v1/segments", body: `{"segments": [`, status: http.StatusBadRequest},
		{name: "unknown field", method: http.MethodPost, path: "/v1/edit", body: `{"hz": 8, "gain": 1}`, status: http.StatusBadRequest},
		{name: "unknown segment type", method: http.MethodPost, path: "/v1/segments", body: `{"segments": [{"type": "ramp", "duration_seconds": 1}]}`, status: http.StatusBadRequest},
		{name: "wavetype not a number", method: http.MethodGet, path: "/v1/wavetype?hz=fast", status: http.StatusBadRequest},
		{name: "wrong method", method: http.MethodGet, path: "/v1/start", status: http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, "")
			rec := ts.do(tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.status != http.StatusMethodNotAllowed {
				assert.False(t, decodeControl(t, rec).Success)
			}
		})
	}
}

func TestServer_AdminToken(t *testing.T) {
	ts := newTestServer(t, "secret")

	req := httptest.NewRequest(http.MethodPost, "/v1/start", nil)
	rec := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, playback.StateStopped, ts.engine.CurrentState())

	req = httptest.NewRequest(http.MethodPost, "/v1/start", nil)
	req.Header.Set(AdminTokenHeader, "wrong")
	rec = httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// read-only endpoints stay open
	req = httptest.NewRequest(http.MethodGet, "/v1/state", nil)
	rec = httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(http.MethodPost, "/v1/start", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, playback.StateStarted, ts.engine.CurrentState())
}

func TestServer_Plan(t *testing.T) {
	ts := newTestServer(t, "")
	body := strings.Replace(journeyBody, `"duration_seconds": 30}`, `"duration_seconds": 30, "curve": "exponential"}`, 1)
	require.Equal(t, http.StatusOK, ts.do(http.MethodPost, "/v1/segments", body).Code)

	rec := ts.do(http.MethodGet, "/v1/plan", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var plan PlanResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &plan))
	assert.Equal(t, 150.0, plan.TotalDuration)
	require.Len(t, plan.Segments, 3)
	assert.Equal(t, PlanSegment{
		Index:            1,
		Type:             "transition",
		StartTimeSeconds: 60,
		DurationSeconds:  30,
		EndTimeSeconds:   90,
		StartHz:          6,
		EndHz:            10,
		Curve:            "exponential",
		Playable:         true,
	}, plan.Segments[1])
}

func TestServer_WaveType(t *testing.T) {
	tests := []struct {
		hz   string
		want WaveTypeResponse
	}{
		{hz: "6", want: WaveTypeResponse{Hz: 6, WaveType: brainwave.WaveTheta, Valid: true, BPM: 45, PulseInterval: 1.0 / 24}},
		{hz: "4", want: WaveTypeResponse{Hz: 4, WaveType: brainwave.WaveDelta, Valid: true, BPM: 30, PulseInterval: 1.0 / 16}},
		{hz: "13.5", want: WaveTypeResponse{Hz: 13.5, WaveType: brainwave.WaveSMR, Valid: true, BPM: 101.25, PulseInterval: 1.0 / 54}},
		{hz: "30", want: WaveTypeResponse{Hz: 30, WaveType: brainwave.WaveUnknown}},
	}

	ts := newTestServer(t, "")
	for _, tt := range tests {
		t.Run(tt.hz, func(t *testing.T) {
			rec := ts.do(http.MethodGet, "/v1/wavetype?hz="+tt.hz, "")
			require.Equal(t, http.StatusOK, rec.Code)
			var got WaveTypeResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}
