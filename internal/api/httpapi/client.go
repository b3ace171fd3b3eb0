package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/osa030/journeymap/internal/app/playback"
	"github.com/osa030/journeymap/internal/domain/journey"
)

// ErrUnauthenticated is returned when the server rejects the admin token.
var ErrUnauthenticated = errors.New("unauthenticated")

// Client calls the control endpoints.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a new Client. A nil httpClient uses http.DefaultClient.
func NewClient(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    httpClient,
	}
}

// State returns the transport snapshot.
func (c *Client) State(ctx context.Context) (*playback.PlaybackState, error) {
	var state playback.PlaybackState
	if err := c.get(ctx, "/v1/state", &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// Plan returns the compiled journey.
func (c *Client) Plan(ctx context.Context) (*PlanResponse, error) {
	var plan PlanResponse
	if err := c.get(ctx, "/v1/plan", &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

// WaveType classifies hz.
func (c *Client) WaveType(ctx context.Context, hz float64) (*WaveTypeResponse, error) {
	var resp WaveTypeResponse
	path := "/v1/wavetype?hz=" + url.QueryEscape(strconv.FormatFloat(hz, 'f', -1, 64))
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Start starts or resumes the timeline.
func (c *Client) Start(ctx context.Context) (*ControlResponse, error) {
	return c.control(ctx, "/v1/start", nil)
}

// Pause pauses the timeline.
func (c *Client) Pause(ctx context.Context) (*ControlResponse, error) {
	return c.control(ctx, "/v1/pause", nil)
}

// Stop stops the timeline.
func (c *Client) Stop(ctx context.Context) (*ControlResponse, error) {
	return c.control(ctx, "/v1/stop", nil)
}

// Loop loops a single plateau.
func (c *Client) Loop(ctx context.Context, hz, durationSeconds float64) (*ControlResponse, error) {
	return c.control(ctx, "/v1/loop", LoopRequest{Hz: hz, DurationSeconds: durationSeconds})
}

// ClearLoop leaves loop mode.
func (c *Client) ClearLoop(ctx context.Context) (*ControlResponse, error) {
	return c.control(ctx, "/v1/loop/clear", nil)
}

// Edit applies a live frequency edit.
func (c *Client) Edit(ctx context.Context, hz float64) (*ControlResponse, error) {
	return c.control(ctx, "/v1/edit", EditRequest{Hz: hz})
}

// Seek moves the logical position.
func (c *Client) Seek(ctx context.Context, position float64) (*ControlResponse, error) {
	return c.control(ctx, "/v1/seek", SeekRequest{Position: &position})
}

// LoadSegments replaces the journey.
func (c *Client) LoadSegments(ctx context.Context, segments []journey.Segment) (*ControlResponse, error) {
	return c.control(ctx, "/v1/segments", SegmentsRequest{Segments: segments})
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "GET %s", path)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.Newf("GET %s: %s: %s", path, resp.Status, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "GET %s: failed to decode response", path)
	}
	return nil
}

// control posts a control call. A rejected call comes back as an unsuccessful
// response rather than an error.
func (c *Client) control(ctx context.Context, path string, body any) (*ControlResponse, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, errors.Wrap(err, "failed to encode request")
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set(AdminTokenHeader, c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "POST %s", path)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthenticated
	}
	var out ControlResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrapf(err, "POST %s: %s", path, resp.Status)
	}
	return &out, nil
}
