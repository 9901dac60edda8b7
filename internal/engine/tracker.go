package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/jmylchreest/revoice/internal/models"
)

const defaultTrackerTimeout = 30 * time.Minute

// Compile-time assertion that HTTPTracker implements Tracker.
var _ Tracker = (*HTTPTracker)(nil)

// TrackerOption is a functional option for configuring an HTTPTracker.
type TrackerOption func(*HTTPTracker)

// WithTrackerTimeout overrides the per-request timeout.
func WithTrackerTimeout(d time.Duration) TrackerOption {
	return func(t *HTTPTracker) {
		t.httpClient.Timeout = d
	}
}

// WithTrackerHTTPClient replaces the HTTP client, mainly for tests.
func WithTrackerHTTPClient(c *http.Client) TrackerOption {
	return func(t *HTTPTracker) {
		t.httpClient = c
	}
}

// HTTPTracker calls a diarization server exposing POST /diarize that
// accepts a WAV upload and answers with JSON speaker turns.
type HTTPTracker struct {
	serverURL  string
	httpClient *http.Client
}

// NewHTTPTracker creates a tracker adapter for the given server URL.
func NewHTTPTracker(serverURL string, opts ...TrackerOption) (*HTTPTracker, error) {
	if serverURL == "" {
		return nil, errors.New("tracker: serverURL must not be empty")
	}
	t := &HTTPTracker{
		serverURL:  serverURL,
		httpClient: &http.Client{Timeout: defaultTrackerTimeout},
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// Diarize uploads the voice track and returns turns sorted by start time.
func (t *HTTPTracker) Diarize(ctx context.Context, audioPath string) ([]models.SpeakerTurn, error) {
	body, contentType, err := fileForm(audioPath, nil)
	if err != nil {
		return nil, models.E(models.KindIOFailure, "tracker: read input", err)
	}

	endpoint := t.serverURL + "/diarize"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, models.E(models.KindEngineFailure, "tracker: create request", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, engineErr(ctx, fmt.Errorf("tracker: POST %s: %w", endpoint, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, models.Errorf(models.KindEngineFailure,
			"tracker: POST %s: HTTP %d", endpoint, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, models.E(models.KindEngineFailure, "tracker: read response", err)
	}
	var result struct {
		Turns []models.SpeakerTurn `json:"turns"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, models.E(models.KindEngineFailure, "tracker: parse response", err)
	}

	sort.Slice(result.Turns, func(i, j int) bool {
		return result.Turns[i].Start < result.Turns[j].Start
	})
	return result.Turns, nil
}
