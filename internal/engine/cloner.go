package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jmylchreest/revoice/internal/models"
)

const defaultClonerTimeout = 5 * time.Minute

// Compile-time assertions that XTTSCloner implements Cloner and declares
// concurrency safety.
var (
	_ Cloner              = (*XTTSCloner)(nil)
	_ ConcurrencyDeclarer = (*XTTSCloner)(nil)
)

// ClonerOption is a functional option for configuring an XTTSCloner.
type ClonerOption func(*XTTSCloner)

// WithClonerTimeout overrides the per-request timeout.
func WithClonerTimeout(d time.Duration) ClonerOption {
	return func(c *XTTSCloner) {
		c.httpClient.Timeout = d
	}
}

// WithClonerHTTPClient replaces the HTTP client, mainly for tests.
func WithClonerHTTPClient(hc *http.Client) ClonerOption {
	return func(c *XTTSCloner) {
		c.httpClient = hc
	}
}

// XTTSCloner calls an XTTS-style voice cloning server exposing
// POST /tts_to_audio/ that accepts JSON and answers with a WAV body.
// The server shares the task filesystem, so reference audio is passed
// by absolute path rather than uploaded.
type XTTSCloner struct {
	serverURL  string
	httpClient *http.Client
}

// NewXTTSCloner creates a cloner adapter for the given server URL.
func NewXTTSCloner(serverURL string, opts ...ClonerOption) (*XTTSCloner, error) {
	if serverURL == "" {
		return nil, errors.New("cloner: serverURL must not be empty")
	}
	c := &XTTSCloner{
		serverURL:  serverURL,
		httpClient: &http.Client{Timeout: defaultClonerTimeout},
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// ConcurrencySafe reports that Clone may run from multiple goroutines:
// every call is an independent HTTP request and the server does its own
// admission control.
func (c *XTTSCloner) ConcurrencySafe() bool { return true }

// ttsRequest is the JSON body for /tts_to_audio/.
type ttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

// Clone synthesizes text in the reference voice and writes the WAV
// response to outPath.
func (c *XTTSCloner) Clone(ctx context.Context, text, refAudioPath, lang, outPath string) error {
	payload, err := json.Marshal(ttsRequest{Text: text, SpeakerWav: refAudioPath, Language: lang})
	if err != nil {
		return models.E(models.KindEngineFailure, "cloner: encode request", err)
	}

	endpoint := c.serverURL + "/tts_to_audio/"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return models.E(models.KindEngineFailure, "cloner: create request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return engineErr(ctx, fmt.Errorf("cloner: POST %s: %w", endpoint, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Errorf(models.KindEngineFailure,
			"cloner: POST %s: HTTP %d", endpoint, resp.StatusCode)
	}
	if err := writeBody(outPath, resp.Body); err != nil {
		return models.E(models.KindIOFailure, "cloner: write audio", err)
	}
	return nil
}
