package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jmylchreest/revoice/internal/models"
)

const defaultTranscriberTimeout = 30 * time.Minute

// Compile-time assertion that HTTPTranscriber implements Transcriber.
var _ Transcriber = (*HTTPTranscriber)(nil)

// TranscriberOption is a functional option for configuring an HTTPTranscriber.
type TranscriberOption func(*HTTPTranscriber)

// WithTranscriberTimeout overrides the per-request timeout.
func WithTranscriberTimeout(d time.Duration) TranscriberOption {
	return func(t *HTTPTranscriber) {
		t.httpClient.Timeout = d
	}
}

// WithTranscriberHTTPClient replaces the HTTP client, mainly for tests.
func WithTranscriberHTTPClient(c *http.Client) TranscriberOption {
	return func(t *HTTPTranscriber) {
		t.httpClient = c
	}
}

// HTTPTranscriber calls a whisper-style server exposing POST /inference
// that accepts a multipart WAV upload and answers with verbose JSON
// carrying segments and word timestamps.
type HTTPTranscriber struct {
	serverURL  string
	httpClient *http.Client
}

// NewHTTPTranscriber creates a transcriber adapter for the given server URL.
func NewHTTPTranscriber(serverURL string, opts ...TranscriberOption) (*HTTPTranscriber, error) {
	if serverURL == "" {
		return nil, errors.New("transcriber: serverURL must not be empty")
	}
	t := &HTTPTranscriber{
		serverURL:  serverURL,
		httpClient: &http.Client{Timeout: defaultTranscriberTimeout},
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// inferenceResponse is the verbose-json shape of the whisper server.
type inferenceResponse struct {
	Language string `json:"language"`
	Segments []struct {
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
		Words []struct {
			Word        string  `json:"word"`
			Start       float64 `json:"start"`
			End         float64 `json:"end"`
			Probability float64 `json:"probability"`
		} `json:"words"`
	} `json:"segments"`
}

// Transcribe uploads the audio and converts the verbose response into
// segment rows. Times stay in the input file's own timeline; mapping to
// the global timeline is the caller's job. Ids are assigned densely in
// order and texts are whitespace-trimmed.
func (t *HTTPTranscriber) Transcribe(ctx context.Context, audioPath, lang string) (*Transcript, error) {
	fields := map[string]string{"response_format": "verbose_json"}
	if lang != "" && lang != models.LangAuto {
		fields["language"] = lang
	}
	body, contentType, err := fileForm(audioPath, fields)
	if err != nil {
		return nil, models.E(models.KindIOFailure, "transcriber: read input", err)
	}

	endpoint := t.serverURL + "/inference"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, models.E(models.KindEngineFailure, "transcriber: create request", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, engineErr(ctx, fmt.Errorf("transcriber: POST %s: %w", endpoint, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, models.Errorf(models.KindEngineFailure,
			"transcriber: POST %s: HTTP %d", endpoint, resp.StatusCode)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, models.E(models.KindEngineFailure, "transcriber: read response", err)
	}
	var result inferenceResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, models.E(models.KindEngineFailure, "transcriber: parse response", err)
	}

	out := &Transcript{Language: result.Language, Raw: raw}
	for _, s := range result.Segments {
		text := strings.TrimSpace(s.Text)
		if text == "" || s.End <= s.Start {
			continue
		}
		seg := models.Segment{
			ID:               len(out.Segments),
			Start:            s.Start,
			End:              s.End,
			Text:             text,
			OriginalDuration: s.End - s.Start,
		}
		for _, w := range s.Words {
			seg.Words = append(seg.Words, models.Word{
				Word:        strings.TrimSpace(w.Word),
				Start:       w.Start,
				End:         w.End,
				Probability: w.Probability,
			})
		}
		out.Segments = append(out.Segments, seg)
	}
	return out, nil
}
