package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/jmylchreest/revoice/internal/models"
)

const defaultSeparatorTimeout = 30 * time.Minute

// Compile-time assertion that HTTPSeparator implements Separator.
var _ Separator = (*HTTPSeparator)(nil)

// SeparatorOption is a functional option for configuring an HTTPSeparator.
type SeparatorOption func(*HTTPSeparator)

// WithSeparatorTimeout overrides the per-request timeout.
func WithSeparatorTimeout(d time.Duration) SeparatorOption {
	return func(s *HTTPSeparator) {
		s.httpClient.Timeout = d
	}
}

// WithSeparatorHTTPClient replaces the HTTP client, mainly for tests.
func WithSeparatorHTTPClient(c *http.Client) SeparatorOption {
	return func(s *HTTPSeparator) {
		s.httpClient = c
	}
}

// HTTPSeparator calls a source-separation server exposing
// POST /separate?stem=<vocals|accompaniment> that accepts a WAV upload and
// answers with the requested stem as a WAV body.
type HTTPSeparator struct {
	serverURL  string
	httpClient *http.Client
}

// NewHTTPSeparator creates a separator adapter for the given server URL.
func NewHTTPSeparator(serverURL string, opts ...SeparatorOption) (*HTTPSeparator, error) {
	if serverURL == "" {
		return nil, errors.New("separator: serverURL must not be empty")
	}
	s := &HTTPSeparator{
		serverURL:  serverURL,
		httpClient: &http.Client{Timeout: defaultSeparatorTimeout},
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// Separate requests both stems from the server. Each stem is an
// independent request so a retry never has to re-download both.
func (s *HTTPSeparator) Separate(ctx context.Context, audioPath, vocalsOut, accompanimentOut string) error {
	if err := s.fetchStem(ctx, audioPath, "vocals", vocalsOut); err != nil {
		return err
	}
	return s.fetchStem(ctx, audioPath, "accompaniment", accompanimentOut)
}

func (s *HTTPSeparator) fetchStem(ctx context.Context, audioPath, stem, outPath string) error {
	body, contentType, err := fileForm(audioPath, nil)
	if err != nil {
		return models.E(models.KindIOFailure, "separator: read input", err)
	}

	endpoint := fmt.Sprintf("%s/separate?stem=%s", s.serverURL, stem)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return models.E(models.KindEngineFailure, "separator: create request", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return engineErr(ctx, fmt.Errorf("separator: POST %s: %w", endpoint, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.Errorf(models.KindEngineFailure,
			"separator: POST %s: HTTP %d", endpoint, resp.StatusCode)
	}
	if err := writeBody(outPath, resp.Body); err != nil {
		return models.E(models.KindIOFailure, "separator: write stem", err)
	}
	return nil
}

// fileForm builds a multipart body with the audio under field "file" plus
// optional extra string fields.
func fileForm(audioPath string, fields map[string]string) (*bytes.Buffer, string, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(fw, f); err != nil {
		return nil, "", err
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &body, mw.FormDataContentType(), nil
}

// writeBody streams an HTTP response body to a file, creating the
// parent directory if needed.
func writeBody(outPath string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o750); err != nil {
		return err
	}
	f, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// engineErr maps a transport error to cancelled or engine failure.
func engineErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return models.E(models.KindCancelled, "engine call aborted", models.ErrCancelled)
	}
	return models.E(models.KindEngineFailure, "", err)
}
