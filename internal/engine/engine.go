// Package engine defines the narrow interfaces the pipeline uses to reach
// the machine-learning backends, plus HTTP adapters for the sidecar model
// servers this deployment ships with. Any backend satisfying an interface
// is acceptable; the pipeline never depends on a concrete adapter.
package engine

import (
	"context"
	"encoding/json"

	"github.com/jmylchreest/revoice/internal/models"
)

// Separator splits a mono mix into a voice track and an accompaniment
// track, both in the pipeline audio format.
type Separator interface {
	Separate(ctx context.Context, audioPath, vocalsOut, accompanimentOut string) error
}

// Tracker diarizes a voice track into speaker turns on the global
// timeline. Track building from the turns is the pipeline's job.
type Tracker interface {
	Diarize(ctx context.Context, audioPath string) ([]models.SpeakerTurn, error)
}

// Transcript is the transcriber output before segmentation post-processing.
type Transcript struct {
	// Language is the detected (or confirmed) source language code.
	Language string
	// Segments carry text and word timestamps in transcriber-local time.
	Segments []models.Segment
	// Raw is the unmodified engine response, persisted as a diagnostic.
	Raw json.RawMessage
}

// Transcriber converts speech to text with word-level timestamps.
// lang may be models.LangAuto to request detection.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, lang string) (*Transcript, error)
}

// Translator translates a batch of texts. The result has exactly one
// entry per input, in order.
type Translator interface {
	Translate(ctx context.Context, texts []string, sourceLang, targetLang string) ([]string, error)
}

// Cloner synthesizes text in the voice of the reference audio and writes
// the result to outPath in the pipeline audio format.
type Cloner interface {
	Clone(ctx context.Context, text, refAudioPath, lang, outPath string) error
}

// ConcurrencyDeclarer is implemented by engines that state whether their
// calls may run from multiple goroutines at once. Engines without the
// declaration are driven one call at a time.
type ConcurrencyDeclarer interface {
	ConcurrencySafe() bool
}
