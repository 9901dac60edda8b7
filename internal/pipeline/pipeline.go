// Package pipeline implements the nine processing stages that turn an
// uploaded media file into a dubbed one. Each stage reads the artifacts
// of earlier stages from the task workspace and persists its own before
// returning, so a task can resume from any stage boundary using the
// filesystem alone.
package pipeline

import (
	"bytes"
	"context"
	"log/slog"
	"time"

	"github.com/jmylchreest/revoice/internal/audio"
	"github.com/jmylchreest/revoice/internal/engine"
	"github.com/jmylchreest/revoice/internal/events"
	"github.com/jmylchreest/revoice/internal/ffmpeg"
	"github.com/jmylchreest/revoice/internal/merger"
	"github.com/jmylchreest/revoice/internal/models"
	"github.com/jmylchreest/revoice/internal/storage"
)

// Config holds the stage tunables.
type Config struct {
	// SilenceSplitGapS is the inter-word silence at which stage 4 splits an
	// over-long recognized segment.
	SilenceSplitGapS float64

	// TranslateBatchSize bounds the number of segments in one translator
	// request.
	TranslateBatchSize int

	// SegmentWorkers bounds stage-7 per-segment parallelism.
	SegmentWorkers int

	// MinReferenceSeconds is the shortest usable voice reference. Segments
	// with less source audio fall back to a wider reference.
	MinReferenceSeconds float64

	// MaxReferenceSeconds caps a reference clip.
	MaxReferenceSeconds float64
}

func (c Config) withDefaults() Config {
	if c.SilenceSplitGapS <= 0 {
		c.SilenceSplitGapS = 1.5
	}
	if c.TranslateBatchSize < 1 {
		c.TranslateBatchSize = 20
	}
	if c.SegmentWorkers < 1 {
		c.SegmentWorkers = 1
	}
	if c.MinReferenceSeconds <= 0 {
		c.MinReferenceSeconds = 1.0
	}
	if c.MaxReferenceSeconds <= 0 {
		c.MaxReferenceSeconds = 30.0
	}
	return c
}

// MediaTool is the ffmpeg surface the stages use. *ffmpeg.Tool is the
// production implementation.
type MediaTool interface {
	ExtractAudio(ctx context.Context, input, output string) error
	MuxVideo(ctx context.Context, video, audio, output string) error
	EncodeMP3(ctx context.Context, input, output string) error
	Duration(ctx context.Context, path string) (time.Duration, error)
}

var _ MediaTool = (*ffmpeg.Tool)(nil)

// Env bundles the dependencies shared by all stages.
type Env struct {
	Store       *storage.Store
	Tool        MediaTool
	Separator   engine.Separator
	Tracker     engine.Tracker
	Transcriber engine.Transcriber
	Translator  engine.Translator
	Cloner      engine.Cloner
	Merger      *merger.Merger
	Bus         *events.Bus
	Logger      *slog.Logger
	Cfg         Config
}

// NewEnv normalizes an Env for use.
func NewEnv(env Env) *Env {
	if env.Logger == nil {
		env.Logger = slog.Default()
	}
	env.Logger = env.Logger.With("component", "pipeline")
	env.Cfg = env.Cfg.withDefaults()
	return &env
}

// Stage is one pipeline step.
type Stage interface {
	// ID returns the step number, 1 through 9.
	ID() int

	// Name returns the display name of the step.
	Name() string

	// Execute performs the stage's work within the task workspace.
	Execute(ctx context.Context, run *Run) error
}

// Stages returns the full ordered pipeline. Stage 3 checks the
// single-speaker flag itself and becomes a no-op when it is set.
func (e *Env) Stages() []Stage {
	return []Stage{
		&ExtractAudioStage{},
		&SeparateVocalsStage{},
		&SpeakerTracksStage{},
		&TranscribeStage{},
		&TranslateStage{},
		&ExtractReferencesStage{},
		&CloneVoicesStage{},
		&MergeVoiceStage{},
		&MuxStage{},
	}
}

// StageAt returns the stage with the given step number.
func (e *Env) StageAt(step int) (Stage, bool) {
	for _, st := range e.Stages() {
		if st.ID() == step {
			return st, true
		}
	}
	return nil, false
}

// Run is one task's execution context.
type Run struct {
	*Env
	TaskID string
	Params *models.TaskParams
	Layout storage.Layout

	// OnlySegment, when non-nil, narrows stages 6 and 7 to a single
	// segment id. Used by resynthesize.
	OnlySegment *int
}

// wantSegment reports whether a stage narrowed by OnlySegment should
// process the segment.
func (r *Run) wantSegment(seg models.Segment) bool {
	return r.OnlySegment == nil || *r.OnlySegment == seg.ID
}

// NewRun builds the per-task context.
func (e *Env) NewRun(taskID string, params *models.TaskParams) *Run {
	return &Run{
		Env:    e,
		TaskID: taskID,
		Params: params,
		Layout: storage.NewLayout(taskID),
	}
}

// Progress publishes an intra-stage progress event.
func (r *Run) Progress(step int, progress float64, message string, current, total int) {
	if r.Bus != nil {
		r.Bus.Publish(events.ProgressEvent(r.TaskID, step, progress, message, current, total))
	}
}

// Log appends a line to the task's processing log.
func (r *Run) Log(format string, args ...any) {
	r.Store.AppendLog(r.TaskID, format, args...)
}

// abs resolves a workspace-relative artifact name to an absolute path.
func (r *Run) abs(rel string) (string, error) {
	return r.Store.ArtifactPath(r.TaskID, rel)
}

// readClip decodes a workspace WAV artifact.
func (r *Run) readClip(rel string) (*audio.Clip, error) {
	path, err := r.abs(rel)
	if err != nil {
		return nil, err
	}
	clip, err := audio.ReadFile(path)
	if err != nil {
		return nil, models.E(models.KindIOFailure, "pipeline: read "+rel, err)
	}
	return clip, nil
}

// writeClip encodes a clip and stores it atomically under rel.
func (r *Run) writeClip(rel string, clip *audio.Clip) error {
	var buf bytes.Buffer
	if err := audio.EncodeWAV(&buf, clip); err != nil {
		return models.E(models.KindIOFailure, "pipeline: encode "+rel, err)
	}
	return r.Store.PutArtifact(r.TaskID, rel, &buf)
}
