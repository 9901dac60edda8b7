package models

import "time"

// TaskStatus is the lifecycle state recorded in status.json.
type TaskStatus string

const (
	StatusPending     TaskStatus = "pending"
	StatusProcessing  TaskStatus = "processing"
	StatusPausedStep4 TaskStatus = "paused_step4"
	StatusPausedStep5 TaskStatus = "paused_step5"
	StatusCompleted   TaskStatus = "completed"
	StatusFailed      TaskStatus = "failed"
)

// IsTerminal reports whether the pipeline will do no further work for this status.
func (s TaskStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// IsPaused reports whether the task sits at a human-in-the-loop checkpoint.
func (s TaskStatus) IsPaused() bool {
	return s == StatusPausedStep4 || s == StatusPausedStep5
}

// PausePoint names a requested checkpoint after a pipeline step.
type PausePoint string

const (
	PauseNone  PausePoint = ""
	PauseStep4 PausePoint = "step4"
	PauseStep5 PausePoint = "step5"
)

// Valid reports whether p is a recognized pause point.
func (p PausePoint) Valid() bool {
	return p == PauseNone || p == PauseStep4 || p == PauseStep5
}

// LangAuto asks the transcriber to detect the source language.
const LangAuto = "auto"

// Pipeline step numbers. Step 0 means no stage has completed yet.
const (
	StepExtractAudio      = 1
	StepSeparateVocals    = 2
	StepSpeakerTracks     = 3
	StepTranscribe        = 4
	StepTranslate         = 5
	StepExtractReferences = 6
	StepCloneVoices       = 7
	StepMergeVoice        = 8
	StepMux               = 9
)

var stepNames = [...]string{
	"",
	"Audio Extraction",
	"Vocal Separation",
	"Speaker Tracks",
	"Transcription",
	"Translation",
	"Reference Extraction",
	"Voice Cloning",
	"Voice Merging",
	"Muxing",
}

// StepName returns the display name of a pipeline step, or "" out of range.
func StepName(step int) string {
	if step < 1 || step >= len(stepNames) {
		return ""
	}
	return stepNames[step]
}

// TaskState is the status.json manifest, the authoritative record of a task.
// The ID doubles as the task directory name under the tasks root.
type TaskState struct {
	ID             string     `json:"id"`
	Status         TaskStatus `json:"status"`
	CurrentStep    int        `json:"current_step"`
	Progress       float64    `json:"progress"`
	Message        string     `json:"message"`
	StepName       string     `json:"step_name"`
	CurrentSegment int        `json:"current_segment"`
	TotalSegments  int        `json:"total_segments"`
	Error          string     `json:"error,omitempty"`
	PauseAfter     PausePoint `json:"pause_after,omitempty"`
	SourceLang     string     `json:"source_lang"`
	TargetLang     string     `json:"target_lang"`
	SingleSpeaker  bool       `json:"single_speaker"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Clone returns a copy safe to mutate independently.
func (t *TaskState) Clone() *TaskState {
	c := *t
	return &c
}

// TaskParams is the 00_task_params.json artifact written at task creation so
// that continue and per-segment operations can recover the original request
// from disk alone.
type TaskParams struct {
	InputPath     string     `json:"input_path"`
	SourceLang    string     `json:"source_lang"`
	TargetLang    string     `json:"target_lang"`
	SingleSpeaker bool       `json:"single_speaker"`
	PauseAfter    PausePoint `json:"pause_after,omitempty"`
	IsVideo       bool       `json:"is_video"`
}
