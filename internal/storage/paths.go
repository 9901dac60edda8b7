package storage

import (
	"fmt"
	"path"
	"strings"
)

// Fixed file names inside a task workspace.
const (
	StatusFile     = "status.json"
	TaskParamsFile = "00_task_params.json"
	ProcessingLog  = "processing_log.txt"

	SpeakersDir    = "speakers"
	SpeakerIndex   = "speakers/tracks.json"
	RefAudioDir    = "ref_audio"
	ClonedAudioDir = "cloned_audio"
)

// Layout resolves the stage-numbered artifact names of one task. Every
// name is relative to the task directory and prefixed with the sanitized
// media basename, e.g. "holiday_01_audio.wav".
type Layout struct {
	// Base is the sanitized source basename without extension.
	Base string
}

// baseFromTaskID recovers the media basename from a task id, which is the
// sanitized basename prefixed with a fixed-width timestamp.
func baseFromTaskID(taskID string) string {
	const tsWidth = len("2006-01-02_15-04-05_")
	if len(taskID) > tsWidth {
		return taskID[tsWidth:]
	}
	return taskID
}

// NewLayout builds the artifact layout for a task id.
func NewLayout(taskID string) Layout {
	return Layout{Base: baseFromTaskID(taskID)}
}

func (l Layout) named(suffix string) string {
	return l.Base + "_" + suffix
}

// OriginalInput returns the name of the copied source media file.
func (l Layout) OriginalInput(ext string) string {
	return l.named("00_original_input" + ext)
}

// ExtractedAudio is the stage-1 16 kHz mono WAV.
func (l Layout) ExtractedAudio() string { return l.named("01_audio.wav") }

// Vocals is the stage-2 separated voice track.
func (l Layout) Vocals() string { return l.named("02_vocals.wav") }

// Accompaniment is the optional stage-2 music/background track.
func (l Layout) Accompaniment() string { return l.named("02_accompaniment.wav") }

// SpeakerAudio is a speaker's compact (silence-stripped) concatenation.
func (l Layout) SpeakerAudio(speakerID string) string {
	return path.Join(SpeakersDir, speakerID, speakerID+".wav")
}

// SpeakerMapping is the compact-to-global time mapping of one speaker.
func (l Layout) SpeakerMapping(speakerID string) string {
	return path.Join(SpeakersDir, speakerID, speakerID+".json")
}

// Segments is the canonical stage-4/5 segment table.
func (l Layout) Segments() string { return l.named("04_segments.json") }

// RawTranscript is the diagnostic transcriber dump.
func (l Layout) RawTranscript() string { return l.named("04_whisper_raw.json") }

// TranslationLog is the human-readable stage-5 diagnostic.
func (l Layout) TranslationLog() string { return l.named("05_translation.txt") }

// RefSegment is the stage-6 reference clip for one segment.
func (l Layout) RefSegment(segID int) string {
	return path.Join(RefAudioDir, l.named(fmt.Sprintf("06_ref_segment_%03d.wav", segID)))
}

// ClonedSegment is the stage-7 clone for one segment.
func (l Layout) ClonedSegment(segID int) string {
	return path.Join(ClonedAudioDir, l.named(fmt.Sprintf("07_segment_%03d.wav", segID)))
}

// FinalVoice is the stage-8 assembled voice track.
func (l Layout) FinalVoice() string { return l.named("08_final_voice.wav") }

// FinalVideo is the stage-9 muxed output.
func (l Layout) FinalVideo() string { return l.named("09_translated.mp4") }

// FinalAudio is the stage-9 output for audio-only inputs.
func (l Layout) FinalAudio() string { return l.named("09_translated.mp3") }

// IsServableArtifact reports whether rel names a file clients may fetch
// through the artifact endpoint. Temp files and the status manifest are
// not servable.
func IsServableArtifact(rel string) bool {
	if rel == "" || rel == StatusFile {
		return false
	}
	base := path.Base(rel)
	return !strings.HasPrefix(base, ".")
}
