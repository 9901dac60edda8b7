package models

// Word is a word-level timestamp inside a segment. Spans lie within the
// segment's [Start, End] interval on the global timeline. After manual timing
// edits words are diagnostic only and are never refreshed.
type Word struct {
	Word        string  `json:"word"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Probability float64 `json:"probability,omitempty"`
}

// Segment is one row of the canonical segment table. Ids are dense, 0-based,
// and renumbered after structural edits. Times are seconds on the global
// timeline of the original media.
type Segment struct {
	ID                 int     `json:"id"`
	Start              float64 `json:"start"`
	End                float64 `json:"end"`
	Text               string  `json:"text"`
	TranslatedText     string  `json:"translated_text,omitempty"`
	SpeakerID          string  `json:"speaker_id,omitempty"`
	Words              []Word  `json:"words,omitempty"`
	ClonedAudioPath    string  `json:"cloned_audio_path,omitempty"`
	OriginalDuration   float64 `json:"original_duration,omitempty"`
	ClonedDuration     float64 `json:"cloned_duration,omitempty"`
	DurationMultiplier float64 `json:"duration_multiplier,omitempty"`
	Error              string  `json:"error,omitempty"`

	// Dirty is set when the clone on disk no longer matches the final voice
	// track (resynthesize without regenerate). Cleared by regenerate_final.
	Dirty bool `json:"dirty,omitempty"`
}

// Duration is the segment's slot length on the global timeline.
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// Invalidate clears every derived field that no longer matches the segment's
// text or timing: translation, clone reference, measured durations, and the
// error from a previous clone attempt.
func (s *Segment) Invalidate() {
	s.TranslatedText = ""
	s.ClonedAudioPath = ""
	s.ClonedDuration = 0
	s.DurationMultiplier = 0
	s.Error = ""
	s.Dirty = false
}
