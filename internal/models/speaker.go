package models

// MappingEntry maps a span of compact (silence-stripped) speaker-track time
// back to global time. Compact and global spans have equal length; global
// intervals are disjoint and sorted.
type MappingEntry struct {
	CompactStart float64 `json:"compact_start"`
	CompactEnd   float64 `json:"compact_end"`
	GlobalStart  float64 `json:"global_start"`
	GlobalEnd    float64 `json:"global_end"`
}

// SpeakerTrack references one speaker's compact audio and its time mapping,
// as persisted in the speakers/tracks.json index.
type SpeakerTrack struct {
	SpeakerID   string `json:"speaker_id"`
	AudioPath   string `json:"wav_path"`
	MappingPath string `json:"map_path"`
}

// SpeakerTurn is one diarization interval on the global timeline.
type SpeakerTurn struct {
	SpeakerID string  `json:"speaker_id"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
}
