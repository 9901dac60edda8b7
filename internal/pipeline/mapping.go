package pipeline

import (
	"github.com/jmylchreest/revoice/internal/audio"
	"github.com/jmylchreest/revoice/internal/models"
)

// BuildTrack concatenates one speaker's diarization turns from the global
// vocals into a compact clip and records the compact-to-global mapping.
// Turns must be sorted by start; empty or out-of-range turns are skipped.
func BuildTrack(vocals *audio.Clip, turns []models.SpeakerTurn) (*audio.Clip, []models.MappingEntry, error) {
	var (
		parts   []*audio.Clip
		entries []models.MappingEntry
		offset  float64
	)
	for _, turn := range turns {
		if turn.End <= turn.Start {
			continue
		}
		part := vocals.SliceSeconds(turn.Start, turn.End)
		if part.Frames() == 0 {
			continue
		}
		d := part.Duration()
		entries = append(entries, models.MappingEntry{
			CompactStart: offset,
			CompactEnd:   offset + d,
			GlobalStart:  turn.Start,
			GlobalEnd:    turn.Start + d,
		})
		parts = append(parts, part)
		offset += d
	}
	if len(parts) == 0 {
		return nil, nil, models.Errorf(models.KindInvalidRequest,
			"pipeline: no usable turns to build a speaker track")
	}
	track, err := audio.Concat(parts...)
	if err != nil {
		return nil, nil, models.E(models.KindIOFailure, "pipeline: concat speaker track", err)
	}
	return track, entries, nil
}

// CompactToGlobal maps a compact-track time to the global timeline. Times
// before the first span clamp to its global start; times past the last
// span clamp to its global end.
func CompactToGlobal(entries []models.MappingEntry, t float64) float64 {
	if len(entries) == 0 {
		return t
	}
	if t < entries[0].CompactStart {
		return entries[0].GlobalStart
	}
	for _, e := range entries {
		if t < e.CompactEnd {
			return e.GlobalStart + (t - e.CompactStart)
		}
	}
	last := entries[len(entries)-1]
	return last.GlobalEnd
}

// compactIntervals projects a global interval onto the compact timeline.
// The result lists the compact sub-spans covered by [start, end), in
// order; global time outside any mapping span contributes nothing.
func compactIntervals(entries []models.MappingEntry, start, end float64) [][2]float64 {
	var out [][2]float64
	for _, e := range entries {
		oStart := max(start, e.GlobalStart)
		oEnd := min(end, e.GlobalEnd)
		if oEnd <= oStart {
			continue
		}
		out = append(out, [2]float64{
			e.CompactStart + (oStart - e.GlobalStart),
			e.CompactStart + (oEnd - e.GlobalStart),
		})
	}
	return out
}
