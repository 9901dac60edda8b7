package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/revoice/internal/audio"
	"github.com/jmylchreest/revoice/internal/models"
)

func turn(id string, start, end float64) models.SpeakerTurn {
	return models.SpeakerTurn{SpeakerID: id, Start: start, End: end}
}

func TestBuildTrack(t *testing.T) {
	vocals := audio.Silence(10, 16000)

	t.Run("concatenates turns and maps time", func(t *testing.T) {
		track, entries, err := BuildTrack(vocals, []models.SpeakerTurn{
			turn("s0", 1.0, 3.0),
			turn("s0", 5.0, 6.0),
		})
		require.NoError(t, err)

		assert.InDelta(t, 3.0, track.Duration(), 1e-3)
		require.Len(t, entries, 2)
		assert.InDelta(t, 0.0, entries[0].CompactStart, 1e-9)
		assert.InDelta(t, 2.0, entries[0].CompactEnd, 1e-3)
		assert.InDelta(t, 1.0, entries[0].GlobalStart, 1e-9)
		assert.InDelta(t, 2.0, entries[1].CompactStart, 1e-3)
		assert.InDelta(t, 5.0, entries[1].GlobalStart, 1e-9)
	})

	t.Run("skips empty turns", func(t *testing.T) {
		track, entries, err := BuildTrack(vocals, []models.SpeakerTurn{
			turn("s0", 2.0, 2.0),
			turn("s0", 4.0, 5.0),
		})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.InDelta(t, 1.0, track.Duration(), 1e-3)
	})

	t.Run("no usable turns", func(t *testing.T) {
		_, _, err := BuildTrack(vocals, []models.SpeakerTurn{turn("s0", 3.0, 3.0)})
		require.Error(t, err)
	})
}

func TestCompactToGlobal(t *testing.T) {
	entries := []models.MappingEntry{
		{CompactStart: 0, CompactEnd: 2, GlobalStart: 1, GlobalEnd: 3},
		{CompactStart: 2, CompactEnd: 3, GlobalStart: 5, GlobalEnd: 6},
	}

	assert.InDelta(t, 1.0, CompactToGlobal(entries, 0), 1e-9)
	assert.InDelta(t, 2.5, CompactToGlobal(entries, 1.5), 1e-9)
	assert.InDelta(t, 5.5, CompactToGlobal(entries, 2.5), 1e-9, "second span")
	assert.InDelta(t, 6.0, CompactToGlobal(entries, 99), 1e-9, "clamps past the end")
	assert.InDelta(t, 1.0, CompactToGlobal(entries, -1), 1e-9, "clamps before the start")
	assert.InDelta(t, 7.0, CompactToGlobal(nil, 7.0), 1e-9, "identity without a mapping")
}

func TestCompactIntervals(t *testing.T) {
	entries := []models.MappingEntry{
		{CompactStart: 0, CompactEnd: 2, GlobalStart: 1, GlobalEnd: 3},
		{CompactStart: 2, CompactEnd: 3, GlobalStart: 5, GlobalEnd: 6},
	}

	t.Run("interval inside one span", func(t *testing.T) {
		got := compactIntervals(entries, 1.5, 2.5)
		require.Len(t, got, 1)
		assert.InDelta(t, 0.5, got[0][0], 1e-9)
		assert.InDelta(t, 1.5, got[0][1], 1e-9)
	})

	t.Run("interval across the gap", func(t *testing.T) {
		got := compactIntervals(entries, 2.0, 5.5)
		require.Len(t, got, 2)
		assert.InDelta(t, 1.0, got[0][0], 1e-9)
		assert.InDelta(t, 2.0, got[0][1], 1e-9)
		assert.InDelta(t, 2.0, got[1][0], 1e-9)
		assert.InDelta(t, 2.5, got[1][1], 1e-9)
	})

	t.Run("interval outside every span", func(t *testing.T) {
		assert.Empty(t, compactIntervals(entries, 3.2, 4.8))
	})
}

func TestToGlobal(t *testing.T) {
	entries := []models.MappingEntry{
		{CompactStart: 0, CompactEnd: 2, GlobalStart: 10, GlobalEnd: 12},
	}
	seg := models.Segment{
		Start: 0.5, End: 1.5, Text: "hi",
		Words: []models.Word{{Word: "hi", Start: 0.5, End: 1.5}},
	}

	got := toGlobal(seg, "s0", entries)
	assert.Equal(t, "s0", got.SpeakerID)
	assert.InDelta(t, 10.5, got.Start, 1e-9)
	assert.InDelta(t, 11.5, got.End, 1e-9)
	assert.InDelta(t, 10.5, got.Words[0].Start, 1e-9)

	t.Run("collapsed interval keeps a positive duration", func(t *testing.T) {
		clamped := toGlobal(models.Segment{Start: 2.5, End: 3.0}, "s0", entries)
		assert.Greater(t, clamped.End, clamped.Start)
	})
}

func TestReferenceClip(t *testing.T) {
	vocals := audio.Silence(20, 16000)
	speaker := &speakerSource{
		clip: audio.Silence(6, 16000),
		entries: []models.MappingEntry{
			{CompactStart: 0, CompactEnd: 6, GlobalStart: 2, GlobalEnd: 8},
		},
	}
	src := &refSources{vocals: vocals, speakers: map[string]*speakerSource{"s0": speaker}}

	t.Run("speaker segment uses its compact span", func(t *testing.T) {
		ref := referenceClip(src, models.Segment{SpeakerID: "s0", Start: 3, End: 6}, 1, 30)
		assert.InDelta(t, 3.0, ref.Duration(), 1e-3)
	})

	t.Run("short span falls back to the full track", func(t *testing.T) {
		ref := referenceClip(src, models.Segment{SpeakerID: "s0", Start: 3, End: 3.2}, 1, 30)
		assert.InDelta(t, speaker.clip.Duration(), ref.Duration(), 1e-3)
	})

	t.Run("unknown speaker slices the vocals", func(t *testing.T) {
		ref := referenceClip(src, models.Segment{Start: 1, End: 4}, 1, 30)
		assert.InDelta(t, 3.0, ref.Duration(), 1e-3)
	})

	t.Run("fallback capped at the maximum", func(t *testing.T) {
		ref := referenceClip(src, models.Segment{Start: 0, End: 0.1}, 1, 5)
		assert.InDelta(t, 5.0, ref.Duration(), 1e-3)
	})
}
