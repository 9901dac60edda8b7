package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewULID(t *testing.T) {
	id := NewULID()
	assert.False(t, id.IsZero(), "NewULID should generate a non-zero ID")

	id2 := NewULID()
	assert.NotEqual(t, id, id2, "two NewULID calls should produce different IDs")
}

func TestParseULID(t *testing.T) {
	t.Run("valid ULID string", func(t *testing.T) {
		original := NewULID()
		parsed, err := ParseULID(original.String())
		require.NoError(t, err)
		assert.Equal(t, original, parsed)
	})

	t.Run("invalid ULID string", func(t *testing.T) {
		_, err := ParseULID("not-a-valid-ulid")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid ULID")
	})
}

func TestULID_JSON_Roundtrip(t *testing.T) {
	type wrapper struct {
		ID ULID `json:"id"`
	}

	t.Run("non-zero roundtrip", func(t *testing.T) {
		original := wrapper{ID: NewULID()}
		data, err := json.Marshal(original)
		require.NoError(t, err)

		var decoded wrapper
		err = json.Unmarshal(data, &decoded)
		require.NoError(t, err)
		assert.Equal(t, original.ID, decoded.ID)
	})

	t.Run("zero marshals to null", func(t *testing.T) {
		var zero ULID
		data, err := json.Marshal(zero)
		require.NoError(t, err)
		assert.Equal(t, "null", string(data))
	})

	t.Run("invalid JSON format errors", func(t *testing.T) {
		var u ULID
		err := json.Unmarshal([]byte("12345"), &u)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid ULID JSON")
	})
}

func TestTaskStatus(t *testing.T) {
	tests := []struct {
		status   TaskStatus
		terminal bool
		paused   bool
	}{
		{StatusPending, false, false},
		{StatusProcessing, false, false},
		{StatusPausedStep4, false, true},
		{StatusPausedStep5, false, true},
		{StatusCompleted, true, false},
		{StatusFailed, true, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.IsTerminal())
			assert.Equal(t, tt.paused, tt.status.IsPaused())
		})
	}
}

func TestPausePoint_Valid(t *testing.T) {
	assert.True(t, PauseNone.Valid())
	assert.True(t, PauseStep4.Valid())
	assert.True(t, PauseStep5.Valid())
	assert.False(t, PausePoint("step7").Valid())
}

func TestStepName(t *testing.T) {
	assert.Equal(t, "Audio Extraction", StepName(StepExtractAudio))
	assert.Equal(t, "Muxing", StepName(StepMux))
	assert.Equal(t, "", StepName(0))
	assert.Equal(t, "", StepName(10))
}

func TestSegment_Duration(t *testing.T) {
	s := Segment{Start: 1.5, End: 4.0}
	assert.InDelta(t, 2.5, s.Duration(), 1e-9)
}

func TestSegment_Invalidate(t *testing.T) {
	s := Segment{
		ID:                 3,
		Start:              1.0,
		End:                2.0,
		Text:               "hello",
		TranslatedText:     "hallo",
		ClonedAudioPath:    "cloned_audio/x_07_segment_003.wav",
		ClonedDuration:     1.8,
		DurationMultiplier: 1.8,
		Error:              "previous failure",
		Dirty:              true,
	}

	s.Invalidate()

	assert.Empty(t, s.TranslatedText)
	assert.Empty(t, s.ClonedAudioPath)
	assert.Zero(t, s.ClonedDuration)
	assert.Zero(t, s.DurationMultiplier)
	assert.Empty(t, s.Error)
	assert.False(t, s.Dirty)
	assert.Equal(t, "hello", s.Text, "source text must survive invalidation")
	assert.Equal(t, 3, s.ID)
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind ErrorKind
	}{
		{"wrapped kinded error", E(KindEngineFailure, "clone", errors.New("boom")), KindEngineFailure},
		{"nested kinded error", E(KindCancelled, "stage", E(KindCancelled, "inner", ErrCancelled)), KindCancelled},
		{"task not found sentinel", ErrTaskNotFound, KindInvalidRequest},
		{"task exists sentinel", ErrTaskExists, KindConflict},
		{"wrong state sentinel", ErrWrongState, KindConflict},
		{"corrupt sentinel", ErrCorruptState, KindCorrupt},
		{"plain error defaults to io", errors.New("disk on fire"), KindIOFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.kind, KindOf(tt.err))
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	inner := errors.New("root cause")
	err := E(KindIOFailure, "write status", inner)
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "write status")
}

func TestTaskState_Clone(t *testing.T) {
	orig := &TaskState{ID: NewTaskID(time.Now(), "clip.mp4"), Status: StatusProcessing, CurrentStep: 4}
	c := orig.Clone()
	c.Status = StatusFailed
	c.CurrentStep = 9

	assert.Equal(t, StatusProcessing, orig.Status)
	assert.Equal(t, 4, orig.CurrentStep)
}
