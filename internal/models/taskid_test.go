package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewTaskID(t *testing.T) {
	ts := time.Date(2025, 8, 25, 14, 3, 7, 0, time.UTC)
	id := NewTaskID(ts, "holiday video.mp4")
	assert.Equal(t, "2025-08-25_14-03-07_holiday_video", id)
	assert.True(t, ValidTaskID(id))
}

func TestSanitizeBaseName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"clip.mp4", "clip"},
		{"my movie (final).mkv", "my_movie__final_"},
		{"/tmp/uploads/a b.wav", "a_b"},
		{"...", ".."},
		{"", "media"},
		{"видео.mp4", "видео"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeBaseName(tt.in), "input %q", tt.in)
	}
}

func TestValidTaskID(t *testing.T) {
	assert.True(t, ValidTaskID("2025-08-25_14-03-07_clip"))
	assert.False(t, ValidTaskID("../etc/passwd"))
	assert.False(t, ValidTaskID("2025-08-25_14-03-07"))
	assert.False(t, ValidTaskID("not-a-timestamp_clip"))
	assert.False(t, ValidTaskID(""))
}

func TestValidateLang(t *testing.T) {
	assert.NoError(t, ValidateLang("en"))
	assert.NoError(t, ValidateLang("zh"))
	assert.NoError(t, ValidateLang("pt-BR"))
	assert.NoError(t, ValidateLang(LangAuto))
	assert.Error(t, ValidateLang(""))
	assert.Error(t, ValidateLang("not a language"))
}
