package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/revoice/internal/models"
)

func createAged(t *testing.T, s *Store, name string, status models.TaskStatus, age time.Duration) string {
	t.Helper()
	created := time.Now().Add(-age)
	id := models.NewTaskID(created.UTC(), name)
	state := testState(id)
	state.Status = status
	state.CreatedAt = created
	state.UpdatedAt = created
	require.NoError(t, s.Create(state, &models.TaskParams{}))
	return id
}

func TestRetentionSweep(t *testing.T) {
	s := newTestStore(t)
	week := 7 * 24 * time.Hour

	expired := createAged(t, s, "old_done.mp4", models.StatusCompleted, 30*24*time.Hour)
	expiredFailed := createAged(t, s, "old_failed.mp4", models.StatusFailed, 30*24*time.Hour)
	fresh := createAged(t, s, "fresh_done.mp4", models.StatusCompleted, time.Hour)
	pausedOld := createAged(t, s, "old_paused.mp4", models.StatusPausedStep5, 30*24*time.Hour)

	NewRetentionSweeper(s, nil, week, nil).Sweep()

	assert.False(t, s.Exists(expired))
	assert.False(t, s.Exists(expiredFailed))
	assert.True(t, s.Exists(fresh), "recent terminal task kept")
	assert.True(t, s.Exists(pausedOld), "paused task kept regardless of age")
}

func TestRetentionSweepsUploads(t *testing.T) {
	s := newTestStore(t)
	uploads, err := NewUploadStore(t.TempDir(), nil)
	require.NoError(t, err)

	NewRetentionSweeper(s, uploads, time.Hour, nil).Sweep()
}
