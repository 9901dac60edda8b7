package storage

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadStore(t *testing.T) {
	u, err := NewUploadStore(t.TempDir(), nil)
	require.NoError(t, err)

	id, err := u.Put("Holiday Video.mp4", strings.NewReader("media bytes"))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(id, "_Holiday_Video.mp4"))
	assert.Equal(t, "Holiday_Video.mp4", OriginalName(id))

	abs, err := u.Path(id)
	require.NoError(t, err)
	data, err := os.ReadFile(abs)
	require.NoError(t, err)
	assert.Equal(t, "media bytes", string(data))

	t.Run("ids sort by arrival time", func(t *testing.T) {
		time.Sleep(2 * time.Millisecond)
		second, err := u.Put("b.mp4", strings.NewReader("x"))
		require.NoError(t, err)
		assert.Less(t, id[:26], second[:26])
	})

	t.Run("path traversal rejected", func(t *testing.T) {
		_, err := u.Path("../escape.mp4")
		assert.Error(t, err)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := u.Path("01ARZ3NDEKTSV4RRFFQ69G5FAV_x.mp4")
		assert.Error(t, err)
	})

	t.Run("remove is idempotent", func(t *testing.T) {
		require.NoError(t, u.Remove(id))
		require.NoError(t, u.Remove(id))
		_, err := u.Path(id)
		assert.Error(t, err)
	})

	t.Run("sweep removes stale files only", func(t *testing.T) {
		stale, err := u.Put("stale.mp4", strings.NewReader("x"))
		require.NoError(t, err)
		abs, err := u.Path(stale)
		require.NoError(t, err)
		old := time.Now().Add(-48 * time.Hour)
		require.NoError(t, os.Chtimes(abs, old, old))

		keep, err := u.Put("keep.mp4", strings.NewReader("x"))
		require.NoError(t, err)

		n, err := u.SweepOlderThan(24 * time.Hour)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 1)
		_, err = u.Path(stale)
		assert.Error(t, err)
		_, err = u.Path(keep)
		assert.NoError(t, err)
	})
}
