package merger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmylchreest/revoice/internal/audio"
	"github.com/jmylchreest/revoice/internal/models"
)

// stretchFiles round-trips the clip through the external tool: encode to
// a temp WAV, stretch into a second temp file, and hand both paths back
// for loading and cleanup.
func (m *Merger) stretchFiles(ctx context.Context, clip *audio.Clip, factor float64, segID int) (string, string, error) {
	dir, err := os.MkdirTemp("", "revoice-stretch-")
	if err != nil {
		return "", "", models.E(models.KindIOFailure, "merger: temp dir", err)
	}
	in := filepath.Join(dir, fmt.Sprintf("seg_%03d_in.wav", segID))
	out := filepath.Join(dir, fmt.Sprintf("seg_%03d_out.wav", segID))

	if err := audio.WriteFile(in, clip); err != nil {
		os.RemoveAll(dir)
		return "", "", models.E(models.KindIOFailure, "merger: write stretch input", err)
	}
	if err := m.stretcher.Stretch(ctx, in, out, factor); err != nil {
		os.RemoveAll(dir)
		if ctx.Err() != nil {
			return "", "", models.E(models.KindCancelled, "merger: stretch", models.ErrCancelled)
		}
		return "", "", models.E(models.KindEngineFailure,
			fmt.Sprintf("merger: stretch segment %d by %.3f", segID, factor), err)
	}
	return in, out, nil
}

// cleanupTemp removes the shared temp directory of a stretch round-trip.
func cleanupTemp(in, _ string) {
	os.RemoveAll(filepath.Dir(in))
}
