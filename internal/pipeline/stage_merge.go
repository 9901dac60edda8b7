package pipeline

import (
	"context"
	"path/filepath"

	"github.com/jmylchreest/revoice/internal/audio"
	"github.com/jmylchreest/revoice/internal/models"
)

// MergeVoiceStage assembles the cloned segments into the final voice
// track at their original timing and mixes the accompaniment back in.
type MergeVoiceStage struct{}

func (s *MergeVoiceStage) ID() int      { return models.StepMergeVoice }
func (s *MergeVoiceStage) Name() string { return models.StepName(s.ID()) }

func (s *MergeVoiceStage) Execute(ctx context.Context, run *Run) error {
	table, err := run.Store.ReadSegments(run.TaskID)
	if err != nil {
		return err
	}
	vocals, err := run.readClip(run.Layout.Vocals())
	if err != nil {
		return err
	}
	var accompaniment *audio.Clip
	if run.Store.ArtifactExists(run.TaskID, run.Layout.Accompaniment()) {
		if accompaniment, err = run.readClip(run.Layout.Accompaniment()); err != nil {
			return err
		}
	}

	// Clone paths in the table are workspace-relative; the merger's
	// stretch round-trip hands back absolute temp paths.
	load := func(path string) (*audio.Clip, error) {
		if !filepath.IsAbs(path) {
			abs, err := run.abs(path)
			if err != nil {
				return nil, err
			}
			path = abs
		}
		return audio.ReadFile(path)
	}

	out, placements, err := run.Merger.Assemble(ctx, vocals, accompaniment, table, load,
		func(i, total int) {
			run.Progress(s.ID(), float64(i)/float64(total), "merging segments", i+1, total)
		})
	if err != nil {
		return err
	}

	if err := run.writeClip(run.Layout.FinalVoice(), out); err != nil {
		return err
	}

	stretched, truncated, silent := 0, 0, 0
	for _, p := range placements {
		if p.Stretched > 0 {
			stretched++
		}
		if p.Truncated {
			truncated++
		}
		if p.Silent {
			silent++
		}
	}
	run.Log("step 8: merged %d placements (%d stretched, %d truncated, %d silent) -> %s",
		len(placements), stretched, truncated, silent, run.Layout.FinalVoice())
	return nil
}
