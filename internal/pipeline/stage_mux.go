package pipeline

import (
	"context"

	"github.com/jmylchreest/revoice/internal/models"
)

// MuxStage produces the deliverable: the original video with the dubbed
// voice track, or an MP3 for audio-only inputs.
type MuxStage struct{}

func (s *MuxStage) ID() int      { return models.StepMux }
func (s *MuxStage) Name() string { return models.StepName(s.ID()) }

func (s *MuxStage) Execute(ctx context.Context, run *Run) error {
	voice, err := run.abs(run.Layout.FinalVoice())
	if err != nil {
		return err
	}

	var rel string
	if run.Params.IsVideo {
		rel = run.Layout.FinalVideo()
		video, err := run.abs(run.Params.InputPath)
		if err != nil {
			return err
		}
		out, err := run.abs(rel)
		if err != nil {
			return err
		}
		err = run.Tool.MuxVideo(ctx, video, voice, out)
		if err != nil {
			if ctx.Err() != nil {
				return models.E(models.KindCancelled, "mux", models.ErrCancelled)
			}
			return models.E(models.KindEngineFailure, "mux video", err)
		}
	} else {
		rel = run.Layout.FinalAudio()
		out, err := run.abs(rel)
		if err != nil {
			return err
		}
		if err := run.Tool.EncodeMP3(ctx, voice, out); err != nil {
			if ctx.Err() != nil {
				return models.E(models.KindCancelled, "mux", models.ErrCancelled)
			}
			return models.E(models.KindEngineFailure, "encode mp3", err)
		}
	}
	run.Log("step 9: wrote %s", rel)
	return nil
}
