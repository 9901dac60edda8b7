package pipeline

import (
	"context"

	"github.com/jmylchreest/revoice/internal/models"
)

// ExtractAudioStage converts the source media into the pipeline audio
// format, a 16 kHz mono WAV.
type ExtractAudioStage struct{}

func (s *ExtractAudioStage) ID() int      { return models.StepExtractAudio }
func (s *ExtractAudioStage) Name() string { return models.StepName(s.ID()) }

func (s *ExtractAudioStage) Execute(ctx context.Context, run *Run) error {
	in, err := run.abs(run.Params.InputPath)
	if err != nil {
		return err
	}
	out, err := run.abs(run.Layout.ExtractedAudio())
	if err != nil {
		return err
	}

	if err := run.Tool.ExtractAudio(ctx, in, out); err != nil {
		if ctx.Err() != nil {
			return models.E(models.KindCancelled, "extract audio", models.ErrCancelled)
		}
		return models.E(models.KindEngineFailure, "extract audio", err)
	}

	d, err := run.Tool.Duration(ctx, out)
	if err != nil {
		return models.E(models.KindEngineFailure, "probe extracted audio", err)
	}
	run.Log("step 1: extracted %s (%.1fs)", run.Layout.ExtractedAudio(), d.Seconds())
	return nil
}
