package pipeline

import (
	"context"

	"github.com/jmylchreest/revoice/internal/models"
)

// SeparateVocalsStage splits the extracted audio into a voice track and
// an accompaniment track through the separation engine.
type SeparateVocalsStage struct{}

func (s *SeparateVocalsStage) ID() int      { return models.StepSeparateVocals }
func (s *SeparateVocalsStage) Name() string { return models.StepName(s.ID()) }

func (s *SeparateVocalsStage) Execute(ctx context.Context, run *Run) error {
	in, err := run.abs(run.Layout.ExtractedAudio())
	if err != nil {
		return err
	}
	vocals, err := run.abs(run.Layout.Vocals())
	if err != nil {
		return err
	}
	accompaniment, err := run.abs(run.Layout.Accompaniment())
	if err != nil {
		return err
	}

	if err := run.Separator.Separate(ctx, in, vocals, accompaniment); err != nil {
		return err
	}
	run.Log("step 2: separated %s and %s", run.Layout.Vocals(), run.Layout.Accompaniment())
	return nil
}
