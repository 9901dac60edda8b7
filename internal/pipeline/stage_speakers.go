package pipeline

import (
	"context"
	"sort"

	"github.com/jmylchreest/revoice/internal/models"
	"github.com/jmylchreest/revoice/internal/storage"
)

// SpeakerTracksStage diarizes the voice track and builds one compact
// (silence-stripped) audio track per speaker, plus the time mapping that
// lets later stages translate between compact and global time. Skipped
// for single-speaker tasks.
type SpeakerTracksStage struct{}

func (s *SpeakerTracksStage) ID() int      { return models.StepSpeakerTracks }
func (s *SpeakerTracksStage) Name() string { return models.StepName(s.ID()) }

func (s *SpeakerTracksStage) Execute(ctx context.Context, run *Run) error {
	if run.Params.SingleSpeaker {
		run.Log("step 3: skipped (single speaker)")
		return nil
	}

	vocalsPath, err := run.abs(run.Layout.Vocals())
	if err != nil {
		return err
	}
	turns, err := run.Tracker.Diarize(ctx, vocalsPath)
	if err != nil {
		return err
	}

	bySpeaker := make(map[string][]models.SpeakerTurn)
	for _, turn := range turns {
		bySpeaker[turn.SpeakerID] = append(bySpeaker[turn.SpeakerID], turn)
	}
	speakers := make([]string, 0, len(bySpeaker))
	for id := range bySpeaker {
		speakers = append(speakers, id)
	}
	sort.Strings(speakers)

	if len(speakers) == 0 {
		// Diarization found nobody. Stage 4 falls back to transcribing the
		// whole voice track.
		run.Log("step 3: diarization found no speakers")
		return run.Store.PutJSON(run.TaskID, storage.SpeakerIndex, []models.SpeakerTrack{})
	}

	vocals, err := run.readClip(run.Layout.Vocals())
	if err != nil {
		return err
	}

	index := make([]models.SpeakerTrack, 0, len(speakers))
	for i, id := range speakers {
		if err := ctx.Err(); err != nil {
			return models.E(models.KindCancelled, "speaker tracks", models.ErrCancelled)
		}
		run.Progress(s.ID(), float64(i)/float64(len(speakers)), "building track for "+id, i+1, len(speakers))

		track, entries, err := BuildTrack(vocals, bySpeaker[id])
		if err != nil {
			run.Log("step 3: speaker %s skipped: %v", id, err)
			continue
		}
		if err := run.writeClip(run.Layout.SpeakerAudio(id), track); err != nil {
			return err
		}
		if err := run.Store.PutJSON(run.TaskID, run.Layout.SpeakerMapping(id), entries); err != nil {
			return err
		}
		index = append(index, models.SpeakerTrack{
			SpeakerID:   id,
			AudioPath:   run.Layout.SpeakerAudio(id),
			MappingPath: run.Layout.SpeakerMapping(id),
		})
		run.Log("step 3: speaker %s -> %s (%.1fs compact, %d turns)",
			id, run.Layout.SpeakerAudio(id), track.Duration(), len(bySpeaker[id]))
	}

	return run.Store.PutJSON(run.TaskID, storage.SpeakerIndex, index)
}
