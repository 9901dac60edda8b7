package pipeline

import (
	"context"
	"encoding/json"

	"github.com/jmylchreest/revoice/internal/models"
	"github.com/jmylchreest/revoice/internal/segments"
	"github.com/jmylchreest/revoice/internal/storage"
)

// TranscribeStage converts speech to the canonical segment table. With
// speaker tracks present, each compact track is transcribed separately
// and the results are mapped back onto the global timeline; otherwise
// the whole voice track is transcribed in one pass.
type TranscribeStage struct{}

func (s *TranscribeStage) ID() int      { return models.StepTranscribe }
func (s *TranscribeStage) Name() string { return models.StepName(s.ID()) }

func (s *TranscribeStage) Execute(ctx context.Context, run *Run) error {
	tracks, err := loadSpeakerIndex(run)
	if err != nil {
		return err
	}

	var (
		table    []models.Segment
		raw      = make(map[string]json.RawMessage)
		detected string
	)
	if len(tracks) == 0 {
		table, detected, err = s.transcribeVocals(ctx, run, raw)
	} else {
		table, detected, err = s.transcribeTracks(ctx, run, tracks, raw)
	}
	if err != nil {
		return err
	}

	for i := range table {
		table[i].OriginalDuration = table[i].Duration()
	}
	table = segments.SplitOnGaps(table, run.Cfg.SilenceSplitGapS)
	table = segments.Normalize(table)

	if err := run.Store.PutJSON(run.TaskID, run.Layout.RawTranscript(), raw); err != nil {
		return err
	}
	if err := run.Store.WriteSegments(run.TaskID, table); err != nil {
		return err
	}

	if run.Params.SourceLang == models.LangAuto && detected != "" {
		if _, err := run.Store.PatchStatus(run.TaskID, func(st *models.TaskState) {
			st.SourceLang = detected
		}); err != nil {
			return err
		}
		run.Log("step 4: detected source language %q", detected)
	}
	run.Log("step 4: %d segments -> %s", len(table), run.Layout.Segments())
	return nil
}

func (s *TranscribeStage) transcribeVocals(ctx context.Context, run *Run, raw map[string]json.RawMessage) ([]models.Segment, string, error) {
	path, err := run.abs(run.Layout.Vocals())
	if err != nil {
		return nil, "", err
	}
	run.Progress(s.ID(), 0, "transcribing voice track", 0, 1)

	tr, err := run.Transcriber.Transcribe(ctx, path, run.Params.SourceLang)
	if err != nil {
		return nil, "", err
	}
	raw["vocals"] = tr.Raw
	return tr.Segments, tr.Language, nil
}

func (s *TranscribeStage) transcribeTracks(ctx context.Context, run *Run, tracks []models.SpeakerTrack, raw map[string]json.RawMessage) ([]models.Segment, string, error) {
	var (
		table    []models.Segment
		detected string
	)
	for i, track := range tracks {
		run.Progress(s.ID(), float64(i)/float64(len(tracks)),
			"transcribing "+track.SpeakerID, i+1, len(tracks))

		path, err := run.abs(track.AudioPath)
		if err != nil {
			return nil, "", err
		}
		var entries []models.MappingEntry
		if err := run.Store.ReadJSON(run.TaskID, track.MappingPath, &entries); err != nil {
			return nil, "", err
		}

		tr, err := run.Transcriber.Transcribe(ctx, path, run.Params.SourceLang)
		if err != nil {
			return nil, "", err
		}
		raw[track.SpeakerID] = tr.Raw
		if detected == "" {
			detected = tr.Language
		}

		for _, seg := range tr.Segments {
			table = append(table, toGlobal(seg, track.SpeakerID, entries))
		}
		run.Log("step 4: speaker %s: %d segments", track.SpeakerID, len(tr.Segments))
	}
	return table, detected, nil
}

// toGlobal rewrites a compact-time segment onto the global timeline.
func toGlobal(seg models.Segment, speakerID string, entries []models.MappingEntry) models.Segment {
	seg.SpeakerID = speakerID
	seg.Start = CompactToGlobal(entries, seg.Start)
	seg.End = CompactToGlobal(entries, seg.End)
	if seg.End <= seg.Start {
		// Clamping at a mapping edge can collapse the interval.
		seg.End = seg.Start + 0.01
	}
	for i := range seg.Words {
		seg.Words[i].Start = CompactToGlobal(entries, seg.Words[i].Start)
		seg.Words[i].End = CompactToGlobal(entries, seg.Words[i].End)
	}
	return seg
}

// loadSpeakerIndex reads the speakers/tracks.json index, returning an
// empty slice when stage 3 was skipped or found no speakers.
func loadSpeakerIndex(run *Run) ([]models.SpeakerTrack, error) {
	if !run.Store.ArtifactExists(run.TaskID, storage.SpeakerIndex) {
		return nil, nil
	}
	var tracks []models.SpeakerTrack
	if err := run.Store.ReadJSON(run.TaskID, storage.SpeakerIndex, &tracks); err != nil {
		return nil, err
	}
	return tracks, nil
}
