package pipeline

import (
	"context"

	"github.com/jmylchreest/revoice/internal/audio"
	"github.com/jmylchreest/revoice/internal/models"
)

// ExtractReferencesStage cuts a voice reference clip for every segment
// awaiting a clone. The reference comes from the segment's own span of
// the speaker's compact track (or of the vocals for single-speaker
// tasks); spans too short to condition the cloner fall back to the whole
// source track, capped at the configured maximum.
type ExtractReferencesStage struct{}

func (s *ExtractReferencesStage) ID() int      { return models.StepExtractReferences }
func (s *ExtractReferencesStage) Name() string { return models.StepName(s.ID()) }

func (s *ExtractReferencesStage) Execute(ctx context.Context, run *Run) error {
	table, err := run.Store.ReadSegments(run.TaskID)
	if err != nil {
		return err
	}

	src, err := loadRefSources(run)
	if err != nil {
		return err
	}

	extracted := 0
	for i, seg := range table {
		if err := ctx.Err(); err != nil {
			return models.E(models.KindCancelled, "extract references", models.ErrCancelled)
		}
		if !run.wantSegment(seg) || seg.TranslatedText == "" || seg.ClonedAudioPath != "" {
			continue
		}
		run.Progress(s.ID(), float64(i)/float64(len(table)), "extracting references", i+1, len(table))

		ref := referenceClip(src, seg, run.Cfg.MinReferenceSeconds, run.Cfg.MaxReferenceSeconds)
		if err := run.writeClip(run.Layout.RefSegment(seg.ID), ref); err != nil {
			return err
		}
		extracted++
	}
	run.Log("step 6: extracted %d reference clips", extracted)
	return nil
}

// speakerSource is one speaker's compact track and its time mapping.
type speakerSource struct {
	clip    *audio.Clip
	entries []models.MappingEntry
}

// refSources holds the audio reference material for stage 6.
type refSources struct {
	vocals   *audio.Clip
	speakers map[string]*speakerSource
}

func loadRefSources(run *Run) (*refSources, error) {
	vocals, err := run.readClip(run.Layout.Vocals())
	if err != nil {
		return nil, err
	}
	src := &refSources{vocals: vocals, speakers: make(map[string]*speakerSource)}

	tracks, err := loadSpeakerIndex(run)
	if err != nil {
		return nil, err
	}
	for _, track := range tracks {
		clip, err := run.readClip(track.AudioPath)
		if err != nil {
			return nil, err
		}
		var entries []models.MappingEntry
		if err := run.Store.ReadJSON(run.TaskID, track.MappingPath, &entries); err != nil {
			return nil, err
		}
		src.speakers[track.SpeakerID] = &speakerSource{clip: clip, entries: entries}
	}
	return src, nil
}

// referenceClip picks the reference audio for one segment.
func referenceClip(src *refSources, seg models.Segment, minSeconds, maxSeconds float64) *audio.Clip {
	var ref, full *audio.Clip
	if sp, ok := src.speakers[seg.SpeakerID]; ok && seg.SpeakerID != "" {
		full = sp.clip
		ref = sliceCompact(sp, seg.Start, seg.End)
	} else {
		full = src.vocals
		ref = src.vocals.SliceSeconds(seg.Start, seg.End)
	}
	if ref == nil || ref.Duration() < minSeconds {
		ref = full.Clone()
	}
	maxFrames := audio.FrameCount(maxSeconds, ref.SampleRate)
	if ref.Frames() > maxFrames {
		ref = ref.Clone()
		ref.Truncate(maxFrames)
	}
	return ref
}

// sliceCompact cuts the compact-track audio covered by a global interval.
func sliceCompact(sp *speakerSource, start, end float64) *audio.Clip {
	intervals := compactIntervals(sp.entries, start, end)
	if len(intervals) == 0 {
		return nil
	}
	parts := make([]*audio.Clip, 0, len(intervals))
	for _, iv := range intervals {
		part := sp.clip.SliceSeconds(iv[0], iv[1])
		if part.Frames() > 0 {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return nil
	}
	out, err := audio.Concat(parts...)
	if err != nil {
		return nil
	}
	return out
}
