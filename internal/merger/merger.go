// Package merger implements timed assembly of cloned segments into the
// final voice track. The output always has exactly the source duration;
// placements never overlap; levels follow the original vocals.
package merger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmylchreest/revoice/internal/audio"
	"github.com/jmylchreest/revoice/internal/models"
)

// levelMatchRangeDB bounds the gain applied when matching a clone's level
// to the original vocals over its slot.
const levelMatchRangeDB = 3.0

// Stretcher time-compresses a clone by factor. The ffmpeg Tool provides
// the production implementation via atempo.
type Stretcher interface {
	Stretch(ctx context.Context, input, output string, factor float64) error
}

// Config controls assembly.
type Config struct {
	// MaxStretch caps the speed-up factor for over-long clones. Anything
	// still too long afterwards is truncated from the tail.
	MaxStretch float64
	// AccompanimentGainDB is applied to the accompaniment when mixing it
	// under the voice track.
	AccompanimentGainDB float64
}

// Merger builds the stage-8 voice track.
type Merger struct {
	cfg       Config
	stretcher Stretcher
	logger    *slog.Logger
}

// New creates a Merger.
func New(cfg Config, stretcher Stretcher, logger *slog.Logger) *Merger {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxStretch < 1.0 {
		cfg.MaxStretch = 2.0
	}
	return &Merger{cfg: cfg, stretcher: stretcher, logger: logger.With("component", "merger")}
}

// Placement records where one segment landed in the output, for the
// processing log and for invariant checks in tests.
type Placement struct {
	SegmentID  int
	StartFrame int
	EndFrame   int
	Stretched  float64 // applied stretch factor, 0 when none
	Truncated  bool
	Silent     bool // clone missing or failed, slot left silent
	GainDB     float64
}

// ClipLoader resolves a segment's clone path to a decoded clip. Exists so
// tests can feed synthetic clips; production wires storage + audio.ReadFile.
type ClipLoader func(path string) (*audio.Clip, error)

// Assemble builds the voice track.
//
// vocals is the original voice track (defines duration, sample rate, and
// per-slot reference levels). accompaniment may be nil. Progress is
// reported through onSegment, which may be nil.
func (m *Merger) Assemble(
	ctx context.Context,
	vocals *audio.Clip,
	accompaniment *audio.Clip,
	table []models.Segment,
	load ClipLoader,
	onSegment func(i, total int),
) (*audio.Clip, []Placement, error) {
	out := audio.Silence(vocals.Duration(), vocals.SampleRate)
	placements := make([]Placement, 0, len(table))
	prevEnd := 0

	for i, seg := range table {
		if err := ctx.Err(); err != nil {
			return nil, nil, models.E(models.KindCancelled, "merger: assemble", models.ErrCancelled)
		}
		if onSegment != nil {
			onSegment(i, len(table))
		}

		p, err := m.place(ctx, out, vocals, seg, load, prevEnd)
		if err != nil {
			return nil, nil, err
		}
		if p.EndFrame > prevEnd {
			prevEnd = p.EndFrame
		}
		placements = append(placements, p)
	}

	if accompaniment != nil {
		mix := accompaniment.Resample(out.SampleRate)
		mix.Gain(m.cfg.AccompanimentGainDB)
		if err := out.Overlay(mix, 0); err != nil {
			return nil, nil, models.E(models.KindIOFailure, "merger: mix accompaniment", err)
		}
	}
	return out, placements, nil
}

// place puts one segment's clone into the output track.
func (m *Merger) place(
	ctx context.Context,
	out *audio.Clip,
	vocals *audio.Clip,
	seg models.Segment,
	load ClipLoader,
	prevEnd int,
) (Placement, error) {
	p := Placement{SegmentID: seg.ID}

	startFrame := audio.FrameCount(seg.Start, out.SampleRate)
	// Overlap repair: shift forward past the previous placement.
	if startFrame < prevEnd {
		startFrame = prevEnd
	}
	p.StartFrame = startFrame
	if startFrame >= out.Frames() {
		p.EndFrame = startFrame
		p.Silent = true
		return p, nil
	}

	if seg.ClonedAudioPath == "" || seg.Error != "" {
		// Failed or missing clone keeps its slot silent.
		p.Silent = true
		p.EndFrame = min(audio.FrameCount(seg.End, out.SampleRate), out.Frames())
		if p.EndFrame < startFrame {
			p.EndFrame = startFrame
		}
		return p, nil
	}

	clip, err := load(seg.ClonedAudioPath)
	if err != nil {
		return p, models.E(models.KindIOFailure,
			fmt.Sprintf("merger: load clone for segment %d", seg.ID), err)
	}
	clip = clip.Mono().Resample(out.SampleRate)

	target := seg.Duration()
	clip, p.Stretched, p.Truncated, err = m.fit(ctx, clip, target, seg.ID, load)
	if err != nil {
		return p, err
	}
	if startFrame+clip.Frames() > out.Frames() {
		clip.Truncate(out.Frames() - startFrame)
		p.Truncated = true
	}

	p.GainDB = matchLevel(clip, vocals, seg)
	if err := out.Overlay(clip, startFrame); err != nil {
		return p, models.E(models.KindIOFailure,
			fmt.Sprintf("merger: place segment %d", seg.ID), err)
	}
	p.EndFrame = startFrame + clip.Frames()
	return p, nil
}

// fit handles clones that run over their slot. A moderate overrun (up to
// the stretch cap) is left alone and spills into the following silence;
// anything beyond the cap is time-compressed by the capped factor through
// the external tool, and whatever still exceeds the slot is truncated
// with a short fade.
func (m *Merger) fit(ctx context.Context, clip *audio.Clip, target float64, segID int, load ClipLoader) (*audio.Clip, float64, bool, error) {
	actual := clip.Duration()
	if target <= 0 || actual <= target*m.cfg.MaxStretch {
		return clip, 0, false, nil
	}

	factor := m.cfg.MaxStretch
	if m.stretcher != nil {
		in, out, err := m.stretchFiles(ctx, clip, factor, segID)
		if err != nil {
			return nil, 0, false, err
		}
		defer cleanupTemp(in, out)

		stretched, err := load(out)
		if err != nil {
			return nil, 0, false, models.E(models.KindIOFailure,
				fmt.Sprintf("merger: read stretched segment %d", segID), err)
		}
		clip = stretched.Mono().Resample(clip.SampleRate)
	} else {
		factor = 0
	}

	truncated := false
	targetFrames := audio.FrameCount(target, clip.SampleRate)
	if clip.Frames() > targetFrames {
		clip.Truncate(targetFrames)
		clip.FadeOut(0.01)
		truncated = true
	}
	return clip, factor, truncated, nil
}

// matchLevel scales the clip so its RMS matches the original vocals over
// the segment slot, clamped to the level-match range.
func matchLevel(clip *audio.Clip, vocals *audio.Clip, seg models.Segment) float64 {
	ref := vocals.SliceSeconds(seg.Start, seg.End)
	refDB := ref.RMSdB()
	clipDB := clip.RMSdB()
	if refDB <= silenceFloorDB || clipDB <= silenceFloorDB {
		return 0
	}
	gain := refDB - clipDB
	if gain > levelMatchRangeDB {
		gain = levelMatchRangeDB
	} else if gain < -levelMatchRangeDB {
		gain = -levelMatchRangeDB
	}
	clip.Gain(gain)
	return gain
}

// silenceFloorDB is the RMS level below which a slot is treated as silent
// and level matching is skipped.
const silenceFloorDB = -60.0
