// Package audio provides in-memory PCM clip manipulation for the voice
// merger and reference extraction: slicing, overlay, gain, RMS measurement,
// and WAV encoding/decoding. All operations are deterministic so that
// identical inputs produce byte-identical output tracks.
package audio

import (
	"fmt"
	"math"
)

// Clip is a decoded PCM audio buffer. Samples are interleaved when
// Channels > 1.
type Clip struct {
	SampleRate int
	Channels   int
	Samples    []int16
}

// Silence returns a mono clip of the given duration filled with zero samples.
func Silence(seconds float64, sampleRate int) *Clip {
	return &Clip{
		SampleRate: sampleRate,
		Channels:   1,
		Samples:    make([]int16, FrameCount(seconds, sampleRate)),
	}
}

// FrameCount converts a duration in seconds to a frame count at the given
// rate. Rounding is half-away-from-zero so placement math is stable across
// calls.
func FrameCount(seconds float64, sampleRate int) int {
	n := int(math.Round(seconds * float64(sampleRate)))
	if n < 0 {
		return 0
	}
	return n
}

// Frames returns the number of frames (samples per channel).
func (c *Clip) Frames() int {
	if c.Channels == 0 {
		return 0
	}
	return len(c.Samples) / c.Channels
}

// Duration returns the clip length in seconds.
func (c *Clip) Duration() float64 {
	if c.SampleRate == 0 {
		return 0
	}
	return float64(c.Frames()) / float64(c.SampleRate)
}

// Clone returns a deep copy of the clip.
func (c *Clip) Clone() *Clip {
	out := &Clip{SampleRate: c.SampleRate, Channels: c.Channels, Samples: make([]int16, len(c.Samples))}
	copy(out.Samples, c.Samples)
	return out
}

// Slice returns a copy of the frames in [startFrame, endFrame). Out-of-range
// bounds are clamped to the clip.
func (c *Clip) Slice(startFrame, endFrame int) *Clip {
	frames := c.Frames()
	if startFrame < 0 {
		startFrame = 0
	}
	if endFrame > frames {
		endFrame = frames
	}
	if startFrame >= endFrame {
		return &Clip{SampleRate: c.SampleRate, Channels: c.Channels}
	}
	out := make([]int16, (endFrame-startFrame)*c.Channels)
	copy(out, c.Samples[startFrame*c.Channels:endFrame*c.Channels])
	return &Clip{SampleRate: c.SampleRate, Channels: c.Channels, Samples: out}
}

// SliceSeconds returns a copy of the span [start, end), given in seconds.
func (c *Clip) SliceSeconds(start, end float64) *Clip {
	return c.Slice(FrameCount(start, c.SampleRate), FrameCount(end, c.SampleRate))
}

// Truncate shortens the clip in place to at most frames frames.
func (c *Clip) Truncate(frames int) {
	if frames < 0 {
		frames = 0
	}
	if frames < c.Frames() {
		c.Samples = c.Samples[:frames*c.Channels]
	}
}

// Concat appends the samples of each clip in order. All clips must share the
// sample rate and channel count of the first.
func Concat(clips ...*Clip) (*Clip, error) {
	if len(clips) == 0 {
		return nil, fmt.Errorf("audio: concat of zero clips")
	}
	first := clips[0]
	total := 0
	for _, clip := range clips {
		if clip.SampleRate != first.SampleRate || clip.Channels != first.Channels {
			return nil, fmt.Errorf("audio: concat format mismatch: %dHz/%dch vs %dHz/%dch",
				clip.SampleRate, clip.Channels, first.SampleRate, first.Channels)
		}
		total += len(clip.Samples)
	}
	out := make([]int16, 0, total)
	for _, clip := range clips {
		out = append(out, clip.Samples...)
	}
	return &Clip{SampleRate: first.SampleRate, Channels: first.Channels, Samples: out}, nil
}

// Mono folds the clip to a single channel by averaging each frame.
// Uses int32 arithmetic to prevent overflow and clamps to int16 range.
func (c *Clip) Mono() *Clip {
	if c.Channels <= 1 {
		return c.Clone()
	}
	frames := c.Frames()
	out := make([]int16, frames)
	for i := 0; i < frames; i++ {
		var sum int32
		for ch := 0; ch < c.Channels; ch++ {
			sum += int32(c.Samples[i*c.Channels+ch])
		}
		out[i] = clampInt16(sum / int32(c.Channels))
	}
	return &Clip{SampleRate: c.SampleRate, Channels: 1, Samples: out}
}

// Scale multiplies every sample by factor in place, clamping to int16 range.
func (c *Clip) Scale(factor float64) {
	for i, s := range c.Samples {
		c.Samples[i] = clampFloat(float64(s) * factor)
	}
}

// Gain applies a decibel gain in place. Gain(0) is a no-op.
func (c *Clip) Gain(db float64) {
	if db == 0 {
		return
	}
	c.Scale(DBToScale(db))
}

// DBToScale converts a decibel gain to a linear scale factor.
func DBToScale(db float64) float64 {
	return math.Pow(10, db/20)
}

// ScaleToDB converts a linear scale factor to decibels.
// A non-positive factor maps to -Inf.
func ScaleToDB(scale float64) float64 {
	if scale <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(scale)
}

// RMS returns the root-mean-square level normalized to [0, 1].
// An empty or silent clip returns 0.
func (c *Clip) RMS() float64 {
	if len(c.Samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range c.Samples {
		v := float64(s) / 32768.0
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(c.Samples)))
}

// RMSdB returns the RMS level in dBFS. A silent clip returns -Inf.
func (c *Clip) RMSdB() float64 {
	return ScaleToDB(c.RMS())
}

// Peak returns the largest absolute sample value normalized to [0, 1].
func (c *Clip) Peak() float64 {
	var peak int32
	for _, s := range c.Samples {
		v := int32(s)
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	return float64(peak) / 32768.0
}

// FadeOut applies a linear fade over the final seconds of the clip in place.
func (c *Clip) FadeOut(seconds float64) {
	frames := c.Frames()
	fadeFrames := FrameCount(seconds, c.SampleRate)
	if fadeFrames <= 0 {
		return
	}
	if fadeFrames > frames {
		fadeFrames = frames
	}
	start := frames - fadeFrames
	for i := 0; i < fadeFrames; i++ {
		factor := float64(fadeFrames-i-1) / float64(fadeFrames)
		for ch := 0; ch < c.Channels; ch++ {
			idx := (start+i)*c.Channels + ch
			c.Samples[idx] = clampFloat(float64(c.Samples[idx]) * factor)
		}
	}
}

// Overlay sums src into c starting at the given frame offset, clamping to
// int16 range. Frames of src past the end of c are dropped. The clips must
// share sample rate and channel count.
func (c *Clip) Overlay(src *Clip, atFrame int) error {
	if src.SampleRate != c.SampleRate || src.Channels != c.Channels {
		return fmt.Errorf("audio: overlay format mismatch: %dHz/%dch onto %dHz/%dch",
			src.SampleRate, src.Channels, c.SampleRate, c.Channels)
	}
	if atFrame < 0 {
		atFrame = 0
	}
	frames := c.Frames()
	for i := 0; i < src.Frames(); i++ {
		dst := atFrame + i
		if dst >= frames {
			break
		}
		for ch := 0; ch < c.Channels; ch++ {
			di := dst*c.Channels + ch
			si := i*c.Channels + ch
			c.Samples[di] = clampInt16(int32(c.Samples[di]) + int32(src.Samples[si]))
		}
	}
	return nil
}

func clampInt16(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}

func clampFloat(v float64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
