package ffmpeg

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Pipeline audio format: 16 kHz mono signed 16-bit PCM. Every engine in
// the chain consumes and produces this format.
const (
	PipelineSampleRate = 16000
	PipelineChannels   = 1
)

// Tool bundles the resolved binaries behind the media operations the
// pipeline needs.
type Tool struct {
	bins   *Binaries
	prober *Prober
}

// NewTool creates a Tool from resolved binaries.
func NewTool(bins *Binaries) *Tool {
	return &Tool{bins: bins, prober: NewProber(bins.FFprobe)}
}

// Probe inspects a media file.
func (t *Tool) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	return t.prober.Probe(ctx, path)
}

// HasVideo reports whether the file carries a video stream.
func (t *Tool) HasVideo(ctx context.Context, path string) (bool, error) {
	res, err := t.Probe(ctx, path)
	if err != nil {
		return false, err
	}
	return res.VideoStream() != nil, nil
}

// ExtractAudio decodes any input container to the pipeline audio format.
func (t *Tool) ExtractAudio(ctx context.Context, input, output string) error {
	return NewCommandBuilder(t.bins.FFmpeg).
		HideBanner().
		Overwrite().
		Input(input).
		NoVideo().
		AudioCodec("pcm_s16le").
		AudioChannels(PipelineChannels).
		SampleRate(PipelineSampleRate).
		Output(output).
		Build().
		Run(ctx)
}

// Stretch speeds audio up or down by factor using atempo. A factor above
// 2 is decomposed into a chain because one atempo instance only covers
// [0.5, 2.0].
func (t *Tool) Stretch(ctx context.Context, input, output string, factor float64) error {
	chain, err := AtempoChain(factor)
	if err != nil {
		return err
	}
	return NewCommandBuilder(t.bins.FFmpeg).
		HideBanner().
		Overwrite().
		Input(input).
		AudioFilter(chain).
		AudioCodec("pcm_s16le").
		Output(output).
		Build().
		Run(ctx)
}

// AtempoChain renders factor as one or more chained atempo filters.
func AtempoChain(factor float64) (string, error) {
	if factor <= 0 {
		return "", fmt.Errorf("atempo factor must be positive, got %g", factor)
	}
	var parts []string
	for factor > 2.0 {
		parts = append(parts, "atempo=2.0")
		factor /= 2.0
	}
	for factor < 0.5 {
		parts = append(parts, "atempo=0.5")
		factor /= 0.5
	}
	parts = append(parts, fmt.Sprintf("atempo=%.6f", factor))
	return strings.Join(parts, ","), nil
}

// MuxVideo replaces the source's audio with the dubbed track, copying the
// video stream untouched.
func (t *Tool) MuxVideo(ctx context.Context, video, audio, output string) error {
	return NewCommandBuilder(t.bins.FFmpeg).
		HideBanner().
		Overwrite().
		Input(video).
		Input(audio).
		Map("0:v:0").
		Map("1:a:0").
		VideoCodec("copy").
		AudioCodec("aac").
		OutputArgs("-shortest").
		Output(output).
		Build().
		Run(ctx)
}

// EncodeMP3 renders the final track for audio-only inputs.
func (t *Tool) EncodeMP3(ctx context.Context, input, output string) error {
	return NewCommandBuilder(t.bins.FFmpeg).
		HideBanner().
		Overwrite().
		Input(input).
		AudioCodec("libmp3lame").
		OutputArgs("-q:a", "2").
		Output(output).
		Build().
		Run(ctx)
}

// Duration probes a file and returns its duration.
func (t *Tool) Duration(ctx context.Context, path string) (time.Duration, error) {
	result, err := t.prober.Probe(ctx, path)
	if err != nil {
		return 0, err
	}
	return result.Duration()
}
