package ffmpeg

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandBuilder(t *testing.T) {
	cmd := NewCommandBuilder("/usr/bin/ffmpeg").
		HideBanner().
		Overwrite().
		Input("in.mp4").
		NoVideo().
		AudioCodec("pcm_s16le").
		AudioChannels(1).
		SampleRate(16000).
		Output("out.wav").
		Build()

	assert.Equal(t, "/usr/bin/ffmpeg", cmd.Binary)
	assert.Equal(t, []string{
		"-loglevel", "error", "-hide_banner", "-y",
		"-i", "in.mp4",
		"-vn", "-c:a", "pcm_s16le", "-ac", "1", "-ar", "16000",
		"out.wav",
	}, cmd.Args)
}

func TestCommandBuilder_MultipleInputsAndMaps(t *testing.T) {
	cmd := NewCommandBuilder("ffmpeg").
		Input("video.mp4").
		Input("voice.wav").
		Map("0:v:0").
		Map("1:a:0").
		VideoCodec("copy").
		AudioCodec("aac").
		Output("out.mp4").
		Build()

	line := cmd.String()
	assert.Contains(t, line, "-i video.mp4 -i voice.wav")
	assert.Contains(t, line, "-map 0:v:0 -map 1:a:0")
	assert.Contains(t, line, "-c:v copy -c:a aac")
}

func TestCommandBuilder_AudioFilterChain(t *testing.T) {
	cmd := NewCommandBuilder("ffmpeg").
		Input("in.wav").
		AudioFilter("atempo=1.5").
		AudioFilter("volume=0.5").
		Output("out.wav").
		Build()

	assert.Contains(t, cmd.String(), "-af atempo=1.5,volume=0.5")
}

func TestAtempoChain(t *testing.T) {
	tests := []struct {
		name   string
		factor float64
		want   string
	}{
		{"within range", 1.5, "atempo=1.500000"},
		{"exactly two", 2.0, "atempo=2.000000"},
		{"above two chains", 3.0, "atempo=2.0,atempo=1.500000"},
		{"far above two", 5.0, "atempo=2.0,atempo=2.0,atempo=1.250000"},
		{"below half chains", 0.25, "atempo=0.5,atempo=0.500000"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := AtempoChain(tt.factor)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("non-positive rejected", func(t *testing.T) {
		_, err := AtempoChain(0)
		assert.Error(t, err)
		_, err = AtempoChain(-1)
		assert.Error(t, err)
	})
}

func TestProbeResult(t *testing.T) {
	r := &ProbeResult{
		Format: ProbeFormat{Duration: "12.480000"},
		Streams: []ProbeStream{
			{Index: 0, CodecType: "video", CodecName: "h264", Width: 1920, Height: 1080},
			{Index: 1, CodecType: "audio", CodecName: "aac", Channels: 2},
		},
	}

	d, err := r.Duration()
	require.NoError(t, err)
	assert.InDelta(t, 12.48, d.Seconds(), 1e-6)

	v := r.VideoStream()
	require.NotNil(t, v)
	assert.Equal(t, "h264", v.CodecName)

	a := r.AudioStream()
	require.NotNil(t, a)
	assert.Equal(t, 2, a.Channels)

	t.Run("audio only", func(t *testing.T) {
		r := &ProbeResult{Streams: []ProbeStream{{CodecType: "audio"}}}
		assert.Nil(t, r.VideoStream())
		assert.NotNil(t, r.AudioStream())
	})

	t.Run("bad duration", func(t *testing.T) {
		r := &ProbeResult{Format: ProbeFormat{Duration: "N/A"}}
		_, err := r.Duration()
		assert.Error(t, err)
	})
}

func TestStderrTail(t *testing.T) {
	assert.Equal(t, "short", stderrTail([]byte("short\n")))

	long := strings.Repeat("x", stderrTailLimit+100)
	tail := stderrTail([]byte(long))
	assert.True(t, strings.HasPrefix(tail, "..."))
	assert.Len(t, tail, stderrTailLimit+3)
}
