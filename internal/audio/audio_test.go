package audio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSilence(t *testing.T) {
	c := Silence(2.0, 16000)
	assert.Equal(t, 16000, c.SampleRate)
	assert.Equal(t, 1, c.Channels)
	assert.Equal(t, 32000, c.Frames())
	assert.InDelta(t, 2.0, c.Duration(), 1e-9)
	assert.Zero(t, c.RMS())
}

func TestFrameCount(t *testing.T) {
	tests := []struct {
		name     string
		seconds  float64
		rate     int
		expected int
	}{
		{"exact second", 1.0, 44100, 44100},
		{"half second", 0.5, 16000, 8000},
		{"rounds up", 0.100001, 10, 1},
		{"rounds half away from zero", 0.15, 10, 2},
		{"zero", 0, 48000, 0},
		{"negative clamps to zero", -1.0, 48000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FrameCount(tt.seconds, tt.rate))
		})
	}
}

func TestClip_Slice(t *testing.T) {
	c := &Clip{SampleRate: 10, Channels: 1, Samples: []int16{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}}

	t.Run("interior", func(t *testing.T) {
		s := c.Slice(2, 5)
		assert.Equal(t, []int16{2, 3, 4}, s.Samples)
		assert.Equal(t, c.SampleRate, s.SampleRate)
	})

	t.Run("clamps bounds", func(t *testing.T) {
		s := c.Slice(-3, 100)
		assert.Equal(t, c.Samples, s.Samples)
	})

	t.Run("empty range", func(t *testing.T) {
		s := c.Slice(5, 5)
		assert.Empty(t, s.Samples)
	})

	t.Run("copy does not alias", func(t *testing.T) {
		s := c.Slice(0, 2)
		s.Samples[0] = 99
		assert.Equal(t, int16(0), c.Samples[0])
	})

	t.Run("seconds", func(t *testing.T) {
		s := c.SliceSeconds(0.2, 0.5)
		assert.Equal(t, []int16{2, 3, 4}, s.Samples)
	})
}

func TestClip_SliceStereo(t *testing.T) {
	c := &Clip{SampleRate: 10, Channels: 2, Samples: []int16{0, 100, 1, 101, 2, 102, 3, 103}}
	s := c.Slice(1, 3)
	assert.Equal(t, []int16{1, 101, 2, 102}, s.Samples)
	assert.Equal(t, 2, s.Frames())
}

func TestClip_Truncate(t *testing.T) {
	c := &Clip{SampleRate: 10, Channels: 1, Samples: []int16{1, 2, 3, 4, 5}}
	c.Truncate(3)
	assert.Equal(t, []int16{1, 2, 3}, c.Samples)

	// Truncate beyond length is a no-op
	c.Truncate(100)
	assert.Equal(t, 3, c.Frames())

	c.Truncate(-1)
	assert.Zero(t, c.Frames())
}

func TestConcat(t *testing.T) {
	a := &Clip{SampleRate: 10, Channels: 1, Samples: []int16{1, 2}}
	b := &Clip{SampleRate: 10, Channels: 1, Samples: []int16{3}}

	out, err := Concat(a, b)
	require.NoError(t, err)
	assert.Equal(t, []int16{1, 2, 3}, out.Samples)

	_, err = Concat()
	assert.Error(t, err)

	mismatched := &Clip{SampleRate: 20, Channels: 1, Samples: []int16{9}}
	_, err = Concat(a, mismatched)
	assert.Error(t, err)
}

func TestClip_Mono(t *testing.T) {
	t.Run("averages frames", func(t *testing.T) {
		c := &Clip{SampleRate: 10, Channels: 2, Samples: []int16{100, 200, -100, -200}}
		m := c.Mono()
		assert.Equal(t, 1, m.Channels)
		assert.Equal(t, []int16{150, -150}, m.Samples)
	})

	t.Run("mono input copies", func(t *testing.T) {
		c := &Clip{SampleRate: 10, Channels: 1, Samples: []int16{5}}
		m := c.Mono()
		m.Samples[0] = 9
		assert.Equal(t, int16(5), c.Samples[0])
	})
}

func TestClip_ScaleAndGain(t *testing.T) {
	c := &Clip{SampleRate: 10, Channels: 1, Samples: []int16{100, -100, 32767}}
	c.Scale(2.0)
	assert.Equal(t, int16(200), c.Samples[0])
	assert.Equal(t, int16(-200), c.Samples[1])
	// Clamped at int16 max
	assert.Equal(t, int16(32767), c.Samples[2])

	g := &Clip{SampleRate: 10, Channels: 1, Samples: []int16{1000}}
	g.Gain(-6.0)
	// -6 dB is a factor of ~0.5012
	assert.InDelta(t, 501, g.Samples[0], 1)
}

func TestDBConversions(t *testing.T) {
	assert.InDelta(t, 1.0, DBToScale(0), 1e-9)
	assert.InDelta(t, 0.5011872, DBToScale(-6), 1e-6)
	assert.InDelta(t, 2.0, DBToScale(6.0206), 1e-4)

	assert.InDelta(t, 0.0, ScaleToDB(1.0), 1e-9)
	assert.InDelta(t, -6.0, ScaleToDB(0.5011872), 1e-4)
	assert.True(t, math.IsInf(ScaleToDB(0), -1))
}

func TestClip_RMS(t *testing.T) {
	t.Run("silent is zero", func(t *testing.T) {
		c := Silence(0.1, 100)
		assert.Zero(t, c.RMS())
		assert.True(t, math.IsInf(c.RMSdB(), -1))
	})

	t.Run("full scale square wave", func(t *testing.T) {
		samples := make([]int16, 100)
		for i := range samples {
			if i%2 == 0 {
				samples[i] = 32767
			} else {
				samples[i] = -32767
			}
		}
		c := &Clip{SampleRate: 100, Channels: 1, Samples: samples}
		assert.InDelta(t, 1.0, c.RMS(), 0.001)
		assert.InDelta(t, 0.0, c.RMSdB(), 0.01)
	})

	t.Run("half scale", func(t *testing.T) {
		samples := make([]int16, 100)
		for i := range samples {
			samples[i] = 16384
		}
		c := &Clip{SampleRate: 100, Channels: 1, Samples: samples}
		assert.InDelta(t, 0.5, c.RMS(), 0.001)
		assert.InDelta(t, -6.02, c.RMSdB(), 0.05)
	})
}

func TestClip_Peak(t *testing.T) {
	c := &Clip{SampleRate: 10, Channels: 1, Samples: []int16{100, -2000, 500}}
	assert.InDelta(t, 2000.0/32768.0, c.Peak(), 1e-9)

	assert.Zero(t, Silence(0.1, 100).Peak())
}

func TestClip_FadeOut(t *testing.T) {
	samples := make([]int16, 100)
	for i := range samples {
		samples[i] = 10000
	}
	c := &Clip{SampleRate: 100, Channels: 1, Samples: samples}

	// Fade the last 0.5s (50 frames)
	c.FadeOut(0.5)

	// Samples before the fade are untouched
	assert.Equal(t, int16(10000), c.Samples[49])
	// The final sample is fully faded
	assert.Equal(t, int16(0), c.Samples[99])
	// Midway through the fade the level is roughly halved
	assert.InDelta(t, 5000, c.Samples[74], 300)
}

func TestClip_Overlay(t *testing.T) {
	t.Run("places at offset", func(t *testing.T) {
		dst := Silence(1.0, 10)
		src := &Clip{SampleRate: 10, Channels: 1, Samples: []int16{5, 6, 7}}

		require.NoError(t, dst.Overlay(src, 2))
		assert.Equal(t, []int16{0, 0, 5, 6, 7, 0, 0, 0, 0, 0}, dst.Samples)
	})

	t.Run("sums overlapping content", func(t *testing.T) {
		dst := &Clip{SampleRate: 10, Channels: 1, Samples: []int16{10, 10, 10}}
		src := &Clip{SampleRate: 10, Channels: 1, Samples: []int16{5, 5}}

		require.NoError(t, dst.Overlay(src, 1))
		assert.Equal(t, []int16{10, 15, 15}, dst.Samples)
	})

	t.Run("clamps on overflow", func(t *testing.T) {
		dst := &Clip{SampleRate: 10, Channels: 1, Samples: []int16{32000}}
		src := &Clip{SampleRate: 10, Channels: 1, Samples: []int16{32000}}

		require.NoError(t, dst.Overlay(src, 0))
		assert.Equal(t, int16(32767), dst.Samples[0])
	})

	t.Run("drops frames past the end", func(t *testing.T) {
		dst := Silence(0.3, 10)
		src := &Clip{SampleRate: 10, Channels: 1, Samples: []int16{1, 2, 3, 4, 5}}

		require.NoError(t, dst.Overlay(src, 1))
		assert.Equal(t, []int16{0, 1, 2}, dst.Samples)
	})

	t.Run("rejects format mismatch", func(t *testing.T) {
		dst := Silence(1.0, 10)
		src := &Clip{SampleRate: 20, Channels: 1, Samples: []int16{1}}
		assert.Error(t, dst.Overlay(src, 0))
	})
}

func TestClip_Clone(t *testing.T) {
	c := &Clip{SampleRate: 10, Channels: 1, Samples: []int16{1, 2, 3}}
	d := c.Clone()
	d.Samples[0] = 99
	assert.Equal(t, int16(1), c.Samples[0])
}
