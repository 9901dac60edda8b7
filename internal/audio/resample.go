package audio

// Resample converts the clip to the target sample rate using linear
// interpolation. The input is returned unchanged when the rate already
// matches or when either rate is non-positive.
func (c *Clip) Resample(rate int) *Clip {
	if rate <= 0 || c.SampleRate <= 0 || c.SampleRate == rate || c.Frames() < 2 {
		return c
	}

	srcFrames := c.Frames()
	dstFrames := int(int64(srcFrames) * int64(rate) / int64(c.SampleRate))
	if dstFrames == 0 {
		return &Clip{SampleRate: rate, Channels: c.Channels}
	}

	out := make([]int16, dstFrames*c.Channels)
	ratio := float64(c.SampleRate) / float64(rate)

	for i := 0; i < dstFrames; i++ {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		for ch := 0; ch < c.Channels; ch++ {
			s0 := c.Samples[srcIdx*c.Channels+ch]
			s1 := s0
			if srcIdx+1 < srcFrames {
				s1 = c.Samples[(srcIdx+1)*c.Channels+ch]
			}
			out[i*c.Channels+ch] = int16(float64(s0)*(1-frac) + float64(s1)*frac)
		}
	}

	return &Clip{SampleRate: rate, Channels: c.Channels, Samples: out}
}
