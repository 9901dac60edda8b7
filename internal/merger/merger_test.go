package merger

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/revoice/internal/audio"
	"github.com/jmylchreest/revoice/internal/models"
)

const rate = 16000

// tone returns a mono clip of constant amplitude, long enough to measure RMS.
func tone(seconds float64, amplitude int16) *audio.Clip {
	c := audio.Silence(seconds, rate)
	for i := range c.Samples {
		c.Samples[i] = amplitude
	}
	return c
}

// clipLoader serves synthetic clips by path.
func clipLoader(clips map[string]*audio.Clip) ClipLoader {
	return func(path string) (*audio.Clip, error) {
		c, ok := clips[path]
		if !ok {
			return nil, fmt.Errorf("no clip at %s", path)
		}
		return c.Clone(), nil
	}
}

// fakeStretcher shortens the input by the factor without external tools.
type fakeStretcher struct {
	calls   int
	factors []float64
	clips   map[string]*audio.Clip
	src     string
}

func (f *fakeStretcher) Stretch(_ context.Context, _, output string, factor float64) error {
	f.calls++
	f.factors = append(f.factors, factor)
	in := f.clips[f.src]
	out := in.Clone()
	out.Truncate(audio.FrameCount(in.Duration()/factor, rate))
	f.clips[output] = out
	return nil
}

func seg(id int, start, end float64, clonePath string) models.Segment {
	return models.Segment{ID: id, Start: start, End: end, Text: "t", ClonedAudioPath: clonePath}
}

func TestAssemble_BasicPlacement(t *testing.T) {
	vocals := tone(10, 8000)
	clips := map[string]*audio.Clip{
		"c0.wav": tone(1.5, 8000),
		"c1.wav": tone(1.0, 8000),
	}
	table := []models.Segment{
		seg(0, 1.0, 3.0, "c0.wav"),
		seg(1, 5.0, 6.5, "c1.wav"),
	}

	m := New(Config{MaxStretch: 2.0, AccompanimentGainDB: -6}, nil, nil)
	out, placements, err := m.Assemble(context.Background(), vocals, nil, table, clipLoader(clips), nil)
	require.NoError(t, err)

	assert.Equal(t, vocals.Frames(), out.Frames(), "output spans exactly the source duration")
	require.Len(t, placements, 2)
	assert.Equal(t, audio.FrameCount(1.0, rate), placements[0].StartFrame)
	assert.Equal(t, audio.FrameCount(5.0, rate), placements[1].StartFrame)

	// Audio present inside the slot, silence outside it.
	assert.NotZero(t, out.Samples[audio.FrameCount(1.2, rate)])
	assert.Zero(t, out.Samples[audio.FrameCount(0.5, rate)])
	assert.Zero(t, out.Samples[audio.FrameCount(4.0, rate)])
}

func TestAssemble_OverlongCloneStretchedThenTruncated(t *testing.T) {
	vocals := tone(10, 8000)
	clips := map[string]*audio.Clip{"long.wav": tone(5.0, 8000)}
	st := &fakeStretcher{clips: clips, src: "long.wav"}

	// Slot is 1 s, clone is 5 s: stretch capped at 2.0 leaves 2.5 s,
	// truncation trims the rest.
	table := []models.Segment{seg(0, 2.0, 3.0, "long.wav")}
	m := New(Config{MaxStretch: 2.0}, st, nil)

	_, placements, err := m.Assemble(context.Background(), vocals, nil, table,
		func(path string) (*audio.Clip, error) { return clipLoader(clips)(path) }, nil)
	require.NoError(t, err)

	require.Equal(t, 1, st.calls)
	assert.InDelta(t, 2.0, st.factors[0], 1e-9, "stretch capped at the configured maximum")

	p := placements[0]
	assert.InDelta(t, 2.0, p.Stretched, 1e-9)
	assert.True(t, p.Truncated)
	assert.Equal(t, audio.FrameCount(1.0, rate), p.EndFrame-p.StartFrame, "placement fits the slot")
}

func TestAssemble_CloneWithinStretchCapSpillsOver(t *testing.T) {
	vocals := tone(10, 8000)
	clips := map[string]*audio.Clip{"c.wav": tone(1.8, 8000)}
	st := &fakeStretcher{clips: clips, src: "c.wav"}

	// 1.8 s clone in a 1 s slot is within MaxStretch 2.0: it is placed
	// uncompressed and runs past the slot into the following silence.
	table := []models.Segment{seg(0, 0.0, 1.0, "c.wav")}
	m := New(Config{MaxStretch: 2.0}, st, nil)
	_, placements, err := m.Assemble(context.Background(), vocals, nil, table, clipLoader(clips), nil)
	require.NoError(t, err)

	assert.Zero(t, st.calls, "no compression within the stretch cap")
	p := placements[0]
	assert.Zero(t, p.Stretched)
	assert.False(t, p.Truncated)
	assert.Equal(t, audio.FrameCount(1.8, rate), p.EndFrame-p.StartFrame)
}

func TestAssemble_OverlapRepairShiftsForward(t *testing.T) {
	vocals := tone(10, 8000)
	clips := map[string]*audio.Clip{
		"a.wav": tone(3.0, 8000), // runs past its slot end at 2.0
		"b.wav": tone(1.0, 8000),
	}
	table := []models.Segment{
		{ID: 0, Start: 0.0, End: 3.5, Text: "a", ClonedAudioPath: "a.wav"},
		{ID: 1, Start: 2.0, End: 3.0, Text: "b", ClonedAudioPath: "b.wav"},
	}

	m := New(Config{MaxStretch: 2.0}, nil, nil)
	_, placements, err := m.Assemble(context.Background(), vocals, nil, table, clipLoader(clips), nil)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, placements[1].StartFrame, placements[0].EndFrame,
		"second placement starts at or after the first ends")
}

func TestAssemble_FailedCloneLeavesSilence(t *testing.T) {
	vocals := tone(10, 8000)
	table := []models.Segment{
		{ID: 0, Start: 1.0, End: 2.0, Text: "x", Error: "clone failed"},
	}

	m := New(Config{}, nil, nil)
	out, placements, err := m.Assemble(context.Background(), vocals, nil, table, clipLoader(nil), nil)
	require.NoError(t, err)
	assert.True(t, placements[0].Silent)
	assert.Zero(t, out.Samples[audio.FrameCount(1.5, rate)])
}

func TestAssemble_LevelMatchedWithinRange(t *testing.T) {
	vocals := tone(10, 16000)
	// Clone far quieter than the vocals: gain clamps at +3 dB.
	clips := map[string]*audio.Clip{"q.wav": tone(1.0, 500)}
	table := []models.Segment{seg(0, 0.0, 1.0, "q.wav")}

	m := New(Config{}, nil, nil)
	_, placements, err := m.Assemble(context.Background(), vocals, nil, table, clipLoader(clips), nil)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, placements[0].GainDB, 1e-9)
}

func TestAssemble_AccompanimentMixedAtGain(t *testing.T) {
	vocals := tone(2, 0) // silent vocals: output is accompaniment alone
	accomp := tone(2, 10000)

	m := New(Config{AccompanimentGainDB: -6}, nil, nil)
	out, _, err := m.Assemble(context.Background(), vocals, accomp, nil, clipLoader(nil), nil)
	require.NoError(t, err)

	wantScale := audio.DBToScale(-6)
	got := float64(out.Samples[100]) / 10000.0
	assert.InDelta(t, wantScale, got, 0.01)
}

func TestAssemble_Deterministic(t *testing.T) {
	vocals := tone(5, 8000)
	clips := map[string]*audio.Clip{"c.wav": tone(0.8, 6000)}
	table := []models.Segment{seg(0, 1.0, 2.0, "c.wav")}
	m := New(Config{AccompanimentGainDB: -6}, nil, nil)

	first, _, err := m.Assemble(context.Background(), vocals, nil, table, clipLoader(clips), nil)
	require.NoError(t, err)
	second, _, err := m.Assemble(context.Background(), vocals, nil, table, clipLoader(clips), nil)
	require.NoError(t, err)
	assert.Equal(t, first.Samples, second.Samples)
}

func TestAssemble_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := New(Config{}, nil, nil)
	_, _, err := m.Assemble(ctx, tone(1, 0), nil,
		[]models.Segment{seg(0, 0, 0.5, "c.wav")}, clipLoader(nil), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrCancelled)
}

func TestAssemble_ProgressCallback(t *testing.T) {
	vocals := tone(5, 8000)
	clips := map[string]*audio.Clip{"c.wav": tone(0.5, 100)}
	table := []models.Segment{
		seg(0, 0, 1, "c.wav"),
		seg(1, 1, 2, "c.wav"),
		seg(2, 2, 3, "c.wav"),
	}

	var calls []int
	m := New(Config{}, nil, nil)
	_, _, err := m.Assemble(context.Background(), vocals, nil, table, clipLoader(clips),
		func(i, total int) {
			require.Equal(t, 3, total)
			calls = append(calls, i)
		})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2}, calls)
}
