package segments

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/revoice/internal/models"
)

func seg(id int, start, end float64, text string) models.Segment {
	return models.Segment{ID: id, Start: start, End: end, Text: text}
}

func TestValidate(t *testing.T) {
	t.Run("valid table", func(t *testing.T) {
		table := []models.Segment{seg(0, 0, 3, "a"), seg(1, 3.5, 6.2, "b")}
		assert.NoError(t, Validate(table))
	})

	t.Run("empty table is valid", func(t *testing.T) {
		assert.NoError(t, Validate(nil))
	})

	t.Run("non-dense ids", func(t *testing.T) {
		table := []models.Segment{seg(0, 0, 1, "a"), seg(2, 1, 2, "b")}
		assert.ErrorIs(t, Validate(table), models.ErrInvalidSegmentTable)
	})

	t.Run("empty interval", func(t *testing.T) {
		table := []models.Segment{seg(0, 1, 1, "a")}
		assert.ErrorIs(t, Validate(table), models.ErrInvalidSegmentTable)
	})

	t.Run("negative start", func(t *testing.T) {
		table := []models.Segment{seg(0, -0.5, 1, "a")}
		assert.ErrorIs(t, Validate(table), models.ErrInvalidSegmentTable)
	})

	t.Run("unsorted", func(t *testing.T) {
		table := []models.Segment{seg(0, 5, 6, "a"), seg(1, 1, 2, "b")}
		assert.ErrorIs(t, Validate(table), models.ErrInvalidSegmentTable)
	})
}

func TestNormalize(t *testing.T) {
	table := []models.Segment{seg(7, 4, 5, "b"), seg(3, 0, 2, "a")}
	out := Normalize(table)
	require.Len(t, out, 2)
	assert.Equal(t, 0, out[0].ID)
	assert.Equal(t, "a", out[0].Text)
	assert.Equal(t, 1, out[1].ID)
	assert.NoError(t, Validate(out))
}

func helloWorld() models.Segment {
	return models.Segment{
		ID:              0,
		Start:           1.0,
		End:             3.0,
		Text:            "Hello world",
		TranslatedText:  "Hallo Welt",
		ClonedAudioPath: "cloned_audio/x_07_segment_000.wav",
		Words: []models.Word{
			{Word: "Hello", Start: 1.0, End: 1.8},
			{Word: "world", Start: 2.1, End: 3.0},
		},
	}
}

func TestSplit(t *testing.T) {
	t.Run("splits at word boundary", func(t *testing.T) {
		table := []models.Segment{helloWorld(), seg(1, 4, 5, "next")}
		out, err := Split(table, 0, 7)
		require.NoError(t, err)
		require.Len(t, out, 3)

		left, right := out[0], out[1]
		assert.Equal(t, 0, left.ID)
		assert.Equal(t, "Hello", left.Text)
		assert.InDelta(t, 1.0, left.Start, 1e-9)
		assert.InDelta(t, 1.8, left.End, 1e-9)

		assert.Equal(t, 1, right.ID)
		assert.Equal(t, "world", right.Text)
		assert.InDelta(t, 1.8, right.Start, 1e-9)
		assert.InDelta(t, 3.0, right.End, 1e-9)

		assert.Empty(t, left.TranslatedText)
		assert.Empty(t, right.TranslatedText)
		assert.Empty(t, left.ClonedAudioPath)
		assert.Empty(t, right.ClonedAudioPath)

		// Trailing segment renumbered.
		assert.Equal(t, 2, out[2].ID)
		assert.Equal(t, "next", out[2].Text)
		assert.NoError(t, Validate(out))
	})

	t.Run("offset in first word rejected", func(t *testing.T) {
		table := []models.Segment{helloWorld()}
		_, err := Split(table, 0, 2)
		assert.Error(t, err)
	})

	t.Run("offset out of range rejected", func(t *testing.T) {
		table := []models.Segment{helloWorld()}
		_, err := Split(table, 0, 0)
		assert.Error(t, err)
		_, err = Split(table, 0, 11)
		assert.Error(t, err)
	})

	t.Run("proportional split without words", func(t *testing.T) {
		table := []models.Segment{seg(0, 0, 10, "ab cd")}
		out, err := Split(table, 0, 3)
		require.NoError(t, err)
		require.Len(t, out, 2)
		assert.InDelta(t, 6.0, out[0].End, 1e-9)
		assert.InDelta(t, 6.0, out[1].Start, 1e-9)
		assert.Equal(t, "ab", out[0].Text)
		assert.Equal(t, "cd", out[1].Text)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := Split([]models.Segment{helloWorld()}, 9, 7)
		assert.ErrorIs(t, err, models.ErrSegmentNotFound)
	})
}

func TestMergeOfSplitRestoresInterval(t *testing.T) {
	table := []models.Segment{helloWorld()}
	split, err := Split(table, 0, 7)
	require.NoError(t, err)

	merged, err := Merge(split, []int{0, 1})
	require.NoError(t, err)
	require.Len(t, merged, 1)
	assert.InDelta(t, 1.0, merged[0].Start, 1e-9)
	assert.InDelta(t, 3.0, merged[0].End, 1e-9)
	assert.Equal(t, "Hello world", merged[0].Text)
}

func TestMerge(t *testing.T) {
	t.Run("non-adjacent rejected", func(t *testing.T) {
		table := []models.Segment{seg(0, 0, 1, "a"), seg(1, 1, 2, "b"), seg(2, 2, 3, "c")}
		_, err := Merge(table, []int{0, 2})
		assert.Error(t, err)
	})

	t.Run("single id rejected", func(t *testing.T) {
		table := []models.Segment{seg(0, 0, 1, "a")}
		_, err := Merge(table, []int{0})
		assert.Error(t, err)
	})

	t.Run("speaker kept when identical", func(t *testing.T) {
		a, b := seg(0, 0, 1, "a"), seg(1, 1, 2, "b")
		a.SpeakerID, b.SpeakerID = "SPK0", "SPK0"
		out, err := Merge([]models.Segment{a, b}, []int{0, 1})
		require.NoError(t, err)
		assert.Equal(t, "SPK0", out[0].SpeakerID)
	})

	t.Run("speaker dropped when mixed", func(t *testing.T) {
		a, b := seg(0, 0, 1, "a"), seg(1, 1, 2, "b")
		a.SpeakerID, b.SpeakerID = "SPK0", "SPK1"
		out, err := Merge([]models.Segment{a, b}, []int{0, 1})
		require.NoError(t, err)
		assert.Empty(t, out[0].SpeakerID)
	})
}

func TestDelete(t *testing.T) {
	table := []models.Segment{seg(0, 0, 1, "a"), seg(1, 1, 2, "b"), seg(2, 2, 3, "c")}
	out, err := Delete(table, []int{1})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].Text)
	assert.Equal(t, "c", out[1].Text)
	assert.Equal(t, 1, out[1].ID)

	_, err = Delete(table, []int{5})
	assert.ErrorIs(t, err, models.ErrSegmentNotFound)
}

func TestUpdate(t *testing.T) {
	str := func(s string) *string { return &s }
	f := func(v float64) *float64 { return &v }

	t.Run("text change clears translation and clone", func(t *testing.T) {
		table := []models.Segment{helloWorld()}
		out, err := Update(table, 0, Patch{Text: str("Goodbye world")})
		require.NoError(t, err)
		assert.Equal(t, "Goodbye world", out[0].Text)
		assert.Empty(t, out[0].TranslatedText)
		assert.Empty(t, out[0].ClonedAudioPath)
	})

	t.Run("text change with explicit translation keeps it", func(t *testing.T) {
		table := []models.Segment{helloWorld()}
		out, err := Update(table, 0, Patch{Text: str("Goodbye"), TranslatedText: str("Tschüss")})
		require.NoError(t, err)
		assert.Equal(t, "Tschüss", out[0].TranslatedText)
		assert.Empty(t, out[0].ClonedAudioPath)
	})

	t.Run("translation change clears clone only", func(t *testing.T) {
		table := []models.Segment{helloWorld()}
		out, err := Update(table, 0, Patch{TranslatedText: str("Servus Welt")})
		require.NoError(t, err)
		assert.Equal(t, "Hello world", out[0].Text)
		assert.Equal(t, "Servus Welt", out[0].TranslatedText)
		assert.Empty(t, out[0].ClonedAudioPath)
	})

	t.Run("timing change keeps words untouched", func(t *testing.T) {
		table := []models.Segment{helloWorld()}
		out, err := Update(table, 0, Patch{End: f(3.5)})
		require.NoError(t, err)
		assert.InDelta(t, 3.5, out[0].End, 1e-9)
		assert.Len(t, out[0].Words, 2, "words stay diagnostic after timing edits")
		assert.Empty(t, out[0].ClonedAudioPath)
		assert.Equal(t, "Hallo Welt", out[0].TranslatedText)
	})

	t.Run("invalid timing rejected", func(t *testing.T) {
		table := []models.Segment{helloWorld()}
		_, err := Update(table, 0, Patch{End: f(0.5)})
		assert.ErrorIs(t, err, models.ErrInvalidSegmentTable)
	})
}

func TestSplitOnGaps(t *testing.T) {
	table := []models.Segment{{
		ID:    0,
		Start: 0,
		End:   6,
		Text:  "one two three",
		Words: []models.Word{
			{Word: "one", Start: 0, End: 0.5},
			{Word: "two", Start: 0.6, End: 1.0},
			{Word: "three", Start: 4.0, End: 6.0},
		},
	}}

	out := SplitOnGaps(table, 1.5)
	require.Len(t, out, 2)
	assert.Equal(t, "one two", out[0].Text)
	assert.InDelta(t, 0.0, out[0].Start, 1e-9)
	assert.InDelta(t, 1.0, out[0].End, 1e-9)
	assert.Equal(t, "three", out[1].Text)
	assert.InDelta(t, 4.0, out[1].Start, 1e-9)
	assert.InDelta(t, 6.0, out[1].End, 1e-9)
	assert.NoError(t, Validate(out))

	t.Run("small gaps untouched", func(t *testing.T) {
		out := SplitOnGaps(table, 5.0)
		require.Len(t, out, 1)
		assert.Equal(t, "one two three", out[0].Text)
	})
}

func TestReplace(t *testing.T) {
	base := func() []models.Segment {
		a := seg(0, 0, 3, "hello")
		a.TranslatedText = "hallo"
		a.ClonedAudioPath = "cloned_audio/a.wav"
		b := seg(1, 3.5, 6.2, "good bye")
		b.TranslatedText = "tschuess"
		b.ClonedAudioPath = "cloned_audio/b.wav"
		return []models.Segment{a, b}
	}

	t.Run("unchanged rows keep their clones", func(t *testing.T) {
		out, err := Replace(base(), base())
		require.NoError(t, err)
		assert.Equal(t, "hallo", out[0].TranslatedText)
		assert.Equal(t, "cloned_audio/a.wav", out[0].ClonedAudioPath)
	})

	t.Run("derived fields survive when the client omits them", func(t *testing.T) {
		old := base()
		old[0].Words = []models.Word{{Word: "hello", Start: 0, End: 3}}
		old[0].ClonedDuration = 2.8
		old[0].SpeakerID = "spk0"
		// The editor submits only the fields it edits.
		submitted := []models.Segment{
			{ID: 0, Start: 0, End: 3, Text: "hello", TranslatedText: "hallo"},
			{ID: 1, Start: 3.5, End: 6.2, Text: "good bye", TranslatedText: "servus"},
		}
		out, err := Replace(old, submitted)
		require.NoError(t, err)
		assert.Equal(t, "cloned_audio/a.wav", out[0].ClonedAudioPath)
		assert.InDelta(t, 2.8, out[0].ClonedDuration, 1e-9)
		assert.Equal(t, "spk0", out[0].SpeakerID)
		assert.Len(t, out[0].Words, 1)
		assert.Empty(t, out[1].ClonedAudioPath, "changed translation still drops the clone")
	})

	t.Run("text change invalidates translation and clone", func(t *testing.T) {
		submitted := base()
		submitted[0].Text = "hello there"
		out, err := Replace(base(), submitted)
		require.NoError(t, err)
		assert.Empty(t, out[0].TranslatedText)
		assert.Empty(t, out[0].ClonedAudioPath)
		assert.Equal(t, "tschuess", out[1].TranslatedText)
	})

	t.Run("translation change drops the clone only", func(t *testing.T) {
		submitted := base()
		submitted[1].TranslatedText = "auf wiedersehen"
		out, err := Replace(base(), submitted)
		require.NoError(t, err)
		assert.Equal(t, "auf wiedersehen", out[1].TranslatedText)
		assert.Empty(t, out[1].ClonedAudioPath)
		assert.Equal(t, "good bye", out[1].Text)
	})

	t.Run("timing change drops the clone and recomputes duration", func(t *testing.T) {
		submitted := base()
		submitted[0].End = 2.5
		out, err := Replace(base(), submitted)
		require.NoError(t, err)
		assert.Empty(t, out[0].ClonedAudioPath)
		assert.InDelta(t, 2.5, out[0].OriginalDuration, 1e-9)
	})

	t.Run("result is sorted and renumbered", func(t *testing.T) {
		submitted := []models.Segment{seg(1, 3.5, 6.2, "b"), seg(0, 0, 3, "a")}
		out, err := Replace(base(), submitted)
		require.NoError(t, err)
		require.NoError(t, Validate(out))
		assert.Equal(t, "a", out[0].Text)
	})

	t.Run("invalid interval rejected", func(t *testing.T) {
		submitted := base()
		submitted[0].End = submitted[0].Start
		_, err := Replace(base(), submitted)
		assert.ErrorIs(t, err, models.ErrInvalidSegmentTable)
	})

	t.Run("empty table rejected", func(t *testing.T) {
		_, err := Replace(base(), nil)
		require.Error(t, err)
		assert.Equal(t, models.KindInvalidRequest, models.KindOf(err))
	})
}

func TestOnlyTranslationChanged(t *testing.T) {
	old := []models.Segment{seg(0, 0, 3, "a"), seg(1, 3.5, 6.2, "b")}

	same := append([]models.Segment(nil), old...)
	same[1].TranslatedText = "beh"
	assert.True(t, OnlyTranslationChanged(old, same))

	text := append([]models.Segment(nil), old...)
	text[0].Text = "changed"
	assert.False(t, OnlyTranslationChanged(old, text))

	timing := append([]models.Segment(nil), old...)
	timing[0].End = 2.0
	assert.False(t, OnlyTranslationChanged(old, timing))

	assert.False(t, OnlyTranslationChanged(old, old[:1]))
}
