// Package segments implements the canonical segment table and its edit
// operations: validation, split, merge, delete, and patch. Every operation
// returns a new table; persisting it is the caller's responsibility.
package segments

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/jmylchreest/revoice/internal/models"
)

// Validate checks the table invariants: ids dense and 0-based, segments
// sorted by start time, and every interval non-empty with a non-negative
// start. Word spans are diagnostic and deliberately not checked.
func Validate(table []models.Segment) error {
	for i, seg := range table {
		if seg.ID != i {
			return fmt.Errorf("%w: segment at index %d has id %d, want %d",
				models.ErrInvalidSegmentTable, i, seg.ID, i)
		}
		if seg.Start < 0 {
			return fmt.Errorf("%w: segment %d has negative start %.3f",
				models.ErrInvalidSegmentTable, seg.ID, seg.Start)
		}
		if seg.End <= seg.Start {
			return fmt.Errorf("%w: segment %d has end %.3f <= start %.3f",
				models.ErrInvalidSegmentTable, seg.ID, seg.End, seg.Start)
		}
		if i > 0 && seg.Start < table[i-1].Start {
			return fmt.Errorf("%w: segment %d starts at %.3f before segment %d at %.3f",
				models.ErrInvalidSegmentTable, seg.ID, seg.Start, table[i-1].ID, table[i-1].Start)
		}
	}
	return nil
}

// Normalize sorts the table by (start, end) and renumbers ids densely
// from 0. Used after transcription merges per-speaker results.
func Normalize(table []models.Segment) []models.Segment {
	out := slices.Clone(table)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].End < out[j].End
	})
	return renumber(out)
}

func renumber(table []models.Segment) []models.Segment {
	for i := range table {
		table[i].ID = i
	}
	return table
}

// Find returns the index of the segment with the given id, or an error.
func Find(table []models.Segment, id int) (int, error) {
	for i := range table {
		if table[i].ID == id {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: id %d", models.ErrSegmentNotFound, id)
}

// Split divides the segment at a word boundary chosen from textOffset:
// the boundary sits before the word whose character span contains the
// offset. The left half keeps [start, prevWord.end], the right half takes
// [prevWord.end, end], and the text is partitioned at the same word
// boundary with whitespace trimmed. Both halves lose their translation
// and cloned audio, and all trailing ids shift by one.
//
// Segments without word timestamps are split proportionally by character
// position instead.
func Split(table []models.Segment, id, textOffset int) ([]models.Segment, error) {
	idx, err := Find(table, id)
	if err != nil {
		return nil, err
	}
	seg := table[idx]

	runes := []rune(seg.Text)
	if textOffset <= 0 || textOffset >= len(runes) {
		return nil, models.Errorf(models.KindInvalidRequest,
			"split offset %d outside text of length %d", textOffset, len(runes))
	}

	boundary, cut, leftWords, rightWords, err := splitPoint(seg, textOffset)
	if err != nil {
		return nil, err
	}

	leftText := strings.TrimSpace(string(runes[:cut]))
	rightText := strings.TrimSpace(string(runes[cut:]))
	if leftText == "" || rightText == "" {
		return nil, models.Errorf(models.KindInvalidRequest,
			"split at offset %d leaves an empty half", textOffset)
	}

	left := seg
	left.End = boundary
	left.Text = leftText
	left.Words = leftWords
	left.OriginalDuration = left.End - left.Start
	left.Invalidate()

	right := seg
	right.Start = boundary
	right.Text = rightText
	right.Words = rightWords
	right.OriginalDuration = right.End - right.Start
	right.Invalidate()

	out := make([]models.Segment, 0, len(table)+1)
	out = append(out, table[:idx]...)
	out = append(out, left, right)
	out = append(out, table[idx+1:]...)
	return renumber(out), nil
}

// splitPoint picks the boundary time, the rune offset to partition the
// text at, and distributes word timestamps.
func splitPoint(seg models.Segment, textOffset int) (float64, int, []models.Word, []models.Word, error) {
	if len(seg.Words) == 0 {
		// No word timings: split the interval proportionally by character.
		ratio := float64(textOffset) / float64(len([]rune(seg.Text)))
		boundary := seg.Start + ratio*(seg.End-seg.Start)
		return boundary, textOffset, nil, nil, nil
	}

	spans := wordSpans(seg.Text, seg.Words)
	k := -1
	for i, sp := range spans {
		if textOffset < sp.end {
			k = i
			break
		}
	}
	if k <= 0 {
		return 0, 0, nil, nil, models.Errorf(models.KindInvalidRequest,
			"split offset %d falls before a usable word boundary", textOffset)
	}

	boundary := seg.Words[k-1].End
	if boundary <= seg.Start || boundary >= seg.End {
		return 0, 0, nil, nil, models.Errorf(models.KindInvalidRequest,
			"word boundary %.3f outside segment interval [%.3f, %.3f]",
			boundary, seg.Start, seg.End)
	}

	left := slices.Clone(seg.Words[:k])
	right := slices.Clone(seg.Words[k:])
	return boundary, spans[k-1].end, left, right, nil
}

type span struct{ start, end int }

// wordSpans locates each word's character span inside text, in order.
// Words that cannot be matched fall back to a zero-width span at the end
// of the previous match.
func wordSpans(text string, words []models.Word) []span {
	runes := []rune(text)
	lower := strings.ToLower(string(runes))
	spans := make([]span, len(words))
	pos := 0
	for i, w := range words {
		needle := strings.ToLower(strings.TrimSpace(w.Word))
		at := -1
		if needle != "" {
			at = strings.Index(lower[byteIndex(lower, pos):], needle)
		}
		if at < 0 {
			spans[i] = span{pos, pos}
			continue
		}
		start := pos + len([]rune(lower[byteIndex(lower, pos):][:at]))
		end := start + len([]rune(needle))
		spans[i] = span{start, end}
		pos = end
	}
	return spans
}

// byteIndex converts a rune index into a byte index within s.
func byteIndex(s string, runeIdx int) int {
	for i := range s {
		if runeIdx == 0 {
			return i
		}
		runeIdx--
	}
	return len(s)
}

// Merge joins the segments with the given ids, which must be adjacent in
// id order. The result spans [first.start, last.end] with texts joined by
// a single space. Translation and cloned audio are cleared.
func Merge(table []models.Segment, ids []int) ([]models.Segment, error) {
	if len(ids) < 2 {
		return nil, models.Errorf(models.KindInvalidRequest, "merge needs at least two segment ids")
	}
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	for i := 1; i < len(sorted); i++ {
		if sorted[i] != sorted[i-1]+1 {
			return nil, models.Errorf(models.KindInvalidRequest,
				"merge ids must be adjacent, got %v", ids)
		}
	}
	first, err := Find(table, sorted[0])
	if err != nil {
		return nil, err
	}
	last, err := Find(table, sorted[len(sorted)-1])
	if err != nil {
		return nil, err
	}

	merged := table[first]
	texts := make([]string, 0, len(sorted))
	var words []models.Word
	sameSpeaker := true
	for i := first; i <= last; i++ {
		texts = append(texts, strings.TrimSpace(table[i].Text))
		words = append(words, table[i].Words...)
		if table[i].SpeakerID != merged.SpeakerID {
			sameSpeaker = false
		}
	}
	merged.End = table[last].End
	merged.Text = strings.Join(texts, " ")
	merged.Words = words
	merged.OriginalDuration = merged.End - merged.Start
	if !sameSpeaker {
		merged.SpeakerID = ""
	}
	merged.Invalidate()

	out := make([]models.Segment, 0, len(table)-(last-first))
	out = append(out, table[:first]...)
	out = append(out, merged)
	out = append(out, table[last+1:]...)
	return renumber(out), nil
}

// Delete removes the segments with the given ids and renumbers the rest.
func Delete(table []models.Segment, ids []int) ([]models.Segment, error) {
	if len(ids) == 0 {
		return nil, models.Errorf(models.KindInvalidRequest, "delete needs at least one segment id")
	}
	drop := make(map[int]bool, len(ids))
	for _, id := range ids {
		if _, err := Find(table, id); err != nil {
			return nil, err
		}
		drop[id] = true
	}
	out := make([]models.Segment, 0, len(table)-len(drop))
	for _, seg := range table {
		if !drop[seg.ID] {
			out = append(out, seg)
		}
	}
	return renumber(out), nil
}

// Patch holds the updatable fields of a segment. Nil fields are untouched.
type Patch struct {
	Start          *float64
	End            *float64
	Text           *string
	TranslatedText *string
}

// Update applies the patch to one segment and re-validates the table.
// A text change clears the translation and cloned audio unless the patch
// supplies a replacement translation; a timing or translation change
// clears the cloned audio alone. Word timestamps are never refreshed and
// become diagnostic after a timing edit.
func Update(table []models.Segment, id int, patch Patch) ([]models.Segment, error) {
	idx, err := Find(table, id)
	if err != nil {
		return nil, err
	}
	out := slices.Clone(table)
	seg := &out[idx]

	timingChanged := false
	if patch.Start != nil && *patch.Start != seg.Start {
		seg.Start = *patch.Start
		timingChanged = true
	}
	if patch.End != nil && *patch.End != seg.End {
		seg.End = *patch.End
		timingChanged = true
	}
	if timingChanged {
		seg.OriginalDuration = seg.End - seg.Start
	}

	textChanged := patch.Text != nil && *patch.Text != seg.Text
	if textChanged {
		seg.Text = *patch.Text
	}
	translationChanged := patch.TranslatedText != nil && *patch.TranslatedText != seg.TranslatedText

	switch {
	case textChanged && patch.TranslatedText == nil:
		seg.Invalidate()
	case textChanged || translationChanged || timingChanged:
		if patch.TranslatedText != nil {
			seg.TranslatedText = *patch.TranslatedText
		}
		clearClone(seg)
	}

	if err := Validate(out); err != nil {
		return nil, err
	}
	return out, nil
}

// clearClone drops the cloned-audio reference but keeps the translation.
func clearClone(seg *models.Segment) {
	seg.ClonedAudioPath = ""
	seg.ClonedDuration = 0
	seg.DurationMultiplier = 0
	seg.Error = ""
	seg.Dirty = false
}

// Replace swaps in a whole submitted table, as the editor front-end does
// when saving a review. Rows are matched to the previous table by id:
// the submitted editable fields (timing, text, translation, speaker)
// overlay the stored row, derived state such as the clone reference and
// word timings is carried forward, and the same invalidation rules as
// Update apply: a text change drops the translation and clone unless the
// row carries a changed translation, and a timing or translation change
// drops the clone. The result is sorted, renumbered, and validated.
func Replace(old, submitted []models.Segment) ([]models.Segment, error) {
	if len(submitted) == 0 {
		return nil, models.Errorf(models.KindInvalidRequest, "segment table must not be empty")
	}
	prev := make(map[int]models.Segment, len(old))
	for _, seg := range old {
		prev[seg.ID] = seg
	}

	out := slices.Clone(submitted)
	for i := range out {
		seg := &out[i]
		was, known := prev[seg.ID]
		if !known {
			seg.OriginalDuration = seg.End - seg.Start
			clearClone(seg)
			continue
		}

		timingChanged := seg.Start != was.Start || seg.End != was.End
		textChanged := seg.Text != was.Text
		translationChanged := seg.TranslatedText != was.TranslatedText

		// Clients need not echo derived fields back; an unchanged row
		// keeps its clone.
		merged := was
		merged.Start = seg.Start
		merged.End = seg.End
		merged.Text = seg.Text
		merged.TranslatedText = seg.TranslatedText
		if seg.SpeakerID != "" {
			merged.SpeakerID = seg.SpeakerID
		}
		if timingChanged {
			merged.OriginalDuration = merged.End - merged.Start
		}
		switch {
		case textChanged && !translationChanged:
			merged.Invalidate()
		case textChanged || translationChanged || timingChanged:
			clearClone(&merged)
		}
		*seg = merged
	}

	out = Normalize(out)
	if err := Validate(out); err != nil {
		return nil, err
	}
	return out, nil
}

// OnlyTranslationChanged reports whether submitted differs from old in
// translated_text alone. The step-5 review and post-completion edits are
// restricted to such changes.
func OnlyTranslationChanged(old, submitted []models.Segment) bool {
	if len(old) != len(submitted) {
		return false
	}
	for i := range old {
		if submitted[i].ID != old[i].ID ||
			submitted[i].Start != old[i].Start ||
			submitted[i].End != old[i].End ||
			submitted[i].Text != old[i].Text ||
			submitted[i].SpeakerID != old[i].SpeakerID {
			return false
		}
	}
	return true
}

// SplitOnGaps breaks transcriber output at silences of at least gap
// seconds between consecutive words, keeping sentence-internal timing.
// Segments without word timestamps pass through unchanged.
func SplitOnGaps(table []models.Segment, gap float64) []models.Segment {
	var out []models.Segment
	for _, seg := range table {
		out = append(out, splitSegmentOnGaps(seg, gap)...)
	}
	return renumber(out)
}

func splitSegmentOnGaps(seg models.Segment, gap float64) []models.Segment {
	if len(seg.Words) < 2 {
		return []models.Segment{seg}
	}
	var parts []models.Segment
	begin := 0
	for i := 1; i < len(seg.Words); i++ {
		if seg.Words[i].Start-seg.Words[i-1].End < gap {
			continue
		}
		parts = append(parts, subSegment(seg, begin, i))
		begin = i
	}
	if begin == 0 {
		return []models.Segment{seg}
	}
	parts = append(parts, subSegment(seg, begin, len(seg.Words)))
	return parts
}

// subSegment builds a segment covering words [from, to).
func subSegment(seg models.Segment, from, to int) models.Segment {
	words := slices.Clone(seg.Words[from:to])
	texts := make([]string, 0, to-from)
	for _, w := range words {
		texts = append(texts, strings.TrimSpace(w.Word))
	}
	start := words[0].Start
	end := words[len(words)-1].End
	if from == 0 {
		start = seg.Start
	}
	if to == len(seg.Words) {
		end = seg.End
	}
	return models.Segment{
		Start:            start,
		End:              end,
		Text:             strings.Join(texts, " "),
		SpeakerID:        seg.SpeakerID,
		Words:            words,
		OriginalDuration: end - start,
	}
}
