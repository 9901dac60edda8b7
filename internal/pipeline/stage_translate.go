package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmylchreest/revoice/internal/models"
)

// TranslateStage fills translated_text for every segment that lacks one,
// batching segments per translator request. A translator failure fails
// the whole task; stage 1-4 artifacts stay on disk for a retry.
type TranslateStage struct{}

func (s *TranslateStage) ID() int      { return models.StepTranslate }
func (s *TranslateStage) Name() string { return models.StepName(s.ID()) }

func (s *TranslateStage) Execute(ctx context.Context, run *Run) error {
	table, err := run.Store.ReadSegments(run.TaskID)
	if err != nil {
		return err
	}
	state, err := run.Store.ReadStatus(run.TaskID)
	if err != nil {
		return err
	}
	sourceLang := state.SourceLang

	var pending []int
	for i := range table {
		if table[i].TranslatedText == "" && strings.TrimSpace(table[i].Text) != "" {
			pending = append(pending, i)
		}
	}
	if len(pending) == 0 {
		run.Log("step 5: nothing to translate")
		return nil
	}

	// Same language pair: no translator call, the source text is the
	// translation.
	if sourceLang == run.Params.TargetLang {
		for _, idx := range pending {
			table[idx].TranslatedText = table[idx].Text
		}
		if err := run.Store.WriteSegments(run.TaskID, table); err != nil {
			return err
		}
		if err := writeTranslationLog(run, table); err != nil {
			return err
		}
		run.Log("step 5: source and target language are both %q, copied text", sourceLang)
		return nil
	}

	done := 0
	for len(pending) > 0 {
		if err := ctx.Err(); err != nil {
			return models.E(models.KindCancelled, "translate", models.ErrCancelled)
		}
		batch := pending
		if len(batch) > run.Cfg.TranslateBatchSize {
			batch = batch[:run.Cfg.TranslateBatchSize]
		}
		pending = pending[len(batch):]

		texts := make([]string, len(batch))
		for i, idx := range batch {
			texts[i] = table[idx].Text
		}
		translated, err := run.Translator.Translate(ctx, texts, sourceLang, run.Params.TargetLang)
		if err != nil {
			return err
		}
		for i, idx := range batch {
			table[idx].TranslatedText = translated[i]
		}

		done += len(batch)
		run.Progress(s.ID(), float64(done)/float64(done+len(pending)),
			fmt.Sprintf("translated %d segments", done), done, done+len(pending))
	}

	if err := run.Store.WriteSegments(run.TaskID, table); err != nil {
		return err
	}
	if err := writeTranslationLog(run, table); err != nil {
		return err
	}
	run.Log("step 5: translated %d segments (%s -> %s)", done, sourceLang, run.Params.TargetLang)
	return nil
}

// writeTranslationLog renders the human-readable stage-5 diagnostic.
func writeTranslationLog(run *Run, table []models.Segment) error {
	var b strings.Builder
	for _, seg := range table {
		fmt.Fprintf(&b, "[%03d] %8.2f - %8.2f  %s\n", seg.ID, seg.Start, seg.End, seg.Text)
		if seg.TranslatedText != "" {
			fmt.Fprintf(&b, "      -> %s\n", seg.TranslatedText)
		}
	}
	return run.Store.PutArtifactBytes(run.TaskID, run.Layout.TranslationLog(), []byte(b.String()))
}
