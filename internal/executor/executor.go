// Package executor drives the pipeline stages through a task's
// lifecycle: run to completion or a pause checkpoint, fail on errors,
// and perform the post-review operations (resynthesize a segment,
// regenerate the final output).
package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmylchreest/revoice/internal/events"
	"github.com/jmylchreest/revoice/internal/models"
	"github.com/jmylchreest/revoice/internal/pipeline"
	"github.com/jmylchreest/revoice/internal/segments"
)

// Executor runs pipeline stages for one task at a time. Concurrency and
// per-task serialization are the scheduler's responsibility.
type Executor struct {
	env    *pipeline.Env
	logger *slog.Logger
}

// New creates an Executor over a pipeline environment.
func New(env *pipeline.Env, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{env: env, logger: logger.With("component", "executor")}
}

// Run drives the pipeline from the task's current step until completion,
// a pause checkpoint, failure, or cancellation. The returned error is
// the stage error; the task status on disk is always updated first.
func (e *Executor) Run(ctx context.Context, taskID string) error {
	state, err := e.env.Store.ReadStatus(taskID)
	if err != nil {
		return err
	}
	params, err := e.env.Store.ReadParams(taskID)
	if err != nil {
		return err
	}
	run := e.env.NewRun(taskID, params)

	for step := state.CurrentStep + 1; step <= models.StepMux; step++ {
		if ctx.Err() != nil {
			return e.fail(taskID, models.E(models.KindCancelled, "run", models.ErrCancelled))
		}
		stage, ok := e.env.StageAt(step)
		if !ok {
			return e.fail(taskID, models.Errorf(models.KindCorrupt, "no stage for step %d", step))
		}

		if err := e.beginStep(taskID, step); err != nil {
			return err
		}
		if err := stage.Execute(ctx, run); err != nil {
			return e.fail(taskID, err)
		}
		st, err := e.finishStep(taskID, step)
		if err != nil {
			return err
		}

		if pause, ok := pauseAfter(st.PauseAfter, step); ok {
			return e.pause(taskID, pause, step)
		}
	}
	return e.complete(taskID)
}

// pauseAfter reports whether the task should stop at this step boundary.
func pauseAfter(p models.PausePoint, step int) (models.TaskStatus, bool) {
	switch {
	case p == models.PauseStep4 && step == models.StepTranscribe:
		return models.StatusPausedStep4, true
	case p == models.PauseStep5 && step == models.StepTranslate:
		return models.StatusPausedStep5, true
	}
	return "", false
}

func (e *Executor) beginStep(taskID string, step int) error {
	state, err := e.env.Store.PatchStatus(taskID, func(st *models.TaskState) {
		st.Status = models.StatusProcessing
		st.CurrentStep = step
		st.StepName = models.StepName(step)
		st.Progress = float64(step-1) / float64(models.StepMux)
		st.Message = "running " + models.StepName(step)
		st.Error = ""
	})
	if err != nil {
		return err
	}
	e.publishStatus(state)
	return nil
}

func (e *Executor) finishStep(taskID string, step int) (*models.TaskState, error) {
	state, err := e.env.Store.PatchStatus(taskID, func(st *models.TaskState) {
		st.Progress = float64(step) / float64(models.StepMux)
		st.Message = models.StepName(step) + " done"
	})
	if err != nil {
		return nil, err
	}
	e.publishStatus(state)
	return state, nil
}

func (e *Executor) pause(taskID string, status models.TaskStatus, step int) error {
	state, err := e.env.Store.PatchStatus(taskID, func(st *models.TaskState) {
		st.Status = status
		st.Message = "paused for review after " + models.StepName(step)
	})
	if err != nil {
		return err
	}
	e.env.Store.AppendLog(taskID, "paused: %s", status)
	e.publishStatus(state)
	return nil
}

// complete finalizes a successful run, folding per-segment clone
// failures into the completion message as a warning.
func (e *Executor) complete(taskID string) error {
	message := "completed"
	if table, err := e.env.Store.ReadSegments(taskID); err == nil {
		failed := 0
		for _, seg := range table {
			if seg.Error != "" {
				failed++
			}
		}
		if failed > 0 {
			message = fmt.Sprintf("completed: %d of %d segments failed to clone and were left silent",
				failed, len(table))
		}
	}

	state, err := e.env.Store.PatchStatus(taskID, func(st *models.TaskState) {
		st.Status = models.StatusCompleted
		st.Progress = 1.0
		st.Message = message
	})
	if err != nil {
		return err
	}
	e.env.Store.AppendLog(taskID, "%s", message)
	e.publishStatus(state)
	return nil
}

// fail records a terminal failure. Cancellation is a failure with the
// fixed error string "cancelled".
func (e *Executor) fail(taskID string, cause error) error {
	msg := cause.Error()
	if models.KindOf(cause) == models.KindCancelled {
		msg = "cancelled"
	}
	state, err := e.env.Store.PatchStatus(taskID, func(st *models.TaskState) {
		st.Status = models.StatusFailed
		st.Error = msg
	})
	if err != nil {
		e.logger.Error("failed to record task failure", "task_id", taskID, "error", err)
		return cause
	}
	e.env.Store.AppendLog(taskID, "failed: %s", msg)
	e.publishStatus(state)
	return cause
}

func (e *Executor) publishStatus(state *models.TaskState) {
	if e.env.Bus != nil {
		e.env.Bus.Publish(events.StatusEvent(state))
	}
}

// Resynthesize re-runs reference extraction and cloning for one segment.
// Valid while the task is paused at the step-5 review or completed; the
// task status is left untouched and the outcome is published as a
// resynthesize_complete event.
func (e *Executor) Resynthesize(ctx context.Context, taskID string, segID int) error {
	state, err := e.env.Store.ReadStatus(taskID)
	if err != nil {
		return err
	}
	if state.Status != models.StatusPausedStep5 && state.Status != models.StatusCompleted {
		return models.E(models.KindConflict,
			fmt.Sprintf("resynthesize in status %s", state.Status), models.ErrWrongState)
	}

	table, err := e.env.Store.ReadSegments(taskID)
	if err != nil {
		return err
	}
	idx, err := segments.Find(table, segID)
	if err != nil {
		return err
	}
	if table[idx].TranslatedText == "" {
		return models.Errorf(models.KindInvalidRequest,
			"segment %d has no translation to synthesize", segID)
	}

	// Drop the stale clone so stages 6-7 pick the segment up again.
	table[idx].ClonedAudioPath = ""
	table[idx].ClonedDuration = 0
	table[idx].DurationMultiplier = 0
	table[idx].Error = ""
	table[idx].Dirty = false
	if err := e.env.Store.WriteSegments(taskID, table); err != nil {
		return err
	}

	params, err := e.env.Store.ReadParams(taskID)
	if err != nil {
		return err
	}
	run := e.env.NewRun(taskID, params)
	run.OnlySegment = &segID

	runErr := e.runSteps(ctx, run, models.StepExtractReferences, models.StepCloneVoices)

	table, err = e.env.Store.ReadSegments(taskID)
	if err != nil {
		return err
	}
	idx, err = segments.Find(table, segID)
	if err != nil {
		return err
	}
	seg := &table[idx]

	success := runErr == nil && seg.Error == "" && seg.ClonedAudioPath != ""
	if success && e.env.Store.ArtifactExists(taskID, run.Layout.FinalVoice()) {
		// The final track no longer contains this clone.
		seg.Dirty = true
		if err := e.env.Store.WriteSegments(taskID, table); err != nil {
			return err
		}
	}

	ev := events.Event{
		Type:      events.TypeResynthesizeComplete,
		TaskID:    taskID,
		SegmentID: segID,
		AudioPath: seg.ClonedAudioPath,
		Success:   success,
	}
	if !success {
		switch {
		case runErr != nil:
			ev.Error = runErr.Error()
		default:
			ev.Error = seg.Error
		}
	}
	if e.env.Bus != nil {
		e.env.Bus.Publish(ev)
	}
	e.env.Store.AppendLog(taskID, "resynthesize segment %d: success=%t", segID, success)
	return runErr
}

// Retranslate redoes the translation of one segment, or records the
// caller's override verbatim. The stale clone reference is dropped so a
// following resynthesize picks the segment up. Valid at either review
// pause or after completion.
func (e *Executor) Retranslate(ctx context.Context, taskID string, segID int, overrideText string) (*models.Segment, error) {
	state, err := e.env.Store.ReadStatus(taskID)
	if err != nil {
		return nil, err
	}
	switch state.Status {
	case models.StatusPausedStep4, models.StatusPausedStep5, models.StatusCompleted:
	default:
		return nil, models.E(models.KindConflict,
			fmt.Sprintf("retranslate in status %s", state.Status), models.ErrWrongState)
	}

	table, err := e.env.Store.ReadSegments(taskID)
	if err != nil {
		return nil, err
	}
	idx, err := segments.Find(table, segID)
	if err != nil {
		return nil, err
	}
	seg := &table[idx]

	params, err := e.env.Store.ReadParams(taskID)
	if err != nil {
		return nil, err
	}

	switch {
	case overrideText != "":
		seg.TranslatedText = overrideText
	case state.SourceLang == params.TargetLang:
		seg.TranslatedText = seg.Text
	default:
		translated, err := e.env.Translator.Translate(ctx,
			[]string{seg.Text}, state.SourceLang, params.TargetLang)
		if err != nil {
			return nil, err
		}
		if len(translated) != 1 {
			return nil, models.Errorf(models.KindEngineFailure,
				"translator returned %d results for one segment", len(translated))
		}
		seg.TranslatedText = translated[0]
	}

	seg.ClonedAudioPath = ""
	seg.ClonedDuration = 0
	seg.DurationMultiplier = 0
	seg.Error = ""
	seg.Dirty = false

	if err := e.env.Store.WriteSegments(taskID, table); err != nil {
		return nil, err
	}
	e.env.Store.AppendLog(taskID, "retranslated segment %d", segID)
	out := table[idx]
	return &out, nil
}

// RegenerateFinal re-runs merge and mux over the current segment table
// and clears every Dirty bit. With an unchanged table the output is
// byte-identical.
func (e *Executor) RegenerateFinal(ctx context.Context, taskID string) error {
	state, err := e.env.Store.ReadStatus(taskID)
	if err != nil {
		return err
	}
	if state.Status != models.StatusCompleted {
		return models.E(models.KindConflict,
			fmt.Sprintf("regenerate_final in status %s", state.Status), models.ErrWrongState)
	}

	params, err := e.env.Store.ReadParams(taskID)
	if err != nil {
		return err
	}
	run := e.env.NewRun(taskID, params)

	if err := e.beginStep(taskID, models.StepMergeVoice); err != nil {
		return err
	}
	if err := e.runSteps(ctx, run, models.StepMergeVoice, models.StepMux); err != nil {
		return e.fail(taskID, err)
	}

	table, err := e.env.Store.ReadSegments(taskID)
	if err != nil {
		return err
	}
	for i := range table {
		table[i].Dirty = false
	}
	if err := e.env.Store.WriteSegments(taskID, table); err != nil {
		return err
	}

	if err := e.complete(taskID); err != nil {
		return err
	}
	if e.env.Bus != nil {
		e.env.Bus.Publish(events.Event{
			Type:    events.TypeRegenerateComplete,
			TaskID:  taskID,
			Success: true,
		})
	}
	return nil
}

// runSteps executes an inclusive span of stages against one run.
func (e *Executor) runSteps(ctx context.Context, run *pipeline.Run, from, to int) error {
	for step := from; step <= to; step++ {
		if ctx.Err() != nil {
			return models.E(models.KindCancelled, "run", models.ErrCancelled)
		}
		stage, ok := e.env.StageAt(step)
		if !ok {
			return models.Errorf(models.KindCorrupt, "no stage for step %d", step)
		}
		if err := stage.Execute(ctx, run); err != nil {
			return err
		}
	}
	return nil
}
