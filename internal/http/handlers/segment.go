package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/revoice/internal/models"
	"github.com/jmylchreest/revoice/internal/scheduler"
	"github.com/jmylchreest/revoice/internal/segments"
	"github.com/jmylchreest/revoice/internal/storage"
)

// SegmentHandler handles segment table endpoints. Structural and text
// edits are only valid at the step-4 review; at the step-5 review the
// table is frozen except for translated_text corrections.
type SegmentHandler struct {
	manager *scheduler.Manager
	store   *storage.Store
}

// NewSegmentHandler creates a segment handler.
func NewSegmentHandler(manager *scheduler.Manager, store *storage.Store) *SegmentHandler {
	return &SegmentHandler{manager: manager, store: store}
}

// Register registers the segment routes with the API.
func (h *SegmentHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getSegments",
		Method:      "GET",
		Path:        "/api/v1/tasks/{id}/segments",
		Summary:     "Get segment table",
		Description: "Returns the canonical segment table",
		Tags:        []string{"Segments"},
	}, h.Get)

	huma.Register(api, huma.Operation{
		OperationID: "splitSegment",
		Method:      "POST",
		Path:        "/api/v1/tasks/{id}/segments/{segmentId}/split",
		Summary:     "Split segment",
		Description: "Splits a segment at a word boundary chosen from a text offset",
		Tags:        []string{"Segments"},
	}, h.Split)

	huma.Register(api, huma.Operation{
		OperationID: "mergeSegments",
		Method:      "POST",
		Path:        "/api/v1/tasks/{id}/segments/merge",
		Summary:     "Merge segments",
		Description: "Merges adjacent segments into one",
		Tags:        []string{"Segments"},
	}, h.Merge)

	huma.Register(api, huma.Operation{
		OperationID: "deleteSegments",
		Method:      "POST",
		Path:        "/api/v1/tasks/{id}/segments/delete",
		Summary:     "Delete segments",
		Description: "Removes segments and renumbers the rest",
		Tags:        []string{"Segments"},
	}, h.Delete)

	huma.Register(api, huma.Operation{
		OperationID: "updateSegment",
		Method:      "PATCH",
		Path:        "/api/v1/tasks/{id}/segments/{segmentId}",
		Summary:     "Update segment",
		Description: "Updates a segment's timing, text, or translation",
		Tags:        []string{"Segments"},
	}, h.Update)

	huma.Register(api, huma.Operation{
		OperationID: "replaceSegments",
		Method:      "PUT",
		Path:        "/api/v1/tasks/{id}/segments",
		Summary:     "Replace segment table",
		Description: "Replaces the whole segment table, re-validating invariants",
		Tags:        []string{"Segments"},
	}, h.Replace)

	huma.Register(api, huma.Operation{
		OperationID: "retranslateSegment",
		Method:      "POST",
		Path:        "/api/v1/tasks/{id}/segments/{segmentId}/retranslate",
		Summary:     "Retranslate segment",
		Description: "Redoes one segment's translation, or records an override verbatim",
		Tags:        []string{"Segments"},
	}, h.Retranslate)
}

// SegmentsOutput wraps the segment table response.
type SegmentsOutput struct {
	Body SegmentsResponse
}

func (h *SegmentHandler) Get(ctx context.Context, input *TaskIDInput) (*SegmentsOutput, error) {
	table, err := h.store.ReadSegments(input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	return &SegmentsOutput{Body: SegmentsResponse{TaskID: input.ID, Segments: table}}, nil
}

// editGuard checks that the table may be edited at all and returns the
// task status for the per-operation rules. Completed tasks stay editable
// for translation corrections feeding resynthesize.
func (h *SegmentHandler) editGuard(taskID string) (models.TaskStatus, error) {
	if op, busy := h.manager.ActiveOperation(taskID); busy {
		return "", models.Errorf(models.KindConflict, "task busy with %s", op)
	}
	state, err := h.store.ReadStatus(taskID)
	if err != nil {
		return "", err
	}
	if !state.Status.IsPaused() && state.Status != models.StatusCompleted {
		return "", models.E(models.KindConflict,
			"segment edits are only valid while paused for review or after completion", models.ErrWrongState)
	}
	return state.Status, nil
}

// structuralGuard additionally requires the step-4 review.
func (h *SegmentHandler) structuralGuard(taskID string) error {
	status, err := h.editGuard(taskID)
	if err != nil {
		return err
	}
	if status != models.StatusPausedStep4 {
		return models.E(models.KindConflict,
			"structural and text edits are only valid at the transcription review", models.ErrWrongState)
	}
	return nil
}

// apply runs an edit against the stored table and persists the result.
func (h *SegmentHandler) apply(taskID string, edit func([]models.Segment) ([]models.Segment, error)) (*SegmentsOutput, error) {
	table, err := h.store.ReadSegments(taskID)
	if err != nil {
		return nil, apiError(err)
	}
	table, err = edit(table)
	if err != nil {
		return nil, apiError(err)
	}
	if err := h.store.WriteSegments(taskID, table); err != nil {
		return nil, apiError(err)
	}
	return &SegmentsOutput{Body: SegmentsResponse{TaskID: taskID, Segments: table}}, nil
}

// SplitSegmentInput names the segment and the character offset to split at.
type SplitSegmentInput struct {
	ID        string `path:"id"`
	SegmentID int    `path:"segmentId"`
	Body      struct {
		TextOffset int `json:"text_offset" doc:"Character offset in the segment text"`
	}
}

func (h *SegmentHandler) Split(ctx context.Context, input *SplitSegmentInput) (*SegmentsOutput, error) {
	if err := h.structuralGuard(input.ID); err != nil {
		return nil, apiError(err)
	}
	return h.apply(input.ID, func(table []models.Segment) ([]models.Segment, error) {
		return segments.Split(table, input.SegmentID, input.Body.TextOffset)
	})
}

// SegmentIDsInput carries the ids for merge and delete.
type SegmentIDsInput struct {
	ID   string `path:"id"`
	Body struct {
		SegmentIDs []int `json:"segment_ids" doc:"Segment ids, adjacent for merge"`
	}
}

func (h *SegmentHandler) Merge(ctx context.Context, input *SegmentIDsInput) (*SegmentsOutput, error) {
	if err := h.structuralGuard(input.ID); err != nil {
		return nil, apiError(err)
	}
	return h.apply(input.ID, func(table []models.Segment) ([]models.Segment, error) {
		return segments.Merge(table, input.Body.SegmentIDs)
	})
}

func (h *SegmentHandler) Delete(ctx context.Context, input *SegmentIDsInput) (*SegmentsOutput, error) {
	if err := h.structuralGuard(input.ID); err != nil {
		return nil, apiError(err)
	}
	return h.apply(input.ID, func(table []models.Segment) ([]models.Segment, error) {
		return segments.Delete(table, input.Body.SegmentIDs)
	})
}

// UpdateSegmentInput carries the patchable fields; nil fields are untouched.
type UpdateSegmentInput struct {
	ID        string `path:"id"`
	SegmentID int    `path:"segmentId"`
	Body      struct {
		Start          *float64 `json:"start,omitempty"`
		End            *float64 `json:"end,omitempty"`
		Text           *string  `json:"text,omitempty"`
		TranslatedText *string  `json:"translated_text,omitempty"`
	}
}

func (h *SegmentHandler) Update(ctx context.Context, input *UpdateSegmentInput) (*SegmentsOutput, error) {
	status, err := h.editGuard(input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	b := input.Body
	if status != models.StatusPausedStep4 &&
		(b.Start != nil || b.End != nil || b.Text != nil) {
		return nil, apiError(models.E(models.KindConflict,
			"timing and text edits are only valid at the transcription review", models.ErrWrongState))
	}
	return h.apply(input.ID, func(table []models.Segment) ([]models.Segment, error) {
		return segments.Update(table, input.SegmentID, segments.Patch{
			Start:          b.Start,
			End:            b.End,
			Text:           b.Text,
			TranslatedText: b.TranslatedText,
		})
	})
}

// ReplaceSegmentsInput carries the full submitted table.
type ReplaceSegmentsInput struct {
	ID   string `path:"id"`
	Body struct {
		Segments []models.Segment `json:"segments"`
	}
}

func (h *SegmentHandler) Replace(ctx context.Context, input *ReplaceSegmentsInput) (*SegmentsOutput, error) {
	status, err := h.editGuard(input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	return h.apply(input.ID, func(table []models.Segment) ([]models.Segment, error) {
		if status != models.StatusPausedStep4 &&
			!segments.OnlyTranslationChanged(table, input.Body.Segments) {
			return nil, models.E(models.KindConflict,
				"only translated_text may change outside the transcription review", models.ErrWrongState)
		}
		return segments.Replace(table, input.Body.Segments)
	})
}

// RetranslateSegmentInput optionally overrides the translation instead of
// calling the translator.
type RetranslateSegmentInput struct {
	ID        string `path:"id"`
	SegmentID int    `path:"segmentId"`
	Body      struct {
		OverrideText string `json:"override_text,omitempty" doc:"Use this text instead of translating"`
	}
}

// SegmentOutput wraps a single-segment response.
type SegmentOutput struct {
	Body models.Segment
}

func (h *SegmentHandler) Retranslate(ctx context.Context, input *RetranslateSegmentInput) (*SegmentOutput, error) {
	seg, err := h.manager.Retranslate(ctx, input.ID, input.SegmentID, input.Body.OverrideText)
	if err != nil {
		return nil, apiError(err)
	}
	return &SegmentOutput{Body: *seg}, nil
}
