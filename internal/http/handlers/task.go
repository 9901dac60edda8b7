package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/revoice/internal/models"
	"github.com/jmylchreest/revoice/internal/scheduler"
	"github.com/jmylchreest/revoice/internal/storage"
)

// TaskHandler handles task lifecycle endpoints.
type TaskHandler struct {
	manager *scheduler.Manager
	store   *storage.Store
}

// NewTaskHandler creates a task handler.
func NewTaskHandler(manager *scheduler.Manager, store *storage.Store) *TaskHandler {
	return &TaskHandler{manager: manager, store: store}
}

// Register registers the task routes with the API.
func (h *TaskHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "createTask",
		Method:        "POST",
		Path:          "/api/v1/tasks",
		Summary:       "Create task",
		Description:   "Creates a translation task from an uploaded file and starts processing",
		Tags:          []string{"Tasks"},
		DefaultStatus: 201,
	}, h.Create)

	huma.Register(api, huma.Operation{
		OperationID: "listTasks",
		Method:      "GET",
		Path:        "/api/v1/tasks",
		Summary:     "List tasks",
		Description: "Returns all tasks, newest first",
		Tags:        []string{"Tasks"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "getTask",
		Method:      "GET",
		Path:        "/api/v1/tasks/{id}",
		Summary:     "Get task",
		Description: "Returns the task manifest",
		Tags:        []string{"Tasks"},
	}, h.Get)

	huma.Register(api, huma.Operation{
		OperationID:   "deleteTask",
		Method:        "DELETE",
		Path:          "/api/v1/tasks/{id}",
		Summary:       "Delete task",
		Description:   "Removes the task and its artifacts. Running tasks must be cancelled first",
		Tags:          []string{"Tasks"},
		DefaultStatus: 204,
	}, h.Delete)

	huma.Register(api, huma.Operation{
		OperationID:   "continueTask",
		Method:        "POST",
		Path:          "/api/v1/tasks/{id}/continue",
		Summary:       "Continue task",
		Description:   "Resumes a paused task, optionally changing the next pause checkpoint",
		Tags:          []string{"Tasks"},
		DefaultStatus: 202,
	}, h.Continue)

	huma.Register(api, huma.Operation{
		OperationID:   "cancelTask",
		Method:        "POST",
		Path:          "/api/v1/tasks/{id}/cancel",
		Summary:       "Cancel task",
		Description:   "Cancels a pending, paused, or running task",
		Tags:          []string{"Tasks"},
		DefaultStatus: 202,
	}, h.Cancel)

	huma.Register(api, huma.Operation{
		OperationID:   "resynthesizeSegment",
		Method:        "POST",
		Path:          "/api/v1/tasks/{id}/resynthesize",
		Summary:       "Resynthesize segment",
		Description:   "Re-clones one segment's audio. The result arrives as a resynthesize_complete event",
		Tags:          []string{"Tasks"},
		DefaultStatus: 202,
	}, h.Resynthesize)

	huma.Register(api, huma.Operation{
		OperationID:   "regenerateFinal",
		Method:        "POST",
		Path:          "/api/v1/tasks/{id}/regenerate",
		Summary:       "Regenerate final output",
		Description:   "Rebuilds the final voice track and deliverable from the current segment table",
		Tags:          []string{"Tasks"},
		DefaultStatus: 202,
	}, h.Regenerate)
}

// CreateTaskInput is the task creation request.
type CreateTaskInput struct {
	Body struct {
		UploadID      string            `json:"upload_id" doc:"Id returned by the media upload endpoint"`
		SourceLang    string            `json:"source_lang,omitempty" doc:"Source language code, or auto"`
		TargetLang    string            `json:"target_lang" doc:"Target language code"`
		SingleSpeaker bool              `json:"single_speaker,omitempty" doc:"Skip diarization and treat all speech as one voice"`
		PauseAfter    models.PausePoint `json:"pause_after,omitempty" enum:",step4,step5" doc:"Checkpoint to pause at for review"`
	}
}

// TaskOutput wraps a single task response.
type TaskOutput struct {
	Body TaskResponse
}

func (h *TaskHandler) Create(ctx context.Context, input *CreateTaskInput) (*TaskOutput, error) {
	state, err := h.manager.Create(ctx, scheduler.CreateRequest{
		UploadID:      input.Body.UploadID,
		SourceLang:    input.Body.SourceLang,
		TargetLang:    input.Body.TargetLang,
		SingleSpeaker: input.Body.SingleSpeaker,
		PauseAfter:    input.Body.PauseAfter,
	})
	if err != nil {
		return nil, apiError(err)
	}
	if err := h.manager.Start(state.ID); err != nil {
		return nil, apiError(err)
	}
	return &TaskOutput{Body: h.response(state)}, nil
}

// ListTasksOutput is the task list response.
type ListTasksOutput struct {
	Body struct {
		Tasks []TaskResponse `json:"tasks"`
	}
}

func (h *TaskHandler) List(ctx context.Context, _ *struct{}) (*ListTasksOutput, error) {
	states, err := h.store.List()
	if err != nil {
		return nil, apiError(err)
	}
	out := &ListTasksOutput{}
	out.Body.Tasks = make([]TaskResponse, 0, len(states))
	for _, st := range states {
		out.Body.Tasks = append(out.Body.Tasks, h.response(st))
	}
	return out, nil
}

// TaskIDInput identifies a task by path parameter.
type TaskIDInput struct {
	ID string `path:"id" doc:"Task id"`
}

func (h *TaskHandler) Get(ctx context.Context, input *TaskIDInput) (*TaskOutput, error) {
	state, err := h.store.ReadStatus(input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	return &TaskOutput{Body: h.response(state)}, nil
}

func (h *TaskHandler) Delete(ctx context.Context, input *TaskIDInput) (*struct{}, error) {
	if op, busy := h.manager.ActiveOperation(input.ID); busy {
		return nil, apiError(models.Errorf(models.KindConflict,
			"task busy with %s, cancel it first", op))
	}
	if err := h.store.Delete(input.ID); err != nil {
		return nil, apiError(err)
	}
	return &struct{}{}, nil
}

// ContinueTaskInput optionally replaces the pause checkpoint on resume.
type ContinueTaskInput struct {
	ID   string `path:"id"`
	Body struct {
		PauseAfter *models.PausePoint `json:"pause_after,omitempty" doc:"New checkpoint, empty string to run to completion"`
	}
}

func (h *TaskHandler) Continue(ctx context.Context, input *ContinueTaskInput) (*TaskOutput, error) {
	if err := h.manager.Continue(input.ID, input.Body.PauseAfter); err != nil {
		return nil, apiError(err)
	}
	state, err := h.store.ReadStatus(input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	return &TaskOutput{Body: h.response(state)}, nil
}

func (h *TaskHandler) Cancel(ctx context.Context, input *TaskIDInput) (*TaskOutput, error) {
	if err := h.manager.Cancel(input.ID); err != nil {
		return nil, apiError(err)
	}
	state, err := h.store.ReadStatus(input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	return &TaskOutput{Body: h.response(state)}, nil
}

// ResynthesizeInput names the segment to re-clone.
type ResynthesizeInput struct {
	ID   string `path:"id"`
	Body struct {
		SegmentID int `json:"segment_id" doc:"Segment to re-clone"`
	}
}

func (h *TaskHandler) Resynthesize(ctx context.Context, input *ResynthesizeInput) (*TaskOutput, error) {
	if err := h.manager.Resynthesize(input.ID, input.Body.SegmentID); err != nil {
		return nil, apiError(err)
	}
	state, err := h.store.ReadStatus(input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	return &TaskOutput{Body: h.response(state)}, nil
}

func (h *TaskHandler) Regenerate(ctx context.Context, input *TaskIDInput) (*TaskOutput, error) {
	if err := h.manager.RegenerateFinal(input.ID); err != nil {
		return nil, apiError(err)
	}
	state, err := h.store.ReadStatus(input.ID)
	if err != nil {
		return nil, apiError(err)
	}
	return &TaskOutput{Body: h.response(state)}, nil
}

func (h *TaskHandler) response(state *models.TaskState) TaskResponse {
	resp := TaskResponse{TaskState: *state}
	if op, ok := h.manager.ActiveOperation(state.ID); ok {
		resp.ActiveOperation = op
	}
	return resp
}
