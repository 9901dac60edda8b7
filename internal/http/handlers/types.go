// Package handlers provides the HTTP API handlers for revoice.
package handlers

import (
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/revoice/internal/models"
)

// apiError maps a kinded error onto the HTTP status model.
func apiError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, models.ErrTaskNotFound) || errors.Is(err, models.ErrSegmentNotFound) {
		return huma.Error404NotFound(err.Error())
	}
	switch models.KindOf(err) {
	case models.KindInvalidRequest:
		return huma.Error400BadRequest(err.Error())
	case models.KindConflict, models.KindCancelled:
		return huma.Error409Conflict(err.Error())
	case models.KindEngineFailure:
		return huma.Error502BadGateway(err.Error())
	default:
		return huma.Error500InternalServerError(err.Error())
	}
}

// TaskResponse is the task manifest plus the operation currently in
// flight, if any.
type TaskResponse struct {
	models.TaskState
	ActiveOperation string `json:"active_operation,omitempty"`
}

// SegmentsResponse is the canonical segment table of one task.
type SegmentsResponse struct {
	TaskID   string           `json:"task_id"`
	Segments []models.Segment `json:"segments"`
}
