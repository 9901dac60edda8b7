// Package scheduler owns the task lifecycle above the executor: it
// creates tasks from uploads, tracks which tasks have an operation in
// flight, serializes operations per task, and bounds global pipeline
// concurrency with a weighted semaphore.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/jmylchreest/revoice/internal/events"
	"github.com/jmylchreest/revoice/internal/models"
	"github.com/jmylchreest/revoice/internal/storage"
)

// TaskRunner is the executor surface the scheduler drives.
type TaskRunner interface {
	Run(ctx context.Context, taskID string) error
	Resynthesize(ctx context.Context, taskID string, segID int) error
	Retranslate(ctx context.Context, taskID string, segID int, overrideText string) (*models.Segment, error)
	RegenerateFinal(ctx context.Context, taskID string) error
}

// VideoDetector reports whether a media file has a video stream. The
// ffmpeg Tool is the production implementation.
type VideoDetector interface {
	HasVideo(ctx context.Context, path string) (bool, error)
}

// Config holds scheduler tunables.
type Config struct {
	// MaxConcurrentTasks bounds pipelines running at once.
	MaxConcurrentTasks int
}

// Operation names shown in conflict errors and logs.
const (
	opRun          = "run"
	opResynthesize = "resynthesize"
	opRetranslate  = "retranslate"
	opRegenerate   = "regenerate_final"
)

type handle struct {
	op     string
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager is the task lifecycle coordinator.
type Manager struct {
	store    *storage.Store
	uploads  *storage.UploadStore
	runner   TaskRunner
	detector VideoDetector
	bus      *events.Bus
	logger   *slog.Logger

	sem *semaphore.Weighted

	mu     sync.Mutex
	active map[string]*handle
	wg     sync.WaitGroup
}

// New creates a Manager.
func New(
	store *storage.Store,
	uploads *storage.UploadStore,
	runner TaskRunner,
	detector VideoDetector,
	bus *events.Bus,
	cfg Config,
	logger *slog.Logger,
) *Manager {
	if cfg.MaxConcurrentTasks < 1 {
		cfg.MaxConcurrentTasks = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:    store,
		uploads:  uploads,
		runner:   runner,
		detector: detector,
		bus:      bus,
		logger:   logger.With("component", "scheduler"),
		sem:      semaphore.NewWeighted(int64(cfg.MaxConcurrentTasks)),
		active:   make(map[string]*handle),
	}
}

// CreateRequest describes a new task.
type CreateRequest struct {
	UploadID      string
	SourceLang    string
	TargetLang    string
	SingleSpeaker bool
	PauseAfter    models.PausePoint
}

// Create materializes a task workspace from an uploaded file: the media
// is copied in as the 00 artifact and the initial manifest written. The
// task is left pending; call Start to run it.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*models.TaskState, error) {
	if req.TargetLang == "" {
		return nil, models.Errorf(models.KindInvalidRequest, "target_lang is required")
	}
	if req.SourceLang == "" {
		req.SourceLang = models.LangAuto
	}
	if !req.PauseAfter.Valid() {
		return nil, models.Errorf(models.KindInvalidRequest, "invalid pause_after %q", req.PauseAfter)
	}

	srcPath, err := m.uploads.Path(req.UploadID)
	if err != nil {
		return nil, err
	}
	originalName := storage.OriginalName(req.UploadID)

	isVideo, err := m.detector.HasVideo(ctx, srcPath)
	if err != nil {
		return nil, models.E(models.KindInvalidRequest, "scheduler: probe upload", err)
	}

	taskID := models.NewTaskID(time.Now(), originalName)
	// Second-resolution ids can collide under rapid creation.
	for i := 1; m.store.Exists(taskID) && i < 5; i++ {
		taskID = models.NewTaskID(time.Now().Add(time.Duration(i)*time.Second), originalName)
	}
	layout := storage.NewLayout(taskID)
	inputRel := layout.OriginalInput(filepath.Ext(originalName))

	now := time.Now().UTC()
	state := &models.TaskState{
		ID:            taskID,
		Status:        models.StatusPending,
		SourceLang:    req.SourceLang,
		TargetLang:    req.TargetLang,
		SingleSpeaker: req.SingleSpeaker,
		PauseAfter:    req.PauseAfter,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	params := &models.TaskParams{
		InputPath:     inputRel,
		SourceLang:    req.SourceLang,
		TargetLang:    req.TargetLang,
		SingleSpeaker: req.SingleSpeaker,
		PauseAfter:    req.PauseAfter,
		IsVideo:       isVideo,
	}
	if err := m.store.Create(state, params); err != nil {
		return nil, err
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return nil, models.E(models.KindIOFailure, "scheduler: open upload", err)
	}
	defer src.Close()
	if err := m.store.PutArtifact(taskID, inputRel, src); err != nil {
		return nil, err
	}

	m.logger.Info("task created", "task_id", taskID, "video", isVideo, "target", req.TargetLang)
	return state, nil
}

// Start launches a pending task's pipeline.
func (m *Manager) Start(taskID string) error {
	state, err := m.store.ReadStatus(taskID)
	if err != nil {
		return err
	}
	if state.Status != models.StatusPending {
		return models.E(models.KindConflict,
			fmt.Sprintf("start in status %s", state.Status), models.ErrWrongState)
	}
	return m.launch(taskID, opRun, func(ctx context.Context) error {
		return m.runner.Run(ctx, taskID)
	})
}

// Continue resumes a paused task. A non-nil pauseAfter replaces the
// stored checkpoint first, so a step-4 review can still stop at step 5.
func (m *Manager) Continue(taskID string, pauseAfter *models.PausePoint) error {
	state, err := m.store.ReadStatus(taskID)
	if err != nil {
		return err
	}
	if !state.Status.IsPaused() {
		return models.E(models.KindConflict,
			fmt.Sprintf("continue in status %s", state.Status), models.ErrWrongState)
	}
	if pauseAfter != nil {
		if !pauseAfter.Valid() {
			return models.Errorf(models.KindInvalidRequest, "invalid pause_after %q", *pauseAfter)
		}
		if _, err := m.store.PatchStatus(taskID, func(st *models.TaskState) {
			st.PauseAfter = *pauseAfter
		}); err != nil {
			return err
		}
	}
	return m.launch(taskID, opRun, func(ctx context.Context) error {
		return m.runner.Run(ctx, taskID)
	})
}

// Cancel stops a task. A running operation is cancelled cooperatively
// and the executor records the failure; a pending or paused task is
// marked failed directly. Terminal tasks cannot be cancelled.
func (m *Manager) Cancel(taskID string) error {
	m.mu.Lock()
	h, running := m.active[taskID]
	m.mu.Unlock()
	if running {
		h.cancel()
		return nil
	}

	state, err := m.store.ReadStatus(taskID)
	if err != nil {
		return err
	}
	if state.Status.IsTerminal() {
		return models.E(models.KindConflict,
			fmt.Sprintf("cancel in status %s", state.Status), models.ErrWrongState)
	}
	state, err = m.store.PatchStatus(taskID, func(st *models.TaskState) {
		st.Status = models.StatusFailed
		st.Error = "cancelled"
	})
	if err != nil {
		return err
	}
	m.store.AppendLog(taskID, "failed: cancelled")
	if m.bus != nil {
		m.bus.Publish(events.StatusEvent(state))
	}
	return nil
}

// Resynthesize queues a single-segment re-clone. The outcome arrives as
// a resynthesize_complete event.
func (m *Manager) Resynthesize(taskID string, segID int) error {
	state, err := m.store.ReadStatus(taskID)
	if err != nil {
		return err
	}
	if state.Status != models.StatusPausedStep5 && state.Status != models.StatusCompleted {
		return models.E(models.KindConflict,
			fmt.Sprintf("resynthesize in status %s", state.Status), models.ErrWrongState)
	}
	return m.launch(taskID, opResynthesize, func(ctx context.Context) error {
		return m.runner.Resynthesize(ctx, taskID, segID)
	})
}

// Retranslate redoes one segment's translation synchronously, holding
// the task's operation slot for the duration of the translator call. It
// skips the global semaphore: a single chat completion is not the GPU
// workload the limit exists for.
func (m *Manager) Retranslate(ctx context.Context, taskID string, segID int, overrideText string) (*models.Segment, error) {
	m.mu.Lock()
	if h, busy := m.active[taskID]; busy {
		m.mu.Unlock()
		return nil, models.E(models.KindConflict,
			fmt.Sprintf("task busy with %s", h.op), models.ErrWrongState)
	}
	opCtx, cancel := context.WithCancel(ctx)
	h := &handle{op: opRetranslate, cancel: cancel, done: make(chan struct{})}
	m.active[taskID] = h
	m.mu.Unlock()

	defer func() {
		cancel()
		close(h.done)
		m.mu.Lock()
		delete(m.active, taskID)
		m.mu.Unlock()
	}()

	return m.runner.Retranslate(opCtx, taskID, segID, overrideText)
}

// RegenerateFinal queues a rebuild of the final output from the current
// segment table.
func (m *Manager) RegenerateFinal(taskID string) error {
	state, err := m.store.ReadStatus(taskID)
	if err != nil {
		return err
	}
	if state.Status != models.StatusCompleted {
		return models.E(models.KindConflict,
			fmt.Sprintf("regenerate_final in status %s", state.Status), models.ErrWrongState)
	}
	return m.launch(taskID, opRegenerate, func(ctx context.Context) error {
		return m.runner.RegenerateFinal(ctx, taskID)
	})
}

// ActiveOperation reports the operation in flight for a task, if any.
func (m *Manager) ActiveOperation(taskID string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.active[taskID]
	if !ok {
		return "", false
	}
	return h.op, true
}

// launch registers the operation and runs it on a goroutine gated by the
// global concurrency semaphore. A task admits one operation at a time.
func (m *Manager) launch(taskID, op string, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	if h, busy := m.active[taskID]; busy {
		m.mu.Unlock()
		return models.E(models.KindConflict,
			fmt.Sprintf("task busy with %s", h.op), models.ErrWrongState)
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &handle{op: op, cancel: cancel, done: make(chan struct{})}
	m.active[taskID] = h
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(h.done)
		defer cancel()
		defer func() {
			m.mu.Lock()
			delete(m.active, taskID)
			m.mu.Unlock()
		}()

		if err := m.sem.Acquire(ctx, 1); err != nil {
			// Cancelled while queued: nothing ran, record the failure here.
			m.markCancelled(taskID)
			return
		}
		defer m.sem.Release(1)

		if err := fn(ctx); err != nil {
			m.logger.Warn("task operation ended with error",
				"task_id", taskID, "op", op, "error", err)
		}
	}()
	return nil
}

func (m *Manager) markCancelled(taskID string) {
	state, err := m.store.PatchStatus(taskID, func(st *models.TaskState) {
		st.Status = models.StatusFailed
		st.Error = "cancelled"
	})
	if err != nil {
		m.logger.Error("failed to record queued cancellation", "task_id", taskID, "error", err)
		return
	}
	m.store.AppendLog(taskID, "failed: cancelled while queued")
	if m.bus != nil {
		m.bus.Publish(events.StatusEvent(state))
	}
}

// Shutdown cancels every in-flight operation and waits for them to stop.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	for _, h := range m.active {
		h.cancel()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
