package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/jmylchreest/revoice/internal/models"
	"github.com/jmylchreest/revoice/internal/segments"
)

// Store is the durable task store. One directory per task under the root;
// status.json is the authoritative manifest and the segment table JSON is
// the canonical structured state. All writes go through temp-file +
// rename, and status read-modify-writes are serialized per task.
type Store struct {
	root   *Sandbox
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a Store rooted at tasksDir.
func New(tasksDir string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	root, err := NewSandbox(tasksDir)
	if err != nil {
		return nil, models.E(models.KindIOFailure, "storage: open tasks root", err)
	}
	return &Store{
		root:   root,
		logger: logger.With("component", "taskstore"),
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

// Root returns the absolute tasks root directory.
func (s *Store) Root() string {
	return s.root.BaseDir()
}

// statusLock returns the per-task mutex guarding status.json updates.
func (s *Store) statusLock(taskID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[taskID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[taskID] = l
	}
	return l
}

// Create makes the task directory and writes the initial manifest and the
// task params artifact. Fails with a Conflict if the directory exists.
func (s *Store) Create(state *models.TaskState, params *models.TaskParams) error {
	if s.root.Exists(state.ID) {
		return models.E(models.KindConflict, "storage: create task",
			fmt.Errorf("%w: %s", models.ErrTaskExists, state.ID))
	}
	if err := s.root.MkdirAll(state.ID); err != nil {
		return models.E(models.KindIOFailure, "storage: create task dir", err)
	}
	if err := s.writeJSON(path.Join(state.ID, TaskParamsFile), params); err != nil {
		return err
	}
	if err := s.writeJSON(path.Join(state.ID, StatusFile), state); err != nil {
		return err
	}
	s.AppendLog(state.ID, "task created: %s -> %s (single_speaker=%t)",
		state.SourceLang, state.TargetLang, state.SingleSpeaker)
	return nil
}

// Exists reports whether the task directory is present.
func (s *Store) Exists(taskID string) bool {
	return s.root.Exists(path.Join(taskID, StatusFile))
}

// ReadStatus loads the status manifest.
func (s *Store) ReadStatus(taskID string) (*models.TaskState, error) {
	var state models.TaskState
	if err := s.readJSON(path.Join(taskID, StatusFile), &state); err != nil {
		return nil, err
	}
	return &state, nil
}

// PatchStatus applies patch to the manifest under the task's mutex and
// persists the result atomically. Returns the updated state.
func (s *Store) PatchStatus(taskID string, patch func(*models.TaskState)) (*models.TaskState, error) {
	lock := s.statusLock(taskID)
	lock.Lock()
	defer lock.Unlock()

	state, err := s.ReadStatus(taskID)
	if err != nil {
		return nil, err
	}
	patch(state)
	state.UpdatedAt = time.Now().UTC()
	if err := s.writeJSON(path.Join(taskID, StatusFile), state); err != nil {
		return nil, err
	}
	return state, nil
}

// ReadParams loads the task params artifact written at creation.
func (s *Store) ReadParams(taskID string) (*models.TaskParams, error) {
	var params models.TaskParams
	if err := s.readJSON(path.Join(taskID, TaskParamsFile), &params); err != nil {
		return nil, err
	}
	return &params, nil
}

// ReadSegments loads and validates the canonical segment table.
// Invariant violations surface as Corrupt: the table on disk is the
// source of truth and must never be invalid.
func (s *Store) ReadSegments(taskID string) ([]models.Segment, error) {
	layout := NewLayout(taskID)
	data, err := s.root.ReadFile(path.Join(taskID, layout.Segments()))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, models.E(models.KindInvalidRequest, "storage: read segments",
				fmt.Errorf("%w: no segment table for %s", models.ErrTaskNotFound, taskID))
		}
		return nil, models.E(models.KindIOFailure, "storage: read segments", err)
	}
	var table []models.Segment
	if err := json.Unmarshal(data, &table); err != nil {
		return nil, models.E(models.KindCorrupt, "storage: parse segments",
			fmt.Errorf("%w: %v", models.ErrCorruptState, err))
	}
	if err := segments.Validate(table); err != nil {
		return nil, models.E(models.KindCorrupt, "storage: validate segments",
			fmt.Errorf("%w: %v", models.ErrCorruptState, err))
	}
	return table, nil
}

// WriteSegments validates and persists the segment table atomically.
// An invalid table is rejected before anything touches the disk.
func (s *Store) WriteSegments(taskID string, table []models.Segment) error {
	if err := segments.Validate(table); err != nil {
		return models.E(models.KindInvalidRequest, "storage: write segments", err)
	}
	layout := NewLayout(taskID)
	return s.writeJSON(path.Join(taskID, layout.Segments()), table)
}

// PutArtifact streams r into the task workspace via temp-file + rename.
func (s *Store) PutArtifact(taskID, rel string, r io.Reader) error {
	if err := s.root.AtomicWriteReader(path.Join(taskID, rel), r); err != nil {
		return models.E(models.KindIOFailure, "storage: put artifact", err)
	}
	return nil
}

// PutArtifactBytes writes data as an artifact.
func (s *Store) PutArtifactBytes(taskID, rel string, data []byte) error {
	if err := s.root.AtomicWrite(path.Join(taskID, rel), data); err != nil {
		return models.E(models.KindIOFailure, "storage: put artifact", err)
	}
	return nil
}

// PutJSON writes v as an indented JSON artifact.
func (s *Store) PutJSON(taskID, rel string, v any) error {
	return s.writeJSON(path.Join(taskID, rel), v)
}

// ReadJSON reads a JSON artifact into v.
func (s *Store) ReadJSON(taskID, rel string, v any) error {
	return s.readJSON(path.Join(taskID, rel), v)
}

// ArtifactPath resolves an artifact name to an absolute path for the
// engines and the media tool. The file does not have to exist yet.
func (s *Store) ArtifactPath(taskID, rel string) (string, error) {
	abs, err := s.root.Resolve(path.Join(taskID, rel))
	if err != nil {
		return "", models.E(models.KindInvalidRequest, "storage: resolve artifact", err)
	}
	return abs, nil
}

// EnsureArtifactDir creates a directory inside the task workspace so
// external engines can write to resolved artifact paths directly.
func (s *Store) EnsureArtifactDir(taskID, dir string) error {
	if err := s.root.MkdirAll(path.Join(taskID, dir)); err != nil {
		return models.E(models.KindIOFailure, "storage: ensure artifact dir", err)
	}
	return nil
}

// ArtifactExists reports whether the artifact is on disk.
func (s *Store) ArtifactExists(taskID, rel string) bool {
	return s.root.Exists(path.Join(taskID, rel))
}

// OpenArtifact opens an artifact for reading. Concurrent readers must
// tolerate NotFound while the owning executor is still producing files.
func (s *Store) OpenArtifact(taskID, rel string) (*os.File, os.FileInfo, error) {
	abs, err := s.root.Resolve(path.Join(taskID, rel))
	if err != nil {
		return nil, nil, models.E(models.KindInvalidRequest, "storage: resolve artifact", err)
	}
	f, err := os.Open(abs)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, models.E(models.KindInvalidRequest, "storage: open artifact",
				fmt.Errorf("%w: %s", models.ErrTaskNotFound, rel))
		}
		return nil, nil, models.E(models.KindIOFailure, "storage: open artifact", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, models.E(models.KindIOFailure, "storage: stat artifact", err)
	}
	return f, info, nil
}

// AppendLog appends a timestamped line to the processing log. Logging
// failures are reported to the logger but never fail the pipeline.
func (s *Store) AppendLog(taskID, format string, args ...any) {
	line := fmt.Sprintf("[%s] %s", time.Now().UTC().Format(time.RFC3339), fmt.Sprintf(format, args...))
	if err := s.root.AppendLine(path.Join(taskID, ProcessingLog), line); err != nil {
		s.logger.Warn("appending processing log failed", "task_id", taskID, "error", err)
	}
}

// List scans the tasks root for status manifests, newest first.
// Directories without a readable manifest are skipped with a warning.
func (s *Store) List() ([]*models.TaskState, error) {
	entries, err := s.root.List(".")
	if err != nil {
		return nil, models.E(models.KindIOFailure, "storage: list tasks", err)
	}
	states := make([]*models.TaskState, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		state, err := s.ReadStatus(e.Name())
		if err != nil {
			s.logger.Warn("skipping unreadable task dir", "dir", e.Name(), "error", err)
			continue
		}
		states = append(states, state)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].ID > states[j].ID })
	return states, nil
}

// Delete removes the whole task directory.
func (s *Store) Delete(taskID string) error {
	if !s.Exists(taskID) {
		return models.E(models.KindInvalidRequest, "storage: delete task",
			fmt.Errorf("%w: %s", models.ErrTaskNotFound, taskID))
	}
	if err := s.root.RemoveAll(taskID); err != nil {
		return models.E(models.KindIOFailure, "storage: delete task", err)
	}
	s.mu.Lock()
	delete(s.locks, taskID)
	s.mu.Unlock()
	return nil
}

func (s *Store) writeJSON(rel string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return models.E(models.KindIOFailure, "storage: marshal json", err)
	}
	if err := s.root.AtomicWrite(rel, data); err != nil {
		return models.E(models.KindIOFailure, "storage: write json", err)
	}
	return nil
}

func (s *Store) readJSON(rel string, v any) error {
	data, err := s.root.ReadFile(rel)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.E(models.KindInvalidRequest, "storage: read json",
				fmt.Errorf("%w: %s", models.ErrTaskNotFound, rel))
		}
		return models.E(models.KindIOFailure, "storage: read json", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return models.E(models.KindCorrupt, "storage: parse json",
			fmt.Errorf("%w: %s: %v", models.ErrCorruptState, rel, err))
	}
	return nil
}
