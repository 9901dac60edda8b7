package storage

import (
	"crypto/rand"
	"errors"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/revoice/internal/models"
)

// UploadStore keeps uploaded media files until a task claims them. Each
// upload gets a ULID so ids sort by arrival time, and the original file
// name is preserved as a suffix so task creation can recover the media
// basename.
type UploadStore struct {
	root   *Sandbox
	logger *slog.Logger
}

// NewUploadStore creates an UploadStore rooted at uploadsDir.
func NewUploadStore(uploadsDir string, logger *slog.Logger) (*UploadStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	root, err := NewSandbox(uploadsDir)
	if err != nil {
		return nil, models.E(models.KindIOFailure, "storage: open uploads root", err)
	}
	return &UploadStore{root: root, logger: logger.With("component", "uploads")}, nil
}

// Put stores an uploaded file and returns its id. The id embeds the
// sanitized original name after the ULID, separated by an underscore.
func (u *UploadStore) Put(filename string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	id := ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String() +
		"_" + models.SanitizeBaseName(filename) + ext
	if err := u.root.AtomicWriteReader(id, r); err != nil {
		return "", models.E(models.KindIOFailure, "storage: store upload", err)
	}
	return id, nil
}

// Path resolves an upload id to its absolute file path.
func (u *UploadStore) Path(fileID string) (string, error) {
	if fileID == "" || fileID != path.Base(fileID) {
		return "", models.Errorf(models.KindInvalidRequest, "invalid upload id %q", fileID)
	}
	abs, err := u.root.Resolve(fileID)
	if err != nil {
		return "", models.E(models.KindInvalidRequest, "storage: resolve upload", err)
	}
	if _, err := os.Stat(abs); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", models.Errorf(models.KindInvalidRequest, "upload %s not found", fileID)
		}
		return "", models.E(models.KindIOFailure, "storage: stat upload", err)
	}
	return abs, nil
}

// OriginalName recovers the sanitized media name from an upload id.
func OriginalName(fileID string) string {
	const ulidLen = 26
	if len(fileID) > ulidLen+1 && fileID[ulidLen] == '_' {
		return fileID[ulidLen+1:]
	}
	return fileID
}

// Remove deletes an upload after a task has copied it into its workspace.
func (u *UploadStore) Remove(fileID string) error {
	abs, err := u.root.Resolve(fileID)
	if err != nil {
		return models.E(models.KindInvalidRequest, "storage: resolve upload", err)
	}
	if err := os.Remove(abs); err != nil && !errors.Is(err, os.ErrNotExist) {
		return models.E(models.KindIOFailure, "storage: remove upload", err)
	}
	return nil
}

// SweepOlderThan removes uploads older than maxAge. Tasks copy their input
// at creation, so anything left here this long was abandoned.
func (u *UploadStore) SweepOlderThan(maxAge time.Duration) (int, error) {
	entries, err := u.root.List(".")
	if err != nil {
		return 0, models.E(models.KindIOFailure, "storage: list uploads", err)
	}
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := u.Remove(e.Name()); err != nil {
			u.logger.Warn("removing stale upload failed", "file", e.Name(), "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}
