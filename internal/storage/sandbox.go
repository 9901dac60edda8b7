// Package storage owns every byte of per-task state: the task workspace
// layout, the status manifest, the segment table file, and atomic artifact
// writes. All operations are restricted to the configured root directory.
package storage

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Sandbox restricts file operations to a base directory so that task ids
// and artifact paths coming from the boundary can never escape it.
type Sandbox struct {
	baseDir string
}

// NewSandbox creates a Sandbox rooted at baseDir, creating it if needed.
func NewSandbox(baseDir string) (*Sandbox, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolving base directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("creating base directory: %w", err)
	}
	return &Sandbox{baseDir: abs}, nil
}

// BaseDir returns the absolute sandbox root.
func (s *Sandbox) BaseDir() string {
	return s.baseDir
}

// Resolve turns a relative path into an absolute one inside the sandbox.
// Absolute inputs and paths that escape the root are rejected.
func (s *Sandbox) Resolve(rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("path escapes sandbox: %s", rel)
	}
	abs := filepath.Join(s.baseDir, filepath.Clean(rel))
	if abs != s.baseDir && !strings.HasPrefix(abs, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes sandbox: %s", rel)
	}
	return abs, nil
}

// Exists reports whether rel exists inside the sandbox.
func (s *Sandbox) Exists(rel string) bool {
	abs, err := s.Resolve(rel)
	if err != nil {
		return false
	}
	_, err = os.Stat(abs)
	return err == nil
}

// MkdirAll creates rel and its parents inside the sandbox.
func (s *Sandbox) MkdirAll(rel string) error {
	abs, err := s.Resolve(rel)
	if err != nil {
		return err
	}
	return os.MkdirAll(abs, 0o750)
}

// ReadFile reads a file inside the sandbox.
func (s *Sandbox) ReadFile(rel string) ([]byte, error) {
	abs, err := s.Resolve(rel)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(abs)
}

// AtomicWrite writes data via a temp file and rename so that concurrent
// readers never observe a partial file.
func (s *Sandbox) AtomicWrite(rel string, data []byte) error {
	return s.AtomicWriteReader(rel, strings.NewReader(string(data)))
}

// AtomicWriteReader streams r into the target via temp-file + rename.
func (s *Sandbox) AtomicWriteReader(rel string, r io.Reader) error {
	abs, err := s.Resolve(rel)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}

	tmp := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(abs), randomHex(8)))
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	_, copyErr := io.Copy(f, r)
	closeErr := f.Close()
	if copyErr != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing temp file: %w", copyErr)
	}
	if closeErr != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}
	if err := os.Rename(tmp, abs); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("publishing file: %w", err)
	}
	return nil
}

// AppendLine appends a line to a text file, creating it if missing.
// Log appends do not need the temp+rename dance.
func (s *Sandbox) AppendLine(rel, line string) error {
	abs, err := s.Resolve(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o750); err != nil {
		return fmt.Errorf("creating parent directory: %w", err)
	}
	f, err := os.OpenFile(abs, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	if _, err := f.WriteString(line + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("appending log line: %w", err)
	}
	return f.Close()
}

// RemoveAll removes rel and its contents. The root itself is protected.
func (s *Sandbox) RemoveAll(rel string) error {
	abs, err := s.Resolve(rel)
	if err != nil {
		return err
	}
	if abs == s.baseDir {
		return fmt.Errorf("refusing to remove sandbox root")
	}
	return os.RemoveAll(abs)
}

// List returns the entries of a directory inside the sandbox.
func (s *Sandbox) List(rel string) ([]os.DirEntry, error) {
	abs, err := s.Resolve(rel)
	if err != nil {
		return nil, err
	}
	return os.ReadDir(abs)
}

// Stat returns file info for a path inside the sandbox.
func (s *Sandbox) Stat(rel string) (os.FileInfo, error) {
	abs, err := s.Resolve(rel)
	if err != nil {
		return nil, err
	}
	return os.Stat(abs)
}

func randomHex(n int) string {
	buf := make([]byte, n/2+1)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", os.Getpid())
	}
	return hex.EncodeToString(buf)[:n]
}
