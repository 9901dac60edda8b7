// Package ffmpeg wraps the ffmpeg and ffprobe binaries behind a small
// fluent command builder. All media decoding, stretching, and muxing runs
// through here; nothing else in the codebase shells out.
package ffmpeg

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// Binaries holds resolved paths to the ffmpeg and ffprobe executables.
type Binaries struct {
	FFmpeg  string
	FFprobe string
}

// Resolve locates the binaries. Explicit config paths win, then the
// REVOICE_FFMPEG_BINARY / REVOICE_FFPROBE_BINARY env vars, then PATH.
// ffprobe is required: duration probing drives merger timing.
func Resolve(ffmpegPath, ffprobePath string) (*Binaries, error) {
	ffmpeg, err := findBinary(ffmpegPath, "REVOICE_FFMPEG_BINARY", "ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}
	ffprobe, err := findBinary(ffprobePath, "REVOICE_FFPROBE_BINARY", "ffprobe")
	if err != nil {
		return nil, fmt.Errorf("ffprobe not found: %w", err)
	}
	return &Binaries{FFmpeg: ffmpeg, FFprobe: ffprobe}, nil
}

func findBinary(configured, envVar, name string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", fmt.Errorf("configured path %s: %w", configured, err)
		}
		return configured, nil
	}
	if env := os.Getenv(envVar); env != "" {
		if _, err := os.Stat(env); err != nil {
			return "", fmt.Errorf("%s=%s: %w", envVar, env, err)
		}
		return env, nil
	}
	if local := filepath.Join(".", name); fileExists(local) {
		return filepath.Abs(local)
	}
	return exec.LookPath(name)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
