package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// ResolvePath applies CLI/XDG/home fallback rules for config.jsonc location.
func ResolvePath(explicit string) (string, error) {
	if strings.TrimSpace(explicit) != "" {
		return explicit, nil
	}

	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, "scout", "config.jsonc"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.New("unable to resolve user home for config fallback")
	}

	return filepath.Join(home, ".config", "scout", "config.jsonc"), nil
}

// defaultRecordingsDir is where the Capture Engine's archival WAV files land
// absent an explicit recordings_dir (spec.md §1: "Paths ... are passed in by
// the embedding application").
func defaultRecordingsDir() string {
	return filepath.Join(stateDir(), "recordings")
}

// defaultChunkDir is the temp dir for ring-buffer-chunked chunk WAV files
// (spec.md §6 "Chunk WAV files ... temp dir").
func defaultChunkDir() string {
	return filepath.Join(stateDir(), "chunks")
}

func stateDir() string {
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return filepath.Join(xdg, "scout")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "scout")
	}
	return filepath.Join(home, ".local", "state", "scout")
}
