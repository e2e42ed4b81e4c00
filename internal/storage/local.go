package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage keeps case audio on the local filesystem, one directory per case
type LocalStorage struct {
	audioDir string
}

// NewLocalStorage creates a new local storage handler
func NewLocalStorage(audioDir string) *LocalStorage {
	return &LocalStorage{
		audioDir: audioDir,
	}
}

// AudioPath returns the path of an audio file of a case. Both parts are
// reduced to their base name so a request cannot escape the audio directory.
func (ls *LocalStorage) AudioPath(caseID, filename string) (string, error) {
	c := sanitizeFilename(caseID)
	f := sanitizeFilename(filename)
	if c == "" || f == "" {
		return "", fmt.Errorf("invalid audio reference %q/%q", caseID, filename)
	}
	return filepath.Join(ls.audioDir, c, f), nil
}

// HasAudio reports whether the audio file exists
func (ls *LocalStorage) HasAudio(caseID, filename string) bool {
	p, err := ls.AudioPath(caseID, filename)
	if err != nil {
		return false
	}
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

// SaveAudio writes an audio file for a case
func (ls *LocalStorage) SaveAudio(caseID, filename string, r io.Reader) (string, error) {
	p, err := ls.AudioPath(caseID, filename)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return "", fmt.Errorf("failed to create case directory: %w", err)
	}

	out, err := os.Create(p)
	if err != nil {
		return "", fmt.Errorf("failed to create audio file: %w", err)
	}

	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		os.Remove(p)
		return "", fmt.Errorf("failed to write audio file: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(p)
		return "", fmt.Errorf("failed to close audio file: %w", err)
	}
	return p, nil
}

// sanitizeFilename strips directories and limits the length of a name
func sanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	result := filepath.Base(name)
	if result == "." || result == "/" || result == ".." {
		return ""
	}
	if len(result) > 100 {
		result = result[:100]
	}
	return result
}
