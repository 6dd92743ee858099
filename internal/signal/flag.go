package signal

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const flagFile = "auth_done"

// The flag file is the second, redis-independent delivery path: a shared
// persisted key whose change is what matters, not its value. The content
// carries the attempt ID so both paths dedupe to the same finalize.

func flagPath(stateDir string) string {
	return filepath.Join(stateDir, flagFile)
}

// RaiseFlag writes the flag for one login attempt.
func RaiseFlag(stateDir, attemptID string) error {
	if err := os.MkdirAll(stateDir, 0o700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	content := fmt.Sprintf("%s:%d", attemptID, time.Now().UnixNano())
	if err := os.WriteFile(flagPath(stateDir), []byte(content), 0o600); err != nil {
		return fmt.Errorf("write auth flag: %w", err)
	}
	return nil
}

// ReadFlag returns the raw flag content, empty when absent.
func ReadFlag(stateDir string) (string, error) {
	data, err := os.ReadFile(flagPath(stateDir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read auth flag: %w", err)
	}
	return string(data), nil
}

// ClearStaleFlag removes a flag older than maxAge. Run from the job
// scheduler so abandoned logins do not leave markers behind.
func ClearStaleFlag(stateDir string, maxAge time.Duration) error {
	path := flagPath(stateDir)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat auth flag: %w", err)
	}
	if time.Since(info.ModTime()) < maxAge {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove auth flag: %w", err)
	}
	return nil
}

func attemptFromFlag(content string) string {
	id, _, found := strings.Cut(content, ":")
	if !found {
		return content
	}
	return id
}
