package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// InstanceLock marks a data directory as used by a running client so two
// clients never write the same state.
// Lock file: <data_dir>/nutribot.lock, content: PID of the owner
type InstanceLock struct {
	path string
}

func NewInstanceLock(dataDir string) *InstanceLock {
	return &InstanceLock{path: filepath.Join(dataDir, "nutribot.lock")}
}

// Check reports whether another process holds the lock and its PID.
// Unreadable lock files and locks of dead processes are removed.
func (l *InstanceLock) Check() (bool, int, error) {
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("failed to read lock file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		_ = os.Remove(l.path)
		return false, 0, nil
	}
	if pid == os.Getpid() {
		return false, pid, nil
	}

	if !processAlive(pid) {
		_ = os.Remove(l.path)
		return false, 0, nil
	}

	return true, pid, nil
}

// Acquire writes the current PID (0600 - user-only access)
func (l *InstanceLock) Acquire() error {
	return os.WriteFile(l.path, []byte(strconv.Itoa(os.Getpid())), 0600)
}

// Release removes the lock file
func (l *InstanceLock) Release() error {
	err := os.Remove(l.path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}
