package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const appName = "nutribot"

// GetConfigDir is ~/.config/nutribot on every platform
func GetConfigDir() string {
	return filepath.Join(GetHomeDir(), ".config", appName)
}

func GetSettingsFilePath() string {
	return filepath.Join(GetConfigDir(), "settings.toml")
}

func GetUserConfigFilePath(dataDir string) string {
	return filepath.Join(dataDir, "config.toml")
}

// GetHomeDir prefers $HOME (%USERPROFILE% on Windows) over the OS lookup so
// the directory can be redirected for a single run.
func GetHomeDir() string {
	envVar := "HOME"
	if runtime.GOOS == "windows" {
		envVar = "USERPROFILE"
	}
	if home := os.Getenv(envVar); home != "" {
		return home
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return home
	}
	return string(filepath.Separator)
}

// GetDownloadsDir is where exports go: $XDG_DOWNLOAD_DIR when set, else ~/Downloads
func GetDownloadsDir() string {
	if dir := os.Getenv("XDG_DOWNLOAD_DIR"); dir != "" {
		return ExpandPath(dir)
	}
	return filepath.Join(GetHomeDir(), "Downloads")
}

// ExpandPath resolves a leading ~ and $VARS, then cleans the result
func ExpandPath(path string) string {
	switch {
	case path == "":
		return path
	case path == "~":
		return GetHomeDir()
	case strings.HasPrefix(path, "~/"):
		path = filepath.Join(GetHomeDir(), path[2:])
	}
	return filepath.Clean(os.ExpandEnv(path))
}

// EnsureDir creates path with user-only access
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0700)
}

func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// EnsureDataDirPermissions creates dataDir or tightens it to 0700; it holds
// conversation history.
func EnsureDataDirPermissions(dataDir string) error {
	info, err := os.Stat(dataDir)
	if os.IsNotExist(err) {
		return EnsureDir(dataDir)
	}
	if err != nil {
		return err
	}
	if info.Mode().Perm() != 0700 {
		return os.Chmod(dataDir, 0700)
	}
	return nil
}
