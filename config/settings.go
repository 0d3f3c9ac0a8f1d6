package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// LoadSystemConfig reads ~/.config/nutribot/settings.toml, writing the
// commented template on first run.
// Keys the file sets that nothing reads are returned as "settings.toml: key".
func LoadSystemConfig() (*SystemConfig, []string, error) {
	cfg := DefaultSystemConfig()
	unknown, err := loadTOML(GetSettingsFilePath(), GenerateSystemConfigTemplate(), cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load system config: %w", err)
	}
	return cfg, unknown, nil
}

// LoadUserConfig reads <dataDir>/config.toml over the defaults, so keys
// missing from the file keep their default value. Unknown keys are
// returned as "config.toml: key".
func LoadUserConfig(dataDir string) (*UserConfig, []string, error) {
	cfg := DefaultUserConfig()
	unknown, err := loadTOML(GetUserConfigFilePath(dataDir), GenerateUserConfigTemplate(), cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load user config: %w", err)
	}
	return cfg, unknown, nil
}

// loadTOML decodes path into dst. A missing file is created from template
// and dst is left at its defaults.
func loadTOML(path, template string, dst any) ([]string, error) {
	if !FileExists(path) {
		return nil, writeTemplate(path, template)
	}

	md, err := toml.DecodeFile(path, dst)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	var unknown []string
	for _, key := range md.Undecoded() {
		unknown = append(unknown, filepath.Base(path)+": "+key.String())
	}
	return unknown, nil
}

func writeTemplate(path, template string) error {
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	// O_EXCL keeps a file written by a concurrent first run
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if os.IsExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := f.WriteString(template); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
