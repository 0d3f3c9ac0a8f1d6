package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type SystemConfig struct {
	DataDirectory string `toml:"data_directory"`
}

type BackendConfig struct {
	URL           string `toml:"url"`
	UploadTimeout string `toml:"upload_timeout"`
}

type ChatConfig struct {
	TypingDelay  string `toml:"typing_delay"`
	DefaultModel string `toml:"default_model"`
	Recovery     string `toml:"recovery"`
}

type StorageConfig struct {
	Driver string `toml:"driver"`
}

type UserConfig struct {
	Backend BackendConfig `toml:"backend"`
	Chat    ChatConfig    `toml:"chat"`
	Storage StorageConfig `toml:"storage"`
}

// Storage drivers
const (
	DriverSQLite = "sqlite"
	DriverBolt   = "bolt"
	DriverFile   = "file"
)

type Config struct {
	DataDirectory string
	BackendURL    string
	UploadTimeout time.Duration
	TypingDelay   time.Duration
	DefaultModel  string
	Recovery      string
	StorageDriver string

	// UnknownKeys lists config file keys that were ignored. Load runs
	// before logging is set up, so the caller reports them.
	UnknownKeys []string
}

var Debug = false

// Log is the process-wide logger. It discards everything until
// InitDebugLog enables it.
var Log = zerolog.Nop()

func (c *Config) DataDir() string {
	return ExpandPath(c.DataDirectory)
}

// StateDir holds the file blob store
func (c *Config) StateDir() string {
	return filepath.Join(c.DataDir(), "state")
}

// DatabasePath is the SQLite blob store file
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir(), "nutribot.db")
}

// BoltPath is the BoltDB blob store file
func (c *Config) BoltPath() string {
	return filepath.Join(c.DataDir(), "nutribot.bolt")
}

func (c *Config) applyUserConfig(userCfg *UserConfig) error {
	c.BackendURL = userCfg.Backend.URL
	c.DefaultModel = userCfg.Chat.DefaultModel
	c.Recovery = userCfg.Chat.Recovery
	c.StorageDriver = userCfg.Storage.Driver

	if userCfg.Backend.UploadTimeout != "" {
		d, err := time.ParseDuration(userCfg.Backend.UploadTimeout)
		if err != nil {
			return fmt.Errorf("invalid backend.upload_timeout: %w", err)
		}
		c.UploadTimeout = d
	}
	if userCfg.Chat.TypingDelay != "" {
		d, err := time.ParseDuration(userCfg.Chat.TypingDelay)
		if err != nil {
			return fmt.Errorf("invalid chat.typing_delay: %w", err)
		}
		c.TypingDelay = d
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if url := os.Getenv("NUTRIBOT_BACKEND_URL"); url != "" {
		c.BackendURL = url
	}
	if dataDir := os.Getenv("NUTRIBOT_DATA_DIR"); dataDir != "" {
		c.DataDirectory = dataDir
	}
}

// Validate checks values that cannot be fixed up silently
func (c *Config) Validate() error {
	switch c.StorageDriver {
	case DriverSQLite, DriverBolt, DriverFile:
	default:
		return fmt.Errorf("unknown storage driver %q (want %q, %q or %q)", c.StorageDriver, DriverSQLite, DriverBolt, DriverFile)
	}
	if c.UploadTimeout < 0 || c.TypingDelay < 0 {
		return fmt.Errorf("durations must not be negative")
	}
	if !strings.HasPrefix(c.BackendURL, "http://") && !strings.HasPrefix(c.BackendURL, "https://") {
		return fmt.Errorf("backend url %q must start with http:// or https://", c.BackendURL)
	}
	return nil
}

func CheckDebug() bool {
	debug := os.Getenv("NUTRIBOT_DEBUG")
	return debug == "true" || debug == "1"
}

// InitDebugLog points Log at <dataDir>/debug.log when debugging is enabled
// through Debug or NUTRIBOT_DEBUG. The returned function closes the file.
func InitDebugLog(dataDir string) func() {
	if !Debug && !CheckDebug() {
		return func() {}
	}

	Debug = true
	logPath := filepath.Join(dataDir, "debug.log")

	// Create debug log with secure permissions (0600 - may contain conversation text)
	f, err := os.OpenFile(logPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not open debug log at %s: %v\n", logPath, err)
		return func() {}
	}

	Log = zerolog.New(f).With().Timestamp().Caller().Logger().Level(zerolog.DebugLevel)
	Log.Info().Str("path", logPath).Msg("=== Debug logging started ===")
	return func() {
		Log = zerolog.Nop()
		f.Close()
	}
}

// Load reads settings.toml and <data_dir>/config.toml, creating both from
// templates on first run, then applies environment overrides.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := cfg.applyUserConfig(DefaultUserConfig()); err != nil {
		return nil, err
	}
	cfg.DataDirectory = DefaultSystemConfig().DataDirectory

	systemCfg, unknown, err := LoadSystemConfig()
	if err != nil {
		return nil, err
	}
	cfg.UnknownKeys = append(cfg.UnknownKeys, unknown...)
	if systemCfg.DataDirectory != "" {
		cfg.DataDirectory = systemCfg.DataDirectory
	}
	// The data directory decides where the user config lives, so its
	// override is applied before reading it.
	if dataDir := os.Getenv("NUTRIBOT_DATA_DIR"); dataDir != "" {
		cfg.DataDirectory = dataDir
	}

	dataDir := cfg.DataDir()
	if err := EnsureDataDirPermissions(dataDir); err != nil {
		return nil, fmt.Errorf("failed to set data directory permissions: %w", err)
	}

	userCfg, unknown, err := LoadUserConfig(dataDir)
	if err != nil {
		return nil, err
	}
	cfg.UnknownKeys = append(cfg.UnknownKeys, unknown...)
	if err := cfg.applyUserConfig(userCfg); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
