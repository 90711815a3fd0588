package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
	// BaseURL is prepended to artifact download links in task projections
	// and callback payloads (e.g. "https://winch.example.com").
	BaseURL string `toml:"base_url"`
}

// Fetch contains connection settings for the external fetch engine.
type Fetch struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	AudioQuality   int    `toml:"audio_quality"`
	CookieFile     string `toml:"cookie_file"`
	Proxy          string `toml:"proxy"`
}

// Workflow contains worker timing and admission behavior.
type Workflow struct {
	// Concurrency bounds the number of simultaneous fetch engine invocations.
	Concurrency int `toml:"concurrency"`
	// TaskIntervalMin/Max bound the random sleep after each processed task,
	// throttling aggregate request rate against the upstream resource.
	TaskIntervalMin int `toml:"task_interval_min"`
	TaskIntervalMax int `toml:"task_interval_max"`
	// QueuePollInterval is how long the worker idles when no task is eligible.
	QueuePollInterval int `toml:"queue_poll_interval"`
	// DedupPolicy selects when an in-flight task satisfies a new request:
	// "superset" (default) or "exact".
	DedupPolicy string `toml:"dedup_policy"`
}

// Callback contains webhook delivery settings.
type Callback struct {
	TimeoutSeconds int `toml:"timeout_seconds"`
}

// Cleanup contains settings for the periodic artifact sweep.
type Cleanup struct {
	IntervalHours int `toml:"interval_hours"`
	RetentionDays int `toml:"retention_days"`
}

// Notifications contains configuration for ntfy operator notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for Winch.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories, API bind address, external base URL
//   - Fetch: external fetch engine connection settings
//   - Workflow: worker concurrency, pacing, and dedup policy
//   - Callback: webhook delivery timeouts
//   - Cleanup: artifact retention and sweep cadence
//   - Notifications: ntfy operator notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Fetch         Fetch         `toml:"fetch"`
	Workflow      Workflow      `toml:"workflow"`
	Callback      Callback      `toml:"callback"`
	Cleanup       Cleanup       `toml:"cleanup"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/winch/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("winch.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.DataDir, c.AudioDir(), c.TranscriptDir(), c.Paths.LogDir}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// AudioDir returns the directory holding stored audio artifacts.
func (c *Config) AudioDir() string {
	return filepath.Join(c.Paths.DataDir, "files", "audio")
}

// TranscriptDir returns the directory holding stored transcript artifacts.
func (c *Config) TranscriptDir() string {
	return filepath.Join(c.Paths.DataDir, "files", "transcript")
}

// DatabasePath returns the SQLite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "winch.db")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
