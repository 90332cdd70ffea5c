package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WatchDir string `toml:"watch_dir"`
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// Producer contains directory scan settings.
type Producer struct {
	ScanInterval int `toml:"scan_interval"`
	SendTimeout  int `toml:"send_timeout"`
}

// Consumer contains message handling settings.
type Consumer struct {
	MaxConcurrentCalls int    `toml:"max_concurrent_calls"`
	ProcessedDirName   string `toml:"processed_dir_name"`
	// MaxDeliveryAttempts of 0 leaves failing messages to redeliver forever.
	MaxDeliveryAttempts int `toml:"max_delivery_attempts"`
}

// Queue contains the message broker connection.
type Queue struct {
	Backend           string `toml:"backend"`
	Name              string `toml:"name"`
	ConnectionString  string `toml:"connection_string"`
	VisibilityTimeout int    `toml:"visibility_timeout"`
	PollIntervalMS    int    `toml:"poll_interval_ms"`
}

// Storage contains the object store connection.
type Storage struct {
	Backend          string `toml:"backend"`
	ConnectionString string `toml:"connection_string"`
	Container        string `toml:"container"`
	Region           string `toml:"region"`
	AccessKey        string `toml:"access_key"`
	SecretKey        string `toml:"secret_key"`
	UseSSL           bool   `toml:"use_ssl"`
	CreateContainer  bool   `toml:"create_container"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Metrics controls the optional Prometheus endpoint. An empty bind disables it.
type Metrics struct {
	Bind string `toml:"bind"`
}

// Notifications configures ntfy alerts. An empty topic disables them.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Daemon contains process lifecycle settings.
type Daemon struct {
	Role            string `toml:"role"`
	ShutdownTimeout int    `toml:"shutdown_timeout"`
}

// Config encapsulates all configuration values for filerelay.
//
// Configuration sections by subsystem:
//   - Paths: watched directory, state, and logs
//   - Producer: scan cadence and send timeout
//   - Consumer: handler concurrency, processed directory, dead-lettering
//   - Queue: broker backend and visibility timeout
//   - Storage: object store backend and credentials
//   - Logging: log format, level, and retention
//   - Metrics: optional Prometheus exposition
//   - Notifications: ntfy alerts for dead letters and stalled shutdowns
//   - Daemon: role and shutdown budget
type Config struct {
	Paths         Paths         `toml:"paths"`
	Producer      Producer      `toml:"producer"`
	Consumer      Consumer      `toml:"consumer"`
	Queue         Queue         `toml:"queue"`
	Storage       Storage       `toml:"storage"`
	Logging       Logging       `toml:"logging"`
	Metrics       Metrics       `toml:"metrics"`
	Notifications Notifications `toml:"notifications"`
	Daemon        Daemon        `toml:"daemon"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
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
		decoder.DisallowUnknownFields()
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

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("filerelay.toml")
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
// The watch directory is not created: an absent watch directory is a
// deployment error surfaced by preflight.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ProcessedDir returns the directory successfully handled files are moved into
// for a source file located in dir.
func (c *Config) ProcessedDir(dir string) string {
	return filepath.Join(dir, c.Consumer.ProcessedDirName)
}

// ScanInterval returns the delay between producer scans.
func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.Producer.ScanInterval) * time.Second
}

// SendTimeout bounds a single queue send.
func (c *Config) SendTimeout() time.Duration {
	return time.Duration(c.Producer.SendTimeout) * time.Second
}

// VisibilityTimeout is how long a received message stays hidden from other receivers.
func (c *Config) VisibilityTimeout() time.Duration {
	return time.Duration(c.Queue.VisibilityTimeout) * time.Second
}

// PollInterval is the idle delay of polling queue backends.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Queue.PollIntervalMS) * time.Millisecond
}

// ShutdownTimeout bounds the drain performed on stop.
// NotificationTimeout returns the ntfy request timeout.
func (c *Config) NotificationTimeout() time.Duration {
	return time.Duration(c.Notifications.RequestTimeout) * time.Second
}

func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Daemon.ShutdownTimeout) * time.Second
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "filerelay.lock")
}

// PIDPath returns the pid file location.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "filerelay.pid")
}

// RunsProducer reports whether the configured role includes the producer.
func (c *Config) RunsProducer() bool {
	return c.Daemon.Role == RoleAll || c.Daemon.Role == RoleProducer
}

// RunsConsumer reports whether the configured role includes the consumer.
func (c *Config) RunsConsumer() bool {
	return c.Daemon.Role == RoleAll || c.Daemon.Role == RoleConsumer
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

// SampleConfig returns the embedded sample configuration.
func SampleConfig() string {
	return sampleConfig
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

// Marshal renders the effective configuration as TOML with secrets masked.
func (c *Config) Marshal() ([]byte, error) {
	redacted := *c
	redacted.Queue.ConnectionString = maskSecret(redacted.Queue.ConnectionString, c.Queue.Backend != QueueBackendSQLite)
	redacted.Storage.AccessKey = maskSecret(redacted.Storage.AccessKey, true)
	redacted.Storage.SecretKey = maskSecret(redacted.Storage.SecretKey, true)
	return toml.Marshal(redacted)
}

func maskSecret(value string, sensitive bool) string {
	if !sensitive || value == "" {
		return value
	}
	return "********"
}
