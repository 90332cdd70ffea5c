package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"filerelay/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The watch directory exists; the queue is a temp SQLite database and objects
// land in a temp filesystem store.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.WatchDir = filepath.Join(base, "inbox")
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "state", "logs")
	cfgVal.Queue.ConnectionString = filepath.Join(base, "state", "queue.db")
	cfgVal.Queue.PollIntervalMS = 10
	cfgVal.Storage.ConnectionString = filepath.Join(base, "objects")
	cfgVal.Producer.ScanInterval = 1
	cfgVal.Daemon.ShutdownTimeout = 5

	if err := os.MkdirAll(cfgVal.Paths.WatchDir, 0o755); err != nil {
		t.Fatalf("mkdir watch dir: %v", err)
	}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithMaxConcurrentCalls overrides the consumer concurrency bound.
func WithMaxConcurrentCalls(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Consumer.MaxConcurrentCalls = n
	}
}

// WithMaxDeliveryAttempts overrides the dead-letter threshold.
func WithMaxDeliveryAttempts(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Consumer.MaxDeliveryAttempts = n
	}
}

// WithRole overrides the daemon role.
func WithRole(role string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Daemon.Role = role
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.WatchDir)
}

// WithNtfyTopic points notifications at url, typically an httptest server.
func WithNtfyTopic(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Notifications.NtfyTopic = url
		b.cfg.Notifications.RequestTimeout = 5
	}
}
