package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeProducer()
	c.normalizeConsumer()
	if err := c.normalizeQueue(); err != nil {
		return err
	}
	if err := c.normalizeStorage(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.Metrics.Bind = strings.TrimSpace(c.Metrics.Bind)
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyTimeout
	}
	c.Daemon.Role = strings.ToLower(strings.TrimSpace(c.Daemon.Role))
	if c.Daemon.Role == "" {
		c.Daemon.Role = RoleAll
	}
	if c.Daemon.ShutdownTimeout <= 0 {
		c.Daemon.ShutdownTimeout = defaultShutdownTimeout
	}
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.WatchDir) == "" {
		c.Paths.WatchDir = defaultWatchDir
	}
	if c.Paths.WatchDir, err = expandPath(c.Paths.WatchDir); err != nil {
		return fmt.Errorf("paths.watch_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.StateDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeProducer() {
	if c.Producer.SendTimeout <= 0 {
		c.Producer.SendTimeout = defaultSendTimeout
	}
}

func (c *Config) normalizeConsumer() {
	c.Consumer.ProcessedDirName = strings.TrimSpace(c.Consumer.ProcessedDirName)
	if c.Consumer.ProcessedDirName == "" {
		c.Consumer.ProcessedDirName = defaultProcessedDirName
	}
}

func (c *Config) normalizeQueue() error {
	c.Queue.Backend = strings.ToLower(strings.TrimSpace(c.Queue.Backend))
	if c.Queue.Backend == "" {
		c.Queue.Backend = QueueBackendSQLite
	}
	c.Queue.Name = strings.TrimSpace(c.Queue.Name)
	if c.Queue.Name == "" {
		c.Queue.Name = defaultQueueName
	}
	c.Queue.ConnectionString = strings.TrimSpace(c.Queue.ConnectionString)
	if c.Queue.ConnectionString == "" {
		if value, ok := os.LookupEnv(EnvQueueConnectionString); ok {
			c.Queue.ConnectionString = strings.TrimSpace(value)
		}
	}
	if c.Queue.Backend == QueueBackendSQLite {
		if c.Queue.ConnectionString == "" {
			c.Queue.ConnectionString = filepath.Join(c.Paths.StateDir, defaultSQLiteQueueFilename)
		}
		var err error
		if c.Queue.ConnectionString, err = expandPath(c.Queue.ConnectionString); err != nil {
			return fmt.Errorf("queue.connection_string: %w", err)
		}
	}
	if c.Queue.PollIntervalMS <= 0 {
		c.Queue.PollIntervalMS = defaultPollIntervalMS
	}
	return nil
}

func (c *Config) normalizeStorage() error {
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend == "" {
		c.Storage.Backend = StorageBackendFilesystem
	}
	c.Storage.ConnectionString = strings.TrimSpace(c.Storage.ConnectionString)
	if c.Storage.ConnectionString == "" {
		if value, ok := os.LookupEnv(EnvStorageConnectionString); ok {
			c.Storage.ConnectionString = strings.TrimSpace(value)
		}
	}
	c.Storage.AccessKey = strings.TrimSpace(c.Storage.AccessKey)
	if c.Storage.AccessKey == "" {
		if value, ok := os.LookupEnv(EnvStorageAccessKey); ok {
			c.Storage.AccessKey = strings.TrimSpace(value)
		}
	}
	c.Storage.SecretKey = strings.TrimSpace(c.Storage.SecretKey)
	if c.Storage.SecretKey == "" {
		if value, ok := os.LookupEnv(EnvStorageSecretKey); ok {
			c.Storage.SecretKey = strings.TrimSpace(value)
		}
	}
	c.Storage.Container = strings.TrimSpace(c.Storage.Container)
	if c.Storage.Container == "" {
		c.Storage.Container = defaultStorageContainer
	}
	c.Storage.Region = strings.TrimSpace(c.Storage.Region)
	if c.Storage.Region == "" {
		c.Storage.Region = defaultStorageRegion
	}
	if c.Storage.Backend == StorageBackendFilesystem {
		if c.Storage.ConnectionString == "" {
			c.Storage.ConnectionString = filepath.Join(c.Paths.StateDir, defaultStorageDirName)
		}
		var err error
		if c.Storage.ConnectionString, err = expandPath(c.Storage.ConnectionString); err != nil {
			return fmt.Errorf("storage.connection_string: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeLogging() {
	format := strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch format {
	case "", "console", "text":
		c.Logging.Format = "console"
	default:
		c.Logging.Format = format
	}
	level := strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if level == "" {
		level = defaultLogLevel
	}
	c.Logging.Level = level
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
