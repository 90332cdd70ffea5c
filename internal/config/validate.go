package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateProducer(); err != nil {
		return err
	}
	if err := c.validateConsumer(); err != nil {
		return err
	}
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return c.validateDaemon()
}

func (c *Config) validatePaths() error {
	if c.Paths.WatchDir == "" {
		return errors.New("paths.watch_dir must be set")
	}
	if c.Paths.StateDir == "" {
		return errors.New("paths.state_dir must be set")
	}
	return nil
}

func (c *Config) validateProducer() error {
	if c.Producer.ScanInterval <= 0 {
		return errors.New("producer.scan_interval must be positive")
	}
	return nil
}

func (c *Config) validateConsumer() error {
	if c.Consumer.MaxConcurrentCalls <= 0 {
		return errors.New("consumer.max_concurrent_calls must be positive")
	}
	if c.Consumer.MaxDeliveryAttempts < 0 {
		return errors.New("consumer.max_delivery_attempts must be zero (unlimited) or positive")
	}
	name := c.Consumer.ProcessedDirName
	if name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("consumer.processed_dir_name %q must be a single directory name", name)
	}
	return nil
}

func (c *Config) validateQueue() error {
	switch c.Queue.Backend {
	case QueueBackendSQLite:
	case QueueBackendRabbitMQ, QueueBackendJetStream:
		if c.Queue.ConnectionString == "" {
			return fmt.Errorf("queue.connection_string is required for the %s backend (or set %s)", c.Queue.Backend, EnvQueueConnectionString)
		}
	default:
		return fmt.Errorf("queue.backend %q is not supported (use sqlite, rabbitmq, or jetstream)", c.Queue.Backend)
	}
	if c.Queue.VisibilityTimeout <= 0 {
		return errors.New("queue.visibility_timeout must be positive")
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Backend {
	case StorageBackendFilesystem:
	case StorageBackendS3, StorageBackendMinIO:
		if c.Storage.ConnectionString == "" {
			return fmt.Errorf("storage.connection_string is required for the %s backend (or set %s)", c.Storage.Backend, EnvStorageConnectionString)
		}
		if (c.Storage.AccessKey == "") != (c.Storage.SecretKey == "") {
			return errors.New("storage.access_key and storage.secret_key must be set together")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported (use filesystem, s3, or minio)", c.Storage.Backend)
	}
	if c.Storage.Container == "" {
		return errors.New("storage.container must be set")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q is not supported (use console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not supported", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateDaemon() error {
	switch c.Daemon.Role {
	case RoleAll, RoleProducer, RoleConsumer:
		return nil
	default:
		return fmt.Errorf("daemon.role %q is not supported (use all, producer, or consumer)", c.Daemon.Role)
	}
}
