package config

const (
	defaultConfigPath          = "~/.config/filerelay/config.toml"
	defaultWatchDir            = "~/filerelay/inbox"
	defaultStateDir            = "~/.local/share/filerelay"
	defaultLogDir              = "~/.local/share/filerelay/logs"
	defaultScanInterval        = 60
	defaultSendTimeout         = 30
	defaultMaxConcurrentCalls  = 1
	defaultProcessedDirName    = "Processed"
	defaultQueueName           = "file-notifications"
	defaultVisibilityTimeout   = 30
	defaultPollIntervalMS      = 500
	defaultStorageContainer    = "processed-files"
	defaultStorageRegion       = "us-east-1"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultLogRetentionDays    = 30
	defaultShutdownTimeout     = 30
	defaultNotifyTimeout       = 10
	defaultSQLiteQueueFilename = "queue.db"
	defaultStorageDirName      = "objects"
)

// Supported queue backends.
const (
	QueueBackendSQLite    = "sqlite"
	QueueBackendRabbitMQ  = "rabbitmq"
	QueueBackendJetStream = "jetstream"
)

// Supported storage backends.
const (
	StorageBackendFilesystem = "filesystem"
	StorageBackendS3         = "s3"
	StorageBackendMinIO      = "minio"
)

// Daemon roles.
const (
	RoleAll      = "all"
	RoleProducer = "producer"
	RoleConsumer = "consumer"
)

// Environment fallbacks for connection strings and credentials.
const (
	EnvQueueConnectionString   = "FILERELAY_QUEUE_CONNECTION_STRING"
	EnvStorageConnectionString = "FILERELAY_STORAGE_CONNECTION_STRING"
	EnvStorageAccessKey        = "FILERELAY_STORAGE_ACCESS_KEY"
	EnvStorageSecretKey        = "FILERELAY_STORAGE_SECRET_KEY"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WatchDir: defaultWatchDir,
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Producer: Producer{
			ScanInterval: defaultScanInterval,
			SendTimeout:  defaultSendTimeout,
		},
		Consumer: Consumer{
			MaxConcurrentCalls: defaultMaxConcurrentCalls,
			ProcessedDirName:   defaultProcessedDirName,
		},
		Queue: Queue{
			Backend:           QueueBackendSQLite,
			Name:              defaultQueueName,
			VisibilityTimeout: defaultVisibilityTimeout,
			PollIntervalMS:    defaultPollIntervalMS,
		},
		Storage: Storage{
			Backend:         StorageBackendFilesystem,
			Container:       defaultStorageContainer,
			Region:          defaultStorageRegion,
			CreateContainer: true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
		},
		Daemon: Daemon{
			Role:            RoleAll,
			ShutdownTimeout: defaultShutdownTimeout,
		},
	}
}
