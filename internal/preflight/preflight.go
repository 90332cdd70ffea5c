package preflight

import (
	"context"

	"filerelay/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes the checks the configured role depends on.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	if cfg.RunsConsumer() {
		results = append(results,
			CheckDirectoryAccess("Watch directory", cfg.Paths.WatchDir),
			CheckProcessedDirectory("Processed directory", cfg.ProcessedDir(cfg.Paths.WatchDir)),
		)
	} else {
		results = append(results, CheckDirectoryReadable("Watch directory", cfg.Paths.WatchDir))
	}
	results = append(results, CheckDirectoryAccess("State directory", cfg.Paths.StateDir))

	switch cfg.Queue.Backend {
	case config.QueueBackendRabbitMQ:
		results = append(results, CheckEndpoint(ctx, "RabbitMQ", cfg.Queue.ConnectionString, "5672"))
	case config.QueueBackendJetStream:
		results = append(results, CheckEndpoint(ctx, "NATS JetStream", cfg.Queue.ConnectionString, "4222"))
	}

	if cfg.RunsConsumer() {
		switch cfg.Storage.Backend {
		case config.StorageBackendS3:
			results = append(results, CheckEndpoint(ctx, "S3 endpoint", cfg.Storage.ConnectionString, "443"))
		case config.StorageBackendMinIO:
			port := "80"
			if cfg.Storage.UseSSL {
				port = "443"
			}
			results = append(results, CheckEndpoint(ctx, "MinIO endpoint", cfg.Storage.ConnectionString, port))
		}
	}

	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
