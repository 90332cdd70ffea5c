package queueaccess

import (
	"context"
	"fmt"
	"log/slog"

	"filerelay/internal/config"
	"filerelay/internal/queue"
	"filerelay/internal/services"
	"filerelay/internal/services/jetstream"
	"filerelay/internal/services/rabbitmq"
)

// OpenSender connects a Sender for the configured queue.
func OpenSender(ctx context.Context, cfg *config.Config, logger *slog.Logger) (queue.Sender, error) {
	q := cfg.Queue
	switch q.Backend {
	case config.QueueBackendSQLite:
		store, err := queue.Open(q.ConnectionString)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "queueaccess", "open sender", "", err)
		}
		return queue.NewSQLiteSender(store, q.Name), nil
	case config.QueueBackendRabbitMQ:
		return rabbitmq.NewSender(ctx, q.ConnectionString, q.Name, logger)
	case config.QueueBackendJetStream:
		return jetstream.NewSender(ctx, q.ConnectionString, q.Name, logger)
	default:
		return nil, unsupported(q.Backend)
	}
}

// OpenReceiver connects a Receiver for the configured queue. Consumption
// starts when the caller registers a handler.
func OpenReceiver(ctx context.Context, cfg *config.Config, logger *slog.Logger) (queue.Receiver, error) {
	q := cfg.Queue
	switch q.Backend {
	case config.QueueBackendSQLite:
		store, err := queue.Open(q.ConnectionString)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "queueaccess", "open receiver", "", err)
		}
		return queue.NewSQLiteReceiver(store, q.Name, queue.SQLiteReceiverOptions{
			VisibilityTimeout: cfg.VisibilityTimeout(),
			PollInterval:      cfg.PollInterval(),
			Logger:            logger,
		}), nil
	case config.QueueBackendRabbitMQ:
		return rabbitmq.NewReceiver(ctx, rabbitmq.ReceiverOptions{
			URL:               q.ConnectionString,
			Queue:             q.Name,
			VisibilityTimeout: cfg.VisibilityTimeout(),
			Logger:            logger,
		})
	case config.QueueBackendJetStream:
		return jetstream.NewReceiver(ctx, jetstream.ReceiverOptions{
			URL:               q.ConnectionString,
			Queue:             q.Name,
			VisibilityTimeout: cfg.VisibilityTimeout(),
			Logger:            logger,
		})
	default:
		return nil, unsupported(q.Backend)
	}
}

func unsupported(backend string) error {
	return services.Wrap(services.ErrConfiguration, "queueaccess", "open", fmt.Sprintf("unsupported queue backend %q", backend), nil)
}
