// Package rabbitmq implements the queue Sender and Receiver contracts on a
// durable RabbitMQ queue.
//
// Messages are published persistent with publisher confirms. The receiver
// consumes with manual acknowledgement and a prefetch equal to the handler
// concurrency. RabbitMQ has no visibility timeout, so each delivery carries a
// lock timer: a delivery still unsettled when the timer fires is requeued,
// and settling it afterwards fails with queue.ErrLockLost.
package rabbitmq

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"filerelay/internal/logging"
	"filerelay/internal/services"
)

const (
	// LabelHeader carries the message label on the wire.
	LabelHeader = "label"

	dialAttempts     = 5
	dialDelay        = 2 * time.Second
	reconnectInitial = time.Second
	reconnectMax     = 30 * time.Second
)

// connect dials url, retrying a few times while the broker comes up.
func connect(ctx context.Context, rawURL string, logger *slog.Logger) (*amqp.Connection, error) {
	var lastErr error
	for attempt := 1; attempt <= dialAttempts; attempt++ {
		conn, err := amqp.Dial(rawURL)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		logger.Debug("rabbitmq dial failed",
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", dialAttempts),
			logging.Error(err),
		)
		if attempt == dialAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, services.Wrap(services.ErrTransient, "rabbitmq", "dial", redactURL(rawURL), ctx.Err())
		case <-time.After(dialDelay):
		}
	}
	return nil, services.Wrap(services.ErrTransient, "rabbitmq", "dial", redactURL(rawURL), lastErr)
}

func declareQueue(ch *amqp.Channel, name string) error {
	_, err := ch.QueueDeclare(
		name,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "rabbitmq", "declare queue", name, err)
	}
	return nil
}

// redactURL hides the password of an AMQP URL for logs and exception context.
func redactURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "amqp://invalid"
	}
	return parsed.Redacted()
}
