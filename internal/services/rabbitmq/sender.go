package rabbitmq

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"filerelay/internal/logging"
	"filerelay/internal/queue"
	"filerelay/internal/services"
)

// Sender publishes persistent messages to one queue and waits for the
// broker's confirm before Send returns.
type Sender struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	queue  string
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewSender connects to url and declares queueName.
func NewSender(ctx context.Context, rawURL, queueName string, logger *slog.Logger) (*Sender, error) {
	logger = logging.NewComponentLogger(logger, "rabbitmq-sender")
	conn, err := connect(ctx, rawURL, logger)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, services.Wrap(services.ErrTransient, "rabbitmq", "open channel", "", err)
	}
	if err := declareQueue(ch, queueName); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, services.Wrap(services.ErrConfiguration, "rabbitmq", "enable confirms", "", err)
	}
	return &Sender{conn: conn, ch: ch, queue: queueName, logger: logger}, nil
}

// Send publishes msg and blocks until the broker confirms it.
func (s *Sender) Send(ctx context.Context, msg queue.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return queue.ErrClosed
	}

	confirm, err := s.ch.PublishWithDeferredConfirmWithContext(ctx, "", s.queue, false, false, publishing(msg, time.Now()))
	if err != nil {
		return services.Wrap(services.ErrTransient, "rabbitmq", "publish", msg.Label, err)
	}
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return services.Wrap(services.ErrTransient, "rabbitmq", "await confirm", msg.Label, err)
	}
	if !acked {
		return services.Wrap(services.ErrBrokerDelivery, "rabbitmq", "publish", "broker rejected "+msg.Label, nil)
	}
	return nil
}

// Close closes the channel and connection. Repeated calls are no-ops.
func (s *Sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	_ = s.ch.Close()
	if err := s.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return services.Wrap(services.ErrTransient, "rabbitmq", "close", "", err)
	}
	return nil
}

func publishing(msg queue.Message, now time.Time) amqp.Publishing {
	id := msg.ID
	if id == "" {
		id = uuid.NewString()
	}
	return amqp.Publishing{
		ContentType:  msg.ContentType,
		Body:         msg.Body,
		DeliveryMode: amqp.Persistent,
		MessageId:    id,
		Timestamp:    now.UTC(),
		Headers:      amqp.Table{LabelHeader: msg.Label},
	}
}
