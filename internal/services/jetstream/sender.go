package jetstream

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"filerelay/internal/logging"
	"filerelay/internal/queue"
	"filerelay/internal/services"
)

// Sender publishes to one queue's stream and waits for the stream's ack.
type Sender struct {
	conn   *connection
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewSender connects to url and ensures the stream for queueName exists.
func NewSender(ctx context.Context, url, queueName string, logger *slog.Logger) (*Sender, error) {
	logger = logging.NewComponentLogger(logger, "jetstream-sender")
	conn, err := dial(ctx, url, queueName, logger)
	if err != nil {
		return nil, err
	}
	return &Sender{conn: conn, logger: logger}, nil
}

// Send publishes msg. The message ID doubles as the JetStream
// de-duplication ID, so a retried publish is stored once.
func (s *Sender) Send(ctx context.Context, msg queue.Message) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return queue.ErrClosed
	}

	id := msg.ID
	if id == "" {
		id = uuid.NewString()
	}
	out := &nats.Msg{
		Subject: s.conn.names.Subject,
		Data:    msg.Body,
		Header:  nats.Header{},
	}
	out.Header.Set(LabelHeader, msg.Label)
	if msg.ContentType != "" {
		out.Header.Set(ContentTypeHeader, msg.ContentType)
	}
	if _, err := s.conn.js.PublishMsg(ctx, out, jetstream.WithMsgID(id)); err != nil {
		return services.Wrap(services.ErrTransient, "jetstream", "publish", msg.Label, err)
	}
	return nil
}

// Close closes the connection. Repeated calls are no-ops.
func (s *Sender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.conn.nc.Close()
	return nil
}
