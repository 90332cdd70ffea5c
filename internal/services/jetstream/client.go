// Package jetstream implements the queue Sender and Receiver contracts on a
// NATS JetStream work-queue stream.
//
// Each queue name maps to one stream with a single subject and one durable
// pull consumer. AckWait plays the role of the visibility timeout: an
// unacknowledged message is redelivered once it elapses.
package jetstream

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"filerelay/internal/logging"
	"filerelay/internal/services"
)

// Message headers used on the wire.
const (
	LabelHeader       = "Filerelay-Label"
	ContentTypeHeader = "Filerelay-Content-Type"
)

// Names derives the stream, subject, and durable consumer names for a queue.
type Names struct {
	Stream   string
	Subject  string
	Consumer string
}

// NamesFor maps a queue name onto JetStream identifiers. Characters JetStream
// rejects in names are replaced by underscores.
func NamesFor(queueName string) Names {
	token := sanitize(queueName)
	return Names{
		Stream:   "FILERELAY_" + strings.ToUpper(token),
		Subject:  "filerelay." + token,
		Consumer: token + "-consumer",
	}
}

func sanitize(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_') {
			b.WriteRune(r)
			continue
		}
		b.WriteByte('_')
	}
	if b.Len() == 0 {
		return "default"
	}
	return b.String()
}

type connection struct {
	nc     *nats.Conn
	js     jetstream.JetStream
	stream jetstream.Stream
	names  Names
}

func dial(ctx context.Context, url, queueName string, logger *slog.Logger, extra ...nats.Option) (*connection, error) {
	opts := append([]nats.Option{
		nats.Name("filerelay"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}, extra...)
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "jetstream", "connect", url, err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, services.Wrap(services.ErrConfiguration, "jetstream", "init", "", err)
	}

	names := NamesFor(queueName)
	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        names.Stream,
		Description: fmt.Sprintf("filerelay queue %s", queueName),
		Subjects:    []string{names.Subject},
		Retention:   jetstream.WorkQueuePolicy,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		nc.Close()
		return nil, services.Wrap(services.ErrConfiguration, "jetstream", "create stream", names.Stream, err)
	}
	logger.Debug("jetstream stream ready",
		logging.String("stream", names.Stream),
		logging.String("subject", names.Subject),
	)
	return &connection{nc: nc, js: js, stream: stream, names: names}, nil
}
