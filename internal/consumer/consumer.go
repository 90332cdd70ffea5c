package consumer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"filerelay/internal/config"
	"filerelay/internal/filelock"
	"filerelay/internal/fileutil"
	"filerelay/internal/logging"
	"filerelay/internal/metrics"
	"filerelay/internal/notifications"
	"filerelay/internal/objectstore"
	"filerelay/internal/queue"
	"filerelay/internal/services"
)

// Outcome is what happened to one delivered message.
type Outcome string

const (
	OutcomeCompleted        Outcome = "completed"
	OutcomeDeferred         Outcome = "deferred"
	OutcomeAlreadyProcessed Outcome = "already_processed"
	OutcomeFailed           Outcome = "failed"
	OutcomeDeadLettered     Outcome = "dead_lettered"
)

// Consumer processes file messages from one receiver.
type Consumer struct {
	receiver         queue.Receiver
	uploader         objectstore.Uploader
	container        string
	processedDirName string
	maxConcurrent    int
	maxAttempts      int
	logger           *slog.Logger
	metrics          *metrics.Metrics
	notifier         notifications.Service

	probe func(path string) error

	mu        sync.Mutex
	started   bool
	closeOnce sync.Once
	closeErr  error
}

// New builds a consumer. It owns receiver and closes it on Close.
func New(cfg *config.Config, receiver queue.Receiver, uploader objectstore.Uploader, logger *slog.Logger, m *metrics.Metrics) *Consumer {
	return &Consumer{
		receiver:         receiver,
		uploader:         uploader,
		container:        cfg.Storage.Container,
		processedDirName: cfg.Consumer.ProcessedDirName,
		maxConcurrent:    cfg.Consumer.MaxConcurrentCalls,
		maxAttempts:      cfg.Consumer.MaxDeliveryAttempts,
		logger:           logging.NewComponentLogger(logger, "consumer"),
		metrics:          m,
		notifier:         notifications.NewService(cfg),
		probe:            filelock.Probe,
	}
}

// Start registers the handler with manual settlement.
func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return errors.New("consumer already started")
	}
	err := c.receiver.RegisterHandler(ctx, c.HandleMessage, queue.HandlerOptions{
		MaxConcurrentCalls: c.maxConcurrent,
		AutoComplete:       false,
		ExceptionReceived:  c.handleException,
	})
	if err != nil {
		return fmt.Errorf("register message handler: %w", err)
	}
	c.started = true
	c.logger.Info("consumer started",
		logging.Int("max_concurrent_calls", c.maxConcurrent),
		logging.String("container", c.container),
		logging.String(logging.FieldEventType, "consumer_started"),
	)
	return nil
}

// Close stops intake, waits for in-flight handlers, and closes the receiver.
func (c *Consumer) Close() error {
	c.closeOnce.Do(func() {
		if err := c.receiver.Close(); err != nil {
			c.closeErr = fmt.Errorf("close queue receiver: %w", err)
		}
		c.logger.Info("consumer stopped", logging.String(logging.FieldEventType, "consumer_stopped"))
	})
	return c.closeErr
}

// InFlight reports running handler invocations when the receiver tracks them.
func (c *Consumer) InFlight() int {
	if r, ok := c.receiver.(interface{ InFlight() int }); ok {
		return r.InFlight()
	}
	return 0
}

// ProcessedPath returns where label is moved once uploaded.
func (c *Consumer) ProcessedPath(label string) string {
	return filepath.Join(filepath.Dir(label), c.processedDirName, filepath.Base(label))
}

// Process runs the availability check, upload, and relocation for msg. It
// does not settle the message.
func (c *Consumer) Process(ctx context.Context, msg *queue.Message) (Outcome, error) {
	label := msg.Label
	if label == "" {
		return OutcomeFailed, services.Wrap(services.ErrData, "consumer", "validate", "message label is empty", nil)
	}

	if err := c.probe(label); err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return OutcomeAlreadyProcessed, services.Wrap(services.ErrAlreadyProcessed, "consumer", "probe", "source no longer exists", err)
		case errors.Is(err, services.ErrFileLocked):
			return OutcomeDeferred, err
		default:
			return OutcomeFailed, err
		}
	}

	key := objectstore.ObjectKey(label)
	uploaded, err := c.upload(ctx, label, key)
	if err != nil {
		if errors.Is(err, services.ErrAlreadyProcessed) {
			return OutcomeAlreadyProcessed, err
		}
		return OutcomeFailed, err
	}
	c.metrics.AddUploadedBytes(uploaded)

	target := c.ProcessedPath(label)
	if err := fileutil.MoveFile(label, target); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			if _, statErr := os.Stat(label); errors.Is(statErr, fs.ErrNotExist) {
				return OutcomeAlreadyProcessed, services.Wrap(services.ErrAlreadyProcessed, "consumer", "relocate", "source was moved by another delivery", err)
			}
		}
		return OutcomeFailed, services.Wrap(services.ErrTransient, "consumer", "relocate", "move to processed directory", err)
	}
	return OutcomeCompleted, nil
}

func (c *Consumer) upload(ctx context.Context, label, key string) (int64, error) {
	if err := objectstore.ValidateKey(key); err != nil {
		return 0, err
	}
	f, err := os.Open(label)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, services.Wrap(services.ErrAlreadyProcessed, "consumer", "read", "source no longer exists", err)
		}
		return 0, services.Wrap(services.ErrTransient, "consumer", "read", "open source", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, "consumer", "read", "stat source", err)
	}
	counter := &countingReader{r: f}
	if err := c.uploader.UpsertObject(ctx, c.container, key, counter, info.Size(), true); err != nil {
		if errors.Is(err, services.ErrData) || errors.Is(err, services.ErrConfiguration) || errors.Is(err, services.ErrTransient) {
			return 0, err
		}
		return 0, services.Wrap(services.ErrTransient, "consumer", "upload", key, err)
	}
	return counter.n, nil
}

// HandleMessage is the queue handler. It returns an error only when
// settling the message fails.
func (c *Consumer) HandleMessage(ctx context.Context, msg *queue.Message) error {
	started := time.Now()
	c.metrics.HandlerStarted()

	ctx = services.WithMessageID(ctx, msg.ID)
	ctx = services.WithDeliveryCount(ctx, msg.DeliveryCount)
	ctx = services.WithRequestID(ctx, uuid.NewString())
	logger := logging.WithContext(ctx, c.logger).With(logging.String(logging.FieldLabel, msg.Label))

	outcome, procErr := c.Process(ctx, msg)
	settleErr := c.settle(ctx, logger, msg, &outcome, procErr)

	c.metrics.HandlerFinished(string(outcome), time.Since(started))
	return settleErr
}

func (c *Consumer) settle(ctx context.Context, logger *slog.Logger, msg *queue.Message, outcome *Outcome, procErr error) error {
	switch services.FailureDisposition(procErr) {
	case services.DispositionComplete:
		if err := c.receiver.Complete(ctx, msg.LockToken); err != nil {
			logging.WarnWithContext(logger, "message acknowledgement failed; it will be redelivered",
				"message_complete_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "increase queue.visibility_timeout if handlers outlive their lock"),
				logging.String(logging.FieldImpact, "the redelivery finds the file already processed"),
			)
			return fmt.Errorf("complete message %s: %w", msg.ID, err)
		}
		if *outcome == OutcomeAlreadyProcessed {
			logger.Info("source file already processed; message acknowledged",
				logging.String("reason", procErr.Error()),
				logging.String(logging.FieldEventType, "message_already_processed"),
			)
			return nil
		}
		logger.Info("file uploaded and relocated",
			logging.String(logging.FieldObjectKey, objectstore.ObjectKey(msg.Label)),
			logging.String(logging.FieldPath, c.ProcessedPath(msg.Label)),
			logging.String(logging.FieldEventType, "message_completed"),
		)
		return nil
	}

	if *outcome == OutcomeDeferred {
		logger.Info("file in use by another process; left for redelivery",
			logging.String("reason", procErr.Error()),
			logging.String(logging.FieldEventType, "message_deferred"),
		)
		return nil
	}

	if c.maxAttempts > 0 && msg.DeliveryCount >= c.maxAttempts {
		reason := fmt.Sprintf("%s after %d deliveries: %v", services.Reason(procErr), msg.DeliveryCount, procErr)
		if err := c.receiver.DeadLetter(ctx, msg.LockToken, reason); err != nil {
			logging.ErrorWithContext(logger, "dead-lettering failed", "message_dead_letter_failed",
				logging.Error(err),
				logging.String("reason", reason),
			)
			return fmt.Errorf("dead-letter message %s: %w", msg.ID, err)
		}
		*outcome = OutcomeDeadLettered
		logging.WarnWithContext(logger, "message dead-lettered after repeated failures",
			"message_dead_lettered",
			logging.Error(procErr),
			logging.String(logging.FieldErrorHint, "fix the cause, then run `filerelay queue requeue`"),
			logging.String(logging.FieldImpact, "the file stays in the watch directory and is announced again on the next scan"),
		)
		if err := c.notifier.Publish(context.WithoutCancel(ctx), notifications.EventMessageDeadLettered, notifications.Payload{
			"label":      msg.Label,
			"deliveries": msg.DeliveryCount,
			"reason":     services.Reason(procErr),
		}); err != nil {
			logger.Warn("dead-letter notification failed", logging.Error(err))
		}
		return nil
	}

	logging.WarnWithContext(logger, "message processing failed; left for redelivery",
		"message_failed",
		logging.Error(procErr),
		logging.String("reason", services.Reason(procErr)),
		logging.String(logging.FieldErrorHint, hintFor(procErr)),
		logging.String(logging.FieldImpact, "the message is retried after the visibility timeout"),
	)
	return nil
}

func hintFor(err error) string {
	switch {
	case errors.Is(err, services.ErrData):
		return "the message cannot be acted on; inspect it with `filerelay queue list`"
	case errors.Is(err, services.ErrConfiguration):
		return "check the [storage] configuration"
	default:
		return "check object store connectivity and filesystem permissions"
	}
}

// handleException logs failures reported by the receiver's own machinery.
func (c *Consumer) handleException(ev queue.ExceptionEvent) {
	c.metrics.ObserveException(ev.Context.Action)
	logging.WarnWithContext(c.logger, "message handler encountered an exception",
		"queue_exception",
		logging.Error(ev.Err),
		logging.String("endpoint", ev.Context.Endpoint),
		logging.String("entity_path", ev.Context.EntityPath),
		logging.String("action", ev.Context.Action),
		logging.String(logging.FieldErrorHint, "check broker connectivity"),
		logging.String(logging.FieldImpact, "affected messages are redelivered"),
	)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
