package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"filerelay/internal/logging"
)

// SQLiteSender publishes to one queue of a Store. It owns the store and
// closes it on Close.
type SQLiteSender struct {
	store *Store
	queue string

	mu     sync.Mutex
	closed bool
}

// NewSQLiteSender wraps store as a Sender for queueName.
func NewSQLiteSender(store *Store, queueName string) *SQLiteSender {
	return &SQLiteSender{store: store, queue: queueName}
}

// Send enqueues msg.
func (s *SQLiteSender) Send(ctx context.Context, msg Message) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	_, err := s.store.Enqueue(ctx, s.queue, msg)
	return err
}

// Close releases the store. Repeated calls are no-ops.
func (s *SQLiteSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.store.Close()
}

// SQLiteReceiverOptions tunes the polling receiver.
type SQLiteReceiverOptions struct {
	VisibilityTimeout time.Duration
	PollInterval      time.Duration
	Logger            *slog.Logger
}

// SQLiteReceiver polls one queue of a Store and feeds a Dispatcher. It owns
// the store and closes it on Close.
type SQLiteReceiver struct {
	store      *Store
	queue      string
	visibility time.Duration
	poll       time.Duration
	logger     *slog.Logger

	mu         sync.Mutex
	dispatcher *Dispatcher
	cancel     context.CancelFunc
	loopDone   chan struct{}
	closed     bool
}

// NewSQLiteReceiver wraps store as a Receiver for queueName.
func NewSQLiteReceiver(store *Store, queueName string, opts SQLiteReceiverOptions) *SQLiteReceiver {
	if opts.VisibilityTimeout <= 0 {
		opts.VisibilityTimeout = 30 * time.Second
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	return &SQLiteReceiver{
		store:      store,
		queue:      queueName,
		visibility: opts.VisibilityTimeout,
		poll:       opts.PollInterval,
		logger:     logging.NewComponentLogger(opts.Logger, "sqlite-receiver"),
	}
}

// RegisterHandler starts the message pump. Intake runs until Close.
func (r *SQLiteReceiver) RegisterHandler(ctx context.Context, handler Handler, opts HandlerOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if r.dispatcher != nil {
		return ErrHandlerRegistered
	}
	if handler == nil {
		return errors.New("message handler is required")
	}
	locked := func(ctx context.Context, msg *Message) error {
		stop := r.keepLocked(ctx, msg)
		defer stop()
		return handler(ctx, msg)
	}
	dispatcher, err := NewDispatcher(ctx, locked, opts, r, "sqlite://"+r.store.Path(), r.queue)
	if err != nil {
		return err
	}
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ensureContext(ctx)))
	r.dispatcher = dispatcher
	r.cancel = cancel
	r.loopDone = make(chan struct{})
	go r.pump(loopCtx, dispatcher)
	return nil
}

func (r *SQLiteReceiver) pump(ctx context.Context, d *Dispatcher) {
	defer close(r.loopDone)
	for {
		if !d.Acquire(ctx) {
			return
		}
		msg, err := r.store.Claim(ctx, r.queue, r.visibility)
		if err != nil {
			d.Release()
			if ctx.Err() != nil {
				return
			}
			d.Report(ActionReceive, err)
			r.wait(ctx)
			continue
		}
		if msg == nil {
			d.Release()
			r.wait(ctx)
			continue
		}
		r.logger.Debug("message claimed",
			logging.String(logging.FieldMessageID, msg.ID),
			logging.Int(logging.FieldDeliveryCount, msg.DeliveryCount),
			logging.String(logging.FieldEventType, "message_claimed"),
		)
		d.Dispatch(msg)
	}
}

// keepLocked renews msg's lock every half visibility timeout until the
// returned func is called or the message is settled, so a slow upload is not
// redelivered to another consumer mid-flight.
func (r *SQLiteReceiver) keepLocked(ctx context.Context, msg *Message) func() {
	renewCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(r.visibility / 2)
		defer ticker.Stop()
		for {
			select {
			case <-renewCtx.Done():
				return
			case <-ticker.C:
			}
			if err := r.store.RenewLock(renewCtx, msg.LockToken, r.visibility); err != nil {
				if !errors.Is(err, ErrLockLost) && renewCtx.Err() == nil {
					r.logger.Debug("lock renewal failed",
						logging.String(logging.FieldMessageID, msg.ID),
						logging.Error(err),
					)
				}
				return
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (r *SQLiteReceiver) wait(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(r.poll):
	}
}

// Complete acknowledges the message held under token.
func (r *SQLiteReceiver) Complete(ctx context.Context, token LockToken) error {
	return r.store.Complete(ctx, token)
}

// Abandon makes the message held under token visible again.
func (r *SQLiteReceiver) Abandon(ctx context.Context, token LockToken) error {
	return r.store.Abandon(ctx, token)
}

// DeadLetter removes the message held under token from delivery.
func (r *SQLiteReceiver) DeadLetter(ctx context.Context, token LockToken, reason string) error {
	return r.store.DeadLetter(ctx, token, reason)
}

// InFlight returns the number of running handler invocations.
func (r *SQLiteReceiver) InFlight() int {
	r.mu.Lock()
	d := r.dispatcher
	r.mu.Unlock()
	if d == nil {
		return 0
	}
	return d.InFlight()
}

// Close stops claiming, waits for in-flight handlers, then closes the store.
func (r *SQLiteReceiver) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	cancel, done, d := r.cancel, r.loopDone, r.dispatcher
	r.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	if d != nil {
		d.Wait()
	}
	if err := r.store.Close(); err != nil {
		return fmt.Errorf("close queue store: %w", err)
	}
	return nil
}
