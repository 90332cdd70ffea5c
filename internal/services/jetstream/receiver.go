package jetstream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"filerelay/internal/logging"
	"filerelay/internal/queue"
	"filerelay/internal/services"
)

// ReceiverOptions configures a Receiver.
type ReceiverOptions struct {
	URL               string
	Queue             string
	VisibilityTimeout time.Duration
	Logger            *slog.Logger
}

type pendingMsg struct {
	token    queue.LockToken
	msg      jetstream.Msg
	deadline time.Time
}

// Receiver pulls from the queue's durable consumer and feeds a
// queue.Dispatcher.
type Receiver struct {
	url        string
	queueName  string
	visibility time.Duration
	logger     *slog.Logger
	conn       *connection
	now        func() time.Time

	mu         sync.Mutex
	pending    map[uint64]*pendingMsg // by stream sequence
	dispatcher *queue.Dispatcher
	consumeCtx jetstream.ConsumeContext
	cancel     context.CancelFunc
	closed     bool

	// intake is held for reading by every consume callback; Close takes it
	// for writing to know no callback is between Acquire and Dispatch.
	intake  sync.RWMutex
	stopped bool
}

// NewReceiver connects and ensures the stream exists. Consumption starts
// with RegisterHandler.
func NewReceiver(ctx context.Context, opts ReceiverOptions) (*Receiver, error) {
	if opts.VisibilityTimeout <= 0 {
		opts.VisibilityTimeout = 30 * time.Second
	}
	r := &Receiver{
		url:        opts.URL,
		queueName:  opts.Queue,
		visibility: opts.VisibilityTimeout,
		logger:     logging.NewComponentLogger(opts.Logger, "jetstream-receiver"),
		now:        time.Now,
		pending:    make(map[uint64]*pendingMsg),
	}
	conn, err := dial(ctx, opts.URL, opts.Queue, r.logger,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				r.report(queue.ActionConnection, services.Wrap(services.ErrBrokerDelivery, "jetstream", "connection", "disconnected", err))
			}
		}),
		nats.ReconnectHandler(func(*nats.Conn) {
			r.logger.Info("nats connection restored", logging.String(logging.FieldEventType, "broker_reconnected"))
		}),
	)
	if err != nil {
		return nil, err
	}
	r.conn = conn
	return r, nil
}

func (r *Receiver) report(action string, err error) {
	r.mu.Lock()
	d := r.dispatcher
	r.mu.Unlock()
	if d != nil {
		d.Report(action, err)
		return
	}
	r.logger.Warn("jetstream error before handler registration", logging.Error(err))
}

// RegisterHandler creates the durable consumer and starts consuming.
func (r *Receiver) RegisterHandler(ctx context.Context, handler queue.Handler, opts queue.HandlerOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return queue.ErrClosed
	}
	if r.dispatcher != nil {
		return queue.ErrHandlerRegistered
	}
	d, err := queue.NewDispatcher(ctx, r.keepLocked(handler), opts, r, r.url, r.conn.names.Stream)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	consumer, err := r.conn.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       r.conn.names.Consumer,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       r.visibility,
		MaxAckPending: d.MaxConcurrentCalls(),
		FilterSubject: r.conn.names.Subject,
	})
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "jetstream", "create consumer", r.conn.names.Consumer, err)
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	consumeCtx, err := consumer.Consume(
		func(msg jetstream.Msg) { r.deliver(loopCtx, d, msg) },
		jetstream.PullMaxMessages(d.MaxConcurrentCalls()),
		jetstream.ConsumeErrHandler(func(_ jetstream.ConsumeContext, err error) {
			d.Report(queue.ActionReceive, services.Wrap(services.ErrBrokerDelivery, "jetstream", "consume", "", err))
		}),
	)
	if err != nil {
		cancel()
		return services.Wrap(services.ErrBrokerDelivery, "jetstream", "consume", r.conn.names.Consumer, err)
	}
	r.dispatcher = d
	r.consumeCtx = consumeCtx
	r.cancel = cancel
	return nil
}

func (r *Receiver) deliver(ctx context.Context, d *queue.Dispatcher, raw jetstream.Msg) {
	r.intake.RLock()
	defer r.intake.RUnlock()
	if r.stopped || !d.Acquire(ctx) {
		_ = raw.Nak()
		return
	}
	msg, err := r.track(raw)
	if err != nil {
		d.Release()
		d.Report(queue.ActionReceive, err)
		_ = raw.Nak()
		return
	}
	r.logger.Debug("message delivered",
		logging.String(logging.FieldMessageID, msg.ID),
		logging.Int(logging.FieldDeliveryCount, msg.DeliveryCount),
		logging.String(logging.FieldEventType, "message_delivered"),
	)
	d.Dispatch(msg)
}

func (r *Receiver) track(raw jetstream.Msg) (*queue.Message, error) {
	meta, err := raw.Metadata()
	if err != nil {
		return nil, services.Wrap(services.ErrBrokerDelivery, "jetstream", "metadata", "", err)
	}
	token := queue.LockToken(fmt.Sprintf("%d.%d", meta.Sequence.Stream, meta.NumDelivered))
	msg := toMessage(raw.Headers(), raw.Data(), meta, token)

	// A redelivery replaces the entry of the delivery it supersedes.
	r.mu.Lock()
	r.pending[meta.Sequence.Stream] = &pendingMsg{token: token, msg: raw, deadline: r.now().Add(r.visibility)}
	r.mu.Unlock()
	return msg, nil
}

// keepLocked wraps handler so the server's AckWait is reset every half
// visibility timeout while it runs.
func (r *Receiver) keepLocked(handler queue.Handler) queue.Handler {
	if handler == nil {
		return nil
	}
	return func(ctx context.Context, msg *queue.Message) error {
		renewCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			r.renew(renewCtx, msg.LockToken)
		}()
		defer func() {
			cancel()
			<-done
		}()
		return handler(ctx, msg)
	}
}

func (r *Receiver) renew(ctx context.Context, token queue.LockToken) {
	ticker := time.NewTicker(r.visibility / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		p := r.lookup(token)
		if p == nil {
			return
		}
		if err := p.msg.InProgress(); err != nil {
			r.logger.Debug("lock renewal failed", logging.String("lock_token", string(token)), logging.Error(err))
			return
		}
		r.mu.Lock()
		p.deadline = r.now().Add(r.visibility)
		r.mu.Unlock()
	}
}

// lookup returns the pending entry for token while it is still current.
func (r *Receiver) lookup(token queue.LockToken) *pendingMsg {
	seq, ok := streamSequence(token)
	if !ok {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[seq]
	if !ok || p.token != token || !r.now().Before(p.deadline) {
		return nil
	}
	return p
}

func streamSequence(token queue.LockToken) (uint64, bool) {
	head, _, ok := strings.Cut(string(token), ".")
	if !ok {
		return 0, false
	}
	seq, err := strconv.ParseUint(head, 10, 64)
	return seq, err == nil
}

func toMessage(header nats.Header, data []byte, meta *jetstream.MsgMetadata, token queue.LockToken) *queue.Message {
	return &queue.Message{
		ID:            header.Get(nats.MsgIdHdr),
		Body:          data,
		ContentType:   header.Get(ContentTypeHeader),
		Label:         header.Get(LabelHeader),
		LockToken:     token,
		DeliveryCount: int(meta.NumDelivered),
		EnqueuedAt:    meta.Timestamp,
	}
}

// take removes token from the pending set. A superseded delivery, or one
// whose AckWait elapsed, has already been redelivered and is reported as lost.
func (r *Receiver) take(token queue.LockToken, op string) (jetstream.Msg, error) {
	seq, ok := streamSequence(token)
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", op, token, queue.ErrLockLost)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[seq]
	if !ok || p.token != token {
		return nil, fmt.Errorf("%s %s: %w", op, token, queue.ErrLockLost)
	}
	delete(r.pending, seq)
	if !r.now().Before(p.deadline) {
		return nil, fmt.Errorf("%s %s: %w", op, token, queue.ErrLockLost)
	}
	return p.msg, nil
}

// Complete acknowledges the message and waits for the server to confirm.
func (r *Receiver) Complete(ctx context.Context, token queue.LockToken) error {
	msg, err := r.take(token, "ack")
	if err != nil {
		return err
	}
	if err := msg.DoubleAck(ctx); err != nil {
		return settleError("ack", token, err)
	}
	return nil
}

// Abandon asks for immediate redelivery.
func (r *Receiver) Abandon(_ context.Context, token queue.LockToken) error {
	msg, err := r.take(token, "nak")
	if err != nil {
		return err
	}
	if err := msg.Nak(); err != nil {
		return settleError("nak", token, err)
	}
	return nil
}

// DeadLetter terminates the message so it is never redelivered.
func (r *Receiver) DeadLetter(_ context.Context, token queue.LockToken, reason string) error {
	msg, err := r.take(token, "term")
	if err != nil {
		return err
	}
	if err := msg.TermWithReason(reason); err != nil {
		return settleError("term", token, err)
	}
	return nil
}

func settleError(op string, token queue.LockToken, err error) error {
	if errors.Is(err, jetstream.ErrMsgAlreadyAckd) || errors.Is(err, nats.ErrConnectionClosed) {
		return fmt.Errorf("%s %s: %w", op, token, queue.ErrLockLost)
	}
	return services.Wrap(services.ErrBrokerDelivery, "jetstream", op, string(token), err)
}

// InFlight returns the number of running handler invocations.
func (r *Receiver) InFlight() int {
	r.mu.Lock()
	d := r.dispatcher
	r.mu.Unlock()
	if d == nil {
		return 0
	}
	return d.InFlight()
}

// Close stops pulling, waits for in-flight handlers, then closes the
// connection. Unacknowledged messages are redelivered after AckWait.
func (r *Receiver) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	consumeCtx, cancel, d := r.consumeCtx, r.cancel, r.dispatcher
	r.mu.Unlock()

	if consumeCtx != nil {
		consumeCtx.Stop()
	}
	if cancel != nil {
		cancel()
	}
	r.intake.Lock()
	r.stopped = true
	r.intake.Unlock()
	if d != nil {
		d.Wait()
	}
	r.conn.nc.Close()
	return nil
}
