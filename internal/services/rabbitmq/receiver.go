package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

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

// acker is the settlement surface of *amqp.Channel.
type acker interface {
	Ack(tag uint64, multiple bool) error
	Nack(tag uint64, multiple, requeue bool) error
}

type pendingDelivery struct {
	ch    acker
	tag   uint64
	timer *time.Timer // nil while the handler runs
}

func (p *pendingDelivery) stop() {
	if p.timer != nil {
		p.timer.Stop()
	}
}

// Receiver consumes one queue and feeds a queue.Dispatcher. It reconnects
// after connection loss; deliveries from the lost channel can no longer be
// settled and are redelivered by the broker.
type Receiver struct {
	url         string
	queue       string
	visibility  time.Duration
	consumerTag string
	logger      *slog.Logger

	mu         sync.Mutex
	conn       *amqp.Connection
	ch         *amqp.Channel
	connClosed chan *amqp.Error
	generation uint64
	pending    map[queue.LockToken]*pendingDelivery
	dispatcher *queue.Dispatcher
	cancel     context.CancelFunc
	loopDone   chan struct{}
	closed     bool
}

// NewReceiver connects and declares the queue. Consumption starts with
// RegisterHandler.
func NewReceiver(ctx context.Context, opts ReceiverOptions) (*Receiver, error) {
	if opts.VisibilityTimeout <= 0 {
		opts.VisibilityTimeout = 30 * time.Second
	}
	r := &Receiver{
		url:         opts.URL,
		queue:       opts.Queue,
		visibility:  opts.VisibilityTimeout,
		consumerTag: "filerelay-" + uuid.NewString(),
		logger:      logging.NewComponentLogger(opts.Logger, "rabbitmq-receiver"),
		pending:     make(map[queue.LockToken]*pendingDelivery),
	}
	if err := r.connect(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Receiver) connect(ctx context.Context) error {
	conn, err := connect(ctx, r.url, r.logger)
	if err != nil {
		return err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return services.Wrap(services.ErrTransient, "rabbitmq", "open channel", "", err)
	}
	if err := declareQueue(ch, r.queue); err != nil {
		_ = conn.Close()
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		_ = conn.Close()
		return queue.ErrClosed
	}
	r.clearPendingLocked()
	r.conn = conn
	r.ch = ch
	r.connClosed = conn.NotifyClose(make(chan *amqp.Error, 1))
	r.generation++
	return nil
}

// RegisterHandler starts consuming. Intake runs until Close.
func (r *Receiver) RegisterHandler(ctx context.Context, handler queue.Handler, opts queue.HandlerOptions) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return queue.ErrClosed
	}
	if r.dispatcher != nil {
		return queue.ErrHandlerRegistered
	}
	d, err := queue.NewDispatcher(ctx, r.holdLock(handler), opts, r, redactURL(r.url), r.queue)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.dispatcher = d
	r.cancel = cancel
	r.loopDone = make(chan struct{})
	go r.run(loopCtx, d)
	return nil
}

func (r *Receiver) run(ctx context.Context, d *queue.Dispatcher) {
	defer close(r.loopDone)
	backoff := reconnectInitial
	for {
		deliveries, closed, err := r.subscribe(d.MaxConcurrentCalls())
		if err != nil {
			d.Report(queue.ActionReceive, err)
		} else {
			backoff = reconnectInitial
			if !r.consume(ctx, d, deliveries, closed) {
				return
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, reconnectMax)
		if err := r.connect(ctx); err != nil {
			d.Report(queue.ActionConnection, err)
			continue
		}
		r.logger.Info("rabbitmq connection restored",
			logging.String(logging.FieldEventType, "broker_reconnected"),
		)
	}
}

func (r *Receiver) subscribe(prefetch int) (<-chan amqp.Delivery, <-chan *amqp.Error, error) {
	r.mu.Lock()
	ch, closed := r.ch, r.connClosed
	r.mu.Unlock()

	if err := ch.Qos(prefetch, 0, false); err != nil {
		return nil, nil, services.Wrap(services.ErrBrokerDelivery, "rabbitmq", "set qos", "", err)
	}
	deliveries, err := ch.Consume(
		r.queue,
		r.consumerTag,
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, nil, services.Wrap(services.ErrBrokerDelivery, "rabbitmq", "consume", r.queue, err)
	}
	return deliveries, closed, nil
}

// consume feeds deliveries to d. It returns true when the connection was lost
// and false when ctx ended.
func (r *Receiver) consume(ctx context.Context, d *queue.Dispatcher, deliveries <-chan amqp.Delivery, closed <-chan *amqp.Error) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case amqpErr := <-closed:
			d.Report(queue.ActionConnection, services.Wrap(services.ErrBrokerDelivery, "rabbitmq", "connection", "closed by broker", connectionError(amqpErr)))
			return true
		case delivery, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return false
				}
				d.Report(queue.ActionReceive, services.Wrap(services.ErrBrokerDelivery, "rabbitmq", "consume", "delivery channel closed", nil))
				return true
			}
			if !d.Acquire(ctx) {
				_ = delivery.Nack(false, true)
				return false
			}
			msg := r.track(delivery)
			r.logger.Debug("message delivered",
				logging.String(logging.FieldMessageID, msg.ID),
				logging.Int(logging.FieldDeliveryCount, msg.DeliveryCount),
				logging.String(logging.FieldEventType, "message_delivered"),
			)
			d.Dispatch(msg)
		}
	}
}

func connectionError(amqpErr *amqp.Error) error {
	if amqpErr == nil {
		return errors.New("connection closed")
	}
	return amqpErr
}

// track registers the delivery under a lock token. Its lock timer starts
// once the handler returns.
func (r *Receiver) track(delivery amqp.Delivery) *queue.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	token := lockToken(r.generation, delivery.DeliveryTag)
	r.trackLocked(token, delivery.Acknowledger, delivery.DeliveryTag)
	return toMessage(delivery, token)
}

func (r *Receiver) trackLocked(token queue.LockToken, ch acker, tag uint64) {
	r.pending[token] = &pendingDelivery{ch: ch, tag: tag}
}

// holdLock wraps handler so a delivery stays locked while it runs. A
// delivery the handler leaves unsettled is requeued one visibility timeout
// after it returns.
func (r *Receiver) holdLock(handler queue.Handler) queue.Handler {
	if handler == nil {
		return nil
	}
	return func(ctx context.Context, msg *queue.Message) error {
		defer r.release(msg.LockToken)
		return handler(ctx, msg)
	}
}

func (r *Receiver) release(token queue.LockToken) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[token]
	if !ok || p.timer != nil {
		return
	}
	p.timer = time.AfterFunc(r.visibility, func() { r.expire(token) })
}

func (r *Receiver) expire(token queue.LockToken) {
	r.mu.Lock()
	p, ok := r.pending[token]
	if ok {
		delete(r.pending, token)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	if err := p.ch.Nack(p.tag, false, true); err != nil {
		r.logger.Debug("requeue after lock expiry failed", logging.String("lock_token", string(token)), logging.Error(err))
		return
	}
	r.logger.Debug("message lock expired; requeued",
		logging.String("lock_token", string(token)),
		logging.String(logging.FieldEventType, "message_lock_expired"),
	)
}

func (r *Receiver) settle(token queue.LockToken, op string, fn func(acker, uint64) error) error {
	r.mu.Lock()
	p, ok := r.pending[token]
	if ok {
		delete(r.pending, token)
		p.stop()
	}
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%s %s: %w", op, token, queue.ErrLockLost)
	}
	if err := fn(p.ch, p.tag); err != nil {
		if errors.Is(err, amqp.ErrClosed) {
			return fmt.Errorf("%s %s: %w", op, token, queue.ErrLockLost)
		}
		return services.Wrap(services.ErrBrokerDelivery, "rabbitmq", op, string(token), err)
	}
	return nil
}

// Complete acknowledges the delivery held under token.
func (r *Receiver) Complete(_ context.Context, token queue.LockToken) error {
	return r.settle(token, "ack", func(ch acker, tag uint64) error { return ch.Ack(tag, false) })
}

// Abandon requeues the delivery held under token.
func (r *Receiver) Abandon(_ context.Context, token queue.LockToken) error {
	return r.settle(token, "nack", func(ch acker, tag uint64) error { return ch.Nack(tag, false, true) })
}

// DeadLetter rejects the delivery without requeue; a dead-letter exchange
// configured on the queue receives it.
func (r *Receiver) DeadLetter(_ context.Context, token queue.LockToken, reason string) error {
	err := r.settle(token, "reject", func(ch acker, tag uint64) error { return ch.Nack(tag, false, false) })
	if err == nil {
		r.logger.Info("message rejected to dead-letter exchange",
			logging.String("lock_token", string(token)),
			logging.String("reason", reason),
			logging.String(logging.FieldEventType, "message_dead_lettered"),
		)
	}
	return err
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

// Close cancels the consumer, waits for in-flight handlers, then closes the
// connection. Unsettled deliveries return to the queue.
func (r *Receiver) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	ch, cancel, done, d := r.ch, r.cancel, r.loopDone, r.dispatcher
	r.mu.Unlock()

	if d != nil && ch != nil {
		_ = ch.Cancel(r.consumerTag, false)
	}
	if cancel != nil {
		cancel()
		<-done
	}
	if d != nil {
		d.Wait()
	}

	r.mu.Lock()
	r.clearPendingLocked()
	conn := r.conn
	r.mu.Unlock()
	if conn == nil {
		return nil
	}
	if err := conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return services.Wrap(services.ErrTransient, "rabbitmq", "close", "", err)
	}
	return nil
}

func (r *Receiver) clearPendingLocked() {
	for token, p := range r.pending {
		p.stop()
		delete(r.pending, token)
	}
}

func lockToken(generation, tag uint64) queue.LockToken {
	return queue.LockToken(fmt.Sprintf("%d.%d", generation, tag))
}

func toMessage(delivery amqp.Delivery, token queue.LockToken) *queue.Message {
	label, _ := delivery.Headers[LabelHeader].(string)
	return &queue.Message{
		ID:            delivery.MessageId,
		Body:          delivery.Body,
		ContentType:   delivery.ContentType,
		Label:         label,
		LockToken:     token,
		DeliveryCount: deliveryCount(delivery),
		EnqueuedAt:    delivery.Timestamp,
	}
}

// deliveryCount prefers the quorum-queue x-delivery-count header and falls
// back to the redelivered flag, which only tells first delivery from later ones.
func deliveryCount(delivery amqp.Delivery) int {
	switch v := delivery.Headers["x-delivery-count"].(type) {
	case int64:
		return int(v) + 1
	case int32:
		return int(v) + 1
	case int:
		return v + 1
	}
	if delivery.Redelivered {
		return 2
	}
	return 1
}
