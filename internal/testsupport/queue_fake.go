package testsupport

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"filerelay/internal/queue"
)

// RecordingQueue is an in-memory Sender and Receiver that records every call.
// Deliver invokes the registered handler synchronously so tests control
// delivery order and counts.
type RecordingQueue struct {
	mu sync.Mutex

	// SendErr, when set, is returned by Send for labels it maps.
	SendErr map[string]error
	// SettleErr, when set, is returned by Complete, Abandon, and DeadLetter.
	SettleErr error

	sent         []queue.Message
	completed    []queue.LockToken
	abandoned    []queue.LockToken
	deadLettered map[queue.LockToken]string
	handler      queue.Handler
	options      queue.HandlerOptions
	exceptions   []queue.ExceptionEvent
	closed       bool
	closeCalls   int
	nextID       int
}

// NewRecordingQueue returns an empty recording queue.
func NewRecordingQueue() *RecordingQueue {
	return &RecordingQueue{deadLettered: make(map[queue.LockToken]string)}
}

func (q *RecordingQueue) Send(_ context.Context, msg queue.Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return queue.ErrClosed
	}
	if err := q.SendErr[msg.Label]; err != nil {
		return err
	}
	q.nextID++
	if msg.ID == "" {
		msg.ID = fmt.Sprintf("msg-%d", q.nextID)
	}
	q.sent = append(q.sent, msg)
	return nil
}

func (q *RecordingQueue) RegisterHandler(_ context.Context, handler queue.Handler, opts queue.HandlerOptions) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return queue.ErrClosed
	}
	if q.handler != nil {
		return queue.ErrHandlerRegistered
	}
	q.handler = handler
	q.options = opts
	return nil
}

// Deliver runs the registered handler for msg and routes a returned error to
// the exception callback, as a real receiver would.
func (q *RecordingQueue) Deliver(ctx context.Context, msg *queue.Message) error {
	q.mu.Lock()
	handler, opts := q.handler, q.options
	q.mu.Unlock()
	if handler == nil {
		return errors.New("no handler registered")
	}
	err := handler(ctx, msg)
	if err != nil {
		ev := queue.ExceptionEvent{Err: err, Context: queue.ExceptionContext{Endpoint: "memory", EntityPath: "test", Action: queue.ActionUserCallback}}
		q.mu.Lock()
		q.exceptions = append(q.exceptions, ev)
		q.mu.Unlock()
		if opts.ExceptionReceived != nil {
			opts.ExceptionReceived(ev)
		}
	}
	return err
}

func (q *RecordingQueue) Complete(_ context.Context, token queue.LockToken) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.SettleErr != nil {
		return q.SettleErr
	}
	q.completed = append(q.completed, token)
	return nil
}

func (q *RecordingQueue) Abandon(_ context.Context, token queue.LockToken) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.SettleErr != nil {
		return q.SettleErr
	}
	q.abandoned = append(q.abandoned, token)
	return nil
}

func (q *RecordingQueue) DeadLetter(_ context.Context, token queue.LockToken, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.SettleErr != nil {
		return q.SettleErr
	}
	q.deadLettered[token] = reason
	return nil
}

func (q *RecordingQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.closeCalls++
	return nil
}

// Sent returns a copy of every message accepted by Send.
func (q *RecordingQueue) Sent() []queue.Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]queue.Message(nil), q.sent...)
}

// Completed returns the tokens passed to Complete.
func (q *RecordingQueue) Completed() []queue.LockToken {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]queue.LockToken(nil), q.completed...)
}

// Abandoned returns the tokens passed to Abandon.
func (q *RecordingQueue) Abandoned() []queue.LockToken {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]queue.LockToken(nil), q.abandoned...)
}

// DeadLettered returns the dead-letter reason recorded for token.
func (q *RecordingQueue) DeadLettered(token queue.LockToken) (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	reason, ok := q.deadLettered[token]
	return reason, ok
}

// Options returns the options passed to RegisterHandler.
func (q *RecordingQueue) Options() queue.HandlerOptions {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.options
}

// CloseCalls reports how many times Close ran.
func (q *RecordingQueue) CloseCalls() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closeCalls
}
