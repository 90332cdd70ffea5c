package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// Dispatcher runs a handler for delivered messages with at most
// MaxConcurrentCalls invocations in flight. Receivers call Acquire before
// taking a message off the broker, then Dispatch (or Release when nothing was
// received).
//
// Handlers run on a context detached from the receiver's lifetime, so closing
// a receiver drains in-flight work instead of cancelling it.
type Dispatcher struct {
	base     context.Context
	handler  Handler
	opts     HandlerOptions
	settler  Settler
	endpoint string
	entity   string

	slots    chan struct{}
	wg       sync.WaitGroup
	inFlight atomic.Int64
}

// NewDispatcher validates opts and builds a dispatcher. Handler contexts carry
// the values of ctx but not its cancellation. endpoint and entityPath are
// echoed back in exception events.
func NewDispatcher(ctx context.Context, handler Handler, opts HandlerOptions, settler Settler, endpoint, entityPath string) (*Dispatcher, error) {
	if handler == nil {
		return nil, errors.New("message handler is required")
	}
	if opts.AutoComplete && settler == nil {
		return nil, errors.New("auto-complete requires a settler")
	}
	if opts.MaxConcurrentCalls < 1 {
		opts.MaxConcurrentCalls = 1
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &Dispatcher{
		base:     context.WithoutCancel(ctx),
		handler:  handler,
		opts:     opts,
		settler:  settler,
		endpoint: endpoint,
		entity:   entityPath,
		slots:    make(chan struct{}, opts.MaxConcurrentCalls),
	}, nil
}

// MaxConcurrentCalls returns the effective concurrency bound.
func (d *Dispatcher) MaxConcurrentCalls() int {
	return cap(d.slots)
}

// Acquire blocks until a handler slot is free. It returns false when ctx is
// done first.
func (d *Dispatcher) Acquire(ctx context.Context) bool {
	select {
	case d.slots <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

// Release returns a slot taken by Acquire that was not used for Dispatch.
func (d *Dispatcher) Release() {
	<-d.slots
}

// Dispatch runs the handler for msg on its own goroutine. The caller must hold
// a slot from Acquire; Dispatch releases it when the handler returns.
func (d *Dispatcher) Dispatch(msg *Message) {
	d.wg.Add(1)
	d.inFlight.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.Release()
		defer d.inFlight.Add(-1)

		ctx := d.base
		err := d.invoke(ctx, msg)
		if err != nil {
			d.Report(ActionUserCallback, err)
		}
		if d.opts.AutoComplete {
			d.autoSettle(ctx, msg, err)
		}
	}()
}

func (d *Dispatcher) invoke(ctx context.Context, msg *Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("message handler panic: %v", r)
		}
	}()
	return d.handler(ctx, msg)
}

func (d *Dispatcher) autoSettle(ctx context.Context, msg *Message, handlerErr error) {
	if handlerErr == nil {
		if err := d.settler.Complete(ctx, msg.LockToken); err != nil {
			d.Report(ActionComplete, err)
		}
		return
	}
	if err := d.settler.Abandon(ctx, msg.LockToken); err != nil {
		d.Report(ActionAbandon, err)
	}
}

// Report forwards err to the exception callback, if one is configured.
func (d *Dispatcher) Report(action string, err error) {
	if err == nil || d.opts.ExceptionReceived == nil {
		return
	}
	d.opts.ExceptionReceived(ExceptionEvent{
		Err: err,
		Context: ExceptionContext{
			Endpoint:   d.endpoint,
			EntityPath: d.entity,
			Action:     action,
		},
	})
}

// InFlight returns the number of handler invocations currently running.
func (d *Dispatcher) InFlight() int {
	return int(d.inFlight.Load())
}

// Wait blocks until every dispatched handler has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
