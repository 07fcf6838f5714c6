/*
Package notify delivers shop events to observers, out of band.

PURPOSE:
  The shop service publishes events after a settlement commits. Observers
  (restocking, forwarding to SQS) must never slow down or fail that
  settlement, so events go through a bounded queue drained by worker
  goroutines.

DELIVERY:
  - Notify never blocks: a full queue drops the event and logs it.
  - Handlers for one event run in subscription order on one worker.
  - A handler that panics or fails is logged; the others still run.
  - Close stops intake and waits until the queue is drained.

SEE ALSO:
  - shop/events.go: Event types and the Notifier interface
  - restock.go:     Restocker observer
  - sqs.go:         SQSForwarder observer
*/
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/warp/shop-engine/shop"
)

// Handler consumes one event.
type Handler func(ctx context.Context, evt shop.Event) error

// Defaults for NewBus.
const (
	DefaultQueueSize = 256
	DefaultWorkers   = 2
)

type envelope struct {
	ctx context.Context
	evt shop.Event
}

// Bus is an asynchronous in-process event bus. It implements shop.Notifier.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	all      []Handler
	closed   bool

	queue  chan envelope
	wg     sync.WaitGroup
	logger *slog.Logger
}

var _ shop.Notifier = (*Bus)(nil)

// NewBus creates a bus and starts its workers. Non-positive sizes use the defaults.
func NewBus(logger *slog.Logger, queueSize, workers int) *Bus {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}

	b := &Bus{
		handlers: make(map[string][]Handler),
		queue:    make(chan envelope, queueSize),
		logger:   logger.With("component", "notify"),
	}
	for i := 0; i < workers; i++ {
		b.wg.Add(1)
		go b.work()
	}
	return b
}

// Subscribe registers h for events named eventName.
func (b *Bus) Subscribe(eventName string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventName] = append(b.handlers[eventName], h)
}

// SubscribeAll registers h for every event.
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

// Notify enqueues evt. It never blocks.
func (b *Bus) Notify(ctx context.Context, evt shop.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("event dropped, bus closed", "event", evt.EventName())
		return
	}
	select {
	case b.queue <- envelope{ctx: ctx, evt: evt}:
	default:
		b.logger.Warn("event dropped, queue full", "event", evt.EventName(), "capacity", cap(b.queue))
	}
}

// Publish runs every handler for evt synchronously and returns their errors.
func (b *Bus) Publish(ctx context.Context, evt shop.Event) []error {
	b.mu.RLock()
	hs := make([]Handler, 0, len(b.handlers[evt.EventName()])+len(b.all))
	hs = append(hs, b.handlers[evt.EventName()]...)
	hs = append(hs, b.all...)
	b.mu.RUnlock()

	var errs []error
	for i, h := range hs {
		if err := b.call(ctx, evt, i, h); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func (b *Bus) call(ctx context.Context, evt shop.Event, index int, h Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
			b.logger.Error("handler panic", "event", evt.EventName(), "handler_index", index, "panic", r)
		}
	}()
	if err := h(ctx, evt); err != nil {
		b.logger.Error("handler error", "event", evt.EventName(), "handler_index", index, "error", err)
		return err
	}
	return nil
}

func (b *Bus) work() {
	defer b.wg.Done()
	for env := range b.queue {
		b.Publish(env.ctx, env.evt)
	}
}

// Close stops accepting events and waits for queued ones to be handled.
// Safe to call more than once.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.queue)
	b.mu.Unlock()

	b.wg.Wait()
}
