package events

import (
	"context"
	"sync"
	"time"

	"leadchat_backend/platform/logger"

	"golang.org/x/sync/errgroup"
)

// handlerTimeout bounds each asynchronous handler invocation so a stuck
// side effect cannot leak goroutines forever.
const handlerTimeout = 30 * time.Second

// InMemoryBus is a process-local event bus. Asynchronous publishes are
// supervised: every handler runs inside an errgroup with its own error
// boundary, failures are logged and swallowed, and Drain waits for all
// in-flight handlers during shutdown.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	group    *errgroup.Group
	log      *logger.Logger
}

// NewInMemoryBus creates a new in-memory event bus.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	g := &errgroup.Group{}
	g.SetLimit(64)
	return &InMemoryBus{
		handlers: make(map[string][]Handler),
		group:    g,
		log:      log,
	}
}

// Subscribe registers a handler for the given event name.
func (b *InMemoryBus) Subscribe(eventName string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventName] = append(b.handlers[eventName], handler)
}

// Publish dispatches the event to all handlers without blocking the caller.
// Handler errors are logged and swallowed: side effects with no correctness
// dependency on their outcome must never fail the primary path.
func (b *InMemoryBus) Publish(ctx context.Context, event Event) {
	for _, h := range b.snapshot(event.EventName()) {
		handler := h
		b.group.Go(func() error {
			hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), handlerTimeout)
			defer cancel()
			if err := handler.Handle(hctx, event); err != nil {
				b.log.SideEffectFailed(event.EventName(), err)
			}
			return nil
		})
	}
}

// PublishSync dispatches the event and waits for all handlers, returning
// the first handler error.
func (b *InMemoryBus) PublishSync(ctx context.Context, event Event) error {
	var firstErr error
	for _, h := range b.snapshot(event.EventName()) {
		if err := h.Handle(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Drain waits for all in-flight asynchronous handlers to finish.
func (b *InMemoryBus) Drain() {
	_ = b.group.Wait()
}

func (b *InMemoryBus) snapshot(eventName string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	registered := b.handlers[eventName]
	out := make([]Handler, len(registered))
	copy(out, registered)
	return out
}
