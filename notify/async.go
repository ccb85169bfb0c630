package notify

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type message struct {
	title  string
	body   string
	urgent bool
}

// Async delivers alerts from a bounded queue on its own goroutine. Notify never
// blocks: when the queue is full the alert is dropped and counted.
type Async struct {
	next    Notifier
	timeout time.Duration
	dropped prometheus.Counter
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan message
	done   chan struct{}
}

// NewAsync starts the delivery goroutine. timeout bounds each delivery;
// dropped may be nil.
func NewAsync(next Notifier, size int, timeout time.Duration, dropped prometheus.Counter, logger *zap.Logger) *Async {
	if size <= 0 {
		size = 1
	}
	a := &Async{
		next:    next,
		timeout: timeout,
		dropped: dropped,
		logger:  logger,
		queue:   make(chan message, size),
		done:    make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *Async) Notify(_ context.Context, title, body string, urgent bool) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		a.drop(title, "closed")
		return nil
	}

	select {
	case a.queue <- message{title: title, body: body, urgent: urgent}:
	default:
		a.drop(title, "queue full")
	}
	return nil
}

func (a *Async) drop(title, reason string) {
	if a.dropped != nil {
		a.dropped.Inc()
	}
	a.logger.Warn("Dropping notification",
		zap.String("title", title),
		zap.String("reason", reason))
}

func (a *Async) run() {
	defer close(a.done)

	for m := range a.queue {
		ctx := context.Background()
		cancel := func() {}
		if a.timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, a.timeout)
		}
		if err := a.next.Notify(ctx, m.title, m.body, m.urgent); err != nil {
			a.logger.Warn("Failed to deliver notification",
				zap.String("title", m.title),
				zap.Error(err))
		}
		cancel()
	}
}

// Close stops accepting alerts and waits for the queued ones to be delivered
func (a *Async) Close() {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.queue)
	}
	a.mu.Unlock()
	<-a.done
}
