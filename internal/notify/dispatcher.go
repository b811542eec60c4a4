package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultQueueSize bounds the dispatcher queue.
const DefaultQueueSize = 32

// DefaultSendTimeout bounds a single delivery.
const DefaultSendTimeout = 30 * time.Second

// Stats counts dispatcher outcomes since creation.
type Stats struct {
	Sent    uint64 `json:"sent"`
	Failed  uint64 `json:"failed"`
	Dropped uint64 `json:"dropped"`
}

// Dispatcher delivers notifications on a background goroutine so that a slow
// or failing sink never holds up the caller. When the queue is full new
// notifications are dropped.
type Dispatcher struct {
	sink    Sink
	queue   chan Notification
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.Mutex
	closed bool
	done   chan struct{}
	once   sync.Once

	sent, failed, dropped atomic.Uint64
}

// NewDispatcher creates a dispatcher in front of sink.
func NewDispatcher(sink Sink, queueSize int, logger *zap.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		sink:    sink,
		queue:   make(chan Notification, queueSize),
		timeout: DefaultSendTimeout,
		logger:  logger.Named("dispatcher"),
		done:    make(chan struct{}),
	}
}

func (d *Dispatcher) Name() string { return "dispatcher" }

// Start runs the delivery loop until Close. Cancelling ctx aborts in-flight
// deliveries but queued notifications are still drained.
func (d *Dispatcher) Start(ctx context.Context) {
	d.once.Do(func() {
		go d.run(ctx)
	})
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)
	for n := range d.queue {
		d.deliver(ctx, n)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, n Notification) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()
	if err := d.sink.Notify(ctx, n); err != nil {
		d.failed.Add(1)
		d.logger.Warn("notification failed", zap.String("title", n.Title), zap.Error(err))
		return
	}
	d.sent.Add(1)
}

// Enqueue queues n without blocking and reports whether it was accepted.
func (d *Dispatcher) Enqueue(n Notification) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.dropped.Add(1)
		return false
	}
	select {
	case d.queue <- n:
		return true
	default:
		d.dropped.Add(1)
		d.logger.Warn("notification queue full, dropping", zap.String("title", n.Title))
		return false
	}
}

// Notify implements Sink by queueing; it never reports delivery errors.
func (d *Dispatcher) Notify(_ context.Context, n Notification) error {
	d.Enqueue(n)
	return nil
}

// Close stops accepting notifications and waits until the queue drains or
// ctx ends. The loop must have been started.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns delivery counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Sent:    d.sent.Load(),
		Failed:  d.failed.Load(),
		Dropped: d.dropped.Load(),
	}
}
