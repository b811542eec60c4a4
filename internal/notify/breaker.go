package notify

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrSinkOpen is returned while a breaker is refusing calls.
var ErrSinkOpen = errors.New("sink temporarily disabled after repeated failures")

// BreakerConfig controls when a sink is taken out of rotation.
type BreakerConfig struct {
	MaxFailures uint32        // consecutive failures before opening
	OpenTimeout time.Duration // how long to stay open before probing again
}

// Breaker stops calling a sink that keeps failing, so a dead remote service
// does not cost a timeout on every reminder.
type Breaker struct {
	sink   Sink
	cb     *gobreaker.CircuitBreaker
	logger *zap.Logger
}

// NewBreaker wraps sink.
func NewBreaker(sink Sink, cfg BreakerConfig, logger *zap.Logger) *Breaker {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 3
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 5 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Breaker{sink: sink, logger: logger.Named("breaker")}
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        sink.Name(),
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.logger.Warn("sink state changed",
				zap.String("sink", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return b
}

func (b *Breaker) Name() string { return b.sink.Name() }

// State reports the breaker state ("closed", "open", "half-open").
func (b *Breaker) State() string { return b.cb.State().String() }

func (b *Breaker) Notify(ctx context.Context, n Notification) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.sink.Notify(ctx, n)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrSinkOpen
	}
	return err
}
