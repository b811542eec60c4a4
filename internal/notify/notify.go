// Package notify delivers reminders to the user. Every sink is
// fire-and-forget: a failed delivery is reported to the caller but never
// retried here.
package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/stellarlinkco/pharm/internal/apperr"
)

// Urgency ranks a notification.
type Urgency int

const (
	UrgencyNormal Urgency = iota
	UrgencyCritical
)

func (u Urgency) String() string {
	if u == UrgencyCritical {
		return "critical"
	}
	return "normal"
}

// Notification is one titled message.
type Notification struct {
	Title   string
	Body    string
	Urgency Urgency
}

// Sink delivers notifications.
type Sink interface {
	Name() string
	Notify(ctx context.Context, n Notification) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n Notification) error

func (f SinkFunc) Name() string { return "func" }

func (f SinkFunc) Notify(ctx context.Context, n Notification) error { return f(ctx, n) }

// Multi fans a notification out to every sink. All sinks are attempted; the
// failures are joined.
type Multi []Sink

func (m Multi) Name() string { return "multi" }

func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, s := range m {
		if err := s.Notify(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return apperr.Notification("notify", errors.Join(errs...))
}

// LogSink writes notifications to the log. It is always enabled so that a
// headless daemon still leaves a trace of every reminder.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("notify")}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Notify(_ context.Context, n Notification) error {
	s.logger.Info(n.Title,
		zap.String("body", n.Body),
		zap.Stringer("urgency", n.Urgency))
	return nil
}
