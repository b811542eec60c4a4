package notify

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/stellarlinkco/pharm/internal/config"
)

// FromConfig assembles the enabled sinks. The log sink is always present;
// remote sinks sit behind a circuit breaker.
func FromConfig(cfg config.NotifyConfig, logger *zap.Logger) (Multi, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	sinks := Multi{NewLogSink(logger)}

	if cfg.Desktop.Enabled {
		sinks = append(sinks, NewDesktop(cfg.Desktop.AppIcon))
	}

	if cfg.Telegram.Enabled {
		tg, err := NewTelegram(cfg.Telegram, logger)
		if err != nil {
			return nil, fmt.Errorf("init telegram sink: %w", err)
		}
		timeout, err := cfg.Breaker.Timeout()
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, NewBreaker(tg, BreakerConfig{
			MaxFailures: cfg.Breaker.MaxFailures,
			OpenTimeout: timeout,
		}, logger))
	}

	names := make([]string, 0, len(sinks))
	for _, s := range sinks {
		names = append(names, s.Name())
	}
	logger.Named("notify").Debug("sinks enabled", zap.Strings("sinks", names))
	return sinks, nil
}
