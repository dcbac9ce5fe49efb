package canbus

import (
	"context"
	"errors"
	"log/slog"
)

// LogOption is a bitmask for selecting which operations to log.
type LogOption uint8

const (
	LogNone LogOption = 0
	LogRead LogOption = 1 << iota
	LogWrite
	LogAll = LogRead | LogWrite
)

// NewLoggedBus wraps the given Bus and logs selected operations at the given
// level. If filter is non-nil only matching frames are logged; errors are
// always logged for the enabled directions.
func NewLoggedBus(inner Bus, logger *slog.Logger, level slog.Level, opts LogOption, filter FrameFilter) Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &loggedBus{
		inner:  inner,
		logger: logger,
		level:  level,
		opts:   opts,
		filter: filter,
	}
}

type loggedBus struct {
	inner  Bus
	logger *slog.Logger
	level  slog.Level
	opts   LogOption
	filter FrameFilter
}

func (l *loggedBus) wants(f Frame) bool { return l.filter == nil || l.filter(f) }

// Send logs the frame and the result when write logging is enabled.
func (l *loggedBus) Send(ctx context.Context, frame Frame) error {
	if l.opts&LogWrite != 0 && l.wants(frame) {
		l.logger.Log(ctx, l.level, "canbus send",
			"id", frame.ID,
			"len", int(frame.Len),
			"frame", frame.String(),
		)
	}
	err := l.inner.Send(ctx, frame)
	if l.opts&LogWrite != 0 && err != nil {
		l.logger.Log(ctx, slog.LevelError, "canbus send error",
			"id", frame.ID,
			"error", err,
		)
	}
	return err
}

// Receive logs the received frame or error when read logging is enabled.
// Context expiry is the normal "no frame" outcome and is not logged.
func (l *loggedBus) Receive(ctx context.Context) (Frame, error) {
	f, err := l.inner.Receive(ctx)
	if l.opts&LogRead == 0 {
		return f, err
	}
	switch {
	case err == nil:
		if l.wants(f) {
			l.logger.Log(ctx, l.level, "canbus receive",
				"id", f.ID,
				"len", int(f.Len),
				"frame", f.String(),
			)
		}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
	default:
		l.logger.Log(context.Background(), slog.LevelError, "canbus receive error",
			"error", err,
		)
	}
	return f, err
}

// Close forwards to the inner Bus without logging.
func (l *loggedBus) Close() error {
	return l.inner.Close()
}
