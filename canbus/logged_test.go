package canbus

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"
)

type recordSink struct {
	mu      sync.Mutex
	records []slog.Record
}

func (s *recordSink) Enabled(context.Context, slog.Level) bool { return true }
func (s *recordSink) Handle(_ context.Context, r slog.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, r.Clone())
	return nil
}
func (s *recordSink) WithAttrs(attrs []slog.Attr) slog.Handler { return s }
func (s *recordSink) WithGroup(name string) slog.Handler       { return s }

func (s *recordSink) has(level slog.Level, msg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.Level == level && r.Message == msg {
			return true
		}
	}
	return false
}

func (s *recordSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func TestLoggedBus_WriteAndReadLogging(t *testing.T) {
	lb := NewLoopbackBus()
	defer lb.Close()
	ctx := testCtx(t)

	sink := &recordSink{}
	logger := slog.New(sink)

	sender := NewLoggedBus(lb.Open(), logger, slog.LevelInfo, LogWrite, nil)
	receiver := NewLoggedBus(lb.Open(), logger, slog.LevelInfo, LogRead, nil)
	defer sender.Close()
	defer receiver.Close()

	if err := sender.Send(ctx, MustFrame(0x123, []byte{1, 2, 3})); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := receiver.Receive(ctx); err != nil {
		t.Fatalf("receive: %v", err)
	}

	if !sink.has(slog.LevelInfo, "canbus send") {
		t.Fatalf("expected write log entry")
	}
	if !sink.has(slog.LevelInfo, "canbus receive") {
		t.Fatalf("expected read log entry")
	}
}

func TestLoggedBus_FilterAndTimeouts(t *testing.T) {
	lb := NewLoopbackBus()
	defer lb.Close()
	ctx := testCtx(t)

	sink := &recordSink{}
	sender := NewLoggedBus(lb.Open(), slog.New(sink), slog.LevelDebug, LogAll, ByID(0x601))
	defer sender.Close()

	_ = sender.Send(ctx, MustFrame(0x700, []byte{0x05}))
	if sink.count() != 0 {
		t.Fatalf("filtered frame should not be logged")
	}

	short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	if _, err := sender.Receive(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want deadline exceeded, got %v", err)
	}
	if sink.count() != 0 {
		t.Fatalf("receive timeout should not be logged")
	}
}

func TestLoggedBus_ErrorLogging(t *testing.T) {
	lb := NewLoopbackBus()
	rx := lb.Open()
	_ = rx.Close()

	sink := &recordSink{}
	wrapped := NewLoggedBus(rx, slog.New(sink), slog.LevelInfo, LogRead, nil)
	_, _ = wrapped.Receive(testCtx(t))

	if !sink.has(slog.LevelError, "canbus receive error") {
		t.Fatalf("expected receive error log entry")
	}
}
