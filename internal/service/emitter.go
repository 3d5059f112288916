package service

import (
	"context"
	"log/slog"
	"sync"

	"carprep/internal/etl"
)

// ─────────────────────────────────────────────────────────────
// EventEmitter: pipeline progress sinks
// ─────────────────────────────────────────────────────────────

// EventEmitter receives pipeline progress events.
type EventEmitter = etl.EventEmitter

// LogEmitter writes each event as a debug log line.
type LogEmitter struct {
	Logger *slog.Logger
}

func (l *LogEmitter) Emit(ctx context.Context, event string, data any) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.DebugContext(ctx, "event", slog.String("event", event), slog.Any("data", data))
}

// MockEmitter is a test-friendly EventEmitter that records all calls.
// It is safe for use from the watch goroutines.
type MockEmitter struct {
	mu     sync.Mutex
	Events []EmittedEvent
}

// EmittedEvent holds a single recorded emission for test assertions.
type EmittedEvent struct {
	Event string
	Data  any
}

func (m *MockEmitter) Emit(_ context.Context, event string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, EmittedEvent{Event: event, Data: data})
}

// Names returns the recorded event names in order.
func (m *MockEmitter) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, len(m.Events))
	for i, e := range m.Events {
		names[i] = e.Event
	}
	return names
}
