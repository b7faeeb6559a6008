// Package audit emits the structured compliance trail. Events are buffered
// and drained by a single goroutine so emission never blocks the hot path.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fairyhunter13/agent-orchestrator/internal/domain"
	"github.com/fairyhunter13/agent-orchestrator/internal/observability"
)

const defaultBuffer = 256

// Logger fans audit events out to slog and, when configured, a durable
// store. Sink failures are logged and never propagate to emitters.
type Logger struct {
	log   *slog.Logger
	store domain.AuditStore

	events chan domain.AuditEvent
	done   chan struct{}

	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
}

// Option configures a Logger.
type Option func(*Logger)

// WithStore adds a durable sink alongside slog.
func WithStore(store domain.AuditStore) Option {
	return func(l *Logger) { l.store = store }
}

// WithBuffer overrides the event buffer size.
func WithBuffer(n int) Option {
	return func(l *Logger) {
		if n > 0 {
			l.events = make(chan domain.AuditEvent, n)
		}
	}
}

// NewLogger starts the drain goroutine. Callers must Close to flush.
func NewLogger(log *slog.Logger, opts ...Option) *Logger {
	if log == nil {
		log = slog.Default()
	}
	l := &Logger{
		log:    log,
		events: make(chan domain.AuditEvent, defaultBuffer),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	go l.drain()
	return l
}

// Emit queues the event. The timestamp is stamped and the correlation id is
// pulled from ctx when the event doesn't carry one. When the buffer is full
// or the logger is closed the event is written to slog synchronously so the
// trail still records it.
func (l *Logger) Emit(ctx context.Context, ev domain.AuditEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if ev.CorrelationID == "" {
		ev.CorrelationID = observability.CorrelationIDFromContext(ctx)
	}

	// The send happens under the same mutex that guards the channel close,
	// so a concurrent Close can never close l.events out from under it.
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		l.write(ev)
		return
	}
	select {
	case l.events <- ev:
		l.mu.Unlock()
	default:
		l.mu.Unlock()
		l.log.Warn("audit buffer full, writing event synchronously",
			"event_type", string(ev.EventType))
		l.write(ev)
	}
}

// Close stops accepting buffered emission and flushes the backlog. Emit
// remains safe to call afterwards (events go straight to the sinks).
func (l *Logger) Close() {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		close(l.events)
		l.mu.Unlock()
		<-l.done
	})
}

func (l *Logger) drain() {
	defer close(l.done)
	for ev := range l.events {
		l.write(ev)
	}
}

func (l *Logger) write(ev domain.AuditEvent) {
	attrs := []any{
		"event_type", string(ev.EventType),
		"description", ev.Description,
		"timestamp", ev.Timestamp,
	}
	if ev.CorrelationID != "" {
		attrs = append(attrs, "correlation_id", ev.CorrelationID)
	}
	if ev.Initiator != "" {
		attrs = append(attrs, "initiator", ev.Initiator)
	}
	if ev.Target != "" {
		attrs = append(attrs, "target", ev.Target)
	}
	if ev.Result != "" {
		attrs = append(attrs, "result", ev.Result)
	}
	if ev.DurationMs > 0 {
		attrs = append(attrs, "duration_ms", ev.DurationMs)
	}
	if ev.ErrorMessage != "" {
		attrs = append(attrs, "error_message", ev.ErrorMessage)
	}
	for k, v := range ev.Data {
		attrs = append(attrs, "data."+k, v)
	}
	l.log.Info("audit", attrs...)

	if l.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := l.store.Append(ctx, ev); err != nil {
			l.log.Error("audit store append failed",
				"event_type", string(ev.EventType), "error", err)
		}
	}
}
