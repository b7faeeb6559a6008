package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/agent-orchestrator/internal/domain"
)

// AuditStore appends audit events to the audit_logs table.
type AuditStore struct{ Pool PgxPool }

// NewAuditStore constructs an AuditStore with the given pool.
func NewAuditStore(p PgxPool) *AuditStore { return &AuditStore{Pool: p} }

// Append inserts one audit event.
func (s *AuditStore) Append(ctx context.Context, ev domain.AuditEvent) error {
	tracer := otel.Tracer("repo.audit")
	ctx, span := tracer.Start(ctx, "audit.Append")
	defer span.End()
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return fmt.Errorf("op=audit.append: marshal data: %w", err)
	}
	q := `INSERT INTO audit_logs (event_type, ts, correlation_id, description, initiator, target, result, duration_ms, error_message, data)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`
	_, err = s.Pool.Exec(ctx, q, ev.EventType, ev.Timestamp, ev.CorrelationID, ev.Description,
		ev.Initiator, ev.Target, ev.Result, ev.DurationMs, ev.ErrorMessage, data)
	if err != nil {
		return fmt.Errorf("op=audit.append: %w", err)
	}
	return nil
}

// DeleteOlderThan removes events with a timestamp before cutoff and returns
// the number deleted.
func (s *AuditStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tracer := otel.Tracer("repo.audit")
	ctx, span := tracer.Start(ctx, "audit.DeleteOlderThan")
	defer span.End()
	tag, err := s.Pool.Exec(ctx, `DELETE FROM audit_logs WHERE ts < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("op=audit.delete_older_than: %w", err)
	}
	return tag.RowsAffected(), nil
}
