package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/agent-orchestrator/internal/domain"
)

// StatusStore persists job status records in the job_status table. Terminal
// statuses are enforced in the upsert itself so concurrent writers cannot
// resurrect a finished job.
type StatusStore struct{ Pool PgxPool }

// NewStatusStore constructs a StatusStore with the given pool.
func NewStatusStore(p PgxPool) *StatusStore { return &StatusStore{Pool: p} }

const statusColumns = `job_id, job_type, status, created_at, started_at, completed_at,
	retry_count, max_retries, last_retry_at, source, parent_job_id, correlation_id,
	processing_duration_ms, queue_wait_ms, error_message, metadata, result_data,
	idempotency_key, attempts`

// Set upserts the record whole. The ON CONFLICT guard rejects writes that
// would move a terminal record back to a non-terminal status; zero rows
// affected means the stored record was terminal.
func (s *StatusStore) Set(ctx context.Context, rec domain.JobStatusRecord) error {
	tracer := otel.Tracer("repo.status")
	ctx, span := tracer.Start(ctx, "status.Set")
	defer span.End()
	if rec.JobID == "" {
		return fmt.Errorf("op=status.set: empty jobId: %w", domain.ErrInvalidArgument)
	}
	attempts, err := json.Marshal(rec.Attempts)
	if err != nil {
		return fmt.Errorf("op=status.set: marshal attempts: %w", err)
	}
	metadata, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("op=status.set: marshal metadata: %w", err)
	}
	resultData, err := json.Marshal(rec.ResultData)
	if err != nil {
		return fmt.Errorf("op=status.set: marshal resultData: %w", err)
	}
	q := `INSERT INTO job_status (` + statusColumns + `)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)
		ON CONFLICT (job_id) DO UPDATE SET
			job_type=excluded.job_type, status=excluded.status, created_at=excluded.created_at,
			started_at=excluded.started_at, completed_at=excluded.completed_at,
			retry_count=excluded.retry_count, max_retries=excluded.max_retries,
			last_retry_at=excluded.last_retry_at, source=excluded.source,
			parent_job_id=excluded.parent_job_id, correlation_id=excluded.correlation_id,
			processing_duration_ms=excluded.processing_duration_ms, queue_wait_ms=excluded.queue_wait_ms,
			error_message=excluded.error_message, metadata=excluded.metadata,
			result_data=excluded.result_data, idempotency_key=excluded.idempotency_key,
			attempts=excluded.attempts
		WHERE job_status.status NOT IN ('completed','failed','cancelled','dead_letter')
			OR excluded.status IN ('completed','failed','cancelled','dead_letter')`
	tag, err := s.Pool.Exec(ctx, q,
		rec.JobID, rec.JobType, rec.Status, rec.CreatedAt, rec.StartedAt, rec.CompletedAt,
		rec.RetryCount, rec.MaxRetries, rec.LastRetryAt, rec.Source, rec.ParentJobID, rec.CorrelationID,
		rec.ProcessingDurationMs, rec.QueueWaitTimeMs, rec.ErrorMessage, metadata, resultData,
		rec.IdempotencyKey, attempts)
	if err != nil {
		return fmt.Errorf("op=status.set: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=status.set: job %s: %w", rec.JobID, domain.ErrTerminalStatus)
	}
	return nil
}

// Get loads the record for jobID.
func (s *StatusStore) Get(ctx context.Context, jobID string) (domain.JobStatusRecord, error) {
	tracer := otel.Tracer("repo.status")
	ctx, span := tracer.Start(ctx, "status.Get")
	defer span.End()
	q := `SELECT ` + statusColumns + ` FROM job_status WHERE job_id=$1`
	rec, err := scanStatusRecord(s.Pool.QueryRow(ctx, q, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.JobStatusRecord{}, fmt.Errorf("op=status.get: job %s: %w", jobID, domain.ErrNotFound)
		}
		return domain.JobStatusRecord{}, fmt.Errorf("op=status.get: %w", err)
	}
	return rec, nil
}

// Delete removes the record for jobID. Missing records are not an error.
func (s *StatusStore) Delete(ctx context.Context, jobID string) error {
	tracer := otel.Tracer("repo.status")
	ctx, span := tracer.Start(ctx, "status.Delete")
	defer span.End()
	if _, err := s.Pool.Exec(ctx, `DELETE FROM job_status WHERE job_id=$1`, jobID); err != nil {
		return fmt.Errorf("op=status.delete: %w", err)
	}
	return nil
}

// List returns matching records ordered by createdAt descending, paged by
// Skip/Take. Take is bounded by the internal page cap.
func (s *StatusStore) List(ctx context.Context, f domain.StatusFilter) ([]domain.JobStatusRecord, error) {
	tracer := otel.Tracer("repo.status")
	ctx, span := tracer.Start(ctx, "status.List")
	defer span.End()
	if f.Skip < 0 {
		f.Skip = 0
	}
	if f.Take <= 0 {
		f.Take = 20
	}
	if f.Take > domain.MaxInternalPageSize {
		f.Take = domain.MaxInternalPageSize
	}

	var where []string
	var args []any
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, fmt.Sprintf("status=$%d", len(args)))
	}
	if f.Type != "" {
		args = append(args, f.Type)
		where = append(where, fmt.Sprintf("job_type=$%d", len(args)))
	}
	if f.Source != "" {
		args = append(args, f.Source)
		where = append(where, fmt.Sprintf("source=$%d", len(args)))
	}
	q := `SELECT ` + statusColumns + ` FROM job_status`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, f.Take)
	q += fmt.Sprintf(" ORDER BY created_at DESC, job_id LIMIT $%d", len(args))
	args = append(args, f.Skip)
	q += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := s.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("op=status.list: %w", err)
	}
	defer rows.Close()
	out := []domain.JobStatusRecord{}
	for rows.Next() {
		rec, err := scanStatusRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("op=status.list: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=status.list: %w", err)
	}
	return out, nil
}

// Metrics aggregates over the full record set. Only the columns the
// aggregation reads are fetched.
func (s *StatusStore) Metrics(ctx context.Context) (domain.JobMetrics, error) {
	tracer := otel.Tracer("repo.status")
	ctx, span := tracer.Start(ctx, "status.Metrics")
	defer span.End()
	q := `SELECT job_type, status, processing_duration_ms, queue_wait_ms FROM job_status`
	rows, err := s.Pool.Query(ctx, q)
	if err != nil {
		return domain.JobMetrics{}, fmt.Errorf("op=status.metrics: %w", err)
	}
	defer rows.Close()
	var all []domain.JobStatusRecord
	for rows.Next() {
		var rec domain.JobStatusRecord
		if err := rows.Scan(&rec.JobType, &rec.Status, &rec.ProcessingDurationMs, &rec.QueueWaitTimeMs); err != nil {
			return domain.JobMetrics{}, fmt.Errorf("op=status.metrics: %w", err)
		}
		all = append(all, rec)
	}
	if err := rows.Err(); err != nil {
		return domain.JobMetrics{}, fmt.Errorf("op=status.metrics: %w", err)
	}
	return domain.ComputeMetrics(all), nil
}

func scanStatusRecord(row pgx.Row) (domain.JobStatusRecord, error) {
	var rec domain.JobStatusRecord
	var metadata, resultData, attempts []byte
	err := row.Scan(
		&rec.JobID, &rec.JobType, &rec.Status, &rec.CreatedAt, &rec.StartedAt, &rec.CompletedAt,
		&rec.RetryCount, &rec.MaxRetries, &rec.LastRetryAt, &rec.Source, &rec.ParentJobID, &rec.CorrelationID,
		&rec.ProcessingDurationMs, &rec.QueueWaitTimeMs, &rec.ErrorMessage, &metadata, &resultData,
		&rec.IdempotencyKey, &attempts,
	)
	if err != nil {
		return domain.JobStatusRecord{}, err
	}
	if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
		return domain.JobStatusRecord{}, fmt.Errorf("unmarshal metadata: %w", err)
	}
	if err := json.Unmarshal(resultData, &rec.ResultData); err != nil {
		return domain.JobStatusRecord{}, fmt.Errorf("unmarshal resultData: %w", err)
	}
	if err := json.Unmarshal(attempts, &rec.Attempts); err != nil {
		return domain.JobStatusRecord{}, fmt.Errorf("unmarshal attempts: %w", err)
	}
	return rec, nil
}
