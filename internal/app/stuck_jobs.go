package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/agent-orchestrator/internal/domain"
	"github.com/fairyhunter13/agent-orchestrator/internal/usecase"
)

// StuckJobSweeper fails status records left in processing longer than the
// maximum age. With a durable status store a crash can strand records in
// processing with no worker attached; the sweeper is the recovery path.
type StuckJobSweeper struct {
	statuses         domain.StatusStore
	dedup            *usecase.Deduper
	audit            usecase.Auditor
	maxProcessingAge time.Duration
	interval         time.Duration
}

// NewStuckJobSweeper constructs a sweeper. Non-positive durations fall back
// to 3 minutes of age and a 1 minute interval.
func NewStuckJobSweeper(statuses domain.StatusStore, dedup *usecase.Deduper, audit usecase.Auditor, maxProcessingAge, interval time.Duration) *StuckJobSweeper {
	if statuses == nil {
		return nil
	}
	if audit == nil {
		audit = usecase.NopAuditor{}
	}
	if maxProcessingAge <= 0 {
		maxProcessingAge = 3 * time.Minute
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &StuckJobSweeper{
		statuses:         statuses,
		dedup:            dedup,
		audit:            audit,
		maxProcessingAge: maxProcessingAge,
		interval:         interval,
	}
}

// Run sweeps once immediately and then on every tick until ctx is cancelled.
func (s *StuckJobSweeper) Run(ctx context.Context) {
	if s == nil || s.statuses == nil {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweepOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("stuck job sweeper stopping")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *StuckJobSweeper) sweepOnce(ctx context.Context) {
	tracer := otel.Tracer("jobs.sweeper")
	ctx, span := tracer.Start(ctx, "StuckJobSweeper.sweepOnce")
	defer span.End()

	cutoff := time.Now().Add(-s.maxProcessingAge)
	const pageSize = 100
	span.SetAttributes(
		attribute.Int("jobs.page_size", pageSize),
		attribute.Float64("jobs.max_processing_age_seconds", s.maxProcessingAge.Seconds()),
	)

	totalChecked := 0
	totalMarkedFailed := 0

	for offset := 0; ; {
		recs, err := s.statuses.List(ctx, domain.StatusFilter{
			Status: domain.StatusProcessing,
			Skip:   offset,
			Take:   pageSize,
		})
		if err != nil {
			span.RecordError(err)
			slog.Error("stuck job sweep failed to list records", slog.Any("error", err))
			return
		}
		totalChecked += len(recs)
		if len(recs) == 0 {
			break
		}

		marked := 0
		for i := range recs {
			rec := recs[i]
			started := rec.CreatedAt
			if rec.StartedAt != nil {
				started = *rec.StartedAt
			}
			if !started.Before(cutoff) {
				continue
			}
			if s.markFailed(ctx, rec) {
				marked++
			}
		}

		totalMarkedFailed += marked
		if len(recs) < pageSize {
			break
		}
		// failed records drop out of the processing filter, so only the
		// survivors shift the next page
		offset += len(recs) - marked
	}

	span.SetAttributes(
		attribute.Int("jobs.total_checked", totalChecked),
		attribute.Int("jobs.total_marked_failed", totalMarkedFailed),
	)
}

func (s *StuckJobSweeper) markFailed(ctx context.Context, rec domain.JobStatusRecord) bool {
	tracer := otel.Tracer("jobs.sweeper")
	ctx, span := tracer.Start(ctx, "StuckJobSweeper.markFailed")
	defer span.End()
	span.SetAttributes(
		attribute.String("job.id", rec.JobID),
		attribute.String("job.type", rec.JobType),
	)

	now := time.Now().UTC()
	rec.Status = domain.StatusFailed
	rec.CompletedAt = &now
	rec.ErrorMessage = fmt.Sprintf("job processing exceeded maximum age %v; marked failed by sweeper", s.maxProcessingAge)
	if err := s.statuses.Set(ctx, rec); err != nil {
		span.RecordError(err)
		slog.Error("stuck job sweep failed to update status", slog.String("job_id", rec.JobID), slog.Any("error", err))
		return false
	}
	if s.dedup != nil {
		s.dedup.Release(rec.JobID)
	}
	s.audit.Emit(ctx, domain.AuditEvent{
		EventType:     domain.AuditJobStateTransition,
		CorrelationID: rec.CorrelationID,
		Description:   "JobFailedBySweeper",
		Target:        rec.JobID,
		Result:        "failure",
		ErrorMessage:  rec.ErrorMessage,
	})
	return true
}
