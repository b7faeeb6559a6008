package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/fairyhunter13/agent-orchestrator/internal/domain"
)

// RetentionSweeper deletes audit events older than the retention window.
// It works against the AuditStore port, so both the in-memory and the
// PostgreSQL store get the same retention behavior.
type RetentionSweeper struct {
	Store         domain.AuditStore
	RetentionDays int
}

// NewRetentionSweeper constructs a sweeper. Non-positive retention falls
// back to 90 days.
func NewRetentionSweeper(store domain.AuditStore, retentionDays int) *RetentionSweeper {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	return &RetentionSweeper{Store: store, RetentionDays: retentionDays}
}

// Sweep deletes events older than the retention cutoff and returns the
// number deleted.
func (s *RetentionSweeper) Sweep(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.RetentionDays)
	deleted, err := s.Store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	slog.Info("audit retention sweep completed",
		slog.Int64("deleted_events", deleted),
		slog.Time("cutoff", cutoff),
	)
	return deleted, nil
}

// RunPeriodic sweeps once immediately and then on every tick until ctx is
// cancelled.
func (s *RetentionSweeper) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if _, err := s.Sweep(ctx); err != nil {
		slog.Error("initial audit sweep failed", slog.Any("error", err))
	}
	for {
		select {
		case <-ctx.Done():
			slog.Info("audit retention sweeper stopping")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				slog.Error("periodic audit sweep failed", slog.Any("error", err))
			}
		}
	}
}
