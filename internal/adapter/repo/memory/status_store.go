// Package memory provides in-process implementations of the storage ports,
// used when no database is configured.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fairyhunter13/agent-orchestrator/internal/domain"
)

// StatusStore keeps job status records in a mutex-guarded map. Records are
// copied on the way in and out so callers can't mutate shared state.
type StatusStore struct {
	mu      sync.RWMutex
	records map[string]domain.JobStatusRecord
}

// NewStatusStore constructs an empty StatusStore.
func NewStatusStore() *StatusStore {
	return &StatusStore{records: make(map[string]domain.JobStatusRecord)}
}

// Set upserts the record. A write that would move an existing terminal
// record back to a non-terminal status is rejected; terminal states are
// final for a given jobId.
func (s *StatusStore) Set(_ context.Context, rec domain.JobStatusRecord) error {
	if rec.JobID == "" {
		return fmt.Errorf("op=memory.StatusStore.Set: empty jobId: %w", domain.ErrInvalidArgument)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.records[rec.JobID]; ok && prev.Status.Terminal() && !rec.Status.Terminal() {
		return fmt.Errorf("op=memory.StatusStore.Set: job %s is %s: %w", rec.JobID, prev.Status, domain.ErrTerminalStatus)
	}
	s.records[rec.JobID] = cloneRecord(rec)
	return nil
}

// Get returns the record for jobID.
func (s *StatusStore) Get(_ context.Context, jobID string) (domain.JobStatusRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[jobID]
	if !ok {
		return domain.JobStatusRecord{}, fmt.Errorf("op=memory.StatusStore.Get: job %s: %w", jobID, domain.ErrNotFound)
	}
	return cloneRecord(rec), nil
}

// Delete removes the record for jobID. Missing records are not an error.
func (s *StatusStore) Delete(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, jobID)
	return nil
}

// List returns matching records ordered by createdAt descending, paged by
// Skip/Take. Take is bounded by the internal page cap.
func (s *StatusStore) List(_ context.Context, f domain.StatusFilter) ([]domain.JobStatusRecord, error) {
	if f.Skip < 0 {
		f.Skip = 0
	}
	if f.Take <= 0 {
		f.Take = 20
	}
	if f.Take > domain.MaxInternalPageSize {
		f.Take = domain.MaxInternalPageSize
	}

	s.mu.RLock()
	matched := make([]domain.JobStatusRecord, 0, len(s.records))
	for _, rec := range s.records {
		if f.Match(&rec) {
			matched = append(matched, rec)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].JobID < matched[j].JobID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if f.Skip >= len(matched) {
		return []domain.JobStatusRecord{}, nil
	}
	matched = matched[f.Skip:]
	if len(matched) > f.Take {
		matched = matched[:f.Take]
	}
	out := make([]domain.JobStatusRecord, len(matched))
	for i := range matched {
		out[i] = cloneRecord(matched[i])
	}
	return out, nil
}

// Metrics aggregates over the full record set.
func (s *StatusStore) Metrics(_ context.Context) (domain.JobMetrics, error) {
	s.mu.RLock()
	all := make([]domain.JobStatusRecord, 0, len(s.records))
	for _, rec := range s.records {
		all = append(all, rec)
	}
	s.mu.RUnlock()
	return domain.ComputeMetrics(all), nil
}

func cloneRecord(rec domain.JobStatusRecord) domain.JobStatusRecord {
	out := rec
	if rec.Attempts != nil {
		out.Attempts = append([]domain.JobAttempt(nil), rec.Attempts...)
	}
	if rec.Metadata != nil {
		out.Metadata = make(map[string]string, len(rec.Metadata))
		for k, v := range rec.Metadata {
			out.Metadata[k] = v
		}
	}
	if rec.ResultData != nil {
		out.ResultData = make(map[string]string, len(rec.ResultData))
		for k, v := range rec.ResultData {
			out.ResultData[k] = v
		}
	}
	return out
}
