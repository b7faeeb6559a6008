package memory

import (
	"context"
	"sync"
	"time"

	"github.com/fairyhunter13/agent-orchestrator/internal/domain"
)

// AuditStore keeps audit events in an append-only slice. Retention still
// applies so a long-lived in-memory process doesn't grow without bound.
type AuditStore struct {
	mu     sync.RWMutex
	events []domain.AuditEvent
}

// NewAuditStore constructs an empty AuditStore.
func NewAuditStore() *AuditStore {
	return &AuditStore{}
}

// Append stores the event.
func (s *AuditStore) Append(_ context.Context, ev domain.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

// DeleteOlderThan removes events with timestamp before cutoff and returns
// the number deleted.
func (s *AuditStore) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.events[:0]
	var deleted int64
	for _, ev := range s.events {
		if ev.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, ev)
	}
	s.events = kept
	return deleted, nil
}

// Events returns a snapshot of the stored events, oldest first.
func (s *AuditStore) Events() []domain.AuditEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.AuditEvent(nil), s.events...)
}
