// Package usecase contains application business logic services.
package usecase

import "sync"

// Deduper enforces at-most-one-in-flight per idempotency key. It keeps the
// key→job and job→key mappings as a bijection updated under one lock, so a
// reservation and its reverse index can never diverge.
type Deduper struct {
	mu    sync.Mutex
	byKey map[string]string
	byJob map[string]string
}

// NewDeduper constructs an empty Deduper.
func NewDeduper() *Deduper {
	return &Deduper{
		byKey: make(map[string]string),
		byJob: make(map[string]string),
	}
}

// TryReserve claims key for jobID. When the key is free (or empty, which
// disables dedup for the job) it returns (jobID, true). When another job
// holds the key it returns (holderJobID, false) and changes nothing.
//
// Re-reserving under the same jobID releases the job's previous key first,
// keeping the bijection intact.
func (d *Deduper) TryReserve(key, jobID string) (string, bool) {
	if key == "" {
		return jobID, true
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if holder, ok := d.byKey[key]; ok {
		return holder, false
	}
	if old, ok := d.byJob[jobID]; ok {
		delete(d.byKey, old)
	}
	d.byKey[key] = jobID
	d.byJob[jobID] = key
	return jobID, true
}

// Release drops the reservation held by jobID, if any. Safe to call for jobs
// that never reserved a key.
func (d *Deduper) Release(jobID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	key, ok := d.byJob[jobID]
	if !ok {
		return
	}
	delete(d.byJob, jobID)
	if d.byKey[key] == jobID {
		delete(d.byKey, key)
	}
}

// InFlight returns the job currently holding key, if any.
func (d *Deduper) InFlight(key string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	jobID, ok := d.byKey[key]
	return jobID, ok
}
