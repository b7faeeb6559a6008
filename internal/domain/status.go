package domain

import "time"

// JobStatus is the closed set of lifecycle states.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusCancelled  JobStatus = "cancelled"
	// StatusRetried is transient: it records that a retry was scheduled.
	// The subsequent re-enqueue produces a fresh queued record under the
	// same jobId.
	StatusRetried    JobStatus = "retried"
	StatusDeadLetter JobStatus = "dead_letter"
)

// Terminal reports whether the status ends the job's lifecycle. The
// idempotency-key reservation is released when a job reaches a terminal
// status.
func (s JobStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusDeadLetter:
		return true
	}
	return false
}

// InFlight reports whether a job in this status still holds its
// idempotency-key reservation.
func (s JobStatus) InFlight() bool { return !s.Terminal() }

// JobAttempt is an append-only record of a single handler invocation.
type JobAttempt struct {
	AttemptNumber        int       `json:"attemptNumber"`
	StartedAt            time.Time `json:"startedAt"`
	CompletedAt          time.Time `json:"completedAt"`
	Succeeded            bool      `json:"succeeded"`
	ErrorMessage         string    `json:"errorMessage,omitempty"`
	ExceptionType        string    `json:"exceptionType,omitempty"`
	DurationMs           int64     `json:"durationMs"`
	DelayBeforeAttemptMs int64     `json:"delayBeforeAttemptMs"`
	BackoffStrategy      string    `json:"backoffStrategy,omitempty"`
}

// JobStatusRecord is the externally visible truth about a job. Records are
// replaced whole by StatusStore.Set; attempt append semantics are enforced
// by the caller.
type JobStatusRecord struct {
	JobID                string            `json:"jobId"`
	JobType              string            `json:"jobType"`
	Status               JobStatus         `json:"status"`
	CreatedAt            time.Time         `json:"createdAt"`
	StartedAt            *time.Time        `json:"startedAt,omitempty"`
	CompletedAt          *time.Time        `json:"completedAt,omitempty"`
	RetryCount           int               `json:"retryCount"`
	MaxRetries           int               `json:"maxRetries"`
	LastRetryAt          *time.Time        `json:"lastRetryAt,omitempty"`
	Source               string            `json:"source,omitempty"`
	ParentJobID          string            `json:"parentJobId,omitempty"`
	CorrelationID        string            `json:"correlationId,omitempty"`
	ProcessingDurationMs *int64            `json:"processingDurationMs,omitempty"`
	QueueWaitTimeMs      *int64            `json:"queueWaitTimeMs,omitempty"`
	ErrorMessage         string            `json:"errorMessage,omitempty"`
	Metadata             map[string]string `json:"metadata,omitempty"`
	ResultData           map[string]string `json:"resultData,omitempty"`
	IdempotencyKey       string            `json:"idempotencyKey,omitempty"`
	Attempts             []JobAttempt      `json:"attempts"`
}

// NewStatusRecord builds the initial queued record for a job.
func NewStatusRecord(j *Job) JobStatusRecord {
	return JobStatusRecord{
		JobID:          j.ID,
		JobType:        j.Type,
		Status:         StatusQueued,
		CreatedAt:      j.CreatedAt,
		RetryCount:     j.RetryCount,
		MaxRetries:     j.MaxRetries,
		Source:         j.Source(),
		ParentJobID:    j.Meta(MetaParentJobID),
		CorrelationID:  j.CorrelationID(),
		Metadata:       j.Metadata,
		IdempotencyKey: j.IdempotencyKey,
	}
}

// StatusFilter selects and pages status records.
type StatusFilter struct {
	Status JobStatus
	Type   string
	Source string
	Skip   int
	Take   int
}

// Paging bounds for StatusStore.List.
const (
	MaxPageSize         = 100
	MaxInternalPageSize = 1000
)

// Clamp normalizes Skip/Take into the allowed external paging bounds.
func (f StatusFilter) Clamp() StatusFilter {
	if f.Skip < 0 {
		f.Skip = 0
	}
	if f.Take <= 0 {
		f.Take = 20
	}
	if f.Take > MaxPageSize {
		f.Take = MaxPageSize
	}
	return f
}

// TypeMetrics aggregates counters for a single job type.
type TypeMetrics struct {
	TotalJobs       int     `json:"totalJobs"`
	QueueDepth      int     `json:"queueDepth"`
	ProcessingCount int     `json:"processingCount"`
	CompletedCount  int     `json:"completedCount"`
	FailedCount     int     `json:"failedCount"`
	CancelledCount  int     `json:"cancelledCount"`
	DeadLetterCount int     `json:"deadLetterCount"`
	AvgProcessingMs float64 `json:"averageProcessingDurationMs"`
	AvgQueueWaitMs  float64 `json:"averageQueueWaitTimeMs"`
	FailureRate     float64 `json:"failureRate"`
}

// JobMetrics aggregates counters across all status records.
type JobMetrics struct {
	TotalJobs       int                    `json:"totalJobs"`
	QueueDepth      int                    `json:"queueDepth"`
	ProcessingCount int                    `json:"processingCount"`
	CompletedCount  int                    `json:"completedCount"`
	FailedCount     int                    `json:"failedCount"`
	CancelledCount  int                    `json:"cancelledCount"`
	DeadLetterCount int                    `json:"deadLetterCount"`
	AvgProcessingMs float64                `json:"averageProcessingDurationMs"`
	AvgQueueWaitMs  float64                `json:"averageQueueWaitTimeMs"`
	FailureRate     float64                `json:"failureRate"`
	ByType          map[string]TypeMetrics `json:"byType,omitempty"`
}

// ComputeMetrics derives JobMetrics from a full record set. Both store
// implementations share this aggregation.
func ComputeMetrics(records []JobStatusRecord) JobMetrics {
	m := JobMetrics{ByType: make(map[string]TypeMetrics)}
	var procSum, waitSum float64
	var procN, waitN int
	typeProc := make(map[string]*[2]float64) // sum, count
	typeWait := make(map[string]*[2]float64)

	for i := range records {
		r := &records[i]
		m.TotalJobs++
		tm := m.ByType[r.JobType]
		tm.TotalJobs++
		switch r.Status {
		case StatusQueued, StatusRetried:
			m.QueueDepth++
			tm.QueueDepth++
		case StatusProcessing:
			m.ProcessingCount++
			tm.ProcessingCount++
		case StatusCompleted:
			m.CompletedCount++
			tm.CompletedCount++
		case StatusFailed:
			m.FailedCount++
			tm.FailedCount++
		case StatusCancelled:
			m.CancelledCount++
			tm.CancelledCount++
		case StatusDeadLetter:
			m.DeadLetterCount++
			tm.DeadLetterCount++
		}
		if r.ProcessingDurationMs != nil {
			procSum += float64(*r.ProcessingDurationMs)
			procN++
			acc := typeProc[r.JobType]
			if acc == nil {
				acc = &[2]float64{}
				typeProc[r.JobType] = acc
			}
			acc[0] += float64(*r.ProcessingDurationMs)
			acc[1]++
		}
		if r.QueueWaitTimeMs != nil {
			waitSum += float64(*r.QueueWaitTimeMs)
			waitN++
			acc := typeWait[r.JobType]
			if acc == nil {
				acc = &[2]float64{}
				typeWait[r.JobType] = acc
			}
			acc[0] += float64(*r.QueueWaitTimeMs)
			acc[1]++
		}
		m.ByType[r.JobType] = tm
	}

	if procN > 0 {
		m.AvgProcessingMs = procSum / float64(procN)
	}
	if waitN > 0 {
		m.AvgQueueWaitMs = waitSum / float64(waitN)
	}
	m.FailureRate = float64(m.FailedCount) / float64(max(m.TotalJobs, 1))

	for t, tm := range m.ByType {
		if acc := typeProc[t]; acc != nil && acc[1] > 0 {
			tm.AvgProcessingMs = acc[0] / acc[1]
		}
		if acc := typeWait[t]; acc != nil && acc[1] > 0 {
			tm.AvgQueueWaitMs = acc[0] / acc[1]
		}
		tm.FailureRate = float64(tm.FailedCount) / float64(max(tm.TotalJobs, 1))
		m.ByType[t] = tm
	}
	return m
}

// Match reports whether a record passes the filter (paging excluded).
func (f StatusFilter) Match(r *JobStatusRecord) bool {
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if f.Type != "" && r.JobType != f.Type {
		return false
	}
	if f.Source != "" && r.Source != f.Source {
		return false
	}
	return true
}
