package usecase

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/fairyhunter13/agent-orchestrator/internal/domain"
	"github.com/fairyhunter13/agent-orchestrator/internal/observability"
)

// HealthState is the per-component and aggregate health classification.
type HealthState string

const (
	Healthy   HealthState = "healthy"
	Degraded  HealthState = "degraded"
	Unhealthy HealthState = "unhealthy"
)

// severity orders states for worst-of aggregation.
func severity(s HealthState) int {
	switch s {
	case Unhealthy:
		return 2
	case Degraded:
		return 1
	}
	return 0
}

// ComponentHealth is a single probed component.
type ComponentHealth struct {
	Name    string      `json:"name"`
	Status  HealthState `json:"status"`
	Message string      `json:"message,omitempty"`
}

// HealthReport is the aggregate of all component probes.
type HealthReport struct {
	Status     HealthState       `json:"status"`
	CheckedAt  time.Time         `json:"checkedAt"`
	Components []ComponentHealth `json:"components"`
}

// HTTPStatus maps the aggregate state to a response code. Degraded still
// serves traffic, so it reports 200 like Healthy; only Unhealthy is 503.
func (r HealthReport) HTTPStatus() int {
	if r.Status == Unhealthy {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

// Queue depth and failure-rate thresholds for classification.
const (
	queueDepthHigh       = 1000
	queueDepthElevated   = 500
	failureRateUnhealthy = 0.5
	failureRateDegraded  = 0.2
)

// HealthService probes the queue backlog, the processing failure rate, and
// the database when one is configured.
type HealthService struct {
	Queue    domain.Queue
	Statuses domain.StatusStore
	// PingDB is nil when the service runs purely in-memory; the database
	// component is then omitted from the report.
	PingDB func(ctx context.Context) error
}

// NewHealthService constructs a HealthService.
func NewHealthService(q domain.Queue, st domain.StatusStore, pingDB func(ctx context.Context) error) HealthService {
	return HealthService{Queue: q, Statuses: st, PingDB: pingDB}
}

// Check runs all component probes and aggregates worst-of.
func (s HealthService) Check(ctx context.Context) HealthReport {
	report := HealthReport{Status: Healthy, CheckedAt: time.Now().UTC()}

	if s.PingDB != nil {
		c := ComponentHealth{Name: "database", Status: Healthy}
		if err := s.PingDB(ctx); err != nil {
			c.Status = Unhealthy
			c.Message = err.Error()
		}
		report.Components = append(report.Components, c)
	}

	depth := s.Queue.Len()
	qc := ComponentHealth{Name: "job_queue", Status: Healthy, Message: fmt.Sprintf("depth=%d", depth)}
	if depth > queueDepthHigh {
		qc.Status = Degraded
		qc.Message = fmt.Sprintf("queue backlog high: depth=%d", depth)
	}
	report.Components = append(report.Components, qc)

	pc := ComponentHealth{Name: "job_processing", Status: Healthy}
	metrics, err := s.Statuses.Metrics(ctx)
	switch {
	case err != nil:
		pc.Status = Degraded
		pc.Message = fmt.Sprintf("metrics unavailable: %v", err)
	case metrics.FailureRate > failureRateUnhealthy:
		pc.Status = Unhealthy
		pc.Message = fmt.Sprintf("failure rate %.2f", metrics.FailureRate)
	case metrics.FailureRate > failureRateDegraded || metrics.QueueDepth > queueDepthElevated:
		pc.Status = Degraded
		pc.Message = fmt.Sprintf("failure rate %.2f, depth %d", metrics.FailureRate, metrics.QueueDepth)
	}
	report.Components = append(report.Components, pc)

	for _, c := range report.Components {
		if severity(c.Status) > severity(report.Status) {
			report.Status = c.Status
		}
	}
	if report.Status != Healthy {
		observability.LoggerFromContext(ctx).Warn("health check not healthy", "status", string(report.Status))
	}
	return report
}
