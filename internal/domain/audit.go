package domain

import "time"

// AuditEventType enumerates the lifecycle event kinds emitted to the audit
// trail.
type AuditEventType string

const (
	AuditWebhookReceived     AuditEventType = "WebhookReceived"
	AuditWebhookValidation   AuditEventType = "WebhookValidation"
	AuditTaskStateTransition AuditEventType = "TaskStateTransition"
	AuditJobStateTransition  AuditEventType = "JobStateTransition"
	AuditContainerOperation  AuditEventType = "ContainerOperation"
	AuditFileOperation       AuditEventType = "FileOperation"
	AuditPlanGeneration      AuditEventType = "PlanGeneration"
	AuditPlanExecution       AuditEventType = "PlanExecution"
	AuditGitHubAPICall       AuditEventType = "GitHubApiCall"
)

// AuditEvent is one structured entry in the compliance trail. The stream
// must never be silently dropped: emission failures are reported on a
// secondary channel (slog) but do not propagate to callers.
type AuditEvent struct {
	EventType     AuditEventType    `json:"eventType"`
	Timestamp     time.Time         `json:"timestamp"`
	CorrelationID string            `json:"correlationId,omitempty"`
	Description   string            `json:"description"`
	Initiator     string            `json:"initiator,omitempty"`
	Target        string            `json:"target,omitempty"`
	Result        string            `json:"result,omitempty"`
	DurationMs    int64             `json:"durationMs,omitempty"`
	ErrorMessage  string            `json:"errorMessage,omitempty"`
	Data          map[string]string `json:"data,omitempty"`
}
