package httpserver_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/agent-orchestrator/internal/adapter/httpserver"
	queuemem "github.com/fairyhunter13/agent-orchestrator/internal/adapter/queue/memory"
	repomem "github.com/fairyhunter13/agent-orchestrator/internal/adapter/repo/memory"
	"github.com/fairyhunter13/agent-orchestrator/internal/domain"
	"github.com/fairyhunter13/agent-orchestrator/internal/usecase"
)

type stubHandler struct{ typ string }

func (h stubHandler) Type() string { return h.typ }
func (h stubHandler) Execute(context.Context, *domain.Job) domain.JobResult {
	return domain.Succeed()
}

type serverEnv struct {
	statuses *repomem.StatusStore
	queue    *queuemem.Queue
	disp     *usecase.Dispatcher
	srv      *httpserver.Server
	router   chi.Router
}

func newServerEnv(t *testing.T, pingDB func(context.Context) error) *serverEnv {
	t.Helper()
	env := &serverEnv{
		statuses: repomem.NewStatusStore(),
		queue:    queuemem.New(0, true),
	}
	t.Cleanup(env.queue.Close)
	env.disp = usecase.NewDispatcher(env.queue, env.statuses, nil)
	env.disp.Register(stubHandler{typ: "GeneratePlan"})

	tasks := repomem.NewTaskRepository()
	ingress := usecase.NewIngressService(tasks, usecase.NewDeduper(), env.disp, nil, domain.DefaultRetryPolicy())
	health := usecase.NewHealthService(env.queue, env.statuses, pingDB)
	env.srv = httpserver.NewServer(env.statuses, health, ingress, env.disp)

	r := chi.NewRouter()
	r.Get("/health", env.srv.HealthHandler())
	r.Get("/health/detailed", env.srv.HealthDetailedHandler())
	r.Get("/jobs", env.srv.JobListHandler())
	r.Get("/jobs/metrics", env.srv.JobMetricsHandler())
	r.Get("/jobs/dead-letter", env.srv.DeadLetterHandler())
	r.Get("/jobs/{jobID}/status", env.srv.JobStatusHandler())
	r.Post("/jobs/{jobID}/cancel", env.srv.JobCancelHandler())
	r.Post("/v1/events", env.srv.EventsHandler())
	env.router = r
	return env
}

func (e *serverEnv) do(t *testing.T, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func seedStatus(t *testing.T, env *serverEnv, id string, status domain.JobStatus, created time.Time) {
	t.Helper()
	require.NoError(t, env.statuses.Set(context.Background(), domain.JobStatusRecord{
		JobID:     id,
		JobType:   "GeneratePlan",
		Status:    status,
		CreatedAt: created,
	}))
}

func TestHealthHandler(t *testing.T) {
	env := newServerEnv(t, nil)
	rr := env.do(t, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestHealthHandler_StaysAliveWhenDatabaseDown(t *testing.T) {
	env := newServerEnv(t, func(context.Context) error { return errors.New("down") })
	rr := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rr.Code, "liveness ignores dependency state")
}

func TestHealthDetailedHandler_UnhealthyDatabaseIs503(t *testing.T) {
	env := newServerEnv(t, func(context.Context) error { return errors.New("down") })
	rr := env.do(t, http.MethodGet, "/health/detailed", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestHealthDetailedHandler_ListsComponents(t *testing.T) {
	env := newServerEnv(t, func(context.Context) error { return nil })
	rr := env.do(t, http.MethodGet, "/health/detailed", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var report usecase.HealthReport
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	names := make([]string, 0, len(report.Components))
	for _, c := range report.Components {
		names = append(names, c.Name)
	}
	assert.Contains(t, names, "database")
	assert.Contains(t, names, "job_queue")
	assert.Contains(t, names, "job_processing")
}

func TestJobStatusHandler(t *testing.T) {
	env := newServerEnv(t, nil)
	seedStatus(t, env, "job-1", domain.StatusCompleted, time.Now().UTC())

	rr := env.do(t, http.MethodGet, "/jobs/job-1/status", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var rec domain.JobStatusRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	assert.Equal(t, domain.StatusCompleted, rec.Status)
}

func TestJobStatusHandler_NotFound(t *testing.T) {
	env := newServerEnv(t, nil)
	rr := env.do(t, http.MethodGet, "/jobs/missing/status", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "NOT_FOUND")
}

func TestJobListHandler_FiltersAndPages(t *testing.T) {
	env := newServerEnv(t, nil)
	base := time.Now().UTC()
	seedStatus(t, env, "job-a", domain.StatusCompleted, base.Add(-3*time.Second))
	seedStatus(t, env, "job-b", domain.StatusFailed, base.Add(-2*time.Second))
	seedStatus(t, env, "job-c", domain.StatusCompleted, base.Add(-time.Second))

	rr := env.do(t, http.MethodGet, "/jobs?status=completed", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Jobs []domain.JobStatusRecord `json:"jobs"`
		Skip int                      `json:"skip"`
		Take int                      `json:"take"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Jobs, 2)
	// newest first
	assert.Equal(t, "job-c", body.Jobs[0].JobID)
	assert.Equal(t, "job-a", body.Jobs[1].JobID)

	rr = env.do(t, http.MethodGet, "/jobs?skip=1&take=1", "")
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Jobs, 1)
	assert.Equal(t, "job-b", body.Jobs[0].JobID)
	assert.Equal(t, 1, body.Skip)
}

func TestJobListHandler_ClampsTake(t *testing.T) {
	env := newServerEnv(t, nil)
	rr := env.do(t, http.MethodGet, "/jobs?take=9999", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Take int `json:"take"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, domain.MaxPageSize, body.Take)
}

func TestDeadLetterHandler(t *testing.T) {
	env := newServerEnv(t, nil)
	seedStatus(t, env, "job-dead", domain.StatusDeadLetter, time.Now().UTC())
	seedStatus(t, env, "job-live", domain.StatusProcessing, time.Now().UTC())

	rr := env.do(t, http.MethodGet, "/jobs/dead-letter", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Jobs []domain.JobStatusRecord `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Jobs, 1)
	assert.Equal(t, "job-dead", body.Jobs[0].JobID)
}

func TestJobMetricsHandler(t *testing.T) {
	env := newServerEnv(t, nil)
	seedStatus(t, env, "job-1", domain.StatusCompleted, time.Now().UTC())
	seedStatus(t, env, "job-2", domain.StatusFailed, time.Now().UTC())

	rr := env.do(t, http.MethodGet, "/jobs/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var m domain.JobMetrics
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &m))
	assert.Equal(t, 2, m.TotalJobs)
	assert.Equal(t, 1, m.FailedCount)
}

func TestJobCancelHandler(t *testing.T) {
	env := newServerEnv(t, nil)

	rr := env.do(t, http.MethodPost, "/jobs/job-1/cancel", "")
	assert.Equal(t, http.StatusNotFound, rr.Code, "nothing executing under that id")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	env.disp.RegisterCancel("job-1", cancel)
	defer env.disp.UnregisterCancel("job-1")

	rr = env.do(t, http.MethodPost, "/jobs/job-1/cancel", "")
	require.Equal(t, http.StatusAccepted, rr.Code)
	assert.Contains(t, rr.Body.String(), "cancelling")
	select {
	case <-ctx.Done():
	default:
		t.Fatal("cancel did not fire the job context")
	}
}

func validEvent() string {
	return `{"action":"labeled","installationId":42,"repositoryOwner":"octo","repositoryName":"repo","issueNumber":7,"issueTitle":"fix the flake","priority":5}`
}

func TestEventsHandler_Accepts(t *testing.T) {
	env := newServerEnv(t, nil)
	rr := env.do(t, http.MethodPost, "/v1/events", validEvent())
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())

	var res usecase.AcceptResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.NotEmpty(t, res.JobID)
	assert.Equal(t, "octo/repo/issues/7", res.TaskID)
	assert.NotEmpty(t, res.CorrelationID)
	assert.False(t, res.Duplicate)
	assert.Equal(t, 1, env.queue.Len())
}

func TestEventsHandler_DuplicateIs409(t *testing.T) {
	env := newServerEnv(t, nil)
	require.Equal(t, http.StatusAccepted, env.do(t, http.MethodPost, "/v1/events", validEvent()).Code)

	rr := env.do(t, http.MethodPost, "/v1/events", validEvent())
	require.Equal(t, http.StatusConflict, rr.Code)
	var res usecase.AcceptResult
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &res))
	assert.True(t, res.Duplicate)
	assert.Equal(t, 1, env.queue.Len(), "duplicate does not enqueue")
}

func TestEventsHandler_BadJSON(t *testing.T) {
	env := newServerEnv(t, nil)
	rr := env.do(t, http.MethodPost, "/v1/events", "{not json")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "INVALID_ARGUMENT")
}

func TestEventsHandler_ValidationFailure(t *testing.T) {
	env := newServerEnv(t, nil)
	rr := env.do(t, http.MethodPost, "/v1/events", `{"action":"labeled"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "INVALID_ARGUMENT")
}
