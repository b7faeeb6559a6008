package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/agent-orchestrator/internal/domain"
	"github.com/fairyhunter13/agent-orchestrator/internal/usecase"
)

// Server bundles the services behind the HTTP surface.
type Server struct {
	Statuses   domain.StatusStore
	Health     usecase.HealthService
	Ingress    *usecase.IngressService
	Dispatcher *usecase.Dispatcher
}

// NewServer constructs a Server.
func NewServer(st domain.StatusStore, health usecase.HealthService, ingress *usecase.IngressService, disp *usecase.Dispatcher) *Server {
	return &Server{Statuses: st, Health: health, Ingress: ingress, Dispatcher: disp}
}

// HealthHandler serves liveness: the process is up and serving. Component
// state is reported by HealthDetailedHandler only, so a degraded dependency
// never makes an orchestrator restart the process.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// HealthDetailedHandler serves the full component breakdown.
func (s *Server) HealthDetailedHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := s.Health.Check(r.Context())
		writeJSON(w, report.HTTPStatus(), report)
	}
}

// JobStatusHandler serves one job's status record.
func (s *Server) JobStatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobID")
		rec, err := s.Statuses.Get(r.Context(), jobID)
		if err != nil {
			writeError(w, r, err, map[string]string{"jobId": jobID})
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}
}

type jobListResponse struct {
	Jobs []domain.JobStatusRecord `json:"jobs"`
	Skip int                      `json:"skip"`
	Take int                      `json:"take"`
}

// JobListHandler serves a filtered, paged listing of status records.
func (s *Server) JobListHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := domain.StatusFilter{
			Status: domain.JobStatus(r.URL.Query().Get("status")),
			Type:   r.URL.Query().Get("type"),
			Source: r.URL.Query().Get("source"),
			Skip:   queryInt(r, "skip", 0),
			Take:   queryInt(r, "take", 20),
		}.Clamp()
		s.listJobs(w, r, f)
	}
}

// DeadLetterHandler serves the dead-lettered jobs for operator inspection.
func (s *Server) DeadLetterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := domain.StatusFilter{
			Status: domain.StatusDeadLetter,
			Skip:   queryInt(r, "skip", 0),
			Take:   queryInt(r, "take", 20),
		}.Clamp()
		s.listJobs(w, r, f)
	}
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request, f domain.StatusFilter) {
	recs, err := s.Statuses.List(r.Context(), f)
	if err != nil {
		writeError(w, r, err, nil)
		return
	}
	if recs == nil {
		recs = []domain.JobStatusRecord{}
	}
	writeJSON(w, http.StatusOK, jobListResponse{Jobs: recs, Skip: f.Skip, Take: f.Take})
}

// JobMetricsHandler serves the aggregate counters over all status records.
func (s *Server) JobMetricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := s.Statuses.Metrics(r.Context())
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, m)
	}
}

// JobCancelHandler requests cancellation of an in-flight job.
func (s *Server) JobCancelHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "jobID")
		if !s.Dispatcher.Cancel(jobID) {
			writeError(w, r, fmt.Errorf("job %s is not executing: %w", jobID, domain.ErrNotFound), nil)
			return
		}
		LoggerFrom(r).Info("job cancellation requested", "job_id", jobID)
		writeJSON(w, http.StatusAccepted, map[string]string{"jobId": jobID, "status": "cancelling"})
	}
}

// EventsHandler admits pre-validated issue events into the job core.
func (s *Server) EventsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var ev usecase.IssueEvent
		if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
			writeError(w, r, fmt.Errorf("decode event: %w", domain.ErrInvalidArgument), nil)
			return
		}
		res, err := s.Ingress.Accept(r.Context(), ev)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		if res.Duplicate {
			// an identical job is already in flight; report it instead
			writeJSON(w, http.StatusConflict, res)
			return
		}
		writeJSON(w, http.StatusAccepted, res)
	}
}

func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
