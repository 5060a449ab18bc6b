package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/xenlix/visibility-engine/internal/model"
	"github.com/xenlix/visibility-engine/internal/orchestrator"
	"github.com/xenlix/visibility-engine/internal/resilience"
)

type triggerRequest struct {
	Type         string   `json:"type"`
	BrandID      string   `json:"brand_id,omitempty"`
	PromptIDs    []string `json:"prompt_ids,omitempty"`
	Locale       string   `json:"locale,omitempty"`
	ForceRefresh bool     `json:"force_refresh,omitempty"`
}

// jobTypes maps the external request types onto job types.
var jobTypes = map[string]model.JobType{
	"full":   model.JobTypeFull,
	"brand":  model.JobTypeBrand,
	"prompt": model.JobTypePrompt,
}

func (s *Server) handleTriggerCollection(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	typ, ok := jobTypes[req.Type]
	if !ok {
		writeError(w, http.StatusBadRequest, "type must be one of full, brand, prompt")
		return
	}

	job, err := s.orch.Schedule(r.Context(), typ, model.JobPayload{
		BrandID:      req.BrandID,
		PromptIDs:    req.PromptIDs,
		Locale:       req.Locale,
		ForceRefresh: req.ForceRefresh,
	})
	if err != nil {
		if resilience.IsValidation(err) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to schedule collection")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"success": true,
		"job_id":  job.ID,
	})
}

type jobStatusResponse struct {
	JobID        string                `json:"job_id"`
	Status       model.JobStatus       `json:"status"`
	Progress     orchestrator.Progress `json:"progress"`
	CreatedAt    string                `json:"created_at"`
	StartedAt    string                `json:"started_at,omitempty"`
	CompletedAt  string                `json:"completed_at,omitempty"`
	FailedReason string                `json:"failed_reason,omitempty"`
	Result       *model.JobResult      `json:"result,omitempty"`
	Attempts     int                   `json:"attempts"`
	MaxAttempts  int                   `json:"max_attempts"`
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	status, err := s.orch.Status(r.Context(), jobID)
	if err != nil {
		if orchestrator.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}

	job := status.Job
	resp := jobStatusResponse{
		JobID:        job.ID,
		Status:       job.Status,
		Progress:     status.Progress,
		CreatedAt:    job.CreatedAt.Format(time.RFC3339),
		FailedReason: job.FailedReason,
		Result:       job.Result,
		Attempts:     job.Attempts,
		MaxAttempts:  job.MaxAttempts,
	}
	if job.StartedAt != nil {
		resp.StartedAt = job.StartedAt.Format(time.RFC3339)
	}
	if job.CompletedAt != nil {
		resp.CompletedAt = job.CompletedAt.Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	status, err := s.orch.Status(r.Context(), jobID)
	if err != nil {
		if orchestrator.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}

	if status.Job.Status.Terminal() {
		writeError(w, http.StatusConflict, "job already finished")
		return
	}
	if !s.orch.Cancel(jobID) {
		writeError(w, http.StatusConflict, "job is not running")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"success": true,
		"job_id":  jobID,
	})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days", 30, 1, 90)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	brandID := r.URL.Query().Get("brand_id")
	var engines []string
	if e := r.URL.Query().Get("engine"); e != "" {
		engines = []string{e}
	}

	summary, err := s.reporter.Summarize(r.Context(), brandID, days, engines)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build summary")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ai_visibility_index":  summary.Index,
		"trend":                summary.Trend,
		"time_period":          map[string]int{"days": summary.WindowDays},
		"brand_summaries":      summary.Brands,
		"coverage":             summary.Coverage,
		"competitive_analysis": summary.Competitive,
	})
}

func (s *Server) handleTopSources(w http.ResponseWriter, r *http.Request) {
	days, err := intParam(r, "days", 30, 1, 90)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := intParam(r, "limit", 10, 1, 50)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	minCitations, err := intParam(r, "min_citations", 1, 1, 1000)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sources, err := s.reporter.TopSources(r.Context(), days, minCitations, limit,
		r.URL.Query().Get("brand_id"), r.URL.Query().Get("engine"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to rank sources")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"top_urls":             sources.TopURLs,
		"top_domains":          sources.TopDomains,
		"competitive_insights": sources.PrimaryCitations,
		"summary":              sources.Summary,
	})
}

// intParam reads a bounded integer query parameter, applying a default
// when absent.
func intParam(r *http.Request, name string, def, min, max int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < min || v > max {
		return 0, &paramError{name: name, min: min, max: max}
	}
	return v, nil
}

type paramError struct {
	name     string
	min, max int
}

func (e *paramError) Error() string {
	return e.name + " must be an integer between " + strconv.Itoa(e.min) + " and " + strconv.Itoa(e.max)
}
