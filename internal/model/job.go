package model

import "time"

// JobType identifies the scope of a collection job.
type JobType string

const (
	JobTypeFull   JobType = "scheduled_full"
	JobTypeBrand  JobType = "brand"
	JobTypePrompt JobType = "prompt"
)

// JobStatus is the lifecycle state of a collection job. Transitions are
// monotonic: waiting -> running -> completed | failed.
type JobStatus string

const (
	JobStatusWaiting   JobStatus = "waiting"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// JobPayload carries the target of a collection job.
type JobPayload struct {
	BrandID      string   `json:"brand_id,omitempty"`
	PromptIDs    []string `json:"prompt_ids,omitempty"`
	Locale       string   `json:"locale,omitempty"`
	ForceRefresh bool     `json:"force_refresh,omitempty"`
}

// JobResult summarizes what a completed job produced.
type JobResult struct {
	RunID     string `json:"run_id"`
	Answers   int    `json:"answers"`
	Mentions  int    `json:"mentions"`
	Citations int    `json:"citations"`
	Metrics   int    `json:"metrics"`
	Skipped   int    `json:"skipped,omitempty"` // answers dropped by parse errors
}

// Job is one unit of collection work tracked through the orchestrator.
type Job struct {
	ID           string     `json:"id"`
	Type         JobType    `json:"type"`
	Status       JobStatus  `json:"status"`
	Payload      JobPayload `json:"payload"`
	Attempts     int        `json:"attempts"`
	MaxAttempts  int        `json:"max_attempts"`
	Result       *JobResult `json:"result,omitempty"`
	FailedReason string     `json:"failed_reason,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// CoalesceKey identifies jobs that target the same work. Two pending
// requests with equal keys collapse into a single job.
func (j Job) CoalesceKey() string {
	key := string(j.Type) + "|" + j.Payload.BrandID
	for _, p := range j.Payload.PromptIDs {
		key += "|" + p
	}
	return key
}
