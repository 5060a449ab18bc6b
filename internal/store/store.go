// Package store persists the collection domain: brands, prompts, runs,
// answers, mentions, citations, visibility metrics and jobs. Two
// implementations exist, Postgres for deployments and SQLite for local
// single-binary use.
package store

import (
	"context"
	"time"

	"github.com/xenlix/visibility-engine/internal/model"
)

// PromptFilter specifies criteria for listing prompts.
type PromptFilter struct {
	BrandID    string `json:"brand_id,omitempty"`
	ActiveOnly bool   `json:"active_only,omitempty"`
}

// MetricFilter selects visibility metrics for aggregation. Engines
// filters by the engine of the metric's source answer; empty means all.
type MetricFilter struct {
	BrandID string    `json:"brand_id,omitempty"`
	Since   time.Time `json:"since,omitempty"`
	Engines []string  `json:"engines,omitempty"`
}

// CitationFilter selects citation facts for source reporting.
type CitationFilter struct {
	Since   time.Time `json:"since,omitempty"`
	BrandID string    `json:"brand_id,omitempty"`
	Engine  string    `json:"engine,omitempty"`
}

// JobFilter specifies criteria for listing jobs.
type JobFilter struct {
	Status model.JobStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
}

// CitationFact is a citation joined with facts about its source answer,
// the shape source reporting aggregates over.
type CitationFact struct {
	model.Citation
	Engine     string    `json:"engine"`
	AnsweredAt time.Time `json:"answered_at"`
}

// Store defines the persistence interface for the collection engine.
// Get-style lookups return (nil, nil) when the row does not exist.
type Store interface {
	// Brands
	CreateBrand(ctx context.Context, b model.Brand) (*model.Brand, error)
	GetBrand(ctx context.Context, id string) (*model.Brand, error)
	ListBrands(ctx context.Context) ([]model.Brand, error)
	UpdateBrandAliases(ctx context.Context, id string, aliases []string) error

	// Prompts
	CreatePrompt(ctx context.Context, p model.Prompt) (*model.Prompt, error)
	GetPrompt(ctx context.Context, id string) (*model.Prompt, error)
	ListPrompts(ctx context.Context, filter PromptFilter) ([]model.Prompt, error)

	// Runs and answers
	CreateRun(ctx context.Context) (*model.Run, error)
	CreateAnswer(ctx context.Context, a model.Answer) (*model.Answer, error)
	CountPromptsWithAnswers(ctx context.Context, brandID string, since time.Time, engines []string) (int, error)

	// Derived records
	UpsertMention(ctx context.Context, m model.Mention) error
	CreateCitations(ctx context.Context, citations []model.Citation) error
	ListCitationFacts(ctx context.Context, filter CitationFilter) ([]CitationFact, error)
	CreateMetric(ctx context.Context, m model.VisibilityMetric) (*model.VisibilityMetric, error)
	ListMetrics(ctx context.Context, filter MetricFilter) ([]model.VisibilityMetric, error)

	// Jobs. ClaimJob atomically moves the oldest waiting job to running
	// and increments its attempt counter; (nil, nil) means an empty
	// queue. FindPendingJob locates a non-terminal job with the same
	// coalesce key so duplicate requests collapse.
	EnqueueJob(ctx context.Context, job model.Job) (*model.Job, error)
	FindPendingJob(ctx context.Context, coalesceKey string) (*model.Job, error)
	ClaimJob(ctx context.Context) (*model.Job, error)
	CompleteJob(ctx context.Context, jobID string, result model.JobResult) error
	FailJob(ctx context.Context, jobID string, reason string) error
	RequeueJob(ctx context.Context, jobID string, reason string) error
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
