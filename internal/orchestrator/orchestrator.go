// Package orchestrator schedules collection jobs and drives them through
// their lifecycle: waiting -> running -> completed | failed. A bounded
// worker pool claims jobs from the store queue, fans collection out
// across engines, runs the parser and scorer, and persists the results.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenlix/visibility-engine/internal/engine"
	"github.com/xenlix/visibility-engine/internal/model"
	"github.com/xenlix/visibility-engine/internal/parser"
	"github.com/xenlix/visibility-engine/internal/resilience"
	"github.com/xenlix/visibility-engine/internal/scorer"
	"github.com/xenlix/visibility-engine/internal/store"
)

// ErrJobNotFound is returned by Status for unknown job ids.
var ErrJobNotFound = eris.New("orchestrator: job not found")

// Config tunes the orchestrator.
type Config struct {
	// Workers bounds concurrent job processing. Default: 4.
	Workers int
	// PollInterval is how long an idle worker waits before checking the
	// queue again. Default: 2s.
	PollInterval time.Duration
	// MaxAttempts bounds how many times one job may run. Default: 3.
	MaxAttempts int
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	return c
}

// Progress reports how far a running job has advanced.
type Progress struct {
	Done  int `json:"done"`
	Total int `json:"total"`
}

// Status is one job's externally visible state.
type Status struct {
	Job      model.Job `json:"job"`
	Progress Progress  `json:"progress"`
}

// Orchestrator owns the job queue and worker pool.
type Orchestrator struct {
	store    store.Store
	registry *engine.Registry
	parser   *parser.Parser
	cfg      Config

	wake chan struct{}

	mu       sync.Mutex
	cancels  map[string]context.CancelFunc
	progress map[string]Progress
}

// New creates an orchestrator over a store, an engine registry and a
// parser.
func New(st store.Store, registry *engine.Registry, p *parser.Parser, cfg Config) *Orchestrator {
	return &Orchestrator{
		store:    st,
		registry: registry,
		parser:   p,
		cfg:      cfg.withDefaults(),
		wake:     make(chan struct{}, 1),
		cancels:  make(map[string]context.CancelFunc),
		progress: make(map[string]Progress),
	}
}

// Schedule validates a collection request and enqueues a waiting job.
// An identical pending request (same type and target) coalesces: the
// already-queued job is returned instead of a duplicate.
func (o *Orchestrator) Schedule(ctx context.Context, typ model.JobType, payload model.JobPayload) (*model.Job, error) {
	if err := validateRequest(typ, payload); err != nil {
		return nil, err
	}

	job := model.Job{Type: typ, Payload: payload, MaxAttempts: o.cfg.MaxAttempts}

	pending, err := o.store.FindPendingJob(ctx, job.CoalesceKey())
	if err != nil {
		return nil, &resilience.PersistenceError{Op: "find pending job", Err: err}
	}
	if pending != nil {
		zap.L().Debug("coalesced collection request",
			zap.String("job_id", pending.ID),
			zap.String("type", string(typ)),
		)
		return pending, nil
	}

	queued, err := o.store.EnqueueJob(ctx, job)
	if err != nil {
		return nil, &resilience.PersistenceError{Op: "enqueue job", Err: err}
	}

	select {
	case o.wake <- struct{}{}:
	default:
	}

	zap.L().Info("scheduled collection job",
		zap.String("job_id", queued.ID),
		zap.String("type", string(typ)),
		zap.String("brand_id", payload.BrandID),
	)
	return queued, nil
}

func validateRequest(typ model.JobType, payload model.JobPayload) error {
	switch typ {
	case model.JobTypeFull:
		return nil
	case model.JobTypeBrand:
		if payload.BrandID == "" {
			return resilience.NewValidationError("brand job requires brand_id")
		}
		return nil
	case model.JobTypePrompt:
		if len(payload.PromptIDs) == 0 {
			return resilience.NewValidationError("prompt job requires prompt_ids")
		}
		return nil
	default:
		return resilience.NewValidationError(fmt.Sprintf("unknown job type: %s", typ))
	}
}

// Status returns a job's current state and progress.
func (o *Orchestrator) Status(ctx context.Context, jobID string) (*Status, error) {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, &resilience.PersistenceError{Op: "get job", Err: err}
	}
	if job == nil {
		return nil, ErrJobNotFound
	}

	o.mu.Lock()
	prog := o.progress[jobID]
	o.mu.Unlock()

	return &Status{Job: *job, Progress: prog}, nil
}

// Cancel aborts a running job's in-flight collector calls. It reports
// whether the job was running; the job itself settles as failed with a
// cancellation reason.
func (o *Orchestrator) Cancel(jobID string) bool {
	o.mu.Lock()
	cancel, ok := o.cancels[jobID]
	o.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Run processes jobs until the context is cancelled. One failing job
// never takes the pool down.
func (o *Orchestrator) Run(ctx context.Context) error {
	g := new(errgroup.Group)
	for i := 0; i < o.cfg.Workers; i++ {
		g.Go(func() error {
			o.worker(ctx)
			return nil
		})
	}
	return g.Wait()
}

func (o *Orchestrator) worker(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		job, err := o.store.ClaimJob(ctx)
		if err != nil {
			zap.L().Error("claim job", zap.Error(err))
		}
		if job == nil {
			select {
			case <-ctx.Done():
				return
			case <-o.wake:
			case <-time.After(o.cfg.PollInterval):
			}
			continue
		}

		o.process(ctx, job)
	}
}

func (o *Orchestrator) process(ctx context.Context, job *model.Job) {
	start := time.Now()
	jobsActive.Inc()
	defer jobsActive.Dec()
	defer func() { jobDuration.Observe(time.Since(start).Seconds()) }()

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	o.track(job.ID, cancel)
	defer o.untrack(job.ID)

	result, err := o.execute(jobCtx, job)
	if err != nil {
		o.settleFailure(ctx, jobCtx, job, err)
		return
	}

	if err := o.store.CompleteJob(ctx, job.ID, *result); err != nil {
		zap.L().Error("complete job", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	jobsCompleted.Inc()
	zap.L().Info("job completed",
		zap.String("job_id", job.ID),
		zap.Int("answers", result.Answers),
		zap.Int("mentions", result.Mentions),
		zap.Int("skipped", result.Skipped),
		zap.Duration("took", time.Since(start)),
	)
}

// settleFailure marks the job failed, or puts it back on the queue when
// attempts remain and the failure class is worth another try.
func (o *Orchestrator) settleFailure(ctx, jobCtx context.Context, job *model.Job, err error) {
	jobsFailed.Inc()

	reason := err.Error()
	cancelled := jobCtx.Err() != nil && ctx.Err() == nil
	if cancelled {
		reason = "cancelled: " + reason
	}

	retry := !cancelled && job.Attempts < job.MaxAttempts && retryable(err)
	if retry {
		if reqErr := o.store.RequeueJob(ctx, job.ID, reason); reqErr != nil {
			zap.L().Error("requeue job", zap.String("job_id", job.ID), zap.Error(reqErr))
		}
		zap.L().Warn("job requeued",
			zap.String("job_id", job.ID),
			zap.Int("attempts", job.Attempts),
			zap.String("reason", reason),
		)
		return
	}

	if failErr := o.store.FailJob(ctx, job.ID, reason); failErr != nil {
		zap.L().Error("fail job", zap.String("job_id", job.ID), zap.Error(failErr))
	}
	zap.L().Warn("job failed",
		zap.String("job_id", job.ID),
		zap.Int("attempts", job.Attempts),
		zap.String("reason", reason),
	)
}

// retryable reports whether a job-level failure deserves a requeue.
// Validation failures are permanent; transient, rate-limit and store
// failures may clear up.
func retryable(err error) bool {
	return !resilience.IsValidation(err)
}

func (o *Orchestrator) execute(ctx context.Context, job *model.Job) (*model.JobResult, error) {
	brands, err := o.store.ListBrands(ctx)
	if err != nil {
		return nil, &resilience.PersistenceError{Op: "list brands", Err: err}
	}

	prompts, err := o.resolvePrompts(ctx, job)
	if err != nil {
		return nil, err
	}
	if len(prompts) == 0 {
		return nil, resilience.NewValidationError("no prompts to collect")
	}

	run, err := o.store.CreateRun(ctx)
	if err != nil {
		return nil, &resilience.PersistenceError{Op: "create run", Err: err}
	}

	engines := o.registry.Names()
	total := len(prompts) * len(engines)
	result := model.JobResult{RunID: run.ID}
	var lastErr error

	for done, prompt := range prompts {
		o.setProgress(job.ID, done*len(engines), total)

		collected := o.collectPrompt(ctx, prompt, engines)
		for _, c := range collected {
			collectorRequests.WithLabelValues(c.engine, outcomeLabel(c.err)).Inc()
			if c.err != nil {
				if resilience.IsParse(c.err) {
					result.Skipped++
				} else {
					lastErr = c.err
				}
				zap.L().Warn("engine collection failed",
					zap.String("engine", c.engine),
					zap.String("prompt_id", prompt.ID),
					zap.Error(c.err),
				)
				continue
			}

			if err := o.persistAnswer(ctx, run.ID, prompt, c, brands, &result); err != nil {
				return nil, err
			}
		}

		if ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "orchestrator: job interrupted")
		}
	}
	o.setProgress(job.ID, total, total)

	if result.Answers == 0 && lastErr != nil {
		return nil, lastErr
	}
	return &result, nil
}

type collection struct {
	engine string
	res    *engine.Result
	err    error
}

// collectPrompt asks every engine in parallel. Distinct sources run
// concurrently; calls to one source are serialized by that source's own
// rate limiter inside its collector.
func (o *Orchestrator) collectPrompt(ctx context.Context, prompt model.Prompt, engines []string) []collection {
	collected := make([]collection, len(engines))
	g := new(errgroup.Group)
	for i, name := range engines {
		i, name := i, name
		g.Go(func() error {
			c := o.registry.Get(name)
			res, err := c.Collect(ctx, prompt.Text)
			collected[i] = collection{engine: name, res: res, err: err}
			return nil
		})
	}
	g.Wait() //nolint:errcheck
	return collected
}

func (o *Orchestrator) persistAnswer(ctx context.Context, runID string, prompt model.Prompt, c collection, brands []model.Brand, result *model.JobResult) error {
	answer, err := o.store.CreateAnswer(ctx, model.Answer{
		RunID:     runID,
		PromptID:  prompt.ID,
		Engine:    c.engine,
		Text:      c.res.Answer.Text,
		Citations: c.res.Answer.Citations,
		LatencyMS: c.res.Latency.Milliseconds(),
	})
	if err != nil {
		return &resilience.PersistenceError{Op: "create answer", Err: err}
	}
	result.Answers++

	parsed := o.parser.Parse(*answer, brands)
	for _, m := range parsed.Mentions {
		if err := o.store.UpsertMention(ctx, m); err != nil {
			return &resilience.PersistenceError{Op: "upsert mention", Err: err}
		}
		result.Mentions++
	}
	if err := o.store.CreateCitations(ctx, parsed.Citations); err != nil {
		return &resilience.PersistenceError{Op: "create citations", Err: err}
	}
	result.Citations += len(parsed.Citations)

	for _, metric := range scorer.Score(parsed.Mentions, parsed.Citations) {
		if _, err := o.store.CreateMetric(ctx, metric); err != nil {
			return &resilience.PersistenceError{Op: "create metric", Err: err}
		}
		result.Metrics++
	}
	return nil
}

func (o *Orchestrator) resolvePrompts(ctx context.Context, job *model.Job) ([]model.Prompt, error) {
	switch job.Type {
	case model.JobTypeFull:
		prompts, err := o.store.ListPrompts(ctx, store.PromptFilter{ActiveOnly: true})
		if err != nil {
			return nil, &resilience.PersistenceError{Op: "list prompts", Err: err}
		}
		return prompts, nil
	case model.JobTypeBrand:
		prompts, err := o.store.ListPrompts(ctx, store.PromptFilter{BrandID: job.Payload.BrandID, ActiveOnly: true})
		if err != nil {
			return nil, &resilience.PersistenceError{Op: "list prompts", Err: err}
		}
		return prompts, nil
	case model.JobTypePrompt:
		var prompts []model.Prompt
		for _, id := range job.Payload.PromptIDs {
			p, err := o.store.GetPrompt(ctx, id)
			if err != nil {
				return nil, &resilience.PersistenceError{Op: "get prompt", Err: err}
			}
			if p == nil {
				return nil, resilience.NewValidationError(fmt.Sprintf("prompt not found: %s", id))
			}
			prompts = append(prompts, *p)
		}
		return prompts, nil
	default:
		return nil, resilience.NewValidationError(fmt.Sprintf("unknown job type: %s", job.Type))
	}
}

func (o *Orchestrator) track(jobID string, cancel context.CancelFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cancels[jobID] = cancel
	o.progress[jobID] = Progress{}
}

func (o *Orchestrator) untrack(jobID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.cancels, jobID)
	delete(o.progress, jobID)
}

func (o *Orchestrator) setProgress(jobID string, done, total int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.progress[jobID] = Progress{Done: done, Total: total}
}

// IsNotFound reports whether err is the unknown-job error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrJobNotFound)
}
