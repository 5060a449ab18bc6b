package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenlix/visibility-engine/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seedBrand(t *testing.T, st *SQLiteStore) *model.Brand {
	t.Helper()
	b, err := st.CreateBrand(context.Background(), model.Brand{
		Name:    "Acme CRM",
		Aliases: []string{"Acme"},
		Domain:  "acme.example",
	})
	require.NoError(t, err)
	return b
}

func seedAnswer(t *testing.T, st *SQLiteStore, brandID, engine, text string) *model.Answer {
	t.Helper()
	ctx := context.Background()
	p, err := st.CreatePrompt(ctx, model.Prompt{BrandID: brandID, Text: "best CRM?", Active: true})
	require.NoError(t, err)
	run, err := st.CreateRun(ctx)
	require.NoError(t, err)
	a, err := st.CreateAnswer(ctx, model.Answer{
		RunID:    run.ID,
		PromptID: p.ID,
		Engine:   engine,
		Text:     text,
	})
	require.NoError(t, err)
	return a
}

// --- Brands and prompts ---

func TestSQLite_Brand_CreateGetList(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	b := seedBrand(t, st)
	assert.NotEmpty(t, b.ID)

	got, err := st.GetBrand(ctx, b.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Acme CRM", got.Name)
	assert.Equal(t, []string{"Acme"}, got.Aliases)

	brands, err := st.ListBrands(ctx)
	require.NoError(t, err)
	assert.Len(t, brands, 1)
}

func TestSQLite_Brand_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	got, err := st.GetBrand(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_Brand_UpdateAliases(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	b := seedBrand(t, st)

	require.NoError(t, st.UpdateBrandAliases(ctx, b.ID, []string{"Acme", "AcmeCRM"}))

	got, err := st.GetBrand(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Acme", "AcmeCRM"}, got.Aliases)

	err = st.UpdateBrandAliases(ctx, "nope", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "brand not found")
}

func TestSQLite_Prompt_ListFilters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	b := seedBrand(t, st)

	_, err := st.CreatePrompt(ctx, model.Prompt{BrandID: b.ID, Text: "active one", Active: true})
	require.NoError(t, err)
	_, err = st.CreatePrompt(ctx, model.Prompt{BrandID: b.ID, Text: "retired one", Active: false})
	require.NoError(t, err)

	all, err := st.ListPrompts(ctx, PromptFilter{BrandID: b.ID})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := st.ListPrompts(ctx, PromptFilter{BrandID: b.ID, ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "active one", active[0].Text)
}

// --- Answers and derived records ---

func TestSQLite_Answer_RoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	b := seedBrand(t, st)

	a := seedAnswer(t, st, b.ID, "perplexity", "Acme CRM leads.")
	assert.NotEmpty(t, a.ID)
	assert.False(t, a.CreatedAt.IsZero())

	count, err := st.CountPromptsWithAnswers(context.Background(), b.ID, time.Now().Add(-time.Hour), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = st.CountPromptsWithAnswers(context.Background(), b.ID, time.Now().Add(-time.Hour), []string{"gemini"})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSQLite_Mention_Upsert(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	b := seedBrand(t, st)
	a := seedAnswer(t, st, b.ID, "perplexity", "Acme leads.")

	m := model.Mention{AnswerID: a.ID, BrandID: b.ID, Mentioned: true, FirstOffset: 0, PositionTerm: 1, Sentiment: 0.5}
	require.NoError(t, st.UpsertMention(ctx, m))

	// Reparse overwrites in place; the (answer, brand) pair stays unique.
	m.Sentiment = 0.8
	require.NoError(t, st.UpsertMention(ctx, m))
}

func TestSQLite_Citations_AndFacts(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	b := seedBrand(t, st)
	a := seedAnswer(t, st, b.ID, "perplexity", "Acme leads.")

	require.NoError(t, st.CreateCitations(ctx, []model.Citation{
		{AnswerID: a.ID, URL: "https://acme.example", Domain: "acme.example", Rank: 1, IsPrimary: true, BrandID: b.ID},
		{AnswerID: a.ID, URL: "https://reviews.example/x", Domain: "reviews.example", Rank: 2},
	}))

	facts, err := st.ListCitationFacts(ctx, CitationFilter{Since: time.Now().Add(-time.Hour)})
	require.NoError(t, err)
	require.Len(t, facts, 2)
	assert.Equal(t, "perplexity", facts[0].Engine)
	assert.Equal(t, 1, facts[0].Rank)

	primary, err := st.ListCitationFacts(ctx, CitationFilter{Since: time.Now().Add(-time.Hour), BrandID: b.ID})
	require.NoError(t, err)
	require.Len(t, primary, 1)
	assert.True(t, primary[0].IsPrimary)
}

func TestSQLite_Metrics_Filters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	b := seedBrand(t, st)
	a1 := seedAnswer(t, st, b.ID, "perplexity", "Acme leads.")
	a2 := seedAnswer(t, st, b.ID, "gemini", "Acme again.")

	for _, m := range []model.VisibilityMetric{
		{AnswerID: a1.ID, BrandID: b.ID, Components: model.ComponentScores{Mentioned: 0.5}, FinalScore: 0.5},
		{AnswerID: a2.ID, BrandID: b.ID, Components: model.ComponentScores{Mentioned: 0.5}, FinalScore: 0.9,
			Detail: map[string]string{"sentiment_input": "0.8"}},
	} {
		_, err := st.CreateMetric(ctx, m)
		require.NoError(t, err)
	}

	all, err := st.ListMetrics(ctx, MetricFilter{BrandID: b.ID, Since: time.Now().Add(-time.Hour)})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	gemini, err := st.ListMetrics(ctx, MetricFilter{BrandID: b.ID, Since: time.Now().Add(-time.Hour), Engines: []string{"gemini"}})
	require.NoError(t, err)
	require.Len(t, gemini, 1)
	assert.InDelta(t, 0.9, gemini[0].FinalScore, 1e-9)
	assert.Equal(t, "0.8", gemini[0].Detail["sentiment_input"])
	assert.InDelta(t, 0.5, gemini[0].Components.Mentioned, 1e-9)
}

// --- Job queue ---

func TestSQLite_Job_Lifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	job, err := st.EnqueueJob(ctx, model.Job{
		Type:        model.JobTypeBrand,
		Payload:     model.JobPayload{BrandID: "b1"},
		MaxAttempts: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusWaiting, job.Status)

	pending, err := st.FindPendingJob(ctx, job.CoalesceKey())
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, job.ID, pending.ID)

	claimed, err := st.ClaimJob(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, job.ID, claimed.ID)
	assert.Equal(t, model.JobStatusRunning, claimed.Status)
	assert.Equal(t, 1, claimed.Attempts)
	require.NotNil(t, claimed.StartedAt)

	require.NoError(t, st.CompleteJob(ctx, claimed.ID, model.JobResult{RunID: "r1", Answers: 4}))

	final, err := st.GetJob(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, final.Status)
	require.NotNil(t, final.Result)
	assert.Equal(t, 4, final.Result.Answers)
	require.NotNil(t, final.CompletedAt)

	// Terminal jobs no longer coalesce.
	pending, err = st.FindPendingJob(ctx, job.CoalesceKey())
	require.NoError(t, err)
	assert.Nil(t, pending)
}

func TestSQLite_Job_ClaimOrderAndEmptyQueue(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	empty, err := st.ClaimJob(ctx)
	require.NoError(t, err)
	assert.Nil(t, empty)

	first, err := st.EnqueueJob(ctx, model.Job{Type: model.JobTypeBrand, Payload: model.JobPayload{BrandID: "b1"}})
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = st.EnqueueJob(ctx, model.Job{Type: model.JobTypeBrand, Payload: model.JobPayload{BrandID: "b2"}})
	require.NoError(t, err)

	claimed, err := st.ClaimJob(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, first.ID, claimed.ID)
}

func TestSQLite_Job_FailAndRequeue(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	job, err := st.EnqueueJob(ctx, model.Job{Type: model.JobTypeFull, MaxAttempts: 2})
	require.NoError(t, err)

	claimed, err := st.ClaimJob(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)

	require.NoError(t, st.RequeueJob(ctx, claimed.ID, "engine unreachable"))

	requeued, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusWaiting, requeued.Status)
	assert.Equal(t, 1, requeued.Attempts)
	assert.Equal(t, "engine unreachable", requeued.FailedReason)
	assert.Nil(t, requeued.StartedAt)

	claimed, err = st.ClaimJob(ctx)
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Equal(t, 2, claimed.Attempts)

	require.NoError(t, st.FailJob(ctx, claimed.ID, "engine unreachable"))

	failed, err := st.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusFailed, failed.Status)
	assert.LessOrEqual(t, failed.Attempts, failed.MaxAttempts)
}

func TestSQLite_Job_CompleteRequiresRunning(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	job, err := st.EnqueueJob(ctx, model.Job{Type: model.JobTypeFull})
	require.NoError(t, err)

	err = st.CompleteJob(ctx, job.ID, model.JobResult{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "running job not found")
}

func TestSQLite_Job_GetMissing(t *testing.T) {
	st := newTestSQLiteStore(t)

	job, err := st.GetJob(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestSQLite_Job_ListByStatus(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.EnqueueJob(ctx, model.Job{Type: model.JobTypeFull})
	require.NoError(t, err)
	_, err = st.EnqueueJob(ctx, model.Job{Type: model.JobTypeBrand, Payload: model.JobPayload{BrandID: "b1"}})
	require.NoError(t, err)

	_, err = st.ClaimJob(ctx)
	require.NoError(t, err)

	waiting, err := st.ListJobs(ctx, JobFilter{Status: model.JobStatusWaiting})
	require.NoError(t, err)
	assert.Len(t, waiting, 1)

	all, err := st.ListJobs(ctx, JobFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
