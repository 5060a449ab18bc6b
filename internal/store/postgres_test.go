package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenlix/visibility-engine/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresFromPool(mock), mock
}

func TestPostgresStore_GetBrand_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, name, aliases, domain, created_at FROM brands WHERE id = \$1`).
		WithArgs("nonexistent").
		WillReturnError(pgx.ErrNoRows)

	brand, err := s.GetBrand(context.Background(), "nonexistent")
	require.NoError(t, err)
	assert.Nil(t, brand)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertMention(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO mentions .+ ON CONFLICT \(answer_id, brand_id\) DO UPDATE`).
		WithArgs("a1", "b1", true, 12, 0.9, 0.6).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.UpsertMention(context.Background(), model.Mention{
		AnswerID: "a1", BrandID: "b1", Mentioned: true,
		FirstOffset: 12, PositionTerm: 0.9, Sentiment: 0.6,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateBrandAliases_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE brands SET aliases = \$1 WHERE id = \$2`).
		WithArgs(pgxmock.AnyArg(), "nope").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateBrandAliases(context.Background(), "nope", []string{"x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "brand not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ClaimJob_EmptyQueue(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FOR UPDATE SKIP LOCKED`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)

	job, err := s.ClaimJob(context.Background())
	require.NoError(t, err)
	assert.Nil(t, job)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ClaimJob_ReturnsClaimedRow(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	started := time.Now().UTC()
	rows := pgxmock.NewRows([]string{
		"id", "type", "status", "payload", "attempts", "max_attempts",
		"result", "failed_reason", "created_at", "started_at", "completed_at",
	}).AddRow(
		"j1", "brand", "running", []byte(`{"brand_id":"b1"}`), 1, 3,
		nil, "", started.Add(-time.Minute), &started, nil,
	)

	mock.ExpectQuery(`FOR UPDATE SKIP LOCKED`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(rows)

	job, err := s.ClaimJob(context.Background())
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "j1", job.ID)
	assert.Equal(t, model.JobStatusRunning, job.Status)
	assert.Equal(t, "b1", job.Payload.BrandID)
	assert.Equal(t, 1, job.Attempts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CompleteJob_NotRunning(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE jobs SET status = 'completed'`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), "j1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.CompleteJob(context.Background(), "j1", model.JobResult{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "running job not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateCitations_UsesCopy(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"citations"},
		[]string{"id", "answer_id", "url", "domain", "rank", "title", "is_primary", "brand_id"}).
		WillReturnResult(2)

	err := s.CreateCitations(context.Background(), []model.Citation{
		{AnswerID: "a1", URL: "https://acme.example", Domain: "acme.example", Rank: 1},
		{AnswerID: "a1", URL: "https://reviews.example", Domain: "reviews.example", Rank: 2},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateCitations_Empty(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	require.NoError(t, s.CreateCitations(context.Background(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}
