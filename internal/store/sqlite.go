package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/xenlix/visibility-engine/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: sqlDB}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS brands (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	aliases    TEXT NOT NULL DEFAULT '[]',
	domain     TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS prompts (
	id         TEXT PRIMARY KEY,
	brand_id   TEXT NOT NULL REFERENCES brands(id),
	text       TEXT NOT NULL,
	keywords   TEXT NOT NULL DEFAULT '[]',
	active     BOOLEAN NOT NULL DEFAULT 1,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS answers (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	prompt_id  TEXT NOT NULL REFERENCES prompts(id),
	engine     TEXT NOT NULL,
	text       TEXT NOT NULL,
	citations  TEXT NOT NULL DEFAULT '[]',
	latency_ms INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS mentions (
	answer_id     TEXT NOT NULL REFERENCES answers(id),
	brand_id      TEXT NOT NULL REFERENCES brands(id),
	mentioned     BOOLEAN NOT NULL,
	first_offset  INTEGER NOT NULL DEFAULT -1,
	position_term REAL NOT NULL DEFAULT 0,
	sentiment     REAL NOT NULL DEFAULT 0,
	PRIMARY KEY (answer_id, brand_id)
);

CREATE TABLE IF NOT EXISTS citations (
	id         TEXT PRIMARY KEY,
	answer_id  TEXT NOT NULL REFERENCES answers(id),
	url        TEXT NOT NULL,
	domain     TEXT NOT NULL DEFAULT '',
	rank       INTEGER NOT NULL,
	title      TEXT NOT NULL DEFAULT '',
	is_primary BOOLEAN NOT NULL DEFAULT 0,
	brand_id   TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS visibility_metrics (
	id          TEXT PRIMARY KEY,
	answer_id   TEXT NOT NULL REFERENCES answers(id),
	brand_id    TEXT NOT NULL REFERENCES brands(id),
	components  TEXT NOT NULL,
	final_score REAL NOT NULL,
	detail      TEXT,
	created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS jobs (
	id            TEXT PRIMARY KEY,
	type          TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'waiting',
	coalesce_key  TEXT NOT NULL,
	payload       TEXT NOT NULL,
	attempts      INTEGER NOT NULL DEFAULT 0,
	max_attempts  INTEGER NOT NULL DEFAULT 3,
	result        TEXT,
	failed_reason TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL,
	started_at    DATETIME,
	completed_at  DATETIME
);

CREATE INDEX IF NOT EXISTS idx_prompts_brand_id ON prompts(brand_id);
CREATE INDEX IF NOT EXISTS idx_answers_prompt_id ON answers(prompt_id);
CREATE INDEX IF NOT EXISTS idx_answers_created_at ON answers(created_at);
CREATE INDEX IF NOT EXISTS idx_mentions_brand_id ON mentions(brand_id);
CREATE INDEX IF NOT EXISTS idx_citations_answer_id ON citations(answer_id);
CREATE INDEX IF NOT EXISTS idx_metrics_brand_created ON visibility_metrics(brand_id, created_at);
CREATE INDEX IF NOT EXISTS idx_jobs_status_created ON jobs(status, created_at);
CREATE INDEX IF NOT EXISTS idx_jobs_coalesce_key ON jobs(coalesce_key);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "sqlite: rows affected for %s %s", kind, id)
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", kind, id)
	}
	return nil
}

func (s *SQLiteStore) CreateBrand(ctx context.Context, b model.Brand) (*model.Brand, error) {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	b.CreatedAt = time.Now().UTC()

	aliasesJSON, err := json.Marshal(b.Aliases)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal aliases")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO brands (id, name, aliases, domain, created_at) VALUES (?, ?, ?, ?, ?)`,
		b.ID, b.Name, string(aliasesJSON), b.Domain, b.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert brand")
	}
	return &b, nil
}

func (s *SQLiteStore) GetBrand(ctx context.Context, id string) (*model.Brand, error) {
	var b model.Brand
	var aliasesJSON string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, aliases, domain, created_at FROM brands WHERE id = ?`,
		id,
	).Scan(&b.ID, &b.Name, &aliasesJSON, &b.Domain, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get brand %s", id)
	}
	if err := json.Unmarshal([]byte(aliasesJSON), &b.Aliases); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal aliases")
	}
	return &b, nil
}

func (s *SQLiteStore) ListBrands(ctx context.Context) ([]model.Brand, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, aliases, domain, created_at FROM brands ORDER BY created_at`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list brands")
	}
	defer rows.Close()

	var brands []model.Brand
	for rows.Next() {
		var b model.Brand
		var aliasesJSON string
		if err := rows.Scan(&b.ID, &b.Name, &aliasesJSON, &b.Domain, &b.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan brand")
		}
		if err := json.Unmarshal([]byte(aliasesJSON), &b.Aliases); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal aliases")
		}
		brands = append(brands, b)
	}
	return brands, eris.Wrap(rows.Err(), "sqlite: list brands iterate")
}

func (s *SQLiteStore) UpdateBrandAliases(ctx context.Context, id string, aliases []string) error {
	aliasesJSON, err := json.Marshal(aliases)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal aliases")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE brands SET aliases = ? WHERE id = ?`,
		string(aliasesJSON), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update brand aliases %s", id)
	}
	return checkRowsAffected(res, "brand", id)
}

func (s *SQLiteStore) CreatePrompt(ctx context.Context, p model.Prompt) (*model.Prompt, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.CreatedAt = time.Now().UTC()

	keywordsJSON, err := json.Marshal(p.Keywords)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal keywords")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO prompts (id, brand_id, text, keywords, active, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.BrandID, p.Text, string(keywordsJSON), p.Active, p.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert prompt")
	}
	return &p, nil
}

func (s *SQLiteStore) GetPrompt(ctx context.Context, id string) (*model.Prompt, error) {
	var p model.Prompt
	var keywordsJSON string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, brand_id, text, keywords, active, created_at FROM prompts WHERE id = ?`,
		id,
	).Scan(&p.ID, &p.BrandID, &p.Text, &keywordsJSON, &p.Active, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get prompt %s", id)
	}
	if err := json.Unmarshal([]byte(keywordsJSON), &p.Keywords); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal keywords")
	}
	return &p, nil
}

func (s *SQLiteStore) ListPrompts(ctx context.Context, filter PromptFilter) ([]model.Prompt, error) {
	query := `SELECT id, brand_id, text, keywords, active, created_at FROM prompts WHERE 1=1`
	args := []any{}

	if filter.BrandID != "" {
		query += ` AND brand_id = ?`
		args = append(args, filter.BrandID)
	}
	if filter.ActiveOnly {
		query += ` AND active = 1`
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list prompts")
	}
	defer rows.Close()

	var prompts []model.Prompt
	for rows.Next() {
		var p model.Prompt
		var keywordsJSON string
		if err := rows.Scan(&p.ID, &p.BrandID, &p.Text, &keywordsJSON, &p.Active, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan prompt")
		}
		if err := json.Unmarshal([]byte(keywordsJSON), &p.Keywords); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal keywords")
		}
		prompts = append(prompts, p)
	}
	return prompts, eris.Wrap(rows.Err(), "sqlite: list prompts iterate")
}

func (s *SQLiteStore) CreateRun(ctx context.Context) (*model.Run, error) {
	run := model.Run{ID: uuid.New().String(), CreatedAt: time.Now().UTC()}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, created_at) VALUES (?, ?)`,
		run.ID, run.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return &run, nil
}

func (s *SQLiteStore) CreateAnswer(ctx context.Context, a model.Answer) (*model.Answer, error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.CreatedAt = time.Now().UTC()

	citationsJSON, err := json.Marshal(a.Citations)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal engine citations")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO answers (id, run_id, prompt_id, engine, text, citations, latency_ms, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.RunID, a.PromptID, a.Engine, a.Text, string(citationsJSON), a.LatencyMS, a.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert answer")
	}
	return &a, nil
}

func (s *SQLiteStore) CountPromptsWithAnswers(ctx context.Context, brandID string, since time.Time, engines []string) (int, error) {
	query := `SELECT COUNT(DISTINCT a.prompt_id) FROM answers a JOIN prompts p ON p.id = a.prompt_id WHERE a.created_at >= ?`
	args := []any{since}

	if brandID != "" {
		query += ` AND p.brand_id = ?`
		args = append(args, brandID)
	}
	if len(engines) > 0 {
		query += ` AND a.engine IN (` + placeholders(len(engines)) + `)`
		for _, e := range engines {
			args = append(args, e)
		}
	}

	var count int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, eris.Wrap(err, "sqlite: count prompts with answers")
	}
	return count, nil
}

func (s *SQLiteStore) UpsertMention(ctx context.Context, m model.Mention) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO mentions (answer_id, brand_id, mentioned, first_offset, position_term, sentiment) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (answer_id, brand_id) DO UPDATE SET mentioned = excluded.mentioned, first_offset = excluded.first_offset, position_term = excluded.position_term, sentiment = excluded.sentiment`,
		m.AnswerID, m.BrandID, m.Mentioned, m.FirstOffset, m.PositionTerm, m.Sentiment,
	)
	return eris.Wrap(err, "sqlite: upsert mention")
}

func (s *SQLiteStore) CreateCitations(ctx context.Context, citations []model.Citation) error {
	if len(citations) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin citations tx")
	}
	defer tx.Rollback()

	for _, c := range citations {
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO citations (id, answer_id, url, domain, rank, title, is_primary, brand_id) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.AnswerID, c.URL, c.Domain, c.Rank, c.Title, c.IsPrimary, c.BrandID,
		)
		if err != nil {
			return eris.Wrap(err, "sqlite: insert citation")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit citations")
}

func (s *SQLiteStore) ListCitationFacts(ctx context.Context, filter CitationFilter) ([]CitationFact, error) {
	query := `SELECT c.id, c.answer_id, c.url, c.domain, c.rank, c.title, c.is_primary, c.brand_id, a.engine, a.created_at
		FROM citations c JOIN answers a ON a.id = c.answer_id WHERE a.created_at >= ?`
	args := []any{filter.Since}

	if filter.BrandID != "" {
		query += ` AND c.brand_id = ?`
		args = append(args, filter.BrandID)
	}
	if filter.Engine != "" {
		query += ` AND a.engine = ?`
		args = append(args, filter.Engine)
	}
	query += ` ORDER BY a.created_at, c.rank`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list citation facts")
	}
	defer rows.Close()

	var facts []CitationFact
	for rows.Next() {
		var f CitationFact
		if err := rows.Scan(&f.ID, &f.AnswerID, &f.URL, &f.Domain, &f.Rank, &f.Title, &f.IsPrimary, &f.BrandID, &f.Engine, &f.AnsweredAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan citation fact")
		}
		facts = append(facts, f)
	}
	return facts, eris.Wrap(rows.Err(), "sqlite: list citation facts iterate")
}

func (s *SQLiteStore) CreateMetric(ctx context.Context, m model.VisibilityMetric) (*model.VisibilityMetric, error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	m.CreatedAt = time.Now().UTC()

	componentsJSON, err := json.Marshal(m.Components)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal components")
	}
	detailJSON, err := json.Marshal(m.Detail)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal detail")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO visibility_metrics (id, answer_id, brand_id, components, final_score, detail, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.AnswerID, m.BrandID, string(componentsJSON), m.FinalScore, string(detailJSON), m.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert metric")
	}
	return &m, nil
}

func (s *SQLiteStore) ListMetrics(ctx context.Context, filter MetricFilter) ([]model.VisibilityMetric, error) {
	query := `SELECT m.id, m.answer_id, m.brand_id, m.components, m.final_score, m.detail, m.created_at
		FROM visibility_metrics m JOIN answers a ON a.id = m.answer_id WHERE m.created_at >= ?`
	args := []any{filter.Since}

	if filter.BrandID != "" {
		query += ` AND m.brand_id = ?`
		args = append(args, filter.BrandID)
	}
	if len(filter.Engines) > 0 {
		query += ` AND a.engine IN (` + placeholders(len(filter.Engines)) + `)`
		for _, e := range filter.Engines {
			args = append(args, e)
		}
	}
	query += ` ORDER BY m.created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list metrics")
	}
	defer rows.Close()

	var metrics []model.VisibilityMetric
	for rows.Next() {
		var m model.VisibilityMetric
		var componentsJSON string
		var detailJSON sql.NullString
		if err := rows.Scan(&m.ID, &m.AnswerID, &m.BrandID, &componentsJSON, &m.FinalScore, &detailJSON, &m.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan metric")
		}
		if err := json.Unmarshal([]byte(componentsJSON), &m.Components); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal components")
		}
		if detailJSON.Valid && detailJSON.String != "" {
			if err := json.Unmarshal([]byte(detailJSON.String), &m.Detail); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal detail")
			}
		}
		metrics = append(metrics, m)
	}
	return metrics, eris.Wrap(rows.Err(), "sqlite: list metrics iterate")
}

const sqliteJobColumns = `id, type, status, payload, attempts, max_attempts, result, failed_reason, created_at, started_at, completed_at`

func (s *SQLiteStore) EnqueueJob(ctx context.Context, job model.Job) (*model.Job, error) {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	job.Status = model.JobStatusWaiting
	job.CreatedAt = time.Now().UTC()
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = 3
	}

	payloadJSON, err := json.Marshal(job.Payload)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal job payload")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, type, status, coalesce_key, payload, attempts, max_attempts, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, string(job.Type), string(job.Status), job.CoalesceKey(), string(payloadJSON), job.Attempts, job.MaxAttempts, job.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert job")
	}
	return &job, nil
}

func (s *SQLiteStore) FindPendingJob(ctx context.Context, coalesceKey string) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteJobColumns+` FROM jobs WHERE coalesce_key = ? AND status IN ('waiting', 'running') ORDER BY created_at LIMIT 1`,
		coalesceKey,
	)
	job, err := scanSQLiteJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: find pending job")
	}
	return job, nil
}

func (s *SQLiteStore) ClaimJob(ctx context.Context) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`UPDATE jobs SET status = 'running', attempts = attempts + 1, started_at = ?
		 WHERE id = (SELECT id FROM jobs WHERE status = 'waiting' ORDER BY created_at LIMIT 1)
		 RETURNING `+sqliteJobColumns,
		time.Now().UTC(),
	)
	job, err := scanSQLiteJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: claim job")
	}
	return job, nil
}

func (s *SQLiteStore) CompleteJob(ctx context.Context, jobID string, result model.JobResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal job result")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'completed', result = ?, completed_at = ? WHERE id = ? AND status = 'running'`,
		string(resultJSON), time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete job %s", jobID)
	}
	return checkRowsAffected(res, "running job", jobID)
}

func (s *SQLiteStore) FailJob(ctx context.Context, jobID string, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'failed', failed_reason = ?, completed_at = ? WHERE id = ? AND status = 'running'`,
		reason, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail job %s", jobID)
	}
	return checkRowsAffected(res, "running job", jobID)
}

func (s *SQLiteStore) RequeueJob(ctx context.Context, jobID string, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = 'waiting', failed_reason = ?, started_at = NULL WHERE id = ? AND status = 'running'`,
		reason, jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: requeue job %s", jobID)
	}
	return checkRowsAffected(res, "running job", jobID)
}

func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteJobColumns+` FROM jobs WHERE id = ?`,
		jobID,
	)
	job, err := scanSQLiteJob(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get job %s", jobID)
	}
	return job, nil
}

func (s *SQLiteStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	query := `SELECT ` + sqliteJobColumns + ` FROM jobs WHERE 1=1`
	args := []any{}

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC LIMIT ?`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list jobs")
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		job, err := scanSQLiteJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan job")
		}
		jobs = append(jobs, *job)
	}
	return jobs, eris.Wrap(rows.Err(), "sqlite: list jobs iterate")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteJob(row rowScanner) (*model.Job, error) {
	var j model.Job
	var payloadJSON string
	var resultJSON sql.NullString
	var startedAt, completedAt sql.NullTime

	err := row.Scan(&j.ID, &j.Type, &j.Status, &payloadJSON, &j.Attempts, &j.MaxAttempts,
		&resultJSON, &j.FailedReason, &j.CreatedAt, &startedAt, &completedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(payloadJSON), &j.Payload); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal job payload")
	}
	if resultJSON.Valid && resultJSON.String != "" {
		j.Result = &model.JobResult{}
		if err := json.Unmarshal([]byte(resultJSON.String), j.Result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal job result")
		}
	}
	if startedAt.Valid {
		j.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		j.CompletedAt = &completedAt.Time
	}
	return &j, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
