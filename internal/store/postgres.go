package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/xenlix/visibility-engine/internal/db"
	"github.com/xenlix/visibility-engine/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hottest store operations.
var preparedStatements = map[string]string{
	"insert_answer":  `INSERT INTO answers (id, run_id, prompt_id, engine, text, citations, latency_ms, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
	"upsert_mention": `INSERT INTO mentions (answer_id, brand_id, mentioned, first_offset, position_term, sentiment) VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (answer_id, brand_id) DO UPDATE SET mentioned = $3, first_offset = $4, position_term = $5, sentiment = $6`,
	"insert_metric":  `INSERT INTO visibility_metrics (id, answer_id, brand_id, components, final_score, detail, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
	"get_job":        `SELECT id, type, status, payload, attempts, max_attempts, result, failed_reason, created_at, started_at, completed_at FROM jobs WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool; used by tests with pgxmock.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS brands (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	aliases    JSONB NOT NULL DEFAULT '[]',
	domain     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS prompts (
	id         TEXT PRIMARY KEY,
	brand_id   TEXT NOT NULL REFERENCES brands(id),
	text       TEXT NOT NULL,
	keywords   JSONB NOT NULL DEFAULT '[]',
	active     BOOLEAN NOT NULL DEFAULT true,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS answers (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	prompt_id  TEXT NOT NULL REFERENCES prompts(id),
	engine     TEXT NOT NULL,
	text       TEXT NOT NULL,
	citations  JSONB NOT NULL DEFAULT '[]',
	latency_ms BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS mentions (
	answer_id     TEXT NOT NULL REFERENCES answers(id),
	brand_id      TEXT NOT NULL REFERENCES brands(id),
	mentioned     BOOLEAN NOT NULL,
	first_offset  INTEGER NOT NULL DEFAULT -1,
	position_term DOUBLE PRECISION NOT NULL DEFAULT 0,
	sentiment     DOUBLE PRECISION NOT NULL DEFAULT 0,
	PRIMARY KEY (answer_id, brand_id)
);

CREATE TABLE IF NOT EXISTS citations (
	id         TEXT PRIMARY KEY,
	answer_id  TEXT NOT NULL REFERENCES answers(id),
	url        TEXT NOT NULL,
	domain     TEXT NOT NULL DEFAULT '',
	rank       INTEGER NOT NULL,
	title      TEXT NOT NULL DEFAULT '',
	is_primary BOOLEAN NOT NULL DEFAULT false,
	brand_id   TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS visibility_metrics (
	id          TEXT PRIMARY KEY,
	answer_id   TEXT NOT NULL REFERENCES answers(id),
	brand_id    TEXT NOT NULL REFERENCES brands(id),
	components  JSONB NOT NULL,
	final_score DOUBLE PRECISION NOT NULL,
	detail      JSONB,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS jobs (
	id            TEXT PRIMARY KEY,
	type          TEXT NOT NULL,
	status        TEXT NOT NULL DEFAULT 'waiting',
	coalesce_key  TEXT NOT NULL,
	payload       JSONB NOT NULL,
	attempts      INTEGER NOT NULL DEFAULT 0,
	max_attempts  INTEGER NOT NULL DEFAULT 3,
	result        JSONB,
	failed_reason TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	started_at    TIMESTAMPTZ,
	completed_at  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_prompts_brand_id ON prompts(brand_id);
CREATE INDEX IF NOT EXISTS idx_answers_prompt_id ON answers(prompt_id);
CREATE INDEX IF NOT EXISTS idx_answers_created_at ON answers(created_at);
CREATE INDEX IF NOT EXISTS idx_mentions_brand_id ON mentions(brand_id);
CREATE INDEX IF NOT EXISTS idx_citations_answer_id ON citations(answer_id);
CREATE INDEX IF NOT EXISTS idx_metrics_brand_created ON visibility_metrics(brand_id, created_at);
CREATE INDEX IF NOT EXISTS idx_jobs_status_created ON jobs(status, created_at);
CREATE INDEX IF NOT EXISTS idx_jobs_coalesce_key ON jobs(coalesce_key) WHERE status IN ('waiting', 'running');
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateBrand(ctx context.Context, b model.Brand) (*model.Brand, error) {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	b.CreatedAt = time.Now().UTC()

	aliasesJSON, err := json.Marshal(b.Aliases)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal aliases")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO brands (id, name, aliases, domain, created_at) VALUES ($1, $2, $3, $4, $5)`,
		b.ID, b.Name, aliasesJSON, b.Domain, b.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert brand")
	}
	return &b, nil
}

func (s *PostgresStore) GetBrand(ctx context.Context, id string) (*model.Brand, error) {
	var b model.Brand
	var aliasesJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, name, aliases, domain, created_at FROM brands WHERE id = $1`,
		id,
	).Scan(&b.ID, &b.Name, &aliasesJSON, &b.Domain, &b.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get brand %s", id)
	}
	if err := json.Unmarshal(aliasesJSON, &b.Aliases); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal aliases")
	}
	return &b, nil
}

func (s *PostgresStore) ListBrands(ctx context.Context) ([]model.Brand, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, aliases, domain, created_at FROM brands ORDER BY created_at`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list brands")
	}
	defer rows.Close()

	var brands []model.Brand
	for rows.Next() {
		var b model.Brand
		var aliasesJSON []byte
		if err := rows.Scan(&b.ID, &b.Name, &aliasesJSON, &b.Domain, &b.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan brand")
		}
		if err := json.Unmarshal(aliasesJSON, &b.Aliases); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal aliases")
		}
		brands = append(brands, b)
	}
	return brands, eris.Wrap(rows.Err(), "postgres: list brands iterate")
}

func (s *PostgresStore) UpdateBrandAliases(ctx context.Context, id string, aliases []string) error {
	aliasesJSON, err := json.Marshal(aliases)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal aliases")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE brands SET aliases = $1 WHERE id = $2`,
		aliasesJSON, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update brand aliases %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("brand not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) CreatePrompt(ctx context.Context, p model.Prompt) (*model.Prompt, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.CreatedAt = time.Now().UTC()

	keywordsJSON, err := json.Marshal(p.Keywords)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal keywords")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO prompts (id, brand_id, text, keywords, active, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.BrandID, p.Text, keywordsJSON, p.Active, p.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert prompt")
	}
	return &p, nil
}

func (s *PostgresStore) GetPrompt(ctx context.Context, id string) (*model.Prompt, error) {
	var p model.Prompt
	var keywordsJSON []byte

	err := s.pool.QueryRow(ctx,
		`SELECT id, brand_id, text, keywords, active, created_at FROM prompts WHERE id = $1`,
		id,
	).Scan(&p.ID, &p.BrandID, &p.Text, &keywordsJSON, &p.Active, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get prompt %s", id)
	}
	if err := json.Unmarshal(keywordsJSON, &p.Keywords); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal keywords")
	}
	return &p, nil
}

func (s *PostgresStore) ListPrompts(ctx context.Context, filter PromptFilter) ([]model.Prompt, error) {
	query := `SELECT id, brand_id, text, keywords, active, created_at FROM prompts WHERE true`
	args := []any{}
	argIdx := 1

	if filter.BrandID != "" {
		query += fmt.Sprintf(` AND brand_id = $%d`, argIdx)
		args = append(args, filter.BrandID)
		argIdx++
	}
	if filter.ActiveOnly {
		query += ` AND active`
	}
	query += ` ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list prompts")
	}
	defer rows.Close()

	var prompts []model.Prompt
	for rows.Next() {
		var p model.Prompt
		var keywordsJSON []byte
		if err := rows.Scan(&p.ID, &p.BrandID, &p.Text, &keywordsJSON, &p.Active, &p.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan prompt")
		}
		if err := json.Unmarshal(keywordsJSON, &p.Keywords); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal keywords")
		}
		prompts = append(prompts, p)
	}
	return prompts, eris.Wrap(rows.Err(), "postgres: list prompts iterate")
}

func (s *PostgresStore) CreateRun(ctx context.Context) (*model.Run, error) {
	run := model.Run{ID: uuid.New().String(), CreatedAt: time.Now().UTC()}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, created_at) VALUES ($1, $2)`,
		run.ID, run.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return &run, nil
}

func (s *PostgresStore) CreateAnswer(ctx context.Context, a model.Answer) (*model.Answer, error) {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	a.CreatedAt = time.Now().UTC()

	citationsJSON, err := json.Marshal(a.Citations)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal engine citations")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO answers (id, run_id, prompt_id, engine, text, citations, latency_ms, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.RunID, a.PromptID, a.Engine, a.Text, citationsJSON, a.LatencyMS, a.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert answer")
	}
	return &a, nil
}

func (s *PostgresStore) CountPromptsWithAnswers(ctx context.Context, brandID string, since time.Time, engines []string) (int, error) {
	query := `SELECT COUNT(DISTINCT a.prompt_id) FROM answers a JOIN prompts p ON p.id = a.prompt_id WHERE a.created_at >= $1`
	args := []any{since}
	argIdx := 2

	if brandID != "" {
		query += fmt.Sprintf(` AND p.brand_id = $%d`, argIdx)
		args = append(args, brandID)
		argIdx++
	}
	if len(engines) > 0 {
		query += fmt.Sprintf(` AND a.engine = ANY($%d)`, argIdx)
		args = append(args, engines)
		argIdx++
	}

	var count int
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, eris.Wrap(err, "postgres: count prompts with answers")
	}
	return count, nil
}

func (s *PostgresStore) UpsertMention(ctx context.Context, m model.Mention) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO mentions (answer_id, brand_id, mentioned, first_offset, position_term, sentiment) VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (answer_id, brand_id) DO UPDATE SET mentioned = $3, first_offset = $4, position_term = $5, sentiment = $6`,
		m.AnswerID, m.BrandID, m.Mentioned, m.FirstOffset, m.PositionTerm, m.Sentiment,
	)
	return eris.Wrap(err, "postgres: upsert mention")
}

func (s *PostgresStore) CreateCitations(ctx context.Context, citations []model.Citation) error {
	if len(citations) == 0 {
		return nil
	}

	rows := make([][]any, 0, len(citations))
	for _, c := range citations {
		if c.ID == "" {
			c.ID = uuid.New().String()
		}
		rows = append(rows, []any{c.ID, c.AnswerID, c.URL, c.Domain, c.Rank, c.Title, c.IsPrimary, c.BrandID})
	}

	_, err := db.CopyFrom(ctx, s.pool, "citations",
		[]string{"id", "answer_id", "url", "domain", "rank", "title", "is_primary", "brand_id"},
		rows,
	)
	return eris.Wrap(err, "postgres: insert citations")
}

func (s *PostgresStore) ListCitationFacts(ctx context.Context, filter CitationFilter) ([]CitationFact, error) {
	query := `SELECT c.id, c.answer_id, c.url, c.domain, c.rank, c.title, c.is_primary, c.brand_id, a.engine, a.created_at
		FROM citations c JOIN answers a ON a.id = c.answer_id WHERE a.created_at >= $1`
	args := []any{filter.Since}
	argIdx := 2

	if filter.BrandID != "" {
		query += fmt.Sprintf(` AND c.brand_id = $%d`, argIdx)
		args = append(args, filter.BrandID)
		argIdx++
	}
	if filter.Engine != "" {
		query += fmt.Sprintf(` AND a.engine = $%d`, argIdx)
		args = append(args, filter.Engine)
		argIdx++
	}
	query += ` ORDER BY a.created_at, c.rank`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list citation facts")
	}
	defer rows.Close()

	var facts []CitationFact
	for rows.Next() {
		var f CitationFact
		if err := rows.Scan(&f.ID, &f.AnswerID, &f.URL, &f.Domain, &f.Rank, &f.Title, &f.IsPrimary, &f.BrandID, &f.Engine, &f.AnsweredAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan citation fact")
		}
		facts = append(facts, f)
	}
	return facts, eris.Wrap(rows.Err(), "postgres: list citation facts iterate")
}

func (s *PostgresStore) CreateMetric(ctx context.Context, m model.VisibilityMetric) (*model.VisibilityMetric, error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	m.CreatedAt = time.Now().UTC()

	componentsJSON, err := json.Marshal(m.Components)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal components")
	}
	detailJSON, err := json.Marshal(m.Detail)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal detail")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO visibility_metrics (id, answer_id, brand_id, components, final_score, detail, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.AnswerID, m.BrandID, componentsJSON, m.FinalScore, detailJSON, m.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert metric")
	}
	return &m, nil
}

func (s *PostgresStore) ListMetrics(ctx context.Context, filter MetricFilter) ([]model.VisibilityMetric, error) {
	query := `SELECT m.id, m.answer_id, m.brand_id, m.components, m.final_score, m.detail, m.created_at
		FROM visibility_metrics m JOIN answers a ON a.id = m.answer_id WHERE m.created_at >= $1`
	args := []any{filter.Since}
	argIdx := 2

	if filter.BrandID != "" {
		query += fmt.Sprintf(` AND m.brand_id = $%d`, argIdx)
		args = append(args, filter.BrandID)
		argIdx++
	}
	if len(filter.Engines) > 0 {
		query += fmt.Sprintf(` AND a.engine = ANY($%d)`, argIdx)
		args = append(args, filter.Engines)
		argIdx++
	}
	query += ` ORDER BY m.created_at`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list metrics")
	}
	defer rows.Close()

	var metrics []model.VisibilityMetric
	for rows.Next() {
		var m model.VisibilityMetric
		var componentsJSON, detailJSON []byte
		if err := rows.Scan(&m.ID, &m.AnswerID, &m.BrandID, &componentsJSON, &m.FinalScore, &detailJSON, &m.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan metric")
		}
		if err := json.Unmarshal(componentsJSON, &m.Components); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal components")
		}
		if len(detailJSON) > 0 {
			if err := json.Unmarshal(detailJSON, &m.Detail); err != nil {
				return nil, eris.Wrap(err, "postgres: unmarshal detail")
			}
		}
		metrics = append(metrics, m)
	}
	return metrics, eris.Wrap(rows.Err(), "postgres: list metrics iterate")
}

const jobColumns = `id, type, status, payload, attempts, max_attempts, result, failed_reason, created_at, started_at, completed_at`

func (s *PostgresStore) EnqueueJob(ctx context.Context, job model.Job) (*model.Job, error) {
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
		return nil, eris.Wrap(err, "postgres: marshal job payload")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO jobs (id, type, status, coalesce_key, payload, attempts, max_attempts, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		job.ID, string(job.Type), string(job.Status), job.CoalesceKey(), payloadJSON, job.Attempts, job.MaxAttempts, job.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert job")
	}
	return &job, nil
}

func (s *PostgresStore) FindPendingJob(ctx context.Context, coalesceKey string) (*model.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE coalesce_key = $1 AND status IN ('waiting', 'running') ORDER BY created_at LIMIT 1`,
		coalesceKey,
	)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: find pending job")
	}
	return job, nil
}

func (s *PostgresStore) ClaimJob(ctx context.Context) (*model.Job, error) {
	row := s.pool.QueryRow(ctx,
		`WITH next AS (
			SELECT id FROM jobs WHERE status = 'waiting' ORDER BY created_at LIMIT 1 FOR UPDATE SKIP LOCKED
		)
		UPDATE jobs SET status = 'running', attempts = attempts + 1, started_at = $1
		WHERE id IN (SELECT id FROM next)
		RETURNING `+jobColumns,
		time.Now().UTC(),
	)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: claim job")
	}
	return job, nil
}

func (s *PostgresStore) CompleteJob(ctx context.Context, jobID string, result model.JobResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal job result")
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = 'completed', result = $1, completed_at = $2 WHERE id = $3 AND status = 'running'`,
		resultJSON, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete job %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("running job not found: %s", jobID)
	}
	return nil
}

func (s *PostgresStore) FailJob(ctx context.Context, jobID string, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = 'failed', failed_reason = $1, completed_at = $2 WHERE id = $3 AND status = 'running'`,
		reason, time.Now().UTC(), jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail job %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("running job not found: %s", jobID)
	}
	return nil
}

func (s *PostgresStore) RequeueJob(ctx context.Context, jobID string, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = 'waiting', failed_reason = $1, started_at = NULL WHERE id = $2 AND status = 'running'`,
		reason, jobID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: requeue job %s", jobID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("running job not found: %s", jobID)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE id = $1`,
		jobID,
	)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get job %s", jobID)
	}
	return job, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list jobs")
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan job")
		}
		jobs = append(jobs, *job)
	}
	return jobs, eris.Wrap(rows.Err(), "postgres: list jobs iterate")
}

func scanJob(row pgx.Row) (*model.Job, error) {
	var j model.Job
	var payloadJSON []byte
	var resultJSON *[]byte

	err := row.Scan(&j.ID, &j.Type, &j.Status, &payloadJSON, &j.Attempts, &j.MaxAttempts,
		&resultJSON, &j.FailedReason, &j.CreatedAt, &j.StartedAt, &j.CompletedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(payloadJSON, &j.Payload); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal job payload")
	}
	if resultJSON != nil {
		j.Result = &model.JobResult{}
		if err := json.Unmarshal(*resultJSON, j.Result); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal job result")
		}
	}
	return &j, nil
}
