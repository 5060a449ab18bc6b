package main

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xenlix/visibility-engine/internal/config"
	"github.com/xenlix/visibility-engine/internal/engine"
	"github.com/xenlix/visibility-engine/internal/orchestrator"
	"github.com/xenlix/visibility-engine/internal/parser"
	"github.com/xenlix/visibility-engine/internal/ratelimit"
	"github.com/xenlix/visibility-engine/internal/report"
	"github.com/xenlix/visibility-engine/internal/resilience"
	"github.com/xenlix/visibility-engine/internal/store"
	"github.com/xenlix/visibility-engine/pkg/perplexity"
)

// collectionEnv holds the initialized store, engine registry, and
// orchestrator shared by the serve/collect commands.
type collectionEnv struct {
	Store        store.Store
	Registry     *engine.Registry
	Orchestrator *orchestrator.Orchestrator
	Reporter     *report.Reporter

	redis   *redis.Client
	windows []*ratelimit.SlidingWindow
}

// SweepWindows drops idle per-key state from the in-memory limiters.
// The serve command runs it on a ticker.
func (e *collectionEnv) SweepWindows() {
	for _, w := range e.windows {
		w.Sweep()
	}
}

// Close releases resources held by the environment.
func (e *collectionEnv) Close() {
	if e.redis != nil {
		_ = e.redis.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "visibility.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: int32(cfg.Store.MaxConns),
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initEnv sets up the store, registers every configured engine, and
// builds the orchestrator. Callers should defer env.Close().
func initEnv(ctx context.Context) (*collectionEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	env := &collectionEnv{Store: st}

	if cfg.Redis.Addr != "" {
		env.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := env.redis.Ping(ctx).Err(); err != nil {
			env.Close()
			return nil, eris.Wrap(err, "redis ping")
		}
		zap.L().Info("shared rate-limit windows enabled", zap.String("addr", cfg.Redis.Addr))
	}

	registry, err := initRegistry(ctx, env)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Registry = registry

	env.Orchestrator = orchestrator.New(st, registry, parser.NewParser(), orchestrator.Config{
		Workers:      cfg.Jobs.Workers,
		PollInterval: cfg.Jobs.PollInterval(),
		MaxAttempts:  cfg.Jobs.MaxAttempts,
	})
	env.Reporter = report.New(st)

	return env, nil
}

// initRegistry builds a collector for each engine with credentials
// configured. At least one engine must be enabled.
func initRegistry(ctx context.Context, env *collectionEnv) (*engine.Registry, error) {
	registry := engine.NewRegistry()

	register := func(e engine.Engine, ec config.EngineConfig) {
		limiter := newLimiter(env, ec.RequestsPerMin)
		retry := resilience.DefaultRetryConfig()
		if ec.MaxAttempts > 0 {
			retry.MaxAttempts = ec.MaxAttempts
		}
		registry.Register(engine.NewCollector(e, limiter, engine.CollectorConfig{
			Timeout: ec.Timeout(),
			Retry:   retry,
		}))
		zap.L().Info("engine enabled",
			zap.String("engine", e.Name()),
			zap.String("model", ec.Model),
			zap.Int("requests_per_min", ec.RequestsPerMin),
		)
	}

	if ec := cfg.Engines.Perplexity; ec.Enabled() {
		client := perplexity.NewClient(ec.Key,
			perplexity.WithBaseURL(ec.BaseURL),
			perplexity.WithModel(ec.Model),
			perplexity.WithPacing(rate.NewLimiter(rate.Limit(float64(ec.RequestsPerMin)/60.0), 1)),
		)
		register(engine.NewPerplexity(client), ec)
	}
	if ec := cfg.Engines.OpenAI; ec.Enabled() {
		register(engine.NewOpenAI(ec.Key, ec.BaseURL, ec.Model), ec)
	}
	if ec := cfg.Engines.Gemini; ec.Enabled() {
		g, err := engine.NewGemini(ctx, ec.Key, ec.Model)
		if err != nil {
			return nil, eris.Wrap(err, "init gemini")
		}
		register(g, ec)
	}
	if ec := cfg.Engines.Anthropic; ec.Enabled() {
		register(engine.NewAnthropic(ec.Key, ec.BaseURL, ec.Model), ec)
	}

	if len(registry.Names()) == 0 {
		return nil, eris.New("no engines configured: set at least one VISIBILITY_ENGINES_*_KEY")
	}

	return registry, nil
}

func newLimiter(env *collectionEnv, requestsPerMin int) ratelimit.Limiter {
	if requestsPerMin <= 0 {
		requestsPerMin = 20
	}
	if env.redis != nil {
		return ratelimit.NewRedisWindow(env.redis, requestsPerMin, time.Minute)
	}
	w := ratelimit.NewSlidingWindow(requestsPerMin, time.Minute)
	env.windows = append(env.windows, w)
	return w
}
