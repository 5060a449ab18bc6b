package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenlix/visibility-engine/internal/model"
	"github.com/xenlix/visibility-engine/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server and collection workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		srv := server.New(env.Orchestrator, env.Reporter)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return env.Orchestrator.Run(ctx)
		})
		if interval := cfg.Jobs.ScheduleInterval(); interval > 0 {
			g.Go(func() error {
				return runScheduler(ctx, env, interval)
			})
		}
		g.Go(func() error {
			return runWindowSweeper(ctx, env)
		})
		g.Go(func() error {
			return srv.Serve(ctx, port)
		})

		return g.Wait()
	},
}

// runScheduler enqueues a full collection immediately and then on every
// tick. Coalescing in the orchestrator keeps repeated ticks from piling
// up behind a slow queue.
func runScheduler(ctx context.Context, env *collectionEnv, interval time.Duration) error {
	schedule := func() {
		job, err := env.Orchestrator.Schedule(ctx, model.JobTypeFull, model.JobPayload{})
		if err != nil {
			zap.L().Error("scheduled collection failed to enqueue", zap.Error(err))
			return
		}
		zap.L().Info("scheduled full collection",
			zap.String("job_id", job.ID),
			zap.String("status", string(job.Status)),
		)
	}

	schedule()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			schedule()
		}
	}
}

// runWindowSweeper periodically drops idle keys from the in-memory
// rate-limit windows so their per-key history stays bounded.
func runWindowSweeper(ctx context.Context, env *collectionEnv) error {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			env.SweepWindows()
		}
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
