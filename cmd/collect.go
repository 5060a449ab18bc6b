package main

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xenlix/visibility-engine/internal/model"
)

var (
	collectType      string
	collectBrandID   string
	collectPromptIDs []string
	collectWait      bool
)

var collectJobTypes = map[string]model.JobType{
	"full":   model.JobTypeFull,
	"brand":  model.JobTypeBrand,
	"prompt": model.JobTypePrompt,
}

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Trigger a collection job",
	Long:  "Enqueues a collection job. With --wait, runs the worker pool in-process until the job reaches a terminal state.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		typ, ok := collectJobTypes[collectType]
		if !ok {
			return eris.Errorf("unknown collection type: %s (want full, brand, or prompt)", collectType)
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		job, err := env.Orchestrator.Schedule(ctx, typ, model.JobPayload{
			BrandID:   collectBrandID,
			PromptIDs: collectPromptIDs,
		})
		if err != nil {
			return eris.Wrap(err, "schedule collection")
		}

		zap.L().Info("collection scheduled",
			zap.String("job_id", job.ID),
			zap.String("type", string(job.Type)),
			zap.String("status", string(job.Status)),
		)

		if !collectWait {
			return nil
		}

		done, err := waitForJob(ctx, env, job.ID)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(done); err != nil {
			return eris.Wrap(err, "encode job")
		}
		if done.Status == model.JobStatusFailed {
			return eris.Errorf("collection failed: %s", done.FailedReason)
		}
		return nil
	},
}

// waitForJob runs the worker pool in-process and polls until the job is
// terminal.
func waitForJob(ctx context.Context, env *collectionEnv, jobID string) (*model.Job, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- env.Orchestrator.Run(runCtx)
	}()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case err := <-errCh:
			if err != nil {
				return nil, eris.Wrap(err, "worker pool")
			}
			return nil, eris.New("worker pool stopped before job finished")
		case <-ticker.C:
			st, err := env.Orchestrator.Status(ctx, jobID)
			if err != nil {
				return nil, eris.Wrap(err, "job status")
			}
			if st.Job.Status.Terminal() {
				cancel()
				<-errCh
				return &st.Job, nil
			}
		}
	}
}

func init() {
	collectCmd.Flags().StringVar(&collectType, "type", "full", "collection type: full, brand, or prompt")
	collectCmd.Flags().StringVar(&collectBrandID, "brand-id", "", "brand to collect (type=brand)")
	collectCmd.Flags().StringSliceVar(&collectPromptIDs, "prompt-ids", nil, "prompts to collect (type=prompt)")
	collectCmd.Flags().BoolVar(&collectWait, "wait", false, "run workers in-process until the job finishes")
	rootCmd.AddCommand(collectCmd)
}
