package revalidation

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/trackvision/tv-shared-go/logger"
	"go.uber.org/zap"

	"github.com/trackvision/tv-epcis-validator/configs"
	"github.com/trackvision/tv-epcis-validator/pipelines"
	"github.com/trackvision/tv-epcis-validator/tasks"
	"github.com/trackvision/tv-epcis-validator/types"
)

// Steps lists all task names in this pipeline (for API discovery).
var Steps = []string{
	"fetch_held_submissions",
	"revalidate_submissions",
	"summarize_results",
}

// Run executes the held-submission revalidation pipeline. Held files are
// re-run through validation so corrections made upstream (resolved errors,
// updated vocabularies) get picked up without a manual resubmission.
func Run(ctx context.Context, cfg *configs.Config, db *sqlx.DB, id string) error {
	storage, err := tasks.NewStorageHandler(cfg)
	if err != nil {
		return err
	}
	service := tasks.NewSubmissionService(db, storage)

	// Shared state via closures
	var held []types.Submission
	var validated, stillHeld, failed int

	flow := pipelines.NewFlow("revalidation")

	// Task 1: Fetch oldest held submissions up to the batch size
	flow.AddTask("fetch_held_submissions", func() error {
		logger.Info("Fetching held submissions", zap.String("id", id))
		var err error
		held, err = tasks.QueryHeldSubmissions(ctx, db, cfg.RevalidationBatchSize)
		if err != nil {
			return err
		}
		logger.Info("Fetched held submissions", zap.Int("count", len(held)))
		return nil
	})

	// Task 2: Re-run validation for each submission
	flow.AddTask("revalidate_submissions", func() error {
		for i := range held {
			sub := &held[i]
			report, err := service.Revalidate(ctx, sub)
			if err != nil {
				logger.Warn("Revalidation failed",
					zap.String("submission_id", sub.ID),
					zap.Error(err))
				failed++
				continue
			}
			if report.Valid {
				validated++
			} else {
				stillHeld++
			}
		}
		return nil
	}, "fetch_held_submissions")

	// Task 3: Summarize, and fail the run when too many revalidations error
	flow.AddTask("summarize_results", func() error {
		logger.Info("Revalidation summary",
			zap.Int("total", len(held)),
			zap.Int("validated", validated),
			zap.Int("still_held", stillHeld),
			zap.Int("failed", failed))

		if len(held) == 0 {
			return nil
		}
		rate := float64(failed) / float64(len(held))
		if rate > cfg.FailureThreshold {
			return fmt.Errorf("revalidation failure rate %.2f exceeds threshold %.2f",
				rate, cfg.FailureThreshold)
		}
		return nil
	}, "revalidate_submissions")

	return flow.Run(ctx)
}
