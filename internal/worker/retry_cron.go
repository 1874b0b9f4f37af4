package worker

// retry_cron.go
// Background goroutine that periodically re-drives reconciliation steps whose
// next_retry_at is in the past. Steps that exhaust their retry budget are
// parked and pushed to the DLQ for manual reconciliation.

import (
	"context"
	"fmt"
	"time"

	"github.com/chicomed/kalia-shop-sub000/internal/model"
	"github.com/chicomed/kalia-shop-sub000/internal/repository"
	"github.com/chicomed/kalia-shop-sub000/internal/service"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	retryTickInterval = 30 * time.Second
	retryBatchSize    = 20
)

// RetryCronConfig holds all dependencies for the retry goroutine.
type RetryCronConfig struct {
	StepRepo  repository.ReconciliationRepository
	Reconcile service.ReconcileService
	RDB       *redis.Client
}

// StartRetryCron launches a background goroutine that ticks every 30s and
// re-attempts due reconciliation steps. It respects the context for graceful
// shutdown.
func StartRetryCron(ctx context.Context, cfg RetryCronConfig) {
	go func() {
		ticker := time.NewTicker(retryTickInterval)
		defer ticker.Stop()

		log.Info().Msg("retry_cron: started")

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("retry_cron: shutting down")
				return
			case <-ticker.C:
				processRetries(ctx, cfg)
			}
		}
	}()
}

func processRetries(ctx context.Context, cfg RetryCronConfig) {
	now := time.Now()
	steps, err := cfg.StepRepo.ListDue(ctx, now, retryBatchSize)
	if err != nil {
		log.Error().Err(err).Msg("retry_cron: failed to query due steps")
		return
	}
	if len(steps) == 0 {
		return
	}

	log.Info().Int("count", len(steps)).Msg("retry_cron: processing due reconciliation steps")

	// Retry drives every outstanding step of an order, so run it once per
	// order even when several of its steps are due.
	seen := make(map[uuid.UUID]bool, len(steps))
	for i := range steps {
		step := &steps[i]

		if step.Attempts >= service.MaxStepRetries {
			parkStep(ctx, cfg, step)
			continue
		}

		if seen[step.OrderID] {
			continue
		}
		seen[step.OrderID] = true

		if err := cfg.Reconcile.Retry(ctx, step.OrderID); err != nil {
			log.Warn().Err(err).Str("order_id", step.OrderID.String()).
				Msg("retry_cron: order still has failing steps")
			continue
		}
		log.Info().Str("order_id", step.OrderID.String()).
			Msg("retry_cron: order reconciled after retry")
	}
}

// parkStep clears the step's schedule so the cron stops picking it up, and
// records it in the DLQ for manual inspection.
func parkStep(ctx context.Context, cfg RetryCronConfig, step *model.ReconciliationStep) {
	step.NextRetryAt = nil
	if err := cfg.StepRepo.Upsert(ctx, step); err != nil {
		log.Error().Err(err).Str("order_id", step.OrderID.String()).
			Str("step", step.Step).Msg("retry_cron: failed to park exhausted step")
		return
	}

	reason := "max retries exceeded"
	if step.LastError != nil {
		reason = fmt.Sprintf("max retries exceeded: %s", *step.LastError)
	}
	payload := fmt.Sprintf(`{"order_id":"%s","step":"%s"}`, step.OrderID, step.Step)
	SendToDLQ(ctx, cfg.RDB, QueueReconcile, step.Step, []byte(payload), reason, step.Attempts)

	log.Error().Str("order_id", step.OrderID.String()).Str("step", step.Step).
		Int("attempts", step.Attempts).Msg("retry_cron: step parked for manual reconciliation")
}
