package worker

// reconcile_worker.go
// Fast path for reconciliation retries: when a checkout or delivery leaves
// steps behind, the order is queued here and re-driven as soon as a worker
// picks it up. The retry cron remains the backstop for anything this misses.

import (
	"context"
	"encoding/json"

	"github.com/chicomed/kalia-shop-sub000/internal/service"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type ReconcileWorker struct {
	svc service.ReconcileService
}

func NewReconcileWorker(svc service.ReconcileService) *ReconcileWorker {
	return &ReconcileWorker{svc: svc}
}

func (w *ReconcileWorker) Process(ctx context.Context, job Job) {
	var payload OrderJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		log.Error().Err(err).Msg("reconcile_worker: invalid payload")
		return
	}
	orderID, err := uuid.Parse(payload.OrderID)
	if err != nil {
		log.Error().Str("order_id", payload.OrderID).Msg("reconcile_worker: invalid order id")
		return
	}

	if err := w.svc.Retry(ctx, orderID); err != nil {
		// Still failing; backoff bookkeeping is already written, the cron
		// will pick the steps up when next_retry_at passes.
		log.Warn().Err(err).Str("order_id", payload.OrderID).
			Msg("reconcile_worker: steps still outstanding")
		return
	}
	log.Info().Str("order_id", payload.OrderID).Msg("reconcile_worker: order reconciled")
}
