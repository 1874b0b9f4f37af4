package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	QueueReconcile = "jobs:reconcile"
	QueueEmail     = "jobs:email"

	JobReconcile     = "reconcile"
	JobOrderEmail    = "order_email"
	JobClosingReport = "closing_report"
)

// Job is the generic envelope for all async tasks.
type Job struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// OrderJobPayload carries the order reference for order-scoped jobs.
type OrderJobPayload struct {
	OrderID string `json:"order_id"`
}

// ClosingReportPayload identifies the cash session to report on.
type ClosingReportPayload struct {
	Date string `json:"date"`
}

// Dispatcher enqueues async jobs into Redis lists.
// The worker pool dequeues them via BRPOP.
type Dispatcher struct {
	rdb *redis.Client
}

func NewDispatcher(rdb *redis.Client) *Dispatcher {
	return &Dispatcher{rdb: rdb}
}

// EnqueueReconcile schedules a reconciliation retry for an order with
// outstanding steps.
func (d *Dispatcher) EnqueueReconcile(ctx context.Context, orderID uuid.UUID) error {
	return d.enqueue(ctx, QueueReconcile, JobReconcile, OrderJobPayload{OrderID: orderID.String()})
}

// EnqueueOrderEmail schedules the confirmation email for a placed order.
func (d *Dispatcher) EnqueueOrderEmail(ctx context.Context, orderID uuid.UUID) error {
	return d.enqueue(ctx, QueueEmail, JobOrderEmail, OrderJobPayload{OrderID: orderID.String()})
}

// EnqueueClosingReport schedules the end-of-day report email for a closed
// session.
func (d *Dispatcher) EnqueueClosingReport(ctx context.Context, date string) error {
	return d.enqueue(ctx, QueueEmail, JobClosingReport, ClosingReportPayload{Date: date})
}

func (d *Dispatcher) enqueue(ctx context.Context, queue, jobType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	job := Job{Type: jobType, Payload: data}
	encoded, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return d.rdb.LPush(ctx, queue, encoded).Err()
}

// Handler processes one dequeued job.
type Handler interface {
	Process(ctx context.Context, job Job)
}

// Handlers maps each queue to its processor.
type Handlers struct {
	Email     Handler
	Reconcile Handler
}

// StartWorkerPool launches numWorkers goroutines consuming both queues.
// Each goroutine blocks on BRPOP — zero CPU when idle.
func StartWorkerPool(ctx context.Context, rdb *redis.Client, numWorkers int, handlers Handlers) {
	for i := 0; i < numWorkers; i++ {
		go runWorker(ctx, rdb, i, handlers)
	}
	log.Info().Msgf("worker pool started with %d workers", numWorkers)
}

func runWorker(ctx context.Context, rdb *redis.Client, id int, handlers Handlers) {
	queues := []string{QueueReconcile, QueueEmail}
	for {
		select {
		case <-ctx.Done():
			log.Info().Msgf("worker %d shutting down", id)
			return
		default:
			// Blocking pop — waits up to 5s then loops to check ctx
			result, err := rdb.BRPop(ctx, 5*time.Second, queues...).Result()
			if err != nil {
				continue // timeout or context cancelled
			}
			if len(result) < 2 {
				continue
			}
			processJob(ctx, handlers, result[0], result[1])
		}
	}
}

func processJob(ctx context.Context, handlers Handlers, queue, raw string) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		log.Error().Str("queue", queue).Err(err).Msg("failed to unmarshal job")
		return
	}

	var h Handler
	switch queue {
	case QueueEmail:
		h = handlers.Email
	case QueueReconcile:
		h = handlers.Reconcile
	}
	if h == nil {
		log.Warn().Str("queue", queue).Str("type", job.Type).Msg("no handler wired for queue")
		return
	}
	h.Process(ctx, job)
}
