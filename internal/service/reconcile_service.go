package service

import (
	"context"
	"errors"
	"time"

	"github.com/chicomed/kalia-shop-sub000/internal/dto"
	"github.com/chicomed/kalia-shop-sub000/internal/model"
	"github.com/chicomed/kalia-shop-sub000/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// JobDispatcher enqueues async follow-up work. The worker package provides
// the redis-backed implementation; a nil dispatcher disables enqueueing
// (unit tests, one-shot tools).
type JobDispatcher interface {
	EnqueueReconcile(ctx context.Context, orderID uuid.UUID) error
	EnqueueOrderEmail(ctx context.Context, orderID uuid.UUID) error
	EnqueueClosingReport(ctx context.Context, date string) error
}

// ReconcileResult reports which cross-entity steps could not complete.
// The primary order write always stands; a non-empty Failed list means the
// client ledger or cash session is stale until a retry succeeds.
type ReconcileResult struct {
	Failed []string
}

// ReconcileService performs the correlated writes that keep Order, Client and
// DailyCashSession consistent. No storage transaction spans the three, so
// every step is idempotent, keyed by (order, step): a completed step is
// skipped on replay and a failed one is retried without double-posting. A
// per-order lock serializes concurrent drivers (queue worker, sweeper,
// replayed webhook) so the step check and its write cannot interleave.
type ReconcileService interface {
	// OnCheckout runs after the order row is persisted: client upsert + stat
	// update, then (for immediate payment methods) the cash sale posting.
	OnCheckout(ctx context.Context, order *model.Order) *ReconcileResult
	// OnDelivered posts the deferred cash sale for a pay-on-delivery order.
	// Client stats were already recorded at checkout and are not touched.
	OnDelivered(ctx context.Context, order *model.Order) *ReconcileResult
	// Retry re-runs the order's outstanding steps. Safe to call repeatedly.
	Retry(ctx context.Context, orderID uuid.UUID) error
}

// MaxStepRetries bounds background re-attempts before a step is parked for
// manual reconciliation.
const MaxStepRetries = 10

type reconcileService struct {
	steps      repository.ReconciliationRepository
	orders     repository.OrderRepository
	clients    ClientService
	cash       CashService
	locker     Locker
	dispatcher JobDispatcher
	now        func() time.Time
}

func NewReconcileService(
	steps repository.ReconciliationRepository,
	orders repository.OrderRepository,
	clients ClientService,
	cash CashService,
	locker Locker,
	dispatcher JobDispatcher,
) ReconcileService {
	return &reconcileService{
		steps:      steps,
		orders:     orders,
		clients:    clients,
		cash:       cash,
		locker:     locker,
		dispatcher: dispatcher,
		now:        time.Now,
	}
}

// ── Checkout ─────────────────────────────────────────────────────────────────

func (s *reconcileService) OnCheckout(ctx context.Context, order *model.Order) *ReconcileResult {
	result := &ReconcileResult{}

	unlock, err := s.lockOrder(ctx, order.ID)
	if err != nil {
		// Without the lock nothing runs; every due step goes to retry.
		result.Failed = append(result.Failed, model.StepClientStats)
		if !order.PayOnDelivery() {
			result.Failed = append(result.Failed, model.StepCashSale)
		}
		s.enqueueRetryIfNeeded(ctx, order.ID, result)
		return result
	}
	defer unlock()

	s.runStep(ctx, order.ID, model.StepClientStats, result, func() error {
		return s.recordClientStats(ctx, order)
	})

	// Pay-on-delivery defers the cash effect until the delivered transition.
	if !order.PayOnDelivery() {
		s.runStep(ctx, order.ID, model.StepCashSale, result, func() error {
			_, err := s.cash.PostOrderSale(ctx, order, order.PaymentMethod)
			return err
		})
	}

	s.enqueueRetryIfNeeded(ctx, order.ID, result)
	return result
}

// ── Delivery ─────────────────────────────────────────────────────────────────

func (s *reconcileService) OnDelivered(ctx context.Context, order *model.Order) *ReconcileResult {
	result := &ReconcileResult{}
	if !order.PayOnDelivery() {
		return result
	}

	unlock, err := s.lockOrder(ctx, order.ID)
	if err != nil {
		result.Failed = append(result.Failed, model.StepCashSale)
		s.enqueueRetryIfNeeded(ctx, order.ID, result)
		return result
	}
	defer unlock()

	s.runStep(ctx, order.ID, model.StepCashSale, result, func() error {
		_, err := s.cash.PostOrderSale(ctx, order, model.MethodCash)
		return err
	})
	s.enqueueRetryIfNeeded(ctx, order.ID, result)
	return result
}

// ── Retry ────────────────────────────────────────────────────────────────────

func (s *reconcileService) Retry(ctx context.Context, orderID uuid.UUID) error {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}

	unlock, err := s.lockOrder(ctx, order.ID)
	if err != nil {
		return err
	}
	defer unlock()

	result := &ReconcileResult{}
	s.runStep(ctx, order.ID, model.StepClientStats, result, func() error {
		return s.recordClientStats(ctx, order)
	})

	// The cash sale is due immediately for prepaid orders, and only after
	// delivery for pay-on-delivery ones. A cancelled order never posts one;
	// any outstanding step is resolved so the sweeper stops picking it up.
	saleDue := !order.PayOnDelivery() || order.Status == model.StatusDelivered
	switch {
	case order.Status == model.StatusCancelled:
		s.resolveStep(ctx, order.ID, model.StepCashSale)
	case saleDue:
		method := order.PaymentMethod
		if order.PayOnDelivery() {
			method = model.MethodCash
		}
		s.runStep(ctx, order.ID, model.StepCashSale, result, func() error {
			_, err := s.cash.PostOrderSale(ctx, order, method)
			return err
		})
	}

	if len(result.Failed) > 0 {
		return errors.New("reconciliation steps still failing: " + result.Failed[0])
	}
	return nil
}

// ── Step machinery ───────────────────────────────────────────────────────────

// lockOrder serializes step execution for one order. The step table's Find →
// run → Upsert sequence is check-then-act; without this, the queue worker and
// the sweeper could both see a step as outstanding and both post its write.
func (s *reconcileService) lockOrder(ctx context.Context, orderID uuid.UUID) (func(), error) {
	unlock, err := s.locker.Lock(ctx, "reconcile:"+orderID.String())
	if err != nil {
		log.Error().Err(err).Str("order_id", orderID.String()).
			Msg("reconcile: failed to acquire order lock")
		return nil, err
	}
	return unlock, nil
}

// runStep executes one correlated write exactly once per order. A step that
// already completed is skipped; a failure is recorded with retry bookkeeping
// and added to the result.
func (s *reconcileService) runStep(ctx context.Context, orderID uuid.UUID, step string, result *ReconcileResult, fn func() error) {
	rec, err := s.steps.Find(ctx, orderID, step)
	if err == nil && rec.Status == model.StepDone {
		return
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		log.Error().Err(err).Str("order_id", orderID.String()).Str("step", step).
			Msg("reconcile: step lookup failed")
		result.Failed = append(result.Failed, step)
		return
	}

	attempts := 1
	if rec != nil {
		attempts = rec.Attempts + 1
	}

	if stepErr := fn(); stepErr != nil {
		msg := stepErr.Error()
		next := s.now().Add(stepBackoff(attempts))
		_ = s.steps.Upsert(ctx, &model.ReconciliationStep{
			OrderID:     orderID,
			Step:        step,
			Status:      model.StepFailed,
			Attempts:    attempts,
			LastError:   &msg,
			NextRetryAt: &next,
		})
		log.Error().Err(stepErr).Str("order_id", orderID.String()).Str("step", step).
			Int("attempts", attempts).Msg("reconcile: step failed")
		result.Failed = append(result.Failed, step)
		return
	}

	if err := s.steps.Upsert(ctx, &model.ReconciliationStep{
		OrderID:  orderID,
		Step:     step,
		Status:   model.StepDone,
		Attempts: attempts,
	}); err != nil {
		// The write itself succeeded; a lost marker only risks a redundant
		// retry, which the step guard absorbs.
		log.Error().Err(err).Str("order_id", orderID.String()).Str("step", step).
			Msg("reconcile: failed to mark step done")
	}
}

// resolveStep marks an outstanding step done without running it, for steps
// that became moot (e.g. the sale of a since-cancelled order).
func (s *reconcileService) resolveStep(ctx context.Context, orderID uuid.UUID, step string) {
	rec, err := s.steps.Find(ctx, orderID, step)
	if err != nil || rec.Status == model.StepDone {
		return
	}
	rec.Status = model.StepDone
	rec.NextRetryAt = nil
	if err := s.steps.Upsert(ctx, rec); err != nil {
		log.Error().Err(err).Str("order_id", orderID.String()).Str("step", step).
			Msg("reconcile: failed to resolve moot step")
	}
}

func (s *reconcileService) recordClientStats(ctx context.Context, order *model.Order) error {
	details := dto.CreateClientRequest{
		Name:    order.CustomerName,
		Phone:   order.CustomerPhone,
		Email:   order.CustomerEmail,
		Address: &order.Address,
	}
	client, err := s.clients.FindOrCreate(ctx, details)
	if err != nil {
		return err
	}

	// RecordOrder re-reads by phone internally, so stats start from the
	// just-persisted totals rather than the snapshot above.
	if _, err := s.clients.RecordOrder(ctx, order.CustomerPhone, order.Total); err != nil {
		return err
	}

	if order.ClientID == nil {
		clientID := client.ID
		order.ClientID = &clientID
		if err := s.orders.Update(ctx, order); err != nil {
			return err
		}
	}
	return nil
}

func (s *reconcileService) enqueueRetryIfNeeded(ctx context.Context, orderID uuid.UUID, result *ReconcileResult) {
	if len(result.Failed) == 0 || s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.EnqueueReconcile(ctx, orderID); err != nil {
		log.Error().Err(err).Str("order_id", orderID.String()).
			Msg("reconcile: failed to enqueue retry job")
	}
}

// stepBackoff spaces retries out progressively; the sweeper picks steps up
// once next_retry_at passes.
func stepBackoff(attempts int) time.Duration {
	switch {
	case attempts <= 1:
		return time.Minute
	case attempts == 2:
		return 5 * time.Minute
	case attempts == 3:
		return 15 * time.Minute
	default:
		return 30 * time.Minute
	}
}
