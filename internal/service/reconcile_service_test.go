package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/chicomed/kalia-shop-sub000/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type reconcileStack struct {
	orders     *fakeOrderRepo
	cashRepo   *fakeCashRepo
	clients    *fakeClientRepo
	steps      *fakeStepRepo
	dispatcher *fakeDispatcher
	svc        ReconcileService
}

func newReconcileStack() *reconcileStack {
	s := &reconcileStack{
		orders:     newFakeOrderRepo(),
		cashRepo:   newFakeCashRepo(),
		clients:    newFakeClientRepo(),
		steps:      newFakeStepRepo(),
		dispatcher: &fakeDispatcher{},
	}
	cashSvc := NewCashService(s.cashRepo, newMemLocker())
	clientSvc := NewClientService(s.clients, dec("10000"))
	s.svc = NewReconcileService(s.steps, s.orders, clientSvc, cashSvc, newMemLocker(), s.dispatcher)
	return s
}

func (s *reconcileStack) seedOrder(t *testing.T, method, total string) *model.Order {
	t.Helper()
	o := &model.Order{
		CustomerName:  "Test Customer",
		CustomerPhone: "48000000",
		Address:       "somewhere",
		PaymentMethod: method,
		Total:         dec(total),
		Status:        model.StatusPending,
	}
	require.NoError(t, s.orders.Create(context.Background(), o))
	return o
}

func (s *reconcileStack) countSales(t *testing.T) int {
	t.Helper()
	s.cashRepo.mu.Lock()
	defer s.cashRepo.mu.Unlock()
	n := 0
	for _, tx := range s.cashRepo.txs {
		if tx.Type == model.TxSale {
			n++
		}
	}
	return n
}

func TestOnCheckoutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := newReconcileStack()
	order := st.seedOrder(t, model.MethodBankily, "500")

	result := st.svc.OnCheckout(ctx, order)
	assert.Empty(t, result.Failed)
	assert.Equal(t, 1, st.countSales(t))

	// Replay: completed steps are skipped, nothing double-counts.
	result = st.svc.OnCheckout(ctx, order)
	assert.Empty(t, result.Failed)
	assert.Equal(t, 1, st.countSales(t))

	client, err := st.clients.FindByPhone(ctx, "48000000")
	require.NoError(t, err)
	assert.Equal(t, 1, client.TotalOrders)
	assert.True(t, client.TotalSpent.Equal(dec("500")))
}

func TestOnCheckoutBackfillsClientID(t *testing.T) {
	ctx := context.Background()
	st := newReconcileStack()
	order := st.seedOrder(t, model.MethodSadad, "120")

	st.svc.OnCheckout(ctx, order)

	stored, err := st.orders.FindByID(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ClientID)
	client, err := st.clients.FindByPhone(ctx, "48000000")
	require.NoError(t, err)
	assert.Equal(t, client.ID, *stored.ClientID)
}

func TestPartialFailureSurfacesAndRetries(t *testing.T) {
	ctx := context.Background()
	st := newReconcileStack()
	order := st.seedOrder(t, model.MethodMasrivi, "300")

	// Journal writes fail: client stats land, cash sale does not.
	st.cashRepo.failAppend = true
	result := st.svc.OnCheckout(ctx, order)
	assert.Equal(t, []string{model.StepCashSale}, result.Failed)
	assert.Len(t, st.dispatcher.reconciles, 1, "failed step enqueues a retry job")

	client, err := st.clients.FindByPhone(ctx, "48000000")
	require.NoError(t, err)
	assert.Equal(t, 1, client.TotalOrders, "client step committed despite cash failure")

	rec, err := st.steps.Find(ctx, order.ID, model.StepCashSale)
	require.NoError(t, err)
	assert.Equal(t, model.StepFailed, rec.Status)
	assert.Equal(t, 1, rec.Attempts)
	assert.NotNil(t, rec.NextRetryAt)

	// Journal recovers: retry completes the missing step only.
	st.cashRepo.failAppend = false
	require.NoError(t, st.svc.Retry(ctx, order.ID))
	assert.Equal(t, 1, st.countSales(t))

	rec, err = st.steps.Find(ctx, order.ID, model.StepCashSale)
	require.NoError(t, err)
	assert.Equal(t, model.StepDone, rec.Status)

	// Client stats were not re-applied by the retry.
	client, _ = st.clients.FindByPhone(ctx, "48000000")
	assert.Equal(t, 1, client.TotalOrders)
	assert.True(t, client.TotalSpent.Equal(dec("300")))
}

func TestFailedStepBackoffGrows(t *testing.T) {
	ctx := context.Background()
	st := newReconcileStack()
	order := st.seedOrder(t, model.MethodOther, "50")

	st.cashRepo.failAppend = true
	st.svc.OnCheckout(ctx, order)
	first, err := st.steps.Find(ctx, order.ID, model.StepCashSale)
	require.NoError(t, err)

	err = st.svc.Retry(ctx, order.ID)
	assert.Error(t, err, "retry against a still-failing journal reports failure")

	second, err := st.steps.Find(ctx, order.ID, model.StepCashSale)
	require.NoError(t, err)
	assert.Equal(t, 2, second.Attempts)
	assert.True(t, second.NextRetryAt.After(*first.NextRetryAt))
}

func TestConcurrentRetriesPostSaleOnce(t *testing.T) {
	ctx := context.Background()
	st := newReconcileStack()
	order := st.seedOrder(t, model.MethodBankily, "100")

	// Leave the cash step outstanding, then let two drivers race for it —
	// the queue worker and the sweeper both re-drive the same order.
	st.cashRepo.failAppend = true
	st.svc.OnCheckout(ctx, order)
	st.cashRepo.failAppend = false

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = st.svc.Retry(ctx, order.ID)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, st.countSales(t), "racing retries must not double-post the sale")
	rec, err := st.steps.Find(ctx, order.ID, model.StepCashSale)
	require.NoError(t, err)
	assert.Equal(t, model.StepDone, rec.Status)
}

func TestOnDeliveredPostsDeferredCashSale(t *testing.T) {
	ctx := context.Background()
	st := newReconcileStack()
	order := st.seedOrder(t, model.MethodCash, "220")

	result := st.svc.OnCheckout(ctx, order)
	assert.Empty(t, result.Failed)
	assert.Equal(t, 0, st.countSales(t), "pay-on-delivery defers the sale")

	order.Status = model.StatusDelivered
	require.NoError(t, st.orders.Update(ctx, order))

	result = st.svc.OnDelivered(ctx, order)
	assert.Empty(t, result.Failed)
	assert.Equal(t, 1, st.countSales(t))

	// Replay of the delivery hook does not double-post.
	result = st.svc.OnDelivered(ctx, order)
	assert.Empty(t, result.Failed)
	assert.Equal(t, 1, st.countSales(t))
}

func TestOnDeliveredNoopForPrepaidOrders(t *testing.T) {
	ctx := context.Background()
	st := newReconcileStack()
	order := st.seedOrder(t, model.MethodBimbanque, "75")

	st.svc.OnCheckout(ctx, order)
	require.Equal(t, 1, st.countSales(t))

	order.Status = model.StatusDelivered
	require.NoError(t, st.orders.Update(ctx, order))
	result := st.svc.OnDelivered(ctx, order)
	assert.Empty(t, result.Failed)
	assert.Equal(t, 1, st.countSales(t), "prepaid sale was already posted at checkout")
}

func TestRetrySkipsCancelledOrders(t *testing.T) {
	ctx := context.Background()
	st := newReconcileStack()
	order := st.seedOrder(t, model.MethodClick, "90")

	st.cashRepo.failAppend = true
	st.svc.OnCheckout(ctx, order)

	order.Status = model.StatusCancelled
	require.NoError(t, st.orders.Update(ctx, order))

	st.cashRepo.failAppend = false
	require.NoError(t, st.svc.Retry(ctx, order.ID))
	assert.Equal(t, 0, st.countSales(t), "cancelled orders never post sales")

	// The moot step is resolved so the sweeper stops picking it up.
	rec, err := st.steps.Find(ctx, order.ID, model.StepCashSale)
	require.NoError(t, err)
	assert.Equal(t, model.StepDone, rec.Status)
	assert.Nil(t, rec.NextRetryAt)
}

func TestRetryUnknownOrder(t *testing.T) {
	ctx := context.Background()
	st := newReconcileStack()
	assert.ErrorIs(t, st.svc.Retry(ctx, uuid.New()), ErrNotFound)
}

func TestStepBackoffSchedule(t *testing.T) {
	assert.Equal(t, time.Minute, stepBackoff(1))
	assert.Equal(t, 5*time.Minute, stepBackoff(2))
	assert.Equal(t, 15*time.Minute, stepBackoff(3))
	assert.Equal(t, 30*time.Minute, stepBackoff(4))
	assert.Equal(t, 30*time.Minute, stepBackoff(9))
}
