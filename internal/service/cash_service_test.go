package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/chicomed/kalia-shop-sub000/internal/dto"
	"github.com/chicomed/kalia-shop-sub000/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCashServiceForTest(repo *fakeCashRepo, date string) *cashService {
	svc := NewCashService(repo, newMemLocker()).(*cashService)
	fixed, _ := time.Parse(dateLayout, date)
	svc.now = func() time.Time { return fixed.Add(12 * time.Hour) }
	return svc
}

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

// checkInvariant asserts closing = opening + sales - refunds - expenses.
func checkInvariant(t *testing.T, s *dto.CashSessionResponse) {
	t.Helper()
	expected := s.OpeningBalance.Add(s.TotalSales).Sub(s.TotalRefunds).Sub(s.TotalExpenses)
	assert.True(t, s.ClosingBalance.Equal(expected),
		"closing %s != opening %s + sales %s - refunds %s - expenses %s",
		s.ClosingBalance, s.OpeningBalance, s.TotalSales, s.TotalRefunds, s.TotalExpenses)
}

func TestCashDayLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newFakeCashRepo()
	const date = "2025-03-10"
	svc := newCashServiceForTest(repo, date)
	staff := uuid.New()

	// Day starts unopened, all zero.
	sess, err := svc.GetOrCreate(ctx, date)
	require.NoError(t, err)
	assert.False(t, sess.IsOpen)
	assert.True(t, sess.ClosingBalance.IsZero())

	// Open with zero float.
	sess, err = svc.Open(ctx, date, decimal.Zero, staff)
	require.NoError(t, err)
	assert.True(t, sess.IsOpen)
	checkInvariant(t, sess)

	// Sale of 100 in cash.
	_, err = svc.PostManual(ctx, dto.ManualEntryRequest{
		Date: date, Type: model.TxSale, PaymentMethod: model.MethodCash,
		Amount: dec("100"), Description: "walk-in sale",
	}, staff)
	require.NoError(t, err)

	// Refund of 30 in cash.
	_, err = svc.PostManual(ctx, dto.ManualEntryRequest{
		Date: date, Type: model.TxRefund, PaymentMethod: model.MethodCash,
		Amount: dec("30"), Description: "returned item",
	}, staff)
	require.NoError(t, err)

	sess, err = svc.GetOrCreate(ctx, date)
	require.NoError(t, err)
	assert.True(t, sess.TotalSales.Equal(dec("100")))
	assert.True(t, sess.TotalRefunds.Equal(dec("30")))
	assert.True(t, sess.ClosingBalance.Equal(dec("70")))
	assert.True(t, sess.PaymentMethods[model.MethodCash].Equal(dec("70")))
	checkInvariant(t, sess)

	// Close: balances freeze, closing marker lands in the journal.
	closed, err := svc.Close(ctx, date, staff)
	require.NoError(t, err)
	assert.False(t, closed.IsOpen)
	assert.True(t, closed.ClosingBalance.Equal(dec("70")))
	last := closed.Transactions[len(closed.Transactions)-1]
	assert.Equal(t, model.TxClosing, last.Type)
	checkInvariant(t, closed)
}

func TestCashInvariantHeldAfterEveryPosting(t *testing.T) {
	ctx := context.Background()
	repo := newFakeCashRepo()
	const date = "2025-03-11"
	svc := newCashServiceForTest(repo, date)
	staff := uuid.New()

	_, err := svc.Open(ctx, date, dec("500"), staff)
	require.NoError(t, err)

	entries := []dto.ManualEntryRequest{
		{Date: date, Type: model.TxSale, PaymentMethod: model.MethodBankily, Amount: dec("250.50"), Description: "order pickup"},
		{Date: date, Type: model.TxExpense, PaymentMethod: model.MethodCash, Amount: dec("40"), Description: "courier fee"},
		{Date: date, Type: model.TxSale, PaymentMethod: model.MethodSadad, Amount: dec("99.99"), Description: "phone order"},
		{Date: date, Type: model.TxRefund, PaymentMethod: model.MethodBankily, Amount: dec("50"), Description: "damaged item"},
	}
	for _, e := range entries {
		_, err := svc.PostManual(ctx, e, staff)
		require.NoError(t, err)
		sess, err := svc.GetOrCreate(ctx, date)
		require.NoError(t, err)
		checkInvariant(t, sess)
	}

	sess, _ := svc.GetOrCreate(ctx, date)
	assert.True(t, sess.TotalSales.Equal(dec("350.49")))
	assert.True(t, sess.TotalRefunds.Equal(dec("50")))
	assert.True(t, sess.TotalExpenses.Equal(dec("40")))
	// Expense debits the bucket it was paid from.
	assert.True(t, sess.PaymentMethods[model.MethodCash].Equal(dec("460")))
	assert.True(t, sess.PaymentMethods[model.MethodBankily].Equal(dec("200.50")))
}

func TestOpenTwiceRejectedWithoutMutation(t *testing.T) {
	ctx := context.Background()
	repo := newFakeCashRepo()
	const date = "2025-03-12"
	svc := newCashServiceForTest(repo, date)
	staff := uuid.New()

	_, err := svc.Open(ctx, date, dec("100"), staff)
	require.NoError(t, err)

	_, err = svc.Open(ctx, date, dec("999"), staff)
	assert.ErrorIs(t, err, ErrAlreadyOpen)

	sess, err := svc.GetOrCreate(ctx, date)
	require.NoError(t, err)
	assert.True(t, sess.OpeningBalance.Equal(dec("100")), "second open must not touch the session")
	assert.Len(t, sess.Transactions, 1) // only the first opening marker
}

func TestCloseAndPostRequireOpenSession(t *testing.T) {
	ctx := context.Background()
	repo := newFakeCashRepo()
	const date = "2025-03-13"
	svc := newCashServiceForTest(repo, date)
	staff := uuid.New()

	_, err := svc.GetOrCreate(ctx, date)
	require.NoError(t, err)

	_, err = svc.Close(ctx, date, staff)
	assert.ErrorIs(t, err, ErrNotOpen)

	_, err = svc.PostManual(ctx, dto.ManualEntryRequest{
		Date: date, Type: model.TxSale, PaymentMethod: model.MethodCash,
		Amount: dec("10"), Description: "should fail",
	}, staff)
	assert.ErrorIs(t, err, ErrNotOpen)

	// Closing an untouched date reports not found.
	_, err = svc.Close(ctx, "2025-03-14", staff)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostManualValidation(t *testing.T) {
	ctx := context.Background()
	repo := newFakeCashRepo()
	const date = "2025-03-15"
	svc := newCashServiceForTest(repo, date)
	staff := uuid.New()

	_, err := svc.Open(ctx, date, decimal.Zero, staff)
	require.NoError(t, err)

	var vErr *ValidationError

	_, err = svc.PostManual(ctx, dto.ManualEntryRequest{
		Date: date, Type: "donation", PaymentMethod: model.MethodCash,
		Amount: dec("10"), Description: "bad type",
	}, staff)
	assert.ErrorAs(t, err, &vErr)

	_, err = svc.PostManual(ctx, dto.ManualEntryRequest{
		Date: date, Type: model.TxSale, PaymentMethod: "paypal",
		Amount: dec("10"), Description: "bad method",
	}, staff)
	assert.ErrorAs(t, err, &vErr)

	_, err = svc.PostManual(ctx, dto.ManualEntryRequest{
		Date: date, Type: model.TxSale, PaymentMethod: model.MethodCash,
		Amount: dec("-5"), Description: "negative amount",
	}, staff)
	assert.ErrorAs(t, err, &vErr)

	// Nothing landed in the journal besides the opening marker.
	sess, _ := svc.GetOrCreate(ctx, date)
	assert.Len(t, sess.Transactions, 1)
}

func TestResetArchivesAndStartsOver(t *testing.T) {
	ctx := context.Background()
	repo := newFakeCashRepo()
	const date = "2025-03-16"
	svc := newCashServiceForTest(repo, date)
	admin := uuid.New()

	_, err := svc.Open(ctx, date, dec("200"), admin)
	require.NoError(t, err)
	_, err = svc.PostManual(ctx, dto.ManualEntryRequest{
		Date: date, Type: model.TxSale, PaymentMethod: model.MethodClick,
		Amount: dec("75"), Description: "mis-entered sale",
	}, admin)
	require.NoError(t, err)

	fresh, err := svc.Reset(ctx, date, admin)
	require.NoError(t, err)
	assert.False(t, fresh.IsOpen)
	assert.True(t, fresh.ClosingBalance.IsZero())
	assert.Empty(t, fresh.Transactions)

	// The old day survives in the archive, totals intact.
	hist, err := svc.History(ctx, date, date)
	require.NoError(t, err)
	require.Len(t, hist.Archive, 1)
	assert.True(t, hist.Archive[0].TotalSales.Equal(dec("75")))
	assert.Equal(t, 2, hist.Archive[0].TransactionCount) // opening + sale

	// A new posting cycle on the fresh session starts from zero.
	_, err = svc.Open(ctx, date, decimal.Zero, admin)
	require.NoError(t, err)
	sess, _ := svc.GetOrCreate(ctx, date)
	assert.True(t, sess.TotalSales.IsZero())
	assert.Len(t, sess.Transactions, 1)
}

func TestLossMakingDayStillCloses(t *testing.T) {
	ctx := context.Background()
	repo := newFakeCashRepo()
	const date = "2025-03-19"
	svc := newCashServiceForTest(repo, date)
	staff := uuid.New()

	// Zero float, then an expense: the balance goes negative, which is a
	// valid day (supplier paid from the drawer before any sales).
	_, err := svc.Open(ctx, date, decimal.Zero, staff)
	require.NoError(t, err)
	_, err = svc.PostManual(ctx, dto.ManualEntryRequest{
		Date: date, Type: model.TxExpense, PaymentMethod: model.MethodCash,
		Amount: dec("50"), Description: "supplier delivery",
	}, staff)
	require.NoError(t, err)

	closed, err := svc.Close(ctx, date, staff)
	require.NoError(t, err, "a negative balance must not block closing")
	assert.False(t, closed.IsOpen)
	assert.True(t, closed.ClosingBalance.Equal(dec("-50")))
	checkInvariant(t, closed)

	// The closing marker carries the signed balance.
	last := closed.Transactions[len(closed.Transactions)-1]
	assert.Equal(t, model.TxClosing, last.Type)
	assert.True(t, last.Amount.Equal(dec("-50")))
}

func TestJournalSpansResetGenerations(t *testing.T) {
	ctx := context.Background()
	repo := newFakeCashRepo()
	const date = "2025-03-20"
	svc := newCashServiceForTest(repo, date)
	staff := uuid.New()

	_, err := svc.Open(ctx, date, decimal.Zero, staff)
	require.NoError(t, err)
	_, err = svc.PostManual(ctx, dto.ManualEntryRequest{
		Date: date, Type: model.TxSale, PaymentMethod: model.MethodCash,
		Amount: dec("80"), Description: "first generation",
	}, staff)
	require.NoError(t, err)

	_, err = svc.Reset(ctx, date, staff)
	require.NoError(t, err)
	_, err = svc.Open(ctx, date, decimal.Zero, staff)
	require.NoError(t, err)
	_, err = svc.PostManual(ctx, dto.ManualEntryRequest{
		Date: date, Type: model.TxSale, PaymentMethod: model.MethodCash,
		Amount: dec("20"), Description: "second generation",
	}, staff)
	require.NoError(t, err)

	// The session view only shows the live generation.
	sess, err := svc.GetOrCreate(ctx, date)
	require.NoError(t, err)
	assert.Len(t, sess.Transactions, 2)

	// The day's journal keeps both generations in insertion order.
	journal, err := svc.Journal(ctx, date)
	require.NoError(t, err)
	require.Len(t, journal, 4)
	assert.True(t, journal[1].Amount.Equal(dec("80")))
	assert.True(t, journal[3].Amount.Equal(dec("20")))

	var vErr *ValidationError
	_, err = svc.Journal(ctx, "20-03-2025")
	assert.ErrorAs(t, err, &vErr)
}

func TestResetAfterArchiveKeepsSingleSnapshot(t *testing.T) {
	ctx := context.Background()
	repo := newFakeCashRepo()
	const date = "2025-03-21"
	svc := newCashServiceForTest(repo, date)
	admin := uuid.New()

	_, err := svc.Open(ctx, date, decimal.Zero, admin)
	require.NoError(t, err)
	_, err = svc.PostManual(ctx, dto.ManualEntryRequest{
		Date: date, Type: model.TxSale, PaymentMethod: model.MethodCash,
		Amount: dec("75"), Description: "sale",
	}, admin)
	require.NoError(t, err)
	_, err = svc.Close(ctx, date, admin)
	require.NoError(t, err)
	require.NoError(t, svc.Archive(ctx, date))

	// Resetting the already-archived day must not snapshot it a second time.
	fresh, err := svc.Reset(ctx, date, admin)
	require.NoError(t, err)
	assert.Empty(t, fresh.Transactions)

	hist, err := svc.History(ctx, date, date)
	require.NoError(t, err)
	assert.Len(t, hist.Archive, 1)
	assert.True(t, hist.Archive[0].TotalSales.Equal(dec("75")))

	// The old generation's entries are still reachable through the journal.
	journal, err := svc.Journal(ctx, date)
	require.NoError(t, err)
	assert.Len(t, journal, 3) // opening + sale + closing marker
}

func TestConcurrentOrderSalesBothCounted(t *testing.T) {
	ctx := context.Background()
	repo := newFakeCashRepo()
	const date = "2025-03-17"
	svc := newCashServiceForTest(repo, date)
	staff := uuid.New()

	_, err := svc.Open(ctx, date, decimal.Zero, staff)
	require.NoError(t, err)

	orderA := &model.Order{ID: uuid.New(), CustomerName: "A", Total: dec("50")}
	orderB := &model.Order{ID: uuid.New(), CustomerName: "B", Total: dec("70")}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := svc.PostOrderSale(ctx, orderA, model.MethodBankily)
		assert.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		_, err := svc.PostOrderSale(ctx, orderB, model.MethodBankily)
		assert.NoError(t, err)
	}()
	wg.Wait()

	sess, err := svc.GetOrCreate(ctx, date)
	require.NoError(t, err)
	assert.True(t, sess.TotalSales.Equal(dec("120")), "both sales must survive, got %s", sess.TotalSales)
	assert.True(t, sess.PaymentMethods[model.MethodBankily].Equal(dec("120")))
	assert.Len(t, sess.Transactions, 3) // opening + 2 sales
	checkInvariant(t, sess)
}

func TestPeriodTotalsSpansArchiveAndLive(t *testing.T) {
	ctx := context.Background()
	repo := newFakeCashRepo()
	const date = "2025-03-18"
	svc := newCashServiceForTest(repo, date)
	staff := uuid.New()

	_, err := svc.Open(ctx, date, decimal.Zero, staff)
	require.NoError(t, err)
	_, err = svc.PostManual(ctx, dto.ManualEntryRequest{
		Date: date, Type: model.TxSale, PaymentMethod: model.MethodCash,
		Amount: dec("80"), Description: "first generation",
	}, staff)
	require.NoError(t, err)

	// Reset mid-day, then more sales on the fresh session.
	_, err = svc.Reset(ctx, date, staff)
	require.NoError(t, err)
	_, err = svc.Open(ctx, date, decimal.Zero, staff)
	require.NoError(t, err)
	_, err = svc.PostManual(ctx, dto.ManualEntryRequest{
		Date: date, Type: model.TxSale, PaymentMethod: model.MethodCash,
		Amount: dec("20"), Description: "second generation",
	}, staff)
	require.NoError(t, err)

	// Period totals count the archived generation and the live one.
	totals, err := svc.PeriodTotals(ctx, "today")
	require.NoError(t, err)
	assert.True(t, totals.TotalSales.Equal(dec("100")), "got %s", totals.TotalSales)
	assert.True(t, totals.Net.Equal(dec("100")))

	_, err = svc.PeriodTotals(ctx, "quarter")
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)
}
