package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chicomed/kalia-shop-sub000/internal/dto"
	"github.com/chicomed/kalia-shop-sub000/internal/model"
	"github.com/chicomed/kalia-shop-sub000/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const dateLayout = "2006-01-02"

// Locker serializes postings against one cash date so concurrent appends
// cannot interleave their aggregate recomputation. Production wiring uses
// the redislock-backed implementation in infra.
type Locker interface {
	// Lock blocks until the key is held and returns the release func.
	Lock(ctx context.Context, key string) (func(), error)
}

type CashService interface {
	// GetOrCreate returns the session for a date, creating an empty unopened
	// one the first time the date is touched.
	GetOrCreate(ctx context.Context, date string) (*dto.CashSessionResponse, error)
	// Open starts the day: sets the opening balance and writes the opening
	// journal marker. Rejects an already-open session.
	Open(ctx context.Context, date string, openingBalance decimal.Decimal, actor uuid.UUID) (*dto.CashSessionResponse, error)
	// PostManual appends a staff-entered sale/refund/expense. Requires the
	// session to be open.
	PostManual(ctx context.Context, req dto.ManualEntryRequest, actor uuid.UUID) (*dto.TransactionResponse, error)
	// PostOrderSale appends the sale entry for an order under the given
	// method. Reconciliation postings land on the day's session whether or
	// not it has been opened: the money moved when the order did, and the
	// journal must say so.
	PostOrderSale(ctx context.Context, order *model.Order, method string) (*model.Transaction, error)
	// Close ends the day. The session becomes eligible for archival.
	Close(ctx context.Context, date string, actor uuid.UUID) (*dto.CashSessionResponse, error)
	// Archive freezes a closed session into the history archive.
	Archive(ctx context.Context, date string) error
	// Reset archives the current session and recreates an empty unopened one
	// for the same date. Manual admin correction; irreversible.
	Reset(ctx context.Context, date string, actor uuid.UUID) (*dto.CashSessionResponse, error)
	// Journal returns every entry posted on a date in insertion order,
	// spanning reset generations; the session view only shows the live one.
	Journal(ctx context.Context, date string) ([]dto.TransactionResponse, error)
	// History returns archived snapshots plus live sessions in [start, end].
	History(ctx context.Context, start, end string) (*dto.CashHistoryResponse, error)
	// PeriodTotals folds ledger totals over today/week/month.
	PeriodTotals(ctx context.Context, period string) (*dto.PeriodTotalsResponse, error)
}

type cashService struct {
	repo   repository.CashRepository
	locker Locker
	now    func() time.Time
}

func NewCashService(repo repository.CashRepository, locker Locker) CashService {
	return &cashService{repo: repo, locker: locker, now: time.Now}
}

// Today returns the current calendar date key.
func Today() string { return time.Now().Format(dateLayout) }

// ── GetOrCreate ──────────────────────────────────────────────────────────────

func (s *cashService) GetOrCreate(ctx context.Context, date string) (*dto.CashSessionResponse, error) {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return nil, &ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"}
	}
	sess, err := s.getOrCreateSession(ctx, date)
	if err != nil {
		return nil, err
	}
	txs, err := s.repo.ListTransactionsBySession(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	return sessionToResponse(sess, txs), nil
}

func (s *cashService) getOrCreateSession(ctx context.Context, date string) (*model.DailyCashSession, error) {
	sess, err := s.repo.FindSessionByDate(ctx, date)
	if err == nil {
		return sess, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	sess = &model.DailyCashSession{
		Date:           date,
		IsOpen:         false,
		OpeningBalance: decimal.Zero,
		ClosingBalance: decimal.Zero,
		TotalSales:     decimal.Zero,
		TotalRefunds:   decimal.Zero,
		TotalExpenses:  decimal.Zero,
		MethodTotals:   map[string]decimal.Decimal{},
	}
	if err := s.repo.CreateSession(ctx, sess); err != nil {
		// Lost a create race — the other writer's row wins.
		if existing, ferr := s.repo.FindSessionByDate(ctx, date); ferr == nil {
			return existing, nil
		}
		return nil, err
	}
	return sess, nil
}

// ── Open ─────────────────────────────────────────────────────────────────────

func (s *cashService) Open(ctx context.Context, date string, openingBalance decimal.Decimal, actor uuid.UUID) (*dto.CashSessionResponse, error) {
	if openingBalance.IsNegative() {
		return nil, &ValidationError{Field: "opening_balance", Reason: "must not be negative"}
	}

	unlock, err := s.locker.Lock(ctx, "cash:"+date)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess, err := s.getOrCreateSession(ctx, date)
	if err != nil {
		return nil, err
	}
	if sess.IsOpen {
		return nil, ErrAlreadyOpen
	}

	now := s.now()
	sess.IsOpen = true
	sess.OpeningBalance = openingBalance
	sess.ClosingBalance = openingBalance
	sess.OpenedBy = &actor
	sess.OpenedAt = &now
	sess.ClosedBy = nil
	sess.ClosedAt = nil
	if err := s.repo.UpdateSession(ctx, sess); err != nil {
		return nil, err
	}

	txs, err := s.appendAndFold(ctx, sess, &model.Transaction{
		Type:          model.TxOpening,
		Amount:        openingBalance,
		PaymentMethod: model.MethodCash,
		Description:   "Opening balance",
		CreatedBy:     &actor,
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("date", date).Str("opened_by", actor.String()).
		Str("opening_balance", openingBalance.String()).Msg("cash session opened")
	return sessionToResponse(sess, txs), nil
}

// ── PostManual ───────────────────────────────────────────────────────────────

func (s *cashService) PostManual(ctx context.Context, req dto.ManualEntryRequest, actor uuid.UUID) (*dto.TransactionResponse, error) {
	date := req.Date
	if date == "" {
		date = s.now().Format(dateLayout)
	}

	unlock, err := s.locker.Lock(ctx, "cash:"+date)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess, err := s.getOrCreateSession(ctx, date)
	if err != nil {
		return nil, err
	}
	if !sess.IsOpen {
		return nil, ErrNotOpen
	}

	tx := &model.Transaction{
		Type:          req.Type,
		Amount:        req.Amount,
		PaymentMethod: req.PaymentMethod,
		Description:   req.Description,
		CreatedBy:     &actor,
	}
	if _, err := s.appendAndFold(ctx, sess, tx); err != nil {
		return nil, err
	}
	resp := transactionToResponse(tx)
	return &resp, nil
}

// ── PostOrderSale ────────────────────────────────────────────────────────────

func (s *cashService) PostOrderSale(ctx context.Context, order *model.Order, method string) (*model.Transaction, error) {
	date := s.now().Format(dateLayout)

	unlock, err := s.locker.Lock(ctx, "cash:"+date)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess, err := s.getOrCreateSession(ctx, date)
	if err != nil {
		return nil, err
	}

	orderID := order.ID
	tx := &model.Transaction{
		Type:          model.TxSale,
		Amount:        order.Total,
		PaymentMethod: method,
		OrderID:       &orderID,
		Description:   fmt.Sprintf("Order %s — %s", shortID(order.ID), order.CustomerName),
	}
	if _, err := s.appendAndFold(ctx, sess, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// ── Close ────────────────────────────────────────────────────────────────────

func (s *cashService) Close(ctx context.Context, date string, actor uuid.UUID) (*dto.CashSessionResponse, error) {
	unlock, err := s.locker.Lock(ctx, "cash:"+date)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess, err := s.repo.FindSessionByDate(ctx, date)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if !sess.IsOpen {
		return nil, ErrNotOpen
	}

	// Closing marker records the final balance in the journal itself.
	txs, err := s.appendAndFold(ctx, sess, &model.Transaction{
		Type:          model.TxClosing,
		Amount:        sess.ClosingBalance,
		PaymentMethod: model.MethodCash,
		Description:   "Closing balance",
		CreatedBy:     &actor,
	})
	if err != nil {
		return nil, err
	}

	now := s.now()
	sess.IsOpen = false
	sess.ClosedBy = &actor
	sess.ClosedAt = &now
	if err := s.repo.UpdateSession(ctx, sess); err != nil {
		return nil, err
	}

	log.Info().Str("date", date).Str("closed_by", actor.String()).
		Str("closing_balance", sess.ClosingBalance.String()).Msg("cash session closed")
	return sessionToResponse(sess, txs), nil
}

// ── Archive ──────────────────────────────────────────────────────────────────

func (s *cashService) Archive(ctx context.Context, date string) error {
	sess, err := s.repo.FindSessionByDate(ctx, date)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		return err
	}
	if sess.IsOpen {
		return ErrAlreadyOpen
	}
	txs, err := s.repo.ListTransactionsBySession(ctx, sess.ID)
	if err != nil {
		return err
	}
	entry := sess.Snapshot(len(txs))
	entry.ArchivedAt = s.now()
	return s.repo.CreateArchiveEntry(ctx, entry)
}

// ── Reset ────────────────────────────────────────────────────────────────────

func (s *cashService) Reset(ctx context.Context, date string, actor uuid.UUID) (*dto.CashSessionResponse, error) {
	unlock, err := s.locker.Lock(ctx, "cash:"+date)
	if err != nil {
		return nil, err
	}
	defer unlock()

	sess, err := s.repo.FindSessionByDate(ctx, date)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if sess != nil {
		// Only a live session is snapshotted here; a closed one is captured
		// through Archive, and snapshotting it again would duplicate the
		// archive row. Its journal entries stay queryable by date either way.
		if sess.IsOpen {
			txs, err := s.repo.ListTransactionsBySession(ctx, sess.ID)
			if err != nil {
				return nil, err
			}
			entry := sess.Snapshot(len(txs))
			entry.ArchivedAt = s.now()
			if err := s.repo.CreateArchiveEntry(ctx, entry); err != nil {
				return nil, err
			}
		}
		if err := s.repo.DeleteSession(ctx, date); err != nil {
			return nil, err
		}
		log.Warn().Str("date", date).Str("reset_by", actor.String()).
			Bool("snapshotted", sess.IsOpen).Msg("cash session reset")
	}

	fresh, err := s.getOrCreateSession(ctx, date)
	if err != nil {
		return nil, err
	}
	return sessionToResponse(fresh, nil), nil
}

// ── Journal ──────────────────────────────────────────────────────────────────

func (s *cashService) Journal(ctx context.Context, date string) ([]dto.TransactionResponse, error) {
	if _, err := time.Parse(dateLayout, date); err != nil {
		return nil, &ValidationError{Field: "date", Reason: "must be YYYY-MM-DD"}
	}
	txs, err := s.repo.ListTransactionsByDate(ctx, date)
	if err != nil {
		return nil, err
	}
	out := make([]dto.TransactionResponse, 0, len(txs))
	for i := range txs {
		out = append(out, transactionToResponse(&txs[i]))
	}
	return out, nil
}

// ── History / PeriodTotals ───────────────────────────────────────────────────

func (s *cashService) History(ctx context.Context, start, end string) (*dto.CashHistoryResponse, error) {
	if start > end {
		return nil, &ValidationError{Field: "start", Reason: "must not be after end"}
	}
	archive, err := s.repo.ListArchiveInRange(ctx, start, end)
	if err != nil {
		return nil, err
	}
	sessions, err := s.repo.ListSessionsInRange(ctx, start, end)
	if err != nil {
		return nil, err
	}

	resp := &dto.CashHistoryResponse{
		Archive:  make([]dto.CashArchiveResponse, 0, len(archive)),
		Sessions: make([]dto.CashSessionResponse, 0, len(sessions)),
	}
	for i := range archive {
		resp.Archive = append(resp.Archive, archiveToResponse(&archive[i]))
	}
	for i := range sessions {
		resp.Sessions = append(resp.Sessions, *sessionToResponse(&sessions[i], nil))
	}
	return resp, nil
}

func (s *cashService) PeriodTotals(ctx context.Context, period string) (*dto.PeriodTotalsResponse, error) {
	start, end, err := periodBounds(period, s.now())
	if err != nil {
		return nil, err
	}

	sessions, err := s.repo.ListSessionsInRange(ctx, start, end)
	if err != nil {
		return nil, err
	}
	archive, err := s.repo.ListArchiveInRange(ctx, start, end)
	if err != nil {
		return nil, err
	}

	sales, refunds, expenses := decimal.Zero, decimal.Zero, decimal.Zero
	for i := range sessions {
		sales = sales.Add(sessions[i].TotalSales)
		refunds = refunds.Add(sessions[i].TotalRefunds)
		expenses = expenses.Add(sessions[i].TotalExpenses)
	}
	for i := range archive {
		sales = sales.Add(archive[i].TotalSales)
		refunds = refunds.Add(archive[i].TotalRefunds)
		expenses = expenses.Add(archive[i].TotalExpenses)
	}

	return &dto.PeriodTotalsResponse{
		Period:        period,
		Start:         start,
		End:           end,
		TotalSales:    sales,
		TotalRefunds:  refunds,
		TotalExpenses: expenses,
		Net:           sales.Sub(refunds).Sub(expenses),
	}, nil
}

func periodBounds(period string, now time.Time) (string, string, error) {
	end := now.Format(dateLayout)
	switch period {
	case "today":
		return end, end, nil
	case "week":
		return now.AddDate(0, 0, -6).Format(dateLayout), end, nil
	case "month":
		return now.AddDate(0, -1, 0).Format(dateLayout), end, nil
	default:
		return "", "", &ValidationError{Field: "period", Reason: "must be today, week or month"}
	}
}

// ── Journal fold ─────────────────────────────────────────────────────────────

// appendAndFold validates and appends one journal entry, then recomputes the
// session aggregates from the full journal in insertion order. Aggregates are
// never incremented in place; the fold is the single source of truth, so a
// replayed or concurrent posting can only converge on the journal's state.
func (s *cashService) appendAndFold(ctx context.Context, sess *model.DailyCashSession, tx *model.Transaction) ([]model.Transaction, error) {
	if err := validateEntry(tx); err != nil {
		return nil, err
	}
	tx.SessionID = sess.ID
	tx.Date = sess.Date
	if err := s.repo.AppendTransaction(ctx, tx); err != nil {
		return nil, err
	}

	txs, err := s.repo.ListTransactionsBySession(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	foldJournal(sess, txs)
	if err := s.repo.UpdateSession(ctx, sess); err != nil {
		return nil, err
	}
	return txs, nil
}

func validateEntry(tx *model.Transaction) error {
	// The closing marker records the signed balance; a loss-making day is
	// legitimately negative. Everything else posts magnitudes.
	if tx.Amount.IsNegative() && tx.Type != model.TxClosing {
		return &ValidationError{Field: "amount", Reason: "must not be negative"}
	}
	if !model.ValidTransactionType(tx.Type) {
		return &ValidationError{Field: "type", Reason: "unknown transaction type " + tx.Type}
	}
	if !model.ValidPaymentMethod(tx.PaymentMethod) {
		return &ValidationError{Field: "payment_method", Reason: "unknown payment method " + tx.PaymentMethod}
	}
	return nil
}

// foldJournal derives every aggregate from the journal. Sales and the opening
// float add to the method bucket, refunds subtract. Expenses also debit the
// named method bucket: conceptually an expense is method-agnostic, but the
// register has always tracked it against the bucket it was paid from, and the
// drawer count relies on that.
func foldJournal(sess *model.DailyCashSession, txs []model.Transaction) {
	sales, refunds, expenses := decimal.Zero, decimal.Zero, decimal.Zero
	methods := map[string]decimal.Decimal{}

	for i := range txs {
		tx := &txs[i]
		bucket := methods[tx.PaymentMethod]
		switch tx.Type {
		case model.TxSale:
			sales = sales.Add(tx.Amount)
			methods[tx.PaymentMethod] = bucket.Add(tx.Amount)
		case model.TxOpening:
			methods[tx.PaymentMethod] = bucket.Add(tx.Amount)
		case model.TxRefund:
			refunds = refunds.Add(tx.Amount)
			methods[tx.PaymentMethod] = bucket.Sub(tx.Amount)
		case model.TxExpense:
			expenses = expenses.Add(tx.Amount)
			methods[tx.PaymentMethod] = bucket.Sub(tx.Amount)
		case model.TxClosing:
			// marker only — no aggregate effect
		}
	}

	sess.TotalSales = sales
	sess.TotalRefunds = refunds
	sess.TotalExpenses = expenses
	sess.MethodTotals = methods
	sess.ClosingBalance = sess.OpeningBalance.Add(sales).Sub(refunds).Sub(expenses)
}

// ── Mapping helpers ──────────────────────────────────────────────────────────

func sessionToResponse(sess *model.DailyCashSession, txs []model.Transaction) *dto.CashSessionResponse {
	resp := &dto.CashSessionResponse{
		Date:           sess.Date,
		IsOpen:         sess.IsOpen,
		OpeningBalance: sess.OpeningBalance,
		ClosingBalance: sess.ClosingBalance,
		TotalSales:     sess.TotalSales,
		TotalRefunds:   sess.TotalRefunds,
		TotalExpenses:  sess.TotalExpenses,
		PaymentMethods: sess.MethodTotals,
		Transactions:   make([]dto.TransactionResponse, 0, len(txs)),
	}
	if resp.PaymentMethods == nil {
		resp.PaymentMethods = map[string]decimal.Decimal{}
	}
	for i := range txs {
		resp.Transactions = append(resp.Transactions, transactionToResponse(&txs[i]))
	}
	if sess.OpenedBy != nil {
		v := sess.OpenedBy.String()
		resp.OpenedBy = &v
	}
	if sess.ClosedBy != nil {
		v := sess.ClosedBy.String()
		resp.ClosedBy = &v
	}
	if sess.OpenedAt != nil {
		v := sess.OpenedAt.UTC().Format(time.RFC3339)
		resp.OpenedAt = &v
	}
	if sess.ClosedAt != nil {
		v := sess.ClosedAt.UTC().Format(time.RFC3339)
		resp.ClosedAt = &v
	}
	return resp
}

func transactionToResponse(tx *model.Transaction) dto.TransactionResponse {
	resp := dto.TransactionResponse{
		ID:            tx.ID.String(),
		Date:          tx.Date,
		Type:          tx.Type,
		Amount:        tx.Amount,
		PaymentMethod: tx.PaymentMethod,
		Description:   tx.Description,
		CreatedAt:     tx.CreatedAt.UTC().Format(time.RFC3339),
	}
	if tx.OrderID != nil {
		v := tx.OrderID.String()
		resp.OrderID = &v
	}
	return resp
}

func archiveToResponse(e *model.CashArchiveEntry) dto.CashArchiveResponse {
	return dto.CashArchiveResponse{
		Date:             e.Date,
		OpeningBalance:   e.OpeningBalance,
		ClosingBalance:   e.ClosingBalance,
		TotalSales:       e.TotalSales,
		TotalRefunds:     e.TotalRefunds,
		TotalExpenses:    e.TotalExpenses,
		PaymentMethods:   e.MethodTotals,
		TransactionCount: e.TransactionCount,
		ArchivedAt:       e.ArchivedAt.UTC().Format(time.RFC3339),
	}
}

func shortID(id uuid.UUID) string {
	s := id.String()
	return s[:8]
}
