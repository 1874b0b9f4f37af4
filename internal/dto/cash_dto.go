package dto

import "github.com/shopspring/decimal"

// ─── Request DTOs ────────────────────────────────────────────────────────────

type OpenSessionRequest struct {
	Date           string          `json:"date"            validate:"omitempty,datetime=2006-01-02"`
	OpeningBalance decimal.Decimal `json:"opening_balance" validate:"min=0"`
}

type ManualEntryRequest struct {
	Date          string          `json:"date"           validate:"omitempty,datetime=2006-01-02"`
	Type          string          `json:"type"           validate:"required,oneof=sale refund expense"`
	PaymentMethod string          `json:"payment_method" validate:"required,oneof=sadad bankily masrivi bimbanque click cash other"`
	Amount        decimal.Decimal `json:"amount"         validate:"required,gt=0"`
	Description   string          `json:"description"    validate:"required,min=3"`
}

type CashRangeQuery struct {
	Start string `form:"start" validate:"required,datetime=2006-01-02"`
	End   string `form:"end"   validate:"required,datetime=2006-01-02"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type TransactionResponse struct {
	ID            string          `json:"id"`
	Date          string          `json:"date"`
	Type          string          `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
	OrderID       *string         `json:"order_id,omitempty"`
	Description   string          `json:"description"`
	CreatedAt     string          `json:"created_at"`
}

type CashSessionResponse struct {
	Date           string                     `json:"date"`
	IsOpen         bool                       `json:"is_open"`
	OpeningBalance decimal.Decimal            `json:"opening_balance"`
	ClosingBalance decimal.Decimal            `json:"closing_balance"`
	TotalSales     decimal.Decimal            `json:"total_sales"`
	TotalRefunds   decimal.Decimal            `json:"total_refunds"`
	TotalExpenses  decimal.Decimal            `json:"total_expenses"`
	PaymentMethods map[string]decimal.Decimal `json:"payment_methods"`
	Transactions   []TransactionResponse      `json:"transactions"`
	OpenedBy       *string                    `json:"opened_by,omitempty"`
	ClosedBy       *string                    `json:"closed_by,omitempty"`
	OpenedAt       *string                    `json:"opened_at,omitempty"`
	ClosedAt       *string                    `json:"closed_at,omitempty"`
}

type CashArchiveResponse struct {
	Date             string                     `json:"date"`
	OpeningBalance   decimal.Decimal            `json:"opening_balance"`
	ClosingBalance   decimal.Decimal            `json:"closing_balance"`
	TotalSales       decimal.Decimal            `json:"total_sales"`
	TotalRefunds     decimal.Decimal            `json:"total_refunds"`
	TotalExpenses    decimal.Decimal            `json:"total_expenses"`
	PaymentMethods   map[string]decimal.Decimal `json:"payment_methods"`
	TransactionCount int                        `json:"transaction_count"`
	ArchivedAt       string                     `json:"archived_at"`
}

// CashHistoryResponse spans archived snapshots and still-live sessions in a
// date range. The same date can appear in both after a mid-day reset.
type CashHistoryResponse struct {
	Archive  []CashArchiveResponse `json:"archive"`
	Sessions []CashSessionResponse `json:"sessions"`
}

// PeriodTotalsResponse reports cash-ledger totals for today/week/month.
// Net is sales - refunds - expenses over the period; this is the register's
// number and may legitimately differ from the order-revenue report.
type PeriodTotalsResponse struct {
	Period        string          `json:"period"`
	Start         string          `json:"start"`
	End           string          `json:"end"`
	TotalSales    decimal.Decimal `json:"total_sales"`
	TotalRefunds  decimal.Decimal `json:"total_refunds"`
	TotalExpenses decimal.Decimal `json:"total_expenses"`
	Net           decimal.Decimal `json:"net"`
}
