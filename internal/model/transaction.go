package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Transaction types. Opening/closing entries are journal markers written by
// the session lifecycle; only sale/refund/expense enter the day totals.
const (
	TxSale    = "sale"
	TxRefund  = "refund"
	TxExpense = "expense"
	TxOpening = "opening"
	TxClosing = "closing"
)

// Payment methods accepted at checkout and in the cash register.
// "cash" doubles as pay-on-delivery: its sale entry is posted when the
// order is marked delivered, not at checkout.
const (
	MethodSadad     = "sadad"
	MethodBankily   = "bankily"
	MethodMasrivi   = "masrivi"
	MethodBimbanque = "bimbanque"
	MethodClick     = "click"
	MethodCash      = "cash"
	MethodOther     = "other"
)

var validTxTypes = map[string]bool{
	TxSale: true, TxRefund: true, TxExpense: true, TxOpening: true, TxClosing: true,
}

var validMethods = map[string]bool{
	MethodSadad: true, MethodBankily: true, MethodMasrivi: true,
	MethodBimbanque: true, MethodClick: true, MethodCash: true, MethodOther: true,
}

func ValidTransactionType(t string) bool { return validTxTypes[t] }
func ValidPaymentMethod(m string) bool   { return validMethods[m] }

// PaymentMethods lists every accepted method, in display order.
func PaymentMethods() []string {
	return []string{MethodSadad, MethodBankily, MethodMasrivi, MethodBimbanque, MethodClick, MethodCash, MethodOther}
}

// Transaction is an immutable entry in the daily cash journal.
// Entries are NEVER updated or deleted — corrections create inverse entries
// (a refund against a sale, a reset archiving the whole day).
type Transaction struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	// Seq gives a total insertion order within a date; aggregate folds and
	// reads follow it so replays are deterministic.
	Seq int64 `gorm:"uniqueIndex;autoIncrement"`
	// SessionID scopes the entry to one DailyCashSession generation. A reset
	// recreates the session under a new ID, so folds over the new session see
	// an empty journal while the old entries stay on record.
	SessionID     uuid.UUID       `gorm:"type:uuid;index;not null"`
	Date          string          `gorm:"type:varchar(10);index;not null"` // YYYY-MM-DD
	Type          string          `gorm:"type:varchar(10);not null"`
	Amount        decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	PaymentMethod string          `gorm:"type:varchar(20);not null"`
	// OrderID links sales posted by reconciliation back to their order
	OrderID     *uuid.UUID `gorm:"type:uuid;index"`
	Description string     `gorm:"not null"`
	CreatedBy   *uuid.UUID `gorm:"type:uuid"`
	CreatedAt   time.Time
}
