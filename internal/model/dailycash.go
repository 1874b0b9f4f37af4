package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DailyCashSession tracks the cash register for one calendar date.
// Aggregate columns (totals, method buckets, closing balance) are never
// incremented in place: every posting recomputes them as a fold over the
// full transaction journal for the date, in insertion order. That keeps
// ClosingBalance == OpeningBalance + TotalSales - TotalRefunds - TotalExpenses
// true after every append, even under concurrent postings.
type DailyCashSession struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Date           string          `gorm:"type:varchar(10);uniqueIndex;not null"` // YYYY-MM-DD
	IsOpen         bool            `gorm:"not null;default:false"`
	OpeningBalance decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	ClosingBalance decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	TotalSales     decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	TotalRefunds   decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	TotalExpenses  decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	// MethodTotals maps payment method -> signed cumulative amount.
	// Sales and the opening float add, refunds and expenses subtract.
	MethodTotals map[string]decimal.Decimal `gorm:"serializer:json"`
	OpenedBy     *uuid.UUID                 `gorm:"type:uuid"`
	ClosedBy     *uuid.UUID                 `gorm:"type:uuid"`
	OpenedAt     *time.Time
	ClosedAt     *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CashArchiveEntry is a frozen copy of a DailyCashSession taken at close or
// reset time. Append-only; never mutated afterwards.
type CashArchiveEntry struct {
	ID               uuid.UUID                  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Date             string                     `gorm:"type:varchar(10);index;not null"`
	OpeningBalance   decimal.Decimal            `gorm:"type:decimal(12,2);not null"`
	ClosingBalance   decimal.Decimal            `gorm:"type:decimal(12,2);not null"`
	TotalSales       decimal.Decimal            `gorm:"type:decimal(12,2);not null"`
	TotalRefunds     decimal.Decimal            `gorm:"type:decimal(12,2);not null"`
	TotalExpenses    decimal.Decimal            `gorm:"type:decimal(12,2);not null"`
	MethodTotals     map[string]decimal.Decimal `gorm:"serializer:json"`
	TransactionCount int                        `gorm:"not null;default:0"`
	OpenedBy         *uuid.UUID                 `gorm:"type:uuid"`
	ClosedBy         *uuid.UUID                 `gorm:"type:uuid"`
	OpenedAt         *time.Time
	ClosedAt         *time.Time
	ArchivedAt       time.Time
}

// Snapshot freezes the session into an archive entry.
func (s *DailyCashSession) Snapshot(txCount int) *CashArchiveEntry {
	methods := make(map[string]decimal.Decimal, len(s.MethodTotals))
	for m, v := range s.MethodTotals {
		methods[m] = v
	}
	return &CashArchiveEntry{
		Date:             s.Date,
		OpeningBalance:   s.OpeningBalance,
		ClosingBalance:   s.ClosingBalance,
		TotalSales:       s.TotalSales,
		TotalRefunds:     s.TotalRefunds,
		TotalExpenses:    s.TotalExpenses,
		MethodTotals:     methods,
		TransactionCount: txCount,
		OpenedBy:         s.OpenedBy,
		ClosedBy:         s.ClosedBy,
		OpenedAt:         s.OpenedAt,
		ClosedAt:         s.ClosedAt,
	}
}
