package model

import (
	"time"

	"github.com/google/uuid"
)

// Reconciliation step names. Each step is a single correlated write keyed by
// (order, step); the unique index makes retries replace the missing rollback:
// a step that already ran to completion is skipped on replay, so no order can
// double-count client stats or double-post its cash sale.
const (
	StepClientStats = "client_stats"
	StepCashSale    = "cash_sale"
)

// Reconciliation step statuses.
const (
	StepDone   = "done"
	StepFailed = "failed"
)

// ReconciliationStep records the outcome of one cross-entity write performed
// for an order (client stat update, cash sale posting). Failed steps carry
// retry bookkeeping consumed by the background retry sweeper.
type ReconciliationStep struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OrderID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_order_step"`
	Step        string    `gorm:"type:varchar(20);not null;uniqueIndex:idx_order_step"`
	Status      string    `gorm:"type:varchar(10);not null"`
	Attempts    int       `gorm:"not null;default:0"`
	LastError   *string
	NextRetryAt *time.Time `gorm:"index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
