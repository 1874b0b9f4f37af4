package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Client statuses. VIP promotion is monotonic: once a client reaches the
// configured spend threshold they stay VIP, never auto-downgraded.
const (
	ClientActive   = "active"
	ClientVIP      = "vip"
	ClientInactive = "inactive"
)

// Client accumulates per-customer order statistics. Phone is the natural
// key: checkout matches or creates clients by phone number.
type Client struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Name          string    `gorm:"not null"`
	Phone         string    `gorm:"uniqueIndex;not null"`
	Email         *string
	Address       *string
	Status        string          `gorm:"type:varchar(20);not null;default:'active'"`
	TotalOrders   int             `gorm:"not null;default:0"`
	TotalSpent    decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	LastOrderDate *time.Time
	RegisteredAt  time.Time
	UpdatedAt     time.Time
}
