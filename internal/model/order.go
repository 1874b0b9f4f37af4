package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order statuses. Forward-only: pending → confirmed → preparing → sent →
// delivered, with cancelled reachable from any non-terminal state.
// Delivered and cancelled are terminal.
const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusPreparing = "preparing"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusCancelled = "cancelled"
)

// statusRank orders the forward chain. Cancelled is deliberately absent —
// it is an escape, not a step.
var statusRank = map[string]int{
	StatusPending:   0,
	StatusConfirmed: 1,
	StatusPreparing: 2,
	StatusSent:      3,
	StatusDelivered: 4,
}

// CanTransition reports whether an order may move from -> to.
// Rules: terminal states accept nothing; pending is initial-only; cancelled
// is reachable from any non-terminal state; otherwise only strictly forward
// moves along the chain are allowed.
func CanTransition(from, to string) bool {
	if from == StatusDelivered || from == StatusCancelled {
		return false
	}
	if to == StatusCancelled {
		return true
	}
	toRank, ok := statusRank[to]
	if !ok || to == StatusPending {
		return false
	}
	fromRank, ok := statusRank[from]
	if !ok {
		return false
	}
	return toRank > fromRank
}

// ValidOrderStatus reports whether s names a known status.
func ValidOrderStatus(s string) bool {
	if s == StatusCancelled {
		return true
	}
	_, ok := statusRank[s]
	return ok
}

// Order is a storefront purchase. Status changes go through
// OrderService.SetStatus exclusively so the transition table is enforced
// and delivery side effects fire exactly once.
type Order struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CustomerName  string    `gorm:"not null"`
	CustomerPhone string    `gorm:"index;not null"`
	CustomerEmail *string
	Address       string
	PaymentMethod string          `gorm:"type:varchar(20);not null"`
	PaymentProof  *string         // opaque reference, stored as received
	Total         decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Status        string          `gorm:"type:varchar(20);not null;default:'pending'"`
	// ClientID is backfilled by reconciliation once the client record exists
	ClientID  *uuid.UUID `gorm:"type:uuid;index"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Items []OrderItem `gorm:"foreignKey:OrderID"`
}

// PayOnDelivery reports whether the order's cash effect is deferred until
// delivery rather than recorded at checkout.
func (o *Order) PayOnDelivery() bool { return o.PaymentMethod == MethodCash }

type OrderItem struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OrderID   uuid.UUID       `gorm:"type:uuid;index;not null"`
	ProductID uuid.UUID       `gorm:"type:uuid;not null"`
	Name      string          `gorm:"not null"`
	Quantity  int             `gorm:"not null"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	ImageURL  *string
	CreatedAt time.Time
}

// Subtotal is quantity x unit price for the line.
func (i *OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
