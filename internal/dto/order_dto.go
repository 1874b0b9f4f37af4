package dto

import "github.com/shopspring/decimal"

// ─── Request DTOs ────────────────────────────────────────────────────────────

// CheckoutItem carries only the product reference and quantity; unit prices
// are resolved server-side from the catalog, never trusted from the client.
type CheckoutItem struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity"   validate:"required,min=1"`
}

type CheckoutRequest struct {
	CustomerName  string          `json:"customer_name"  validate:"required,min=2"`
	CustomerPhone string          `json:"customer_phone" validate:"required,min=6"`
	CustomerEmail *string         `json:"customer_email" validate:"omitempty,email"`
	Address       string          `json:"address"        validate:"required,min=3"`
	PaymentMethod string          `json:"payment_method" validate:"required,oneof=sadad bankily masrivi bimbanque click cash other"`
	PaymentProof  *string         `json:"payment_proof"`
	Shipping      decimal.Decimal `json:"shipping"       validate:"min=0"`
	Items         []CheckoutItem  `json:"items"          validate:"required,min=1,dive"`
}

type SetStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=confirmed preparing sent delivered cancelled"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type OrderItemResponse struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
	ImageURL  *string         `json:"image_url,omitempty"`
}

type OrderResponse struct {
	ID            string              `json:"id"`
	CustomerName  string              `json:"customer_name"`
	CustomerPhone string              `json:"customer_phone"`
	CustomerEmail *string             `json:"customer_email,omitempty"`
	Address       string              `json:"address"`
	PaymentMethod string              `json:"payment_method"`
	Total         decimal.Decimal     `json:"total"`
	Status        string              `json:"status"`
	ClientID      *string             `json:"client_id,omitempty"`
	Items         []OrderItemResponse `json:"items"`
	CreatedAt     string              `json:"created_at"`
	UpdatedAt     string              `json:"updated_at"`
}

// CheckoutResponse reports the recorded order plus any reconciliation steps
// that could not complete. A non-empty PendingSteps means "order recorded,
// but ledger/client stats may be stale until the retry sweeper catches up".
type CheckoutResponse struct {
	Order        OrderResponse `json:"order"`
	PendingSteps []string      `json:"pending_steps,omitempty"`
}

type OrderListResponse struct {
	Data  []OrderResponse `json:"data"`
	Total int64           `json:"total"`
	Page  int             `json:"page"`
	Limit int             `json:"limit"`
}

// RevenueReportResponse sums Order.Total excluding cancelled orders.
// Kept deliberately separate from the cash-session period totals; the two
// figures answer different questions and may differ.
type RevenueReportResponse struct {
	Period  string          `json:"period"`
	Start   string          `json:"start"`
	End     string          `json:"end"`
	Revenue decimal.Decimal `json:"revenue"`
}
