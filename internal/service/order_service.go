package service

import (
	"context"
	"errors"
	"time"

	"github.com/chicomed/kalia-shop-sub000/internal/dto"
	"github.com/chicomed/kalia-shop-sub000/internal/model"
	"github.com/chicomed/kalia-shop-sub000/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type OrderService interface {
	// Checkout persists the order first, then lets reconciliation perform
	// the correlated client/cash writes. Reconciliation failures do not fail
	// the checkout; they surface as pending steps on the response.
	Checkout(ctx context.Context, req dto.CheckoutRequest) (*dto.CheckoutResponse, error)
	// SetStatus applies one transition of the order state machine and fires
	// the delivery side effect for pay-on-delivery orders.
	SetStatus(ctx context.Context, id uuid.UUID, newStatus string, actor uuid.UUID) (*dto.CheckoutResponse, error)
	Get(ctx context.Context, id uuid.UUID) (*dto.OrderResponse, error)
	List(ctx context.Context, filter repository.OrderFilter) (*dto.OrderListResponse, error)
	// RevenueReport sums Order.Total excluding cancelled orders. This is the
	// sales figure; the cash register's PeriodTotals is the drawer figure.
	// The two can legitimately differ and both are exposed.
	RevenueReport(ctx context.Context, period string) (*dto.RevenueReportResponse, error)
}

type orderService struct {
	repo       repository.OrderRepository
	products   repository.ProductRepository
	reconciler ReconcileService
	dispatcher JobDispatcher
	now        func() time.Time
}

func NewOrderService(
	repo repository.OrderRepository,
	products repository.ProductRepository,
	reconciler ReconcileService,
	dispatcher JobDispatcher,
) OrderService {
	return &orderService{
		repo:       repo,
		products:   products,
		reconciler: reconciler,
		dispatcher: dispatcher,
		now:        time.Now,
	}
}

// ── Checkout ─────────────────────────────────────────────────────────────────

func (s *orderService) Checkout(ctx context.Context, req dto.CheckoutRequest) (*dto.CheckoutResponse, error) {
	if !model.ValidPaymentMethod(req.PaymentMethod) {
		return nil, &ValidationError{Field: "payment_method", Reason: "unknown payment method " + req.PaymentMethod}
	}
	if req.Shipping.IsNegative() {
		return nil, &ValidationError{Field: "shipping", Reason: "must not be negative"}
	}

	// Resolve items against the catalog; prices come from the product rows.
	items := make([]model.OrderItem, 0, len(req.Items))
	total := req.Shipping
	for _, item := range req.Items {
		pid, err := uuid.Parse(item.ProductID)
		if err != nil {
			return nil, &ValidationError{Field: "product_id", Reason: "invalid id " + item.ProductID}
		}
		p, err := s.products.FindByID(ctx, pid)
		if err != nil {
			return nil, &ValidationError{Field: "product_id", Reason: "unknown product " + item.ProductID}
		}
		if !p.Active {
			return nil, &ValidationError{Field: "product_id", Reason: p.Name + " is no longer available"}
		}
		line := model.OrderItem{
			ProductID: p.ID,
			Name:      p.Name,
			Quantity:  item.Quantity,
			UnitPrice: p.Price,
			ImageURL:  p.ImageURL,
		}
		total = total.Add(line.Subtotal())
		items = append(items, line)
	}

	order := &model.Order{
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		CustomerEmail: req.CustomerEmail,
		Address:       req.Address,
		PaymentMethod: req.PaymentMethod,
		PaymentProof:  req.PaymentProof,
		Total:         total,
		Status:        model.StatusPending,
		Items:         items,
	}
	if err := s.repo.Create(ctx, order); err != nil {
		return nil, err
	}

	// Order row is down; everything past this point is reconciliation and
	// must not roll it back.
	result := s.reconciler.OnCheckout(ctx, order)

	if s.dispatcher != nil && order.CustomerEmail != nil && *order.CustomerEmail != "" {
		if err := s.dispatcher.EnqueueOrderEmail(ctx, order.ID); err != nil {
			log.Error().Err(err).Str("order_id", order.ID.String()).
				Msg("checkout: failed to enqueue confirmation email")
		}
	}

	log.Info().Str("order_id", order.ID.String()).Str("phone", order.CustomerPhone).
		Str("total", order.Total.String()).Strs("pending_steps", result.Failed).
		Msg("order placed")

	return &dto.CheckoutResponse{
		Order:        orderToResponse(order),
		PendingSteps: result.Failed,
	}, nil
}

// ── SetStatus ────────────────────────────────────────────────────────────────

func (s *orderService) SetStatus(ctx context.Context, id uuid.UUID, newStatus string, actor uuid.UUID) (*dto.CheckoutResponse, error) {
	if !model.ValidOrderStatus(newStatus) {
		return nil, &ValidationError{Field: "status", Reason: "unknown status " + newStatus}
	}

	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if !model.CanTransition(order.Status, newStatus) {
		return nil, &InvalidTransitionError{From: order.Status, To: newStatus}
	}

	order.Status = newStatus
	if err := s.repo.Update(ctx, order); err != nil {
		return nil, err
	}

	result := &ReconcileResult{}
	if newStatus == model.StatusDelivered {
		result = s.reconciler.OnDelivered(ctx, order)
	}

	log.Info().Str("order_id", order.ID.String()).Str("status", newStatus).
		Str("by", actor.String()).Msg("order status changed")

	return &dto.CheckoutResponse{
		Order:        orderToResponse(order),
		PendingSteps: result.Failed,
	}, nil
}

// ── Queries ──────────────────────────────────────────────────────────────────

func (s *orderService) Get(ctx context.Context, id uuid.UUID) (*dto.OrderResponse, error) {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	resp := orderToResponse(order)
	return &resp, nil
}

func (s *orderService) List(ctx context.Context, filter repository.OrderFilter) (*dto.OrderListResponse, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 || filter.Limit > 100 {
		filter.Limit = 50
	}
	orders, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	items := make([]dto.OrderResponse, 0, len(orders))
	for i := range orders {
		items = append(items, orderToResponse(&orders[i]))
	}
	return &dto.OrderListResponse{Data: items, Total: total, Page: filter.Page, Limit: filter.Limit}, nil
}

func (s *orderService) RevenueReport(ctx context.Context, period string) (*dto.RevenueReportResponse, error) {
	startDate, endDate, err := periodBounds(period, s.now())
	if err != nil {
		return nil, err
	}
	start, _ := time.Parse(dateLayout, startDate)
	end, _ := time.Parse(dateLayout, endDate)
	end = end.AddDate(0, 0, 1) // end bound is exclusive

	revenue, err := s.repo.SumTotals(ctx, start, end, model.StatusCancelled)
	if err != nil {
		return nil, err
	}
	return &dto.RevenueReportResponse{
		Period:  period,
		Start:   startDate,
		End:     endDate,
		Revenue: revenue,
	}, nil
}

func orderToResponse(o *model.Order) dto.OrderResponse {
	items := make([]dto.OrderItemResponse, 0, len(o.Items))
	for i := range o.Items {
		item := &o.Items[i]
		items = append(items, dto.OrderItemResponse{
			ProductID: item.ProductID.String(),
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Subtotal:  item.Subtotal(),
			ImageURL:  item.ImageURL,
		})
	}
	resp := dto.OrderResponse{
		ID:            o.ID.String(),
		CustomerName:  o.CustomerName,
		CustomerPhone: o.CustomerPhone,
		CustomerEmail: o.CustomerEmail,
		Address:       o.Address,
		PaymentMethod: o.PaymentMethod,
		Total:         o.Total,
		Status:        o.Status,
		Items:         items,
		CreatedAt:     o.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     o.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if o.ClientID != nil {
		v := o.ClientID.String()
		resp.ClientID = &v
	}
	return resp
}
