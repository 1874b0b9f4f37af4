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
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ClientService interface {
	// FindOrCreate matches by phone (the natural key) and refreshes the
	// stored contact details from the latest order.
	FindOrCreate(ctx context.Context, req dto.CreateClientRequest) (*model.Client, error)
	// RecordOrder bumps the client's cumulative stats and promotes to VIP
	// when total spend crosses the threshold. Promotion is monotonic: a VIP
	// client is never downgraded here.
	RecordOrder(ctx context.Context, phone string, orderTotal decimal.Decimal) (*model.Client, error)
	// PromoteToVIP is the manual admin override.
	PromoteToVIP(ctx context.Context, id uuid.UUID) (*dto.ClientResponse, error)
	Get(ctx context.Context, id uuid.UUID) (*dto.ClientResponse, error)
	List(ctx context.Context, status string, page, limit int) (*dto.ClientListResponse, error)
}

type clientService struct {
	repo         repository.ClientRepository
	vipThreshold decimal.Decimal
	now          func() time.Time
}

func NewClientService(repo repository.ClientRepository, vipThreshold decimal.Decimal) ClientService {
	return &clientService{repo: repo, vipThreshold: vipThreshold, now: time.Now}
}

func (s *clientService) FindOrCreate(ctx context.Context, req dto.CreateClientRequest) (*model.Client, error) {
	client, err := s.repo.FindByPhone(ctx, req.Phone)
	if err == nil {
		// Refresh contact details from the latest order.
		client.Name = req.Name
		if req.Email != nil {
			client.Email = req.Email
		}
		if req.Address != nil {
			client.Address = req.Address
		}
		if err := s.repo.Update(ctx, client); err != nil {
			return nil, err
		}
		return client, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	client = &model.Client{
		Name:         req.Name,
		Phone:        req.Phone,
		Email:        req.Email,
		Address:      req.Address,
		Status:       model.ClientActive,
		TotalOrders:  0,
		TotalSpent:   decimal.Zero,
		RegisteredAt: s.now(),
	}
	if err := s.repo.Create(ctx, client); err != nil {
		return nil, err
	}
	log.Info().Str("phone", client.Phone).Msg("client registered")
	return client, nil
}

// RecordOrder re-reads the client by phone so the stat update always starts
// from persisted totals, not a snapshot taken before the contact refresh.
func (s *clientService) RecordOrder(ctx context.Context, phone string, orderTotal decimal.Decimal) (*model.Client, error) {
	client, err := s.repo.FindByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	now := s.now()
	client.TotalOrders++
	client.TotalSpent = client.TotalSpent.Add(orderTotal)
	client.LastOrderDate = &now

	if client.Status != model.ClientVIP && client.TotalSpent.GreaterThanOrEqual(s.vipThreshold) {
		client.Status = model.ClientVIP
		log.Info().Str("phone", phone).Str("total_spent", client.TotalSpent.String()).
			Msg("client promoted to VIP")
	}

	if err := s.repo.Update(ctx, client); err != nil {
		return nil, err
	}
	return client, nil
}

func (s *clientService) PromoteToVIP(ctx context.Context, id uuid.UUID) (*dto.ClientResponse, error) {
	client, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	client.Status = model.ClientVIP
	if err := s.repo.Update(ctx, client); err != nil {
		return nil, err
	}
	resp := clientToResponse(client)
	return &resp, nil
}

func (s *clientService) Get(ctx context.Context, id uuid.UUID) (*dto.ClientResponse, error) {
	client, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	resp := clientToResponse(client)
	return &resp, nil
}

func (s *clientService) List(ctx context.Context, status string, page, limit int) (*dto.ClientListResponse, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 50
	}
	clients, total, err := s.repo.List(ctx, status, page, limit)
	if err != nil {
		return nil, err
	}
	items := make([]dto.ClientResponse, 0, len(clients))
	for i := range clients {
		items = append(items, clientToResponse(&clients[i]))
	}
	return &dto.ClientListResponse{Data: items, Total: total, Page: page, Limit: limit}, nil
}

func clientToResponse(c *model.Client) dto.ClientResponse {
	resp := dto.ClientResponse{
		ID:           c.ID.String(),
		Name:         c.Name,
		Phone:        c.Phone,
		Email:        c.Email,
		Address:      c.Address,
		Status:       c.Status,
		TotalOrders:  c.TotalOrders,
		TotalSpent:   c.TotalSpent,
		RegisteredAt: c.RegisteredAt.UTC().Format(time.RFC3339),
	}
	if c.LastOrderDate != nil {
		v := c.LastOrderDate.UTC().Format(time.RFC3339)
		resp.LastOrderDate = &v
	}
	return resp
}
