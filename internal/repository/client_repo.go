package repository

import (
	"context"

	"github.com/chicomed/kalia-shop-sub000/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ClientRepository interface {
	Create(ctx context.Context, c *model.Client) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Client, error)
	FindByPhone(ctx context.Context, phone string) (*model.Client, error)
	Update(ctx context.Context, c *model.Client) error
	List(ctx context.Context, status string, page, limit int) ([]model.Client, int64, error)
}

type clientRepo struct{ db *gorm.DB }

func NewClientRepository(db *gorm.DB) ClientRepository { return &clientRepo{db: db} }

func (r *clientRepo) Create(ctx context.Context, c *model.Client) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *clientRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Client, error) {
	var c model.Client
	if err := r.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *clientRepo) FindByPhone(ctx context.Context, phone string) (*model.Client, error) {
	var c model.Client
	if err := r.db.WithContext(ctx).Where("phone = ?", phone).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *clientRepo) Update(ctx context.Context, c *model.Client) error {
	return r.db.WithContext(ctx).Save(c).Error
}

func (r *clientRepo) List(ctx context.Context, status string, page, limit int) ([]model.Client, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Client{})
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var clients []model.Client
	err := q.Order("registered_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&clients).Error
	return clients, total, err
}
