package repository

import (
	"context"

	"github.com/chicomed/kalia-shop-sub000/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ProductRepository interface {
	Create(ctx context.Context, p *model.Product) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Product, error)
	Update(ctx context.Context, p *model.Product) error
	List(ctx context.Context, activeOnly bool, category string) ([]model.Product, error)
}

type productRepo struct{ db *gorm.DB }

func NewProductRepository(db *gorm.DB) ProductRepository { return &productRepo{db: db} }

func (r *productRepo) Create(ctx context.Context, p *model.Product) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *productRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.Product, error) {
	var p model.Product
	if err := r.db.WithContext(ctx).First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *productRepo) Update(ctx context.Context, p *model.Product) error {
	return r.db.WithContext(ctx).Save(p).Error
}

func (r *productRepo) List(ctx context.Context, activeOnly bool, category string) ([]model.Product, error) {
	q := r.db.WithContext(ctx).Model(&model.Product{})
	if activeOnly {
		q = q.Where("active = true")
	}
	if category != "" {
		q = q.Where("category = ?", category)
	}
	var products []model.Product
	err := q.Order("name ASC").Find(&products).Error
	return products, err
}
