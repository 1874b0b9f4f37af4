package repository

import (
	"context"
	"time"

	"github.com/chicomed/kalia-shop-sub000/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ReconciliationRepository interface {
	Find(ctx context.Context, orderID uuid.UUID, step string) (*model.ReconciliationStep, error)
	Upsert(ctx context.Context, rec *model.ReconciliationStep) error
	// ListDue returns failed steps whose next retry is in the past.
	ListDue(ctx context.Context, now time.Time, limit int) ([]model.ReconciliationStep, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]model.ReconciliationStep, error)
}

type reconciliationRepo struct{ db *gorm.DB }

func NewReconciliationRepository(db *gorm.DB) ReconciliationRepository {
	return &reconciliationRepo{db: db}
}

func (r *reconciliationRepo) Find(ctx context.Context, orderID uuid.UUID, step string) (*model.ReconciliationStep, error) {
	var rec model.ReconciliationStep
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND step = ?", orderID, step).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Upsert inserts or replaces the (order_id, step) row. The unique index is
// what makes reconciliation retries idempotent at the storage layer.
func (r *reconciliationRepo) Upsert(ctx context.Context, rec *model.ReconciliationStep) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "order_id"}, {Name: "step"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "attempts", "last_error", "next_retry_at", "updated_at",
		}),
	}).Create(rec).Error
}

func (r *reconciliationRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]model.ReconciliationStep, error) {
	var recs []model.ReconciliationStep
	err := r.db.WithContext(ctx).
		Where("status = ? AND next_retry_at IS NOT NULL AND next_retry_at <= ?", model.StepFailed, now).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&recs).Error
	return recs, err
}

func (r *reconciliationRepo) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]model.ReconciliationStep, error) {
	var recs []model.ReconciliationStep
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Find(&recs).Error
	return recs, err
}
