package repository

import (
	"context"

	"github.com/chicomed/kalia-shop-sub000/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CashRepository interface {
	FindSessionByDate(ctx context.Context, date string) (*model.DailyCashSession, error)
	CreateSession(ctx context.Context, s *model.DailyCashSession) error
	UpdateSession(ctx context.Context, s *model.DailyCashSession) error
	DeleteSession(ctx context.Context, date string) error
	ListSessionsInRange(ctx context.Context, start, end string) ([]model.DailyCashSession, error)

	AppendTransaction(ctx context.Context, t *model.Transaction) error
	ListTransactionsByDate(ctx context.Context, date string) ([]model.Transaction, error)
	ListTransactionsBySession(ctx context.Context, sessionID uuid.UUID) ([]model.Transaction, error)

	CreateArchiveEntry(ctx context.Context, e *model.CashArchiveEntry) error
	ListArchiveInRange(ctx context.Context, start, end string) ([]model.CashArchiveEntry, error)
}

type cashRepo struct{ db *gorm.DB }

func NewCashRepository(db *gorm.DB) CashRepository { return &cashRepo{db: db} }

func (r *cashRepo) FindSessionByDate(ctx context.Context, date string) (*model.DailyCashSession, error) {
	var s model.DailyCashSession
	if err := r.db.WithContext(ctx).Where("date = ?", date).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *cashRepo) CreateSession(ctx context.Context, s *model.DailyCashSession) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *cashRepo) UpdateSession(ctx context.Context, s *model.DailyCashSession) error {
	return r.db.WithContext(ctx).Save(s).Error
}

func (r *cashRepo) DeleteSession(ctx context.Context, date string) error {
	return r.db.WithContext(ctx).Where("date = ?", date).Delete(&model.DailyCashSession{}).Error
}

func (r *cashRepo) ListSessionsInRange(ctx context.Context, start, end string) ([]model.DailyCashSession, error) {
	var sessions []model.DailyCashSession
	err := r.db.WithContext(ctx).
		Where("date >= ? AND date <= ?", start, end).
		Order("date ASC").
		Find(&sessions).Error
	return sessions, err
}

func (r *cashRepo) AppendTransaction(ctx context.Context, t *model.Transaction) error {
	return r.db.WithContext(ctx).Create(t).Error
}

// ListTransactionsByDate returns the day's journal in insertion order.
// Callers fold over it to derive aggregates; seq ordering keeps the fold
// deterministic regardless of timestamp ties.
func (r *cashRepo) ListTransactionsByDate(ctx context.Context, date string) ([]model.Transaction, error) {
	var txs []model.Transaction
	err := r.db.WithContext(ctx).
		Where("date = ?", date).
		Order("seq ASC").
		Find(&txs).Error
	return txs, err
}

func (r *cashRepo) ListTransactionsBySession(ctx context.Context, sessionID uuid.UUID) ([]model.Transaction, error) {
	var txs []model.Transaction
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("seq ASC").
		Find(&txs).Error
	return txs, err
}

func (r *cashRepo) CreateArchiveEntry(ctx context.Context, e *model.CashArchiveEntry) error {
	return r.db.WithContext(ctx).Create(e).Error
}

func (r *cashRepo) ListArchiveInRange(ctx context.Context, start, end string) ([]model.CashArchiveEntry, error) {
	var entries []model.CashArchiveEntry
	err := r.db.WithContext(ctx).
		Where("date >= ? AND date <= ?", start, end).
		Order("date ASC, archived_at ASC").
		Find(&entries).Error
	return entries, err
}
