package repository

import (
	"context"

	"splitpay/internal/model"

	"gorm.io/gorm"
)

// SplitRuleLogRepository 分账审计日志，只提供写入和查询
type SplitRuleLogRepository struct {
	db *gorm.DB
}

func NewSplitRuleLogRepository(db *gorm.DB) *SplitRuleLogRepository {
	return &SplitRuleLogRepository{db: db}
}

func (r *SplitRuleLogRepository) CreateBatch(ctx context.Context, tx *gorm.DB, logs []*model.SplitRuleLog) error {
	if len(logs) == 0 {
		return nil
	}
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(&logs).Error
}

func (r *SplitRuleLogRepository) ListByTransactionID(ctx context.Context, transactionID string) ([]*model.SplitRuleLog, error) {
	var logs []*model.SplitRuleLog
	err := r.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("id ASC").
		Find(&logs).Error
	return logs, err
}
