package repository

import (
	"context"
	"errors"
	"time"

	"splitpay/internal/model"

	"gorm.io/gorm"
)

var (
	ErrOrderNotFound = errors.New("订单不存在")
)

type OrderRepository struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

func (r *OrderRepository) Create(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(order).Error
}

func (r *OrderRepository) GetByID(ctx context.Context, tx *gorm.DB, id string) (*model.Order, error) {
	if tx == nil {
		tx = r.db
	}
	var order model.Order
	err := tx.WithContext(ctx).Where("id = ?", id).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// UpdateStatus 更新订单状态
// 订单状态由交易投影而来，不做状态机校验：失败后的重试交易仍可以把订单置为 PAID。
// 状态未变化时不写库
func (r *OrderRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, id string, toStatus string) error {
	if tx == nil {
		tx = r.db
	}

	updates := map[string]interface{}{
		"status": toStatus,
	}

	if toStatus == model.OrderStatusPaid {
		now := time.Now()
		updates["paid_at"] = &now
	}

	result := tx.WithContext(ctx).
		Model(&model.Order{}).
		Where("id = ? AND status <> ?", id, toStatus).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, tx, id); err != nil {
			return err
		}
	}

	return nil
}
