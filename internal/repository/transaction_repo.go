package repository

import (
	"context"
	"errors"
	"time"

	"splitpay/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrTransactionNotFound = errors.New("交易不存在")
	ErrGatewayIDConflict   = errors.New("交易已绑定其他网关 ID")
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *gorm.DB, trans *model.Transaction) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(trans).Error
}

func (r *TransactionRepository) GetByID(ctx context.Context, tx *gorm.DB, id string) (*model.Transaction, error) {
	if tx == nil {
		tx = r.db
	}
	var trans model.Transaction
	err := tx.WithContext(ctx).Where("id = ?", id).First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &trans, nil
}

// GetByIDForUpdate 行锁读取
//
// 【关键点】同一笔交易的状态写入（同步响应、webhook、补偿任务）以交易 ID 为竞争键串行化，
// 后提交者覆盖先提交者，不会出现字段交错写入
func (r *TransactionRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id string) (*model.Transaction, error) {
	var trans model.Transaction
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &trans, nil
}

func (r *TransactionRepository) GetByGatewayID(ctx context.Context, gatewayID string) (*model.Transaction, error) {
	var trans model.Transaction
	err := r.db.WithContext(ctx).Where("gateway_id = ?", gatewayID).First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &trans, nil
}

// Update 按 ID 更新字段，调用方需先通过 GetByIDForUpdate 确认交易存在
// （MySQL 在值未变化时 RowsAffected 为 0，不能据此判断记录不存在）
func (r *TransactionRepository) Update(ctx context.Context, tx *gorm.DB, id string, updates map[string]interface{}) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// ListStale 查询长时间未更新、已拿到网关 ID 但仍处于非终态的交易
func (r *TransactionRepository) ListStale(ctx context.Context, statuses []string, before time.Time, limit int) ([]*model.Transaction, error) {
	var transactions []*model.Transaction
	err := r.db.WithContext(ctx).
		Where("status IN ? AND gateway_id IS NOT NULL AND updated_at < ?", statuses, before).
		Order("updated_at ASC").
		Limit(limit).
		Find(&transactions).Error
	return transactions, err
}

func (r *TransactionRepository) ListByOrderID(ctx context.Context, orderID string) ([]*model.Transaction, error) {
	var transactions []*model.Transaction
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at DESC").
		Find(&transactions).Error
	return transactions, err
}
