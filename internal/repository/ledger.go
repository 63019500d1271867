package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"splitpay/internal/model"

	"gorm.io/gorm"
)

const maxErrorMessageLen = 512

// Ledger 账本存储
// 交易、订单、分账日志、本地消息表的组合，需要同时写多张表的操作都在这里用一个数据库事务完成
type Ledger struct {
	db           *gorm.DB
	transactions *TransactionRepository
	orders       *OrderRepository
	splitLogs    *SplitRuleLogRepository
	outbox       *OutboxRepository
	statusTopic  string
}

func NewLedger(db *gorm.DB, statusTopic string) *Ledger {
	return &Ledger{
		db:           db,
		transactions: NewTransactionRepository(db),
		orders:       NewOrderRepository(db),
		splitLogs:    NewSplitRuleLogRepository(db),
		outbox:       NewOutboxRepository(db),
		statusTopic:  statusTopic,
	}
}

func (l *Ledger) CreateTransaction(ctx context.Context, trans *model.Transaction) error {
	return l.transactions.Create(ctx, nil, trans)
}

func (l *Ledger) GetTransaction(ctx context.Context, id string) (*model.Transaction, error) {
	return l.transactions.GetByID(ctx, nil, id)
}

func (l *Ledger) FindTransactionByGatewayID(ctx context.Context, gatewayID string) (*model.Transaction, error) {
	return l.transactions.GetByGatewayID(ctx, gatewayID)
}

func (l *Ledger) ListStaleTransactions(ctx context.Context, before time.Time, limit int) ([]*model.Transaction, error) {
	statuses := []string{model.TransactionStatusPending, model.TransactionStatusAuthorized}
	return l.transactions.ListStale(ctx, statuses, before, limit)
}

func (l *Ledger) CreateOrder(ctx context.Context, order *model.Order) error {
	return l.orders.Create(ctx, nil, order)
}

func (l *Ledger) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	return l.orders.GetByID(ctx, nil, id)
}

func (l *Ledger) ListOrderTransactions(ctx context.Context, orderID string) ([]*model.Transaction, error) {
	return l.transactions.ListByOrderID(ctx, orderID)
}

func (l *Ledger) CreateSplitRuleLogs(ctx context.Context, logs []*model.SplitRuleLog) error {
	return l.splitLogs.CreateBatch(ctx, nil, logs)
}

func (l *Ledger) ListSplitRuleLogs(ctx context.Context, transactionID string) ([]*model.SplitRuleLog, error) {
	return l.splitLogs.ListByTransactionID(ctx, transactionID)
}

// ApplyGatewayState 写入网关状态
//
// 【执行流程】（同一个数据库事务）
//  1. SELECT ... FOR UPDATE 锁住交易行
//  2. 覆盖 status / gateway_metadata，首次写入 gateway_id（之后不可变更）
//  3. 投影订单状态
//  4. 状态发生变化时写入 outbox 消息
//
// 状态和元数据都没变化时不写库，重复推送的同一事件不会产生任何变化
func (l *Ledger) ApplyGatewayState(ctx context.Context, id string, state model.GatewayState) (*model.Transaction, error) {
	var updated *model.Transaction

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := l.transactions.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}

		updates := map[string]interface{}{}
		if current.Status != state.Status {
			updates["status"] = state.Status
		}
		if state.Metadata != nil && !bytes.Equal(current.GatewayMetadata, state.Metadata) {
			updates["gateway_metadata"] = state.Metadata
		}
		if state.GatewayID != "" {
			switch {
			case current.GatewayID == nil:
				updates["gateway_id"] = state.GatewayID
			case *current.GatewayID != state.GatewayID:
				return ErrGatewayIDConflict
			}
		}

		if len(updates) > 0 {
			if err := l.transactions.Update(ctx, tx, id, updates); err != nil {
				return err
			}
		}

		if state.OrderStatus != "" {
			if err := l.orders.UpdateStatus(ctx, tx, current.OrderID, state.OrderStatus); err != nil {
				return err
			}
		}

		if current.Status != state.Status {
			gatewayID := state.GatewayID
			if gatewayID == "" && current.GatewayID != nil {
				gatewayID = *current.GatewayID
			}
			if err := l.writeStatusEvent(ctx, tx, current, gatewayID, state.Status); err != nil {
				return err
			}
		}

		updated, err = l.transactions.GetByID(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// MarkTransactionFailed 同步提交失败时把交易置为 FAILED 并记录错误信息
// 网关已受理的情况下同时写入网关 ID，晚到的 webhook 仍能找到这笔交易
func (l *Ledger) MarkTransactionFailed(ctx context.Context, id string, failure model.TransactionFailure) error {
	message := failure.Message
	if runes := []rune(message); len(runes) > maxErrorMessageLen {
		message = string(runes[:maxErrorMessageLen])
	}

	return l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := l.transactions.GetByIDForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}

		updates := map[string]interface{}{
			"status":        model.TransactionStatusFailed,
			"error_message": message,
		}
		gatewayID := ""
		if current.GatewayID != nil {
			gatewayID = *current.GatewayID
		}
		if failure.GatewayID != "" {
			switch {
			case current.GatewayID == nil:
				updates["gateway_id"] = failure.GatewayID
				gatewayID = failure.GatewayID
			case *current.GatewayID != failure.GatewayID:
				return ErrGatewayIDConflict
			}
		}
		if len(failure.Metadata) > 0 {
			updates["gateway_metadata"] = failure.Metadata
		}

		if err := l.transactions.Update(ctx, tx, id, updates); err != nil {
			return err
		}

		if current.Status == model.TransactionStatusFailed {
			return nil
		}
		return l.writeStatusEvent(ctx, tx, current, gatewayID, model.TransactionStatusFailed)
	})
}

func (l *Ledger) writeStatusEvent(ctx context.Context, tx *gorm.DB, current *model.Transaction, gatewayID, status string) error {
	payload, err := json.Marshal(model.PaymentStatusEvent{
		TransactionID:  current.ID,
		OrderID:        current.OrderID,
		GatewayID:      gatewayID,
		Status:         status,
		PreviousStatus: current.Status,
		OccurredAt:     time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	return l.outbox.Create(ctx, tx, &model.OutboxMessage{
		MessageKey: current.ID,
		Topic:      l.statusTopic,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	})
}
