package service

import (
	"context"
	"errors"
	"fmt"

	"splitpay/internal/model"
	"splitpay/pkg/idgen"
)

type OrderService struct {
	ledger Ledger
}

func NewOrderService(ledger Ledger) *OrderService {
	return &OrderService{ledger: ledger}
}

type OrderDetail struct {
	Order        *model.Order         `json:"order"`
	Transactions []*model.Transaction `json:"transactions"`
}

type TransactionDetail struct {
	Transaction *model.Transaction    `json:"transaction"`
	SplitLogs   []*model.SplitRuleLog `json:"split_logs"`
}

func (s *OrderService) CreateOrder(ctx context.Context, amount int64) (*model.Order, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: 订单金额必须大于 0", ErrInvalidPaymentRequest)
	}

	order := &model.Order{
		ID:     idgen.GenerateOrderNo(),
		Amount: amount,
		Status: model.OrderStatusPending,
	}
	if err := s.ledger.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("%w: 创建订单失败: %w", ErrPersistence, err)
	}
	return order, nil
}

// GetOrder 订单及其全部支付尝试（新的在前）
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*OrderDetail, error) {
	order, err := s.ledger.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	transactions, err := s.ledger.ListOrderTransactions(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return &OrderDetail{Order: order, Transactions: transactions}, nil
}

// GetTransaction 交易及其分账审计日志
func (s *OrderService) GetTransaction(ctx context.Context, transactionID string) (*TransactionDetail, error) {
	trans, err := s.ledger.GetTransaction(ctx, transactionID)
	if err != nil {
		if errors.Is(err, ErrTransactionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	logs, err := s.ledger.ListSplitRuleLogs(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return &TransactionDetail{Transaction: trans, SplitLogs: logs}, nil
}
