package service

import (
	"context"

	"splitpay/internal/gateway"
	"splitpay/internal/model"
)

// Ledger 交易账本，生产环境由 repository.Ledger 实现
type Ledger interface {
	CreateTransaction(ctx context.Context, trans *model.Transaction) error
	GetTransaction(ctx context.Context, id string) (*model.Transaction, error)
	FindTransactionByGatewayID(ctx context.Context, gatewayID string) (*model.Transaction, error)
	ListOrderTransactions(ctx context.Context, orderID string) ([]*model.Transaction, error)
	ApplyGatewayState(ctx context.Context, id string, state model.GatewayState) (*model.Transaction, error)
	MarkTransactionFailed(ctx context.Context, id string, failure model.TransactionFailure) error

	CreateSplitRuleLogs(ctx context.Context, logs []*model.SplitRuleLog) error
	ListSplitRuleLogs(ctx context.Context, transactionID string) ([]*model.SplitRuleLog, error)

	CreateOrder(ctx context.Context, order *model.Order) error
	GetOrder(ctx context.Context, id string) (*model.Order, error)
}

// GatewayClient 支付网关，生产环境由 gateway.PagarmeClient 实现
type GatewayClient interface {
	CreateOrder(ctx context.Context, idempotencyKey string, req *gateway.OrderRequest) (*gateway.OrderResponse, error)
	GetOrder(ctx context.Context, gatewayID string) (*gateway.OrderResponse, error)
	CreateRecipient(ctx context.Context, req *gateway.RecipientRequest) (*gateway.RecipientResponse, error)
}
