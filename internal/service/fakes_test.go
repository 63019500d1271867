package service

import (
	"bytes"
	"context"
	"sync"
	"time"

	"splitpay/internal/gateway"
	"splitpay/internal/model"
	"splitpay/internal/repository"
)

// memLedger 内存账本，语义与 repository.Ledger 保持一致
type memLedger struct {
	mu           sync.Mutex
	transactions map[string]*model.Transaction
	orders       map[string]*model.Order
	splitLogs    []*model.SplitRuleLog
	statusEvents int

	createTransactionErr error
	getOrderErr          error
	findErr              error
	applyErr             error
	splitLogsErr         error
}

func newMemLedger() *memLedger {
	return &memLedger{
		transactions: map[string]*model.Transaction{},
		orders:       map[string]*model.Order{},
	}
}

func (l *memLedger) addOrder(id string, amount int64, status string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.orders[id] = &model.Order{ID: id, Amount: amount, Status: status}
}

func (l *memLedger) CreateTransaction(_ context.Context, trans *model.Transaction) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.createTransactionErr != nil {
		return l.createTransactionErr
	}
	cp := *trans
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	l.transactions[trans.ID] = &cp
	return nil
}

func (l *memLedger) GetTransaction(_ context.Context, id string) (*model.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	trans, ok := l.transactions[id]
	if !ok {
		return nil, repository.ErrTransactionNotFound
	}
	cp := *trans
	return &cp, nil
}

func (l *memLedger) FindTransactionByGatewayID(_ context.Context, gatewayID string) (*model.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.findErr != nil {
		return nil, l.findErr
	}
	for _, trans := range l.transactions {
		if trans.GatewayID != nil && *trans.GatewayID == gatewayID {
			cp := *trans
			return &cp, nil
		}
	}
	return nil, repository.ErrTransactionNotFound
}

func (l *memLedger) ListOrderTransactions(_ context.Context, orderID string) ([]*model.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var result []*model.Transaction
	for _, trans := range l.transactions {
		if trans.OrderID == orderID {
			cp := *trans
			result = append(result, &cp)
		}
	}
	return result, nil
}

func (l *memLedger) ApplyGatewayState(_ context.Context, id string, state model.GatewayState) (*model.Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.applyErr != nil {
		return nil, l.applyErr
	}
	trans, ok := l.transactions[id]
	if !ok {
		return nil, repository.ErrTransactionNotFound
	}
	if state.GatewayID != "" {
		if trans.GatewayID != nil && *trans.GatewayID != state.GatewayID {
			return nil, repository.ErrGatewayIDConflict
		}
		gatewayID := state.GatewayID
		trans.GatewayID = &gatewayID
	}
	if trans.Status != state.Status {
		l.statusEvents++
		trans.Status = state.Status
		trans.UpdatedAt = time.Now()
	}
	if state.Metadata != nil && !bytes.Equal(trans.GatewayMetadata, state.Metadata) {
		trans.GatewayMetadata = state.Metadata
	}
	if state.OrderStatus != "" {
		order, ok := l.orders[trans.OrderID]
		if !ok {
			return nil, repository.ErrOrderNotFound
		}
		if order.Status != state.OrderStatus {
			order.Status = state.OrderStatus
			if state.OrderStatus == model.OrderStatusPaid {
				now := time.Now()
				order.PaidAt = &now
			}
		}
	}
	cp := *trans
	return &cp, nil
}

func (l *memLedger) MarkTransactionFailed(_ context.Context, id string, failure model.TransactionFailure) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	trans, ok := l.transactions[id]
	if !ok {
		return repository.ErrTransactionNotFound
	}
	if failure.GatewayID != "" && trans.GatewayID == nil {
		gatewayID := failure.GatewayID
		trans.GatewayID = &gatewayID
	}
	if len(failure.Metadata) > 0 {
		trans.GatewayMetadata = failure.Metadata
	}
	if trans.Status != model.TransactionStatusFailed {
		l.statusEvents++
	}
	message := failure.Message
	trans.Status = model.TransactionStatusFailed
	trans.ErrorMessage = &message
	return nil
}

func (l *memLedger) CreateSplitRuleLogs(_ context.Context, logs []*model.SplitRuleLog) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.splitLogsErr != nil {
		return l.splitLogsErr
	}
	l.splitLogs = append(l.splitLogs, logs...)
	return nil
}

func (l *memLedger) ListSplitRuleLogs(_ context.Context, transactionID string) ([]*model.SplitRuleLog, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var result []*model.SplitRuleLog
	for _, log := range l.splitLogs {
		if log.TransactionID == transactionID {
			result = append(result, log)
		}
	}
	return result, nil
}

func (l *memLedger) CreateOrder(_ context.Context, order *model.Order) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	cp := *order
	l.orders[order.ID] = &cp
	return nil
}

func (l *memLedger) GetOrder(_ context.Context, id string) (*model.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.getOrderErr != nil {
		return nil, l.getOrderErr
	}
	order, ok := l.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	cp := *order
	return &cp, nil
}

func (l *memLedger) transaction(id string) *model.Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.transactions[id]
}

func (l *memLedger) order(id string) *model.Order {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.orders[id]
}

func (l *memLedger) transactionCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.transactions)
}

// mockGateway 按需替换单个方法
type mockGateway struct {
	createOrderFn     func(ctx context.Context, key string, req *gateway.OrderRequest) (*gateway.OrderResponse, error)
	getOrderFn        func(ctx context.Context, gatewayID string) (*gateway.OrderResponse, error)
	createRecipientFn func(ctx context.Context, req *gateway.RecipientRequest) (*gateway.RecipientResponse, error)

	mu       sync.Mutex
	keys     []string
	requests []*gateway.OrderRequest
}

func (m *mockGateway) CreateOrder(ctx context.Context, key string, req *gateway.OrderRequest) (*gateway.OrderResponse, error) {
	m.mu.Lock()
	m.keys = append(m.keys, key)
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	return m.createOrderFn(ctx, key, req)
}

func (m *mockGateway) GetOrder(ctx context.Context, gatewayID string) (*gateway.OrderResponse, error) {
	return m.getOrderFn(ctx, gatewayID)
}

func (m *mockGateway) CreateRecipient(ctx context.Context, req *gateway.RecipientRequest) (*gateway.RecipientResponse, error) {
	return m.createRecipientFn(ctx, req)
}

func (m *mockGateway) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func respondWith(id, status string) func(context.Context, string, *gateway.OrderRequest) (*gateway.OrderResponse, error) {
	return func(context.Context, string, *gateway.OrderRequest) (*gateway.OrderResponse, error) {
		raw := []byte(`{"id":"` + id + `","status":"` + status + `"}`)
		return &gateway.OrderResponse{ID: id, Status: status, Raw: raw}, nil
	}
}
