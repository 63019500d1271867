package job

import (
	"context"
	"sync"
	"testing"
	"time"

	"splitpay/internal/config"
	"splitpay/internal/gateway"
	"splitpay/internal/infrastructure/lock"
	"splitpay/internal/model"
	"splitpay/internal/repository"
	"splitpay/internal/service"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
)

type fakeFetcher struct {
	mu       sync.Mutex
	statuses map[string]string
	calls    []string
}

func (f *fakeFetcher) GetOrder(_ context.Context, gatewayID string) (*gateway.OrderResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, gatewayID)
	status, ok := f.statuses[gatewayID]
	if !ok {
		return nil, &gateway.APIError{StatusCode: 404, Body: "not found"}
	}
	return &gateway.OrderResponse{
		ID:     gatewayID,
		Status: status,
		Raw:    []byte(`{"id":"` + gatewayID + `","status":"` + status + `"}`),
	}, nil
}

var syncConfig = config.BusinessConfig{
	MaxRetryCount:       3,
	SyncIntervalSeconds: 60,
	SyncStaleMinutes:    15,
	SyncBatchSize:       10,
}

func seedSubmitted(t *testing.T, ledger *repository.Ledger, orderID, txID, gatewayID string) {
	t.Helper()
	ctx := context.Background()
	if err := ledger.CreateOrder(ctx, &model.Order{ID: orderID, Amount: 10000, Status: model.OrderStatusPending}); err != nil {
		t.Fatalf("create order: %v", err)
	}
	err := ledger.CreateTransaction(ctx, &model.Transaction{
		ID: txID, OrderID: orderID, PaymentMethod: model.PaymentMethodBoleto, Amount: 10000, Installments: 1,
		IdempotencyKey: "key-" + txID, SplitSnapshot: datatypes.JSON(`[]`), Status: model.TransactionStatusPending,
	})
	if err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	if _, err := ledger.ApplyGatewayState(ctx, txID, model.GatewayState{GatewayID: gatewayID, Status: model.TransactionStatusPending}); err != nil {
		t.Fatalf("apply gateway state: %v", err)
	}
}

func newSyncJob(t *testing.T, ledger *repository.Ledger, fetcher *fakeFetcher) (*TransactionSyncJob, *miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	j := NewTransactionSyncJob(ledger, fetcher, service.NewWebhookService(ledger), rdb, syncConfig, zerolog.Nop())
	j.now = func() time.Time { return time.Now().Add(time.Hour) }
	return j, mr, rdb
}

func TestTransactionSyncAppliesPolledStatus(t *testing.T) {
	ledger := repository.NewLedger(newTestDB(t), "payment_status")
	seedSubmitted(t, ledger, "ORD1", "TXN1", "or_1")
	seedSubmitted(t, ledger, "ORD2", "TXN2", "or_2")

	fetcher := &fakeFetcher{statuses: map[string]string{"or_1": "paid", "or_2": "canceled"}}
	j, mr, _ := newSyncJob(t, ledger, fetcher)

	if synced := j.RunOnce(context.Background()); synced != 2 {
		t.Fatalf("expected 2 synced, got %d", synced)
	}

	ctx := context.Background()
	tx1, _ := ledger.GetTransaction(ctx, "TXN1")
	order1, _ := ledger.GetOrder(ctx, "ORD1")
	if tx1.Status != model.TransactionStatusPaid || order1.Status != model.OrderStatusPaid {
		t.Fatalf("TXN1/ORD1 = %s/%s", tx1.Status, order1.Status)
	}
	tx2, _ := ledger.GetTransaction(ctx, "TXN2")
	order2, _ := ledger.GetOrder(ctx, "ORD2")
	if tx2.Status != model.TransactionStatusCanceled || order2.Status != model.OrderStatusFailed {
		t.Fatalf("TXN2/ORD2 = %s/%s", tx2.Status, order2.Status)
	}

	if mr.Exists("splitpay:lock:txn:TXN1") {
		t.Fatal("lock should be released after sync")
	}

	// 终态交易不再被挑出
	if synced := j.RunOnce(ctx); synced != 0 {
		t.Fatalf("terminal transactions should not be polled again, got %d", synced)
	}
}

func TestTransactionSyncSkipsLockedTransaction(t *testing.T) {
	ledger := repository.NewLedger(newTestDB(t), "payment_status")
	seedSubmitted(t, ledger, "ORD1", "TXN1", "or_1")

	fetcher := &fakeFetcher{statuses: map[string]string{"or_1": "paid"}}
	j, _, rdb := newSyncJob(t, ledger, fetcher)

	other := lock.NewTransactionLock(rdb, "TXN1", "other-instance")
	if ok, _ := other.TryLock(context.Background()); !ok {
		t.Fatal("failed to take lock")
	}

	if synced := j.RunOnce(context.Background()); synced != 0 {
		t.Fatalf("locked transaction should be skipped, got %d", synced)
	}
	if len(fetcher.calls) != 0 {
		t.Fatal("gateway must not be queried while another instance holds the lock")
	}
}

func TestTransactionSyncIgnoresFreshAndFailing(t *testing.T) {
	ledger := repository.NewLedger(newTestDB(t), "payment_status")
	seedSubmitted(t, ledger, "ORD1", "TXN1", "or_missing")

	fetcher := &fakeFetcher{statuses: map[string]string{}}
	j, _, _ := newSyncJob(t, ledger, fetcher)

	if synced := j.RunOnce(context.Background()); synced != 0 {
		t.Fatalf("gateway error should not count as synced, got %d", synced)
	}
	tx, _ := ledger.GetTransaction(context.Background(), "TXN1")
	if tx.Status != model.TransactionStatusPending {
		t.Fatalf("status should be untouched, got %s", tx.Status)
	}

	j.now = time.Now
	fetcher.calls = nil
	j.RunOnce(context.Background())
	if len(fetcher.calls) != 0 {
		t.Fatal("recently updated transactions are not stale")
	}
}

func TestTransactionSyncStartStop(t *testing.T) {
	ledger := repository.NewLedger(newTestDB(t), "payment_status")
	j, _, _ := newSyncJob(t, ledger, &fakeFetcher{})
	j.interval = time.Millisecond

	done := make(chan struct{})
	go func() {
		j.Start(context.Background())
		close(done)
	}()
	time.Sleep(5 * time.Millisecond)
	j.Stop()
	j.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job did not stop")
	}
}
