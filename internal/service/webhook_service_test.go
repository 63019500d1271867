package service

import (
	"context"
	"errors"
	"testing"

	"splitpay/internal/model"
)

func seedSubmitted(ledger *memLedger, orderID, txID, gatewayID, status string) {
	ledger.addOrder(orderID, 10000, model.OrderStatusPending)
	_ = ledger.CreateTransaction(context.Background(), &model.Transaction{
		ID:      txID,
		OrderID: orderID,
		Amount:  10000,
		Status:  model.TransactionStatusPending,
	})
	_, _ = ledger.ApplyGatewayState(context.Background(), txID, model.GatewayState{GatewayID: gatewayID, Status: status})
}

func event(id, status string) *model.WebhookEvent {
	raw := []byte(`{"id":"` + id + `","status":"` + status + `"}`)
	return &model.WebhookEvent{ID: id, Status: status, Raw: raw}
}

func TestReconcileProjectsOrderStatus(t *testing.T) {
	tests := []struct {
		gatewayStatus string
		wantTx        string
		wantOrder     string
	}{
		{"paid", model.TransactionStatusPaid, model.OrderStatusPaid},
		{"failed", model.TransactionStatusFailed, model.OrderStatusFailed},
		{"canceled", model.TransactionStatusCanceled, model.OrderStatusFailed},
		{"authorized", model.TransactionStatusAuthorized, model.OrderStatusPending},
		{"refunded", model.TransactionStatusRefunded, model.OrderStatusPending},
		{"chargedback", model.TransactionStatusPending, model.OrderStatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.gatewayStatus, func(t *testing.T) {
			ledger := newMemLedger()
			seedSubmitted(ledger, "ORD1", "TXN1", "or_1", model.TransactionStatusPending)
			svc := NewWebhookService(ledger)

			applied, err := svc.Reconcile(context.Background(), event("or_1", tt.gatewayStatus))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !applied {
				t.Fatal("known transaction should be applied")
			}
			trans := ledger.transaction("TXN1")
			if trans.Status != tt.wantTx {
				t.Fatalf("transaction status = %s, want %s", trans.Status, tt.wantTx)
			}
			if got := ledger.order("ORD1").Status; got != tt.wantOrder {
				t.Fatalf("order status = %s, want %s", got, tt.wantOrder)
			}
			if string(trans.GatewayMetadata) == "" {
				t.Fatal("event payload should be stored as metadata")
			}
		})
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	ledger := newMemLedger()
	seedSubmitted(ledger, "ORD1", "TXN1", "or_1", model.TransactionStatusPending)
	svc := NewWebhookService(ledger)
	eventsBefore := ledger.statusEvents

	for i := 0; i < 3; i++ {
		if _, err := svc.Reconcile(context.Background(), event("or_1", "paid")); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ledger.transaction("TXN1").Status != model.TransactionStatusPaid || ledger.order("ORD1").Status != model.OrderStatusPaid {
		t.Fatal("unexpected final state")
	}
	if ledger.statusEvents-eventsBefore != 1 {
		t.Fatalf("expected one status change, got %d", ledger.statusEvents-eventsBefore)
	}
}

func TestReconcileOverwritesWithoutMonotonicGuard(t *testing.T) {
	ledger := newMemLedger()
	seedSubmitted(ledger, "ORD1", "TXN1", "or_1", model.TransactionStatusPending)
	svc := NewWebhookService(ledger)

	_, _ = svc.Reconcile(context.Background(), event("or_1", "paid"))
	_, _ = svc.Reconcile(context.Background(), event("or_1", "pending"))

	if got := ledger.transaction("TXN1").Status; got != model.TransactionStatusPending {
		t.Fatalf("late event should overwrite, got %s", got)
	}
	if got := ledger.order("ORD1").Status; got != model.OrderStatusPaid {
		t.Fatalf("non-terminal event must not touch the order, got %s", got)
	}
}

func TestReconcileOrphanEvent(t *testing.T) {
	ledger := newMemLedger()
	seedSubmitted(ledger, "ORD1", "TXN1", "or_1", model.TransactionStatusPending)
	svc := NewWebhookService(ledger)

	applied, err := svc.Reconcile(context.Background(), event("or_unknown", "paid"))
	if err != nil {
		t.Fatalf("orphan event should not be an error: %v", err)
	}
	if applied {
		t.Fatal("orphan event should be reported as not applied")
	}
	if ledger.transaction("TXN1").Status != model.TransactionStatusPending {
		t.Fatal("orphan event must not modify other transactions")
	}
}

func TestReconcileStorageFailure(t *testing.T) {
	ledger := newMemLedger()
	seedSubmitted(ledger, "ORD1", "TXN1", "or_1", model.TransactionStatusPending)
	svc := NewWebhookService(ledger)

	ledger.findErr = errors.New("connection refused")
	if _, err := svc.Reconcile(context.Background(), event("or_1", "paid")); !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}

	ledger.findErr = nil
	ledger.applyErr = errors.New("lock wait timeout")
	if _, err := svc.Reconcile(context.Background(), event("or_1", "paid")); !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
}

func TestApplyGatewayStatusKeepsGatewayID(t *testing.T) {
	ledger := newMemLedger()
	seedSubmitted(ledger, "ORD1", "TXN1", "or_1", model.TransactionStatusPending)
	svc := NewWebhookService(ledger)

	trans := ledger.transaction("TXN1")
	updated, err := svc.ApplyGatewayStatus(context.Background(), trans, "paid", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.GatewayID == nil || *updated.GatewayID != "or_1" || updated.Status != model.TransactionStatusPaid {
		t.Fatalf("unexpected transaction: %+v", updated)
	}
}
