package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestTransactionLockIsExclusive(t *testing.T) {
	_, client := newTestClient(t)
	ctx := context.Background()

	a := NewTransactionLock(client, "TXN1", "instance-a")
	b := NewTransactionLock(client, "TXN1", "instance-b")
	other := NewTransactionLock(client, "TXN2", "instance-b")

	if a.Key() != "splitpay:lock:txn:TXN1" {
		t.Fatalf("unexpected key %q", a.Key())
	}

	ok, err := a.TryLock(ctx)
	if err != nil || !ok {
		t.Fatalf("first lock should succeed: ok=%v err=%v", ok, err)
	}
	ok, err = b.TryLock(ctx)
	if err != nil || ok {
		t.Fatalf("second lock on same transaction should fail: ok=%v err=%v", ok, err)
	}
	ok, err = other.TryLock(ctx)
	if err != nil || !ok {
		t.Fatalf("different transaction should not contend: ok=%v err=%v", ok, err)
	}

	if err := a.Unlock(ctx); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	ok, _ = b.TryLock(ctx)
	if !ok {
		t.Fatal("lock should be available after unlock")
	}
}

func TestUnlockDoesNotReleaseOthersLock(t *testing.T) {
	mr, client := newTestClient(t)
	ctx := context.Background()

	a := NewTransactionLock(client, "TXN1", "instance-a")
	b := NewTransactionLock(client, "TXN1", "instance-b")

	if ok, _ := a.TryLock(ctx); !ok {
		t.Fatal("lock a")
	}
	mr.FastForward(31 * time.Second)
	if ok, _ := b.TryLock(ctx); !ok {
		t.Fatal("lock b after expiry")
	}

	if err := a.Unlock(ctx); !errors.Is(err, ErrLockExpired) {
		t.Fatalf("expected ErrLockExpired, got %v", err)
	}
	if got, _ := mr.Get(b.Key()); got != "instance-b" {
		t.Fatalf("lock owner = %q, want instance-b", got)
	}
}
