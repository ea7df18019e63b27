package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cinescript/internal/models"
)

func newOrder(id, session string) *models.Order {
	now := time.Now().UTC()
	return &models.Order{
		OrderID:   id,
		SessionID: session,
		Channel:   "alipay",
		Count:     1,
		Amount:    "9.90",
		Status:    models.OrderPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestOrderLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if err := m.CreateOrder(ctx, newOrder("ORD-1", "s1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := m.CreateOrder(ctx, newOrder("ORD-1", "s1")); !errors.Is(err, ErrDuplicateOrder) {
		t.Fatalf("duplicate create: got %v", err)
	}
	if _, err := m.GetOrder(ctx, "ORD-missing"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("missing get: got %v", err)
	}

	ok, err := m.MarkOrderSuccess(ctx, "ORD-1", "T100")
	if err != nil || !ok {
		t.Fatalf("first mark: ok=%v err=%v", ok, err)
	}
	ok, err = m.MarkOrderSuccess(ctx, "ORD-1", "T100")
	if err != nil || ok {
		t.Fatalf("second mark must be a no-op: ok=%v err=%v", ok, err)
	}

	order, err := m.GetOrder(ctx, "ORD-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if order.Status != models.OrderSuccess || order.PaidAt == nil || order.TradeNo == nil || *order.TradeNo != "T100" {
		t.Fatalf("settled order not recorded: %+v", order)
	}

	pending, err := m.ListPendingOrders(ctx)
	if err != nil || len(pending) != 0 {
		t.Fatalf("pending after settle: %v %v", pending, err)
	}
}

func TestMarkOrderSuccessConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if err := m.CreateOrder(ctx, newOrder("ORD-1", "s1")); err != nil {
		t.Fatal(err)
	}

	const n = 32
	wins := make(chan bool, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := m.MarkOrderSuccess(ctx, "ORD-1", "T1")
			if err != nil {
				t.Errorf("mark: %v", err)
			}
			wins <- ok
		}()
	}
	wg.Wait()
	close(wins)

	won := 0
	for ok := range wins {
		if ok {
			won++
		}
	}
	if won != 1 {
		t.Fatalf("expected exactly one winning transition, got %d", won)
	}
}

func TestConsumeCreditNeverNegative(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if err := m.AddCredits(ctx, "s1", 5); err != nil {
		t.Fatal(err)
	}

	const n = 50
	consumed := make(chan bool, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := m.ConsumeCredit(ctx, "s1")
			if err != nil {
				t.Errorf("consume: %v", err)
			}
			consumed <- ok
		}()
	}
	wg.Wait()
	close(consumed)

	got := 0
	for ok := range consumed {
		if ok {
			got++
		}
	}
	if got != 5 {
		t.Fatalf("expected 5 successful consumes, got %d", got)
	}

	state, err := m.GetOrCreateUser(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if state.Credits != 0 {
		t.Fatalf("credits=%d, want 0", state.Credits)
	}
}

func TestIncrementFreeUsedCaps(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	const limit = 3
	taken := 0
	for i := 0; i < 10; i++ {
		ok, err := m.IncrementFreeUsed(ctx, "s1", limit)
		if err != nil {
			t.Fatal(err)
		}
		if ok {
			taken++
		}
	}
	if taken != limit {
		t.Fatalf("took %d free slots, want %d", taken, limit)
	}

	state, _ := m.GetOrCreateUser(ctx, "s1")
	if state.FreeUsed != limit {
		t.Fatalf("freeUsed=%d, want %d", state.FreeUsed, limit)
	}
}

func TestGetOrCreateUserDefaults(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	state, err := m.GetOrCreateUser(ctx, "fresh")
	if err != nil {
		t.Fatal(err)
	}
	if state.FreeUsed != 0 || state.Credits != 0 {
		t.Fatalf("fresh session must default to zero counters: %+v", state)
	}
}

func TestResetDropsEverything(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_ = m.CreateOrder(ctx, newOrder("ORD-1", "s1"))
	_ = m.AddCredits(ctx, "s1", 2)

	if err := m.Reset(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := m.GetOrder(ctx, "ORD-1"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("order survived reset: %v", err)
	}
	state, _ := m.GetOrCreateUser(ctx, "s1")
	if state.Credits != 0 {
		t.Fatalf("credits survived reset: %+v", state)
	}
}

func TestGetOrderReturnsCopy(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	o := newOrder("ORD-1", "s1")
	o.SignedPayload = map[string]string{"pid": "1221"}
	_ = m.CreateOrder(ctx, o)

	got, _ := m.GetOrder(ctx, "ORD-1")
	got.Status = models.OrderSuccess
	got.SignedPayload["pid"] = "mutated"

	again, _ := m.GetOrder(ctx, "ORD-1")
	if again.Status != models.OrderPending || again.SignedPayload["pid"] != "1221" {
		t.Fatal("store entry leaked to callers by reference")
	}
}
