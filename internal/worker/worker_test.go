package worker

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"cinescript/internal/gateway"
	"cinescript/internal/models"
	"cinescript/internal/services"
	"cinescript/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedOrder(t *testing.T, st store.Store, orderID string, age time.Duration) {
	t.Helper()
	created := time.Now().UTC().Add(-age)
	require.NoError(t, st.CreateOrder(context.Background(), &models.Order{
		OrderID:   orderID,
		SessionID: "sess-1",
		Channel:   "alipay",
		Count:     1,
		Amount:    "9.90",
		Status:    models.OrderPending,
		CreatedAt: created,
		UpdatedAt: created,
	}))
}

func newWorker(st store.Store, gw *gateway.Client) *Worker {
	log := slog.Default()
	return &Worker{
		Store:   st,
		Gateway: gw,
		Callbacks: &services.CallbackService{
			Store:       st,
			MerchantID:  "1221",
			SignKey:     "secret",
			RequireSign: true,
			Log:         log,
		},
		MinAge:   time.Minute,
		Interval: time.Minute,
		Log:      log,
	}
}

func TestSyncOnceSettlesPaidOrder(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	seedOrder(t, st, "ORD-old", 5*time.Minute)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ORD-old", r.URL.Query().Get("out_trade_no"))
		w.Write([]byte(`{"code":1,"msg":"ok","trade_no":"T1","out_trade_no":"ORD-old","money":"9.9","trade_status":"TRADE_SUCCESS","status":1}`))
	}))
	defer srv.Close()

	w := newWorker(st, gateway.NewClient(gateway.Config{BaseURL: srv.URL, MerchantID: "1221", SignKey: "secret"}))
	require.NoError(t, w.SyncOnce(ctx))

	order, err := st.GetOrder(ctx, "ORD-old")
	require.NoError(t, err)
	assert.Equal(t, models.OrderSuccess, order.Status)

	state, _ := st.GetOrCreateUser(ctx, "sess-1")
	assert.Equal(t, 1, state.Credits)
}

func TestSyncOnceSkipsYoungOrders(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	seedOrder(t, st, "ORD-young", 2*time.Second)

	var queried atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		queried.Add(1)
		w.Write([]byte(`{"code":1,"msg":"ok","status":1,"money":"9.90"}`))
	}))
	defer srv.Close()

	w := newWorker(st, gateway.NewClient(gateway.Config{BaseURL: srv.URL}))
	require.NoError(t, w.SyncOnce(ctx))
	assert.Zero(t, queried.Load())

	order, _ := st.GetOrder(ctx, "ORD-young")
	assert.Equal(t, models.OrderPending, order.Status)
}

func TestSyncOnceLeavesUnpaidOrdersPending(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	seedOrder(t, st, "ORD-unpaid", 5*time.Minute)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":1,"msg":"ok","trade_no":"","out_trade_no":"ORD-unpaid","money":"9.90","trade_status":"WAIT_BUYER_PAY","status":0}`))
	}))
	defer srv.Close()

	w := newWorker(st, gateway.NewClient(gateway.Config{BaseURL: srv.URL}))
	require.NoError(t, w.SyncOnce(ctx))

	order, _ := st.GetOrder(ctx, "ORD-unpaid")
	assert.Equal(t, models.OrderPending, order.Status)
	state, _ := st.GetOrCreateUser(ctx, "sess-1")
	assert.Zero(t, state.Credits)
}
