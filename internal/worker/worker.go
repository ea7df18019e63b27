// Package worker reconciles pending orders against the gateway's merchant
// query API. Callbacks can get lost; this loop is the backstop that settles
// orders the gateway says are paid.
package worker

import (
	"context"
	"log/slog"
	"time"

	"cinescript/internal/gateway"
	"cinescript/internal/models"
	"cinescript/internal/services"
	"cinescript/internal/store"
)

type Worker struct {
	Store     store.Store
	Gateway   *gateway.Client
	Callbacks *services.CallbackService
	// MinAge keeps the loop from querying orders the user is probably still
	// paying for.
	MinAge   time.Duration
	Interval time.Duration
	Log      *slog.Logger
}

func (w *Worker) Run(ctx context.Context) {
	interval := w.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := w.SyncOnce(ctx); err != nil {
			w.Log.Error("reconciliation sweep failed", "err", err)
		}
	}
}

func (w *Worker) SyncOnce(ctx context.Context) error {
	orders, err := w.Store.ListPendingOrders(ctx)
	if err != nil {
		return err
	}
	if len(orders) == 0 {
		return nil
	}

	cutoff := time.Now().UTC().Add(-w.MinAge)
	checked := 0
	for _, order := range orders {
		if order.CreatedAt.After(cutoff) {
			continue
		}
		checked++
		if err := w.syncOrder(ctx, order); err != nil {
			w.Log.Warn("order reconciliation failed", "order_id", order.OrderID, "err", err)
		}
	}
	if checked > 0 {
		w.Log.Info("reconciliation sweep", "pending", len(orders), "checked", checked)
	}
	return nil
}

func (w *Worker) syncOrder(ctx context.Context, order *models.Order) error {
	info, err := w.Gateway.QueryOrder(ctx, order.OrderID)
	if err != nil {
		return err
	}
	if !info.Paid() {
		return nil
	}
	return w.Callbacks.SettleFromQuery(ctx, order, info.Money, info.TradeNo)
}
