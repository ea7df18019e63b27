package services

import (
	"context"
	"errors"
	"log/slog"

	"cinescript/internal/models"
	"cinescript/internal/pricing"
	"cinescript/internal/sign"
	"cinescript/internal/store"
)

var (
	ErrMissingOrderRef   = errors.New("callback missing order reference")
	ErrMerchantMismatch  = errors.New("callback merchant id mismatch")
	ErrMissingSignature  = errors.New("callback missing signature")
	ErrSignatureMismatch = errors.New("callback signature mismatch")
	ErrAmountMismatch    = errors.New("callback amount mismatch")
)

// paidStatuses are the gateway's recognized settled sentinels, case
// sensitive.
func isPaidStatus(tradeStatus string) bool {
	switch tradeStatus {
	case "TRADE_SUCCESS", "SUCCESS", "success":
		return true
	}
	return false
}

// CallbackService reconciles asynchronous gateway notifications against the
// order ledger and credits the owning session. Per order id there is exactly
// one credit grant no matter how many times the gateway delivers.
type CallbackService struct {
	Store       store.Store
	MerchantID  string
	SignKey     string
	RequireSign bool
	Events      *OrderEvents
	Log         *slog.Logger
}

// Reconcile validates one raw notification. A nil return means the
// notification was accepted and the gateway should stop redelivering; any
// error rejects it. Validation is fail-closed and short-circuits in order:
// order reference, merchant id, signature, amount, trade status.
func (s *CallbackService) Reconcile(ctx context.Context, params map[string]string) error {
	orderID := params["out_trade_no"]
	if orderID == "" {
		return ErrMissingOrderRef
	}

	order, err := s.Store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}

	if pid := params["pid"]; pid != "" && pid != s.MerchantID {
		s.Log.Warn("callback rejected: merchant mismatch", "order_id", orderID, "pid", pid)
		return ErrMerchantMismatch
	}

	if claimed := params[sign.FieldSign]; claimed != "" {
		if !sign.Verify(params, claimed, s.SignKey) {
			s.Log.Warn("callback rejected: bad signature", "order_id", orderID)
			return ErrSignatureMismatch
		}
	} else if s.RequireSign {
		s.Log.Warn("callback rejected: unsigned", "order_id", orderID)
		return ErrMissingSignature
	}

	if !pricing.Equal(params["money"], order.Amount) {
		s.Log.Warn("callback rejected: amount mismatch",
			"order_id", orderID, "notified", params["money"], "expected", order.Amount)
		return ErrAmountMismatch
	}

	tradeStatus := params["trade_status"]
	if !isPaidStatus(tradeStatus) {
		// Not a settlement (refund, pending, ...). Acknowledge so the
		// gateway stops redelivering, but credit nothing.
		s.Log.Info("callback acknowledged without credit",
			"order_id", orderID, "trade_status", tradeStatus)
		return nil
	}

	return s.settle(ctx, order, params["trade_no"])
}

// SettleFromQuery applies a gateway query result to a pending order. Used by
// the reconciliation worker; the amount check is the same as the callback
// path, authentication comes from the merchant-key query channel.
func (s *CallbackService) SettleFromQuery(ctx context.Context, order *models.Order, money, tradeNo string) error {
	if !pricing.Equal(money, order.Amount) {
		s.Log.Warn("query settle rejected: amount mismatch",
			"order_id", order.OrderID, "notified", money, "expected", order.Amount)
		return ErrAmountMismatch
	}
	return s.settle(ctx, order, tradeNo)
}

// settle performs the single pending→success transition and the credit
// grant. Losing the compare-and-set means another delivery already settled
// the order; that is a duplicate and is accepted without re-crediting.
func (s *CallbackService) settle(ctx context.Context, order *models.Order, tradeNo string) error {
	won, err := s.Store.MarkOrderSuccess(ctx, order.OrderID, tradeNo)
	if err != nil {
		return err
	}
	if !won {
		s.Log.Info("duplicate settlement delivery", "order_id", order.OrderID)
		return nil
	}

	if err := s.Store.AddCredits(ctx, order.SessionID, order.Count); err != nil {
		// The transition already won; a reject would route redeliveries into
		// the duplicate path without ever retrying the grant. Log and accept.
		s.Log.Error("credit grant failed after settlement",
			"order_id", order.OrderID, "session_id", order.SessionID, "err", err)
		return nil
	}

	s.Log.Info("order settled",
		"order_id", order.OrderID, "session_id", order.SessionID, "credits", order.Count)

	if s.Events != nil {
		s.Events.Publish(OrderUpdate{
			OrderID:   order.OrderID,
			Status:    models.OrderSuccess,
			PaidCount: order.Count,
		})
	}
	return nil
}
