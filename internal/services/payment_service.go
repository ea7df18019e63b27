package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cinescript/internal/gateway"
	"cinescript/internal/models"
	"cinescript/internal/pricing"
	"cinescript/internal/store"

	"github.com/google/uuid"
)

var (
	ErrInvalidCount       = errors.New("count must be at least 1")
	ErrUnsupportedChannel = errors.New("unsupported payment channel")
)

// PaymentService owns order creation: price calculation, order id
// generation, the signed gateway redirect URL, and the pending order record.
type PaymentService struct {
	Store   store.Store
	Gateway *gateway.Client
	Pricing pricing.Service
	Log     *slog.Logger
}

// CreateOrderResult is what the client needs to start paying.
type CreateOrderResult struct {
	Order  *models.Order
	PayURL string
	QRURL  string
}

func (s *PaymentService) CreateOrder(ctx context.Context, sessionID, channel string, count int, clientIP string) (*CreateOrderResult, error) {
	if channel == "" {
		channel = "alipay"
	}
	switch channel {
	case "alipay", "wechat":
	default:
		return nil, ErrUnsupportedChannel
	}
	if count < 1 {
		return nil, ErrInvalidCount
	}

	amount, err := s.Pricing.Amount(count)
	if err != nil {
		return nil, err
	}

	orderID := newOrderID()
	payURL, payload, err := s.Gateway.BuildSubmitURL(orderID, channel, amount, clientIP)
	if err != nil {
		return nil, fmt.Errorf("build pay url: %w", err)
	}

	now := time.Now().UTC()
	order := &models.Order{
		OrderID:       orderID,
		SessionID:     sessionID,
		Channel:       channel,
		Count:         count,
		Amount:        amount,
		Status:        models.OrderPending,
		SignedPayload: payload,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.Store.CreateOrder(ctx, order); err != nil {
		return nil, err
	}

	s.Log.Info("order created",
		"order_id", orderID, "session_id", sessionID,
		"channel", channel, "count", count, "amount", amount)

	return &CreateOrderResult{Order: order, PayURL: payURL, QRURL: payURL}, nil
}

func (s *PaymentService) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	return s.Store.GetOrder(ctx, orderID)
}

// newOrderID keeps the ORD-<millis>-<suffix> shape but takes the suffix from
// a random UUID instead of a small numeric range.
func newOrderID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("ORD-%d-%s", time.Now().UnixMilli(), suffix)
}
