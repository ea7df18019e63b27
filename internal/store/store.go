package store

import (
	"context"
	"errors"

	"cinescript/internal/models"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrDuplicateOrder = errors.New("order id already exists")
)

// Store holds the two ledgers: payment orders and per-session usage state.
// All counter mutations are atomic; callers never read-modify-write entries
// themselves.
type Store interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	ListPendingOrders(ctx context.Context) ([]*models.Order, error)
	// MarkOrderSuccess transitions pending→success exactly once. It returns
	// false without mutating anything when the order has already settled.
	MarkOrderSuccess(ctx context.Context, orderID, tradeNo string) (bool, error)

	GetOrCreateUser(ctx context.Context, sessionID string) (*models.UserState, error)
	// IncrementFreeUsed consumes one free slot if freeUsed < limit, returning
	// whether a slot was taken. The counter never decreases.
	IncrementFreeUsed(ctx context.Context, sessionID string, limit int) (bool, error)
	AddCredits(ctx context.Context, sessionID string, n int) error
	// ConsumeCredit decrements the balance if positive, returning whether a
	// credit was taken. The balance never goes below zero.
	ConsumeCredit(ctx context.Context, sessionID string) (bool, error)

	// Reset drops all state. Test lifecycle hook.
	Reset(ctx context.Context) error
}
