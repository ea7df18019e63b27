package models

import "time"

type OrderStatus string

const (
	// OrderPending is the initial state of every order. OrderSuccess is
	// terminal; there is no cancel or expiry state.
	OrderPending OrderStatus = "pending"
	OrderSuccess OrderStatus = "success"
)

// Order is one purchase attempt for Count usage credits.
type Order struct {
	OrderID       string
	SessionID     string
	Channel       string
	Count         int
	Amount        string // canonical 2dp decimal string, fixed at creation
	Status        OrderStatus
	TradeNo       *string
	SignedPayload map[string]string // exact param map signed for the redirect URL
	CreatedAt     time.Time
	PaidAt        *time.Time
	UpdatedAt     time.Time
}

// UserState tracks per-session usage counters. FreeUsed only ever grows;
// Credits never goes below zero.
type UserState struct {
	SessionID string
	FreeUsed  int
	Credits   int
	CreatedAt time.Time
	UpdatedAt time.Time
}
