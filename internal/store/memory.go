package store

import (
	"context"
	"sync"
	"time"

	"cinescript/internal/models"
)

// Memory is the default store: process-lifetime maps, no persistence.
// A restart loses all state by design. The orders table and the users table
// are guarded by separate mutexes; either table's mutations serialize, which
// is what makes MarkOrderSuccess a compare-and-set and the counter ops safe
// under concurrent requests for the same session.
type Memory struct {
	omu    sync.RWMutex
	orders map[string]*models.Order

	umu   sync.Mutex
	users map[string]*models.UserState
}

func NewMemory() *Memory {
	return &Memory{
		orders: make(map[string]*models.Order),
		users:  make(map[string]*models.UserState),
	}
}

func (m *Memory) CreateOrder(ctx context.Context, order *models.Order) error {
	m.omu.Lock()
	defer m.omu.Unlock()
	if _, ok := m.orders[order.OrderID]; ok {
		return ErrDuplicateOrder
	}
	cp := cloneOrder(order)
	m.orders[order.OrderID] = cp
	return nil
}

func (m *Memory) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	m.omu.RLock()
	defer m.omu.RUnlock()
	order, ok := m.orders[orderID]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

func (m *Memory) ListPendingOrders(ctx context.Context) ([]*models.Order, error) {
	m.omu.RLock()
	defer m.omu.RUnlock()
	var out []*models.Order
	for _, order := range m.orders {
		if order.Status == models.OrderPending {
			out = append(out, cloneOrder(order))
		}
	}
	return out, nil
}

func (m *Memory) MarkOrderSuccess(ctx context.Context, orderID, tradeNo string) (bool, error) {
	m.omu.Lock()
	defer m.omu.Unlock()
	order, ok := m.orders[orderID]
	if !ok {
		return false, ErrOrderNotFound
	}
	if order.Status != models.OrderPending {
		return false, nil
	}
	now := time.Now().UTC()
	order.Status = models.OrderSuccess
	order.PaidAt = &now
	order.UpdatedAt = now
	if tradeNo != "" {
		order.TradeNo = &tradeNo
	}
	return true, nil
}

func (m *Memory) GetOrCreateUser(ctx context.Context, sessionID string) (*models.UserState, error) {
	m.umu.Lock()
	defer m.umu.Unlock()
	state := m.ensureUserLocked(sessionID)
	cp := *state
	return &cp, nil
}

func (m *Memory) IncrementFreeUsed(ctx context.Context, sessionID string, limit int) (bool, error) {
	m.umu.Lock()
	defer m.umu.Unlock()
	state := m.ensureUserLocked(sessionID)
	if state.FreeUsed >= limit {
		return false, nil
	}
	state.FreeUsed++
	state.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *Memory) AddCredits(ctx context.Context, sessionID string, n int) error {
	m.umu.Lock()
	defer m.umu.Unlock()
	state := m.ensureUserLocked(sessionID)
	state.Credits += n
	state.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) ConsumeCredit(ctx context.Context, sessionID string) (bool, error) {
	m.umu.Lock()
	defer m.umu.Unlock()
	state := m.ensureUserLocked(sessionID)
	if state.Credits <= 0 {
		return false, nil
	}
	state.Credits--
	state.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *Memory) Reset(ctx context.Context) error {
	m.omu.Lock()
	m.orders = make(map[string]*models.Order)
	m.omu.Unlock()
	m.umu.Lock()
	m.users = make(map[string]*models.UserState)
	m.umu.Unlock()
	return nil
}

func (m *Memory) ensureUserLocked(sessionID string) *models.UserState {
	state, ok := m.users[sessionID]
	if !ok {
		now := time.Now().UTC()
		state = &models.UserState{SessionID: sessionID, CreatedAt: now, UpdatedAt: now}
		m.users[sessionID] = state
	}
	return state
}

func cloneOrder(order *models.Order) *models.Order {
	cp := *order
	if order.TradeNo != nil {
		v := *order.TradeNo
		cp.TradeNo = &v
	}
	if order.PaidAt != nil {
		v := *order.PaidAt
		cp.PaidAt = &v
	}
	if order.SignedPayload != nil {
		cp.SignedPayload = make(map[string]string, len(order.SignedPayload))
		for k, v := range order.SignedPayload {
			cp.SignedPayload[k] = v
		}
	}
	return &cp
}
