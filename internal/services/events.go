package services

import (
	"sync"

	"cinescript/internal/models"
)

// OrderUpdate is pushed to subscribers when an order changes state.
type OrderUpdate struct {
	OrderID   string             `json:"orderId"`
	Status    models.OrderStatus `json:"status"`
	PaidCount int                `json:"paidCount"`
}

// OrderEvents is an in-process broadcaster keyed by order id. Publishing
// never blocks: a subscriber that cannot keep up misses intermediate
// updates, which is fine for advisory status pushes.
type OrderEvents struct {
	mu   sync.Mutex
	subs map[string]map[chan OrderUpdate]struct{}
}

func NewOrderEvents() *OrderEvents {
	return &OrderEvents{subs: make(map[string]map[chan OrderUpdate]struct{})}
}

// Subscribe registers interest in one order. The returned cancel func must
// be called when the subscriber goes away.
func (e *OrderEvents) Subscribe(orderID string) (<-chan OrderUpdate, func()) {
	ch := make(chan OrderUpdate, 4)

	e.mu.Lock()
	set, ok := e.subs[orderID]
	if !ok {
		set = make(map[chan OrderUpdate]struct{})
		e.subs[orderID] = set
	}
	set[ch] = struct{}{}
	e.mu.Unlock()

	cancel := func() {
		e.mu.Lock()
		if set, ok := e.subs[orderID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(e.subs, orderID)
			}
		}
		e.mu.Unlock()
	}
	return ch, cancel
}

func (e *OrderEvents) Publish(update OrderUpdate) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for ch := range e.subs[update.OrderID] {
		select {
		case ch <- update:
		default:
		}
	}
}
