package http

import (
	"errors"
	"net/http"
	"time"

	"cinescript/internal/models"
	"cinescript/internal/services"
	"cinescript/internal/store"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	// Session identity is already weak; the payment page may be served from
	// anywhere, so cross-origin subscriptions are allowed.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// OrderStatusWS streams status updates for one order, an alternative to
// polling GET /pay/status. The current state is sent immediately; the
// connection closes once the order settles.
func (h *Handler) OrderStatusWS(w http.ResponseWriter, r *http.Request) {
	orderID := r.URL.Query().Get("orderId")
	if orderID == "" {
		writeError(w, http.StatusBadRequest, "missing order id")
		return
	}

	order, err := h.Payments.GetOrder(r.Context(), orderID)
	if err != nil {
		if errors.Is(err, store.ErrOrderNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"status": "not_found"})
			return
		}
		writeError(w, http.StatusInternalServerError, "get order failed")
		return
	}

	// Subscribe before the snapshot so a settlement between the two is not
	// missed.
	updates, cancel := h.Events.Subscribe(orderID)
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	snapshot := services.OrderUpdate{OrderID: order.OrderID, Status: order.Status}
	if order.Status == models.OrderSuccess {
		snapshot.PaidCount = order.Count
	}
	if err := conn.WriteJSON(snapshot); err != nil {
		return
	}
	if snapshot.Status == models.OrderSuccess {
		return
	}

	// Drain reads so close frames are processed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(30 * time.Second)
	defer ping.Stop()

	for {
		select {
		case update := <-updates:
			if err := conn.WriteJSON(update); err != nil {
				return
			}
			if update.Status == models.OrderSuccess {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
