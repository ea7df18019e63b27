package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"cinescript/internal/genai"
	"cinescript/internal/models"
	"cinescript/internal/services"
	"cinescript/internal/store"
)

type Handler struct {
	Analyze   *services.AnalyzeService
	Payments  *services.PaymentService
	Callbacks *services.CallbackService
	Events    *services.OrderEvents
	Log       *slog.Logger
}

func NewHandler(analyze *services.AnalyzeService, payments *services.PaymentService, callbacks *services.CallbackService, events *services.OrderEvents, log *slog.Logger) *Handler {
	return &Handler{
		Analyze:   analyze,
		Payments:  payments,
		Callbacks: callbacks,
		Events:    events,
		Log:       log,
	}
}

// sessionID derives the requester's identity: explicit session header first,
// client address as a weak fallback.
func sessionID(r *http.Request) string {
	if id := r.Header.Get("X-Session-Id"); id != "" {
		return id
	}
	addr := r.RemoteAddr
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	if addr == "" {
		return "anonymous"
	}
	return addr
}

type analyzeRequest struct {
	Input string `json:"input"`
}

func (h *Handler) AnalyzeVideo(w http.ResponseWriter, r *http.Request) {
	tier := r.URL.Query().Get("tier")
	if tier == "" {
		tier = genai.TierFree
	}

	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	result, err := h.Analyze.Analyze(r.Context(), sessionID(r), tier, req.Input)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrFreeQuotaExhausted):
			writeError(w, http.StatusPaymentRequired, "free quota exhausted, payment required")
		case errors.Is(err, services.ErrNoCredits):
			writeError(w, http.StatusPaymentRequired, "no paid credits remaining, payment required")
		case errors.Is(err, services.ErrInvalidTier):
			writeError(w, http.StatusBadRequest, "tier must be free or paid")
		case errors.Is(err, genai.ErrUpstream):
			writeError(w, http.StatusBadGateway, "analysis temporarily unavailable, please retry")
		default:
			writeError(w, http.StatusInternalServerError, "analysis failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type createOrderRequest struct {
	Channel string `json:"channel"`
	Count   int    `json:"count"`
}

type createOrderResponse struct {
	OrderID string `json:"orderId"`
	Amount  string `json:"amount"`
	PayURL  string `json:"payUrl"`
	QRURL   string `json:"qrUrl"`
	Channel string `json:"channel"`
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.Count == 0 {
		req.Count = 1
	}

	res, err := h.Payments.CreateOrder(r.Context(), sessionID(r), req.Channel, req.Count, clientIP(r))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidCount):
			writeError(w, http.StatusBadRequest, "count must be at least 1")
		case errors.Is(err, services.ErrUnsupportedChannel):
			writeError(w, http.StatusBadRequest, "unsupported payment channel")
		default:
			writeError(w, http.StatusInternalServerError, "create order failed, please retry")
		}
		return
	}

	writeJSON(w, http.StatusOK, createOrderResponse{
		OrderID: res.Order.OrderID,
		Amount:  res.Order.Amount,
		PayURL:  res.PayURL,
		QRURL:   res.QRURL,
		Channel: res.Order.Channel,
	})
}

type orderStatusResponse struct {
	Status    string `json:"status"`
	PaidCount int    `json:"paidCount"`
}

func (h *Handler) OrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID := r.URL.Query().Get("orderId")
	if orderID == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"status": "not_found"})
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

	resp := orderStatusResponse{Status: string(order.Status)}
	if order.Status == models.OrderSuccess {
		resp.PaidCount = order.Count
	}
	writeJSON(w, http.StatusOK, resp)
}

// PaymentCallback receives the gateway's asynchronous notification. The
// literal response bodies are the gateway's contract: "success" stops
// redelivery, anything else triggers a retry.
func (h *Handler) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	params, err := flattenCallbackParams(r)
	if err != nil {
		h.Log.Warn("unparseable callback", "err", err)
		respondFail(w)
		return
	}

	if err := h.Callbacks.Reconcile(r.Context(), params); err != nil {
		respondFail(w)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("success"))
}

func respondFail(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusBadRequest)
	_, _ = w.Write([]byte("fail"))
}

// flattenCallbackParams accepts the gateway's flat parameters as either an
// urlencoded form or a JSON object, normalized to strings.
func flattenCallbackParams(r *http.Request) (map[string]string, error) {
	params := make(map[string]string)

	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		dec := json.NewDecoder(r.Body)
		// Numbers stay textual so "9.9" survives as sent.
		dec.UseNumber()
		var raw map[string]any
		if err := dec.Decode(&raw); err != nil {
			return nil, err
		}
		for k, v := range raw {
			switch val := v.(type) {
			case string:
				params[k] = val
			case json.Number:
				params[k] = val.String()
			case nil:
			default:
				params[k] = fmt.Sprint(val)
			}
		}
		return params, nil
	}

	if err := r.ParseForm(); err != nil {
		return nil, err
	}
	for k, vs := range r.Form {
		if len(vs) > 0 {
			params[k] = vs[0]
		}
	}
	return params, nil
}

func clientIP(r *http.Request) string {
	// middleware.RealIP already folds X-Forwarded-For/X-Real-IP into
	// RemoteAddr when present.
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
