package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/tanamarket/tana/internal/auth"
	"github.com/tanamarket/tana/internal/models"
)

type placeOrderRequest struct {
	ShippingAddress models.ShippingAddress `json:"shipping_address" validate:"required"`
}

type approveOrderRequest struct {
	// ArrivalDays of zero lets the service pick an estimate.
	ArrivalDays int `json:"arrival_days" validate:"omitempty,gte=3,lte=60"`
}

type refundRequest struct {
	Reason string `json:"reason" validate:"required,min=4,max=500"`
}

type resolveRefundRequest struct {
	Action string `json:"action" validate:"required,oneof=approve reject"`
}

// PlaceOrder converts the caller's cart into a pending order.
func (h *Handlers) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.identity(r)
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "authorization required")
		return
	}

	var req placeOrderRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	order, err := h.orders.PlaceOrder(r.Context(), caller, req.ShippingAddress)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

// InitializePayment opens a Chapa checkout session for an order.
func (h *Handlers) InitializePayment(w http.ResponseWriter, r *http.Request) {
	caller, orderID, ok := h.orderRequest(w, r)
	if !ok {
		return
	}

	checkout, err := h.orders.InitializePayment(r.Context(), caller, orderID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"checkout_url": checkout.CheckoutURL,
		"tx_ref":       checkout.TxRef,
	})
}

// VerifyPayment settles the order's payment against the gateway verdict.
func (h *Handlers) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	caller, orderID, ok := h.orderRequest(w, r)
	if !ok {
		return
	}

	order, err := h.orders.VerifyPayment(r.Context(), caller, orderID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// ApproveOrder moves a paid order into fulfillment.
func (h *Handlers) ApproveOrder(w http.ResponseWriter, r *http.Request) {
	caller, orderID, ok := h.orderRequest(w, r)
	if !ok {
		return
	}

	var req approveOrderRequest
	if r.ContentLength > 0 {
		if err := h.decodeBody(w, r, &req); err != nil {
			h.respondError(w, r, err)
			return
		}
	}

	order, err := h.orders.Approve(r.Context(), caller, orderID, req.ArrivalDays)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// ShipOrder marks an approved order as shipped.
func (h *Handlers) ShipOrder(w http.ResponseWriter, r *http.Request) {
	caller, orderID, ok := h.orderRequest(w, r)
	if !ok {
		return
	}

	order, err := h.orders.Ship(r.Context(), caller, orderID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// CancelOrder cancels an undelivered order.
func (h *Handlers) CancelOrder(w http.ResponseWriter, r *http.Request) {
	caller, orderID, ok := h.orderRequest(w, r)
	if !ok {
		return
	}

	order, err := h.orders.Cancel(r.Context(), caller, orderID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// RequestRefund opens a refund request on the caller's order.
func (h *Handlers) RequestRefund(w http.ResponseWriter, r *http.Request) {
	caller, orderID, ok := h.orderRequest(w, r)
	if !ok {
		return
	}

	var req refundRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	order, err := h.orders.RequestRefund(r.Context(), caller, orderID, req.Reason)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// ResolveRefund settles a pending refund request.
func (h *Handlers) ResolveRefund(w http.ResponseWriter, r *http.Request) {
	caller, orderID, ok := h.orderRequest(w, r)
	if !ok {
		return
	}

	var req resolveRefundRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}

	order, err := h.orders.ResolveRefund(r.Context(), caller, orderID, req.Action)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// GetOrder returns one order for its owner or staff.
func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	caller, orderID, ok := h.orderRequest(w, r)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(r.Context(), caller, orderID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// ListOrders returns the caller's orders, newest first.
func (h *Handlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.identity(r)
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "authorization required")
		return
	}

	orders, err := h.orders.ListOrders(r.Context(), caller)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if orders == nil {
		orders = []*models.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

// AdminListOrders returns recent orders across all users.
func (h *Handlers) AdminListOrders(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeMessage(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = parsed
	}

	orders, err := h.orders.ListAllOrders(r.Context(), limit)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if orders == nil {
		orders = []*models.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

// orderRequest extracts the caller identity and the order ID path variable.
func (h *Handlers) orderRequest(w http.ResponseWriter, r *http.Request) (caller auth.Identity, orderID uuid.UUID, ok bool) {
	caller, found := h.identity(r)
	if !found {
		writeMessage(w, http.StatusUnauthorized, "authorization required")
		return caller, uuid.Nil, false
	}

	orderID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid order id")
		return caller, uuid.Nil, false
	}
	return caller, orderID, true
}
