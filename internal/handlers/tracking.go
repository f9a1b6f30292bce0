package handlers

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

// TrackShipment resolves a tracking number to shipment progress. The route
// is public; the response exposes no customer or payment data.
func (h *Handlers) TrackShipment(w http.ResponseWriter, r *http.Request) {
	trackingNumber := strings.TrimSpace(mux.Vars(r)["trackingNumber"])
	if trackingNumber == "" {
		writeMessage(w, http.StatusBadRequest, "tracking number is required")
		return
	}

	info, err := h.orders.TrackShipment(r.Context(), trackingNumber)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// ConfirmDelivery records carrier confirmation for a shipment.
func (h *Handlers) ConfirmDelivery(w http.ResponseWriter, r *http.Request) {
	caller, ok := h.identity(r)
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "authorization required")
		return
	}

	trackingNumber := strings.TrimSpace(mux.Vars(r)["trackingNumber"])
	if trackingNumber == "" {
		writeMessage(w, http.StatusBadRequest, "tracking number is required")
		return
	}

	order, err := h.orders.MarkDelivered(r.Context(), caller, trackingNumber)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}
