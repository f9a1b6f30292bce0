package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrForbidden is returned when a caller touches an order they do not
	// own without staff privileges.
	ErrForbidden = errors.New("operation not permitted for this user")

	// ErrEmptyCart is returned when an order is placed from an empty cart.
	ErrEmptyCart = errors.New("cart is empty")

	// ErrAlreadyPaid is returned when payment is initialized or verified
	// for an order that has already been paid.
	ErrAlreadyPaid = errors.New("order is already paid")

	// ErrNotPaid is returned when a fulfillment step requires a completed
	// payment the order does not have.
	ErrNotPaid = errors.New("order is not paid")

	// ErrPaymentNotInitialized is returned when verification is attempted
	// before a checkout session exists for the order.
	ErrPaymentNotInitialized = errors.New("payment has not been initialized for this order")

	// ErrPaymentNotVerified is returned when the gateway reports the
	// transaction as anything other than a completed payment.
	ErrPaymentNotVerified = errors.New("payment could not be verified")

	// ErrNoRefundRequested is returned when a refund decision is made on
	// an order with no open refund request.
	ErrNoRefundRequested = errors.New("order has no pending refund request")

	// ErrInvalidRefundAction is returned for refund decisions other than
	// approve or reject.
	ErrInvalidRefundAction = errors.New("refund action must be approve or reject")

	// ErrOrderTerminal is returned when an operation targets an order in a
	// terminal state.
	ErrOrderTerminal = errors.New("order is in a terminal state")

	// ErrInvalidArrivalDays is returned when an approval supplies an
	// arrival estimate outside the allowed window.
	ErrInvalidArrivalDays = errors.New("estimated arrival days out of range")
)

// StockShortfall describes one cart line that could not be satisfied.
type StockShortfall struct {
	ProductID uuid.UUID `json:"product_id"`
	Name      string    `json:"name"`
	Requested int       `json:"requested"`
	Available int       `json:"available"`
}

// InsufficientStockError reports every cart line that exceeded available
// stock, so the client can fix the whole cart in one pass.
type InsufficientStockError struct {
	Shortfalls []StockShortfall
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortfalls))
	for _, s := range e.Shortfalls {
		parts = append(parts, fmt.Sprintf("%s (requested %d, available %d)", s.Name, s.Requested, s.Available))
	}
	return "insufficient stock: " + strings.Join(parts, ", ")
}
