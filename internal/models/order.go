package models

import (
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusProcessing OrderStatus = "processing"
	StatusApproved   OrderStatus = "approved"
	StatusShipped    OrderStatus = "shipped"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
	StatusRefunded   OrderStatus = "refunded"
)

type RefundStatus string

const (
	RefundNone     RefundStatus = "none"
	RefundPending  RefundStatus = "pending"
	RefundApproved RefundStatus = "approved"
	RefundRejected RefundStatus = "rejected"
)

// ShippingAddress is snapshotted onto the order at creation. Every field is
// required.
type ShippingAddress struct {
	Street  string `json:"street" validate:"required"`
	City    string `json:"city" validate:"required"`
	State   string `json:"state" validate:"required"`
	ZipCode string `json:"zip_code" validate:"required"`
	Country string `json:"country" validate:"required"`
}

// OrderItem is a cart line frozen at order-placement time. Name, unit price
// and image never resynchronize with the live product record.
type OrderItem struct {
	ProductID      uuid.UUID `json:"product_id"`
	Name           string    `json:"name"`
	UnitPriceCents int       `json:"unit_price_cents"`
	Quantity       int       `json:"quantity"`
	ImageURL       string    `json:"image_url"`
}

// PaymentResult is the gateway's verdict snapshotted after a successful
// verification.
type PaymentResult struct {
	TransactionID string    `json:"transaction_id"`
	Status        string    `json:"status"`
	PaidAt        time.Time `json:"paid_at"`
	PayerEmail    string    `json:"payer_email"`
}

type Order struct {
	ID                   uuid.UUID       `json:"id"`
	UserID               uuid.UUID       `json:"user_id"`
	Items                []OrderItem     `json:"items"`
	ShippingAddress      ShippingAddress `json:"shipping_address"`
	ItemsCents           int             `json:"items_cents"`
	ShippingCents        int             `json:"shipping_cents"`
	TaxCents             int             `json:"tax_cents"`
	TotalCents           int             `json:"total_cents"`
	Currency             string          `json:"currency"`
	IsPaid               bool            `json:"is_paid"`
	PaidAt               time.Time       `json:"paid_at"`
	PaymentResult        *PaymentResult  `json:"payment_result,omitempty"`
	ChapaReference       string          `json:"chapa_reference"`
	ChapaTransactionID   string          `json:"chapa_transaction_id"`
	Status               OrderStatus     `json:"status"`
	TrackingNumber       string          `json:"tracking_number"`
	IsDelivered          bool            `json:"is_delivered"`
	DeliveredAt          time.Time       `json:"delivered_at"`
	EstimatedArrivalDate time.Time       `json:"estimated_arrival_date"`
	RefundRequested      bool            `json:"refund_requested"`
	RefundReason         string          `json:"refund_reason"`
	RefundStatus         RefundStatus    `json:"refund_status"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// IsTerminal reports whether no further fulfillment transitions are possible.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case StatusDelivered, StatusCancelled, StatusRefunded:
		return true
	default:
		return false
	}
}
