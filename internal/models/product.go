package models

import (
	"time"

	"github.com/google/uuid"
)

// Product carries the stock ledger: Stock is the number of units still
// available for ordering.
type Product struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	PriceCents int       `json:"price_cents"`
	ImageURL   string    `json:"image_url"`
	Stock      int       `json:"stock"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CartItem is one line of a user's cart. Cart management lives outside this
// service; placing an order only reads and then clears these rows.
type CartItem struct {
	UserID    uuid.UUID `json:"user_id"`
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}
