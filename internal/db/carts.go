package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tanamarket/tana/internal/models"
)

// CartStore reads and clears per-user cart lines. Cart management itself is
// handled elsewhere; placing an order only consumes the cart.
type CartStore struct {
	pool *pgxpool.Pool
}

func NewCartStore(pool *pgxpool.Pool) *CartStore {
	return &CartStore{pool: pool}
}

func (s *CartStore) ItemsByUser(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, product_id, quantity
		FROM cart_items WHERE user_id = $1 ORDER BY created_at
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []models.CartItem
	for rows.Next() {
		var item models.CartItem
		if err := rows.Scan(&item.UserID, &item.ProductID, &item.Quantity); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *CartStore) Clear(ctx context.Context, userID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID)
	return err
}
