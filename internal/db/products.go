package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tanamarket/tana/internal/models"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// ProductStore exposes the stock ledger: per-product available-quantity
// counters decremented as a side effect of order placement.
type ProductStore struct {
	pool *pgxpool.Pool
}

func NewProductStore(pool *pgxpool.Pool) *ProductStore {
	return &ProductStore{pool: pool}
}

func (s *ProductStore) GetByID(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, price_cents, image_url, stock, created_at, updated_at
		FROM products WHERE id = $1
	`, productID)
	return scanProduct(row)
}

// GetByIDs loads the given products. Missing IDs are simply absent from the
// result; callers decide whether that is an error.
func (s *ProductStore) GetByIDs(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID]*models.Product, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, price_cents, image_url, stock, created_at, updated_at
		FROM products WHERE id = ANY($1)
	`, productIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make(map[uuid.UUID]*models.Product, len(productIDs))
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products[product.ID] = product
	}
	return products, rows.Err()
}

// DecrementStock removes qty units from a product's ledger. The stock guard
// makes the check and the decrement one atomic statement, so two concurrent
// orders cannot both take the last unit.
func (s *ProductStore) DecrementStock(ctx context.Context, productID uuid.UUID, qty int) (int, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE products
		SET stock = stock - $1, updated_at = now()
		WHERE id = $2 AND stock >= $1
		RETURNING stock
	`, qty, productID)

	var remaining int
	if err := row.Scan(&remaining); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrInsufficientStock
		}
		return 0, err
	}
	return remaining, nil
}

// RestoreStock returns units to a product's ledger. This only unwinds a
// partially placed order; cancelling an order does not restock.
func (s *ProductStore) RestoreStock(ctx context.Context, productID uuid.UUID, qty int) error {
	cmdTag, err := s.pool.Exec(ctx, `
		UPDATE products SET stock = stock + $1, updated_at = now() WHERE id = $2
	`, qty, productID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrProductNotFound
	}
	return nil
}

func scanProduct(row pgx.Row) (*models.Product, error) {
	var (
		product   models.Product
		createdAt pgtype.Timestamptz
		updatedAt pgtype.Timestamptz
	)
	if err := row.Scan(&product.ID, &product.Name, &product.PriceCents, &product.ImageURL,
		&product.Stock, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}
	product.CreatedAt = createdAt.Time
	product.UpdatedAt = updatedAt.Time
	return &product, nil
}
