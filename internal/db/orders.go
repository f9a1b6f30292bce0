package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tanamarket/tana/internal/models"
)

var (
	ErrInvalidStatusTransition = errors.New("invalid order status transition")
	ErrOrderNotFound           = errors.New("order not found")
	ErrTrackingNumberTaken     = errors.New("tracking number already assigned to another order")
)

const uniqueViolationCode = "23505"

type OrderStore struct {
	pool *pgxpool.Pool
}

func NewOrderStore(pool *pgxpool.Pool) *OrderStore {
	return &OrderStore{pool: pool}
}

const orderColumns = `id, user_id, shipping_address, items_cents, shipping_cents, tax_cents,
	total_cents, currency, is_paid, paid_at, payment_tx_id, payment_status, payment_paid_at,
	payment_email, chapa_reference, status, tracking_number, is_delivered, delivered_at,
	estimated_arrival_date, refund_requested, refund_reason, refund_status, created_at, updated_at`

// Create inserts the order and its item snapshots in one transaction.
func (s *OrderStore) Create(ctx context.Context, order *models.Order) error {
	addressJSON, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("failed to encode shipping address: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		INSERT INTO orders (user_id, shipping_address, items_cents, shipping_cents, tax_cents,
			total_cents, currency, status, refund_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`, order.UserID, addressJSON, order.ItemsCents, order.ShippingCents, order.TaxCents,
		order.TotalCents, order.Currency, string(order.Status), string(order.RefundStatus))

	var createdAt, updatedAt pgtype.Timestamptz
	if err := row.Scan(&order.ID, &createdAt, &updatedAt); err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	order.CreatedAt = createdAt.Time
	order.UpdatedAt = updatedAt.Time

	for i, item := range order.Items {
		_, err := tx.Exec(ctx, `
			INSERT INTO order_items (order_id, position, product_id, name, unit_price_cents, quantity, image_url)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, order.ID, i, item.ProductID, item.Name, item.UnitPriceCents, item.Quantity, item.ImageURL)
		if err != nil {
			return fmt.Errorf("failed to insert order item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit order: %w", err)
	}
	return nil
}

func (s *OrderStore) GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID)
	order, err := scanOrder(row)
	if err != nil {
		return nil, err
	}
	if err := s.attachItems(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderStore) GetByTrackingNumber(ctx context.Context, trackingNumber string) (*models.Order, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE tracking_number = $1`, trackingNumber)
	order, err := scanOrder(row)
	if err != nil {
		return nil, err
	}
	if err := s.attachItems(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *OrderStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Order, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	return s.collectOrders(ctx, rows)
}

func (s *OrderStore) ListAll(ctx context.Context, limit int) ([]*models.Order, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	return s.collectOrders(ctx, rows)
}

// SetChapaReference records the gateway correlation reference chosen at
// payment initialization. It never touches the fulfillment status.
func (s *OrderStore) SetChapaReference(ctx context.Context, orderID uuid.UUID, reference string) error {
	cmdTag, err := s.pool.Exec(ctx, `
		UPDATE orders SET chapa_reference = $1, updated_at = now() WHERE id = $2
	`, reference, orderID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// MarkPaid records a verified payment and moves the order to processing. The
// status guard keeps a stale or repeated verification from rewinding a later
// state.
func (s *OrderStore) MarkPaid(ctx context.Context, orderID uuid.UUID, result models.PaymentResult) error {
	cmdTag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET is_paid = TRUE, paid_at = now(), status = $1, payment_tx_id = $2,
		    payment_status = $3, payment_paid_at = $4, payment_email = $5,
		    updated_at = now()
		WHERE id = $6 AND status = 'pending' AND is_paid = FALSE
	`, string(models.StatusProcessing), result.TransactionID, result.Status, result.PaidAt, result.PayerEmail, orderID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected pending and unpaid", ErrInvalidStatusTransition)
	}
	return nil
}

// Approve moves a paid order from processing to approved, assigning the
// tracking number and estimated arrival date if not already set.
func (s *OrderStore) Approve(ctx context.Context, orderID uuid.UUID, trackingNumber string, estimatedArrival time.Time) error {
	cmdTag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET status = $1,
		    tracking_number = COALESCE(tracking_number, $2),
		    estimated_arrival_date = COALESCE(estimated_arrival_date, $3),
		    updated_at = now()
		WHERE id = $4 AND status = 'processing' AND is_paid = TRUE
	`, string(models.StatusApproved), trackingNumber, estimatedArrival, orderID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrTrackingNumberTaken
		}
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected processing and paid", ErrInvalidStatusTransition)
	}
	return nil
}

// MarkShipped moves an approved order to shipped, assigning the tracking
// number if approve did not already set one.
func (s *OrderStore) MarkShipped(ctx context.Context, orderID uuid.UUID, trackingNumber string) error {
	cmdTag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET status = $1, tracking_number = COALESCE(tracking_number, $2), updated_at = now()
		WHERE id = $3 AND status = 'approved'
	`, string(models.StatusShipped), trackingNumber, orderID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrTrackingNumberTaken
		}
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected approved", ErrInvalidStatusTransition)
	}
	return nil
}

func (s *OrderStore) MarkDelivered(ctx context.Context, orderID uuid.UUID) error {
	cmdTag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET status = $1, is_delivered = TRUE, delivered_at = now(), updated_at = now()
		WHERE id = $2 AND status = 'shipped'
	`, string(models.StatusDelivered), orderID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected shipped", ErrInvalidStatusTransition)
	}
	return nil
}

// Cancel marks the order cancelled. Delivered and already-terminal orders are
// rejected by the guard. Stock is not restored; cancelled orders are
// reconciled manually.
func (s *OrderStore) Cancel(ctx context.Context, orderID uuid.UUID) error {
	cmdTag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET status = $1, updated_at = now()
		WHERE id = $2 AND status IN ('pending', 'processing', 'approved', 'shipped')
	`, string(models.StatusCancelled), orderID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: order is delivered or already terminal", ErrInvalidStatusTransition)
	}
	return nil
}

func (s *OrderStore) RequestRefund(ctx context.Context, orderID uuid.UUID, reason string) error {
	cmdTag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET refund_requested = TRUE, refund_status = $1, refund_reason = $2, updated_at = now()
		WHERE id = $3 AND status NOT IN ('refunded', 'cancelled') AND refund_requested = FALSE
	`, string(models.RefundPending), reason, orderID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: refund already requested or order terminal", ErrInvalidStatusTransition)
	}
	return nil
}

// ApproveRefund resolves a pending refund in the customer's favor: the order
// becomes refunded and its paid flag is cleared.
func (s *OrderStore) ApproveRefund(ctx context.Context, orderID uuid.UUID) error {
	cmdTag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET refund_status = $1, status = $2, is_paid = FALSE, updated_at = now()
		WHERE id = $3 AND refund_requested = TRUE
	`, string(models.RefundApproved), string(models.StatusRefunded), orderID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: no refund requested", ErrInvalidStatusTransition)
	}
	return nil
}

// RejectRefund resolves a pending refund against the customer: the request
// flag clears and the fulfillment status stays put.
func (s *OrderStore) RejectRefund(ctx context.Context, orderID uuid.UUID) error {
	cmdTag, err := s.pool.Exec(ctx, `
		UPDATE orders
		SET refund_status = $1, refund_requested = FALSE, updated_at = now()
		WHERE id = $2 AND refund_requested = TRUE
	`, string(models.RefundRejected), orderID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: no refund requested", ErrInvalidStatusTransition)
	}
	return nil
}

func (s *OrderStore) collectOrders(ctx context.Context, rows pgx.Rows) ([]*models.Order, error) {
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, order := range orders {
		if err := s.attachItems(ctx, order); err != nil {
			return nil, err
		}
	}
	return orders, nil
}

func (s *OrderStore) attachItems(ctx context.Context, order *models.Order) error {
	rows, err := s.pool.Query(ctx, `
		SELECT product_id, name, unit_price_cents, quantity, image_url
		FROM order_items WHERE order_id = $1 ORDER BY position
	`, order.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var item models.OrderItem
		if err := rows.Scan(&item.ProductID, &item.Name, &item.UnitPriceCents, &item.Quantity, &item.ImageURL); err != nil {
			return err
		}
		order.Items = append(order.Items, item)
	}
	return rows.Err()
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var (
		order            models.Order
		addressJSON      []byte
		status           string
		refundStatus     string
		paidAt           pgtype.Timestamptz
		paymentTxID      pgtype.Text
		paymentStatus    pgtype.Text
		paymentPaidAt    pgtype.Timestamptz
		paymentEmail     pgtype.Text
		chapaReference   pgtype.Text
		trackingNumber   pgtype.Text
		deliveredAt      pgtype.Timestamptz
		estimatedArrival pgtype.Date
		createdAt        pgtype.Timestamptz
		updatedAt        pgtype.Timestamptz
	)

	err := row.Scan(
		&order.ID, &order.UserID, &addressJSON, &order.ItemsCents, &order.ShippingCents,
		&order.TaxCents, &order.TotalCents, &order.Currency, &order.IsPaid, &paidAt,
		&paymentTxID, &paymentStatus, &paymentPaidAt, &paymentEmail, &chapaReference,
		&status, &trackingNumber, &order.IsDelivered, &deliveredAt, &estimatedArrival,
		&order.RefundRequested, &order.RefundReason, &refundStatus, &createdAt, &updatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(addressJSON, &order.ShippingAddress); err != nil {
		return nil, fmt.Errorf("failed to decode shipping address: %w", err)
	}

	order.Status = models.OrderStatus(status)
	order.RefundStatus = models.RefundStatus(refundStatus)
	order.PaidAt = paidAt.Time
	order.DeliveredAt = deliveredAt.Time
	order.CreatedAt = createdAt.Time
	order.UpdatedAt = updatedAt.Time
	if estimatedArrival.Valid {
		order.EstimatedArrivalDate = estimatedArrival.Time
	}
	if chapaReference.Valid {
		order.ChapaReference = chapaReference.String
	}
	if trackingNumber.Valid {
		order.TrackingNumber = trackingNumber.String
	}
	if paymentTxID.Valid {
		order.ChapaTransactionID = paymentTxID.String
		order.PaymentResult = &models.PaymentResult{
			TransactionID: paymentTxID.String,
			Status:        paymentStatus.String,
			PaidAt:        paymentPaidAt.Time,
			PayerEmail:    paymentEmail.String,
		}
	}

	return &order, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
