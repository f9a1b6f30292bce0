// Package services holds the order lifecycle workflow: placement against the
// stock ledger, the Chapa payment round-trip, fulfillment transitions, and
// the refund request/decision flow. Every state change lands in the audit
// log.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/google/uuid"

	"github.com/tanamarket/tana/internal/auth"
	"github.com/tanamarket/tana/internal/cache"
	"github.com/tanamarket/tana/internal/chapa"
	"github.com/tanamarket/tana/internal/db"
	"github.com/tanamarket/tana/internal/email"
	"github.com/tanamarket/tana/internal/models"
	"github.com/tanamarket/tana/internal/observability"
	"github.com/tanamarket/tana/internal/pricing"
)

// trackingTTL bounds how stale a public tracking lookup may be.
const trackingTTL = 30 * time.Second

// verificationTTL covers the window in which the gateway callback and the
// customer's return redirect can both trigger verification.
const verificationTTL = 24 * time.Hour

type orderStore interface {
	Create(ctx context.Context, order *models.Order) error
	GetByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	GetByTrackingNumber(ctx context.Context, trackingNumber string) (*models.Order, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*models.Order, error)
	ListAll(ctx context.Context, limit int) ([]*models.Order, error)
	SetChapaReference(ctx context.Context, orderID uuid.UUID, reference string) error
	MarkPaid(ctx context.Context, orderID uuid.UUID, result models.PaymentResult) error
	Approve(ctx context.Context, orderID uuid.UUID, trackingNumber string, estimatedArrival time.Time) error
	MarkShipped(ctx context.Context, orderID uuid.UUID, trackingNumber string) error
	MarkDelivered(ctx context.Context, orderID uuid.UUID) error
	Cancel(ctx context.Context, orderID uuid.UUID) error
	RequestRefund(ctx context.Context, orderID uuid.UUID, reason string) error
	ApproveRefund(ctx context.Context, orderID uuid.UUID) error
	RejectRefund(ctx context.Context, orderID uuid.UUID) error
}

type productStore interface {
	GetByIDs(ctx context.Context, productIDs []uuid.UUID) (map[uuid.UUID]*models.Product, error)
	DecrementStock(ctx context.Context, productID uuid.UUID, qty int) (int, error)
	RestoreStock(ctx context.Context, productID uuid.UUID, qty int) error
}

type cartStore interface {
	ItemsByUser(ctx context.Context, userID uuid.UUID) ([]models.CartItem, error)
	Clear(ctx context.Context, userID uuid.UUID) error
}

type activitySink interface {
	Record(ctx context.Context, activity models.Activity) error
}

type paymentGateway interface {
	Initialize(ctx context.Context, req chapa.InitializeRequest) (*chapa.Checkout, error)
	Verify(ctx context.Context, txRef string) (*chapa.VerifyResult, error)
}

// OrderServiceConfig carries the collaborators OrderService needs. Cache and
// Emails may be nil; the service degrades to uncached lookups and no
// notifications.
type OrderServiceConfig struct {
	Orders          orderStore
	Products        productStore
	Carts           cartStore
	Activity        activitySink
	Gateway         paymentGateway
	Pricer          *pricing.Pricer
	Cache           cache.Provider
	Emails          email.Provider
	Logger          *slog.Logger
	CallbackBaseURL string
}

type OrderService struct {
	orders          orderStore
	products        productStore
	carts           cartStore
	activity        activitySink
	gateway         paymentGateway
	pricer          *pricing.Pricer
	cache           cache.Provider
	emails          email.Provider
	logger          *slog.Logger
	callbackBaseURL string
	now             func() time.Time
}

func NewOrderService(cfg OrderServiceConfig) (*OrderService, error) {
	switch {
	case cfg.Orders == nil:
		return nil, errors.New("order store is required")
	case cfg.Products == nil:
		return nil, errors.New("product store is required")
	case cfg.Carts == nil:
		return nil, errors.New("cart store is required")
	case cfg.Activity == nil:
		return nil, errors.New("activity store is required")
	case cfg.Gateway == nil:
		return nil, errors.New("payment gateway is required")
	case cfg.Pricer == nil:
		return nil, errors.New("pricer is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	emails := cfg.Emails
	if emails == nil {
		emails = email.NoopProvider{}
	}

	return &OrderService{
		orders:          cfg.Orders,
		products:        cfg.Products,
		carts:           cfg.Carts,
		activity:        cfg.Activity,
		gateway:         cfg.Gateway,
		pricer:          cfg.Pricer,
		cache:           cfg.Cache,
		emails:          emails,
		logger:          logger.With("component", "order_service"),
		callbackBaseURL: cfg.CallbackBaseURL,
		now:             time.Now,
	}, nil
}

// PlaceOrder converts the caller's cart into a pending order. The whole cart
// is validated against the stock ledger before anything is written, so the
// caller learns about every shortfall in one response.
func (s *OrderService) PlaceOrder(ctx context.Context, caller auth.Identity, address models.ShippingAddress) (*models.Order, error) {
	cartItems, err := s.carts.ItemsByUser(ctx, caller.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	if len(cartItems) == 0 {
		return nil, ErrEmptyCart
	}

	productIDs := make([]uuid.UUID, 0, len(cartItems))
	for _, line := range cartItems {
		productIDs = append(productIDs, line.ProductID)
	}
	products, err := s.products.GetByIDs(ctx, productIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load products: %w", err)
	}

	var shortfalls []StockShortfall
	items := make([]models.OrderItem, 0, len(cartItems))
	for _, line := range cartItems {
		product, ok := products[line.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", db.ErrProductNotFound, line.ProductID)
		}
		if product.Stock < line.Quantity {
			shortfalls = append(shortfalls, StockShortfall{
				ProductID: product.ID,
				Name:      product.Name,
				Requested: line.Quantity,
				Available: product.Stock,
			})
			continue
		}
		items = append(items, models.OrderItem{
			ProductID:      product.ID,
			Name:           product.Name,
			UnitPriceCents: product.PriceCents,
			Quantity:       line.Quantity,
			ImageURL:       product.ImageURL,
		})
	}
	if len(shortfalls) > 0 {
		return nil, &InsufficientStockError{Shortfalls: shortfalls}
	}

	quote := s.pricer.QuoteOrder(items)
	order := &models.Order{
		UserID:          caller.UserID,
		ShippingAddress: address,
		Items:           items,
		ItemsCents:      quote.ItemsCents,
		ShippingCents:   quote.ShippingCents,
		TaxCents:        quote.TaxCents,
		TotalCents:      quote.TotalCents,
		Currency:        quote.Currency,
		Status:          models.StatusPending,
		RefundStatus:    models.RefundNone,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create order: %w", err)
	}

	// The upfront check and the decrement are not one transaction, so a
	// concurrent order can still take the last unit between them. The
	// ledger guard catches that; unwind and fail the order.
	for i, item := range items {
		if _, err := s.products.DecrementStock(ctx, item.ProductID, item.Quantity); err != nil {
			s.unwindPlacement(ctx, order, items[:i])
			if errors.Is(err, db.ErrInsufficientStock) {
				return nil, &InsufficientStockError{Shortfalls: []StockShortfall{{
					ProductID: item.ProductID,
					Name:      item.Name,
					Requested: item.Quantity,
				}}}
			}
			return nil, fmt.Errorf("failed to decrement stock: %w", err)
		}
	}

	if err := s.carts.Clear(ctx, caller.UserID); err != nil {
		s.logger.WarnContext(ctx, "failed to clear cart after order placement",
			"order_id", order.ID, "error", err)
	}

	s.countEvent(ctx, "orders.placed")
	s.recordActivity(ctx, caller, "order.placed", order, map[string]any{
		"total_cents": order.TotalCents,
		"items":       len(order.Items),
	})
	return order, nil
}

func (s *OrderService) countEvent(ctx context.Context, name string) {
	meter := observability.MeterFromContext(ctx)
	meter.Count(name, 1, sentry.WithAttributes(
		attribute.String("component", "order_service"),
	))
}

func (s *OrderService) unwindPlacement(ctx context.Context, order *models.Order, decremented []models.OrderItem) {
	for _, item := range decremented {
		if err := s.products.RestoreStock(ctx, item.ProductID, item.Quantity); err != nil {
			s.logger.ErrorContext(ctx, "failed to restore stock while unwinding order",
				"order_id", order.ID, "product_id", item.ProductID, "error", err)
		}
	}
	if err := s.orders.Cancel(ctx, order.ID); err != nil {
		s.logger.ErrorContext(ctx, "failed to cancel unwound order",
			"order_id", order.ID, "error", err)
	}
}

// InitializePayment opens a Chapa checkout session for the caller's order and
// records the transaction reference for later verification.
func (s *OrderService) InitializePayment(ctx context.Context, caller auth.Identity, orderID uuid.UUID) (*chapa.Checkout, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != caller.UserID {
		return nil, ErrForbidden
	}
	if order.IsPaid {
		return nil, ErrAlreadyPaid
	}
	if order.Status.IsTerminal() {
		return nil, ErrOrderTerminal
	}

	txRef := "TANA-TX-" + uuid.NewString()
	checkout, err := s.gateway.Initialize(ctx, chapa.InitializeRequest{
		AmountCents: order.TotalCents,
		Currency:    order.Currency,
		Email:       caller.Email,
		FirstName:   caller.FirstName,
		LastName:    caller.LastName,
		PhoneNumber: caller.Phone,
		TxRef:       txRef,
		CallbackURL: fmt.Sprintf("%s/orders/%s/verify", s.callbackBaseURL, order.ID),
		ReturnURL:   fmt.Sprintf("%s/orders/%s", s.callbackBaseURL, order.ID),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize payment: %w", err)
	}

	if err := s.orders.SetChapaReference(ctx, order.ID, txRef); err != nil {
		return nil, fmt.Errorf("failed to store payment reference: %w", err)
	}

	s.recordActivity(ctx, caller, "order.payment_initialized", order, map[string]any{
		"tx_ref": txRef,
	})
	return checkout, nil
}

// VerifyPayment asks the gateway for the verdict on the order's transaction
// and, on success, marks the order paid and moves it to processing. Repeated
// calls are harmless: a paid order short-circuits, and the status guard on
// the paid transition rejects replays that race past it.
func (s *OrderService) VerifyPayment(ctx context.Context, caller auth.Identity, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != caller.UserID && !caller.IsStaff() {
		return nil, ErrForbidden
	}
	if order.IsPaid {
		return order, nil
	}
	if order.ChapaReference == "" {
		return nil, ErrPaymentNotInitialized
	}

	// The gateway callback and the customer's return redirect both land
	// here; the cache spares the second arrival a gateway round-trip.
	verifyKey := cache.VerificationKey(order.ChapaReference)
	if s.cache != nil {
		if _, err := s.cache.Get(ctx, verifyKey); err == nil {
			return s.orders.GetByID(ctx, orderID)
		}
	}

	result, err := s.gateway.Verify(ctx, order.ChapaReference)
	if err != nil {
		return nil, fmt.Errorf("failed to verify payment: %w", err)
	}
	if !result.Success {
		return nil, fmt.Errorf("%w: gateway reported status %q", ErrPaymentNotVerified, result.Status)
	}

	payment := models.PaymentResult{
		TransactionID: result.TransactionID,
		Status:        result.Status,
		PaidAt:        result.Timestamp,
		PayerEmail:    result.PayerEmail,
	}
	if err := s.orders.MarkPaid(ctx, order.ID, payment); err != nil {
		if errors.Is(err, db.ErrInvalidStatusTransition) {
			// A concurrent verification won the race.
			return s.orders.GetByID(ctx, orderID)
		}
		return nil, fmt.Errorf("failed to mark order paid: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, verifyKey, result.TransactionID, verificationTTL); err != nil {
			s.logger.WarnContext(ctx, "failed to cache payment verification",
				"order_id", order.ID, "error", err)
		}
	}

	order, err = s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if err := s.emails.SendEmail(ctx, email.PaymentReceipt(order)); err != nil {
		s.logger.WarnContext(ctx, "failed to send payment receipt",
			"order_id", order.ID, "error", err)
	}

	s.countEvent(ctx, "orders.paid")
	s.recordActivity(ctx, caller, "order.paid", order, map[string]any{
		"transaction_id": result.TransactionID,
		"amount_cents":   order.TotalCents,
	})
	return order, nil
}

// Approve moves a paid order into the approved state and assigns the
// tracking number and estimated arrival date. arrivalDays of zero lets the
// service pick an estimate within the policy window.
func (s *OrderService) Approve(ctx context.Context, caller auth.Identity, orderID uuid.UUID, arrivalDays int) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.IsPaid {
		return nil, ErrNotPaid
	}

	policy := s.pricer.Policy()
	switch {
	case arrivalDays == 0:
		arrivalDays = policy.ArrivalMinDays + rand.IntN(policy.ArrivalMaxDays-policy.ArrivalMinDays+1)
	case arrivalDays < policy.ArrivalMinDays || arrivalDays > policy.ArrivalMaxDays:
		return nil, fmt.Errorf("%w: must be between %d and %d",
			ErrInvalidArrivalDays, policy.ArrivalMinDays, policy.ArrivalMaxDays)
	}
	estimatedArrival := s.now().AddDate(0, 0, arrivalDays)

	if err := s.withTrackingNumber(func(tn string) error {
		return s.orders.Approve(ctx, orderID, tn, estimatedArrival)
	}); err != nil {
		return nil, err
	}

	order, err = s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	s.recordActivity(ctx, caller, "order.approved", order, map[string]any{
		"tracking_number":   order.TrackingNumber,
		"estimated_arrival": order.EstimatedArrivalDate.Format("2006-01-02"),
	})
	return order, nil
}

// Ship moves an approved order to shipped and notifies the customer.
func (s *OrderService) Ship(ctx context.Context, caller auth.Identity, orderID uuid.UUID) (*models.Order, error) {
	if err := s.withTrackingNumber(func(tn string) error {
		return s.orders.MarkShipped(ctx, orderID, tn)
	}); err != nil {
		return nil, err
	}

	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if err := s.emails.SendEmail(ctx, email.ShippedNotice(order)); err != nil {
		s.logger.WarnContext(ctx, "failed to send shipped notice",
			"order_id", order.ID, "error", err)
	}

	s.countEvent(ctx, "orders.shipped")
	s.recordActivity(ctx, caller, "order.shipped", order, map[string]any{
		"tracking_number": order.TrackingNumber,
	})
	return order, nil
}

// withTrackingNumber runs apply with freshly generated tracking numbers until
// one sticks. The numbers have a small keyspace per day, so collisions are
// expected occasionally, not pathologically.
func (s *OrderService) withTrackingNumber(apply func(trackingNumber string) error) error {
	var err error
	for range trackingNumberAttempts {
		err = apply(newTrackingNumber(s.now()))
		if !errors.Is(err, db.ErrTrackingNumberTaken) {
			return err
		}
	}
	return err
}

// Cancel marks the order cancelled. Customers may cancel their own orders;
// staff may cancel any. Stock is not restored.
func (s *OrderService) Cancel(ctx context.Context, caller auth.Identity, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != caller.UserID && !caller.IsStaff() {
		return nil, ErrForbidden
	}

	if err := s.orders.Cancel(ctx, orderID); err != nil {
		return nil, err
	}

	order, err = s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	s.recordActivity(ctx, caller, "order.cancelled", order, nil)
	return order, nil
}

// RequestRefund opens a refund request on the caller's order.
func (s *OrderService) RequestRefund(ctx context.Context, caller auth.Identity, orderID uuid.UUID, reason string) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != caller.UserID {
		return nil, ErrForbidden
	}
	if !models.Refundable(order.Status) {
		return nil, ErrOrderTerminal
	}

	if err := s.orders.RequestRefund(ctx, orderID, reason); err != nil {
		return nil, err
	}

	order, err = s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	s.recordActivity(ctx, caller, "order.refund_requested", order, map[string]any{
		"reason": reason,
	})
	return order, nil
}

// ResolveRefund settles a pending refund request. Approving moves the order
// to refunded and clears its paid flag; rejecting clears the request and
// leaves fulfillment where it was.
func (s *OrderService) ResolveRefund(ctx context.Context, caller auth.Identity, orderID uuid.UUID, action string) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.RefundRequested {
		return nil, ErrNoRefundRequested
	}

	var auditAction string
	switch action {
	case "approve":
		err = s.orders.ApproveRefund(ctx, orderID)
		auditAction = "order.refund_approved"
	case "reject":
		err = s.orders.RejectRefund(ctx, orderID)
		auditAction = "order.refund_rejected"
	default:
		return nil, ErrInvalidRefundAction
	}
	if err != nil {
		return nil, err
	}

	order, err = s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if action == "approve" {
		s.countEvent(ctx, "orders.refunded")
	}
	s.recordActivity(ctx, caller, auditAction, order, map[string]any{
		"reason": order.RefundReason,
	})
	return order, nil
}

// GetOrder loads one order for its owner or for staff.
func (s *OrderService) GetOrder(ctx context.Context, caller auth.Identity, orderID uuid.UUID) (*models.Order, error) {
	order, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != caller.UserID && !caller.IsStaff() {
		return nil, ErrForbidden
	}
	return order, nil
}

// ListOrders returns the caller's orders, newest first.
func (s *OrderService) ListOrders(ctx context.Context, caller auth.Identity) ([]*models.Order, error) {
	return s.orders.ListByUser(ctx, caller.UserID)
}

// ListAllOrders returns recent orders across all users for staff review.
func (s *OrderService) ListAllOrders(ctx context.Context, limit int) ([]*models.Order, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.orders.ListAll(ctx, limit)
}

// TrackingInfo is the public view of a shipment. It exposes no customer or
// payment data, so the endpoint can stay unauthenticated.
type TrackingInfo struct {
	TrackingNumber       string             `json:"tracking_number"`
	Status               models.OrderStatus `json:"status"`
	IsDelivered          bool               `json:"is_delivered"`
	EstimatedArrivalDate string             `json:"estimated_arrival_date,omitempty"`
	DeliveredAt          string             `json:"delivered_at,omitempty"`
}

// TrackShipment resolves a tracking number to shipment progress. Results are
// cached briefly; public tracking pages poll.
func (s *OrderService) TrackShipment(ctx context.Context, trackingNumber string) (*TrackingInfo, error) {
	key := cache.TrackingKey(trackingNumber)
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, key); err == nil {
			var info TrackingInfo
			if err := json.Unmarshal([]byte(cached), &info); err == nil {
				return &info, nil
			}
		}
	}

	order, err := s.orders.GetByTrackingNumber(ctx, trackingNumber)
	if err != nil {
		return nil, err
	}

	info := &TrackingInfo{
		TrackingNumber: order.TrackingNumber,
		Status:         order.Status,
		IsDelivered:    order.IsDelivered,
	}
	if !order.EstimatedArrivalDate.IsZero() {
		info.EstimatedArrivalDate = order.EstimatedArrivalDate.Format("2006-01-02")
	}
	if !order.DeliveredAt.IsZero() {
		info.DeliveredAt = order.DeliveredAt.Format(time.RFC3339)
	}

	if s.cache != nil {
		if encoded, err := json.Marshal(info); err == nil {
			if err := s.cache.Set(ctx, key, string(encoded), trackingTTL); err != nil {
				s.logger.WarnContext(ctx, "failed to cache tracking info",
					"tracking_number", trackingNumber, "error", err)
			}
		}
	}
	return info, nil
}

// MarkDelivered records carrier confirmation for a shipment.
func (s *OrderService) MarkDelivered(ctx context.Context, caller auth.Identity, trackingNumber string) (*models.Order, error) {
	order, err := s.orders.GetByTrackingNumber(ctx, trackingNumber)
	if err != nil {
		return nil, err
	}

	if err := s.orders.MarkDelivered(ctx, order.ID); err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, cache.TrackingKey(trackingNumber)); err != nil {
			s.logger.WarnContext(ctx, "failed to invalidate tracking cache",
				"tracking_number", trackingNumber, "error", err)
		}
	}

	order, err = s.orders.GetByID(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	s.recordActivity(ctx, caller, "order.delivered", order, map[string]any{
		"tracking_number": trackingNumber,
	})
	return order, nil
}

// recordActivity appends an audit entry. Audit failures never fail the
// operation that triggered them; they are logged and dropped.
func (s *OrderService) recordActivity(ctx context.Context, caller auth.Identity, action string, order *models.Order, details map[string]any) {
	err := s.activity.Record(ctx, models.Activity{
		ActorID:      caller.UserID,
		Action:       action,
		ResourceKind: "order",
		ResourceID:   order.ID.String(),
		Details:      details,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to record activity",
			"action", action, "order_id", order.ID, "error", err)
	}
}
