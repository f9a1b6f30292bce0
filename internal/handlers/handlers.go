package handlers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tanamarket/tana/internal/auth"
	"github.com/tanamarket/tana/internal/chapa"
	"github.com/tanamarket/tana/internal/config"
	"github.com/tanamarket/tana/internal/logging"
	"github.com/tanamarket/tana/internal/models"
	"github.com/tanamarket/tana/internal/services"
)

const maxRequestBodyBytes = 1 << 20 // 1 MB

// orderWorkflow is the slice of the order service the HTTP layer needs.
type orderWorkflow interface {
	PlaceOrder(ctx context.Context, caller auth.Identity, address models.ShippingAddress) (*models.Order, error)
	InitializePayment(ctx context.Context, caller auth.Identity, orderID uuid.UUID) (*chapa.Checkout, error)
	VerifyPayment(ctx context.Context, caller auth.Identity, orderID uuid.UUID) (*models.Order, error)
	Approve(ctx context.Context, caller auth.Identity, orderID uuid.UUID, arrivalDays int) (*models.Order, error)
	Ship(ctx context.Context, caller auth.Identity, orderID uuid.UUID) (*models.Order, error)
	Cancel(ctx context.Context, caller auth.Identity, orderID uuid.UUID) (*models.Order, error)
	RequestRefund(ctx context.Context, caller auth.Identity, orderID uuid.UUID, reason string) (*models.Order, error)
	ResolveRefund(ctx context.Context, caller auth.Identity, orderID uuid.UUID, action string) (*models.Order, error)
	GetOrder(ctx context.Context, caller auth.Identity, orderID uuid.UUID) (*models.Order, error)
	ListOrders(ctx context.Context, caller auth.Identity) ([]*models.Order, error)
	ListAllOrders(ctx context.Context, limit int) ([]*models.Order, error)
	TrackShipment(ctx context.Context, trackingNumber string) (*services.TrackingInfo, error)
	MarkDelivered(ctx context.Context, caller auth.Identity, trackingNumber string) (*models.Order, error)
}

// Handlers provides HTTP request handlers for the TANA Market order API.
type Handlers struct {
	config   *config.Config
	db       *pgxpool.Pool
	orders   orderWorkflow
	validate *validator.Validate
	logger   *slog.Logger
}

type Dependencies struct {
	Config       *config.Config
	DB           *pgxpool.Pool
	OrderService orderWorkflow
	Logger       *slog.Logger
}

func New(deps Dependencies) (*Handlers, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	if deps.Config == nil {
		return nil, fmt.Errorf("handlers dependencies: config is required")
	}
	if deps.DB == nil {
		return nil, fmt.Errorf("handlers dependencies: db is required")
	}
	if deps.OrderService == nil {
		return nil, fmt.Errorf("handlers dependencies: orderService is required")
	}

	return &Handlers{
		config:   deps.Config,
		db:       deps.DB,
		orders:   deps.OrderService,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.With("component", "handlers"),
	}, nil
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.loggerFromContext(ctx)

	if err := h.db.Ping(ctx); err != nil {
		logger.Error("database health check failed", "error", err)
		http.Error(w, "Database unhealthy", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (h *Handlers) loggerFromContext(ctx context.Context) *slog.Logger {
	return logging.FromContext(ctx, h.logger)
}
