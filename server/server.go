package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/tanamarket/tana/internal/config"
	"github.com/tanamarket/tana/internal/handlers"
)

type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	handlers   *handlers.Handlers
	httpServer *http.Server
}

func New(cfg *config.Config, logger *slog.Logger, h *handlers.Handlers) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if h == nil {
		return nil, fmt.Errorf("handlers are required")
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		handlers: h,
	}

	router := s.buildRouter()
	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	return s, nil
}

func (s *Server) Run() error {
	s.logger.Info("server starting", "port", s.cfg.Port)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Close(ctx context.Context) error {
	if s == nil || s.httpServer == nil {
		return nil
	}

	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) buildRouter() *mux.Router {
	h := s.handlers

	r := mux.NewRouter()
	r.Use(h.RequestLogger)
	r.Use(h.SecurityHeaders)

	r.HandleFunc("/health", h.Health).Methods("GET").Name("health")
	r.HandleFunc("/tracking/{trackingNumber}", h.TrackShipment).Methods("GET").Name("tracking.get")

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Not Found", http.StatusNotFound)
	})

	// Customer routes - require a valid bearer token
	orders := r.PathPrefix("/orders").Subrouter()
	orders.Use(h.RequireAuth)
	orders.HandleFunc("", h.PlaceOrder).Methods("POST").Name("orders.place")
	orders.HandleFunc("", h.ListOrders).Methods("GET").Name("orders.list")
	orders.HandleFunc("/{id}", h.GetOrder).Methods("GET").Name("orders.get")
	orders.HandleFunc("/{id}/payment", h.InitializePayment).Methods("POST").Name("orders.payment")
	orders.HandleFunc("/{id}/verify", h.VerifyPayment).Methods("POST").Name("orders.verify")
	orders.HandleFunc("/{id}/cancel", h.CancelOrder).Methods("PUT").Name("orders.cancel")
	orders.HandleFunc("/{id}/refund-request", h.RequestRefund).Methods("POST").Name("orders.refund_request")

	// Staff routes - require the manager or admin role
	staffOrders := r.PathPrefix("/orders").Subrouter()
	staffOrders.Use(h.RequireAuth, h.RequireStaff)
	staffOrders.HandleFunc("/{id}/approve", h.ApproveOrder).Methods("PUT").Name("orders.approve")
	staffOrders.HandleFunc("/{id}/ship", h.ShipOrder).Methods("PUT").Name("orders.ship")
	staffOrders.HandleFunc("/{id}/refund", h.ResolveRefund).Methods("PUT").Name("orders.refund")

	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(h.RequireAuth, h.RequireStaff)
	admin.HandleFunc("/orders", h.AdminListOrders).Methods("GET").Name("admin.orders")

	staffTracking := r.PathPrefix("/tracking").Subrouter()
	staffTracking.Use(h.RequireAuth, h.RequireStaff)
	staffTracking.HandleFunc("/{trackingNumber}", h.ConfirmDelivery).Methods("PUT").Name("tracking.confirm")

	return r
}
