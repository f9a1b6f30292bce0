package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/tanamarket/tana/internal/auth"
	"github.com/tanamarket/tana/internal/chapa"
	"github.com/tanamarket/tana/internal/config"
	"github.com/tanamarket/tana/internal/db"
	"github.com/tanamarket/tana/internal/models"
	"github.com/tanamarket/tana/internal/services"
)

const testJWTSecret = "0123456789abcdef0123456789abcdef"

// stubWorkflow lets each test pin the behavior of exactly the methods the
// handler under test calls.
type stubWorkflow struct {
	placeOrder    func(ctx context.Context, caller auth.Identity, address models.ShippingAddress) (*models.Order, error)
	initPayment   func(ctx context.Context, caller auth.Identity, orderID uuid.UUID) (*chapa.Checkout, error)
	verifyPayment func(ctx context.Context, caller auth.Identity, orderID uuid.UUID) (*models.Order, error)
	approve       func(ctx context.Context, caller auth.Identity, orderID uuid.UUID, arrivalDays int) (*models.Order, error)
	ship          func(ctx context.Context, caller auth.Identity, orderID uuid.UUID) (*models.Order, error)
	cancel        func(ctx context.Context, caller auth.Identity, orderID uuid.UUID) (*models.Order, error)
	requestRefund func(ctx context.Context, caller auth.Identity, orderID uuid.UUID, reason string) (*models.Order, error)
	resolveRefund func(ctx context.Context, caller auth.Identity, orderID uuid.UUID, action string) (*models.Order, error)
	getOrder      func(ctx context.Context, caller auth.Identity, orderID uuid.UUID) (*models.Order, error)
	listOrders    func(ctx context.Context, caller auth.Identity) ([]*models.Order, error)
	listAll       func(ctx context.Context, limit int) ([]*models.Order, error)
	track         func(ctx context.Context, trackingNumber string) (*services.TrackingInfo, error)
	markDelivered func(ctx context.Context, caller auth.Identity, trackingNumber string) (*models.Order, error)
}

func (s *stubWorkflow) PlaceOrder(ctx context.Context, c auth.Identity, a models.ShippingAddress) (*models.Order, error) {
	return s.placeOrder(ctx, c, a)
}

func (s *stubWorkflow) InitializePayment(ctx context.Context, c auth.Identity, id uuid.UUID) (*chapa.Checkout, error) {
	return s.initPayment(ctx, c, id)
}

func (s *stubWorkflow) VerifyPayment(ctx context.Context, c auth.Identity, id uuid.UUID) (*models.Order, error) {
	return s.verifyPayment(ctx, c, id)
}

func (s *stubWorkflow) Approve(ctx context.Context, c auth.Identity, id uuid.UUID, days int) (*models.Order, error) {
	return s.approve(ctx, c, id, days)
}

func (s *stubWorkflow) Ship(ctx context.Context, c auth.Identity, id uuid.UUID) (*models.Order, error) {
	return s.ship(ctx, c, id)
}

func (s *stubWorkflow) Cancel(ctx context.Context, c auth.Identity, id uuid.UUID) (*models.Order, error) {
	return s.cancel(ctx, c, id)
}

func (s *stubWorkflow) RequestRefund(ctx context.Context, c auth.Identity, id uuid.UUID, reason string) (*models.Order, error) {
	return s.requestRefund(ctx, c, id, reason)
}

func (s *stubWorkflow) ResolveRefund(ctx context.Context, c auth.Identity, id uuid.UUID, action string) (*models.Order, error) {
	return s.resolveRefund(ctx, c, id, action)
}

func (s *stubWorkflow) GetOrder(ctx context.Context, c auth.Identity, id uuid.UUID) (*models.Order, error) {
	return s.getOrder(ctx, c, id)
}

func (s *stubWorkflow) ListOrders(ctx context.Context, c auth.Identity) ([]*models.Order, error) {
	return s.listOrders(ctx, c)
}

func (s *stubWorkflow) ListAllOrders(ctx context.Context, limit int) ([]*models.Order, error) {
	return s.listAll(ctx, limit)
}

func (s *stubWorkflow) TrackShipment(ctx context.Context, tn string) (*services.TrackingInfo, error) {
	return s.track(ctx, tn)
}

func (s *stubWorkflow) MarkDelivered(ctx context.Context, c auth.Identity, tn string) (*models.Order, error) {
	return s.markDelivered(ctx, c, tn)
}

func newTestHandlers(workflow *stubWorkflow) *Handlers {
	return &Handlers{
		config:   &config.Config{JWTSecret: testJWTSecret},
		orders:   workflow,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func signTestToken(t *testing.T, userID uuid.UUID, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   userID.String(),
		"email": "abebe@example.com",
		"role":  role,
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return signed
}

// testRouter wires the routes the way the server does, so path variables and
// middleware order match production.
func testRouter(h *Handlers) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/tracking/{trackingNumber}", h.TrackShipment).Methods("GET")

	authed := r.NewRoute().Subrouter()
	authed.Use(h.RequireAuth)
	authed.HandleFunc("/orders", h.PlaceOrder).Methods("POST")
	authed.HandleFunc("/orders", h.ListOrders).Methods("GET")
	authed.HandleFunc("/orders/{id}", h.GetOrder).Methods("GET")
	authed.HandleFunc("/orders/{id}/payment", h.InitializePayment).Methods("POST")
	authed.HandleFunc("/orders/{id}/verify", h.VerifyPayment).Methods("POST")
	authed.HandleFunc("/orders/{id}/cancel", h.CancelOrder).Methods("PUT")
	authed.HandleFunc("/orders/{id}/refund-request", h.RequestRefund).Methods("POST")

	staff := r.NewRoute().Subrouter()
	staff.Use(h.RequireAuth, h.RequireStaff)
	staff.HandleFunc("/admin/orders", h.AdminListOrders).Methods("GET")
	staff.HandleFunc("/orders/{id}/approve", h.ApproveOrder).Methods("PUT")
	staff.HandleFunc("/orders/{id}/ship", h.ShipOrder).Methods("PUT")
	staff.HandleFunc("/orders/{id}/refund", h.ResolveRefund).Methods("PUT")
	staff.HandleFunc("/tracking/{trackingNumber}", h.ConfirmDelivery).Methods("PUT")

	return r
}

func doRequest(t *testing.T, router *mux.Router, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestPlaceOrderHandler(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	workflow := &stubWorkflow{
		placeOrder: func(_ context.Context, caller auth.Identity, address models.ShippingAddress) (*models.Order, error) {
			if caller.UserID != userID {
				t.Errorf("caller = %s, want %s", caller.UserID, userID)
			}
			if address.City != "Addis Ababa" {
				t.Errorf("city = %q", address.City)
			}
			return &models.Order{ID: uuid.New(), UserID: caller.UserID, Status: models.StatusPending, TotalCents: 28000}, nil
		},
	}
	router := testRouter(newTestHandlers(workflow))

	body := `{"shipping_address":{"street":"Bole Road","city":"Addis Ababa","state":"Addis Ababa","zip_code":"1000","country":"Ethiopia"}}`
	rec := doRequest(t, router, "POST", "/orders", signTestToken(t, userID, "customer"), body)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body)
	}
	var order models.Order
	if err := json.Unmarshal(rec.Body.Bytes(), &order); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if order.Status != models.StatusPending || order.TotalCents != 28000 {
		t.Errorf("order = %+v", order)
	}
}

func TestPlaceOrderValidatesAddress(t *testing.T) {
	t.Parallel()

	workflow := &stubWorkflow{
		placeOrder: func(context.Context, auth.Identity, models.ShippingAddress) (*models.Order, error) {
			t.Error("service called despite invalid body")
			return nil, nil
		},
	}
	router := testRouter(newTestHandlers(workflow))

	body := `{"shipping_address":{"street":"Bole Road","city":"Addis Ababa"}}`
	rec := doRequest(t, router, "POST", "/orders", signTestToken(t, uuid.New(), "customer"), body)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body)
	}
	var resp struct {
		Message string   `json:"message"`
		Errors  []string `json:"errors"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Errors) != 3 {
		t.Errorf("errors = %v, want 3 missing-field messages", resp.Errors)
	}
}

func TestPlaceOrderInsufficientStock(t *testing.T) {
	t.Parallel()

	productID := uuid.New()
	workflow := &stubWorkflow{
		placeOrder: func(context.Context, auth.Identity, models.ShippingAddress) (*models.Order, error) {
			return nil, &services.InsufficientStockError{Shortfalls: []services.StockShortfall{
				{ProductID: productID, Name: "coffee beans", Requested: 5, Available: 2},
			}}
		},
	}
	router := testRouter(newTestHandlers(workflow))

	body := `{"shipping_address":{"street":"Bole Road","city":"Addis Ababa","state":"Addis Ababa","zip_code":"1000","country":"Ethiopia"}}`
	rec := doRequest(t, router, "POST", "/orders", signTestToken(t, uuid.New(), "customer"), body)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body)
	}
	var resp struct {
		Message    string                    `json:"message"`
		Shortfalls []services.StockShortfall `json:"shortfalls"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Shortfalls) != 1 || resp.Shortfalls[0].Available != 2 {
		t.Errorf("shortfalls = %+v", resp.Shortfalls)
	}
}

func TestAuthRequired(t *testing.T) {
	t.Parallel()

	router := testRouter(newTestHandlers(&stubWorkflow{}))

	tests := []struct {
		name  string
		token string
	}{
		{name: "missing token", token: ""},
		{name: "garbage token", token: "not-a-jwt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := doRequest(t, router, "GET", "/orders", tt.token, "")
			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401: %s", rec.Code, rec.Body)
			}
		})
	}
}

func TestStaffRoutesRejectCustomers(t *testing.T) {
	t.Parallel()

	router := testRouter(newTestHandlers(&stubWorkflow{}))
	token := signTestToken(t, uuid.New(), "customer")
	orderID := uuid.New()

	paths := []struct {
		method string
		path   string
	}{
		{"GET", "/admin/orders"},
		{"PUT", "/orders/" + orderID.String() + "/approve"},
		{"PUT", "/orders/" + orderID.String() + "/ship"},
		{"PUT", "/orders/" + orderID.String() + "/refund"},
		{"PUT", "/tracking/TANA-20260314-0042"},
	}
	for _, p := range paths {
		rec := doRequest(t, router, p.method, p.path, token, "")
		if rec.Code != http.StatusForbidden {
			t.Errorf("%s %s: status = %d, want 403", p.method, p.path, rec.Code)
		}
	}
}

func TestVerifyPaymentGatewayFailure(t *testing.T) {
	t.Parallel()

	workflow := &stubWorkflow{
		verifyPayment: func(context.Context, auth.Identity, uuid.UUID) (*models.Order, error) {
			return nil, &chapa.GatewayError{StatusCode: http.StatusServiceUnavailable, Message: "upstream down"}
		},
	}
	router := testRouter(newTestHandlers(workflow))

	rec := doRequest(t, router, "POST", "/orders/"+uuid.NewString()+"/verify",
		signTestToken(t, uuid.New(), "customer"), "")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502: %s", rec.Code, rec.Body)
	}
}

func TestGetOrderErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "not found", err: db.ErrOrderNotFound, wantStatus: http.StatusNotFound},
		{name: "forbidden", err: services.ErrForbidden, wantStatus: http.StatusForbidden},
		{name: "unexpected", err: io.ErrUnexpectedEOF, wantStatus: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			workflow := &stubWorkflow{
				getOrder: func(context.Context, auth.Identity, uuid.UUID) (*models.Order, error) {
					return nil, tt.err
				},
			}
			router := testRouter(newTestHandlers(workflow))
			rec := doRequest(t, router, "GET", "/orders/"+uuid.NewString(),
				signTestToken(t, uuid.New(), "customer"), "")
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body)
			}
		})
	}
}

func TestGetOrderInvalidID(t *testing.T) {
	t.Parallel()

	router := testRouter(newTestHandlers(&stubWorkflow{}))
	rec := doRequest(t, router, "GET", "/orders/not-a-uuid", signTestToken(t, uuid.New(), "customer"), "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400: %s", rec.Code, rec.Body)
	}
}

func TestApproveOrderBody(t *testing.T) {
	t.Parallel()

	var gotDays int
	workflow := &stubWorkflow{
		approve: func(_ context.Context, _ auth.Identity, _ uuid.UUID, days int) (*models.Order, error) {
			gotDays = days
			return &models.Order{Status: models.StatusApproved}, nil
		},
	}
	router := testRouter(newTestHandlers(workflow))
	token := signTestToken(t, uuid.New(), "manager")
	path := "/orders/" + uuid.NewString() + "/approve"

	// Empty body means the service picks the estimate.
	rec := doRequest(t, router, "PUT", path, token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("empty body: status = %d: %s", rec.Code, rec.Body)
	}
	if gotDays != 0 {
		t.Errorf("days = %d, want 0 for empty body", gotDays)
	}

	rec = doRequest(t, router, "PUT", path, token, `{"arrival_days":14}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if gotDays != 14 {
		t.Errorf("days = %d, want 14", gotDays)
	}

	rec = doRequest(t, router, "PUT", path, token, `{"arrival_days":120}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("out-of-range days: status = %d, want 400: %s", rec.Code, rec.Body)
	}
}

func TestRequestRefundRequiresReason(t *testing.T) {
	t.Parallel()

	workflow := &stubWorkflow{
		requestRefund: func(_ context.Context, _ auth.Identity, _ uuid.UUID, reason string) (*models.Order, error) {
			return &models.Order{RefundRequested: true, RefundReason: reason}, nil
		},
	}
	router := testRouter(newTestHandlers(workflow))
	token := signTestToken(t, uuid.New(), "customer")
	path := "/orders/" + uuid.NewString() + "/refund-request"

	rec := doRequest(t, router, "POST", path, token, `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing reason: status = %d, want 400: %s", rec.Code, rec.Body)
	}

	rec = doRequest(t, router, "POST", path, token, `{"reason":"arrived damaged"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
}

func TestResolveRefundAction(t *testing.T) {
	t.Parallel()

	workflow := &stubWorkflow{
		resolveRefund: func(_ context.Context, _ auth.Identity, _ uuid.UUID, action string) (*models.Order, error) {
			return &models.Order{Status: models.StatusRefunded}, nil
		},
	}
	router := testRouter(newTestHandlers(workflow))
	token := signTestToken(t, uuid.New(), "admin")
	path := "/orders/" + uuid.NewString() + "/refund"

	rec := doRequest(t, router, "PUT", path, token, `{"action":"maybe"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad action: status = %d, want 400: %s", rec.Code, rec.Body)
	}

	rec = doRequest(t, router, "PUT", path, token, `{"action":"approve"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
}

func TestTrackShipmentPublic(t *testing.T) {
	t.Parallel()

	workflow := &stubWorkflow{
		track: func(_ context.Context, tn string) (*services.TrackingInfo, error) {
			return &services.TrackingInfo{TrackingNumber: tn, Status: models.StatusShipped}, nil
		},
	}
	router := testRouter(newTestHandlers(workflow))

	// No Authorization header at all.
	rec := doRequest(t, router, "GET", "/tracking/TANA-20260314-0042", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	var info services.TrackingInfo
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if info.TrackingNumber != "TANA-20260314-0042" || info.Status != models.StatusShipped {
		t.Errorf("info = %+v", info)
	}
}

func TestListOrdersEmpty(t *testing.T) {
	t.Parallel()

	workflow := &stubWorkflow{
		listOrders: func(context.Context, auth.Identity) ([]*models.Order, error) {
			return nil, nil
		},
	}
	router := testRouter(newTestHandlers(workflow))

	rec := doRequest(t, router, "GET", "/orders", signTestToken(t, uuid.New(), "customer"), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("body = %q, want []", got)
	}
}

func TestAdminListOrdersLimit(t *testing.T) {
	t.Parallel()

	var gotLimit int
	workflow := &stubWorkflow{
		listAll: func(_ context.Context, limit int) ([]*models.Order, error) {
			gotLimit = limit
			return []*models.Order{}, nil
		},
	}
	router := testRouter(newTestHandlers(workflow))
	token := signTestToken(t, uuid.New(), "manager")

	rec := doRequest(t, router, "GET", "/admin/orders?limit=25", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if gotLimit != 25 {
		t.Errorf("limit = %d, want 25", gotLimit)
	}

	rec = doRequest(t, router, "GET", "/admin/orders?limit=abc", token, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: status = %d, want 400", rec.Code)
	}
}
