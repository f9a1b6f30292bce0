package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/tanamarket/tana/internal/chapa"
	"github.com/tanamarket/tana/internal/db"
	"github.com/tanamarket/tana/internal/services"
)

var errBadRequestBody = errors.New("invalid request body")

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

// respondError translates domain errors into HTTP responses. Anything not
// recognized is a 500 with a generic body; the real error goes to the log.
func (h *Handlers) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		stockErr      *services.InsufficientStockError
		gatewayErr    *chapa.GatewayError
		validationErr validator.ValidationErrors
	)

	switch {
	case errors.As(err, &validationErr):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"message": "validation failed",
			"errors":  validationMessages(validationErr),
		})
	case errors.As(err, &stockErr):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"message":    "insufficient stock",
			"shortfalls": stockErr.Shortfalls,
		})
	case errors.Is(err, db.ErrOrderNotFound),
		errors.Is(err, db.ErrProductNotFound):
		writeMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrForbidden):
		writeMessage(w, http.StatusForbidden, err.Error())
	case errors.As(err, &gatewayErr):
		h.loggerFromContext(r.Context()).Error("payment gateway error",
			"status_code", gatewayErr.StatusCode, "error", gatewayErr)
		writeMessage(w, http.StatusBadGateway, "payment gateway unavailable")
	case errors.Is(err, errBadRequestBody),
		errors.Is(err, services.ErrEmptyCart),
		errors.Is(err, services.ErrAlreadyPaid),
		errors.Is(err, services.ErrNotPaid),
		errors.Is(err, services.ErrPaymentNotInitialized),
		errors.Is(err, services.ErrPaymentNotVerified),
		errors.Is(err, services.ErrNoRefundRequested),
		errors.Is(err, services.ErrInvalidRefundAction),
		errors.Is(err, services.ErrOrderTerminal),
		errors.Is(err, services.ErrInvalidArrivalDays),
		errors.Is(err, db.ErrInvalidStatusTransition):
		writeMessage(w, http.StatusBadRequest, err.Error())
	default:
		h.loggerFromContext(r.Context()).Error("request failed", "error", err)
		writeMessage(w, http.StatusInternalServerError, "internal server error")
	}
}

func validationMessages(errs validator.ValidationErrors) []string {
	out := make([]string, 0, len(errs))
	for _, fe := range errs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			out = append(out, fmt.Sprintf("%s is required", field))
		case "min", "gte":
			out = append(out, fmt.Sprintf("%s must be at least %s", field, fe.Param()))
		case "max", "lte":
			out = append(out, fmt.Sprintf("%s must be at most %s", field, fe.Param()))
		case "oneof":
			out = append(out, fmt.Sprintf("%s must be one of: %s", field, fe.Param()))
		default:
			out = append(out, fmt.Sprintf("%s is invalid", field))
		}
	}
	return out
}

// decodeBody parses and validates a JSON request body into dst.
func (h *Handlers) decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("%w: %w", errBadRequestBody, err)
	}
	return h.validate.Struct(dst)
}
