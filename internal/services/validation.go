package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/citylinebank/backend/internal/bankerr"
)

// ErrorResponse represents error response structure
type ErrorResponse struct {
	Error   string            `json:"error"`             // Wire error code
	Message string            `json:"message,omitempty"` // Human readable message
	Details map[string]string `json:"details,omitempty"` // Validation details
}

// ValidationHelper provides shared validation functionality
type ValidationHelper struct {
	validator *validator.Validate
}

// NewValidationHelper creates a new validation helper
func NewValidationHelper() *ValidationHelper {
	return &ValidationHelper{
		validator: validator.New(),
	}
}

// ValidateStruct validates a struct and returns validation errors
func (vh *ValidationHelper) ValidateStruct(s any) error {
	return vh.validator.Struct(s)
}

// SendErrorResponse sends a JSON error response
func SendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	errorResp := ErrorResponse{Error: "BAD_REQUEST", Message: message}
	if statusCode >= 500 {
		errorResp.Error = "INTERNAL_ERROR"
	}
	var validationErrs validator.ValidationErrors
	if errors.As(validationErr, &validationErrs) {
		errorResp.Error = "VALIDATION_FAILED"
		errorResp.Details = make(map[string]string)
		for _, err := range validationErrs {
			errorResp.Details[err.Field()] = fmt.Sprintf("Field Validation Failed on '%s' tag", err.Tag())
		}
	}

	json.NewEncoder(w).Encode(errorResp)
}

// SendDomainError maps a ledger engine error to its HTTP status and
// wire code.
func SendDomainError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(domainStatus(err))
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   bankerr.Code(err),
		Message: err.Error(),
	})
}

func domainStatus(err error) int {
	switch {
	case errors.Is(err, bankerr.ErrAccountNotFound),
		errors.Is(err, bankerr.ErrReceiverNotFound),
		errors.Is(err, bankerr.ErrTransactionNotFound):
		return http.StatusNotFound
	case errors.Is(err, bankerr.ErrAccountFrozen),
		errors.Is(err, bankerr.ErrReceiverFrozen):
		return http.StatusLocked
	case errors.Is(err, bankerr.ErrInsufficientFunds),
		errors.Is(err, bankerr.ErrSelfTransferNotAllowed),
		errors.Is(err, bankerr.ErrTransactionNotPending),
		errors.Is(err, bankerr.ErrTransactionStateChanged),
		errors.Is(err, bankerr.ErrInvalidTransition),
		errors.Is(err, bankerr.ErrUnbalancedPosting):
		return http.StatusConflict
	case errors.Is(err, bankerr.ErrCannotModifyAdmin):
		return http.StatusForbidden
	case errors.Is(err, bankerr.ErrStorage):
		return http.StatusInternalServerError
	case errors.Is(err, bankerr.ErrInvalidAmount),
		errors.Is(err, bankerr.ErrInvalidSignedAmount),
		errors.Is(err, bankerr.ErrInvalidPin),
		errors.Is(err, bankerr.ErrInvalidInitialBalance),
		errors.Is(err, bankerr.ErrInvalidEmail),
		errors.Is(err, bankerr.ErrNameRequired),
		errors.Is(err, bankerr.ErrReceiverRequired):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// WriteJSON sends a JSON payload with the given status.
func WriteJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

// DecodeJSON reads a single JSON object from the request body with a
// size cap and strict field checking.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return errors.New("invalid request body")
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("request body must only contain a single JSON object")
	}
	return nil
}
