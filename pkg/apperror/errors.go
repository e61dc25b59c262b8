package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Webhook authentication (SEC) ----

func ErrMissingWebhookSignature() *AppError {
	return New("SEC_001", "Missing webhook signature", http.StatusUnauthorized)
}

func ErrInvalidWebhookSignature() *AppError {
	return New("SEC_002", "Invalid webhook signature", http.StatusUnauthorized)
}

// ---- Operator authentication (AUTH) ----

func ErrInvalidToken() *AppError {
	return New("AUTH_001", "Invalid or expired token", http.StatusUnauthorized)
}

// ---- Orders & catalogue (ORD) ----

func ErrNotFound(entity string) *AppError {
	return New("ORD_001", fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

// Validation returns an ORD_002 validation error.
func Validation(message string) *AppError {
	return New("ORD_002", message, http.StatusBadRequest)
}

// ---- Payment gateway (PAY) ----

// ErrGateway reports an upstream payment gateway failure. The message is the
// gateway's human-readable reason and is safe to show to the caller.
func ErrGateway(message string, err error) *AppError {
	if message == "" {
		message = "Payment initiation failed"
	}
	return Wrap("PAY_001", message, http.StatusBadGateway, err)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_001", "Internal database error", http.StatusInternalServerError, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}
