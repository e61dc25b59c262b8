package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the order's payment lifecycle state.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// DefaultCurrency is the only currency the storefront sells in.
const DefaultCurrency = "ETB"

// ProviderChapa identifies the payment provider on an order.
const ProviderChapa = "chapa"

var (
	// ErrOrderNotMutable is returned when a status update targets an order
	// that has already completed.
	ErrOrderNotMutable = errors.New("order is already completed")

	// ErrPaymentAlreadyApplied is returned when a payment application loses
	// the race against a concurrent application for the same order.
	ErrPaymentAlreadyApplied = errors.New("payment already applied")
)

// Order is a single purchase of a digital product. Its ID doubles as the
// transaction reference handed to the payment provider.
type Order struct {
	ID                    string          `json:"id"`
	OrderNumber           string          `json:"order_number"`
	ProductID             string          `json:"product_id"`
	Amount                decimal.Decimal `json:"amount"`
	Currency              string          `json:"currency"`
	CustomerName          string          `json:"customer_name"`
	CustomerEmail         string          `json:"customer_email"`
	CustomerPhone         string          `json:"customer_phone"`
	PaymentStatus         PaymentStatus   `json:"payment_status"`
	PaymentProvider       string          `json:"payment_provider"`
	ProviderTransactionID *string         `json:"provider_transaction_id,omitempty"`
	PaymentURL            *string         `json:"payment_url,omitempty"`
	PaidAt                *time.Time      `json:"paid_at,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// IsCompleted reports whether the payment has been applied.
func (o *Order) IsCompleted() bool {
	return o.PaymentStatus == PaymentStatusCompleted
}

// IsPending reports whether the order is still awaiting payment.
func (o *Order) IsPending() bool {
	return o.PaymentStatus == PaymentStatusPending
}
