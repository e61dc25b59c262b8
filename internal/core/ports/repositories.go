package ports

import (
	"context"

	"storefront-payments/internal/core/domain"

	"github.com/shopspring/decimal"
)

// OrderRepository defines persistence operations for orders.
// Lookups return (nil, nil) when the order does not exist.
type OrderRepository interface {
	Create(ctx context.Context, order *domain.Order) error
	// FindByReference resolves the gateway's trx_ref, which is the order ID.
	FindByReference(ctx context.Context, trxRef string) (*domain.Order, error)
	FindPendingByCustomer(ctx context.Context, productID, email string) (*domain.Order, error)
	SetPaymentURL(ctx context.Context, orderID, paymentURL string) error
	// SetStatus never touches a completed order; it returns
	// domain.ErrOrderNotMutable instead.
	SetStatus(ctx context.Context, orderID string, status domain.PaymentStatus, providerTxID *string) error
	// ApplyPayment marks the order completed, credits the product's sales
	// counters and records the payment, all in one database transaction.
	// It returns domain.ErrPaymentAlreadyApplied when the order was
	// already completed.
	ApplyPayment(ctx context.Context, orderID, providerTxID string, amount decimal.Decimal) error
}

// ProductRepository defines read access to the catalogue.
type ProductRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Product, error)
}

// AuditRepository persists audit entries.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
}
