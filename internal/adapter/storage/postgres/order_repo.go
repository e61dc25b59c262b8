package postgres

import (
	"context"
	"errors"
	"fmt"

	"storefront-payments/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const orderColumns = `id::text, order_number, product_id::text, amount, currency,
	customer_name, customer_email, customer_phone, payment_status, payment_provider,
	provider_transaction_id, payment_url, paid_at, created_at, updated_at`

// OrderRepo implements ports.OrderRepository.
type OrderRepo struct {
	pool Pool
}

// NewOrderRepo creates a new OrderRepo.
func NewOrderRepo(pool Pool) *OrderRepo {
	return &OrderRepo{pool: pool}
}

// Create inserts a new order.
func (r *OrderRepo) Create(ctx context.Context, o *domain.Order) error {
	query := `INSERT INTO orders (id, order_number, product_id, amount, currency, customer_name, customer_email, customer_phone, payment_status, payment_provider, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := r.pool.Exec(ctx, query,
		o.ID, o.OrderNumber, o.ProductID, o.Amount, o.Currency,
		o.CustomerName, o.CustomerEmail, o.CustomerPhone,
		o.PaymentStatus, o.PaymentProvider, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// FindByReference fetches the order a gateway reference points at.
// References that are not order IDs resolve to (nil, nil) without a query.
func (r *OrderRepo) FindByReference(ctx context.Context, trxRef string) (*domain.Order, error) {
	if _, err := uuid.Parse(trxRef); err != nil {
		return nil, nil
	}

	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	o, err := scanOrder(r.pool.QueryRow(ctx, query, trxRef))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get order by reference: %w", err)
	}
	return o, nil
}

// FindPendingByCustomer returns the latest pending order for the same
// customer and product that already has a checkout URL.
func (r *OrderRepo) FindPendingByCustomer(ctx context.Context, productID, email string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders
		WHERE product_id = $1 AND customer_email = $2 AND payment_status = 'pending' AND payment_url IS NOT NULL
		ORDER BY created_at DESC LIMIT 1`

	o, err := scanOrder(r.pool.QueryRow(ctx, query, productID, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get pending order: %w", err)
	}
	return o, nil
}

// SetPaymentURL stores the hosted checkout URL for later reuse.
func (r *OrderRepo) SetPaymentURL(ctx context.Context, orderID, paymentURL string) error {
	query := `UPDATE orders SET payment_url = $2, updated_at = NOW() WHERE id = $1`

	if _, err := r.pool.Exec(ctx, query, orderID, paymentURL); err != nil {
		return fmt.Errorf("update order payment_url: %w", err)
	}
	return nil
}

// SetStatus updates payment_status unless the order has completed.
// A nil providerTxID leaves the stored value untouched.
func (r *OrderRepo) SetStatus(ctx context.Context, orderID string, status domain.PaymentStatus, providerTxID *string) error {
	query := `UPDATE orders
		SET payment_status = $2, provider_transaction_id = COALESCE($3, provider_transaction_id), updated_at = NOW()
		WHERE id = $1 AND payment_status <> 'completed'`

	tag, err := r.pool.Exec(ctx, query, orderID, status, providerTxID)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrOrderNotMutable
	}
	return nil
}

// ApplyPayment completes the order, credits the product and records the
// payment in one transaction. The conditional update is the only guard
// against double application.
func (r *OrderRepo) ApplyPayment(ctx context.Context, orderID, providerTxID string, amount decimal.Decimal) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin apply payment: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var productID string
	err = tx.QueryRow(ctx,
		`UPDATE orders
		SET payment_status = 'completed', provider_transaction_id = $2, paid_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND payment_status <> 'completed'
		RETURNING product_id::text`,
		orderID, providerTxID,
	).Scan(&productID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrPaymentAlreadyApplied
		}
		return fmt.Errorf("complete order: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE products SET sales_count = sales_count + 1, revenue = revenue + $2, updated_at = NOW() WHERE id = $1`,
		productID, amount,
	); err != nil {
		return fmt.Errorf("credit product: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO payments (id, order_id, provider, provider_transaction_id, amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5, 'completed', NOW())`,
		uuid.New(), orderID, domain.ProviderChapa, providerTxID, amount,
	); err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit apply payment: %w", err)
	}
	return nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	o := &domain.Order{}
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.ProductID, &o.Amount, &o.Currency,
		&o.CustomerName, &o.CustomerEmail, &o.CustomerPhone, &o.PaymentStatus, &o.PaymentProvider,
		&o.ProviderTransactionID, &o.PaymentURL, &o.PaidAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return o, nil
}
