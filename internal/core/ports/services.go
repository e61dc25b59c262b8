package ports

import (
	"context"
	"fmt"
	"time"

	"storefront-payments/internal/core/domain"

	"github.com/shopspring/decimal"
)

// --- Infrastructure Ports ---

// SignatureVerifier authenticates inbound gateway callbacks.
type SignatureVerifier interface {
	Verify(payload string, signature string) bool
}

// PaymentGateway is the outbound client for the payment provider.
// Failures are returned as *GatewayError.
type PaymentGateway interface {
	InitiatePayment(ctx context.Context, params InitiatePaymentParams) (*PaymentInitiation, error)
	VerifyPayment(ctx context.Context, txRef string) (*PaymentVerification, error)
	QueryPayment(ctx context.Context, txRef string) (*PaymentVerification, error)
	VerifyWebhookSignature(payload string, signature string) bool
}

// InitiatePaymentParams holds the input for a hosted checkout session.
type InitiatePaymentParams struct {
	OrderID       string // becomes the provider's tx_ref
	Amount        decimal.Decimal
	Currency      string
	Subject       string
	Description   string
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	ReturnURL     string
	CallbackURL   string
}

// PaymentInitiation is a successfully opened checkout session.
type PaymentInitiation struct {
	CheckoutURL   string
	TransactionID string
}

// PaymentVerification is the provider's view of a transaction.
type PaymentVerification struct {
	Status        domain.ProviderStatus
	TransactionID string
	PaidAt        time.Time
}

// GatewayError is a failed gateway call. Message is human-readable and safe
// to show to the customer; Err holds the transport or decode cause, if any.
type GatewayError struct {
	Operation string
	Message   string
	Attempts  int
	Err       error
}

func (e *GatewayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("chapa %s: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("chapa %s: %s", e.Operation, e.Message)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// ReportLevel is the severity of a reported message.
type ReportLevel string

const (
	ReportLevelInfo    ReportLevel = "info"
	ReportLevelWarning ReportLevel = "warning"
	ReportLevelError   ReportLevel = "error"
)

// ReportContext carries the structured context attached to a report.
// It must never contain secrets or signatures.
type ReportContext struct {
	Component string
	Operation string
	Event     string
	OrderID   string
	Extra     map[string]interface{}
}

// Reporter is the observability sink for operator follow-up.
type Reporter interface {
	CaptureException(ctx context.Context, err error, rc ReportContext)
	CaptureMessage(ctx context.Context, level ReportLevel, msg string, rc ReportContext)
	AddBreadcrumb(ctx context.Context, category string, message string, data map[string]interface{})
}

// TokenService handles operator JWT operations.
type TokenService interface {
	Generate(subject string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims. Subject is opaque.
type TokenClaims struct {
	Subject string
}

// CheckoutCache caches checkout responses (fast path for double submits).
type CheckoutCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached response JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// DeliveryTracker remembers webhook deliveries to detect gateway redeliveries.
type DeliveryTracker interface {
	// MarkSeen records (trxRef, status). Returns true if this is the first
	// delivery within ttl, false for a redelivery.
	MarkSeen(ctx context.Context, trxRef, status string, ttl time.Duration) (bool, error)
}

// --- Service Ports (Business Logic) ---

// WebhookService processes payment gateway callbacks.
type WebhookService interface {
	// HandleChapaWebhook returns an *apperror.AppError only for missing or
	// invalid signatures. Every authenticated delivery yields an outcome.
	HandleChapaWebhook(ctx context.Context, rawBody []byte, signature string) (domain.WebhookOutcome, error)
}

// CheckoutService opens hosted checkout sessions for storefront customers.
type CheckoutService interface {
	Initiate(ctx context.Context, req CheckoutRequest) (*CheckoutResult, error)
}

// CheckoutRequest holds validated checkout input.
type CheckoutRequest struct {
	ProductID     string
	CustomerEmail string
	CustomerName  string
	CustomerPhone string
	ClientIP      string
}

// CheckoutResult is returned to the storefront after a checkout is opened.
type CheckoutResult struct {
	PaymentURL    string `json:"payment_url"`
	OrderID       string `json:"order_id"`
	TransactionID string `json:"transaction_id,omitempty"`
	// Reused is set when an earlier checkout session was returned instead
	// of opening a new one.
	Reused bool `json:"-"`
}

// ReconciliationService lets operators re-check an order against the gateway.
type ReconciliationService interface {
	Reconcile(ctx context.Context, orderID string) (*ReconcileResult, error)
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
}

// ReconcileResult describes what a reconciliation run observed and did.
type ReconcileResult struct {
	OrderID        string
	ProviderStatus domain.ProviderStatus
	PaymentStatus  domain.PaymentStatus
	Changed        bool
}

// AuditService records audit entries.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}
