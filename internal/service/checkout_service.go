package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront-payments/config"
	"storefront-payments/internal/core/domain"
	"storefront-payments/internal/core/ports"
	"storefront-payments/internal/telemetry"
	"storefront-payments/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// checkoutCacheTTL is how long a checkout response is replayed for the same
// product and customer.
const checkoutCacheTTL = 30 * time.Minute

// CheckoutServiceImpl implements ports.CheckoutService.
type CheckoutServiceImpl struct {
	products ports.ProductRepository
	orders   ports.OrderRepository
	gateway  ports.PaymentGateway
	cache    ports.CheckoutCache
	metrics  *telemetry.Metrics
	app      config.AppConfig
	log      zerolog.Logger
	now      func() time.Time
}

// NewCheckoutService creates a new checkout service. cache may be nil.
func NewCheckoutService(
	products ports.ProductRepository,
	orders ports.OrderRepository,
	gateway ports.PaymentGateway,
	cache ports.CheckoutCache,
	metrics *telemetry.Metrics,
	app config.AppConfig,
	log zerolog.Logger,
) *CheckoutServiceImpl {
	return &CheckoutServiceImpl{
		products: products,
		orders:   orders,
		gateway:  gateway,
		cache:    cache,
		metrics:  metrics,
		app:      app,
		log:      log,
		now:      time.Now,
	}
}

// Initiate opens a hosted checkout session for one product.
//
// Flow: Cache check -> Product lookup -> Reuse pending order -> Create order
// -> Gateway initiation -> Store payment URL -> Cache response.
func (s *CheckoutServiceImpl) Initiate(ctx context.Context, req ports.CheckoutRequest) (*ports.CheckoutResult, error) {
	email := strings.ToLower(strings.TrimSpace(req.CustomerEmail))
	cacheKey := req.ProductID + ":" + email

	// Step 1: Replay a recent response while its order is still open
	if cached := s.cached(ctx, cacheKey); cached != nil {
		s.metrics.Checkouts.WithLabelValues("cached").Inc()
		return cached, nil
	}

	// Step 2: Product must exist and be on sale
	product, err := s.products.GetByID(ctx, req.ProductID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if product == nil || !product.IsPurchasable() {
		s.metrics.Checkouts.WithLabelValues("not_found").Inc()
		return nil, apperror.ErrNotFound("Product")
	}

	// Step 3: An open checkout for this customer is handed back as-is
	existing, err := s.orders.FindPendingByCustomer(ctx, product.ID, email)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if existing != nil && existing.PaymentURL != nil && *existing.PaymentURL != "" {
		s.log.Info().Str("order_id", existing.ID).Msg("reusing pending checkout")
		s.metrics.Checkouts.WithLabelValues("reused").Inc()
		return &ports.CheckoutResult{
			PaymentURL: *existing.PaymentURL,
			OrderID:    existing.ID,
			Reused:     true,
		}, nil
	}

	// Step 4: Create the order
	now := s.now().UTC()
	currency := product.Currency
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	order := &domain.Order{
		ID:              uuid.New().String(),
		OrderNumber:     newOrderNumber(now),
		ProductID:       product.ID,
		Amount:          product.Price,
		Currency:        currency,
		CustomerName:    strings.TrimSpace(req.CustomerName),
		CustomerEmail:   email,
		CustomerPhone:   strings.TrimSpace(req.CustomerPhone),
		PaymentStatus:   domain.PaymentStatusPending,
		PaymentProvider: domain.ProviderChapa,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}

	log := s.log.With().Str("order_id", order.ID).Str("product_id", product.ID).Logger()

	// Step 5: Open the checkout session
	initiation, err := s.gateway.InitiatePayment(ctx, ports.InitiatePaymentParams{
		OrderID:       order.ID,
		Amount:        order.Amount,
		Currency:      order.Currency,
		Subject:       product.Title,
		CustomerName:  order.CustomerName,
		CustomerEmail: order.CustomerEmail,
		CustomerPhone: order.CustomerPhone,
		ReturnURL:     s.app.ReturnURL(order.ID),
		CallbackURL:   s.app.WebhookURL(),
	})
	if err != nil {
		if setErr := s.orders.SetStatus(ctx, order.ID, domain.PaymentStatusFailed, nil); setErr != nil {
			log.Error().Err(setErr).Msg("failed to mark order failed after gateway error")
		}
		s.metrics.Checkouts.WithLabelValues("gateway_error").Inc()
		log.Warn().Err(err).Msg("checkout initiation failed")

		var gwErr *ports.GatewayError
		if errors.As(err, &gwErr) {
			return nil, apperror.ErrGateway(gwErr.Message, err)
		}
		return nil, apperror.ErrGateway("", err)
	}

	// Step 6: Remember the checkout URL on the order
	if err := s.orders.SetPaymentURL(ctx, order.ID, initiation.CheckoutURL); err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}

	result := &ports.CheckoutResult{
		PaymentURL:    initiation.CheckoutURL,
		OrderID:       order.ID,
		TransactionID: initiation.TransactionID,
	}

	// Step 7: Cache the response (best-effort)
	s.store(ctx, cacheKey, result)

	s.metrics.Checkouts.WithLabelValues("created").Inc()
	log.Info().Str("order_number", order.OrderNumber).Msg("checkout initiated")

	return result, nil
}

func (s *CheckoutServiceImpl) cached(ctx context.Context, key string) *ports.CheckoutResult {
	if s.cache == nil {
		return nil
	}
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Msg("checkout cache unavailable")
		return nil
	}
	if data == nil {
		return nil
	}
	var result ports.CheckoutResult
	if err := json.Unmarshal(data, &result); err != nil {
		s.log.Warn().Err(err).Msg("discarding unreadable checkout cache entry")
		return nil
	}
	order, err := s.orders.FindByReference(ctx, result.OrderID)
	if err != nil {
		s.log.Warn().Err(err).Str("order_id", result.OrderID).Msg("checkout cache entry not verifiable")
		return nil
	}
	if order == nil || !order.IsPending() {
		// Superseded below by the fresh checkout's Set.
		s.log.Debug().Str("order_id", result.OrderID).Msg("discarding checkout cache entry for settled order")
		return nil
	}
	result.Reused = true
	return &result
}

func (s *CheckoutServiceImpl) store(ctx context.Context, key string, result *ports.CheckoutResult) {
	if s.cache == nil {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, data, checkoutCacheTTL); err != nil {
		s.log.Warn().Err(err).Msg("failed to cache checkout response")
	}
}

// newOrderNumber returns ORD-YYYYMMDD-XXXXXX with six upper-case hex digits.
func newOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:6])
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), suffix)
}
