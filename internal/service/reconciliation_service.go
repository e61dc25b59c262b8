package service

import (
	"context"
	"errors"

	"storefront-payments/internal/core/domain"
	"storefront-payments/internal/core/ports"
	"storefront-payments/internal/telemetry"
	"storefront-payments/pkg/apperror"

	"github.com/rs/zerolog"
)

// ReconciliationServiceImpl implements ports.ReconciliationService.
// It applies the same transition policy as the webhook path, using the
// gateway's verify endpoint as the source of the provider status.
type ReconciliationServiceImpl struct {
	orders  ports.OrderRepository
	gateway ports.PaymentGateway
	metrics *telemetry.Metrics
	log     zerolog.Logger
}

// NewReconciliationService creates a new reconciliation service.
func NewReconciliationService(
	orders ports.OrderRepository,
	gateway ports.PaymentGateway,
	metrics *telemetry.Metrics,
	log zerolog.Logger,
) *ReconciliationServiceImpl {
	return &ReconciliationServiceImpl{
		orders:  orders,
		gateway: gateway,
		metrics: metrics,
		log:     log,
	}
}

// GetOrder returns an order's current payment state.
func (s *ReconciliationServiceImpl) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	order, err := s.orders.FindByReference(ctx, orderID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if order == nil {
		return nil, apperror.ErrNotFound("Order")
	}
	return order, nil
}

// Reconcile asks the gateway for the order's status and applies it.
// A completed order is reported but never changed.
func (s *ReconciliationServiceImpl) Reconcile(ctx context.Context, orderID string) (*ports.ReconcileResult, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	log := s.log.With().Str("order_id", order.ID).Logger()

	verification, err := s.gateway.VerifyPayment(ctx, order.ID)
	if err != nil {
		s.metrics.Reconciliations.WithLabelValues("gateway_error").Inc()
		log.Warn().Err(err).Msg("reconciliation verify failed")

		var gwErr *ports.GatewayError
		if errors.As(err, &gwErr) {
			return nil, apperror.ErrGateway(gwErr.Message, err)
		}
		return nil, apperror.ErrGateway("Payment verification failed", err)
	}

	result := &ports.ReconcileResult{
		OrderID:        order.ID,
		ProviderStatus: verification.Status,
		PaymentStatus:  order.PaymentStatus,
	}

	if order.IsCompleted() {
		s.metrics.Reconciliations.WithLabelValues("unchanged").Inc()
		return result, nil
	}

	switch verification.Status {
	case domain.ProviderStatusSuccess:
		err := s.orders.ApplyPayment(ctx, order.ID, verification.TransactionID, order.Amount)
		switch {
		case errors.Is(err, domain.ErrPaymentAlreadyApplied):
			result.PaymentStatus = domain.PaymentStatusCompleted
		case err != nil:
			s.metrics.Reconciliations.WithLabelValues("error").Inc()
			return nil, apperror.ErrDatabaseError(err)
		default:
			result.PaymentStatus = domain.PaymentStatusCompleted
			result.Changed = true
		}

	case domain.ProviderStatusFailed:
		if order.PaymentStatus == domain.PaymentStatusFailed {
			break
		}
		txID := verification.TransactionID
		err := s.orders.SetStatus(ctx, order.ID, domain.PaymentStatusFailed, &txID)
		switch {
		case errors.Is(err, domain.ErrOrderNotMutable):
			result.PaymentStatus = domain.PaymentStatusCompleted
		case err != nil:
			s.metrics.Reconciliations.WithLabelValues("error").Inc()
			return nil, apperror.ErrDatabaseError(err)
		default:
			result.PaymentStatus = domain.PaymentStatusFailed
			result.Changed = true
		}
	}

	label := "unchanged"
	if result.Changed {
		label = "changed"
	}
	s.metrics.Reconciliations.WithLabelValues(label).Inc()

	log.Info().
		Str("provider_status", string(result.ProviderStatus)).
		Str("payment_status", string(result.PaymentStatus)).
		Bool("changed", result.Changed).
		Msg("order reconciled")

	return result, nil
}
