package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"storefront-payments/internal/core/domain"
	"storefront-payments/internal/core/ports"
	"storefront-payments/internal/telemetry"
	"storefront-payments/pkg/apperror"

	"github.com/rs/zerolog"
)

// deliveryTTL bounds how long a (trx_ref, status) pair is remembered for
// redelivery detection.
const deliveryTTL = 24 * time.Hour

// WebhookServiceImpl implements ports.WebhookService for Chapa callbacks.
type WebhookServiceImpl struct {
	orders     ports.OrderRepository
	gateway    ports.PaymentGateway
	deliveries ports.DeliveryTracker
	reporter   ports.Reporter
	metrics    *telemetry.Metrics
	log        zerolog.Logger
}

// NewWebhookService creates a new webhook service. deliveries may be nil.
func NewWebhookService(
	orders ports.OrderRepository,
	gateway ports.PaymentGateway,
	deliveries ports.DeliveryTracker,
	reporter ports.Reporter,
	metrics *telemetry.Metrics,
	log zerolog.Logger,
) *WebhookServiceImpl {
	return &WebhookServiceImpl{
		orders:     orders,
		gateway:    gateway,
		deliveries: deliveries,
		reporter:   reporter,
		metrics:    metrics,
		log:        log,
	}
}

// HandleChapaWebhook authenticates a delivery and applies it to its order.
//
// The returned error is non-nil only when the signature is missing or does
// not match. Once authenticated, every delivery is acknowledged with an
// outcome so the gateway stops retrying; failures are logged and reported
// for follow-up instead.
func (s *WebhookServiceImpl) HandleChapaWebhook(ctx context.Context, rawBody []byte, signature string) (outcome domain.WebhookOutcome, err error) {
	if strings.TrimSpace(signature) == "" {
		s.metrics.SignatureFailures.WithLabelValues("missing").Inc()
		s.log.Warn().Int("payload_bytes", len(rawBody)).Msg("webhook rejected: missing signature")
		return "", apperror.ErrMissingWebhookSignature()
	}

	if !s.gateway.VerifyWebhookSignature(string(rawBody), signature) {
		s.log.Warn().Int("payload_bytes", len(rawBody)).Msg("webhook rejected: invalid signature")
		return "", apperror.ErrInvalidWebhookSignature()
	}

	defer func() {
		if r := recover(); r != nil {
			outcome = s.errorLogged(ctx, fmt.Errorf("webhook panic: %v", r), "")
			err = nil
		}
		s.metrics.WebhookOutcomes.WithLabelValues(outcome.Label()).Inc()
	}()

	return s.process(ctx, rawBody), nil
}

func (s *WebhookServiceImpl) process(ctx context.Context, rawBody []byte) domain.WebhookOutcome {
	var payload domain.ChapaWebhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return s.errorLogged(ctx, fmt.Errorf("decoding webhook payload: %w", err), "")
	}

	if payload.TrxRef == "" {
		s.log.Warn().Str("status", payload.Status).Msg("webhook missing trx_ref")
		return domain.WebhookMissingReference
	}

	s.trackDelivery(ctx, payload)

	order, err := s.orders.FindByReference(ctx, payload.TrxRef)
	if err != nil {
		return s.errorLogged(ctx, fmt.Errorf("finding order: %w", err), payload.TrxRef)
	}
	if order == nil {
		s.log.Warn().Str("trx_ref", payload.TrxRef).Msg("webhook for unknown order")
		s.reporter.CaptureMessage(ctx, ports.ReportLevelWarning, "Order not found for webhook", ports.ReportContext{
			Component: "webhook",
			Operation: "chapa",
			Event:     "order_not_found",
			Extra:     map[string]interface{}{"trx_ref": payload.TrxRef, "status": payload.Status},
		})
		return domain.WebhookOrderNotFound
	}

	log := s.log.With().Str("order_id", order.ID).Str("status", payload.Status).Logger()

	if order.IsCompleted() {
		s.alreadyProcessed(ctx, order)
		return domain.WebhookAlreadyProcessed
	}

	switch domain.ParseProviderStatus(payload.Status) {
	case domain.ProviderStatusSuccess:
		providerTxID := payload.RefID
		if providerTxID == "" {
			providerTxID = domain.DefaultProviderTransactionID
		}

		err := s.orders.ApplyPayment(ctx, order.ID, providerTxID, order.Amount)
		if errors.Is(err, domain.ErrPaymentAlreadyApplied) {
			s.alreadyProcessed(ctx, order)
			return domain.WebhookAlreadyProcessed
		}
		if err != nil {
			log.Error().Err(err).Msg("failed to apply payment")
			s.reporter.CaptureException(ctx, err, ports.ReportContext{
				Component: "webhook",
				Operation: "chapa",
				Event:     "payment_processing_failed",
				OrderID:   order.ID,
				Extra:     map[string]interface{}{"ref_id": payload.RefID},
			})
			return domain.WebhookApplyFailed
		}

		log.Info().Str("provider_transaction_id", providerTxID).Msg("payment completed")
		return domain.WebhookProcessed

	case domain.ProviderStatusFailed:
		var providerTxID *string
		if payload.RefID != "" {
			providerTxID = &payload.RefID
		}

		err := s.orders.SetStatus(ctx, order.ID, domain.PaymentStatusFailed, providerTxID)
		if errors.Is(err, domain.ErrOrderNotMutable) {
			s.alreadyProcessed(ctx, order)
			return domain.WebhookAlreadyProcessed
		}
		if err != nil {
			return s.errorLogged(ctx, fmt.Errorf("recording payment failure: %w", err), order.ID)
		}

		log.Info().Msg("payment failure recorded")
		return domain.WebhookFailureRecorded

	default:
		log.Debug().Msg("payment still pending")
		return domain.WebhookPending
	}
}

func (s *WebhookServiceImpl) trackDelivery(ctx context.Context, payload domain.ChapaWebhookPayload) {
	if s.deliveries == nil {
		return
	}

	first, err := s.deliveries.MarkSeen(ctx, payload.TrxRef, payload.Status, deliveryTTL)
	if err != nil {
		s.log.Warn().Err(err).Str("trx_ref", payload.TrxRef).Msg("delivery tracking unavailable")
		return
	}
	if !first {
		s.metrics.WebhookRedeliveries.Inc()
		s.reporter.AddBreadcrumb(ctx, "webhook", "Webhook redelivered", map[string]interface{}{
			"trx_ref": payload.TrxRef,
			"status":  payload.Status,
		})
	}
}

func (s *WebhookServiceImpl) alreadyProcessed(ctx context.Context, order *domain.Order) {
	s.log.Info().Str("order_id", order.ID).Msg("duplicate webhook for completed order")
	s.reporter.AddBreadcrumb(ctx, "webhook", "Duplicate webhook received for completed order", map[string]interface{}{
		"order_id": order.ID,
	})
}

func (s *WebhookServiceImpl) errorLogged(ctx context.Context, err error, orderID string) domain.WebhookOutcome {
	s.log.Error().Err(err).Str("order_id", orderID).Msg("webhook processing error")
	s.reporter.CaptureException(ctx, err, ports.ReportContext{
		Component: "webhook",
		Operation: "chapa",
		Event:     "webhook_processing_error",
		OrderID:   orderID,
	})
	return domain.WebhookErrorLogged
}
