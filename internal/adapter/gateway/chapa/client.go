package chapa

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"storefront-payments/config"
	"storefront-payments/internal/core/domain"
	"storefront-payments/internal/core/ports"
	"storefront-payments/internal/telemetry"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	opInitialize = "initialize"
	opVerify     = "verify"

	// maxResponseBytes bounds how much of a gateway response is read.
	maxResponseBytes = 1 << 20

	// maxInitializeAttempts caps chapa.max_attempts.
	maxInitializeAttempts = 3
)

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client implements ports.PaymentGateway against the Chapa REST API.
type Client struct {
	cfg        config.ChapaConfig
	httpClient HTTPClient
	verifier   ports.SignatureVerifier
	reporter   ports.Reporter
	metrics    *telemetry.Metrics
	tracer     trace.Tracer
	log        zerolog.Logger
}

// NewClient creates a Chapa client. It fails when no secret key is
// configured. httpClient may be nil, in which case a client with the
// configured timeout is used.
func NewClient(
	cfg config.ChapaConfig,
	httpClient HTTPClient,
	verifier ports.SignatureVerifier,
	reporter ports.Reporter,
	metrics *telemetry.Metrics,
	log zerolog.Logger,
) (*Client, error) {
	if cfg.SecretKey == "" {
		return nil, errors.New("missing Chapa configuration: chapa.secret_key is not set")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.chapa.co/v1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.MaxAttempts > maxInitializeAttempts {
		log.Warn().
			Int("configured", cfg.MaxAttempts).
			Int("max_attempts", maxInitializeAttempts).
			Msg("chapa: max_attempts capped")
		cfg.MaxAttempts = maxInitializeAttempts
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		verifier:   verifier,
		reporter:   reporter,
		metrics:    metrics,
		tracer:     otel.Tracer("storefront-payments/chapa"),
		log:        log,
	}, nil
}

// InitiatePayment opens a hosted checkout session for an order.
// Transport and decode failures are retried with exponential backoff;
// a well-formed rejection from the provider is returned immediately.
func (c *Client) InitiatePayment(ctx context.Context, params ports.InitiatePaymentParams) (*ports.PaymentInitiation, error) {
	ctx, span := c.tracer.Start(ctx, "chapa.initialize", trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("chapa.tx_ref", params.OrderID)))
	defer span.End()

	firstName, lastName := splitName(params.CustomerName)
	currency := params.Currency
	if currency == "" {
		currency = domain.DefaultCurrency
	}

	body, err := json.Marshal(initializeRequest{
		Amount:      params.Amount.String(),
		Currency:    currency,
		Email:       params.CustomerEmail,
		FirstName:   firstName,
		LastName:    lastName,
		PhoneNumber: params.CustomerPhone,
		TxRef:       params.OrderID,
		CallbackURL: params.CallbackURL,
		ReturnURL:   params.ReturnURL,
		Customization: customization{
			Title:       params.Subject,
			Description: description(params),
		},
	})
	if err != nil {
		return nil, c.fail(ctx, span, opInitialize, params.OrderID, &ports.GatewayError{
			Operation: opInitialize,
			Message:   "Payment initiation failed",
			Err:       fmt.Errorf("encoding request: %w", err),
		})
	}

	c.reporter.AddBreadcrumb(ctx, "payment", "Initiating Chapa payment", map[string]interface{}{
		"order_id": params.OrderID,
		"amount":   params.Amount.String(),
	})

	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			c.metrics.GatewayRetries.WithLabelValues(opInitialize).Inc()
			if err := sleep(ctx, c.backoff(attempt-1)); err != nil {
				return nil, c.fail(ctx, span, opInitialize, params.OrderID, &ports.GatewayError{
					Operation: opInitialize,
					Message:   "Payment initiation cancelled",
					Attempts:  attempt,
					Err:       err,
				})
			}
		}

		status, resp, err := c.do(ctx, http.MethodPost, "/transaction/initialize", body)
		if err != nil {
			lastErr = err
			c.log.Warn().Err(err).
				Str("order_id", params.OrderID).
				Int("attempt", attempt+1).
				Int("max_attempts", c.cfg.MaxAttempts).
				Msg("chapa: initialize attempt failed")
			c.reporter.AddBreadcrumb(ctx, "payment", "Chapa initialize attempt failed", map[string]interface{}{
				"order_id": params.OrderID,
				"attempt":  attempt + 1,
			})
			continue
		}

		var data initializeData
		extra := map[string]interface{}{"http_status": status}
		if isSuccess(status, resp) && hasData(resp) {
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				c.log.Warn().Err(err).
					Str("order_id", params.OrderID).
					Msg("chapa: undecodable initialize data")
				extra["decode_error"] = err.Error()
			}
		}
		if data.CheckoutURL == "" {
			msg := "Payment initiation failed: no checkout URL returned"
			if !isSuccess(status, resp) {
				msg = resp.errorMessage("Payment initiation failed")
			}
			extra["message"] = msg
			c.metrics.GatewayRequests.WithLabelValues(opInitialize, "provider_error").Inc()
			c.reporter.CaptureMessage(ctx, ports.ReportLevelWarning, "Chapa rejected payment initiation", ports.ReportContext{
				Component: "chapa_client",
				Operation: opInitialize,
				Event:     "provider_error",
				OrderID:   params.OrderID,
				Extra:     extra,
			})
			span.SetStatus(codes.Error, msg)
			return nil, &ports.GatewayError{Operation: opInitialize, Message: msg, Attempts: attempt + 1}
		}

		txID := data.TxRef
		if txID == "" {
			txID = params.OrderID
		}

		c.metrics.GatewayRequests.WithLabelValues(opInitialize, "success").Inc()
		span.SetAttributes(attribute.Int("chapa.attempts", attempt+1))
		c.log.Info().
			Str("order_id", params.OrderID).
			Int("attempts", attempt+1).
			Msg("chapa: checkout session created")

		return &ports.PaymentInitiation{CheckoutURL: data.CheckoutURL, TransactionID: txID}, nil
	}

	return nil, c.fail(ctx, span, opInitialize, params.OrderID, &ports.GatewayError{
		Operation: opInitialize,
		Message:   "Payment initiation failed after retries",
		Attempts:  c.cfg.MaxAttempts,
		Err:       lastErr,
	})
}

// VerifyPayment looks up a transaction by its reference.
func (c *Client) VerifyPayment(ctx context.Context, txRef string) (*ports.PaymentVerification, error) {
	ctx, span := c.tracer.Start(ctx, "chapa.verify", trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("chapa.tx_ref", txRef)))
	defer span.End()

	status, resp, err := c.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(txRef), nil)
	if err != nil {
		return nil, c.fail(ctx, span, opVerify, txRef, &ports.GatewayError{
			Operation: opVerify,
			Message:   "Payment verification failed",
			Attempts:  1,
			Err:       err,
		})
	}

	var data verifyData
	ok := isSuccess(status, resp) && hasData(resp) && json.Unmarshal(resp.Data, &data) == nil
	if !ok {
		msg := resp.errorMessage("Payment verification failed")
		c.metrics.GatewayRequests.WithLabelValues(opVerify, "provider_error").Inc()
		c.reporter.CaptureMessage(ctx, ports.ReportLevelWarning, "Chapa verification rejected", ports.ReportContext{
			Component: "chapa_client",
			Operation: opVerify,
			Event:     "provider_error",
			OrderID:   txRef,
			Extra:     map[string]interface{}{"message": msg},
		})
		span.SetStatus(codes.Error, msg)
		return nil, &ports.GatewayError{Operation: opVerify, Message: msg, Attempts: 1}
	}

	txID := data.RefID
	if txID == "" {
		txID = txRef
	}
	paidAt := time.Now().UTC()
	if data.CreatedAt != "" {
		if t, err := time.Parse(time.RFC3339, data.CreatedAt); err == nil {
			paidAt = t
		}
	}

	providerStatus := domain.ParseProviderStatus(data.Status)
	c.metrics.GatewayRequests.WithLabelValues(opVerify, "success").Inc()
	span.SetAttributes(attribute.String("chapa.status", string(providerStatus)))

	return &ports.PaymentVerification{
		Status:        providerStatus,
		TransactionID: txID,
		PaidAt:        paidAt,
	}, nil
}

// QueryPayment is an alias for VerifyPayment.
func (c *Client) QueryPayment(ctx context.Context, txRef string) (*ports.PaymentVerification, error) {
	return c.VerifyPayment(ctx, txRef)
}

// VerifyWebhookSignature delegates to the configured signature verifier.
func (c *Client) VerifyWebhookSignature(payload string, signature string) bool {
	return c.verifier.Verify(payload, signature)
}

// do sends one request and decodes the envelope. A non-nil error means the
// call is worth retrying: the transport failed or the body was not JSON.
func (c *Client) do(ctx context.Context, method, path string, body []byte) (int, *apiResponse, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	var decoded apiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&decoded); err != nil {
		return resp.StatusCode, nil, fmt.Errorf("decoding response (status %d): %w", resp.StatusCode, err)
	}

	return resp.StatusCode, &decoded, nil
}

// fail records a terminal failure and returns it.
func (c *Client) fail(ctx context.Context, span trace.Span, op, orderID string, gerr *ports.GatewayError) error {
	c.metrics.GatewayRequests.WithLabelValues(op, "transport_error").Inc()
	span.RecordError(gerr)
	span.SetStatus(codes.Error, gerr.Message)
	c.log.Error().Err(gerr.Err).
		Str("order_id", orderID).
		Str("operation", op).
		Int("attempts", gerr.Attempts).
		Msg("chapa: request failed")
	c.reporter.CaptureException(ctx, gerr, ports.ReportContext{
		Component: "chapa_client",
		Operation: op,
		Event:     "request_failed",
		OrderID:   orderID,
		Extra:     map[string]interface{}{"attempts": gerr.Attempts},
	})
	return gerr
}

func (c *Client) backoff(attempt int) time.Duration {
	return c.cfg.RetryBaseDelay * time.Duration(1<<attempt)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func isSuccess(status int, resp *apiResponse) bool {
	return status >= 200 && status < 300 && resp != nil && strings.EqualFold(resp.Status, "success")
}

func hasData(resp *apiResponse) bool {
	return len(resp.Data) > 0 && string(resp.Data) != "null"
}

// splitName splits a full name into first and last name. A single token is
// used for both.
func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], parts[0]
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

func description(params ports.InitiatePaymentParams) string {
	if params.Description != "" {
		return params.Description
	}
	return "Payment for " + params.Subject
}
