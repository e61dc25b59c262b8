package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"storefront-payments/internal/core/ports"
	"storefront-payments/internal/telemetry"

	"github.com/rs/zerolog"
)

// Sign computes HMAC-SHA256 of payload using secret.
// Returns lowercase hex-encoded signature.
func Sign(secret string, payload string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// WebhookSignatureVerifier implements ports.SignatureVerifier for the
// Chapa-Signature header.
type WebhookSignatureVerifier struct {
	secret   string
	reporter ports.Reporter
	metrics  *telemetry.Metrics
	log      zerolog.Logger
}

// NewWebhookSignatureVerifier creates a verifier keyed by the webhook secret.
func NewWebhookSignatureVerifier(secret string, reporter ports.Reporter, metrics *telemetry.Metrics, log zerolog.Logger) *WebhookSignatureVerifier {
	return &WebhookSignatureVerifier{
		secret:   secret,
		reporter: reporter,
		metrics:  metrics,
		log:      log,
	}
}

// Verify checks signature against HMAC-SHA256(secret, payload) in constant
// time. Hex case is ignored. An unconfigured secret rejects everything.
func (v *WebhookSignatureVerifier) Verify(payload string, signature string) bool {
	if v.secret == "" {
		v.log.Error().Msg("webhook secret not configured, rejecting signature")
		v.metrics.SignatureFailures.WithLabelValues("no_secret").Inc()
		v.reporter.CaptureMessage(context.Background(), ports.ReportLevelWarning, "webhook secret not configured", ports.ReportContext{
			Component: "signature_verifier",
			Operation: "verify",
		})
		return false
	}

	expected := Sign(v.secret, payload)
	presented := strings.ToLower(strings.TrimSpace(signature))

	if !hmac.Equal([]byte(expected), []byte(presented)) {
		v.metrics.SignatureFailures.WithLabelValues("invalid").Inc()
		v.log.Warn().
			Int("payload_bytes", len(payload)).
			Msg("webhook signature mismatch")
		return false
	}

	return true
}
