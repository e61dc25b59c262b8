package domain

// ChapaWebhookPayload is the subset of the gateway's callback body the
// storefront acts on. The raw body is verified before it is decoded into this.
type ChapaWebhookPayload struct {
	TrxRef string `json:"trx_ref"`
	RefID  string `json:"ref_id"`
	Status string `json:"status"`
}

// WebhookOutcome is the acknowledgement returned to the gateway for an
// authenticated delivery.
type WebhookOutcome string

const (
	WebhookMissingReference WebhookOutcome = "Webhook received but missing transaction reference"
	WebhookOrderNotFound    WebhookOutcome = "Order not found"
	WebhookAlreadyProcessed WebhookOutcome = "Payment already processed"
	WebhookApplyFailed      WebhookOutcome = "Payment processing failed, logged for investigation"
	WebhookProcessed        WebhookOutcome = "Payment processed successfully"
	WebhookFailureRecorded  WebhookOutcome = "Payment failure recorded"
	WebhookPending          WebhookOutcome = "Payment pending"
	WebhookErrorLogged      WebhookOutcome = "Webhook received, error logged for investigation"
)

// DefaultProviderTransactionID is recorded when a success event omits ref_id.
const DefaultProviderTransactionID = "chapa"

// Label is a short, stable identifier for metrics and logs.
func (o WebhookOutcome) Label() string {
	switch o {
	case WebhookMissingReference:
		return "missing_reference"
	case WebhookOrderNotFound:
		return "order_not_found"
	case WebhookAlreadyProcessed:
		return "already_processed"
	case WebhookApplyFailed:
		return "apply_failed"
	case WebhookProcessed:
		return "processed"
	case WebhookFailureRecorded:
		return "failure_recorded"
	case WebhookPending:
		return "pending"
	case WebhookErrorLogged:
		return "error_logged"
	default:
		return "unknown"
	}
}
