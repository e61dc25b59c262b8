package domain

import "strings"

// ProviderStatus is the normalized payment status reported by the gateway.
type ProviderStatus string

const (
	ProviderStatusSuccess ProviderStatus = "SUCCESS"
	ProviderStatusFailed  ProviderStatus = "FAILED"
	ProviderStatusPending ProviderStatus = "PENDING"
	ProviderStatusClosed  ProviderStatus = "CLOSED"
)

// ParseProviderStatus maps the provider's free-text status to a ProviderStatus.
// Unknown values, including "pending", map to ProviderStatusPending.
func ParseProviderStatus(raw string) ProviderStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "success", "successful":
		return ProviderStatusSuccess
	case "failed", "failure":
		return ProviderStatusFailed
	case "closed":
		return ProviderStatusClosed
	default:
		return ProviderStatusPending
	}
}
