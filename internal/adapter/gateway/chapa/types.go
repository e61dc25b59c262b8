package chapa

import (
	"encoding/json"
	"sort"
	"strings"
)

type initializeRequest struct {
	Amount        string        `json:"amount"`
	Currency      string        `json:"currency"`
	Email         string        `json:"email"`
	FirstName     string        `json:"first_name"`
	LastName      string        `json:"last_name"`
	PhoneNumber   string        `json:"phone_number"`
	TxRef         string        `json:"tx_ref"`
	CallbackURL   string        `json:"callback_url"`
	ReturnURL     string        `json:"return_url"`
	Customization customization `json:"customization"`
}

type customization struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// apiResponse is the envelope Chapa wraps every response in.
type apiResponse struct {
	Message json.RawMessage `json:"message"`
	Status  string          `json:"status"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

type initializeData struct {
	CheckoutURL string `json:"checkout_url"`
	TxRef       string `json:"tx_ref"`
}

type verifyData struct {
	Status    string `json:"status"`
	RefID     string `json:"ref_id"`
	TxRef     string `json:"tx_ref"`
	CreatedAt string `json:"created_at"`
}

// errorMessage extracts a human-readable reason. Chapa sends either a string
// or, for validation failures, an object of field -> messages.
func (r *apiResponse) errorMessage(fallback string) string {
	if r == nil {
		return fallback
	}

	if len(r.Message) > 0 {
		var s string
		if err := json.Unmarshal(r.Message, &s); err == nil && s != "" {
			return s
		}

		var fields map[string][]string
		if err := json.Unmarshal(r.Message, &fields); err == nil && len(fields) > 0 {
			keys := make([]string, 0, len(fields))
			for k := range fields {
				keys = append(keys, k)
			}
			sort.Strings(keys)

			var msgs []string
			for _, k := range keys {
				msgs = append(msgs, fields[k]...)
			}
			if len(msgs) > 0 {
				return strings.Join(msgs, "; ")
			}
		}
	}

	if r.Error != "" {
		return r.Error
	}
	if r.Status != "" && !strings.EqualFold(r.Status, "success") {
		return r.Status
	}
	return fallback
}
