package dto

import (
	"time"

	"storefront-payments/internal/core/domain"
	"storefront-payments/internal/core/ports"
)

// InitiatePaymentRequest is the request body for checkout initiation.
type InitiatePaymentRequest struct {
	ProductID     string `json:"product_id" binding:"required,uuid"`
	CustomerEmail string `json:"customer_email" binding:"required,email,max=254"`
	CustomerName  string `json:"customer_name" binding:"required,min=2,max=100"`
	CustomerPhone string `json:"customer_phone" binding:"required,et_phone"`
}

// OrderResponse is the operator view of an order's payment state.
type OrderResponse struct {
	ID                    string  `json:"id"`
	OrderNumber           string  `json:"order_number"`
	ProductID             string  `json:"product_id"`
	Amount                string  `json:"amount"`
	Currency              string  `json:"currency"`
	CustomerEmail         string  `json:"customer_email"`
	PaymentStatus         string  `json:"payment_status"`
	PaymentProvider       string  `json:"payment_provider"`
	ProviderTransactionID *string `json:"provider_transaction_id,omitempty"`
	PaidAt                *string `json:"paid_at,omitempty"`
	CreatedAt             string  `json:"created_at"`
	UpdatedAt             string  `json:"updated_at"`
}

// ReconcileResponse is the response body for an operator reconciliation.
type ReconcileResponse struct {
	OrderID        string `json:"order_id"`
	ProviderStatus string `json:"provider_status"`
	PaymentStatus  string `json:"payment_status"`
	Changed        bool   `json:"changed"`
}

// NewOrderResponse maps a domain order to its API representation.
func NewOrderResponse(o *domain.Order) OrderResponse {
	resp := OrderResponse{
		ID:                    o.ID,
		OrderNumber:           o.OrderNumber,
		ProductID:             o.ProductID,
		Amount:                o.Amount.StringFixed(2),
		Currency:              o.Currency,
		CustomerEmail:         o.CustomerEmail,
		PaymentStatus:         string(o.PaymentStatus),
		PaymentProvider:       o.PaymentProvider,
		ProviderTransactionID: o.ProviderTransactionID,
		CreatedAt:             o.CreatedAt.Format(time.RFC3339),
		UpdatedAt:             o.UpdatedAt.Format(time.RFC3339),
	}
	if o.PaidAt != nil {
		paid := o.PaidAt.Format(time.RFC3339)
		resp.PaidAt = &paid
	}
	return resp
}

// NewReconcileResponse maps a reconciliation result to its API representation.
func NewReconcileResponse(r *ports.ReconcileResult) ReconcileResponse {
	return ReconcileResponse{
		OrderID:        r.OrderID,
		ProviderStatus: string(r.ProviderStatus),
		PaymentStatus:  string(r.PaymentStatus),
		Changed:        r.Changed,
	}
}
