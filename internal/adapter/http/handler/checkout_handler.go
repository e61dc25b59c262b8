package handler

import (
	"storefront-payments/internal/adapter/http/dto"
	"storefront-payments/internal/adapter/http/middleware"
	"storefront-payments/internal/core/ports"
	"storefront-payments/pkg/apperror"
	"storefront-payments/pkg/response"

	"github.com/gin-gonic/gin"
)

// CheckoutHandler handles storefront checkout endpoints.
type CheckoutHandler struct {
	checkoutSvc ports.CheckoutService
}

// NewCheckoutHandler creates a new CheckoutHandler.
func NewCheckoutHandler(checkoutSvc ports.CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{checkoutSvc: checkoutSvc}
}

// Initiate handles POST /api/v1/payments/initiate.
func (h *CheckoutHandler) Initiate(c *gin.Context) {
	var req dto.InitiatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	result, err := h.checkoutSvc.Initiate(c.Request.Context(), ports.CheckoutRequest{
		ProductID:     req.ProductID,
		CustomerEmail: req.CustomerEmail,
		CustomerName:  req.CustomerName,
		CustomerPhone: dto.NormalizePhone(req.CustomerPhone),
		ClientIP:      c.ClientIP(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Set(middleware.CtxResourceID, result.OrderID)

	if result.Reused {
		response.OK(c, result)
		return
	}
	response.Created(c, result)
}
