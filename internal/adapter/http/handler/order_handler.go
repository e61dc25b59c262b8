package handler

import (
	"storefront-payments/internal/adapter/http/dto"
	"storefront-payments/internal/core/ports"
	"storefront-payments/pkg/apperror"
	"storefront-payments/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// OrderHandler handles operator order endpoints.
type OrderHandler struct {
	reconcileSvc ports.ReconciliationService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(reconcileSvc ports.ReconciliationService) *OrderHandler {
	return &OrderHandler{reconcileSvc: reconcileSvc}
}

// GetOrder handles GET /api/v1/orders/:id.
func (h *OrderHandler) GetOrder(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}

	order, err := h.reconcileSvc.GetOrder(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.NewOrderResponse(order))
}

// Reconcile handles POST /api/v1/orders/:id/reconcile.
func (h *OrderHandler) Reconcile(c *gin.Context) {
	id, ok := orderID(c)
	if !ok {
		return
	}

	result, err := h.reconcileSvc.Reconcile(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, dto.NewReconcileResponse(result))
}

func orderID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		response.Error(c, apperror.Validation("invalid order id"))
		return "", false
	}
	return id, true
}
