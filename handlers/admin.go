package handlers

import (
	"net/http"

	"meal-order-api/middleware"
	"meal-order-api/models"
	"meal-order-api/service"
	"meal-order-api/statemachine"

	"github.com/gin-gonic/gin"
)

type PreparationRequest struct {
	Target service.PrepTarget `json:"target" binding:"required,oneof=component beverage add_on"`
	Name   string             `json:"name"`
	Value  *bool              `json:"value"` // omitted toggles
}

type CompletedRequest struct {
	Completed *bool `json:"completed" binding:"required"`
}

// AdminGetAllOrders returns all orders, optionally filtered by status
func (h *Handler) AdminGetAllOrders(c *gin.Context) {
	status := models.OrderStatus(c.Query("status"))
	orders, err := h.Orders.ListAll(c.Request.Context(), status)
	if err != nil {
		h.fail(c, err)
		return
	}

	summary := map[string]int{}
	for _, o := range orders {
		summary[string(o.Status)]++
	}

	c.JSON(http.StatusOK, gin.H{
		"order_summary": summary,
		"count":         len(orders),
		"orders":        orders,
	})
}

func (h *Handler) AdminGetOrder(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	order, err := h.Orders.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"order":             order,
		"valid_next_states": statemachine.ValidTransitionsFrom(order.Status),
	})
}

// StartOrder moves a pending order to started and notifies its owner
func (h *Handler) StartOrder(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	order, err := h.Orders.Start(c.Request.Context(), id, middleware.GetUserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Order started", "order": order})
}

// SetPreparation checks or unchecks one cooked/prepared box of an order item
func (h *Handler) SetPreparation(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	index, ok := indexParam(c)
	if !ok {
		return
	}
	var req PreparationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	order, err := h.Orders.SetPreparation(c.Request.Context(), id, middleware.GetUserID(c), service.PrepUpdate{
		ItemIndex: index,
		Target:    req.Target,
		Name:      req.Name,
		Value:     req.Value,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

// SetCompleted is the completed checkbox shortcut
func (h *Handler) SetCompleted(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req CompletedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	order, err := h.Orders.SetCompleted(c.Request.Context(), id, middleware.GetUserID(c), *req.Completed)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

// AdminDeleteOrder removes an order permanently
func (h *Handler) AdminDeleteOrder(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.Orders.Delete(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Order deleted"})
}
