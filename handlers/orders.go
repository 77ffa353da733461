package handlers

import (
	"net/http"

	"meal-order-api/middleware"

	"github.com/gin-gonic/gin"
)

// PlaceOrder turns the caller's bag into a pending order
func (h *Handler) PlaceOrder(c *gin.Context) {
	user := middleware.GetUser(c)
	b, ok := h.openBag(c)
	if !ok {
		return
	}

	order, placed, err := h.Orders.Submit(c.Request.Context(), *user, b)
	if err != nil {
		h.fail(c, err)
		return
	}
	if !placed {
		c.JSON(http.StatusOK, gin.H{"placed": false, "message": "Your bag is empty"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"placed":  true,
		"message": "Order placed successfully",
		"order":   order,
	})
}

// GetMyOrders returns the caller's orders, newest first
func (h *Handler) GetMyOrders(c *gin.Context) {
	orders, err := h.Orders.ListForUser(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(orders), "orders": orders})
}

// GetOrderDetail returns one of the caller's orders with its status history
func (h *Handler) GetOrderDetail(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	order, err := h.Orders.GetForUser(c.Request.Context(), id, middleware.GetUserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}
