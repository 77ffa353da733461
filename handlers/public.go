package handlers

import (
	"net/http"

	"meal-order-api/models"
	"meal-order-api/statemachine"

	"github.com/gin-gonic/gin"
)

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "Meal Ordering API",
	})
}

// GetStateMachineInfo returns the full state machine for informational purposes
func (h *Handler) GetStateMachineInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"state_machine": statemachine.GetAllTransitions(),
		"states":        []models.OrderStatus{models.StatusPending, models.StatusStarted, models.StatusCompleted},
		"description":   "Meal order fulfillment lifecycle. Kitchen transitions follow the preparation checkboxes.",
	})
}
