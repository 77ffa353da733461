package handlers

import (
	"net/http"

	"meal-order-api/middleware"

	"github.com/gin-gonic/gin"
)

type SuggestionRequest struct {
	Text string `json:"text" binding:"required"`
}

func (h *Handler) GetNotifications(c *gin.Context) {
	notes, err := h.Notifications.List(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	unread := 0
	for _, n := range notes {
		if !n.Read {
			unread++
		}
	}
	c.JSON(http.StatusOK, gin.H{"unread": unread, "notifications": notes})
}

func (h *Handler) MarkNotificationRead(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	note, err := h.Notifications.MarkRead(c.Request.Context(), middleware.GetUserID(c), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notification": note})
}

func (h *Handler) CreateSuggestion(c *gin.Context) {
	var req SuggestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	suggestion, err := h.Suggestions.Create(c.Request.Context(), middleware.GetUserID(c), req.Text)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Thanks for the suggestion!", "suggestion": suggestion})
}

func (h *Handler) GetMySuggestions(c *gin.Context) {
	suggestions, err := h.Suggestions.ListMine(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(suggestions), "suggestions": suggestions})
}

// AdminGetSuggestions lists every suggestion with author names and link previews
func (h *Handler) AdminGetSuggestions(c *gin.Context) {
	suggestions, err := h.Suggestions.ListAll(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(suggestions), "suggestions": suggestions})
}
