package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"meal-order-api/bag"
	"meal-order-api/live"
	"meal-order-api/metrics"
	"meal-order-api/middleware"
	"meal-order-api/models"
	"meal-order-api/objectstore"
	"meal-order-api/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler carries the services the HTTP handlers call into.
type Handler struct {
	Accounts      *service.Accounts
	Catalog       *service.Catalog
	Bags          *service.Bags
	Orders        *service.Orders
	Notifications *service.Notifications
	Suggestions   *service.Suggestions
	Tokens        *middleware.Tokens
	Hub           *live.Hub
	Metrics       *metrics.Metrics
	Logger        *zap.SugaredLogger
	MaxUpload     int64
}

// fail maps service errors to HTTP responses. Unexpected errors are logged
// and reported without detail.
func (h *Handler) fail(c *gin.Context, err error) {
	var status int
	body := gin.H{"error": err.Error()}

	switch {
	case models.IsValidation(err):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound), errors.Is(err, bag.ErrIndexOutOfRange):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, service.ErrReauthRequired):
		status = http.StatusUnauthorized
		body["reauth_required"] = true
	case errors.Is(err, service.ErrInvalidTransition), errors.Is(err, service.ErrEmailTaken):
		status = http.StatusConflict
	case errors.Is(err, objectstore.ErrNotImage):
		status = http.StatusUnprocessableEntity
	default:
		h.Logger.Errorw("request failed", "path", c.FullPath(), "error", err)
		_ = c.Error(err)
		status = http.StatusInternalServerError
		body = gin.H{"error": "Something went wrong, please try again"}
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// idParam parses a positive integer path parameter, writing a 400 if it
// is not one.
func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return uint(id), true
}

func indexParam(c *gin.Context) (int, bool) {
	idx, err := strconv.Atoi(c.Param("index"))
	if err != nil || idx < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid index"})
		return 0, false
	}
	return idx, true
}
