package handlers

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"meal-order-api/models"
	"meal-order-api/service"

	"github.com/gin-gonic/gin"
)

type MealRequest struct {
	Name        string          `json:"name" binding:"required"`
	Description string          `json:"description"`
	Category    models.Category `json:"category" binding:"omitempty,oneof=meal beverage"`
	Components  []string        `json:"components"`
	AddOns      []string        `json:"add_ons"`
	MealTime    models.MealTime `json:"meal_time" binding:"omitempty,oneof=breakfast lunch dinner beverages"`
}

func (r MealRequest) input() service.ItemInput {
	return service.ItemInput{
		Name:        r.Name,
		Description: r.Description,
		Category:    r.Category,
		Components:  r.Components,
		AddOns:      r.AddOns,
		MealTime:    r.MealTime,
	}
}

type MenuRequest struct {
	Entries models.MenuEntries `json:"entries" binding:"required"`
}

type CondimentRequest struct {
	Name string `json:"name" binding:"required"`
}

type CondimentsRequest struct {
	Items []string `json:"items"`
}

// GetMenu returns today's published menu, resolved to items per meal time
func (h *Handler) GetMenu(c *gin.Context) {
	menu, err := h.Catalog.ResolvedMenu(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"menu": menu})
}

func (h *Handler) GetCondiments(c *gin.Context) {
	items, err := h.Catalog.Condiments(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"condiments": items})
}

// GetMealsByIDs resolves a comma separated id list, e.g. ?ids=3,7,12
func (h *Handler) GetMealsByIDs(c *gin.Context) {
	var ids []uint
	for _, raw := range strings.Split(c.Query("ids"), ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id: " + raw})
			return
		}
		ids = append(ids, uint(id))
	}

	items, err := h.Catalog.ItemsByIDs(c.Request.Context(), ids)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(items), "meals": items})
}

// ListMeals returns the whole catalog, optionally filtered by category
func (h *Handler) ListMeals(c *gin.Context) {
	items, err := h.Catalog.ListItems(c.Request.Context(), models.Category(c.Query("category")))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(items), "meals": items})
}

func (h *Handler) GetMeal(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	item, err := h.Catalog.GetItem(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"meal": item})
}

func (h *Handler) CreateMeal(c *gin.Context) {
	var req MealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	item, err := h.Catalog.CreateItem(c.Request.Context(), req.input())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Meal created", "meal": item})
}

func (h *Handler) UpdateMeal(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req MealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	item, err := h.Catalog.UpdateItem(c.Request.Context(), id, req.input())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Meal updated", "meal": item})
}

func (h *Handler) DeleteMeal(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.Catalog.DeleteItem(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Meal deleted"})
}

// UploadMealImage takes a multipart "image" file and replaces the meal's image
func (h *Handler) UploadMealImage(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	fh, err := c.FormFile("image")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "image file is required"})
		return
	}
	if fh.Size > h.MaxUpload {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "image is too large"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		h.fail(c, err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, h.MaxUpload))
	if err != nil {
		h.fail(c, err)
		return
	}

	item, err := h.Catalog.UploadImage(c.Request.Context(), id, data)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Image uploaded", "meal": item})
}

// SetMenu replaces the published menu
func (h *Handler) SetMenu(c *gin.Context) {
	var req MenuRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	entries, err := h.Catalog.SetMenu(c.Request.Context(), req.Entries)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Menu updated", "entries": entries})
}

// ToggleMenuEntry adds the item to a meal time, or removes it if present
func (h *Handler) ToggleMenuEntry(c *gin.Context) {
	itemID, ok := idParam(c, "itemId")
	if !ok {
		return
	}
	entries, err := h.Catalog.ToggleMenuEntry(c.Request.Context(), models.MealTime(c.Param("mealTime")), itemID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h *Handler) AddCondiment(c *gin.Context) {
	var req CondimentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	items, err := h.Catalog.AddCondiment(c.Request.Context(), req.Name)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"condiments": items})
}

func (h *Handler) RemoveCondiment(c *gin.Context) {
	items, err := h.Catalog.RemoveCondiment(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"condiments": items})
}

func (h *Handler) SetCondiments(c *gin.Context) {
	var req CondimentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	items, err := h.Catalog.SetCondiments(c.Request.Context(), req.Items)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"condiments": items})
}
