package handlers

import (
	"net/http"

	"meal-order-api/bag"
	"meal-order-api/middleware"
	"meal-order-api/models"

	"github.com/gin-gonic/gin"
)

type AddBagItemRequest struct {
	ItemID     uint            `json:"item_id" binding:"required"`
	MealTime   models.MealTime `json:"meal_time" binding:"omitempty,oneof=breakfast lunch dinner beverages"`
	Quantities map[string]int  `json:"quantities"`
	Quantity   int             `json:"quantity"`
	AddOns     map[string]int  `json:"add_ons"`
	Condiments map[string]int  `json:"condiments"`
	Notes      string          `json:"notes"`
}

// EditBagItemRequest replaces parts of a line. Selected lists sent by the
// client are not part of the request; they are derived from the quantities.
type EditBagItemRequest struct {
	Quantities map[string]int `json:"quantities"`
	Quantity   *int           `json:"quantity"`
	AddOns     map[string]int `json:"add_ons"`
	Condiments map[string]int `json:"condiments"`
	Notes      *string        `json:"notes"`
}

type AdjustBagItemRequest struct {
	Target bag.Target `json:"target" binding:"required,oneof=component quantity add_on condiment"`
	Name   string     `json:"name"`
	Delta  int        `json:"delta" binding:"required,oneof=-1 1"`
}

type bagLine struct {
	models.Line
	ExtraCondiments int `json:"extra_condiments"`
}

func respondBag(c *gin.Context, status int, b *bag.Bag) {
	lines := b.Lines()
	out := make([]bagLine, len(lines))
	for i, l := range lines {
		out[i] = bagLine{Line: l, ExtraCondiments: bag.ExtraCondiments(l)}
	}
	c.JSON(status, gin.H{"count": len(out), "items": out})
}

func (h *Handler) openBag(c *gin.Context) (*bag.Bag, bool) {
	b, err := h.Bags.Open(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		h.fail(c, err)
		return nil, false
	}
	return b, true
}

func (h *Handler) GetBag(c *gin.Context) {
	b, ok := h.openBag(c)
	if !ok {
		return
	}
	respondBag(c, http.StatusOK, b)
}

func (h *Handler) ClearBag(c *gin.Context) {
	b, ok := h.openBag(c)
	if !ok {
		return
	}
	if err := b.Clear(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	h.Bags.Mutated("clear")
	respondBag(c, http.StatusOK, b)
}

// AddBagItem customizes a menu item and appends it to the caller's bag
func (h *Handler) AddBagItem(c *gin.Context) {
	var req AddBagItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	b, err := h.Bags.AddItem(c.Request.Context(), middleware.GetUserID(c), req.ItemID, bag.Choice{
		MealTime:   req.MealTime,
		Quantities: req.Quantities,
		Quantity:   req.Quantity,
		AddOns:     req.AddOns,
		Condiments: req.Condiments,
		Notes:      req.Notes,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	respondBag(c, http.StatusCreated, b)
}

func (h *Handler) EditBagItem(c *gin.Context) {
	index, ok := indexParam(c)
	if !ok {
		return
	}
	var req EditBagItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	b, ok := h.openBag(c)
	if !ok {
		return
	}

	err := b.Edit(c.Request.Context(), index, bag.Patch{
		Quantities: req.Quantities,
		Quantity:   req.Quantity,
		AddOns:     req.AddOns,
		Condiments: req.Condiments,
		Notes:      req.Notes,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.Bags.Mutated("edit")
	respondBag(c, http.StatusOK, b)
}

// AdjustBagItem is the +/- stepper on a single quantity
func (h *Handler) AdjustBagItem(c *gin.Context) {
	index, ok := indexParam(c)
	if !ok {
		return
	}
	var req AdjustBagItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	b, ok := h.openBag(c)
	if !ok {
		return
	}

	err := b.Adjust(c.Request.Context(), index, bag.Adjustment{Target: req.Target, Name: req.Name, Delta: req.Delta})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.Bags.Mutated("adjust")
	respondBag(c, http.StatusOK, b)
}

func (h *Handler) RemoveBagItem(c *gin.Context) {
	index, ok := indexParam(c)
	if !ok {
		return
	}
	b, ok := h.openBag(c)
	if !ok {
		return
	}
	if err := b.Remove(c.Request.Context(), index); err != nil {
		h.fail(c, err)
		return
	}
	h.Bags.Mutated("remove")
	respondBag(c, http.StatusOK, b)
}
