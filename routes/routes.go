package routes

import (
	"meal-order-api/handlers"
	"meal-order-api/middleware"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SetupRoutes registers every endpoint. uploadDir is served under
// /uploads; pass "" to skip it.
func SetupRoutes(r *gin.Engine, h *handlers.Handler, db *gorm.DB, uploadDir string) {
	r.GET("/health", h.Health)
	r.GET("/metrics", gin.WrapH(h.Metrics.Handler()))
	if uploadDir != "" {
		r.Static("/uploads", uploadDir)
	}

	// ── Public routes ──────────────────────────────────────────────
	public := r.Group("/api")
	{
		public.POST("/auth/signup", h.Signup)
		public.POST("/auth/login", h.Login)

		// State machine info (great for docs/Postman)
		public.GET("/state-machine", h.GetStateMachineInfo)
	}

	// ── Authenticated routes ───────────────────────────────────────
	auth := r.Group("/api")
	auth.Use(middleware.AuthRequired(db, h.Tokens))
	{
		auth.POST("/auth/logout", h.Logout)
		auth.POST("/auth/reauth", h.Reauth)

		auth.GET("/profile", h.GetProfile)
		auth.PUT("/profile", h.UpdateProfile)
		auth.DELETE("/profile", h.DeleteProfile)

		// Catalog
		auth.GET("/menu", h.GetMenu)
		auth.GET("/condiments", h.GetCondiments)
		auth.GET("/meals", h.GetMealsByIDs)

		// Bag
		auth.GET("/bag", h.GetBag)
		auth.DELETE("/bag", h.ClearBag)
		auth.POST("/bag/items", h.AddBagItem)
		auth.PUT("/bag/items/:index", h.EditBagItem)
		auth.DELETE("/bag/items/:index", h.RemoveBagItem)
		auth.POST("/bag/items/:index/adjust", h.AdjustBagItem)

		// Orders
		auth.POST("/orders", h.PlaceOrder)
		auth.GET("/orders", h.GetMyOrders)
		auth.GET("/orders/:id", h.GetOrderDetail)

		auth.GET("/notifications", h.GetNotifications)
		auth.PUT("/notifications/:id/read", h.MarkNotificationRead)

		auth.POST("/suggestions", h.CreateSuggestion)
		auth.GET("/suggestions", h.GetMySuggestions)

		auth.GET("/live", h.Live)
	}

	// ── Admin routes ───────────────────────────────────────────────
	admin := r.Group("/api/admin")
	admin.Use(middleware.AuthRequired(db, h.Tokens), middleware.AdminRequired())
	{
		// Catalog management
		admin.GET("/meals", h.ListMeals)
		admin.POST("/meals", h.CreateMeal)
		admin.GET("/meals/:id", h.GetMeal)
		admin.PUT("/meals/:id", h.UpdateMeal)
		admin.DELETE("/meals/:id", h.DeleteMeal)
		admin.POST("/meals/:id/image", h.UploadMealImage)

		admin.PUT("/menu", h.SetMenu)
		admin.POST("/menu/:mealTime/:itemId/toggle", h.ToggleMenuEntry)

		admin.POST("/condiments", h.AddCondiment)
		admin.PUT("/condiments", h.SetCondiments)
		admin.DELETE("/condiments/:name", h.RemoveCondiment)

		// Order fulfillment
		admin.GET("/orders", h.AdminGetAllOrders)
		admin.GET("/orders/:id", h.AdminGetOrder)
		admin.DELETE("/orders/:id", h.AdminDeleteOrder)
		admin.POST("/orders/:id/start", h.StartOrder)
		admin.PUT("/orders/:id/items/:index/preparation", h.SetPreparation)
		admin.PUT("/orders/:id/completed", h.SetCompleted)

		admin.GET("/suggestions", h.AdminGetSuggestions)
	}
}
