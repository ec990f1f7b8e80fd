package http

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers availability and reservation routes.
// createLimiter may be nil.
func RegisterRoutes(g *gin.RouterGroup, h *Handler, authMiddleware, adminMiddleware, createLimiter gin.HandlerFunc) {
	// === Public Routes ===
	g.GET("/resources/:id/availability", h.CheckAvailability)
	g.GET("/resources/:id/slots", h.DaySlots)

	// === Authenticated Routes ===
	group := g.Group("/reservations")
	group.Use(authMiddleware)
	{
		create := []gin.HandlerFunc{h.Create}
		if createLimiter != nil {
			create = append([]gin.HandlerFunc{createLimiter}, create...)
		}
		group.POST("", create...)
		group.GET("", h.List)
		group.GET("/:id", h.Get)
		group.POST("/:id/confirm", h.Confirm)
		group.POST("/:id/cancel", h.Cancel)
		group.POST("/:id/complete", adminMiddleware, h.Complete)
	}
}
