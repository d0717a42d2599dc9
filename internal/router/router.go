// Package router wires HTTP routes to their handlers and middleware.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/moyeora/group-order/internal/config"
	"github.com/moyeora/group-order/internal/handler"
	"github.com/moyeora/group-order/internal/middleware"
	"github.com/moyeora/group-order/internal/model"
)

// Register wires every route of the coordination service.  The public
// meeting listing and detail endpoints are unauthenticated and sit
// behind the Redis response cache; everything that mutates state
// requires a valid access token, and store/rider endpoints are
// additionally role-gated.  The rate limiter covers all /v1 traffic.
func Register(
	e *echo.Echo,
	m *handler.MeetingHandler,
	o *handler.OrderHandler,
	p *handler.PointHandler,
	jwtSecret string,
	rdb *redis.Client,
) {
	e.GET("/healthz", handler.Health)

	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
	cache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb)

	// Public browse endpoints.  Listings are advisory snapshots, so
	// serving them from cache is safe.
	e.GET("/v1/meetings", m.List, limiter, cache)
	e.GET("/v1/meetings/:id", m.Detail, limiter, cache)

	auth := e.Group("/v1", limiter, middleware.JWTAuth(jwtSecret))

	// Member-facing meeting lifecycle.
	user := auth.Group("", middleware.RequireRole(model.RoleUser, model.RoleAdmin))
	user.POST("/meetings", m.Create)
	user.POST("/meetings/:id/join", m.Join)
	user.POST("/meetings/:id/order", m.ProcessOrder)
	user.POST("/meetings/:id/complete", m.Complete)
	user.GET("/meetings/:id/payments", m.Payments)
	user.DELETE("/order-items/:id", m.CancelItem)
	user.GET("/points/history", p.History)

	// Store-owner order progress.
	business := auth.Group("", middleware.RequireRole(model.RoleBusiness, model.RoleAdmin))
	business.GET("/stores/:id/orders", o.StoreOrders)
	business.POST("/orders/:id/approve", o.Approve)
	business.POST("/orders/:id/reject", o.Reject)
	business.POST("/orders/:id/cooked", o.Cooked)
	business.POST("/orders/:id/delay", o.Delay)

	// Rider dispatch and delivery.
	rider := auth.Group("", middleware.RequireRole(model.RoleRider, model.RoleAdmin))
	rider.GET("/deliveries", o.Dispatchable)
	rider.POST("/orders/:id/accept-delivery", o.AcceptDelivery)
	rider.POST("/orders/:id/complete-delivery", o.CompleteDelivery)
}
