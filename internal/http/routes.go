package http

import (
	"nftflip/internal/config"
	"nftflip/internal/http/handlers"
	"nftflip/internal/http/middleware"
	"nftflip/internal/service"
	"nftflip/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes wires the REST surface, the websocket entrypoint and
// the metrics endpoint onto the gin engine. The hub is built by the
// caller so background jobs can share it.
func RegisterRoutes(r *gin.Engine, db *pgxpool.Pool, hub *ws.Hub, promotion *service.PromotionService, cfg *config.Config, version string) {
	h := handlers.NewHandler(db, promotion)
	healthHandler := handlers.NewHealthHandler(db, version)

	// Health checks (no rate limiting)
	r.GET("/health", healthHandler.Health)
	r.GET("/healthz", healthHandler.Liveness)
	r.GET("/readyz", healthHandler.Readiness)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	v1.Use(middleware.RedisRateLimit(cfg.APIRateLimit, cfg.APIRateWindow))

	v1.POST("/auth", h.Auth)

	v1.GET("/matches", h.ListMatches)
	v1.GET("/matches/:id", h.GetMatch)

	// Offer writes are limited per wallet, not per IP
	writeRL := middleware.IdentityRateLimit(cfg.APIRateLimit, cfg.APIRateWindow)
	v1.POST("/offers", middleware.JWT(), writeRL, h.CreateOffer)
	v1.POST("/offers/:id/accept", middleware.JWT(), writeRL, h.AcceptOffer)

	// WebSocket for live matches
	r.GET("/ws", ws.HandleWS(hub, cfg.AllowedOrigin))
}
