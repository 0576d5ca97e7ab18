package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"nftflip/internal/config"
	"nftflip/internal/db"
	"nftflip/internal/escrow"
	httpServer "nftflip/internal/http"
	"nftflip/internal/http/middleware"
	"nftflip/internal/logger"
	"nftflip/internal/match"
	"nftflip/internal/repository"
	"nftflip/internal/service"
	"nftflip/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/go-co-op/gocron/v2"
	redis "github.com/redis/go-redis/v9"
)

var version = "dev"

func main() {
	logger.Init(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_JSON") == "true")

	cfg := config.Load()
	service.InitJWT()

	dbPool := db.Connect(cfg.DatabaseURL)
	defer dbPool.Close()

	var presence *redis.Client
	if cfg.RedisAddr != "" {
		presence = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := presence.Ping(pingCtx).Err(); err != nil {
			logger.Warn("redis unavailable, presence disabled", "error", err)
			presence = nil
		}
		cancel()
	}
	middleware.InitRedisRateLimiter(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	matchRepo := repository.NewMatchRepository(dbPool)
	offerRepo := repository.NewOfferRepository(dbPool)
	payoutRepo := repository.NewPayoutRepository(dbPool)
	eventRepo := repository.NewRoomEventRepository(dbPool)

	var esc escrow.Escrow = escrow.Noop{}
	if cfg.EscrowEndpoint != "" {
		esc = escrow.NewHTTPEscrow(cfg.EscrowEndpoint)
	}

	engine := match.NewEngine(match.NewCryptoRng(), match.Config{
		ChoiceTimeout: cfg.ChoiceTimeout,
		ChargeTimeout: cfg.ChargeTimeout,
	})

	hub := ws.NewHub(ws.Deps{
		Matches:  matchRepo,
		Events:   eventRepo,
		Payouts:  payoutRepo,
		Escrow:   esc,
		Engine:   engine,
		Presence: presence,
	})

	promotion := service.NewPromotionService(offerRepo, matchRepo, hub, cfg.DepositWindow)

	payoutWorker, err := escrow.NewWorker(payoutRepo, esc, 30*time.Second)
	if err != nil {
		logger.Fatal("payout worker init failed", "error", err)
	}
	if err := payoutWorker.Start(); err != nil {
		logger.Fatal("payout worker start failed", "error", err)
	}
	defer payoutWorker.Stop()

	jobs, err := gocron.NewScheduler()
	if err != nil {
		logger.Fatal("job scheduler init failed", "error", err)
	}
	if _, err := jobs.NewJob(
		gocron.DurationJob(time.Minute),
		gocron.NewTask(hub.SweepRooms),
	); err != nil {
		logger.Fatal("room sweep job failed", "error", err)
	}
	jobs.Start()
	defer func() { _ = jobs.Shutdown() }()

	r := gin.Default()

	// CORS for the frontend on a different domain
	r.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin != "" && (cfg.AllowedOrigin == "" || cfg.AllowedOrigin == origin) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
			c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
			c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		}
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})

	httpServer.RegisterRoutes(r, dbPool, hub, promotion, cfg, version)

	srv := &http.Server{
		Addr:    ":" + cfg.AppPort,
		Handler: r,
	}

	go func() {
		logger.Info("server started", "port", cfg.AppPort, "version", version)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", "error", err)
	}

	logger.Info("server exited")
}
