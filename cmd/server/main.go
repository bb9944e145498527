package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fitrank/backend/internal/auth"
	"fitrank/backend/internal/config"
	"fitrank/backend/internal/database"
	"fitrank/backend/internal/friends"
	"fitrank/backend/internal/handler"
	"fitrank/backend/internal/hub"
	"fitrank/backend/internal/logging"
	"fitrank/backend/internal/metrics"
	"fitrank/backend/internal/outbox"
	"fitrank/backend/internal/presence"
	"fitrank/backend/internal/progress"
	"fitrank/backend/internal/socket"
	"fitrank/backend/internal/store"

	"github.com/gin-gonic/gin"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func init() {
	config.LoadConfig()
}

// @title           Fitrank API
// @version         1.0
// @description     Friends, presence, notifications and workout progress for the Fitrank app.
// @host            localhost:8080
// @BasePath        /api/v1
// @securityDefinitions.apiKey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg := config.AppConfig
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DatabaseURL, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}

	mirror := presence.Mirror(presence.Nop{})
	if cfg.RedisURL != "" {
		m, err := presence.NewRedisMirror(context.Background(), cfg.RedisURL)
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to redis")
		}
		mirror = m
		log.Info("Presence mirror enabled.")
	}
	defer mirror.Close()

	rel := store.New()
	h := hub.New(store.Hydrator{DB: db, Relations: rel}, log)
	ob := outbox.New(db, h, log)
	fs := friends.NewService(db, rel, ob, h, log)
	ps := progress.NewService(db, rel, ob, log)

	pruner, err := outbox.NewPruner(ob, cfg.EventPruneSchedule, cfg.EventRetention, log)
	if err != nil {
		log.WithError(err).Fatal("Invalid event prune schedule")
	}
	pruner.Start()

	ws := socket.NewHandler(cfg.JWTSecret, h, fs, ob, mirror, socket.Options{
		AckTimeout:  cfg.WSAckTimeout,
		SendBuffer:  cfg.WSSendBuffer,
		RateLimit:   cfg.WSRateLimit,
		RateBurst:   cfg.WSRateBurst,
		ReplayLimit: cfg.InitialReplayLimit,
	}, log)

	router := gin.Default()

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
			"online":  h.OnlineCount(),
		})
	})
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/ws", ws.Serve)

	apiV1 := router.Group("/api/v1")
	apiV1.Use(auth.AuthMiddleware(cfg.JWTSecret))
	handler.New(fs, ob, ps, log).Register(apiV1)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.WithField("addr", srv.Addr).Info("Server is running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Server shutdown failed")
	}
	pruner.Stop(ctx)
}
