// Package main runs the live webinar HTTP and WebSocket server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-webinar/live/config"
	"github.com/aura-webinar/live/internal/auth"
	"github.com/aura-webinar/live/internal/chat"
	"github.com/aura-webinar/live/internal/lifecycle"
	"github.com/aura-webinar/live/internal/middleware"
	"github.com/aura-webinar/live/internal/models"
	"github.com/aura-webinar/live/internal/presence"
	"github.com/aura-webinar/live/internal/ratelimit"
	"github.com/aura-webinar/live/internal/realtime"
	"github.com/aura-webinar/live/internal/rooms"
	"github.com/aura-webinar/live/internal/sessionlog"
	"github.com/aura-webinar/live/internal/signaling"
	"github.com/aura-webinar/live/internal/webinars"
	"github.com/aura-webinar/live/internal/worker"
	"github.com/aura-webinar/live/pkg/database"
	"github.com/aura-webinar/live/pkg/queue"
	"github.com/aura-webinar/live/pkg/redis"
	"github.com/aura-webinar/live/pkg/response"
	"github.com/aura-webinar/live/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	logger = logger.With(zap.String("instance", cfg.Server.InstanceID))

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, database.PoolOptions{
		DSN:             cfg.Database.DSN(),
		MaxConns:        int32(cfg.Database.MaxConns),
		ApplicationName: "live-server/" + cfg.Server.InstanceID,
	}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
		Name:     "live-server/" + cfg.Server.InstanceID,
	}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	s3Cfg := storage.S3Config{
		Region:               cfg.AWS.Region,
		AccessKeyID:          cfg.AWS.AccessKeyID,
		SecretAccessKey:      cfg.AWS.SecretAccessKey,
		TranscriptsBucket:    cfg.AWS.TranscriptsBucket,
		PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
	}
	if s3Cfg.Enabled() {
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	// Auth
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, logger)
	authenticator := auth.NewAuthenticator(jwtService, authRepo)

	// Cross-instance fan-out
	bridge := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(cfg.Server.InstanceID, bridge, bridge, logger)
	if err := hub.Start(); err != nil {
		logger.Fatal("instance subscription", zap.Error(err))
	}

	// Room services
	presenceStore := presence.NewStore(rdb.Client, logger)
	limiter := ratelimit.NewLimiter(rdb.Client, logger)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	sessionLogRepo := sessionlog.NewRepository(pool)
	attendance := sessionlog.NewQueuedRecorder(jobQueue, sessionLogRepo, logger)

	webinarRepo := webinars.NewRepository(pool, cfg.Room.DefaultCapacity)
	life := lifecycle.New(webinarRepo, presenceStore, attendance, hub, logger)
	life.SetEndedHook(func(ctx context.Context, roomID string) {
		err := jobQueue.EnqueueTranscript(ctx, queue.TranscriptPayload{RoomID: roomID, EndedAt: time.Now().UTC()})
		if err != nil {
			logger.Warn("enqueue transcript", zap.String("room_id", roomID), zap.Error(err))
		}
	})

	chatChannel := chat.NewChannel(rdb.Client, life, limiter, hub, chat.Config{
		RateLimit:  cfg.Room.ChatRateLimit,
		RateWindow: cfg.Room.ChatRateWindow,
		Retention:  cfg.Room.ChatRetention,
		MaxLength:  cfg.Room.ChatMaxLength,
	}, logger)
	relay := signaling.NewRelay(presenceStore, hub, limiter, cfg.Room.RelayRateLimit, cfg.Room.RelayRateWindow, logger)

	iceServers := cfg.WebRTC.ICEServers()
	gateway := realtime.NewGateway(realtime.Deps{
		Auth:       authenticator,
		Hub:        hub,
		Presence:   presenceStore,
		Chat:       chatChannel,
		Relay:      relay,
		Lifecycle:  life,
		Limiter:    limiter,
		Attendance: attendance,
	}, realtime.Config{
		DefaultCapacity:    cfg.Room.DefaultCapacity,
		HistoryLimit:       cfg.Room.ChatHistoryLimit,
		ReactionRateLimit:  cfg.Room.ReactionRateLimit,
		ReactionRateWindow: cfg.Room.ReactionRateWindow,
		TouchInterval:      cfg.Room.PresenceTTL / 3,
		ICEServers:         iceServers,
		CheckOrigin:        middleware.WebSocketOrigin(cfg.Server.CORSAllowedOrigins),
	}, logger)

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	reaper := presence.NewReaper(presenceStore, cfg.Room.PresenceTTL, cfg.Room.ReaperInterval, gateway.OnReap, logger)
	go reaper.Run(bgCtx)

	if cfg.Server.EmbeddedWorker {
		var uploader worker.Uploader
		if s3Client != nil {
			uploader = s3Client
		}
		processor := worker.NewProcessor(sessionLogRepo, chatChannel, uploader, jobQueue,
			cfg.Room.ChatRetention, cfg.Room.ChatTTLAfterEnd, logger)
		go processor.Run(bgCtx)
		logger.Info("embedded worker started")
	}

	// HTTP handlers
	webinarHandler := webinars.NewHandler(webinarRepo, life)
	sessionLogHandler := sessionlog.NewHandler(sessionLogRepo, webinarRepo)
	var transcripts rooms.Transcripts
	if s3Client != nil {
		transcripts = s3Client
	}
	roomHandler := rooms.NewHandler(presenceStore, chatChannel, life, transcripts, iceServers)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	// presence, chat and fan-out all live in Redis; without it no room works
	router.GET("/health", func(c *gin.Context) {
		if err := rdb.Healthy(c.Request.Context()); err != nil {
			response.ServiceUnavailable(c, "redis unavailable")
			return
		}
		response.OK(c, gin.H{"status": "ok", "instance": cfg.Server.InstanceID})
	})

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.GET("/auth/me", authHandler.Me)
		api.GET("/ice-servers", roomHandler.ICEServers)

		// Webinars
		api.POST("/webinars", middleware.RequireRole(models.RoleAdmin, models.RoleSpeaker), webinarHandler.Create)
		api.GET("/webinars/:id", webinarHandler.GetByID)
		api.POST("/webinars/:id/speakers", webinarHandler.AddSpeaker)
		api.POST("/webinars/:id/start", webinarHandler.Start)
		api.POST("/webinars/:id/end", webinarHandler.End)
		api.GET("/webinars/:id/attendees", middleware.RequireRole(models.RoleAdmin, models.RoleSpeaker), sessionLogHandler.GetAttendees)

		// Rooms
		api.GET("/rooms/:id/participants", roomHandler.Participants)
		api.GET("/rooms/:id/messages", roomHandler.Messages)
		api.GET("/rooms/:id/transcript", roomHandler.Transcript)
	}

	// WebSocket (token in query or Authorization header)
	router.GET("/ws", gateway.ServeWs)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	// hijacked WebSocket connections are not tracked by http.Server
	if err := gateway.Shutdown(shutdownCtx); err != nil {
		logger.Error("gateway shutdown", zap.Error(err))
	}
	bgCancel()
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
