package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	v1 "github.com/faelsmg/rx-nation-sub002/cmd/api/router/v1"
	cacheAdapter "github.com/faelsmg/rx-nation-sub002/internal/infrastructure/cache/adapter"
	cacheport "github.com/faelsmg/rx-nation-sub002/internal/infrastructure/cache/port"
	"github.com/faelsmg/rx-nation-sub002/internal/infrastructure/database"
	"github.com/faelsmg/rx-nation-sub002/internal/infrastructure/obs"
	queueAdapter "github.com/faelsmg/rx-nation-sub002/internal/infrastructure/queue/adapter"
	qport "github.com/faelsmg/rx-nation-sub002/internal/infrastructure/queue/port"
	"github.com/faelsmg/rx-nation-sub002/internal/infrastructure/realtime"
	"github.com/faelsmg/rx-nation-sub002/internal/pkg/chat/application/fanout"
	"github.com/faelsmg/rx-nation-sub002/internal/pkg/chat/application/task"
	"github.com/faelsmg/rx-nation-sub002/internal/pkg/chat/application/unread"
	httpHandler "github.com/faelsmg/rx-nation-sub002/internal/pkg/chat/presentation/http"
	repoAdapter "github.com/faelsmg/rx-nation-sub002/internal/pkg/chat/persistence/repository/adapter"
)

func main() {
	// Missing .env is fine; configuration may come from the process environment.
	_ = godotenv.Load()

	env := os.Getenv("APP_ENV")
	logger := obs.NewLogger(env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	pool, err := database.NewPoolFromEnv(connectCtx)
	cancel()
	if err != nil {
		logger.Error("database connect failed", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	repo := repoAdapter.NewPgChatRepository(pool)

	// Redis-backed pieces degrade gracefully: without REDIS_URL the unread
	// cache, the cross-node bridge and the notification queue are skipped and
	// the node serves its own connections only.
	var cache cacheport.Cache
	if rc, err := cacheAdapter.NewRedisAdapter(); err != nil {
		logger.Warn("unread cache disabled", "error", err)
	} else {
		cache = rc
		defer rc.Close()
	}

	router := realtime.NewRouter()
	defer router.Close()

	bridge, err := realtime.NewBridgeFromEnv(router, logger)
	if err != nil {
		logger.Warn("cross-node bridge disabled", "error", err)
		bridge = nil
	} else {
		defer bridge.Close()
		go func() {
			if err := bridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("bridge stopped", "error", err)
			}
		}()
	}

	var queueClient qport.Client
	if qc, err := queueAdapter.NewAsynqClientFromEnv(); err != nil {
		logger.Warn("notification queue disabled", "error", err)
	} else {
		queueClient = qc
		defer qc.Close()
	}

	tracker := unread.NewTracker(repo, cache, logger)
	fo := fanout.New(router, bridge, queueClient, tracker, repo, logger)

	if queueClient != nil {
		srv, err := queueAdapter.NewAsynqServer()
		if err != nil {
			logger.Warn("notification worker disabled", "error", err)
		} else {
			// No push provider is configured yet; log the delivery intent so the
			// pipeline is observable end to end.
			notify := func(ctx context.Context, userID string, p task.NotifyMessagePayload) error {
				logger.Info("push notification",
					"user_id", userID, "message_id", p.MessageID, "sender", p.SenderName)
				return nil
			}
			task.RegisterNotifyMessageTask(srv, pool, router, notify, logger)
			go func() {
				if err := srv.Run(ctx); err != nil {
					logger.Error("notification worker stopped", "error", err)
				}
			}()
		}
	}

	if env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		hctx, hcancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer hcancel()
		if err := pool.Ping(hctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": err.Error()})
			return
		}
		if cache != nil {
			if err := cache.Ping(hctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "cache": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1.RegisterRoutes(r, httpHandler.Deps{
		Pool:    pool,
		Router:  router,
		Fanout:  fo,
		Tracker: tracker,
		Logger:  logger,
	})

	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	server := &http.Server{Addr: addr, Handler: r}

	go func() {
		logger.Info("api listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
}
