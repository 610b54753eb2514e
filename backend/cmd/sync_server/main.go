package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"syncServer/backend/internal/cache"
	"syncServer/backend/internal/collab"
	"syncServer/backend/internal/httpapi/handlers"
	"syncServer/backend/internal/presence"
	"syncServer/backend/internal/ws"
)

type SyncConfig struct {
	Running struct {
		Port int `mapstructure:"Port"`
	} `mapstructure:"Running"`
	Redis struct {
		Addrs    []string `mapstructure:"addrs"`
		Password string   `mapstructure:"password"`
	} `mapstructure:"Redis"`
	Kafka struct {
		Brokers []string `mapstructure:"brokers"`
		Topic   string   `mapstructure:"topic"`
	} `mapstructure:"Kafka"`
	Presence struct {
		WindowSeconds int `mapstructure:"windowSeconds"`
	} `mapstructure:"Presence"`
}

func initConfig() (*SyncConfig, error) {
	cfg := &SyncConfig{}
	v := viper.New()
	v.SetConfigName("syncConfig")
	v.SetConfigType("yaml")
	v.AddConfigPath("./backend/config")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := initConfig()
	if err != nil {
		logger.Error("init config failed", "error", err)
		os.Exit(1)
	}

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    cfg.Redis.Addrs,
		Password: cfg.Redis.Password,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.Error("redis unreachable", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()
	store := cache.NewRedisStore(rdb)

	// Kafka fan-out is optional: no brokers, no dispatcher.
	var dispatcher *collab.Dispatcher
	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.Topic != "" {
		kafkaCfg := sarama.NewConfig()
		kafkaCfg.Producer.Return.Successes = true
		kafkaCfg.Producer.RequiredAcks = sarama.WaitForLocal
		producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, kafkaCfg)
		if err != nil {
			logger.Error("kafka unreachable", "error", err)
			os.Exit(1)
		}
		defer producer.Close()
		dispatcher = collab.NewDispatcher(producer, cfg.Kafka.Topic, logger, collab.DispatcherOptions{
			QueueSize:   10_000,
			Workers:     4,
			MaxRetry:    3,
			BaseBackoff: 50 * time.Millisecond,
			MaxBackoff:  time.Second,
		})
		defer dispatcher.Close()
	}

	window := time.Duration(cfg.Presence.WindowSeconds) * time.Second
	registry := presence.NewRegistry(store, logger, window)
	cursors := presence.NewCursors(store, logger)
	engine := collab.NewEngine(store, logger, dispatcher)
	hub := ws.NewHub()
	manager := ws.NewManager(hub, engine, registry, cursors, logger)

	sweeper := presence.NewSweeper(store, logger, registry.Window(), presence.DefaultSweepInterval)
	sweeper.Start()
	defer sweeper.Stop()

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	collabGroup := r.Group("/collab")
	collabGroup.GET("/ws", manager.WebSocketConnect)
	collabGroup.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})

	presenceHandler := handlers.NewPresenceHandler(registry)
	presenceGroup := r.Group("/presence")
	presenceGroup.GET("/users/:userId", presenceHandler.GetUserPresence)
	presenceGroup.GET("/documents/:documentId", presenceHandler.GetDocumentPresence)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Running.Port),
		Handler: r,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("sync server started", "port", cfg.Running.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
	}
}
