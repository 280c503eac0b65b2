package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/fathima-sithara/messaging-service/internal/api"
	"github.com/fathima-sithara/messaging-service/internal/auth"
	"github.com/fathima-sithara/messaging-service/internal/config"
	"github.com/fathima-sithara/messaging-service/internal/dedup"
	"github.com/fathima-sithara/messaging-service/internal/engine"
	"github.com/fathima-sithara/messaging-service/internal/events"
	"github.com/fathima-sithara/messaging-service/internal/kafka"
	"github.com/fathima-sithara/messaging-service/internal/logger"
	"github.com/fathima-sithara/messaging-service/internal/metrics"
	"github.com/fathima-sithara/messaging-service/internal/repository"
	"github.com/fathima-sithara/messaging-service/internal/ws"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	zl, err := logger.New(logger.Config{Development: cfg.App.Development()})
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	metrics.Init()

	mc, err := repository.NewMongoClient(cfg)
	if err != nil {
		zl.Fatalw("mongo init", "err", err)
	}
	defer func() { _ = mc.Disconnect(context.Background()) }()
	db := mc.Database(cfg.Mongo.DB)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	msgRepo := repository.NewMessageRepository(db)
	convRepo := repository.NewConversationRepository(db)
	guard := dedup.NewGuard(rdb, cfg.Dedup.TTLDuration(), zl)

	kprod := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	pub := events.NewPublisher(kprod, zl)

	eng := engine.New(msgRepo, convRepo, guard, pub, zl)

	jv, err := auth.NewJWTValidator(&cfg.JWT)
	if err != nil {
		zl.Fatalw("jwt init", "err", err)
	}

	wsrv := ws.NewServer(convRepo, zl)

	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	kcons := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID, zl)
	go kcons.Start(consumerCtx, wsrv.HandleEvent)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		if err := http.ListenAndServe(":9090", mux); err != nil {
			zl.Warnw("metrics listener stopped", "err", err)
		}
	}()

	app := api.NewServer(eng, wsrv, jv, zl)

	go func() {
		if err := app.Listen(":" + cfg.App.PortString()); err != nil {
			zl.Fatalw("server listen", "err", err)
		}
	}()
	zl.Infow("messaging-service started", "port", cfg.App.PortString())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = app.ShutdownWithContext(ctx)
	stopConsumer()
	_ = kcons.Close(ctx)
	pub.Close()
	_ = kprod.Close(ctx)
	zl.Infow("messaging-service stopped")
}
