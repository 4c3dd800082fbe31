package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gobwas/ws"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ICEcream2714/ktpm-btl-cs4/cmd/server/internal/api"
	"github.com/ICEcream2714/ktpm-btl-cs4/cmd/server/internal/bridge"
	"github.com/ICEcream2714/ktpm-btl-cs4/cmd/server/internal/cache"
	"github.com/ICEcream2714/ktpm-btl-cs4/cmd/server/internal/gateway"
	"github.com/ICEcream2714/ktpm-btl-cs4/cmd/server/internal/hub"
	"github.com/ICEcream2714/ktpm-btl-cs4/cmd/server/internal/ingest"
	"github.com/ICEcream2714/ktpm-btl-cs4/cmd/server/internal/publish"
	"github.com/ICEcream2714/ktpm-btl-cs4/cmd/server/internal/store"
	"github.com/ICEcream2714/ktpm-btl-cs4/pkg/config"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger, err := config.NewLogger(cfg.Logger)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	priceStore, err := store.Connect(ctx, cfg.Postgres.URL, cfg.Postgres.MaxConns)
	if err != nil {
		logger.Fatal("Failed to connect to Postgres", zap.Error(err))
	}
	defer priceStore.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Warn("Redis unavailable at startup, cache degrades to store reads", zap.Error(err))
	}
	defer rdb.Close()

	snapshots := cache.NewSnapshot(rdb, logger)
	wsHub := hub.NewHub(priceStore, logger)
	fanout := bridge.NewFanOut(wsHub, logger)
	direct := publish.NewDirect(fanout)

	var publisher publish.Publisher = direct
	var consumersWG sync.WaitGroup

	if cfg.Kafka.Enabled {
		publish.EnsureTopics(cfg.Kafka.Brokers[0], logger, cfg.Kafka.UpdateTopic, cfg.Kafka.TypeTopic)

		publisher = publish.NewKafka(
			publish.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.UpdateTopic),
			publish.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.TypeTopic),
			direct,
			logger,
		)

		// One consumer per topic, each draining its queue independently.
		consumers := []*bridge.Consumer{
			bridge.NewConsumer("value-updates",
				bridge.NewKafkaReaderFactory(cfg.Kafka.Brokers, cfg.Kafka.UpdateTopic, cfg.Kafka.GroupID),
				fanout.ForwardValue, logger),
			bridge.NewConsumer("type-updates",
				bridge.NewKafkaReaderFactory(cfg.Kafka.Brokers, cfg.Kafka.TypeTopic, cfg.Kafka.GroupID),
				fanout.ForwardType, logger),
		}
		for _, c := range consumers {
			consumersWG.Add(1)
			go func(c *bridge.Consumer) {
				defer consumersWG.Done()
				c.Run(ctx)
			}(c)
		}
	} else {
		logger.Info("Broker disabled, publishing via direct fan-out")
	}

	service := ingest.NewService(priceStore, snapshots, publisher, logger)

	mux := http.NewServeMux()
	api.NewHandler(service, logger).Register(mux)
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, _, _, err := ws.UpgradeHTTP(r, w)
		if err != nil {
			return
		}
		client := gateway.NewClient(conn, wsHub, logger)
		client.Start()
	})

	srv := &http.Server{Addr: cfg.App.Port, Handler: mux}

	go func() {
		logger.Info("Server Started", zap.String("port", cfg.App.Port), zap.Bool("broker", cfg.Kafka.Enabled))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("HTTP Error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("Shutdown signal received")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)

	consumersWG.Wait()
	logger.Info("Shutdown Complete")
}
