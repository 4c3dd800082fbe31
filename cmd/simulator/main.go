package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ICEcream2714/ktpm-btl-cs4/cmd/simulator/internal/simulator"
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

	sim := simulator.New(
		logger,
		&http.Client{Timeout: 5 * time.Second},
		cfg.Simulator.ServerURL,
		cfg.Simulator.Categories,
		time.Duration(cfg.Simulator.IntervalMs)*time.Millisecond,
		simulator.RealRand{Rand: rand.New(rand.NewSource(time.Now().UnixNano()))},
		simulator.RealClock{},
	)

	ctx, cancel := context.WithCancel(context.Background())
	go sim.Run(ctx)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("Shutdown signal received")
	cancel()
}
