package config_test

import (
	"testing"

	"github.com/ICEcream2714/ktpm-btl-cs4/pkg/config"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := config.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.App.Port != ":8080" {
		t.Errorf("Expected default port :8080, got %s", cfg.App.Port)
	}
	if cfg.Kafka.UpdateTopic != "market_data" || cfg.Kafka.TypeTopic != "market_data_type" {
		t.Errorf("Unexpected default topics: %s, %s", cfg.Kafka.UpdateTopic, cfg.Kafka.TypeTopic)
	}
	if cfg.Kafka.GroupID == "" {
		t.Error("Expected a default consumer group")
	}
	if len(cfg.Simulator.Categories) == 0 {
		t.Error("Expected default simulator categories")
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("APP_PORT", ":9999")
	t.Setenv("REDIS_ADDR", "redis.internal:6379")
	t.Setenv("KAFKA_ENABLED", "false")

	cfg, err := config.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.App.Port != ":9999" {
		t.Errorf("Expected env override :9999, got %s", cfg.App.Port)
	}
	if cfg.Redis.Addr != "redis.internal:6379" {
		t.Errorf("Expected env override for redis addr, got %s", cfg.Redis.Addr)
	}
	if cfg.Kafka.Enabled {
		t.Error("Expected kafka disabled via env")
	}
}
