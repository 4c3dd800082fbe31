package publish

import (
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestReportTopicCreation(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core)
	topics := []string{"market_data", "market_data_type"}

	reportTopicCreation(logger, topics, nil)
	if logs.Len() != 0 {
		t.Errorf("Success must log nothing, got %v", logs.All())
	}

	reportTopicCreation(logger, topics, kafka.TopicAlreadyExists)
	if n := logs.FilterLevelExact(zap.DebugLevel).Len(); n != 1 {
		t.Errorf("Redeclaration should be debug noise only, got %d debug entries", n)
	}

	reportTopicCreation(logger, topics, errors.New("dial tcp: connection refused"))
	warns := logs.FilterLevelExact(zap.WarnLevel)
	if warns.Len() != 1 {
		t.Fatalf("Unreachable controller must be warned about, got %d warn entries", warns.Len())
	}
	if warns.All()[0].Message != "Topic creation failed" {
		t.Errorf("Unexpected warn message: %s", warns.All()[0].Message)
	}
}
