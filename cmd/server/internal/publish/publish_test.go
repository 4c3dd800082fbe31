package publish_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ICEcream2714/ktpm-btl-cs4/cmd/server/internal/bridge"
	"github.com/ICEcream2714/ktpm-btl-cs4/cmd/server/internal/publish"
	"github.com/ICEcream2714/ktpm-btl-cs4/cmd/server/internal/testutils"
	"github.com/ICEcream2714/ktpm-btl-cs4/pkg/models"
)

type recordingHub struct {
	mu     sync.Mutex
	frames map[string][]string
}

func newRecordingHub() *recordingHub {
	return &recordingHub{frames: make(map[string][]string)}
}

func (r *recordingHub) PublishToKey(key string, frame []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames[key] = append(r.frames[key], string(frame))
}

func (r *recordingHub) count(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames[key])
}

func sampleObservation() models.Observation {
	return models.Observation{
		ID:         "9f1b1c2d-0000-4000-8000-000000000001",
		Category:   "Gold",
		Price:      "3250.00",
		ObservedAt: time.Unix(1000, 0).UTC(),
	}
}

func TestDirect_PublishObservation(t *testing.T) {
	h := newRecordingHub()
	direct := publish.NewDirect(bridge.NewFanOut(h, zap.NewNop()))
	obs := sampleObservation()

	if err := direct.PublishObservation(context.Background(), obs); err != nil {
		t.Fatalf("PublishObservation failed: %v", err)
	}

	if h.count(obs.ID) != 1 {
		t.Error("Expected a value_update under the observation id")
	}
	if h.count(obs.Category) != 1 {
		t.Error("Expected a type_update under the category")
	}
}

func TestDirect_PublishTombstone(t *testing.T) {
	h := newRecordingHub()
	direct := publish.NewDirect(bridge.NewFanOut(h, zap.NewNop()))

	if err := direct.PublishTombstone(context.Background(), "Gold", "dead-id"); err != nil {
		t.Fatalf("PublishTombstone failed: %v", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.frames["dead-id"]) != 1 || !strings.Contains(h.frames["dead-id"][0], `"deleted":true`) {
		t.Errorf("Expected tombstone under the id, got %v", h.frames["dead-id"])
	}
	if len(h.frames["Gold"]) != 1 || !strings.Contains(h.frames["Gold"][0], `"deleted":true`) {
		t.Errorf("Expected tombstone under the category, got %v", h.frames["Gold"])
	}
}

func TestKafka_PublishesBothTopics(t *testing.T) {
	updates := &testutils.MockKafkaWriter{}
	types := &testutils.MockKafkaWriter{}
	h := newRecordingHub()
	pub := publish.NewKafka(updates, types, publish.NewDirect(bridge.NewFanOut(h, zap.NewNop())), zap.NewNop())
	obs := sampleObservation()

	if err := pub.PublishObservation(context.Background(), obs); err != nil {
		t.Fatalf("PublishObservation failed: %v", err)
	}

	updates.Mu.Lock()
	if len(updates.Messages) != 1 || string(updates.Messages[0].Key) != obs.ID {
		t.Errorf("Identity topic must be keyed by the observation id, got %+v", updates.Messages)
	}
	var raw models.Observation
	if err := json.Unmarshal(updates.Messages[0].Value, &raw); err != nil || raw.Price != "3250.00" {
		t.Errorf("Identity topic must carry the raw observation: %v", err)
	}
	updates.Mu.Unlock()

	types.Mu.Lock()
	if len(types.Messages) != 1 || string(types.Messages[0].Key) != "Gold" {
		t.Errorf("Category topic must be keyed by the category, got %+v", types.Messages)
	}
	env, err := models.DecodeEnvelope(types.Messages[0].Value)
	if err != nil || env.Item == nil || env.Item.ID != obs.ID {
		t.Errorf("Category topic must carry a {type,item} envelope: %+v err=%v", env, err)
	}
	types.Mu.Unlock()

	// No direct fan-out on the happy path
	if h.count(obs.ID) != 0 || h.count("Gold") != 0 {
		t.Error("Direct fan-out must not fire when the broker accepts the publish")
	}
}

func TestKafka_FallsBackToDirectFanOut(t *testing.T) {
	updates := &testutils.MockKafkaWriter{Err: errors.New("broker unreachable")}
	types := &testutils.MockKafkaWriter{}
	h := newRecordingHub()
	pub := publish.NewKafka(updates, types, publish.NewDirect(bridge.NewFanOut(h, zap.NewNop())), zap.NewNop())
	obs := sampleObservation()

	if err := pub.PublishObservation(context.Background(), obs); err != nil {
		t.Fatalf("Fallback path must not surface the broker error: %v", err)
	}

	// Connected sockets still get both updates, synchronously
	if h.count(obs.ID) != 1 {
		t.Error("Expected direct value_update after broker failure")
	}
	if h.count("Gold") != 1 {
		t.Error("Expected direct type_update after broker failure")
	}
}

func TestKafka_TombstoneFallback(t *testing.T) {
	updates := &testutils.MockKafkaWriter{Err: errors.New("broker unreachable")}
	types := &testutils.MockKafkaWriter{}
	h := newRecordingHub()
	pub := publish.NewKafka(updates, types, publish.NewDirect(bridge.NewFanOut(h, zap.NewNop())), zap.NewNop())

	if err := pub.PublishTombstone(context.Background(), "Gold", "dead-id"); err != nil {
		t.Fatalf("Tombstone fallback failed: %v", err)
	}
	if h.count("dead-id") != 1 || h.count("Gold") != 1 {
		t.Error("Expected direct tombstone fan-out after broker failure")
	}
}
