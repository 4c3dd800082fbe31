package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ICEcream2714/ktpm-btl-cs4/cmd/server/internal/protocol"
	"github.com/ICEcream2714/ktpm-btl-cs4/cmd/server/internal/store"
	"github.com/ICEcream2714/ktpm-btl-cs4/pkg/models"
)

// snapshotLimit bounds the immediate push a category subscriber receives.
const snapshotLimit = 10

type ClientInterface interface {
	ID() string
	SendJSON(v interface{})
	SendBytes(b []byte)
	Close()
}

// SnapshotSource fetches current state for snapshot-on-subscribe pushes.
type SnapshotSource interface {
	FindByID(ctx context.Context, id string) (models.Observation, error)
	FindByCategory(ctx context.Context, category string, limit int) ([]models.Observation, error)
}

// Hub is the subscriber registry: subscription key (an observation id or a
// category name) to the set of live connections interested in it, plus the
// reverse per-connection set for symmetric teardown. It is the only mutable
// shared structure in the pipeline; every mutation goes through its lock, and
// the lock is never held across store or network I/O.
type Hub struct {
	subscribers map[string]map[ClientInterface]bool
	clientSubs  map[ClientInterface]map[string]bool

	store  SnapshotSource
	logger *zap.Logger
	mu     sync.RWMutex
}

func NewHub(store SnapshotSource, logger *zap.Logger) *Hub {
	return &Hub{
		subscribers: make(map[string]map[ClientInterface]bool),
		clientSubs:  make(map[ClientInterface]map[string]bool),
		store:       store,
		logger:      logger,
	}
}

func (h *Hub) HandleCommand(client ClientInterface, req protocol.WSRequest) {
	switch req.Action {
	case protocol.ActionSubscribe:
		h.Subscribe(client, req.Key, req.ID)
	case protocol.ActionUnsubscribe:
		h.Unsubscribe(client, req.Key, req.ID)
	case protocol.ActionUnsubscribeAll:
		h.UnsubscribeAll(client, req.ID)
	default:
		h.sendError(client, req.ID, "Unknown action: "+req.Action)
	}
}

// Subscribe registers the client under key. Adding an already-present pair is
// a no-op. A first-time subscription triggers an immediate snapshot push to
// this client alone so a new viewer never waits for the next broker message.
func (h *Hub) Subscribe(client ClientInterface, key, reqID string) {
	if key == "" {
		h.sendError(client, reqID, "No key provided")
		return
	}

	h.mu.Lock()
	if h.clientSubs[client] != nil && h.clientSubs[client][key] {
		h.mu.Unlock()
		h.sendAck(client, reqID, "Already subscribed to "+key)
		return
	}

	if h.clientSubs[client] == nil {
		h.clientSubs[client] = make(map[string]bool)
	}
	h.clientSubs[client][key] = true

	if h.subscribers[key] == nil {
		h.subscribers[key] = make(map[ClientInterface]bool)
	}
	h.subscribers[key][client] = true
	h.mu.Unlock()

	h.sendAck(client, reqID, "Subscribed to "+key)

	// Snapshot push happens outside the lock; store calls may block.
	go h.pushSnapshot(client, key)
}

func (h *Hub) Unsubscribe(client ClientInterface, key, reqID string) {
	h.mu.Lock()
	subs, ok := h.clientSubs[client]
	if !ok || !subs[key] {
		h.mu.Unlock()
		h.sendError(client, reqID, "Not subscribed to: "+key)
		return
	}
	delete(subs, key)
	h.dropSubscriber(key, client)
	h.mu.Unlock()

	h.sendAck(client, reqID, "Unsubscribed from "+key)
}

func (h *Hub) UnsubscribeAll(client ClientInterface, reqID string) {
	h.mu.Lock()
	if subs, ok := h.clientSubs[client]; ok {
		for key := range subs {
			h.dropSubscriber(key, client)
		}
		// Clear the map but keep the client registered
		h.clientSubs[client] = make(map[string]bool)
	}
	h.mu.Unlock()

	h.sendAck(client, reqID, "Unsubscribed from all keys")
}

// Unregister removes every trace of a disconnected client. Safe to call after
// UnsubscribeAll; cleanup is idempotent.
func (h *Hub) Unregister(client ClientInterface) {
	h.mu.Lock()
	if subs, ok := h.clientSubs[client]; ok {
		for key := range subs {
			h.dropSubscriber(key, client)
		}
		delete(h.clientSubs, client)
	}
	h.mu.Unlock()

	client.Close()
}

// PublishToKey fans a prepared wire frame out to every connection subscribed
// to key. Absent keys drop the message; this is a live-only channel.
func (h *Hub) PublishToKey(key string, frame []byte) {
	h.mu.RLock()
	clients, ok := h.subscribers[key]
	if !ok {
		h.mu.RUnlock()
		return
	}
	targets := make([]ClientInterface, 0, len(clients))
	for client := range clients {
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	for _, client := range targets {
		client.SendBytes(frame)
	}
}

// Empty reports whether the registry holds no subscriptions at all.
func (h *Hub) Empty() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.subscribers) != 0 {
		return false
	}
	for _, subs := range h.clientSubs {
		if len(subs) != 0 {
			return false
		}
	}
	return true
}

// dropSubscriber removes client from key's set and deletes the key entry when
// it empties, keeping registry memory bounded under churn. Caller holds h.mu.
func (h *Hub) dropSubscriber(key string, client ClientInterface) {
	delete(h.subscribers[key], client)
	if len(h.subscribers[key]) == 0 {
		delete(h.subscribers, key)
	}
}

// pushSnapshot sends current state for key to a single freshly subscribed
// client. Identity keys fetch one observation; category keys fetch the newest
// snapshotLimit observations of that category.
func (h *Hub) pushSnapshot(client ClientInterface, key string) {
	ctx := context.Background()

	if uuid.Validate(key) == nil {
		obs, err := h.store.FindByID(ctx, key)
		switch {
		case errors.Is(err, store.ErrNotFound):
			client.SendBytes(protocol.ValueUpdateFrame(mustJSON("No data found for this key")))
		case err != nil:
			h.logger.Error("Snapshot fetch failed", zap.String("key", key), zap.Error(err))
			client.SendBytes(protocol.ValueUpdateFrame(mustJSON("Error fetching data")))
		default:
			client.SendBytes(protocol.ValueUpdateFrame(mustJSON(obs)))
		}
		return
	}

	items, err := h.store.FindByCategory(ctx, key, snapshotLimit)
	if err != nil {
		h.logger.Error("Snapshot fetch failed", zap.String("key", key), zap.Error(err))
		return
	}
	if len(items) == 0 {
		return
	}
	client.SendBytes(protocol.TypeUpdateFrame(mustJSON(models.BulkUpdate(key, items))))
}

func (h *Hub) sendAck(c ClientInterface, id, msg string) {
	c.SendJSON(protocol.WSResponse{Type: "ack", ID: id, Status: "success", Message: msg})
}

func (h *Hub) sendError(c ClientInterface, id, msg string) {
	c.SendJSON(protocol.WSResponse{Type: "error", ID: id, Message: msg})
}

func mustJSON(v interface{}) []byte {
	b, _ := json.Marshal(v)
	return b
}
