package testutils

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/ICEcream2714/ktpm-btl-cs4/cmd/server/internal/protocol"
	"github.com/ICEcream2714/ktpm-btl-cs4/cmd/server/internal/store"
	"github.com/ICEcream2714/ktpm-btl-cs4/pkg/models"
)

// MockClient simulates a connected websocket client
type MockClient struct {
	IDVal    string
	Messages []protocol.WSResponse // Stores decoded control responses
	RawBytes []string              // Stores raw push frames
	Closed   bool
	Mu       sync.Mutex
}

func NewMockClient(id string) *MockClient {
	return &MockClient{IDVal: id, Messages: make([]protocol.WSResponse, 0)}
}

func (m *MockClient) ID() string { return m.IDVal }

func (m *MockClient) Close() {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.Closed = true
}

func (m *MockClient) SendJSON(v interface{}) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if resp, ok := v.(protocol.WSResponse); ok {
		m.Messages = append(m.Messages, resp)
	}
}

func (m *MockClient) SendBytes(b []byte) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	m.RawBytes = append(m.RawBytes, string(b))
}

func (m *MockClient) LastMsgType() string {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if len(m.Messages) == 0 {
		return ""
	}
	return m.Messages[len(m.Messages)-1].Type
}

func (m *MockClient) RawCount() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return len(m.RawBytes)
}

// WaitForRaw polls until the client has received n push frames or the timeout
// expires. Snapshot pushes arrive asynchronously.
func (m *MockClient) WaitForRaw(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if m.RawCount() >= n {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return m.RawCount() >= n
}

// MemStore is an in-memory store.Store for unit tests.
type MemStore struct {
	Mu      sync.Mutex
	Records []models.Observation // insertion order
	FailAll bool                 // force every call to error
}

var _ store.Store = (*MemStore)(nil)

var errStoreDown = errors.New("store unavailable")

func NewMemStore() *MemStore {
	return &MemStore{}
}

func (m *MemStore) Insert(_ context.Context, obs models.Observation) (models.Observation, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.FailAll {
		return models.Observation{}, errStoreDown
	}
	now := time.Now()
	obs.CreatedAt = now
	obs.UpdatedAt = now
	m.Records = append(m.Records, obs)
	return obs, nil
}

func (m *MemStore) FindByID(_ context.Context, id string) (models.Observation, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.FailAll {
		return models.Observation{}, errStoreDown
	}
	for _, obs := range m.Records {
		if obs.ID == id {
			return obs, nil
		}
	}
	return models.Observation{}, store.ErrNotFound
}

func (m *MemStore) FindByCategory(_ context.Context, category string, limit int) ([]models.Observation, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.FailAll {
		return nil, errStoreDown
	}

	var out []models.Observation
	for _, obs := range m.Records {
		if obs.Category == category {
			out = append(out, obs)
		}
	}
	sortNewestFirst(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemStore) AggregateLatestPerCategory(_ context.Context, q store.Query) ([]models.Observation, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.FailAll {
		return nil, errStoreDown
	}

	var filtered []models.Observation
	for _, obs := range m.Records {
		if !q.Until.IsZero() && obs.ObservedAt.After(q.Until) {
			continue
		}
		if q.Category != "" && obs.Category != q.Category {
			continue
		}
		filtered = append(filtered, obs)
	}
	sortNewestFirst(filtered)

	counts := make(map[string]int)
	var out []models.Observation
	for _, obs := range filtered {
		if counts[obs.Category] >= store.LatestPerCategory {
			continue
		}
		counts[obs.Category]++
		out = append(out, obs)
	}
	return out, nil
}

func (m *MemStore) DeleteByID(_ context.Context, id string) (models.Observation, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.FailAll {
		return models.Observation{}, errStoreDown
	}
	for i, obs := range m.Records {
		if obs.ID == id {
			m.Records = append(m.Records[:i], m.Records[i+1:]...)
			return obs, nil
		}
	}
	return models.Observation{}, store.ErrNotFound
}

func sortNewestFirst(obs []models.Observation) {
	sort.SliceStable(obs, func(i, j int) bool {
		return obs[i].ObservedAt.After(obs[j].ObservedAt)
	})
}

// MockPublisher records what the write path published.
type MockPublisher struct {
	Mu           sync.Mutex
	Observations []models.Observation
	Tombstones   []models.TombstoneMsg
	Err          error
}

func (m *MockPublisher) PublishObservation(_ context.Context, obs models.Observation) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Observations = append(m.Observations, obs)
	return nil
}

func (m *MockPublisher) PublishTombstone(_ context.Context, category, id string) error {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Tombstones = append(m.Tombstones, models.TombstoneMsg{Deleted: true, ID: id, Category: category})
	return nil
}
