package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ICEcream2714/ktpm-btl-cs4/cmd/server/internal/api"
	"github.com/ICEcream2714/ktpm-btl-cs4/cmd/server/internal/cache"
	"github.com/ICEcream2714/ktpm-btl-cs4/cmd/server/internal/ingest"
	"github.com/ICEcream2714/ktpm-btl-cs4/cmd/server/internal/testutils"
	"github.com/ICEcream2714/ktpm-btl-cs4/pkg/models"
)

func startAPI(t *testing.T) (*httptest.Server, *testutils.MemStore, *testutils.MockPublisher) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	st := testutils.NewMemStore()
	pub := &testutils.MockPublisher{}

	svc := ingest.NewService(st, cache.NewSnapshot(rdb, zap.NewNop()), pub, zap.NewNop())

	mux := http.NewServeMux()
	api.NewHandler(svc, zap.NewNop()).Register(mux)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, st, pub
}

func postObservation(t *testing.T, url, category, price string) *http.Response {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"category": category, "price": price})
	resp, err := http.Post(url+"/market-data", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	return resp
}

func TestCreate_Returns201WithIdentity(t *testing.T) {
	server, _, pub := startAPI(t)

	resp := postObservation(t, server.URL, "Gold", "3250.00")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}

	var obs models.Observation
	if err := json.NewDecoder(resp.Body).Decode(&obs); err != nil {
		t.Fatalf("Invalid response body: %v", err)
	}
	if obs.ID == "" || obs.Category != "Gold" || obs.Price != "3250.00" {
		t.Errorf("Unexpected observation: %+v", obs)
	}

	pub.Mu.Lock()
	defer pub.Mu.Unlock()
	if len(pub.Observations) != 1 {
		t.Error("Expected the new observation to be published")
	}
}

func TestCreate_Validation400(t *testing.T) {
	server, st, _ := startAPI(t)

	cases := []map[string]string{
		{"category": "", "price": "10.00"},
		{"category": "Gold", "price": "ten dollars"},
	}
	for _, c := range cases {
		body, _ := json.Marshal(c)
		resp, err := http.Post(server.URL+"/market-data", "application/json", bytes.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("Expected 400 for %v, got %d", c, resp.StatusCode)
		}
	}

	st.Mu.Lock()
	defer st.Mu.Unlock()
	if len(st.Records) != 0 {
		t.Error("Invalid requests must not persist anything")
	}
}

func TestCreate_StoreDown500(t *testing.T) {
	server, st, _ := startAPI(t)
	st.FailAll = true

	resp := postObservation(t, server.URL, "Gold", "3250.00")
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("Expected 500 on store failure, got %d", resp.StatusCode)
	}
}

func TestList_EmptyIs404(t *testing.T) {
	server, _, _ := startAPI(t)

	resp, err := http.Get(server.URL + "/market-data")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for empty result, got %d", resp.StatusCode)
	}

	var body map[string]string
	json.NewDecoder(resp.Body).Decode(&body)
	if body["message"] == "" {
		t.Error("Expected a message body on 404")
	}
}

func TestList_ReturnsLatestPerCategory(t *testing.T) {
	server, _, _ := startAPI(t)

	postObservation(t, server.URL, "Gold", "3250.00").Body.Close()
	postObservation(t, server.URL, "Silver", "41.20").Body.Close()

	resp, err := http.Get(server.URL + "/market-data")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var data []models.Observation
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		t.Fatalf("Invalid list body: %v", err)
	}
	if len(data) != 2 {
		t.Errorf("Expected 2 entries, got %d", len(data))
	}
}

func TestList_CategoryFilter(t *testing.T) {
	server, _, _ := startAPI(t)

	postObservation(t, server.URL, "Gold", "3250.00").Body.Close()
	postObservation(t, server.URL, "Silver", "41.20").Body.Close()

	resp, err := http.Get(server.URL + "/market-data?category=Gold")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var data []models.Observation
	json.NewDecoder(resp.Body).Decode(&data)
	if len(data) != 1 || data[0].Category != "Gold" {
		t.Errorf("Expected only Gold entries, got %+v", data)
	}
}

func TestList_BadDayParams400(t *testing.T) {
	server, _, _ := startAPI(t)

	resp, err := http.Get(server.URL + "/market-data?day=3&month=abc&year=2026")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed day triple, got %d", resp.StatusCode)
	}
}

func TestDelete_FullCycle(t *testing.T) {
	server, _, pub := startAPI(t)

	resp := postObservation(t, server.URL, "Gold", "3250.00")
	var obs models.Observation
	json.NewDecoder(resp.Body).Decode(&obs)
	resp.Body.Close()

	req, _ := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/market-data/%s", server.URL, obs.ID), nil)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer delResp.Body.Close()
	if delResp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", delResp.StatusCode)
	}

	var body struct {
		Message     string             `json:"message"`
		DeletedData models.Observation `json:"deletedData"`
	}
	if err := json.NewDecoder(delResp.Body).Decode(&body); err != nil {
		t.Fatalf("Invalid delete body: %v", err)
	}
	if body.DeletedData.ID != obs.ID {
		t.Errorf("Expected deleted record %s, got %s", obs.ID, body.DeletedData.ID)
	}

	pub.Mu.Lock()
	defer pub.Mu.Unlock()
	if len(pub.Tombstones) != 1 || pub.Tombstones[0].ID != obs.ID {
		t.Error("Expected a tombstone publish for the deleted record")
	}
}

func TestDelete_Missing404(t *testing.T) {
	server, _, _ := startAPI(t)

	req, _ := http.NewRequest(http.MethodDelete, server.URL+"/market-data/ghost", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}
