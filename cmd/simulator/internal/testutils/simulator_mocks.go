package testutils

import (
	"net/http"
	"sync"
	"time"
)

// MockClock advances instantly on Sleep
type MockClock struct {
	Mu          sync.Mutex
	CurrentTime time.Time
}

func (c *MockClock) Now() time.Time {
	c.Mu.Lock()
	defer c.Mu.Unlock()
	return c.CurrentTime
}

func (c *MockClock) Sleep(d time.Duration) {
	c.Mu.Lock()
	c.CurrentTime = c.CurrentTime.Add(d)
	c.Mu.Unlock()
	// Yield so the surrounding context has a chance to cancel
	time.Sleep(time.Millisecond)
}

// MockRand returns fixed values
type MockRand struct {
	ValInt   int
	ValFloat float64
}

func (r *MockRand) Intn(n int) int {
	if r.ValInt >= n {
		return n - 1
	}
	return r.ValInt
}

func (r *MockRand) Float64() float64 { return r.ValFloat }

// MockHTTPClient records requests and answers with a fixed status
type MockHTTPClient struct {
	Mu       sync.Mutex
	Requests []*http.Request
	Bodies   []string
	Status   int
	Err      error
}

func (m *MockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}

	var body string
	if req.Body != nil {
		buf := make([]byte, 4096)
		n, _ := req.Body.Read(buf)
		body = string(buf[:n])
		req.Body.Close()
	}
	m.Requests = append(m.Requests, req)
	m.Bodies = append(m.Bodies, body)

	status := m.Status
	if status == 0 {
		status = http.StatusCreated
	}
	return &http.Response{StatusCode: status, Body: http.NoBody}, nil
}

func (m *MockHTTPClient) RequestCount() int {
	m.Mu.Lock()
	defer m.Mu.Unlock()
	return len(m.Requests)
}
