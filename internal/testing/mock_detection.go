// mock_detection.go - stand-in for the remote object detection service
package testing

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"stockscan/internal/detection"
)

// MockDetectionService serves POST /api/detect and GET /health.
type MockDetectionService struct {
	Server *httptest.Server
	mu     sync.RWMutex

	// Configuration for failure simulation
	ShouldFail           bool   // answer 500 "server error"
	ReturnEmpty          bool   // answer []
	RawResponse          string // sent verbatim when set
	Unhealthy            bool
	SimulateNetworkDelay time.Duration
	Results              []detection.Result

	// Counters for tracking
	DetectAttempts int
	LastImage      string
}

func NewMockDetectionService() *MockDetectionService {
	mock := &MockDetectionService{
		Results: []detection.Result{{Name: "Chair", Quantity: 3, Confidence: 0.92}},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/detect", mock.handleDetect)
	mux.HandleFunc("GET /health", mock.handleHealth)

	mock.Server = httptest.NewServer(mux)
	return mock
}

func (m *MockDetectionService) Close() {
	m.Server.Close()
}

// Endpoint returns the detect URL to configure the client with.
func (m *MockDetectionService) Endpoint() string {
	return m.Server.URL + "/api/detect"
}

// Configure applies fn under the lock.
func (m *MockDetectionService) Configure(fn func(m *MockDetectionService)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m)
}

func (m *MockDetectionService) Attempts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.DetectAttempts
}

// LastPayload returns the image of the most recent request.
func (m *MockDetectionService) LastPayload() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.LastImage
}

func (m *MockDetectionService) handleDetect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Image string `json:"image"`
	}
	decodeErr := json.NewDecoder(r.Body).Decode(&req)

	m.mu.Lock()
	m.DetectAttempts++
	m.LastImage = req.Image
	shouldFail, empty, raw := m.ShouldFail, m.ReturnEmpty, m.RawResponse
	delay := m.SimulateNetworkDelay
	results := append([]detection.Result(nil), m.Results...)
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}

	if decodeErr != nil || req.Image == "" {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "No image provided"})
		return
	}
	if shouldFail {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte("server error"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	switch {
	case raw != "":
		w.Write([]byte(raw))
	case empty:
		w.Write([]byte("[]"))
	default:
		json.NewEncoder(w).Encode(results)
	}
}

func (m *MockDetectionService) handleHealth(w http.ResponseWriter, r *http.Request) {
	m.mu.RLock()
	unhealthy := m.Unhealthy
	m.mu.RUnlock()

	if unhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}
