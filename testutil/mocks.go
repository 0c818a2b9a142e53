package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

// MockBotServer creates a test server that mocks hosted bot API responses
type MockBotServer struct {
	*httptest.Server
	Handlers map[string]http.HandlerFunc
	Requests atomic.Int64 // total requests served, for call-count assertions
}

// NewMockBotServer creates a new mock bot API server
func NewMockBotServer(t *testing.T) *MockBotServer {
	t.Helper()
	m := &MockBotServer{
		Handlers: make(map[string]http.HandlerFunc),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.Requests.Add(1)
		key := r.URL.Path
		if handler, ok := m.Handlers[key]; ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// MockChatResponse adds a handler for /api/bot/chat/ returning the given messages.
func (m *MockBotServer) MockChatResponse(messages []map[string]interface{}) {
	m.Handlers["/api/bot/chat/"] = func(w http.ResponseWriter, r *http.Request) {
		response := map[string]interface{}{
			"status":   "success",
			"messages": messages,
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response) //nolint:errcheck // test mock response
	}
}

// MockChatNoContent makes /api/bot/chat/ answer with the idle 204 signal.
func (m *MockBotServer) MockChatNoContent() {
	m.Handlers["/api/bot/chat/"] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}
}

// MockChatStatus makes /api/bot/chat/ answer with an arbitrary status code and empty body.
func (m *MockBotServer) MockChatStatus(code int) {
	m.Handlers["/api/bot/chat/"] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
	}
}

// MockSyncResponse adds a handler for /api/retriever/sync/ answering with the given status.
func (m *MockBotServer) MockSyncResponse(code int) {
	m.Handlers["/api/retriever/sync/"] = func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
		if code == http.StatusOK {
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"}) //nolint:errcheck // test mock response
		}
	}
}

// MockRegisterResponse adds a handler for /api/account/register/ returning the given uuid.
func (m *MockBotServer) MockRegisterResponse(uuid string) {
	m.Handlers["/api/account/register/"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"uuid": uuid}) //nolint:errcheck // test mock response
	}
}

// MockPlanResponse adds a handler for the plan lookup of the given profile uuid.
func (m *MockBotServer) MockPlanResponse(profile, plan string) {
	m.Handlers["/api/account/profile/"+profile+"/plan/"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"name": plan}) //nolint:errcheck // test mock response
	}
}

// MockActivationResponse adds a handler for the activation toggle of the given profile uuid.
func (m *MockBotServer) MockActivationResponse(profile string) {
	m.Handlers["/api/account/wordpress-active/"+profile+"/"] = func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]bool{"activated": true}) //nolint:errcheck // test mock response
	}
}
