package chatclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tekflox/aiflowx-relay/identity"
)

// relayStub scripts relay responses and records received requests.
type relayStub struct {
	mu       sync.Mutex
	requests []relayRequest
	respond  func(w http.ResponseWriter, req relayRequest)
}

func newRelayStub(t *testing.T) (*relayStub, *httptest.Server) {
	t.Helper()
	stub := &relayStub{}
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/bootstrap", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(bootstrapResponse{Nonce: "test-nonce", HasProfile: true, PollIntervalMs: 1000})
	})
	mux.HandleFunc("/chat/message", func(w http.ResponseWriter, r *http.Request) {
		var req relayRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		stub.mu.Lock()
		stub.requests = append(stub.requests, req)
		respond := stub.respond
		stub.mu.Unlock()
		respond(w, req)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return stub, srv
}

func (s *relayStub) setRespond(fn func(w http.ResponseWriter, req relayRequest)) {
	s.mu.Lock()
	s.respond = fn
	s.mu.Unlock()
}

func (s *relayStub) recorded() []relayRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]relayRequest, len(s.requests))
	copy(out, s.requests)
	return out
}

func newTestSession(t *testing.T, url string, opts func(*Options)) *Session {
	t.Helper()
	o := Options{RelayURL: url, Host: "shop.example", Store: identity.NewMemStore()}
	if opts != nil {
		opts(&o)
	}
	s, err := NewSession(o)
	require.NoError(t, err)
	return s
}

func writeSuccess(w http.ResponseWriter, msgs []relayMessage) {
	_ = json.NewEncoder(w).Encode(relayResponse{Status: "success", Messages: msgs})
}

func TestSendThenPollConfirmsMessage(t *testing.T) {
	stub, srv := newRelayStub(t)
	stub.setRespond(func(w http.ResponseWriter, req relayRequest) {
		if req.Message != "" {
			// Send path: acknowledge without waiting for a reply.
			writeSuccess(w, nil)
			return
		}
		writeSuccess(w, []relayMessage{
			{ID: 4, Content: "Hello", Direction: "inbound"},
			{ID: 5, Content: "Hi there", Direction: "outbound"},
		})
	})

	s := newTestSession(t, srv.URL, nil)
	require.NoError(t, s.Send(context.Background(), "Hello"))

	// Optimistic copy is visible before any poll.
	entries := s.Transcript().Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, KindPending, entries[0].Kind)

	tier := s.Poll(context.Background())
	assert.Equal(t, TierNormal, tier)
	assert.Equal(t, int64(5), s.Cursor())

	entries = s.Transcript().Entries()
	require.Len(t, entries, 2, "pending copy replaced by confirmed messages")
	assert.Equal(t, "Hello", entries[0].Content)
	assert.Equal(t, "Hi there", entries[1].Content)

	reqs := stub.recorded()
	require.Len(t, reqs, 2)
	assert.Equal(t, "1", reqs[0].Nowait, "send must not wait for the bot reply")
	assert.False(t, reqs[0].IncludeSent)
	assert.True(t, reqs[1].IncludeSent, "poll must request the visitor's own messages")
	assert.Equal(t, int64(0), reqs[1].LastMessageID)
}

func TestPollAdvancesCursorAndDeduplicates(t *testing.T) {
	stub, srv := newRelayStub(t)
	stub.setRespond(func(w http.ResponseWriter, req relayRequest) {
		writeSuccess(w, []relayMessage{
			{ID: 2, Content: "a", Direction: "outbound"},
			{ID: 3, Content: "b", Direction: "outbound"},
		})
	})

	s := newTestSession(t, srv.URL, nil)
	s.Poll(context.Background())
	s.Poll(context.Background())

	assert.Equal(t, int64(3), s.Cursor())
	assert.Len(t, s.Transcript().Entries(), 2, "re-delivered messages must not duplicate")

	reqs := stub.recorded()
	require.Len(t, reqs, 2)
	assert.Equal(t, int64(3), reqs[1].LastMessageID, "second poll resumes from the cursor")
}

func TestPollCursorNeverDecreases(t *testing.T) {
	stub, srv := newRelayStub(t)
	stub.setRespond(func(w http.ResponseWriter, req relayRequest) {
		writeSuccess(w, []relayMessage{{ID: 9, Content: "x", Direction: "outbound"}})
	})
	s := newTestSession(t, srv.URL, nil)
	s.Poll(context.Background())
	require.Equal(t, int64(9), s.Cursor())

	// An out-of-order delivery with only older ids must not rewind.
	stub.setRespond(func(w http.ResponseWriter, req relayRequest) {
		writeSuccess(w, []relayMessage{{ID: 4, Content: "old", Direction: "outbound"}})
	})
	s.Poll(context.Background())
	assert.Equal(t, int64(9), s.Cursor())
}

func TestTierTransitions(t *testing.T) {
	stub, srv := newRelayStub(t)
	s := newTestSession(t, srv.URL, nil)

	stub.setRespond(func(w http.ResponseWriter, req relayRequest) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(relayResponse{Status: "error"})
	})
	for i := 0; i < 3; i++ {
		assert.Equal(t, TierDegraded, s.Poll(context.Background()), "consecutive failures stay degraded")
	}

	stub.setRespond(func(w http.ResponseWriter, req relayRequest) {
		w.WriteHeader(http.StatusNoContent)
	})
	assert.Equal(t, TierIdle, s.Poll(context.Background()))

	stub.setRespond(func(w http.ResponseWriter, req relayRequest) {
		writeSuccess(w, []relayMessage{{ID: 1, Content: "back", Direction: "outbound"}})
	})
	assert.Equal(t, TierNormal, s.Poll(context.Background()), "one healthy poll recovers the cadence")
}

func TestErrorStatusInHealthyResponseDegrades(t *testing.T) {
	stub, srv := newRelayStub(t)
	stub.setRespond(func(w http.ResponseWriter, req relayRequest) {
		// Upstream errors are passed through with HTTP 200.
		_ = json.NewEncoder(w).Encode(relayResponse{Status: "error"})
	})
	s := newTestSession(t, srv.URL, nil)
	assert.Equal(t, TierDegraded, s.Poll(context.Background()))
}

func TestMalformedBodyDegrades(t *testing.T) {
	stub, srv := newRelayStub(t)
	stub.setRespond(func(w http.ResponseWriter, req relayRequest) {
		_, _ = w.Write([]byte("<html>gateway error</html>"))
	})
	s := newTestSession(t, srv.URL, nil)
	assert.Equal(t, TierDegraded, s.Poll(context.Background()))
	assert.Empty(t, s.Transcript().Entries(), "garbage must not reach the transcript")
}

func TestSendEmptyRejected(t *testing.T) {
	_, srv := newRelayStub(t)
	s := newTestSession(t, srv.URL, nil)
	assert.ErrorIs(t, s.Send(context.Background(), "   \n"), ErrEmptyMessage)
	assert.Empty(t, s.Transcript().Entries())
}

func TestSendTransportFailureRendersError(t *testing.T) {
	s := newTestSession(t, "http://127.0.0.1:1", nil)
	err := s.Send(context.Background(), "Hello")
	require.Error(t, err)

	entries := s.Transcript().Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, KindPending, entries[0].Kind)
	assert.Equal(t, KindError, entries[1].Kind)
	assert.Equal(t, TierDegraded, s.Tier())
}

func TestNotifyFiresOnlyWhenHidden(t *testing.T) {
	stub, srv := newRelayStub(t)
	stub.setRespond(func(w http.ResponseWriter, req relayRequest) {
		writeSuccess(w, []relayMessage{{ID: 1, Content: "ping", Direction: "outbound"}})
	})

	var notified int
	hidden := false
	s := newTestSession(t, srv.URL, func(o *Options) {
		o.Visible = func() bool { return !hidden }
		o.Notify = func() { notified++ }
	})

	s.Poll(context.Background())
	assert.Zero(t, notified, "visible window needs no affordance")

	hidden = true
	stub.setRespond(func(w http.ResponseWriter, req relayRequest) {
		writeSuccess(w, []relayMessage{{ID: 2, Content: "pong", Direction: "outbound"}})
	})
	s.Poll(context.Background())
	assert.Equal(t, 1, notified)
}

func TestTypingCueLifecycle(t *testing.T) {
	stub, srv := newRelayStub(t)
	stub.setRespond(func(w http.ResponseWriter, req relayRequest) {
		writeSuccess(w, nil)
	})
	s := newTestSession(t, srv.URL, func(o *Options) {
		o.TypingDelay = 10 * time.Millisecond
	})
	require.NoError(t, s.Send(context.Background(), "hi"))
	require.Eventually(t, s.TypingShown, time.Second, 5*time.Millisecond)

	stub.setRespond(func(w http.ResponseWriter, req relayRequest) {
		writeSuccess(w, []relayMessage{{ID: 1, Content: "reply", Direction: "outbound"}})
	})
	s.Poll(context.Background())
	assert.False(t, s.TypingShown(), "delivered payload clears the typing cue")
}

func TestSendFailureClearsTypingCue(t *testing.T) {
	stub, srv := newRelayStub(t)
	stub.setRespond(func(w http.ResponseWriter, req relayRequest) {
		writeSuccess(w, nil)
	})
	s := newTestSession(t, srv.URL, func(o *Options) {
		o.TypingDelay = 10 * time.Millisecond
	})
	require.NoError(t, s.Send(context.Background(), "hi"))
	require.Eventually(t, s.TypingShown, time.Second, 5*time.Millisecond)

	stub.setRespond(func(w http.ResponseWriter, req relayRequest) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	require.Error(t, s.Send(context.Background(), "again"))
	assert.False(t, s.TypingShown(), "failed send must not leave a typing cue")
}

func TestBootstrapAdoptsServerInterval(t *testing.T) {
	_, srv := newRelayStub(t)
	s := newTestSession(t, srv.URL, func(o *Options) {
		o.NormalInterval = 250 * time.Millisecond
	})
	require.NoError(t, s.Bootstrap(context.Background()))
	assert.Equal(t, "test-nonce", s.nonceValue())
	assert.Equal(t, time.Second, s.normalInterval)
}
