// Package chatclient implements the widget side of the chat relay protocol: a
// polling session that keeps an append-only transcript in sync with the
// message store through the relay endpoint, sends visitor messages, and adapts
// its polling cadence to what the relay reports.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/tekflox/aiflowx-relay/identity"
)

const (
	actionChatMessage = "chat_message"

	// deliveryFailedNotice is rendered in place of a reply when the send
	// request itself could not reach the relay.
	deliveryFailedNotice = "Message could not be sent. Please try again."

	defaultNormalInterval   = time.Second
	defaultDegradedInterval = 5 * time.Second
	defaultTypingDelay      = 2 * time.Second
)

// ErrEmptyMessage is returned by Send for empty or whitespace-only input.
var ErrEmptyMessage = errors.New("chatclient: empty message")

// relayRequest is the wire format posted to the relay endpoint.
type relayRequest struct {
	Action        string `json:"action"`
	Nonce         string `json:"nonce"`
	Message       string `json:"message"`
	VisitorID     string `json:"visitor_id"`
	LastMessageID int64  `json:"last_message_id"`
	Nowait        string `json:"nowait"`
	IncludeSent   bool   `json:"include_sent"`
}

type relayMessage struct {
	ID        int64  `json:"id"`
	Content   string `json:"content"`
	Direction string `json:"direction"`
}

type relayResponse struct {
	Status   string         `json:"status"`
	Messages []relayMessage `json:"messages"`
}

type bootstrapResponse struct {
	Nonce          string `json:"nonce"`
	HasProfile     bool   `json:"has_profile"`
	PollIntervalMs int    `json:"poll_interval_ms"`
	LastSync       string `json:"last_sync"`
}

// Options configures a Session. RelayURL and Store are required.
type Options struct {
	// RelayURL is the base URL of the relay service, without trailing slash.
	RelayURL string
	// Host labels the storefront in generated visitor ids.
	Host string
	// Store persists the visitor id and read cursor across sessions.
	Store identity.Store
	// HTTPClient defaults to a client with a 30s timeout.
	HTTPClient *http.Client
	// Visible reports whether the chat window currently has the visitor's
	// attention. Nil means always visible (no unread affordance).
	Visible func() bool
	// Notify is invoked when new messages arrive while not Visible.
	Notify func()

	NormalInterval   time.Duration
	DegradedInterval time.Duration
	TypingDelay      time.Duration
}

// Session is a live chat session. One Session serves one visitor; Poll and
// Send are safe to call concurrently.
type Session struct {
	relayURL string
	client   *http.Client
	store    identity.Store
	visible  func() bool
	notify   func()

	visitorID  string
	transcript *Transcript

	normalInterval   time.Duration
	degradedInterval time.Duration
	typingDelay      time.Duration

	mu          sync.Mutex
	nonce       string
	cursor      int64
	tier        Tier
	typingShown bool
	typingTimer *time.Timer
}

// NewSession creates a session, generating a visitor id on first use.
func NewSession(opts Options) (*Session, error) {
	if opts.RelayURL == "" {
		return nil, errors.New("chatclient: RelayURL is required")
	}
	if opts.Store == nil {
		return nil, errors.New("chatclient: Store is required")
	}
	vid, err := identity.EnsureVisitorID(opts.Store, opts.Host)
	if err != nil {
		return nil, err
	}
	s := &Session{
		relayURL:         opts.RelayURL,
		client:           opts.HTTPClient,
		store:            opts.Store,
		visible:          opts.Visible,
		notify:           opts.Notify,
		visitorID:        vid,
		transcript:       NewTranscript(),
		normalInterval:   opts.NormalInterval,
		degradedInterval: opts.DegradedInterval,
		typingDelay:      opts.TypingDelay,
		tier:             TierNormal,
	}
	if s.client == nil {
		s.client = &http.Client{Timeout: 30 * time.Second}
	}
	if s.normalInterval <= 0 {
		s.normalInterval = defaultNormalInterval
	}
	if s.degradedInterval <= 0 {
		s.degradedInterval = defaultDegradedInterval
	}
	if s.typingDelay <= 0 {
		s.typingDelay = defaultTypingDelay
	}
	return s, nil
}

// VisitorID returns the stable visitor identifier for this session.
func (s *Session) VisitorID() string { return s.visitorID }

// Transcript returns the session's transcript.
func (s *Session) Transcript() *Transcript { return s.transcript }

// Tier returns the current polling tier.
func (s *Session) Tier() Tier {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tier
}

// Cursor returns the highest message id merged so far.
func (s *Session) Cursor() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// TypingShown reports whether the typing cue is currently rendered.
func (s *Session) TypingShown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.typingShown
}

// Bootstrap fetches the relay nonce and server-advertised poll interval.
// Called implicitly by Run; explicit callers can surface setup errors early.
func (s *Session) Bootstrap(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.relayURL+"/chat/bootstrap", nil)
	if err != nil {
		return fmt.Errorf("build bootstrap request: %w", err)
	}
	req.Header.Set("X-Visitor-ID", s.visitorID)
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			slog.Warn("failed to close response body", slog.Any("err", cerr))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bootstrap: unexpected status %d", resp.StatusCode)
	}
	var b bootstrapResponse
	if err := json.NewDecoder(resp.Body).Decode(&b); err != nil {
		return fmt.Errorf("bootstrap: decode response: %w", err)
	}
	s.mu.Lock()
	s.nonce = b.Nonce
	if b.PollIntervalMs > 0 {
		s.normalInterval = time.Duration(b.PollIntervalMs) * time.Millisecond
	}
	s.mu.Unlock()
	return nil
}

// Poll performs one synchronization round: it asks the relay for messages
// newer than the cursor (including the visitor's own sent messages) and merges
// the result. The returned tier is the cadence for the next round.
func (s *Session) Poll(ctx context.Context) Tier {
	s.mu.Lock()
	req := relayRequest{
		Action:        actionChatMessage,
		Nonce:         s.nonce,
		VisitorID:     s.visitorID,
		LastMessageID: s.cursor,
		Nowait:        "0",
		IncludeSent:   true,
	}
	s.mu.Unlock()

	resp, sig := s.post(ctx, req)
	if sig == signalPayload {
		s.merge(resp.Messages)
	}
	return s.applySignal(sig)
}

// Run polls until ctx is cancelled. The next poll is scheduled only after the
// previous one fully completes, so a slow long-poll never stacks requests.
func (s *Session) Run(ctx context.Context) error {
	if s.nonceValue() == "" {
		if err := s.Bootstrap(ctx); err != nil {
			slog.Warn("chat bootstrap failed, polling without nonce refresh", slog.Any("err", err))
		}
	}
	for {
		tier := s.Poll(ctx)
		wait := tier.interval(s.normalInterval, s.degradedInterval)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// Send delivers a visitor message. The message is rendered optimistically as
// a pending entry; the confirmed copy arrives through a later poll. A
// transport failure renders a visible error line instead of dropping silently.
func (s *Session) Send(ctx context.Context, text string) error {
	if isBlank(text) {
		return ErrEmptyMessage
	}
	s.transcript.AppendPending(text)

	s.mu.Lock()
	req := relayRequest{
		Action:    actionChatMessage,
		Nonce:     s.nonce,
		Message:   text,
		VisitorID: s.visitorID,
		Nowait:    "1",
	}
	s.mu.Unlock()

	_, sig := s.post(ctx, req)
	if sig == signalDegraded {
		// No reply is coming for this message, so drop any typing cue too.
		s.hideTyping()
		s.transcript.AppendError(deliveryFailedNotice)
		s.applySignal(sig)
		return fmt.Errorf("chatclient: send failed")
	}
	s.scheduleTyping()
	return nil
}

// post sends one relay request and classifies the outcome.
func (s *Session) post(ctx context.Context, rr relayRequest) (relayResponse, signal) {
	var out relayResponse
	body, err := json.Marshal(rr)
	if err != nil {
		return out, signalDegraded
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.relayURL+"/chat/message", bytes.NewReader(body))
	if err != nil {
		return out, signalDegraded
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		slog.Debug("relay request failed", slog.Any("err", err))
		return out, signalDegraded
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			slog.Warn("failed to close response body", slog.Any("err", cerr))
		}
	}()

	switch resp.StatusCode {
	case http.StatusNoContent:
		return out, signalIdle
	case http.StatusOK:
	default:
		return out, signalDegraded
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		slog.Debug("relay response malformed", slog.Any("err", err))
		return out, signalDegraded
	}
	switch out.Status {
	case "success":
		return out, signalPayload
	case "no_content":
		return out, signalIdle
	default:
		return out, signalDegraded
	}
}

// merge folds a payload into the transcript, advances the cursor, persists it,
// and fires the unread affordance when the window is hidden.
func (s *Session) merge(msgs []relayMessage) {
	s.transcript.ClearPending()
	s.hideTyping()

	var newest int64
	var added bool
	for _, m := range msgs {
		if m.ID <= 0 || m.Content == "" {
			continue
		}
		if s.transcript.Merge(m.ID, m.Content, m.Direction) {
			added = true
		}
		if m.ID > newest {
			newest = m.ID
		}
	}
	if newest == 0 {
		return
	}

	persisted, err := s.store.Cursor(s.visitorID)
	if err != nil {
		slog.Debug("cursor read failed", slog.Any("err", err))
	}

	s.mu.Lock()
	if newest > s.cursor {
		s.cursor = newest
	}
	s.mu.Unlock()

	if added && newest > persisted && s.visible != nil && !s.visible() && s.notify != nil {
		s.notify()
	}
	if err := s.store.SetCursor(s.visitorID, newest); err != nil {
		slog.Debug("cursor persist failed", slog.Any("err", err))
	}
}

func (s *Session) applySignal(sig signal) Tier {
	next := transitions[sig]
	s.mu.Lock()
	s.tier = next
	s.mu.Unlock()
	return next
}

// scheduleTyping arms the delayed typing cue. The cue is a singleton: re-arming
// while armed or shown is a no-op, and any delivered payload clears it.
func (s *Session) scheduleTyping() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.typingShown || s.typingTimer != nil {
		return
	}
	s.typingTimer = time.AfterFunc(s.typingDelay, func() {
		s.mu.Lock()
		s.typingShown = true
		s.typingTimer = nil
		s.mu.Unlock()
	})
}

func (s *Session) hideTyping() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.typingTimer != nil {
		s.typingTimer.Stop()
		s.typingTimer = nil
	}
	s.typingShown = false
}

func (s *Session) nonceValue() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nonce
}

func isBlank(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}
