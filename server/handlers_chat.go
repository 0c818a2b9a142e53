package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/tekflox/aiflowx-relay/botapi"
	"github.com/tekflox/aiflowx-relay/db"
	"github.com/tekflox/aiflowx-relay/telemetry"
)

// relayRequest is the widget-facing wire format.
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
	Messages []relayMessage `json:"messages,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// HandleChatMessage relays one widget request to the message store. Status
// codes double as cadence signals for the polling client: 204 means idle,
// 503 means degrade, 200 carries the reshaped payload.
func (h *Handlers) HandleChatMessage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req relayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, relayResponse{Status: "error", Error: "invalid request body"})
		return
	}
	if req.VisitorID == "" {
		writeJSON(w, http.StatusBadRequest, relayResponse{Status: "error", Error: "visitor_id is required"})
		return
	}
	if !h.deps.Signer.Verify(req.VisitorID, req.Nonce) {
		telemetry.Inc(telemetry.RelayRejected)
		slog.Warn("relay nonce rejected", slog.String("visitor", req.VisitorID))
		writeJSON(w, http.StatusForbidden, relayResponse{Status: "error", Error: "invalid nonce"})
		return
	}
	if err := h.deps.Cfg.ValidateRelayReady(); err != nil {
		// Configuration problem, not chat content: the widget stays hidden.
		writeJSON(w, http.StatusConflict, relayResponse{Status: "error", Error: "relay not configured"})
		return
	}

	telemetry.Inc(telemetry.RelayRequests)

	creq := botapi.ChatRequest{
		FromContact:   req.VisitorID,
		Message:       req.Message,
		Nowait:        req.Nowait,
		LastMessageID: req.LastMessageID,
		IncludeSent:   req.IncludeSent,
	}

	var cresp *botapi.ChatResponse
	var err error
	telemetry.TimeFunc(telemetry.RelayUpstreamDuration, func() {
		cresp, err = h.deps.Bot.Chat(r.Context(), creq)
	})
	if errors.Is(err, botapi.ErrNoContent) {
		telemetry.Inc(telemetry.RelayNoContent)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		telemetry.Inc(telemetry.RelayUpstreamErrors)
		telemetry.LoggerWithCorr(r.Context()).Warn("upstream chat call failed", slog.Any("err", err))
		writeJSON(w, http.StatusServiceUnavailable, relayResponse{Status: "error", Error: "upstream unavailable"})
		return
	}

	// The upstream body is passed through, including a 200 {status:"error"}:
	// the widget uses the status field to pick its polling cadence.
	out := relayResponse{Status: cresp.Status}
	for _, m := range cresp.Messages {
		content := m.Content
		if cresp.Status == "success" {
			content = h.reshapeContent(r.Context(), content)
		}
		out.Messages = append(out.Messages, relayMessage{
			ID:        m.ID,
			Content:   content,
			Direction: m.Direction,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type bootstrapResponse struct {
	Nonce          string `json:"nonce"`
	HasProfile     bool   `json:"has_profile"`
	PollIntervalMs int    `json:"poll_interval_ms"`
	LastSync       string `json:"last_sync,omitempty"`
}

// HandleChatBootstrap hands the widget its session nonce and poll settings.
// The nonce is bound to the visitor id, so one is required.
func (h *Handlers) HandleChatBootstrap(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	visitorID := r.Header.Get("X-Visitor-ID")
	if visitorID == "" {
		visitorID = r.URL.Query().Get("visitor_id")
	}
	if visitorID == "" {
		http.Error(w, "visitor id required", http.StatusBadRequest)
		return
	}

	resp := bootstrapResponse{
		Nonce:          h.deps.Signer.Issue(visitorID),
		HasProfile:     h.deps.Cfg.ProfileUUID != "",
		PollIntervalMs: int(h.deps.Cfg.PollInterval / time.Millisecond),
	}
	if h.deps.DB != nil {
		if last, err := db.GetLastSync(r.Context(), h.deps.DB); err == nil && !last.IsZero() {
			resp.LastSync = last.Format(db.LastSyncLayout)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
