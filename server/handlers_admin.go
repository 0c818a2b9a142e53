package server

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/tekflox/aiflowx-relay/db"
)

// HandleAdminSync triggers a content sync immediately. Manual runs bypass the
// scheduler's recency gate; a duplicate send is harmless.
func (h *Handlers) HandleAdminSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.deps.Syncer == nil {
		http.Error(w, "sync not configured", http.StatusServiceUnavailable)
		return
	}
	n, err := h.deps.Syncer.Run(r.Context())
	if err != nil {
		slog.Error("manual content sync failed", slog.Any("err", err))
		writeJSON(w, http.StatusBadGateway, map[string]string{"status": "error", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "records": n})
}

type registerRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Website string `json:"website"`
}

// HandleAdminRegister creates a tenant account upstream and returns the new
// profile uuid. The uuid still has to be set as PROFILE_UUID; registration
// does not reconfigure the running service.
func (h *Handlers) HandleAdminRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Email == "" || req.Website == "" {
		http.Error(w, "email and website are required", http.StatusBadRequest)
		return
	}
	uuid, err := h.deps.Bot.Register(r.Context(), req.Name, req.Email, req.Website)
	if err != nil {
		slog.Error("account registration failed", slog.Any("err", err))
		writeJSON(w, http.StatusBadGateway, map[string]string{"status": "error", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "profile_uuid": uuid})
}

// HandleStatus reports operational state for the admin UI: profile presence,
// plan name, and the last successful content sync.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"api_host":    h.deps.Cfg.APIHost,
		"has_profile": h.deps.Cfg.ProfileUUID != "",
	}

	if h.deps.Cfg.ProfileUUID != "" {
		plan, err := h.deps.Bot.Plan(r.Context())
		if err != nil {
			// Plan lookup is cosmetic; default rather than fail the page.
			slog.Debug("plan lookup failed", slog.Any("err", err))
			plan = "Free"
		}
		status["plan"] = plan
	}

	if h.deps.DB != nil {
		if last, err := db.GetLastSync(r.Context(), h.deps.DB); err == nil && !last.IsZero() {
			status["last_sync"] = last.Format(db.LastSyncLayout)
		}
	}

	writeJSON(w, http.StatusOK, status)
}
