// Package server exposes the HTTP API: the chat relay and bootstrap endpoints
// consumed by the storefront widget, plus health, status, metrics, and admin
// sync/registration endpoints. Permissive CORS in dev and correlation IDs on
// every request, matching the rest of the service's logging.
package server

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/tekflox/aiflowx-relay/botapi"
	"github.com/tekflox/aiflowx-relay/config"
	"github.com/tekflox/aiflowx-relay/contentsync"
	"github.com/tekflox/aiflowx-relay/crypto"
	"github.com/tekflox/aiflowx-relay/preview"
)

// Deps carries everything the handlers need.
type Deps struct {
	DB       *sql.DB
	Cfg      *config.Config
	Bot      *botapi.Client
	Signer   *crypto.Signer
	Resolver *preview.Resolver
	Syncer   *contentsync.Syncer
	// SiteHost is the storefront host used to decide whether rewritten links
	// open in the same tab.
	SiteHost string
}

// Handlers holds dependencies for all HTTP handlers.
type Handlers struct {
	deps Deps
}

// NewHandlers creates a new Handlers instance with the given dependencies.
func NewHandlers(deps Deps) *Handlers {
	return &Handlers{deps: deps}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
