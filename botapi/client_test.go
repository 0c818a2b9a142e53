package botapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChatForwardsTenantAndBody(t *testing.T) {
	var gotHeader string
	var gotBody ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/bot/chat/" {
			t.Errorf("path = %q, want /api/bot/chat/", r.URL.Path)
		}
		gotHeader = r.Header.Get("account-profile")
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ChatResponse{Status: "success", Messages: []Message{{ID: 5, Content: "Hi there", Direction: "outbound"}}})
	}))
	defer srv.Close()

	c := &Client{Host: srv.URL, Profile: "profile-1"}
	resp, err := c.Chat(context.Background(), ChatRequest{FromContact: "visitor-1", Message: "Hello", Nowait: "1"})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if gotHeader != "profile-1" {
		t.Errorf("account-profile header = %q, want profile-1", gotHeader)
	}
	if gotBody.FromContact != "visitor-1" || gotBody.Message != "Hello" || gotBody.Nowait != "1" {
		t.Errorf("forwarded body = %+v", gotBody)
	}
	if len(resp.Messages) != 1 || resp.Messages[0].ID != 5 {
		t.Errorf("response = %+v, want one message with id 5", resp)
	}
}

func TestChatNoContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := &Client{Host: srv.URL, Profile: "p"}
	_, err := c.Chat(context.Background(), ChatRequest{FromContact: "v"})
	if !errors.Is(err, ErrNoContent) {
		t.Errorf("err = %v, want ErrNoContent", err)
	}
}

func TestChatMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	c := &Client{Host: srv.URL, Profile: "p"}
	if _, err := c.Chat(context.Background(), ChatRequest{FromContact: "v"}); err == nil {
		t.Error("expected error for malformed upstream body")
	}
}

func TestChatUpstreamDown(t *testing.T) {
	srv := httptest.NewServer(nil)
	srv.Close() // connection refused

	c := &Client{Host: srv.URL, Profile: "p"}
	if _, err := c.Chat(context.Background(), ChatRequest{FromContact: "v"}); err == nil {
		t.Error("expected transport error")
	}
}

func TestSyncContent(t *testing.T) {
	var got struct {
		Data []SyncRecord `json:"data"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/retriever/sync/" {
			t.Errorf("path = %q, want /api/retriever/sync/", r.URL.Path)
		}
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := &Client{Host: srv.URL, Profile: "p"}
	records := []SyncRecord{{Content: `{"type":"post"}`, Metadata: SyncMetadata{ContentType: "post"}}}
	if err := c.SyncContent(context.Background(), records); err != nil {
		t.Fatalf("SyncContent: %v", err)
	}
	if len(got.Data) != 1 || got.Data[0].Metadata.ContentType != "post" {
		t.Errorf("sync body = %+v", got)
	}
}

func TestSyncContentNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := &Client{Host: srv.URL, Profile: "p"}
	if err := c.SyncContent(context.Background(), nil); err == nil {
		t.Error("expected error for non-200 sync response")
	}
}

func TestAccountLifecycle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/account/register/":
			_ = json.NewEncoder(w).Encode(map[string]string{"uuid": "new-uuid"})
		case "/api/account/profile/new-uuid/plan/":
			_ = json.NewEncoder(w).Encode(map[string]string{"name": "Pro"})
		case "/api/account/wordpress-active/new-uuid/":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := &Client{Host: srv.URL}
	uuid, err := c.Register(context.Background(), "Shop", "admin@shop.example", "https://shop.example")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if uuid != "new-uuid" {
		t.Errorf("uuid = %q, want new-uuid", uuid)
	}

	c.Profile = uuid
	plan, err := c.Plan(context.Background())
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plan != "Pro" {
		t.Errorf("plan = %q, want Pro", plan)
	}
	if err := c.SetActivated(context.Background(), true); err != nil {
		t.Fatalf("SetActivated: %v", err)
	}
}

func TestPlanRequiresProfile(t *testing.T) {
	c := &Client{Host: "http://unused.invalid"}
	if _, err := c.Plan(context.Background()); err == nil {
		t.Error("expected error when profile missing")
	}
	if err := c.SetActivated(context.Background(), true); err == nil {
		t.Error("expected error when profile missing")
	}
}
