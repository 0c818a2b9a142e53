package botapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// accountTimeout bounds the account lifecycle calls, which are best-effort
// and never block request handling.
const accountTimeout = 20 * time.Second

// Register creates a new tenant profile and returns its uuid.
func (c *Client) Register(ctx context.Context, name, email, website string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, accountTimeout)
	defer cancel()

	body, err := json.Marshal(map[string]string{"name": name, "email": email, "website": website})
	if err != nil {
		return "", fmt.Errorf("encode register request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Host+"/api/account/register/", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http().Do(req)
	if err != nil {
		return "", fmt.Errorf("register request: %w", err)
	}
	defer closeBody(resp)

	var out struct {
		UUID string `json:"uuid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode register response: %w", err)
	}
	if out.UUID == "" {
		return "", fmt.Errorf("register response missing uuid")
	}
	return out.UUID, nil
}

// Plan returns the plan name for the configured profile.
func (c *Client) Plan(ctx context.Context) (string, error) {
	if c.Profile == "" {
		return "", fmt.Errorf("profile not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, accountTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/api/account/profile/%s/plan/", c.Host, c.Profile)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http().Do(req)
	if err != nil {
		return "", fmt.Errorf("plan request: %w", err)
	}
	defer closeBody(resp)

	var out struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode plan response: %w", err)
	}
	if out.Name == "" {
		return "", fmt.Errorf("plan response missing name")
	}
	return out.Name, nil
}

// SetActivated toggles the tenant's integration-active flag. Called on service
// start (true) and shutdown (false); failures are logged by the caller, never fatal.
func (c *Client) SetActivated(ctx context.Context, activated bool) error {
	if c.Profile == "" {
		return fmt.Errorf("profile not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, accountTimeout)
	defer cancel()

	body, err := json.Marshal(map[string]bool{"activated": activated})
	if err != nil {
		return fmt.Errorf("encode activation request: %w", err)
	}
	url := fmt.Sprintf("%s/api/account/wordpress-active/%s/", c.Host, c.Profile)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http().Do(req)
	if err != nil {
		return fmt.Errorf("activation request: %w", err)
	}
	defer closeBody(resp)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("activation request: upstream status %d", resp.StatusCode)
	}
	return nil
}
