package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"shooter-arena/internal/config"
)

// ErrKeyRejected means the identity service answered and said no.
// Everything else coming out of CheckKey is a transport problem.
var ErrKeyRejected = errors.New("api key rejected")

// Agent is the registered identity behind a verified api key.
type Agent struct {
	Name   string `json:"agentName"`
	Wallet string `json:"walletAddress"`
}

// Client calls the external identity service over HTTP.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client for the identity service at cfg.URL.
func NewClient(cfg config.IdentityConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		client: &http.Client{
			Timeout: cfg.Timeout(),
		},
	}
}

// CheckKey asks the identity service whether an api key is registered.
// Timeouts and non-200 responses surface as errors; callers treat both
// the same as a rejection.
func (c *Client) CheckKey(ctx context.Context, apiKey string) (Agent, error) {
	payload, err := json.Marshal(map[string]string{"apiKey": apiKey})
	if err != nil {
		return Agent{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/verify", bytes.NewReader(payload))
	if err != nil {
		return Agent{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return Agent{}, fmt.Errorf("verify request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return Agent{}, fmt.Errorf("verify returned %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Valid  bool   `json:"valid"`
		Name   string `json:"agentName"`
		Wallet string `json:"walletAddress"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Agent{}, fmt.Errorf("failed to decode verify response: %w", err)
	}

	if !result.Valid {
		return Agent{}, ErrKeyRejected
	}

	return Agent{Name: result.Name, Wallet: result.Wallet}, nil
}
