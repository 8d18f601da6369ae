// Package identity verifies game-account ownership through the game's
// public player API before an account link is stored.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const defaultBaseURL = "https://api.kag2d.com/v1"

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type tokenCheck struct {
	PlayerTokenStatus bool `json:"playerTokenStatus"`
}

// VerifyToken checks a one-time player token against the game API. A false
// return with nil error means the token was rejected; errors mean the API
// could not be reached and the caller should tell the user to retry.
func (c *Client) VerifyToken(ctx context.Context, gameName, token string) (bool, error) {
	u := fmt.Sprintf("%s/player/%s/token/%s", c.baseURL, url.PathEscape(gameName), url.PathEscape(token))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("token check: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		// The API answers non-200 for bad tokens.
		return false, nil
	}
	var check tokenCheck
	if err := json.NewDecoder(resp.Body).Decode(&check); err != nil {
		return false, fmt.Errorf("token check: %w", err)
	}
	return check.PlayerTokenStatus, nil
}
