package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/papercomputeco/parley/pkg/utils"
)

const refreshPath = "/api/oauth/token/refresh"

// Token is a rotated access/refresh pair.
type Token struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// Expiry converts ExpiresIn into an absolute time relative to now. A token
// without a lifetime gets the zero time, meaning it does not expire.
func (t Token) Expiry(now time.Time) time.Time {
	if t.ExpiresIn <= 0 {
		return time.Time{}
	}
	return now.Add(time.Duration(t.ExpiresIn) * time.Second)
}

type envelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    Token  `json:"data"`
}

// OAuthClient exchanges refresh tokens against the proxy backend.
type OAuthClient struct {
	baseURL      string
	clientID     string
	clientSecret string
	httpClient   *http.Client
}

// OAuthConfig configures an OAuthClient.
type OAuthConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

func NewOAuthClient(c OAuthConfig) *OAuthClient {
	timeout := c.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &OAuthClient{
		baseURL:      strings.TrimRight(c.BaseURL, "/"),
		clientID:     c.ClientID,
		clientSecret: c.ClientSecret,
		httpClient:   &http.Client{Timeout: timeout},
	}
}

// Refresh trades refreshToken for a new token pair. A non-zero envelope code
// is an error carrying the backend message.
func (c *OAuthClient) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+refreshPath, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", utils.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending refresh request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading refresh response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("refresh returned status %d: %s", resp.StatusCode, string(body))
	}

	if env.Code != 0 {
		msg := env.Message
		if msg == "" {
			msg = "failed to refresh token"
		}
		return nil, fmt.Errorf("refresh rejected (code %d): %s", env.Code, msg)
	}

	if env.Data.AccessToken == "" {
		return nil, fmt.Errorf("refresh response missing access token")
	}

	return &env.Data, nil
}
