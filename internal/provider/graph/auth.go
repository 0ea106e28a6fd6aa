package graph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// tokenExpiryBuffer is subtracted from the advertised lifetime so a token
// never expires mid-request.
const tokenExpiryBuffer = 5 * time.Minute

const graphScope = "https://graph.microsoft.com/.default"

// tokenCache holds one client-credentials access token.
type tokenCache struct {
	mu           sync.Mutex
	accessToken  string
	expiresAt    time.Time
	tokenURL     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	now          func() time.Time
}

func newTokenCache(tokenURL, clientID, clientSecret string, httpClient *http.Client) *tokenCache {
	return &tokenCache{
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   httpClient,
		now:          time.Now,
	}
}

// Token returns the cached token or fetches a new one.
func (tc *tokenCache) Token(ctx context.Context) (string, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if tc.accessToken != "" && tc.now().Before(tc.expiresAt) {
		return tc.accessToken, nil
	}
	return tc.fetch(ctx)
}

// Invalidate drops the cached token so the next send fetches a new one.
func (tc *tokenCache) Invalidate() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.accessToken = ""
	tc.expiresAt = time.Time{}
}

// fetch must be called with tc.mu held.
func (tc *tokenCache) fetch(ctx context.Context) (string, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {tc.clientID},
		"client_secret": {tc.clientSecret},
		"scope":         {graphScope},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tc.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := tc.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("failed to parse token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", errors.New("token response missing access_token")
	}

	tc.accessToken = tr.AccessToken
	tc.expiresAt = tc.now().Add(time.Duration(tr.ExpiresIn)*time.Second - tokenExpiryBuffer)
	return tc.accessToken, nil
}
