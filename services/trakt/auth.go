package trakt

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

var (
	// ErrAuth indicates a failed, denied, or expired authorization.
	ErrAuth = errors.New("trakt authentication failed")
	// ErrConnection indicates a transport failure reaching the Trakt API.
	ErrConnection = errors.New("trakt connection failed")
)

// AuthClient handles the OAuth2 device code flow. Each method performs
// exactly one HTTP request; the poll-and-sleep loop belongs to the caller so
// this type stays deterministic under test.
type AuthClient struct {
	httpClient   *http.Client
	clientID     string
	clientSecret string
}

// DeviceCodeResponse represents the response from /oauth/device/code.
type DeviceCodeResponse struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURL string `json:"verification_url"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
}

// TokenResponse represents an issued access/refresh token pair.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
	CreatedAt    int64  `json:"created_at"`
}

// PollResult is the outcome of one token poll. Pending is a routine state
// while the user has not yet approved the device, not an error.
type PollResult struct {
	Tokens  *TokenResponse
	Pending bool
}

// NewAuthClient creates a device-flow client for the given application
// credentials. A nil httpc uses the default client.
func NewAuthClient(clientID, clientSecret string, httpc *http.Client) *AuthClient {
	if httpc == nil {
		httpc = defaultHTTPClient()
	}
	return &AuthClient{
		httpClient:   httpc,
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

func (c *AuthClient) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("trakt-api-key", c.clientID)
	req.Header.Set("trakt-api-version", apiVersion)
}

func (c *AuthClient) post(path string, payload map[string]string) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequest(http.MethodPost, apiBaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return resp, nil
}

// RequestDeviceCode starts the device authorization flow.
func (c *AuthClient) RequestDeviceCode() (*DeviceCodeResponse, error) {
	resp, err := c.post("/oauth/device/code", map[string]string{"client_id": c.clientID})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: device code request returned %s", ErrAuth, resp.Status)
	}

	var dc DeviceCodeResponse
	if err := json.NewDecoder(resp.Body).Decode(&dc); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &dc, nil
}

// PollForToken performs a single token poll. Rate limiting and the
// authorization_pending error both report Pending; the caller enforces the
// overall expires_in deadline.
func (c *AuthClient) PollForToken(deviceCode string) (PollResult, error) {
	payload := map[string]string{
		"code":      deviceCode,
		"client_id": c.clientID,
	}
	if c.clientSecret != "" {
		payload["client_secret"] = c.clientSecret
	}

	resp, err := c.post("/oauth/device/token", payload)
	if err != nil {
		return PollResult{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var token TokenResponse
		if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
			return PollResult{}, fmt.Errorf("%w: invalid token response", ErrAuth)
		}
		return PollResult{Tokens: &token}, nil
	case http.StatusBadRequest:
		var body struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			// Empty or unparsable body, treat as pending.
			return PollResult{Pending: true}, nil
		}
		switch body.Error {
		case "", "authorization_pending":
			return PollResult{Pending: true}, nil
		case "access_denied", "expired_token":
			return PollResult{}, fmt.Errorf("%w: authorization denied: %s", ErrAuth, body.Error)
		default:
			return PollResult{}, fmt.Errorf("%w: token poll returned %q", ErrAuth, body.Error)
		}
	case http.StatusConflict:
		return PollResult{}, fmt.Errorf("%w: device code already used", ErrAuth)
	case http.StatusGone:
		return PollResult{}, fmt.Errorf("%w: device code expired", ErrAuth)
	case http.StatusTeapot:
		return PollResult{}, fmt.Errorf("%w: user denied authorization", ErrAuth)
	case http.StatusTooManyRequests:
		// Rate limited; the caller's next poll happens after its interval.
		return PollResult{Pending: true}, nil
	default:
		respBody, _ := io.ReadAll(resp.Body)
		return PollResult{}, fmt.Errorf("%w: token poll returned %s - %s", ErrAuth, resp.Status, string(respBody))
	}
}

// RefreshToken exchanges a refresh token for a new access/refresh pair.
func (c *AuthClient) RefreshToken(refreshToken string) (*TokenResponse, error) {
	payload := map[string]string{
		"refresh_token": refreshToken,
		"client_id":     c.clientID,
		"grant_type":    "refresh_token",
	}
	if c.clientSecret != "" {
		payload["client_secret"] = c.clientSecret
	}

	resp, err := c.post("/oauth/token", payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: token refresh returned %s", ErrAuth, resp.Status)
	}

	var token TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &token, nil
}
