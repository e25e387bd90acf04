package emby

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"embysync/models"
)

const (
	clientName    = "embysync"
	clientDevice  = "emby-sync"
	clientVersion = "1.0.0"
)

var (
	// ErrAuth indicates bad credentials or an expired access token.
	ErrAuth = errors.New("emby authentication failed")
	// ErrConnection indicates a transport failure or unexpected server response.
	ErrConnection = errors.New("emby connection failed")
)

// Client talks to an Emby server's REST API.
type Client struct {
	httpClient  *http.Client
	serverURL   string
	accessToken string
	userID      string
	deviceID    string
}

// AuthResult is returned by Authenticate.
type AuthResult struct {
	AccessToken string
	UserID      string
	DeviceID    string
}

// authResponse mirrors the /Users/AuthenticateByName response body.
type authResponse struct {
	AccessToken string `json:"AccessToken"`
	User        struct {
		ID string `json:"Id"`
	} `json:"User"`
}

// itemsResponse mirrors the /Users/{id}/Items response body.
type itemsResponse struct {
	Items            []json.RawMessage `json:"Items"`
	TotalRecordCount int               `json:"TotalRecordCount"`
}

// Option configures a Client.
type Option func(*Client)

// WithSession resumes an existing authenticated session.
func WithSession(accessToken, userID, deviceID string) Option {
	return func(c *Client) {
		c.accessToken = accessToken
		c.userID = userID
		if deviceID != "" {
			c.deviceID = deviceID
		}
	}
}

// WithHTTPClient overrides the HTTP client, used by tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New creates an Emby client for the given server. A fresh device ID is
// generated unless a session supplies one.
func New(serverURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		serverURL:  strings.TrimRight(serverURL, "/"),
		deviceID:   uuid.NewString(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DeviceID returns the device identifier used in the authorization header.
func (c *Client) DeviceID() string {
	return c.deviceID
}

// setEmbyHeaders adds the MediaBrowser authorization header. The header
// format is fixed by the Emby API contract.
func (c *Client) setEmbyHeaders(req *http.Request) {
	parts := []string{
		fmt.Sprintf("Client=%q", clientName),
		fmt.Sprintf("Device=%q", clientDevice),
		fmt.Sprintf("DeviceId=%q", c.deviceID),
		fmt.Sprintf("Version=%q", clientVersion),
	}
	if c.accessToken != "" {
		parts = append(parts, fmt.Sprintf("Token=%q", c.accessToken))
	}
	req.Header.Set("X-Emby-Authorization", "MediaBrowser "+strings.Join(parts, ", "))
}

// Authenticate exchanges a username/password pair for an access token and
// stores the resulting session on the client.
func (c *Client) Authenticate(username, password string) (*AuthResult, error) {
	payload := map[string]string{
		"Username": username,
		"Pw":       password,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, c.serverURL+"/Users/AuthenticateByName", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.setEmbyHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("%w: invalid username or password", ErrAuth)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: server returned %s - %s", ErrConnection, resp.Status, string(respBody))
	}

	var auth authResponse
	if err := json.NewDecoder(resp.Body).Decode(&auth); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	c.accessToken = auth.AccessToken
	c.userID = auth.User.ID

	return &AuthResult{
		AccessToken: c.accessToken,
		UserID:      c.userID,
		DeviceID:    c.deviceID,
	}, nil
}

// TestConnection checks whether the server is reachable. All failure modes
// collapse to false.
func (c *Client) TestConnection() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+"/System/Info", nil)
	if err != nil {
		return false
	}
	c.setEmbyHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// FetchWatched downloads watched items of one kind. The IsPlayed filter is
// always queried; when includePartial is set a second IsResumable pass is
// merged in, deduplicated by source ID with first-seen values winning.
// A non-nil since restricts the query to items saved at or after that time.
func (c *Client) FetchWatched(kind models.MediaKind, since *time.Time, includePartial bool) ([]models.WatchedRecord, error) {
	var itemTypes string
	switch kind {
	case models.KindMovie:
		itemTypes = "Movie"
	case models.KindEpisode:
		itemTypes = "Episode"
	default:
		return nil, fmt.Errorf("invalid content kind: %q", kind)
	}

	filters := []string{"IsPlayed"}
	if includePartial {
		filters = append(filters, "IsResumable")
	}

	var order []string
	seen := make(map[string]models.WatchedRecord)

	for _, filter := range filters {
		params := url.Values{}
		params.Set("IncludeItemTypes", itemTypes)
		params.Set("Recursive", "true")
		params.Set("Fields", "ProviderIds,UserData,RunTimeTicks,Path")
		params.Set("Filters", filter)
		if since != nil {
			params.Set("MinDateLastSaved", since.Format("2006-01-02T15:04:05"))
		}

		endpoint := fmt.Sprintf("%s/Users/%s/Items?%s", c.serverURL, c.userID, params.Encode())
		req, err := http.NewRequest(http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		c.setEmbyHeaders(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConnection, err)
		}

		func() {
			defer resp.Body.Close()
			switch {
			case resp.StatusCode == http.StatusUnauthorized:
				err = fmt.Errorf("%w: access token expired or invalid", ErrAuth)
			case resp.StatusCode != http.StatusOK:
				err = fmt.Errorf("%w: server returned %s", ErrConnection, resp.Status)
			default:
				var page itemsResponse
				if decErr := json.NewDecoder(resp.Body).Decode(&page); decErr != nil {
					err = fmt.Errorf("decode response: %w", decErr)
					return
				}
				for _, raw := range page.Items {
					rec, ok := parseItem(raw)
					if !ok {
						continue
					}
					if _, dup := seen[rec.SourceID]; dup {
						continue
					}
					seen[rec.SourceID] = rec
					order = append(order, rec.SourceID)
				}
			}
		}()
		if err != nil {
			return nil, err
		}
	}

	records := make([]models.WatchedRecord, 0, len(order))
	for _, id := range order {
		records = append(records, seen[id])
	}
	return records, nil
}
