package trakt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"embysync/models"
)

const (
	apiBaseURL = "https://api.trakt.tv"
	apiVersion = "2"
)

// ErrSync indicates the Trakt API rejected a history or ratings operation.
var ErrSync = errors.New("trakt sync failed")

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 60 * time.Second}
}

// Client talks to the Trakt sync API. The access token is passed into each
// call rather than stored, so one client serves a whole command invocation
// even when the token is refreshed mid-run.
type Client struct {
	httpClient *http.Client
	clientID   string
}

// NewClient creates a Trakt API client. A nil httpc uses the default client.
func NewClient(clientID string, httpc *http.Client) *Client {
	if httpc == nil {
		httpc = defaultHTTPClient()
	}
	return &Client{httpClient: httpc, clientID: clientID}
}

// SyncIDs holds external identifiers in the shape the sync endpoints expect.
type SyncIDs struct {
	IMDB string `json:"imdb,omitempty"`
	TMDB int    `json:"tmdb,omitempty"`
	TVDB int    `json:"tvdb,omitempty"`
}

// historyEntry is one movie or episode in a /sync/history payload.
type historyEntry struct {
	WatchedAt string  `json:"watched_at,omitempty"`
	Rating    int     `json:"rating,omitempty"`
	IDs       SyncIDs `json:"ids"`
}

// syncRequest is the request body for /sync/history and /sync/ratings.
type syncRequest struct {
	Movies   []historyEntry `json:"movies,omitempty"`
	Episodes []historyEntry `json:"episodes,omitempty"`
}

// SyncResult reports how many items the sink actually added. The counts come
// from Trakt and may be lower than the number submitted when items were
// already in the remote history.
type SyncResult struct {
	Added struct {
		Movies   int `json:"movies"`
		Episodes int `json:"episodes"`
	} `json:"added"`
}

// RemoveResult reports how many items a history removal deleted.
type RemoveResult struct {
	Deleted struct {
		Movies   int `json:"movies"`
		Episodes int `json:"episodes"`
	} `json:"deleted"`
}

// WatchedMovie is one entry from /sync/watched/movies.
type WatchedMovie struct {
	Plays int `json:"plays"`
	Movie struct {
		Title string         `json:"title"`
		Year  int            `json:"year"`
		IDs   map[string]any `json:"ids"`
	} `json:"movie"`
}

// WatchedShow is one entry from /sync/watched/shows.
type WatchedShow struct {
	Plays int `json:"plays"`
	Show  struct {
		Title string         `json:"title"`
		Year  int            `json:"year"`
		IDs   map[string]any `json:"ids"`
	} `json:"show"`
}

func (c *Client) setHeaders(req *http.Request, accessToken string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("trakt-api-key", c.clientID)
	req.Header.Set("trakt-api-version", apiVersion)
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
}

// TestConnection checks whether the access token is valid. All failure
// modes collapse to false.
func (c *Client) TestConnection(accessToken string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiBaseURL+"/users/me", nil)
	if err != nil {
		return false
	}
	c.setHeaders(req, accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode == http.StatusOK
}

// HistoryIDs returns the identifier set a record would submit with, or nil
// when the record has no usable ID for its kind. Movies prefer IMDb and fall
// back to TMDb; episodes prefer TVDb and fall back to IMDb. The preference
// order is the sink's matching contract, not a local choice.
func HistoryIDs(rec models.WatchedRecord) *SyncIDs {
	switch rec.Kind {
	case models.KindMovie:
		if rec.IMDBID != "" {
			return &SyncIDs{IMDB: rec.IMDBID}
		}
		if id, err := strconv.Atoi(rec.TMDBID); err == nil && id > 0 {
			return &SyncIDs{TMDB: id}
		}
	case models.KindEpisode:
		if id, err := strconv.Atoi(rec.TVDBID); err == nil && id > 0 {
			return &SyncIDs{TVDB: id}
		}
		if rec.IMDBID != "" {
			return &SyncIDs{IMDB: rec.IMDBID}
		}
	}
	return nil
}

func buildSyncRequest(records []models.WatchedRecord, withRatings bool) syncRequest {
	var req syncRequest
	for _, rec := range records {
		ids := HistoryIDs(rec)
		if ids == nil {
			continue
		}
		entry := historyEntry{
			WatchedAt: rec.WatchedAt.UTC().Format(time.RFC3339),
			IDs:       *ids,
		}
		if withRatings {
			if rec.UserRating == nil {
				continue
			}
			entry.Rating = clampRating(*rec.UserRating)
		}
		switch rec.Kind {
		case models.KindMovie:
			req.Movies = append(req.Movies, entry)
		case models.KindEpisode:
			req.Episodes = append(req.Episodes, entry)
		}
	}
	return req
}

// clampRating maps a source rating onto Trakt's 1-10 integer scale.
func clampRating(r float64) int {
	v := int(r)
	if v < 1 {
		return 1
	}
	if v > 10 {
		return 10
	}
	return v
}

func (c *Client) postSync(accessToken, path string, payload any, dest any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequest(http.MethodPost, apiBaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req, accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: %s returned %s - %s", ErrSync, path, resp.Status, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) getSync(accessToken, path string, dest any) error {
	req, err := http.NewRequest(http.MethodGet, apiBaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req, accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned %s", ErrSync, path, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// SyncHistory pushes watched records to the user's history in one batch.
// Records without a usable identifier for their kind are left out of the
// payload; an entirely empty payload returns zero counts without a network
// call.
func (c *Client) SyncHistory(accessToken string, records []models.WatchedRecord) (*SyncResult, error) {
	payload := buildSyncRequest(records, false)
	if len(payload.Movies) == 0 && len(payload.Episodes) == 0 {
		return &SyncResult{}, nil
	}

	var result SyncResult
	if err := c.postSync(accessToken, "/sync/history", payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SyncRatings pushes user ratings for the given records, clamped to the
// sink's 1-10 scale. Records without a rating or a usable ID are skipped.
func (c *Client) SyncRatings(accessToken string, records []models.WatchedRecord) (*SyncResult, error) {
	payload := buildSyncRequest(records, true)
	if len(payload.Movies) == 0 && len(payload.Episodes) == 0 {
		return &SyncResult{}, nil
	}

	var result SyncResult
	if err := c.postSync(accessToken, "/sync/ratings", payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetWatchedMovies retrieves every watched movie in the remote history.
func (c *Client) GetWatchedMovies(accessToken string) ([]WatchedMovie, error) {
	var movies []WatchedMovie
	if err := c.getSync(accessToken, "/sync/watched/movies", &movies); err != nil {
		return nil, err
	}
	return movies, nil
}

// GetWatchedShows retrieves every watched show in the remote history.
func (c *Client) GetWatchedShows(accessToken string) ([]WatchedShow, error) {
	var shows []WatchedShow
	if err := c.getSync(accessToken, "/sync/watched/shows", &shows); err != nil {
		return nil, err
	}
	return shows, nil
}

// removeEntry identifies one item in a /sync/history/remove payload.
type removeEntry struct {
	IDs map[string]any `json:"ids"`
}

// removeRequest is the request body for /sync/history/remove.
type removeRequest struct {
	Movies []removeEntry `json:"movies,omitempty"`
	Shows  []removeEntry `json:"shows,omitempty"`
}

// RemoveFromHistory deletes the given watched items from the remote history.
// There is no undo on the Trakt side.
func (c *Client) RemoveFromHistory(accessToken string, movies []WatchedMovie, shows []WatchedShow) (*RemoveResult, error) {
	var payload removeRequest
	for _, m := range movies {
		payload.Movies = append(payload.Movies, removeEntry{IDs: m.Movie.IDs})
	}
	for _, s := range shows {
		payload.Shows = append(payload.Shows, removeEntry{IDs: s.Show.IDs})
	}
	if len(payload.Movies) == 0 && len(payload.Shows) == 0 {
		return &RemoveResult{}, nil
	}

	var result RemoveResult
	if err := c.postSync(accessToken, "/sync/history/remove", payload, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ClearAllHistory fetches the full remote history and removes all of it.
func (c *Client) ClearAllHistory(accessToken string) (*RemoveResult, error) {
	movies, err := c.GetWatchedMovies(accessToken)
	if err != nil {
		return nil, err
	}
	shows, err := c.GetWatchedShows(accessToken)
	if err != nil {
		return nil, err
	}
	return c.RemoveFromHistory(accessToken, movies, shows)
}
