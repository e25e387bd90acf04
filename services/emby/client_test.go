package emby

import (
	"bytes"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"embysync/models"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     make(http.Header),
	}
}

func newTestClient(rt roundTripFunc, opts ...Option) *Client {
	opts = append(opts, WithHTTPClient(&http.Client{Transport: rt}))
	return New("https://emby.example.com", opts...)
}

func TestAuthenticateSuccess(t *testing.T) {
	var captured *http.Request
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		captured = req
		return jsonResponse(http.StatusOK, `{"AccessToken":"token123","User":{"Id":"user456"}}`), nil
	})

	auth, err := client.Authenticate("testuser", "testpass")
	require.NoError(t, err)
	assert.Equal(t, "token123", auth.AccessToken)
	assert.Equal(t, "user456", auth.UserID)
	assert.NotEmpty(t, auth.DeviceID)

	require.NotNil(t, captured)
	assert.Equal(t, "/Users/AuthenticateByName", captured.URL.Path)
	assert.Contains(t, captured.Header.Get("X-Emby-Authorization"), `MediaBrowser Client="embysync"`)
	assert.Contains(t, captured.Header.Get("X-Emby-Authorization"), `DeviceId=`)
}

func TestAuthenticateBadCredentials(t *testing.T) {
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusUnauthorized, ``), nil
	})

	_, err := client.Authenticate("testuser", "wrong")
	assert.ErrorIs(t, err, ErrAuth)
}

func TestAuthenticateServerError(t *testing.T) {
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusInternalServerError, ``), nil
	})

	_, err := client.Authenticate("testuser", "testpass")
	assert.ErrorIs(t, err, ErrConnection)
}

func TestTestConnection(t *testing.T) {
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "/System/Info", req.URL.Path)
		return jsonResponse(http.StatusOK, `{"ServerName":"My Emby"}`), nil
	})
	assert.True(t, client.TestConnection())

	client = newTestClient(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusUnauthorized, ``), nil
	})
	assert.False(t, client.TestConnection())

	client = newTestClient(func(req *http.Request) (*http.Response, error) {
		return nil, io.ErrUnexpectedEOF
	})
	assert.False(t, client.TestConnection())
}

const movieItem = `{
	"Id": "movie1",
	"Name": "Inception",
	"Type": "Movie",
	"RunTimeTicks": 8880000000000,
	"ProviderIds": {"Imdb": "tt1375666", "Tmdb": "27205"},
	"UserData": {
		"Played": true,
		"PlayCount": 2,
		"LastPlayedDate": "2025-11-15T20:30:00.0000000Z",
		"PlaybackPositionTicks": 0
	}
}`

const episodeItem = `{
	"Id": "ep1",
	"Name": "Pilot",
	"Type": "Episode",
	"SeriesName": "Breaking Bad",
	"ParentIndexNumber": 1,
	"IndexNumber": 1,
	"RunTimeTicks": 3600000000000,
	"ProviderIds": {"Tvdb": "123456"},
	"UserData": {
		"Played": true,
		"PlayCount": 1,
		"LastPlayedDate": "2025-12-01T21:00:00.0000000Z",
		"PlaybackPositionTicks": 0
	}
}`

func TestFetchWatchedMovies(t *testing.T) {
	var requests []*http.Request
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		requests = append(requests, req)
		return jsonResponse(http.StatusOK, `{"Items":[`+movieItem+`],"TotalRecordCount":1}`), nil
	}, WithSession("token", "user456", "dev1"))

	records, err := client.FetchWatched(models.KindMovie, nil, true)
	require.NoError(t, err)

	// One pass per filter, deduplicated down to a single record.
	require.Len(t, requests, 2)
	assert.Equal(t, "IsPlayed", requests[0].URL.Query().Get("Filters"))
	assert.Equal(t, "IsResumable", requests[1].URL.Query().Get("Filters"))
	assert.Equal(t, "/Users/user456/Items", requests[0].URL.Path)
	assert.Equal(t, "Movie", requests[0].URL.Query().Get("IncludeItemTypes"))
	assert.Empty(t, requests[0].URL.Query().Get("MinDateLastSaved"))

	require.Len(t, records, 1)
	rec := records[0]
	assert.Equal(t, "movie1", rec.SourceID)
	assert.Equal(t, models.KindMovie, rec.Kind)
	assert.Equal(t, "Inception", rec.Title)
	assert.Equal(t, "tt1375666", rec.IMDBID)
	assert.Equal(t, "27205", rec.TMDBID)
	assert.Equal(t, 2, rec.PlayCount)
	assert.True(t, rec.IsFullyWatched)
	assert.Equal(t, 0.0, rec.CompletionPercent)
	assert.Empty(t, rec.SeriesName)
	assert.Zero(t, rec.SeasonNumber)
}

func TestFetchWatchedEpisodeFields(t *testing.T) {
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"Items":[`+episodeItem+`],"TotalRecordCount":1}`), nil
	}, WithSession("token", "user456", "dev1"))

	records, err := client.FetchWatched(models.KindEpisode, nil, false)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, models.KindEpisode, rec.Kind)
	assert.Equal(t, "Breaking Bad", rec.SeriesName)
	assert.Equal(t, 1, rec.SeasonNumber)
	assert.Equal(t, 1, rec.EpisodeNumber)
	assert.Equal(t, "123456", rec.TVDBID)
	assert.Equal(t, 2025, rec.WatchedAt.Year())
}

func TestFetchWatchedSincePassesLowerBound(t *testing.T) {
	since := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	var captured string
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		captured = req.URL.Query().Get("MinDateLastSaved")
		return jsonResponse(http.StatusOK, `{"Items":[]}`), nil
	}, WithSession("token", "user456", "dev1"))

	_, err := client.FetchWatched(models.KindMovie, &since, false)
	require.NoError(t, err)
	assert.Equal(t, "2025-12-01T00:00:00", captured)
}

func TestFetchWatchedDeduplicatesAcrossFilters(t *testing.T) {
	// The same item matching both IsPlayed and IsResumable must appear once,
	// with the first pass's field values.
	first := `{"Id":"m1","Name":"First Seen","Type":"Movie","UserData":{"Played":true,"PlayCount":3}}`
	second := `{"Id":"m1","Name":"Second Seen","Type":"Movie","UserData":{"Played":false,"PlayCount":1}}`

	call := 0
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		call++
		if call == 1 {
			return jsonResponse(http.StatusOK, `{"Items":[`+first+`]}`), nil
		}
		return jsonResponse(http.StatusOK, `{"Items":[`+second+`]}`), nil
	}, WithSession("token", "user456", "dev1"))

	records, err := client.FetchWatched(models.KindMovie, nil, true)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "First Seen", records[0].Title)
	assert.Equal(t, 3, records[0].PlayCount)
}

func TestFetchWatchedSkipsUnknownTypes(t *testing.T) {
	body := `{"Items":[{"Id":"x1","Name":"Some Trailer","Type":"Trailer"},` + movieItem + `]}`
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, body), nil
	}, WithSession("token", "user456", "dev1"))

	records, err := client.FetchWatched(models.KindMovie, nil, false)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "movie1", records[0].SourceID)
}

func TestFetchWatchedExpiredToken(t *testing.T) {
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusUnauthorized, ``), nil
	}, WithSession("stale", "user456", "dev1"))

	_, err := client.FetchWatched(models.KindMovie, nil, false)
	assert.ErrorIs(t, err, ErrAuth)
}

func TestFetchWatchedInvalidKind(t *testing.T) {
	client := newTestClient(func(req *http.Request) (*http.Response, error) {
		t.Fatal("no request expected")
		return nil, nil
	})

	_, err := client.FetchWatched(models.MediaKind("trailer"), nil, false)
	assert.Error(t, err)
}
