package emby

import (
	"encoding/json"
	"time"

	"embysync/models"
)

// embyItem mirrors the subset of the Items response each record needs.
type embyItem struct {
	ID          string `json:"Id"`
	Name        string `json:"Name"`
	Type        string `json:"Type"`
	SeriesName  string `json:"SeriesName"`
	ParentIndex int    `json:"ParentIndexNumber"`
	Index       int    `json:"IndexNumber"`
	Runtime     int64  `json:"RunTimeTicks"`
	ProviderIDs struct {
		IMDB string `json:"Imdb"`
		TMDB string `json:"Tmdb"`
		TVDB string `json:"Tvdb"`
	} `json:"ProviderIds"`
	UserData struct {
		Played         bool     `json:"Played"`
		PlayCount      int      `json:"PlayCount"`
		LastPlayedDate string   `json:"LastPlayedDate"`
		PositionTicks  int64    `json:"PlaybackPositionTicks"`
		Rating         *float64 `json:"Rating"`
	} `json:"UserData"`
}

// parseItem converts one raw API item into a WatchedRecord. Items of
// unrecognized types return ok=false and are skipped.
func parseItem(raw json.RawMessage) (models.WatchedRecord, bool) {
	var item embyItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return models.WatchedRecord{}, false
	}

	kind, ok := parseKind(item.Type)
	if !ok {
		return models.WatchedRecord{}, false
	}

	rec := models.WatchedRecord{
		SourceID:          item.ID,
		Title:             item.Name,
		Kind:              kind,
		WatchedAt:         parseWatchedDate(item.UserData.LastPlayedDate),
		PlayCount:         item.UserData.PlayCount,
		IsFullyWatched:    item.UserData.Played,
		CompletionPercent: models.CompletionPercent(item.UserData.PositionTicks, item.Runtime, item.UserData.Played),
		PositionTicks:     item.UserData.PositionTicks,
		RuntimeTicks:      item.Runtime,
		IMDBID:            item.ProviderIDs.IMDB,
		TMDBID:            item.ProviderIDs.TMDB,
		TVDBID:            item.ProviderIDs.TVDB,
		UserRating:        item.UserData.Rating,
	}

	if kind == models.KindEpisode {
		rec.SeriesName = item.SeriesName
		rec.SeasonNumber = item.ParentIndex
		rec.EpisodeNumber = item.Index
	}

	var meta map[string]any
	if err := json.Unmarshal(raw, &meta); err == nil {
		rec.Raw = meta
	}

	return rec, true
}

func parseKind(itemType string) (models.MediaKind, bool) {
	switch itemType {
	case "Movie":
		return models.KindMovie, true
	case "Episode":
		return models.KindEpisode, true
	}
	return "", false
}

// parseWatchedDate handles Emby's seven-digit fractional second timestamps.
// A missing or unparsable date falls back to the current time.
func parseWatchedDate(s string) time.Time {
	if s == "" {
		return time.Now().UTC()
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return t
	}
	return time.Now().UTC()
}
