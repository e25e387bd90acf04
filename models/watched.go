package models

import (
	"math"
	"time"
)

// MediaKind classifies a watched record. Kinds outside the two constants
// below are dropped at ingestion and never stored.
type MediaKind string

const (
	KindMovie   MediaKind = "movie"
	KindEpisode MediaKind = "episode"
)

// ParseMediaKind maps a source item type to a MediaKind. The second return
// is false for unrecognized types.
func ParseMediaKind(s string) (MediaKind, bool) {
	switch MediaKind(s) {
	case KindMovie, KindEpisode:
		return MediaKind(s), true
	}
	return "", false
}

// WatchedRecord is the canonical representation of one playback fact from
// the source server.
type WatchedRecord struct {
	SourceID string    `yaml:"source_id"`
	Title    string    `yaml:"title"`
	Kind     MediaKind `yaml:"kind"`

	WatchedAt         time.Time `yaml:"watched_at"`
	PlayCount         int       `yaml:"play_count"`
	IsFullyWatched    bool      `yaml:"is_fully_watched"`
	CompletionPercent float64   `yaml:"completion_percent"`
	PositionTicks     int64     `yaml:"position_ticks"`
	RuntimeTicks      int64     `yaml:"runtime_ticks"`

	// Provider IDs used to match the item on the sink side. Empty means
	// absent.
	IMDBID string `yaml:"imdb_id,omitempty"`
	TMDBID string `yaml:"tmdb_id,omitempty"`
	TVDBID string `yaml:"tvdb_id,omitempty"`

	// User rating on the source's scale; nil when the user never rated it.
	UserRating *float64 `yaml:"user_rating,omitempty"`

	// Episode-only fields, never populated for movies.
	SeriesName    string `yaml:"series_name,omitempty"`
	SeasonNumber  int    `yaml:"season_number,omitempty"`
	EpisodeNumber int    `yaml:"episode_number,omitempty"`

	// Raw holds the source item as returned by the API, kept for debugging.
	Raw map[string]any `yaml:"raw_metadata,omitempty"`
}

// Matchable reports whether the record carries at least one provider ID and
// can therefore be looked up on the sink.
func (r WatchedRecord) Matchable() bool {
	return r.IMDBID != "" || r.TMDBID != "" || r.TVDBID != ""
}

// CompletionPercent computes playback completion from position and runtime
// ticks, clamped to [0, 100] and rounded to two decimals. An item with zero
// runtime counts as fully complete only when the source marked it played.
func CompletionPercent(positionTicks, runtimeTicks int64, played bool) float64 {
	if runtimeTicks <= 0 {
		if played {
			return 100.0
		}
		return 0.0
	}
	pct := float64(positionTicks) / float64(runtimeTicks) * 100
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	return math.Round(pct*100) / 100
}

// SnapshotMeta describes one full download of watched records.
type SnapshotMeta struct {
	LastUpdated time.Time `yaml:"last_updated"`
	TotalItems  int       `yaml:"total_items"`
}

// UnmatchedItem records a watched item that could not be pushed to the sink,
// with the provider IDs that were available and the reason it was skipped.
type UnmatchedItem struct {
	Title    string    `yaml:"title"`
	Kind     MediaKind `yaml:"item_type"`
	SourceID string    `yaml:"source_id"`
	IMDBID   string    `yaml:"imdb_id,omitempty"`
	TMDBID   string    `yaml:"tmdb_id,omitempty"`
	TVDBID   string    `yaml:"tvdb_id,omitempty"`
	Reason   string    `yaml:"reason"`
}
