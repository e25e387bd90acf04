// Package sync implements the reconciliation pipeline between the Emby
// source and the Trakt sink: download, normalize, partition, push, and
// record the outcome.
package sync

import (
	"fmt"
	"time"

	"embysync/config"
	"embysync/models"
	"embysync/services/store"
	"embysync/services/trakt"
)

// ContentFilter selects which record kinds a download or push touches.
type ContentFilter string

const (
	ContentMovies   ContentFilter = "movies"
	ContentEpisodes ContentFilter = "episodes"
	ContentAll      ContentFilter = "all"
)

// Kinds expands the filter into the concrete media kinds it covers.
func (f ContentFilter) Kinds() []models.MediaKind {
	switch f {
	case ContentMovies:
		return []models.MediaKind{models.KindMovie}
	case ContentEpisodes:
		return []models.MediaKind{models.KindEpisode}
	default:
		return []models.MediaKind{models.KindMovie, models.KindEpisode}
	}
}

// Valid reports whether the filter is one of the accepted values.
func (f ContentFilter) Valid() bool {
	switch f {
	case ContentMovies, ContentEpisodes, ContentAll:
		return true
	}
	return false
}

// SourceClient fetches watched records from the media server.
type SourceClient interface {
	FetchWatched(kind models.MediaKind, since *time.Time, includePartial bool) ([]models.WatchedRecord, error)
}

// SinkClient pushes history and ratings to the tracking service.
type SinkClient interface {
	SyncHistory(accessToken string, records []models.WatchedRecord) (*trakt.SyncResult, error)
	SyncRatings(accessToken string, records []models.WatchedRecord) (*trakt.SyncResult, error)
}

// TokenRefresher exchanges a refresh token for a fresh token pair.
type TokenRefresher interface {
	RefreshToken(refreshToken string) (*trakt.TokenResponse, error)
}

// Service wires the source client, sink client, and local state into the
// sync pipeline. Execution is strictly sequential; a failed remote call
// aborts the run and the user re-runs the command.
type Service struct {
	source    SourceClient
	sink      SinkClient
	refresher TokenRefresher
	store     *store.Store
	cfg       *config.Manager
}

// NewService constructs the pipeline. The refresher may be nil when the
// caller guarantees a fresh access token.
func NewService(source SourceClient, sink SinkClient, refresher TokenRefresher, st *store.Store, cfg *config.Manager) *Service {
	return &Service{
		source:    source,
		sink:      sink,
		refresher: refresher,
		store:     st,
		cfg:       cfg,
	}
}

// DownloadOptions controls one download run. Mode overrides the configured
// sync mode when non-empty.
type DownloadOptions struct {
	Mode    string
	Content ContentFilter
}

// DownloadReport summarizes one download run.
type DownloadReport struct {
	Mode     string
	Total    int
	Movies   int
	Episodes int
	Since    *time.Time
}

// Download fetches watched items from the source and replaces the local
// snapshot with the result. Incremental mode only narrows what is fetched;
// the snapshot always reflects exactly this download. The synced-id ledger,
// not the snapshot, is what keeps pushes idempotent across runs.
func (s *Service) Download(opts DownloadOptions) (*DownloadReport, error) {
	cfg, err := s.cfg.Load()
	if err != nil {
		return nil, err
	}

	mode := cfg.Sync.Mode
	if opts.Mode != "" {
		mode = opts.Mode
	}
	if mode != config.ModeFull && mode != config.ModeIncremental {
		return nil, fmt.Errorf("%w: unknown sync mode %q", config.ErrInvalid, mode)
	}

	var since *time.Time
	if mode == config.ModeIncremental && cfg.Sync.LastSync != nil {
		since = cfg.Sync.LastSync
	}

	var records []models.WatchedRecord
	for _, kind := range opts.Content.Kinds() {
		fetched, err := s.source.FetchWatched(kind, since, true)
		if err != nil {
			return nil, err
		}
		records = append(records, fetched...)
	}

	if err := s.store.SaveSnapshot(records); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	cfg.Sync.LastSync = &now
	if err := s.cfg.Save(cfg); err != nil {
		return nil, err
	}

	report := &DownloadReport{Mode: mode, Total: len(records), Since: since}
	for _, rec := range records {
		switch rec.Kind {
		case models.KindMovie:
			report.Movies++
		case models.KindEpisode:
			report.Episodes++
		}
	}
	return report, nil
}

// PushOptions controls one push run.
type PushOptions struct {
	Content ContentFilter
	DryRun  bool
	Ratings bool
}

// PushReport summarizes one push run. AddedMovies and AddedEpisodes are the
// sink's own counts and can be lower than Submitted when the sink already
// had some of the items.
type PushReport struct {
	Total         int
	Syncable      int
	Unmatched     int
	AlreadySynced int
	Submitted     int
	AddedMovies   int
	AddedEpisodes int
	RatedMovies   int
	RatedEpisodes int
	DryRun        bool
}

// Unmatched-log reasons. The first marks records with no provider IDs at
// all; the others mark records whose IDs cannot produce a payload for their
// kind.
const (
	ReasonNoProviderIDs = "No provider IDs"
	ReasonNoMovieIDs    = "No IMDb/TMDb ID for movie"
	ReasonNoEpisodeIDs  = "No TVDb/IMDb ID for episode"
)

func unmatchedReason(rec models.WatchedRecord) string {
	if !rec.Matchable() {
		return ReasonNoProviderIDs
	}
	if rec.Kind == models.KindMovie {
		return ReasonNoMovieIDs
	}
	return ReasonNoEpisodeIDs
}

func toUnmatched(rec models.WatchedRecord) models.UnmatchedItem {
	return models.UnmatchedItem{
		Title:    rec.Title,
		Kind:     rec.Kind,
		SourceID: rec.SourceID,
		IMDBID:   rec.IMDBID,
		TMDBID:   rec.TMDBID,
		TVDBID:   rec.TVDBID,
		Reason:   unmatchedReason(rec),
	}
}

// Push reconciles the local snapshot against the sink. The partition into
// syncable and unmatched is recomputed on every call; records already in the
// synced-id ledger are skipped before the network push. Dry runs compute the
// same partition but perform no network call and write no state.
func (s *Service) Push(opts PushOptions) (*PushReport, error) {
	snapshot, err := s.store.LoadSnapshot()
	if err != nil {
		return nil, err
	}

	var records []models.WatchedRecord
	kinds := make(map[models.MediaKind]bool)
	for _, kind := range opts.Content.Kinds() {
		kinds[kind] = true
	}
	for _, rec := range snapshot {
		if kinds[rec.Kind] {
			records = append(records, rec)
		}
	}

	synced, err := s.store.SyncedSet()
	if err != nil {
		return nil, err
	}

	report := &PushReport{Total: len(records), DryRun: opts.DryRun}

	var (
		submittable []models.WatchedRecord
		unmatched   []models.UnmatchedItem
	)
	for _, rec := range records {
		if !rec.Matchable() {
			report.Unmatched++
			unmatched = append(unmatched, toUnmatched(rec))
			continue
		}
		report.Syncable++
		if synced[rec.SourceID] {
			report.AlreadySynced++
			continue
		}
		if trakt.HistoryIDs(rec) == nil {
			// Has some provider ID, just not one the sink accepts for
			// this kind.
			unmatched = append(unmatched, toUnmatched(rec))
			continue
		}
		submittable = append(submittable, rec)
	}
	report.Submitted = len(submittable)

	if opts.DryRun {
		return report, nil
	}

	token, err := s.freshAccessToken()
	if err != nil {
		return nil, err
	}

	result, err := s.sink.SyncHistory(token, submittable)
	if err != nil {
		return nil, err
	}
	report.AddedMovies = result.Added.Movies
	report.AddedEpisodes = result.Added.Episodes

	if opts.Ratings {
		rated, err := s.sink.SyncRatings(token, submittable)
		if err != nil {
			return nil, err
		}
		report.RatedMovies = rated.Added.Movies
		report.RatedEpisodes = rated.Added.Episodes
	}

	ids := make([]string, 0, len(submittable))
	for _, rec := range submittable {
		ids = append(ids, rec.SourceID)
	}
	if len(ids) > 0 {
		if err := s.store.AddSynced(ids...); err != nil {
			return nil, err
		}
	}
	if err := s.store.SaveUnmatched(unmatched); err != nil {
		return nil, err
	}

	return report, nil
}

// freshAccessToken returns a valid sink access token, refreshing and
// persisting a new pair when the current one is within an hour of expiry.
func (s *Service) freshAccessToken() (string, error) {
	cfg, err := s.cfg.Load()
	if err != nil {
		return "", err
	}
	if !cfg.TraktConfigured() {
		return "", fmt.Errorf("%w: trakt is not set up, run 'embysync trakt setup'", config.ErrNotConfigured)
	}

	tr := cfg.Trakt
	if s.refresher != nil && tr.ExpiresAt > 0 && tr.RefreshToken != "" {
		if time.Until(time.Unix(tr.ExpiresAt, 0)) < time.Hour {
			token, err := s.refresher.RefreshToken(tr.RefreshToken)
			if err != nil {
				return "", err
			}
			tr.AccessToken = token.AccessToken
			tr.RefreshToken = token.RefreshToken
			tr.ExpiresAt = token.CreatedAt + int64(token.ExpiresIn)
			if err := s.cfg.Save(cfg); err != nil {
				return "", err
			}
		}
	}
	return tr.AccessToken, nil
}
