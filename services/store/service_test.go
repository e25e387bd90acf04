package store

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"embysync/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := New(afero.NewMemMapFs(), "/data")
	require.NoError(t, err)
	return st
}

func sampleRecords() []models.WatchedRecord {
	rating := 8.5
	return []models.WatchedRecord{
		{
			SourceID:          "movie1",
			Title:             "Inception",
			Kind:              models.KindMovie,
			WatchedAt:         time.Date(2025, 11, 15, 20, 30, 0, 0, time.UTC),
			PlayCount:         2,
			IsFullyWatched:    true,
			CompletionPercent: 100.0,
			RuntimeTicks:      8880000000000,
			IMDBID:            "tt1375666",
			TMDBID:            "27205",
			UserRating:        &rating,
		},
		{
			SourceID:          "ep1",
			Title:             "Pilot",
			Kind:              models.KindEpisode,
			WatchedAt:         time.Date(2025, 12, 1, 21, 0, 0, 0, time.UTC),
			PlayCount:         1,
			IsFullyWatched:    true,
			CompletionPercent: 100.0,
			TVDBID:            "123456",
			SeriesName:        "Breaking Bad",
			SeasonNumber:      1,
			EpisodeNumber:     1,
		},
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	st := newTestStore(t)
	records := sampleRecords()

	require.NoError(t, st.SaveSnapshot(records))

	loaded, err := st.LoadSnapshot()
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	assert.Equal(t, records[0].SourceID, loaded[0].SourceID)
	assert.Equal(t, records[0].Kind, loaded[0].Kind)
	assert.Equal(t, records[0].IMDBID, loaded[0].IMDBID)
	assert.True(t, records[0].WatchedAt.Equal(loaded[0].WatchedAt))
	require.NotNil(t, loaded[0].UserRating)
	assert.Equal(t, 8.5, *loaded[0].UserRating)
	assert.Equal(t, records[1].SeriesName, loaded[1].SeriesName)
	assert.Equal(t, records[1].SeasonNumber, loaded[1].SeasonNumber)

	meta, err := st.SnapshotMeta()
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, 2, meta.TotalItems)
	assert.False(t, meta.LastUpdated.IsZero())
}

func TestSnapshotReplacedOnSave(t *testing.T) {
	st := newTestStore(t)
	require.NoError(t, st.SaveSnapshot(sampleRecords()))
	require.NoError(t, st.SaveSnapshot(sampleRecords()[:1]))

	loaded, err := st.LoadSnapshot()
	require.NoError(t, err)
	assert.Len(t, loaded, 1)
}

func TestLoadSnapshotMissing(t *testing.T) {
	st := newTestStore(t)

	loaded, err := st.LoadSnapshot()
	require.NoError(t, err)
	assert.Nil(t, loaded)

	meta, err := st.SnapshotMeta()
	require.NoError(t, err)
	assert.Nil(t, meta)
}

func TestLedgerAppendOnly(t *testing.T) {
	st := newTestStore(t)

	require.NoError(t, st.AddSynced("a", "b"))
	require.NoError(t, st.AddSynced("b", "c"))

	ids, err := st.LoadSynced()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)

	set, err := st.SyncedSet()
	require.NoError(t, err)
	assert.True(t, set["a"])
	assert.False(t, set["z"])
}

func TestUnmatchedOverwritten(t *testing.T) {
	st := newTestStore(t)

	first := []models.UnmatchedItem{
		{Title: "Old Movie", Kind: models.KindMovie, SourceID: "m1", Reason: "No provider IDs"},
		{Title: "Old Episode", Kind: models.KindEpisode, SourceID: "e1", Reason: "No TVDb/IMDb ID for episode"},
	}
	require.NoError(t, st.SaveUnmatched(first))

	second := []models.UnmatchedItem{
		{Title: "New Movie", Kind: models.KindMovie, SourceID: "m2", Reason: "No provider IDs"},
	}
	require.NoError(t, st.SaveUnmatched(second))

	loaded, err := st.LoadUnmatched()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "New Movie", loaded[0].Title)

	// The log represents the last push attempt; an empty push clears it.
	require.NoError(t, st.SaveUnmatched(nil))
	loaded, err = st.LoadUnmatched()
	require.NoError(t, err)
	assert.Empty(t, loaded)
}
