package config

import (
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingConfig(t *testing.T) {
	m := NewManager(afero.NewMemMapFs(), "/data")

	assert.False(t, m.Exists())
	_, err := m.Load()
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	m := NewManager(afero.NewMemMapFs(), "/data")

	lastSync := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	cfg := &Config{
		Emby: &EmbySettings{
			ServerURL:   "https://emby.example.com",
			UserID:      "user456",
			AccessToken: "token123",
			DeviceID:    "dev1",
		},
		Trakt: &TraktSettings{
			ClientID:     "cid",
			ClientSecret: "secret",
			AccessToken:  "access",
			RefreshToken: "refresh",
			ExpiresAt:    1700000000,
		},
		Sync: SyncSettings{Mode: ModeFull, LastSync: &lastSync},
	}
	require.NoError(t, m.Save(cfg))
	assert.True(t, m.Exists())

	loaded, err := m.Load()
	require.NoError(t, err)
	require.NotNil(t, loaded.Emby)
	assert.Equal(t, "https://emby.example.com", loaded.Emby.ServerURL)
	assert.Equal(t, "token123", loaded.Emby.AccessToken)
	require.NotNil(t, loaded.Trakt)
	assert.Equal(t, "refresh", loaded.Trakt.RefreshToken)
	assert.Equal(t, ModeFull, loaded.Sync.Mode)
	require.NotNil(t, loaded.Sync.LastSync)
	assert.True(t, lastSync.Equal(*loaded.Sync.LastSync))

	assert.True(t, loaded.EmbyConfigured())
	assert.True(t, loaded.TraktConfigured())
}

func TestSectionsAbsentByDefault(t *testing.T) {
	m := NewManager(afero.NewMemMapFs(), "/data")
	require.NoError(t, m.Save(&Config{}))

	loaded, err := m.Load()
	require.NoError(t, err)
	assert.Nil(t, loaded.Emby)
	assert.Nil(t, loaded.Trakt)
	assert.False(t, loaded.EmbyConfigured())
	assert.False(t, loaded.TraktConfigured())
	assert.Equal(t, ModeIncremental, loaded.Sync.Mode, "mode defaults to incremental")
}

func TestInvalidSyncMode(t *testing.T) {
	fsys := afero.NewMemMapFs()
	m := NewManager(fsys, "/data")
	require.NoError(t, afero.WriteFile(fsys, m.Path(), []byte("sync:\n  mode: weekly\n"), 0o600))

	_, err := m.Load()
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestCorruptConfig(t *testing.T) {
	fsys := afero.NewMemMapFs()
	m := NewManager(fsys, "/data")
	require.NoError(t, afero.WriteFile(fsys, m.Path(), []byte("{not yaml"), 0o600))

	_, err := m.Load()
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestSaveOwnerOnlyPermissions(t *testing.T) {
	fsys := afero.NewOsFs()
	m := NewManager(fsys, t.TempDir())

	require.NoError(t, m.Save(&Config{}))

	info, err := fsys.Stat(m.Path())
	require.NoError(t, err)
	assert.Equal(t, "-rw-------", info.Mode().String())
}
