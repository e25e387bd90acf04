// Package store persists the local sync state: the watched snapshot, the
// synced-id ledger, and the unmatched-items log. Each concern lives in its
// own YAML file and every save fully rewrites that file.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"embysync/models"
)

const (
	snapshotFile  = "watched.yaml"
	ledgerFile    = "synced.yaml"
	unmatchedFile = "unmatched.yaml"
)

// Store manages the state files inside one data directory.
type Store struct {
	fs      afero.Fs
	dataDir string
}

// New creates a store rooted at dataDir, creating the directory if needed.
func New(fsys afero.Fs, dataDir string) (*Store, error) {
	if dataDir == "" {
		return nil, errors.New("data directory not provided")
	}
	if err := fsys.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &Store{fs: fsys, dataDir: dataDir}, nil
}

// snapshotDoc is the on-disk layout of watched.yaml.
type snapshotDoc struct {
	Meta  models.SnapshotMeta    `yaml:"sync_metadata"`
	Items []models.WatchedRecord `yaml:"watched_items"`
}

// ledgerDoc is the on-disk layout of synced.yaml.
type ledgerDoc struct {
	UpdatedAt time.Time `yaml:"updated_at"`
	SourceIDs []string  `yaml:"source_ids"`
}

// unmatchedDoc is the on-disk layout of unmatched.yaml.
type unmatchedDoc struct {
	LoggedAt time.Time              `yaml:"logged_at"`
	Count    int                    `yaml:"count"`
	Items    []models.UnmatchedItem `yaml:"items"`
}

func (s *Store) writeYAML(name string, doc any) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	path := filepath.Join(s.dataDir, name)
	tmp := path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}

// readYAML loads a state file into doc. Missing files report found=false.
func (s *Store) readYAML(name string, doc any) (bool, error) {
	data, err := afero.ReadFile(s.fs, filepath.Join(s.dataDir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read %s: %w", name, err)
	}
	if err := yaml.Unmarshal(data, doc); err != nil {
		return false, fmt.Errorf("parse %s: %w", name, err)
	}
	return true, nil
}

// SaveSnapshot replaces the watched snapshot with the given records.
func (s *Store) SaveSnapshot(items []models.WatchedRecord) error {
	doc := snapshotDoc{
		Meta: models.SnapshotMeta{
			LastUpdated: time.Now().UTC(),
			TotalItems:  len(items),
		},
		Items: items,
	}
	return s.writeYAML(snapshotFile, doc)
}

// LoadSnapshot returns the persisted watched records, or nil when no
// snapshot has been written yet.
func (s *Store) LoadSnapshot() ([]models.WatchedRecord, error) {
	var doc snapshotDoc
	found, err := s.readYAML(snapshotFile, &doc)
	if err != nil || !found {
		return nil, err
	}
	return doc.Items, nil
}

// SnapshotMeta returns the metadata of the current snapshot, or nil when no
// snapshot exists.
func (s *Store) SnapshotMeta() (*models.SnapshotMeta, error) {
	var doc snapshotDoc
	found, err := s.readYAML(snapshotFile, &doc)
	if err != nil || !found {
		return nil, err
	}
	return &doc.Meta, nil
}

// LoadSynced returns the synced-id ledger in insertion order.
func (s *Store) LoadSynced() ([]string, error) {
	var doc ledgerDoc
	if _, err := s.readYAML(ledgerFile, &doc); err != nil {
		return nil, err
	}
	return doc.SourceIDs, nil
}

// SyncedSet returns the ledger as a membership set.
func (s *Store) SyncedSet() (map[string]bool, error) {
	ids, err := s.LoadSynced()
	if err != nil {
		return nil, err
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set, nil
}

// AddSynced appends source IDs to the ledger, skipping ones already present.
// The ledger only grows; there is no removal short of deleting the file.
func (s *Store) AddSynced(sourceIDs ...string) error {
	var doc ledgerDoc
	if _, err := s.readYAML(ledgerFile, &doc); err != nil {
		return err
	}

	present := make(map[string]bool, len(doc.SourceIDs))
	for _, id := range doc.SourceIDs {
		present[id] = true
	}
	for _, id := range sourceIDs {
		if present[id] {
			continue
		}
		present[id] = true
		doc.SourceIDs = append(doc.SourceIDs, id)
	}

	doc.UpdatedAt = time.Now().UTC()
	return s.writeYAML(ledgerFile, doc)
}

// SaveUnmatched overwrites the unmatched log. The log describes the last
// push attempt only, so prior contents are discarded even when items is
// empty.
func (s *Store) SaveUnmatched(items []models.UnmatchedItem) error {
	doc := unmatchedDoc{
		LoggedAt: time.Now().UTC(),
		Count:    len(items),
		Items:    items,
	}
	return s.writeYAML(unmatchedFile, doc)
}

// LoadUnmatched returns the unmatched items from the last push attempt.
func (s *Store) LoadUnmatched() ([]models.UnmatchedItem, error) {
	var doc unmatchedDoc
	if _, err := s.readYAML(unmatchedFile, &doc); err != nil {
		return nil, err
	}
	return doc.Items, nil
}
