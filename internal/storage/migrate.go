package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/swipswaps/Marketplace-Listing-Generator/internal/listing"
)

// Legacy layout: older versions persisted three independent JSON records
// as files in the config directory. Migrate imports them into SQLite.
const (
	legacyHistoryFile = "history.json"
	legacySavedFile   = "saved.json"
	legacyKeysFile    = "api_keys.json"

	migrationMarker = "legacy_json_import"
)

// Migrate performs the one-time import of the legacy file layout. It is
// idempotent and safe to call on every startup: once the marker is set
// (or when no legacy files exist) it is a no-op. Imported files are
// renamed, not deleted, so nothing is lost if the import goes wrong.
func (s *SQLiteStore) Migrate(configDir string) error {
	s.mu.Lock()
	done, err := s.markerSet(migrationMarker)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	imported := 0

	historyPath := filepath.Join(configDir, legacyHistoryFile)
	if items, ok := readLegacyFile[listing.HistoryItem](historyPath); ok {
		// Oldest first so insertion order matches creation order and the
		// cap evicts the right entries.
		for i := len(items) - 1; i >= 0; i-- {
			item := items[i]
			if err := s.importHistory(&item); err != nil {
				return fmt.Errorf("failed to import history item %d: %w", item.ID, err)
			}
		}
		retireLegacyFile(historyPath)
		imported += len(items)
	}

	savedPath := filepath.Join(configDir, legacySavedFile)
	if items, ok := readLegacyFile[listing.SavedItem](savedPath); ok {
		for i := len(items) - 1; i >= 0; i-- {
			item := items[i]
			if err := s.importSaved(&item); err != nil {
				return fmt.Errorf("failed to import saved item %d: %w", item.ID, err)
			}
		}
		retireLegacyFile(savedPath)
		imported += len(items)
	}

	keysPath := filepath.Join(configDir, legacyKeysFile)
	if data, err := os.ReadFile(keysPath); err == nil {
		var keys APIKeys
		if err := gojson.Unmarshal(data, &keys); err != nil {
			log.Warn().Err(err).Str("path", keysPath).Msg("corrupt legacy keys file, skipping")
		} else {
			if err := s.SaveKeys(&keys); err != nil {
				return fmt.Errorf("failed to import legacy keys: %w", err)
			}
			imported++
		}
		retireLegacyFile(keysPath)
	}

	s.mu.Lock()
	err = s.setMarker(migrationMarker)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if imported > 0 {
		log.Info().Int("records", imported).Msg("imported legacy json records")
	}
	return nil
}

// readLegacyFile parses a legacy collection file. A missing file returns
// ok=false; a corrupt file is logged and treated as empty rather than
// blocking startup.
func readLegacyFile[T any](path string) ([]T, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var items []T
	if err := gojson.Unmarshal(data, &items); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("corrupt legacy file, treating as empty")
		return nil, true
	}
	return items, true
}

func retireLegacyFile(path string) {
	if err := os.Rename(path, path+".imported"); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("failed to rename imported legacy file")
	}
}

// importHistory inserts a legacy record preserving its original id and
// creation time.
func (s *SQLiteStore) importHistory(item *listing.HistoryItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.UnixMilli(item.ID)
	}
	inputJSON, err := gojson.Marshal(item.Input)
	if err != nil {
		return err
	}
	listingJSON, err := gojson.Marshal(item.ListingData)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		"INSERT OR IGNORE INTO history (id, marketplace, input_json, listing_json, created_at) VALUES (?, ?, ?, ?, ?)",
		item.ID, string(item.Marketplace), string(inputJSON), string(listingJSON), item.CreatedAt,
	)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		"DELETE FROM history WHERE rowid NOT IN (SELECT rowid FROM history ORDER BY rowid DESC LIMIT ?)",
		historyCap,
	)
	return err
}

func (s *SQLiteStore) importSaved(item *listing.SavedItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.UnixMilli(item.ID)
	}
	inputJSON, err := gojson.Marshal(item.Input)
	if err != nil {
		return err
	}
	listingJSON, err := gojson.Marshal(item.ListingData)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		"INSERT OR IGNORE INTO saved (id, marketplace, input_json, listing_json, custom_title, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		item.ID, string(item.Marketplace), string(inputJSON), string(listingJSON), item.CustomTitle, item.CreatedAt,
	)
	return err
}

func (s *SQLiteStore) markerSet(key string) (bool, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM meta WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read migration marker: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) setMarker(key string) error {
	_, err := s.db.Exec(
		"INSERT INTO meta (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, time.Now().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to set migration marker: %w", err)
	}
	return nil
}
