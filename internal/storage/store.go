package storage

import (
	"database/sql"
	"fmt"
	"os"
	"sync"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/swipswaps/Marketplace-Listing-Generator/internal/listing"
)

// historyCap is the maximum number of retained history entries. Inserting
// past the cap evicts the oldest entries by insertion order.
const historyCap = 50

// APIKeys is the single process-wide credential record. Only the Gemini
// key is mandatory for the core flow; an empty key silently disables the
// dependent feature.
type APIKeys struct {
	Gemini    string `json:"gemini"`
	OpenAI    string `json:"openai"`
	Anthropic string `json:"anthropic"`
	EBay      string `json:"ebay"`
}

// SavedEdit is the one permitted mutation of a saved item: listing title,
// description and the display-title override. Nil fields are left as-is.
type SavedEdit struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	CustomTitle *string `json:"customTitle,omitempty"`
}

// Store defines the persistence interface for history, saved listings and
// API keys.
type Store interface {
	AppendHistory(item *listing.HistoryItem) error
	GetHistory() ([]listing.HistoryItem, error)
	GetHistoryItem(id int64) (*listing.HistoryItem, error)
	DeleteHistory(id int64) error

	AddSaved(item *listing.SavedItem) error
	GetSaved() ([]listing.SavedItem, error)
	GetSavedItem(id int64) (*listing.SavedItem, error)
	UpdateSaved(id int64, edit SavedEdit) error
	DeleteSaved(id int64) error

	GetKeys() (*APIKeys, error)
	SaveKeys(keys *APIKeys) error

	Close() error
}

// SQLiteStore implements Store using SQLite with API keys encrypted at
// rest.
type SQLiteStore struct {
	db            *sql.DB
	encryptionKey []byte
	mu            sync.RWMutex
}

// NewSQLiteStore opens (or creates) the SQLite database at dbPath. The
// encryptionKey is used to encrypt stored API keys.
func NewSQLiteStore(dbPath string, encryptionKey []byte) (*SQLiteStore, error) {
	// Configure SQLite with WAL mode and busy timeout
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set file permissions (only works on creation)
	if err := os.Chmod(dbPath, 0600); err != nil && !os.IsNotExist(err) {
		// Ignore error if file doesn't exist yet
	}

	store := &SQLiteStore{
		db:            db,
		encryptionKey: encryptionKey,
	}

	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS history (
			id INTEGER PRIMARY KEY,
			marketplace TEXT NOT NULL,
			input_json TEXT NOT NULL,
			listing_json TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS saved (
			id INTEGER PRIMARY KEY,
			marketplace TEXT NOT NULL,
			input_json TEXT NOT NULL,
			listing_json TEXT NOT NULL,
			custom_title TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS api_keys (
			provider TEXT PRIMARY KEY,
			encrypted_key TEXT NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
	}
	return nil
}

// nextID returns a creation-timestamp-derived id that is unique within
// the given table. IDs are never reused or renumbered.
func (s *SQLiteStore) nextID(table string) (int64, error) {
	id := time.Now().UnixMilli()
	for {
		var exists int
		err := s.db.QueryRow(fmt.Sprintf("SELECT COUNT(1) FROM %s WHERE id = ?", table), id).Scan(&exists)
		if err != nil {
			return 0, fmt.Errorf("failed to check id: %w", err)
		}
		if exists == 0 {
			return id, nil
		}
		id++
	}
}

// AppendHistory inserts a new history entry, assigning its id and
// creation time, then evicts the oldest entries past the cap.
func (s *SQLiteStore) AppendHistory(item *listing.HistoryItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.nextID("history")
	if err != nil {
		return err
	}
	item.ID = id
	item.CreatedAt = time.Now()

	inputJSON, err := gojson.Marshal(item.Input)
	if err != nil {
		return fmt.Errorf("failed to marshal input: %w", err)
	}
	listingJSON, err := gojson.Marshal(item.ListingData)
	if err != nil {
		return fmt.Errorf("failed to marshal listing: %w", err)
	}

	_, err = s.db.Exec(
		"INSERT INTO history (id, marketplace, input_json, listing_json, created_at) VALUES (?, ?, ?, ?, ?)",
		item.ID, string(item.Marketplace), string(inputJSON), string(listingJSON), item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert history item: %w", err)
	}

	// FIFO eviction by insertion order, independent of any other field
	_, err = s.db.Exec(
		"DELETE FROM history WHERE rowid NOT IN (SELECT rowid FROM history ORDER BY rowid DESC LIMIT ?)",
		historyCap,
	)
	if err != nil {
		return fmt.Errorf("failed to evict history: %w", err)
	}
	return nil
}

// GetHistory returns all history entries, newest first. Rows with corrupt
// JSON are logged and skipped rather than failing the whole read.
func (s *SQLiteStore) GetHistory() ([]listing.HistoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query("SELECT id, marketplace, input_json, listing_json, created_at FROM history ORDER BY rowid DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var items []listing.HistoryItem
	for rows.Next() {
		item, err := scanHistoryRow(rows)
		if err != nil {
			log.Warn().Err(err).Msg("skipping corrupt history row")
			continue
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHistoryRow(row rowScanner) (*listing.HistoryItem, error) {
	var item listing.HistoryItem
	var marketplace, inputJSON, listingJSON string
	if err := row.Scan(&item.ID, &marketplace, &inputJSON, &listingJSON, &item.CreatedAt); err != nil {
		return nil, err
	}
	item.Marketplace = listing.Marketplace(marketplace)
	if err := gojson.Unmarshal([]byte(inputJSON), &item.Input); err != nil {
		return nil, fmt.Errorf("corrupt input json for history %d: %w", item.ID, err)
	}
	if err := gojson.Unmarshal([]byte(listingJSON), &item.ListingData); err != nil {
		return nil, fmt.Errorf("corrupt listing json for history %d: %w", item.ID, err)
	}
	return &item, nil
}

// GetHistoryItem returns one history entry, or nil if it does not exist.
func (s *SQLiteStore) GetHistoryItem(id int64) (*listing.HistoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow("SELECT id, marketplace, input_json, listing_json, created_at FROM history WHERE id = ?", id)
	item, err := scanHistoryRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// DeleteHistory removes one history entry.
func (s *SQLiteStore) DeleteHistory(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM history WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete history item: %w", err)
	}
	return nil
}

// AddSaved inserts a user-promoted saved listing, assigning its id and
// creation time. The collection is uncapped.
func (s *SQLiteStore) AddSaved(item *listing.SavedItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.nextID("saved")
	if err != nil {
		return err
	}
	item.ID = id
	item.CreatedAt = time.Now()

	inputJSON, err := gojson.Marshal(item.Input)
	if err != nil {
		return fmt.Errorf("failed to marshal input: %w", err)
	}
	listingJSON, err := gojson.Marshal(item.ListingData)
	if err != nil {
		return fmt.Errorf("failed to marshal listing: %w", err)
	}

	_, err = s.db.Exec(
		"INSERT INTO saved (id, marketplace, input_json, listing_json, custom_title, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		item.ID, string(item.Marketplace), string(inputJSON), string(listingJSON), item.CustomTitle, item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert saved item: %w", err)
	}
	return nil
}

// GetSaved returns all saved listings, newest first. Display ordering and
// filtering beyond that is a presentation concern, computed on read.
func (s *SQLiteStore) GetSaved() ([]listing.SavedItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query("SELECT id, marketplace, input_json, listing_json, custom_title, created_at FROM saved ORDER BY rowid DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query saved: %w", err)
	}
	defer rows.Close()

	var items []listing.SavedItem
	for rows.Next() {
		item, err := scanSavedRow(rows)
		if err != nil {
			log.Warn().Err(err).Msg("skipping corrupt saved row")
			continue
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

func scanSavedRow(row rowScanner) (*listing.SavedItem, error) {
	var item listing.SavedItem
	var marketplace, inputJSON, listingJSON string
	if err := row.Scan(&item.ID, &marketplace, &inputJSON, &listingJSON, &item.CustomTitle, &item.CreatedAt); err != nil {
		return nil, err
	}
	item.Marketplace = listing.Marketplace(marketplace)
	if err := gojson.Unmarshal([]byte(inputJSON), &item.Input); err != nil {
		return nil, fmt.Errorf("corrupt input json for saved %d: %w", item.ID, err)
	}
	if err := gojson.Unmarshal([]byte(listingJSON), &item.ListingData); err != nil {
		return nil, fmt.Errorf("corrupt listing json for saved %d: %w", item.ID, err)
	}
	return &item, nil
}

// GetSavedItem returns one saved listing, or nil if it does not exist.
func (s *SQLiteStore) GetSavedItem(id int64) (*listing.SavedItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow("SELECT id, marketplace, input_json, listing_json, custom_title, created_at FROM saved WHERE id = ?", id)
	item, err := scanSavedRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return item, nil
}

// UpdateSaved applies a SavedEdit. Only the listing title, description
// and custom title can change; item name, price and tags are untouched.
func (s *SQLiteStore) UpdateSaved(id int64, edit SavedEdit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow("SELECT id, marketplace, input_json, listing_json, custom_title, created_at FROM saved WHERE id = ?", id)
	item, err := scanSavedRow(row)
	if err == sql.ErrNoRows {
		return fmt.Errorf("saved item %d not found", id)
	}
	if err != nil {
		return err
	}

	if edit.Title != nil {
		item.ListingData.Listing.Title = *edit.Title
	}
	if edit.Description != nil {
		item.ListingData.Listing.Description = *edit.Description
	}
	if edit.CustomTitle != nil {
		item.CustomTitle = *edit.CustomTitle
	}

	listingJSON, err := gojson.Marshal(item.ListingData)
	if err != nil {
		return fmt.Errorf("failed to marshal listing: %w", err)
	}
	_, err = s.db.Exec(
		"UPDATE saved SET listing_json = ?, custom_title = ? WHERE id = ?",
		string(listingJSON), item.CustomTitle, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update saved item: %w", err)
	}
	return nil
}

// DeleteSaved removes one saved listing.
func (s *SQLiteStore) DeleteSaved(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM saved WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete saved item: %w", err)
	}
	return nil
}

// GetKeys loads the API key record, decrypting each stored key. Missing
// rows yield empty strings, never an error.
func (s *SQLiteStore) GetKeys() (*APIKeys, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query("SELECT provider, encrypted_key FROM api_keys")
	if err != nil {
		return nil, fmt.Errorf("failed to query api keys: %w", err)
	}
	defer rows.Close()

	keys := &APIKeys{}
	for rows.Next() {
		var provider, encrypted string
		if err := rows.Scan(&provider, &encrypted); err != nil {
			return nil, fmt.Errorf("failed to scan api key row: %w", err)
		}
		plain, err := Decrypt(encrypted, s.encryptionKey)
		if err != nil {
			log.Warn().Err(err).Str("provider", provider).Msg("failed to decrypt stored key, treating as unset")
			continue
		}
		switch provider {
		case "gemini":
			keys.Gemini = string(plain)
		case "openai":
			keys.OpenAI = string(plain)
		case "anthropic":
			keys.Anthropic = string(plain)
		case "ebay":
			keys.EBay = string(plain)
		}
	}
	return keys, rows.Err()
}

// SaveKeys overwrites the whole key record in one transaction.
func (s *SQLiteStore) SaveKeys(keys *APIKeys) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	for provider, key := range map[string]string{
		"gemini":    keys.Gemini,
		"openai":    keys.OpenAI,
		"anthropic": keys.Anthropic,
		"ebay":      keys.EBay,
	} {
		encrypted, err := Encrypt([]byte(key), s.encryptionKey)
		if err != nil {
			return fmt.Errorf("failed to encrypt %s key: %w", provider, err)
		}
		_, err = tx.Exec(`
			INSERT INTO api_keys (provider, encrypted_key, updated_at)
			VALUES (?, ?, ?)
			ON CONFLICT(provider) DO UPDATE SET
				encrypted_key = excluded.encrypted_key,
				updated_at = excluded.updated_at
		`, provider, encrypted, now)
		if err != nil {
			return fmt.Errorf("failed to save %s key: %w", provider, err)
		}
	}
	return tx.Commit()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
