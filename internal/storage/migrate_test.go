package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swipswaps/Marketplace-Listing-Generator/internal/listing"
)

func writeLegacyFile(t *testing.T, dir, name string, v any) string {
	t.Helper()
	data, err := gojson.Marshal(v)
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

func TestMigrateImportsLegacyFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSQLiteStore(filepath.Join(dir, "test.db"), DeriveKey("test-passphrase"))
	require.NoError(t, err)
	defer store.Close()

	// Newest first, as the old build stored them.
	history := []listing.HistoryItem{
		{
			ID:          1700000000002,
			Marketplace: listing.MarketplaceEBay,
			ListingData: listing.GeneratedListing{
				ItemName:       "newer item",
				SuggestedPrice: listing.NewLegacyPrice("$20"),
				Listing:        listing.ListingContent{Title: "newer"},
			},
			CreatedAt: time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC),
		},
		{
			ID:          1700000000001,
			Marketplace: listing.MarketplaceDepop,
			ListingData: listing.GeneratedListing{
				ItemName:       "older item",
				SuggestedPrice: listing.NewLegacyPrice("$10"),
				Listing:        listing.ListingContent{Title: "older"},
			},
			// CreatedAt intentionally zero: derived from the id.
		},
	}
	saved := []listing.SavedItem{
		{
			ID:          1700000000003,
			Marketplace: listing.MarketplacePoshmark,
			ListingData: listing.GeneratedListing{
				ItemName:       "kept item",
				SuggestedPrice: listing.NewLegacyPrice("$30"),
				Listing:        listing.ListingContent{Title: "kept"},
			},
			CustomTitle: "my favourite",
		},
	}
	keys := APIKeys{Gemini: "AIzaSyLegacyKey1234567890123456789"}

	historyPath := writeLegacyFile(t, dir, legacyHistoryFile, history)
	savedPath := writeLegacyFile(t, dir, legacySavedFile, saved)
	keysPath := writeLegacyFile(t, dir, legacyKeysFile, keys)

	require.NoError(t, store.Migrate(dir))

	items, err := store.GetHistory()
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "newer item", items[0].ListingData.ItemName)
	assert.Equal(t, "older item", items[1].ListingData.ItemName)
	// Zero CreatedAt was backfilled from the millisecond id.
	assert.True(t, items[1].CreatedAt.Equal(time.UnixMilli(1700000000001)))

	savedItems, err := store.GetSaved()
	require.NoError(t, err)
	require.Len(t, savedItems, 1)
	assert.Equal(t, "my favourite", savedItems[0].CustomTitle)

	gotKeys, err := store.GetKeys()
	require.NoError(t, err)
	assert.Equal(t, keys.Gemini, gotKeys.Gemini)

	// Legacy files are renamed, not deleted.
	for _, p := range []string{historyPath, savedPath, keysPath} {
		_, err := os.Stat(p)
		assert.True(t, os.IsNotExist(err), "legacy file %s should be renamed", p)
		_, err = os.Stat(p + ".imported")
		assert.NoError(t, err)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSQLiteStore(filepath.Join(dir, "test.db"), DeriveKey("test-passphrase"))
	require.NoError(t, err)
	defer store.Close()

	history := []listing.HistoryItem{{
		ID:          1700000000001,
		Marketplace: listing.MarketplaceEBay,
		ListingData: listing.GeneratedListing{
			ItemName:       "once",
			SuggestedPrice: listing.NewLegacyPrice("$10"),
			Listing:        listing.ListingContent{Title: "once"},
		},
	}}
	writeLegacyFile(t, dir, legacyHistoryFile, history)

	require.NoError(t, store.Migrate(dir))
	// A later run with the same file present again must be a no-op.
	writeLegacyFile(t, dir, legacyHistoryFile, history)
	require.NoError(t, store.Migrate(dir))

	items, err := store.GetHistory()
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestMigrateNoLegacyFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSQLiteStore(filepath.Join(dir, "test.db"), DeriveKey("test-passphrase"))
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Migrate(dir))
	items, err := store.GetHistory()
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestMigrateCorruptFileDoesNotBlockStartup(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSQLiteStore(filepath.Join(dir, "test.db"), DeriveKey("test-passphrase"))
	require.NoError(t, err)
	defer store.Close()

	path := filepath.Join(dir, legacyHistoryFile)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	require.NoError(t, store.Migrate(dir))
	items, err := store.GetHistory()
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestMigrateAppliesHistoryCap(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSQLiteStore(filepath.Join(dir, "test.db"), DeriveKey("test-passphrase"))
	require.NoError(t, err)
	defer store.Close()

	total := historyCap + 10
	history := make([]listing.HistoryItem, 0, total)
	// Newest first, matching the legacy file layout.
	for i := total - 1; i >= 0; i-- {
		history = append(history, listing.HistoryItem{
			ID:          1700000000000 + int64(i),
			Marketplace: listing.MarketplaceEBay,
			ListingData: listing.GeneratedListing{
				ItemName:       fmt.Sprintf("item-%03d", i),
				SuggestedPrice: listing.NewLegacyPrice("$10"),
				Listing:        listing.ListingContent{Title: "t"},
			},
		})
	}
	writeLegacyFile(t, dir, legacyHistoryFile, history)

	require.NoError(t, store.Migrate(dir))

	items, err := store.GetHistory()
	require.NoError(t, err)
	require.Len(t, items, historyCap)
	assert.Equal(t, fmt.Sprintf("item-%03d", total-1), items[0].ListingData.ItemName)
}
