package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swipswaps/Marketplace-Listing-Generator/internal/app"
	"github.com/swipswaps/Marketplace-Listing-Generator/internal/listing"
	"github.com/swipswaps/Marketplace-Listing-Generator/internal/llm"
	"github.com/swipswaps/Marketplace-Listing-Generator/internal/pricing"
	"github.com/swipswaps/Marketplace-Listing-Generator/internal/provider"
	"github.com/swipswaps/Marketplace-Listing-Generator/internal/storage"
)

type fakeGenerator struct {
	result *listing.GeneratedListing
	err    error
}

func (f *fakeGenerator) Generate(_ context.Context, _ llm.Request, apiKey string) (*listing.GeneratedListing, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeSource struct{}

func (fakeSource) Fetch(_ context.Context, _ string) ([]pricing.PricePoint, error) {
	return []pricing.PricePoint{{Date: time.Now(), Price: 42}}, nil
}

func testResult() *listing.GeneratedListing {
	return &listing.GeneratedListing{
		ItemName:       "Sony WH-1000XM4",
		SuggestedPrice: listing.NewStructuredPrice(listing.PriceAnalysis{Range: "$180 - $220", Analysis: "a", Confidence: "High"}),
		Listing:        listing.ListingContent{Title: "Sony WH-1000XM4 Headphones", Description: "d", Tags: []string{"sony"}},
	}
}

func newTestServer(t *testing.T, gen app.Generator) (*Server, storage.Store) {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), storage.DeriveKey("test"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	application := app.New(store, gen, pricing.NewFetcher(fakeSource{}), nil)
	return New(application, provider.NewVerifier()), store
}

func jsonRequest(method, target string, body any) *http.Request {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func decodeBody(t *testing.T, res *http.Response, v any) {
	t.Helper()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t, &fakeGenerator{})
	res, err := s.fiber.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, res.StatusCode)
}

func TestGenerateHappyPath(t *testing.T) {
	s, store := newTestServer(t, &fakeGenerator{result: testResult()})
	require.NoError(t, store.SaveKeys(&storage.APIKeys{Gemini: "AIzaKey"}))

	res, err := s.fiber.Test(jsonRequest("POST", "/api/listings/generate", map[string]any{
		"marketplace": "ebay",
		"freeText":    "headphones",
	}), 5000)
	require.NoError(t, err)
	assert.Equal(t, 200, res.StatusCode)

	var result listing.GeneratedListing
	decodeBody(t, res, &result)
	assert.Equal(t, "Sony WH-1000XM4", result.ItemName)

	items, err := store.GetHistory()
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

// The real generator refuses to call out without a key; the API maps that
// to 400 with the stable failure kind.
func TestGenerateWithoutKey(t *testing.T) {
	s, _ := newTestServer(t, llm.NewGenerator())

	res, err := s.fiber.Test(jsonRequest("POST", "/api/listings/generate", map[string]any{
		"marketplace": "ebay",
		"freeText":    "headphones",
	}), 5000)
	require.NoError(t, err)
	assert.Equal(t, 400, res.StatusCode)

	var body struct {
		Error   bool   `json:"error"`
		Kind    string `json:"kind"`
		Message string `json:"message"`
	}
	decodeBody(t, res, &body)
	assert.True(t, body.Error)
	assert.Equal(t, "missing_credential", body.Kind)
	assert.NotEmpty(t, body.Message)
}

func TestGenerateFailureStatuses(t *testing.T) {
	tests := map[string]struct {
		err        error
		wantStatus int
		wantKind   string
	}{
		"invalid key": {errors.New("API key not valid"), 401, "invalid_credential"},
		"quota":       {errors.New("quota exceeded"), 429, "quota_exceeded"},
		"blocked":     {errors.New("blocked due to safety"), 422, "content_blocked"},
		"network":     {errors.New("dial tcp: connection refused"), 502, "network_failure"},
		"unknown":     {errors.New("mystery"), 500, "unknown_failure"},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			s, store := newTestServer(t, &fakeGenerator{err: tc.err})
			require.NoError(t, store.SaveKeys(&storage.APIKeys{Gemini: "AIzaKey"}))

			res, err := s.fiber.Test(jsonRequest("POST", "/api/listings/generate", map[string]any{
				"marketplace": "ebay",
				"freeText":    "x",
			}), 5000)
			require.NoError(t, err)
			assert.Equal(t, tc.wantStatus, res.StatusCode)

			var body struct {
				Kind string `json:"kind"`
			}
			decodeBody(t, res, &body)
			assert.Equal(t, tc.wantKind, body.Kind)
		})
	}
}

func TestGenerateRejectsBadMarketplace(t *testing.T) {
	s, _ := newTestServer(t, &fakeGenerator{result: testResult()})
	res, err := s.fiber.Test(jsonRequest("POST", "/api/listings/generate", map[string]any{
		"marketplace": "etsy",
		"freeText":    "x",
	}))
	require.NoError(t, err)
	assert.Equal(t, 400, res.StatusCode)
}

func TestViewInputsFlow(t *testing.T) {
	s, _ := newTestServer(t, &fakeGenerator{})

	res, err := s.fiber.Test(jsonRequest("PUT", "/api/view/inputs", map[string]any{
		"marketplace": "depop",
		"freeText":    "vintage jacket",
	}))
	require.NoError(t, err)
	assert.Equal(t, 200, res.StatusCode)

	var view app.View
	decodeBody(t, res, &view)
	assert.Equal(t, "composing", view.Mode)
	assert.Equal(t, listing.MarketplaceDepop, view.Inputs.Marketplace)
	assert.Equal(t, "vintage jacket", view.Inputs.FreeText)
}

func TestSelectNotFound(t *testing.T) {
	s, _ := newTestServer(t, &fakeGenerator{})
	res, err := s.fiber.Test(jsonRequest("POST", "/api/view/select", map[string]any{
		"source": "history",
		"id":     12345,
	}))
	require.NoError(t, err)
	assert.Equal(t, 404, res.StatusCode)
}

func TestKeysNeverEchoed(t *testing.T) {
	s, _ := newTestServer(t, &fakeGenerator{})

	key := "AIzaSyVerySecretKey1234567890123456"
	res, err := s.fiber.Test(jsonRequest("PUT", "/api/keys", map[string]any{"gemini": key}))
	require.NoError(t, err)
	assert.Equal(t, 200, res.StatusCode)

	res, err = s.fiber.Test(httptest.NewRequest("GET", "/api/keys", nil))
	require.NoError(t, err)
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.NotContains(t, string(data), key)

	var body struct {
		Keys []struct {
			Provider string `json:"provider"`
			Present  bool   `json:"present"`
			Masked   string `json:"masked"`
		} `json:"keys"`
	}
	require.NoError(t, json.Unmarshal(data, &body))
	require.Len(t, body.Keys, 4)
	for _, k := range body.Keys {
		if k.Provider == "gemini" {
			assert.True(t, k.Present)
			assert.Contains(t, k.Masked, "AIza")
			assert.Contains(t, k.Masked, "****")
		}
	}
}

func TestVerifySimulatedProvider(t *testing.T) {
	s, _ := newTestServer(t, &fakeGenerator{})

	res, err := s.fiber.Test(jsonRequest("POST", "/api/keys/ebay/verify", map[string]any{"key": "some-ebay-key"}))
	require.NoError(t, err)
	assert.Equal(t, 200, res.StatusCode)

	var result provider.VerifyResult
	decodeBody(t, res, &result)
	assert.True(t, result.Success)

	res, err = s.fiber.Test(jsonRequest("POST", "/api/keys/nope/verify", map[string]any{"key": "x"}))
	require.NoError(t, err)
	assert.Equal(t, 404, res.StatusCode)
}

func TestSavedLifecycle(t *testing.T) {
	s, store := newTestServer(t, &fakeGenerator{result: testResult()})
	require.NoError(t, store.SaveKeys(&storage.APIKeys{Gemini: "AIzaKey"}))

	res, err := s.fiber.Test(jsonRequest("POST", "/api/listings/generate", map[string]any{
		"marketplace": "poshmark",
		"freeText":    "jeans",
	}), 5000)
	require.NoError(t, err)
	require.Equal(t, 200, res.StatusCode)

	res, err = s.fiber.Test(jsonRequest("POST", "/api/saved", map[string]any{"customTitle": "summer closet"}))
	require.NoError(t, err)
	require.Equal(t, 201, res.StatusCode)

	var saved listing.SavedItem
	decodeBody(t, res, &saved)
	assert.Equal(t, "summer closet", saved.CustomTitle)

	res, err = s.fiber.Test(jsonRequest("PATCH", "/api/saved/"+itoa(saved.ID), map[string]any{
		"title": "Edited Title",
	}))
	require.NoError(t, err)
	require.Equal(t, 200, res.StatusCode)
	var updated listing.SavedItem
	decodeBody(t, res, &updated)
	assert.Equal(t, "Edited Title", updated.ListingData.Listing.Title)
	assert.Equal(t, "Sony WH-1000XM4", updated.ListingData.ItemName)

	res, err = s.fiber.Test(httptest.NewRequest("DELETE", "/api/saved/"+itoa(saved.ID), nil))
	require.NoError(t, err)
	assert.Equal(t, 200, res.StatusCode)

	res, err = s.fiber.Test(httptest.NewRequest("GET", "/api/saved/"+itoa(saved.ID), nil))
	require.NoError(t, err)
	assert.Equal(t, 404, res.StatusCode)
}

func TestExportDownloadHeaders(t *testing.T) {
	s, store := newTestServer(t, &fakeGenerator{result: testResult()})
	require.NoError(t, store.SaveKeys(&storage.APIKeys{Gemini: "AIzaKey"}))

	res, err := s.fiber.Test(jsonRequest("POST", "/api/listings/generate", map[string]any{
		"marketplace": "ebay",
		"freeText":    "headphones",
	}), 5000)
	require.NoError(t, err)
	require.Equal(t, 200, res.StatusCode)

	items, err := store.GetHistory()
	require.NoError(t, err)
	require.Len(t, items, 1)

	res, err = s.fiber.Test(httptest.NewRequest("GET", "/api/export/history/"+itoa(items[0].ID)+"/txt", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, res.StatusCode)
	assert.Contains(t, res.Header.Get("Content-Disposition"), `attachment; filename="sony_wh_1000xm4.txt"`)
	assert.Contains(t, res.Header.Get("Content-Type"), "text/plain")

	res, err = s.fiber.Test(httptest.NewRequest("GET", "/api/export/history/"+itoa(items[0].ID)+"/pdf", nil))
	require.NoError(t, err)
	assert.Equal(t, 400, res.StatusCode)

	res, err = s.fiber.Test(httptest.NewRequest("GET", "/api/export/history/99/txt", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, res.StatusCode)
}

func TestImportSnapshot(t *testing.T) {
	s, store := newTestServer(t, &fakeGenerator{})

	snapshot := map[string]any{
		"id":          1,
		"marketplace": "ebay",
		"input":       map[string]any{"freeText": "x"},
		"listingData": map[string]any{
			"itemName":       "Old Lamp",
			"suggestedPrice": "$25",
			"listing":        map[string]any{"title": "Old Lamp", "description": "d"},
		},
		"createdAt": "2024-01-01T00:00:00Z",
	}
	res, err := s.fiber.Test(jsonRequest("POST", "/api/saved/import", snapshot))
	require.NoError(t, err)
	assert.Equal(t, 201, res.StatusCode)

	items, err := store.GetSaved()
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Old Lamp", items[0].ListingData.ItemName)
	assert.True(t, items[0].ListingData.SuggestedPrice.IsLegacy())
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
