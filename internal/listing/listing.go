package listing

import (
	"fmt"
	"strings"
	"time"
)

// Marketplace identifies one of the supported target selling platforms.
// The set is closed; PromptBuilder falls back to a generic instruction
// block for anything outside it.
type Marketplace string

const (
	MarketplaceEBay     Marketplace = "ebay"
	MarketplaceFacebook Marketplace = "facebook"
	MarketplacePoshmark Marketplace = "poshmark"
	MarketplaceDepop    Marketplace = "depop"
)

// Marketplaces lists all supported values in display order.
var Marketplaces = []Marketplace{
	MarketplaceEBay,
	MarketplaceFacebook,
	MarketplacePoshmark,
	MarketplaceDepop,
}

// DisplayName returns the marketplace's human-readable name.
func (m Marketplace) DisplayName() string {
	switch m {
	case MarketplaceEBay:
		return "eBay"
	case MarketplaceFacebook:
		return "Facebook Marketplace"
	case MarketplacePoshmark:
		return "Poshmark"
	case MarketplaceDepop:
		return "Depop"
	default:
		return fmt.Sprintf("Unknown(%s)", string(m))
	}
}

// Valid reports whether m is one of the supported marketplaces.
func (m Marketplace) Valid() bool {
	switch m {
	case MarketplaceEBay, MarketplaceFacebook, MarketplacePoshmark, MarketplaceDepop:
		return true
	}
	return false
}

// EncodedImage is a transport-ready image payload. It is replaced
// wholesale on every new selection and never mutated in place.
type EncodedImage struct {
	Data      string `json:"data"` // base64, no data-URL prefix
	MediaType string `json:"mediaType"`
	Name      string `json:"name"`
}

// ListingContent is the generated content block for a marketplace.
// Description formatting depends on the marketplace: HTML for eBay,
// plain text elsewhere, hashtags for Depop.
type ListingContent struct {
	Title       string   `json:"title" validate:"required"`
	Description string   `json:"description"`
	Tags        []string `json:"tags,omitempty"`
}

// GeneratedListing is the validated result of one generation call.
// Immutable once produced.
type GeneratedListing struct {
	ItemName       string         `json:"itemName" validate:"required"`
	SuggestedPrice SuggestedPrice `json:"suggestedPrice"`
	Listing        ListingContent `json:"listing" validate:"required"`
}

// Inputs holds the user-supplied material a listing was generated from.
type Inputs struct {
	FreeText string        `json:"freeText"`
	Image    *EncodedImage `json:"image,omitempty"`
}

// HistoryItem is an automatically retained record of a past generation.
// The collection is capped to the 50 most recent entries.
type HistoryItem struct {
	ID          int64            `json:"id"`
	Marketplace Marketplace      `json:"marketplace"`
	Input       Inputs           `json:"input"`
	ListingData GeneratedListing `json:"listingData"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// SavedItem is a user-promoted, uncapped, editable retained record.
// Edits may touch only the listing title, description and CustomTitle.
type SavedItem struct {
	ID          int64            `json:"id"`
	Marketplace Marketplace      `json:"marketplace"`
	Input       Inputs           `json:"input"`
	ListingData GeneratedListing `json:"listingData"`
	CustomTitle string           `json:"customTitle,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// DisplayTitle returns the user-supplied title override if set, otherwise
// the generated item name.
func (s *SavedItem) DisplayTitle() string {
	if s.CustomTitle != "" {
		return s.CustomTitle
	}
	return s.ListingData.ItemName
}

// Slugify turns a display title into a filename stem: lowercased, with
// runs of non-alphanumeric characters collapsed to single underscores.
func Slugify(title string) string {
	var b strings.Builder
	lastUnderscore := true // suppress a leading underscore
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.TrimSuffix(b.String(), "_")
	if out == "" {
		return "listing"
	}
	return out
}
