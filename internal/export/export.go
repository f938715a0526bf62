// Package export renders a persisted record into downloadable files.
// Every format except the PNG capture is a pure function of the record.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	gojson "github.com/goccy/go-json"

	"github.com/swipswaps/Marketplace-Listing-Generator/internal/listing"
)

// Format identifies one export output format.
type Format string

const (
	FormatText Format = "txt"
	FormatCSV  Format = "csv"
	FormatDoc  Format = "doc"
	FormatSQL  Format = "sql"
	FormatJSON Format = "json"
	FormatPNG  Format = "png"
)

// Formats lists every supported format.
var Formats = []Format{FormatText, FormatCSV, FormatDoc, FormatSQL, FormatJSON, FormatPNG}

// Record is the unified view of a history or saved entry handed to the
// renderers. CustomTitle is empty for history entries.
type Record struct {
	ID          int64                    `json:"id"`
	Marketplace listing.Marketplace      `json:"marketplace"`
	Input       listing.Inputs           `json:"input"`
	ListingData listing.GeneratedListing `json:"listingData"`
	CustomTitle string                   `json:"customTitle,omitempty"`
	CreatedAt   time.Time                `json:"createdAt"`
}

// FromHistory adapts a history entry.
func FromHistory(item *listing.HistoryItem) Record {
	return Record{
		ID:          item.ID,
		Marketplace: item.Marketplace,
		Input:       item.Input,
		ListingData: item.ListingData,
		CreatedAt:   item.CreatedAt,
	}
}

// FromSaved adapts a saved entry.
func FromSaved(item *listing.SavedItem) Record {
	return Record{
		ID:          item.ID,
		Marketplace: item.Marketplace,
		Input:       item.Input,
		ListingData: item.ListingData,
		CustomTitle: item.CustomTitle,
		CreatedAt:   item.CreatedAt,
	}
}

// DisplayTitle mirrors SavedItem.DisplayTitle for the unified record.
func (r Record) DisplayTitle() string {
	if r.CustomTitle != "" {
		return r.CustomTitle
	}
	return r.ListingData.ItemName
}

// File is a rendered export: content bytes plus the suggested filename
// and content type for the download response.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Render produces the export for a record in the given format. The PNG
// capture depends on a headless browser and lives in Capture; Render
// covers the pure formats.
func Render(format Format, rec Record) (*File, error) {
	stem := listing.Slugify(rec.DisplayTitle())
	switch format {
	case FormatText:
		return &File{Name: stem + ".txt", ContentType: "text/plain; charset=utf-8", Data: renderText(rec)}, nil
	case FormatCSV:
		data, err := renderCSV(rec)
		if err != nil {
			return nil, err
		}
		return &File{Name: stem + ".csv", ContentType: "text/csv; charset=utf-8", Data: data}, nil
	case FormatDoc:
		return &File{Name: stem + ".doc", ContentType: "application/msword", Data: renderDoc(rec)}, nil
	case FormatSQL:
		return &File{Name: stem + ".sql", ContentType: "text/plain; charset=utf-8", Data: renderSQL(rec)}, nil
	case FormatJSON:
		data, err := gojson.MarshalIndent(rec, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
		}
		return &File{Name: stem + ".json", ContentType: "application/json", Data: data}, nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

// ParseSnapshot reads back a serialized snapshot. Round-trips: the parsed
// record is deep-equal to the one that was exported.
func ParseSnapshot(data []byte) (*Record, error) {
	var rec Record
	if err := gojson.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	return &rec, nil
}

func renderText(rec Record) []byte {
	price := rec.ListingData.SuggestedPrice.Normalize()
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", rec.ListingData.Listing.Title)
	fmt.Fprintf(&b, "Marketplace: %s\n", rec.Marketplace.DisplayName())
	fmt.Fprintf(&b, "Suggested price: %s (%s confidence)\n", price.Range, price.Confidence)
	fmt.Fprintf(&b, "\n%s\n", rec.ListingData.Listing.Description)
	if len(rec.ListingData.Listing.Tags) > 0 {
		fmt.Fprintf(&b, "\nTags: %s\n", strings.Join(rec.ListingData.Listing.Tags, ", "))
	}
	fmt.Fprintf(&b, "\nGenerated: %s\n", rec.CreatedAt.Format("2006-01-02 15:04"))
	return []byte(b.String())
}

func renderCSV(rec Record) ([]byte, error) {
	price := rec.ListingData.SuggestedPrice.Normalize()
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	rows := [][]string{
		{"marketplace", "item_name", "title", "description", "tags", "price_range", "price_confidence", "created_at"},
		{
			string(rec.Marketplace),
			rec.ListingData.ItemName,
			rec.ListingData.Listing.Title,
			rec.ListingData.Listing.Description,
			strings.Join(rec.ListingData.Listing.Tags, "|"),
			price.Range,
			price.Confidence,
			rec.CreatedAt.Format(time.RFC3339),
		},
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("csv: write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func renderSQL(rec Record) []byte {
	price := rec.ListingData.SuggestedPrice.Normalize()
	stmt := fmt.Sprintf(
		"INSERT INTO listings (marketplace, item_name, title, description, tags, price_range, created_at) VALUES ('%s', '%s', '%s', '%s', '%s', '%s', '%s');\n",
		escapeSQL(string(rec.Marketplace)),
		escapeSQL(rec.ListingData.ItemName),
		escapeSQL(rec.ListingData.Listing.Title),
		escapeSQL(rec.ListingData.Listing.Description),
		escapeSQL(strings.Join(rec.ListingData.Listing.Tags, ",")),
		escapeSQL(price.Range),
		rec.CreatedAt.Format(time.RFC3339),
	)
	return []byte(stmt)
}

// escapeSQL doubles single quotes for string literals.
func escapeSQL(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
