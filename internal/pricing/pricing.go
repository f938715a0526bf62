// Package pricing retrieves a historical price series for an identified
// item. The original price-data integration was never completed, so the
// default Source is a local simulator; the interface contract does not
// assume real data.
package pricing

import (
	"context"
	"time"

	"github.com/coocood/freecache"
	gojson "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
)

// PricePoint is one observation of the item's market price.
type PricePoint struct {
	Date  time.Time `json:"date"`
	Price float64   `json:"price"`
}

// Summary aggregates a series for display next to the chart.
type Summary struct {
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

// Source produces a time-ordered price series for an item over a fixed
// recent window.
type Source interface {
	Fetch(ctx context.Context, itemName string) ([]PricePoint, error)
}

const (
	cacheSizeBytes = 1024 * 1024
	cacheTTL       = time.Hour
)

// Fetcher wraps a Source with a per-item cache and the silent-skip
// contract: no item name or no pricing key means no call and no error.
type Fetcher struct {
	source Source
	cache  *freecache.Cache
}

// NewFetcher creates a fetcher over the given source.
func NewFetcher(source Source) *Fetcher {
	return &Fetcher{
		source: source,
		cache:  freecache.NewCache(cacheSizeBytes),
	}
}

// Fetch returns the price series for an item, or nil when the item name or
// pricing key is empty (silent skip, not a failure). Source errors are
// logged and surface as an error for the caller to swallow; they must
// never reach the user or block the primary flow.
func (f *Fetcher) Fetch(ctx context.Context, itemName, pricingKey string) ([]PricePoint, error) {
	if itemName == "" || pricingKey == "" {
		return nil, nil
	}

	cacheKey := []byte(itemName)
	if cached, err := f.cache.Get(cacheKey); err == nil {
		var points []PricePoint
		if err := gojson.Unmarshal(cached, &points); err == nil {
			log.Debug().Str("item", itemName).Msg("price series cache hit")
			return points, nil
		}
	}

	points, err := f.source.Fetch(ctx, itemName)
	if err != nil {
		log.Warn().Err(err).Str("item", itemName).Msg("price series fetch failed")
		return nil, err
	}

	if data, err := gojson.Marshal(points); err == nil {
		if err := f.cache.Set(cacheKey, data, int(cacheTTL.Seconds())); err != nil {
			log.Debug().Err(err).Msg("failed to cache price series")
		}
	}

	return points, nil
}

// Summarize computes min/max/average over a series.
func Summarize(points []PricePoint) Summary {
	s := Summary{Count: len(points)}
	if len(points) == 0 {
		return s
	}
	s.Min = points[0].Price
	s.Max = points[0].Price
	var total float64
	for _, p := range points {
		total += p.Price
		if p.Price < s.Min {
			s.Min = p.Price
		}
		if p.Price > s.Max {
			s.Max = p.Price
		}
	}
	s.Average = round2(total / float64(len(points)))
	s.Min = round2(s.Min)
	s.Max = round2(s.Max)
	return s
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}
