package listing

import (
	"encoding/json"
	"fmt"
)

// Confidence levels for a suggested price.
const (
	ConfidenceHigh   = "High"
	ConfidenceMedium = "Medium"
	ConfidenceLow    = "Low"
)

// legacyAnalysisPlaceholder fills the analysis field when an old record
// only stored a bare price string.
const legacyAnalysisPlaceholder = "No analysis available for this listing."

// PriceBucket is one bar of a price distribution.
type PriceBucket struct {
	Range string `json:"range"`
	Count int    `json:"count"`
}

// PriceAnalysis is the structured suggested-price object.
type PriceAnalysis struct {
	Range                 string        `json:"range"`
	Analysis              string        `json:"analysis"`
	Confidence            string        `json:"confidence"`
	ComparableListings    int           `json:"comparableListings,omitempty"`
	AverageListingAgeDays int           `json:"averageListingAgeDays,omitempty"`
	PriceDistribution     []PriceBucket `json:"priceDistribution,omitempty"`
}

// SuggestedPrice is a sum type over the two shapes a persisted price can
// take: records written by old versions hold a bare string, current ones a
// structured PriceAnalysis. Marshaling preserves whichever shape the
// record was created with, so snapshots round-trip byte-faithfully.
type SuggestedPrice struct {
	legacy   string
	analysis *PriceAnalysis
}

// NewStructuredPrice wraps a structured price analysis.
func NewStructuredPrice(a PriceAnalysis) SuggestedPrice {
	return SuggestedPrice{analysis: &a}
}

// NewLegacyPrice wraps a bare price range string from an old record.
func NewLegacyPrice(s string) SuggestedPrice {
	return SuggestedPrice{legacy: s}
}

// IsLegacy reports whether the price was stored as a bare string.
func (p SuggestedPrice) IsLegacy() bool {
	return p.analysis == nil
}

// Normalize is the single read-site conversion: legacy strings become a
// Medium-confidence analysis with a placeholder rationale.
func (p SuggestedPrice) Normalize() PriceAnalysis {
	if p.analysis != nil {
		return *p.analysis
	}
	return PriceAnalysis{
		Range:      p.legacy,
		Analysis:   legacyAnalysisPlaceholder,
		Confidence: ConfidenceMedium,
	}
}

func (p SuggestedPrice) MarshalJSON() ([]byte, error) {
	if p.analysis != nil {
		return json.Marshal(p.analysis)
	}
	return json.Marshal(p.legacy)
}

func (p *SuggestedPrice) UnmarshalJSON(data []byte) error {
	var a PriceAnalysis
	if err := json.Unmarshal(data, &a); err == nil {
		p.analysis = &a
		p.legacy = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("suggestedPrice is neither an object nor a string: %w", err)
	}
	p.legacy = s
	p.analysis = nil
	return nil
}
