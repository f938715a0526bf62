package llm

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/lithammer/dedent"
	"google.golang.org/genai"

	"github.com/swipswaps/Marketplace-Listing-Generator/internal/listing"
)

// Request is the ephemeral input of one generation call. At least one of
// FreeText and Image must be present; that precondition is enforced by the
// caller, not here.
type Request struct {
	Marketplace listing.Marketplace
	FreeText    string
	Image       *listing.EncodedImage
}

const ebayInstructions = `
	Create an eBay listing.
	- Title: up to 80 characters, keyword-rich, no promotional fluff like "L@@K" or "WOW".
	- Description: HTML markup with <h3> section headings and <ul> bullet lists covering
	  condition, specifications and shipping notes. Write for search as well as for buyers.
	- Do not include tags; eBay uses item specifics instead.`

const facebookInstructions = `
	Create a Facebook Marketplace listing.
	- Title: short and conversational, up to 60 characters.
	- Description: plain text, friendly and local in tone, 2-4 short paragraphs.
	  Mention pickup/delivery options. No HTML, no hashtags.
	- Do not include tags.`

const poshmarkInstructions = `
	Create a Poshmark listing.
	- Title: up to 50 characters, lead with brand and style name.
	- Description: plain text covering brand, size, measurements, fabric/material,
	  condition and styling suggestions.
	- Include 5-10 tags: brand, category, style and aesthetic keywords (no # prefix).`

const depopInstructions = `
	Create a Depop listing.
	- Title: short and trendy, up to 40 characters.
	- Description: short-form plain text, 1-2 casual sentences followed by a line of
	  hashtags (e.g. #vintage #y2k #streetwear). Keep the overall text brief.
	- Include 8-12 tags mirroring the hashtags, without the # prefix.`

const genericInstructions = `
	Create a standard marketplace listing with a clear, descriptive title and a
	plain-text description covering condition and notable details. Include a few
	relevant tags.`

const identificationRules = `
	Identify the item as precisely as possible. When an image is provided, prefer
	printed model numbers, part codes or labels visible in the image over visual
	guesswork. Include brand and model in the item name when identifiable.`

const schemaRequirement = `
	Respond ONLY with a single JSON object, no markdown fences or other text, with
	exactly these fields:
	{
	  "itemName": string,
	  "suggestedPrice": {
	    "range": string (e.g. "$200 - $250"),
	    "analysis": string (short rationale),
	    "confidence": "High" | "Medium" | "Low",
	    "comparableListings": integer (optional),
	    "averageListingAgeDays": integer (optional),
	    "priceDistribution": [{"range": string, "count": integer}] (optional)
	  },
	  "listing": {
	    "title": string,
	    "description": string,
	    "tags": [string] (optional)
	  }
	}`

// instructionsFor selects the fixed instruction block for a marketplace.
// Values outside the closed enumeration get the generic block rather than
// an error.
func instructionsFor(m listing.Marketplace) string {
	switch m {
	case listing.MarketplaceEBay:
		return ebayInstructions
	case listing.MarketplaceFacebook:
		return facebookInstructions
	case listing.MarketplacePoshmark:
		return poshmarkInstructions
	case listing.MarketplaceDepop:
		return depopInstructions
	default:
		return genericInstructions
	}
}

// BuildInstruction composes the single instruction text for a request:
// marketplace block, identification rules, the user's free text if any,
// and the strict output schema. Pure and deterministic.
func BuildInstruction(req Request) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(dedent.Dedent(instructionsFor(req.Marketplace))))
	b.WriteString("\n\n")
	b.WriteString(strings.TrimSpace(dedent.Dedent(identificationRules)))
	if text := strings.TrimSpace(req.FreeText); text != "" {
		b.WriteString("\n\nSeller's notes about the item:\n")
		b.WriteString(text)
	}
	b.WriteString("\n\n")
	b.WriteString(strings.TrimSpace(dedent.Dedent(schemaRequirement)))
	return b.String()
}

// BuildParts assembles the ordered request parts: the image part first
// when present, then the composed instruction text.
func BuildParts(req Request) ([]*genai.Part, error) {
	var parts []*genai.Part
	if req.Image != nil {
		data, err := base64.StdEncoding.DecodeString(req.Image.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode image payload: %w", err)
		}
		parts = append(parts, &genai.Part{
			InlineData: &genai.Blob{Data: data, MIMEType: req.Image.MediaType},
		})
	}
	parts = append(parts, genai.NewPartFromText(BuildInstruction(req)))
	return parts, nil
}

// responseSchema constrains the model to the GeneratedListing shape.
func responseSchema() *genai.Schema {
	return &genai.Schema{
		Type:     genai.TypeObject,
		Required: []string{"itemName", "suggestedPrice", "listing"},
		Properties: map[string]*genai.Schema{
			"itemName": {Type: genai.TypeString},
			"suggestedPrice": {
				Type:     genai.TypeObject,
				Required: []string{"range", "analysis", "confidence"},
				Properties: map[string]*genai.Schema{
					"range":                 {Type: genai.TypeString},
					"analysis":              {Type: genai.TypeString},
					"confidence":            {Type: genai.TypeString, Enum: []string{"High", "Medium", "Low"}},
					"comparableListings":    {Type: genai.TypeInteger},
					"averageListingAgeDays": {Type: genai.TypeInteger},
					"priceDistribution": {
						Type: genai.TypeArray,
						Items: &genai.Schema{
							Type:     genai.TypeObject,
							Required: []string{"range", "count"},
							Properties: map[string]*genai.Schema{
								"range": {Type: genai.TypeString},
								"count": {Type: genai.TypeInteger},
							},
						},
					},
				},
			},
			"listing": {
				Type:     genai.TypeObject,
				Required: []string{"title", "description"},
				Properties: map[string]*genai.Schema{
					"title":       {Type: genai.TypeString},
					"description": {Type: genai.TypeString},
					"tags":        {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
				},
			},
		},
	}
}
