package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gookit/validate"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/swipswaps/Marketplace-Listing-Generator/internal/listing"
)

const geminiModel = "gemini-2.5-flash"

// Gemini pricing (per million tokens)
const (
	geminiInputPricePerMillion  = 0.30
	geminiOutputPricePerMillion = 2.50
)

// Generator issues schema-constrained generation calls to Gemini.
//
// The API key is passed per call because it lives in the key store and can
// change at runtime; the genai client is cheap to construct.
type Generator struct {
	model string
}

// NewGenerator creates a Gemini-backed listing generator.
func NewGenerator() *Generator {
	return &Generator{model: geminiModel}
}

// Generate builds the prompt for the request, performs one generation
// call and returns the validated listing. It never retries and never
// writes to any store. An empty apiKey fails with MissingCredential
// before any network activity.
func (g *Generator) Generate(ctx context.Context, req Request, apiKey string) (*listing.GeneratedListing, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, newError(MissingCredential, nil)
	}

	parts, err := BuildParts(req)
	if err != nil {
		return nil, newError(MalformedResponse, err)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, Classify(fmt.Errorf("failed to create Gemini client: %w", err))
	}

	contents := []*genai.Content{
		genai.NewContentFromParts(parts, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   responseSchema(),
	}

	result, err := client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return nil, Classify(err)
	}

	if len(result.Candidates) == 0 || result.Candidates[0].Content == nil || len(result.Candidates[0].Content.Parts) == 0 {
		return nil, newError(MalformedResponse, fmt.Errorf("no candidates in response"))
	}

	parsed, err := ParseGeneratedListing(result.Text())
	if err != nil {
		return nil, err
	}

	usage := usageFrom(result)
	log.Info().
		Str("model", g.model).
		Str("marketplace", string(req.Marketplace)).
		Bool("hasImage", req.Image != nil).
		Int64("inputTokens", usage.InputTokens).
		Int64("outputTokens", usage.OutputTokens).
		Float64("costUSD", usage.CostUSD).
		Msg("listing generation llm call")

	return parsed, nil
}

// ParseGeneratedListing parses the model's text output as a
// GeneratedListing and applies the minimal shape check: the result must
// carry a non-empty listing title. Anything beyond that passes through
// unmodified.
func ParseGeneratedListing(text string) (*listing.GeneratedListing, error) {
	// Strip markdown code fences if present
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var result listing.GeneratedListing
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, newError(MalformedResponse, fmt.Errorf("failed to parse response JSON: %w", err))
	}

	v := validate.Struct(&result)
	if !v.Validate() {
		return nil, newError(MalformedResponse, fmt.Errorf("response shape invalid: %s", v.Errors.One()))
	}
	if strings.TrimSpace(result.Listing.Title) == "" {
		return nil, newError(MalformedResponse, fmt.Errorf("response missing listing.title"))
	}

	return &result, nil
}

// Usage contains token usage and cost information for one call.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
	TotalTokens  int64
	CostUSD      float64
}

func usageFrom(result *genai.GenerateContentResponse) Usage {
	usage := Usage{}
	if result.UsageMetadata != nil {
		usage.InputTokens = int64(result.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int64(result.UsageMetadata.CandidatesTokenCount)
		usage.TotalTokens = int64(result.UsageMetadata.TotalTokenCount)
		usage.CostUSD = calculateGeminiCost(usage.InputTokens, usage.OutputTokens)
	}
	return usage
}

func calculateGeminiCost(inputTokens, outputTokens int64) float64 {
	inputCost := float64(inputTokens) / 1_000_000 * geminiInputPricePerMillion
	outputCost := float64(outputTokens) / 1_000_000 * geminiOutputPricePerMillion
	return inputCost + outputCost
}
