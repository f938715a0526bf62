// Package provider holds the credential registry: every supported API
// provider with its key-format rules and a low-cost verification
// round-trip. Generation itself lives in internal/llm; this package only
// answers "is this key plausibly valid".
package provider

import (
	"fmt"
	"strings"
)

// ID identifies a supported provider.
type ID string

const (
	Gemini    ID = "gemini"
	OpenAI    ID = "openai"
	Anthropic ID = "anthropic"
	EBay      ID = "ebay"
)

// Provider describes one entry of the dispatch table. CanGenerate marks
// the provider used for listing generation; the others are key storage
// and verification only.
type Provider struct {
	ID          ID
	Name        string
	KeyPrefix   string
	MinKeyLen   int
	CanGenerate bool
	Simulated   bool // no real endpoint; verification is format-only
}

var registry = map[ID]Provider{
	Gemini: {
		ID:          Gemini,
		Name:        "Google Gemini",
		KeyPrefix:   "AIza",
		MinKeyLen:   30,
		CanGenerate: true,
	},
	OpenAI: {
		ID:        OpenAI,
		Name:      "OpenAI",
		KeyPrefix: "sk-",
		MinKeyLen: 20,
	},
	Anthropic: {
		ID:        Anthropic,
		Name:      "Anthropic",
		KeyPrefix: "sk-ant-",
		MinKeyLen: 20,
	},
	EBay: {
		ID:        EBay,
		Name:      "eBay price data",
		MinKeyLen: 8,
		Simulated: true,
	},
}

// Lookup returns the provider for an id.
func Lookup(id ID) (Provider, bool) {
	p, ok := registry[id]
	return p, ok
}

// All returns every registered provider.
func All() []Provider {
	return []Provider{registry[Gemini], registry[OpenAI], registry[Anthropic], registry[EBay]}
}

// CheckFormat applies the offline pre-checks for a key: non-empty, length
// threshold and known prefix. It short-circuits verification with a
// descriptive message so no network call is made for obviously bad keys.
func (p Provider) CheckFormat(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%s API key is empty", p.Name)
	}
	if len(key) < p.MinKeyLen {
		return fmt.Errorf("%s API key looks too short (expected at least %d characters)", p.Name, p.MinKeyLen)
	}
	if p.KeyPrefix != "" && !strings.HasPrefix(key, p.KeyPrefix) {
		return fmt.Errorf("%s API keys start with %q", p.Name, p.KeyPrefix)
	}
	return nil
}
