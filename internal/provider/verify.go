package provider

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// VerifyKind is the reduced failure taxonomy for key verification. A
// verification failure is informational, never a blocker for saving keys.
type VerifyKind string

const (
	VerifyOK                VerifyKind = "ok"
	VerifyInvalidFormat     VerifyKind = "invalid_format"
	VerifyInvalidCredential VerifyKind = "invalid_credential"
	VerifyQuotaExceeded     VerifyKind = "quota_exceeded"
	VerifyNetworkFailure    VerifyKind = "network_failure"
)

// VerifyResult is the outcome of one verification attempt.
type VerifyResult struct {
	Success bool       `json:"success"`
	Kind    VerifyKind `json:"kind"`
	Message string     `json:"message,omitempty"`
}

// Verifier performs the minimal round-trips that confirm a key is
// accepted without doing real work. Endpoints can be overridden in tests.
type Verifier struct {
	client    *resty.Client
	endpoints map[ID]string
}

var defaultEndpoints = map[ID]string{
	Gemini:    "https://generativelanguage.googleapis.com/v1beta/models",
	OpenAI:    "https://api.openai.com/v1/models",
	Anthropic: "https://api.anthropic.com/v1/models",
}

// NewVerifier creates a verifier with the live provider endpoints.
func NewVerifier() *Verifier {
	return NewVerifierWithEndpoints(nil)
}

// NewVerifierWithEndpoints overrides selected provider endpoints, keeping
// defaults for the rest. Used by tests.
func NewVerifierWithEndpoints(overrides map[ID]string) *Verifier {
	endpoints := make(map[ID]string, len(defaultEndpoints))
	for id, u := range defaultEndpoints {
		endpoints[id] = u
	}
	for id, u := range overrides {
		endpoints[id] = u
	}
	return &Verifier{
		client:    resty.New().SetTimeout(10 * time.Second),
		endpoints: endpoints,
	}
}

// Verify checks a key for a provider: offline format pre-checks first,
// then a models-list round-trip. The simulated pricing provider has no
// real endpoint and passes on format alone.
func (v *Verifier) Verify(ctx context.Context, id ID, key string) VerifyResult {
	p, ok := Lookup(id)
	if !ok {
		return VerifyResult{Kind: VerifyInvalidFormat, Message: fmt.Sprintf("unknown provider %q", id)}
	}
	if err := p.CheckFormat(key); err != nil {
		return VerifyResult{Kind: VerifyInvalidFormat, Message: err.Error()}
	}
	if p.Simulated {
		return VerifyResult{
			Success: true,
			Kind:    VerifyOK,
			Message: fmt.Sprintf("%s key accepted (price data is simulated until a real integration exists)", p.Name),
		}
	}

	req := v.client.R().SetContext(ctx)
	endpoint := v.endpoints[id]
	switch id {
	case Gemini:
		q := url.Values{}
		q.Add("key", key)
		endpoint = endpoint + "?" + q.Encode()
	case OpenAI:
		req.SetHeader("Authorization", "Bearer "+key)
	case Anthropic:
		req.SetHeader("x-api-key", key)
		req.SetHeader("anthropic-version", "2023-06-01")
	}

	res, err := req.Get(endpoint)
	if err != nil {
		log.Warn().Err(err).Str("provider", string(id)).Msg("key verification transport failure")
		return VerifyResult{Kind: VerifyNetworkFailure, Message: "Could not reach the provider. Check your connection and try again."}
	}

	result := classifyStatus(p, res.StatusCode())
	log.Info().
		Str("provider", string(id)).
		Int("status", res.StatusCode()).
		Bool("success", result.Success).
		Msg("key verification")
	return result
}

func classifyStatus(p Provider, status int) VerifyResult {
	switch {
	case status == 200:
		return VerifyResult{Success: true, Kind: VerifyOK, Message: fmt.Sprintf("%s key verified", p.Name)}
	case status == 402:
		return VerifyResult{Kind: VerifyQuotaExceeded, Message: fmt.Sprintf("%s reports billing is not enabled for this key", p.Name)}
	case status == 429:
		return VerifyResult{Kind: VerifyQuotaExceeded, Message: fmt.Sprintf("%s reports quota or rate limit exhaustion for this key", p.Name)}
	case status == 400 || status == 401 || status == 403:
		return VerifyResult{Kind: VerifyInvalidCredential, Message: fmt.Sprintf("%s rejected the key (invalid or revoked)", p.Name)}
	default:
		return VerifyResult{Kind: VerifyNetworkFailure, Message: fmt.Sprintf("%s returned an unexpected response (HTTP %d)", p.Name, status)}
	}
}
