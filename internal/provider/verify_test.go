package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyGeminiOK(t *testing.T) {
	key := "AIza" + strings.Repeat("x", 35)

	var req *http.Request
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req = r
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"models":[]}`))
	}))
	defer ts.Close()

	v := NewVerifierWithEndpoints(map[ID]string{Gemini: ts.URL})
	result := v.Verify(context.Background(), Gemini, key)

	assert.True(t, result.Success)
	assert.Equal(t, VerifyOK, result.Kind)
	require.NotNil(t, req)
	assert.Equal(t, key, req.URL.Query().Get("key"))
}

func TestVerifyOpenAIRejected(t *testing.T) {
	var req *http.Request
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req = r
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer ts.Close()

	key := "sk-" + strings.Repeat("a", 40)
	v := NewVerifierWithEndpoints(map[ID]string{OpenAI: ts.URL})
	result := v.Verify(context.Background(), OpenAI, key)

	assert.False(t, result.Success)
	assert.Equal(t, VerifyInvalidCredential, result.Kind)
	require.NotNil(t, req)
	assert.Equal(t, "Bearer "+key, req.Header.Get("Authorization"))
}

func TestVerifyAnthropicQuota(t *testing.T) {
	var req *http.Request
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req = r
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer ts.Close()

	key := "sk-ant-" + strings.Repeat("a", 40)
	v := NewVerifierWithEndpoints(map[ID]string{Anthropic: ts.URL})
	result := v.Verify(context.Background(), Anthropic, key)

	assert.False(t, result.Success)
	assert.Equal(t, VerifyQuotaExceeded, result.Kind)
	require.NotNil(t, req)
	assert.Equal(t, key, req.Header.Get("x-api-key"))
	assert.NotEmpty(t, req.Header.Get("anthropic-version"))
}

// Bad format short-circuits: the endpoint must never be contacted.
func TestVerifyFormatShortCircuit(t *testing.T) {
	called := false
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer ts.Close()

	v := NewVerifierWithEndpoints(map[ID]string{Gemini: ts.URL})
	result := v.Verify(context.Background(), Gemini, "wrong-prefix-key-long-enough-for-sure")

	assert.False(t, result.Success)
	assert.Equal(t, VerifyInvalidFormat, result.Kind)
	assert.False(t, called)
}

// The pricing provider has no real endpoint; a well-formed key passes
// locally and the message says so.
func TestVerifySimulatedEBay(t *testing.T) {
	v := NewVerifier()
	result := v.Verify(context.Background(), EBay, "some-ebay-key")

	assert.True(t, result.Success)
	assert.Equal(t, VerifyOK, result.Kind)
	assert.Contains(t, result.Message, "simulated")
}

func TestVerifyUnknownProvider(t *testing.T) {
	v := NewVerifier()
	result := v.Verify(context.Background(), ID("mistral"), "key")
	assert.False(t, result.Success)
	assert.Equal(t, VerifyInvalidFormat, result.Kind)
}

func TestVerifyNetworkFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close() // connection refused from here on

	v := NewVerifierWithEndpoints(map[ID]string{Gemini: ts.URL})
	result := v.Verify(context.Background(), Gemini, "AIza"+strings.Repeat("x", 35))

	assert.False(t, result.Success)
	assert.Equal(t, VerifyNetworkFailure, result.Kind)
}
