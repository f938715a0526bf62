package llm

import (
	"errors"
	"strings"
)

// FailureKind categorizes a failed generation call. Every failure is
// terminal for that call; retrying is always a new explicit user action.
type FailureKind int

const (
	MissingCredential FailureKind = iota
	InvalidCredential
	QuotaExceeded
	ContentBlocked
	NetworkFailure
	MalformedResponse
	UnknownFailure
)

// String returns a stable identifier for the kind, used in logs and metrics.
func (k FailureKind) String() string {
	switch k {
	case MissingCredential:
		return "missing_credential"
	case InvalidCredential:
		return "invalid_credential"
	case QuotaExceeded:
		return "quota_exceeded"
	case ContentBlocked:
		return "content_blocked"
	case NetworkFailure:
		return "network_failure"
	case MalformedResponse:
		return "malformed_response"
	default:
		return "unknown_failure"
	}
}

// UserMessage returns the short human-readable message for the kind. Raw
// provider error text never reaches the display layer.
func (k FailureKind) UserMessage() string {
	switch k {
	case MissingCredential:
		return "Add a Gemini API key in settings before generating a listing."
	case InvalidCredential:
		return "Your Gemini API key was rejected. Check the key in settings."
	case QuotaExceeded:
		return "Generation quota exceeded or billing is not enabled for this key. Check your plan and try again later."
	case ContentBlocked:
		return "The request was blocked by the provider's content policy. Try a different photo or description."
	case NetworkFailure:
		return "Could not reach the generation service. Check your connection and try again."
	case MalformedResponse:
		return "The generation service returned an unexpected response. Try again."
	default:
		return "Something went wrong. Please try again later."
	}
}

// Error is a classified generation failure. Error() is safe to show to
// users; the underlying cause is only for logs.
type Error struct {
	Kind  FailureKind
	cause error
}

func (e *Error) Error() string {
	return e.Kind.UserMessage()
}

func (e *Error) Unwrap() error {
	return e.cause
}

func newError(kind FailureKind, cause error) *Error {
	return &Error{Kind: kind, cause: cause}
}

// Classify maps provider error text onto the failure taxonomy with
// case-insensitive substring checks. Anything unrecognized becomes
// UnknownFailure with a generic message.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}
	text := strings.ToLower(err.Error())
	switch {
	case containsAny(text, "api key not valid", "api_key_invalid", "invalid api key", "unauthorized", "unauthenticated", "permission denied", "permission_denied", "forbidden"):
		return newError(InvalidCredential, err)
	case containsAny(text, "quota", "rate limit", "resource_exhausted", "resource has been exhausted", "billing", "too many requests", "429"):
		return newError(QuotaExceeded, err)
	case containsAny(text, "safety", "blocked", "prohibited_content", "prohibited content", "content policy"):
		return newError(ContentBlocked, err)
	case containsAny(text, "failed to fetch", "connection refused", "connection reset", "no such host", "network", "timeout", "deadline exceeded", "transport", "tls", "dial tcp"):
		return newError(NetworkFailure, err)
	default:
		return newError(UnknownFailure, err)
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
