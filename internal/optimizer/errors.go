package optimizer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// ErrorKind classifies backend failures into a small taxonomy.
type ErrorKind string

const (
	// KindConnection covers network failures and timeouts.
	KindConnection ErrorKind = "connection"
	// KindAuth covers rejected or missing API credentials.
	KindAuth ErrorKind = "auth"
	// KindModelNotFound covers requests for a model the backend does not serve.
	KindModelNotFound ErrorKind = "model_not_found"
	// KindRateLimit covers quota and throttling rejections.
	KindRateLimit ErrorKind = "rate_limit"
	// KindUnknown covers everything else.
	KindUnknown ErrorKind = "unknown"
)

// Error is a classified backend failure. It carries a human message and a
// remediation suggestion instead of the raw transport error.
type Error struct {
	Kind       ErrorKind
	Message    string
	Suggestion string
	Latency    time.Duration
	cause      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// AsError extracts a classified *Error from err, if present.
func AsError(err error) (*Error, bool) {
	var oe *Error
	if errors.As(err, &oe) {
		return oe, true
	}
	return nil, false
}

// classify maps a raw client error onto the taxonomy.
func (o *Optimizer) classify(err error, latency time.Duration) *Error {
	wrap := func(kind ErrorKind, msg, suggestion string) *Error {
		return &Error{Kind: kind, Message: msg, Suggestion: suggestion, Latency: latency, cause: err}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return wrap(KindConnection,
			fmt.Sprintf("request to %s timed out", o.baseURL),
			"check that the API server is reachable and responsive")
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return wrap(KindConnection,
			fmt.Sprintf("cannot reach API server at %s", o.baseURL),
			"check the network connection and API_BASE_URL")
	}

	status := 0
	lowered := strings.ToLower(err.Error())

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden ||
		strings.Contains(lowered, "api key"):
		return wrap(KindAuth,
			"API key was rejected",
			"check the API_KEY setting in the .env file")
	case status == http.StatusTooManyRequests:
		return wrap(KindRateLimit,
			"API rate limit exceeded",
			"wait a moment and retry, or check the API quota")
	case status == http.StatusNotFound ||
		(strings.Contains(lowered, "model") && strings.Contains(lowered, "not found")):
		return wrap(KindModelNotFound,
			fmt.Sprintf("model %q is not available", o.model),
			"check the AI_MODEL setting and the models the backend serves")
	case strings.Contains(lowered, "connection") || strings.Contains(lowered, "timeout") ||
		strings.Contains(lowered, "no such host"):
		return wrap(KindConnection,
			fmt.Sprintf("cannot reach API server at %s", o.baseURL),
			"check the network connection and API_BASE_URL")
	}

	return wrap(KindUnknown, err.Error(),
		"check the network connection and API configuration")
}
