package transport

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TransportErrorBadRequest = "TRANSPORT_BAD_REQUEST"
	TransportErrorRejected   = "TRANSPORT_REJECTED"
	TransportErrorRateLimit  = "TRANSPORT_RATE_LIMITED"
	TransportErrorUpstream   = "TRANSPORT_UPSTREAM_FAILURE"
	TransportErrorInternal   = "TRANSPORT_INTERNAL_ERROR"
)

func transportError(
	message string,
	category goerrors.Category,
	code int,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	metadata map[string]any,
) error {
	if source == nil {
		return transportError(message, category, code, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func transportTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return TransportErrorBadRequest
	case goerrors.CategoryAuth, goerrors.CategoryAuthz, goerrors.CategoryNotFound:
		return TransportErrorRejected
	case goerrors.CategoryRateLimit:
		return TransportErrorRateLimit
	case goerrors.CategoryExternal:
		return TransportErrorUpstream
	default:
		return TransportErrorInternal
	}
}

// StatusError reports a non-2xx answer from a sink endpoint.
type StatusError struct {
	StatusCode int
	URL        string
	Body       string
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	if e == nil {
		return "transport: unexpected status"
	}
	return fmt.Sprintf("transport: %s answered %d", redactURL(e.URL), e.StatusCode)
}

// ToRelayError maps the status to a go-errors envelope. The HTTP code is
// always 502 since the failure belongs to the downstream sink.
func (e *StatusError) ToRelayError() *goerrors.Error {
	if e == nil {
		return nil
	}
	category := goerrors.CategoryExternal
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		category = goerrors.CategoryRateLimit
	case e.StatusCode == http.StatusUnauthorized:
		category = goerrors.CategoryAuth
	case e.StatusCode == http.StatusForbidden:
		category = goerrors.CategoryAuthz
	case e.StatusCode == http.StatusNotFound:
		category = goerrors.CategoryNotFound
	case e.StatusCode >= 400 && e.StatusCode < 500:
		category = goerrors.CategoryBadInput
	}
	metadata := map[string]any{
		"status_code": e.StatusCode,
		"url":         redactURL(e.URL),
	}
	if e.RetryAfter > 0 {
		metadata["retry_after_ms"] = e.RetryAfter.Milliseconds()
	}
	if body := strings.TrimSpace(e.Body); body != "" {
		if len(body) > 256 {
			body = body[:256]
		}
		metadata["body"] = body
	}
	return goerrors.Wrap(e, category, "transport: sink rejected request").
		WithCode(http.StatusBadGateway).
		WithTextCode(transportTextCode(category)).
		WithMetadata(metadata)
}

// redactURL keeps scheme, host and the first path segment. Discord webhook
// URLs carry their token in the path.
func redactURL(raw string) string {
	raw = strings.TrimSpace(raw)
	schemeEnd := strings.Index(raw, "://")
	if schemeEnd < 0 {
		return raw
	}
	rest := raw[schemeEnd+3:]
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) < 3 {
		return raw
	}
	return raw[:schemeEnd+3] + parts[0] + "/" + parts[1] + "/…"
}
