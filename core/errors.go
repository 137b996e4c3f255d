package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	RelayErrorEmptyPayload      = "RELAY_EMPTY_PAYLOAD"
	RelayErrorMissingIdentity   = "RELAY_MISSING_IDENTITY"
	RelayErrorProcessingFailure = "RELAY_PROCESSING_FAILURE"
	RelayErrorBadInput          = "RELAY_BAD_INPUT"
	RelayErrorNotFound          = "RELAY_NOT_FOUND"
	RelayErrorRateLimited       = "RELAY_RATE_LIMITED"
	RelayErrorDeliveryFailed    = "RELAY_DELIVERY_FAILED"
	RelayErrorInternal          = "RELAY_INTERNAL_ERROR"
)

func ErrEmptyPayload() *goerrors.Error {
	return newRelayError("payload is empty", goerrors.CategoryBadInput, RelayErrorEmptyPayload)
}

func ErrMissingIdentity(identity Identity) *goerrors.Error {
	return newRelayError("payload is missing sender or repository", goerrors.CategoryBadInput, RelayErrorMissingIdentity).
		WithMetadata(map[string]any{
			"actor":      identity.Actor,
			"repository": identity.Repository,
		})
}

func ErrProcessingFailure(cause error, stage string) *goerrors.Error {
	message := "relay processing failed"
	if stage = strings.TrimSpace(stage); stage != "" {
		message = "relay processing failed at " + stage
	}
	var err *goerrors.Error
	if cause == nil {
		err = goerrors.New(message, goerrors.CategoryOperation)
	} else {
		err = goerrors.Wrap(cause, goerrors.CategoryOperation, message)
		err.Category = goerrors.CategoryOperation
	}
	return ensureRelayErrorEnvelope(
		err.WithCode(http.StatusInternalServerError).
			WithTextCode(RelayErrorProcessingFailure).
			WithMetadata(map[string]any{"stage": stage}),
	)
}

// HasTextCode reports whether err carries the given relay text code.
func HasTextCode(err error, code string) bool {
	if err == nil {
		return false
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) || rich == nil {
		return false
	}
	return rich.TextCode == code
}

func relayErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureRelayErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "not found"), strings.Contains(msg, "not registered"):
		return newRelayError(err.Error(), goerrors.CategoryNotFound, RelayErrorNotFound)
	case strings.Contains(msg, "throttl"), strings.Contains(msg, "rate limit"):
		return newRelayError(err.Error(), goerrors.CategoryRateLimit, RelayErrorRateLimited)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "unsupported"):
		return newRelayError(err.Error(), goerrors.CategoryBadInput, RelayErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureRelayErrorEnvelope(mapped)
}

func newRelayError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureRelayErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureRelayErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = relayHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultRelayTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultRelayTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return RelayErrorBadInput
	case goerrors.CategoryNotFound:
		return RelayErrorNotFound
	case goerrors.CategoryRateLimit:
		return RelayErrorRateLimited
	case goerrors.CategoryExternal:
		return RelayErrorDeliveryFailed
	case goerrors.CategoryOperation:
		return RelayErrorProcessingFailure
	default:
		return RelayErrorInternal
	}
}

func relayHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
