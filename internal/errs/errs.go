package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Taxonomy roots. Domain errors wrap exactly one of these so callers can
// classify with errors.Is and the HTTP layer can map to a status code.
var (
	ErrNotFound         = errors.New("not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrUnavailable      = errors.New("temporarily unavailable")
	ErrUnauthenticated  = errors.New("authentication required")
	ErrPolicyViolation  = errors.New("policy violation")
	ErrValidation       = errors.New("validation failed")
)

// Domain errors surfaced by the pipeline.
var (
	ErrChatNotFound       = fmt.Errorf("%w: chat not found", ErrNotFound)
	ErrMessageNotFound    = fmt.Errorf("%w: message not found", ErrNotFound)
	ErrNotAParticipant    = fmt.Errorf("%w: user is not a chat participant", ErrPermissionDenied)
	ErrCreatorCannotLeave = fmt.Errorf("%w: chat creator cannot leave their own chat", ErrPolicyViolation)
	ErrEmptyContent       = fmt.Errorf("%w: message content must not be empty", ErrValidation)
	ErrBadImageURL        = fmt.Errorf("%w: image content must be a resolvable URL", ErrValidation)
	ErrMissingFile        = fmt.Errorf("%w: image file is required", ErrValidation)
	ErrImageTooLarge      = fmt.Errorf("%w: image exceeds the maximum allowed size", ErrValidation)
	ErrUnsupportedImage   = fmt.Errorf("%w: unsupported image content type", ErrValidation)
	ErrUnknownMessageType = fmt.Errorf("%w: unknown message type", ErrValidation)
)

// Validationf builds a caller-input error under ErrValidation.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

// Unavailablef wraps a transient store failure under ErrUnavailable.
func Unavailablef(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
}

// HTTPStatus maps a pipeline error to its transport status code.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrPolicyViolation):
		return http.StatusConflict
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// UserMessage derives the short human-readable text surfaced to clients.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "resource not found"
	case errors.Is(err, ErrPermissionDenied):
		return "you do not have access to this chat"
	case errors.Is(err, ErrUnauthenticated):
		return "sign in and try again"
	case errors.Is(err, ErrPolicyViolation):
		return "this action is not allowed"
	case errors.Is(err, ErrValidation):
		return err.Error()
	case errors.Is(err, ErrUnavailable):
		return "service is temporarily unavailable, try again"
	default:
		return "something went wrong"
	}
}
