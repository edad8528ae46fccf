package commerce

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/noah-isme/mamcung-storefront/internal/common"
)

var (
	// ErrNotFound matches 404 replies.
	ErrNotFound = errors.New("commerce: not found")
	// ErrUnavailable matches transport failures, timeouts, an open breaker and 5xx replies.
	ErrUnavailable = errors.New("commerce: upstream unavailable")
)

// APIError describes a failed call to the commerce API.
type APIError struct {
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("commerce: status %d", e.Status)
	if e.Code != "" {
		msg += " " + e.Code
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *APIError) Unwrap() error { return e.Err }

// Is lets callers match on status classes with errors.Is.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	case ErrUnavailable:
		return e.Status == 0 || e.Status >= http.StatusInternalServerError
	}
	return false
}

// AppError renders the failure for storefront clients. Upstream 5xx and
// transport details are never echoed back.
func (e *APIError) AppError() *common.AppError {
	switch {
	case e.Status == 0 || e.Status >= http.StatusInternalServerError:
		return common.NewAppError("UPSTREAM_UNAVAILABLE", "the store is temporarily unavailable, please try again", http.StatusBadGateway, e)
	case e.Status == http.StatusUnauthorized:
		return common.NewAppError("UNAUTHORIZED", firstNonEmpty(e.Message, "login required"), http.StatusUnauthorized, e)
	case e.Status == http.StatusForbidden:
		return common.NewAppError("FORBIDDEN", firstNonEmpty(e.Message, "access denied"), http.StatusForbidden, e)
	case e.Status == http.StatusNotFound:
		return common.NewAppError("NOT_FOUND", firstNonEmpty(e.Message, "not found"), http.StatusNotFound, e)
	case e.Status == http.StatusConflict:
		return common.NewAppError("CONFLICT", firstNonEmpty(e.Message, "conflict"), http.StatusConflict, e)
	default:
		return common.NewAppError(firstNonEmpty(e.Code, "BAD_REQUEST"), firstNonEmpty(e.Message, "request rejected"), http.StatusUnprocessableEntity, e)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
