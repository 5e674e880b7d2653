// Package classify maps raw fetch failures onto the fixed ErrorKind taxonomy
// and the static user-facing metadata attached to each kind.
package classify

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/vietddude/metalsync/internal/core/domain"
)

// StatusCoder is implemented by errors that carry an HTTP status code.
type StatusCoder interface {
	HTTPStatus() int
}

// Classify maps err to an ErrorKind. It is total: a nil error is UnknownError.
//
// Precedence (first match wins):
//   - domain.ErrOffline
//   - message mentions "network" or "connection"
//   - message mentions "timeout", or a context deadline was exceeded
//   - HTTP 429
//   - HTTP 401 / 403
//   - HTTP >= 500
//   - message mentions "json" or "parse"
func Classify(err error) domain.ErrorKind {
	if err == nil {
		return domain.ErrorKindUnknown
	}

	if errors.Is(err, domain.ErrOffline) {
		return domain.ErrorKindOffline
	}

	msg := strings.ToLower(err.Error())

	if strings.Contains(msg, "network") || strings.Contains(msg, "connection") {
		return domain.ErrorKindNetwork
	}

	if strings.Contains(msg, "timeout") || errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrorKindTimeout
	}

	if status, ok := statusOf(err); ok {
		switch {
		case status == http.StatusTooManyRequests:
			return domain.ErrorKindRateLimit
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			return domain.ErrorKindAuth
		case status >= http.StatusInternalServerError:
			return domain.ErrorKindServer
		}
	}

	if strings.Contains(msg, "json") || strings.Contains(msg, "parse") {
		return domain.ErrorKindDataParsing
	}

	return domain.ErrorKindUnknown
}

// Retryable reports whether failures of this kind may be transient.
// Auth and rate-limit failures are never retried.
func Retryable(kind domain.ErrorKind) bool {
	return kind != domain.ErrorKindAuth && kind != domain.ErrorKindRateLimit
}

func statusOf(err error) (int, bool) {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.HTTPStatus(), true
	}
	return 0, false
}
