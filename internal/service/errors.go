package service

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for rejected fetch specs. None of them reach the network.
var (
	ErrMissingTarget     = errors.New("target url is required")
	ErrInvalidTarget     = errors.New("target url is invalid")
	ErrHostNotAllowed    = errors.New("target host is not allowed")
	ErrUnsupportedMethod = errors.New("method must be GET or HEAD")
)

// UpstreamStatusError reports an upstream that answered with a non-2xx status.
type UpstreamStatusError struct {
	StatusCode int
}

// Error implements the error interface.
func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("upstream responded with status %d", e.StatusCode)
}

// HTTPStatus returns the status to surface to the client: the upstream code
// when it is a client or server error, otherwise 502.
func (e *UpstreamStatusError) HTTPStatus() int {
	if e.StatusCode >= 400 && e.StatusCode <= 599 {
		return e.StatusCode
	}
	return http.StatusBadGateway
}

// IsBadRequest reports whether err means the inbound request itself was unusable.
func IsBadRequest(err error) bool {
	return errors.Is(err, ErrMissingTarget) ||
		errors.Is(err, ErrInvalidTarget) ||
		errors.Is(err, ErrHostNotAllowed) ||
		errors.Is(err, ErrUnsupportedMethod)
}
