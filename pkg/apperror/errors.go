package apperror

import (
	"errors"
	"net/http"
)

// Error kinds. Wrap them with fmt.Errorf("...: %w", ErrX) and classify with errors.Is.
var (
	// ErrConfiguration is a missing credential or secret needed by the operation.
	ErrConfiguration = errors.New("configuration error")
	// ErrAuthentication covers bad state tokens and rejected refresh tokens.
	ErrAuthentication = errors.New("authentication failed")
	ErrNotConnected   = errors.New("integration not connected")
	ErrInvalidInput   = errors.New("invalid input")
	// ErrProvider is a failed or malformed response from a remote provider.
	ErrProvider = errors.New("provider error")
)

// HTTPStatus maps an error to the status code a handler should answer with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrNotConnected):
		return http.StatusBadRequest
	case errors.Is(err, ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, ErrProvider):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
