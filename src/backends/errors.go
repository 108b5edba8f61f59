package backends

import (
	"context"
	"errors"
	"net"
	"net/url"

	openai "github.com/sashabaranov/go-openai"

	"github.com/swarmworks/hivegate/src/models"
)

// classify wraps transport-level failures as BackendError so the
// dispatcher can tell retryable failures (connection, timeout) apart from
// terminal provider errors (the backend answered, just not with a
// completion). Terminal errors pass through untouched.
func classify(backend string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &models.BackendError{Backend: backend, Kind: models.ErrKindTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &models.BackendError{Backend: backend, Kind: models.ErrKindTimeout, Err: err}
	}

	// The provider produced an HTTP response; such failures are not
	// recoverable by switching backends.
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return err
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return err
	}

	var urlErr *url.Error
	var opErr *net.OpError
	if errors.As(err, &urlErr) || errors.As(err, &opErr) {
		return &models.BackendError{Backend: backend, Kind: models.ErrKindConnection, Err: err}
	}

	// Unrecognized failure from the client library: assume transport.
	return &models.BackendError{Backend: backend, Kind: models.ErrKindConnection, Err: err}
}
