// internal/upstream/errors.go
package upstream

import (
	"errors"
	"fmt"
)

// ErrChallengeRequired reports that the upstream rejected the request pending
// interactive verification, either with its dedicated status code or with a
// challenge-class error event inside the stream.
var ErrChallengeRequired = errors.New("upstream requires challenge verification")

// UpstreamError is any non-challenge HTTP rejection from the chat endpoint.
type UpstreamError struct {
	Status int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream rejected request with status %d", e.Status)
}

// TransportError is a network-level failure after the request was accepted,
// typically a connection dropped mid-stream.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("upstream transport failure: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
