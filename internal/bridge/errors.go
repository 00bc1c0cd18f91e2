package bridge

import (
	"errors"
	"fmt"
)

// Sentinel errors. Use errors.Is to check.
var (
	ErrRemoteCallFailed = errors.New("bridge: remote call failed")
	ErrUnexpectedType   = errors.New("bridge: unexpected response type")
	ErrClosed           = errors.New("bridge: closed")
)

// RemoteError carries the backend's own failure code and message.
type RemoteError struct {
	Function string
	Code     int
	Message  string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("bridge: %s failed: %d %s", e.Function, e.Code, e.Message)
}

func (e *RemoteError) Unwrap() error {
	return ErrRemoteCallFailed
}
