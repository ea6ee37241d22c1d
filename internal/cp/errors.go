package cp

import (
	"errors"
	"fmt"
)

var (
	ErrCookieRequest     = errors.New("cp: cookie request failed")
	ErrProtocolTimeout   = errors.New("cp: no matching response")
	ErrNoPendingCommand  = errors.New("cp: no command awaiting a response")
	ErrForeignFrame      = errors.New("cp: frame from foreign protocol")
	ErrIDMismatch        = errors.New("cp: response id mismatch")
	ErrCommandRejected   = errors.New("cp: command rejected by server")
	ErrAddressRequired   = errors.New("cp: server address required")
	ErrTransportRequired = errors.New("cp: transport required")
	ErrUnknownRole       = errors.New("cp: unknown role")
)

// CookieRequestError reports a failed cookie exchange.
// Reason is set when the cookie server refused; otherwise Last holds the
// final discarded-frame or timeout error.
type CookieRequestError struct {
	Attempts int
	Reason   string
	Last     error
}

func (e *CookieRequestError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cp: cookie request refused: %s", e.Reason)
	}
	return fmt.Sprintf("cp: cookie request failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *CookieRequestError) Is(target error) bool {
	return target == ErrCookieRequest
}

func (e *CookieRequestError) Unwrap() error {
	return e.Last
}

// ProtocolTimeoutError reports an exhausted receive budget for one command.
type ProtocolTimeoutError struct {
	CommandID int
	Attempts  int
	Last      error
}

func (e *ProtocolTimeoutError) Error() string {
	return fmt.Sprintf("cp: no matching response for command %d after %d attempts: %v", e.CommandID, e.Attempts, e.Last)
}

func (e *ProtocolTimeoutError) Is(target error) bool {
	return target == ErrProtocolTimeout
}

func (e *ProtocolTimeoutError) Unwrap() error {
	return e.Last
}
