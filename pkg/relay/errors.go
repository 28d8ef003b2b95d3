package relay

import (
	"errors"
	"fmt"
)

// ErrTransient marks an error as retryable. Platform adapters wrap network
// failures, rate limits and 5xx responses with it; anything not so marked
// fails fast instead of burning retry attempts on a logic error.
var ErrTransient = errors.New("transient error")

// ErrAuditRejected means QQ's content audit refused (or timed out on) a send.
// Delivery of the message is abandoned without retry.
var ErrAuditRejected = errors.New("message audit rejected")

// Transient wraps err so that errors.Is(result, ErrTransient) holds.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// DeliveryError is the fatal outcome of one message's delivery after the
// retry budget is exhausted or audit rejects it.
type DeliveryError struct {
	SourceID string
	Channel  string
	Attempts int
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivering message %s to channel %s failed after %d attempt(s): %v",
		e.SourceID, e.Channel, e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
