package realtime

import (
	"errors"
	"fmt"
)

// ErrClosed is the cause reported when the caller tears the connection down.
var ErrClosed = errors.New("connection closed by caller")

// ConnectionLost reports that the socket closed, failed or could not be
// opened. The Manager is already reconnecting when this is delivered.
type ConnectionLost struct {
	Channel Channel
	Err     error
}

// Error implements the error interface.
func (e *ConnectionLost) Error() string {
	return fmt.Sprintf("connection lost (channel=%s): %v", e.Channel, e.Err)
}

func (e *ConnectionLost) Unwrap() error {
	return e.Err
}

// IsConnectionLost reports whether err is or wraps a *ConnectionLost.
func IsConnectionLost(err error) bool {
	var cl *ConnectionLost
	return errors.As(err, &cl)
}
