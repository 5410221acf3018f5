package console

import (
	"errors"
	"fmt"

	"github.com/dshills/hostconsole/internal/session"
)

var (
	// ErrInvalidSession is returned when enqueueing for session.None.
	ErrInvalidSession = errors.New("invalid session id")

	// ErrNoNotifier is returned when no host notifier has been attached.
	ErrNoNotifier = errors.New("host notifier not attached")
)

// NotifyError reports that a command was queued but the host could not be
// signalled. The command stays queued.
type NotifyError struct {
	Session session.ID
	Err     error
}

func (e *NotifyError) Error() string {
	return fmt.Sprintf("notify host for session %d: %v", e.Session, e.Err)
}

func (e *NotifyError) Unwrap() error {
	return e.Err
}
