package interaction

import (
	"errors"
	"fmt"

	"grantify-client/internal/models"
)

var (
	// ErrUnauthenticated is returned before any local mutation when nobody is signed in
	ErrUnauthenticated = errors.New("sign in to save, apply or ignore grants")
	// ErrInvalidAction is returned for actions other than saved, applied and ignored
	ErrInvalidAction = errors.New("invalid interaction action")
)

// ActionError reports a remote write that failed after its optimistic
// mutation was reverted
type ActionError struct {
	GrantID string
	Action  models.Action
	Undo    bool
	Err     error
}

func (e *ActionError) Error() string {
	verb := "record"
	if e.Undo {
		verb = "remove"
	}
	return fmt.Sprintf("failed to %s %q for grant %s: %v", verb, e.Action, e.GrantID, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}
