package domain

import "errors"

// Invariant violations. Surfaced synchronously to the caller.
var (
	ErrDuplicateDate    = errors.New("a task already exists for this date")
	ErrPastDate         = errors.New("date is in the past")
	ErrNoSuchTask       = errors.New("task not found")
	ErrNoSuchUser       = errors.New("user not found")
	ErrNoSuchCompletion = errors.New("completion not found")
	ErrAlreadyCompleted = errors.New("task already completed")
	ErrTaskNotOpen      = errors.New("task is not open for completion")
	ErrTaskHasProgress  = errors.New("task already has completions")
)

// Collaborator and infrastructure failures.
var (
	ErrExternalTransport = errors.New("external transport failure")
	ErrExternalRoster    = errors.New("external roster failure")
	ErrStoreUnavailable  = errors.New("store unavailable")
)

// IsInvariant reports whether err is one of the invariant violations above.
func IsInvariant(err error) bool {
	for _, target := range []error{
		ErrDuplicateDate, ErrPastDate, ErrNoSuchTask, ErrNoSuchUser,
		ErrNoSuchCompletion, ErrAlreadyCompleted, ErrTaskNotOpen, ErrTaskHasProgress,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
