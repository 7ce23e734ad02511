package domain

// PenaltyState is the lifecycle state of one (user, task) pair.
type PenaltyState string

const (
	StatePending        PenaltyState = "pending"
	StateCompleted      PenaltyState = "completed"
	StatePenaltyOpen    PenaltyState = "penalty_open"
	StatePenaltySettled PenaltyState = "penalty_settled"
	// StateRemoved has no row: the user was expelled and the rows cascaded away.
	StateRemoved PenaltyState = "removed"
)

// State derives the penalty state from the row flags.
func (c *TaskCompletion) State() PenaltyState {
	switch {
	case c.Completed:
		return StateCompleted
	case c.PenaltyAppliedAt == nil:
		return StatePending
	case c.PenaltyPaid:
		return StatePenaltySettled
	default:
		return StatePenaltyOpen
	}
}

// CanOpenPenalty reports whether the nightly scan may move the row to PenaltyOpen.
func (c *TaskCompletion) CanOpenPenalty() bool {
	return c.State() == StatePending
}

// CanSettle reports whether a payment may be recorded against the row.
func (c *TaskCompletion) CanSettle() bool {
	return c.State() == StatePenaltyOpen
}

// IsOpenPenalty is true for an applied and unpaid penalty.
func (c *TaskCompletion) IsOpenPenalty() bool {
	return c.State() == StatePenaltyOpen
}
