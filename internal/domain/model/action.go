package model

import "time"

// ActionKind is a user-submitted ledger action on a single credit.
type ActionKind string

const (
	ActionBuy    ActionKind = "buy"
	ActionRetire ActionKind = "retire"
)

// RequiredStatus returns the status a credit must have in the latest view
// before the action may be submitted.
func (k ActionKind) RequiredStatus() CreditStatus {
	if k == ActionRetire {
		return CreditStatusOwned
	}
	return CreditStatusAvailable
}

// ActionState is the actor-side progress of an action on one credit.
type ActionState string

const (
	ActionIdle    ActionState = "idle"
	ActionPending ActionState = "pending"
	ActionSuccess ActionState = "success"
)

// CanTransition reports whether moving from s to next is allowed. There is no
// path from idle to success that skips pending.
func (s ActionState) CanTransition(next ActionState) bool {
	switch s {
	case ActionIdle:
		return next == ActionPending
	case ActionPending:
		return next == ActionSuccess || next == ActionIdle
	case ActionSuccess:
		return next == ActionIdle
	default:
		return false
	}
}

// ActionStatus is the externally visible state of the latest action attempt
// on a credit.
type ActionStatus struct {
	TokenID   TokenID
	Kind      ActionKind
	State     ActionState
	AttemptID string
	TxHash    string
	LastError string // Rejection message from the most recent failed attempt.
	UpdatedAt time.Time
}
