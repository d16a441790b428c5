package dex

import "github.com/nexuspay/payd/pkg/store"

// Status is a remote execution status. Same-chain executions report
// pending/filled/expired/cancelled, cross-chain swaps report
// pending/executed/expired/refunded. Both vocabularies share this type since
// they collapse to the same terminal outcomes.
type Status string

const (
	StatusPending   Status = "pending"
	StatusFilled    Status = "filled"
	StatusExecuted  Status = "executed"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
	StatusRefunded  Status = "refunded"
)

// Terminal reports whether no further remote transition can occur.
func (s Status) Terminal() bool {
	switch s {
	case StatusFilled, StatusExecuted, StatusExpired, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

// Outcome maps a terminal status to the order's execution outcome. A
// non-terminal status maps to NONE.
func (s Status) Outcome() store.Outcome {
	switch s {
	case StatusFilled, StatusExecuted:
		return store.OutcomeExecuted
	case StatusExpired:
		return store.OutcomeExpired
	case StatusCancelled, StatusRefunded:
		return store.OutcomeRefunded
	default:
		return store.OutcomeNone
	}
}
