package engine

import (
	"time"

	"github.com/Mindburn-Labs/benson/pkg/audit"
)

// Status is the lifecycle state of an execution token.
type Status string

const (
	StatusAdmitted  Status = "ADMITTED"
	StatusExecuting Status = "EXECUTING"
	StatusCompleted Status = "COMPLETED"
	StatusHalted    Status = "HALTED"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusHalted
}

// TokenRecord is the engine's view of one admitted PAC.
type TokenRecord struct {
	Token       string    `json:"execution_token"`
	PacID       string    `json:"pac_id"`
	Status      Status    `json:"status"`
	AdmittedAt  time.Time `json:"admitted_at"`
	StartedAt   time.Time `json:"started_at,omitzero"`
	CompletedAt time.Time `json:"completed_at,omitzero"`
	HaltedAt    time.Time `json:"halted_at,omitzero"`
	HaltReason  string    `json:"halt_reason,omitempty"`
}

// transition is one allowed lifecycle edge set.
type transition struct {
	name      string
	from      []Status
	to        Status
	eventType audit.EventType
}

var (
	startTransition = transition{
		name: "start", from: []Status{StatusAdmitted}, to: StatusExecuting,
		eventType: audit.EventExecutionStarted,
	}
	completeTransition = transition{
		name: "complete", from: []Status{StatusExecuting}, to: StatusCompleted,
		eventType: audit.EventExecutionCompleted,
	}
	haltTransition = transition{
		name: "halt", from: []Status{StatusAdmitted, StatusExecuting}, to: StatusHalted,
		eventType: audit.EventExecutionHalted,
	}
)

func (t transition) allows(s Status) bool {
	for _, f := range t.from {
		if s == f {
			return true
		}
	}
	return false
}

func (r *TokenRecord) apply(t transition, at time.Time, reason string) {
	r.Status = t.to
	switch t.to {
	case StatusExecuting:
		r.StartedAt = at
	case StatusCompleted:
		r.CompletedAt = at
	case StatusHalted:
		r.HaltedAt = at
		r.HaltReason = reason
	}
}
