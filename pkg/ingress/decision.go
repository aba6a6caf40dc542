package ingress

import (
	"time"

	"github.com/Mindburn-Labs/benson/pkg/lint"
	"github.com/Mindburn-Labs/benson/pkg/preflight"
	"github.com/Mindburn-Labs/benson/pkg/schema"
)

// RejectReason classifies a rejection.
type RejectReason string

const (
	ReasonSchemaInvalid   RejectReason = "SCHEMA_INVALID"
	ReasonLintFailed      RejectReason = "LINT_FAILED"
	ReasonPreflightFailed RejectReason = "PREFLIGHT_FAILED"
	ReasonDuplicatePAC    RejectReason = "DUPLICATE_PAC"
	ReasonUnknownError    RejectReason = "UNKNOWN_ERROR"
)

// Decision is either *Admit or *Reject.
type Decision interface {
	Admitted() bool
	decision()
}

// Admit is returned when every stage passed.
type Admit struct {
	PacID     string            `json:"pac_id"`
	Schema    *schema.Result    `json:"schema"`
	Lint      *lint.Result      `json:"lint"`
	Preflight *preflight.Result `json:"preflight"`
	DecidedAt time.Time         `json:"decided_at"`
}

func (*Admit) Admitted() bool { return true }
func (*Admit) decision()      {}

// Reject carries the reason and whichever stage results were computed.
type Reject struct {
	PacID     string            `json:"pac_id"`
	Reason    RejectReason      `json:"reason"`
	Summary   string            `json:"summary"`
	Errors    []string          `json:"errors"`
	Schema    *schema.Result    `json:"schema,omitempty"`
	Lint      *lint.Result      `json:"lint,omitempty"`
	Preflight *preflight.Result `json:"preflight,omitempty"`
	DecidedAt time.Time         `json:"decided_at"`
}

func (*Reject) Admitted() bool { return false }
func (*Reject) decision()      {}
