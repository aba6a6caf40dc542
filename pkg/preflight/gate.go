// Package preflight implements the six-gate preflight chain that stands
// between a validated PAC and execution, plus the loop-closure BER gate.
//
// Gates run in a fixed order. The first failing gate halts the chain and every
// later gate is reported as SKIPPED.
package preflight

import (
	"fmt"
	"strings"
	"time"

	"github.com/Mindburn-Labs/benson/pkg/lint"
	"github.com/Mindburn-Labs/benson/pkg/pac"
	"github.com/Mindburn-Labs/benson/pkg/schema"
)

// GateID is a stable gate identifier.
type GateID string

const (
	GateSchemaValidation GateID = "GATE-001"
	GateLintEnforcement  GateID = "GATE-002"
	GateAdmission        GateID = "GATE-003"
	GateGovernance       GateID = "GATE-004"
	GateIdentity         GateID = "GATE-005"
	GateInvariant        GateID = "GATE-006"
	GateBERRequired      GateID = "GATE-BER-REQUIRED"
)

// ExecutionOrder is the only order in which the main chain may run.
var ExecutionOrder = []GateID{
	GateSchemaValidation,
	GateLintEnforcement,
	GateAdmission,
	GateGovernance,
	GateIdentity,
	GateInvariant,
}

// GateStatus is the outcome of one gate.
type GateStatus string

const (
	StatusPassed  GateStatus = "PASSED"
	StatusFailed  GateStatus = "FAILED"
	StatusSkipped GateStatus = "SKIPPED"
)

// Failure describes why a gate failed. Every failure halts execution.
type Failure struct {
	GateID  GateID `json:"gate_id"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

func (f *Failure) String() string {
	if f == nil {
		return ""
	}
	s := fmt.Sprintf("[%s] %s", f.GateID, f.Message)
	if f.Details != "" {
		s += " | Details: " + f.Details
	}
	return s
}

// GateResult is the output of a single gate.
type GateResult struct {
	GateID     GateID     `json:"gate_id"`
	Status     GateStatus `json:"status"`
	Failure    *Failure   `json:"failure,omitempty"`
	DurationMs float64    `json:"duration_ms"`
	Timestamp  time.Time  `json:"timestamp"`
}

// Passed reports whether the gate passed.
func (r *GateResult) Passed() bool { return r.Status == StatusPassed }

// Failed reports whether the gate failed.
func (r *GateResult) Failed() bool { return r.Status == StatusFailed }

// RunContext carries the document and any results computed by earlier stages.
type RunContext struct {
	Doc    *pac.Document
	Schema *schema.Result
	Lint   *lint.Result
}

// Gate is the interface every preflight gate implements.
type Gate interface {
	ID() GateID
	Name() string
	// Run must not panic; failures are expressed through the result.
	Run(ctx *RunContext) *GateResult
}

func passed(id GateID) *GateResult {
	return &GateResult{GateID: id, Status: StatusPassed}
}

func failed(id GateID, message, details string) *GateResult {
	return &GateResult{
		GateID:  id,
		Status:  StatusFailed,
		Failure: &Failure{GateID: id, Message: message, Details: details},
	}
}

// summarize joins the first three items and counts the rest.
func summarize(items []string) string {
	const shown = 3
	if len(items) <= shown {
		return strings.Join(items, "; ")
	}
	return fmt.Sprintf("%s (+%d more)", strings.Join(items[:shown], "; "), len(items)-shown)
}
