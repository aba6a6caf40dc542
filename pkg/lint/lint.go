// Package lint applies the PAC lint law: twelve fixed semantic rules that
// always run in order. Every violation is reported; no rule short-circuits
// another.
package lint

import (
	"fmt"
	"strings"
	"time"

	"github.com/Mindburn-Labs/benson/pkg/pac"
)

const (
	// LawID names the rule set.
	LawID = "PAC_LINT_LAW_V1"
	// Version of the rule set.
	Version = "1.0.0"
)

// RuleID identifies a lint rule.
type RuleID string

const (
	RuleMetadataBlock     RuleID = "LINT-001"
	RulePacIDFormat       RuleID = "LINT-002"
	RulePacVersion        RuleID = "LINT-003"
	RuleClassification    RuleID = "LINT-004"
	RuleGovernanceTier    RuleID = "LINT-005"
	RuleIssuerGID         RuleID = "LINT-006"
	RuleIssuedAt          RuleID = "LINT-007"
	RuleFailClosedLawTier RuleID = "LINT-008"
	RuleAllBlocksPresent  RuleID = "LINT-009"
	RuleNoDuplicateBlocks RuleID = "LINT-010"
	RuleFinalState        RuleID = "LINT-011"
	RuleLedgerCommit      RuleID = "LINT-012"
)

// Violation is one lint rule breach.
type Violation struct {
	RuleID   RuleID `json:"rule_id"`
	Message  string `json:"message"`
	Block    *int   `json:"block_number,omitempty"`
	Field    string `json:"field_name,omitempty"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
}

func (v Violation) String() string {
	parts := []string{fmt.Sprintf("[%s] %s", v.RuleID, v.Message)}
	if v.Block != nil {
		parts = append(parts, fmt.Sprintf("(BLOCK %d)", *v.Block))
	}
	if v.Field != "" {
		parts = append(parts, fmt.Sprintf("field='%s'", v.Field))
	}
	if v.Expected != "" {
		parts = append(parts, fmt.Sprintf("expected='%s'", v.Expected))
	}
	if v.Actual != "" {
		parts = append(parts, fmt.Sprintf("actual='%s'", v.Actual))
	}
	return strings.Join(parts, " ")
}

// Result is produced once per enforcement and must not be modified.
type Result struct {
	Passed       bool        `json:"passed"`
	PacID        string      `json:"pac_id"`
	Violations   []Violation `json:"violations"`
	RulesChecked []RuleID    `json:"rules_checked"`
	CheckedAt    time.Time   `json:"checked_at"`
}

// ViolationCount returns the number of violations.
func (r *Result) ViolationCount() int {
	if r == nil {
		return 0
	}
	return len(r.Violations)
}

// ViolationStrings renders every violation.
func (r *Result) ViolationStrings() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.Violations))
	for i, v := range r.Violations {
		out[i] = v.String()
	}
	return out
}

// HasRule reports whether any violation carries id.
func (r *Result) HasRule(id RuleID) bool {
	if r == nil {
		return false
	}
	for _, v := range r.Violations {
		if v.RuleID == id {
			return true
		}
	}
	return false
}

// Rule is one named check.
type Rule struct {
	ID    RuleID
	Name  string
	Check func(doc *pac.Document) []Violation
}

// Enforcer runs the rule set. It is stateless and safe for concurrent use.
type Enforcer struct {
	rules []Rule
	clock func() time.Time
}

// NewEnforcer returns an enforcer carrying the twelve rules in canonical order.
func NewEnforcer() *Enforcer {
	return &Enforcer{rules: Rules(), clock: time.Now}
}

// WithClock overrides the clock used for CheckedAt.
func (e *Enforcer) WithClock(clock func() time.Time) *Enforcer {
	e.clock = clock
	return e
}

// RuleIDs returns the rule ids in execution order.
func (e *Enforcer) RuleIDs() []RuleID {
	ids := make([]RuleID, len(e.rules))
	for i, r := range e.rules {
		ids[i] = r.ID
	}
	return ids
}

// Enforce runs every rule against doc and aggregates the violations.
func (e *Enforcer) Enforce(doc *pac.Document) *Result {
	var violations []Violation
	for _, rule := range e.rules {
		violations = append(violations, rule.Check(doc)...)
	}
	return &Result{
		Passed:       len(violations) == 0,
		PacID:        doc.PacID(),
		Violations:   violations,
		RulesChecked: e.RuleIDs(),
		CheckedAt:    e.clock().UTC(),
	}
}

func blockRef(n int) *int { return &n }
