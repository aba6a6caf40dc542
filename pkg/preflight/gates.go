package preflight

import (
	"fmt"
	"strings"

	"github.com/Mindburn-Labs/benson/pkg/lint"
	"github.com/Mindburn-Labs/benson/pkg/pac"
	"github.com/Mindburn-Labs/benson/pkg/schema"
)

// SchemaValidationGate delegates to the schema registry.
type SchemaValidationGate struct {
	registry *schema.Registry
}

func NewSchemaValidationGate(r *schema.Registry) *SchemaValidationGate {
	return &SchemaValidationGate{registry: r}
}

func (g *SchemaValidationGate) ID() GateID   { return GateSchemaValidation }
func (g *SchemaValidationGate) Name() string { return "Schema Validation" }

func (g *SchemaValidationGate) Run(ctx *RunContext) *GateResult {
	if ctx.Schema == nil {
		ctx.Schema = g.registry.Validate(ctx.Doc)
	}
	if ctx.Schema.Valid() {
		return passed(g.ID())
	}
	return failed(g.ID(), "Schema validation failed", summarize(ctx.Schema.ErrorStrings()))
}

// LintEnforcementGate delegates to the lint enforcer.
type LintEnforcementGate struct {
	enforcer *lint.Enforcer
}

func NewLintEnforcementGate(e *lint.Enforcer) *LintEnforcementGate {
	return &LintEnforcementGate{enforcer: e}
}

func (g *LintEnforcementGate) ID() GateID   { return GateLintEnforcement }
func (g *LintEnforcementGate) Name() string { return "Lint Enforcement" }

func (g *LintEnforcementGate) Run(ctx *RunContext) *GateResult {
	if ctx.Lint == nil {
		ctx.Lint = g.enforcer.Enforce(ctx.Doc)
	}
	if ctx.Lint.Passed {
		return passed(g.ID())
	}
	return failed(g.ID(), "Lint enforcement failed", summarize(ctx.Lint.ViolationStrings()))
}

// AdmissionGate requires block 1 and refuses a REJECTED admission decision.
type AdmissionGate struct{}

func (AdmissionGate) ID() GateID   { return GateAdmission }
func (AdmissionGate) Name() string { return "PAC Admission" }

func (g AdmissionGate) Run(ctx *RunContext) *GateResult {
	v, ok := ctx.Doc.Block(pac.BlockAdmissionCheck)
	if !ok {
		return failed(g.ID(), "PAC_ADMISSION_CHECK block missing", "")
	}
	block, isMap := v.(map[string]any)
	if !isMap {
		return failed(g.ID(), "PAC_ADMISSION_CHECK block must be a mapping", "got "+pac.KindOf(v))
	}
	decision, _, _ := pac.StringField(block, "admission_decision")
	if pac.Upper(decision) != "REJECTED" {
		return passed(g.ID())
	}
	reason, present, isString := pac.StringField(block, "rejection_reason")
	if !present || !isString || reason == "" {
		reason = "No reason provided"
	}
	return failed(g.ID(), "PAC admission was rejected", reason)
}

// GovernanceGate requires block 3, a known governance mode, and no downgrade
// under LAW.
type GovernanceGate struct {
	policy *TierPolicy
}

func NewGovernanceGate(p *TierPolicy) *GovernanceGate {
	return &GovernanceGate{policy: p}
}

func (g *GovernanceGate) ID() GateID   { return GateGovernance }
func (g *GovernanceGate) Name() string { return "Governance Mode" }

func (g *GovernanceGate) Run(ctx *RunContext) *GateResult {
	v, ok := ctx.Doc.Block(pac.BlockGovernanceMode)
	if !ok {
		return failed(g.ID(), "GOVERNANCE_MODE_DECLARATION block missing", "")
	}
	block, isMap := v.(map[string]any)
	if !isMap {
		return failed(g.ID(), "GOVERNANCE_MODE_DECLARATION block must be a mapping", "got "+pac.KindOf(v))
	}

	raw, present, isString := pac.StringField(block, "governance_mode")
	mode := pac.Upper(raw)
	validModes := "Valid modes: " + strings.Join(pac.GovernanceTiers, ", ")
	if present && !isString {
		return failed(g.ID(), fmt.Sprintf("Invalid governance mode: %v", block["governance_mode"]), validModes)
	}
	if mode != "" && !pac.Contains(pac.GovernanceTiers, mode) {
		return failed(g.ID(), "Invalid governance mode: "+mode, validModes)
	}

	downgrade, _ := block["downgrade_allowed"].(bool)
	ok, err := g.policy.DowngradeForbidden(mode, downgrade)
	if err != nil {
		return failed(g.ID(), "Governance policy evaluation failed", err.Error())
	}
	if !ok {
		return failed(g.ID(), "LAW tier cannot allow downgrade", "")
	}
	return passed(g.ID())
}

// IdentityGate requires block 4 and a valid agent acknowledgement when one is
// given.
type IdentityGate struct{}

func (IdentityGate) ID() GateID   { return GateIdentity }
func (IdentityGate) Name() string { return "Agent Identity" }

func (g IdentityGate) Run(ctx *RunContext) *GateResult {
	v, ok := ctx.Doc.Block(pac.BlockAgentActivationAck)
	if !ok {
		return failed(g.ID(), "AGENT_ACTIVATION_ACK block missing", "")
	}
	block, isMap := v.(map[string]any)
	if !isMap {
		return failed(g.ID(), "AGENT_ACTIVATION_ACK block must be a mapping", "got "+pac.KindOf(v))
	}
	ack, isMap := block["acknowledgement"].(map[string]any)
	if !isMap {
		return passed(g.ID())
	}
	raw, present, isString := pac.StringField(ack, "agent_ack")
	if !present {
		return passed(g.ID())
	}
	got := fmt.Sprint(ack["agent_ack"])
	if isString {
		got = pac.Upper(raw)
		if got == "EXPLICIT" || got == "IMPLICIT" {
			return passed(g.ID())
		}
	}
	return failed(g.ID(), "Agent acknowledgement not valid",
		fmt.Sprintf("Got: %s, expected: EXPLICIT or IMPLICIT", got))
}

// InvariantGate requires block 9 and, under LAW, a LOCKED invariant registry.
type InvariantGate struct {
	policy *TierPolicy
}

func NewInvariantGate(p *TierPolicy) *InvariantGate {
	return &InvariantGate{policy: p}
}

func (g *InvariantGate) ID() GateID   { return GateInvariant }
func (g *InvariantGate) Name() string { return "Invariant Enforcement" }

func (g *InvariantGate) Run(ctx *RunContext) *GateResult {
	v, ok := ctx.Doc.Block(pac.BlockInvariantsEnforced)
	if !ok {
		return failed(g.ID(), "INVARIANTS_ENFORCED block missing", "")
	}

	tier, _ := ctx.Doc.MetadataString(pac.FieldGovernanceTier)
	tier = pac.Upper(tier)

	registry := ""
	if block, isMap := v.(map[string]any); isMap {
		if r, present := block["invariant_registry"]; present && r != nil {
			registry = pac.Upper(fmt.Sprint(r))
		}
	}

	locked, err := g.policy.RegistryLocked(tier, registry)
	if err != nil {
		return failed(g.ID(), "Invariant policy evaluation failed", err.Error())
	}
	if !locked {
		return failed(g.ID(), "LAW tier requires invariant_registry to be LOCKED", "Got: "+registry)
	}
	return passed(g.ID())
}
