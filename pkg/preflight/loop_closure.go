package preflight

import (
	"fmt"
	"strings"
	"time"
)

// LoopClosureDirective identifies the BER requirement directive.
const LoopClosureDirective = "DIR-BER-001"

// LoopClosureContext references the artifacts attached to a PAC at closure.
type LoopClosureContext struct {
	PacID   string
	WrapID  string
	BerID   string
	HasWrap bool
	HasBer  bool
}

// BERRequirementGate guards loop closure. It is not part of the main chain.
type BERRequirementGate struct {
	clock func() time.Time
}

func (g *BERRequirementGate) ID() GateID   { return GateBERRequired }
func (g *BERRequirementGate) Name() string { return "BER Requirement" }

// Run always passes; closure checks go through CheckClosure.
func (g *BERRequirementGate) Run(*RunContext) *GateResult {
	return g.stamp(passed(g.ID()), g.clock())
}

// CheckClosure fails unless a BER exists. A WRAP without a BER is reported
// as its own failure, since a WRAP is proof of execution and not a decision.
func (g *BERRequirementGate) CheckClosure(ctx LoopClosureContext) *GateResult {
	start := g.clock()
	switch {
	case ctx.HasWrap && !ctx.HasBer:
		return g.stamp(failed(g.ID(), "WRAP is not a decision artifact",
			fmt.Sprintf("PAC %s has WRAP %s but no BER. WRAP documents execution; BER authorizes closure.", ctx.PacID, ctx.WrapID)), start)
	case !ctx.HasBer:
		return g.stamp(failed(g.ID(), "BER required for loop closure",
			fmt.Sprintf("PAC %s has no BER. WRAP is proof only; BER is mandatory.", ctx.PacID)), start)
	}
	return g.stamp(passed(g.ID()), start)
}

// CheckLawReview fails unless a BER exists.
func (g *BERRequirementGate) CheckLawReview(ctx LoopClosureContext) *GateResult {
	start := g.clock()
	if !ctx.HasBer {
		return g.stamp(failed(g.ID(), "LAW review requires BER",
			fmt.Sprintf("PAC %s cannot be LAW-reviewed without BER. Issue BER-%s first.",
				ctx.PacID, strings.TrimPrefix(ctx.PacID, "PAC-"))), start)
	}
	return g.stamp(passed(g.ID()), start)
}

func (g *BERRequirementGate) stamp(r *GateResult, start time.Time) *GateResult {
	now := g.clock()
	r.DurationMs = millis(now.Sub(start))
	r.Timestamp = now.UTC()
	return r
}

// LoopClosureEnforcer is the entry point for closure checks.
type LoopClosureEnforcer struct {
	gate *BERRequirementGate
}

// NewLoopClosureEnforcer returns an enforcer using the wall clock.
func NewLoopClosureEnforcer() *LoopClosureEnforcer {
	return &LoopClosureEnforcer{gate: &BERRequirementGate{clock: time.Now}}
}

// Gate exposes the underlying BER gate.
func (e *LoopClosureEnforcer) Gate() *BERRequirementGate { return e.gate }

// CanCloseLoop checks whether the loop for ctx.PacID may be closed.
func (e *LoopClosureEnforcer) CanCloseLoop(ctx LoopClosureContext) *GateResult {
	return e.gate.CheckClosure(ctx)
}

// CanRequestLawReview checks whether LAW review may be requested.
func (e *LoopClosureEnforcer) CanRequestLawReview(ctx LoopClosureContext) *GateResult {
	return e.gate.CheckLawReview(ctx)
}

// EnforceBERRequirement builds a context from artifact ids; an empty id means
// the artifact does not exist.
func (e *LoopClosureEnforcer) EnforceBERRequirement(pacID, wrapID, berID string) *GateResult {
	return e.CanCloseLoop(LoopClosureContext{
		PacID:   pacID,
		WrapID:  wrapID,
		BerID:   berID,
		HasWrap: wrapID != "",
		HasBer:  berID != "",
	})
}
