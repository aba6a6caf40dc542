package preflight

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Mindburn-Labs/benson/pkg/lint"
	"github.com/Mindburn-Labs/benson/pkg/pac"
	"github.com/Mindburn-Labs/benson/pkg/schema"
)

const (
	// Version of the chain.
	Version = "1.0.0"
	// InvariantID names the ordering law the chain enforces.
	InvariantID = "CB-INV-PREFLIGHT-LAW-001"
)

// Result is the aggregate preflight outcome.
type Result struct {
	Passed          bool          `json:"passed"`
	PacID           string        `json:"pac_id"`
	GateResults     []*GateResult `json:"gate_results"`
	HaltedAt        GateID        `json:"halted_at,omitempty"`
	TotalDurationMs float64       `json:"total_duration_ms"`
	CompletedAt     time.Time     `json:"completed_at"`
}

// GatesExecuted counts gates that actually ran.
func (r *Result) GatesExecuted() int {
	n := 0
	for _, g := range r.GateResults {
		if g.Status != StatusSkipped {
			n++
		}
	}
	return n
}

// GatesPassed counts gates that passed.
func (r *Result) GatesPassed() int {
	n := 0
	for _, g := range r.GateResults {
		if g.Passed() {
			n++
		}
	}
	return n
}

// FirstFailure returns the halting gate's failure, or nil.
func (r *Result) FirstFailure() *Failure {
	for _, g := range r.GateResults {
		if g.Failure != nil {
			return g.Failure
		}
	}
	return nil
}

// Prior carries stage results already computed by the caller.
type Prior struct {
	Schema *schema.Result
	Lint   *lint.Result
}

// Chain runs the six preflight gates.
type Chain struct {
	gates  []Gate
	clock  func() time.Time
	logger *slog.Logger
}

// Option configures a Chain.
type Option func(*Chain)

// WithClock overrides the clock used for timestamps and durations.
func WithClock(clock func() time.Time) Option {
	return func(c *Chain) { c.clock = clock }
}

// WithLogger sets the chain logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Chain) { c.logger = l }
}

// NewChain builds the canonical chain over the given registry and enforcer.
func NewChain(registry *schema.Registry, enforcer *lint.Enforcer, opts ...Option) (*Chain, error) {
	policy, err := NewTierPolicy()
	if err != nil {
		return nil, err
	}
	return newChain([]Gate{
		NewSchemaValidationGate(registry),
		NewLintEnforcementGate(enforcer),
		AdmissionGate{},
		NewGovernanceGate(policy),
		IdentityGate{},
		NewInvariantGate(policy),
	}, opts...)
}

// newChain checks the gate order against ExecutionOrder.
func newChain(gates []Gate, opts ...Option) (*Chain, error) {
	if len(gates) != len(ExecutionOrder) {
		return nil, fmt.Errorf("preflight: expected %d gates, got %d", len(ExecutionOrder), len(gates))
	}
	for i, g := range gates {
		if g.ID() != ExecutionOrder[i] {
			return nil, fmt.Errorf("preflight: gate order mismatch at %d: %s != %s", i, g.ID(), ExecutionOrder[i])
		}
	}
	c := &Chain{gates: gates, clock: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default().With("component", "preflight")
	}
	return c, nil
}

// Gates returns the gates in execution order.
func (c *Chain) Gates() []Gate {
	return append([]Gate(nil), c.gates...)
}

// Enforce runs the chain, computing schema and lint results itself.
func (c *Chain) Enforce(doc *pac.Document) *Result {
	return c.EnforceWith(doc, Prior{})
}

// EnforceWith runs the chain, reusing any schema or lint result in prior.
// Both stages are deterministic, so reuse does not change the outcome.
func (c *Chain) EnforceWith(doc *pac.Document, prior Prior) *Result {
	start := c.clock()
	ctx := &RunContext{Doc: doc, Schema: prior.Schema, Lint: prior.Lint}
	res := &Result{
		PacID:       doc.PacID(),
		GateResults: make([]*GateResult, 0, len(c.gates)),
	}

	for _, g := range c.gates {
		if res.HaltedAt != "" {
			res.GateResults = append(res.GateResults, &GateResult{
				GateID:    g.ID(),
				Status:    StatusSkipped,
				Timestamp: c.clock().UTC(),
			})
			continue
		}

		gateStart := c.clock()
		gr := g.Run(ctx)
		gr.GateID = g.ID()
		gr.DurationMs = millis(c.clock().Sub(gateStart))
		gr.Timestamp = c.clock().UTC()
		res.GateResults = append(res.GateResults, gr)

		c.logger.Debug("preflight gate",
			"pac_id", res.PacID,
			"gate_id", g.ID(),
			"status", gr.Status,
			"duration_ms", gr.DurationMs,
		)
		if gr.Status != StatusPassed {
			res.HaltedAt = g.ID()
		}
	}

	res.Passed = res.HaltedAt == ""
	res.CompletedAt = c.clock().UTC()
	res.TotalDurationMs = millis(res.CompletedAt.Sub(start))
	return res
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
