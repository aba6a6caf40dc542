package preflight

import (
	"fmt"

	"github.com/google/cel-go/cel"
)

// Tier policy expressions. Each must evaluate to true for the document to pass.
const (
	exprDowngradeForbidden = `!(input.mode == "LAW" && input.downgrade_allowed)`
	exprRegistryLocked     = `input.tier != "LAW" || input.invariant_registry == "LOCKED"`
)

// TierPolicy holds the LAW-tier predicates compiled once as CEL programs.
type TierPolicy struct {
	downgrade cel.Program
	locked    cel.Program
}

// NewTierPolicy compiles the tier predicates.
func NewTierPolicy() (*TierPolicy, error) {
	env, err := cel.NewEnv(
		cel.Variable("input", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("tier policy env: %w", err)
	}
	downgrade, err := compile(env, exprDowngradeForbidden)
	if err != nil {
		return nil, err
	}
	locked, err := compile(env, exprRegistryLocked)
	if err != nil {
		return nil, err
	}
	return &TierPolicy{downgrade: downgrade, locked: locked}, nil
}

func compile(env *cel.Env, expr string) (cel.Program, error) {
	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("tier policy compile %q: %w", expr, issues.Err())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("tier policy program %q: %w", expr, err)
	}
	return prg, nil
}

// DowngradeForbidden reports whether a governance declaration honours the
// LAW no-downgrade rule. mode must already be upper-cased.
func (p *TierPolicy) DowngradeForbidden(mode string, downgradeAllowed bool) (bool, error) {
	return eval(p.downgrade, map[string]any{
		"mode":              mode,
		"downgrade_allowed": downgradeAllowed,
	})
}

// RegistryLocked reports whether the invariant registry state satisfies the
// tier. Both arguments must already be upper-cased.
func (p *TierPolicy) RegistryLocked(tier, registry string) (bool, error) {
	return eval(p.locked, map[string]any{
		"tier":               tier,
		"invariant_registry": registry,
	})
}

// eval fails closed: anything other than a boolean result is an error.
func eval(prg cel.Program, input map[string]any) (bool, error) {
	out, _, err := prg.Eval(map[string]any{"input": input})
	if err != nil {
		return false, fmt.Errorf("tier policy eval: %w", err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("tier policy eval: non-boolean result %T", out.Value())
	}
	return b, nil
}
