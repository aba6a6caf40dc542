// Package ingress is the single entry point that decides whether a PAC may
// proceed: schema, then lint, then the preflight chain, with duplicate
// protection in front.
package ingress

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Mindburn-Labs/benson/pkg/lint"
	"github.com/Mindburn-Labs/benson/pkg/pac"
	"github.com/Mindburn-Labs/benson/pkg/preflight"
	"github.com/Mindburn-Labs/benson/pkg/schema"
)

// Validator orders the stages and tracks admitted pac_ids.
// Stages are pure; only the SeenStore holds shared state.
type Validator struct {
	registry *schema.Registry
	enforcer *lint.Enforcer
	chain    *preflight.Chain
	seen     SeenStore
	logger   *slog.Logger
	clock    func() time.Time
}

// Option configures a Validator.
type Option func(*Validator)

// WithSeenStore replaces the in-memory duplicate registry.
func WithSeenStore(s SeenStore) Option {
	return func(v *Validator) { v.seen = s }
}

// WithLogger sets the validator logger.
func WithLogger(l *slog.Logger) Option {
	return func(v *Validator) { v.logger = l }
}

// WithClock overrides the clock used for decision timestamps.
func WithClock(clock func() time.Time) Option {
	return func(v *Validator) { v.clock = clock }
}

// WithStages replaces the default stage implementations.
func WithStages(r *schema.Registry, e *lint.Enforcer, c *preflight.Chain) Option {
	return func(v *Validator) {
		v.registry, v.enforcer, v.chain = r, e, c
	}
}

// NewValidator builds a validator with the canonical stages.
func NewValidator(opts ...Option) (*Validator, error) {
	v := &Validator{clock: time.Now}
	for _, opt := range opts {
		opt(v)
	}
	if v.logger == nil {
		v.logger = slog.Default().With("component", "ingress")
	}
	if v.seen == nil {
		v.seen = NewMemorySeenStore()
	}
	if v.registry == nil {
		r, err := schema.NewRegistry()
		if err != nil {
			return nil, fmt.Errorf("ingress: %w", err)
		}
		v.registry = r
	}
	if v.enforcer == nil {
		v.enforcer = lint.NewEnforcer()
	}
	if v.chain == nil {
		c, err := preflight.NewChain(v.registry, v.enforcer, preflight.WithLogger(v.logger))
		if err != nil {
			return nil, fmt.Errorf("ingress: %w", err)
		}
		v.chain = c
	}
	return v, nil
}

// Validate runs the stages in order and returns exactly one decision. It
// never panics and never returns an error: internal failures become a
// Reject with ReasonUnknownError.
func (v *Validator) Validate(ctx context.Context, doc *pac.Document) (d Decision) {
	pacID := pac.UnknownID
	var (
		schemaRes *schema.Result
		lintRes   *lint.Result
		preRes    *preflight.Result
	)

	defer func() {
		if r := recover(); r != nil {
			v.logger.Error("ingress validation panicked", "pac_id", pacID, "panic", r)
			d = v.reject(pacID, ReasonUnknownError, fmt.Sprintf("Internal validation error: %v", r),
				[]string{fmt.Sprint(r)}, schemaRes, lintRes, preRes)
		}
	}()

	if doc == nil {
		doc = pac.New(nil)
	}
	pacID = doc.PacID()
	tracked := pacID != pac.UnknownID

	if tracked {
		seen, err := v.seen.Contains(ctx, pacID)
		if err != nil {
			return v.internalError(pacID, err, nil, nil, nil)
		}
		if seen {
			return v.duplicate(pacID)
		}
	}

	schemaRes = v.registry.Validate(doc)
	if !schemaRes.Valid() {
		return v.reject(pacID, ReasonSchemaInvalid,
			fmt.Sprintf("Schema validation failed (%s): %d error(s)", schemaRes.Status, schemaRes.ErrorCount()),
			schemaRes.ErrorStrings(), schemaRes, nil, nil)
	}

	lintRes = v.enforcer.Enforce(doc)
	if !lintRes.Passed {
		return v.reject(pacID, ReasonLintFailed,
			fmt.Sprintf("Lint enforcement failed: %d violation(s)", lintRes.ViolationCount()),
			lintRes.ViolationStrings(), schemaRes, lintRes, nil)
	}

	preRes = v.chain.EnforceWith(doc, preflight.Prior{Schema: schemaRes, Lint: lintRes})
	if !preRes.Passed {
		f := preRes.FirstFailure()
		summary := fmt.Sprintf("Preflight halted at %s", preRes.HaltedAt)
		var errs []string
		if f != nil {
			summary += ": " + f.Message
			errs = []string{f.String()}
		}
		return v.reject(pacID, ReasonPreflightFailed, summary, errs, schemaRes, lintRes, preRes)
	}

	if tracked {
		added, err := v.seen.Add(ctx, pacID)
		if err != nil {
			return v.internalError(pacID, err, schemaRes, lintRes, preRes)
		}
		if !added {
			// Another caller admitted the same id while we were validating.
			return v.duplicate(pacID)
		}
	}

	v.logger.Debug("ingress admitted", "pac_id", pacID)
	return &Admit{
		PacID:     pacID,
		Schema:    schemaRes,
		Lint:      lintRes,
		Preflight: preRes,
		DecidedAt: v.clock().UTC(),
	}
}

func (v *Validator) duplicate(pacID string) *Reject {
	return v.reject(pacID, ReasonDuplicatePAC,
		fmt.Sprintf("PAC %s was already admitted", pacID),
		[]string{"duplicate pac_id: " + pacID}, nil, nil, nil)
}

func (v *Validator) internalError(pacID string, err error, s *schema.Result, l *lint.Result, p *preflight.Result) *Reject {
	v.logger.Error("ingress validation failed", "pac_id", pacID, "error", err)
	return v.reject(pacID, ReasonUnknownError, "Internal validation error: "+err.Error(), []string{err.Error()}, s, l, p)
}

func (v *Validator) reject(pacID string, reason RejectReason, summary string, errs []string,
	s *schema.Result, l *lint.Result, p *preflight.Result) *Reject {
	v.logger.Debug("ingress rejected", "pac_id", pacID, "reason", reason)
	return &Reject{
		PacID:     pacID,
		Reason:    reason,
		Summary:   summary,
		Errors:    errs,
		Schema:    s,
		Lint:      l,
		Preflight: p,
		DecidedAt: v.clock().UTC(),
	}
}

// ValidatedCount returns the number of admitted pac_ids being tracked.
func (v *Validator) ValidatedCount(ctx context.Context) (int, error) {
	return v.seen.Len(ctx)
}

// Release withdraws the record of an admission the caller could not complete,
// so the same pac_id may be submitted again.
func (v *Validator) Release(ctx context.Context, pacID string) error {
	if pacID == "" || pacID == pac.UnknownID {
		return nil
	}
	if err := v.seen.Remove(ctx, pacID); err != nil {
		return fmt.Errorf("ingress: release %s: %w", pacID, err)
	}
	v.logger.Info("ingress admission released", "pac_id", pacID)
	return nil
}

// ResetValidationCache forgets every admitted pac_id.
//
// Test isolation only. Calling this in production defeats duplicate
// protection: every previously admitted PAC becomes admissible again.
func (v *Validator) ResetValidationCache(ctx context.Context) error {
	v.logger.Warn("ingress validation cache reset")
	return v.seen.Reset(ctx)
}
