// Package engine is the execution admission engine: the only path by which a
// PAC becomes an executing unit of work.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Mindburn-Labs/benson/pkg/audit"
	"github.com/Mindburn-Labs/benson/pkg/ingress"
	"github.com/Mindburn-Labs/benson/pkg/observability"
	"github.com/Mindburn-Labs/benson/pkg/pac"
	"github.com/Mindburn-Labs/benson/pkg/preflight"
)

var (
	ErrDuplicateInstance = errors.New("engine: an execution engine already exists in this process")
	ErrEngineClosed      = errors.New("engine: closed")
)

// DuplicateInstanceError is returned when a second engine is constructed
// while one is live.
type DuplicateInstanceError struct {
	ExistingCreatedAt time.Time
}

func (e *DuplicateInstanceError) Error() string {
	return fmt.Sprintf("%s (created %s)", ErrDuplicateInstance, e.ExistingCreatedAt.Format(time.RFC3339Nano))
}

func (e *DuplicateInstanceError) Is(target error) bool { return target == ErrDuplicateInstance }

// The process-wide guard. live is checked and set under guardMu.
var (
	guardMu sync.Mutex
	live    *Engine
)

// Engine admits PACs, issues execution tokens and tracks their lifecycle.
type Engine struct {
	validator *ingress.Validator
	audit     *audit.Emitter
	auditLog  audit.Log
	ownsAudit bool
	loop      *preflight.LoopClosureEnforcer
	telemetry *observability.Provider
	logger    *slog.Logger
	clock     func() time.Time
	createdAt time.Time

	mu      sync.Mutex
	tokens  map[string]*TokenRecord
	counter uint64
	closed  bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithAuditEmitter supplies the audit chain. The engine does not close it.
func WithAuditEmitter(e *audit.Emitter) Option {
	return func(en *Engine) { en.audit = e }
}

// WithAuditLog backs an engine-owned emitter with l. The engine closes it.
// Ignored when WithAuditEmitter is also given.
func WithAuditLog(l audit.Log) Option {
	return func(en *Engine) { en.auditLog = l }
}

func WithValidator(v *ingress.Validator) Option {
	return func(en *Engine) { en.validator = v }
}

func WithTelemetry(p *observability.Provider) Option {
	return func(en *Engine) { en.telemetry = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(en *Engine) { en.logger = l }
}

func WithClock(clock func() time.Time) Option {
	return func(en *Engine) { en.clock = clock }
}

// New constructs the process engine. It fails with *DuplicateInstanceError
// while another engine is live; the attempt is recorded in the live engine's
// audit chain first.
func New(ctx context.Context, opts ...Option) (*Engine, error) {
	guardMu.Lock()
	defer guardMu.Unlock()
	return newLocked(ctx, opts...)
}

// Default returns the live engine, constructing one with defaults if none
// exists. It never fails because of the duplicate guard.
func Default(ctx context.Context) (*Engine, error) {
	guardMu.Lock()
	defer guardMu.Unlock()
	if live != nil {
		return live, nil
	}
	return newLocked(ctx)
}

func newLocked(ctx context.Context, opts ...Option) (*Engine, error) {
	if live != nil {
		dup := &DuplicateInstanceError{ExistingCreatedAt: live.createdAt}
		live.logger.Error("duplicate engine construction attempted", "existing_created_at", live.createdAt)
		if _, err := live.audit.Emit(ctx, audit.EventDuplicateInstanceAttempt, "", map[string]any{
			"gid":                 EngineGID,
			"existing_created_at": audit.FormatTimestamp(live.createdAt),
		}); err != nil {
			live.logger.Error("failed to audit duplicate engine construction", "error", err)
		}
		return nil, dup
	}

	e := &Engine{
		loop:   preflight.NewLoopClosureEnforcer(),
		clock:  time.Now,
		tokens: make(map[string]*TokenRecord),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default().With("component", "engine")
	}
	if e.audit == nil {
		em, err := audit.NewEmitter(ctx, e.auditLog, audit.WithClock(e.clock))
		if err != nil {
			if e.auditLog != nil {
				_ = e.auditLog.Close()
			}
			return nil, err
		}
		e.audit = em
		e.ownsAudit = true
	}
	if e.validator == nil {
		v, err := ingress.NewValidator(ingress.WithLogger(e.logger), ingress.WithClock(e.clock))
		if err != nil {
			return nil, e.abandon(err)
		}
		e.validator = v
	}
	if e.telemetry != nil {
		tel := e.telemetry
		e.audit.AddHandler(func(ev *audit.Event) {
			tel.RecordAuditEvent(context.Background(), string(ev.EventType))
		})
	}
	e.createdAt = e.clock().UTC()

	if _, err := e.audit.Emit(ctx, audit.EventEngineInitialized, "", identity.auditDetails()); err != nil {
		return nil, e.abandon(fmt.Errorf("engine: audit initialization: %w", err))
	}
	e.logger.Info("execution engine initialized", "gid", EngineGID, "audit_events", e.audit.Len())
	live = e
	return e, nil
}

// abandon closes an emitter the failed constructor created for itself.
func (e *Engine) abandon(err error) error {
	if !e.ownsAudit {
		return err
	}
	if cerr := e.audit.Close(); cerr != nil {
		return errors.Join(err, cerr)
	}
	return err
}

// Close releases the process slot so a new engine may be constructed.
func (e *Engine) Close() error {
	guardMu.Lock()
	if live == e {
		live = nil
	}
	guardMu.Unlock()

	e.mu.Lock()
	already := e.closed
	e.closed = true
	e.mu.Unlock()
	if already || !e.ownsAudit {
		return nil
	}
	return e.audit.Close()
}

// Identity returns the static engine descriptor.
func (e *Engine) Identity() Identity { return identity }

// CreatedAt is when this engine was constructed.
func (e *Engine) CreatedAt() time.Time { return e.createdAt }

// Admit runs ingress validation and, on success, issues an execution token.
// The error return is reserved for audit failures; no token survives one.
func (e *Engine) Admit(ctx context.Context, doc *pac.Document) (Outcome, error) {
	if doc == nil {
		doc = pac.New(nil)
	}
	pacID := doc.PacID()
	ctx, done := e.telemetry.TrackAdmit(ctx, pacID)

	if e.isClosed() {
		done("error", "", ErrEngineClosed)
		return nil, ErrEngineClosed
	}

	if _, err := e.audit.Emit(ctx, audit.EventPacIngressReceived, pacID, map[string]any{
		"root_kind": doc.RootKind(),
	}); err != nil {
		done("error", "", err)
		return nil, fmt.Errorf("engine: audit ingress: %w", err)
	}

	d := e.validator.Validate(ctx, doc)

	switch d := d.(type) {
	case *ingress.Admit:
		e.recordGates(ctx, d.Preflight)
		out, err := e.admitted(ctx, d)
		if err != nil {
			done("error", "", err)
			return nil, err
		}
		done("admitted", "", nil)
		return out, nil
	case *ingress.Reject:
		e.recordGates(ctx, d.Preflight)
		out, err := e.rejected(ctx, d)
		if err != nil {
			done("error", string(d.Reason), err)
			return nil, err
		}
		done("rejected", string(d.Reason), nil)
		return out, nil
	default:
		err := fmt.Errorf("engine: unexpected decision %T", d)
		done("error", "", err)
		return nil, err
	}
}

func (e *Engine) recordGates(ctx context.Context, r *preflight.Result) {
	if r == nil {
		return
	}
	for _, g := range r.GateResults {
		if g.Status == preflight.StatusSkipped {
			continue
		}
		e.telemetry.RecordGate(ctx, string(g.GateID), string(g.Status), g.DurationMs)
	}
}

func (e *Engine) admitted(ctx context.Context, d *ingress.Admit) (*AdmitResult, error) {
	e.mu.Lock()
	now := e.clock().UTC()
	e.counter++
	token := fmt.Sprintf("EXEC-%s-%d-%06d", d.PacID, now.UnixNano(), e.counter)
	rec := &TokenRecord{Token: token, PacID: d.PacID, Status: StatusAdmitted, AdmittedAt: now}
	e.tokens[token] = rec
	e.mu.Unlock()

	_, err := e.audit.Emit(ctx, audit.EventPacAdmitted, d.PacID, map[string]any{
		"execution_token":  token,
		"schema_id":        d.Schema.SchemaID,
		"schema_passed":    d.Schema.Valid(),
		"lint_passed":      d.Lint.Passed,
		"preflight_passed": d.Preflight.Passed,
		"gates_passed":     d.Preflight.GatesPassed(),
	})
	if err != nil {
		e.mu.Lock()
		delete(e.tokens, token)
		e.mu.Unlock()
		e.logger.Error("admission not recorded, token withdrawn", "pac_id", d.PacID, "error", err)
		if rerr := e.validator.Release(ctx, d.PacID); rerr != nil {
			e.logger.Error("failed to release withdrawn admission", "pac_id", d.PacID, "error", rerr)
			err = errors.Join(err, rerr)
		}
		return nil, fmt.Errorf("engine: audit admission: %w", err)
	}

	e.logger.Info("pac admitted", "pac_id", d.PacID, "execution_token", token)
	return &AdmitResult{PacID: d.PacID, ExecutionToken: token, Decision: d}, nil
}

func (e *Engine) rejected(ctx context.Context, d *ingress.Reject) (*RejectResult, error) {
	errs := d.Errors
	if errs == nil {
		errs = []string{}
	}
	_, err := e.audit.Emit(ctx, audit.EventPacRejected, d.PacID, map[string]any{
		"reason":  string(d.Reason),
		"summary": d.Summary,
		"errors":  errs,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: audit rejection: %w", err)
	}
	e.logger.Info("pac rejected", "pac_id", d.PacID, "reason", d.Reason, "summary", d.Summary)
	return &RejectResult{
		PacID:    d.PacID,
		Reason:   d.Reason,
		Summary:  d.Summary,
		Errors:   errs,
		Decision: d,
	}, nil
}

// MarkExecutionStarted moves an ADMITTED token to EXECUTING.
func (e *Engine) MarkExecutionStarted(ctx context.Context, token string) bool {
	return e.transition(ctx, token, startTransition, "")
}

// MarkExecutionCompleted moves an EXECUTING token to COMPLETED.
func (e *Engine) MarkExecutionCompleted(ctx context.Context, token string) bool {
	return e.transition(ctx, token, completeTransition, "")
}

// MarkExecutionHalted halts an ADMITTED or EXECUTING token. reason must not
// be blank.
func (e *Engine) MarkExecutionHalted(ctx context.Context, token, reason string) bool {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		e.logger.Warn("halt refused: reason is required", "execution_token", token)
		e.telemetry.RecordTransition(ctx, haltTransition.name, false)
		return false
	}
	return e.transition(ctx, token, haltTransition, reason)
}

// transition holds e.mu across the audit append so two transitions on the
// same token cannot interleave.
func (e *Engine) transition(ctx context.Context, token string, t transition, reason string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	rec, ok := e.tokens[token]
	if !ok {
		e.logger.Warn("transition on unknown token", "transition", t.name, "execution_token", token)
		e.telemetry.RecordTransition(ctx, t.name, false)
		return false
	}
	if !t.allows(rec.Status) {
		e.logger.Warn("transition not allowed", "transition", t.name, "execution_token", token, "status", rec.Status)
		e.telemetry.RecordTransition(ctx, t.name, false)
		return false
	}

	at := e.clock().UTC()
	details := map[string]any{"execution_token": token, "from": string(rec.Status), "to": string(t.to)}
	if reason != "" {
		details["reason"] = reason
	}
	if _, err := e.audit.Emit(ctx, t.eventType, rec.PacID, details); err != nil {
		e.logger.Error("transition not recorded", "transition", t.name, "execution_token", token, "error", err)
		e.telemetry.RecordTransition(ctx, t.name, false)
		return false
	}
	rec.apply(t, at, reason)
	e.telemetry.RecordTransition(ctx, t.name, true)
	e.logger.Info("execution "+t.name, "pac_id", rec.PacID, "execution_token", token, "status", rec.Status)
	return true
}

// ExecutionStatus returns the token's status, or false if the token is
// unknown.
func (e *Engine) ExecutionStatus(token string) (Status, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.tokens[token]
	if !ok {
		return "", false
	}
	return rec.Status, true
}

// Token returns a snapshot of the token record.
func (e *Engine) Token(token string) (TokenRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec, ok := e.tokens[token]
	if !ok {
		return TokenRecord{}, false
	}
	return *rec, true
}

// TokenCount returns the number of tokens issued and still tracked.
func (e *Engine) TokenCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.tokens)
}

// CheckLoopClosure runs the BER requirement gate and records the result.
// Empty ids mean the artifact is absent.
func (e *Engine) CheckLoopClosure(ctx context.Context, pacID, wrapID, berID string) (*preflight.GateResult, error) {
	res := e.loop.EnforceBERRequirement(pacID, wrapID, berID)
	details := map[string]any{
		"gate_id":  string(res.GateID),
		"status":   string(res.Status),
		"has_wrap": wrapID != "",
		"has_ber":  berID != "",
	}
	if res.Failure != nil {
		details["message"] = res.Failure.Message
	}
	if _, err := e.audit.Emit(ctx, audit.EventLoopClosureChecked, pacID, details); err != nil {
		return nil, fmt.Errorf("engine: audit loop closure: %w", err)
	}
	return res, nil
}

// AuditTrail returns every audit event in emission order.
func (e *Engine) AuditTrail() []*audit.Event { return e.audit.Events() }

// Audit exposes the engine's emitter for read-only queries.
func (e *Engine) Audit() *audit.Emitter { return e.audit }

// Validator exposes the ingress validator.
func (e *Engine) Validator() *ingress.Validator { return e.validator }

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}
