package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Handler is notified after an event has been durably appended.
type Handler func(ev *Event)

// Emitter appends events to a Log and keeps an ordered in-memory index of
// the chain. Emission is serialized: sequence numbers are gap-free and each
// event links to the one before it.
type Emitter struct {
	mu       sync.RWMutex
	log      Log
	events   []*Event
	head     string
	handlers []Handler

	clock  func() time.Time
	newID  func() string
	logger *slog.Logger
}

// Option configures an Emitter.
type Option func(*Emitter)

func WithClock(clock func() time.Time) Option {
	return func(e *Emitter) { e.clock = clock }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Emitter) { e.logger = l }
}

// WithIDGenerator replaces uuid.NewString for event ids.
func WithIDGenerator(gen func() string) Option {
	return func(e *Emitter) { e.newID = gen }
}

// WithHandler registers a handler at construction time.
func WithHandler(h Handler) Option {
	return func(e *Emitter) { e.handlers = append(e.handlers, h) }
}

// NewEmitter resumes the chain stored in log. A stored chain that fails
// integrity verification is refused.
func NewEmitter(ctx context.Context, log Log, opts ...Option) (*Emitter, error) {
	if log == nil {
		log = NewMemoryLog()
	}
	e := &Emitter{
		log:   log,
		clock: time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default().With("component", "audit")
	}

	existing, err := log.Events(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit: load chain: %w", err)
	}
	if err := CheckIntegrity(existing); err != nil {
		return nil, fmt.Errorf("audit: refusing to resume: %w", err)
	}
	e.events = existing
	if n := len(existing); n > 0 {
		e.head = existing[n-1].EventHash
		e.logger.Info("audit chain resumed", "events", n, "head", e.head)
	}
	return e, nil
}

// Emit appends one event. pacID may be empty for engine-level events. On a
// backend failure the chain is left exactly as it was.
func (e *Emitter) Emit(ctx context.Context, typ EventType, pacID string, details map[string]any) (*Event, error) {
	if !typ.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, typ)
	}
	normalized, err := normalizeDetails(details)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	ev := &Event{
		EventID:        e.newID(),
		EventType:      typ,
		PacID:          pacID,
		Timestamp:      e.clock().UTC(),
		Details:        normalized,
		SequenceNumber: uint64(len(e.events)),
		PreviousHash:   e.head,
	}
	ev.EventHash, err = ComputeHash(ev)
	if err != nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("audit: compute event hash: %w", err)
	}
	if err := e.log.Append(ctx, ev); err != nil {
		e.mu.Unlock()
		e.logger.Error("audit append failed", "event_type", typ, "pac_id", pacID, "error", err)
		return nil, fmt.Errorf("audit: append %s: %w", typ, err)
	}
	e.events = append(e.events, ev)
	e.head = ev.EventHash
	handlers := e.handlers
	e.mu.Unlock()

	e.logger.Debug("audit event", "event_type", typ, "pac_id", pacID, "sequence", ev.SequenceNumber)
	for _, h := range handlers {
		h(ev.Clone())
	}
	return ev.Clone(), nil
}

// normalizeDetails round-trips details through JSON so the in-memory event
// is identical to what any backend stores and reloads.
func normalizeDetails(details map[string]any) (map[string]any, error) {
	if details == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("audit: details are not serializable: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("audit: details are not serializable: %w", err)
	}
	return out, nil
}

// AddHandler registers a handler for future events.
func (e *Emitter) AddHandler(h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers = append(e.handlers, h)
}

// VerifyChain checks hash linkage only.
func (e *Emitter) VerifyChain() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return CheckLinkage(e.events)
}

// VerifyIntegrity checks linkage, sequencing and recomputes every hash.
func (e *Emitter) VerifyIntegrity() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return CheckIntegrity(e.events)
}

// Events returns a copy of the full chain in emission order.
func (e *Emitter) Events() []*Event {
	return e.filter(func(*Event) bool { return true })
}

// EventsForPac returns the events whose pac_id equals pacID, in order.
func (e *Emitter) EventsForPac(pacID string) []*Event {
	return e.filter(func(ev *Event) bool { return ev.PacID == pacID })
}

// EventsByType returns the events of one type, in order.
func (e *Emitter) EventsByType(typ EventType) []*Event {
	return e.filter(func(ev *Event) bool { return ev.EventType == typ })
}

func (e *Emitter) filter(keep func(*Event) bool) []*Event {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Event, 0, len(e.events))
	for _, ev := range e.events {
		if keep(ev) {
			out = append(out, ev.Clone())
		}
	}
	return out
}

// Len returns the number of events in the chain.
func (e *Emitter) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.events)
}

// Head returns the hash of the last event, or "" for an empty chain.
func (e *Emitter) Head() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.head
}

// Close releases the backend.
func (e *Emitter) Close() error {
	return e.log.Close()
}
