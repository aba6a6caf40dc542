// Package audit implements the append-only, hash-chained event log that
// records every engine action.
package audit

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Mindburn-Labs/benson/pkg/canonicalize"
)

// EventType is the closed set of audit event kinds.
type EventType string

const (
	EventEngineInitialized        EventType = "ENGINE_INITIALIZED"
	EventPacIngressReceived       EventType = "PAC_INGRESS_RECEIVED"
	EventPacAdmitted              EventType = "PAC_ADMITTED"
	EventPacRejected              EventType = "PAC_REJECTED"
	EventExecutionStarted         EventType = "EXECUTION_STARTED"
	EventExecutionCompleted       EventType = "EXECUTION_COMPLETED"
	EventExecutionHalted          EventType = "EXECUTION_HALTED"
	EventDuplicateInstanceAttempt EventType = "DUPLICATE_INSTANCE_ATTEMPT"
	EventLoopClosureChecked       EventType = "LOOP_CLOSURE_CHECKED"
)

// EventTypes lists every valid event type.
var EventTypes = []EventType{
	EventEngineInitialized,
	EventPacIngressReceived,
	EventPacAdmitted,
	EventPacRejected,
	EventExecutionStarted,
	EventExecutionCompleted,
	EventExecutionHalted,
	EventDuplicateInstanceAttempt,
	EventLoopClosureChecked,
}

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	for _, known := range EventTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Event is one immutable link in the chain. An empty PacID or PreviousHash
// is serialized as null; only the genesis event has no PreviousHash.
type Event struct {
	EventID        string
	EventType      EventType
	PacID          string
	Timestamp      time.Time
	Details        map[string]any
	SequenceNumber uint64
	PreviousHash   string
	EventHash      string
}

type wireEvent struct {
	EventID        string         `json:"event_id"`
	EventType      EventType      `json:"event_type"`
	PacID          *string        `json:"pac_id"`
	Timestamp      string         `json:"timestamp"`
	Details        map[string]any `json:"details"`
	SequenceNumber uint64         `json:"sequence_number"`
	EventHash      string         `json:"event_hash"`
	PreviousHash   *string        `json:"previous_hash"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// FormatTimestamp is the exact timestamp text that is hashed and stored.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func (e *Event) MarshalJSON() ([]byte, error) {
	details := e.Details
	if details == nil {
		details = map[string]any{}
	}
	return json.Marshal(wireEvent{
		EventID:        e.EventID,
		EventType:      e.EventType,
		PacID:          optional(e.PacID),
		Timestamp:      FormatTimestamp(e.Timestamp),
		Details:        details,
		SequenceNumber: e.SequenceNumber,
		EventHash:      e.EventHash,
		PreviousHash:   optional(e.PreviousHash),
	})
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	ts, err := time.Parse(time.RFC3339Nano, w.Timestamp)
	if err != nil {
		return fmt.Errorf("audit event %d: bad timestamp: %w", w.SequenceNumber, err)
	}
	if w.Details == nil {
		w.Details = map[string]any{}
	}
	*e = Event{
		EventID:        w.EventID,
		EventType:      w.EventType,
		PacID:          deref(w.PacID),
		Timestamp:      ts,
		Details:        w.Details,
		SequenceNumber: w.SequenceNumber,
		PreviousHash:   deref(w.PreviousHash),
		EventHash:      w.EventHash,
	}
	return nil
}

// ComputeHash returns the SHA-256 over the canonical form of every field
// except EventHash itself.
func ComputeHash(e *Event) (string, error) {
	details := e.Details
	if details == nil {
		details = map[string]any{}
	}
	data := map[string]any{
		"event_id":        e.EventID,
		"event_type":      string(e.EventType),
		"pac_id":          optional(e.PacID),
		"timestamp":       FormatTimestamp(e.Timestamp),
		"details":         details,
		"sequence_number": e.SequenceNumber,
		"previous_hash":   optional(e.PreviousHash),
	}
	return canonicalize.CanonicalHash(data)
}

// Clone returns a deep copy so callers cannot reach stored state.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	c := *e
	c.Details = cloneMap(e.Details)
	return &c
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, x := range t {
			out[i] = cloneValue(x)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
