package audit

import (
	"context"
	"sync"
)

// Log is the durable backend behind an Emitter. Append must reject a
// sequence number that already exists; Events returns every stored event
// ordered by sequence number.
type Log interface {
	Append(ctx context.Context, ev *Event) error
	Events(ctx context.Context) ([]*Event, error)
	Close() error
}

// MemoryLog keeps events in process memory.
type MemoryLog struct {
	mu     sync.Mutex
	events []*Event
	closed bool
}

func NewMemoryLog() *MemoryLog {
	return &MemoryLog{}
}

func (l *MemoryLog) Append(_ context.Context, ev *Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrLogClosed
	}
	if ev.SequenceNumber != uint64(len(l.events)) {
		return ErrSequenceGap
	}
	l.events = append(l.events, ev.Clone())
	return nil
}

func (l *MemoryLog) Events(_ context.Context) ([]*Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Event, len(l.events))
	for i, ev := range l.events {
		out[i] = ev.Clone()
	}
	return out, nil
}

func (l *MemoryLog) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return nil
}
