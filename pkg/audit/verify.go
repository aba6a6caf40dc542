package audit

import (
	"errors"
	"fmt"
)

var (
	ErrChainBroken  = errors.New("audit: hash chain is broken")
	ErrHashMismatch = errors.New("audit: event hash mismatch")
	ErrSequenceGap  = errors.New("audit: sequence numbers are not contiguous")
	ErrUnknownEvent = errors.New("audit: unknown event type")
	ErrLogClosed    = errors.New("audit: log is closed")
)

// CheckLinkage reports whether the first event has no previous hash and every
// later event's previous hash equals its predecessor's event hash.
func CheckLinkage(events []*Event) bool {
	for i, ev := range events {
		if i == 0 {
			if ev.PreviousHash != "" {
				return false
			}
			continue
		}
		if ev.PreviousHash != events[i-1].EventHash {
			return false
		}
	}
	return true
}

// CheckIntegrity verifies linkage, sequence numbering from 0, and recomputes
// every event hash. It returns the first defect found.
func CheckIntegrity(events []*Event) error {
	for i, ev := range events {
		if ev.SequenceNumber != uint64(i) {
			return fmt.Errorf("%w: index %d has sequence %d", ErrSequenceGap, i, ev.SequenceNumber)
		}
		if i == 0 && ev.PreviousHash != "" {
			return fmt.Errorf("%w: genesis event has previous hash %q", ErrChainBroken, ev.PreviousHash)
		}
		if i > 0 && ev.PreviousHash != events[i-1].EventHash {
			return fmt.Errorf("%w: sequence %d previous hash mismatch", ErrChainBroken, ev.SequenceNumber)
		}
		sum, err := ComputeHash(ev)
		if err != nil {
			return fmt.Errorf("audit: recompute hash at sequence %d: %w", ev.SequenceNumber, err)
		}
		if sum != ev.EventHash {
			return fmt.Errorf("%w: sequence %d computed %s, stored %s", ErrHashMismatch, ev.SequenceNumber, sum, ev.EventHash)
		}
	}
	return nil
}
