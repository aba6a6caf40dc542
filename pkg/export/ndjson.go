// Package export dumps the audit chain as newline-delimited JSON, ships it
// to an object store and signs a manifest binding the chain head.
package export

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/Mindburn-Labs/benson/pkg/audit"
)

// maxLine bounds a single NDJSON record.
const maxLine = 4 << 20

// WriteNDJSON writes one event per line in the order given.
func WriteNDJSON(w io.Writer, events []*audit.Event) error {
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			return fmt.Errorf("export: encode event %d: %w", ev.SequenceNumber, err)
		}
	}
	return bw.Flush()
}

// ReadNDJSON parses a stream written by WriteNDJSON. Blank lines are skipped.
func ReadNDJSON(r io.Reader) ([]*audit.Event, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)

	var out []*audit.Event
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		ev := &audit.Event{}
		if err := json.Unmarshal(raw, ev); err != nil {
			return nil, fmt.Errorf("export: line %d: %w", line, err)
		}
		out = append(out, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("export: read: %w", err)
	}
	return out, nil
}

// VerifyEvents re-checks linkage and recomputes every hash offline.
func VerifyEvents(events []*audit.Event) error {
	return audit.CheckIntegrity(events)
}
