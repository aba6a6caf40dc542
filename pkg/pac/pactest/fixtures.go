// Package pactest provides PAC fixtures for tests across the module.
package pactest

import (
	"strconv"

	"github.com/Mindburn-Labs/benson/pkg/pac"
)

// ValidPacID is the pac_id carried by Valid.
const ValidPacID = "PAC-BENSON-EXEC-C01"

// Valid returns a fully populated LAW-tier PAC that passes every stage.
// Each call returns a fresh tree.
func Valid() map[string]any {
	return ValidWithID(ValidPacID)
}

// ValidWithID returns Valid with a different pac_id.
func ValidWithID(pacID string) map[string]any {
	blocks := make(map[string]any, pac.BlockCount)
	for n := 0; n < pac.BlockCount; n++ {
		blocks[strconv.Itoa(n)] = map[string]any{"block_name": pac.BlockName(n)}
	}
	set := func(n int, kv ...any) {
		b := blocks[strconv.Itoa(n)].(map[string]any)
		for i := 0; i+1 < len(kv); i += 2 {
			b[kv[i].(string)] = kv[i+1]
		}
	}
	set(pac.BlockAdmissionCheck, "admission_decision", "ACCEPTED")
	set(pac.BlockGovernanceMode,
		"governance_mode", "LAW",
		"downgrade_allowed", false,
		"invariant_registry", "LOCKED",
	)
	set(pac.BlockAgentActivationAck, "acknowledgement", map[string]any{"agent_ack": "EXPLICIT"})
	set(pac.BlockInvariantsEnforced, "invariant_registry", "LOCKED")
	set(pac.BlockFinalState, "execution_blocking", true, "promotion_eligible", false)
	set(pac.BlockLedgerCommit, "ordering_attested", true, "immutability_attested", true)

	return map[string]any{
		"metadata": map[string]any{
			"pac_id":          pacID,
			"pac_version":     "1.0.0",
			"classification":  "CONSTITUTIONAL",
			"governance_tier": "LAW",
			"issuer_gid":      "GID-00",
			"issuer_role":     "Chief Architect",
			"issued_at":       "2026-01-05T00:00:00Z",
			"scope":           "Benson Execution",
			"fail_closed":     true,
			"schema_version":  "CHAINBRIDGE_PAC_SCHEMA_v1.0.0",
		},
		"blocks": blocks,
	}
}

// WithoutMetadata is a document that carries a single block and no metadata.
func WithoutMetadata() map[string]any {
	return map[string]any{
		"blocks": map[string]any{
			"1": map[string]any{"block_name": "PAC_ADMISSION_CHECK"},
		},
	}
}

// Metadata returns the metadata mapping of a fixture for in-place edits.
func Metadata(doc map[string]any) map[string]any {
	return doc["metadata"].(map[string]any)
}

// Block returns block n of a fixture for in-place edits.
func Block(doc map[string]any, n int) map[string]any {
	return doc["blocks"].(map[string]any)[strconv.Itoa(n)].(map[string]any)
}

// SetMeta sets a metadata field and returns doc.
func SetMeta(doc map[string]any, field string, v any) map[string]any {
	Metadata(doc)[field] = v
	return doc
}

// DeleteMeta removes a metadata field and returns doc.
func DeleteMeta(doc map[string]any, field string) map[string]any {
	delete(Metadata(doc), field)
	return doc
}

// SetBlockField sets a field of block n and returns doc.
func SetBlockField(doc map[string]any, n int, field string, v any) map[string]any {
	Block(doc, n)[field] = v
	return doc
}

// DeleteBlock removes block n and returns doc.
func DeleteBlock(doc map[string]any, n int) map[string]any {
	delete(doc["blocks"].(map[string]any), strconv.Itoa(n))
	return doc
}

// Doc wraps a fixture tree as a pac.Document.
func Doc(tree map[string]any) *pac.Document {
	return pac.New(tree)
}
