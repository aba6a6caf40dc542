package pac

import (
	"fmt"
	"regexp"
)

// Value kinds used in diagnostics.
const (
	KindMissing = "missing"
	KindNull    = "null"
	KindMapping = "mapping"
	KindList    = "list"
	KindString  = "string"
	KindBoolean = "boolean"
	KindInteger = "integer"
	KindNumber  = "number"
)

// KindOf names the JSON-ish kind of a decoded value.
func KindOf(v any) string {
	switch t := v.(type) {
	case nil:
		return KindNull
	case map[string]any, map[any]any:
		return KindMapping
	case []any:
		return KindList
	case string:
		return KindString
	case bool:
		return KindBoolean
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return KindInteger
	case float32:
		if float32(int64(t)) == t {
			return KindInteger
		}
		return KindNumber
	case float64:
		if float64(int64(t)) == t {
			return KindInteger
		}
		return KindNumber
	default:
		return fmt.Sprintf("%T", v)
	}
}

// BlockCount is the number of numbered blocks every PAC carries (0 through 19).
const BlockCount = 20

// Canonical block numbers.
const (
	BlockMetadata                = 0
	BlockAdmissionCheck          = 1
	BlockRuntimeActivationAck    = 2
	BlockGovernanceMode          = 3
	BlockAgentActivationAck      = 4
	BlockExecutionLane           = 5
	BlockContext                 = 6
	BlockGoalState               = 7
	BlockConstraints             = 8
	BlockInvariantsEnforced      = 9
	BlockTasksAndPlan            = 10
	BlockFileAndCodeTargets      = 11
	BlockInterfacesAndContracts  = 12
	BlockSecurityAndThreatModel  = 13
	BlockTestingAndVerification  = 14
	BlockQAAndAcceptanceCriteria = 15
	BlockWrapRequirement         = 16
	BlockFailureAndRollback      = 17
	BlockFinalState              = 18
	BlockLedgerCommit            = 19
)

// BlockNames maps block numbers to canonical block names.
var BlockNames = [BlockCount]string{
	"METADATA",
	"PAC_ADMISSION_CHECK",
	"RUNTIME_ACTIVATION_ACK",
	"GOVERNANCE_MODE_DECLARATION",
	"AGENT_ACTIVATION_ACK",
	"EXECUTION_LANE",
	"CONTEXT",
	"GOAL_STATE",
	"CONSTRAINTS_AND_GUARDRAILS",
	"INVARIANTS_ENFORCED",
	"TASKS_AND_PLAN",
	"FILE_AND_CODE_TARGETS",
	"INTERFACES_AND_CONTRACTS",
	"SECURITY_AND_THREAT_MODEL",
	"TESTING_AND_VERIFICATION",
	"QA_AND_ACCEPTANCE_CRITERIA",
	"WRAP_REQUIREMENT",
	"FAILURE_AND_ROLLBACK",
	"FINAL_STATE_DECLARATION",
	"LEDGER_COMMIT_AND_ATTESTATION",
}

// BlockName returns the canonical name of block n, or "UNKNOWN".
func BlockName(n int) string {
	if n < 0 || n >= BlockCount {
		return "UNKNOWN"
	}
	return BlockNames[n]
}

// Metadata field names.
const (
	FieldPacID          = "pac_id"
	FieldPacVersion     = "pac_version"
	FieldClassification = "classification"
	FieldGovernanceTier = "governance_tier"
	FieldIssuerGID      = "issuer_gid"
	FieldIssuerRole     = "issuer_role"
	FieldIssuedAt       = "issued_at"
	FieldScope          = "scope"
	FieldFailClosed     = "fail_closed"
	FieldSchemaVersion  = "schema_version"
)

// MetadataFields lists the ten required metadata fields in canonical order.
var MetadataFields = []string{
	FieldPacID,
	FieldPacVersion,
	FieldClassification,
	FieldGovernanceTier,
	FieldIssuerGID,
	FieldIssuerRole,
	FieldIssuedAt,
	FieldScope,
	FieldFailClosed,
	FieldSchemaVersion,
}

// Final-state (block 18) and ledger-commit (block 19) fields.
const (
	FieldExecutionBlocking    = "execution_blocking"
	FieldPromotionEligible    = "promotion_eligible"
	FieldOrderingAttested     = "ordering_attested"
	FieldImmutabilityAttested = "immutability_attested"
)

// FinalStateFields are the required boolean fields of block 18.
var FinalStateFields = []string{FieldExecutionBlocking, FieldPromotionEligible}

// LedgerCommitFields are the required boolean fields of block 19.
var LedgerCommitFields = []string{FieldOrderingAttested, FieldImmutabilityAttested}

// Classification values.
const (
	ClassConstitutional = "CONSTITUTIONAL"
	ClassOperational    = "OPERATIONAL"
	ClassTactical       = "TACTICAL"
	ClassDiagnostic     = "DIAGNOSTIC"
)

// Classifications lists valid classification values.
var Classifications = []string{ClassConstitutional, ClassOperational, ClassTactical, ClassDiagnostic}

// Governance tiers.
const (
	TierLaw       = "LAW"
	TierPolicy    = "POLICY"
	TierGuideline = "GUIDELINE"
)

// GovernanceTiers lists valid governance tier values.
var GovernanceTiers = []string{TierLaw, TierPolicy, TierGuideline}

// Field patterns shared by the schema registry and the lint rules.
var (
	PacIDPattern         = regexp.MustCompile(`^PAC-[A-Z][A-Z0-9]*(-[A-Z0-9]+)+$`)
	SemverPattern        = regexp.MustCompile(`^\d+\.\d+\.\d+$`)
	GIDPattern           = regexp.MustCompile(`^GID-\d{2}(-[A-Z]+)?$`)
	ISO8601Pattern       = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(\.\d+)?Z?$`)
	SchemaVersionPattern = regexp.MustCompile(`^CHAINBRIDGE_PAC_SCHEMA_v\d+\.\d+\.\d+$`)
)

// Contains reports whether s is one of values.
func Contains(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}
