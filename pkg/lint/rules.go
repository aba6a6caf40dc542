package lint

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/Mindburn-Labs/benson/pkg/pac"
)

// Rules returns the lint law in its fixed execution order.
func Rules() []Rule {
	return []Rule{
		{RuleMetadataBlock, "metadata block present with all fields", checkMetadataBlock},
		{RulePacIDFormat, "pac_id format", patternRule(RulePacIDFormat, pac.FieldPacID, pac.PacIDPattern,
			"pac_id does not match canonical format", "PAC-<AGENT>-<TYPE>-<ID>")},
		{RulePacVersion, "pac_version semantic version", checkPacVersion},
		{RuleClassification, "classification enum", enumRule(RuleClassification, pac.FieldClassification, pac.Classifications,
			"classification must be valid enum value")},
		{RuleGovernanceTier, "governance_tier enum", enumRule(RuleGovernanceTier, pac.FieldGovernanceTier, pac.GovernanceTiers,
			"governance_tier must be valid enum value")},
		{RuleIssuerGID, "issuer_gid format", patternRule(RuleIssuerGID, pac.FieldIssuerGID, pac.GIDPattern,
			"issuer_gid must match GID format", "GID-XX or GID-XX-YYY")},
		{RuleIssuedAt, "issued_at ISO-8601", patternRule(RuleIssuedAt, pac.FieldIssuedAt, pac.ISO8601Pattern,
			"issued_at must be ISO8601 timestamp", "YYYY-MM-DDTHH:MM:SSZ")},
		{RuleFailClosedLawTier, "fail_closed required for LAW tier", checkFailClosedLawTier},
		{RuleAllBlocksPresent, "all blocks present", checkAllBlocksPresent},
		{RuleNoDuplicateBlocks, "no duplicate blocks", checkNoDuplicateBlocks},
		{RuleFinalState, "final state declaration", booleanBlockRule(RuleFinalState, pac.BlockFinalState, pac.FinalStateFields)},
		{RuleLedgerCommit, "ledger commit and attestation", booleanBlockRule(RuleLedgerCommit, pac.BlockLedgerCommit, pac.LedgerCommitFields)},
	}
}

func checkMetadataBlock(doc *pac.Document) []Violation {
	if !doc.HasMetadata() || doc.MetadataKind() == pac.KindNull {
		return []Violation{{RuleID: RuleMetadataBlock, Message: "METADATA block is missing", Block: blockRef(pac.BlockMetadata)}}
	}
	meta, ok := doc.Metadata()
	if !ok {
		return []Violation{{
			RuleID:   RuleMetadataBlock,
			Message:  "METADATA block must be a mapping",
			Block:    blockRef(pac.BlockMetadata),
			Expected: pac.KindMapping,
			Actual:   doc.MetadataKind(),
		}}
	}
	var out []Violation
	for _, name := range pac.MetadataFields {
		if v, present := meta[name]; !present || v == nil {
			out = append(out, Violation{
				RuleID:  RuleMetadataBlock,
				Message: "METADATA missing required field: " + name,
				Block:   blockRef(pac.BlockMetadata),
				Field:   name,
			})
		}
	}
	return out
}

// metadataValue returns a present metadata field; absence is LINT-001's concern.
func metadataValue(doc *pac.Document, field string) (any, bool) {
	return doc.MetadataField(field)
}

func patternRule(id RuleID, field string, re *regexp.Regexp, message, expected string) func(*pac.Document) []Violation {
	return func(doc *pac.Document) []Violation {
		v, ok := metadataValue(doc, field)
		if !ok {
			return nil
		}
		if s, isString := v.(string); isString && re.MatchString(s) {
			return nil
		}
		return []Violation{{
			RuleID:   id,
			Message:  message,
			Block:    blockRef(pac.BlockMetadata),
			Field:    field,
			Expected: expected,
			Actual:   fmt.Sprint(v),
		}}
	}
}

func enumRule(id RuleID, field string, allowed []string, message string) func(*pac.Document) []Violation {
	return func(doc *pac.Document) []Violation {
		v, ok := metadataValue(doc, field)
		if !ok {
			return nil
		}
		if s, isString := v.(string); isString && pac.Contains(allowed, s) {
			return nil
		}
		return []Violation{{
			RuleID:   id,
			Message:  message,
			Block:    blockRef(pac.BlockMetadata),
			Field:    field,
			Expected: "[" + strings.Join(allowed, ", ") + "]",
			Actual:   fmt.Sprint(v),
		}}
	}
}

// checkPacVersion requires a plain MAJOR.MINOR.PATCH version that also parses
// as strict SemVer, so leading zeros are rejected.
func checkPacVersion(doc *pac.Document) []Violation {
	v, ok := metadataValue(doc, pac.FieldPacVersion)
	if !ok {
		return nil
	}
	s := fmt.Sprint(v)
	if pac.SemverPattern.MatchString(s) {
		if _, err := semver.StrictNewVersion(s); err == nil {
			return nil
		}
	}
	return []Violation{{
		RuleID:   RulePacVersion,
		Message:  "pac_version must be semantic version (MAJOR.MINOR.PATCH)",
		Block:    blockRef(pac.BlockMetadata),
		Field:    pac.FieldPacVersion,
		Expected: "X.Y.Z",
		Actual:   s,
	}}
}

func checkFailClosedLawTier(doc *pac.Document) []Violation {
	tier, _ := doc.MetadataString(pac.FieldGovernanceTier)
	if tier != pac.TierLaw {
		return nil
	}
	v, present := doc.MetadataField(pac.FieldFailClosed)
	if b, isBool := v.(bool); isBool && b {
		return nil
	}
	actual := "missing"
	if present {
		actual = fmt.Sprint(v)
	}
	return []Violation{{
		RuleID:   RuleFailClosedLawTier,
		Message:  "fail_closed must be true for LAW governance tier",
		Block:    blockRef(pac.BlockMetadata),
		Field:    pac.FieldFailClosed,
		Expected: "true",
		Actual:   actual,
	}}
}

func checkAllBlocksPresent(doc *pac.Document) []Violation {
	kind := doc.BlocksKind()
	if kind != pac.KindMapping && kind != pac.KindMissing && kind != pac.KindNull {
		return []Violation{{
			RuleID:   RuleAllBlocksPresent,
			Message:  "'blocks' must be a mapping",
			Expected: pac.KindMapping,
			Actual:   kind,
		}}
	}
	present := doc.BlockNumbers()
	var out []Violation
	for n := 0; n < pac.BlockCount; n++ {
		if !present[n] {
			out = append(out, Violation{
				RuleID:  RuleAllBlocksPresent,
				Message: fmt.Sprintf("Missing required BLOCK %d: %s", n, pac.BlockName(n)),
				Block:   blockRef(n),
			})
		}
	}
	return out
}

func checkNoDuplicateBlocks(doc *pac.Document) []Violation {
	seen := make(map[int]bool)
	var out []Violation
	for _, e := range doc.BlockEntries() {
		if !e.Numeric {
			continue
		}
		if seen[e.Number] {
			out = append(out, Violation{
				RuleID:  RuleNoDuplicateBlocks,
				Message: fmt.Sprintf("Duplicate block number: %d", e.Number),
				Block:   blockRef(e.Number),
				Actual:  e.Key,
			})
		}
		seen[e.Number] = true
	}
	return out
}

func booleanBlockRule(id RuleID, n int, fields []string) func(*pac.Document) []Violation {
	name := pac.BlockName(n)
	return func(doc *pac.Document) []Violation {
		v, ok := doc.Block(n)
		if !ok {
			return []Violation{{
				RuleID:  id,
				Message: fmt.Sprintf("%s (BLOCK %d) is required", name, n),
				Block:   blockRef(n),
			}}
		}
		m, isMap := v.(map[string]any)
		if !isMap {
			return []Violation{{
				RuleID:   id,
				Message:  fmt.Sprintf("%s must be a mapping", name),
				Block:    blockRef(n),
				Expected: pac.KindMapping,
				Actual:   pac.KindOf(v),
			}}
		}
		var out []Violation
		for _, f := range fields {
			fv, present := m[f]
			switch {
			case !present || fv == nil:
				out = append(out, Violation{
					RuleID:  id,
					Message: fmt.Sprintf("%s missing field: %s", name, f),
					Block:   blockRef(n),
					Field:   f,
				})
			case pac.KindOf(fv) != pac.KindBoolean:
				out = append(out, Violation{
					RuleID:   id,
					Message:  fmt.Sprintf("%s field must be a boolean: %s", name, f),
					Block:    blockRef(n),
					Field:    f,
					Expected: pac.KindBoolean,
					Actual:   pac.KindOf(fv),
				})
			}
		}
		return out
	}
}
