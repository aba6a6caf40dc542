package lint_test

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/benson/pkg/lint"
	"github.com/Mindburn-Labs/benson/pkg/pac"
	"github.com/Mindburn-Labs/benson/pkg/pac/pactest"
)

func rulesOf(res *lint.Result) []lint.RuleID {
	var out []lint.RuleID
	for _, v := range res.Violations {
		out = append(out, v.RuleID)
	}
	return out
}

func TestEnforce_ValidDocumentPasses(t *testing.T) {
	fixed := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	res := lint.NewEnforcer().WithClock(func() time.Time { return fixed }).Enforce(pactest.Doc(pactest.Valid()))

	assert.True(t, res.Passed, res.ViolationStrings())
	assert.Empty(t, res.Violations)
	assert.Equal(t, pactest.ValidPacID, res.PacID)
	assert.Len(t, res.RulesChecked, 12)
	assert.Equal(t, fixed, res.CheckedAt)
}

func TestEnforce_RuleOrderIsFixed(t *testing.T) {
	want := []lint.RuleID{
		"LINT-001", "LINT-002", "LINT-003", "LINT-004", "LINT-005", "LINT-006",
		"LINT-007", "LINT-008", "LINT-009", "LINT-010", "LINT-011", "LINT-012",
	}
	assert.Equal(t, want, lint.NewEnforcer().RuleIDs())
}

func TestEnforce_SingleRuleViolations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]any) map[string]any
		rule   lint.RuleID
	}{
		{"missing issuer_role", func(d map[string]any) map[string]any { return pactest.DeleteMeta(d, pac.FieldIssuerRole) }, lint.RuleMetadataBlock},
		{"bad pac_id", func(d map[string]any) map[string]any { return pactest.SetMeta(d, pac.FieldPacID, "PAC-lower") }, lint.RulePacIDFormat},
		{"bad version", func(d map[string]any) map[string]any { return pactest.SetMeta(d, pac.FieldPacVersion, "v1.0.0") }, lint.RulePacVersion},
		{"leading zero version", func(d map[string]any) map[string]any { return pactest.SetMeta(d, pac.FieldPacVersion, "01.0.0") }, lint.RulePacVersion},
		{"bad classification", func(d map[string]any) map[string]any { return pactest.SetMeta(d, pac.FieldClassification, "constitutional") }, lint.RuleClassification},
		{"bad tier", func(d map[string]any) map[string]any { return pactest.SetMeta(d, pac.FieldGovernanceTier, "RULE") }, lint.RuleGovernanceTier},
		{"bad gid", func(d map[string]any) map[string]any { return pactest.SetMeta(d, pac.FieldIssuerGID, "GID-ABC") }, lint.RuleIssuerGID},
		{"bad issued_at", func(d map[string]any) map[string]any { return pactest.SetMeta(d, pac.FieldIssuedAt, "2026-01-05") }, lint.RuleIssuedAt},
		{"fail_closed false on LAW", func(d map[string]any) map[string]any { return pactest.SetMeta(d, pac.FieldFailClosed, false) }, lint.RuleFailClosedLawTier},
		{"final state field not boolean", func(d map[string]any) map[string]any {
			return pactest.SetBlockField(d, pac.BlockFinalState, pac.FieldExecutionBlocking, "yes")
		}, lint.RuleFinalState},
		{"ledger field missing", func(d map[string]any) map[string]any {
			delete(pactest.Block(d, pac.BlockLedgerCommit), pac.FieldImmutabilityAttested)
			return d
		}, lint.RuleLedgerCommit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := lint.NewEnforcer().Enforce(pactest.Doc(tt.mutate(pactest.Valid())))
			assert.False(t, res.Passed)
			assert.Equal(t, []lint.RuleID{tt.rule}, rulesOf(res), res.ViolationStrings())
		})
	}
}

func TestEnforce_FailClosedOnlyForLaw(t *testing.T) {
	doc := pactest.SetMeta(pactest.Valid(), pac.FieldGovernanceTier, pac.TierPolicy)
	pactest.SetMeta(doc, pac.FieldFailClosed, false)

	res := lint.NewEnforcer().Enforce(pactest.Doc(doc))
	assert.True(t, res.Passed, res.ViolationStrings())
}

func TestEnforce_FailClosedMissingOnLaw(t *testing.T) {
	res := lint.NewEnforcer().Enforce(pactest.Doc(pactest.DeleteMeta(pactest.Valid(), pac.FieldFailClosed)))

	assert.ElementsMatch(t, []lint.RuleID{lint.RuleMetadataBlock, lint.RuleFailClosedLawTier}, rulesOf(res))
	for _, v := range res.Violations {
		if v.RuleID == lint.RuleFailClosedLawTier {
			assert.Equal(t, "missing", v.Actual)
		}
	}
}

func TestEnforce_MissingBlocks(t *testing.T) {
	doc := pactest.DeleteBlock(pactest.Valid(), 18)
	pactest.DeleteBlock(doc, 5)

	res := lint.NewEnforcer().Enforce(pactest.Doc(doc))

	assert.Equal(t, []lint.RuleID{lint.RuleAllBlocksPresent, lint.RuleAllBlocksPresent, lint.RuleFinalState}, rulesOf(res))
	assert.Equal(t, "[LINT-009] Missing required BLOCK 5: EXECUTION_LANE (BLOCK 5)", res.Violations[0].String())
}

func TestEnforce_DuplicateBlocks(t *testing.T) {
	tree := pactest.Valid()
	blocks := make(map[any]any)
	for k, v := range tree["blocks"].(map[string]any) {
		blocks[k] = v
	}
	blocks[3] = map[string]any{"governance_mode": "LAW"}
	tree["blocks"] = blocks

	res := lint.NewEnforcer().Enforce(pac.New(tree))

	require.Equal(t, []lint.RuleID{lint.RuleNoDuplicateBlocks}, rulesOf(res))
	assert.Equal(t, 3, *res.Violations[0].Block)
}

func TestEnforce_BlocksNotMapping(t *testing.T) {
	tree := pactest.Valid()
	tree["blocks"] = "nope"

	res := lint.NewEnforcer().Enforce(pac.New(tree))

	assert.True(t, res.HasRule(lint.RuleAllBlocksPresent))
	assert.True(t, res.HasRule(lint.RuleFinalState))
	assert.True(t, res.HasRule(lint.RuleLedgerCommit))
	assert.False(t, res.HasRule(lint.RuleNoDuplicateBlocks))
}

func TestEnforce_AllRulesRunWithoutShortCircuit(t *testing.T) {
	doc := pactest.Valid()
	pactest.SetMeta(doc, pac.FieldPacID, "bad")
	pactest.SetMeta(doc, pac.FieldPacVersion, "x")
	pactest.SetMeta(doc, pac.FieldClassification, "x")
	pactest.SetMeta(doc, pac.FieldGovernanceTier, "x")
	pactest.SetMeta(doc, pac.FieldIssuerGID, "x")
	pactest.SetMeta(doc, pac.FieldIssuedAt, "x")
	pactest.DeleteMeta(doc, pac.FieldScope)
	pactest.DeleteBlock(doc, 18)
	pactest.DeleteBlock(doc, 19)

	res := lint.NewEnforcer().Enforce(pactest.Doc(doc))

	for _, id := range []lint.RuleID{
		lint.RuleMetadataBlock, lint.RulePacIDFormat, lint.RulePacVersion, lint.RuleClassification,
		lint.RuleGovernanceTier, lint.RuleIssuerGID, lint.RuleIssuedAt, lint.RuleAllBlocksPresent,
		lint.RuleFinalState, lint.RuleLedgerCommit,
	} {
		assert.True(t, res.HasRule(id), "expected %s", id)
	}
}

func TestEnforce_MissingMetadataAlwaysFails(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	enforcer := lint.NewEnforcer()
	properties.Property("documents without metadata never pass lint", prop.ForAll(
		func(blockNums []int) bool {
			blocks := make(map[string]any)
			for _, n := range blockNums {
				blocks[pac.BlockName(n)] = map[string]any{"block_name": pac.BlockName(n)}
				blocks[itoa(n)] = map[string]any{"execution_blocking": true, "promotion_eligible": false,
					"ordering_attested": true, "immutability_attested": true}
			}
			res := enforcer.Enforce(pac.New(map[string]any{"blocks": blocks}))
			return !res.Passed && res.HasRule(lint.RuleMetadataBlock)
		},
		gen.SliceOf(gen.IntRange(0, pac.BlockCount-1)),
	))

	properties.TestingRun(t)
}

func itoa(n int) string {
	if n < 10 {
		return string(rune('0' + n))
	}
	return "1" + string(rune('0'+n-10))
}

func TestViolation_String(t *testing.T) {
	v := lint.Violation{
		RuleID:   lint.RuleFailClosedLawTier,
		Message:  "fail_closed must be true for LAW governance tier",
		Block:    func() *int { n := 0; return &n }(),
		Field:    "fail_closed",
		Expected: "true",
		Actual:   "false",
	}
	assert.Equal(t,
		"[LINT-008] fail_closed must be true for LAW governance tier (BLOCK 0) field='fail_closed' expected='true' actual='false'",
		v.String())
}
