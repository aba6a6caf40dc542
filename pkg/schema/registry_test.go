package schema_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Mindburn-Labs/benson/pkg/pac"
	"github.com/Mindburn-Labs/benson/pkg/pac/pactest"
	"github.com/Mindburn-Labs/benson/pkg/schema"
)

func paths(res *schema.Result) []string {
	out := make([]string, 0, len(res.Errors))
	for _, e := range res.Errors {
		out = append(out, e.FieldPath)
	}
	return out
}

func TestRegistry_ValidDocument(t *testing.T) {
	fixed := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	r := schema.MustNewRegistry().WithClock(func() time.Time { return fixed })

	res := r.Validate(pactest.Doc(pactest.Valid()))

	require.Equal(t, schema.StatusValid, res.Status, res.ErrorStrings())
	assert.True(t, res.Valid())
	assert.Empty(t, res.Errors)
	assert.Equal(t, schema.CurrentSchemaID, res.SchemaID)
	assert.Equal(t, pactest.ValidPacID, res.PacID)
	assert.Len(t, res.SchemaHash, 16)
	assert.Equal(t, fixed, res.ValidatedAt)
}

func TestRegistry_SupportedSchemas(t *testing.T) {
	r := schema.MustNewRegistry()

	assert.Equal(t, []string{schema.CurrentSchemaID}, r.SupportedSchemas())
	assert.True(t, r.IsSupported(schema.CurrentSchemaID))
	assert.False(t, r.IsSupported("CHAINBRIDGE_PAC_SCHEMA_v2.0.0"))

	v, ok := r.SchemaVersion(schema.CurrentSchemaID)
	require.True(t, ok)
	assert.Equal(t, "1.0.0", v.String())

	blocks, ok := r.Blocks(schema.CurrentSchemaID)
	require.True(t, ok)
	assert.Len(t, blocks, pac.BlockCount)
}

func TestRegistry_SchemaHashIsStable(t *testing.T) {
	h1, ok := schema.MustNewRegistry().SchemaHash(schema.CurrentSchemaID)
	require.True(t, ok)
	h2, _ := schema.MustNewRegistry().SchemaHash(schema.CurrentSchemaID)
	assert.Equal(t, h1, h2)
	assert.Regexp(t, `^[0-9a-f]{16}$`, h1)

	_, ok = schema.MustNewRegistry().SchemaHash("nope")
	assert.False(t, ok)
}

func TestRegistry_MissingSchemaRef(t *testing.T) {
	r := schema.MustNewRegistry()

	tests := []struct {
		name string
		tree any
	}{
		{"no metadata", pactest.WithoutMetadata()},
		{"no schema_version", pactest.DeleteMeta(pactest.Valid(), pac.FieldSchemaVersion)},
		{"empty schema_version", pactest.SetMeta(pactest.Valid(), pac.FieldSchemaVersion, "")},
		{"null schema_version", pactest.SetMeta(pactest.Valid(), pac.FieldSchemaVersion, nil)},
		{"metadata is a list", map[string]any{"metadata": []any{1}}},
		{"root is a string", "PAC"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Validate(pac.New(tt.tree))
			assert.Equal(t, schema.StatusMissingSchemaRef, res.Status)
			require.Len(t, res.Errors, 1)
			assert.Equal(t, "metadata.schema_version", res.Errors[0].FieldPath)
			assert.False(t, res.Valid())
		})
	}
}

func TestRegistry_UnknownSchema(t *testing.T) {
	r := schema.MustNewRegistry()

	res := r.Validate(pactest.Doc(pactest.SetMeta(pactest.Valid(), pac.FieldSchemaVersion, "CHAINBRIDGE_PAC_SCHEMA_v9.9.9")))
	assert.Equal(t, schema.StatusUnknownSchema, res.Status)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Expected, schema.CurrentSchemaID)
	assert.Equal(t, "CHAINBRIDGE_PAC_SCHEMA_v9.9.9", res.Errors[0].Actual)

	res = r.Validate(pactest.Doc(pactest.SetMeta(pactest.Valid(), pac.FieldSchemaVersion, 1)))
	assert.Equal(t, schema.StatusUnknownSchema, res.Status)
}

func TestRegistry_MetadataFieldErrors(t *testing.T) {
	r := schema.MustNewRegistry()

	tests := []struct {
		name    string
		field   string
		value   any
		message string
	}{
		{"bad pac_id", pac.FieldPacID, "pac-lower", "Field 'pac_id' does not match pattern"},
		{"bad version", pac.FieldPacVersion, "1.0", "Field 'pac_version' does not match pattern"},
		{"bad classification", pac.FieldClassification, "SECRET", "Field 'classification' must be one of allowed values"},
		{"bad tier", pac.FieldGovernanceTier, "LAWFUL", "Field 'governance_tier' must be one of allowed values"},
		{"bad gid", pac.FieldIssuerGID, "GID-1", "Field 'issuer_gid' does not match pattern"},
		{"bad issued_at", pac.FieldIssuedAt, "yesterday", "Field 'issued_at' does not match pattern"},
		{"non-bool fail_closed", pac.FieldFailClosed, "true", "Field 'fail_closed' must be a boolean"},
		{"non-string scope", pac.FieldScope, 12, "Field 'scope' must be a string"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := r.Validate(pactest.Doc(pactest.SetMeta(pactest.Valid(), tt.field, tt.value)))
			assert.Equal(t, schema.StatusInvalid, res.Status)
			require.Len(t, res.Errors, 1, res.ErrorStrings())
			assert.Equal(t, "metadata."+tt.field, res.Errors[0].FieldPath)
			assert.Equal(t, tt.message, res.Errors[0].Message)
		})
	}
}

func TestRegistry_AccumulatesAllErrors(t *testing.T) {
	doc := pactest.Valid()
	pactest.DeleteMeta(doc, pac.FieldIssuerRole)
	pactest.DeleteMeta(doc, pac.FieldScope)
	pactest.SetMeta(doc, pac.FieldPacID, "bad")
	pactest.DeleteBlock(doc, 7)
	pactest.SetBlockField(doc, pac.BlockFinalState, pac.FieldPromotionEligible, "no")
	delete(pactest.Block(doc, pac.BlockLedgerCommit), pac.FieldOrderingAttested)

	res := schema.MustNewRegistry().Validate(pactest.Doc(doc))

	assert.Equal(t, schema.StatusInvalid, res.Status)
	assert.ElementsMatch(t, []string{
		"metadata.pac_id",
		"metadata.issuer_role",
		"metadata.scope",
		"blocks.7",
		"blocks.18.promotion_eligible",
		"blocks.19.ordering_attested",
	}, paths(res))
}

func TestRegistry_BlockShapes(t *testing.T) {
	r := schema.MustNewRegistry()

	t.Run("blocks not a mapping", func(t *testing.T) {
		doc := pactest.Valid()
		doc["blocks"] = []any{"a"}
		res := r.Validate(pactest.Doc(doc))
		require.Len(t, res.Errors, 1)
		assert.Equal(t, "blocks", res.Errors[0].FieldPath)
		assert.Equal(t, pac.KindList, res.Errors[0].Actual)
	})

	t.Run("blocks missing", func(t *testing.T) {
		doc := pactest.Valid()
		delete(doc, "blocks")
		res := r.Validate(pactest.Doc(doc))
		assert.Len(t, res.Errors, pac.BlockCount)
	})

	t.Run("final state block not a mapping", func(t *testing.T) {
		doc := pactest.Valid()
		doc["blocks"].(map[string]any)["18"] = "done"
		res := r.Validate(pactest.Doc(doc))
		require.Len(t, res.Errors, 1)
		assert.Equal(t, "blocks.18", res.Errors[0].FieldPath)
	})

	t.Run("integer block keys", func(t *testing.T) {
		doc := pactest.Valid()
		blocks := doc["blocks"].(map[string]any)
		intKeyed := make(map[any]any, len(blocks))
		for k, v := range blocks {
			n := 0
			for _, c := range k {
				n = n*10 + int(c-'0')
			}
			intKeyed[n] = v
		}
		tree := map[any]any{"metadata": doc["metadata"], "blocks": intKeyed}
		res := r.Validate(pac.New(tree))
		assert.True(t, res.Valid(), res.ErrorStrings())
	})

	t.Run("empty typed blocks map", func(t *testing.T) {
		doc := pactest.Valid()
		doc["blocks"] = map[int]any{}
		res := r.Validate(pactest.Doc(doc))
		assert.Equal(t, schema.StatusInvalid, res.Status)
		assert.Len(t, res.Errors, pac.BlockCount)
		assert.Contains(t, paths(res), "blocks.0")
		assert.Contains(t, paths(res), "blocks.19")
	})

	t.Run("typed int-keyed blocks", func(t *testing.T) {
		doc := pactest.Valid()
		typed := make(map[int]map[string]any, pac.BlockCount)
		for n := 0; n < pac.BlockCount; n++ {
			typed[n] = pactest.Block(doc, n)
		}
		doc["blocks"] = typed
		res := r.Validate(pactest.Doc(doc))
		assert.True(t, res.Valid(), res.ErrorStrings())
	})

	t.Run("blocks map with unsupported keys", func(t *testing.T) {
		doc := pactest.Valid()
		doc["blocks"] = map[float64]any{1.5: "x"}
		res := r.Validate(pactest.Doc(doc))
		assert.Equal(t, schema.StatusInvalid, res.Status)
		assert.Contains(t, paths(res), "blocks")
		for _, e := range res.Errors {
			if e.FieldPath == "blocks" {
				assert.Equal(t, "'blocks' must be a mapping", e.Message)
				assert.Equal(t, pac.KindMapping, e.Expected)
			}
		}
	})
}

func TestValidationError_String(t *testing.T) {
	e := schema.ValidationError{FieldPath: "metadata.pac_id", Message: "bad", Expected: "x", Actual: "y"}
	assert.Equal(t, "[metadata.pac_id] bad expected=x actual=y", e.String())

	e = schema.ValidationError{FieldPath: "blocks.1", Message: "missing"}
	assert.Equal(t, "[blocks.1] missing", e.String())
}
