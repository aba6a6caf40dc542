package schema

import (
	"regexp"
	"sort"

	"github.com/Mindburn-Labs/benson/pkg/pac"
)

// FieldType is the expected kind of a schema field.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeBoolean FieldType = "boolean"
	TypeInteger FieldType = "integer"
)

// Field describes one field of a block.
type Field struct {
	Name        string
	Type        FieldType
	Required    bool
	Pattern     *regexp.Regexp
	Enum        []string
	Description string
}

// Block describes one numbered block of a schema.
type Block struct {
	Number      int
	Name        string
	Required    bool
	Fields      []Field
	Description string
}

var metadataFields = []Field{
	{Name: pac.FieldPacID, Type: TypeString, Required: true, Pattern: pac.PacIDPattern, Description: "Canonical PAC identifier"},
	{Name: pac.FieldPacVersion, Type: TypeString, Required: true, Pattern: pac.SemverPattern, Description: "Semantic version"},
	{Name: pac.FieldClassification, Type: TypeString, Required: true, Enum: pac.Classifications, Description: "PAC classification level"},
	{Name: pac.FieldGovernanceTier, Type: TypeString, Required: true, Enum: pac.GovernanceTiers, Description: "Governance enforcement tier"},
	{Name: pac.FieldIssuerGID, Type: TypeString, Required: true, Pattern: pac.GIDPattern, Description: "Governance ID of issuer"},
	{Name: pac.FieldIssuerRole, Type: TypeString, Required: true, Description: "Role of the issuer"},
	{Name: pac.FieldIssuedAt, Type: TypeString, Required: true, Pattern: pac.ISO8601Pattern, Description: "ISO-8601 timestamp"},
	{Name: pac.FieldScope, Type: TypeString, Required: true, Description: "Scope of the PAC"},
	{Name: pac.FieldFailClosed, Type: TypeBoolean, Required: true, Description: "Whether to fail closed on error"},
	{Name: pac.FieldSchemaVersion, Type: TypeString, Required: true, Pattern: pac.SchemaVersionPattern, Description: "Schema version reference"},
}

var finalStateFields = []Field{
	{Name: pac.FieldExecutionBlocking, Type: TypeBoolean, Required: true, Description: "Whether this PAC blocks execution"},
	{Name: pac.FieldPromotionEligible, Type: TypeBoolean, Required: true, Description: "Whether this PAC is eligible for promotion"},
}

var ledgerCommitFields = []Field{
	{Name: pac.FieldOrderingAttested, Type: TypeBoolean, Required: true, Description: "Ordering has been attested"},
	{Name: pac.FieldImmutabilityAttested, Type: TypeBoolean, Required: true, Description: "Immutability has been attested"},
}

// canonicalBlocks builds the v1.0.0 block table.
func canonicalBlocks() []Block {
	blocks := make([]Block, pac.BlockCount)
	for n := range blocks {
		blocks[n] = Block{Number: n, Name: pac.BlockName(n), Required: true}
	}
	blocks[pac.BlockMetadata].Fields = metadataFields
	blocks[pac.BlockFinalState].Fields = finalStateFields
	blocks[pac.BlockLedgerCommit].Fields = ledgerCommitFields
	return blocks
}

// hashView is the canonical form of a block table used for schema hashing.
func hashView(blocks []Block) []map[string]any {
	out := make([]map[string]any, 0, len(blocks))
	for _, b := range blocks {
		fields := make([]map[string]any, 0, len(b.Fields))
		for _, f := range b.Fields {
			entry := map[string]any{
				"name":     f.Name,
				"type":     string(f.Type),
				"required": f.Required,
			}
			if f.Pattern != nil {
				entry["pattern"] = f.Pattern.String()
			}
			if len(f.Enum) > 0 {
				enum := append([]string(nil), f.Enum...)
				sort.Strings(enum)
				entry["enum"] = enum
			}
			fields = append(fields, entry)
		}
		out = append(out, map[string]any{
			"number":   b.Number,
			"name":     b.Name,
			"required": b.Required,
			"fields":   fields,
		})
	}
	return out
}
