// Package schema validates the structural shape of PAC documents against a
// fixed, versioned schema table. The registry is immutable once built.
package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Mindburn-Labs/benson/pkg/canonicalize"
	"github.com/Mindburn-Labs/benson/pkg/pac"
)

const (
	// RegistryVersion is the version of the registry itself.
	RegistryVersion = "1.0.0"
	// CurrentSchemaID is the only schema currently accepted at ingress.
	CurrentSchemaID = "CHAINBRIDGE_PAC_SCHEMA_v1.0.0"

	schemaIDPrefix = "CHAINBRIDGE_PAC_SCHEMA_v"
	envelopeURL    = "https://benson.schemas.local/pac/envelope.schema.json"
	hashLength     = 16
)

//go:embed envelope.schema.json
var envelopeSchema string

var ErrInvalidSchemaID = errors.New("schema: invalid schema id")

type definition struct {
	id       string
	version  *semver.Version
	blocks   []Block
	hash     string
	envelope *jsonschema.Schema
}

// Registry holds the supported schema definitions.
type Registry struct {
	schemas map[string]*definition
	clock   func() time.Time
}

// NewRegistry builds a registry with the canonical v1.0.0 schema.
func NewRegistry() (*Registry, error) {
	r := &Registry{
		schemas: make(map[string]*definition),
		clock:   time.Now,
	}
	if err := r.register(CurrentSchemaID, canonicalBlocks()); err != nil {
		return nil, err
	}
	return r, nil
}

// MustNewRegistry is NewRegistry for callers that cannot recover from a
// broken built-in schema table.
func MustNewRegistry() *Registry {
	r, err := NewRegistry()
	if err != nil {
		panic(err)
	}
	return r
}

// WithClock overrides the clock used for ValidatedAt.
func (r *Registry) WithClock(clock func() time.Time) *Registry {
	r.clock = clock
	return r
}

func (r *Registry) register(id string, blocks []Block) error {
	if !pac.SchemaVersionPattern.MatchString(id) {
		return fmt.Errorf("%w: %q", ErrInvalidSchemaID, id)
	}
	version, err := semver.StrictNewVersion(strings.TrimPrefix(id, schemaIDPrefix))
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidSchemaID, id, err)
	}

	sum, err := canonicalize.CanonicalHash(hashView(blocks))
	if err != nil {
		return fmt.Errorf("schema %s: hash failed: %w", id, err)
	}

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(envelopeURL, strings.NewReader(envelopeSchema)); err != nil {
		return fmt.Errorf("schema %s: envelope load failed: %w", id, err)
	}
	envelope, err := c.Compile(envelopeURL)
	if err != nil {
		return fmt.Errorf("schema %s: envelope compile failed: %w", id, err)
	}

	r.schemas[id] = &definition{
		id:       id,
		version:  version,
		blocks:   blocks,
		hash:     sum[:hashLength],
		envelope: envelope,
	}
	return nil
}

// SupportedSchemas returns the supported schema ids, sorted.
func (r *Registry) SupportedSchemas() []string {
	ids := make([]string, 0, len(r.schemas))
	for id := range r.schemas {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// IsSupported reports whether id is a registered schema id.
func (r *Registry) IsSupported(id string) bool {
	_, ok := r.schemas[id]
	return ok
}

// SchemaHash returns the content hash of a registered schema.
func (r *Registry) SchemaHash(id string) (string, bool) {
	def, ok := r.schemas[id]
	if !ok {
		return "", false
	}
	return def.hash, true
}

// SchemaVersion returns the semantic version embedded in a registered schema id.
func (r *Registry) SchemaVersion(id string) (*semver.Version, bool) {
	def, ok := r.schemas[id]
	if !ok {
		return nil, false
	}
	return def.version, true
}

// Blocks returns a copy of the block table of a registered schema.
func (r *Registry) Blocks(id string) ([]Block, bool) {
	def, ok := r.schemas[id]
	if !ok {
		return nil, false
	}
	return append([]Block(nil), def.blocks...), true
}

// Validate checks doc against the schema it declares. It never panics on
// malformed input; every defect becomes a ValidationError.
func (r *Registry) Validate(doc *pac.Document) *Result {
	res := &Result{
		PacID:       doc.PacID(),
		ValidatedAt: r.clock().UTC(),
	}

	ref, ok := doc.MetadataField(pac.FieldSchemaVersion)
	if !ok || ref == "" {
		res.Status = StatusMissingSchemaRef
		res.Errors = []ValidationError{{
			FieldPath: "metadata." + pac.FieldSchemaVersion,
			Message:   "Schema version reference is required",
		}}
		return res
	}

	id, isString := ref.(string)
	def := r.schemas[id]
	if !isString || def == nil {
		res.Status = StatusUnknownSchema
		res.SchemaID = fmt.Sprint(ref)
		res.Errors = []ValidationError{{
			FieldPath: "metadata." + pac.FieldSchemaVersion,
			Message:   fmt.Sprintf("Unknown schema version: %v", ref),
			Expected:  "[" + strings.Join(r.SupportedSchemas(), ", ") + "]",
			Actual:    fmt.Sprint(ref),
		}}
		return res
	}

	res.SchemaID = id
	res.SchemaHash = def.hash

	var errs []ValidationError
	errs = append(errs, validateEnvelope(def.envelope, doc)...)

	if meta, ok := doc.Metadata(); ok {
		errs = append(errs, validateFields(meta, def.blocks[pac.BlockMetadata].Fields, pac.KeyMetadata)...)
	}
	switch {
	case doc.BlocksIsMapping() || doc.BlocksKind() == pac.KindMissing || doc.BlocksKind() == pac.KindNull:
		errs = append(errs, validateBlocks(doc, def.blocks)...)
	case !hasPath(errs, pac.KeyBlocks):
		errs = append(errs, ValidationError{
			FieldPath: pac.KeyBlocks,
			Message:   fmt.Sprintf("'%s' must be a mapping", pac.KeyBlocks),
			Expected:  pac.KindMapping,
			Actual:    doc.BlocksKind(),
		})
	}

	res.Errors = errs
	if len(errs) == 0 {
		res.Status = StatusValid
	} else {
		res.Status = StatusInvalid
	}
	return res
}

func hasPath(errs []ValidationError, path string) bool {
	for _, e := range errs {
		if e.FieldPath == path {
			return true
		}
	}
	return false
}

// validateEnvelope checks the top-level shape with the compiled JSON Schema.
// Null metadata or blocks are dropped first so they read as absent.
func validateEnvelope(envelope *jsonschema.Schema, doc *pac.Document) []ValidationError {
	root := doc.Root()
	if m, ok := root.(map[string]any); ok {
		for _, k := range []string{pac.KeyMetadata, pac.KeyBlocks} {
			if v, present := m[k]; present && v == nil {
				delete(m, k)
			}
		}
	}

	raw, err := json.Marshal(root)
	if err != nil {
		return []ValidationError{{
			FieldPath: "$",
			Message:   "Document is not representable as JSON",
			Actual:    err.Error(),
		}}
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var instance any
	if err := dec.Decode(&instance); err != nil {
		return []ValidationError{{FieldPath: "$", Message: "Document is not representable as JSON", Actual: err.Error()}}
	}

	err = envelope.Validate(instance)
	if err == nil {
		return nil
	}
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return []ValidationError{{FieldPath: "$", Message: err.Error()}}
	}

	var out []ValidationError
	for _, leaf := range leaves(verr) {
		path := pointerToPath(leaf.InstanceLocation)
		out = append(out, ValidationError{
			FieldPath: path,
			Message:   fmt.Sprintf("'%s' must be a mapping", path),
			Expected:  pac.KindMapping,
			Actual:    kindAt(doc, path),
		})
	}
	return out
}

func leaves(e *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(e.Causes) == 0 {
		return []*jsonschema.ValidationError{e}
	}
	var out []*jsonschema.ValidationError
	for _, c := range e.Causes {
		out = append(out, leaves(c)...)
	}
	return out
}

func pointerToPath(ptr string) string {
	ptr = strings.TrimPrefix(ptr, "/")
	if ptr == "" {
		return "$"
	}
	return strings.ReplaceAll(ptr, "/", ".")
}

func kindAt(doc *pac.Document, path string) string {
	switch path {
	case "$":
		return doc.RootKind()
	case pac.KeyMetadata:
		return doc.MetadataKind()
	case pac.KeyBlocks:
		return doc.BlocksKind()
	default:
		return ""
	}
}

func validateBlocks(doc *pac.Document, blocks []Block) []ValidationError {
	var errs []ValidationError
	for _, b := range blocks {
		path := fmt.Sprintf("%s.%d", pac.KeyBlocks, b.Number)
		v, ok := doc.Block(b.Number)
		if !ok {
			if b.Required {
				errs = append(errs, ValidationError{
					FieldPath: path,
					Message:   fmt.Sprintf("Required block %d (%s) is missing", b.Number, b.Name),
				})
			}
			continue
		}
		// Block 0 is the metadata record; its fields are checked at metadata.*.
		if b.Number == pac.BlockMetadata || len(b.Fields) == 0 {
			continue
		}
		m, isMap := v.(map[string]any)
		if !isMap {
			errs = append(errs, ValidationError{
				FieldPath: path,
				Message:   fmt.Sprintf("Block %d (%s) must be a mapping", b.Number, b.Name),
				Expected:  pac.KindMapping,
				Actual:    pac.KindOf(v),
			})
			continue
		}
		errs = append(errs, validateFields(m, b.Fields, path)...)
	}
	return errs
}

func validateFields(data map[string]any, fields []Field, prefix string) []ValidationError {
	var errs []ValidationError
	for _, f := range fields {
		path := prefix + "." + f.Name
		v, present := data[f.Name]
		if !present || v == nil {
			if f.Required {
				errs = append(errs, ValidationError{
					FieldPath: path,
					Message:   fmt.Sprintf("Required field '%s' is missing", f.Name),
				})
			}
			continue
		}

		if kind := pac.KindOf(v); kind != string(f.Type) {
			errs = append(errs, ValidationError{
				FieldPath: path,
				Message:   fmt.Sprintf("Field '%s' must be a %s", f.Name, f.Type),
				Expected:  string(f.Type),
				Actual:    kind,
			})
			continue
		}

		s, isString := v.(string)
		if f.Pattern != nil && isString && !f.Pattern.MatchString(s) {
			errs = append(errs, ValidationError{
				FieldPath: path,
				Message:   fmt.Sprintf("Field '%s' does not match pattern", f.Name),
				Expected:  f.Pattern.String(),
				Actual:    s,
			})
		}
		if len(f.Enum) > 0 && !pac.Contains(f.Enum, fmt.Sprint(v)) {
			errs = append(errs, ValidationError{
				FieldPath: path,
				Message:   fmt.Sprintf("Field '%s' must be one of allowed values", f.Name),
				Expected:  "[" + strings.Join(f.Enum, ", ") + "]",
				Actual:    fmt.Sprint(v),
			})
		}
	}
	return errs
}
