// Package pac models PAC governance documents as a normalized, read-only
// JSON-like tree. Every validator reads documents through this package so that
// missing or mistyped fields surface as values the caller can report, never as
// runtime type errors.
package pac

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// UnknownID is reported for documents that carry no usable pac_id.
const UnknownID = "UNKNOWN"

// Top-level document keys.
const (
	KeyMetadata = "metadata"
	KeyBlocks   = "blocks"
)

// BlockEntry is one entry of the blocks mapping, as written by the author.
type BlockEntry struct {
	// Key is the key in its original textual form ("1", "01", 1 → "1").
	Key string
	// Number is the parsed block number; valid only when Numeric is true.
	Number  int
	Numeric bool
	Value   any
}

// Document is an immutable, normalized view over a caller-supplied PAC tree.
// The caller's value is deep-copied on construction and never mutated.
type Document struct {
	root       map[string]any
	scalar     any
	rootIsMap  bool
	rootKind   string
	blockList  []BlockEntry
	blocksKind string
}

// New normalizes v into a Document. Any Go map keyed by strings or integers
// (including the map[any]any produced by YAML decoders) becomes a string-keyed
// mapping; block entries keep their original key form so duplicate numeric
// keys ("1" and 1) stay visible.
func New(v any) *Document {
	d := &Document{}

	kvs, isMap := entries(v)
	if !isMap {
		d.scalar = normalize(v)
		d.rootKind = KindOf(d.scalar)
		d.blocksKind = KindMissing
		return d
	}

	d.rootIsMap = true
	d.rootKind = KindMapping
	d.root = make(map[string]any, len(kvs))
	for _, e := range kvs {
		if e.key == KeyBlocks {
			d.blockList, d.blocksKind = collectBlocks(e.val)
		}
		d.root[e.key] = normalize(e.val)
	}
	if _, ok := d.root[KeyBlocks]; !ok {
		d.blocksKind = KindMissing
	}
	return d
}

type entry struct {
	key string
	val any
}

// entries lists the pairs of a mapping. ok is false for anything that is not
// a map, and for maps whose keys are neither strings nor integers.
func entries(v any) (out []entry, ok bool) {
	switch m := v.(type) {
	case map[string]any:
		out = make([]entry, 0, len(m))
		for k, val := range m {
			out = append(out, entry{k, val})
		}
		return out, true
	case map[any]any:
		out = make([]entry, 0, len(m))
		for k, val := range m {
			out = append(out, entry{fmt.Sprint(k), val})
		}
		return out, true
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map {
		return nil, false
	}
	switch rv.Type().Key().Kind() {
	case reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
	default:
		return nil, false
	}
	out = make([]entry, 0, rv.Len())
	it := rv.MapRange()
	for it.Next() {
		out = append(out, entry{fmt.Sprint(it.Key().Interface()), it.Value().Interface()})
	}
	return out, true
}

// elements lists the items of any Go slice or array except []byte, which
// stays a scalar.
func elements(v any) ([]any, bool) {
	if s, ok := v.([]any); ok {
		return s, true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return nil, false
		}
	default:
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// collectBlocks records every entry of a blocks mapping before key collapse.
// Entries are ordered by block number, then by key text, so lookups are deterministic.
func collectBlocks(v any) ([]BlockEntry, string) {
	kvs, ok := entries(v)
	if !ok {
		return nil, KindOf(normalize(v))
	}

	list := make([]BlockEntry, 0, len(kvs))
	for _, kv := range kvs {
		e := BlockEntry{Key: kv.key, Value: normalize(kv.val)}
		if n, err := strconv.Atoi(strings.TrimSpace(kv.key)); err == nil {
			e.Number = n
			e.Numeric = true
		}
		list = append(list, e)
	}

	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.Numeric != b.Numeric {
			return a.Numeric
		}
		if a.Number != b.Number {
			return a.Number < b.Number
		}
		return a.Key < b.Key
	})
	return list, KindMapping
}

// normalize deep-copies v into the canonical tree form: string-keyed
// mappings and []any sequences. Scalars are returned unchanged.
func normalize(v any) any {
	if kvs, ok := entries(v); ok {
		out := make(map[string]any, len(kvs))
		for _, e := range kvs {
			out[e.key] = normalize(e.val)
		}
		return out
	}
	if items, ok := elements(v); ok {
		out := make([]any, len(items))
		for i, val := range items {
			out[i] = normalize(val)
		}
		return out
	}
	return v
}

// IsMapping reports whether the document root is a mapping at all.
func (d *Document) IsMapping() bool { return d.rootIsMap }

// RootKind describes the root value's kind for diagnostics.
func (d *Document) RootKind() string { return d.rootKind }

// Tree returns a deep copy of the normalized root mapping (nil when the root is
// not a mapping). Callers may freely mutate the result.
func (d *Document) Tree() map[string]any {
	if !d.rootIsMap {
		return nil
	}
	out, _ := normalize(d.root).(map[string]any)
	return out
}

// Root returns a deep copy of the normalized root value, whatever its kind.
func (d *Document) Root() any {
	if d.rootIsMap {
		return d.Tree()
	}
	return normalize(d.scalar)
}

// Value returns a top-level entry.
func (d *Document) Value(key string) (any, bool) {
	v, ok := d.root[key]
	return v, ok
}

// HasMetadata reports whether a metadata entry exists, whatever its type.
func (d *Document) HasMetadata() bool {
	_, ok := d.root[KeyMetadata]
	return ok
}

// Metadata returns the metadata mapping. ok is false when metadata is absent
// or is not a mapping.
func (d *Document) Metadata() (map[string]any, bool) {
	m, ok := d.root[KeyMetadata].(map[string]any)
	return m, ok
}

// MetadataKind describes the metadata value's kind for diagnostics.
func (d *Document) MetadataKind() string {
	v, ok := d.root[KeyMetadata]
	if !ok {
		return KindMissing
	}
	return KindOf(v)
}

// MetadataField returns one metadata field. A field set to null is treated as
// absent.
func (d *Document) MetadataField(name string) (any, bool) {
	m, ok := d.Metadata()
	if !ok {
		return nil, false
	}
	v, ok := m[name]
	if !ok || v == nil {
		return nil, false
	}
	return v, true
}

// MetadataString returns a metadata field when it is a string.
func (d *Document) MetadataString(name string) (string, bool) {
	v, ok := d.MetadataField(name)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// PacID returns metadata.pac_id, or UnknownID when absent, empty or not a string.
func (d *Document) PacID() string {
	if s, ok := d.MetadataString(FieldPacID); ok && s != "" {
		return s
	}
	return UnknownID
}

// BlocksKind describes the blocks value's kind: KindMapping when usable.
func (d *Document) BlocksKind() string { return d.blocksKind }

// BlocksIsMapping reports whether blocks is present and is a mapping.
func (d *Document) BlocksIsMapping() bool { return d.blocksKind == KindMapping }

// BlockEntries returns every entry of the blocks mapping in deterministic order.
func (d *Document) BlockEntries() []BlockEntry {
	out := make([]BlockEntry, len(d.blockList))
	copy(out, d.blockList)
	return out
}

// Block returns the content of block n. A block whose value is null counts as
// absent. When several keys map to the same number the first in key order wins.
func (d *Document) Block(n int) (any, bool) {
	for _, e := range d.blockList {
		if e.Numeric && e.Number == n && e.Value != nil {
			return e.Value, true
		}
	}
	return nil, false
}

// BlockMap returns block n when it is present and is a mapping.
func (d *Document) BlockMap(n int) (map[string]any, bool) {
	v, ok := d.Block(n)
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

// BlockNumbers returns the set of numeric block keys present.
func (d *Document) BlockNumbers() map[int]bool {
	out := make(map[int]bool, len(d.blockList))
	for _, e := range d.blockList {
		if e.Numeric {
			out[e.Number] = true
		}
	}
	return out
}

// Upper folds s to upper case for case-insensitive comparisons.
func Upper(s string) string {
	// Casers are stateful and must not be shared across goroutines.
	return cases.Upper(language.Und).String(s)
}

// StringField reads m[key] as a string. Absent or null yields ("", false, true);
// a non-string value yields ("", false, false).
func StringField(m map[string]any, key string) (s string, present bool, isString bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", false, true
	}
	s, isString = v.(string)
	return s, true, isString
}
