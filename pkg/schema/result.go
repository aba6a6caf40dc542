package schema

import (
	"strings"
	"time"
)

// Status is the outcome of schema validation.
type Status string

const (
	StatusValid            Status = "VALID"
	StatusInvalid          Status = "INVALID"
	StatusUnknownSchema    Status = "UNKNOWN_SCHEMA"
	StatusMissingSchemaRef Status = "MISSING_SCHEMA_REF"
)

// ValidationError is one field-level defect.
type ValidationError struct {
	FieldPath string `json:"field_path"`
	Message   string `json:"message"`
	Expected  string `json:"expected,omitempty"`
	Actual    string `json:"actual,omitempty"`
}

func (e ValidationError) String() string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(e.FieldPath)
	b.WriteString("] ")
	b.WriteString(e.Message)
	if e.Expected != "" {
		b.WriteString(" expected=")
		b.WriteString(e.Expected)
	}
	if e.Actual != "" {
		b.WriteString(" actual=")
		b.WriteString(e.Actual)
	}
	return b.String()
}

// Result is produced once per validation and must not be modified.
type Result struct {
	Status      Status            `json:"status"`
	SchemaID    string            `json:"schema_id"`
	PacID       string            `json:"pac_id"`
	Errors      []ValidationError `json:"errors"`
	SchemaHash  string            `json:"schema_hash,omitempty"`
	ValidatedAt time.Time         `json:"validated_at"`
}

// Valid reports whether the status is VALID.
func (r *Result) Valid() bool { return r != nil && r.Status == StatusValid }

// ErrorCount returns the number of accumulated errors.
func (r *Result) ErrorCount() int {
	if r == nil {
		return 0
	}
	return len(r.Errors)
}

// ErrorStrings renders every error.
func (r *Result) ErrorStrings() []string {
	if r == nil {
		return nil
	}
	out := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		out[i] = e.String()
	}
	return out
}
