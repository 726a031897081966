package contracts

import (
	"fmt"
	"strings"
)

// ValidationError is a structural field issue. Validation errors are
// collected and returned as values, never thrown; a batch caller gets
// per-row lists so one bad row cannot abort the batch.
type ValidationError struct {
	// Path is a JSON-pointer-style location, e.g. "/payload/quantity".
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Path, e.Message, e.Code)
}

// Validation error codes.
const (
	CodeMissingField     = "missing_field"
	CodeWrongType        = "wrong_type"
	CodeEmptyValue       = "empty_value"
	CodeUnknownField     = "unknown_field"
	CodeBadPeriod        = "bad_period"
	CodeSchemaViolation  = "schema_violation"
	CodeUnknownReference = "unknown_reference"
)

// ValidationErrors is a collected list with helpers for result objects.
type ValidationErrors []ValidationError

// OK reports whether the list is empty.
func (v ValidationErrors) OK() bool { return len(v) == 0 }

// Error joins all messages; useful only for logging, not control flow.
func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "; ")
}

// Add appends an error and returns the extended list.
func (v ValidationErrors) Add(path, code, message string) ValidationErrors {
	return append(v, ValidationError{Path: path, Code: code, Message: message})
}
