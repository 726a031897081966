// Package evidence implements the EvidenceAtomBuilder: validation and
// canonicalization of raw payloads into content-addressed, immutable atoms.
//
// Validation is data-driven: a single table of required/optional fields per
// evidence type, compiled into JSON Schemas. There is deliberately no second
// hand-rolled validation path.
package evidence

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// FieldKind is the JSON type expected for a payload field.
type FieldKind string

const (
	KindString  FieldKind = "string"
	KindNumber  FieldKind = "number"
	KindInteger FieldKind = "integer"
	KindBoolean FieldKind = "boolean"
	KindArray   FieldKind = "array"
	KindObject  FieldKind = "object"
)

// FieldSpec declares one payload field.
type FieldSpec struct {
	Name     string    `json:"name" yaml:"name"`
	Kind     FieldKind `json:"kind" yaml:"kind"`
	Required bool      `json:"required" yaml:"required"`
}

// TypeSpec is the registered shape of one evidence type.
type TypeSpec struct {
	AtomType string      `json:"atom_type" yaml:"atom_type"`
	Fields   []FieldSpec `json:"fields" yaml:"fields"`
	// LogicalKeyFields identify the logical record for supersession
	// (e.g. complaint_id + device_code). Content hashing cannot detect
	// "same record, changed content"; the logical key can.
	LogicalKeyFields []string `json:"logical_key_fields,omitempty" yaml:"logical_key_fields,omitempty"`
}

// TypeRegistry holds the compiled validation schemas per evidence type.
// Unknown types fall back to a bare "payload must be a well-formed object"
// schema with no required-field check.
type TypeRegistry struct {
	specs    map[string]TypeSpec
	schemas  map[string]*jsonschema.Schema
	fallback *jsonschema.Schema
}

const schemaURLBase = "https://schemas.psur-regos.local/evidence/"

// NewTypeRegistry compiles the given type specs. Duplicate atom types are
// rejected.
func NewTypeRegistry(specs []TypeSpec) (*TypeRegistry, error) {
	r := &TypeRegistry{
		specs:   make(map[string]TypeSpec, len(specs)),
		schemas: make(map[string]*jsonschema.Schema, len(specs)),
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020

	fallbackURL := schemaURLBase + "_object.schema.json"
	if err := compiler.AddResource(fallbackURL, strings.NewReader(`{"type":"object"}`)); err != nil {
		return nil, fmt.Errorf("evidence: add fallback schema: %w", err)
	}

	for _, spec := range specs {
		if spec.AtomType == "" {
			return nil, fmt.Errorf("evidence: type spec with empty atom type")
		}
		if _, dup := r.specs[spec.AtomType]; dup {
			return nil, fmt.Errorf("evidence: duplicate type spec %q", spec.AtomType)
		}
		r.specs[spec.AtomType] = spec

		doc, err := schemaFor(spec)
		if err != nil {
			return nil, fmt.Errorf("evidence: build schema for %q: %w", spec.AtomType, err)
		}
		url := schemaURLBase + spec.AtomType + ".schema.json"
		if err := compiler.AddResource(url, strings.NewReader(doc)); err != nil {
			return nil, fmt.Errorf("evidence: add schema for %q: %w", spec.AtomType, err)
		}
	}

	fallback, err := compiler.Compile(fallbackURL)
	if err != nil {
		return nil, fmt.Errorf("evidence: compile fallback schema: %w", err)
	}
	r.fallback = fallback

	for atomType := range r.specs {
		compiled, err := compiler.Compile(schemaURLBase + atomType + ".schema.json")
		if err != nil {
			return nil, fmt.Errorf("evidence: compile schema for %q: %w", atomType, err)
		}
		r.schemas[atomType] = compiled
	}

	return r, nil
}

// schemaFor renders the JSON Schema document for one type spec.
func schemaFor(spec TypeSpec) (string, error) {
	properties := make(map[string]any, len(spec.Fields))
	required := make([]string, 0)
	for _, f := range spec.Fields {
		properties[f.Name] = map[string]any{"type": string(f.Kind)}
		if f.Required {
			required = append(required, f.Name)
		}
	}
	sort.Strings(required)

	doc := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		doc["required"] = required
	}

	b, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Spec returns the registered spec for an atom type.
func (r *TypeRegistry) Spec(atomType string) (TypeSpec, bool) {
	s, ok := r.specs[atomType]
	return s, ok
}

// SchemaFor returns the compiled schema for an atom type, or the bare
// object fallback for unknown types.
func (r *TypeRegistry) SchemaFor(atomType string) (*jsonschema.Schema, bool) {
	if s, ok := r.schemas[atomType]; ok {
		return s, true
	}
	return r.fallback, false
}

// Types returns all registered atom types in sorted order.
func (r *TypeRegistry) Types() []string {
	types := make([]string, 0, len(r.specs))
	for t := range r.specs {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// DefaultTypeSpecs returns the built-in evidence type table for PSUR
// reporting. Callers may extend or replace it via configuration.
func DefaultTypeSpecs() []TypeSpec {
	return []TypeSpec{
		{
			AtomType: "sales_volume",
			Fields: []FieldSpec{
				{Name: "device_code", Kind: KindString, Required: true},
				{Name: "region", Kind: KindString, Required: true},
				{Name: "quantity", Kind: KindNumber, Required: true},
				{Name: "units", Kind: KindString, Required: false},
			},
		},
		{
			AtomType: "complaint_record",
			Fields: []FieldSpec{
				{Name: "complaint_id", Kind: KindString, Required: true},
				{Name: "device_code", Kind: KindString, Required: true},
				{Name: "received_date", Kind: KindString, Required: true},
				{Name: "description", Kind: KindString, Required: true},
				{Name: "severity", Kind: KindString, Required: false},
				{Name: "outcome", Kind: KindString, Required: false},
			},
			LogicalKeyFields: []string{"complaint_id", "device_code"},
		},
		{
			AtomType: "complaints_aggregate",
			Fields: []FieldSpec{
				{Name: "device_code", Kind: KindString, Required: true},
				{Name: "total", Kind: KindInteger, Required: true},
				{Name: "by_severity", Kind: KindObject, Required: false},
			},
		},
		{
			AtomType: "incident_record",
			Fields: []FieldSpec{
				{Name: "incident_id", Kind: KindString, Required: true},
				{Name: "device_code", Kind: KindString, Required: true},
				{Name: "occurred_date", Kind: KindString, Required: true},
				{Name: "reportable", Kind: KindBoolean, Required: true},
				{Name: "description", Kind: KindString, Required: false},
			},
			LogicalKeyFields: []string{"incident_id", "device_code"},
		},
		{
			AtomType: "incidents_aggregate",
			Fields: []FieldSpec{
				{Name: "device_code", Kind: KindString, Required: true},
				{Name: "total", Kind: KindInteger, Required: true},
				{Name: "reportable_total", Kind: KindInteger, Required: false},
			},
		},
		{
			AtomType: "capa_record",
			Fields: []FieldSpec{
				{Name: "capa_id", Kind: KindString, Required: true},
				{Name: "status", Kind: KindString, Required: true},
				{Name: "opened_date", Kind: KindString, Required: true},
				{Name: "summary", Kind: KindString, Required: false},
			},
			LogicalKeyFields: []string{"capa_id"},
		},
		{
			AtomType: "literature_review",
			Fields: []FieldSpec{
				{Name: "search_date", Kind: KindString, Required: true},
				{Name: "databases", Kind: KindArray, Required: true},
				{Name: "findings", Kind: KindString, Required: false},
			},
		},
		{
			AtomType: "pms_activity",
			Fields: []FieldSpec{
				{Name: "activity", Kind: KindString, Required: true},
				{Name: "performed_date", Kind: KindString, Required: true},
				{Name: "outcome", Kind: KindString, Required: false},
			},
		},
		{
			AtomType: "device_registration",
			Fields: []FieldSpec{
				{Name: "device_code", Kind: KindString, Required: true},
				{Name: "basic_udi", Kind: KindString, Required: true},
				{Name: "risk_class", Kind: KindString, Required: false},
			},
		},
	}
}
