package evidence

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/Smarticus81/psur-regos/pkg/canonicalize"
	"github.com/Smarticus81/psur-regos/pkg/contracts"
)

// Input is one raw evidence payload to canonicalize.
type Input struct {
	AtomType   string               `json:"atom_type"`
	Payload    map[string]any       `json:"payload"`
	Provenance contracts.Provenance `json:"provenance"`
	DeviceRef  string               `json:"device_ref,omitempty"`
	PSURPeriod *contracts.Period    `json:"psur_period,omitempty"`
}

// Result pairs the built atom with its collected validation errors.
// Errors are returned, never thrown: a caller ingesting many rows gets
// per-row results and one bad row cannot abort the batch.
type Result struct {
	Atom   *contracts.EvidenceAtom   `json:"atom"`
	Errors contracts.ValidationErrors `json:"errors,omitempty"`
}

// Builder canonicalizes raw payloads into evidence atoms. It is a pure
// function over its inputs and safe for concurrent use; persistence is the
// caller's concern.
type Builder struct {
	types *TypeRegistry
	clock func() time.Time
}

// NewBuilder creates a builder over the given type registry.
func NewBuilder(types *TypeRegistry) *Builder {
	return &Builder{types: types, clock: time.Now}
}

// WithClock overrides the clock for deterministic testing.
func (b *Builder) WithClock(clock func() time.Time) *Builder {
	b.clock = clock
	return b
}

// Build validates, canonicalizes, and content-addresses one input.
// The atom is always returned; Status is "invalid" when any structural
// error exists.
func (b *Builder) Build(in Input) Result {
	var errs contracts.ValidationErrors

	if in.AtomType == "" {
		errs = errs.Add("/atom_type", contracts.CodeEmptyValue, "atom type is required")
	}
	if in.Payload == nil {
		errs = errs.Add("/payload", contracts.CodeMissingField, "payload must be a well-formed object")
	}
	if in.Provenance.SourceSystem == "" {
		errs = errs.Add("/provenance/source_system", contracts.CodeEmptyValue, "source system is required")
	}
	if in.PSURPeriod != nil && !in.PSURPeriod.Valid() {
		errs = errs.Add("/psur_period", contracts.CodeBadPeriod, "period start must not be after end")
	}

	if in.Payload != nil && in.AtomType != "" {
		schema, _ := b.types.SchemaFor(in.AtomType)
		if err := schema.Validate(normalize(in.Payload)); err != nil {
			errs = append(errs, schemaErrors(err)...)
		}
	}

	atom := &contracts.EvidenceAtom{
		AtomType:   in.AtomType,
		Payload:    in.Payload,
		DeviceRef:  in.DeviceRef,
		PSURPeriod: in.PSURPeriod,
		Provenance: in.Provenance,
		Status:     contracts.AtomStatusValid,
		Version:    1,
		CreatedAt:  b.clock().UTC(),
	}

	if in.Payload != nil && in.AtomType != "" {
		hash, err := canonicalize.CanonicalHash(in.Payload)
		if err != nil {
			errs = errs.Add("/payload", contracts.CodeSchemaViolation, fmt.Sprintf("payload not canonicalizable: %v", err))
		} else {
			atom.ContentHash = hash
			atom.AtomID = in.AtomType + ":" + hash
		}
	}

	if spec, ok := b.types.Spec(in.AtomType); ok {
		atom.LogicalKey = logicalKey(spec, in.Payload)
	}

	if len(errs) > 0 {
		atom.Status = contracts.AtomStatusInvalid
	}

	return Result{Atom: atom, Errors: errs}
}

// BuildAll maps Build over a batch. Result order matches input order.
func (b *Builder) BuildAll(inputs []Input) []Result {
	results := make([]Result, len(inputs))
	for i, in := range inputs {
		results[i] = b.Build(in)
	}
	return results
}

// logicalKey derives the supersession key for a payload, or "" when the
// type declares no logical key fields or a field is absent.
func logicalKey(spec TypeSpec, payload map[string]any) string {
	if len(spec.LogicalKeyFields) == 0 || payload == nil {
		return ""
	}
	parts := make([]string, 0, len(spec.LogicalKeyFields)+1)
	parts = append(parts, spec.AtomType)
	for _, field := range spec.LogicalKeyFields {
		v, ok := payload[field]
		if !ok {
			return ""
		}
		parts = append(parts, fmt.Sprintf("%v", v))
	}
	return strings.Join(parts, "|")
}

// normalize rewrites the payload through generic JSON types so schema
// validation sees the same shapes regardless of how the map was built.
func normalize(payload map[string]any) any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case float32:
		return float64(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalizeValue(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = normalizeValue(e)
		}
		return out
	default:
		return v
	}
}

// schemaErrors flattens a jsonschema validation error into field-level
// validation errors with /payload-prefixed JSON pointers.
func schemaErrors(err error) contracts.ValidationErrors {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return contracts.ValidationErrors{{
			Path:    "/payload",
			Code:    contracts.CodeSchemaViolation,
			Message: err.Error(),
		}}
	}

	var errs contracts.ValidationErrors
	for _, leaf := range leafCauses(ve) {
		code := codeFor(leaf)
		if names := missingProperties(leaf.Message); code == contracts.CodeMissingField && len(names) > 0 {
			// The "required" keyword reports at the object root; split it
			// into one pointer per missing property.
			for _, name := range names {
				errs = append(errs, contracts.ValidationError{
					Path:    "/payload" + leaf.InstanceLocation + "/" + name,
					Code:    code,
					Message: fmt.Sprintf("required field %q is missing", name),
				})
			}
			continue
		}
		errs = append(errs, contracts.ValidationError{
			Path:    "/payload" + leaf.InstanceLocation,
			Code:    code,
			Message: leaf.Message,
		})
	}
	return errs
}

var missingPropRe = regexp.MustCompile(`'([^']+)'`)

// missingProperties extracts property names from a "missing properties"
// message.
func missingProperties(message string) []string {
	matches := missingPropRe.FindAllStringSubmatch(message, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}

// leafCauses walks to the most specific causes of a validation error.
func leafCauses(ve *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*jsonschema.ValidationError{ve}
	}
	var leaves []*jsonschema.ValidationError
	for _, c := range ve.Causes {
		leaves = append(leaves, leafCauses(c)...)
	}
	return leaves
}

func codeFor(ve *jsonschema.ValidationError) string {
	switch {
	case strings.Contains(ve.KeywordLocation, "required"):
		return contracts.CodeMissingField
	case strings.Contains(ve.KeywordLocation, "type"):
		return contracts.CodeWrongType
	default:
		return contracts.CodeSchemaViolation
	}
}
