package template

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/Smarticus81/psur-regos/pkg/contracts"
)

// templateSchema is the structural schema template documents must satisfy
// before field-level checks run.
const templateSchema = `{
  "type": "object",
  "required": ["template_id", "sections", "slots"],
  "properties": {
    "template_id": {"type": "string", "minLength": 1},
    "name": {"type": "string"},
    "profile_id": {"type": "string"},
    "sections": {"type": "array"},
    "slots": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["slot_id", "slot_path", "slot_type", "requiredness"],
        "properties": {
          "slot_id": {"type": "string", "minLength": 1},
          "slot_path": {"type": "string", "minLength": 1},
          "slot_type": {"enum": ["narrative", "table", "key_value", "chart"]},
          "requiredness": {"enum": ["required", "required_if_applicable", "optional"]}
        }
      }
    },
    "required_tables": {"type": "array"},
    "calculation_rules": {"type": "array"},
    "narrative_rules": {"type": "array"}
  }
}`

var compiledTemplateSchema = jsonschema.MustCompileString(
	"https://schemas.psur-regos.local/template.schema.json", templateSchema)

// Load reads a YAML template document, validates it against the template
// schema, and returns the parsed template.
func Load(path string) (*contracts.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("template: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse validates and decodes raw YAML template bytes.
func Parse(data []byte) (*contracts.Template, error) {
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("template: parse YAML: %w", err)
	}

	// Round-trip through JSON so schema validation sees canonical types.
	jsonBytes, err := json.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("template: normalize document: %w", err)
	}
	var doc any
	if err := json.Unmarshal(jsonBytes, &doc); err != nil {
		return nil, fmt.Errorf("template: normalize document: %w", err)
	}

	if err := compiledTemplateSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("template: schema violation: %w", err)
	}

	var t contracts.Template
	if err := json.Unmarshal(jsonBytes, &t); err != nil {
		return nil, fmt.Errorf("template: decode: %w", err)
	}
	return &t, nil
}
