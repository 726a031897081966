package contracts

// SlotRequiredness declares whether a template slot must be filled.
type SlotRequiredness string

const (
	SlotRequired             SlotRequiredness = "required"
	SlotRequiredIfApplicable SlotRequiredness = "required_if_applicable"
	SlotOptional             SlotRequiredness = "optional"
)

// RequirementLevel is the strength of an obligation mapping on a slot.
type RequirementLevel string

const (
	LevelMust             RequirementLevel = "MUST"
	LevelMustIfApplicable RequirementLevel = "MUST_IF_APPLICABLE"
	LevelShould           RequirementLevel = "SHOULD"
)

// SlotType identifies what kind of content a slot expects.
type SlotType string

const (
	SlotNarrative SlotType = "narrative"
	SlotTable     SlotType = "table"
	SlotKeyValue  SlotType = "key_value"
	SlotChart     SlotType = "chart"
)

// Template is a report template: the structural contract a compiled
// document is audited against plus the slot definitions the queue builder
// consumes.
type Template struct {
	TemplateID       string            `json:"template_id"`
	Name             string            `json:"name"`
	ProfileID        string            `json:"profile_id"`
	Sections         []SectionSpec     `json:"sections"`
	Slots            []SlotSpec        `json:"slots"`
	RequiredTables   []TableContract   `json:"required_tables,omitempty"`
	CalculationRules []CalculationRule `json:"calculation_rules,omitempty"`
	NarrativeRules   []NarrativeRule   `json:"narrative_rules,omitempty"`
}

// SectionSpec is one node of the ordered section tree.
type SectionSpec struct {
	SectionID   string        `json:"section_id"`
	Title       string        `json:"title"`
	Required    bool          `json:"required"`
	Subsections []SectionSpec `json:"subsections,omitempty"`
}

// SlotObligationMapping binds a slot to an obligation at a given strength.
type SlotObligationMapping struct {
	ObligationID     string           `json:"obligation_id"`
	RequirementLevel RequirementLevel `json:"requirement_level"`
}

// SlotSpec declares one placeholder in the template.
type SlotSpec struct {
	SlotID             string                  `json:"slot_id"`
	SlotPath           string                  `json:"slot_path"`
	SlotType           SlotType                `json:"slot_type"`
	Requiredness       SlotRequiredness        `json:"requiredness"`
	MappedObligations  []SlotObligationMapping `json:"mapped_obligations,omitempty"`
	GenerationContract GenerationContract      `json:"generation_contract"`
	Dependencies       SlotDependencies        `json:"dependencies"`
	RecommendedAgents  []string                `json:"recommended_agents,omitempty"`
	AcceptanceCriteria []string                `json:"acceptance_criteria,omitempty"`
}

// GenerationContract constrains what a generation agent may do with the
// evidence behind a slot.
type GenerationContract struct {
	AllowedTransformations   []string `json:"allowed_transformations,omitempty"`
	ForbiddenTransformations []string `json:"forbidden_transformations,omitempty"`
	MustInclude              []string `json:"must_include,omitempty"`
	TraceGranularity         string   `json:"trace_granularity,omitempty"` // "atom", "aggregate", "none"
}

// SlotDependencies lists the prerequisites of a slot. Entries are slot IDs
// that must be handled before this slot.
type SlotDependencies struct {
	MustFillBefore         []string `json:"must_fill_before,omitempty"`
	MustHaveEvidenceBefore []string `json:"must_have_evidence_before,omitempty"`
}

// TableContract mandates a table with specific columns in a slot.
type TableContract struct {
	TableID         string   `json:"table_id"`
	SlotID          string   `json:"slot_id"`
	RequiredColumns []string `json:"required_columns"`
}

// CalculationRule declares a derived numeric value that the auditor
// independently recomputes from evidence aggregates.
type CalculationRule struct {
	RuleID           string  `json:"rule_id"`
	SlotID           string  `json:"slot_id"`
	TargetField      string  `json:"target_field"`
	Operation        string  `json:"operation"` // "rate_per_unit", "ratio", "sum"
	NumeratorType    string  `json:"numerator_type"`
	NumeratorField   string  `json:"numerator_field"`
	DenominatorType  string  `json:"denominator_type,omitempty"`
	DenominatorField string  `json:"denominator_field,omitempty"`
	ScaleFactor      float64 `json:"scale_factor,omitempty"`
	TolerancePct     float64 `json:"tolerance_pct,omitempty"`
}

// NarrativeRule bounds the text content of a narrative slot.
type NarrativeRule struct {
	SlotID           string   `json:"slot_id"`
	MinLength        int      `json:"min_length,omitempty"`
	MaxLength        int      `json:"max_length,omitempty"`
	ForbiddenPhrases []string `json:"forbidden_phrases,omitempty"`
	MandatoryTerms   []string `json:"mandatory_terms,omitempty"`
}
