package contracts

// MappedObligation is a slot's obligation mapping enriched with the
// obligation's current coverage state.
type MappedObligation struct {
	ObligationID     string           `json:"obligation_id"`
	RequirementLevel RequirementLevel `json:"requirement_level"`
	Status           CoverageStatus   `json:"status"`
	WhyUnsatisfied   []string         `json:"why_unsatisfied,omitempty"`
}

// TypeCounts are per-evidence-type atom tallies carried on a queue item.
type TypeCounts struct {
	Total    int `json:"total"`
	InPeriod int `json:"in_period"`
}

// EvidenceRequirements summarizes the evidence state behind a slot.
type EvidenceRequirements struct {
	RequiredTypes  []string                      `json:"required_types"`
	AvailableTypes []string                      `json:"available_types,omitempty"`
	MissingTypes   []string                      `json:"missing_types,omitempty"`
	Coverage       map[string]TypeClassification `json:"coverage,omitempty"`
	AtomCounts     map[string]TypeCounts         `json:"atom_counts,omitempty"`
}

// QueueSlotItem is one unit of pending generation work. Items are
// ephemeral: each queue build recomputes them from the current coverage
// snapshot, they are never mutated in place.
type QueueSlotItem struct {
	SlotID               string               `json:"slot_id"`
	SlotPath             string               `json:"slot_path"`
	SlotType             SlotType             `json:"slot_type"`
	Requiredness         SlotRequiredness     `json:"requiredness"`
	MappedObligations    []MappedObligation   `json:"mapped_obligations,omitempty"`
	EvidenceRequirements EvidenceRequirements `json:"evidence_requirements"`
	GenerationContract   GenerationContract   `json:"generation_contract"`
	Dependencies         SlotDependencies     `json:"dependencies"`
	RecommendedAgents    []string             `json:"recommended_agents,omitempty"`
	AcceptanceCriteria   []string             `json:"acceptance_criteria,omitempty"`
	// Rank is the item's position in the deterministic total order.
	Rank int `json:"rank"`
	// EvidenceTier is the ranking tier derived from the slot's
	// obligations (administrative=0 ... conclusions=4).
	EvidenceTier int `json:"evidence_tier"`
}

// GenerationQueue is the ranked queue plus its summary counters.
type GenerationQueue struct {
	CaseID                        string          `json:"case_id"`
	CaseReference                 string          `json:"case_reference"`
	ProfileID                     string          `json:"profile_id"`
	MandatoryObligationsTotal     int             `json:"mandatory_obligations_total"`
	MandatoryObligationsSatisfied int             `json:"mandatory_obligations_satisfied"`
	MandatoryObligationsRemaining int             `json:"mandatory_obligations_remaining"`
	RequiredSlotsTotal            int             `json:"required_slots_total"`
	RequiredSlotsFilled           int             `json:"required_slots_filled"`
	RequiredSlotsRemaining        int             `json:"required_slots_remaining"`
	Queue                         []QueueSlotItem `json:"queue"`
}

// SlotProposal is what a generation agent returns for one slot. The
// proposal contract rejects proposals missing content, evidence atom IDs,
// claimed obligation IDs, or a method statement of at least 10 characters.
type SlotProposal struct {
	SlotID               string   `json:"slot_id"`
	Content              string   `json:"content"`
	EvidenceAtomIDs      []string `json:"evidence_atom_ids"`
	ClaimedObligationIDs []string `json:"claimed_obligation_ids"`
	MethodStatement      string   `json:"method_statement"`
}
