package contracts

// ObligationKind distinguishes hard obligations from advisory constraints.
// Constraints never block case qualification; they only warn.
type ObligationKind string

const (
	KindObligation ObligationKind = "obligation"
	KindConstraint ObligationKind = "constraint"
)

// Obligation is a versioned regulatory requirement tied to a jurisdiction.
// ObligationID is globally unique and authority-namespaced,
// e.g. "EU-MDR-2017-745:ART-86:1a".
type Obligation struct {
	ObligationID          string         `json:"obligation_id"`
	Jurisdiction          string         `json:"jurisdiction"`
	ArtifactType          string         `json:"artifact_type"`
	Kind                  ObligationKind `json:"kind"`
	Title                 string         `json:"title"`
	Text                  string         `json:"text"`
	SourceCitation        string         `json:"source_citation"`
	Version               string         `json:"version"`
	Mandatory             bool           `json:"mandatory"`
	RequiredEvidenceTypes []string       `json:"required_evidence_types"`
	// Applicability is an optional CEL expression evaluated against the
	// case context (device scope, jurisdictions). Empty means always
	// applicable.
	Applicability string `json:"applicability,omitempty"`
}

// Case is the reporting unit a coverage computation runs against.
type Case struct {
	CaseID        string   `json:"case_id"`
	CaseReference string   `json:"case_reference"`
	Period        Period   `json:"period"`
	TemplateID    string   `json:"template_id"`
	Jurisdictions []string `json:"jurisdictions"`
	DeviceScope   []string `json:"device_scope"`
}
