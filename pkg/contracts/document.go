package contracts

import "time"

// CompiledDocument is the assembled report the auditor inspects: a section
// tree plus filled slot contents with their claimed evidence atom IDs.
type CompiledDocument struct {
	TemplateID string            `json:"template_id"`
	CaseID     string            `json:"case_id"`
	Sections   []CompiledSection `json:"sections"`
	Slots      []CompiledSlot    `json:"slots"`
	CompiledAt time.Time         `json:"compiled_at"`
}

// CompiledSection is one rendered section, in document order.
type CompiledSection struct {
	SectionID   string            `json:"section_id"`
	Title       string            `json:"title"`
	Subsections []CompiledSection `json:"subsections,omitempty"`
}

// TableContent is rendered tabular slot content.
type TableContent struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// CompiledSlot is one filled slot. FilledSeq records the order in which
// slots were generated; the dependency-chain audit layer checks it against
// the declared prerequisites.
type CompiledSlot struct {
	SlotID          string             `json:"slot_id"`
	Content         string             `json:"content,omitempty"`
	Table           *TableContent      `json:"table,omitempty"`
	Values          map[string]float64 `json:"values,omitempty"`
	EvidenceAtomIDs []string           `json:"evidence_atom_ids,omitempty"`
	FilledSeq       int                `json:"filled_seq"`
	FilledAt        time.Time          `json:"filled_at,omitempty"`
}

// WarnLevel grades an audit warning.
type WarnLevel string

const (
	WarnInfo     WarnLevel = "INFO"
	WarnWarning  WarnLevel = "WARNING"
	WarnCritical WarnLevel = "CRITICAL"
)

// AuditWarning is one advisory finding from an audit layer.
type AuditWarning struct {
	Level       WarnLevel `json:"level"`
	Category    string    `json:"category"`
	Message     string    `json:"message"`
	Remediation string    `json:"remediation,omitempty"`
	Impact      string    `json:"impact,omitempty"`
}

// LayerResult is the outcome of one audit layer. Err is set when the layer
// itself failed; the failure degrades only this layer.
type LayerResult struct {
	Layer           string   `json:"layer"`
	Score           float64  `json:"score"`
	Recommendations []string `json:"recommendations,omitempty"`
	Err             string   `json:"error,omitempty"`
}

// ComplianceAuditResult is one complete audit run. The audit is advisory:
// it never blocks export, and an empty document yields a low score rather
// than an error.
type ComplianceAuditResult struct {
	AuditID                string                 `json:"audit_id"`
	TemplateID             string                 `json:"template_id"`
	OverallComplianceScore float64                `json:"overall_compliance_score"`
	LayerResults           map[string]LayerResult `json:"layer_results"`
	PassedChecks           []string               `json:"passed_checks,omitempty"`
	Warnings               []AuditWarning         `json:"warnings,omitempty"`
	Recommendations        []string               `json:"recommendations,omitempty"`
	AuditedAt              time.Time              `json:"audited_at"`
}
