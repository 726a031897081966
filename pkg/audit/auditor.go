// Package audit runs the seven-layer compliance check over a compiled
// document. The audit is advisory: it scores and recommends, it never
// blocks. Layers run isolated; a panicking or failing layer scores zero
// for that layer and leaves the others untouched.
package audit

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Smarticus81/psur-regos/pkg/contracts"
)

// Layer names, also the keys of the weight table and the result map.
const (
	LayerSectionStructure     = "section_structure"
	LayerObligationCoverage   = "obligation_coverage"
	LayerRequiredTables       = "required_tables"
	LayerEvidenceTypeMapping  = "evidence_type_mapping"
	LayerCalculationRules     = "calculation_rules"
	LayerNarrativeConstraints = "narrative_constraints"
	LayerDependencyChain      = "dependency_chain"
)

// DefaultWeights sums to 1.0. Obligation coverage and dependency chain
// carry the most weight: a document that skips obligations or was filled
// out of order is worse than one with a formatting defect.
func DefaultWeights() map[string]float64 {
	return map[string]float64{
		LayerSectionStructure:     0.10,
		LayerObligationCoverage:   0.25,
		LayerRequiredTables:       0.10,
		LayerEvidenceTypeMapping:  0.10,
		LayerCalculationRules:     0.15,
		LayerNarrativeConstraints: 0.10,
		LayerDependencyChain:      0.20,
	}
}

// RunContext is everything a layer may inspect. Layers must not mutate it.
type RunContext struct {
	Document *contracts.CompiledDocument
	Template *contracts.Template
	Coverage *contracts.CoverageSnapshot
	// Atoms resolves claimed evidence atom IDs.
	Atoms map[string]contracts.EvidenceAtom
	// Obligations resolves a slot's mapped obligation IDs to their
	// definitions, for the evidence-type mapping layer.
	Obligations map[string]contracts.Obligation
}

// slotByID returns the compiled slot with the given ID, if filled.
func (c *RunContext) slotByID(id string) (contracts.CompiledSlot, bool) {
	for _, s := range c.Document.Slots {
		if s.SlotID == id {
			return s, true
		}
	}
	return contracts.CompiledSlot{}, false
}

// Outcome is what a layer produces.
type Outcome struct {
	Score           float64
	Recommendations []string
	Warnings        []contracts.AuditWarning
	PassedChecks    []string
}

// Layer is one independent audit check.
type Layer interface {
	ID() string
	Name() string
	Run(ctx *RunContext) *Outcome
}

// Auditor runs all layers and aggregates a weighted overall score.
type Auditor struct {
	layers      []Layer
	weights     map[string]float64
	obligations map[string]contracts.Obligation
	clock       func() time.Time
	logger      *slog.Logger
}

// Option configures an Auditor.
type Option func(*Auditor)

// WithWeights replaces the default layer weight table.
func WithWeights(w map[string]float64) Option {
	return func(a *Auditor) { a.weights = w }
}

// WithClock overrides the clock for deterministic testing.
func WithClock(clock func() time.Time) Option {
	return func(a *Auditor) { a.clock = clock }
}

// WithLayers replaces the default layer set.
func WithLayers(layers ...Layer) Option {
	return func(a *Auditor) { a.layers = layers }
}

// NewAuditor creates an auditor with the standard seven layers over the
// registry's obligations.
func NewAuditor(obligations []contracts.Obligation, opts ...Option) *Auditor {
	a := &Auditor{
		obligations: make(map[string]contracts.Obligation, len(obligations)),
		layers: []Layer{
			&SectionStructureLayer{},
			&ObligationCoverageLayer{},
			&RequiredTablesLayer{},
			&EvidenceTypeMappingLayer{},
			&CalculationRulesLayer{},
			&NarrativeConstraintsLayer{},
			&DependencyChainLayer{},
		},
		weights: DefaultWeights(),
		clock:   time.Now,
		logger:  slog.Default().With("component", "audit"),
	}
	for _, ob := range obligations {
		a.obligations[ob.ObligationID] = ob
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Audit runs every layer against the document. A missing template
// contract is the one fatal condition; everything else, including an
// empty document, produces a complete low-score result.
func (a *Auditor) Audit(doc *contracts.CompiledDocument, tmpl *contracts.Template, snap *contracts.CoverageSnapshot, atoms map[string]contracts.EvidenceAtom) (*contracts.ComplianceAuditResult, error) {
	if tmpl == nil {
		return nil, fmt.Errorf("audit: template contract is required")
	}
	if doc == nil {
		doc = &contracts.CompiledDocument{TemplateID: tmpl.TemplateID}
	}

	ctx := &RunContext{Document: doc, Template: tmpl, Coverage: snap, Atoms: atoms, Obligations: a.obligations}
	result := &contracts.ComplianceAuditResult{
		AuditID:      uuid.NewString(),
		TemplateID:   tmpl.TemplateID,
		LayerResults: make(map[string]contracts.LayerResult, len(a.layers)),
		AuditedAt:    a.clock().UTC(),
	}

	var weighted, totalWeight float64
	for _, layer := range a.layers {
		outcome, layerErr := a.runIsolated(layer, ctx)

		lr := contracts.LayerResult{Layer: layer.ID()}
		if layerErr != nil {
			lr.Err = layerErr.Error()
			a.logger.Error("audit layer failed", "layer", layer.ID(), "error", layerErr)
		} else {
			lr.Score = outcome.Score
			lr.Recommendations = outcome.Recommendations
			result.Warnings = append(result.Warnings, outcome.Warnings...)
			result.PassedChecks = append(result.PassedChecks, outcome.PassedChecks...)
			result.Recommendations = append(result.Recommendations, outcome.Recommendations...)
		}
		result.LayerResults[layer.ID()] = lr

		w := a.weights[layer.ID()]
		weighted += lr.Score * w
		totalWeight += w
	}
	if totalWeight > 0 {
		result.OverallComplianceScore = weighted / totalWeight
	}

	sort.Strings(result.PassedChecks)
	sort.Strings(result.Recommendations)
	sort.Slice(result.Warnings, func(i, j int) bool {
		wi, wj := result.Warnings[i], result.Warnings[j]
		if wi.Category != wj.Category {
			return wi.Category < wj.Category
		}
		return wi.Message < wj.Message
	})

	a.logger.Info("audit complete",
		"template", tmpl.TemplateID,
		"score", result.OverallComplianceScore,
		"warnings", len(result.Warnings))
	return result, nil
}

// runIsolated converts a layer panic into a per-layer error.
func (a *Auditor) runIsolated(layer Layer, ctx *RunContext) (outcome *Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome = nil
			err = fmt.Errorf("layer %s panicked: %v", layer.ID(), r)
		}
	}()
	outcome = layer.Run(ctx)
	if outcome == nil {
		return nil, fmt.Errorf("layer %s returned no outcome", layer.ID())
	}
	return outcome, nil
}

// scoreRatio converts pass/total into a 0-100 score; an empty check set
// scores full marks.
func scoreRatio(passed, total int) float64 {
	if total == 0 {
		return 100
	}
	return float64(passed) / float64(total) * 100
}
