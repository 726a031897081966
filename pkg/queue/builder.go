// Package queue turns coverage gaps plus a template's slot definitions
// into a ranked, dependency-respecting work queue for generation agents.
// Queue builds are pure over their inputs: the same coverage snapshot and
// template always produce byte-identical ordered output.
package queue

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Smarticus81/psur-regos/pkg/contracts"
)

// Evidence tiers, ascending. Lower tiers are foundations the later tiers
// build on: a conclusions slot ranks after the safety data it interprets.
const (
	TierAdministrative = 0
	TierSales          = 1
	TierSafety         = 2
	TierExternal       = 3
	TierConclusions    = 4
)

// EvidenceTiers maps an evidence type to its ranking tier. The table is
// data the engine profile may override.
type EvidenceTiers map[string]int

// DefaultEvidenceTiers covers the built-in evidence types.
func DefaultEvidenceTiers() EvidenceTiers {
	return EvidenceTiers{
		"device_registration":  TierAdministrative,
		"sales_volume":         TierSales,
		"complaint_record":     TierSafety,
		"complaints_aggregate": TierSafety,
		"incident_record":      TierSafety,
		"incidents_aggregate":  TierSafety,
		"capa_record":          TierSafety,
		"literature_review":    TierExternal,
		"pms_activity":         TierExternal,
	}
}

// CycleError reports a dependency cycle in a template's slot graph.
// Cyclic slots are never silently dropped or arbitrarily ordered.
type CycleError struct {
	TemplateID string
	Members    []string
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	return fmt.Sprintf("queue: template %s: dependency cycle among slots: %s",
		e.TemplateID, strings.Join(e.Members, ", "))
}

// Builder constructs generation queues.
type Builder struct {
	tiers       EvidenceTiers
	obligations map[string]contracts.Obligation
}

// Option configures a Builder.
type Option func(*Builder)

// WithEvidenceTiers replaces the default tier table.
func WithEvidenceTiers(tiers EvidenceTiers) Option {
	return func(b *Builder) { b.tiers = tiers }
}

// NewBuilder creates a queue builder over the registry's obligations.
// Obligations are needed to resolve a slot's required evidence types and
// therefore its tier.
func NewBuilder(obligations []contracts.Obligation, opts ...Option) *Builder {
	b := &Builder{
		tiers:       DefaultEvidenceTiers(),
		obligations: make(map[string]contracts.Obligation, len(obligations)),
	}
	for _, ob := range obligations {
		b.obligations[ob.ObligationID] = ob
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build produces the ranked queue for a case. filledSlots names slots
// that already have generated content; a filled slot is re-emitted only
// while its mapped obligations remain unsatisfied.
//
// Emission: a slot is queued when its requiredness is required or
// required_if_applicable and either it is unfilled or at least one mapped
// obligation is not satisfied.
//
// Ordering keys, in priority order:
//  1. topological position: a slot never ranks before a slot it depends on
//  2. ascending evidence tier of the slot's obligations
//  3. requirement level: MUST and MUST_IF_APPLICABLE before SHOULD
//  4. lexicographic slot ID
func (b *Builder) Build(c contracts.Case, tmpl *contracts.Template, snap *contracts.CoverageSnapshot, filledSlots []string) (*contracts.GenerationQueue, error) {
	if tmpl == nil {
		return nil, fmt.Errorf("queue: case %s: template is required", c.CaseID)
	}
	if snap == nil {
		return nil, fmt.Errorf("queue: case %s: coverage snapshot is required", c.CaseID)
	}

	order, err := b.topoOrder(tmpl)
	if err != nil {
		return nil, err
	}

	filled := make(map[string]bool, len(filledSlots))
	for _, id := range filledSlots {
		filled[id] = true
	}

	satisfied, mandatoryTotal := snap.SatisfiedCount()
	q := &contracts.GenerationQueue{
		CaseID:                        c.CaseID,
		CaseReference:                 c.CaseReference,
		ProfileID:                     tmpl.ProfileID,
		MandatoryObligationsTotal:     mandatoryTotal,
		MandatoryObligationsSatisfied: satisfied,
		MandatoryObligationsRemaining: mandatoryTotal - satisfied,
	}

	slotByID := make(map[string]contracts.SlotSpec, len(tmpl.Slots))
	for _, s := range tmpl.Slots {
		slotByID[s.SlotID] = s
	}

	for _, slotID := range order {
		s := slotByID[slotID]
		if s.Requiredness != contracts.SlotRequired && s.Requiredness != contracts.SlotRequiredIfApplicable {
			continue
		}
		q.RequiredSlotsTotal++
		if filled[s.SlotID] {
			q.RequiredSlotsFilled++
		}
		if !b.shouldEmit(s, snap, filled) {
			continue
		}
		item := b.buildItem(s, snap)
		item.Rank = len(q.Queue)
		q.Queue = append(q.Queue, item)
	}
	q.RequiredSlotsRemaining = q.RequiredSlotsTotal - q.RequiredSlotsFilled

	return q, nil
}

// shouldEmit applies the emission rule to one slot.
func (b *Builder) shouldEmit(s contracts.SlotSpec, snap *contracts.CoverageSnapshot, filled map[string]bool) bool {
	if !filled[s.SlotID] {
		return true
	}
	for _, m := range s.MappedObligations {
		if oc, ok := snap.Obligations[m.ObligationID]; ok && oc.Status != contracts.StatusSatisfied {
			return true
		}
	}
	return false
}

// topoOrder runs Kahn's algorithm over the full slot graph. Among ready
// slots, selection follows the (tier, requirement level, slot ID) keys, so
// the resulting sequence is the unique order satisfying all four ranking
// keys. Dependency edges point from prerequisite to dependent.
func (b *Builder) topoOrder(tmpl *contracts.Template) ([]string, error) {
	indegree := make(map[string]int, len(tmpl.Slots))
	dependents := make(map[string][]string, len(tmpl.Slots))
	for _, s := range tmpl.Slots {
		indegree[s.SlotID] = 0
	}
	for _, s := range tmpl.Slots {
		deps := append(append([]string(nil), s.Dependencies.MustFillBefore...), s.Dependencies.MustHaveEvidenceBefore...)
		seen := make(map[string]bool, len(deps))
		for _, dep := range deps {
			if seen[dep] || dep == s.SlotID {
				continue
			}
			seen[dep] = true
			indegree[s.SlotID]++
			dependents[dep] = append(dependents[dep], s.SlotID)
		}
	}

	slotByID := make(map[string]contracts.SlotSpec, len(tmpl.Slots))
	for _, s := range tmpl.Slots {
		slotByID[s.SlotID] = s
	}

	var ready []string
	for _, s := range tmpl.Slots {
		if indegree[s.SlotID] == 0 {
			ready = append(ready, s.SlotID)
		}
	}

	less := func(a, bID string) bool {
		sa, sb := slotByID[a], slotByID[bID]
		ta, tb := b.slotTier(sa), b.slotTier(sb)
		if ta != tb {
			return ta < tb
		}
		la, lb := levelRank(sa), levelRank(sb)
		if la != lb {
			return la < lb
		}
		return a < bID
	}

	order := make([]string, 0, len(tmpl.Slots))
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return less(ready[i], ready[j]) })
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)
		for _, dep := range dependents[next] {
			indegree[dep]--
			if indegree[dep] == 0 {
				ready = append(ready, dep)
			}
		}
	}

	if len(order) < len(tmpl.Slots) {
		var members []string
		for id, deg := range indegree {
			if deg > 0 {
				members = append(members, id)
			}
		}
		sort.Strings(members)
		return nil, &CycleError{TemplateID: tmpl.TemplateID, Members: members}
	}
	return order, nil
}

// slotTier is the highest tier across the slot's obligations' required
// evidence types. Slots whose obligations require no evidence (synthesis
// slots such as benefit-risk conclusions) get the conclusions tier.
func (b *Builder) slotTier(s contracts.SlotSpec) int {
	tier := -1
	for _, m := range s.MappedObligations {
		ob, ok := b.obligations[m.ObligationID]
		if !ok {
			continue
		}
		for _, et := range ob.RequiredEvidenceTypes {
			if t, ok := b.tiers[et]; ok && t > tier {
				tier = t
			}
		}
	}
	if tier < 0 {
		return TierConclusions
	}
	return tier
}

// levelRank orders MUST and MUST_IF_APPLICABLE before SHOULD. The slot's
// level is the strongest among its obligation mappings.
func levelRank(s contracts.SlotSpec) int {
	rank := 1
	for _, m := range s.MappedObligations {
		if m.RequirementLevel == contracts.LevelMust || m.RequirementLevel == contracts.LevelMustIfApplicable {
			rank = 0
		}
	}
	return rank
}

// buildItem assembles one queue item, enriching the slot's obligation
// mappings with their current coverage state.
func (b *Builder) buildItem(s contracts.SlotSpec, snap *contracts.CoverageSnapshot) contracts.QueueSlotItem {
	item := contracts.QueueSlotItem{
		SlotID:             s.SlotID,
		SlotPath:           s.SlotPath,
		SlotType:           s.SlotType,
		Requiredness:       s.Requiredness,
		GenerationContract: s.GenerationContract,
		Dependencies:       s.Dependencies,
		RecommendedAgents:  s.RecommendedAgents,
		AcceptanceCriteria: s.AcceptanceCriteria,
		EvidenceTier:       b.slotTier(s),
	}

	req := item.EvidenceRequirements
	seenType := make(map[string]bool)
	for _, m := range s.MappedObligations {
		mapped := contracts.MappedObligation{
			ObligationID:     m.ObligationID,
			RequirementLevel: m.RequirementLevel,
		}
		if oc, ok := snap.Obligations[m.ObligationID]; ok {
			mapped.Status = oc.Status
			mapped.WhyUnsatisfied = oc.WhyUnsatisfied
			for _, tc := range oc.Types {
				if seenType[tc.EvidenceType] {
					continue
				}
				seenType[tc.EvidenceType] = true
				req.RequiredTypes = append(req.RequiredTypes, tc.EvidenceType)
				if req.Coverage == nil {
					req.Coverage = make(map[string]contracts.TypeClassification)
					req.AtomCounts = make(map[string]contracts.TypeCounts)
				}
				req.Coverage[tc.EvidenceType] = tc.Classification
				req.AtomCounts[tc.EvidenceType] = contracts.TypeCounts{Total: tc.AtomCount, InPeriod: tc.InPeriodCount}
				if tc.Classification == contracts.CoverageNone {
					req.MissingTypes = append(req.MissingTypes, tc.EvidenceType)
				} else {
					req.AvailableTypes = append(req.AvailableTypes, tc.EvidenceType)
				}
			}
		}
		item.MappedObligations = append(item.MappedObligations, mapped)
	}
	sort.Strings(req.RequiredTypes)
	sort.Strings(req.AvailableTypes)
	sort.Strings(req.MissingTypes)
	item.EvidenceRequirements = req

	return item
}
