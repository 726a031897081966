// Package registry holds the versioned obligation/constraint definitions
// (the GRKB). The registry is an explicit value constructed once at startup
// and passed by reference into every computing component; there is no
// process-wide singleton.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"

	"github.com/Smarticus81/psur-regos/pkg/contracts"
)

// ErrObligationNotFound is returned by Lookup for unknown IDs.
var ErrObligationNotFound = errors.New("obligation not found")

// IntegrityError reports unresolved obligation references discovered at
// load time. It is fatal at startup, never deferred to request time.
type IntegrityError struct {
	Unresolved []string
}

// Error implements the error interface.
func (e *IntegrityError) Error() string {
	return fmt.Sprintf("registry integrity: %d unresolved obligation reference(s): %s",
		len(e.Unresolved), strings.Join(e.Unresolved, ", "))
}

// Registry is the thread-safe obligation registry.
type Registry struct {
	mu          sync.RWMutex
	obligations map[string]contracts.Obligation
	programs    *applicabilityPrograms
}

// New builds a registry from seed entries. Duplicate obligation IDs are
// resolved highest-semver-wins; a malformed version is a load error.
// Applicability expressions are compiled eagerly so a bad expression fails
// at startup.
func New(entries []contracts.Obligation) (*Registry, error) {
	obligations := make(map[string]contracts.Obligation, len(entries))
	versions := make(map[string]*semver.Version, len(entries))

	for _, ob := range entries {
		if ob.ObligationID == "" {
			return nil, fmt.Errorf("registry: seed entry with empty obligation ID")
		}
		v, err := semver.NewVersion(ob.Version)
		if err != nil {
			return nil, fmt.Errorf("registry: obligation %s: bad version %q: %w", ob.ObligationID, ob.Version, err)
		}
		if prev, ok := versions[ob.ObligationID]; ok && !v.GreaterThan(prev) {
			continue
		}
		obligations[ob.ObligationID] = ob
		versions[ob.ObligationID] = v
	}

	programs, err := compileApplicability(obligations)
	if err != nil {
		return nil, err
	}

	return &Registry{obligations: obligations, programs: programs}, nil
}

// Lookup returns the obligation for an ID, or ErrObligationNotFound.
func (r *Registry) Lookup(obligationID string) (contracts.Obligation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ob, ok := r.obligations[obligationID]
	if !ok {
		return contracts.Obligation{}, fmt.Errorf("%w: %s", ErrObligationNotFound, obligationID)
	}
	return ob, nil
}

// Has reports whether an obligation ID resolves.
func (r *Registry) Has(obligationID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.obligations[obligationID]
	return ok
}

// ListByJurisdiction returns obligations for a jurisdiction and artifact
// type, sorted by obligation ID for deterministic iteration.
func (r *Registry) ListByJurisdiction(jurisdiction, artifactType string) []contracts.Obligation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]contracts.Obligation, 0)
	for _, ob := range r.obligations {
		if ob.Jurisdiction == jurisdiction && ob.ArtifactType == artifactType {
			list = append(list, ob)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ObligationID < list[j].ObligationID })
	return list
}

// RequiredEvidenceTypes returns the required evidence types for an
// obligation.
func (r *Registry) RequiredEvidenceTypes(obligationID string) ([]string, error) {
	ob, err := r.Lookup(obligationID)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), ob.RequiredEvidenceTypes...), nil
}

// ApplicableForCase returns the obligations that apply to the case: the
// union over the case's jurisdictions for the given artifact type, filtered
// by each obligation's applicability expression. Result is sorted by
// obligation ID.
func (r *Registry) ApplicableForCase(c contracts.Case, artifactType string) ([]contracts.Obligation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	list := make([]contracts.Obligation, 0)
	for _, jurisdiction := range c.Jurisdictions {
		for _, ob := range r.obligations {
			if ob.Jurisdiction != jurisdiction || ob.ArtifactType != artifactType || seen[ob.ObligationID] {
				continue
			}
			applies, err := r.programs.Evaluate(ob.ObligationID, c)
			if err != nil {
				return nil, fmt.Errorf("registry: applicability for %s: %w", ob.ObligationID, err)
			}
			if !applies {
				continue
			}
			seen[ob.ObligationID] = true
			list = append(list, ob)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ObligationID < list[j].ObligationID })
	return list, nil
}

// All returns every obligation, sorted by ID.
func (r *Registry) All() []contracts.Obligation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]contracts.Obligation, 0, len(r.obligations))
	for _, ob := range r.obligations {
		list = append(list, ob)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ObligationID < list[j].ObligationID })
	return list
}

// VerifyIntegrity checks that every obligation ID referenced by the given
// templates resolves. A failure here is fatal at startup.
func (r *Registry) VerifyIntegrity(templates []contracts.Template) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var unresolved []string
	seen := make(map[string]bool)
	for _, tpl := range templates {
		for _, slot := range tpl.Slots {
			for _, m := range slot.MappedObligations {
				if _, ok := r.obligations[m.ObligationID]; !ok && !seen[m.ObligationID] {
					seen[m.ObligationID] = true
					unresolved = append(unresolved, fmt.Sprintf("%s (template %s, slot %s)", m.ObligationID, tpl.TemplateID, slot.SlotID))
				}
			}
		}
	}
	if len(unresolved) > 0 {
		sort.Strings(unresolved)
		return &IntegrityError{Unresolved: unresolved}
	}
	return nil
}
