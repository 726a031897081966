// Package template manages report templates: the slot definitions the
// queue builder consumes and the structural contract the auditor checks
// compiled documents against.
package template

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Smarticus81/psur-regos/pkg/contracts"
)

// Registry manages the set of available report templates.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]*contracts.Template
}

// NewRegistry creates an empty template registry.
func NewRegistry() *Registry {
	return &Registry{templates: make(map[string]*contracts.Template)}
}

// Register validates and adds a template. Structural defects (duplicate
// slot IDs, dependency references to unknown slots) are load errors.
func (r *Registry) Register(t *contracts.Template) error {
	if t == nil || t.TemplateID == "" {
		return fmt.Errorf("template: nil or unidentified template")
	}
	if err := validateStructure(t); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[t.TemplateID] = t
	return nil
}

// Get retrieves a template by ID.
func (r *Registry) Get(id string) (*contracts.Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.templates[id]; ok {
		return t, nil
	}
	return nil, fmt.Errorf("template %s not found", id)
}

// List returns all templates sorted by ID.
func (r *Registry) List() []*contracts.Template {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]*contracts.Template, 0, len(r.templates))
	for _, t := range r.templates {
		list = append(list, t)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].TemplateID < list[j].TemplateID })
	return list
}

// validateStructure checks slot ID uniqueness and dependency resolution.
// Cycle detection is deliberately left to the queue builder, which names
// the cycle members.
func validateStructure(t *contracts.Template) error {
	slots := make(map[string]bool, len(t.Slots))
	for _, s := range t.Slots {
		if s.SlotID == "" {
			return fmt.Errorf("template %s: slot with empty ID", t.TemplateID)
		}
		if slots[s.SlotID] {
			return fmt.Errorf("template %s: duplicate slot ID %s", t.TemplateID, s.SlotID)
		}
		slots[s.SlotID] = true
	}

	for _, s := range t.Slots {
		for _, dep := range s.Dependencies.MustFillBefore {
			if !slots[dep] {
				return fmt.Errorf("template %s: slot %s depends on unknown slot %s", t.TemplateID, s.SlotID, dep)
			}
		}
		for _, dep := range s.Dependencies.MustHaveEvidenceBefore {
			if !slots[dep] {
				return fmt.Errorf("template %s: slot %s requires evidence of unknown slot %s", t.TemplateID, s.SlotID, dep)
			}
		}
	}

	for _, tbl := range t.RequiredTables {
		if !slots[tbl.SlotID] {
			return fmt.Errorf("template %s: table %s targets unknown slot %s", t.TemplateID, tbl.TableID, tbl.SlotID)
		}
	}
	for _, rule := range t.CalculationRules {
		if !slots[rule.SlotID] {
			return fmt.Errorf("template %s: calculation rule %s targets unknown slot %s", t.TemplateID, rule.RuleID, rule.SlotID)
		}
	}
	for _, rule := range t.NarrativeRules {
		if !slots[rule.SlotID] {
			return fmt.Errorf("template %s: narrative rule targets unknown slot %s", t.TemplateID, rule.SlotID)
		}
	}
	return nil
}
