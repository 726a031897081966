package store

import (
	"context"
	"sort"
	"sync"

	"github.com/Smarticus81/psur-regos/pkg/contracts"
)

// MemoryAtomStore is the in-process store used by tests and the CLI's
// one-shot commands.
type MemoryAtomStore struct {
	mu    sync.RWMutex
	atoms map[string]contracts.EvidenceAtom
	// logical maps atom_type + "\x00" + logical_key to the current atom ID.
	logical map[string]string
}

// NewMemoryAtomStore creates an empty in-memory store.
func NewMemoryAtomStore() *MemoryAtomStore {
	return &MemoryAtomStore{
		atoms:   make(map[string]contracts.EvidenceAtom),
		logical: make(map[string]string),
	}
}

func logicalIndexKey(atomType, logicalKey string) string {
	return atomType + "\x00" + logicalKey
}

// Put implements AtomStore.
func (s *MemoryAtomStore) Put(_ context.Context, atom contracts.EvidenceAtom) (PutResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.atoms[atom.AtomID]; exists {
		return PutResult{Created: false}, nil
	}

	var result PutResult
	result.Created = true

	if atom.LogicalKey != "" {
		key := logicalIndexKey(atom.AtomType, atom.LogicalKey)
		if priorID, ok := s.logical[key]; ok && priorID != atom.AtomID {
			prior := s.atoms[priorID]
			if prior.Status == contracts.AtomStatusValid {
				prior.Status = contracts.AtomStatusSuperseded
				prior.SupersededBy = atom.AtomID
				s.atoms[priorID] = prior
				result.SupersededAtomID = priorID
			}
		}
		s.logical[key] = atom.AtomID
	}

	s.atoms[atom.AtomID] = atom
	return result, nil
}

// Get implements AtomStore.
func (s *MemoryAtomStore) Get(_ context.Context, atomID string) (contracts.EvidenceAtom, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	atom, ok := s.atoms[atomID]
	if !ok {
		return contracts.EvidenceAtom{}, ErrAtomNotFound
	}
	return atom, nil
}

// ListByType implements AtomStore.
func (s *MemoryAtomStore) ListByType(_ context.Context, atomType string) ([]contracts.EvidenceAtom, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var list []contracts.EvidenceAtom
	for _, atom := range s.atoms {
		if atom.AtomType == atomType {
			list = append(list, atom)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].AtomID < list[j].AtomID })
	return list, nil
}

// ListAll implements AtomStore.
func (s *MemoryAtomStore) ListAll(_ context.Context) ([]contracts.EvidenceAtom, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := make([]contracts.EvidenceAtom, 0, len(s.atoms))
	for _, atom := range s.atoms {
		list = append(list, atom)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].AtomID < list[j].AtomID })
	return list, nil
}

// Close implements AtomStore.
func (s *MemoryAtomStore) Close() error { return nil }
