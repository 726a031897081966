// Package store persists evidence atoms. Puts are idempotent on atom ID:
// storing a content-identical atom twice is a success no-op, never a
// conflict error. When an incoming atom shares a logical key with a
// stored atom of the same type but carries a different content hash, the
// older atom is marked superseded.
package store

import (
	"context"
	"errors"

	"github.com/Smarticus81/psur-regos/pkg/contracts"
)

// ErrAtomNotFound is returned by Get when no atom has the requested ID.
var ErrAtomNotFound = errors.New("store: atom not found")

// PutResult reports what a Put actually did.
type PutResult struct {
	// Created is false when the atom ID already existed (dedup no-op).
	Created bool
	// SupersededAtomID names the older logical record this put retired,
	// if any.
	SupersededAtomID string
}

// AtomStore is the persistence contract for evidence atoms.
type AtomStore interface {
	// Put stores an atom. Duplicate atom IDs are success no-ops.
	Put(ctx context.Context, atom contracts.EvidenceAtom) (PutResult, error)
	// Get retrieves an atom by ID, or ErrAtomNotFound.
	Get(ctx context.Context, atomID string) (contracts.EvidenceAtom, error)
	// ListByType returns all atoms of one type, ordered by atom ID.
	ListByType(ctx context.Context, atomType string) ([]contracts.EvidenceAtom, error)
	// ListAll returns every stored atom, ordered by atom ID.
	ListAll(ctx context.Context) ([]contracts.EvidenceAtom, error)
	Close() error
}
