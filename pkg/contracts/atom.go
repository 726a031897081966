// Package contracts defines the shared wire types of the compliance engine.
// Every engine package consumes these; none of them redefine their own copies.
package contracts

import "time"

// AtomStatus is the lifecycle state of an evidence atom.
type AtomStatus string

const (
	AtomStatusValid      AtomStatus = "valid"
	AtomStatusInvalid    AtomStatus = "invalid"
	AtomStatusSuperseded AtomStatus = "superseded"
)

// EvidenceAtom is a content-addressed, immutable unit of proof data.
// AtomID is deterministic: atom_type + ":" + SHA-256 of the canonicalized
// payload. Two ingestions of the same logical payload always produce the
// same AtomID, regardless of object key order or source file.
type EvidenceAtom struct {
	AtomID       string         `json:"atom_id"`
	AtomType     string         `json:"atom_type"`
	Payload      map[string]any `json:"payload"`
	DeviceRef    string         `json:"device_ref,omitempty"`
	PSURPeriod   *Period        `json:"psur_period,omitempty"`
	Provenance   Provenance     `json:"provenance"`
	Status       AtomStatus     `json:"status"`
	Version      int            `json:"version"`
	SupersededBy string         `json:"superseded_by,omitempty"`
	ContentHash  string         `json:"content_hash"`
	LogicalKey   string         `json:"logical_key,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Provenance records where an atom came from.
type Provenance struct {
	SourceSystem   string    `json:"source_system"`
	SourceFileHash string    `json:"source_file_hash,omitempty"`
	Uploader       string    `json:"uploader,omitempty"`
	UploadedAt     time.Time `json:"uploaded_at"`
}

// Period is a closed date interval [Start, End].
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Valid reports whether the interval is well-formed.
func (p Period) Valid() bool {
	return !p.Start.IsZero() && !p.End.IsZero() && !p.Start.After(p.End)
}

// Overlaps reports whether two closed intervals intersect:
// p.Start <= other.End AND p.End >= other.Start.
func (p Period) Overlaps(other Period) bool {
	return !p.Start.After(other.End) && !p.End.Before(other.Start)
}

// Covers reports whether p fully contains other.
func (p Period) Covers(other Period) bool {
	return !p.Start.After(other.Start) && !p.End.Before(other.End)
}
