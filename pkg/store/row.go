package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Smarticus81/psur-regos/pkg/contracts"
)

const selectColumns = `SELECT atom_id, atom_type, payload, device_ref, period_start, period_end,
	provenance, status, version, superseded_by, content_hash, logical_key, created_at`

// atomRow is the flattened SQL shape of an atom, shared by the SQLite and
// Postgres stores.
type atomRow struct {
	atomID       string
	atomType     string
	payload      string
	deviceRef    sql.NullString
	periodStart  sql.NullString
	periodEnd    sql.NullString
	provenance   string
	status       string
	version      int
	supersededBy sql.NullString
	contentHash  string
	logicalKey   sql.NullString
	createdAt    string
}

func (r *atomRow) args() []any {
	return []any{
		r.atomID, r.atomType, r.payload, r.deviceRef, r.periodStart, r.periodEnd,
		r.provenance, r.status, r.version, r.supersededBy, r.contentHash, r.logicalKey, r.createdAt,
	}
}

func atomToRow(atom contracts.EvidenceAtom) (*atomRow, error) {
	payloadJSON, err := json.Marshal(atom.Payload)
	if err != nil {
		return nil, fmt.Errorf("store: encode payload: %w", err)
	}
	provJSON, err := json.Marshal(atom.Provenance)
	if err != nil {
		return nil, fmt.Errorf("store: encode provenance: %w", err)
	}

	row := &atomRow{
		atomID:      atom.AtomID,
		atomType:    atom.AtomType,
		payload:     string(payloadJSON),
		provenance:  string(provJSON),
		status:      string(atom.Status),
		version:     atom.Version,
		contentHash: atom.ContentHash,
		createdAt:   atom.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if atom.DeviceRef != "" {
		row.deviceRef = sql.NullString{String: atom.DeviceRef, Valid: true}
	}
	if atom.PSURPeriod != nil {
		row.periodStart = sql.NullString{String: atom.PSURPeriod.Start.UTC().Format(time.RFC3339), Valid: true}
		row.periodEnd = sql.NullString{String: atom.PSURPeriod.End.UTC().Format(time.RFC3339), Valid: true}
	}
	if atom.SupersededBy != "" {
		row.supersededBy = sql.NullString{String: atom.SupersededBy, Valid: true}
	}
	if atom.LogicalKey != "" {
		row.logicalKey = sql.NullString{String: atom.LogicalKey, Valid: true}
	}
	return row, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAtom(sc rowScanner) (contracts.EvidenceAtom, error) {
	var r atomRow
	if err := sc.Scan(
		&r.atomID, &r.atomType, &r.payload, &r.deviceRef, &r.periodStart, &r.periodEnd,
		&r.provenance, &r.status, &r.version, &r.supersededBy, &r.contentHash, &r.logicalKey, &r.createdAt,
	); err != nil {
		return contracts.EvidenceAtom{}, err
	}

	atom := contracts.EvidenceAtom{
		AtomID:       r.atomID,
		AtomType:     r.atomType,
		DeviceRef:    r.deviceRef.String,
		Status:       contracts.AtomStatus(r.status),
		Version:      r.version,
		SupersededBy: r.supersededBy.String,
		ContentHash:  r.contentHash,
		LogicalKey:   r.logicalKey.String,
		CreatedAt:    parseStoredTime(r.createdAt),
	}
	if err := json.Unmarshal([]byte(r.payload), &atom.Payload); err != nil {
		return contracts.EvidenceAtom{}, fmt.Errorf("store: decode payload of %s: %w", r.atomID, err)
	}
	if err := json.Unmarshal([]byte(r.provenance), &atom.Provenance); err != nil {
		return contracts.EvidenceAtom{}, fmt.Errorf("store: decode provenance of %s: %w", r.atomID, err)
	}
	if r.periodStart.Valid && r.periodEnd.Valid {
		atom.PSURPeriod = &contracts.Period{
			Start: parseStoredTime(r.periodStart.String),
			End:   parseStoredTime(r.periodEnd.String),
		}
	}
	return atom, nil
}

func collectAtoms(rows *sql.Rows) ([]contracts.EvidenceAtom, error) {
	defer func() { _ = rows.Close() }()
	var atoms []contracts.EvidenceAtom
	for rows.Next() {
		atom, err := scanAtom(rows)
		if err != nil {
			return nil, err
		}
		atoms = append(atoms, atom)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return atoms, nil
}

func parseStoredTime(value string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return time.Time{}
}
