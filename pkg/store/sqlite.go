package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Smarticus81/psur-regos/pkg/contracts"

	_ "modernc.org/sqlite"
)

// SQLiteAtomStore persists atoms in SQLite. Suitable for single-node
// deployments and the CLI.
type SQLiteAtomStore struct {
	db *sql.DB
}

// NewSQLiteAtomStore wraps an open SQLite handle and runs the migration.
func NewSQLiteAtomStore(db *sql.DB) (*SQLiteAtomStore, error) {
	s := &SQLiteAtomStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenSQLiteAtomStore opens (or creates) the database file at path.
func OpenSQLiteAtomStore(path string) (*SQLiteAtomStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite %q: %w", path, err)
	}
	return NewSQLiteAtomStore(db)
}

func (s *SQLiteAtomStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS evidence_atoms (
		atom_id TEXT PRIMARY KEY,
		atom_type TEXT NOT NULL,
		payload JSON NOT NULL,
		device_ref TEXT,
		period_start TEXT,
		period_end TEXT,
		provenance JSON NOT NULL,
		status TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		superseded_by TEXT,
		content_hash TEXT NOT NULL,
		logical_key TEXT,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_atoms_type ON evidence_atoms(atom_type);
	CREATE INDEX IF NOT EXISTS idx_atoms_logical ON evidence_atoms(atom_type, logical_key);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// Put implements AtomStore. The insert is idempotent on atom_id; a
// pre-existing valid atom sharing the logical key is marked superseded in
// the same transaction.
func (s *SQLiteAtomStore) Put(ctx context.Context, atom contracts.EvidenceAtom) (PutResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return PutResult{}, fmt.Errorf("store: begin put: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var result PutResult
	if atom.LogicalKey != "" {
		var priorID string
		err := tx.QueryRowContext(ctx,
			`SELECT atom_id FROM evidence_atoms
			 WHERE atom_type = ? AND logical_key = ? AND status = ? AND atom_id != ?`,
			atom.AtomType, atom.LogicalKey, string(contracts.AtomStatusValid), atom.AtomID,
		).Scan(&priorID)
		switch {
		case err == sql.ErrNoRows:
		case err != nil:
			return PutResult{}, fmt.Errorf("store: lookup logical key: %w", err)
		default:
			if _, err := tx.ExecContext(ctx,
				`UPDATE evidence_atoms SET status = ?, superseded_by = ? WHERE atom_id = ?`,
				string(contracts.AtomStatusSuperseded), atom.AtomID, priorID,
			); err != nil {
				return PutResult{}, fmt.Errorf("store: supersede %s: %w", priorID, err)
			}
			result.SupersededAtomID = priorID
		}
	}

	row, err := atomToRow(atom)
	if err != nil {
		return PutResult{}, err
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO evidence_atoms (
			atom_id, atom_type, payload, device_ref, period_start, period_end,
			provenance, status, version, superseded_by, content_hash, logical_key, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(atom_id) DO NOTHING`,
		row.args()...,
	)
	if err != nil {
		return PutResult{}, fmt.Errorf("store: insert atom: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return PutResult{}, fmt.Errorf("store: insert atom: %w", err)
	}
	result.Created = affected > 0

	if err := tx.Commit(); err != nil {
		return PutResult{}, fmt.Errorf("store: commit put: %w", err)
	}
	// A duplicate insert supersedes nothing: the prior lookup excluded the
	// atom's own ID, and the record it found was already retired on first
	// insert.
	if !result.Created {
		result.SupersededAtomID = ""
	}
	return result, nil
}

// Get implements AtomStore.
func (s *SQLiteAtomStore) Get(ctx context.Context, atomID string) (contracts.EvidenceAtom, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` FROM evidence_atoms WHERE atom_id = ?`, atomID)
	atom, err := scanAtom(row)
	if err == sql.ErrNoRows {
		return contracts.EvidenceAtom{}, ErrAtomNotFound
	}
	return atom, err
}

// ListByType implements AtomStore.
func (s *SQLiteAtomStore) ListByType(ctx context.Context, atomType string) ([]contracts.EvidenceAtom, error) {
	rows, err := s.db.QueryContext(ctx,
		selectColumns+` FROM evidence_atoms WHERE atom_type = ? ORDER BY atom_id`, atomType)
	if err != nil {
		return nil, fmt.Errorf("store: list by type: %w", err)
	}
	return collectAtoms(rows)
}

// ListAll implements AtomStore.
func (s *SQLiteAtomStore) ListAll(ctx context.Context) ([]contracts.EvidenceAtom, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` FROM evidence_atoms ORDER BY atom_id`)
	if err != nil {
		return nil, fmt.Errorf("store: list all: %w", err)
	}
	return collectAtoms(rows)
}

// Close implements AtomStore.
func (s *SQLiteAtomStore) Close() error { return s.db.Close() }
