package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Smarticus81/psur-regos/pkg/contracts"

	_ "github.com/lib/pq"
)

// PostgresAtomStore persists atoms in PostgreSQL for multi-node
// deployments. Semantics match SQLiteAtomStore.
type PostgresAtomStore struct {
	db *sql.DB
}

// NewPostgresAtomStore wraps an open handle and runs the migration.
func NewPostgresAtomStore(db *sql.DB) (*PostgresAtomStore, error) {
	s := &PostgresAtomStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenPostgresAtomStore connects using a lib/pq DSN.
func OpenPostgresAtomStore(dsn string) (*PostgresAtomStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}
	return NewPostgresAtomStore(db)
}

func (s *PostgresAtomStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS evidence_atoms (
		atom_id TEXT PRIMARY KEY,
		atom_type TEXT NOT NULL,
		payload JSONB NOT NULL,
		device_ref TEXT,
		period_start TEXT,
		period_end TEXT,
		provenance JSONB NOT NULL,
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

// Put implements AtomStore.
func (s *PostgresAtomStore) Put(ctx context.Context, atom contracts.EvidenceAtom) (PutResult, error) {
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
			 WHERE atom_type = $1 AND logical_key = $2 AND status = $3 AND atom_id != $4
			 FOR UPDATE`,
			atom.AtomType, atom.LogicalKey, string(contracts.AtomStatusValid), atom.AtomID,
		).Scan(&priorID)
		switch {
		case err == sql.ErrNoRows:
		case err != nil:
			return PutResult{}, fmt.Errorf("store: lookup logical key: %w", err)
		default:
			if _, err := tx.ExecContext(ctx,
				`UPDATE evidence_atoms SET status = $1, superseded_by = $2 WHERE atom_id = $3`,
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
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (atom_id) DO NOTHING`,
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
	if !result.Created {
		result.SupersededAtomID = ""
	}
	return result, nil
}

// Get implements AtomStore.
func (s *PostgresAtomStore) Get(ctx context.Context, atomID string) (contracts.EvidenceAtom, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` FROM evidence_atoms WHERE atom_id = $1`, atomID)
	atom, err := scanAtom(row)
	if err == sql.ErrNoRows {
		return contracts.EvidenceAtom{}, ErrAtomNotFound
	}
	return atom, err
}

// ListByType implements AtomStore.
func (s *PostgresAtomStore) ListByType(ctx context.Context, atomType string) ([]contracts.EvidenceAtom, error) {
	rows, err := s.db.QueryContext(ctx,
		selectColumns+` FROM evidence_atoms WHERE atom_type = $1 ORDER BY atom_id`, atomType)
	if err != nil {
		return nil, fmt.Errorf("store: list by type: %w", err)
	}
	return collectAtoms(rows)
}

// ListAll implements AtomStore.
func (s *PostgresAtomStore) ListAll(ctx context.Context) ([]contracts.EvidenceAtom, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` FROM evidence_atoms ORDER BY atom_id`)
	if err != nil {
		return nil, fmt.Errorf("store: list all: %w", err)
	}
	return collectAtoms(rows)
}

// Close implements AtomStore.
func (s *PostgresAtomStore) Close() error { return s.db.Close() }
