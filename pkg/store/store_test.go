package store

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Smarticus81/psur-regos/pkg/contracts"
)

func testAtom(id, logicalKey string) contracts.EvidenceAtom {
	return contracts.EvidenceAtom{
		AtomID:      "complaint_record:" + id,
		AtomType:    "complaint_record",
		Payload:     map[string]any{"complaint_id": "C-1", "device_code": "DEV-1"},
		Status:      contracts.AtomStatusValid,
		Version:     1,
		ContentHash: id,
		LogicalKey:  logicalKey,
		CreatedAt:   time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		Provenance:  contracts.Provenance{SourceSystem: "complaints-csv"},
	}
}

func TestMemoryPut_DuplicateIsNoOp(t *testing.T) {
	s := NewMemoryAtomStore()
	ctx := context.Background()

	first, err := s.Put(ctx, testAtom("h1", ""))
	require.NoError(t, err)
	assert.True(t, first.Created)

	second, err := s.Put(ctx, testAtom("h1", ""))
	require.NoError(t, err)
	assert.False(t, second.Created)

	all, err := s.ListAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestMemoryPut_LogicalKeySupersession(t *testing.T) {
	s := NewMemoryAtomStore()
	ctx := context.Background()

	old := testAtom("h1", "C-1|DEV-1")
	_, err := s.Put(ctx, old)
	require.NoError(t, err)

	// Same logical record, changed content: new hash, same key.
	updated := testAtom("h2", "C-1|DEV-1")
	result, err := s.Put(ctx, updated)
	require.NoError(t, err)
	assert.True(t, result.Created)
	assert.Equal(t, old.AtomID, result.SupersededAtomID)

	stored, err := s.Get(ctx, old.AtomID)
	require.NoError(t, err)
	assert.Equal(t, contracts.AtomStatusSuperseded, stored.Status)
	assert.Equal(t, updated.AtomID, stored.SupersededBy)

	current, err := s.Get(ctx, updated.AtomID)
	require.NoError(t, err)
	assert.Equal(t, contracts.AtomStatusValid, current.Status)
}

func TestMemoryPut_DifferentLogicalKeysCoexist(t *testing.T) {
	s := NewMemoryAtomStore()
	ctx := context.Background()

	_, err := s.Put(ctx, testAtom("h1", "C-1|DEV-1"))
	require.NoError(t, err)
	result, err := s.Put(ctx, testAtom("h2", "C-2|DEV-1"))
	require.NoError(t, err)

	assert.True(t, result.Created)
	assert.Empty(t, result.SupersededAtomID)
}

func TestMemoryGet_NotFound(t *testing.T) {
	s := NewMemoryAtomStore()
	_, err := s.Get(context.Background(), "sales_volume:missing")
	assert.ErrorIs(t, err, ErrAtomNotFound)
}

func TestMemoryListByType(t *testing.T) {
	s := NewMemoryAtomStore()
	ctx := context.Background()

	_, err := s.Put(ctx, testAtom("h1", ""))
	require.NoError(t, err)
	other := testAtom("h2", "")
	other.AtomID = "sales_volume:h2"
	other.AtomType = "sales_volume"
	_, err = s.Put(ctx, other)
	require.NoError(t, err)

	complaints, err := s.ListByType(ctx, "complaint_record")
	require.NoError(t, err)
	require.Len(t, complaints, 1)
	assert.Equal(t, "complaint_record:h1", complaints[0].AtomID)
}

func TestSQLitePut_DuplicateInsertReportsNotCreated(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	s := &SQLiteAtomStore{db: db}

	mock.ExpectBegin()
	// ON CONFLICT DO NOTHING: zero rows affected on the duplicate.
	mock.ExpectExec("INSERT INTO evidence_atoms").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	result, err := s.Put(context.Background(), testAtom("h1", ""))
	require.NoError(t, err)
	assert.False(t, result.Created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLitePut_SupersedesPriorLogicalRecord(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	s := &SQLiteAtomStore{db: db}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT atom_id FROM evidence_atoms").
		WithArgs("complaint_record", "C-1|DEV-1", "valid", "complaint_record:h2").
		WillReturnRows(sqlmock.NewRows([]string{"atom_id"}).AddRow("complaint_record:h1"))
	mock.ExpectExec("UPDATE evidence_atoms SET status").
		WithArgs("superseded", "complaint_record:h2", "complaint_record:h1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO evidence_atoms").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	result, err := s.Put(context.Background(), testAtom("h2", "C-1|DEV-1"))
	require.NoError(t, err)
	assert.True(t, result.Created)
	assert.Equal(t, "complaint_record:h1", result.SupersededAtomID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLitePut_InsertFailureRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	s := &SQLiteAtomStore{db: db}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO evidence_atoms").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err = s.Put(context.Background(), testAtom("h1", ""))
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGet_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	s := &PostgresAtomStore{db: db}

	mock.ExpectQuery("SELECT atom_id, atom_type").
		WithArgs("sales_volume:missing").
		WillReturnRows(sqlmock.NewRows([]string{"atom_id"}))

	_, err = s.Get(context.Background(), "sales_volume:missing")
	assert.ErrorIs(t, err, ErrAtomNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
