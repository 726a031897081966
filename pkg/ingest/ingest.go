// Package ingest runs batches of raw evidence rows through the atom
// builder and into the store. Workers build rows concurrently; store
// writes are rate-limited; per-row result order always matches input
// order, so one bad row never aborts or reorders a batch.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/Smarticus81/psur-regos/pkg/contracts"
	"github.com/Smarticus81/psur-regos/pkg/evidence"
	"github.com/Smarticus81/psur-regos/pkg/observability"
	"github.com/Smarticus81/psur-regos/pkg/store"
)

const (
	defaultWorkers   = 4
	defaultWriteRate = 200 // store writes per second
)

// RowResult is the outcome for one input row.
type RowResult struct {
	Index  int    `json:"index"`
	AtomID string `json:"atom_id,omitempty"`
	// Created is false for dedup no-ops and invalid rows.
	Created      bool `json:"created"`
	Deduplicated bool `json:"deduplicated"`
	// SupersededAtomID names the older logical record this row retired.
	SupersededAtomID string                     `json:"superseded_atom_id,omitempty"`
	Errors           contracts.ValidationErrors `json:"errors,omitempty"`
}

// BatchResult summarizes one batch run. Created counts new atoms only:
// re-ingesting an identical payload increments Deduplicated, never
// Created.
type BatchResult struct {
	BatchID      string        `json:"batch_id"`
	Created      int           `json:"created"`
	Deduplicated int           `json:"deduplicated"`
	Invalid      int           `json:"invalid"`
	Superseded   int           `json:"superseded"`
	Rows         []RowResult   `json:"rows"`
	Elapsed      time.Duration `json:"elapsed"`
}

// Service ingests evidence batches.
type Service struct {
	builder *evidence.Builder
	atoms   store.AtomStore
	workers int
	limiter *rate.Limiter
	logger  *slog.Logger
	obs     *observability.Provider
}

// Option configures a Service.
type Option func(*Service)

// WithWorkers bounds the concurrent builder goroutines.
func WithWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithWriteRate caps store writes per second.
func WithWriteRate(perSecond int) Option {
	return func(s *Service) {
		if perSecond > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(perSecond), perSecond)
		}
	}
}

// WithObservability records spans and atom counters on the provider.
func WithObservability(p *observability.Provider) Option {
	return func(s *Service) { s.obs = p }
}

// NewService creates an ingestion service.
func NewService(builder *evidence.Builder, atoms store.AtomStore, opts ...Option) *Service {
	s := &Service{
		builder: builder,
		atoms:   atoms,
		workers: defaultWorkers,
		limiter: rate.NewLimiter(rate.Limit(defaultWriteRate), defaultWriteRate),
		logger:  slog.Default().With("component", "ingest"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IngestBatch processes all rows and returns per-row results in input
// order plus batch counters.
func (s *Service) IngestBatch(ctx context.Context, inputs []evidence.Input) (result *BatchResult, err error) {
	if s.obs != nil {
		var done func(error)
		ctx, done = s.obs.TrackOperation(ctx, "ingest.batch")
		defer func() { done(err) }()
	}

	started := time.Now()
	batch := &BatchResult{
		BatchID: uuid.NewString(),
		Rows:    make([]RowResult, len(inputs)),
	}

	type job struct {
		index int
		input evidence.Input
	}
	jobs := make(chan job)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for w := 0; w < s.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				result, err := s.ingestOne(ctx, j.index, j.input)
				mu.Lock()
				batch.Rows[j.index] = result
				if err != nil && firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
		}()
	}

	for i, in := range inputs {
		jobs <- job{index: i, input: in}
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}

	createdByType := make(map[string]int64)
	for _, row := range batch.Rows {
		switch {
		case len(row.Errors) > 0:
			batch.Invalid++
		case row.Deduplicated:
			batch.Deduplicated++
		case row.Created:
			batch.Created++
			// The atom ID is atomType ":" contentHash.
			if i := strings.IndexByte(row.AtomID, ':'); i > 0 {
				createdByType[row.AtomID[:i]]++
			}
		}
		if row.SupersededAtomID != "" {
			batch.Superseded++
		}
	}
	batch.Elapsed = time.Since(started)

	if s.obs != nil {
		for atomType, n := range createdByType {
			s.obs.RecordAtomsIngested(ctx, atomType, n)
		}
	}

	s.logger.Info("batch ingested",
		"batch_id", batch.BatchID,
		"rows", len(inputs),
		"created", batch.Created,
		"deduplicated", batch.Deduplicated,
		"invalid", batch.Invalid)
	return batch, nil
}

// ingestOne builds and stores a single row. Invalid atoms are not
// persisted; their errors travel back on the row result.
func (s *Service) ingestOne(ctx context.Context, index int, in evidence.Input) (RowResult, error) {
	row := RowResult{Index: index}

	built := s.builder.Build(in)
	if built.Atom != nil {
		row.AtomID = built.Atom.AtomID
	}
	if !built.Errors.OK() {
		row.Errors = built.Errors
		return row, nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return row, fmt.Errorf("ingest: rate limit wait: %w", err)
	}
	put, err := s.atoms.Put(ctx, *built.Atom)
	if err != nil {
		return row, fmt.Errorf("ingest: store atom %s: %w", built.Atom.AtomID, err)
	}
	row.Created = put.Created
	row.Deduplicated = !put.Created
	row.SupersededAtomID = put.SupersededAtomID
	return row, nil
}
