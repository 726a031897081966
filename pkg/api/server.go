package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"

	"github.com/Smarticus81/psur-regos/pkg/audit"
	"github.com/Smarticus81/psur-regos/pkg/contracts"
	"github.com/Smarticus81/psur-regos/pkg/coverage"
	"github.com/Smarticus81/psur-regos/pkg/evidence"
	"github.com/Smarticus81/psur-regos/pkg/ingest"
	"github.com/Smarticus81/psur-regos/pkg/observability"
	"github.com/Smarticus81/psur-regos/pkg/queue"
	"github.com/Smarticus81/psur-regos/pkg/registry"
	"github.com/Smarticus81/psur-regos/pkg/store"
	"github.com/Smarticus81/psur-regos/pkg/template"
)

// Server wires the engine components behind the HTTP surface.
type Server struct {
	ingest    *ingest.Service
	atoms     store.AtomStore
	registry  *registry.Registry
	templates *template.Registry
	analyzer  *coverage.Analyzer
	builder   *queue.Builder
	auditor   *audit.Auditor
	proposals *template.ProposalContract
	logger    *slog.Logger
	obs       *observability.Provider

	mu    sync.RWMutex
	cases map[string]contracts.Case
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithObservability records spans around the engine operations.
func WithObservability(p *observability.Provider) ServerOption {
	return func(s *Server) { s.obs = p }
}

// NewServer assembles the server from its components.
func NewServer(
	ingestSvc *ingest.Service,
	atoms store.AtomStore,
	reg *registry.Registry,
	templates *template.Registry,
	analyzer *coverage.Analyzer,
	builder *queue.Builder,
	auditor *audit.Auditor,
	opts ...ServerOption,
) *Server {
	s := &Server{
		ingest:    ingestSvc,
		atoms:     atoms,
		registry:  reg,
		templates: templates,
		analyzer:  analyzer,
		builder:   builder,
		auditor:   auditor,
		proposals: template.NewProposalContract(reg),
		logger:    slog.Default().With("component", "api"),
		cases:     make(map[string]contracts.Case),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// track opens a span for one engine operation; inert without a provider.
func (s *Server) track(ctx context.Context, name string) (context.Context, func(error)) {
	if s.obs == nil {
		return ctx, func(error) {}
	}
	return s.obs.TrackOperation(ctx, name)
}

// Handler returns the routed handler with logging and rate limiting.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/evidence/ingest", s.handleIngest)
	mux.HandleFunc("POST /v1/cases", s.handleRegisterCase)
	mux.HandleFunc("GET /v1/cases/{id}/coverage", s.handleCoverage)
	mux.HandleFunc("GET /v1/cases/{id}/queue", s.handleQueue)
	mux.HandleFunc("POST /v1/audit", s.handleAudit)
	mux.HandleFunc("POST /v1/proposals/validate", s.handleValidateProposal)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	limiter := NewGlobalRateLimiter(50, 100)
	return RequestLogging(s.logger, limiter.Middleware(mux))
}

// IngestRequest is the ingestion batch body.
type IngestRequest struct {
	Rows []evidence.Input `json:"rows"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 8<<20) // 8MB limit
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}
	if len(req.Rows) == 0 {
		WriteBadRequest(w, "Missing required field: rows")
		return
	}

	result, err := s.ingest.IngestBatch(r.Context(), req.Rows)
	if err != nil {
		WriteInternal(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

func (s *Server) handleRegisterCase(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit
	var c contracts.Case
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}
	if c.CaseID == "" || !c.Period.Valid() {
		WriteBadRequest(w, "Missing required fields: case_id, period")
		return
	}
	if c.TemplateID != "" {
		if _, err := s.templates.Get(c.TemplateID); err != nil {
			WriteBadRequest(w, fmt.Sprintf("Unknown template %s", c.TemplateID))
			return
		}
	}

	s.mu.Lock()
	s.cases[c.CaseID] = c
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(c)
}

func (s *Server) caseByID(id string) (contracts.Case, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cases[id]
	return c, ok
}

func (s *Server) handleCoverage(w http.ResponseWriter, r *http.Request) {
	c, ok := s.caseByID(r.PathValue("id"))
	if !ok {
		WriteNotFound(w, "Case not found")
		return
	}

	ctx, done := s.track(r.Context(), "coverage.analyze")
	atoms, err := s.atoms.ListAll(ctx)
	if err != nil {
		done(err)
		WriteInternal(w, err)
		return
	}
	snap, err := s.analyzer.Analyze(c, atoms)
	done(err)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(snap)
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	c, ok := s.caseByID(r.PathValue("id"))
	if !ok {
		WriteNotFound(w, "Case not found")
		return
	}
	tmpl, err := s.templates.Get(c.TemplateID)
	if err != nil {
		WriteBadRequest(w, fmt.Sprintf("Case has no usable template: %v", err))
		return
	}

	ctx, done := s.track(r.Context(), "queue.build")
	atoms, err := s.atoms.ListAll(ctx)
	if err != nil {
		done(err)
		WriteInternal(w, err)
		return
	}
	snap, err := s.analyzer.Analyze(c, atoms)
	if err != nil {
		done(err)
		WriteBadRequest(w, err.Error())
		return
	}

	filled := r.URL.Query()["filled"]
	sort.Strings(filled)
	q, err := s.builder.Build(c, tmpl, snap, filled)
	done(err)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(q)
}

// AuditRequest is the audit run body.
type AuditRequest struct {
	CaseID   string                      `json:"case_id"`
	Document *contracts.CompiledDocument `json:"document"`
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 8<<20) // 8MB limit
	var req AuditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}
	c, ok := s.caseByID(req.CaseID)
	if !ok {
		WriteNotFound(w, "Case not found")
		return
	}
	tmpl, err := s.templates.Get(c.TemplateID)
	if err != nil {
		WriteBadRequest(w, fmt.Sprintf("Case has no usable template: %v", err))
		return
	}

	ctx, done := s.track(r.Context(), "audit.run")
	atomList, err := s.atoms.ListAll(ctx)
	if err != nil {
		done(err)
		WriteInternal(w, err)
		return
	}
	atomsByID := make(map[string]contracts.EvidenceAtom, len(atomList))
	for _, atom := range atomList {
		atomsByID[atom.AtomID] = atom
	}

	snap, err := s.analyzer.Analyze(c, atomList)
	if err != nil {
		done(err)
		WriteBadRequest(w, err.Error())
		return
	}

	result, err := s.auditor.Audit(req.Document, tmpl, snap, atomsByID)
	done(err)
	if err != nil {
		WriteBadRequest(w, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(result)
}

func (s *Server) handleValidateProposal(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 4<<20) // 4MB limit
	var p contracts.SlotProposal
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}

	if errs := s.proposals.Validate(p); !errs.OK() {
		WriteValidationError(w, errs)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"valid": true, "slot_id": p.SlotID})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
