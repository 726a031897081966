package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/Smarticus81/psur-regos/pkg/api"
	"github.com/Smarticus81/psur-regos/pkg/audit"
	"github.com/Smarticus81/psur-regos/pkg/config"
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

const version = "v1.0.0"

// Dispatcher
func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		return runServe(nil, stdout, stderr)
	}

	switch args[1] {
	case "server", "serve":
		return runServe(args[2:], stdout, stderr)
	case "ingest":
		return runIngestCmd(args[2:], stdout, stderr)
	case "coverage":
		return runCoverageCmd(args[2:], stdout, stderr)
	case "queue":
		return runQueueCmd(args[2:], stdout, stderr)
	case "audit":
		return runAuditCmd(args[2:], stdout, stderr)
	case "registry":
		if len(args) < 3 {
			_, _ = fmt.Fprintln(stderr, "Usage: psur-regos registry <verify>")
			return 2
		}
		switch args[2] {
		case "verify":
			return runRegistryVerifyCmd(args[3:], stdout, stderr)
		default:
			_, _ = fmt.Fprintf(stderr, "Unknown registry subcommand: %s\n", args[2])
			return 2
		}
	case "version", "--version":
		_, _ = fmt.Fprintf(stdout, "psur-regos %s\n", version)
		return 0
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		if args[1][0] == '-' {
			return runServe(args[1:], stdout, stderr)
		}
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

// ANSI Colors
const (
	ColorReset = "\033[0m"
	ColorBold  = "\033[1m"
	ColorGreen = "\033[32m"
	ColorBlue  = "\033[34m"
	ColorCyan  = "\033[36m"
	ColorGray  = "\033[37m"
)

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sPSUR Compliance Engine %s%s\n", ColorBold+ColorBlue, version, ColorReset)
	fmt.Fprintf(w, "%sEvidence in. Obligations satisfied. Reports defensible.%s\n", ColorGray, ColorReset)
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "%sUSAGE:%s\n", ColorBold, ColorReset)
	fmt.Fprintln(w, "  psur-regos <command> [flags]")
	fmt.Fprintln(w, "")

	printSection(w, "SERVER")
	printCommand(w, "serve", "Run the HTTP API server (default)")

	printSection(w, "EVIDENCE")
	printCommand(w, "ingest", "Ingest evidence rows from a JSON file (--input, --store)")

	printSection(w, "COMPLIANCE")
	printCommand(w, "coverage", "Compute obligation coverage for a case (--case, --store)")
	printCommand(w, "queue", "Build the slot generation queue (--case, --filled)")
	printCommand(w, "audit", "Audit a compiled document (--case, --document)")

	printSection(w, "UTILITIES")
	printCommand(w, "registry", "Registry tools (verify --seed --template)")
	printCommand(w, "version", "Show version information")
	printCommand(w, "help", "Show this help")
	fmt.Fprintln(w, "")
}

func printSection(w io.Writer, title string) {
	fmt.Fprintf(w, "%s%s:%s\n", ColorBold+ColorCyan, title, ColorReset)
}

func printCommand(w io.Writer, name, desc string) {
	fmt.Fprintf(w, "  %s%-12s%s %s\n", ColorGreen, name, ColorReset, desc)
}

// engineEnv bundles the registry, templates, and optional engine profile
// every command builds its components from.
type engineEnv struct {
	reg       *registry.Registry
	templates *template.Registry
	profile   *config.EngineProfile
}

// buildEngineEnv loads the profile (when a code is given), the obligation
// registry from seed files (explicit --seed plus the profile's seed list,
// falling back to the built-in EU MDR set), and the template registry
// (default template plus explicit and profile template files).
func buildEngineEnv(seedPath, profilesDir, profileCode string, templatePaths []string) (*engineEnv, error) {
	var profile *config.EngineProfile
	if profileCode != "" {
		p, err := config.LoadProfile(profilesDir, profileCode)
		if err != nil {
			return nil, err
		}
		profile = p
	}

	var seeds []string
	if seedPath != "" {
		seeds = append(seeds, seedPath)
	}
	if profile != nil {
		for _, f := range profile.SeedFiles {
			seeds = append(seeds, resolveProfilePath(profilesDir, f))
		}
	}
	reg, err := loadRegistry(seeds)
	if err != nil {
		return nil, err
	}

	paths := append([]string(nil), templatePaths...)
	if profile != nil {
		for _, f := range profile.TemplateFiles {
			paths = append(paths, resolveProfilePath(profilesDir, f))
		}
	}
	templates, err := loadTemplates(paths)
	if err != nil {
		return nil, err
	}

	return &engineEnv{reg: reg, templates: templates, profile: profile}, nil
}

// resolveProfilePath resolves a profile-declared file path relative to the
// profiles directory.
func resolveProfilePath(profilesDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(profilesDir, path)
}

// analyzerOptions threads the profile's satisfaction relation into the
// coverage analyzer.
func (e *engineEnv) analyzerOptions() []coverage.Option {
	if e.profile == nil || len(e.profile.Satisfaction) == 0 {
		return nil
	}
	return []coverage.Option{
		coverage.WithSatisfactionRelation(coverage.SatisfactionRelation(e.profile.Satisfaction)),
	}
}

// queueOptions overlays the profile's evidence tiers on the defaults.
func (e *engineEnv) queueOptions() []queue.Option {
	if e.profile == nil || len(e.profile.EvidenceTiers) == 0 {
		return nil
	}
	tiers := queue.DefaultEvidenceTiers()
	for evidenceType, tier := range e.profile.EvidenceTiers {
		tiers[evidenceType] = tier
	}
	return []queue.Option{queue.WithEvidenceTiers(tiers)}
}

// auditOptions overlays the profile's audit layer weights on the defaults.
func (e *engineEnv) auditOptions() []audit.Option {
	if e.profile == nil || len(e.profile.AuditWeights) == 0 {
		return nil
	}
	weights := audit.DefaultWeights()
	for layer, w := range e.profile.AuditWeights {
		weights[layer] = w
	}
	return []audit.Option{audit.WithWeights(weights)}
}

// loadRegistry loads obligations from seed files, or the built-in EU MDR
// defaults when none are given.
func loadRegistry(seedPaths []string) (*registry.Registry, error) {
	if len(seedPaths) == 0 {
		return registry.New(registry.DefaultObligations())
	}
	var entries []contracts.Obligation
	for _, path := range seedPaths {
		reg, err := registry.LoadSeed(path)
		if err != nil {
			return nil, err
		}
		entries = append(entries, reg.All()...)
	}
	return registry.New(entries)
}

// loadTemplates builds the template registry: the default PSUR template
// plus any additional template files.
func loadTemplates(paths []string) (*template.Registry, error) {
	templates := template.NewRegistry()
	if err := templates.Register(template.DefaultPSURTemplate()); err != nil {
		return nil, err
	}
	for _, path := range paths {
		tmpl, err := template.Load(path)
		if err != nil {
			return nil, err
		}
		if err := templates.Register(tmpl); err != nil {
			return nil, fmt.Errorf("register template %q: %w", path, err)
		}
	}
	return templates, nil
}

func loadCase(path string) (contracts.Case, error) {
	var c contracts.Case
	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("read case %q: %w", path, err)
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("parse case %q: %w", path, err)
	}
	if c.CaseID == "" || !c.Period.Valid() {
		return c, fmt.Errorf("case %q: case_id and a valid period are required", path)
	}
	return c, nil
}

func printJSON(w io.Writer, v any) {
	data, _ := json.MarshalIndent(v, "", "  ")
	_, _ = fmt.Fprintln(w, string(data))
}

func setupLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

// profileFlags registers the shared engine-profile flags on a flag set.
func profileFlags(cmd *flag.FlagSet, profilesDir, profileCode *string, defaultDir string) {
	cmd.StringVar(profilesDir, "profiles-dir", defaultDir, "Directory holding profile_<code>.yaml files")
	cmd.StringVar(profileCode, "profile", os.Getenv("ENGINE_PROFILE"), "Engine profile code to load (e.g. eu-mdr)")
}

//nolint:gocognit
func runServe(args []string, stdout, stderr io.Writer) int {
	cfg := config.Load()

	cmd := flag.NewFlagSet("serve", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		seedPath      string
		profilesDir   string
		profileCode   string
		templatePaths stringList
	)
	cmd.StringVar(&seedPath, "seed", os.Getenv("SEED_PATH"), "Obligation seed YAML (default: built-in EU MDR set)")
	cmd.Var(&templatePaths, "template", "Additional template YAML file (repeatable)")
	profileFlags(cmd, &profilesDir, &profileCode, cfg.ProfilesDir)
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	setupLogging(cfg.LogLevel)
	logger := slog.Default()
	ctx := context.Background()

	fmt.Fprintf(stdout, "%sPSUR Compliance Engine starting...%s\n", ColorBold+ColorBlue, ColorReset)

	env, err := buildEngineEnv(seedPath, profilesDir, profileCode, templatePaths)
	if err != nil {
		logger.Error("engine setup failed", "error", err)
		return 1
	}
	if env.profile != nil {
		logger.Info("engine profile loaded", "code", env.profile.Code, "name", env.profile.Name)
	}

	// Every obligation a template references must resolve before the
	// server takes traffic.
	if err := env.reg.VerifyIntegrity(derefTemplates(env.templates.List())); err != nil {
		logger.Error("registry integrity check failed", "error", err)
		return 1
	}
	logger.Info("registry ready", "obligations", len(env.reg.All()), "templates", len(env.templates.List()))

	atoms, err := store.OpenSQLiteAtomStore(cfg.StorePath)
	if err != nil {
		logger.Error("atom store open failed", "path", cfg.StorePath, "error", err)
		return 1
	}
	defer func() { _ = atoms.Close() }()
	logger.Info("atom store ready", "path", cfg.StorePath)

	obsCfg := observability.DefaultConfig()
	if endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); endpoint != "" {
		obsCfg.OTLPEndpoint = endpoint
		obsCfg.Insecure = os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true"
	} else {
		obsCfg.Enabled = false
	}
	obs, err := observability.New(ctx, obsCfg)
	if err != nil {
		logger.Error("observability init failed", "error", err)
		return 1
	}
	defer func() { _ = obs.Shutdown(context.Background()) }()

	types, err := evidence.NewTypeRegistry(evidence.DefaultTypeSpecs())
	if err != nil {
		logger.Error("evidence type registry failed", "error", err)
		return 1
	}

	obligations := env.reg.All()
	server := api.NewServer(
		ingest.NewService(evidence.NewBuilder(types), atoms, ingest.WithObservability(obs)),
		atoms,
		env.reg,
		env.templates,
		coverage.NewAnalyzer(env.reg, env.analyzerOptions()...),
		queue.NewBuilder(obligations, env.queueOptions()...),
		audit.NewAuditor(obligations, env.auditOptions()...),
		api.WithObservability(obs),
	)

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", httpSrv.Addr)
		fmt.Fprintf(stdout, "ready: http://localhost:%s\n", cfg.Port)
		errCh <- httpSrv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			return 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown failed", "error", err)
		return 1
	}
	return 0
}

func runIngestCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("ingest", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		inputPath string
		storePath string
	)
	cmd.StringVar(&inputPath, "input", "", "JSON file with evidence rows (REQUIRED)")
	cmd.StringVar(&storePath, "store", "psur-regos.db", "SQLite atom store path")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if inputPath == "" {
		fmt.Fprintln(stderr, "Error: --input is required")
		cmd.Usage()
		return 2
	}

	data, err := os.ReadFile(inputPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error reading input: %v\n", err)
		return 1
	}
	var rows []evidence.Input
	if err := json.Unmarshal(data, &rows); err != nil {
		fmt.Fprintf(stderr, "Error parsing input: %v\n", err)
		return 1
	}
	if len(rows) == 0 {
		fmt.Fprintln(stderr, "Error: input contains no rows")
		return 1
	}

	types, err := evidence.NewTypeRegistry(evidence.DefaultTypeSpecs())
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	atoms, err := store.OpenSQLiteAtomStore(storePath)
	if err != nil {
		fmt.Fprintf(stderr, "Error opening store: %v\n", err)
		return 1
	}
	defer func() { _ = atoms.Close() }()

	svc := ingest.NewService(evidence.NewBuilder(types), atoms)
	result, err := svc.IngestBatch(context.Background(), rows)
	if err != nil {
		fmt.Fprintf(stderr, "Ingest failed: %v\n", err)
		return 1
	}

	printJSON(stdout, result)
	if result.Invalid > 0 {
		return 1
	}
	return 0
}

func runCoverageCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("coverage", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		casePath    string
		storePath   string
		seedPath    string
		profilesDir string
		profileCode string
	)
	cmd.StringVar(&casePath, "case", "", "JSON file describing the reporting case (REQUIRED)")
	cmd.StringVar(&storePath, "store", "psur-regos.db", "SQLite atom store path")
	cmd.StringVar(&seedPath, "seed", "", "Obligation seed YAML (default: built-in EU MDR set)")
	profileFlags(cmd, &profilesDir, &profileCode, "profiles")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if casePath == "" {
		fmt.Fprintln(stderr, "Error: --case is required")
		cmd.Usage()
		return 2
	}

	env, err := buildEngineEnv(seedPath, profilesDir, profileCode, nil)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	snap, _, _, code := analyzeCase(casePath, storePath, env, stderr)
	if code != 0 {
		return code
	}
	printJSON(stdout, snap)
	return 0
}

func runQueueCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("queue", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		casePath      string
		storePath     string
		seedPath      string
		filledCSV     string
		profilesDir   string
		profileCode   string
		templatePaths stringList
	)
	cmd.StringVar(&casePath, "case", "", "JSON file describing the reporting case (REQUIRED)")
	cmd.StringVar(&storePath, "store", "psur-regos.db", "SQLite atom store path")
	cmd.StringVar(&seedPath, "seed", "", "Obligation seed YAML (default: built-in EU MDR set)")
	cmd.StringVar(&filledCSV, "filled", "", "Comma-separated slot IDs already filled")
	cmd.Var(&templatePaths, "template", "Additional template YAML file (repeatable)")
	profileFlags(cmd, &profilesDir, &profileCode, "profiles")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if casePath == "" {
		fmt.Fprintln(stderr, "Error: --case is required")
		cmd.Usage()
		return 2
	}

	env, err := buildEngineEnv(seedPath, profilesDir, profileCode, templatePaths)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	snap, kase, _, code := analyzeCase(casePath, storePath, env, stderr)
	if code != 0 {
		return code
	}

	tmpl, err := env.templates.Get(kase.TemplateID)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	var filled []string
	if filledCSV != "" {
		filled = strings.Split(filledCSV, ",")
		for i := range filled {
			filled[i] = strings.TrimSpace(filled[i])
		}
		sort.Strings(filled)
	}

	q, err := queue.NewBuilder(env.reg.All(), env.queueOptions()...).Build(kase, tmpl, snap, filled)
	if err != nil {
		fmt.Fprintf(stderr, "Queue build failed: %v\n", err)
		return 1
	}
	printJSON(stdout, q)
	return 0
}

func runAuditCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("audit", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		casePath      string
		documentPath  string
		storePath     string
		seedPath      string
		profilesDir   string
		profileCode   string
		templatePaths stringList
	)
	cmd.StringVar(&casePath, "case", "", "JSON file describing the reporting case (REQUIRED)")
	cmd.StringVar(&documentPath, "document", "", "JSON file with the compiled document (REQUIRED)")
	cmd.StringVar(&storePath, "store", "psur-regos.db", "SQLite atom store path")
	cmd.StringVar(&seedPath, "seed", "", "Obligation seed YAML (default: built-in EU MDR set)")
	cmd.Var(&templatePaths, "template", "Additional template YAML file (repeatable)")
	profileFlags(cmd, &profilesDir, &profileCode, "profiles")
	if err := cmd.Parse(args); err != nil {
		return 2
	}
	if casePath == "" || documentPath == "" {
		fmt.Fprintln(stderr, "Error: --case and --document are required")
		cmd.Usage()
		return 2
	}

	var doc contracts.CompiledDocument
	docData, err := os.ReadFile(documentPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error reading document: %v\n", err)
		return 1
	}
	if err := json.Unmarshal(docData, &doc); err != nil {
		fmt.Fprintf(stderr, "Error parsing document: %v\n", err)
		return 1
	}

	env, err := buildEngineEnv(seedPath, profilesDir, profileCode, templatePaths)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	snap, kase, atoms, code := analyzeCase(casePath, storePath, env, stderr)
	if code != 0 {
		return code
	}

	tmpl, err := env.templates.Get(kase.TemplateID)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	atomsByID := make(map[string]contracts.EvidenceAtom, len(atoms))
	for _, atom := range atoms {
		atomsByID[atom.AtomID] = atom
	}

	result, err := audit.NewAuditor(env.reg.All(), env.auditOptions()...).Audit(&doc, tmpl, snap, atomsByID)
	if err != nil {
		fmt.Fprintf(stderr, "Audit failed: %v\n", err)
		return 1
	}
	printJSON(stdout, result)
	if result.OverallComplianceScore < 100 {
		return 1
	}
	return 0
}

func runRegistryVerifyCmd(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("registry verify", flag.ContinueOnError)
	cmd.SetOutput(stderr)

	var (
		seedPath      string
		profilesDir   string
		profileCode   string
		templatePaths stringList
	)
	cmd.StringVar(&seedPath, "seed", "", "Obligation seed YAML (default: built-in EU MDR set)")
	cmd.Var(&templatePaths, "template", "Template YAML file to verify against (repeatable)")
	profileFlags(cmd, &profilesDir, &profileCode, "profiles")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	env, err := buildEngineEnv(seedPath, profilesDir, profileCode, templatePaths)
	if err != nil {
		fmt.Fprintf(stderr, "Engine setup failed: %v\n", err)
		return 1
	}

	if err := env.reg.VerifyIntegrity(derefTemplates(env.templates.List())); err != nil {
		fmt.Fprintf(stderr, "Integrity check failed: %v\n", err)
		return 1
	}

	fmt.Fprintf(stdout, "OK: %d obligations, %d templates, all references resolve\n",
		len(env.reg.All()), len(env.templates.List()))
	return 0
}

func derefTemplates(list []*contracts.Template) []contracts.Template {
	out := make([]contracts.Template, 0, len(list))
	for _, t := range list {
		out = append(out, *t)
	}
	return out
}

// analyzeCase loads the case, reads the atom snapshot, and computes
// coverage with the environment's analyzer options.
func analyzeCase(casePath, storePath string, env *engineEnv, stderr io.Writer) (*contracts.CoverageSnapshot, contracts.Case, []contracts.EvidenceAtom, int) {
	var kase contracts.Case

	c, err := loadCase(casePath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return nil, kase, nil, 1
	}

	atomStore, err := store.OpenSQLiteAtomStore(storePath)
	if err != nil {
		fmt.Fprintf(stderr, "Error opening store: %v\n", err)
		return nil, kase, nil, 1
	}
	defer func() { _ = atomStore.Close() }()

	atoms, err := atomStore.ListAll(context.Background())
	if err != nil {
		fmt.Fprintf(stderr, "Error listing atoms: %v\n", err)
		return nil, kase, nil, 1
	}

	snap, err := coverage.NewAnalyzer(env.reg, env.analyzerOptions()...).Analyze(c, atoms)
	if err != nil {
		fmt.Fprintf(stderr, "Coverage analysis failed: %v\n", err)
		return nil, kase, nil, 1
	}
	return snap, c, atoms, 0
}

// stringList is a repeatable flag value.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}
