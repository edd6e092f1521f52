package harness

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/streamplan/internal/catalog"
	"github.com/roach88/streamplan/internal/dataflow"
	"github.com/roach88/streamplan/internal/ir"
	"github.com/roach88/streamplan/internal/plan"
	"github.com/roach88/streamplan/internal/queryid"
	"github.com/roach88/streamplan/internal/store"
)

const defaultQueryID = "test-query-default"

// Harness holds the per-scenario execution state.
type Harness struct {
	store       *store.Store
	ids         queryid.Generator
	logger      *slog.Logger
	catalogHash string
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database and import the stream catalog
// 2. Decode the plan document
// 3. Validate and compile it into a dataflow topology
// 4. Save the compiled query
// 5. Check the expected error or evaluate assertions
//
// Errors in the plan itself are reported through the result. Run returns an
// error only when the scenario cannot be executed at all.
func Run(scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	queryID := scenario.QueryID
	if queryID == "" {
		queryID = defaultQueryID
	}

	h := &Harness{
		store:  st,
		ids:    queryid.NewFixedGenerator(queryID),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	ctx := context.Background()
	if err := h.importCatalog(ctx, scenario.Catalog); err != nil {
		return nil, err
	}

	result := NewResult()
	if err := h.compile(ctx, scenario, result); err != nil {
		result.ErrorCode = ErrorCode(err)
		result.Error = err.Error()
	}

	created, err := st.ListStreamsByOrigin(ctx, store.OriginSink)
	if err != nil {
		return nil, err
	}
	for _, spec := range created {
		result.Created = append(result.Created, Created{
			Name:       spec.Name,
			Schema:     spec.Schema.String(),
			Partitions: spec.Partitions,
		})
	}

	if scenario.Expect != nil {
		checkExpect(scenario.Expect, result)
		return result, nil
	}
	if result.Error != "" {
		result.AddError(fmt.Sprintf("compile failed: %s", result.Error))
		return result, nil
	}

	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(errMsg)
	}
	return result, nil
}

func (h *Harness) importCatalog(ctx context.Context, dir string) error {
	loaded, errs := catalog.LoadDir(dir, catalog.LoadModeCollectAll)
	if len(errs) > 0 {
		return fmt.Errorf("load catalog: %w", errors.Join(errs...))
	}
	c, err := catalog.New(loaded.Streams...)
	if err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	if h.catalogHash, err = c.Fingerprint(); err != nil {
		return fmt.Errorf("load catalog: %w", err)
	}
	return h.store.ImportCatalog(ctx, c)
}

// compile decodes, validates and compiles the plan, filling result.
func (h *Harness) compile(ctx context.Context, scenario *Scenario, result *Result) error {
	root, err := LoadPlan(scenario.Plan)
	if err != nil {
		return err
	}

	validation, err := plan.Validate(root)
	if err != nil {
		return err
	}
	result.Warnings = append(result.Warnings, validation.Warnings...)

	cfg := scenario.Config
	if cfg.Repartition == "" {
		cfg.Repartition = plan.RepartitionAllow
	}

	streams := h.store.Streams(ctx)
	cc := plan.NewCompileContext(catalog.NewCachingOracle(streams), streams, plan.WithLogger(h.logger))
	b := dataflow.NewBuilder()
	if _, err := plan.Compile(root, b, cfg, cc); err != nil {
		return err
	}
	result.Topology = b.Topology()

	doc, err := plan.MarshalDocument(root)
	if err != nil {
		return err
	}
	result.Fingerprint, err = plan.Fingerprint(root)
	if err != nil {
		return err
	}

	topology, err := json.Marshal(result.Topology)
	if err != nil {
		return err
	}
	result.QueryID, _, err = h.store.SaveQuery(ctx, store.Query{
		ID:              h.ids.Generate(),
		Name:            scenario.Name,
		Fingerprint:     result.Fingerprint,
		Document:        string(doc),
		Topology:        string(topology),
		CompilerVersion: ir.CompilerVersion,
		CatalogHash:     h.catalogHash,
	})
	return err
}

// LoadPlan reads a plan document. Files ending in .json are decoded as
// JSON, everything else as YAML.
func LoadPlan(path string) (plan.Node, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return plan.UnmarshalDocument(data)
	}
	return plan.UnmarshalYAMLDocument(data)
}

// ErrorCode classifies a compile error for expect clauses.
func ErrorCode(err error) string {
	var pe *plan.Error
	switch {
	case errors.As(err, &pe):
		return string(pe.Code)
	case errors.Is(err, plan.ErrStreamNotFound):
		return ErrCodeStreamNotFound
	default:
		return ErrCodeOther
	}
}

func checkExpect(expect *ExpectClause, result *Result) {
	if result.Error == "" {
		result.AddError(fmt.Sprintf("expected %s error, plan compiled", expect.Error))
		return
	}
	if result.ErrorCode != expect.Error {
		result.AddError(fmt.Sprintf("expected %s error, got %s: %s", expect.Error, result.ErrorCode, result.Error))
	}
	if expect.Contains != "" && !strings.Contains(result.Error, expect.Contains) {
		result.AddError(fmt.Sprintf("expected error containing %q, got: %s", expect.Contains, result.Error))
	}
}
