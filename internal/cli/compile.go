package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/streamplan/internal/catalog"
	"github.com/roach88/streamplan/internal/dataflow"
	"github.com/roach88/streamplan/internal/ir"
	"github.com/roach88/streamplan/internal/plan"
	"github.com/roach88/streamplan/internal/queryid"
	"github.com/roach88/streamplan/internal/schema"
	"github.com/roach88/streamplan/internal/store"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // topology output file path
	Name   string // query name stored in the metastore

	ids queryid.Generator
}

// CreatedStream is a sink destination created during compilation.
type CreatedStream struct {
	Name       string `json:"name"`
	Schema     string `json:"schema"`
	Partitions int    `json:"partitions"`
}

// CompileResult is the output of a successful compile.
type CompileResult struct {
	Plan        string             `json:"plan"`
	Fingerprint string             `json:"fingerprint"`
	CatalogHash string             `json:"catalog_hash"`
	QueryID     string             `json:"query_id,omitempty"`
	Stored      bool               `json:"stored,omitempty"`
	Warnings    []string           `json:"warnings,omitempty"`
	Created     []CreatedStream    `json:"created,omitempty"`
	Topology    *dataflow.Topology `json:"topology"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	return newCompileCommand(rootOpts, queryid.UUIDv7Generator{})
}

func newCompileCommand(rootOpts *RootOptions, ids queryid.Generator) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts, ids: ids}

	cmd := &cobra.Command{
		Use:   "compile <specs-dir> <plan-file>",
		Short: "Compile a plan into a dataflow topology",
		Long: `Compile a logical plan against the streams declared in a specs directory.

The plan is validated, compiled depth-first and printed as the topology of
dataflow steps it produces. Sink destinations that do not exist yet are
created. With --db the streams, created destinations and the compiled query
are kept in a SQLite metastore; compiling the same plan again reuses the
stored query.

Exit codes:
  0 - Plan compiled
  1 - Invalid specs or plan
  2 - Command error (invalid paths, unreadable database, etc.)`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(commandContext(cmd), opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the topology as JSON to this file")
	cmd.Flags().StringVar(&opts.Name, "name", "", "query name stored with --db (defaults to the root node id)")

	return cmd
}

func runCompile(ctx context.Context, opts *CompileOptions, specsDir, planFile string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	loaded := LoadCatalog(specsDir)
	if len(loaded.Problems) > 0 {
		_ = formatter.Problems("stream specs have errors", loaded.Problems)
		return NewExitError(loaded.exitCode(), fmt.Sprintf("%d stream spec error(s)", len(loaded.Problems)))
	}
	formatter.VerboseLog("Loaded %d stream(s) from %d CUE file(s)", loaded.Catalog.Len(), loaded.FileCount)

	// Taken before compiling adds sink destinations to the catalog.
	catalogHash, err := loaded.Catalog.Fingerprint()
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitFailure, "fingerprint catalog", err)
	}

	root, problem, err := loadPlan(planFile)
	if err != nil {
		_ = formatter.Problems("plan cannot be loaded", []Problem{*problem})
		return err
	}

	validation, err := plan.Validate(root)
	if err != nil {
		_ = formatter.Error(planErrorCode(err), err.Error(), nil)
		return WrapExitError(ExitFailure, "invalid plan", err)
	}

	var (
		oracle plan.PartitionOracle    = loaded.Catalog
		dests  plan.DestinationCatalog = loaded.Catalog
		st     *store.Store
	)
	if opts.DB != "" {
		st, err = store.Open(opts.DB)
		if err != nil {
			_ = formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "open metastore", err)
		}
		defer st.Close()

		if err := st.ImportCatalog(ctx, loaded.Catalog); err != nil {
			_ = formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "import streams", err)
		}
		streams := st.Streams(ctx)
		oracle, dests = streams, streams
		formatter.VerboseLog("Using metastore %s", opts.DB)
	}

	recorder := &recordingDestinations{DestinationCatalog: dests}
	cc := plan.NewCompileContext(catalog.NewCachingOracle(oracle), recorder, plan.WithLogger(opts.logger()))
	b := dataflow.NewBuilder()
	if _, err := plan.Compile(root, b, opts.compileConfig(), cc); err != nil {
		_ = formatter.Error(planErrorCode(err), err.Error(), nil)
		return WrapExitError(ExitFailure, "compile failed", err)
	}

	result := &CompileResult{
		Plan:        string(root.ID()),
		CatalogHash: catalogHash,
		Warnings:    validation.Warnings,
		Created:     recorder.created,
		Topology:    b.Topology(),
	}
	result.Fingerprint, err = plan.Fingerprint(root)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitFailure, "fingerprint plan", err)
	}

	if opts.Output != "" {
		if err := writeTopology(opts.Output, result.Topology); err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, err.Error(), nil)
			return WrapExitError(ExitCommandError, "write topology", err)
		}
		formatter.VerboseLog("Wrote topology to %s", opts.Output)
	}

	if st != nil {
		if err := saveQuery(ctx, st, opts, root, result); err != nil {
			_ = formatter.Error(ErrCodeStore, err.Error(), nil)
			return WrapExitError(ExitCommandError, "save query", err)
		}
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}
	return outputCompileText(formatter, result)
}

func saveQuery(ctx context.Context, st *store.Store, opts *CompileOptions, root plan.Node, result *CompileResult) error {
	doc, err := plan.MarshalDocument(root)
	if err != nil {
		return err
	}
	topology, err := json.Marshal(result.Topology)
	if err != nil {
		return err
	}

	name := opts.Name
	if name == "" {
		name = string(root.ID())
	}
	result.QueryID, result.Stored, err = st.SaveQuery(ctx, store.Query{
		ID:              opts.ids.Generate(),
		Name:            name,
		Fingerprint:     result.Fingerprint,
		Document:        string(doc),
		Topology:        string(topology),
		CompilerVersion: ir.CompilerVersion,
		CatalogHash:     result.CatalogHash,
	})
	return err
}

func writeTopology(path string, topo *dataflow.Topology) error {
	data, err := json.MarshalIndent(topo, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal topology: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

func outputCompileText(formatter *OutputFormatter, result *CompileResult) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "✓ Compiled plan %s (%d steps)\n", result.Plan, len(result.Topology.Steps))
	fmt.Fprintf(&sb, "  fingerprint: %s\n", result.Fingerprint)
	if result.QueryID != "" {
		state := "already stored"
		if result.Stored {
			state = "stored"
		}
		fmt.Fprintf(&sb, "  query: %s (%s)\n", result.QueryID, state)
	}
	for _, c := range result.Created {
		fmt.Fprintf(&sb, "  created: %s %s partitions=%d\n", c.Name, c.Schema, c.Partitions)
	}
	if len(result.Warnings) > 0 {
		sb.WriteString("\nWarnings:\n")
		for _, w := range result.Warnings {
			fmt.Fprintf(&sb, "  %s\n", w)
		}
	}
	sb.WriteString("\n")
	sb.WriteString(strings.TrimRight(result.Topology.Describe(), "\n"))
	return formatter.Success(sb.String())
}

// recordingDestinations remembers the destinations a compile pass creates.
type recordingDestinations struct {
	plan.DestinationCatalog
	created []CreatedStream
}

func (r *recordingDestinations) CreateDestination(name string, s *schema.Schema, partitions int) error {
	if err := r.DestinationCatalog.CreateDestination(name, s, partitions); err != nil {
		return err
	}
	r.created = append(r.created, CreatedStream{Name: name, Schema: s.String(), Partitions: partitions})
	return nil
}

// commandContext returns the command's context, or a background context
// when the command runs outside Execute.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
