package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/streamplan/internal/dataflow"
	"github.com/roach88/streamplan/internal/store"
)

// QuerySummary is one row of the queries list.
type QuerySummary struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Fingerprint     string `json:"fingerprint"`
	CompilerVersion string `json:"compiler_version"`
	Steps           int    `json:"steps"`
}

// QueryDetail is the output of queries show.
type QueryDetail struct {
	QuerySummary
	CatalogHash string             `json:"catalog_hash,omitempty"`
	Topology    *dataflow.Topology `json:"topology"`
	Document    json.RawMessage    `json:"document,omitempty"`
}

// NewQueriesCommand creates the queries command and its subcommands.
func NewQueriesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queries",
		Short: "Inspect compiled queries stored in the metastore",
		Long: `List, show and delete queries saved by compile --db.

All subcommands need --db (or STREAMPLAN_DB) pointing at an existing
metastore.`,
	}

	cmd.AddCommand(newQueriesListCommand(rootOpts))
	cmd.AddCommand(newQueriesShowCommand(rootOpts))
	cmd.AddCommand(newQueriesDeleteCommand(rootOpts))
	return cmd
}

func newQueriesListCommand(opts *RootOptions) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List stored queries in the order they were saved",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, opts, func(ctx context.Context, st *store.Store, f *OutputFormatter) error {
				queries, err := st.ListQueries(ctx, name)
				if err != nil {
					_ = f.Error(ErrCodeStore, err.Error(), nil)
					return WrapExitError(ExitCommandError, "list queries", err)
				}
				summaries := make([]QuerySummary, 0, len(queries))
				for _, q := range queries {
					topo, err := decodeTopology(q)
					if err != nil {
						_ = f.Error(ErrCodeStore, err.Error(), nil)
						return WrapExitError(ExitCommandError, "list queries", err)
					}
					summaries = append(summaries, summarize(q, topo))
				}
				if opts.Format == "json" {
					return f.Success(summaries)
				}
				return outputQueryList(f, summaries)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "only list queries with this name")
	return cmd
}

func newQueriesShowCommand(opts *RootOptions) *cobra.Command {
	var document bool
	cmd := &cobra.Command{
		Use:           "show <query-id>",
		Short:         "Show a stored query and its topology",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, opts, func(ctx context.Context, st *store.Store, f *OutputFormatter) error {
				q, err := st.GetQuery(ctx, args[0])
				if err != nil {
					return queryLookupError(f, err)
				}
				topo, err := decodeTopology(q)
				if err != nil {
					_ = f.Error(ErrCodeStore, err.Error(), nil)
					return WrapExitError(ExitCommandError, "show query", err)
				}
				detail := QueryDetail{QuerySummary: summarize(q, topo), CatalogHash: q.CatalogHash, Topology: topo}
				if document {
					detail.Document = json.RawMessage(q.Document)
				}
				if opts.Format == "json" {
					return f.Success(detail)
				}
				return outputQueryDetail(f, detail)
			})
		},
	}
	cmd.Flags().BoolVar(&document, "document", false, "include the plan document")
	return cmd
}

func newQueriesDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <query-id>",
		Short:         "Delete a stored query",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, opts, func(ctx context.Context, st *store.Store, f *OutputFormatter) error {
				if err := st.DeleteQuery(ctx, args[0]); err != nil {
					return queryLookupError(f, err)
				}
				if opts.Format == "json" {
					return f.Success(map[string]string{"deleted": args[0]})
				}
				return f.Success(fmt.Sprintf("✓ Deleted query %s", args[0]))
			})
		},
	}
}

// withStore opens the metastore named by --db, runs fn and closes it.
// Unlike compile, it never creates a new database.
func withStore(cmd *cobra.Command, opts *RootOptions, fn func(context.Context, *store.Store, *OutputFormatter) error) error {
	f := opts.formatter(cmd)
	if opts.DB == "" {
		_ = f.Error(ErrCodeStore, "no metastore given: use --db or STREAMPLAN_DB", nil)
		return NewExitError(ExitCommandError, "no metastore given")
	}
	if _, err := os.Stat(opts.DB); err != nil {
		_ = f.Error(ErrCodeNotFound, fmt.Sprintf("database not found: %s", opts.DB), nil)
		return WrapExitError(ExitCommandError, "database not found", err)
	}

	st, err := store.Open(opts.DB)
	if err != nil {
		_ = f.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "open metastore", err)
	}
	defer st.Close()

	return fn(commandContext(cmd), st, f)
}

func queryLookupError(f *OutputFormatter, err error) error {
	if errors.Is(err, store.ErrQueryNotFound) {
		_ = f.Error(ErrCodeQueryNotFound, err.Error(), nil)
		return WrapExitError(ExitFailure, "query not found", err)
	}
	_ = f.Error(ErrCodeStore, err.Error(), nil)
	return WrapExitError(ExitCommandError, "metastore error", err)
}

func decodeTopology(q store.Query) (*dataflow.Topology, error) {
	var topo dataflow.Topology
	if err := json.Unmarshal([]byte(q.Topology), &topo); err != nil {
		return nil, fmt.Errorf("decode topology of query %s: %w", q.ID, err)
	}
	return &topo, nil
}

func summarize(q store.Query, topo *dataflow.Topology) QuerySummary {
	return QuerySummary{
		ID:              q.ID,
		Name:            q.Name,
		Fingerprint:     q.Fingerprint,
		CompilerVersion: q.CompilerVersion,
		Steps:           len(topo.Steps),
	}
}

func outputQueryList(f *OutputFormatter, summaries []QuerySummary) error {
	if len(summaries) == 0 {
		return f.Success("No queries stored.")
	}
	var sb strings.Builder
	for i, s := range summaries {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%s  %-24s %d steps  %s", s.ID, s.Name, s.Steps, shortHash(s.Fingerprint))
	}
	return f.Success(sb.String())
}

func outputQueryDetail(f *OutputFormatter, d QueryDetail) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Query:       %s\n", d.ID)
	fmt.Fprintf(&sb, "Name:        %s\n", d.Name)
	fmt.Fprintf(&sb, "Fingerprint: %s\n", d.Fingerprint)
	fmt.Fprintf(&sb, "Compiler:    %s\n", d.CompilerVersion)
	if d.CatalogHash != "" {
		fmt.Fprintf(&sb, "Catalog:     %s\n", d.CatalogHash)
	}
	sb.WriteString("\n")
	sb.WriteString(strings.TrimRight(d.Topology.Describe(), "\n"))
	if d.Document != nil {
		sb.WriteString("\n\n")
		sb.Write(d.Document)
	}
	return f.Success(sb.String())
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
