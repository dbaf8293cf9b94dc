package main

import (
	"github.com/spf13/cobra"

	"github.com/jward/arbor"
)

var (
	flagDef      string
	flagKinds    string
	flagUnder    string
	flagBound    bool
	flagDiagKind string
	flagSeverity string
	flagCategory string
)

var instancesCmd = &cobra.Command{
	Use:   "instances",
	Short: "List instances with filtering, sorting and pagination",
	Args:  cobra.NoArgs,
	RunE:  runInstances,
}

var definitionsCmd = &cobra.Command{
	Use:   "definitions",
	Short: "Show which definitions instantiate which, with counts",
	Args:  cobra.NoArgs,
	RunE:  runDefinitions,
}

var diagnosticsCmd = &cobra.Command{
	Use:   "diagnostics",
	Short: "List the diagnostics of a run",
	Args:  cobra.NoArgs,
	RunE:  runDiagnostics,
}

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Count diagnostics per kind",
	Args:  cobra.NoArgs,
	RunE:  runSummary,
}

var unresolvedCmd = &cobra.Command{
	Use:   "unresolved",
	Short: "List references that bound to nothing",
	Args:  cobra.NoArgs,
	RunE:  runUnresolved,
}

func init() {
	instancesCmd.Flags().StringVar(&flagDef, "def", "", "only instances of this definition")
	instancesCmd.Flags().StringVar(&flagKinds, "kind", "", "comma-separated instance kinds (module,interface,program,gen_scope,primitive,undefined)")
	instancesCmd.Flags().StringVar(&flagUnder, "under", "", "only this instance and its descendants")
	instancesCmd.Flags().BoolVar(&flagBound, "bound", false, "only instances created by bind statements")

	diagnosticsCmd.Flags().StringVar(&flagDiagKind, "kind", "", "comma-separated diagnostic kinds")
	diagnosticsCmd.Flags().StringVar(&flagSeverity, "severity", "", "comma-separated severities (error,warning,info)")
	diagnosticsCmd.Flags().StringVar(&flagCategory, "category", "", "diagnostic category")
}

func runInstances(cmd *cobra.Command, args []string) error {
	return withQuery("instances", func(q *arbor.QueryBuilder) (CLIResult, error) {
		filter := arbor.InstanceFilter{
			DefName:   flagDef,
			Kinds:     splitList(flagKinds),
			Under:     flagUnder,
			BoundOnly: flagBound,
		}
		page, err := q.Instances(flagRun, filter, buildSort(), buildPagination())
		if err != nil {
			return CLIResult{}, err
		}
		return CLIResult{Results: instancesToCLI(page.Items), TotalCount: count(page.TotalCount)}, nil
	})
}

func runDefinitions(cmd *cobra.Command, args []string) error {
	return withQuery("definitions", func(q *arbor.QueryBuilder) (CLIResult, error) {
		edges, err := q.DefinitionGraph(flagRun)
		if err != nil {
			return CLIResult{}, err
		}
		out := make([]CLIEdge, 0, len(edges))
		for _, e := range edges {
			out = append(out, CLIEdge{Parent: e.Parent, Child: e.Child, Count: e.Count})
		}
		return CLIResult{Results: out, TotalCount: count(len(out))}, nil
	})
}

func runDiagnostics(cmd *cobra.Command, args []string) error {
	return withQuery("diagnostics", func(q *arbor.QueryBuilder) (CLIResult, error) {
		filter := arbor.DiagnosticFilter{
			Kinds:      splitList(flagDiagKind),
			Severities: splitList(flagSeverity),
			Category:   flagCategory,
		}
		page, err := q.Diagnostics(flagRun, filter, buildPagination())
		if err != nil {
			return CLIResult{}, err
		}
		return CLIResult{Results: diagnosticsToCLI(page.Items), TotalCount: count(page.TotalCount)}, nil
	})
}

func runSummary(cmd *cobra.Command, args []string) error {
	return withQuery("summary", func(q *arbor.QueryBuilder) (CLIResult, error) {
		counts, err := q.DiagnosticSummary(flagRun)
		if err != nil {
			return CLIResult{}, err
		}
		out := make([]CLIKindCount, 0, len(counts))
		for _, c := range counts {
			out = append(out, CLIKindCount{Kind: c.Kind, Category: c.Category, Severity: c.Severity, Count: c.Count})
		}
		return CLIResult{Results: out, TotalCount: count(len(out))}, nil
	})
}

func runUnresolved(cmd *cobra.Command, args []string) error {
	return withQuery("unresolved", func(q *arbor.QueryBuilder) (CLIResult, error) {
		refs, err := q.Unresolved(flagRun)
		if err != nil {
			return CLIResult{}, err
		}
		out := make([]CLIReference, 0, len(refs))
		for _, r := range refs {
			out = append(out, CLIReference{Name: r.Name, Instance: r.InstancePath, File: r.FilePath, Line: r.Line, Col: r.Col})
		}
		return CLIResult{Results: out, TotalCount: count(len(out))}, nil
	})
}
