package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jward/arbor"
	"github.com/jward/arbor/internal/config"
	"github.com/jward/arbor/internal/store"
)

var (
	flagRun    int64
	flagLimit  int
	flagOffset int
	flagSort   string
	flagOrder  string
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query an elaborated design",
	Long:  "Run queries against a stored elaboration run. Instances are addressed by their full hierarchical path, e.g. top.u_core.gen[2].u_reg. Line and column numbers are 1-based.",
}

func init() {
	queryCmd.PersistentFlags().Int64Var(&flagRun, "run", 0, "run ID to query (default: latest)")
	queryCmd.PersistentFlags().IntVar(&flagLimit, "limit", 50, "pagination limit (max 500)")
	queryCmd.PersistentFlags().IntVar(&flagOffset, "offset", 0, "pagination offset")
	queryCmd.PersistentFlags().StringVar(&flagSort, "sort", "", "sort field: path|name|def|depth")
	queryCmd.PersistentFlags().StringVar(&flagOrder, "order", "asc", "sort order: asc|desc")

	queryCmd.AddCommand(runCmd)
	queryCmd.AddCommand(filesCmd)
	queryCmd.AddCommand(hierarchyCmd)
	queryCmd.AddCommand(ancestorsCmd)
	queryCmd.AddCommand(instanceCmd)
	queryCmd.AddCommand(paramsCmd)
	queryCmd.AddCommand(netsCmd)
	queryCmd.AddCommand(instancesCmd)
	queryCmd.AddCommand(definitionsCmd)
	queryCmd.AddCommand(diagnosticsCmd)
	queryCmd.AddCommand(summaryCmd)
	queryCmd.AddCommand(unresolvedCmd)
}

// --- Helpers ---

// openStore opens the Store from the --db flag path or the settings found
// in the working directory.
func openStore() (*store.Store, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting cwd: %w", err)
	}
	s, err := loadSettings(cwd)
	if err != nil {
		return nil, err
	}
	if s.Path == "" {
		s.Path = filepath.Join(cwd, config.FileName)
	}
	dbPath := resolveDBPath(s)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("database not found: %s (run 'arbor elaborate' first)", dbPath)
	}
	return store.NewStore(dbPath)
}

// withQuery opens the store, runs fn and writes its result or error for
// command.
func withQuery(command string, fn func(q *arbor.QueryBuilder) (CLIResult, error)) error {
	s, err := openStore()
	if err != nil {
		return outputError(command, err)
	}
	defer s.Close()

	result, err := fn(arbor.NewQueryBuilder(s))
	if err != nil {
		return outputError(command, err)
	}
	result.Command = command
	return outputResult(result)
}

// outputResult marshals a CLIResult to stdout in the selected format.
func outputResult(result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(os.Stdout, result)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(os.Stderr, "%s %s\n", errorStyle.Render("Error:"), err)
		return err
	}
	result := CLIResult{
		Command: command,
		Error:   err.Error(),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(result)
	return err
}

// buildPagination creates a Pagination from CLI flags.
func buildPagination() arbor.Pagination {
	return arbor.Pagination{
		Limit:  flagLimit,
		Offset: flagOffset,
	}
}

// buildSort creates a Sort from CLI flags.
func buildSort() arbor.Sort {
	var field arbor.SortField
	switch flagSort {
	case "name":
		field = arbor.SortByName
	case "def":
		field = arbor.SortByDef
	case "depth":
		field = arbor.SortByDepth
	default:
		field = arbor.SortByPath
	}

	var order arbor.SortOrder
	switch flagOrder {
	case "desc":
		order = arbor.Desc
	default:
		order = arbor.Asc
	}

	return arbor.Sort{Field: field, Order: order}
}

// splitList splits a comma-separated flag value, dropping empty entries.
func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func count(n int) *int { return &n }

// --- run / files ---

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Show the queried run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQuery("run", func(q *arbor.QueryBuilder) (CLIResult, error) {
			r, err := q.Run(flagRun)
			if err != nil {
				return CLIResult{}, err
			}
			if r == nil {
				return CLIResult{}, fmt.Errorf("run %d not found", flagRun)
			}
			return CLIResult{Results: runToCLI(r), TotalCount: count(1)}, nil
		})
	},
}

var filesCmd = &cobra.Command{
	Use:   "files",
	Short: "List the design files of a run",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQuery("files", func(q *arbor.QueryBuilder) (CLIResult, error) {
			files, err := q.Files(flagRun)
			if err != nil {
				return CLIResult{}, err
			}
			out := make([]CLIFile, 0, len(files))
			for _, f := range files {
				out = append(out, CLIFile{Path: f.Path, Format: f.Format, Hash: f.Hash, NodeCount: f.NodeCount})
			}
			return CLIResult{Results: out, TotalCount: count(len(out))}, nil
		})
	},
}
