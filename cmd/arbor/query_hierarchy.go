package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jward/arbor"
)

var flagDepth int

var hierarchyCmd = &cobra.Command{
	Use:   "hierarchy [path]",
	Short: "Show the instance tree",
	Long:  "Prints every top with its subtree, or the subtree at path. --depth limits the levels shown below the roots.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHierarchy,
}

var ancestorsCmd = &cobra.Command{
	Use:   "ancestors <path>",
	Short: "List the instances enclosing path, top first",
	Args:  cobra.ExactArgs(1),
	RunE:  runAncestors,
}

func init() {
	hierarchyCmd.Flags().IntVar(&flagDepth, "depth", 0, "levels to show below the roots (0 for all)")
}

func runHierarchy(cmd *cobra.Command, args []string) error {
	root := ""
	if len(args) > 0 {
		root = args[0]
	}
	return withQuery("hierarchy", func(q *arbor.QueryBuilder) (CLIResult, error) {
		roots, err := q.Hierarchy(flagRun, root, flagDepth)
		if err != nil {
			return CLIResult{}, err
		}
		if root != "" && len(roots) == 0 {
			return CLIResult{}, fmt.Errorf("no instance %s", root)
		}
		out := make([]CLIHierarchyNode, 0, len(roots))
		for _, r := range roots {
			out = append(out, hierarchyToCLI(r))
		}
		return CLIResult{Results: out, TotalCount: count(len(out))}, nil
	})
}

func runAncestors(cmd *cobra.Command, args []string) error {
	return withQuery("ancestors", func(q *arbor.QueryBuilder) (CLIResult, error) {
		chain, err := q.Ancestors(flagRun, args[0])
		if err != nil {
			return CLIResult{}, err
		}
		if chain == nil {
			return CLIResult{}, fmt.Errorf("no instance %s", args[0])
		}
		out := instancesToCLI(chain)
		return CLIResult{Results: out, TotalCount: count(len(out))}, nil
	})
}
