package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jward/arbor"
)

var instanceCmd = &cobra.Command{
	Use:   "instance <path>",
	Short: "Show one instance with its parameters, ports and declarations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQuery("instance", func(q *arbor.QueryBuilder) (CLIResult, error) {
			d, err := q.Instance(flagRun, args[0])
			if err != nil {
				return CLIResult{}, err
			}
			if d == nil {
				return CLIResult{}, fmt.Errorf("no instance %s", args[0])
			}
			return CLIResult{Results: detailToCLI(d), TotalCount: count(1)}, nil
		})
	},
}

var paramsCmd = &cobra.Command{
	Use:   "params <path>",
	Short: "List the effective parameter values of an instance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQuery("params", func(q *arbor.QueryBuilder) (CLIResult, error) {
			params, err := q.Params(flagRun, args[0])
			if err != nil {
				return CLIResult{}, err
			}
			if params == nil {
				return CLIResult{}, fmt.Errorf("no instance %s", args[0])
			}
			out := paramsToCLI(params)
			return CLIResult{Results: out, TotalCount: count(len(out))}, nil
		})
	},
}

var netsCmd = &cobra.Command{
	Use:   "nets <path>",
	Short: "List the nets of an instance with the ports attached to them",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withQuery("nets", func(q *arbor.QueryBuilder) (CLIResult, error) {
			nets, err := q.Nets(flagRun, args[0])
			if err != nil {
				return CLIResult{}, err
			}
			if nets == nil {
				return CLIResult{}, fmt.Errorf("no instance %s", args[0])
			}
			out := netsToCLI(nets)
			return CLIResult{Results: out, TotalCount: count(len(out))}, nil
		})
	},
}
