// Package arbor elaborates hardware designs. It turns a set of parsed HDL
// design files into the instance hierarchy a simulator or netlister
// consumes: every module instance with its parameters bound, generate
// constructs unrolled, ports connected, and every name bound to what it
// denotes.
//
// # Pipeline
//
// Arbor runs in four steps:
//
//  1. Load: design files (JSON or YAML syntax trees) are validated against
//     an embedded CUE schema and flattened into indexed node stores.
//
//  2. Elaborate: a definition table is built from every design unit, config
//     declarations are resolved, top-level definitions are identified, and
//     one instance tree per top is built with parameters bound and generate
//     constructs expanded. Bind statements then attach extra instances under
//     their targets.
//
//  3. Resolve: late binding walks every instance and binds the references
//     left open during the build, creating implicit nets where allowed.
//
//  4. Persist: the hierarchy, parameters, nets, ports, references and
//     diagnostics are written to SQLite as a run.
//
// Design problems never fail a run. They are diagnostics, persisted with
// the run and returned in [Result.Diagnostics].
//
// # Usage
//
//	e, err := arbor.New("arbor.db")
//	if err != nil { ... }
//	defer e.Close()
//
//	res, err := e.Run(ctx, []string{"rtl/top.json", "rtl/alu.yaml"})
//
//	q := e.Query()
//	tree, err := q.Hierarchy(0, "", 0)
//
// # Query API
//
// The [QueryBuilder] returned by [Engine.Query] reads persisted runs; a run
// ID of 0 means the latest run:
//
//   - [QueryBuilder.Hierarchy]: the instance tree, optionally from a subtree.
//   - [QueryBuilder.Instance]: one instance with parameters, ports and nets.
//   - [QueryBuilder.Params]: effective parameter values of an instance.
//   - [QueryBuilder.Nets]: nets of an instance with their connections.
//   - [QueryBuilder.Diagnostics]: filtered, paged diagnostics.
//   - [QueryBuilder.InstancesOf]: every instance of a definition.
//   - [QueryBuilder.Unresolved]: references late binding could not bind.
//   - [QueryBuilder.DefinitionGraph]: which definitions instantiate which.
//
// # Incremental runs
//
// [Engine.Run] hashes the design files together with the settings that
// affect elaboration. When the hash matches the latest run nothing is
// rebuilt; use [WithForce] to elaborate anyway.
//
// # Evaluators
//
// Constant expressions are evaluated with HCL expression syntax by default.
// Setting evaluator = "risor" in arbor.hcl evaluates them with Risor
// instead, after an optional prelude.risor from the scripts directory.
package arbor
