package main

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FF6B6B"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFD166"))

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#90EE90"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// severityText colours a severity name.
func severityText(severity string) string {
	switch severity {
	case "error":
		return errorStyle.Render(severity)
	case "warning":
		return warningStyle.Render(severity)
	default:
		return infoStyle.Render(severity)
	}
}

// printRunBanner writes a one-line run summary to w.
func printRunBanner(w io.Writer, r CLIRun, elapsed time.Duration) {
	if r.Cached {
		fmt.Fprintf(w, "%s run %d (design unchanged)\n", dimStyle.Render("Reused"), r.ID)
		return
	}
	status := okStyle.Render("Elaborated")
	if r.Errors > 0 {
		status = errorStyle.Render("Elaborated with errors:")
	}
	fmt.Fprintf(w, "%s %s in %s: %d instances, %d diagnostics (run %d)\n",
		status, strings.Join(r.Tops, ", "), elapsed.Round(time.Millisecond),
		r.Instances, r.Diagnostics, r.ID)
	fmt.Fprintf(w, "Database: %s\n", r.Database)
}

// formatRunText formats a CLIRun as key/value lines.
func formatRunText(w io.Writer, r CLIRun) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Run:\t%d\n", r.ID)
	fmt.Fprintf(tw, "Started:\t%s\n", r.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(tw, "Evaluator:\t%s\n", r.Evaluator)
	fmt.Fprintf(tw, "Tops:\t%s\n", strings.Join(r.Tops, ", "))
	fmt.Fprintf(tw, "Instances:\t%d\n", r.Instances)
	fmt.Fprintf(tw, "Diagnostics:\t%d\n", r.Diagnostics)
	fmt.Fprintf(tw, "Design hash:\t%s\n", r.DesignHash)
	tw.Flush()
}

// formatFilesText formats CLIFile results as aligned columns.
func formatFilesText(w io.Writer, files []CLIFile) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, headerStyle.Render("PATH")+"\tFORMAT\tNODES")
	for _, f := range files {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", f.Path, f.Format, f.NodeCount)
	}
	tw.Flush()
}

// formatTreeText prints a hierarchy with two-space indentation per level.
func formatTreeText(w io.Writer, roots []CLIHierarchyNode) {
	var walk func(n CLIHierarchyNode, depth int)
	walk = func(n CLIHierarchyNode, depth int) {
		label := n.Name
		if depth == 0 {
			label = n.Path
		}
		fmt.Fprintf(w, "%s%s %s\n", strings.Repeat("  ", depth), label, dimStyle.Render(instanceTag(n.CLIInstance)))
		for _, c := range n.Children {
			walk(c, depth+1)
		}
	}
	for _, r := range roots {
		walk(r, 0)
	}
}

// instanceTag describes what an instance is, e.g. "(alu)" or "[gen_scope]".
func instanceTag(i CLIInstance) string {
	switch i.Kind {
	case "gen_scope":
		return "[generate]"
	case "undefined":
		return "(" + i.DefName + "?)"
	default:
		return "(" + i.DefName + ")"
	}
}

// formatInstancesText formats CLIInstance results as aligned columns.
func formatInstancesText(w io.Writer, insts []CLIInstance) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tDEFINITION\tKIND\tDEPTH\tLOCATION")
	for _, i := range insts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", i.Path, i.DefName, i.Kind, i.Depth, location(i.File, i.Line, i.Col))
	}
	tw.Flush()
}

// formatParamsText formats CLIParameter results as aligned columns.
func formatParamsText(w io.Writer, params []CLIParameter) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tVALUE\tSOURCE\tEXPR")
	for _, p := range params {
		value := p.Value
		if !p.Evaluated {
			value = warningStyle.Render("?")
		}
		source := p.Source
		if p.Overridden {
			source += "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", p.Name, value, source, p.Expr)
	}
	tw.Flush()
}

// formatDetailText formats one instance with its contents.
func formatDetailText(w io.Writer, d CLIInstanceDetail) {
	fmt.Fprintf(w, "%s %s\n", headerStyle.Render(d.Path), dimStyle.Render(instanceTag(d.CLIInstance)))
	fmt.Fprintf(w, "Location: %s\n", location(d.File, d.Line, d.Col))
	if d.Config != "" {
		fmt.Fprintf(w, "Config: %s\n", d.Config)
	}
	if d.BoundFrom != "" {
		fmt.Fprintf(w, "Bound from: %s\n", d.BoundFrom)
	}
	if len(d.Parameters) > 0 {
		fmt.Fprintln(w, "\nParameters:")
		formatParamsText(w, d.Parameters)
	}
	if len(d.Ports) > 0 {
		fmt.Fprintln(w, "\nPorts:")
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, p := range d.Ports {
			high := p.HighExpr
			if p.Unconnected {
				high = dimStyle.Render("unconnected")
			}
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", p.Direction, p.Name, high)
		}
		tw.Flush()
	}
	if len(d.Nets) > 0 {
		fmt.Fprintf(w, "\nNets: %s\n", strings.Join(d.Nets, ", "))
	}
	if len(d.Variables) > 0 {
		fmt.Fprintf(w, "Variables: %s\n", strings.Join(d.Variables, ", "))
	}
	if len(d.Children) > 0 {
		fmt.Fprintf(w, "Children: %s\n", strings.Join(d.Children, ", "))
	}
	if d.Unresolved > 0 {
		fmt.Fprintf(w, "%s %d\n", warningStyle.Render("Unresolved references:"), d.Unresolved)
	}
}

// formatNetsText lists nets and the ports attached to each.
func formatNetsText(w io.Writer, nets []CLINet) {
	for _, n := range nets {
		var tags []string
		if n.Implicit {
			tags = append(tags, "implicit")
		}
		if n.Port != "" {
			tags = append(tags, "port "+n.Port)
		}
		line := fmt.Sprintf("%s %s", n.NetType, headerStyle.Render(n.Name))
		if len(tags) > 0 {
			line += " " + dimStyle.Render("["+strings.Join(tags, ", ")+"]")
		}
		fmt.Fprintln(w, line)
		for _, c := range n.Connections {
			fmt.Fprintf(w, "  %s.%s (%s)\n", c.Instance, c.Port, c.Direction)
		}
	}
}

// formatEdgesText formats CLIEdge results as aligned columns.
func formatEdgesText(w io.Writer, edges []CLIEdge) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PARENT\tCHILD\tCOUNT")
	for _, e := range edges {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", e.Parent, e.Child, e.Count)
	}
	tw.Flush()
}

// formatDiagnosticsText prints diagnostics compiler style.
func formatDiagnosticsText(w io.Writer, diags []CLIDiagnostic) {
	for _, d := range diags {
		fmt.Fprintf(w, "%s: %s: %s %s\n",
			location(d.File, d.Line, d.Col), severityText(d.Severity), d.Message, dimStyle.Render("["+d.Kind+"]"))
		for _, s := range d.Secondary {
			fmt.Fprintf(w, "  %s\n", dimStyle.Render("see "+s))
		}
	}
}

// formatSummaryText formats CLIKindCount results as aligned columns.
func formatSummaryText(w io.Writer, counts []CLIKindCount) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KIND\tCATEGORY\tSEVERITY\tCOUNT")
	for _, c := range counts {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", c.Kind, c.Category, severityText(c.Severity), c.Count)
	}
	tw.Flush()
}

// formatReferencesText lists unresolved references.
func formatReferencesText(w io.Writer, refs []CLIReference) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tINSTANCE\tLOCATION")
	for _, r := range refs {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.Name, r.Instance, location(r.File, r.Line, r.Col))
	}
	tw.Flush()
}

func location(file string, line, col int) string {
	if file == "" {
		return "<unknown>"
	}
	return fmt.Sprintf("%s:%d:%d", file, line, col)
}

// outputResultText dispatches to the appropriate text formatter based on the
// result type.
func outputResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case CLIRun:
		formatRunText(w, v)
	case []CLIFile:
		formatFilesText(w, v)
	case []CLIHierarchyNode:
		formatTreeText(w, v)
	case []CLIInstance:
		formatInstancesText(w, v)
	case CLIInstanceDetail:
		formatDetailText(w, v)
	case []CLIParameter:
		formatParamsText(w, v)
	case []CLINet:
		formatNetsText(w, v)
	case []CLIEdge:
		formatEdgesText(w, v)
	case []CLIDiagnostic:
		formatDiagnosticsText(w, v)
	case []CLIKindCount:
		formatSummaryText(w, v)
	case []CLIReference:
		formatReferencesText(w, v)
	case string:
		fmt.Fprintln(w, v)
	case nil:
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}

	// Pagination footer.
	if result.TotalCount != nil {
		count := *result.TotalCount
		shown := resultLen(result.Results)
		if shown < count {
			fmt.Fprintf(w, "\nShowing %d of %d results\n", shown, count)
		}
	}
	return nil
}

// resultLen returns the length of a result slice, or 1 for a single value.
func resultLen(v any) int {
	switch r := v.(type) {
	case []CLIFile:
		return len(r)
	case []CLIHierarchyNode:
		return len(r)
	case []CLIInstance:
		return len(r)
	case []CLIParameter:
		return len(r)
	case []CLINet:
		return len(r)
	case []CLIEdge:
		return len(r)
	case []CLIDiagnostic:
		return len(r)
	case []CLIKindCount:
		return len(r)
	case []CLIReference:
		return len(r)
	case nil:
		return 0
	default:
		return 1
	}
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	if slices.Contains(validFormats, format) {
		return nil
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
