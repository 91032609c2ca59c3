// Package report renders an aggregated coverage tree as a terminal table or as
// nested JSON.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/olekukonko/tablewriter"

	"github.com/l3aro/dfcov/pkg/coverage"
	"github.com/l3aro/dfcov/pkg/source"
	"github.com/l3aro/dfcov/pkg/types"
)

// Rate thresholds for coloring.
const (
	GoodRate = 0.8
	FairRate = 0.5
)

var (
	goodStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	fairStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	poorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
)

// Options controls what a report includes.
type Options struct {
	Color   bool                     // Color rates in the table
	Methods bool                     // One row per method under each class
	Spans   map[string][]source.Span // Declared spans per internal class name
}

// Summary writes one table row per class (and optionally per method) with a
// footer holding the root totals. The tree must be aggregated.
func Summary(w io.Writer, tree *coverage.Tree, opts Options) error {
	table := tablewriter.NewWriter(w)
	header := []string{"Class", "Methods", "Covered", "Pairs", "Rate"}
	alignment := []int{
		tablewriter.ALIGN_LEFT,
		tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT,
		tablewriter.ALIGN_RIGHT,
	}
	if opts.Methods {
		header = append(header, "Lines", "Uncovered")
		alignment = append(alignment, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT)
	}
	table.SetHeader(header)
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAutoWrapText(false)
	table.SetColumnAlignment(alignment)

	classes := 0
	err := tree.Walk(func(id coverage.NodeID, _ int) error {
		node := tree.Node(id)
		if node.Class == nil {
			return nil
		}
		classes++

		row := countsRow(displayName(node.Class.Name), node.Counts, opts.Color)
		if opts.Methods {
			row = append(row, "", "")
		}
		table.Append(row)

		if !opts.Methods {
			return nil
		}
		spans := opts.Spans[node.Class.Name]
		for _, m := range node.Class.Methods() {
			row := countsRow("  "+m.Key, m.Counts, opts.Color)
			row = append(row, lineRange(node.Class.Name, m, spans), uncoveredNames(m.Uncovered))
			table.Append(row)
		}
		return nil
	})
	if err != nil {
		return err
	}

	total := tree.Node(tree.Root()).Counts
	footer := []string{
		fmt.Sprintf("Total Classes %d", classes),
		fmt.Sprintf("%d", total.MethodCount),
		fmt.Sprintf("%d", total.Covered),
		fmt.Sprintf("%d", total.Total),
		formatRate(total, false),
	}
	if opts.Methods {
		footer = append(footer, "", "")
	}
	table.SetFooter(footer)
	table.Render()
	return nil
}

func countsRow(name string, c coverage.Counts, color bool) []string {
	return []string{
		name,
		fmt.Sprintf("%d", c.MethodCount),
		fmt.Sprintf("%d", c.Covered),
		fmt.Sprintf("%d", c.Total),
		formatRate(c, color),
	}
}

func formatRate(c coverage.Counts, color bool) string {
	if c.Total == 0 {
		return "-"
	}
	s := fmt.Sprintf("%.1f%%", c.Rate()*100)
	if !color {
		return s
	}
	return rateStyle(c.Rate()).Render(s)
}

func rateStyle(rate float64) lipgloss.Style {
	switch {
	case rate >= GoodRate:
		return goodStyle
	case rate >= FairRate:
		return fairStyle
	default:
		return poorStyle
	}
}

// displayName turns an internal class name into its dotted form.
func displayName(className string) string {
	return strings.ReplaceAll(className, "/", ".")
}

// lineRange renders the observed instruction lines and, when the declaration
// was located, the declared source lines.
func lineRange(className string, m *coverage.MethodData, spans []source.Span) string {
	observed := fmt.Sprintf("%d-%d", m.FirstLine, m.LastLine)
	span, ok := declared(className, m, spans)
	if !ok {
		return observed
	}
	return fmt.Sprintf("%s (src %d-%d)", observed, span.StartLine, span.EndLine)
}

func declared(className string, m *coverage.MethodData, spans []source.Span) (source.Span, bool) {
	if len(spans) == 0 {
		return source.Span{}, false
	}
	return source.Find(spans, types.SimpleName(className), m.Name, m.FirstLine)
}

func uncoveredNames(set types.VarSet) string {
	if set.Len() == 0 {
		return ""
	}
	seen := make(map[string]bool)
	var names []string
	for _, v := range set.Sorted() {
		name := v.Name
		if v.IsField() {
			name = types.SimpleName(v.Owner) + "." + v.Name
		}
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return strings.Join(names, ", ")
}

// Node is the JSON form of a tree node.
type Node struct {
	Name     string          `json:"name"`
	Kind     string          `json:"kind"`
	Counts   coverage.Counts `json:"counts"`
	Rate     float64         `json:"rate"`
	Tested   *bool           `json:"tested,omitempty"`
	Source   string          `json:"source,omitempty"`
	Methods  []MethodNode    `json:"methods,omitempty"`
	Children []Node          `json:"children,omitempty"`
}

// MethodNode is the JSON form of one method of a class leaf.
type MethodNode struct {
	Key       string                  `json:"key"`
	FirstLine int                     `json:"first_line"`
	LastLine  int                     `json:"last_line"`
	Counts    coverage.Counts         `json:"counts"`
	Rate      float64                 `json:"rate"`
	Uncovered []types.ProgramVariable `json:"uncovered,omitempty"`
	Declared  *source.Span            `json:"declared,omitempty"`
}

// Node kinds.
const (
	KindRoot    = "root"
	KindPackage = "package"
	KindClass   = "class"
)

// Build converts an aggregated tree into its JSON form.
func Build(tree *coverage.Tree, opts Options) Node {
	return build(tree, tree.Root(), opts)
}

func build(tree *coverage.Tree, id coverage.NodeID, opts Options) Node {
	n := tree.Node(id)
	out := Node{
		Name:   n.Name,
		Kind:   KindPackage,
		Counts: n.Counts,
		Rate:   n.Counts.Rate(),
	}
	if tree.IsRoot(id) {
		out.Kind = KindRoot
	}

	if c := n.Class; c != nil {
		tested := c.Tested()
		out.Kind = KindClass
		out.Name = displayName(c.Name)
		out.Tested = &tested
		out.Source = c.Source
		spans := opts.Spans[c.Name]
		for _, m := range c.Methods() {
			mn := MethodNode{
				Key:       m.Key,
				FirstLine: m.FirstLine,
				LastLine:  m.LastLine,
				Counts:    m.Counts,
				Rate:      m.Counts.Rate(),
				Uncovered: m.Uncovered.Sorted(),
			}
			if span, ok := declared(c.Name, m, spans); ok {
				mn.Declared = &span
			}
			out.Methods = append(out.Methods, mn)
		}
	}

	for _, child := range tree.Children(id) {
		out.Children = append(out.Children, build(tree, child, opts))
	}
	return out
}

// WriteJSON writes the tree as indented JSON.
func WriteJSON(w io.Writer, tree *coverage.Tree, opts Options) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(Build(tree, opts)); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return nil
}
