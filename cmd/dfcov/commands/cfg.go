package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/l3aro/dfcov/pkg/analysis"
	"github.com/l3aro/dfcov/pkg/cfg"
	"github.com/l3aro/dfcov/pkg/dfg"
	"github.com/l3aro/dfcov/pkg/types"
)

// cfgCmd represents the cfg command
var cfgCmd = &cobra.Command{
	Use:   "cfg <class-document> <method>",
	Short: "Show the control flow graph of a method",
	Long: `Builds the Control Flow Graph of one method of a class document and solves
reaching definitions over it. The method is given by name, or by name and
descriptor when the name is overloaded. Outputs nodes with their definitions,
uses and reaching definitions, plus the edges.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		in, err := analysis.LoadClassInput(args[0])
		if err != nil {
			return err
		}
		method, err := findMethod(in, args[1])
		if err != nil {
			return err
		}
		policy, err := killPolicy(cmd)
		if err != nil {
			return err
		}

		g, err := cfg.NewBuilder(in.Name, in.Fields).Build(method)
		if err != nil {
			return fmt.Errorf("building graph: %w", err)
		}
		stats, err := dfg.NewReachingDefsAnalyzer(policy).Solve(g)
		if err != nil {
			return fmt.Errorf("solving reaching definitions: %w", err)
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			data, err := json.MarshalIndent(newGraphView(g, stats), "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling JSON: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}
		printGraph(cmd.OutOrStdout(), g, stats)
		return nil
	},
}

// nodeView exposes the variable sets a Node keeps out of its JSON form.
type nodeView struct {
	*cfg.Node
	Definitions []types.ProgramVariable `json:"definitions"`
	Uses        []types.ProgramVariable `json:"uses"`
	Reach       []types.ProgramVariable `json:"reach"`
}

type graphView struct {
	*cfg.CFG
	Nodes []nodeView     `json:"nodes"`
	Stats dfg.SolveStats `json:"stats"`
}

func newGraphView(g *cfg.CFG, stats dfg.SolveStats) graphView {
	v := graphView{CFG: g, Stats: stats}
	for _, n := range g.Nodes() {
		v.Nodes = append(v.Nodes, nodeView{
			Node:        n,
			Definitions: n.Definitions.Sorted(),
			Uses:        n.Uses.Sorted(),
			Reach:       n.Reach.Sorted(),
		})
	}
	return v
}

// printGraph prints a graph in human-readable format.
func printGraph(w io.Writer, g *cfg.CFG, stats dfg.SolveStats) {
	fmt.Fprintf(w, "=== CFG for method: %s.%s ===\n", g.ClassName, g.Key())
	fmt.Fprintf(w, "Lines: %d-%d  Static: %v  Impure: %v\n", g.FirstLine, g.LastLine, g.Static, g.Impure)
	fmt.Fprintf(w, "Solver: %d nodes, %d definitions, %d iterations\n", stats.Nodes, stats.Definitions, stats.Iterations)

	nodes := g.Nodes()
	fmt.Fprintf(w, "\nNodes (%d):\n", len(nodes))
	for _, n := range nodes {
		fmt.Fprintf(w, "  %-6s L%-4d %-14s -> %v\n", types.FormatIndex(n.Index), n.Line, nodeLabel(n), formatIndices(n.Successors))
		for _, d := range n.Definitions.Sorted() {
			fmt.Fprintf(w, "      def   %s\n", d)
		}
		for _, u := range n.Uses.Sorted() {
			fmt.Fprintf(w, "      use   %s\n", u)
		}
		if n.Reach.Len() > 0 {
			fmt.Fprintf(w, "      reach %s\n", formatVariables(n.Reach.Sorted()))
		}
	}

	fmt.Fprintf(w, "\nEdges (%d):\n", len(g.Edges))
	for _, e := range g.Edges {
		fmt.Fprintf(w, "  %s --%s--> %s\n", types.FormatIndex(e.Source), e.Type, types.FormatIndex(e.Target))
	}
}

func nodeLabel(n *cfg.Node) string {
	switch n.Type {
	case cfg.NodeTypeEntry, cfg.NodeTypeExit:
		return strings.ToUpper(string(n.Type))
	case cfg.NodeTypeCall:
		if n.Call != nil {
			return n.Opcode.String() + " " + n.Call.Key()
		}
	}
	return n.Opcode.String()
}

func formatIndices(indices []int) string {
	parts := make([]string, len(indices))
	for i, idx := range indices {
		parts[i] = types.FormatIndex(idx)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func formatVariables(vs []types.ProgramVariable) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = fmt.Sprintf("%s@%s", v.Name, types.FormatIndex(v.Index))
	}
	return strings.Join(parts, ", ")
}

func init() {
	cfgCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	cfgCmd.Flags().String("policy", "", "Kill policy: name or identity (default from config)")
	RootCmd.AddCommand(cfgCmd)
}
