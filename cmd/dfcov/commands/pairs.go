package commands

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/l3aro/dfcov/pkg/analysis"
	"github.com/l3aro/dfcov/pkg/dfg"
	"github.com/l3aro/dfcov/pkg/types"
)

// pairsCmd represents the pairs command
var pairsCmd = &cobra.Command{
	Use:   "pairs <class-document> <method>",
	Short: "Show the def-use pairs of a method",
	Long: `Analyzes the whole class document and prints the def-use pairs of one
method: the pairs found inside the method, the pairs that reach into callees of
the same class and the inter-procedural matches the method takes part in.`,
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

		res, err := analysis.New(analysis.Options{Policy: policy, Parallel: 1, Logger: logger}).AnalyzeClass(in)
		if err != nil {
			return err
		}

		key := method.Key()
		out := pairsOutput{
			Class:        in.Name,
			Method:       key,
			Policy:       policy.String(),
			Pairs:        res.Pairs[key].Pairs,
			CrossPairs:   res.Match.CrossPairs[key],
			EntryCovered: res.Pairs[key].EntryCovered,
			Stats:        res.Stats[key],
		}
		for _, m := range res.Match.Matches {
			if m.MethodName == key || m.CallSiteMethodName == key {
				out.Matches = append(out.Matches, m)
			}
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			data, err := json.MarshalIndent(out, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling JSON: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}
		printPairs(cmd.OutOrStdout(), out)
		return nil
	},
}

type pairsOutput struct {
	Class        string                     `json:"class"`
	Method       string                     `json:"method"`
	Policy       string                     `json:"policy"`
	Pairs        []dfg.DefUsePair           `json:"pairs"`
	CrossPairs   []dfg.DefUsePair           `json:"cross_pairs,omitempty"`
	EntryCovered []types.ProgramVariable    `json:"entry_covered,omitempty"`
	Matches      []dfg.InterProceduralMatch `json:"matches,omitempty"`
	Stats        dfg.SolveStats             `json:"stats"`
}

func printPairs(w io.Writer, out pairsOutput) {
	fmt.Fprintf(w, "=== Def-use pairs for method: %s.%s (%s policy) ===\n", out.Class, out.Method, out.Policy)
	fmt.Fprintf(w, "Solver: %d iterations over %d nodes\n", out.Stats.Iterations, out.Stats.Nodes)

	fmt.Fprintf(w, "\nPairs (%d):\n", len(out.Pairs))
	for _, p := range out.Pairs {
		fmt.Fprintf(w, "  %s\n", p)
	}
	if len(out.CrossPairs) > 0 {
		fmt.Fprintf(w, "\nCross pairs (%d):\n", len(out.CrossPairs))
		for _, p := range out.CrossPairs {
			fmt.Fprintf(w, "  %s\n", p)
		}
	}
	if len(out.Matches) > 0 {
		fmt.Fprintf(w, "\nMatches (%d):\n", len(out.Matches))
		for _, m := range out.Matches {
			fmt.Fprintf(w, "  %s %s@%s -> %s %s\n",
				m.MethodName, m.Definition.Name, types.FormatIndex(m.Definition.Index),
				m.CallSiteMethodName, m.CallSiteDefinition.Name)
		}
	}
}

func init() {
	pairsCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	pairsCmd.Flags().String("policy", "", "Kill policy: name or identity (default from config)")
	RootCmd.AddCommand(pairsCmd)
}
