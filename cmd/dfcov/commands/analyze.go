package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/l3aro/dfcov/internal/log"
	"github.com/l3aro/dfcov/pkg/analysis"
	"github.com/l3aro/dfcov/pkg/artifact"
	"github.com/l3aro/dfcov/pkg/coverage"
	"github.com/l3aro/dfcov/pkg/report"
	"github.com/l3aro/dfcov/pkg/tracker"
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze [classes-dir]",
	Short: "Analyze class documents and export coverage artifacts",
	Long: `Builds the control flow graph of every method found in the class
documents, solves reaching definitions and enumerates def-use pairs. Occurrence
traces given with --trace are replayed into the store before coverage is
computed. One artifact per class is written to the output directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAnalyze,
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	dir := appConfig.ClassesDir
	if len(args) == 1 {
		dir = args[0]
	}
	outputDir := appConfig.OutputDir
	if cmd.Flags().Changed("output") {
		outputDir, _ = cmd.Flags().GetString("output")
	}
	traces, _ := cmd.Flags().GetStringSlice("trace")
	noExport, _ := cmd.Flags().GetBool("no-export")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	methods, _ := cmd.Flags().GetBool("methods")

	policy, err := killPolicy(cmd)
	if err != nil {
		return err
	}
	format, err := artifactFormat(cmd)
	if err != nil {
		return err
	}

	inputs, err := loadClassDocuments(dir)
	if err != nil {
		return err
	}

	store := coverage.NewStore(logger)
	defer store.Close()

	analyzer := analysis.New(analysis.Options{
		Policy:   policy,
		Parallel: parallelism(cmd),
		Logger:   logger,
	})
	err = withSpinner(!jsonOutput, fmt.Sprintf("Analyzing %d classes...", len(inputs)), func() error {
		_, err := analyzer.AnalyzeAll(cmd.Context(), inputs, store)
		return err
	})
	if err != nil {
		return fmt.Errorf("analyzing classes: %w", err)
	}

	if err := replayTraces(store, traces); err != nil {
		return err
	}

	tree, err := store.Finalize()
	if err != nil {
		return err
	}

	if !noExport {
		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
		for _, c := range store.Classes() {
			path, err := artifact.WriteClass(outputDir, c, format)
			if err != nil {
				return fmt.Errorf("exporting %s: %w", c.Name, err)
			}
			logger.Debug("exported class", "class", c.Name, "path", path)
		}
		logger.Info("exported artifacts", "dir", outputDir, "classes", len(store.Classes()), "format", format)
	}

	if untested := store.UntestedClasses(); len(untested) > 0 && len(traces) > 0 {
		logger.Warn("classes without recorded occurrences", "count", len(untested))
	}

	opts := report.Options{Color: !jsonOutput && isTerminalOutput(cmd), Methods: methods}
	if jsonOutput {
		return report.WriteJSON(cmd.OutOrStdout(), tree, opts)
	}
	return report.Summary(cmd.OutOrStdout(), tree, opts)
}

// replayTraces feeds occurrence traces through a tracker installed for the
// duration of the replay.
func replayTraces(store *coverage.Store, traces []string) error {
	if len(traces) == 0 {
		return nil
	}

	t := tracker.New(store, logger)
	previous := tracker.Install(t)
	defer tracker.Install(previous)

	for _, path := range traces {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("opening trace: %w", err)
		}
		n, err := t.Replay(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("replaying %s: %w", path, err)
		}
		logger.Debug("replayed trace", "path", path, "occurrences", n)
	}

	if err := t.Close(); err != nil {
		return err
	}
	logger.Info("replay complete", "recorded", t.Recorded(), "dropped", t.Dropped())
	return nil
}

// isTerminalOutput reports whether the command writes to the process stdout
// and that is a terminal.
func isTerminalOutput(cmd *cobra.Command) bool {
	return cmd.OutOrStdout() == os.Stdout && log.IsTTY()
}

func init() {
	analyzeCmd.Flags().StringP("output", "o", "", "Artifact output directory (default from config)")
	analyzeCmd.Flags().StringSlice("trace", nil, "Occurrence trace (JSON lines) to replay; repeatable")
	analyzeCmd.Flags().String("format", "", "Artifact format: msgpack or json (default from config)")
	analyzeCmd.Flags().String("policy", "", "Kill policy: name or identity (default from config)")
	analyzeCmd.Flags().Int("parallel", 0, "Classes analyzed concurrently (default from config)")
	analyzeCmd.Flags().Bool("no-export", false, "Do not write artifacts")
	analyzeCmd.Flags().Bool("methods", false, "List methods in the summary")
	analyzeCmd.Flags().BoolP("json", "j", false, "Output the report as JSON")
	RootCmd.AddCommand(analyzeCmd)
}
