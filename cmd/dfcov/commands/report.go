package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/l3aro/dfcov/internal/scanner"
	"github.com/l3aro/dfcov/pkg/artifact"
	"github.com/l3aro/dfcov/pkg/coverage"
	"github.com/l3aro/dfcov/pkg/report"
	"github.com/l3aro/dfcov/pkg/source"
)

// reportCmd represents the report command
var reportCmd = &cobra.Command{
	Use:   "report [artifact-dir]",
	Short: "Aggregate exported artifacts into a coverage report",
	Long: `Imports every class artifact of a directory, aggregates coverage per
package and prints a summary table or the JSON tree. Corrupt artifacts are
reported and skipped. With --source, method rows show the declared line range
found in the Java sources next to the range seen in the instructions.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReport,
}

func runReport(cmd *cobra.Command, args []string) error {
	dir := appConfig.OutputDir
	if len(args) == 1 {
		dir = args[0]
	}
	jsonOutput, _ := cmd.Flags().GetBool("json")
	methods, _ := cmd.Flags().GetBool("methods")
	sourceDir, _ := cmd.Flags().GetString("source")
	strict, _ := cmd.Flags().GetBool("strict")

	var result *artifact.LoadResult
	err := withSpinner(!jsonOutput, "Loading artifacts...", func() error {
		var err error
		result, err = artifact.NewLoader(logger).LoadDir(cmd.Context(), dir, parallelism(cmd))
		return err
	})
	if err != nil {
		return err
	}
	if len(result.Failed) > 0 {
		for _, err := range result.Failed {
			fmt.Fprintf(cmd.ErrOrStderr(), "skipped: %v\n", err)
		}
		if strict {
			return fmt.Errorf("%d artifacts could not be imported", len(result.Failed))
		}
	}
	if len(result.Classes) == 0 {
		return fmt.Errorf("no artifacts found in %s", dir)
	}

	store := coverage.NewStore(logger)
	defer store.Close()
	for _, c := range result.Classes {
		if err := store.Register(c); err != nil {
			return err
		}
	}
	tree, err := store.Finalize()
	if err != nil {
		return err
	}

	opts := report.Options{Color: !jsonOutput && isTerminalOutput(cmd), Methods: methods || sourceDir != ""}
	if sourceDir != "" {
		opts.Spans, err = locateSources(sourceDir, store.Classes())
		if err != nil {
			return err
		}
	}

	if jsonOutput {
		return report.WriteJSON(cmd.OutOrStdout(), tree, opts)
	}
	return report.Summary(cmd.OutOrStdout(), tree, opts)
}

// locateSources finds the source file of each class below dir and returns
// the method spans declared in it, keyed by internal class name.
func locateSources(dir string, classes []*coverage.ClassData) (map[string][]source.Span, error) {
	files, err := scanner.New(scanner.SourceOptions()).Scan(dir)
	if err != nil {
		return nil, err
	}

	locator := source.NewLocator()
	parsed := make(map[string][]source.Span)
	spans := make(map[string][]source.Span)
	for _, c := range classes {
		want := source.SourcePath(c.Name, c.Source)
		if want == "" {
			continue
		}
		for _, f := range files {
			if !source.MatchesSourcePath(f.Path, want) {
				continue
			}
			found, ok := parsed[f.FullPath]
			if !ok {
				found, err = locator.File(f.FullPath)
				if err != nil {
					logger.Warn("cannot parse source", "path", f.Path, "error", err)
				}
				parsed[f.FullPath] = found
			}
			spans[c.Name] = found
			break
		}
		if _, ok := spans[c.Name]; !ok {
			logger.Debug("source not found", "class", c.Name, "source", want)
		}
	}
	return spans, nil
}

func init() {
	reportCmd.Flags().BoolP("json", "j", false, "Output the report as JSON")
	reportCmd.Flags().Bool("methods", false, "List methods under each class")
	reportCmd.Flags().String("source", "", "Java source root used to show declared method lines")
	reportCmd.Flags().Int("parallel", 0, "Artifacts loaded concurrently (default from config)")
	reportCmd.Flags().Bool("strict", false, "Fail when an artifact cannot be imported")
	RootCmd.AddCommand(reportCmd)
}
