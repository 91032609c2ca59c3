package commands

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/l3aro/dfcov/internal/log"
	"github.com/l3aro/dfcov/internal/scanner"
	"github.com/l3aro/dfcov/pkg/analysis"
	"github.com/l3aro/dfcov/pkg/artifact"
	"github.com/l3aro/dfcov/pkg/dfg"
	"github.com/l3aro/dfcov/pkg/types"
)

// killPolicy resolves the --policy flag against the configuration.
func killPolicy(cmd *cobra.Command) (dfg.KillPolicy, error) {
	value := string(appConfig.KillPolicy)
	if cmd.Flags().Changed("policy") {
		value, _ = cmd.Flags().GetString("policy")
	}
	return dfg.ParseKillPolicy(value)
}

// parallelism resolves the --parallel flag against the configuration.
func parallelism(cmd *cobra.Command) int {
	if cmd.Flags().Changed("parallel") {
		if n, _ := cmd.Flags().GetInt("parallel"); n > 0 {
			return n
		}
	}
	return appConfig.Parallel
}

// artifactFormat resolves the --format flag against the configuration.
func artifactFormat(cmd *cobra.Command) (artifact.Format, error) {
	value := string(appConfig.ArtifactFormat)
	if cmd.Flags().Changed("format") {
		value, _ = cmd.Flags().GetString("format")
	}
	return artifact.ParseFormat(value)
}

// loadClassDocuments scans dir for class documents and decodes them.
func loadClassDocuments(dir string) ([]*types.ClassInput, error) {
	opts := scanner.DefaultOptions()
	opts.Exclude = appConfig.Exclude
	files, err := scanner.New(opts).Scan(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no class documents found in %s", dir)
	}

	inputs := make([]*types.ClassInput, 0, len(files))
	for _, f := range files {
		in, err := analysis.LoadClassInput(f.FullPath)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.Path, err)
		}
		inputs = append(inputs, in)
	}
	logger.Debug("loaded class documents", "dir", dir, "count", len(inputs))
	return inputs, nil
}

// findMethod selects a method by key ("add(II)I") or, when unambiguous, by
// plain name.
func findMethod(in *types.ClassInput, name string) (types.MethodInput, error) {
	var matches []types.MethodInput
	for _, m := range in.Methods {
		if m.Key() == name {
			return m, nil
		}
		if m.Name == name {
			matches = append(matches, m)
		}
	}

	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		keys := make([]string, len(in.Methods))
		for i, m := range in.Methods {
			keys[i] = m.Key()
		}
		sort.Strings(keys)
		return types.MethodInput{}, fmt.Errorf("method %q not found in %s\nAvailable: %s", name, in.Name, strings.Join(keys, ", "))
	default:
		keys := make([]string, len(matches))
		for i, m := range matches {
			keys[i] = m.Key()
		}
		return types.MethodInput{}, fmt.Errorf("method name %q is ambiguous in %s, use one of: %s", name, in.Name, strings.Join(keys, ", "))
	}
}

// withSpinner runs fn behind a progress spinner when stdout is a terminal.
func withSpinner(enabled bool, message string, fn func() error) error {
	if !enabled || !log.IsTTY() {
		return fn()
	}
	spinner := log.NewProgressSpinner(message)
	spinner.Start()
	defer spinner.Stop()
	return fn()
}
