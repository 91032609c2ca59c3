package commands

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/l3aro/dfcov/internal/config"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize dfcov configuration interactively",
	Long: `Guides you through setting up dfcov configuration step by step.
Creates a config file with the input and output directories, the artifact
format and the analysis settings.`,
	Annotations: map[string]string{skipConfig: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInit()
	},
}

func runInit() error {
	cfg := config.DefaultConfig()
	format := string(cfg.ArtifactFormat)
	policy := string(cfg.KillPolicy)
	parallel := strconv.Itoa(cfg.Parallel)
	exclude := ""

	// === SECTION 1: Directories and analysis ===
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Class documents directory").
				Description("Where the disassembled YAML/JSON class documents are read from").
				Placeholder(cfg.ClassesDir).
				Value(&cfg.ClassesDir),
			huh.NewInput().
				Title("Artifact output directory").
				Placeholder(cfg.OutputDir).
				Value(&cfg.OutputDir),
			huh.NewInput().
				Title("Exclude patterns (comma separated, optional)").
				Placeholder("**/*$Lambda*.yaml").
				Value(&exclude),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Artifact format").
				Options(
					huh.NewOption("MessagePack (compact)", string(config.FormatMsgpack)),
					huh.NewOption("JSON (readable)", string(config.FormatJSON)),
				).
				Value(&format),
			huh.NewSelect[string]().
				Title("Kill policy").
				Description("How a definition decides it redefines another one").
				Options(
					huh.NewOption("By name", string(config.KillByName)),
					huh.NewOption("By name, owner and type", string(config.KillByIdentity)),
				).
				Value(&policy),
			huh.NewInput().
				Title("Parallel classes").
				Value(&parallel).
				Validate(func(s string) error {
					if n, err := strconv.Atoi(s); err != nil || n <= 0 {
						return fmt.Errorf("enter a positive number")
					}
					return nil
				}),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	// === SECTION 2: Config Location ===
	var saveLocationChoice string
	form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Save Configuration").
				Description("Where to save the configuration file?").
				Options(
					huh.NewOption("Project (./.dfcov/config.yaml)", "project"),
					huh.NewOption("Global (~/.dfcov/config.yaml)", "global"),
				).
				Value(&saveLocationChoice),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("interactive prompt failed: %w", err)
	}

	configPath := config.ProjectConfigFilePath()
	if saveLocationChoice == "global" {
		configPath = config.GlobalConfigFilePath()
	}

	if _, err := os.Stat(configPath); err == nil {
		var overwrite bool
		form = huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title("Config file exists").
					Description(fmt.Sprintf("Overwrite existing config at %s?", configPath)).
					Affirmative("Overwrite").
					Negative("Cancel").
					Value(&overwrite),
			),
		)
		if err := form.Run(); err != nil {
			return fmt.Errorf("interactive prompt failed: %w", err)
		}
		if !overwrite {
			fmt.Println("Cancelled.")
			return nil
		}
	}

	// === Build config struct ===
	cfg.ArtifactFormat = config.ArtifactFormat(format)
	cfg.KillPolicy = config.KillPolicy(policy)
	cfg.Parallel, _ = strconv.Atoi(parallel)
	for _, p := range strings.Split(exclude, ",") {
		if p = strings.TrimSpace(p); p != "" {
			cfg.Exclude = append(cfg.Exclude, p)
		}
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	fmt.Println("\n=== Configuration Preview ===")
	fmt.Printf("Config path: %s\n", configPath)
	fmt.Printf("Classes dir: %s\n", cfg.ClassesDir)
	fmt.Printf("Output dir: %s\n", cfg.OutputDir)
	fmt.Printf("Artifact format: %s\n", cfg.ArtifactFormat)
	fmt.Printf("Kill policy: %s\n", cfg.KillPolicy)
	fmt.Printf("Parallel: %d\n", cfg.Parallel)
	if len(cfg.Exclude) > 0 {
		fmt.Printf("Exclude: %s\n", strings.Join(cfg.Exclude, ", "))
	}
	fmt.Println("================================")

	if err := cfg.Save(configPath); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}
	fmt.Printf("Configuration saved to: %s\n", configPath)
	return nil
}

func init() {
	RootCmd.AddCommand(initCmd)
}
