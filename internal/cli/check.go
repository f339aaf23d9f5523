package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lorenzobigazzi0/app/internal/harness"
)

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	Update bool   // regenerate golden files
	Filter string // scenario filter (glob pattern)
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// CheckResult holds the overall check result.
type CheckResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check <scenario-file|scenarios-dir>",
		Short: "Replay sync scenarios offline",
		Long: `Replay scenario files against a local store, dispatcher and mutation
client, validating assertions and, when present, the golden file kept in
a "golden" directory next to the scenarios directory.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  barsync check ./testdata/scenarios
  barsync check ./testdata/scenarios --filter "mutation_*"
  barsync check ./testdata/scenarios --update
  barsync check ./testdata/scenarios/resync_snapshot.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runCheck(opts *CheckOptions, target string, cmd *cobra.Command) error {
	info, err := os.Stat(target)
	if err != nil {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios not found: %s", target))
	}

	scenarioFiles := []string{target}
	if info.IsDir() {
		scenarioFiles, err = findScenarioFiles(target, opts.Filter)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to find scenarios", err)
		}
	}

	formatter := opts.formatter(cmd)
	if len(scenarioFiles) == 0 {
		return outputCheck(formatter, CheckResult{Scenarios: []ScenarioResult{}}, func() {
			fmt.Fprintln(formatter.Writer, "No scenarios found.")
		})
	}

	result := CheckResult{
		Scenarios: make([]ScenarioResult, 0, len(scenarioFiles)),
		Total:     len(scenarioFiles),
	}
	for _, scenarioFile := range scenarioFiles {
		scenResult := runScenario(scenarioFile, opts.Update, formatter)
		result.Scenarios = append(result.Scenarios, scenResult)
		if scenResult.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}

	return outputCheck(formatter, result, func() {
		w := formatter.Writer
		for _, s := range result.Scenarios {
			if s.Pass {
				fmt.Fprintf(w, "✓ %s\n", s.Name)
				continue
			}
			fmt.Fprintf(w, "✗ %s\n", s.Name)
			for _, e := range s.Errors {
				fmt.Fprintf(w, "  %s\n", e)
			}
		}
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Check Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
		if result.Failed == 0 {
			fmt.Fprintln(w, "✓ All scenarios passed")
		}
	})
}

// findScenarioFiles finds all YAML scenario files in a directory.
func findScenarioFiles(dir string, filter string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		// Only process .yaml and .yml files
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(path), ext)
			matched, err := filepath.Match(filter, name)
			if err != nil {
				return fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				return nil
			}
		}

		files = append(files, path)
		return nil
	})

	return files, err
}

// runScenario executes a single scenario and returns the result.
func runScenario(scenarioFile string, update bool, f *OutputFormatter) ScenarioResult {
	scenario, err := harness.LoadScenario(scenarioFile)
	if err != nil {
		return ScenarioResult{
			Name:   filepath.Base(scenarioFile),
			Errors: []string{fmt.Sprintf("failed to load scenario: %v", err)},
		}
	}

	result, err := harness.Run(scenario)
	if err != nil {
		return ScenarioResult{
			Name:   scenario.Name,
			Errors: []string{fmt.Sprintf("execution failed: %v", err)},
		}
	}

	snapshot, err := harness.Snapshot(result)
	if err != nil {
		return ScenarioResult{
			Name:   scenario.Name,
			Errors: []string{fmt.Sprintf("render failed: %v", err)},
		}
	}

	goldenPath := goldenFilePath(scenarioFile, scenario.Name)
	if update {
		if err := writeGoldenFile(goldenPath, snapshot); err != nil {
			return ScenarioResult{
				Name:   scenario.Name,
				Errors: []string{fmt.Sprintf("failed to update golden file: %v", err)},
			}
		}
		f.VerboseLog("Updated %s", goldenPath)
	} else if golden, err := os.ReadFile(goldenPath); err == nil {
		if string(golden) != snapshot {
			return ScenarioResult{
				Name:   scenario.Name,
				Errors: append([]string{"trace does not match golden file (run with --update to regenerate)"}, result.Errors...),
			}
		}
	} else if !os.IsNotExist(err) {
		return ScenarioResult{
			Name:   scenario.Name,
			Errors: []string{fmt.Sprintf("failed to read golden file: %v", err)},
		}
	}

	// No golden file: assertion-based validation only.
	return ScenarioResult{
		Name:   scenario.Name,
		Pass:   result.Pass,
		Errors: result.Errors,
	}
}

// goldenFilePath returns the golden file for a scenario: a "golden"
// directory beside the scenarios directory, named after the scenario.
func goldenFilePath(scenarioFile, name string) string {
	root := filepath.Dir(filepath.Dir(scenarioFile))
	return filepath.Join(root, "golden", name+".golden")
}

// writeGoldenFile writes the current snapshot as the golden file.
func writeGoldenFile(path, snapshot string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create golden directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(snapshot), 0644); err != nil {
		return fmt.Errorf("failed to write golden file: %w", err)
	}
	return nil
}

// outputCheck outputs the check result, as JSON or through text.
func outputCheck(f *OutputFormatter, result CheckResult, text func()) error {
	if f.Format == "json" {
		if result.Failed > 0 {
			_ = f.Error(CodeScenario, fmt.Sprintf("%d scenario(s) failed", result.Failed), result)
		} else if err := f.Success(result); err != nil {
			return err
		}
	} else {
		text()
	}

	if result.Failed > 0 {
		// Scenario failures = exit code 1
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}
