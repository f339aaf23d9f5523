package harness

import (
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/lorenzobigazzi0/app/internal/board"
)

// RunWithGolden executes a scenario and compares its trace and final board
// against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns an error if the scenario cannot be executed. A mismatch fails t.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against a golden file without
// re-running the scenario.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	snapshot, err := Snapshot(result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, []byte(snapshot))
	return nil
}

// Snapshot renders the trace followed by the final board.
func Snapshot(result *Result) (string, error) {
	var b strings.Builder
	b.WriteString(result.TraceText())
	b.WriteString("--- board\n")
	if err := board.RenderText(&b, result.Board); err != nil {
		return "", err
	}
	return b.String(), nil
}
