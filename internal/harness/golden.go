package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/docquery/internal/ir"
)

// GoldenDir holds golden snapshots, relative to the test's package.
const GoldenDir = "testdata/golden"

// Snapshot renders a result as canonical JSON for golden comparison:
//
//	{"scenario": name, "steps": [{name, model, type, shape, data | error}]}
func Snapshot(name string, result *Result) ([]byte, error) {
	steps := make([]any, len(result.Steps))
	for i, s := range result.Steps {
		step := map[string]any{
			"name":  s.Name,
			"model": s.Model,
		}
		if s.Error != "" {
			step["error"] = s.Error
		} else {
			step["type"] = s.Type
			step["shape"] = s.Shape
			step["data"] = s.Data
		}
		steps[i] = step
	}
	return ir.MarshalCanonical(map[string]any{
		"scenario": name,
		"steps":    steps,
	})
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails. Test failure (via goldie)
// occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	snap, err := Snapshot(scenario.Name, result)
	if err != nil {
		return nil, err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, snap)
	return result, nil
}
