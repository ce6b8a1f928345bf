package harness

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestScenarioGoldens runs every scenario under testdata/scenarios and
// compares the first replica's final document against its golden file.
// The goldens pin the full canonical encoding, so a change to stamp
// assignment, timestamp handling, or the wire format shows up as a
// byte-level diff here.
func TestScenarioGoldens(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("testdata", "scenarios", "*.yaml"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		name := strings.TrimSuffix(filepath.Base(path), ".yaml")
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)
			// The golden file name comes from the scenario name, so the
			// two must agree for the fixture to be found.
			require.Equal(t, name, scenario.Name)
			require.NoError(t, RunWithGolden(t, scenario))
		})
	}
}

func TestRunIsDeterministic(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "two_device_catchup.yaml"))
	require.NoError(t, err)

	first, err := Run(scenario)
	require.NoError(t, err)
	second, err := Run(scenario)
	require.NoError(t, err)

	for _, name := range scenario.Replicas {
		a, err := first.Docs[name].Encode()
		require.NoError(t, err)
		b, err := second.Docs[name].Encode()
		require.NoError(t, err)
		require.Equal(t, string(a), string(b), "replica %s must encode identically across runs", name)
	}
}

func TestRunWithGoldenReportsAssertionFailure(t *testing.T) {
	scenario := &Scenario{
		Name:        "never_compared",
		Description: "assertion failure short-circuits the golden comparison",
		Viewer:      "u-me",
		Replicas:    []string{"phone", "laptop"},
		Steps: []Step{
			{Op: OpDismiss, Replica: "phone", User: "u-ada"},
		},
		Assertions: []Assertion{
			{Type: AssertDismissed, Replica: "laptop", User: "u-ada"},
		},
	}

	err := RunWithGolden(t, scenario)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Assertion failed: dismissed")
}
