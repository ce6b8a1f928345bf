package harness

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// RunWithGolden executes a scenario, fails the test on any assertion
// failure, and compares the first declared replica's final document
// against its golden file. The golden holds the canonical document
// encoding, so it pins actor, lamport, every stamp, and every
// timestamp, not just the logical state the assertions see.
//
// Golden files live in testdata/golden/{scenario.Name}.golden. To
// regenerate them, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	if !result.Pass {
		return fmt.Errorf("scenario %s failed:\n%s", scenario.Name, strings.Join(result.Errors, "\n"))
	}

	doc := result.Docs[scenario.Replicas[0]]
	data, err := doc.Encode()
	if err != nil {
		return fmt.Errorf("encode final document: %w", err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)

	return nil
}
