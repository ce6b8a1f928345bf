package harness

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is a declarative convergence test: a set of replicas of one
// viewer's document, a scripted sequence of local writes and deliveries,
// and assertions evaluated against the final state of every replica.
type Scenario struct {
	// Name identifies the scenario. Used in error messages and as the
	// golden file name, so it should be a valid file name stem.
	Name string `yaml:"name"`

	// Description explains what the scenario exercises.
	Description string `yaml:"description"`

	// Viewer is the user ID whose document the replicas share. All
	// replicas load and persist under this user's snapshot key.
	Viewer string `yaml:"viewer"`

	// Replicas names the simulated devices, in declaration order. Each
	// replica gets its name as its actor ID, so last-writer-wins
	// tiebreaks in golden files read as device names. The first declared
	// replica is the one whose final document golden comparisons use.
	Replicas []string `yaml:"replicas"`

	// Graph is the social graph backing suggestion_excludes assertions.
	// Scenarios without suggestion assertions can omit it.
	Graph Graph `yaml:"graph,omitempty"`

	// Steps is the scripted run, executed in order. The scenario clock
	// advances by one tick after every step.
	Steps []Step `yaml:"steps"`

	// Assertions are evaluated after all steps complete.
	Assertions []Assertion `yaml:"assertions"`
}

// Graph declares the users visible to the ranker during
// suggestion_excludes assertions. The viewer may be listed to give the
// scoring a profile to compare against.
type Graph struct {
	Users []GraphUser `yaml:"users,omitempty"`
}

// GraphUser is one directory entry in a scenario graph. Only the fields
// that feed deterministic scoring are exposed; recency and mutual
// follower scoring need a live directory and stay out of scenarios.
type GraphUser struct {
	ID        string   `yaml:"id"`
	Name      string   `yaml:"name,omitempty"`
	Interests []string `yaml:"interests,omitempty"`
	Groups    []string `yaml:"groups,omitempty"`
}

// Step opcodes. Local writes (dismiss, connect, clear, note) mutate one
// replica's document and publish the resulting delta; deliver and
// restart model the transport and the process lifecycle.
const (
	// OpDismiss dismisses Step.User on Step.Replica.
	OpDismiss = "dismiss"

	// OpConnect records an outgoing connection request to Step.User on
	// Step.Replica.
	OpConnect = "connect"

	// OpClear withdraws the connection request to Step.User on
	// Step.Replica, writing a cleared tombstone.
	OpClear = "clear"

	// OpNote writes the Step.Key note field to Step.Value on
	// Step.Replica.
	OpNote = "note"

	// OpDeliver replays every delta Step.From has published into
	// Step.To. Duplicate and Reorder shape the replay.
	OpDeliver = "deliver"

	// OpRestart discards Step.Replica's in-memory document and reloads
	// it from its snapshot store, as a process restart would.
	OpRestart = "restart"
)

// Step is one scripted action. Op selects the kind; the other fields
// are per-kind arguments, checked by validateScenario.
type Step struct {
	// Op is the step kind: dismiss, connect, clear, note, deliver, or
	// restart.
	Op string `yaml:"op"`

	// Replica names the replica a local write or restart acts on.
	Replica string `yaml:"replica,omitempty"`

	// User is the target user ID for dismiss, connect, and clear.
	User string `yaml:"user,omitempty"`

	// Key and Value are the note field written by a note step. An empty
	// value is a legal write.
	Key   string `yaml:"key,omitempty"`
	Value string `yaml:"value,omitempty"`

	// From and To name the sending and receiving replicas of a deliver
	// step.
	From string `yaml:"from,omitempty"`
	To   string `yaml:"to,omitempty"`

	// Duplicate delivers the replayed sequence twice. Convergence must
	// not depend on exactly-once delivery.
	Duplicate bool `yaml:"duplicate,omitempty"`

	// Reorder delivers the sender's history in reverse order.
	// Convergence must not depend on ordered delivery.
	Reorder bool `yaml:"reorder,omitempty"`
}

// Assertion types supported in scenario files.
const (
	// AssertConverged checks that the named replicas (all replicas when
	// the list is empty) hold equal replicated state.
	AssertConverged = "converged"

	// AssertDismissed checks that Assertion.User is dismissed on
	// Assertion.Replica.
	AssertDismissed = "dismissed"

	// AssertPending checks the connection request to Assertion.User on
	// Assertion.Replica: active by default, withdrawn or absent when
	// Active is false.
	AssertPending = "pending"

	// AssertNote checks that the Assertion.Key note field on
	// Assertion.Replica holds exactly Assertion.Value.
	AssertNote = "note"

	// AssertSuggestionExcludes checks that ranking the scenario graph
	// through Assertion.Replica's document never suggests
	// Assertion.User.
	AssertSuggestionExcludes = "suggestion_excludes"
)

// Assertion is one post-run check. Type selects the kind; the other
// fields are per-type arguments.
type Assertion struct {
	// Type is the assertion kind: converged, dismissed, pending, note,
	// or suggestion_excludes.
	Type string `yaml:"type"`

	// Replicas limits a converged assertion to a subset of replicas.
	// Empty means all declared replicas.
	Replicas []string `yaml:"replicas,omitempty"`

	// Replica names the replica a per-replica assertion reads.
	Replica string `yaml:"replica,omitempty"`

	// User is the subject of dismissed, pending, and
	// suggestion_excludes assertions.
	User string `yaml:"user,omitempty"`

	// Active flips a pending assertion: nil or true expects an active
	// request, false expects none.
	Active *bool `yaml:"active,omitempty"`

	// Key and Value are the expected note field for note assertions.
	Key   string `yaml:"key,omitempty"`
	Value string `yaml:"value,omitempty"`
}

// LoadScenario loads and validates a scenario from a YAML file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	// Strict mode: fail on unknown fields (catches typos like "step:" vs "steps:")
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse scenario YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that a scenario is structurally complete:
// required fields present, every step and assertion well formed, and
// every replica reference declared.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Viewer == "" {
		return fmt.Errorf("viewer is required")
	}
	if len(s.Replicas) == 0 {
		return fmt.Errorf("at least one replica is required")
	}

	declared := make(map[string]bool, len(s.Replicas))
	for i, name := range s.Replicas {
		if name == "" {
			return fmt.Errorf("replicas[%d]: name is required", i)
		}
		if declared[name] {
			return fmt.Errorf("replicas[%d]: duplicate replica %q", i, name)
		}
		declared[name] = true
	}

	seen := make(map[string]bool, len(s.Graph.Users))
	for i, u := range s.Graph.Users {
		if u.ID == "" {
			return fmt.Errorf("graph.users[%d]: id is required", i)
		}
		if seen[u.ID] {
			return fmt.Errorf("graph.users[%d]: duplicate user %q", i, u.ID)
		}
		seen[u.ID] = true
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("at least one step is required")
	}
	for i, step := range s.Steps {
		if err := validateStep(step, declared); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("at least one assertion is required")
	}
	for i, assertion := range s.Assertions {
		if err := validateAssertion(assertion, s, declared); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}

	return nil
}

// validateStep checks one step's per-kind required fields.
func validateStep(step Step, declared map[string]bool) error {
	if (step.Duplicate || step.Reorder) && step.Op != OpDeliver {
		return fmt.Errorf("duplicate and reorder apply only to deliver steps")
	}

	switch step.Op {
	case OpDismiss, OpConnect, OpClear:
		if step.Replica == "" {
			return fmt.Errorf("%s requires replica", step.Op)
		}
		if !declared[step.Replica] {
			return fmt.Errorf("replica %q is not declared", step.Replica)
		}
		if step.User == "" {
			return fmt.Errorf("%s requires user", step.Op)
		}
	case OpNote:
		if step.Replica == "" {
			return fmt.Errorf("note requires replica")
		}
		if !declared[step.Replica] {
			return fmt.Errorf("replica %q is not declared", step.Replica)
		}
		if step.Key == "" {
			return fmt.Errorf("note requires key")
		}
	case OpDeliver:
		if step.From == "" || step.To == "" {
			return fmt.Errorf("deliver requires from and to")
		}
		if !declared[step.From] {
			return fmt.Errorf("replica %q is not declared", step.From)
		}
		if !declared[step.To] {
			return fmt.Errorf("replica %q is not declared", step.To)
		}
		if step.From == step.To {
			return fmt.Errorf("deliver from and to must differ")
		}
	case OpRestart:
		if step.Replica == "" {
			return fmt.Errorf("restart requires replica")
		}
		if !declared[step.Replica] {
			return fmt.Errorf("replica %q is not declared", step.Replica)
		}
	case "":
		return fmt.Errorf("op is required")
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
	return nil
}

// validateAssertion checks one assertion's per-type required fields.
func validateAssertion(a Assertion, s *Scenario, declared map[string]bool) error {
	switch a.Type {
	case AssertConverged:
		for _, name := range a.Replicas {
			if !declared[name] {
				return fmt.Errorf("replica %q is not declared", name)
			}
		}
		effective := len(a.Replicas)
		if effective == 0 {
			effective = len(s.Replicas)
		}
		if effective < 2 {
			return fmt.Errorf("converged needs at least two replicas")
		}
	case AssertDismissed:
		if a.Replica == "" {
			return fmt.Errorf("dismissed requires replica")
		}
		if !declared[a.Replica] {
			return fmt.Errorf("replica %q is not declared", a.Replica)
		}
		if a.User == "" {
			return fmt.Errorf("dismissed requires user")
		}
	case AssertPending:
		if a.Replica == "" {
			return fmt.Errorf("pending requires replica")
		}
		if !declared[a.Replica] {
			return fmt.Errorf("replica %q is not declared", a.Replica)
		}
		if a.User == "" {
			return fmt.Errorf("pending requires user")
		}
	case AssertNote:
		if a.Replica == "" {
			return fmt.Errorf("note requires replica")
		}
		if !declared[a.Replica] {
			return fmt.Errorf("replica %q is not declared", a.Replica)
		}
		if a.Key == "" {
			return fmt.Errorf("note requires key")
		}
	case AssertSuggestionExcludes:
		if a.Replica == "" {
			return fmt.Errorf("suggestion_excludes requires replica")
		}
		if !declared[a.Replica] {
			return fmt.Errorf("replica %q is not declared", a.Replica)
		}
		if a.User == "" {
			return fmt.Errorf("suggestion_excludes requires user")
		}
		if len(s.Graph.Users) == 0 {
			return fmt.Errorf("suggestion_excludes requires graph.users")
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}
