package harness

import (
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ADITIII0201/kith/internal/replica"
	"github.com/ADITIII0201/kith/internal/snapshot"
)

// scenarioEpoch is the wall-clock origin of every run. Step k
// (zero-based) executes at scenarioEpoch plus k ticks, which is what
// keeps requestedAt and updatedAt values in golden files stable.
var scenarioEpoch = time.UnixMilli(1700000000000)

// scenarioTick is how far the clock advances after each step.
const scenarioTick = time.Second

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool

	// Errors holds one message per failed assertion. Empty when Pass.
	Errors []string

	// Docs is the final document of each replica, keyed by replica name.
	Docs map[string]*replica.Document
}

// NewResult returns an empty passing result.
func NewResult() *Result {
	return &Result{
		Pass: true,
		Docs: map[string]*replica.Document{},
	}
}

// AddError records an assertion failure and marks the result failed.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Pass = false
}

// replicaState is one simulated device: its live document, its own
// snapshot store, and the history of deltas it has published. The
// history holds encoded bytes so every delivery round-trips the wire
// codec.
type replicaState struct {
	name    string
	doc     *replica.Document
	bridge  *snapshot.Bridge
	key     string
	history [][]byte
}

// Harness executes one scenario over an isolated set of replicas.
type Harness struct {
	clock    clockwork.FakeClock
	replicas map[string]*replicaState
}

// Run executes a scenario and returns its result. Step failures (a
// delta that fails to decode or merge, a reference validation would
// have rejected) abort the run with an error; assertion failures are
// recorded on the result instead.
//
// Every run is fully deterministic: the clock starts at a fixed epoch
// and advances one tick per step, each replica's actor ID is its
// declared name, and each replica persists into its own in-memory
// store.
func Run(scenario *Scenario) (*Result, error) {
	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	h := &Harness{
		clock:    clockwork.NewFakeClockAt(scenarioEpoch),
		replicas: map[string]*replicaState{},
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress bridge logs in tests
	actors := replica.NewFixedActorGenerator(scenario.Replicas...)
	key := snapshot.Key(scenario.Viewer)

	for _, name := range scenario.Replicas {
		bridge := snapshot.NewBridge(snapshot.NewMemoryStore(),
			snapshot.WithClock(h.clock),
			snapshot.WithActors(actors),
			snapshot.WithLogger(logger),
		)
		doc := bridge.Load(key)
		// Seed the store so a restart before the first write reloads
		// this actor instead of drawing a fresh one.
		bridge.Save(key, doc)
		h.replicas[name] = &replicaState{
			name:   name,
			doc:    doc,
			bridge: bridge,
			key:    key,
		}
	}

	for i, step := range scenario.Steps {
		if err := h.execute(step); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		h.clock.Advance(scenarioTick)
	}

	result := NewResult()
	for name, r := range h.replicas {
		result.Docs[name] = r.doc
	}

	actx := &AssertionContext{
		Scenario: scenario,
		Docs:     result.Docs,
		Clock:    h.clock,
	}
	for _, msg := range EvaluateAssertions(scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

// execute runs a single step against the harness state.
func (h *Harness) execute(step Step) error {
	switch step.Op {
	case OpDismiss:
		return h.change(step.Replica, func(c *replica.Change) { c.Dismiss(step.User) })
	case OpConnect:
		return h.change(step.Replica, func(c *replica.Change) { c.RequestConnection(step.User) })
	case OpClear:
		return h.change(step.Replica, func(c *replica.Change) { c.ClearPending(step.User) })
	case OpNote:
		return h.change(step.Replica, func(c *replica.Change) { c.SetNote(step.Key, step.Value) })
	case OpDeliver:
		return h.deliver(step)
	case OpRestart:
		r := h.replicas[step.Replica]
		r.doc = r.bridge.Load(r.key)
		return nil
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
}

// change applies a local write to one replica. A write that changes
// nothing (dismissing an already dismissed user, rewriting a note with
// its current value) publishes no delta, matching live behavior.
func (h *Harness) change(name string, fn func(*replica.Change)) error {
	r := h.replicas[name]
	next, delta := r.doc.Change(h.clock.Now(), fn)
	if delta.Empty() {
		return nil
	}
	data, err := delta.Encode()
	if err != nil {
		return fmt.Errorf("encode delta from %s: %w", name, err)
	}
	r.doc = next
	r.bridge.Save(r.key, next)
	r.history = append(r.history, data)
	return nil
}

// deliver replays the sender's published history into the receiver.
// Reorder reverses the sequence first; Duplicate then plays it twice.
// History survives restarts: a delta, once published, exists
// independently of the process that produced it.
func (h *Harness) deliver(step Step) error {
	from := h.replicas[step.From]
	to := h.replicas[step.To]

	payloads := slices.Clone(from.history)
	if step.Reorder {
		slices.Reverse(payloads)
	}
	if step.Duplicate {
		payloads = append(payloads, payloads...)
	}
	if len(payloads) == 0 {
		return nil
	}

	for _, raw := range payloads {
		delta, err := replica.DecodeDelta(raw)
		if err != nil {
			return fmt.Errorf("deliver %s to %s: %w", step.From, step.To, err)
		}
		merged, err := to.doc.Merge(delta)
		if err != nil {
			return fmt.Errorf("deliver %s to %s: %w", step.From, step.To, err)
		}
		to.doc = merged
	}
	to.bridge.Save(to.key, to.doc)
	return nil
}
