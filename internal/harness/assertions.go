package harness

import (
	"fmt"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/ADITIII0201/kith/internal/replica"
	"github.com/ADITIII0201/kith/internal/social"
	"github.com/ADITIII0201/kith/internal/suggest"
)

// AssertionError is returned when an assertion fails. It includes the
// expected and actual outcomes in human-readable form.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// AssertionContext carries the run state assertions evaluate against.
type AssertionContext struct {
	Scenario *Scenario
	Docs     map[string]*replica.Document
	Clock    clockwork.Clock
}

// EvaluateAssertions evaluates all assertions against the final
// documents and returns one message per failure.
func EvaluateAssertions(assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertConverged:
			err = assertConverged(actx, assertion)
		case AssertDismissed:
			err = assertDismissed(actx, assertion)
		case AssertPending:
			err = assertPending(actx, assertion)
		case AssertNote:
			err = assertNote(actx, assertion)
		case AssertSuggestionExcludes:
			err = assertSuggestionExcludes(actx, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

// assertConverged checks that the named replicas hold equal replicated
// state. Actor identity and witnessed clocks are excluded from the
// comparison, exactly as two live devices that caught up would compare.
func assertConverged(actx *AssertionContext, a Assertion) error {
	names := a.Replicas
	if len(names) == 0 {
		names = actx.Scenario.Replicas
	}

	base := actx.Docs[names[0]]
	for _, name := range names[1:] {
		doc := actx.Docs[name]
		if !base.StateEqual(doc) {
			return &AssertionError{
				Type:     AssertConverged,
				Expected: fmt.Sprintf("replicas %v hold equal state", names),
				Actual: fmt.Sprintf("%s %s, %s %s",
					names[0], describeDocument(base), name, describeDocument(doc)),
			}
		}
	}
	return nil
}

// assertDismissed checks that the user is dismissed on the replica.
func assertDismissed(actx *AssertionContext, a Assertion) error {
	doc := actx.Docs[a.Replica]
	if doc.IsDismissed(a.User) {
		return nil
	}
	return &AssertionError{
		Type:     AssertDismissed,
		Expected: fmt.Sprintf("user %q dismissed on %s", a.User, a.Replica),
		Actual:   fmt.Sprintf("not dismissed (dismissed: %v)", doc.Dismissed()),
	}
}

// assertPending checks the connection request state for the user on the
// replica: active unless the assertion set active to false.
func assertPending(actx *AssertionContext, a Assertion) error {
	doc := actx.Docs[a.Replica]
	want := a.Active == nil || *a.Active
	got := doc.HasPending(a.User)
	if got == want {
		return nil
	}

	actual := "request active"
	if !got {
		actual = "no request recorded"
		for _, e := range allPending(doc) {
			if e.UserID == a.User && e.Cleared {
				actual = "request withdrawn"
			}
		}
	}
	expected := fmt.Sprintf("active connection request to %q on %s", a.User, a.Replica)
	if !want {
		expected = fmt.Sprintf("no active connection request to %q on %s", a.User, a.Replica)
	}
	return &AssertionError{
		Type:     AssertPending,
		Expected: expected,
		Actual:   actual,
	}
}

// allPending returns every pending entry including cleared tombstones,
// which Document.Pending filters out.
func allPending(doc *replica.Document) []replica.PendingConnection {
	return doc.Snapshot().Pending
}

// assertNote checks that a note field holds exactly the expected value.
func assertNote(actx *AssertionContext, a Assertion) error {
	doc := actx.Docs[a.Replica]
	value, ok := doc.Note(a.Key)
	if ok && value == a.Value {
		return nil
	}

	actual := fmt.Sprintf("note %q not set", a.Key)
	if ok {
		actual = fmt.Sprintf("note %q = %q", a.Key, value)
	}
	return &AssertionError{
		Type:     AssertNote,
		Expected: fmt.Sprintf("note %q = %q on %s", a.Key, a.Value, a.Replica),
		Actual:   actual,
	}
}

// assertSuggestionExcludes ranks the scenario graph through the
// replica's document and checks the user is never suggested.
func assertSuggestionExcludes(actx *AssertionContext, a Assertion) error {
	doc := actx.Docs[a.Replica]

	users := make([]social.User, 0, len(actx.Scenario.Graph.Users))
	viewer := social.User{ID: actx.Scenario.Viewer}
	for _, u := range actx.Scenario.Graph.Users {
		su := social.User{
			ID:        u.ID,
			Name:      u.Name,
			Interests: u.Interests,
			Groups:    u.Groups,
		}
		if su.ID == viewer.ID {
			viewer = su
		}
		users = append(users, su)
	}

	ranker := suggest.NewRanker(suggest.WithClock(actx.Clock))
	ranked := ranker.Rank(users, viewer, nil, doc.IsDismissed, len(users))
	for i, c := range ranked {
		if c.User.ID == a.User {
			return &AssertionError{
				Type:     AssertSuggestionExcludes,
				Expected: fmt.Sprintf("user %q absent from suggestions on %s", a.User, a.Replica),
				Actual:   fmt.Sprintf("ranked at position %d with score %.3f", i+1, c.Score),
			}
		}
	}
	return nil
}

// describeDocument renders a compact state summary for assertion
// failure messages.
func describeDocument(doc *replica.Document) string {
	pending := doc.Pending()
	ids := make([]string, 0, len(pending))
	for _, e := range pending {
		ids = append(ids, e.UserID)
	}
	return fmt.Sprintf("{dismissed:%v pending:%v notes:%v updatedAt:%d}",
		doc.Dismissed(), ids, doc.Notes(), doc.UpdatedAt())
}
