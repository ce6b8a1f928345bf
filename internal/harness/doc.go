// Package harness provides convergence testing for replicated
// suggestion documents.
//
// The harness runs several replicas of one viewer's document through a
// scripted mix of local writes, unreliable delivery, and restarts, then
// asserts on the final state of every replica. It exists to prove the
// replication invariant end to end: any two replicas that have seen the
// same deltas hold the same state, no matter the order, the duplication,
// or the restarts in between.
//
// # Scenario Format
//
// Scenarios are defined in YAML files with the following structure:
//
//	name: scenario_name
//	description: "What this scenario exercises"
//	viewer: u-me
//	replicas: [phone, laptop]
//	graph:
//	  users:
//	    - id: u-ada
//	      interests: [chess]
//	steps:
//	  - op: dismiss
//	    replica: phone
//	    user: u-ada
//	  - op: deliver
//	    from: phone
//	    to: laptop
//	    duplicate: true
//	    reorder: true
//	  - op: restart
//	    replica: laptop
//	assertions:
//	  - type: converged
//	  - type: dismissed
//	    replica: laptop
//	    user: u-ada
//
// # Step Kinds
//
// The following step kinds are supported:
//
//   - dismiss: Dismisses a user on one replica
//   - connect: Records an outgoing connection request on one replica
//   - clear: Withdraws a connection request, writing a tombstone
//   - note: Writes a note field on one replica
//   - deliver: Replays one replica's published deltas into another,
//     optionally duplicated or in reverse order
//   - restart: Reloads a replica's document from its snapshot store
//
// # Assertion Types
//
// The following assertion types are supported:
//
//   - converged: Verifies the named replicas (all, when unnamed) hold
//     equal replicated state
//   - dismissed: Verifies a user is dismissed on a replica
//   - pending: Verifies a connection request is active, or absent when
//     active is false
//   - note: Verifies a note field holds an exact value
//   - suggestion_excludes: Verifies ranking the scenario graph through a
//     replica's document never suggests a user
//
// # Deterministic Runs
//
// Every run is reproducible, which is what makes golden comparison of
// the final document possible:
//
//   - The clock starts at a fixed epoch and advances one tick per step,
//     so every timestamp is a known offset
//   - Each replica's actor ID is its declared name, so stamps and
//     tiebreaks read as device names
//   - Each replica persists into its own in-memory store, isolated per
//     run
//
// # Usage
//
// Load a scenario:
//
//	scenario, err := harness.LoadScenario("testdata/scenarios/duplicate_delivery.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Execute it:
//
//	result, err := harness.Run(scenario)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if !result.Pass {
//	    for _, msg := range result.Errors {
//	        log.Println(msg)
//	    }
//	}
package harness
