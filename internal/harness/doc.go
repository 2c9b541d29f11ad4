// Package harness runs scenario tests against the sample counter model.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: rename_and_count
//	description: "What this scenario validates"
//	container_id: counter-1        # optional, default test-container
//	initial: { count: 0, label: "" }
//	settings:                      # optional, same schema as settings files
//	  error_policy: isolate
//	steps:
//	  - dispatch: rename
//	    input: clicks
//	  - dispatch: add
//	    input: 2
//	  - dispatch: add
//	    input: 1
//	    error: QUEUE_FULL          # expected Submit failure
//	assertions:
//	  - type: final_state
//	    expect: { count: 2 }
//	  - type: effects
//	    effects: [{ kind: toast, text: "renamed to clicks" }]
//
// # Execution
//
// Each scenario runs in a fresh container with a fixed container id and an
// idling.Counter. After every step the harness waits until the container
// has no operation in flight, so states and effects are recorded in a
// deterministic order. Steps marked async skip that wait.
//
// # Assertions
//
//   - final_state: the final state contains the expected fields
//   - state_trace: every committed state, in order, starting with the initial one
//   - effects: every side effect, in order
//   - effect_count: the number of side effects
//   - container_error: the code of the error that failed the container
//
// # Golden Files
//
// RunWithGolden compares the full trace with testdata/golden/<name>.golden
// in canonical JSON. Regenerate with:
//
//	go test ./internal/harness -update
package harness
