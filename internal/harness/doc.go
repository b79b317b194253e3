// Package harness runs scripted saga scenarios through the real engine and
// compares their traces with golden files.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: inflight_probe_succeeded
//	description: "An interrupted charge is found by its probe"
//	saga_id: order-1
//	history:
//	  - step: 0
//	    events:
//	      - type: precall
//	        name: charge
//	effects:
//	  charge:
//	    probe: succeeded
//	    probe_result: { id: pay-1 }
//	flow:
//	  - effect: charge
//	    args: { amount: 1000 }
//	expect:
//	  status: completed
//	  result: { id: pay-1 }
//	assertions:
//	  - type: trace_count
//	    kind: effect
//	    name: charge
//	    count: 0
//
// history preloads events for step instances "<saga_id>/<step>"; effects
// scripts the effect, probe and rollback bodies by name; flow lists the
// saga's steps in order. With compensate: true the registered rollback
// actions run after a failed saga.
//
// # Assertion Types
//
//   - trace_contains: an event of the given kind and name appears in the trace
//   - trace_order: events ("kind name") appear in the given order
//   - trace_count: an event of the given kind and name appears exactly N times
//   - final_history: a step instance ends in the given status
//
// # Determinism
//
// Each scenario runs against a fresh in-memory repository with a fixed saga
// id, and trace events carry a logical sequence number, so a scenario always
// produces the same trace. RunWithGolden compares the canonical JSON of that
// trace with testdata/golden/<name>.golden.
package harness
