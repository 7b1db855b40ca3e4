// Package harness runs multi-device convergence scenarios.
//
// A scenario names a set of devices, each a replica with its own in-memory
// backend and wall clock, and a list of steps: devices record deck events
// and sync with each other, in process or over HTTP. Assertions then check
// what every device ended up with, and the trace plus the final state of
// the first device is compared against a golden file.
//
// # Scenario Format
//
//	name: two_devices
//	description: "Offline edits on two devices converge after one sync"
//	devices: [phone, laptop]
//	steps:
//	  - record:
//	      device: phone
//	      stream: deck/spanish
//	      at: 0
//	      events:
//	        - {kind: card_added, card: hola, front: hola, back: hello}
//	  - sync: {local: phone, remote: laptop}
//	  - sync: {local: laptop, remote: phone, transport: http}
//	assertions:
//	  - type: converged
//	    stream: deck/spanish
//	  - type: counts
//	    device: laptop
//	    stream: deck/spanish
//	    counts: {phone: 1}
//
// # Assertion Types
//
//   - converged: every device holds the same counts and derived state
//   - counts: a device's per-device log lengths for a stream
//   - card: a card's review and lapse totals, or its absence
//   - weakest: the derived ranking of a stream
//   - reviews: the total number of reviews folded
//
// # Deterministic Testing
//
// Device clocks start at Epoch and advance one second per recorded batch
// unless a step sets "at". Golden files are canonical JSON, so they are
// byte-identical across runs. Regenerate them with:
//
//	go test ./internal/harness -update
package harness
