package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/recall/internal/payload"
)

// Snapshot is the golden form of a run: the trace and what the first
// device holds. Fingerprints are left out so golden files stay readable.
type Snapshot struct {
	Scenario string                 `json:"scenario"`
	Trace    []TraceEntry           `json:"trace"`
	Final    map[string]StreamState `json:"final"`
}

// StreamState is a DeviceState without its fingerprint.
type StreamState struct {
	Counts  map[string]int       `json:"counts"`
	Cards   map[string]CardState `json:"cards"`
	Reviews int                  `json:"reviews"`
	Weakest []string             `json:"weakest"`
}

// NewSnapshot builds the golden form of result.
func NewSnapshot(scenario *Scenario, result *Result) Snapshot {
	snap := Snapshot{
		Scenario: scenario.Name,
		Trace:    result.Trace,
		Final:    make(map[string]StreamState),
	}
	for stream, st := range result.Final[scenario.Devices[0]] {
		snap.Final[stream] = StreamState{
			Counts:  st.Counts,
			Cards:   st.Cards,
			Reviews: st.Reviews,
			Weakest: st.Weakest,
		}
	}
	return snap
}

// MarshalSnapshot encodes s as canonical JSON.
func MarshalSnapshot(s Snapshot) ([]byte, error) {
	v, err := payload.Encode(s)
	if err != nil {
		return nil, err
	}
	return payload.MarshalCanonical(v)
}

// RunWithGolden executes a scenario, fails t on any assertion error, and
// compares the snapshot against testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}
	return AssertGolden(t, scenario, result)
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, scenario *Scenario, result *Result) error {
	t.Helper()

	data, err := MarshalSnapshot(NewSnapshot(scenario, result))
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)
	return nil
}
