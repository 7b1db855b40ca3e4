package harness

// TraceEntry records what one step did.
type TraceEntry struct {
	Step int    `json:"step"`
	Op   string `json:"op"` // "record" or "sync"

	// Record fields.
	Device string `json:"device,omitempty"`
	Stream string `json:"stream,omitempty"`
	Added  int    `json:"added,omitempty"`

	// Sync fields.
	Local   string   `json:"local,omitempty"`
	Remote  string   `json:"remote,omitempty"`
	Pulled  int      `json:"pulled,omitempty"`
	Pushed  int      `json:"pushed,omitempty"`
	Skipped []string `json:"skipped,omitempty"`
}

// Result is the outcome of a scenario.
type Result struct {
	// Pass is true if every assertion held.
	Pass bool `json:"pass"`

	Trace []TraceEntry `json:"trace"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Final holds each device's derived state per stream.
	Final map[string]map[string]DeviceState `json:"final"`
}

// DeviceState is what one device holds for one stream.
type DeviceState struct {
	Counts      map[string]int       `json:"counts"`
	Cards       map[string]CardState `json:"cards"`
	Reviews     int                  `json:"reviews"`
	Weakest     []string             `json:"weakest"`
	Fingerprint string               `json:"fingerprint"`
}

// CardState is the part of a card scenarios assert on.
type CardState struct {
	Front   string `json:"front"`
	Back    string `json:"back"`
	Reviews int    `json:"reviews"`
	Lapses  int    `json:"lapses"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEntry{},
		Errors: []string{},
		Final:  make(map[string]map[string]DeviceState),
	}
}

// AddError adds an assertion failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
