package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/recall/internal/deck"
	"github.com/roach88/recall/internal/eventlog"
)

// Scenario is a multi-device convergence test.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Devices lists the replicas taking part. Each name is also the
	// replica's device id.
	Devices []string `yaml:"devices"`

	Steps []Step `yaml:"steps"`

	Assertions []Assertion `yaml:"assertions"`
}

// Step is exactly one of Record or Sync.
type Step struct {
	Record *RecordStep `yaml:"record,omitempty"`
	Sync   *SyncStep   `yaml:"sync,omitempty"`
}

// RecordStep records a batch of deck events on one device.
type RecordStep struct {
	Device string `yaml:"device"`
	Stream string `yaml:"stream"`

	// At, if set, moves the device clock to Epoch plus At seconds first.
	// Negative values model a clock that is behind.
	At *int `yaml:"at,omitempty"`

	Events []EventEntry `yaml:"events"`
}

// EventEntry is a deck event in scenario form.
type EventEntry struct {
	Kind  string `yaml:"kind"`
	Card  string `yaml:"card"`
	Front string `yaml:"front,omitempty"`
	Back  string `yaml:"back,omitempty"`
	Grade int    `yaml:"grade,omitempty"`
}

func (e EventEntry) event() deck.Event {
	return deck.Event{Kind: e.Kind, Card: e.Card, Front: e.Front, Back: e.Back, Grade: e.Grade}
}

// SyncStep runs one sync session with local as the initiating side.
type SyncStep struct {
	Local  string `yaml:"local"`
	Remote string `yaml:"remote"`

	// Transport is "memory" (default) or "http".
	Transport string `yaml:"transport,omitempty"`
}

// Transports.
const (
	TransportMemory = "memory"
	TransportHTTP   = "http"
)

// Assertion checks the state after all steps ran.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Device is the device to inspect (all but converged).
	Device string `yaml:"device,omitempty"`

	Stream string `yaml:"stream"`

	// Counts is the expected per-device log lengths (counts).
	Counts map[string]int `yaml:"counts,omitempty"`

	// Card names the card to inspect (card).
	Card string `yaml:"card,omitempty"`

	// Present, Reviews and Lapses are the expected card fields (card).
	// Unset fields are not checked.
	Present *bool `yaml:"present,omitempty"`
	Reviews *int  `yaml:"reviews,omitempty"`
	Lapses  *int  `yaml:"lapses,omitempty"`

	// Weakest is the expected ranking (weakest).
	Weakest []string `yaml:"weakest,omitempty"`
}

// Assertion type constants.
const (
	AssertConverged = "converged"
	AssertCounts    = "counts"
	AssertCard      = "card"
	AssertWeakest   = "weakest"
	AssertReviews   = "reviews"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or refers to undeclared devices.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario %q: %w", scenario.Name, err)
	}
	return &scenario, nil
}

// LoadDir loads every *.yaml scenario in dir, sorted by file name.
func LoadDir(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to list scenarios: %w", err)
	}
	slices.Sort(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, path := range paths {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Devices) == 0 {
		return fmt.Errorf("devices list is required and must be non-empty")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	devices := make(map[string]bool, len(s.Devices))
	for _, d := range s.Devices {
		if d == "" || devices[d] {
			return fmt.Errorf("device names must be non-empty and unique, got %q", d)
		}
		devices[d] = true
	}
	known := func(field, name string) error {
		if !devices[name] {
			return fmt.Errorf("%s: unknown device %q", field, name)
		}
		return nil
	}

	for i, step := range s.Steps {
		switch {
		case step.Record != nil && step.Sync != nil, step.Record == nil && step.Sync == nil:
			return fmt.Errorf("steps[%d]: exactly one of record or sync is required", i)
		case step.Record != nil:
			r := step.Record
			if err := known(fmt.Sprintf("steps[%d].record", i), r.Device); err != nil {
				return err
			}
			if err := checkStream(r.Stream); err != nil {
				return fmt.Errorf("steps[%d].record: %w", i, err)
			}
			if len(r.Events) == 0 {
				return fmt.Errorf("steps[%d].record: events is required", i)
			}
		default:
			sy := step.Sync
			if err := known(fmt.Sprintf("steps[%d].sync.local", i), sy.Local); err != nil {
				return err
			}
			if err := known(fmt.Sprintf("steps[%d].sync.remote", i), sy.Remote); err != nil {
				return err
			}
			if sy.Local == sy.Remote {
				return fmt.Errorf("steps[%d].sync: a device cannot sync with itself", i)
			}
			switch sy.Transport {
			case "", TransportMemory, TransportHTTP:
			default:
				return fmt.Errorf("steps[%d].sync: unknown transport %q", i, sy.Transport)
			}
		}
	}

	for i, a := range s.Assertions {
		if err := checkStream(a.Stream); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
		switch a.Type {
		case AssertConverged:
			continue
		case AssertCounts, AssertWeakest:
		case AssertReviews:
			if a.Reviews == nil {
				return fmt.Errorf("assertions[%d]: reviews is required", i)
			}
		case AssertCard:
			if a.Card == "" {
				return fmt.Errorf("assertions[%d]: card is required", i)
			}
		default:
			return fmt.Errorf("assertions[%d]: unknown assertion type %q", i, a.Type)
		}
		if err := known(fmt.Sprintf("assertions[%d]", i), a.Device); err != nil {
			return err
		}
	}
	return nil
}

func checkStream(s string) error {
	id, err := eventlog.ParseStreamID(s)
	if err != nil {
		return err
	}
	if id.Kind() != deck.Kind {
		return fmt.Errorf("stream %s: only %s streams are supported", s, deck.Kind)
	}
	return nil
}
