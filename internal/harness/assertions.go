package harness

import (
	"fmt"
	"maps"
	"slices"
	"strings"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Device   string
	Stream   string
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s", e.Type)
	if e.Device != "" {
		fmt.Fprintf(&buf, " on %s", e.Device)
	}
	fmt.Fprintf(&buf, " for %s\n", e.Stream)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	return buf.String()
}

// EvaluateAssertions checks every assertion against result and returns the
// failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var failures []string
	for _, a := range assertions {
		if err := evaluate(result, a); err != nil {
			failures = append(failures, err.Error())
		}
	}
	return failures
}

func evaluate(result *Result, a Assertion) error {
	if a.Type == AssertConverged {
		return assertConverged(result, a)
	}
	st, ok := result.Final[a.Device][a.Stream]
	if !ok {
		return &AssertionError{Type: a.Type, Device: a.Device, Stream: a.Stream, Expected: "captured state", Actual: "none"}
	}
	switch a.Type {
	case AssertCounts:
		return assertCounts(st, a)
	case AssertCard:
		return assertCard(st, a)
	case AssertWeakest:
		return assertWeakest(st, a)
	case AssertReviews:
		return assertReviews(st, a)
	}
	return fmt.Errorf("unknown assertion type %q", a.Type)
}

// assertConverged checks that every device holds the same counts and the
// same derived state as the first.
func assertConverged(result *Result, a Assertion) error {
	names := slices.Sorted(maps.Keys(result.Final))
	if len(names) == 0 {
		return nil
	}
	ref := result.Final[names[0]][a.Stream]
	for _, name := range names[1:] {
		st := result.Final[name][a.Stream]
		if !maps.Equal(ref.Counts, st.Counts) {
			return &AssertionError{
				Type:     AssertConverged,
				Stream:   a.Stream,
				Expected: fmt.Sprintf("%s counts %s", name, formatCounts(ref.Counts)),
				Actual:   formatCounts(st.Counts),
			}
		}
		if ref.Fingerprint != st.Fingerprint {
			return &AssertionError{
				Type:     AssertConverged,
				Stream:   a.Stream,
				Expected: fmt.Sprintf("%s state %s", name, ref.Fingerprint),
				Actual:   st.Fingerprint,
			}
		}
	}
	return nil
}

func assertCounts(st DeviceState, a Assertion) error {
	if maps.Equal(st.Counts, a.Counts) {
		return nil
	}
	return &AssertionError{
		Type:     AssertCounts,
		Device:   a.Device,
		Stream:   a.Stream,
		Expected: formatCounts(a.Counts),
		Actual:   formatCounts(st.Counts),
	}
}

func assertCard(st DeviceState, a Assertion) error {
	fail := func(expected, actual string) error {
		return &AssertionError{
			Type:     AssertCard,
			Device:   a.Device,
			Stream:   a.Stream,
			Expected: fmt.Sprintf("card %s %s", a.Card, expected),
			Actual:   actual,
		}
	}

	c, ok := st.Cards[a.Card]
	want := a.Present == nil || *a.Present
	switch {
	case want && !ok:
		return fail("present", "absent")
	case !want && ok:
		return fail("absent", "present")
	case !ok:
		return nil
	}
	if a.Reviews != nil && c.Reviews != *a.Reviews {
		return fail(fmt.Sprintf("reviews=%d", *a.Reviews), fmt.Sprintf("reviews=%d", c.Reviews))
	}
	if a.Lapses != nil && c.Lapses != *a.Lapses {
		return fail(fmt.Sprintf("lapses=%d", *a.Lapses), fmt.Sprintf("lapses=%d", c.Lapses))
	}
	return nil
}

func assertWeakest(st DeviceState, a Assertion) error {
	if slices.Equal(st.Weakest, a.Weakest) {
		return nil
	}
	return &AssertionError{
		Type:     AssertWeakest,
		Device:   a.Device,
		Stream:   a.Stream,
		Expected: fmt.Sprint(a.Weakest),
		Actual:   fmt.Sprint(st.Weakest),
	}
}

func assertReviews(st DeviceState, a Assertion) error {
	if st.Reviews == *a.Reviews {
		return nil
	}
	return &AssertionError{
		Type:     AssertReviews,
		Device:   a.Device,
		Stream:   a.Stream,
		Expected: fmt.Sprint(*a.Reviews),
		Actual:   fmt.Sprint(st.Reviews),
	}
}

// formatCounts renders counts with sorted keys.
func formatCounts(c map[string]int) string {
	parts := make([]string, 0, len(c))
	for _, k := range slices.Sorted(maps.Keys(c)) {
		parts = append(parts, fmt.Sprintf("%s:%d", k, c[k]))
	}
	return "{" + strings.Join(parts, " ") + "}"
}
