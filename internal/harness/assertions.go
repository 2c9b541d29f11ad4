package harness

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
	Context  []string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Context) > 0 {
		fmt.Fprintf(&buf, "\nRecorded:\n")
		for i, line := range e.Context {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, line)
		}
	}
	return buf.String()
}

// EvaluateAssertions checks assertions against result and returns one
// message per failure.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertFinalState:
			err = assertFinalState(result, assertion)
		case AssertStateTrace:
			err = assertStateTrace(result, assertion)
		case AssertEffects:
			err = assertEffects(result, assertion)
		case AssertEffectCount:
			err = assertEffectCount(result, assertion)
		case AssertContainerError:
			err = assertContainerError(result, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func assertFinalState(result *Result, assertion Assertion) error {
	actual, err := normalize(result.FinalState)
	if err != nil {
		return err
	}
	if !matchFields(actual, assertion.Expect) {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: describe(assertion.Expect),
			Actual:   describe(actual),
		}
	}
	return nil
}

func assertStateTrace(result *Result, assertion Assertion) error {
	return assertSequence(AssertStateTrace, result.States, assertion.States)
}

func assertEffects(result *Result, assertion Assertion) error {
	return assertSequence(AssertEffects, result.Effects, assertion.Effects)
}

// assertSequence checks that actual has exactly len(expected) entries and
// each entry contains the expected fields.
func assertSequence[T any](kind string, actual []T, expected []map[string]any) error {
	recorded := make([]string, len(actual))
	normalized := make([]any, len(actual))
	for i, v := range actual {
		n, err := normalize(v)
		if err != nil {
			return err
		}
		normalized[i] = n
		recorded[i] = describe(n)
	}

	if len(actual) != len(expected) {
		return &AssertionError{
			Type:     kind,
			Expected: fmt.Sprintf("%d entries", len(expected)),
			Actual:   fmt.Sprintf("%d entries", len(actual)),
			Context:  recorded,
		}
	}

	for i, want := range expected {
		if !matchFields(normalized[i], want) {
			return &AssertionError{
				Type:     kind,
				Expected: fmt.Sprintf("entry %d matching %s", i+1, describe(want)),
				Actual:   recorded[i],
				Context:  recorded,
			}
		}
	}
	return nil
}

func assertEffectCount(result *Result, assertion Assertion) error {
	if len(result.Effects) != assertion.Count {
		return &AssertionError{
			Type:     AssertEffectCount,
			Expected: fmt.Sprintf("%d side effects", assertion.Count),
			Actual:   fmt.Sprintf("%d side effects", len(result.Effects)),
		}
	}
	return nil
}

func assertContainerError(result *Result, assertion Assertion) error {
	if result.ContainerError != assertion.Code {
		actual := result.ContainerError
		if actual == "" {
			actual = "no error"
		}
		return &AssertionError{
			Type:     AssertContainerError,
			Expected: assertion.Code,
			Actual:   actual,
		}
	}
	return nil
}

// normalize round-trips v through JSON so recorded values and YAML
// expectations compare on the same types (numbers become float64).
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("normalize %T: %w", v, err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("normalize %T: %w", v, err)
	}
	return out, nil
}

// matchFields reports whether actual contains every expected field.
// Fields absent from expected are not checked.
func matchFields(actual any, expected map[string]any) bool {
	if len(expected) == 0 {
		return true
	}

	actualMap, ok := actual.(map[string]any)
	if !ok {
		return false
	}

	want, err := normalize(expected)
	if err != nil {
		return false
	}
	for key, expectedVal := range want.(map[string]any) {
		actualVal, exists := actualMap[key]
		if !exists {
			// omitempty fields are absent when zero.
			if isZero(expectedVal) {
				continue
			}
			return false
		}
		if !reflect.DeepEqual(actualVal, expectedVal) {
			return false
		}
	}
	return true
}

func isZero(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case float64:
		return val == 0
	case bool:
		return !val
	default:
		return false
	}
}

func describe(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
