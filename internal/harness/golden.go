package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/orbit/internal/sample"
	"github.com/roach88/orbit/internal/savedstate"
)

// TraceSnapshot is the golden form of a scenario run.
type TraceSnapshot struct {
	ScenarioName string          `json:"scenario_name"`
	ContainerID  string          `json:"container_id"`
	Dispatches   []DispatchEvent `json:"dispatches"`
	States       []sample.State  `json:"states"`
	Effects      []sample.Effect `json:"effects"`
	FinalState   sample.State    `json:"final_state"`
	Error        string          `json:"error,omitempty"`
}

// Snapshot builds the golden form of result.
func Snapshot(name string, result *Result) TraceSnapshot {
	return TraceSnapshot{
		ScenarioName: name,
		ContainerID:  result.ContainerID,
		Dispatches:   result.Dispatches,
		States:       result.States,
		Effects:      result.Effects,
		FinalState:   result.FinalState,
		Error:        result.ContainerError,
	}
}

// MarshalSnapshot encodes the snapshot as canonical JSON.
func (s TraceSnapshot) MarshalSnapshot() ([]byte, error) {
	return savedstate.MarshalCanonical(s)
}

// RunWithGolden runs scenario and compares its trace with
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario, opts...)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result with its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := Snapshot(name, result).MarshalSnapshot()
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
