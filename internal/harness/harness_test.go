package harness

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/orbit/internal/sample"
	"github.com/roach88/orbit/internal/savedstate"
)

func loadAndRun(t *testing.T, name string, opts ...Option) *Result {
	t.Helper()
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario, opts...)
	require.NoError(t, err)
	return result
}

func TestRun_Scenarios(t *testing.T) {
	paths, err := FindScenarios(filepath.Join("testdata", "scenarios"))
	require.NoError(t, err)
	require.NotEmpty(t, paths)

	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			scenario, err := LoadScenario(path)
			require.NoError(t, err)

			result, err := Run(context.Background(), scenario)
			require.NoError(t, err)
			assert.True(t, result.Pass, "errors: %v", result.Errors)
		})
	}
}

func TestRun_RecordsTrace(t *testing.T) {
	result := loadAndRun(t, "rename_and_count")

	assert.Equal(t, "test-container", result.ContainerID)
	assert.False(t, result.Restored)
	require.Len(t, result.Dispatches, 5)
	for i, d := range result.Dispatches {
		assert.Equal(t, int64(i+1), d.Seq)
		assert.Empty(t, d.Error)
	}
	assert.Equal(t, sample.State{Label: "clicks"}, result.FinalState)
	assert.Len(t, result.States, 5)
	assert.Len(t, result.Effects, 3)
}

func TestRun_FailFast(t *testing.T) {
	result := loadAndRun(t, "fail_fast")

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "OPERATION_FAILED", result.ContainerError)
	assert.Equal(t, "CLOSED", result.Dispatches[2].Error)
}

func TestRun_ReportsFailures(t *testing.T) {
	scenario := &Scenario{
		Name:        "wrong_expectations",
		Description: "Expectations that do not hold",
		ContainerID: "counter-7",
		Steps: []Step{
			{Dispatch: sample.IntentAdd, Input: 1},
			{Dispatch: sample.IntentAdd, Input: 1, Error: "QUEUE_FULL"},
		},
		Assertions: []Assertion{
			{Type: AssertFinalState, Expect: map[string]any{"count": 3}},
			{Type: AssertEffectCount, Count: 1},
			{Type: AssertContainerError, Code: "OPERATION_FAILED"},
		},
	}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	assert.Equal(t, "counter-7", result.ContainerID)
	require.Len(t, result.Errors, 4)
	assert.Contains(t, result.Errors[0], `steps[1] add: dispatch error "", want "QUEUE_FULL"`)
	assert.Contains(t, result.Errors[1], "Assertion failed: final_state")
	assert.Contains(t, result.Errors[2], "Assertion failed: effect_count")
	assert.Contains(t, result.Errors[3], "Actual: no error")
}

func TestRun_InvalidSettings(t *testing.T) {
	scenario := &Scenario{
		Name:       "bad",
		Settings:   map[string]any{"overflow": "drop_newest"},
		Steps:      []Step{{Dispatch: sample.IntentAdd}},
		Assertions: []Assertion{{Type: AssertEffectCount}},
	}

	_, err := Run(context.Background(), scenario)
	assert.Error(t, err)
}

func TestRun_WithStoreRestoresAndPersists(t *testing.T) {
	ctx := context.Background()
	store, err := savedstate.OpenSQLite(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer store.Close()

	scenario := &Scenario{
		Name:        "persisted",
		Description: "Counts across runs",
		Steps:       []Step{{Dispatch: sample.IntentAdd, Input: 2}},
		Assertions:  []Assertion{{Type: AssertEffectCount}},
	}

	first, err := Run(ctx, scenario, WithStore(store, "counter"))
	require.NoError(t, err)
	assert.False(t, first.Restored)
	assert.Equal(t, 2, first.FinalState.Count)

	second, err := Run(ctx, scenario, WithStore(store, "counter"))
	require.NoError(t, err)
	assert.True(t, second.Restored)
	assert.Equal(t, sample.State{Count: 2}, second.States[0])
	assert.Equal(t, 4, second.FinalState.Count)

	snap, err := store.Load(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, `{"count":4,"label":""}`, string(snap.Payload))
	assert.Equal(t, int64(2), snap.Seq)
}
