package harness

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/orbit/internal/sample"
)

func TestRunWithGolden_RenameAndCount(t *testing.T) {
	scenario, err := LoadScenario(filepath.Join("testdata", "scenarios", "rename_and_count.yaml"))
	require.NoError(t, err)

	result, err := RunWithGolden(t, scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestTraceSnapshot_Canonical(t *testing.T) {
	result := NewResult()
	result.ContainerID = "c"
	result.Dispatches = append(result.Dispatches, DispatchEvent{Seq: 1, Intent: "toast", Input: "a<b"})
	result.Effects = append(result.Effects, sample.Effect{Kind: "toast", Text: "a<b"})
	result.ContainerError = "OPERATION_FAILED"

	data, err := Snapshot("snap", result).MarshalSnapshot()
	require.NoError(t, err)
	assert.Equal(t,
		`{"container_id":"c","dispatches":[{"input":"a<b","intent":"toast","seq":1}],"effects":[{"kind":"toast","text":"a<b"}],"error":"OPERATION_FAILED","final_state":{"count":0,"label":""},"scenario_name":"snap","states":[]}`,
		string(data))
}
