package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const passingScenario = `
name: counting
description: "Adds up"
initial: { count: 0, label: "" }
steps:
  - dispatch: add
    input: 2
  - dispatch: toast
    input: hi
assertions:
  - type: final_state
    expect: { count: 2 }
  - type: effects
    effects: [{ kind: toast, text: hi }]
`

const failingScenario = `
name: miscounting
description: "Expects the wrong count"
initial: { count: 0, label: "" }
steps:
  - dispatch: add
    input: 2
assertions:
  - type: final_state
    expect: { count: 3 }
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// execute runs a subcommand through the root command, so global flags and
// PersistentPreRunE apply.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

