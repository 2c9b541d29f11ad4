package harness

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/orbit/internal/config"
	"github.com/roach88/orbit/internal/sample"
)

// Scenario is one scenario test.
type Scenario struct {
	// Name uniquely identifies the scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what the scenario validates.
	Description string `yaml:"description"`

	// ContainerID fixes the container id. Defaults to test-container.
	ContainerID string `yaml:"container_id,omitempty"`

	// Initial is the state the container starts from.
	Initial sample.State `yaml:"initial"`

	// Settings configures the container, using the settings file schema.
	Settings map[string]any `yaml:"settings,omitempty"`

	// Steps are dispatched in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the recorded trace.
	Assertions []Assertion `yaml:"assertions"`
}

// Step dispatches one intent.
type Step struct {
	// Dispatch is the intent name.
	Dispatch string `yaml:"dispatch"`

	// Input is handed to the intent's first stage.
	Input any `yaml:"input,omitempty"`

	// Async skips waiting for the container to settle after this step.
	Async bool `yaml:"async,omitempty"`

	// Error is the expected dispatch error code, such as QUEUE_FULL or
	// UNKNOWN_INTENT. Empty means the dispatch must succeed.
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the recorded trace.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Expect holds the expected final state fields (final_state).
	// Subset match: fields not listed are not checked.
	Expect map[string]any `yaml:"expect,omitempty"`

	// States is the expected state trace (state_trace).
	States []map[string]any `yaml:"states,omitempty"`

	// Effects is the expected side-effect trace (effects).
	Effects []map[string]any `yaml:"effects,omitempty"`

	// Count is the expected number of side effects (effect_count).
	Count int `yaml:"count,omitempty"`

	// Code is the expected container error code (container_error).
	Code string `yaml:"code,omitempty"`
}

// Assertion type constants.
const (
	AssertFinalState     = "final_state"
	AssertStateTrace     = "state_trace"
	AssertEffects        = "effects"
	AssertEffectCount    = "effect_count"
	AssertContainerError = "container_error"
)

// LoadScenario reads and validates a scenario file. Unknown fields are
// rejected so typos do not silently disable assertions.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// FindScenarios returns the .yaml and .yml files under dir, sorted.
func FindScenarios(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// SettingsFile validates the scenario settings against the settings schema.
func (s *Scenario) SettingsFile() (*config.File, error) {
	settings := s.Settings
	if settings == nil {
		settings = map[string]any{}
	}
	data, err := yaml.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}
	return config.Parse(s.Name+".settings.yaml", data)
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if step.Dispatch == "" {
			return fmt.Errorf("steps[%d]: dispatch is required", i)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	if _, err := s.SettingsFile(); err != nil {
		return err
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertFinalState:
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertStateTrace:
		if len(a.States) == 0 {
			return fmt.Errorf("assertions[%d]: states list is required for state_trace", index)
		}
	case AssertEffects:
		if a.Effects == nil {
			return fmt.Errorf("assertions[%d]: effects list is required for effects (use [] for none)", index)
		}
	case AssertEffectCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for effect_count", index)
		}
	case AssertContainerError:
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for container_error", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
