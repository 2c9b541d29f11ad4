package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/orbit/internal/config"
)

// ValidationResult is the validate command output.
type ValidationResult struct {
	Valid    bool         `json:"valid"`
	Path     string       `json:"path"`
	Settings *config.File `json:"settings,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <settings-file>",
		Short: "Validate a container settings file",
		Long: `Validate a container settings file (.cue, .yaml or .yml) against the
settings schema and print the effective settings, defaults included.

Exit codes:
  0 - Settings are valid
  1 - Settings are invalid
  2 - Command error (file not found, etc.)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		_ = f.Error(ErrCodeNotFound, fmt.Sprintf("settings file not found: %s", path), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("settings file not found: %s", path))
	}

	file, err := config.Load(path)
	if err == nil {
		_, err = file.Options()
	}
	if err != nil {
		message := err.Error()
		var cfgErr *config.Error
		if errors.As(err, &cfgErr) {
			message = cfgErr.Message
		}
		_ = f.Error(ErrCodeInvalid, message, nil)
		return WrapExitError(ExitFailure, "invalid settings", err)
	}

	f.VerboseLog("Loaded settings from %s", path)

	if f.JSON() {
		return f.Success(ValidationResult{Valid: true, Path: path, Settings: file})
	}

	f.Textf("✓ %s is valid", path)
	f.Textf("  side_effect_buffer: capacity=%d overflow=%s", file.SideEffectBuffer.Capacity, file.SideEffectBuffer.Overflow)
	f.Textf("  error_policy: %s", file.ErrorPolicy)
	f.Textf("  subscribed_stop_timeout: %s", file.SubscribedStopTimeout)
	f.Textf("  isolate_first_operation: %t", file.IsolateFirstOperation)
	f.Textf("  max_pending_operations: %d", file.MaxPendingOperations)
	f.Textf("  background_workers: %d", file.BackgroundWorkers)
	if file.Store != nil {
		f.Textf("  store: driver=%s key=%s codec=%s", file.Store.Driver, file.Store.Key, file.Store.Codec)
	}
	return nil
}
