package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/orbit/internal/savedstate"
)

// StateOptions holds flags for the state command.
type StateOptions struct {
	*RootOptions
	Database string
}

// StateSnapshot is the state command output for one key.
type StateSnapshot struct {
	Key     string `json:"key"`
	Seq     int64  `json:"seq"`
	Payload string `json:"payload"`
}

// NewStateCommand creates the state command.
func NewStateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "state [key]",
		Short: "Inspect saved container state",
		Long: `Inspect container state saved in a SQLite database.

Without a key, lists every saved key. With a key, prints its snapshot.

Examples:
  orbit state --db ./orbit.db
  orbit state --db ./orbit.db counter --format json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runState(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runState(opts *StateOptions, args []string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)

	// Opening a missing path would create an empty database.
	if _, err := os.Stat(opts.Database); os.IsNotExist(err) {
		_ = f.Error(ErrCodeNotFound, fmt.Sprintf("database not found: %s", opts.Database), nil)
		return NewExitError(ExitCommandError, fmt.Sprintf("database not found: %s", opts.Database))
	}

	store, err := savedstate.OpenSQLite(opts.Database)
	if err != nil {
		_ = f.Error(ErrCodeStoreFailure, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer store.Close()

	ctx := cmd.Context()

	if len(args) == 0 {
		entries, err := store.List(ctx)
		if err != nil {
			_ = f.Error(ErrCodeStoreFailure, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to list saved state", err)
		}
		if f.JSON() {
			if entries == nil {
				entries = []savedstate.Entry{}
			}
			return f.Success(entries)
		}
		if len(entries) == 0 {
			f.Textf("No saved state.")
			return nil
		}
		for _, e := range entries {
			f.Textf("%s\tseq=%d\tcodec=%s\tsize=%d", e.Key, e.Seq, e.Codec, e.Size)
		}
		return nil
	}

	key := args[0]
	snap, err := store.Load(ctx, key)
	if errors.Is(err, savedstate.ErrNotFound) {
		_ = f.Error(ErrCodeNotFound, fmt.Sprintf("no saved state for key %q", key), nil)
		return NewExitError(ExitFailure, fmt.Sprintf("no saved state for key %q", key))
	}
	if err != nil {
		_ = f.Error(ErrCodeStoreFailure, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load saved state", err)
	}

	if f.JSON() {
		return f.Success(StateSnapshot{Key: snap.Key, Seq: snap.Seq, Payload: string(snap.Payload)})
	}
	f.Textf("key: %s", snap.Key)
	f.Textf("seq: %d", snap.Seq)
	f.Textf("payload: %s", snap.Payload)
	return nil
}
