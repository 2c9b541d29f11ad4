// Package config loads container settings files.
//
// Settings may be written in CUE (.cue) or YAML (.yaml, .yml). Both are
// unified with the embedded schema, which supplies defaults and rejects
// unknown fields and out-of-range values before anything is decoded.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/orbit/internal/container"
	"github.com/roach88/orbit/internal/savedstate"
)

//go:embed schema.cue
var schemaCUE string

// File is a decoded settings file.
type File struct {
	SideEffectBuffer      SideEffectBuffer `json:"side_effect_buffer"`
	SubscribedStopTimeout string           `json:"subscribed_stop_timeout"`
	ErrorPolicy           string           `json:"error_policy"`
	IsolateFirstOperation bool             `json:"isolate_first_operation"`
	MaxPendingOperations  int              `json:"max_pending_operations"`
	BackgroundWorkers     int              `json:"background_workers"`
	Store                 *Store           `json:"store,omitempty"`
	MetricsAddr           string           `json:"metrics_addr,omitempty"`

	// Path is the file the settings were loaded from.
	Path string `json:"-"`
}

// SideEffectBuffer configures the side-effect channel.
type SideEffectBuffer struct {
	Capacity int    `json:"capacity"`
	Overflow string `json:"overflow"`
}

// Store selects where container state is persisted.
type Store struct {
	Driver string `json:"driver"`
	Key    string `json:"key"`
	Codec  string `json:"codec"`
	Path   string `json:"path,omitempty"`
	Addr   string `json:"addr,omitempty"`
	TTL    string `json:"ttl,omitempty"`
}

// Error reports a settings file that could not be loaded or validated.
type Error struct {
	Path    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// Load reads, validates and decodes the settings file at path.
func Load(path string) (*File, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Path: path, Message: err.Error()}
	}
	return Parse(path, src)
}

// Parse validates and decodes settings read from name. The extension of
// name selects the format.
func Parse(name string, src []byte) (*File, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue")).
		LookupPath(cue.ParsePath("#Settings"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("settings schema: %w", err)
	}

	var data cue.Value
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case ".cue":
		data = ctx.CompileBytes(src, cue.Filename(name))
	case ".yaml", ".yml":
		raw := map[string]any{}
		if err := yaml.Unmarshal(src, &raw); err != nil {
			return nil, &Error{Path: name, Message: fmt.Sprintf("parse yaml: %v", err)}
		}
		if raw == nil {
			raw = map[string]any{}
		}
		data = ctx.Encode(raw)
	default:
		return nil, &Error{Path: name, Message: fmt.Sprintf("unsupported settings format %q (want .cue, .yaml or .yml)", ext)}
	}
	if err := data.Err(); err != nil {
		return nil, formatCUEError(name, err)
	}

	v := schema.Unify(data)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(name, err)
	}

	f := &File{}
	if err := v.Decode(f); err != nil {
		return nil, formatCUEError(name, err)
	}
	f.Path = name
	return f, nil
}

func formatCUEError(path string, err error) *Error {
	return &Error{
		Path:    path,
		Message: strings.TrimSpace(cueerrors.Details(err, nil)),
	}
}

// Options converts the settings into container options.
func (f *File) Options() ([]container.Option, error) {
	overflow, err := container.ParseOverflowPolicy(f.SideEffectBuffer.Overflow)
	if err != nil {
		return nil, err
	}
	errPolicy, err := container.ParseErrorPolicy(f.ErrorPolicy)
	if err != nil {
		return nil, err
	}
	stopTimeout, err := time.ParseDuration(f.SubscribedStopTimeout)
	if err != nil {
		return nil, fmt.Errorf("subscribed_stop_timeout: %w", err)
	}

	opts := []container.Option{
		container.WithSideEffectBuffer(f.SideEffectBuffer.Capacity, overflow),
		container.WithErrorPolicy(errPolicy),
		container.WithSubscribedStopTimeout(stopTimeout),
		container.WithMaxPendingOperations(f.MaxPendingOperations),
	}
	if f.IsolateFirstOperation {
		opts = append(opts, container.WithIsolateFirstOperation())
	}
	if f.BackgroundWorkers > 0 {
		opts = append(opts, container.WithBackgroundExecutor(container.NewBoundedExecutor(f.BackgroundWorkers)))
	}
	return opts, nil
}

// Open connects to the configured store. close releases it.
func (s *Store) Open() (store savedstate.Store, close func() error, err error) {
	noop := func() error { return nil }

	switch s.Driver {
	case "memory":
		return savedstate.NewMemoryStore(), noop, nil
	case "sqlite":
		db, err := savedstate.OpenSQLite(s.Path, savedstate.WithCodecName(s.Codec))
		if err != nil {
			return nil, nil, err
		}
		return db, db.Close, nil
	case "redis":
		ttl, err := time.ParseDuration(s.TTL)
		if err != nil {
			return nil, nil, fmt.Errorf("store ttl: %w", err)
		}
		client := savedstate.NewGoRedisEvaler(s.Addr)
		return savedstate.NewRedisStore(client, ttl), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", s.Driver)
	}
}
