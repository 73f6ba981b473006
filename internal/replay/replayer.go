// Package replay reconstructs workspace state by folding a recorded trace.
//
// Replay consumes only values already present in the trace: model
// responses and tool output are appended as recorded, and edits apply their
// recorded diff. No handler calls a model, runs a command, reads the clock
// or reads the workspace, so replaying the same trace always yields the
// same files and outputs.
package replay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"

	"github.com/ehrlich-b/vtrace/internal/patch"
	"github.com/ehrlich-b/vtrace/internal/trace"
)

var (
	// ErrWorkspaceIO marks a failure to materialize an edit on disk.
	ErrWorkspaceIO = errors.New("workspace io failure")
	// ErrUnsafePath marks an edit path that would land outside the workspace.
	ErrUnsafePath = errors.New("edit path escapes workspace")
	// ErrRewind is returned by ReplayTo for a target behind the cursor.
	ErrRewind = errors.New("replay cannot move backwards")
)

// WorkspaceError reports a failed edit materialization. Replay stops at
// Index; the in-memory file map already holds the new content.
type WorkspaceError struct {
	Index int
	Path  string
	Err   error
}

func (e *WorkspaceError) Error() string {
	return fmt.Sprintf("workspace io failure: event %d: %s: %v", e.Index, e.Path, e.Err)
}

func (e *WorkspaceError) Unwrap() []error { return []error{ErrWorkspaceIO, e.Err} }

// Status is the position of a Replayer in its trace.
type Status int

const (
	NotStarted Status = iota
	InProgress
	Completed
)

func (s Status) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case InProgress:
		return "in_progress"
	case Completed:
		return "completed"
	}
	return "unknown"
}

type Option func(*Replayer)

// WithWorkspace materializes edits under dir instead of a temp directory.
// The directory is created if needed and is never removed by Close.
func WithWorkspace(dir string) Option {
	return func(r *Replayer) { r.workspace = dir }
}

// WithFileSystem replaces the filesystem edits are materialized on.
func WithFileSystem(fsys FileSystem) Option {
	return func(r *Replayer) { r.fs = fsys }
}

// WithPatchFormat overrides the patch format recorded in the session.
func WithPatchFormat(f patch.Format) Option {
	return func(r *Replayer) {
		r.format = f
		r.formatSet = true
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Replayer) { r.log = l }
}

// Replayer folds one session into a State, one event at a time. It is not
// safe for concurrent use: every edit depends on all edits before it.
type Replayer struct {
	session       *trace.Session
	fs            FileSystem
	workspace     string
	ownsWorkspace bool
	format        patch.Format
	formatSet     bool
	log           *slog.Logger
	state         *State
}

// New prepares a replay of session. Without WithWorkspace a temporary
// directory is created and removed again by Close.
func New(session *trace.Session, opts ...Option) (*Replayer, error) {
	r := &Replayer{session: session, fs: OSFileSystem{}}
	for _, o := range opts {
		o(r)
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	if !r.formatSet {
		f, err := patch.ParseFormat(session.PatchFormat)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", trace.ErrMalformedTrace, err)
		}
		r.format = f
	}

	if r.workspace == "" {
		dir, err := r.fs.MkdirTemp("", "vtrace_replay_")
		if err != nil {
			return nil, fmt.Errorf("%w: create temp workspace: %v", ErrWorkspaceIO, err)
		}
		r.workspace = dir
		r.ownsWorkspace = true
	} else if err := r.fs.MkdirAll(r.workspace, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create workspace: %v", ErrWorkspaceIO, err)
	}

	r.state = newState(r.workspace)
	return r, nil
}

// Workspace returns the directory edits are materialized under.
func (r *Replayer) Workspace() string { return r.workspace }

// State returns the live replay state.
func (r *Replayer) State() *State { return r.state }

func (r *Replayer) Status() Status {
	switch {
	case r.state.Cursor >= r.session.Len():
		return Completed
	case r.state.Cursor == 0:
		return NotStarted
	}
	return InProgress
}

// Step applies the event at the cursor and advances it. It returns false
// once the trace is exhausted. On error the cursor does not move.
func (r *Replayer) Step() (trace.Event, bool, error) {
	idx := r.state.Cursor
	if idx >= r.session.Len() {
		return trace.Event{}, false, nil
	}
	e := r.session.Event(idx)
	if err := r.apply(idx, e); err != nil {
		return e, false, err
	}
	r.state.Cursor++
	r.log.Debug("replayed event", "index", idx, "kind", e.Kind())
	return e, true, nil
}

// ReplayAll steps until the trace is exhausted. ctx is checked between
// events only.
func (r *Replayer) ReplayAll(ctx context.Context) (*State, error) {
	for {
		if err := ctx.Err(); err != nil {
			return r.state, err
		}
		_, ok, err := r.Step()
		if err != nil {
			return r.state, err
		}
		if !ok {
			return r.state, nil
		}
	}
}

// ReplayTo steps until the cursor reaches min(k, number of events).
func (r *Replayer) ReplayTo(ctx context.Context, k int) (*State, error) {
	target := min(max(k, 0), r.session.Len())
	if target < r.state.Cursor {
		return r.state, fmt.Errorf("%w: cursor %d, target %d", ErrRewind, r.state.Cursor, target)
	}
	for r.state.Cursor < target {
		if err := ctx.Err(); err != nil {
			return r.state, err
		}
		if _, _, err := r.Step(); err != nil {
			return r.state, err
		}
	}
	return r.state, nil
}

// Close removes the workspace if the Replayer created it.
func (r *Replayer) Close() error {
	if !r.ownsWorkspace {
		return nil
	}
	r.ownsWorkspace = false
	return r.fs.RemoveAll(r.workspace)
}

func (r *Replayer) apply(idx int, e trace.Event) error {
	switch in := e.Input.(type) {
	case trace.Prompt:
		r.state.LLMOutputs = append(r.state.LLMOutputs, e.Output)
	case trace.ToolInvocation:
		// Recorded output only; the tool is never executed.
		r.state.ToolOutputs = append(r.state.ToolOutputs, e.Output)
	case trace.FilePath:
		return r.applyEdit(idx, string(in), e.Output)
	default:
		return &trace.UnknownKindError{Index: idx, Kind: string(e.Kind())}
	}
	return nil
}

func (r *Replayer) applyEdit(idx int, raw, diff string) error {
	rel, err := workspacePath(raw)
	if err != nil {
		return &WorkspaceError{Index: idx, Path: raw, Err: err}
	}

	res, err := patch.Apply(r.format, r.state.Files[rel], diff)
	if err != nil {
		return fmt.Errorf("event %d: edit %s: %w", idx, rel, err)
	}
	for _, w := range res.Warnings {
		r.log.Warn("diff did not apply cleanly", "index", idx, "path", rel, "warning", w.String())
		r.state.Warnings = append(r.state.Warnings, Warning{Index: idx, Path: rel, Warning: w})
	}
	r.state.Files[rel] = res.Content

	full := filepath.Join(r.workspace, filepath.FromSlash(rel))
	if err := r.fs.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return &WorkspaceError{Index: idx, Path: rel, Err: err}
	}
	if err := r.fs.WriteFile(full, []byte(res.Content), 0o644); err != nil {
		return &WorkspaceError{Index: idx, Path: rel, Err: err}
	}
	return nil
}

// workspacePath normalizes a recorded edit path to a clean, relative,
// slash-separated path that stays inside the workspace.
func workspacePath(raw string) (string, error) {
	if filepath.IsAbs(raw) || path.IsAbs(filepath.ToSlash(raw)) {
		return "", fmt.Errorf("%w: %q is absolute", ErrUnsafePath, raw)
	}
	p := path.Clean(filepath.ToSlash(raw))
	if p == "." || p == ".." || strings.HasPrefix(p, "../") {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, raw)
	}
	return p, nil
}

// Replay replays the whole session and releases the Replayer. When no
// workspace option is given the temp workspace is gone on return; the
// returned State still holds every file in memory.
func Replay(ctx context.Context, session *trace.Session, opts ...Option) (*State, error) {
	r, err := New(session, opts...)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return r.ReplayAll(ctx)
}
