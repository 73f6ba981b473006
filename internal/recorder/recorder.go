// Package recorder captures the non-deterministic outputs of an agent run
// into a session and persists every event as soon as it is recorded.
package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ehrlich-b/vtrace/internal/fingerprint"
	"github.com/ehrlich-b/vtrace/internal/patch"
	"github.com/ehrlich-b/vtrace/internal/trace"
)

// Sink persists a session as it grows. Begin is called once with the
// session header; Append is called after each event is added, with the
// event as the session's last entry.
type Sink interface {
	Begin(s *trace.Session) error
	Append(s *trace.Session, e trace.Event) error
}

type discard struct{}

func (discard) Begin(*trace.Session) error               { return nil }
func (discard) Append(*trace.Session, trace.Event) error { return nil }

// Discard is a Sink that keeps nothing.
var Discard Sink = discard{}

type Option func(*Recorder)

func WithClock(c trace.Clock) Option {
	return func(r *Recorder) { r.clock = c }
}

func WithIDGenerator(g trace.IDGenerator) Option {
	return func(r *Recorder) { r.ids = g }
}

// WithHasher sets the algorithm used for the codebase and response hashes.
func WithHasher(h fingerprint.Hasher) Option {
	return func(r *Recorder) { r.hasher = h }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) { r.log = l }
}

// Recorder appends events to a session. It is safe for concurrent use;
// events are ordered by the time their Log call takes the lock.
type Recorder struct {
	mu      sync.Mutex
	session *trace.Session
	sink    Sink
	clock   trace.Clock
	ids     trace.IDGenerator
	hasher  fingerprint.Hasher
	log     *slog.Logger
}

func newRecorder(s *trace.Session, sink Sink, opts []Option) *Recorder {
	r := &Recorder{
		session: s,
		sink:    sink,
		clock:   trace.SystemClock{},
		ids:     trace.UUIDGenerator{},
		hasher:  fingerprint.NewHasher(fingerprint.SHA256),
	}
	for _, o := range opts {
		o(r)
	}
	if r.sink == nil {
		r.sink = Discard
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	return r
}

// New resumes recording into an existing session, e.g. one loaded from
// disk. The sink is not asked to Begin.
func New(s *trace.Session, sink Sink, opts ...Option) *Recorder {
	return newRecorder(s, sink, opts)
}

// Params describes a new session.
type Params struct {
	Model string
	// CodebasePath, when set, is hashed into the session's codebase_hash.
	CodebasePath   string
	InitialContext string
	PatchFormat    patch.Format
}

// NewSession starts a fresh session, persists its header through sink and
// returns a Recorder for it.
func NewSession(ctx context.Context, p Params, sink Sink, opts ...Option) (*Recorder, error) {
	r := newRecorder(nil, sink, opts)

	format := p.PatchFormat
	if format == "" {
		format = patch.FormatLegacy
	}
	if _, err := patch.ParseFormat(string(format)); err != nil {
		return nil, err
	}

	codebase := "none"
	if p.CodebasePath != "" {
		h, err := r.hasher.Directory(ctx, p.CodebasePath)
		if err != nil {
			return nil, fmt.Errorf("hash codebase: %w", err)
		}
		codebase = h
	}

	r.session = &trace.Session{
		ID:             r.ids.NewID(),
		Model:          p.Model,
		CodebaseHash:   codebase,
		InitialContext: p.InitialContext,
		CreatedAt:      trace.FormatTime(r.clock.Now()),
		SchemaVersion:  trace.SchemaVersion,
		PatchFormat:    string(format),
	}
	if err := r.sink.Begin(r.session); err != nil {
		return nil, fmt.Errorf("begin session: %w", err)
	}
	r.log.Info("session started", "session", r.session.ID, "model", p.Model, "codebase", codebase)
	return r, nil
}

// Session returns the session being recorded.
func (r *Recorder) Session() *trace.Session {
	return r.session
}

func (r *Recorder) EventCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session.Len()
}

// LogLLMCall records a model response. temperature and a hash of the
// response are stored ahead of any extra metadata.
func (r *Recorder) LogLLMCall(prompt, response string, temperature float64, extra trace.Metadata) (trace.Event, error) {
	md := trace.MetadataOf(
		"temperature", temperature,
		"response_hash", r.hasher.Content([]byte(response)),
	)
	md.Merge(extra)
	return r.record(trace.Prompt(prompt), response, md)
}

// LogToolCall records the output of a tool invocation.
func (r *Recorder) LogToolCall(tool string, args trace.ToolArgs, output string, extra trace.Metadata) (trace.Event, error) {
	return r.record(trace.ToolInvocation{Tool: tool, Args: args}, output, extra)
}

// LogEdit records a diff applied to path.
func (r *Recorder) LogEdit(path, diff string, extra trace.Metadata) (trace.Event, error) {
	return r.record(trace.FilePath(path), diff, extra)
}

// record appends the event and hands the session to the sink. An event the
// sink fails to persist stays in the session; both sinks write it with the
// next successful append.
func (r *Recorder) record(in trace.Input, output string, md trace.Metadata) (trace.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := trace.Event{
		Timestamp: trace.FormatTime(r.clock.Now()),
		Input:     in,
		Output:    output,
		Metadata:  md,
	}
	r.session.Append(e)
	if err := r.sink.Append(r.session, e); err != nil {
		return e, fmt.Errorf("persist event %d: %w", r.session.Len()-1, err)
	}
	r.log.Debug("event recorded", "session", r.session.ID, "index", r.session.Len()-1, "kind", e.Kind())
	return e, nil
}

// LLMFunc calls a model.
type LLMFunc func(ctx context.Context, prompt string) (string, error)

// TracedLLM records every response of an LLMFunc before returning it.
type TracedLLM struct {
	rec         *Recorder
	fn          LLMFunc
	Temperature float64
}

func NewTracedLLM(rec *Recorder, fn LLMFunc) *TracedLLM {
	return &TracedLLM{rec: rec, fn: fn}
}

// Call invokes the wrapped function and records its response. A failed
// call is not recorded. If recording fails the response is still returned
// alongside the error.
func (t *TracedLLM) Call(ctx context.Context, prompt string, extra trace.Metadata) (string, error) {
	resp, err := t.fn(ctx, prompt)
	if err != nil {
		return "", err
	}
	if _, err := t.rec.LogLLMCall(prompt, resp, t.Temperature, extra); err != nil {
		return resp, err
	}
	return resp, nil
}
