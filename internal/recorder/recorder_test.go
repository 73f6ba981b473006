package recorder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ehrlich-b/vtrace/internal/fingerprint"
	"github.com/ehrlich-b/vtrace/internal/patch"
	"github.com/ehrlich-b/vtrace/internal/replay"
	"github.com/ehrlich-b/vtrace/internal/store"
	"github.com/ehrlich-b/vtrace/internal/trace"
	"github.com/ehrlich-b/vtrace/internal/tracefile"
)

var fixed = trace.FixedClock{T: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}

type memSink struct {
	begun    int
	appended []int
	fail     error
}

func (m *memSink) Begin(*trace.Session) error {
	m.begun++
	return nil
}

func (m *memSink) Append(s *trace.Session, _ trace.Event) error {
	if m.fail != nil {
		return m.fail
	}
	m.appended = append(m.appended, s.Len())
	return nil
}

func TestNewSession(t *testing.T) {
	sink := &memSink{}
	r, err := NewSession(context.Background(), Params{Model: "gpt-test", InitialContext: "ctx"}, sink,
		WithClock(fixed), WithIDGenerator(trace.StaticID("abcd1234")))
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	s := r.Session()
	if s.ID != "abcd1234" {
		t.Errorf("id = %q, want %q", s.ID, "abcd1234")
	}
	if s.CodebaseHash != "none" {
		t.Errorf("codebase hash = %q, want %q", s.CodebaseHash, "none")
	}
	if s.CreatedAt != "2024-05-01T12:00:00.000000" {
		t.Errorf("created at = %q", s.CreatedAt)
	}
	if s.SchemaVersion != trace.SchemaVersion || s.PatchFormat != string(patch.FormatLegacy) {
		t.Errorf("version/format = %d/%q", s.SchemaVersion, s.PatchFormat)
	}
	if sink.begun != 1 {
		t.Errorf("begin calls = %d, want 1", sink.begun)
	}
}

func TestNewSessionHashesCodebase(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main"), 0o644)

	r, err := NewSession(context.Background(), Params{Model: "m", CodebasePath: dir}, Discard)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	want, err := fingerprint.Directory(context.Background(), dir)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if got := r.Session().CodebaseHash; got != want {
		t.Errorf("codebase hash = %q, want %q", got, want)
	}

	if _, err := NewSession(context.Background(), Params{Model: "m", PatchFormat: "fuzzy"}, Discard); !errors.Is(err, patch.ErrUnknownFormat) {
		t.Errorf("bad format: err = %v, want ErrUnknownFormat", err)
	}
}

func TestLogEvents(t *testing.T) {
	sink := &memSink{}
	r, err := NewSession(context.Background(), Params{Model: "m"}, sink, WithClock(fixed))
	if err != nil {
		t.Fatalf("new session: %v", err)
	}

	e, err := r.LogLLMCall("prompt", "response", 0.2, trace.MetadataOf("tokens", 12))
	if err != nil {
		t.Fatalf("log llm: %v", err)
	}
	if got := e.Metadata.Keys(); len(got) != 3 || got[0] != "temperature" || got[1] != "response_hash" || got[2] != "tokens" {
		t.Errorf("metadata keys = %v", got)
	}
	if v, _ := e.Metadata.Get("response_hash"); v.String() != fingerprint.String("response") {
		t.Errorf("response_hash = %v", v)
	}
	if v, _ := e.Metadata.Get("temperature"); v != trace.Float(0.2) {
		t.Errorf("temperature = %v", v)
	}

	if _, err := r.LogToolCall("pytest", trace.TextArgs("-q"), "1 passed", trace.Metadata{}); err != nil {
		t.Fatalf("log tool: %v", err)
	}
	if _, err := r.LogEdit("a.py", "+x", trace.Metadata{}); err != nil {
		t.Fatalf("log edit: %v", err)
	}

	if r.EventCount() != 3 {
		t.Errorf("event count = %d, want 3", r.EventCount())
	}
	if len(sink.appended) != 3 || sink.appended[2] != 3 {
		t.Errorf("sink saw lengths %v", sink.appended)
	}
	for i, want := range []trace.Kind{trace.KindLLMCall, trace.KindToolCall, trace.KindEdit} {
		if got := r.Session().Event(i).Kind(); got != want {
			t.Errorf("event %d kind = %q, want %q", i, got, want)
		}
		if ts := r.Session().Event(i).Timestamp; ts != "2024-05-01T12:00:00.000000" {
			t.Errorf("event %d timestamp = %q", i, ts)
		}
	}
}

func TestSinkFailure(t *testing.T) {
	boom := errors.New("boom")
	sink := &memSink{fail: boom}
	r, err := NewSession(context.Background(), Params{Model: "m"}, sink)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, err := r.LogEdit("a", "+a", trace.Metadata{}); !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
}

// flakySink fails its next Append once when armed.
type flakySink struct {
	Sink
	armed bool
}

func (f *flakySink) Append(s *trace.Session, e trace.Event) error {
	if f.armed {
		f.armed = false
		return errors.New("database is locked")
	}
	return f.Sink.Append(s, e)
}

func TestSinkFailureRecovers(t *testing.T) {
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer db.Close()

	sink := &flakySink{Sink: store.Sink{Store: db}}
	r, err := NewSession(context.Background(), Params{Model: "m"}, sink, WithClock(fixed))
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	if _, err := r.LogEdit("a.txt", "+1", trace.Metadata{}); err != nil {
		t.Fatalf("first edit: %v", err)
	}
	sink.armed = true
	if _, err := r.LogEdit("a.txt", "+2", trace.Metadata{}); err == nil {
		t.Fatal("expected the failing append to report an error")
	}
	if _, err := r.LogEdit("a.txt", "+3", trace.Metadata{}); err != nil {
		t.Fatalf("edit after failure: %v", err)
	}

	got, err := db.LoadSession(r.Session().ID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Len() != 3 || r.EventCount() != 3 {
		t.Fatalf("stored %d events, recorded %d; want 3 and 3", got.Len(), r.EventCount())
	}
	if !got.Equal(r.Session()) {
		t.Error("stored session differs from recorded one")
	}
}

func TestTracedLLM(t *testing.T) {
	r := New(&trace.Session{ID: "x", Model: "m", CodebaseHash: "none"}, nil)
	calls := 0
	llm := NewTracedLLM(r, func(_ context.Context, prompt string) (string, error) {
		calls++
		if prompt == "fail" {
			return "", errors.New("rate limited")
		}
		return "echo: " + prompt, nil
	})
	llm.Temperature = 0.7

	got, err := llm.Call(context.Background(), "hi", trace.Metadata{})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if got != "echo: hi" {
		t.Errorf("response = %q, want %q", got, "echo: hi")
	}
	if _, err := llm.Call(context.Background(), "fail", trace.Metadata{}); err == nil {
		t.Error("expected error from failing call")
	}
	if calls != 2 || r.EventCount() != 1 {
		t.Errorf("calls = %d, events = %d", calls, r.EventCount())
	}
	if e := r.Session().Event(0); e.Output != "echo: hi" || e.Input != trace.Prompt("hi") {
		t.Errorf("recorded %+v", e)
	}
}

// A session recorded through either sink replays to the same state as the
// in-memory session that produced it.
func TestRecordedSessionReplays(t *testing.T) {
	db, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer db.Close()
	dir := t.TempDir()

	ids := trace.StaticID("rec00001")
	fileSink := tracefile.NewSink(dir, "rec00001")
	for _, sink := range []Sink{fileSink, store.Sink{Store: db}} {
		r, err := NewSession(context.Background(), Params{Model: "m", PatchFormat: patch.FormatPositional}, sink,
			WithClock(fixed), WithIDGenerator(ids))
		if err != nil {
			t.Fatalf("new session: %v", err)
		}
		r.LogLLMCall("write f", "ok", 0, trace.Metadata{})
		r.LogEdit("f.py", "+print(1)\n+print(2)", trace.Metadata{})
		r.LogEdit("f.py", "@@ -1,2 +1,2 @@\n print(1)\n-print(2)\n+print(3)", trace.Metadata{})
	}

	fromFile, err := tracefile.Load(fileSink.Path)
	if err != nil {
		t.Fatalf("load file: %v", err)
	}
	fromDB, err := db.LoadSession("rec00001")
	if err != nil {
		t.Fatalf("load db: %v", err)
	}
	if !fromFile.Equal(fromDB) {
		t.Error("file and store sessions differ")
	}

	st, err := replay.Replay(context.Background(), fromDB, replay.WithFileSystem(replay.NewMemFS()))
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if got := st.Files["f.py"]; got != "print(1)\nprint(3)" {
		t.Errorf("f.py = %q", got)
	}
}
