package store

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/ehrlich-b/vtrace/internal/trace"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func header(id string) *trace.Session {
	return &trace.Session{
		ID:            id,
		Model:         "test-model",
		CodebaseHash:  "sha256:0123456789abcdef",
		CreatedAt:     "2024-05-01T12:00:00.000000",
		SchemaVersion: trace.SchemaVersion,
		PatchFormat:   "positional",
	}
}

func sampleEvents() []trace.Event {
	return []trace.Event{
		trace.NewLLMCall("2024-05-01T12:00:01.000000", "hi", "hello", trace.MetadataOf("temperature", 0.7, "response_hash", "sha256:abc")),
		trace.NewToolCall("2024-05-01T12:00:02.000000", "grep", trace.NamedArgs(trace.MetadataOf("pattern", "x", "n", 3)), "a.py:1", trace.Metadata{}),
		trace.NewToolCall("2024-05-01T12:00:03.000000", "ls", trace.TextArgs("-la"), "", trace.Metadata{}),
		trace.NewEdit("2024-05-01T12:00:04.000000", "a.py", "+x = 1\n+y = 2", trace.MetadataOf("ok", true, "note", nil)),
	}
}

func TestCreateAppendLoad(t *testing.T) {
	s := openTestStore(t)
	sess := header("abc12345")
	if err := s.CreateSession(sess); err != nil {
		t.Fatalf("create: %v", err)
	}
	for i, e := range sampleEvents() {
		if err := s.AppendEvent(sess.ID, i, e); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		sess.Append(e)
	}

	got, err := s.LoadSession("abc12345")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !got.Equal(sess) {
		t.Errorf("loaded session differs:\ngot  %+v\nwant %+v", got.Events(), sess.Events())
	}
	if got.PatchFormat != "positional" {
		t.Errorf("patch format = %q, want %q", got.PatchFormat, "positional")
	}
}

func TestCreateWithEvents(t *testing.T) {
	s := openTestStore(t)
	sess := header("withevs")
	for _, e := range sampleEvents() {
		sess.Append(e)
	}
	if err := s.CreateSession(sess); err != nil {
		t.Fatalf("create: %v", err)
	}
	got, err := s.LoadSession("withevs")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !got.Equal(sess) {
		t.Error("loaded session differs")
	}
	if err := s.CreateSession(sess); !errors.Is(err, ErrExists) {
		t.Errorf("duplicate create: err = %v, want ErrExists", err)
	}
}

func TestAppendOutOfOrder(t *testing.T) {
	s := openTestStore(t)
	if err := s.CreateSession(header("s1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	evs := sampleEvents()
	if err := s.AppendEvent("s1", 1, evs[0]); !errors.Is(err, ErrOutOfOrder) {
		t.Errorf("gap: err = %v, want ErrOutOfOrder", err)
	}
	if err := s.AppendEvent("s1", 0, evs[0]); err != nil {
		t.Fatalf("append 0: %v", err)
	}
	if err := s.AppendEvent("s1", 0, evs[1]); !errors.Is(err, ErrOutOfOrder) {
		t.Errorf("repeat: err = %v, want ErrOutOfOrder", err)
	}

	got, err := s.LoadSession("s1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Len() != 1 {
		t.Errorf("events = %d, want 1", got.Len())
	}
}

func TestNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.LoadSession("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("load: err = %v, want ErrNotFound", err)
	}
	if err := s.AppendEvent("nope", 0, sampleEvents()[0]); !errors.Is(err, ErrNotFound) {
		t.Errorf("append: err = %v, want ErrNotFound", err)
	}
	if err := s.DeleteSession("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("delete: err = %v, want ErrNotFound", err)
	}
}

func TestListAndDelete(t *testing.T) {
	s := openTestStore(t)
	a, b := header("a"), header("b")
	b.CreatedAt = "2024-04-01T00:00:00.000000"
	for _, sess := range []*trace.Session{a, b} {
		if err := s.CreateSession(sess); err != nil {
			t.Fatalf("create %s: %v", sess.ID, err)
		}
	}
	for i, e := range sampleEvents()[:2] {
		if err := s.AppendEvent("a", i, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	list, err := s.ListSessions()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("sessions = %d, want 2", len(list))
	}
	if list[0].ID != "b" || list[0].Events != 0 {
		t.Errorf("first = %+v, want b with 0 events", list[0])
	}
	if list[1].ID != "a" || list[1].Events != 2 {
		t.Errorf("second = %+v, want a with 2 events", list[1])
	}

	if err := s.DeleteSession("a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.LoadSession("a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("load after delete: err = %v", err)
	}
	var n int
	s.db.QueryRow("SELECT COUNT(*) FROM events WHERE session_id = 'a'").Scan(&n)
	if n != 0 {
		t.Errorf("orphaned events = %d", n)
	}
}

func TestSink(t *testing.T) {
	s := openTestStore(t)
	k := Sink{Store: s}
	sess := header("sink")
	if err := k.Begin(sess); err != nil {
		t.Fatalf("begin: %v", err)
	}
	for _, e := range sampleEvents() {
		sess.Append(e)
		if err := k.Append(sess, e); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	got, err := s.LoadSession("sink")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !got.Equal(sess) {
		t.Error("sink session differs from recorded one")
	}
}

func TestSinkWritesMissingEvents(t *testing.T) {
	s := openTestStore(t)
	k := Sink{Store: s}
	sess := header("gap")
	if err := k.Begin(sess); err != nil {
		t.Fatalf("begin: %v", err)
	}
	events := sampleEvents()
	for _, e := range events[:2] {
		sess.Append(e)
	}
	if err := k.Append(sess, events[1]); err != nil {
		t.Fatalf("append: %v", err)
	}
	if n, err := s.EventCount("gap"); err != nil || n != 2 {
		t.Fatalf("event count = %d, %v; want 2", n, err)
	}
	if err := k.Append(sess, events[1]); err != nil {
		t.Errorf("repeated append: %v", err)
	}
	if n, _ := s.EventCount("gap"); n != 2 {
		t.Errorf("event count after repeat = %d, want 2", n)
	}

	if _, err := s.EventCount("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("count of missing session: err = %v", err)
	}
	short := header("gap")
	if err := k.Append(short, events[0]); !errors.Is(err, ErrOutOfOrder) {
		t.Errorf("append from a shorter session: err = %v", err)
	}
}

func TestReopenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vtrace.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.CreateSession(header("persist")); err != nil {
		t.Fatalf("create: %v", err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	if _, err := s.LoadSession("persist"); err != nil {
		t.Errorf("load after reopen: %v", err)
	}
	ms, err := s.Migrations()
	if err != nil {
		t.Fatalf("migrations: %v", err)
	}
	if len(ms) != 1 || ms[0] != "001_init" {
		t.Errorf("migrations = %v, want [001_init]", ms)
	}
}
