package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ehrlich-b/vtrace/internal/config"
	"github.com/ehrlich-b/vtrace/internal/recorder"
	"github.com/ehrlich-b/vtrace/internal/store"
	"github.com/ehrlich-b/vtrace/internal/trace"
	"github.com/ehrlich-b/vtrace/internal/tracefile"
)

// traceHandle is a loaded session plus the sink that persists new events
// to wherever it was loaded from.
type traceHandle struct {
	session *trace.Session
	sink    recorder.Sink
	// path is the YAML document; empty for store-backed traces.
	path string
	db   *store.Store
}

func (h *traceHandle) Close() error {
	if h.db != nil {
		return h.db.Close()
	}
	return nil
}

// where describes the trace location for humans.
func (h *traceHandle) where() string {
	if h.path != "" {
		return h.path
	}
	return "sqlite:" + h.session.ID
}

func (a *app) openStore() (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(a.cfg.Store.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	return store.Open(a.cfg.Store.Path)
}

// open resolves ref as a trace file path, then as a session id in the
// configured backend.
func (a *app) open(ref string) (*traceHandle, error) {
	if fileExists(ref) {
		return loadFile(ref)
	}
	if a.cfg.Store.Backend == config.BackendSQLite {
		db, err := a.openStore()
		if err != nil {
			return nil, err
		}
		s, err := db.LoadSession(ref)
		if err != nil {
			db.Close()
			return nil, err
		}
		return &traceHandle{session: s, sink: store.Sink{Store: db}, db: db}, nil
	}
	if p := tracefile.DefaultPath(a.cfg.TraceDir, ref); fileExists(p) {
		return loadFile(p)
	}
	return nil, fmt.Errorf("trace %q not found", ref)
}

// load is open for read-only commands.
func (a *app) load(ref string) (*trace.Session, error) {
	h, err := a.open(ref)
	if err != nil {
		return nil, err
	}
	defer h.Close()
	return h.session, nil
}

func loadFile(path string) (*traceHandle, error) {
	s, err := tracefile.Load(path)
	if err != nil {
		return nil, err
	}
	return &traceHandle{session: s, sink: &tracefile.Sink{Path: path}, path: path}, nil
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}
