// Package tracefile persists sessions as YAML documents on disk.
package tracefile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ehrlich-b/vtrace/internal/trace"
)

// Ext is the extension of trace documents.
const Ext = ".yaml"

// DefaultPath returns where a session with the given id lives in dir.
func DefaultPath(dir, id string) string {
	return filepath.Join(dir, id+Ext)
}

// Load reads and decodes the trace document at path.
func Load(path string) (*trace.Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}
	s, err := trace.UnmarshalYAML(data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return s, nil
}

// Save writes s to path atomically: the document is written to a temp
// file in the same directory, synced and renamed over path, so readers
// see either the previous document or the new one.
func Save(path string, s *trace.Session) error {
	data, err := trace.MarshalYAML(s)
	if err != nil {
		return fmt.Errorf("encode trace: %w", err)
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create trace dir: %w", err)
	}

	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmp := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write trace: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync trace: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close trace: %w", err)
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("chmod trace: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace trace: %w", err)
	}

	// Best effort: not every platform can sync a directory.
	if d, err := os.Open(dir); err == nil {
		d.Sync()
		d.Close()
	}
	return nil
}

// List returns the trace documents in dir, sorted by name. A missing
// directory yields no documents.
func List(dir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*"+Ext))
	if err != nil {
		return nil, fmt.Errorf("list traces: %w", err)
	}
	return paths, nil
}

// Sink rewrites the whole document at Path after every event. It keeps
// the on-disk trace complete up to the last recorded event.
type Sink struct {
	Path string
}

func NewSink(dir, id string) *Sink {
	return &Sink{Path: DefaultPath(dir, id)}
}

func (k *Sink) Begin(s *trace.Session) error {
	return Save(k.Path, s)
}

func (k *Sink) Append(s *trace.Session, _ trace.Event) error {
	return Save(k.Path, s)
}
