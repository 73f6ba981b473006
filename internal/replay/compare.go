package replay

import (
	"context"
	"fmt"
	"sort"

	"github.com/ehrlich-b/vtrace/internal/trace"
)

type MismatchType string

const (
	TypeMismatch   MismatchType = "type_mismatch"
	OutputMismatch MismatchType = "output_mismatch"
	// LengthMismatch is only reported with WithLengthMismatch.
	LengthMismatch MismatchType = "length_mismatch"
)

// Mismatch is one index at which two traces disagree. Kinds holds the
// event kind on each side; for a length mismatch the shorter side is "".
type Mismatch struct {
	Index int
	Type  MismatchType
	Kinds [2]trace.Kind
}

// Comparison summarizes the differences between two traces.
type Comparison struct {
	EventCounts [2]int
	ModelMatch  bool
	Mismatches  []Mismatch
}

// Identical reports whether both traces have the same length and no
// index-aligned mismatches. Model identity is reported separately.
func (c Comparison) Identical() bool {
	return len(c.Mismatches) == 0 && c.EventCounts[0] == c.EventCounts[1]
}

type compareConfig struct {
	length bool
}

type CompareOption func(*compareConfig)

// WithLengthMismatch reports a length_mismatch at the first index only one
// trace has.
func WithLengthMismatch() CompareOption {
	return func(c *compareConfig) { c.length = true }
}

// Compare aligns two traces by index up to the shorter length. Differing
// kinds yield type_mismatch; equal kinds with differing outputs yield
// output_mismatch.
func Compare(a, b *trace.Session, opts ...CompareOption) Comparison {
	var cfg compareConfig
	for _, o := range opts {
		o(&cfg)
	}

	c := Comparison{
		EventCounts: [2]int{a.Len(), b.Len()},
		ModelMatch:  a.Model == b.Model,
	}
	n := min(a.Len(), b.Len())
	for i := 0; i < n; i++ {
		ea, eb := a.Event(i), b.Event(i)
		switch {
		case ea.Kind() != eb.Kind():
			c.Mismatches = append(c.Mismatches, Mismatch{Index: i, Type: TypeMismatch, Kinds: [2]trace.Kind{ea.Kind(), eb.Kind()}})
		case ea.Output != eb.Output:
			c.Mismatches = append(c.Mismatches, Mismatch{Index: i, Type: OutputMismatch, Kinds: [2]trace.Kind{ea.Kind(), eb.Kind()}})
		}
	}
	if cfg.length && a.Len() != b.Len() {
		m := Mismatch{Index: n, Type: LengthMismatch}
		if a.Len() > n {
			m.Kinds[0] = a.Event(n).Kind()
		} else {
			m.Kinds[1] = b.Event(n).Kind()
		}
		c.Mismatches = append(c.Mismatches, m)
	}
	return c
}

// Divergence is the first point at which two replays disagree on files.
// Index is the event whose application caused it; Cursor is Index+1.
type Divergence struct {
	Found  bool
	Index  int
	Cursor int
	Paths  []string
}

// FirstDivergence replays a and b in lockstep on in-memory workspaces and
// returns the first cursor at which their file maps differ.
func FirstDivergence(ctx context.Context, a, b *trace.Session, opts ...Option) (Divergence, error) {
	ra, err := New(a, append(opts, WithFileSystem(NewMemFS()))...)
	if err != nil {
		return Divergence{}, fmt.Errorf("replay a: %w", err)
	}
	defer ra.Close()
	rb, err := New(b, append(opts, WithFileSystem(NewMemFS()))...)
	if err != nil {
		return Divergence{}, fmt.Errorf("replay b: %w", err)
	}
	defer rb.Close()

	for k := 1; k <= max(a.Len(), b.Len()); k++ {
		if err := ctx.Err(); err != nil {
			return Divergence{}, err
		}
		if _, _, err := ra.Step(); err != nil {
			return Divergence{}, fmt.Errorf("replay a: %w", err)
		}
		if _, _, err := rb.Step(); err != nil {
			return Divergence{}, fmt.Errorf("replay b: %w", err)
		}
		if paths := diffFiles(ra.State().Files, rb.State().Files); len(paths) > 0 {
			return Divergence{Found: true, Index: k - 1, Cursor: k, Paths: paths}, nil
		}
	}
	return Divergence{}, nil
}

func diffFiles(a, b map[string]string) []string {
	var out []string
	for p, ca := range a {
		if cb, ok := b[p]; !ok || ca != cb {
			out = append(out, p)
		}
	}
	for p := range b {
		if _, ok := a[p]; !ok {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}
