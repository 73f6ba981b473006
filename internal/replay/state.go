package replay

import (
	"maps"
	"slices"

	"github.com/ehrlich-b/vtrace/internal/patch"
)

// Warning is a non-fatal problem met while replaying an edit, typically a
// deleted line the diff names but the file does not contain.
type Warning struct {
	Index int
	Path  string
	patch.Warning
}

// State is the workspace reconstructed from the first Cursor events.
type State struct {
	Workspace   string
	Files       map[string]string
	LLMOutputs  []string
	ToolOutputs []string
	Cursor      int
	Warnings    []Warning
}

func newState(workspace string) *State {
	return &State{Workspace: workspace, Files: make(map[string]string)}
}

// File returns the replayed content of path.
func (s *State) File(path string) (string, bool) {
	c, ok := s.Files[path]
	return c, ok
}

// Paths returns the replayed file paths in sorted order.
func (s *State) Paths() []string {
	return slices.Sorted(maps.Keys(s.Files))
}

// Clone returns a deep copy of s.
func (s *State) Clone() *State {
	return &State{
		Workspace:   s.Workspace,
		Files:       maps.Clone(s.Files),
		LLMOutputs:  slices.Clone(s.LLMOutputs),
		ToolOutputs: slices.Clone(s.ToolOutputs),
		Cursor:      s.Cursor,
		Warnings:    slices.Clone(s.Warnings),
	}
}
