// Package patch applies recorded textual diffs to file content.
//
// Two algorithms exist. Legacy reproduces the behavior every historical
// trace was recorded against and must not change: when a diff contains any
// added line, the result is only the added lines. Positional is a
// line-position-aware unified diff applier for newly recorded traces. A
// session selects one through its patch_format field.
package patch

import (
	"errors"
	"fmt"
	"strings"
)

// Format names a diff application algorithm.
type Format string

const (
	FormatLegacy     Format = "legacy"
	FormatPositional Format = "positional"
)

// ErrUnknownFormat is returned by ParseFormat for an unrecognized name.
var ErrUnknownFormat = errors.New("unknown patch format")

// ParseFormat maps a name to a Format. The empty string is legacy.
func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatLegacy:
		return FormatLegacy, nil
	case FormatPositional:
		return FormatPositional, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// WarningKind classifies a non-fatal problem met while applying a diff.
type WarningKind string

const (
	// DeletionNotFound: a removed line has no match in the current content.
	DeletionNotFound WarningKind = "deletion_not_found"
	// DeletionDisplaced: a removed line matched later than its position.
	DeletionDisplaced WarningKind = "deletion_displaced"
)

// Warning describes a diff line that did not apply cleanly.
// Line is the 1-based line number within the diff text.
type Warning struct {
	Kind WarningKind
	Line int
	Text string
}

func (w Warning) String() string {
	return fmt.Sprintf("diff line %d: %s: %q", w.Line, w.Kind, w.Text)
}

// Result is the outcome of applying a diff.
type Result struct {
	Content  string
	Warnings []Warning
}

// Apply applies diff to current using the given format.
func Apply(f Format, current, diff string) (Result, error) {
	switch f {
	case FormatLegacy, "":
		return ApplyLegacy(current, diff), nil
	case FormatPositional:
		return ApplyPositional(current, diff)
	}
	return Result{}, fmt.Errorf("%w: %q", ErrUnknownFormat, f)
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func isDeletion(line string) bool {
	return strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---")
}

func isAddition(line string) bool {
	return strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++")
}

// ApplyLegacy applies diff with the historical algorithm:
//
//   - a "-" line removes the first line of current whose trimmed text equals
//     the trimmed remainder (first match by content, so duplicated lines can
//     be mis-targeted);
//   - "+" lines are collected in order, untrimmed;
//   - "@@" headers and every other line are ignored.
//
// If any line was added the result is the added lines alone and the
// current content is discarded. Otherwise the result is current with the
// matched deletions removed.
func ApplyLegacy(current, diff string) Result {
	lines := splitLines(current)
	var added []string
	var res Result

	for i, dl := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(dl, "@@"):
		case isDeletion(dl):
			target := strings.TrimSpace(dl[1:])
			found := false
			for j, l := range lines {
				if strings.TrimSpace(l) == target {
					lines = append(lines[:j:j], lines[j+1:]...)
					found = true
					break
				}
			}
			if !found {
				res.Warnings = append(res.Warnings, Warning{Kind: DeletionNotFound, Line: i + 1, Text: dl[1:]})
			}
		case isAddition(dl):
			added = append(added, dl[1:])
		}
	}

	if len(added) > 0 {
		res.Content = strings.Join(added, "\n")
	} else {
		res.Content = strings.Join(lines, "\n")
	}
	return res
}
