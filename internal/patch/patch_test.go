package patch

import (
	"errors"
	"testing"
)

func TestApplyLegacy(t *testing.T) {
	tests := []struct {
		name     string
		current  string
		diff     string
		want     string
		warnings int
	}{
		{"additions on empty", "", "+a\n+b", "a\nb", 0},
		{"deletion only", "x\ny", "-x", "y", 0},
		{"single addition", "", "+print(1)", "print(1)", 0},
		{"additions discard existing content", "keep\nme", "@@ -1,2 +1,3 @@\n keep\n+new", "new", 0},
		{"deletions ignored when adding", "a\nb\nc", "-a\n+z", "z", 0},
		{"first match by trimmed content", "  dup\nmid\ndup", "- dup", "mid\ndup", 0},
		{"headers ignored", "a\nb", "--- a/f\n+++ b/f\n@@ -1,2 +1,1 @@\n-b", "a", 0},
		{"addition keeps raw whitespace", "", "+  indented\t", "  indented\t", 0},
		{"missing deletion warns", "a\nb", "-zzz", "a\nb", 1},
		{"empty diff", "a\nb", "", "a\nb", 0},
		{"empty plus line adds blank", "", "+a\n+\n+b", "a\n\nb", 0},
		{"trailing newline preserved", "x\ny\n", "-x", "y\n", 0},
		{"context lines ignored", "a\nb", " a\nrandom\n-b", "a", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ApplyLegacy(tt.current, tt.diff)
			if got.Content != tt.want {
				t.Errorf("content = %q, want %q", got.Content, tt.want)
			}
			if len(got.Warnings) != tt.warnings {
				t.Errorf("warnings = %v, want %d", got.Warnings, tt.warnings)
			}
		})
	}
}

func TestApplyLegacyWarningDetail(t *testing.T) {
	got := ApplyLegacy("a", "@@\n-missing")
	if len(got.Warnings) != 1 {
		t.Fatalf("warnings = %v", got.Warnings)
	}
	w := got.Warnings[0]
	if w.Kind != DeletionNotFound || w.Line != 2 || w.Text != "missing" {
		t.Errorf("warning = %+v", w)
	}
}

func TestApplyPositional(t *testing.T) {
	tests := []struct {
		name    string
		current string
		diff    string
		want    string
	}{
		{"additions on empty", "", "+a\n+b", "a\nb"},
		{"deletion only", "x\ny", "-x", "y"},
		{"insert keeps surrounding lines", "a\nb\nc", "@@ -2,1 +2,2 @@\n b\n+b2", "a\nb\nb2\nc"},
		{"replace middle line", "a\nb\nc", "@@ -1,3 +1,3 @@\n a\n-b\n+B\n c", "a\nB\nc"},
		{"two hunks", "1\n2\n3\n4\n5\n6", "@@ -2,1 +2,1 @@\n-2\n+two\n@@ -5,1 +5,1 @@\n-5\n+five\n", "1\ntwo\n3\n4\nfive\n6"},
		{"new file header", "", "--- /dev/null\n+++ b/f.py\n@@ -0,0 +1,2 @@\n+x = 1\n+y = 2\n", "x = 1\ny = 2\n"},
		{"new file", "", "@@ -0,0 +1,2 @@\n+x\n+y\n", "x\ny\n"},
		{"new file without final newline", "", "@@ -0,0 +1,2 @@\n+x\n+y\n\\ No newline at end of file\n", "x\ny"},
		{"terminated file keeps newline", "a\nb\nc\n", "@@ -2,1 +2,1 @@\n-b\n+B\n", "a\nB\nc\n"},
		{"replace last terminated line", "a\nb\n", "@@ -2 +2 @@\n-b\n+B\n", "a\nB\n"},
		{"add final newline", "a\nb", "@@ -2 +2 @@\n-b\n\\ No newline at end of file\n+b\n", "a\nb\n"},
		{"drop final newline", "a\nb\n", "@@ -2 +2 @@\n-b\n+b\n\\ No newline at end of file\n", "a\nb"},
		{"delete last line", "a\nb\n", "@@ -1,2 +1 @@\n a\n-b\n", "a\n"},
		{"empty diff keeps content", "a\nb\n", "", "a\nb\n"},
		{"duplicate lines targeted by position", "dup\nmid\ndup", "@@ -3,1 +3,1 @@\n-dup\n+last", "dup\nmid\nlast"},
		{"no newline marker ignored", "a", "@@ -1 +1 @@\n-a\n\\ No newline at end of file\n+b", "b"},
		{"append at end", "a\nb", "@@ -2,0 +3,1 @@\n b\n+c", "a\nb\nc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ApplyPositional(tt.current, tt.diff)
			if err != nil {
				t.Fatalf("apply: %v", err)
			}
			if got.Content != tt.want {
				t.Errorf("content = %q, want %q", got.Content, tt.want)
			}
		})
	}
}

func TestApplyPositionalWarnings(t *testing.T) {
	got, err := ApplyPositional("a\nb\nc", "-c\n-zzz")
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	// b was followed by c, so it keeps its newline.
	if got.Content != "a\nb\n" {
		t.Errorf("content = %q, want %q", got.Content, "a\nb\n")
	}
	if len(got.Warnings) != 2 {
		t.Fatalf("warnings = %v", got.Warnings)
	}
	if got.Warnings[0].Kind != DeletionDisplaced {
		t.Errorf("first warning = %v, want displaced", got.Warnings[0])
	}
	if got.Warnings[1].Kind != DeletionNotFound {
		t.Errorf("second warning = %v, want not found", got.Warnings[1])
	}
}

func TestApplyPositionalMismatch(t *testing.T) {
	if _, err := ApplyPositional("a\nb", "@@ -1,2 +1,2 @@\n nope\n-b"); !errors.Is(err, ErrHunkMismatch) {
		t.Errorf("context mismatch err = %v", err)
	}
	if _, err := ApplyPositional("a", "@@ -9,1 +9,1 @@\n-a"); !errors.Is(err, ErrHunkMismatch) {
		t.Errorf("out of range hunk err = %v", err)
	}
	if _, err := ApplyPositional("a\nb\nc", "@@ -3 +3 @@\n c\n@@ -1 +1 @@\n-a"); !errors.Is(err, ErrHunkMismatch) {
		t.Errorf("backwards hunk err = %v", err)
	}
}

func TestApplyFormats(t *testing.T) {
	current := "a\nb\nc"
	diff := "@@ -2,1 +2,1 @@\n-b\n+B"

	legacy, err := Apply(FormatLegacy, current, diff)
	if err != nil {
		t.Fatalf("legacy: %v", err)
	}
	if legacy.Content != "B" {
		t.Errorf("legacy = %q, want %q", legacy.Content, "B")
	}

	pos, err := Apply(FormatPositional, current, diff)
	if err != nil {
		t.Fatalf("positional: %v", err)
	}
	if pos.Content != "a\nB\nc" {
		t.Errorf("positional = %q, want %q", pos.Content, "a\nB\nc")
	}

	if _, err := Apply("fancy", current, diff); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("unknown format err = %v", err)
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatLegacy, "legacy": FormatLegacy, "positional": FormatPositional} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("git"); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("ParseFormat(git) err = %v", err)
	}
}
