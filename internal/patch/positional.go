package patch

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrHunkMismatch is returned when a context line or hunk position cannot
// be located in the current content.
var ErrHunkMismatch = errors.New("hunk does not match content")

// ApplyPositional applies a unified diff by position. "@@ -a,b +c,d @@"
// headers move to line a of the current content, " " context lines are
// copied through, "-" lines remove the line at the current position and "+"
// lines are inserted there. Lines the diff does not touch are preserved.
//
// A removed line that is not at the current position is looked up further
// down and removed there, with a DeletionDisplaced warning; if it is not
// found at all the line is skipped with DeletionNotFound.
//
// The result ends with a newline when its last line does. Lines kept from
// current keep their terminator. An added line is terminated unless a
// "\ No newline at end of file" marker follows it or it is the unterminated
// last line of diff.
func ApplyPositional(current, diff string) (Result, error) {
	src, srcEOL := splitContent(current)
	dlines := strings.Split(diff, "\n")
	var out []string
	var res Result
	pos := 0
	eol := false
	var prev byte

	// copyTo moves src[pos:to] to the output.
	copyTo := func(to int) {
		if to > pos {
			out = append(out, src[pos:to]...)
			eol = to < len(src) || srcEOL
		}
		pos = to
	}

	for i, dl := range dlines {
		n := i + 1
		kind := byte(0)
		switch {
		case strings.HasPrefix(dl, `\`):
			if prev == '+' || prev == ' ' {
				eol = false
			}
		case strings.HasPrefix(dl, "---"), strings.HasPrefix(dl, "+++"):
		case strings.HasPrefix(dl, "@@"):
			start, ok := hunkStart(dl)
			if !ok {
				break
			}
			target := start - 1
			if target < 0 {
				target = 0
			}
			if target < pos || target > len(src) {
				return Result{}, fmt.Errorf("%w: diff line %d: hunk starts at line %d", ErrHunkMismatch, n, start)
			}
			copyTo(target)
		case isDeletion(dl):
			kind = '-'
			text := dl[1:]
			if pos < len(src) && src[pos] == text {
				pos++
				break
			}
			j := indexFrom(src, pos, text)
			if j < 0 {
				res.Warnings = append(res.Warnings, Warning{Kind: DeletionNotFound, Line: n, Text: text})
				break
			}
			res.Warnings = append(res.Warnings, Warning{Kind: DeletionDisplaced, Line: n, Text: text})
			copyTo(j)
			pos++
		case isAddition(dl):
			kind = '+'
			out = append(out, dl[1:])
			eol = i < len(dlines)-1
		case dl == "" && i == len(dlines)-1:
		case dl == "" || strings.HasPrefix(dl, " "):
			kind = ' '
			text := strings.TrimPrefix(dl, " ")
			if pos < len(src) && src[pos] == text {
				copyTo(pos + 1)
				break
			}
			j := indexFrom(src, pos, text)
			if j < 0 {
				return Result{}, fmt.Errorf("%w: diff line %d: context %q not found", ErrHunkMismatch, n, text)
			}
			copyTo(j + 1)
		}
		prev = kind
	}

	copyTo(len(src))
	res.Content = strings.Join(out, "\n")
	if eol && len(out) > 0 {
		res.Content += "\n"
	}
	return res, nil
}

// splitContent splits s into lines and reports whether the last line is
// newline-terminated.
func splitContent(s string) ([]string, bool) {
	if s == "" {
		return nil, false
	}
	if body, ok := strings.CutSuffix(s, "\n"); ok {
		return strings.Split(body, "\n"), true
	}
	return strings.Split(s, "\n"), false
}

// indexFrom finds text in src at or after from, preferring an exact match
// and falling back to a whitespace-trimmed one.
func indexFrom(src []string, from int, text string) int {
	for j := from; j < len(src); j++ {
		if src[j] == text {
			return j
		}
	}
	trimmed := strings.TrimSpace(text)
	for j := from; j < len(src); j++ {
		if strings.TrimSpace(src[j]) == trimmed {
			return j
		}
	}
	return -1
}

// hunkStart extracts the old-file start line from "@@ -a,b +c,d @@".
func hunkStart(header string) (int, bool) {
	rest := strings.TrimPrefix(header, "@@")
	rest = strings.TrimSpace(rest)
	if !strings.HasPrefix(rest, "-") {
		return 0, false
	}
	field, _, _ := strings.Cut(rest[1:], " ")
	field, _, _ = strings.Cut(field, ",")
	start, err := strconv.Atoi(field)
	if err != nil {
		return 0, false
	}
	return start, true
}
