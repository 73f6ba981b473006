package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// prompter fills in values the user did not pass as flags: interactively
// when stdin is a terminal, otherwise from piped stdin.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
	tty bool
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	tty := false
	if f, ok := in.(*os.File); ok {
		tty = term.IsTerminal(int(f.Fd()))
	}
	return &prompter{in: bufio.NewReader(in), out: out, tty: tty}
}

// line returns val if set, else asks for one line on a terminal.
func (p *prompter) line(label, val, flag string) (string, error) {
	if val != "" {
		return val, nil
	}
	if !p.tty {
		return "", fmt.Errorf("missing %s (pass --%s)", strings.ToLower(label), flag)
	}
	fmt.Fprintf(p.out, "%s: ", label)
	s, err := p.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimRight(s, "\r\n"), nil
}

// body returns val if set. Otherwise it reads all of piped stdin, which
// keeps multi-line text intact, or one line on a terminal. The final
// newline of piped input is dropped.
func (p *prompter) body(label, val, flag string) (string, error) {
	s, err := p.raw(label, val, flag)
	if err != nil || val != "" || p.tty {
		return s, err
	}
	return strings.TrimSuffix(s, "\n"), nil
}

// raw is body without trimming, for diffs whose final newline is
// significant.
func (p *prompter) raw(label, val, flag string) (string, error) {
	if val != "" || p.tty {
		return p.line(label, val, flag)
	}
	data, err := io.ReadAll(p.in)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return string(data), nil
}

// confirm asks a yes/no question defaulting to yes. Without a terminal it
// always continues.
func (p *prompter) confirm(question string) bool {
	if !p.tty {
		return true
	}
	fmt.Fprintf(p.out, "%s [Y/n] ", question)
	s, _ := p.in.ReadString('\n')
	return !strings.EqualFold(strings.TrimSpace(s), "n")
}
