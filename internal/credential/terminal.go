package credential

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ErrNotTerminal is returned when the prompt input is not an interactive terminal
var ErrNotTerminal = errors.New("credential prompt requires an interactive terminal")

// TerminalPrompter reads a key from the terminal without echoing it
type TerminalPrompter struct {
	in  *os.File
	out io.Writer
}

// NewTerminalPrompter prompts on out and reads from in
func NewTerminalPrompter(in *os.File, out io.Writer) *TerminalPrompter {
	return &TerminalPrompter{in: in, out: out}
}

// Available reports whether in is an interactive terminal
func (p *TerminalPrompter) Available() bool {
	return term.IsTerminal(int(p.in.Fd()))
}

// Prompt reads one key. An empty line counts as cancellation.
func (p *TerminalPrompter) Prompt(ctx context.Context) (string, error) {
	if !p.Available() {
		return "", ErrNotTerminal
	}
	fmt.Fprint(p.out, "Gemini API key: ")

	type result struct {
		key string
		err error
	}
	done := make(chan result, 1)
	go func() {
		b, err := term.ReadPassword(int(p.in.Fd()))
		done <- result{strings.TrimSpace(string(b)), err}
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(p.out)
		return "", ctx.Err()
	case r := <-done:
		fmt.Fprintln(p.out)
		if r.err != nil {
			return "", fmt.Errorf("failed to read API key: %w", r.err)
		}
		if r.key == "" {
			return "", errors.New("API key entry cancelled")
		}
		return r.key, nil
	}
}
