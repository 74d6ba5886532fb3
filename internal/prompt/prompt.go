// Package prompt implements the interactive confirmation capability used by
// the controllers for destructive operations.
package prompt

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Stdin asks yes/no questions on a terminal. The zero value is not usable;
// construct with New.
type Stdin struct {
	in  *bufio.Scanner
	out io.Writer
}

// New builds a prompter reading from in and writing to out.
func New(in io.Reader, out io.Writer) *Stdin {
	return &Stdin{in: bufio.NewScanner(in), out: out}
}

// Confirm prints the message and reads one line. Only "y" or "yes" count as
// confirmation; everything else, including EOF, declines.
func (p *Stdin) Confirm(message string) bool {
	fmt.Fprintf(p.out, "%s [y/N]: ", message)
	if !p.in.Scan() {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(p.in.Text()))
	return answer == "y" || answer == "yes"
}

// Auto confirms everything without asking. Used with --yes and in tests.
type Auto struct{}

// Confirm always returns true.
func (Auto) Confirm(string) bool { return true }
