package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// prompter reads answers from the user. Passwords are read without echo when in is a terminal.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
	fd  int
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	p := &prompter{in: bufio.NewReader(in), out: out, fd: -1}
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		p.fd = int(f.Fd())
	}
	return p
}

func (p *prompter) readLine() (string, error) {
	s, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && s != "") {
		return "", err
	}
	return strings.TrimRight(s, "\r\n"), nil
}

// Line prompts with label and returns the trimmed answer.
func (p *prompter) Line(label string) (string, error) {
	fmt.Fprint(p.out, label)
	s, err := p.readLine()
	return strings.TrimSpace(s), err
}

// Password prompts with label and returns the answer untrimmed.
func (p *prompter) Password(label string) (string, error) {
	fmt.Fprint(p.out, label)
	if p.fd >= 0 {
		b, err := term.ReadPassword(p.fd)
		fmt.Fprintln(p.out)
		return string(b), err
	}
	return p.readLine()
}

// Confirm asks a yes/no question; anything but y or yes is no.
func (p *prompter) Confirm(label string) (bool, error) {
	s, err := p.Line(label)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, err
	}
	switch strings.ToLower(s) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
