package main

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"
)

// prompter is the only reader of stdin. Passwords are read without echo on a
// terminal and as the next line otherwise.
type prompter struct {
	scan *bufio.Scanner
	out  io.Writer
	fd   int
	tty  bool
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	p := &prompter{scan: bufio.NewScanner(in), out: out, fd: -1}
	if f, ok := in.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		p.fd = int(f.Fd())
		p.tty = true
	}
	return p
}

func (p *prompter) line() (string, error) {
	if !p.scan.Scan() {
		if err := p.scan.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return p.scan.Text(), nil
}

func (p *prompter) password() (string, error) {
	fmt.Fprint(p.out, "password: ")
	if !p.tty {
		return p.line()
	}
	b, err := term.ReadPassword(p.fd)
	fmt.Fprintln(p.out)
	return string(b), err
}

// next returns the next command. Parse errors come back as cmdInvalid so the
// caller can print them and keep reading.
func (p *prompter) next() (command, error) {
	for {
		line, err := p.line()
		if err != nil {
			return command{}, err
		}
		c, err := parseLine(line)
		if err != nil {
			return command{kind: cmdInvalid, text: err.Error()}, nil
		}
		if c.kind == cmdNone {
			continue
		}
		if c.needsPassword() {
			pw, err := p.password()
			if err != nil {
				return command{}, err
			}
			c.creds.Password = pw
		}
		return c, nil
	}
}
