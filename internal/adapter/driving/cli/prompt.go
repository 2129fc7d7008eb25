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

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// promptLine asks for a value on stderr and reads one line from stdin.
func (a *app) promptLine(label string) (string, error) {
	fmt.Fprintf(a.stderr, "%s: ", label)
	return a.readLine()
}

// promptPassword reads a password without echo when stdin is a terminal, or
// one line otherwise so passwords can be piped in.
func (a *app) promptPassword() (string, error) {
	fmt.Fprint(a.stderr, "Password: ")

	if f, ok := a.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := readPassword(int(f.Fd()))
		fmt.Fprintln(a.stderr)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}

	return a.readLine()
}

// readLine reads one line through a reader shared by every prompt of the
// invocation, so buffered input is not lost between prompts.
func (a *app) readLine() (string, error) {
	if a.lines == nil {
		a.lines = bufio.NewReader(a.stdin)
	}
	line, err := a.lines.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read input: %w", err)
	}
	line = strings.TrimRight(line, "\r\n")
	if line == "" && errors.Is(err, io.EOF) {
		return "", errors.New("no input")
	}
	return line, nil
}
