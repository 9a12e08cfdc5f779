package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/term"
)

// Terminal seams, replaced in tests.
var (
	readPassword = term.ReadPassword
	isTerminal   = term.IsTerminal
)

// prompt prints label and reads one trimmed line. A final line without a
// newline is returned before io.EOF.
func (a *App) prompt(label string) (string, error) {
	if _, err := fmt.Fprintf(a.out, "%s: ", label); err != nil {
		return "", err
	}
	line, err := a.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && line != "" {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// secret reads a password without echo when stdin is a terminal.
func (a *App) secret(label string) (string, error) {
	if !isTerminal(a.fd) {
		return a.prompt(label)
	}
	fmt.Fprintf(a.out, "%s: ", label)
	pw, err := readPassword(a.fd)
	fmt.Fprintln(a.out)
	if err != nil {
		return "", err
	}
	return string(pw), nil
}

// confirm asks a yes/no question; anything but y or yes is no.
func (a *App) confirm(question string) bool {
	answer, err := a.prompt(question + " [y/N]")
	if err != nil {
		return false
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true
	}
	return false
}
