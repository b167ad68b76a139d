package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// Test seams for the terminal.
var (
	stdinIsTerminal = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }
	readPassword    = term.ReadPassword
)

// promptSecret reads a value from the terminal without echoing it. It returns
// "" when stdin is not a terminal.
func promptSecret(cmd *cobra.Command, label string) (string, error) {
	if !stdinIsTerminal() {
		return "", nil
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "%s: ", label)
	b, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("read %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimSpace(string(b)), nil
}
