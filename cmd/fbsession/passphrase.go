package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// promptPassphrase asks for the store passphrase without echo. It only
// prompts when stdin is a terminal; otherwise it returns "".
func promptPassphrase(out io.Writer) string {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return ""
	}
	fmt.Fprint(out, "Credential store passphrase: ")
	pass, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(pass))
}
