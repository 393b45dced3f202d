package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"cipherelay/internal/app"
)

var stdin = bufio.NewReader(os.Stdin)

// readLine prints prompt and reads one line from stdin.
func readLine(out io.Writer, prompt string) (string, error) {
	fmt.Fprint(out, prompt)
	line, err := stdin.ReadString('\n')
	if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// readPassword returns the account password from CIPHERELAY_PASSWORD or,
// failing that, prompts without echo when stdin is a terminal.
func readPassword(out io.Writer, prompt string) (string, error) {
	if pw, ok := os.LookupEnv(app.EnvPrefix + "PASSWORD"); ok {
		return pw, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return readLine(out, prompt)
	}
	fmt.Fprint(out, prompt)
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
