package main

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"bitzomax/internal/startup"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

const (
	minPasswordLength = 8
	hashEnvVar        = "ADMIN_PASSWORD_HASH"
)

var (
	errMismatch = errors.New("passwords do not match")
	errTooShort = fmt.Errorf("password must be at least %d characters", minPasswordLength)
	errNoHash   = fmt.Errorf("%s is not set", hashEnvVar)
)

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stdout)
		os.Exit(1)
	}

	if err := startup.LoadEnvFile(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}

	prompt := newPrompter(os.Stdin, os.Stderr)

	switch command := os.Args[1]; command {
	case "hash":
		hash, err := runHash(prompt, bcrypt.DefaultCost)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(hash)
	case "verify":
		ok, err := runVerify(prompt, os.Getenv(hashEnvVar))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if !ok {
			fmt.Println("Password does NOT match " + hashEnvVar)
			os.Exit(1)
		}
		fmt.Println("Password matches " + hashEnvVar)
	default:
		sanitized := sanitizeCommand(command)
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", sanitized) //nolint:gosec // G705 - only [a-zA-Z0-9_-] pass sanitizeCommand
		printUsage(os.Stderr)
		os.Exit(1)
	}
}

// sanitizeCommand returns a safe representation of a command string for display.
// Any character that is not alphanumeric, a hyphen, or an underscore is
// replaced with '_'.
func sanitizeCommand(cmd string) string {
	var b strings.Builder
	b.Grow(len(cmd))
	for _, r := range cmd {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return b.String()
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Bitzomax Admin Password Tool")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage: hashpw <command>")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  hash    - Prompt for a password and print its bcrypt hash")
	fmt.Fprintln(w, "  verify  - Check a password against "+hashEnvVar)
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Environment:")
	fmt.Fprintln(w, "  "+hashEnvVar+" - bcrypt hash checked by verify (also read from .env)")
}

// prompter reads passwords without echo from a terminal, or one line at a
// time from anything else.
type prompter struct {
	in     *os.File
	out    io.Writer
	lines  *bufio.Reader
	isTerm bool
}

func newPrompter(in *os.File, out io.Writer) *prompter {
	return &prompter{
		in:     in,
		out:    out,
		lines:  bufio.NewReader(in),
		isTerm: term.IsTerminal(int(in.Fd())),
	}
}

func newLinePrompter(r io.Reader, out io.Writer) *prompter {
	return &prompter{out: out, lines: bufio.NewReader(r)}
}

func (p *prompter) ReadPassword(label string) ([]byte, error) {
	fmt.Fprint(p.out, label+": ")
	if p.isTerm {
		password, err := term.ReadPassword(int(p.in.Fd()))
		fmt.Fprintln(p.out)
		return password, err
	}

	line, err := p.lines.ReadBytes('\n')
	if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
		return nil, fmt.Errorf("read password: %w", err)
	}
	return bytes.TrimRight(line, "\r\n"), nil
}

// validatePassword checks the confirmation and the minimum length.
func validatePassword(password, confirm []byte) error {
	if !bytes.Equal(password, confirm) {
		return errMismatch
	}
	if len(password) < minPasswordLength {
		return errTooShort
	}
	return nil
}

func runHash(p *prompter, cost int) (string, error) {
	password, err := p.ReadPassword("New Password")
	if err != nil {
		return "", err
	}
	confirm, err := p.ReadPassword("Confirm Password")
	if err != nil {
		return "", err
	}
	if err := validatePassword(password, confirm); err != nil {
		return "", err
	}

	hash, err := bcrypt.GenerateFromPassword(password, cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func runVerify(p *prompter, hash string) (bool, error) {
	if hash == "" {
		return false, errNoHash
	}
	password, err := p.ReadPassword("Password")
	if err != nil {
		return false, err
	}

	err = bcrypt.CompareHashAndPassword([]byte(hash), password)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("invalid %s: %w", hashEnvVar, err)
	}
}
