package main

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestPrintUsage(t *testing.T) {
	var buf bytes.Buffer
	printUsage(&buf)

	for _, want := range []string{"Usage: hashpw <command>", "hash", "verify", hashEnvVar} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("usage missing %q", want)
		}
	}
}

func TestSanitizeCommand(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercase letters", "hash", "hash"},
		{"mixed case and digits", "HaSh2", "HaSh2"},
		{"hyphens and underscores", "re-hash_pw", "re-hash_pw"},
		{"spaces", "hash pw", "hash_pw"},
		{"newline injection", "hash\nERROR fake", "hash_ERROR_fake"},
		{"ansi escape", "\x1b[31mred", "__31mred"},
		{"unicode", "hásh", "h_sh"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeCommand(tt.input); got != tt.expected {
				t.Errorf("sanitizeCommand(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		confirm  string
		wantErr  error
	}{
		{"valid", "correct-horse", "correct-horse", nil},
		{"minimum length", "12345678", "12345678", nil},
		{"too short", "1234567", "1234567", errTooShort},
		{"mismatch", "correct-horse", "correct-horsE", errMismatch},
		{"empty", "", "", errTooShort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validatePassword([]byte(tt.password), []byte(tt.confirm))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("validatePassword() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRunHash(t *testing.T) {
	var prompts bytes.Buffer
	p := newLinePrompter(strings.NewReader("correct-horse\r\ncorrect-horse\n"), &prompts)

	hash, err := runHash(p, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("runHash() error = %v", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte("correct-horse")); err != nil {
		t.Errorf("hash does not match password: %v", err)
	}
	if !strings.Contains(prompts.String(), "New Password: ") || !strings.Contains(prompts.String(), "Confirm Password: ") {
		t.Errorf("prompts = %q", prompts.String())
	}
}

func TestRunHashErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"mismatch", "correct-horse\nbattery-staple\n", errMismatch},
		{"too short", "short\nshort\n", errTooShort},
		{"missing confirmation", "correct-horse\n", io.EOF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newLinePrompter(strings.NewReader(tt.input), io.Discard)
			if _, err := runHash(p, bcrypt.MinCost); !errors.Is(err, tt.wantErr) {
				t.Errorf("runHash() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRunVerify(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		hash    string
		input   string
		want    bool
		wantErr bool
	}{
		{"match", string(hash), "correct-horse\n", true, false},
		{"match without newline", string(hash), "correct-horse", true, false},
		{"mismatch", string(hash), "wrong-horse\n", false, false},
		{"no hash", "", "correct-horse\n", false, true},
		{"malformed hash", "not-a-hash", "correct-horse\n", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newLinePrompter(strings.NewReader(tt.input), io.Discard)
			got, err := runVerify(p, tt.hash)
			if (err != nil) != tt.wantErr {
				t.Fatalf("runVerify() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("runVerify() = %v, want %v", got, tt.want)
			}
		})
	}
}
