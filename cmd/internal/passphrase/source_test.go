package passphrase

import (
	"errors"
	"testing"
)

func fakeSource(env map[string]string, answers ...string) *Source {
	s := NewSource("TEST_PASS")
	s.lookup = func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	s.prompt = func(string) (string, error) {
		if len(answers) == 0 {
			return "", errNoTerminal
		}
		next := answers[0]
		answers = answers[1:]
		return next, nil
	}
	return s
}

func TestEnvironmentWins(t *testing.T) {
	s := fakeSource(map[string]string{"TEST_PASS": "secret"}, "ignored")
	got, err := s.Get()
	if err != nil || got != "secret" {
		t.Fatalf("got %q, %v", got, err)
	}
}

func TestEmptyEnvironmentRejected(t *testing.T) {
	s := fakeSource(map[string]string{"TEST_PASS": "  "})
	if _, err := s.Get(); err == nil {
		t.Fatalf("expected error for blank passphrase")
	}
}

func TestPromptConfirmation(t *testing.T) {
	s := fakeSource(nil, "one", "two").WithConfirmation()
	if _, err := s.Get(); err == nil {
		t.Fatalf("expected mismatch error")
	}

	s = fakeSource(nil, "same", "same").WithConfirmation()
	got, err := s.Get()
	if err != nil || got != "same" {
		t.Fatalf("got %q, %v", got, err)
	}
}

func TestNoTerminal(t *testing.T) {
	s := fakeSource(nil)
	if _, err := s.Get(); !errors.Is(err, errNoTerminal) {
		t.Fatalf("expected no terminal error, got %v", err)
	}
}
