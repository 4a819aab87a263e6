package uuidgen

import (
	"testing"

	"github.com/openmeld/meld/internal/meld"
)

func TestUUIDDeterministic(t *testing.T) {
	a, err := UUID("git", "jdoe@example.com", "John Doe", "jdoe")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := UUID("git", "jdoe@example.com", "John Doe", "jdoe")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != b {
		t.Errorf("uuid not deterministic: %q != %q", a, b)
	}
	if len(a) != 40 {
		t.Errorf("expected 40 hex chars, got %d", len(a))
	}
}

func TestUUIDDistinguishesFields(t *testing.T) {
	// The same value in different positions must hash differently.
	a, err := UUID("git", "", "jdoe", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := UUID("git", "", "", "jdoe")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a == b {
		t.Error("name and username collide in the hash payload")
	}
}

func TestUUIDUnaccentRoundTrip(t *testing.T) {
	accented, err := UUID("git", "", "Víctor Hernández", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	plain, err := UUID("git", "", "Victor Hernandez", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if accented != plain {
		t.Errorf("accent-only variants must share a uuid: %q != %q", accented, plain)
	}
}

func TestUUIDPreservesCase(t *testing.T) {
	upper, _ := UUID("git", "", "John Doe", "")
	lower, _ := UUID("git", "", "john doe", "")
	if upper == lower {
		t.Error("case differences must produce distinct uuids")
	}
}

func TestUUIDInvalidInput(t *testing.T) {
	tests := []struct {
		name                            string
		source, email, uname, username string
	}{
		{"empty source", "", "jdoe@example.com", "", ""},
		{"all fields empty", "git", "", "", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := UUID(tc.source, tc.email, tc.uname, tc.username)
			if !meld.IsInvalidValue(err) {
				t.Errorf("expected invalid value error, got %v", err)
			}
		})
	}
}

func TestUnaccent(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Víctor", "Victor"},
		{"Ângelo Señor", "Angelo Senor"},
		{"plain ascii", "plain ascii"},
		{"", ""},
	}
	for _, tc := range tests {
		if got := Unaccent(tc.in); got != tc.want {
			t.Errorf("Unaccent(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
