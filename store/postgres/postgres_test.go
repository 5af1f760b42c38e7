package postgres

import "testing"

func TestNew_InvalidURL(t *testing.T) {
	_, err := New("app", "checkpoints", "postgres://user:pass@%zz/db")
	if err == nil {
		t.Fatalf("expected an error for a malformed url")
	}
}

func TestDialect(t *testing.T) {
	if got := Dialect.Placeholder(2); got != "$2" {
		t.Fatalf("placeholder, want $2, got %s", got)
	}
}
