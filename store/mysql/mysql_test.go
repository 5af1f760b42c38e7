package mysql

import "testing"

func TestNew_InvalidDSN(t *testing.T) {
	_, err := New("app", "checkpoints", "not a dsn")
	if err == nil {
		t.Fatalf("expected an error for a malformed dsn")
	}
}

func TestDialect(t *testing.T) {
	if got := Dialect.Placeholder(2); got != "?" {
		t.Fatalf("placeholder, want ?, got %s", got)
	}
}
