// Package logging includes tests for the zap logger helpers.
package logging

import (
	"testing"

	"go.uber.org/zap"
)

// TestNewDevelopmentLogger confirms the development logger builds and logs.
func TestNewDevelopmentLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(true)
	if err != nil {
		t.Fatalf("New(true) error = %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger to be non-nil")
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("development logger ready")
}

// TestNewProductionLogger ensures the production logger configuration succeeds.
func TestNewProductionLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(false)
	if err != nil {
		t.Fatalf("New(false) error = %v", err)
	}
	if logger == nil {
		t.Fatal("expected logger to be non-nil")
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("production logger ready")
}

// TestForJournalNilLogger checks the nil guard returns a usable logger.
func TestForJournalNilLogger(t *testing.T) {
	t.Parallel()

	logger := ForJournal(nil, "Journal of Testing", "acme")
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
	logger.Info("noop")

	if got := ForURL(nil, "https://example.com"); got == nil {
		t.Fatal("expected non-nil logger")
	}
}

// TestForURLScopes ensures scoping does not mutate the parent logger.
func TestForURLScopes(t *testing.T) {
	t.Parallel()

	parent := zap.NewNop()
	child := ForURL(parent, "https://example.com/article")
	if child == parent {
		t.Fatal("expected a derived logger")
	}
}
