package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestLedgerError(t *testing.T) {
	baseErr := errors.New("connection refused")

	t.Run("matches ErrLedgerUnavailable", func(t *testing.T) {
		err := NewLedgerError("getLogs", baseErr)

		if !errors.Is(err, ErrLedgerUnavailable) {
			t.Error("Expected LedgerError to match ErrLedgerUnavailable")
		}
		if !errors.Is(err, baseErr) {
			t.Error("Expected error to wrap baseErr")
		}
		if err.Error() != "ledger getLogs: connection refused" {
			t.Errorf("Error message = %q, want %q", err.Error(), "ledger getLogs: connection refused")
		}
	})

	t.Run("survives wrapping", func(t *testing.T) {
		wrapped := fmt.Errorf("load history: %w", NewLedgerError("blockNumber", baseErr))
		if !errors.Is(wrapped, ErrLedgerUnavailable) {
			t.Error("Wrapped LedgerError should still match ErrLedgerUnavailable")
		}
		if !IsRetriable(wrapped) {
			t.Error("LedgerError should be retriable")
		}
	})
}

func TestPersistError(t *testing.T) {
	baseErr := errors.New("permission denied")

	read := &PersistError{Op: "read", Path: "phx_price.json", Err: baseErr}
	write := &PersistError{Op: "write", Path: "phx_price.json", Err: baseErr}

	if !errors.Is(read, ErrPersistRead) || errors.Is(read, ErrPersistWrite) {
		t.Error("read error should only match ErrPersistRead")
	}
	if !errors.Is(write, ErrPersistWrite) || errors.Is(write, ErrPersistRead) {
		t.Error("write error should only match ErrPersistWrite")
	}
	if IsRetriable(read) {
		t.Error("read errors are recovered, not retried")
	}
	if !IsRetriable(write) {
		t.Error("write errors should be retriable")
	}
}

func TestMetricError(t *testing.T) {
	err := &MetricError{Metric: "concentration", Err: errors.New("boom")}
	if !errors.Is(err, ErrMetricComputation) {
		t.Error("MetricError should match ErrMetricComputation")
	}
	if err.Error() != "metric concentration: boom" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestConfigError(t *testing.T) {
	baseErr := errors.New("missing value")
	err := &ConfigError{Field: "ledger.rpc_url", Err: baseErr}

	if err.IsRetriable() {
		t.Error("ConfigError should never be retriable")
	}

	expected := "config error [ledger.rpc_url]: missing value"
	if err.Error() != expected {
		t.Errorf("Error message = %q, want %q", err.Error(), expected)
	}
}
