package services_test

import (
	"errors"
	"strings"
	"testing"

	"oshirase/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrTransient, "extract", "anilist", "request failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"extract", "anilist", "request failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient default, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestRetryableAndKind(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		retryable bool
		kind      string
	}{
		{"nil", nil, false, ""},
		{"configuration", services.Wrap(services.ErrConfiguration, "startup", "", "bad uri", nil), false, "configuration"},
		{"validation", services.Wrap(services.ErrValidation, "load", "", "missing id", nil), false, "validation"},
		{"persistence", services.Wrap(services.ErrPersistence, "load", "anime", "", errors.New("dup")), true, "persistence"},
		{"transient", services.Wrap(services.ErrTransient, "extract", "", "", nil), true, "transient"},
		{"plain", errors.New("other"), true, "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := services.Retryable(tt.err); got != tt.retryable {
				t.Fatalf("Retryable = %v, want %v", got, tt.retryable)
			}
			if got := services.Kind(tt.err); got != tt.kind {
				t.Fatalf("Kind = %q, want %q", got, tt.kind)
			}
		})
	}
}
