package services_test

import (
	"errors"
	"strings"
	"testing"

	"voxclone/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrWorkspace, "workspace", "reset", "remove failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrWorkspace) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"workspace", "reset", "remove failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrStageFailure) {
		t.Fatalf("expected stage failure marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "pipeline failure") {
		t.Fatalf("expected default detail, got %q", err.Error())
	}
}

func TestFatal(t *testing.T) {
	if services.Fatal(nil) {
		t.Fatal("nil error must not be fatal")
	}
	warn := services.Wrap(services.ErrDependency, "deps", "install", "pip failed", nil)
	if services.Fatal(warn) {
		t.Fatal("dependency warnings are advisory")
	}
	if !services.Fatal(services.Wrap(services.ErrEnvironment, "preflight", "", "python missing", nil)) {
		t.Fatal("environment errors must be fatal")
	}
}
