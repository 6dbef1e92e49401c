package common

import (
	"errors"
	"testing"
)

func TestGuardNilViewAllows(t *testing.T) {
	if err := Guard(nil, "market"); err != nil {
		t.Fatalf("nil view should allow, got %v", err)
	}
}

func TestGuardEmptyModuleAllows(t *testing.T) {
	pauses := Pauses{"market": true}
	if err := Guard(pauses, ""); err != nil {
		t.Fatalf("empty module should allow, got %v", err)
	}
}

func TestGuardPausedModule(t *testing.T) {
	pauses := Pauses{"market": true}
	if err := Guard(pauses, "market"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := Guard(pauses, "token"); err != nil {
		t.Fatalf("unlisted module should allow, got %v", err)
	}
}

func TestNilPausesNeverPaused(t *testing.T) {
	var pauses Pauses
	if pauses.IsPaused("market") {
		t.Fatal("nil Pauses reported a module as paused")
	}
}
