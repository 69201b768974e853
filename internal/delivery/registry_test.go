package delivery

import (
	"testing"

	"github.com/user/marketradar/internal/types"
)

func TestRegistryDeliver(t *testing.T) {
	reg := NewRegistry()

	var gotTarget types.NotifyTarget
	var gotMsg string
	reg.Register("test:", func(target types.NotifyTarget, message string) error {
		gotTarget = target
		gotMsg = message
		return nil
	})

	err := reg.Deliver("test:123", "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotTarget != "test:123" {
		t.Errorf("expected target %q, got %q", "test:123", gotTarget)
	}
	if gotMsg != "hello" {
		t.Errorf("expected message %q, got %q", "hello", gotMsg)
	}
}

func TestRegistryNoHandler(t *testing.T) {
	reg := NewRegistry()

	err := reg.Deliver("unknown:123", "hello")
	if err == nil {
		t.Fatal("expected error for unregistered prefix, got nil")
	}
}

func TestRegistryLongestPrefixWins(t *testing.T) {
	reg := NewRegistry()

	var generic, specific int
	reg.Register("telegram:", func(types.NotifyTarget, string) error {
		generic++
		return nil
	})
	reg.Register("telegram:ops:", func(types.NotifyTarget, string) error {
		specific++
		return nil
	})

	if err := reg.Deliver("telegram:ops:42", "msg1"); err != nil {
		t.Fatalf("deliver error: %v", err)
	}
	if err := reg.Deliver("telegram:100", "msg2"); err != nil {
		t.Fatalf("deliver error: %v", err)
	}
	if generic != 1 || specific != 1 {
		t.Errorf("expected one call each, got generic=%d specific=%d", generic, specific)
	}
	if got := reg.Prefixes(); len(got) != 2 || got[0] != "telegram:" {
		t.Errorf("unexpected prefixes %v", got)
	}
}
