package errors

import (
	"fmt"
	"testing"
)

func TestKindUnwraps(t *testing.T) {
	wrapped := fmt.Errorf("clearinghouse: redeem: %w", ErrMaturityNotReached)
	if Kind(wrapped) != ErrMaturityNotReached {
		t.Fatalf("unexpected kind: %v", Kind(wrapped))
	}
	if Label(wrapped) != "maturity_not_reached" {
		t.Fatalf("unexpected label: %s", Label(wrapped))
	}
}

func TestLabelFallbacks(t *testing.T) {
	if Label(nil) != "ok" {
		t.Fatalf("expected ok for nil error")
	}
	if Label(fmt.Errorf("disk full")) != "internal" {
		t.Fatalf("expected internal for unknown error")
	}
	if Kind(fmt.Errorf("disk full")) != nil {
		t.Fatalf("expected nil kind for unknown error")
	}
}
