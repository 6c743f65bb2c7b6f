package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestClassifiedErrorMatchesKind(t *testing.T) {
	errTooEarly := New(ErrPhase, "sale: sale not started yet")
	wrapped := fmt.Errorf("buy: %w", errTooEarly)

	if !stderrors.Is(wrapped, errTooEarly) {
		t.Fatalf("expected wrapped error to match sentinel")
	}
	if !stderrors.Is(wrapped, ErrPhase) {
		t.Fatalf("expected wrapped error to match its kind")
	}
	if stderrors.Is(wrapped, ErrValidation) {
		t.Fatalf("unexpected match against a different kind")
	}
	if got := KindOf(wrapped); got != ErrPhase {
		t.Fatalf("unexpected kind %v", got)
	}
	if got := KindName(wrapped); got != "phase" {
		t.Fatalf("unexpected kind name %q", got)
	}
	if wrapped.Error() != "buy: sale: sale not started yet" {
		t.Fatalf("unexpected message %q", wrapped.Error())
	}
}

func TestKindOfUnclassified(t *testing.T) {
	if KindOf(nil) != nil {
		t.Fatalf("nil error must not have a kind")
	}
	plain := stderrors.New("boom")
	if KindOf(plain) != nil {
		t.Fatalf("plain error must not have a kind")
	}
	if KindName(plain) != "internal" {
		t.Fatalf("plain error should be reported as internal")
	}
}
