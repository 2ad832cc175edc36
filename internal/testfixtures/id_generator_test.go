package testfixtures

import "testing"

func TestIDGenerator_SequentialIdentifiers(t *testing.T) {
	gen := NewIDGenerator("plan")

	if got := gen.Next(); got != "plan-001" {
		t.Fatalf("expected plan-001, got %s", got)
	}
	if got := gen.Next(); got != "plan-002" {
		t.Fatalf("expected plan-002, got %s", got)
	}
	if gen.Issued() != 2 {
		t.Fatalf("issued = %d, want 2", gen.Issued())
	}

	gen.Reset()
	if got := gen.Next(); got != "plan-001" {
		t.Fatalf("expected plan-001 after reset, got %s", got)
	}
}

func TestIDGenerator_EmptyPrefixDefaults(t *testing.T) {
	gen := NewIDGenerator("")
	if got := gen.Next(); got != "id-001" {
		t.Fatalf("expected id-001, got %s", got)
	}
}

func TestIDGenerator_NilReceiverNextFunc(t *testing.T) {
	var gen *IDGenerator
	next := gen.NextFunc()
	if next == nil {
		t.Fatal("expected a usable fallback function")
	}
	if got := next(); got != "" {
		t.Fatalf("expected empty identifier from fallback, got %s", got)
	}
}
