package ids

import "testing"

func TestNewRequestIDMonotonic(t *testing.T) {
	prev := NewRequestID()
	for i := 0; i < 100; i++ {
		next := NewRequestID()
		if next <= prev {
			t.Fatalf("expected %q > %q", next, prev)
		}
		if !ValidRequestID(next) {
			t.Fatalf("generated id %q does not parse", next)
		}
		prev = next
	}
}

func TestValidRequestID(t *testing.T) {
	if ValidRequestID("not-a-ulid") {
		t.Error("expected garbage to be rejected")
	}
}
