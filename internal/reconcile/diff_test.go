package reconcile

import (
	"slices"
	"testing"
)

func TestDiff(t *testing.T) {
	tests := []struct {
		name               string
		start, end         []string
		borrowed, returned []string
	}{
		{"one borrowed", []string{"A", "B"}, []string{"B"}, []string{"A"}, []string{}},
		{"one returned", []string{"B"}, []string{"A", "B"}, []string{}, []string{"A"}},
		{"swap", []string{"A"}, []string{"B"}, []string{"A"}, []string{"B"}},
		{"identical", []string{"A", "B"}, []string{"B", "A"}, []string{}, []string{}},
		{"empty", nil, nil, []string{}, []string{}},
		{"duplicates", []string{"A", "A", "C", ""}, []string{"C", "C"}, []string{"A"}, []string{}},
		{"order kept", []string{"Z", "Y", "X"}, nil, []string{"Z", "Y", "X"}, []string{}},
	}
	for _, tt := range tests {
		b, r := Diff(Dedupe(tt.start), Dedupe(tt.end))
		if !slices.Equal(b, tt.borrowed) || !slices.Equal(r, tt.returned) {
			t.Errorf("%s: Diff = %v, %v; want %v, %v", tt.name, b, r, tt.borrowed, tt.returned)
		}
	}
}

func TestDiffDisjoint(t *testing.T) {
	start := []string{"A", "B", "C", "D"}
	end := []string{"C", "D", "E"}
	b, r := Diff(start, end)

	for _, tag := range b {
		if slices.Contains(r, tag) {
			t.Errorf("tag %s both borrowed and returned", tag)
		}
		if slices.Contains(end, tag) {
			t.Errorf("borrowed tag %s is still in the cabinet", tag)
		}
	}
	for _, tag := range r {
		if slices.Contains(start, tag) {
			t.Errorf("returned tag %s was already in the cabinet", tag)
		}
	}
}
