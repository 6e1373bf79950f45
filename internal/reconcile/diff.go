package reconcile

// Dedupe drops repeated and empty tags, keeping the order of first appearance.
func Dedupe(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Diff returns the tags that left the cabinet (in start, not in end) and the
// tags that came back (in end, not in start). Tags in both are untouched.
func Diff(start, end []string) (borrowed, returned []string) {
	return minus(start, end), minus(end, start)
}

func minus(a, b []string) []string {
	drop := make(map[string]struct{}, len(b))
	for _, t := range b {
		drop[t] = struct{}{}
	}
	out := []string{}
	for _, t := range Dedupe(a) {
		if _, ok := drop[t]; !ok {
			out = append(out, t)
		}
	}
	return out
}
