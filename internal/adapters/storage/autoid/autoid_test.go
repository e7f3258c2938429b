package autoid

import "testing"

func TestNewShapeAndUniqueness(t *testing.T) {
	seen := map[string]struct{}{}
	for i := 0; i < 200; i++ {
		id := New()
		if len(id) != Length {
			t.Fatalf("New() length = %d, want %d", len(id), Length)
		}
		for _, r := range id {
			if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
				t.Fatalf("New() = %q contains non-alphanumeric %q", id, r)
			}
		}
		if _, ok := seen[id]; ok {
			t.Fatalf("New() repeated id %q", id)
		}
		seen[id] = struct{}{}
	}
}
