package localid

import (
	"strings"
	"testing"
)

func TestNewHasPrefix(t *testing.T) {
	id := New()
	if !Is(id) {
		t.Errorf("New() = %q, missing prefix", id)
	}
	parts := strings.SplitN(id, "_", 3)
	if len(parts) != 3 {
		t.Fatalf("id %q does not have local_<ts>_<rand> shape", id)
	}
	if parts[2] == "" {
		t.Error("random suffix is empty")
	}
}

func TestNewUnique(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		id := New()
		if _, ok := seen[id]; ok {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = struct{}{}
	}
}

func TestStrip(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"local_123_abc", "123_abc"},
		{"remote123", "remote123"},
		{"", ""},
	}
	for _, c := range cases {
		if got := Strip(c.in); got != c.want {
			t.Errorf("Strip(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestIs(t *testing.T) {
	if Is("abc123") {
		t.Error("Is(abc123) = true")
	}
	if !Is("local_1_x") {
		t.Error("Is(local_1_x) = false")
	}
}
