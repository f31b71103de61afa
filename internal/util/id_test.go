package util

import (
	"strings"
	"testing"
)

func TestNewID(t *testing.T) {
	id := NewID("conv")
	if !strings.HasPrefix(id, "conv_") {
		t.Errorf("expected conv_ prefix, got %q", id)
	}
	if strings.Contains(id, "-") {
		t.Errorf("identifier should contain no hyphens, got %q", id)
	}
	if len(id) != len("conv_")+32 {
		t.Errorf("unexpected identifier length: %q", id)
	}
}

func TestNewIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewID("req")
		if seen[id] {
			t.Fatalf("duplicate identifier %q", id)
		}
		seen[id] = true
	}
}
