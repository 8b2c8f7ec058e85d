// Package uuid provides unit tests for local id generation.
package uuid

import (
	"context"
	"regexp"
	"testing"
)

// TestNewLocalID tests that NewLocalID() generates prefixed UUID v4 strings.
func TestNewLocalID(t *testing.T) {
	id := NewLocalID()

	re := regexp.MustCompile(`^local_[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	if !re.MatchString(id) {
		t.Errorf("Generated id does not match local id format: %s", id)
	}

	if err := ValidateLocalID(id); err != nil {
		t.Errorf("ValidateLocalID(%q) = %v", id, err)
	}
}

// TestNewLocalIDUniqueness tests that NewLocalID() never repeats.
func TestNewLocalIDUniqueness(t *testing.T) {
	ids := make(map[string]bool)

	for i := 0; i < 1000; i++ {
		id := NewLocalID()
		if ids[id] {
			t.Fatalf("Duplicate id generated: %s", id)
		}
		ids[id] = true
	}
}

// TestIsLocal tests prefix detection.
func TestIsLocal(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{NewLocalID(), true},
		{"3f2504e0-4f89-41d3-9a0c-0305e82c3301", false},
		{"", false},
		{"local", false},
	}

	for _, tt := range tests {
		if got := IsLocal(tt.id); got != tt.want {
			t.Errorf("IsLocal(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}

// TestValidateLocalID tests rejection of malformed ids.
func TestValidateLocalID(t *testing.T) {
	bad := []string{
		"",
		"3f2504e0-4f89-41d3-9a0c-0305e82c3301",
		"local_not-a-uuid",
		"local_3f2504e0-4f89-11d3-9a0c-0305e82c3301", // v1
	}

	for _, id := range bad {
		if err := ValidateLocalID(id); err == nil {
			t.Errorf("ValidateLocalID(%q) should fail", id)
		}
	}
}

// TestIdempotencyKey tests that a key attached to a context can be read back.
func TestIdempotencyKey(t *testing.T) {
	if _, ok := IdempotencyKey(context.Background()); ok {
		t.Error("IdempotencyKey() on a bare context should report false")
	}

	id := NewLocalID()
	ctx := WithIdempotencyKey(context.Background(), id)
	got, ok := IdempotencyKey(ctx)
	if !ok || got != id {
		t.Errorf("IdempotencyKey() = %q, %v; want %q, true", got, ok, id)
	}

	if _, ok := IdempotencyKey(WithIdempotencyKey(context.Background(), "")); ok {
		t.Error("IdempotencyKey() should ignore an empty key")
	}
}
