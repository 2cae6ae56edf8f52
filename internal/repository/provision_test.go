package repository

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestSanitizeFormID(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "dashes become underscores",
			in:   "9b1deb4d-3b7d-4bad-9bdd-2b0d7b3dcb6d",
			want: "9b1deb4d_3b7d_4bad_9bdd_2b0d7b3dcb6d",
		},
		{
			name: "uppercase folded",
			in:   "9B1DEB4D-3B7D-4BAD-9BDD-2B0D7B3DCB6D",
			want: "9b1deb4d_3b7d_4bad_9bdd_2b0d7b3dcb6d",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			id := uuid.MustParse(tc.in)
			got := sanitizeFormID(id)
			if got != tc.want {
				t.Fatalf("sanitizeFormID = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestSanitizeFormID_OnlySafeRunes(t *testing.T) {
	// Whatever the input, the output must be a bare identifier fragment.
	for i := 0; i < 50; i++ {
		got := sanitizeFormID(uuid.New())
		for _, r := range got {
			safe := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_'
			if !safe {
				t.Fatalf("unsafe rune %q in %q", r, got)
			}
		}
	}
}

func TestPartitionNames_Deterministic(t *testing.T) {
	id := uuid.MustParse("9b1deb4d-3b7d-4bad-9bdd-2b0d7b3dcb6d")

	first := AttemptPartitionName(id)
	second := AttemptPartitionName(id)
	if first != second {
		t.Fatalf("partition name not deterministic: %q vs %q", first, second)
	}
	if !strings.HasPrefix(first, "form_attempts_") {
		t.Fatalf("unexpected prefix: %q", first)
	}
	if RosterPartitionName(id) == first {
		t.Fatal("roster and attempt partitions must not collide")
	}
}
